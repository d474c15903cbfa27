// Package change computes file-level add/modify/remove deltas between a
// prior snapshot and the current state of a codebase.
package change

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"sort"

	"github.com/opencodesearch/codesearch/internal/snapshot"
	"github.com/opencodesearch/codesearch/internal/walk"
)

// Diff is the result of comparing the current file set against a prior
// snapshot: the sets of paths added, modified, and removed, plus the freshly
// computed file hashes for the current file set (the new snapshot). Every
// slice is sorted lexicographically by relative path.
type Diff struct {
	Added     []string
	Modified  []string
	Removed   []string
	NewHashes map[string]string
}

// Detector computes Diffs using a Walker to enumerate the current file set.
type Detector struct {
	Walker *walk.Walker
}

// New creates a Detector backed by a default Walker.
func New() *Detector {
	return &Detector{Walker: walk.New(0)}
}

// Diff enumerates the current file set under root (honouring allowedExts and
// ignorePatterns via FileWalker), hashes each file's raw bytes with SHA-256,
// and compares against prior. The caller is responsible for persisting
// NewHashes via SnapshotStore only once the downstream operation (e.g.
// reindexing) succeeds.
func (d *Detector) Diff(ctx context.Context, root string, allowedExts, ignorePatterns []string, prior map[string]string) (Diff, error) {
	entries, err := d.Walker.Walk(ctx, walk.Options{
		Root:           root,
		AllowedExts:    allowedExts,
		IgnorePatterns: ignorePatterns,
	})
	if err != nil {
		return Diff{}, fmt.Errorf("change: walk %s: %w", root, err)
	}

	current := make(map[string]string)
	for e := range entries {
		select {
		case <-ctx.Done():
			return Diff{}, ctx.Err()
		default:
		}
		sum, err := hashFile(e.AbsPath)
		if err != nil {
			return Diff{}, fmt.Errorf("change: hash %s: %w", e.RelPath, err)
		}
		current[e.RelPath] = sum
	}

	var added, modified, removed []string
	for path, hash := range current {
		prevHash, existed := prior[path]
		switch {
		case !existed:
			added = append(added, path)
		case prevHash != hash:
			modified = append(modified, path)
		}
	}
	for path := range prior {
		if _, stillExists := current[path]; !stillExists {
			removed = append(removed, path)
		}
	}

	sort.Strings(added)
	sort.Strings(modified)
	sort.Strings(removed)

	return Diff{
		Added:     added,
		Modified:  modified,
		Removed:   removed,
		NewHashes: current,
	}, nil
}

func hashFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// Save is a convenience that persists a Diff's NewHashes as the latest
// snapshot for root.
func Save(store *snapshot.Store, root string, d Diff) error {
	return store.Save(root, d.NewHashes)
}
