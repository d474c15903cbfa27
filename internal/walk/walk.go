// Package walk enumerates indexable files under a root directory, honouring
// include/ignore rules, in a deterministic depth-first, lexicographic order.
package walk

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"syscall"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// DefaultMaxFileSize is the default size cap: 1 MiB.
const DefaultMaxFileSize int64 = 1 * 1024 * 1024

// Entry is one discovered file: its absolute path and its path relative to
// the walk root.
type Entry struct {
	AbsPath string
	RelPath string
}

// Options configures a single walk.
type Options struct {
	// Root is the directory to walk.
	Root string
	// AllowedExts is the ordered list of allowed file extensions (e.g. ".go").
	// A file whose extension is not in this set is skipped silently. An empty
	// slice allows every extension.
	AllowedExts []string
	// IgnorePatterns is appended to DefaultIgnorePatterns, never replaces them.
	IgnorePatterns []string
	// MaxFileSize is the size cap in bytes; files larger than this are
	// skipped with a WARN. Zero means DefaultMaxFileSize.
	MaxFileSize int64
}

// DefaultIgnorePatterns covers build outputs, VCS directories, lockfiles,
// binary extensions, and common package caches. Callers append to this list
// via Options.IgnorePatterns; it is never replaced.
var DefaultIgnorePatterns = []string{
	"**/.git/**",
	"**/node_modules/**",
	"**/vendor/**",
	"**/__pycache__/**",
	"**/.venv/**",
	"**/dist/**",
	"**/build/**",
	"**/target/**",
	"**/*.min.js",
	"**/*.min.css",
	"**/package-lock.json",
	"**/yarn.lock",
	"**/pnpm-lock.yaml",
	"**/go.sum",
	"**/*.exe",
	"**/*.dll",
	"**/*.so",
	"**/*.dylib",
	"**/*.pyc",
	"**/*.class",
	"**/*.jar",
	"**/*.o",
	"**/*.a",
}

// Walker enumerates files under a root directory.
type Walker struct {
	// Workers bounds the number of directories walked concurrently. Zero
	// means min(runtime.NumCPU(), 8).
	Workers int
}

// New creates a Walker with the given worker width. A width <= 0 uses
// min(runtime.NumCPU(), 8).
func New(workers int) *Walker {
	return &Walker{Workers: workers}
}

func (w *Walker) workers() int {
	if w.Workers > 0 {
		return w.Workers
	}
	n := runtime.NumCPU()
	if n > 8 {
		return 8
	}
	return n
}

// Walk enumerates every indexable file under opts.Root and streams it on the
// returned channel in deterministic depth-first, lexicographic order. The
// channel is closed once the walk completes or ctx is cancelled.
func (w *Walker) Walk(ctx context.Context, opts Options) (<-chan Entry, error) {
	root := opts.Root
	if root == "" {
		root = "."
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("walk: resolve root: %w", err)
	}
	info, err := os.Stat(absRoot)
	if err != nil {
		return nil, fmt.Errorf("walk: stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("walk: root is not a directory: %s", absRoot)
	}

	maxSize := opts.MaxFileSize
	if maxSize <= 0 {
		maxSize = DefaultMaxFileSize
	}

	ignore := newIgnoreMatcher(opts.IgnorePatterns)
	exts := newExtSet(opts.AllowedExts)

	t := &traversal{
		ignore:  ignore,
		exts:    exts,
		maxSize: maxSize,
		sem:     semaphore.NewWeighted(int64(w.workers())),
	}

	rootKey, err := dirKey(info)
	if err != nil {
		return nil, fmt.Errorf("walk: stat root: %w", err)
	}

	entries, err := t.walkDir(ctx, absRoot, "", []dirKeyT{rootKey})
	if err != nil && err != context.Canceled {
		return nil, err
	}

	out := make(chan Entry, len(entries))
	for _, e := range entries {
		out <- e
	}
	close(out)
	return out, nil
}

// traversal holds state shared across one Walk call.
type traversal struct {
	ignore  *ignoreMatcher
	exts    extSet
	maxSize int64
	sem     *semaphore.Weighted
}

type dirEnt struct {
	name  string
	isDir bool
}

// dirKeyT identifies a physical directory by device and inode, used to
// detect symlink cycles along a single descent path.
type dirKeyT [2]uint64

func dirKey(info os.FileInfo) (dirKeyT, error) {
	stat, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return dirKeyT{}, fmt.Errorf("walk: unsupported platform for symlink cycle detection")
	}
	return dirKeyT{uint64(stat.Dev), stat.Ino}, nil
}

// walkDir recursively enumerates relDir (relative to absRoot), returning
// entries in deterministic lexicographic order. Sibling subdirectories are
// walked concurrently (bounded by t.sem); file/dir interleaving within a
// directory is preserved by assembling results after all children resolve.
// ancestors is the chain of physical directories from root down to relDir
// (inclusive), used to detect symlink cycles: a cycle is a directory whose
// (dev,ino) already appears in its own ancestor chain, not merely a
// directory reached by more than one path.
func (t *traversal) walkDir(ctx context.Context, absDir, relDir string, ancestors []dirKeyT) ([]Entry, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	dirents, err := os.ReadDir(absDir)
	if err != nil {
		slog.Warn("walk: cannot read directory", slog.String("path", absDir), slog.String("error", err.Error()))
		return nil, nil
	}

	names := make([]dirEnt, 0, len(dirents))
	for _, d := range dirents {
		names = append(names, dirEnt{name: d.Name(), isDir: d.IsDir()})
	}
	sort.Slice(names, func(i, j int) bool { return names[i].name < names[j].name })

	results := make([][]Entry, len(names))
	g, gctx := errgroup.WithContext(ctx)

	for i, de := range names {
		i, de := i, de
		relPath := join(relDir, de.name)
		absPath := filepath.Join(absDir, de.name)

		lst, err := os.Lstat(absPath)
		if err != nil {
			slog.Warn("walk: cannot stat entry", slog.String("path", absPath), slog.String("error", err.Error()))
			continue
		}

		var childKey dirKeyT
		haveKey := false

		if lst.Mode()&os.ModeSymlink != 0 {
			target, err := os.Stat(absPath) // follow once
			if err != nil {
				slog.Warn("walk: unreadable symlink", slog.String("path", absPath), slog.String("error", err.Error()))
				continue
			}
			if target.IsDir() {
				de.isDir = true
				if key, err := dirKey(target); err == nil {
					childKey, haveKey = key, true
				}
			}
		}

		if de.isDir {
			if t.ignore.matchDir(relPath) {
				continue
			}
			if !haveKey {
				if info, err := os.Stat(absPath); err == nil {
					if key, err := dirKey(info); err == nil {
						childKey, haveKey = key, true
					}
				}
			}
			if haveKey {
				cyclic := false
				for _, a := range ancestors {
					if a == childKey {
						cyclic = true
						break
					}
				}
				if cyclic {
					continue // cycle: skip
				}
			}
			childAncestors := append(append([]dirKeyT{}, ancestors...), childKey)

			if err := t.sem.Acquire(gctx, 1); err != nil {
				return nil, err
			}
			g.Go(func() error {
				defer t.sem.Release(1)
				sub, err := t.walkDir(gctx, absPath, relPath, childAncestors)
				if err != nil {
					return err
				}
				results[i] = sub
				return nil
			})
			continue
		}

		if t.ignore.matchFile(relPath) {
			continue
		}
		if !t.exts.allows(relPath) {
			continue
		}
		if lst.Size() > t.maxSize {
			slog.Warn("walk: file exceeds size cap, skipping", slog.String("path", relPath), slog.Int64("size", lst.Size()), slog.Int64("cap", t.maxSize))
			continue
		}

		results[i] = []Entry{{AbsPath: absPath, RelPath: relPath}}
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	var out []Entry
	for _, r := range results {
		out = append(out, r...)
	}
	return out, nil
}

func join(dir, name string) string {
	if dir == "" {
		return name
	}
	return dir + "/" + name
}
