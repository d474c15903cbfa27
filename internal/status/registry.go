// Package status tracks per-codebase indexing lifecycle state. The registry
// is the authoritative source of truth for the life of the process: every
// read is served from an in-memory map, never from disk. Disk is used only
// to hydrate state at process start and to durably record transitions on a
// best-effort, fire-and-forget basis.
package status

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

// Phase is the tagged-union discriminant for a codebase's lifecycle state.
type Phase int

const (
	// PhaseIndexing means a run is in progress.
	PhaseIndexing Phase = iota
	// PhaseIndexed means the most recent run completed (possibly with
	// status "limit_reached").
	PhaseIndexed
	// PhaseFailed means the most recent run errored out.
	PhaseFailed
)

// Entry is a codebase's current lifecycle state. Only the fields relevant to
// Phase are meaningful; the zero value of the others is not read.
type Entry struct {
	Phase Phase `json:"phase"`

	// PhaseIndexing
	Progress float64 `json:"progress,omitempty"`

	// PhaseIndexed
	IndexedFiles uint64 `json:"indexed_files,omitempty"`
	TotalChunks  uint64 `json:"total_chunks,omitempty"`
	IndexStatus  string `json:"index_status,omitempty"` // "completed" | "limit_reached"

	// PhaseFailed
	ErrorMessage          string  `json:"error_message,omitempty"`
	LastAttemptedProgress float64 `json:"last_attempted_progress,omitempty"`
}

// Registry holds in-memory lifecycle state for every codebase root known to
// this process, with best-effort async disk persistence.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]Entry

	// persistDir is where state snapshots are written. Empty disables
	// persistence (in-memory only, used in tests).
	persistDir string
}

// NewRegistry creates an empty registry that persists to persistDir. An
// empty persistDir disables disk persistence entirely.
func NewRegistry(persistDir string) *Registry {
	return &Registry{
		entries:    make(map[string]Entry),
		persistDir: persistDir,
	}
}

// Get returns the current entry for root and whether one exists. This never
// touches disk or the network.
func (r *Registry) Get(root string) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[root]
	return e, ok
}

// CountIndexed returns the number of roots currently in the Indexed phase,
// used to report remaining_indexed_codebases after a clear.
func (r *Registry) CountIndexed() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, e := range r.entries {
		if e.Phase == PhaseIndexed {
			n++
		}
	}
	return n
}

// StartIndexing transitions root to Indexing{0}, from any prior state or
// absence.
func (r *Registry) StartIndexing(root string) {
	r.set(root, Entry{Phase: PhaseIndexing, Progress: 0})
}

// SetProgress updates an in-progress Indexing entry's percentage. pct is
// clamped to [0, 100].
func (r *Registry) SetProgress(root string, pct float64) {
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	r.set(root, Entry{Phase: PhaseIndexing, Progress: pct})
}

// SetIndexed is the race-fix boundary: it updates in-memory state first and
// returns only after the in-memory map reflects the new state, so any
// subsequent Get from any goroutine observes Indexed immediately. Disk
// persistence is kicked off afterward, fire-and-forget.
func (r *Registry) SetIndexed(root string, files, chunks uint64, indexStatus string) {
	r.set(root, Entry{
		Phase:        PhaseIndexed,
		IndexedFiles: files,
		TotalChunks:  chunks,
		IndexStatus:  indexStatus,
	})
}

// SetFailed transitions root to IndexFailed.
func (r *Registry) SetFailed(root, errMsg string, lastPct float64) {
	r.set(root, Entry{
		Phase:                 PhaseFailed,
		ErrorMessage:          errMsg,
		LastAttemptedProgress: lastPct,
	})
}

// Clear removes root's entry entirely (absent state).
func (r *Registry) Clear(root string) {
	r.mu.Lock()
	delete(r.entries, root)
	r.mu.Unlock()
	r.persistAsync(root, nil)
}

// set installs entry for root in-memory first, then fires off an async,
// best-effort disk write. The in-memory write happens-before this call
// returns, satisfying the race-fix contract: no reader can observe stale
// state once set returns, regardless of whether the disk write has landed.
func (r *Registry) set(root string, entry Entry) {
	r.mu.Lock()
	r.entries[root] = entry
	r.mu.Unlock()
	r.persistAsync(root, &entry)
}

// persistAsync writes entry (or deletes the file, if entry is nil) to disk
// in a background goroutine. Failures are logged and never surfacing to the
// caller: the in-memory registry remains authoritative for the life of the
// process per the spec's race-fix rule.
func (r *Registry) persistAsync(root string, entry *Entry) {
	if r.persistDir == "" {
		return
	}
	dir := r.persistDir
	path := persistPath(dir, root)

	go func() {
		if entry == nil {
			if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
				slog.Warn("status: failed to delete persisted entry", slog.String("root", root), slog.String("error", err.Error()))
			}
			return
		}
		if err := atomicWriteJSON(dir, path, root, entry); err != nil {
			slog.Warn("status: failed to persist entry, in-memory state remains authoritative",
				slog.String("root", root), slog.String("error", err.Error()))
		}
	}()
}

// Hydrate loads any previously persisted entries from disk into memory. It
// is meant to be called once at process start; entries it cannot read are
// skipped with a WARN rather than failing startup.
func (r *Registry) Hydrate() {
	if r.persistDir == "" {
		return
	}
	files, err := os.ReadDir(r.persistDir)
	if err != nil {
		return
	}
	for _, f := range files {
		if f.IsDir() {
			continue
		}
		data, err := os.ReadFile(filepath.Join(r.persistDir, f.Name()))
		if err != nil {
			slog.Warn("status: failed to hydrate entry", slog.String("file", f.Name()), slog.String("error", err.Error()))
			continue
		}
		var stored persistedEntry
		if err := json.Unmarshal(data, &stored); err != nil {
			slog.Warn("status: failed to decode persisted entry", slog.String("file", f.Name()), slog.String("error", err.Error()))
			continue
		}
		r.mu.Lock()
		r.entries[stored.Root] = stored.Entry
		r.mu.Unlock()
	}
}

type persistedEntry struct {
	Root  string `json:"root"`
	Entry Entry  `json:"entry"`
}

func persistPath(dir, root string) string {
	return filepath.Join(dir, fileNameFor(root)+".status.json")
}

func fileNameFor(root string) string {
	sum := sha256.Sum256([]byte(root))
	return hex.EncodeToString(sum[:])[:16]
}

func atomicWriteJSON(dir, target, root string, entry *Entry) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	data, err := json.Marshal(persistedEntry{Root: root, Entry: *entry})
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(target)+".tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpPath, target)
}
