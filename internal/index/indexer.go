package index

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/opencodesearch/codesearch/internal/bm25"
	"github.com/opencodesearch/codesearch/internal/change"
	"github.com/opencodesearch/codesearch/internal/chunk"
	"github.com/opencodesearch/codesearch/internal/embed"
	"github.com/opencodesearch/codesearch/internal/errors"
	"github.com/opencodesearch/codesearch/internal/snapshot"
	"github.com/opencodesearch/codesearch/internal/status"
	"github.com/opencodesearch/codesearch/internal/vectorstore"
	"github.com/opencodesearch/codesearch/internal/walk"
)

// DefaultEmbedBatch and DefaultInsertBatch are the batch sizes the protocol
// uses absent an override: EMBED_BATCH=64, INSERT_BATCH=128.
const (
	DefaultEmbedBatch  = 64
	DefaultInsertBatch = 128

	// perItemFallbackDelay paces per-item embedding retries after a batch
	// call fails, so a struggling provider isn't hammered item-by-item.
	perItemFallbackDelay = 100 * time.Millisecond
)

// Config tunes the Indexer's batch sizes. Zero values fall back to the
// protocol defaults.
type Config struct {
	EmbedBatch  int
	InsertBatch int
}

func (c Config) embedBatch() int {
	if c.EmbedBatch > 0 {
		return c.EmbedBatch
	}
	return DefaultEmbedBatch
}

func (c Config) insertBatch() int {
	if c.InsertBatch > 0 {
		return c.InsertBatch
	}
	return DefaultInsertBatch
}

// IndexOptions configures a single index_codebase call.
type IndexOptions struct {
	Force          bool
	AllowedExts    []string
	IgnorePatterns []string
	MaxFileSize    int64
}

// IndexStats summarises a completed or partially completed run.
type IndexStats struct {
	IndexedFiles int
	TotalChunks  int
	Status       string // "completed" | "limit_reached" | "cancelled"
}

// ReindexStats summarises a reindex_by_change run.
type ReindexStats struct {
	Added    int
	Modified int
	Removed  int
}

// ProgressEvent is emitted monotonically (within a single run) as files are
// processed. Total is the number of files the walker enumerated up front;
// chunk counts aren't known until a file is fully chunked, so progress is
// tracked in terms of files rather than chunks.
type ProgressEvent struct {
	Phase      string
	Processed  int
	Total      int
	Percentage float64
}

// ProgressFunc receives ProgressEvents. A nil func is a valid no-op.
type ProgressFunc func(ProgressEvent)

func (f ProgressFunc) emit(e ProgressEvent) {
	if f != nil {
		f(e)
	}
}

// Indexer orchestrates the full index_codebase / reindex_by_change / clear /
// status protocol over a codebase root, wiring together the walker, chunker,
// embedder, BM25 model, vector store, snapshot store, and status registry.
type Indexer struct {
	Walker          *walk.Walker
	Registry        *chunk.LanguageRegistry
	CodeChunker     chunk.Chunker
	MarkdownChunker chunk.Chunker
	Embedder        embed.Embedder
	BM25            *bm25.Model
	Store           vectorstore.VectorStore
	Snapshots       *snapshot.Store
	StatusRegistry  *status.Registry
	Detector        *change.Detector
	Config          Config

	collLocks sync.Map // map[string]*sync.Mutex, serializes insertHybrid per collection
}

// New creates an Indexer wired to the given backends, using default chunkers,
// a default Walker, and a fresh per-process BM25 model.
func New(embedder embed.Embedder, store vectorstore.VectorStore, snapshots *snapshot.Store, reg *status.Registry) *Indexer {
	return &Indexer{
		Walker:          walk.New(0),
		Registry:        chunk.DefaultRegistry(),
		CodeChunker:     chunk.NewCodeChunker(),
		MarkdownChunker: chunk.NewMarkdownChunker(),
		Embedder:        embedder,
		BM25:            bm25.NewModel(),
		Store:           store,
		Snapshots:       snapshots,
		StatusRegistry:  reg,
		Detector:        change.New(),
	}
}

func (ix *Indexer) lockCollection(name string) func() {
	v, _ := ix.collLocks.LoadOrStore(name, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// tryLockCollection acquires the per-collection lock without blocking. ok is
// false when another index/reindex run already holds it, the signal this
// call should fail fast with AlreadyIndexing rather than queue up behind it.
func (ix *Indexer) tryLockCollection(name string) (release func(), ok bool) {
	v, _ := ix.collLocks.LoadOrStore(name, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	if !mu.TryLock() {
		return nil, false
	}
	return mu.Unlock, true
}

// IndexCodebase performs a full, from-scratch index of root: enumerate every
// file, chunk, embed, and insert into a freshly created hybrid collection,
// persisting a snapshot and terminal status on completion.
func (ix *Indexer) IndexCodebase(ctx context.Context, root string, opts IndexOptions, progress ProgressFunc) (IndexStats, error) {
	root = CanonicalRoot(root)
	collection := CollectionName(root)

	if entry, ok := ix.StatusRegistry.Get(root); ok && entry.Phase == status.PhaseIndexing {
		return IndexStats{}, errors.AlreadyIndexing(root)
	}

	release, ok := ix.tryLockCollection(collection)
	if !ok {
		return IndexStats{}, errors.AlreadyIndexing(root)
	}
	defer release()

	exists, err := ix.Store.CollectionExists(ctx, collection)
	if err != nil {
		return IndexStats{}, fmt.Errorf("index: check collection exists: %w", err)
	}
	if exists && !opts.Force {
		return IndexStats{}, errors.AlreadyIndexed(root)
	}
	if exists {
		if err := ix.Store.DropCollection(ctx, collection); err != nil {
			return IndexStats{}, fmt.Errorf("index: drop prior collection: %w", err)
		}
	}

	ix.StatusRegistry.StartIndexing(root)

	entries, err := ix.Walker.Walk(ctx, walk.Options{
		Root:           root,
		AllowedExts:    opts.AllowedExts,
		IgnorePatterns: opts.IgnorePatterns,
		MaxFileSize:    opts.MaxFileSize,
	})
	if err != nil {
		ix.StatusRegistry.SetFailed(root, err.Error(), 0)
		return IndexStats{}, fmt.Errorf("index: walk %s: %w", root, err)
	}
	var files []walk.Entry
	for e := range entries {
		files = append(files, e)
	}
	totalFiles := len(files)

	// Walk returns an empty listing without an error when ctx is cancelled.
	if ctx.Err() != nil {
		ix.StatusRegistry.SetFailed(root, "cancelled", 0)
		return IndexStats{Status: "cancelled"}, errors.Wrap(errors.KindCancelled, "operation cancelled", ctx.Err())
	}

	dim, err := ix.embeddingDimension(ctx)
	if err != nil {
		ix.StatusRegistry.SetFailed(root, err.Error(), 0)
		return IndexStats{}, fmt.Errorf("index: probe embedding dimension: %w", err)
	}
	if err := ix.Store.CreateCollection(ctx, collection, dim, true); err != nil {
		ix.StatusRegistry.SetFailed(root, err.Error(), 0)
		return IndexStats{}, fmt.Errorf("index: create collection: %w", err)
	}

	run := &indexRun{
		indexer:     ix,
		root:        root,
		collection:  collection,
		newHashes:   make(map[string]string),
		embedBatch:  ix.Config.embedBatch(),
		insertBatch: ix.Config.insertBatch(),
		relearnBM25: true,
	}

	for i, e := range files {
		select {
		case <-ctx.Done():
			ix.StatusRegistry.SetFailed(root, "cancelled", run.lastPct(totalFiles))
			return run.stats("cancelled"), errors.Wrap(errors.KindCancelled, "operation cancelled", ctx.Err())
		default:
		}

		if err := run.processFile(ctx, e); err != nil {
			slog.Warn("index: failed to index file, skipping", slog.String("file", e.RelPath), slog.String("error", err.Error()))
		}
		run.processedFiles++

		withinLimit, err := ix.Store.CheckCollectionLimit(ctx, collection)
		if err == nil && !withinLimit {
			if err := run.flushAll(ctx); err != nil {
				ix.StatusRegistry.SetFailed(root, err.Error(), run.lastPct(totalFiles))
				return IndexStats{}, err
			}
			return run.finish(root, "limit_reached")
		}

		pct := run.lastPct(totalFiles)
		progress.emit(ProgressEvent{Phase: "indexing", Processed: i + 1, Total: totalFiles, Percentage: pct})
	}

	if err := run.flushAll(ctx); err != nil {
		ix.StatusRegistry.SetFailed(root, err.Error(), run.lastPct(totalFiles))
		return IndexStats{}, err
	}

	return run.finish(root, "completed")
}

// embeddingDimension returns the embedder's dimension, probing it with a
// single call when the embedder cannot report it statically.
func (ix *Indexer) embeddingDimension(ctx context.Context) (int, error) {
	if d := ix.Embedder.Dimensions(); d > 0 {
		return d, nil
	}
	v, err := ix.Embedder.Embed(ctx, "dimension probe")
	if err != nil {
		return 0, err
	}
	return len(v), nil
}

// languageFor returns the tree-sitter language name for relPath's extension,
// or "" if none is registered (the chunker falls back to size-based
// splitting in that case).
func (ix *Indexer) languageFor(relPath string) string {
	cfg, ok := ix.Registry.GetByExtension(filepath.Ext(relPath))
	if !ok {
		return ""
	}
	return cfg.Name
}

// chunkerFor selects the markdown chunker for markdown extensions and the
// code chunker (which itself degrades to size-based splitting for
// unsupported languages) for everything else.
func (ix *Indexer) chunkerFor(relPath string) chunk.Chunker {
	switch filepath.Ext(relPath) {
	case ".md", ".markdown", ".mdx":
		return ix.MarkdownChunker
	default:
		return ix.CodeChunker
	}
}

// ReindexByChange diffs root against its last persisted snapshot and applies
// only the delta: removed paths are deleted from the collection, modified
// paths are deleted then re-chunked/embedded/inserted, and added paths are
// chunked/embedded/inserted. The new snapshot is only persisted once every
// step succeeds.
func (ix *Indexer) ReindexByChange(ctx context.Context, root string, opts IndexOptions, progress ProgressFunc) (ReindexStats, error) {
	root = CanonicalRoot(root)
	collection := CollectionName(root)

	if entry, ok := ix.StatusRegistry.Get(root); ok && entry.Phase == status.PhaseIndexing {
		return ReindexStats{}, errors.AlreadyIndexing(root)
	}

	release, ok := ix.tryLockCollection(collection)
	if !ok {
		return ReindexStats{}, errors.AlreadyIndexing(root)
	}
	defer release()

	exists, err := ix.Store.CollectionExists(ctx, collection)
	if err != nil {
		return ReindexStats{}, fmt.Errorf("index: check collection exists: %w", err)
	}
	if !exists {
		return ReindexStats{}, errors.NotIndexed(root)
	}

	prior, err := ix.Snapshots.Load(root)
	if err != nil {
		return ReindexStats{}, fmt.Errorf("index: load snapshot: %w", err)
	}

	diff, err := ix.Detector.Diff(ctx, root, opts.AllowedExts, opts.IgnorePatterns, prior)
	if err != nil {
		return ReindexStats{}, fmt.Errorf("index: diff %s: %w", root, err)
	}

	total := len(diff.Added) + len(diff.Modified) + len(diff.Removed)
	done := 0
	emit := func() {
		pct := 100.0
		if total > 0 {
			pct = float64(done) / float64(total) * 100
		}
		progress.emit(ProgressEvent{Phase: "reindexing", Processed: done, Total: total, Percentage: pct})
	}

	for _, relPath := range diff.Removed {
		if err := ix.deleteByPath(ctx, collection, relPath); err != nil {
			return ReindexStats{}, fmt.Errorf("index: delete %s: %w", relPath, err)
		}
		done++
		emit()
	}

	run := &indexRun{
		indexer:     ix,
		root:        root,
		collection:  collection,
		newHashes:   diff.NewHashes,
		embedBatch:  ix.Config.embedBatch(),
		insertBatch: ix.Config.insertBatch(),
		relearnBM25: false,
	}

	for _, relPath := range diff.Modified {
		if err := ix.deleteByPath(ctx, collection, relPath); err != nil {
			return ReindexStats{}, fmt.Errorf("index: delete stale %s: %w", relPath, err)
		}
		if err := run.processFile(ctx, walk.Entry{AbsPath: filepath.Join(root, relPath), RelPath: relPath}); err != nil {
			return ReindexStats{}, fmt.Errorf("index: reindex %s: %w", relPath, err)
		}
		done++
		emit()
	}

	for _, relPath := range diff.Added {
		if err := run.processFile(ctx, walk.Entry{AbsPath: filepath.Join(root, relPath), RelPath: relPath}); err != nil {
			return ReindexStats{}, fmt.Errorf("index: index new file %s: %w", relPath, err)
		}
		done++
		emit()
	}

	if err := run.flushAll(ctx); err != nil {
		return ReindexStats{}, fmt.Errorf("index: flush reindex batch: %w", err)
	}

	if err := ix.Snapshots.Save(root, diff.NewHashes); err != nil {
		return ReindexStats{}, fmt.Errorf("index: persist snapshot: %w", err)
	}

	return ReindexStats{Added: len(diff.Added), Modified: len(diff.Modified), Removed: len(diff.Removed)}, nil
}

// deleteByPath removes every document whose relativePath equals relPath.
// FAISS-family backends reject Delete outright (vectorstore.ErrDeleteUnsupported),
// which this surfaces to the caller rather than swallowing, per spec.md's
// FAISS-backend contract.
func (ix *Indexer) deleteByPath(ctx context.Context, collection, relPath string) error {
	docs, err := ix.Store.Query(ctx, collection, fmt.Sprintf("relativePath == %q", relPath), 0)
	if err != nil {
		return err
	}
	if len(docs) == 0 {
		return nil
	}
	ids := make([]string, len(docs))
	for i, d := range docs {
		ids[i] = d.ID
	}
	return ix.Store.Delete(ctx, collection, ids)
}

// Clear drops the collection (missing is not an error), deletes the
// snapshot (missing is not an error), and removes the status registry entry.
func (ix *Indexer) Clear(ctx context.Context, root string) error {
	root = CanonicalRoot(root)
	collection := CollectionName(root)

	if err := ix.Store.DropCollection(ctx, collection); err != nil {
		return fmt.Errorf("index: clear: drop collection: %w", err)
	}
	if err := ix.Snapshots.Delete(root); err != nil {
		return fmt.Errorf("index: clear: delete snapshot: %w", err)
	}
	ix.StatusRegistry.Clear(root)
	return nil
}

// Status returns root's current lifecycle entry, a pure in-memory read.
func (ix *Indexer) Status(root string) (status.Entry, bool) {
	return ix.StatusRegistry.Get(CanonicalRoot(root))
}

func hashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
