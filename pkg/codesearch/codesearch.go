package codesearch

import (
	"context"

	"github.com/opencodesearch/codesearch/internal/bm25"
	"github.com/opencodesearch/codesearch/internal/embed"
	"github.com/opencodesearch/codesearch/internal/index"
	"github.com/opencodesearch/codesearch/internal/search"
	"github.com/opencodesearch/codesearch/internal/snapshot"
	"github.com/opencodesearch/codesearch/internal/status"
	"github.com/opencodesearch/codesearch/internal/vectorstore"
)

// Re-exported request/response shapes so callers only need this package.
type (
	IndexOptions  = index.IndexOptions
	IndexStats    = index.IndexStats
	ReindexStats  = index.ReindexStats
	ProgressEvent = index.ProgressEvent
	ProgressFunc  = index.ProgressFunc
	SearchOptions = search.Options
	SearchResult  = search.Result
)

// ClearResult is clear_index's return shape.
type ClearResult struct {
	Cleared                  bool
	RemainingIndexedCodebases int
}

// StatusKind discriminates GetIndexingStatus's tagged-union result.
type StatusKind int

const (
	StatusNotFound StatusKind = iota
	StatusIndexing
	StatusIndexed
	StatusFailed
)

// Status is get_indexing_status's return shape.
type Status struct {
	Kind StatusKind

	Progress float64 // StatusIndexing

	IndexedFiles int    // StatusIndexed
	TotalChunks  int    // StatusIndexed
	IndexStatus  string // StatusIndexed: "completed" | "limit_reached"

	ErrorMessage          string  // StatusFailed
	LastAttemptedProgress float64 // StatusFailed
}

// Engine is the public entry point: the five operations of spec.md §6,
// wrapping the Indexer (C9) and Searcher (C10).
type Engine struct {
	indexer  *index.Indexer
	searcher *search.Searcher
	registry *status.Registry
}

// New wires an Engine from its collaborators: an embedding client, a hybrid
// vector store, a snapshot directory store, and a status registry. The
// Indexer and Searcher share the same BM25 model, embedder, vector store,
// and status registry so a search always sees the vocabulary the most
// recent index run produced.
func New(embedder embed.Embedder, store vectorstore.VectorStore, snapshots *snapshot.Store, reg *status.Registry) *Engine {
	ix := index.New(embedder, store, snapshots, reg)
	return &Engine{
		indexer:  ix,
		searcher: search.New(embedder, ix.BM25, store, reg),
		registry: reg,
	}
}

// IndexCodebase performs a full, from-scratch index of root.
func (e *Engine) IndexCodebase(ctx context.Context, root string, opts IndexOptions, progress ProgressFunc) (IndexStats, error) {
	return e.indexer.IndexCodebase(ctx, root, opts, progress)
}

// ReindexByChange applies only the file-system delta against root's last
// snapshot.
func (e *Engine) ReindexByChange(ctx context.Context, root string, opts IndexOptions, progress ProgressFunc) (ReindexStats, error) {
	return e.indexer.ReindexByChange(ctx, root, opts, progress)
}

// ClearIndex drops root's collection, snapshot, and status entry.
func (e *Engine) ClearIndex(ctx context.Context, root string) (ClearResult, error) {
	if err := e.indexer.Clear(ctx, root); err != nil {
		return ClearResult{}, err
	}
	return ClearResult{Cleared: true, RemainingIndexedCodebases: e.registry.CountIndexed()}, nil
}

// SearchCode runs a hybrid search against root's collection.
func (e *Engine) SearchCode(ctx context.Context, root, query string, opts SearchOptions) ([]SearchResult, error) {
	resp, err := e.searcher.Search(ctx, root, query, opts)
	if err != nil {
		return nil, err
	}
	return resp.Results, nil
}

// GetIndexingStatus returns root's current lifecycle state as the tagged
// union spec.md §6 describes.
func (e *Engine) GetIndexingStatus(root string) Status {
	entry, ok := e.indexer.Status(root)
	if !ok {
		return Status{Kind: StatusNotFound}
	}
	switch entry.Phase {
	case status.PhaseIndexing:
		return Status{Kind: StatusIndexing, Progress: entry.Progress}
	case status.PhaseIndexed:
		return Status{
			Kind:         StatusIndexed,
			IndexedFiles: int(entry.IndexedFiles),
			TotalChunks:  int(entry.TotalChunks),
			IndexStatus:  entry.IndexStatus,
		}
	case status.PhaseFailed:
		return Status{
			Kind:                  StatusFailed,
			ErrorMessage:          entry.ErrorMessage,
			LastAttemptedProgress: entry.LastAttemptedProgress,
		}
	default:
		return Status{Kind: StatusNotFound}
	}
}

// BM25Model exposes the shared BM25 model for advanced callers (e.g. a host
// wanting to report vocabulary size); most callers never need this.
func (e *Engine) BM25Model() *bm25.Model { return e.indexer.BM25 }
