// Package vectorstore defines the capability interface hybrid backends
// implement, plus the filter-expression grammar the core emits to them.
package vectorstore

import (
	"context"
	"fmt"

	"github.com/opencodesearch/codesearch/internal/bm25"
)

// Document is one chunk's hybrid-indexable record.
type Document struct {
	ID            string
	Dense         []float32
	Sparse        bm25.SparseVector
	Content       string
	RelativePath  string
	StartLine     int64
	EndLine       int64
	FileExtension string
	Metadata      string // JSON-encoded, opaque to the core, must round-trip
}

// ScoredDocument pairs a Document with its retrieval score. DenseRank is the
// 1-based rank this document held in the dense branch of a client-side RRF
// fusion (0 if absent from the dense branch or the backend fused
// server-side); it is only meaningful immediately after rrfFuse and exists
// to break score ties deterministically.
type ScoredDocument struct {
	Document
	Score     float64
	DenseRank int
}

// HybridQuery is one branch-pair hybrid search request.
type HybridQuery struct {
	Dense  []float32
	Sparse bm25.SparseVector
	Limit  int
	Filter string // filter-expression grammar, see filter.go; empty means no filter
}

// VectorStore is the capability a hybrid backend must implement. Some
// backends have intrinsic limitations (see ErrDeleteUnsupported,
// ErrUnsupportedFilter) that must be surfaced to the caller, never papered
// over.
type VectorStore interface {
	// CreateCollection creates (or re-creates, if force) the named collection.
	CreateCollection(ctx context.Context, name string, dim int, force bool) error
	// DropCollection deletes a collection. Missing collection is not an error.
	DropCollection(ctx context.Context, name string) error
	// CollectionExists reports whether name currently exists.
	CollectionExists(ctx context.Context, name string) (bool, error)

	// InsertHybrid inserts or replaces documents (dense + sparse + metadata).
	InsertHybrid(ctx context.Context, collection string, docs []Document) error
	// Delete removes documents by ID. FAISS-family backends reject this.
	Delete(ctx context.Context, collection string, ids []string) error
	// Query returns documents matching a filter expression, up to limit.
	// FAISS-family backends reject non-trivial filters.
	Query(ctx context.Context, collection string, filter string, limit int) ([]Document, error)

	// HybridSearch runs a fused dense+sparse retrieval. If the backend fuses
	// server-side it does so itself; otherwise the backend fuses its two
	// independent result sets client-side (HNSWStore uses rrfFuse).
	HybridSearch(ctx context.Context, collection string, q HybridQuery) ([]ScoredDocument, error)

	// CheckCollectionLimit returns false when the backend is near capacity.
	CheckCollectionLimit(ctx context.Context, collection string) (bool, error)

	// Count returns the number of documents in a collection.
	Count(ctx context.Context, collection string) (int, error)

	Close() error
}

// ErrDeleteUnsupported is returned by FAISS-family backends for Delete.
type ErrDeleteUnsupported struct{ Backend string }

func (e ErrDeleteUnsupported) Error() string {
	return fmt.Sprintf("%s: delete is not supported; reindex the affected files instead", e.Backend)
}

// ErrUnsupportedFilter is returned when a backend cannot parse or execute a
// filter expression.
type ErrUnsupportedFilter struct {
	Backend string
	Filter  string
}

func (e ErrUnsupportedFilter) Error() string {
	return fmt.Sprintf("%s: unsupported filter expression: %q", e.Backend, e.Filter)
}

// ErrDimensionMismatch mirrors the teacher's store.ErrDimensionMismatch.
type ErrDimensionMismatch struct {
	Expected int
	Got      int
}

func (e ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Got)
}
