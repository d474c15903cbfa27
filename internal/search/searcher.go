package search

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/opencodesearch/codesearch/internal/bm25"
	"github.com/opencodesearch/codesearch/internal/codebase"
	"github.com/opencodesearch/codesearch/internal/embed"
	"github.com/opencodesearch/codesearch/internal/errors"
	"github.com/opencodesearch/codesearch/internal/status"
	"github.com/opencodesearch/codesearch/internal/vectorstore"
)

// maxBM25Terms is the query-time term cap passed to BM25Model.GenerateQuery,
// matching the collaborator contract literally.
const maxBM25Terms = 256

// extensionPattern is the surface syntax an extension_filter entry must
// match; anything else fails the whole search call.
var extensionPattern = regexp.MustCompile(`^\.[A-Za-z0-9_+-]+$`)

// Options are the per-call knobs of Search, mirroring the collaborator
// protocol's {limit, threshold?, extension_filter?}.
type Options struct {
	Limit int
	// Threshold, if non-nil, drops fused results scoring below it.
	Threshold *float64
	// ExtensionFilter, if non-empty, keeps only results whose file
	// extension case-insensitively matches one of these entries. Every
	// entry must match extensionPattern.
	ExtensionFilter []string
}

// Result is one shaped search hit.
type Result struct {
	Content      string
	RelativePath string
	StartLine    int64
	EndLine      int64
	Language     string
	Score        float64
}

// Response is the outcome of one Search call.
type Response struct {
	Results []Result
	// IndexingInProgress is set when the codebase was still Indexing at
	// search time: the store may have returned partial results.
	IndexingInProgress bool
}

// Searcher embeds a query, retrieves a fused hybrid result set, and shapes
// it into Result rows.
type Searcher struct {
	Embedder       embed.Embedder
	BM25           *bm25.Model
	Store          vectorstore.VectorStore
	StatusRegistry *status.Registry
}

// New creates a Searcher from its collaborators.
func New(embedder embed.Embedder, bm25Model *bm25.Model, store vectorstore.VectorStore, reg *status.Registry) *Searcher {
	return &Searcher{Embedder: embedder, BM25: bm25Model, Store: store, StatusRegistry: reg}
}

// Search runs the protocol: status gate, embed, hybrid retrieval (backends
// fuse dense+sparse internally), threshold filter, extension filter,
// truncate, shape.
func (s *Searcher) Search(ctx context.Context, root, query string, opts Options) (Response, error) {
	for _, ext := range opts.ExtensionFilter {
		if !extensionPattern.MatchString(ext) {
			return Response{}, errors.InvalidExtensionFilter(ext)
		}
	}

	canonical := codebase.CanonicalRoot(root)
	entry, ok := s.StatusRegistry.Get(canonical)
	if !ok || entry.Phase == status.PhaseFailed {
		return Response{}, errors.NotIndexed(root)
	}
	indexingInProgress := entry.Phase == status.PhaseIndexing

	text := query
	if strings.TrimSpace(text) == "" {
		text = " "
	}
	dense, err := s.Embedder.Embed(ctx, text)
	if err != nil {
		return Response{}, fmt.Errorf("search: embedding query: %w", err)
	}

	var sparse bm25.SparseVector
	if s.BM25 != nil && s.BM25.Trained {
		sparse, err = s.BM25.GenerateQuery(text, maxBM25Terms, 0, true)
		if err != nil {
			return Response{}, fmt.Errorf("search: generate query sparse vector: %w", err)
		}
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = 10
	}
	collection := codebase.CollectionName(root)
	scored, err := s.Store.HybridSearch(ctx, collection, vectorstore.HybridQuery{
		Dense:  dense,
		Sparse: sparse,
		Limit:  limit * 2,
	})
	if err != nil {
		return Response{}, fmt.Errorf("search: hybrid search: %w", err)
	}

	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })

	results := make([]Result, 0, len(scored))
	for _, doc := range scored {
		if opts.Threshold != nil && doc.Score < *opts.Threshold {
			continue
		}
		if len(opts.ExtensionFilter) > 0 && !matchesExtension(doc.FileExtension, opts.ExtensionFilter) {
			continue
		}
		results = append(results, Result{
			Content:      doc.Content,
			RelativePath: doc.RelativePath,
			StartLine:    doc.StartLine,
			EndLine:      doc.EndLine,
			Language:     decodeLanguage(doc.Metadata),
			Score:        doc.Score,
		})
		if len(results) >= limit {
			break
		}
	}

	return Response{Results: results, IndexingInProgress: indexingInProgress}, nil
}

func matchesExtension(ext string, allowed []string) bool {
	for _, a := range allowed {
		if strings.EqualFold(ext, a) {
			return true
		}
	}
	return false
}

func decodeLanguage(metadata string) string {
	if metadata == "" {
		return ""
	}
	var m struct {
		Language string `json:"language"`
	}
	if err := json.Unmarshal([]byte(metadata), &m); err != nil {
		return ""
	}
	return m.Language
}
