package search_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opencodesearch/codesearch/internal/bm25"
	"github.com/opencodesearch/codesearch/internal/embed"
	"github.com/opencodesearch/codesearch/internal/errors"
	"github.com/opencodesearch/codesearch/internal/search"
	"github.com/opencodesearch/codesearch/internal/status"
	"github.com/opencodesearch/codesearch/internal/vectorstore"
)

// fakeStore is a minimal in-memory vectorstore.VectorStore for exercising
// the Searcher without a real backend: HybridSearch returns a fixed,
// pre-fused result set regardless of the query vectors.
type fakeStore struct {
	results []vectorstore.ScoredDocument
	err     error

	lastQuery vectorstore.HybridQuery
}

func (f *fakeStore) CreateCollection(context.Context, string, int, bool) error { return nil }
func (f *fakeStore) DropCollection(context.Context, string) error             { return nil }
func (f *fakeStore) CollectionExists(context.Context, string) (bool, error)   { return true, nil }
func (f *fakeStore) InsertHybrid(context.Context, string, []vectorstore.Document) error {
	return nil
}
func (f *fakeStore) Delete(context.Context, string, []string) error { return nil }
func (f *fakeStore) Query(context.Context, string, string, int) ([]vectorstore.Document, error) {
	return nil, nil
}
func (f *fakeStore) HybridSearch(ctx context.Context, collection string, q vectorstore.HybridQuery) ([]vectorstore.ScoredDocument, error) {
	f.lastQuery = q
	if f.err != nil {
		return nil, f.err
	}
	return f.results, nil
}
func (f *fakeStore) CheckCollectionLimit(context.Context, string) (bool, error) { return true, nil }
func (f *fakeStore) Count(context.Context, string) (int, error)                { return len(f.results), nil }
func (f *fakeStore) Close() error                                              { return nil }

func newTestSearcher(t *testing.T, store *fakeStore, reg *status.Registry, trained bool) *search.Searcher {
	t.Helper()
	model := bm25.NewModel()
	if trained {
		require.NoError(t, model.Learn([]string{"func authenticate password token", "unrelated markdown text"}))
	}
	return search.New(embed.NewStaticEmbedder(), model, store, reg)
}

func doc(id, relPath, ext string, score float64) vectorstore.ScoredDocument {
	return vectorstore.ScoredDocument{
		Document: vectorstore.Document{
			ID:            id,
			Content:       "content-" + id,
			RelativePath:  relPath,
			StartLine:     1,
			EndLine:       5,
			FileExtension: ext,
			Metadata:      `{"language":"go"}`,
		},
		Score: score,
	}
}

func TestSearchRejectsUnknownCodebase(t *testing.T) {
	reg := status.NewRegistry("")
	s := newTestSearcher(t, &fakeStore{}, reg, true)

	_, err := s.Search(context.Background(), "/some/root", "query", search.Options{Limit: 10})
	assert.Equal(t, errors.KindNotIndexed, errors.GetKind(err))
}

func TestSearchRejectsFailedCodebase(t *testing.T) {
	reg := status.NewRegistry("")
	reg.SetFailed("/some/root", "boom", 42)
	s := newTestSearcher(t, &fakeStore{}, reg, true)

	_, err := s.Search(context.Background(), "/some/root", "query", search.Options{Limit: 10})
	assert.Equal(t, errors.KindNotIndexed, errors.GetKind(err))
}

func TestSearchAllowsIndexingInProgressAndFlagsIt(t *testing.T) {
	root := t.TempDir()
	reg := status.NewRegistry("")
	reg.StartIndexing(root)

	store := &fakeStore{results: []vectorstore.ScoredDocument{doc("1", "a.go", ".go", 0.9)}}
	s := newTestSearcher(t, store, reg, true)

	resp, err := s.Search(context.Background(), root, "authenticate", search.Options{Limit: 10})
	require.NoError(t, err)
	assert.True(t, resp.IndexingInProgress)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "go", resp.Results[0].Language)
}

func TestSearchAppliesThresholdAfterFusion(t *testing.T) {
	root := t.TempDir()
	reg := status.NewRegistry("")
	reg.SetIndexed(root, 1, 2, "completed")

	store := &fakeStore{results: []vectorstore.ScoredDocument{
		doc("1", "a.go", ".go", 0.9),
		doc("2", "b.go", ".go", 0.05),
	}}
	s := newTestSearcher(t, store, reg, true)

	threshold := 0.1
	resp, err := s.Search(context.Background(), root, "authenticate", search.Options{Limit: 10, Threshold: &threshold})
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "a.go", resp.Results[0].RelativePath)
}

func TestSearchExtensionFilterCaseInsensitive(t *testing.T) {
	root := t.TempDir()
	reg := status.NewRegistry("")
	reg.SetIndexed(root, 1, 2, "completed")

	store := &fakeStore{results: []vectorstore.ScoredDocument{
		doc("1", "a.go", ".go", 0.9),
		doc("2", "b.md", ".MD", 0.8),
	}}
	s := newTestSearcher(t, store, reg, true)

	resp, err := s.Search(context.Background(), root, "authenticate", search.Options{
		Limit: 10, ExtensionFilter: []string{".md"},
	})
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "b.md", resp.Results[0].RelativePath)
}

func TestSearchInvalidExtensionFilterRejectsWholeCall(t *testing.T) {
	root := t.TempDir()
	reg := status.NewRegistry("")
	reg.SetIndexed(root, 1, 2, "completed")

	store := &fakeStore{results: []vectorstore.ScoredDocument{doc("1", "a.go", ".go", 0.9)}}
	s := newTestSearcher(t, store, reg, true)

	_, err := s.Search(context.Background(), root, "authenticate", search.Options{
		Limit: 10, ExtensionFilter: []string{"go"},
	})
	assert.Equal(t, errors.KindInvalidExtensionFilter, errors.GetKind(err))
}

func TestSearchUntrainedBM25DegradesToDenseOnly(t *testing.T) {
	root := t.TempDir()
	reg := status.NewRegistry("")
	reg.SetIndexed(root, 1, 2, "completed")

	store := &fakeStore{results: []vectorstore.ScoredDocument{doc("1", "a.go", ".go", 0.5)}}
	s := newTestSearcher(t, store, reg, false)

	resp, err := s.Search(context.Background(), root, "authenticate", search.Options{Limit: 10})
	require.NoError(t, err)
	assert.Empty(t, store.lastQuery.Sparse.Indices)
	require.Len(t, resp.Results, 1)
}

func TestSearchTruncatesToLimit(t *testing.T) {
	root := t.TempDir()
	reg := status.NewRegistry("")
	reg.SetIndexed(root, 1, 2, "completed")

	store := &fakeStore{results: []vectorstore.ScoredDocument{
		doc("1", "a.go", ".go", 0.9),
		doc("2", "b.go", ".go", 0.8),
		doc("3", "c.go", ".go", 0.7),
	}}
	s := newTestSearcher(t, store, reg, true)

	resp, err := s.Search(context.Background(), root, "authenticate", search.Options{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, resp.Results, 2)
	assert.Equal(t, store.lastQuery.Limit, 4)
}
