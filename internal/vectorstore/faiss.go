package vectorstore

import (
	"context"
	"sort"
	"sync"

	"github.com/blevesearch/go-faiss"
)

// FaissStore implements VectorStore over a flat go-faiss index. FAISS has no
// native delete or rich filter support, so both are intentionally rejected
// here rather than faked — callers must reindex the affected files, exactly
// as spec.md requires for FAISS-family backends.
type FaissStore struct {
	mu          sync.RWMutex
	dim         int
	collections map[string]*faissCollection
}

type faissCollection struct {
	index *faiss.IndexFlat
	ids   []string // index position -> doc ID, append-only
	docs  map[string]Document
}

// NewFaissStore creates a FaissStore for dim-dimensional vectors using inner
// product (cosine, given L2-normalised input vectors).
func NewFaissStore(dim int) *FaissStore {
	return &FaissStore{dim: dim, collections: make(map[string]*faissCollection)}
}

func (f *FaissStore) CreateCollection(ctx context.Context, name string, dim int, force bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.collections[name]; exists && !force {
		return nil
	}
	idx, err := faiss.NewIndexFlatIP(dim)
	if err != nil {
		return err
	}
	f.collections[name] = &faissCollection{index: idx, docs: make(map[string]Document)}
	return nil
}

func (f *FaissStore) DropCollection(ctx context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.collections, name)
	return nil
}

func (f *FaissStore) CollectionExists(ctx context.Context, name string) (bool, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	_, ok := f.collections[name]
	return ok, nil
}

func (f *FaissStore) collection(name string) (*faissCollection, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	c, ok := f.collections[name]
	if !ok {
		return nil, ErrUnsupportedFilter{Backend: "faiss", Filter: "collection " + name + " does not exist"}
	}
	return c, nil
}

// InsertHybrid adds vectors to the flat index. FAISS flat indexes are
// append-only: re-inserting an existing ID adds a duplicate vector rather
// than replacing it, since go-faiss exposes no in-place update. Callers that
// need replace-on-reindex semantics must drop and recreate the collection.
func (f *FaissStore) InsertHybrid(ctx context.Context, collection string, docs []Document) error {
	c, err := f.collection(collection)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	flat := make([]float32, 0, len(docs)*f.dim)
	for _, doc := range docs {
		if len(doc.Dense) != f.dim {
			return ErrDimensionMismatch{Expected: f.dim, Got: len(doc.Dense)}
		}
		flat = append(flat, doc.Dense...)
		c.ids = append(c.ids, doc.ID)
		c.docs[doc.ID] = doc
	}
	return c.index.Add(flat)
}

// Delete always fails: FAISS flat indexes cannot remove vectors without a
// full rebuild. The caller must reindex the affected file set instead.
func (f *FaissStore) Delete(ctx context.Context, collection string, ids []string) error {
	return ErrDeleteUnsupported{Backend: "faiss"}
}

// Query only supports the trivial "no filter" case, which lists all docs up
// to limit; any filter expression is rejected with ErrUnsupportedFilter, per
// spec.md's FAISS-backend contract.
func (f *FaissStore) Query(ctx context.Context, collection string, filter string, limit int) ([]Document, error) {
	if filter != "" {
		return nil, ErrUnsupportedFilter{Backend: "faiss", Filter: filter}
	}
	c, err := f.collection(collection)
	if err != nil {
		return nil, err
	}
	f.mu.RLock()
	defer f.mu.RUnlock()

	ids := make([]string, 0, len(c.docs))
	for id := range c.docs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	out := make([]Document, len(ids))
	for i, id := range ids {
		out[i] = c.docs[id]
	}
	return out, nil
}

func (f *FaissStore) HybridSearch(ctx context.Context, collection string, q HybridQuery) ([]ScoredDocument, error) {
	if q.Filter != "" {
		return nil, ErrUnsupportedFilter{Backend: "faiss", Filter: q.Filter}
	}
	c, err := f.collection(collection)
	if err != nil {
		return nil, err
	}
	if len(q.Dense) != f.dim {
		return nil, ErrDimensionMismatch{Expected: f.dim, Got: len(q.Dense)}
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	limit := q.Limit
	if limit <= 0 {
		limit = 10
	}
	if limit > len(c.ids) {
		limit = len(c.ids)
	}
	if limit == 0 {
		return nil, nil
	}

	distances, indices, err := c.index.Search(q.Dense, int64(limit))
	if err != nil {
		return nil, err
	}

	out := make([]ScoredDocument, 0, len(indices))
	for i, pos := range indices {
		if pos < 0 || int(pos) >= len(c.ids) {
			continue
		}
		id := c.ids[pos]
		out = append(out, ScoredDocument{Document: c.docs[id], Score: float64(distances[i])})
	}
	return out, nil
}

// CheckCollectionLimit always reports within limit: go-faiss flat indexes
// have no intrinsic capacity ceiling beyond available memory.
func (f *FaissStore) CheckCollectionLimit(ctx context.Context, collection string) (bool, error) {
	return true, nil
}

func (f *FaissStore) Count(ctx context.Context, collection string) (int, error) {
	c, err := f.collection(collection)
	if err != nil {
		return 0, err
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(c.docs), nil
}

func (f *FaissStore) Close() error { return nil }
