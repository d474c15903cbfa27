package vectorstore

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/coder/hnsw"

	"github.com/opencodesearch/codesearch/internal/bm25"
)

// DefaultRRFConstant is the RRF fusion constant k, per spec.md's hybrid
// fusion rule.
const DefaultRRFConstant = 60

// HNSWConfig configures a per-process HNSWStore.
type HNSWConfig struct {
	Dimensions   int
	Metric       string // "cos" (default) or "l2"
	M            int
	EfSearch     int
	MaxDocuments int // 0 means unbounded; CheckCollectionLimit always reports ok
}

// HNSWStore implements VectorStore over the pure-Go coder/hnsw graph, one
// graph per collection, with dense+sparse hybrid search fused client-side
// via RRF since coder/hnsw only indexes dense vectors.
type HNSWStore struct {
	mu          sync.RWMutex
	config      HNSWConfig
	collections map[string]*hnswCollection
}

type hnswCollection struct {
	graph   *hnsw.Graph[uint64]
	idMap   map[string]uint64
	keyMap  map[uint64]string
	docs    map[string]Document
	nextKey uint64
}

// NewHNSWStore creates an HNSWStore with the given config, applying the same
// defaults the teacher's HNSWStore applies (cosine metric, M=16, EfSearch=20).
func NewHNSWStore(cfg HNSWConfig) *HNSWStore {
	if cfg.Metric == "" {
		cfg.Metric = "cos"
	}
	if cfg.M == 0 {
		cfg.M = 16
	}
	if cfg.EfSearch == 0 {
		cfg.EfSearch = 20
	}
	return &HNSWStore{config: cfg, collections: make(map[string]*hnswCollection)}
}

func newGraph(cfg HNSWConfig) *hnsw.Graph[uint64] {
	g := hnsw.NewGraph[uint64]()
	switch cfg.Metric {
	case "l2":
		g.Distance = hnsw.EuclideanDistance
	default:
		g.Distance = hnsw.CosineDistance
	}
	g.M = cfg.M
	g.EfSearch = cfg.EfSearch
	g.Ml = 0.25
	return g
}

func (s *HNSWStore) CreateCollection(ctx context.Context, name string, dim int, force bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.collections[name]; exists && !force {
		return nil
	}
	s.collections[name] = &hnswCollection{
		graph:  newGraph(s.config),
		idMap:  make(map[string]uint64),
		keyMap: make(map[uint64]string),
		docs:   make(map[string]Document),
	}
	return nil
}

func (s *HNSWStore) DropCollection(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.collections, name)
	return nil
}

func (s *HNSWStore) CollectionExists(ctx context.Context, name string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.collections[name]
	return ok, nil
}

func (s *HNSWStore) collection(name string) (*hnswCollection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.collections[name]
	if !ok {
		return nil, fmt.Errorf("vectorstore: collection %q does not exist", name)
	}
	return c, nil
}

func (s *HNSWStore) InsertHybrid(ctx context.Context, collection string, docs []Document) error {
	c, err := s.collection(collection)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, doc := range docs {
		if len(doc.Dense) != s.config.Dimensions {
			return ErrDimensionMismatch{Expected: s.config.Dimensions, Got: len(doc.Dense)}
		}
		if existingKey, exists := c.idMap[doc.ID]; exists {
			delete(c.keyMap, existingKey)
			delete(c.idMap, doc.ID)
		}

		key := c.nextKey
		c.nextKey++

		vec := make([]float32, len(doc.Dense))
		copy(vec, doc.Dense)
		if s.config.Metric == "cos" {
			normalizeInPlace(vec)
		}

		c.graph.Add(hnsw.MakeNode(key, vec))
		c.idMap[doc.ID] = key
		c.keyMap[key] = doc.ID
		c.docs[doc.ID] = doc
	}
	return nil
}

func (s *HNSWStore) Delete(ctx context.Context, collection string, ids []string) error {
	c, err := s.collection(collection)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		if key, exists := c.idMap[id]; exists {
			// Lazy deletion: coder/hnsw cannot safely delete the last node in
			// the graph, so orphan the mapping instead of calling graph.Delete.
			delete(c.keyMap, key)
			delete(c.idMap, id)
			delete(c.docs, id)
		}
	}
	return nil
}

func (s *HNSWStore) Query(ctx context.Context, collection string, filter string, limit int) ([]Document, error) {
	c, err := s.collection(collection)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var f *Filter
	if filter != "" {
		parsed, err := ParseFilter(filter)
		if err != nil {
			return nil, err
		}
		f = &parsed
	}

	ids := make([]string, 0, len(c.docs))
	for id := range c.docs {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var out []Document
	for _, id := range ids {
		doc := c.docs[id]
		if f != nil && !f.Matches(doc) {
			continue
		}
		out = append(out, doc)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *HNSWStore) HybridSearch(ctx context.Context, collection string, q HybridQuery) ([]ScoredDocument, error) {
	c, err := s.collection(collection)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(q.Dense) != s.config.Dimensions {
		return nil, ErrDimensionMismatch{Expected: s.config.Dimensions, Got: len(q.Dense)}
	}

	var filter *Filter
	if q.Filter != "" {
		parsed, err := ParseFilter(q.Filter)
		if err != nil {
			return nil, err
		}
		filter = &parsed
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 10
	}
	// Search deeper than limit so RRF fusion has enough candidates from each
	// branch before the filter (if any) narrows the result.
	fanout := limit * 4
	if fanout < limit {
		fanout = limit
	}

	denseRanked := s.searchDense(c, q.Dense, fanout)
	sparseRanked := s.searchSparse(c, q.Sparse, fanout)

	fused := rrfFuse(denseRanked, sparseRanked, DefaultRRFConstant)

	var out []ScoredDocument
	for _, sd := range fused {
		doc, ok := c.docs[sd.ID]
		if !ok {
			continue
		}
		if filter != nil && !filter.Matches(doc) {
			continue
		}
		out = append(out, ScoredDocument{Document: doc, Score: sd.Score})
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

// searchDense returns doc IDs ranked by dense similarity, best first.
func (s *HNSWStore) searchDense(c *hnswCollection, query []float32, k int) []string {
	if c.graph.Len() == 0 {
		return nil
	}
	normalized := make([]float32, len(query))
	copy(normalized, query)
	if s.config.Metric == "cos" {
		normalizeInPlace(normalized)
	}
	nodes := c.graph.Search(normalized, k)

	ids := make([]string, 0, len(nodes))
	for _, n := range nodes {
		if id, ok := c.keyMap[n.Key]; ok {
			ids = append(ids, id)
		}
	}
	return ids
}

// searchSparse brute-force-scores every stored document's sparse vector
// against the query vector by dot product, ranking best first. coder/hnsw
// indexes dense vectors only; sparse retrieval has no inverted index here,
// which is acceptable for the corpus sizes this backend targets.
func (s *HNSWStore) searchSparse(c *hnswCollection, query bm25.SparseVector, k int) []string {
	if len(query.Indices) == 0 {
		return nil
	}
	type scored struct {
		id    string
		score float64
	}
	var results []scored
	for id, doc := range c.docs {
		score := dotSparse(query, doc.Sparse)
		if score > 0 {
			results = append(results, scored{id: id, score: score})
		}
	}
	sort.Slice(results, func(i, j int) bool { return results[i].score > results[j].score })
	if len(results) > k {
		results = results[:k]
	}
	ids := make([]string, len(results))
	for i, r := range results {
		ids[i] = r.id
	}
	return ids
}

func dotSparse(a, b bm25.SparseVector) float64 {
	// Both are sorted by strictly increasing index (SparseVector invariant);
	// merge-join rather than building a map per call.
	var score float64
	i, j := 0, 0
	for i < len(a.Indices) && j < len(b.Indices) {
		switch {
		case a.Indices[i] == b.Indices[j]:
			score += float64(a.Values[i]) * float64(b.Values[j])
			i++
			j++
		case a.Indices[i] < b.Indices[j]:
			i++
		default:
			j++
		}
	}
	return score
}

func (s *HNSWStore) CheckCollectionLimit(ctx context.Context, collection string) (bool, error) {
	c, err := s.collection(collection)
	if err != nil {
		return false, err
	}
	if s.config.MaxDocuments <= 0 {
		return true, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(c.docs) < s.config.MaxDocuments, nil
}

func (s *HNSWStore) Count(ctx context.Context, collection string) (int, error) {
	c, err := s.collection(collection)
	if err != nil {
		return 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(c.docs), nil
}

func (s *HNSWStore) Close() error { return nil }

func normalizeInPlace(v []float32) {
	var sumSq float64
	for _, x := range v {
		sumSq += float64(x) * float64(x)
	}
	if sumSq == 0 {
		return
	}
	norm := float32(math.Sqrt(sumSq))
	for i := range v {
		v[i] /= norm
	}
}
