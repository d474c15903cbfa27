package vectorstore

import (
	"context"
	"fmt"

	"github.com/qdrant/go-client/qdrant"
)

// QdrantConfig configures a QdrantStore connection.
type QdrantConfig struct {
	Host string
	Port int
}

// QdrantStore implements VectorStore against a Qdrant server, using Qdrant's
// own named-vector support to store both the dense vector and a sparse
// vector per point, and its server-side query API for filtering.
type QdrantStore struct {
	client *qdrant.Client
}

const (
	denseVectorName  = "dense"
	sparseVectorName = "sparse"
)

// NewQdrantStore dials a Qdrant server at cfg.Host:cfg.Port.
func NewQdrantStore(cfg QdrantConfig) (*QdrantStore, error) {
	client, err := qdrant.NewClient(&qdrant.Config{Host: cfg.Host, Port: cfg.Port})
	if err != nil {
		return nil, fmt.Errorf("vectorstore: qdrant connect: %w", err)
	}
	return &QdrantStore{client: client}, nil
}

func (q *QdrantStore) CollectionExists(ctx context.Context, name string) (bool, error) {
	ok, err := q.client.CollectionExists(ctx, name)
	if err != nil {
		return false, fmt.Errorf("vectorstore: qdrant collection_exists: %w", err)
	}
	return ok, nil
}

func (q *QdrantStore) CreateCollection(ctx context.Context, name string, dim int, force bool) error {
	exists, err := q.CollectionExists(ctx, name)
	if err != nil {
		return err
	}
	if exists {
		if !force {
			return nil
		}
		if err := q.client.DeleteCollection(ctx, name); err != nil {
			return fmt.Errorf("vectorstore: qdrant drop before recreate: %w", err)
		}
	}

	m := uint64(16)
	efConstruct := uint64(128)
	err = q.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: name,
		VectorsConfig: qdrant.NewVectorsConfigMap(map[string]*qdrant.VectorParams{
			denseVectorName: {
				Size:     uint64(dim),
				Distance: qdrant.Distance_Cosine,
				HnswConfig: &qdrant.HnswConfigDiff{
					M:           &m,
					EfConstruct: &efConstruct,
				},
			},
		}),
		SparseVectorsConfig: qdrant.NewSparseVectorsConfig(map[string]*qdrant.SparseVectorParams{
			sparseVectorName: {},
		}),
	})
	if err != nil {
		return fmt.Errorf("vectorstore: qdrant create_collection: %w", err)
	}
	return nil
}

func (q *QdrantStore) DropCollection(ctx context.Context, name string) error {
	exists, err := q.CollectionExists(ctx, name)
	if err != nil {
		return err
	}
	if !exists {
		return nil
	}
	if err := q.client.DeleteCollection(ctx, name); err != nil {
		return fmt.Errorf("vectorstore: qdrant drop_collection: %w", err)
	}
	return nil
}

func (q *QdrantStore) InsertHybrid(ctx context.Context, collection string, docs []Document) error {
	points := make([]*qdrant.PointStruct, 0, len(docs))
	for _, doc := range docs {
		vectors := map[string]*qdrant.Vector{
			denseVectorName: qdrant.NewVectorDense(doc.Dense),
		}
		if len(doc.Sparse.Indices) > 0 {
			vectors[sparseVectorName] = qdrant.NewVectorSparse(doc.Sparse.Indices, doc.Sparse.Values)
		}
		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewID(doc.ID),
			Vectors: qdrant.NewVectorsMap(vectors),
			Payload: qdrant.NewValueMap(map[string]any{
				"content":        doc.Content,
				"relativePath":   doc.RelativePath,
				"startLine":      doc.StartLine,
				"endLine":        doc.EndLine,
				"fileExtension":  doc.FileExtension,
				"metadata":       doc.Metadata,
			}),
		})
	}

	_, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: collection,
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("vectorstore: qdrant upsert: %w", err)
	}
	return nil
}

func (q *QdrantStore) Delete(ctx context.Context, collection string, ids []string) error {
	qdrantIDs := make([]*qdrant.PointId, len(ids))
	for i, id := range ids {
		qdrantIDs[i] = qdrant.NewID(id)
	}
	_, err := q.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: collection,
		Points:         qdrant.NewPointsSelectorIDs(qdrantIDs),
	})
	if err != nil {
		return fmt.Errorf("vectorstore: qdrant delete: %w", err)
	}
	return nil
}

func toQdrantFilter(filter string) (*qdrant.Filter, error) {
	if filter == "" {
		return nil, nil
	}
	f, err := ParseFilter(filter)
	if err != nil {
		return nil, err
	}
	if f.In {
		matches := make([]*qdrant.Match, 0, len(f.Values))
		for _, v := range f.Values {
			matches = append(matches, qdrant.NewMatchText(v))
		}
		// qdrant has no direct "in" helper for strings; emit one should-clause
		// per value; Qdrant matches a point if any Should clause holds (logical OR).
		conditions := make([]*qdrant.Condition, 0, len(f.Values))
		for _, v := range f.Values {
			conditions = append(conditions, qdrant.NewMatch(f.Field, v))
		}
		return &qdrant.Filter{Should: conditions}, nil
	}
	return &qdrant.Filter{Must: []*qdrant.Condition{qdrant.NewMatch(f.Field, f.Values[0])}}, nil
}

func (q *QdrantStore) Query(ctx context.Context, collection string, filter string, limit int) ([]Document, error) {
	qf, err := toQdrantFilter(filter)
	if err != nil {
		return nil, err
	}
	lim := uint32(limit)
	points, err := q.client.Scroll(ctx, &qdrant.ScrollPoints{
		CollectionName: collection,
		Filter:         qf,
		Limit:          &lim,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("vectorstore: qdrant scroll: %w", err)
	}

	out := make([]Document, 0, len(points))
	for _, p := range points {
		out = append(out, documentFromPayload(p.GetId().GetUuid(), p.GetPayload()))
	}
	return out, nil
}

func (q *QdrantStore) HybridSearch(ctx context.Context, collection string, req HybridQuery) ([]ScoredDocument, error) {
	qf, err := toQdrantFilter(req.Filter)
	if err != nil {
		return nil, err
	}
	limit := uint64(req.Limit)
	if limit == 0 {
		limit = 10
	}

	prefetch := []*qdrant.PrefetchQuery{
		{
			Query: qdrant.NewQueryDense(req.Dense),
			Using: qdrant.PtrOf(denseVectorName),
			Limit: qdrant.PtrOf(limit * 4),
		},
	}
	if len(req.Sparse.Indices) > 0 {
		prefetch = append(prefetch, &qdrant.PrefetchQuery{
			Query: qdrant.NewQuerySparse(req.Sparse.Indices, req.Sparse.Values),
			Using: qdrant.PtrOf(sparseVectorName),
			Limit: qdrant.PtrOf(limit * 4),
		})
	}

	points, err := q.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: collection,
		Prefetch:       prefetch,
		Query:          qdrant.NewQueryRRF(),
		Filter:         qf,
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("vectorstore: qdrant query: %w", err)
	}

	out := make([]ScoredDocument, 0, len(points))
	for _, p := range points {
		doc := documentFromPayload(p.GetId().GetUuid(), p.GetPayload())
		out = append(out, ScoredDocument{Document: doc, Score: float64(p.GetScore())})
	}
	return out, nil
}

func documentFromPayload(id string, payload map[string]*qdrant.Value) Document {
	get := func(k string) string {
		if v, ok := payload[k]; ok {
			return v.GetStringValue()
		}
		return ""
	}
	getInt := func(k string) int64 {
		if v, ok := payload[k]; ok {
			return v.GetIntegerValue()
		}
		return 0
	}
	return Document{
		ID:            id,
		Content:       get("content"),
		RelativePath:  get("relativePath"),
		StartLine:     getInt("startLine"),
		EndLine:       getInt("endLine"),
		FileExtension: get("fileExtension"),
		Metadata:      get("metadata"),
	}
}

func (q *QdrantStore) CheckCollectionLimit(ctx context.Context, collection string) (bool, error) {
	// Qdrant has no intrinsic document cap; the host configures quotas
	// externally. The core treats this as always within limit.
	return true, nil
}

func (q *QdrantStore) Count(ctx context.Context, collection string) (int, error) {
	info, err := q.client.GetCollectionInfo(ctx, collection)
	if err != nil {
		return 0, fmt.Errorf("vectorstore: qdrant collection_info: %w", err)
	}
	return int(info.GetPointsCount()), nil
}

func (q *QdrantStore) Close() error {
	return q.client.Close()
}
