package vectorstore

import (
	"context"
	"fmt"

	"github.com/milvus-io/milvus/client/v2/column"
	"github.com/milvus-io/milvus/client/v2/entity"
	"github.com/milvus-io/milvus/client/v2/index"
	"github.com/milvus-io/milvus/client/v2/milvusclient"
)

const (
	milvusDenseField  = "dense"
	milvusSparseField = "sparse"
	milvusIDField     = "id"
)

// MilvusStore implements VectorStore against a Milvus 2.5+ server, using its
// server-side RRF reranker (the same fusion rule, k=60, as the core's
// client-side implementation) to fuse dense and sparse sub-requests.
type MilvusStore struct {
	client *milvusclient.Client
}

// NewMilvusStore dials a Milvus server at addr (host:port).
func NewMilvusStore(ctx context.Context, addr string) (*MilvusStore, error) {
	client, err := milvusclient.New(ctx, &milvusclient.ClientConfig{Address: addr})
	if err != nil {
		return nil, fmt.Errorf("vectorstore: milvus connect: %w", err)
	}
	return &MilvusStore{client: client}, nil
}

func (m *MilvusStore) CollectionExists(ctx context.Context, name string) (bool, error) {
	ok, err := m.client.HasCollection(ctx, milvusclient.NewHasCollectionOption(name))
	if err != nil {
		return false, fmt.Errorf("vectorstore: milvus has_collection: %w", err)
	}
	return ok, nil
}

func (m *MilvusStore) CreateCollection(ctx context.Context, name string, dim int, force bool) error {
	exists, err := m.CollectionExists(ctx, name)
	if err != nil {
		return err
	}
	if exists {
		if !force {
			return nil
		}
		if err := m.DropCollection(ctx, name); err != nil {
			return err
		}
	}

	schema := entity.NewSchema().WithName(name).WithDynamicFieldEnabled(true).
		WithField(entity.NewField().WithName(milvusIDField).WithDataType(entity.FieldTypeVarChar).WithIsPrimaryKey(true).WithMaxLength(128)).
		WithField(entity.NewField().WithName("relativePath").WithDataType(entity.FieldTypeVarChar).WithMaxLength(1024)).
		WithField(entity.NewField().WithName("content").WithDataType(entity.FieldTypeVarChar).WithMaxLength(65535)).
		WithField(entity.NewField().WithName("fileExtension").WithDataType(entity.FieldTypeVarChar).WithMaxLength(32)).
		WithField(entity.NewField().WithName("startLine").WithDataType(entity.FieldTypeInt64)).
		WithField(entity.NewField().WithName("endLine").WithDataType(entity.FieldTypeInt64)).
		WithField(entity.NewField().WithName("metadata").WithDataType(entity.FieldTypeVarChar).WithMaxLength(65535)).
		WithField(entity.NewField().WithName(milvusDenseField).WithDataType(entity.FieldTypeFloatVector).WithDim(int64(dim))).
		WithField(entity.NewField().WithName(milvusSparseField).WithDataType(entity.FieldTypeSparseVector))

	idx := index.NewAutoIndex(entity.COSINE)
	sparseIdx := index.NewSparseInvertedIndex(entity.BM25, 0.2)

	err = m.client.CreateCollection(ctx, milvusclient.NewCreateCollectionOption(name, schema).
		WithIndexOptions(
			milvusclient.NewCreateIndexOption(name, milvusDenseField, idx),
			milvusclient.NewCreateIndexOption(name, milvusSparseField, sparseIdx),
		))
	if err != nil {
		return fmt.Errorf("vectorstore: milvus create_collection: %w", err)
	}
	return nil
}

func (m *MilvusStore) DropCollection(ctx context.Context, name string) error {
	exists, err := m.CollectionExists(ctx, name)
	if err != nil {
		return err
	}
	if !exists {
		return nil
	}
	if err := m.client.DropCollection(ctx, milvusclient.NewDropCollectionOption(name)); err != nil {
		return fmt.Errorf("vectorstore: milvus drop_collection: %w", err)
	}
	return nil
}

func (m *MilvusStore) InsertHybrid(ctx context.Context, collection string, docs []Document) error {
	ids := make([]string, len(docs))
	paths := make([]string, len(docs))
	contents := make([]string, len(docs))
	exts := make([]string, len(docs))
	starts := make([]int64, len(docs))
	ends := make([]int64, len(docs))
	metas := make([]string, len(docs))
	dense := make([][]float32, len(docs))
	sparse := make([]entity.SparseEmbedding, len(docs))

	for i, doc := range docs {
		ids[i] = doc.ID
		paths[i] = doc.RelativePath
		contents[i] = doc.Content
		exts[i] = doc.FileExtension
		starts[i] = doc.StartLine
		ends[i] = doc.EndLine
		metas[i] = doc.Metadata
		dense[i] = doc.Dense
		sparse[i] = entity.NewSliceSparseEmbedding(doc.Sparse.Indices, doc.Sparse.Values)
	}

	_, err := m.client.Upsert(ctx, milvusclient.NewColumnBasedInsertOption(collection,
		column.NewColumnVarChar(milvusIDField, ids),
		column.NewColumnVarChar("relativePath", paths),
		column.NewColumnVarChar("content", contents),
		column.NewColumnVarChar("fileExtension", exts),
		column.NewColumnInt64("startLine", starts),
		column.NewColumnInt64("endLine", ends),
		column.NewColumnVarChar("metadata", metas),
		column.NewColumnFloatVector(milvusDenseField, len(dense[0]), dense),
		column.NewColumnSparseVectors(milvusSparseField, sparse),
	))
	if err != nil {
		return fmt.Errorf("vectorstore: milvus upsert: %w", err)
	}
	return nil
}

func (m *MilvusStore) Delete(ctx context.Context, collection string, ids []string) error {
	_, err := m.client.Delete(ctx, milvusclient.NewDeleteOption(collection).WithExpr(inExpr(milvusIDField, ids)))
	if err != nil {
		return fmt.Errorf("vectorstore: milvus delete: %w", err)
	}
	return nil
}

func inExpr(field string, values []string) string {
	expr := field + " in ["
	for i, v := range values {
		if i > 0 {
			expr += ", "
		}
		expr += `"` + v + `"`
	}
	return expr + "]"
}

func toMilvusExpr(filter string) (string, error) {
	if filter == "" {
		return "", nil
	}
	f, err := ParseFilter(filter)
	if err != nil {
		return "", err
	}
	if f.In {
		return inExpr(f.Field, f.Values), nil
	}
	return fmt.Sprintf(`%s == "%s"`, f.Field, f.Values[0]), nil
}

func (m *MilvusStore) Query(ctx context.Context, collection string, filter string, limit int) ([]Document, error) {
	expr, err := toMilvusExpr(filter)
	if err != nil {
		return nil, err
	}
	rs, err := m.client.Query(ctx, milvusclient.NewQueryOption(collection).
		WithFilter(expr).
		WithLimit(limit).
		WithOutputFields(milvusIDField, "relativePath", "content", "fileExtension", "startLine", "endLine", "metadata"))
	if err != nil {
		return nil, fmt.Errorf("vectorstore: milvus query: %w", err)
	}
	return documentsFromResultSet([]milvusclient.ResultSet{rs}), nil
}

func (m *MilvusStore) HybridSearch(ctx context.Context, collection string, q HybridQuery) ([]ScoredDocument, error) {
	expr, err := toMilvusExpr(q.Filter)
	if err != nil {
		return nil, err
	}
	limit := q.Limit
	if limit <= 0 {
		limit = 10
	}

	reranker := milvusclient.NewRRFReranker().WithK(DefaultRRFConstant)
	req := milvusclient.NewHybridSearchOption(collection, limit,
		milvusclient.NewAnnRequest(milvusDenseField, limit*4, entity.FloatVector(q.Dense)),
		milvusclient.NewAnnRequest(milvusSparseField, limit*4, entity.NewSliceSparseEmbedding(q.Sparse.Indices, q.Sparse.Values)),
	).WithReranker(reranker).WithFilter(expr).
		WithOutputFields(milvusIDField, "relativePath", "content", "fileExtension", "startLine", "endLine", "metadata")

	results, err := m.client.HybridSearch(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("vectorstore: milvus hybrid_search: %w", err)
	}

	var out []ScoredDocument
	for _, rs := range results {
		docs := documentsFromResultSet([]milvusclient.ResultSet{rs})
		for i, doc := range docs {
			if i < len(rs.Scores) {
				out = append(out, ScoredDocument{Document: doc, Score: float64(rs.Scores[i])})
			}
		}
	}
	return out, nil
}

func documentsFromResultSet(rs []milvusclient.ResultSet) []Document {
	var out []Document
	for _, r := range rs {
		n := r.ResultCount
		for i := 0; i < n; i++ {
			out = append(out, Document{
				ID:            columnString(r, milvusIDField, i),
				RelativePath:  columnString(r, "relativePath", i),
				Content:       columnString(r, "content", i),
				FileExtension: columnString(r, "fileExtension", i),
				Metadata:      columnString(r, "metadata", i),
			})
		}
	}
	return out
}

func columnString(rs milvusclient.ResultSet, field string, i int) string {
	col := rs.GetColumn(field)
	if col == nil {
		return ""
	}
	v, err := col.GetAsString(i)
	if err != nil {
		return ""
	}
	return v
}

func (m *MilvusStore) CheckCollectionLimit(ctx context.Context, collection string) (bool, error) {
	return true, nil
}

func (m *MilvusStore) Count(ctx context.Context, collection string) (int, error) {
	stats, err := m.client.GetCollectionStats(ctx, milvusclient.NewGetCollectionStatsOption(collection))
	if err != nil {
		return 0, fmt.Errorf("vectorstore: milvus collection_stats: %w", err)
	}
	return int(stats.RowCount), nil
}

func (m *MilvusStore) Close() error {
	return m.client.Close(context.Background())
}
