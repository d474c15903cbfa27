package vectorstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opencodesearch/codesearch/internal/bm25"
)

func TestHNSWStore_CreateAndInsertAndCount(t *testing.T) {
	s := NewHNSWStore(HNSWConfig{Dimensions: 3})
	ctx := context.Background()
	require.NoError(t, s.CreateCollection(ctx, "c1", 3, false))

	err := s.InsertHybrid(ctx, "c1", []Document{
		{ID: "a", Dense: []float32{1, 0, 0}, RelativePath: "a.go"},
		{ID: "b", Dense: []float32{0, 1, 0}, RelativePath: "b.go"},
	})
	require.NoError(t, err)

	count, err := s.Count(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestHNSWStore_InsertHybrid_RejectsDimensionMismatch(t *testing.T) {
	s := NewHNSWStore(HNSWConfig{Dimensions: 3})
	ctx := context.Background()
	require.NoError(t, s.CreateCollection(ctx, "c1", 3, false))

	err := s.InsertHybrid(ctx, "c1", []Document{{ID: "a", Dense: []float32{1, 0}}})
	assert.ErrorAs(t, err, &ErrDimensionMismatch{})
}

func TestHNSWStore_Delete_RemovesDocument(t *testing.T) {
	s := NewHNSWStore(HNSWConfig{Dimensions: 2})
	ctx := context.Background()
	require.NoError(t, s.CreateCollection(ctx, "c1", 2, false))
	require.NoError(t, s.InsertHybrid(ctx, "c1", []Document{{ID: "a", Dense: []float32{1, 0}}}))

	require.NoError(t, s.Delete(ctx, "c1", []string{"a"}))
	count, err := s.Count(ctx, "c1")
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestHNSWStore_Query_FiltersByRelativePath(t *testing.T) {
	s := NewHNSWStore(HNSWConfig{Dimensions: 2})
	ctx := context.Background()
	require.NoError(t, s.CreateCollection(ctx, "c1", 2, false))
	require.NoError(t, s.InsertHybrid(ctx, "c1", []Document{
		{ID: "a", Dense: []float32{1, 0}, RelativePath: "a.go"},
		{ID: "b", Dense: []float32{0, 1}, RelativePath: "b.go"},
	}))

	docs, err := s.Query(ctx, "c1", `relativePath == 'b.go'`, 10)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "b", docs[0].ID)
}

func TestHNSWStore_HybridSearch_FusesDenseAndSparse(t *testing.T) {
	s := NewHNSWStore(HNSWConfig{Dimensions: 2})
	ctx := context.Background()
	require.NoError(t, s.CreateCollection(ctx, "c1", 2, false))

	require.NoError(t, s.InsertHybrid(ctx, "c1", []Document{
		{
			ID: "a", Dense: []float32{1, 0},
			Sparse: bm25.SparseVector{Indices: []uint32{0, 1}, Values: []float32{1, 0.5}},
		},
		{
			ID: "b", Dense: []float32{0, 1},
			Sparse: bm25.SparseVector{Indices: []uint32{2}, Values: []float32{1}},
		},
	}))

	results, err := s.HybridSearch(ctx, "c1", HybridQuery{
		Dense:  []float32{1, 0},
		Sparse: bm25.SparseVector{Indices: []uint32{0}, Values: []float32{1}},
		Limit:  10,
	})
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "a", results[0].ID)
}

func TestHNSWStore_CheckCollectionLimit(t *testing.T) {
	s := NewHNSWStore(HNSWConfig{Dimensions: 1, MaxDocuments: 1})
	ctx := context.Background()
	require.NoError(t, s.CreateCollection(ctx, "c1", 1, false))

	ok, err := s.CheckCollectionLimit(ctx, "c1")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, s.InsertHybrid(ctx, "c1", []Document{{ID: "a", Dense: []float32{1}}}))
	ok, err = s.CheckCollectionLimit(ctx, "c1")
	require.NoError(t, err)
	assert.False(t, ok)
}
