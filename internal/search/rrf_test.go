package search_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opencodesearch/codesearch/internal/search"
)

func TestFuseBothBranches(t *testing.T) {
	dense := search.RankedList{"a", "b", "c"}
	sparse := search.RankedList{"b", "a", "d"}

	fused := search.Fuse(dense, sparse, 60)
	require.Len(t, fused, 4)

	byID := make(map[string]search.Fused, len(fused))
	for _, f := range fused {
		byID[f.ID] = f
	}

	assert.InDelta(t, 1.0/61+1.0/62, byID["a"].Score, 1e-9)
	assert.InDelta(t, 1.0/62+1.0/61, byID["b"].Score, 1e-9)
	assert.InDelta(t, 1.0/63, byID["c"].Score, 1e-9)
	assert.InDelta(t, 1.0/63, byID["d"].Score, 1e-9)

	assert.Equal(t, "a", fused[0].ID)
	assert.Equal(t, "b", fused[1].ID)
}

func TestFuseTieBreakPrefersDensePresence(t *testing.T) {
	// "c" and "d" are absent from dense; "c" ranks ahead on score (1/61 vs
	// 1/62). "e" is present in dense (rank 5, 1/65) and ties score-wise with
	// "h", a sparse-only entry at the same rank; dense presence must win.
	dense := search.RankedList{"z", "y", "x", "w", "e"}
	sparse := search.RankedList{"c", "d", "f", "g", "h"}

	fused := search.Fuse(dense, sparse, 60)

	var c, d, e, f search.Fused
	for _, item := range fused {
		switch item.ID {
		case "c":
			c = item
		case "d":
			d = item
		case "e":
			e = item
		case "f":
			f = item
		}
	}

	assert.Less(t, indexOf(fused, "c"), indexOf(fused, "d"))
	assert.Less(t, indexOf(fused, "e"), indexOf(fused, "h"))
	assert.Equal(t, e.DenseRank, 5)
	assert.Equal(t, 0, c.DenseRank)
	assert.Equal(t, 0, d.DenseRank)
	assert.Equal(t, 0, f.DenseRank)
}

func TestFuseDefaultsKWhenNonPositive(t *testing.T) {
	fused := search.Fuse(search.RankedList{"a"}, nil, 0)
	require.Len(t, fused, 1)
	assert.InDelta(t, 1.0/(search.DefaultRRFConstant+1), fused[0].Score, 1e-9)
}

func TestFuseEmptyListsYieldEmptyResult(t *testing.T) {
	assert.Empty(t, search.Fuse(nil, nil, 60))
}

func indexOf(fused []search.Fused, id string) int {
	for i, f := range fused {
		if f.ID == id {
			return i
		}
	}
	return -1
}
