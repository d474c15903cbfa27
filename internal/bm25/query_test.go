package bm25

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opencodesearch/codesearch/internal/errors"
)

func TestGenerateQuery_OnUntrainedModel_FailsWithNotTrained(t *testing.T) {
	m := NewModel()
	vec, err := m.GenerateQuery("alpha beta", 10, 0, false)
	assert.Empty(t, vec.Indices)
	assert.Equal(t, errors.KindNotTrained, errors.GetKind(err))
}

func TestGenerateQuery_TruncatesToMaxTerms(t *testing.T) {
	m := NewModel()
	require.NoError(t, m.Learn([]string{
		"alpha beta gamma delta epsilon",
		"alpha beta gamma",
		"alpha beta",
	}))

	vec, err := m.GenerateQuery("alpha beta gamma delta epsilon", 2, 0, false)
	require.NoError(t, err)
	assert.Len(t, vec.Indices, 2)

	for i := 1; i < len(vec.Indices); i++ {
		assert.Less(t, vec.Indices[i-1], vec.Indices[i], "indices must be strictly increasing after truncation")
	}
}

func TestGenerateQuery_EqualWeightTruncation_KeepsLowerVocabIndex(t *testing.T) {
	// Every term here appears in exactly one of three equally-sized
	// documents, so every term gets the same IDF and the same term
	// frequency contribution: tied weights across the board.
	m := NewModel()
	require.NoError(t, m.Learn([]string{"aaa", "bbb", "ccc"}))

	full, err := m.Generate("aaa bbb ccc", 0)
	require.NoError(t, err)
	require.Len(t, full.Indices, 3)

	vec, err := m.GenerateQuery("aaa bbb ccc", 1, 0, false)
	require.NoError(t, err)
	require.Len(t, vec.Indices, 1)
	assert.Equal(t, full.Indices[0], vec.Indices[0], "stable tie-break must keep the lowest vocab index")
}

func TestGenerateQuery_MinScoreFiltersBeforeTruncation(t *testing.T) {
	m := NewModel()
	require.NoError(t, m.Learn([]string{
		"alpha beta",
		"alpha gamma",
		"alpha beta gamma",
	}))

	unfiltered, err := m.Generate("alpha beta gamma", 0)
	require.NoError(t, err)
	var maxWeight float32
	for _, v := range unfiltered.Values {
		if v > maxWeight {
			maxWeight = v
		}
	}

	vec, err := m.GenerateQuery("alpha beta gamma", 10, float64(maxWeight)+1, false)
	require.NoError(t, err)
	assert.Empty(t, vec.Indices)
}

func TestGenerateQuery_Normalize_L2NormalisesValues(t *testing.T) {
	m := NewModel()
	// Five documents so that alpha/beta/gamma (df=2 each) get a positive
	// IDF and therefore non-zero weights to normalise.
	require.NoError(t, m.Learn([]string{"alpha beta", "alpha gamma", "beta gamma gamma", "delta", "epsilon"}))

	vec, err := m.GenerateQuery("alpha beta gamma", 10, 0, true)
	require.NoError(t, err)
	require.NotEmpty(t, vec.Values)

	var sumSquares float64
	for _, v := range vec.Values {
		sumSquares += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, sumSquares, 1e-5)
}
