package bm25

import (
	"math"
	"sort"
)

// GenerateQuery computes a query-time sparse vector: the same BM25 weights
// as Generate (with minScore applied), truncated to the maxTerms
// highest-weighted terms (stable tie-break: lower vocab index wins) and,
// optionally, L2-normalised. Used by the searcher (queries are short and
// benefit from capping fan-out into the sparse branch of hybrid search);
// document-time indexing uses the unrestricted Generate. Fails with
// errors.NotTrained if called before Learn.
func (m *Model) GenerateQuery(doc string, maxTerms int, minScore float64, normalize bool) (SparseVector, error) {
	vec, err := m.Generate(doc, minScore)
	if err != nil {
		return SparseVector{}, err
	}
	if maxTerms > 0 && len(vec.Indices) > maxTerms {
		type weighted struct {
			idx    uint32
			weight float32
		}
		weighted2 := make([]weighted, len(vec.Indices))
		for i := range vec.Indices {
			weighted2[i] = weighted{idx: vec.Indices[i], weight: vec.Values[i]}
		}
		// Stable: ties (equal weight) keep their original, vocab-index-ascending
		// order, so truncation always drops the higher vocab index first.
		sort.SliceStable(weighted2, func(i, j int) bool { return weighted2[i].weight > weighted2[j].weight })
		weighted2 = weighted2[:maxTerms]
		sort.Slice(weighted2, func(i, j int) bool { return weighted2[i].idx < weighted2[j].idx })

		indices := make([]uint32, maxTerms)
		values := make([]float32, maxTerms)
		for i, w := range weighted2 {
			indices[i] = w.idx
			values[i] = w.weight
		}
		vec = SparseVector{Indices: indices, Values: values}
	}

	if normalize {
		var sumSquares float64
		for _, v := range vec.Values {
			sumSquares += float64(v) * float64(v)
		}
		norm := math.Sqrt(sumSquares)
		if norm > 0 {
			for i := range vec.Values {
				vec.Values[i] = float32(float64(vec.Values[i]) / norm)
			}
		}
	}

	return vec, nil
}
