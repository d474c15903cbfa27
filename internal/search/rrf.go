// Package search implements the Searcher: embeds a query, issues a hybrid
// retrieval against the vector store, and shapes the fused results.
package search

import "sort"

// DefaultRRFConstant is the k used by Fuse when the caller does not override
// it, matching the teacher's SearchConfig.RRFConstant default (industry
// standard also used by Azure AI Search, OpenSearch, and Milvus's server-side
// RRFReranker).
const DefaultRRFConstant = 60

// RankedList is one ranked retrieval branch: ids in descending relevance
// order, 1-based rank implied by position.
type RankedList []string

// Fused is one document's reciprocal-rank-fused score plus the rank (if any)
// it held in the dense branch, needed for the tie-break rule.
type Fused struct {
	ID        string
	Score     float64
	DenseRank int // 0 means absent from the dense list
}

// Fuse combines a dense-branch and a sparse-branch ranked id list by
// Reciprocal Rank Fusion: rrf(d) = sum 1/(k+rank_i(d)) over every list d
// appears in. Ids absent from a list contribute nothing from it. The result
// is sorted descending by score; ties break first by higher dense rank
// (lower DenseRank value, 0/absent sorts last), then by lexicographic id.
//
// This is the literal reference implementation of the fusion formula.
// Production backends (internal/vectorstore) fuse server-side or
// client-side internally and return already-fused results; Fuse exists as a
// conformance artifact and for any backend that ever needs the core to fuse
// two independent branches itself.
func Fuse(dense, sparse RankedList, k int) []Fused {
	if k <= 0 {
		k = DefaultRRFConstant
	}

	scores := make(map[string]float64)
	denseRank := make(map[string]int)
	order := make([]string, 0, len(dense)+len(sparse))

	for i, id := range dense {
		rank := i + 1
		if _, seen := scores[id]; !seen {
			order = append(order, id)
		}
		scores[id] += 1.0 / float64(k+rank)
		denseRank[id] = rank
	}
	for i, id := range sparse {
		rank := i + 1
		if _, seen := scores[id]; !seen {
			order = append(order, id)
		}
		scores[id] += 1.0 / float64(k+rank)
	}

	out := make([]Fused, len(order))
	for i, id := range order {
		out[i] = Fused{ID: id, Score: scores[id], DenseRank: denseRank[id]}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		ri, rj := out[i].DenseRank, out[j].DenseRank
		if ri == 0 {
			ri = int(^uint(0) >> 1)
		}
		if rj == 0 {
			rj = int(^uint(0) >> 1)
		}
		if ri != rj {
			return ri < rj
		}
		return out[i].ID < out[j].ID
	})

	return out
}
