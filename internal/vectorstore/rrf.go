package vectorstore

// rrfFuse combines two independently ranked ID lists (best first) via
// Reciprocal Rank Fusion: score(id) = sum over lists containing id of
// 1/(k + rank), rank is 1-based. Ties break first by higher dense rank (an
// id present in the dense branch outranks one that only ever showed up in
// sparse), then by ID, for determinism. Documents are resolved from
// whichever collection map the caller has locked; this function is
// collection-agnostic and operates purely on IDs.
func rrfFuse(dense, sparse []string, k int) []ScoredDocument {
	scores := make(map[string]float64)
	denseRank := make(map[string]int) // 1-based; absent from dense means 0
	order := make([]string, 0, len(dense)+len(sparse))

	for i, id := range dense {
		if _, seen := scores[id]; !seen {
			order = append(order, id)
		}
		scores[id] += 1.0 / float64(k+i+1)
		denseRank[id] = i + 1
	}
	for i, id := range sparse {
		if _, seen := scores[id]; !seen {
			order = append(order, id)
		}
		scores[id] += 1.0 / float64(k+i+1)
	}

	// Resolution to ScoredDocument happens in the caller since only it holds
	// the collection's document map under lock; rrfFuse itself just orders.
	out := make([]ScoredDocument, 0, len(order))
	for _, id := range order {
		out = append(out, ScoredDocument{Document: Document{ID: id}, Score: scores[id], DenseRank: denseRank[id]})
	}
	sortByScoreDesc(out)
	return out
}

func sortByScoreDesc(docs []ScoredDocument) {
	// Simple insertion sort is fine: fanout is bounded (limit*4) per call.
	for i := 1; i < len(docs); i++ {
		j := i
		for j > 0 && less(docs[j], docs[j-1]) {
			docs[j], docs[j-1] = docs[j-1], docs[j]
			j--
		}
	}
}

func less(a, b ScoredDocument) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	ri, rj := a.DenseRank, b.DenseRank
	if ri == 0 {
		ri = int(^uint(0) >> 1)
	}
	if rj == 0 {
		rj = int(^uint(0) >> 1)
	}
	if ri != rj {
		return ri < rj
	}
	return a.ID < b.ID
}
