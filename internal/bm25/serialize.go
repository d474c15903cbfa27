package bm25

import (
	"encoding/json"
	"sort"
)

// termIndex is one (term, vocabulary index) pair, serialized in vocabulary
// index order so the JSON is a deterministic, byte-reproducible rendering of
// the learned model rather than depending on Go's randomized map iteration.
type termIndex struct {
	Term  string `json:"term"`
	Index uint32 `json:"index"`
}

// termWeight is one (term, IDF value) pair, serialized in the same
// vocabulary-index order as the vocabulary slice.
type termWeight struct {
	Term  string  `json:"term"`
	Value float64 `json:"value"`
}

// modelJSON is the on-disk shape of a Model. Vocabulary and IDF are ordered
// slices rather than JSON objects: Go's map iteration order is randomized,
// and this package's round-trip guarantee (learn, marshal, unmarshal,
// marshal again produces identical bytes) depends on a fixed field order.
type modelJSON struct {
	Vocabulary   []termIndex  `json:"vocabulary"`
	IDF          []termWeight `json:"idf"`
	AvgDocLength float64      `json:"avg_doc_length"`
	K1           float64      `json:"k1"`
	B            float64      `json:"b"`
	MinTermLen   int          `json:"min_term_len"`
	StopWords    []string     `json:"stop_words"`
	Trained      bool         `json:"trained"`
}

// MarshalJSON renders the model as ordered slices so the output is
// deterministic across runs given identical learned state.
func (m *Model) MarshalJSON() ([]byte, error) {
	vocab := make([]termIndex, 0, len(m.Vocabulary))
	for term, idx := range m.Vocabulary {
		vocab = append(vocab, termIndex{Term: term, Index: idx})
	}
	sort.Slice(vocab, func(i, j int) bool { return vocab[i].Index < vocab[j].Index })

	idf := make([]termWeight, len(vocab))
	for i, v := range vocab {
		idf[i] = termWeight{Term: v.Term, Value: m.IDF[v.Term]}
	}

	stopWords := make([]string, 0, len(m.StopWords))
	for w := range m.StopWords {
		stopWords = append(stopWords, w)
	}
	sort.Strings(stopWords)

	return json.Marshal(modelJSON{
		Vocabulary:   vocab,
		IDF:          idf,
		AvgDocLength: m.AvgDocLength,
		K1:           m.K1,
		B:            m.B,
		MinTermLen:   m.MinTermLen,
		StopWords:    stopWords,
		Trained:      m.Trained,
	})
}

// UnmarshalJSON rebuilds a Model from its ordered-slice JSON form.
func (m *Model) UnmarshalJSON(data []byte) error {
	var mj modelJSON
	if err := json.Unmarshal(data, &mj); err != nil {
		return err
	}

	vocab := make(map[string]uint32, len(mj.Vocabulary))
	for _, v := range mj.Vocabulary {
		vocab[v.Term] = v.Index
	}

	idf := make(map[string]float64, len(mj.IDF))
	for _, w := range mj.IDF {
		idf[w.Term] = w.Value
	}

	stopWords := make(map[string]struct{}, len(mj.StopWords))
	for _, w := range mj.StopWords {
		stopWords[w] = struct{}{}
	}

	m.Vocabulary = vocab
	m.IDF = idf
	m.AvgDocLength = mj.AvgDocLength
	m.K1 = mj.K1
	m.B = mj.B
	m.MinTermLen = mj.MinTermLen
	m.StopWords = stopWords
	m.Trained = mj.Trained
	return nil
}
