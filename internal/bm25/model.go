package bm25

import (
	"math"
	"sort"

	"github.com/opencodesearch/codesearch/internal/errors"
)

// Default BM25 parameters, matching the teacher's store.DefaultBM25Config
// values exactly (K1=1.2, B=0.75, MinTermLen=2).
const (
	DefaultK1         = 1.2
	DefaultB          = 0.75
	DefaultMinTermLen = 2
)

// SparseVector is a sparse term-weight vector: Indices is strictly
// increasing and every value in Indices is < the model's vocabulary size;
// Values holds the corresponding non-negative weight for each index.
type SparseVector struct {
	Indices []uint32
	Values  []float32
}

// Model holds a learned BM25 model: the vocabulary (term -> index), the IDF
// of every term, the corpus's average document length, and the scoring
// parameters. A zero-value Model is untrained (Trained is false) and
// Generate fails with errors.NotTrained for any input.
type Model struct {
	K1         float64
	B          float64
	MinTermLen int
	StopWords  map[string]struct{}

	Vocabulary    map[string]uint32 // term -> vocabulary index
	IDF           map[string]float64
	AvgDocLength  float64
	Trained       bool
}

// NewModel creates an untrained model with the default parameters. Per the
// spec's stop-word Open Question, the default stop-word set is empty —
// callers opt in to stop-word filtering explicitly, unlike the teacher's
// built-in DefaultCodeStopWords list.
func NewModel() *Model {
	return &Model{
		K1:         DefaultK1,
		B:          DefaultB,
		MinTermLen: DefaultMinTermLen,
		StopWords:  map[string]struct{}{},
	}
}

// Learn builds the vocabulary and IDF table from a corpus of documents,
// replacing any previously learned state. Learn is not incremental: the
// caller re-learns over the full corpus whenever the vocabulary must change.
// Fails with errors.EmptyCorpus if corpus yields zero documents.
func (m *Model) Learn(corpus []string) error {
	if len(corpus) == 0 {
		return errors.EmptyCorpus()
	}

	docFreq := make(map[string]int)
	var totalLength int

	for _, doc := range corpus {
		tokens := tokenize(doc, m.MinTermLen, m.StopWords)
		totalLength += len(tokens)

		seen := make(map[string]struct{}, len(tokens))
		for _, t := range tokens {
			if _, ok := seen[t]; ok {
				continue
			}
			seen[t] = struct{}{}
			docFreq[t]++
		}
	}

	terms := make([]string, 0, len(docFreq))
	for t := range docFreq {
		terms = append(terms, t)
	}
	sort.Strings(terms)

	vocab := make(map[string]uint32, len(terms))
	idf := make(map[string]float64, len(terms))
	n := float64(len(corpus))
	for i, t := range terms {
		vocab[t] = uint32(i)
		df := float64(docFreq[t])
		idf[t] = math.Log((n - df + 0.5) / (df + 0.5))
	}

	avgLen := 0.0
	if len(corpus) > 0 {
		avgLen = float64(totalLength) / float64(len(corpus))
	}

	m.Vocabulary = vocab
	m.IDF = idf
	m.AvgDocLength = avgLen
	m.Trained = true
	return nil
}

// Generate computes the BM25 sparse term-weight vector for a single document
// against the learned vocabulary. Terms absent from the vocabulary are
// ignored; terms whose score falls below minScore are dropped (minScore <= 0
// disables the filter). Fails with errors.NotTrained if called before Learn.
func (m *Model) Generate(doc string, minScore float64) (SparseVector, error) {
	if !m.Trained {
		return SparseVector{}, errors.NotTrained()
	}

	tokens := tokenize(doc, m.MinTermLen, m.StopWords)
	if len(tokens) == 0 {
		return SparseVector{}, nil
	}
	tf := termFrequencies(tokens)
	docLen := float64(len(tokens))

	type weighted struct {
		idx    uint32
		weight float64
	}
	var weights []weighted

	for term, freq := range tf {
		idx, ok := m.Vocabulary[term]
		if !ok {
			continue
		}
		idfVal := m.IDF[term]
		tfVal := float64(freq)

		denom := tfVal + m.K1*(1-m.B+m.B*(docLen/nonZero(m.AvgDocLength)))
		score := idfVal * (tfVal * (m.K1 + 1)) / nonZero(denom)
		if score < 0 {
			score = 0
		}
		if minScore > 0 && score < minScore {
			continue
		}
		weights = append(weights, weighted{idx: idx, weight: score})
	}

	sort.Slice(weights, func(i, j int) bool { return weights[i].idx < weights[j].idx })

	indices := make([]uint32, len(weights))
	values := make([]float32, len(weights))
	for i, w := range weights {
		indices[i] = w.idx
		values[i] = float32(w.weight)
	}
	return SparseVector{Indices: indices, Values: values}, nil
}

// VocabularySize returns the number of distinct terms in the learned
// vocabulary.
func (m *Model) VocabularySize() int {
	return len(m.Vocabulary)
}

func nonZero(f float64) float64 {
	if f == 0 {
		return 1e-9
	}
	return f
}
