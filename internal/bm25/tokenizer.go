package bm25

import (
	"regexp"
	"strings"
)

// nonTermRune matches any rune that is not a letter, digit, or underscore.
var nonTermRune = regexp.MustCompile(`[^A-Za-z0-9_]+`)

// tokenize lowercases text, replaces every run of non-alphanumeric/underscore
// characters with a single space, splits on whitespace, and drops tokens
// shorter than minTermLen or present in stopWords. Unlike the teacher's
// TokenizeCode, this performs no camelCase/snake_case splitting: the
// tokenizer must match this exact rule set bit-for-bit so that learned
// vocabularies and sparse vectors are reproducible across runs.
func tokenize(text string, minTermLen int, stopWords map[string]struct{}) []string {
	lowered := strings.ToLower(text)
	normalized := nonTermRune.ReplaceAllString(lowered, " ")

	var tokens []string
	for _, tok := range strings.Fields(normalized) {
		if len(tok) < minTermLen {
			continue
		}
		if _, stop := stopWords[tok]; stop {
			continue
		}
		tokens = append(tokens, tok)
	}
	return tokens
}

// termFrequencies counts occurrences of each token in tokens.
func termFrequencies(tokens []string) map[string]int {
	tf := make(map[string]int, len(tokens))
	for _, t := range tokens {
		tf[t]++
	}
	return tf
}
