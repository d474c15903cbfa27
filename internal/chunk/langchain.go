package chunk

import "strings"

// splitBySeparators implements a recursive-character text splitter: it tries
// each separator in priority order ("\n\n", "\n", " ", "") and only descends
// to the next separator for a piece that still exceeds chunkSize. Adjacent
// emitted pieces share exactly overlap characters of context. This is the
// fallback strategy used whenever a file's language has no tree-sitter
// grammar, or parsing fails, or an AST node has no smaller grammatical unit
// to split into.
func splitBySeparators(content string, chunkSize, overlap int) []string {
	if overlap >= chunkSize {
		overlap = chunkSize / 5
	}
	pieces := splitRecursive(content, []string{"\n\n", "\n", " ", ""}, chunkSize)
	return mergeWithOverlap(pieces, chunkSize, overlap)
}

// splitRecursive splits content on the first usable separator, recursing
// into any piece still over chunkSize using the remaining separators.
func splitRecursive(content string, separators []string, chunkSize int) []string {
	if len(content) <= chunkSize || len(separators) == 0 {
		return []string{content}
	}

	sep := separators[0]
	rest := separators[1:]

	var parts []string
	if sep == "" {
		// Last resort: hard split every chunkSize characters.
		for len(content) > 0 {
			n := chunkSize
			if n > len(content) {
				n = len(content)
			}
			parts = append(parts, content[:n])
			content = content[n:]
		}
		return parts
	}

	rawParts := strings.Split(content, sep)
	var out []string
	for i, p := range rawParts {
		piece := p
		if i < len(rawParts)-1 {
			piece += sep
		}
		if piece == "" {
			continue
		}
		if len(piece) > chunkSize {
			out = append(out, splitRecursive(piece, rest, chunkSize)...)
		} else {
			out = append(out, piece)
		}
	}
	if len(out) == 0 {
		return []string{content}
	}
	return out
}

// mergeWithOverlap greedily packs adjacent pieces into chunks up to
// chunkSize, then re-splits the packed sequence into overlapping windows so
// that every chunk (after the first) repeats the trailing overlap
// characters of its predecessor.
func mergeWithOverlap(pieces []string, chunkSize, overlap int) []string {
	if len(pieces) == 0 {
		return nil
	}

	// First, pack pieces greedily so we rarely emit tiny fragments.
	var packed []string
	var cur strings.Builder
	for _, p := range pieces {
		if cur.Len() > 0 && cur.Len()+len(p) > chunkSize {
			packed = append(packed, cur.String())
			cur.Reset()
		}
		cur.WriteString(p)
		for cur.Len() > chunkSize {
			s := cur.String()
			packed = append(packed, s[:chunkSize])
			cur.Reset()
			cur.WriteString(s[chunkSize:])
		}
	}
	if cur.Len() > 0 {
		packed = append(packed, cur.String())
	}

	if overlap <= 0 || len(packed) <= 1 {
		return packed
	}

	out := make([]string, 0, len(packed))
	for i, p := range packed {
		if i == 0 {
			out = append(out, p)
			continue
		}
		prev := packed[i-1]
		tail := prev
		if len(tail) > overlap {
			tail = tail[len(tail)-overlap:]
		}
		merged := tail + p
		if len(merged) > chunkSize+overlap {
			merged = merged[:chunkSize+overlap]
		}
		out = append(out, merged)
	}
	return out
}
