package chunk

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/google/uuid"
)

// chunkNamespace is the UUID-v5 namespace for chunk identifiers, so that ids
// are stable across runs and collide only on genuinely identical chunks.
var chunkNamespace = uuid.MustParse("6ba7b812-9dad-11d1-80b4-00c04fd430c8")

// generateChunkID derives a UUID-v5 chunk id from relativePath, the 1-indexed
// inclusive line span, and the SHA-256 hex digest of content.
func generateChunkID(relativePath string, startLine, endLine int, content string) string {
	sum := sha256.Sum256([]byte(content))
	contentHash := hex.EncodeToString(sum[:])
	name := relativePath + ":" + itoa(startLine) + ":" + itoa(endLine) + ":" + contentHash
	return uuid.NewSHA1(chunkNamespace, []byte(name)).String()
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var b [20]byte
	i := len(b)
	for n > 0 {
		i--
		b[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		b[i] = '-'
	}
	return string(b[i:])
}

// normalizeNewlines converts CRLF and lone CR to LF so line counting is
// stable across platforms.
func normalizeNewlines(s string) string {
	if !strings.ContainsRune(s, '\r') {
		return s
	}
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\r", "\n")
}

// lineSpan computes the 1-indexed inclusive [startLine, endLine] of content
// within source, given the byte offset of content's first byte in source.
// source must already be newline-normalized.
func lineSpan(source []byte, startByte, endByte int) (startLine, endLine int) {
	startLine = 1 + strings.Count(string(source[:startByte]), "\n")
	endOffset := endByte
	if endOffset > 0 && endOffset <= len(source) && source[endOffset-1] == '\n' {
		endOffset--
	}
	endLine = 1 + strings.Count(string(source[:endOffset]), "\n")
	return startLine, endLine
}

// countLines returns how many lines content spans (1-indexed semantics: a
// single line with no trailing newline counts as 1).
func countLines(content string) int {
	content = normalizeNewlines(content)
	if content == "" {
		return 1
	}
	n := strings.Count(content, "\n") + 1
	if strings.HasSuffix(content, "\n") {
		n--
	}
	if n < 1 {
		n = 1
	}
	return n
}
