package vectorstore

import (
	"fmt"
	"strings"
)

// Filter is a parsed filter expression: either an equality test (Values has
// length 1) or a set-membership test (In).
type Filter struct {
	Field string
	In    bool
	Values []string
}

// Matches reports whether doc's named field satisfies the filter. Only the
// fields the core emits filters over are recognised; unknown fields never
// match.
func (f Filter) Matches(doc Document) bool {
	actual, ok := fieldValue(doc, f.Field)
	if !ok {
		return false
	}
	for _, v := range f.Values {
		if actual == v {
			return true
		}
	}
	return false
}

func fieldValue(doc Document, field string) (string, bool) {
	switch field {
	case "relativePath":
		return doc.RelativePath, true
	case "fileExtension":
		return doc.FileExtension, true
	default:
		return "", false
	}
}

// ParseFilter parses the grammar:
//
//	expr := eq | in
//	eq   := IDENT "==" STRING_LITERAL
//	in   := IDENT "in" "[" STRING_LITERAL ("," STRING_LITERAL)* "]"
//
// An empty expr is not valid input to ParseFilter; callers check for an
// empty filter string themselves and skip filtering entirely.
func ParseFilter(expr string) (Filter, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return Filter{}, fmt.Errorf("vectorstore: empty filter expression")
	}

	if idx := strings.Index(expr, "=="); idx >= 0 {
		field := strings.TrimSpace(expr[:idx])
		lit, err := parseStringLiteral(strings.TrimSpace(expr[idx+2:]))
		if err != nil {
			return Filter{}, fmt.Errorf("vectorstore: invalid filter %q: %w", expr, err)
		}
		if !isIdent(field) {
			return Filter{}, fmt.Errorf("vectorstore: invalid filter %q: bad field name", expr)
		}
		return Filter{Field: field, Values: []string{lit}}, nil
	}

	if idx := strings.Index(expr, " in "); idx >= 0 {
		field := strings.TrimSpace(expr[:idx])
		rest := strings.TrimSpace(expr[idx+4:])
		if !strings.HasPrefix(rest, "[") || !strings.HasSuffix(rest, "]") {
			return Filter{}, fmt.Errorf("vectorstore: invalid filter %q: expected bracketed list", expr)
		}
		if !isIdent(field) {
			return Filter{}, fmt.Errorf("vectorstore: invalid filter %q: bad field name", expr)
		}
		inner := rest[1 : len(rest)-1]
		var values []string
		for _, part := range splitTopLevelComma(inner) {
			lit, err := parseStringLiteral(strings.TrimSpace(part))
			if err != nil {
				return Filter{}, fmt.Errorf("vectorstore: invalid filter %q: %w", expr, err)
			}
			values = append(values, lit)
		}
		return Filter{Field: field, In: true, Values: values}, nil
	}

	return Filter{}, fmt.Errorf("vectorstore: invalid filter %q: expected '==' or 'in'", expr)
}

func isIdent(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		isAlpha := (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || r == '_'
		isDigit := r >= '0' && r <= '9'
		if i == 0 && !isAlpha {
			return false
		}
		if !isAlpha && !isDigit {
			return false
		}
	}
	return true
}

func parseStringLiteral(s string) (string, error) {
	if len(s) < 2 {
		return "", fmt.Errorf("not a string literal: %q", s)
	}
	quote := s[0]
	if (quote != '"' && quote != '\'') || s[len(s)-1] != quote {
		return "", fmt.Errorf("not a string literal: %q", s)
	}
	return s[1 : len(s)-1], nil
}

func splitTopLevelComma(s string) []string {
	var parts []string
	var inQuote byte
	start := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case inQuote != 0:
			if c == inQuote {
				inQuote = 0
			}
		case c == '"' || c == '\'':
			inQuote = c
		case c == ',':
			parts = append(parts, s[start:i])
			start = i + 1
		}
	}
	parts = append(parts, s[start:])
	return parts
}
