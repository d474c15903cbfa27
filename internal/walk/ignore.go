package walk

import (
	"strings"

	"github.com/opencodesearch/codesearch/internal/gitignore"
)

// ignoreMatcher wraps the gitignore pattern matcher with the walker's
// default-plus-custom pattern set, distinguishing directory-only patterns
// (trailing "/") from file patterns for the two call sites that need it.
type ignoreMatcher struct {
	dirs  *gitignore.Matcher
	files *gitignore.Matcher
}

func newIgnoreMatcher(custom []string) *ignoreMatcher {
	m := &ignoreMatcher{
		dirs:  gitignore.New(),
		files: gitignore.New(),
	}
	all := make([]string, 0, len(DefaultIgnorePatterns)+len(custom))
	all = append(all, DefaultIgnorePatterns...)
	all = append(all, custom...)

	for _, p := range all {
		m.files.AddPattern(p)
		m.dirs.AddPattern(p)
	}
	return m
}

func (m *ignoreMatcher) matchFile(relPath string) bool {
	return m.files.Match(relPath, false)
}

func (m *ignoreMatcher) matchDir(relPath string) bool {
	return m.dirs.Match(relPath, true)
}

// extSet is the ordered allowed-extension list from Options.AllowedExts.
// An empty set allows everything.
type extSet struct {
	exts map[string]struct{}
}

func newExtSet(allowed []string) extSet {
	if len(allowed) == 0 {
		return extSet{}
	}
	s := make(map[string]struct{}, len(allowed))
	for _, e := range allowed {
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		s[strings.ToLower(e)] = struct{}{}
	}
	return extSet{exts: s}
}

func (s extSet) allows(relPath string) bool {
	if len(s.exts) == 0 {
		return true
	}
	idx := strings.LastIndexByte(relPath, '.')
	if idx < 0 {
		return false
	}
	_, ok := s.exts[strings.ToLower(relPath[idx:])]
	return ok
}
