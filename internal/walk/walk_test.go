package walk_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opencodesearch/codesearch/internal/walk"
)

func drain(t *testing.T, ch <-chan walk.Entry) []walk.Entry {
	t.Helper()
	var out []walk.Entry
	for e := range ch {
		out = append(out, e)
	}
	return out
}

func writeFile(t *testing.T, path string, size int) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, make([]byte, size), 0o644))
}

func TestWalkDeterministicLexicographicOrder(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "b.go"), 10)
	writeFile(t, filepath.Join(dir, "a.go"), 10)
	writeFile(t, filepath.Join(dir, "sub", "z.go"), 10)
	writeFile(t, filepath.Join(dir, "sub", "a.go"), 10)

	w := walk.New(4)
	ch, err := w.Walk(context.Background(), walk.Options{Root: dir, AllowedExts: []string{".go"}})
	require.NoError(t, err)

	entries := drain(t, ch)
	var rel []string
	for _, e := range entries {
		rel = append(rel, e.RelPath)
	}
	assert.Equal(t, []string{"a.go", "b.go", "sub/a.go", "sub/z.go"}, rel)
}

func TestWalkSkipsDisallowedExtension(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "main.go"), 10)
	writeFile(t, filepath.Join(dir, "image.png"), 10)

	w := walk.New(2)
	ch, err := w.Walk(context.Background(), walk.Options{Root: dir, AllowedExts: []string{".go"}})
	require.NoError(t, err)

	entries := drain(t, ch)
	require.Len(t, entries, 1)
	assert.Equal(t, "main.go", entries[0].RelPath)
}

func TestWalkAppliesDefaultIgnorePatterns(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "node_modules", "lib", "index.js"), 10)
	writeFile(t, filepath.Join(dir, "src", "index.js"), 10)

	w := walk.New(2)
	ch, err := w.Walk(context.Background(), walk.Options{Root: dir, AllowedExts: []string{".js"}})
	require.NoError(t, err)

	entries := drain(t, ch)
	require.Len(t, entries, 1)
	assert.Equal(t, "src/index.js", entries[0].RelPath)
}

func TestWalkCustomIgnorePatternsAppendNotReplace(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "node_modules", "lib.js"), 10)
	writeFile(t, filepath.Join(dir, "scratch", "temp.js"), 10)
	writeFile(t, filepath.Join(dir, "keep.js"), 10)

	w := walk.New(2)
	ch, err := w.Walk(context.Background(), walk.Options{
		Root:           dir,
		AllowedExts:    []string{".js"},
		IgnorePatterns: []string{"**/scratch/**"},
	})
	require.NoError(t, err)

	entries := drain(t, ch)
	var rel []string
	for _, e := range entries {
		rel = append(rel, e.RelPath)
	}
	assert.ElementsMatch(t, []string{"keep.js"}, rel)
}

func TestWalkSkipsFilesOverSizeCap(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "small.go"), 10)
	writeFile(t, filepath.Join(dir, "big.go"), 200)

	w := walk.New(2)
	ch, err := w.Walk(context.Background(), walk.Options{
		Root:        dir,
		AllowedExts: []string{".go"},
		MaxFileSize: 100,
	})
	require.NoError(t, err)

	entries := drain(t, ch)
	require.Len(t, entries, 1)
	assert.Equal(t, "small.go", entries[0].RelPath)
}

func TestWalkFollowsSymlinkOnceAndSkipsCycle(t *testing.T) {
	dir := t.TempDir()
	real := filepath.Join(dir, "real")
	writeFile(t, filepath.Join(real, "file.go"), 10)

	link := filepath.Join(dir, "link")
	require.NoError(t, os.Symlink(real, link))

	// Cycle: a symlink inside "real" pointing back at "real" itself.
	cycle := filepath.Join(real, "cycle")
	require.NoError(t, os.Symlink(real, cycle))

	w := walk.New(2)
	ch, err := w.Walk(context.Background(), walk.Options{Root: dir, AllowedExts: []string{".go"}})
	require.NoError(t, err)

	entries := drain(t, ch)
	var rel []string
	for _, e := range entries {
		rel = append(rel, e.RelPath)
	}
	// file.go reachable via "real" directly, and via "link" once; the
	// "cycle" symlink back into "real" must not be followed again.
	assert.Contains(t, rel, "real/file.go")
	assert.Contains(t, rel, "link/file.go")
	for _, r := range rel {
		assert.NotContains(t, r, "cycle")
	}
}

func TestWalkRejectsNonDirectoryRoot(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "file.go")
	writeFile(t, file, 10)

	w := walk.New(2)
	_, err := w.Walk(context.Background(), walk.Options{Root: file})
	assert.Error(t, err)
}
