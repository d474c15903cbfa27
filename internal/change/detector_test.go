package change

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	full := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
}

func TestDetector_Diff_NoPriorSnapshot_EverythingIsAdded(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.go", "package a")
	writeFile(t, root, "b.go", "package b")

	d := New()
	diff, err := d.Diff(context.Background(), root, []string{".go"}, nil, map[string]string{})
	require.NoError(t, err)

	assert.Equal(t, []string{"a.go", "b.go"}, diff.Added)
	assert.Empty(t, diff.Modified)
	assert.Empty(t, diff.Removed)
	assert.Len(t, diff.NewHashes, 2)
}

func TestDetector_Diff_NoChanges_ReturnsEmptyDeltas(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.go", "package a")

	d := New()
	first, err := d.Diff(context.Background(), root, []string{".go"}, nil, map[string]string{})
	require.NoError(t, err)

	second, err := d.Diff(context.Background(), root, []string{".go"}, nil, first.NewHashes)
	require.NoError(t, err)

	assert.Empty(t, second.Added)
	assert.Empty(t, second.Modified)
	assert.Empty(t, second.Removed)
}

func TestDetector_Diff_DetectsModifiedAndRemoved(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.go", "package a")
	writeFile(t, root, "b.go", "package b")

	d := New()
	first, err := d.Diff(context.Background(), root, []string{".go"}, nil, map[string]string{})
	require.NoError(t, err)

	writeFile(t, root, "a.go", "package a // changed")
	require.NoError(t, os.Remove(filepath.Join(root, "b.go")))
	writeFile(t, root, "c.go", "package c")

	second, err := d.Diff(context.Background(), root, []string{".go"}, nil, first.NewHashes)
	require.NoError(t, err)

	assert.Equal(t, []string{"c.go"}, second.Added)
	assert.Equal(t, []string{"a.go"}, second.Modified)
	assert.Equal(t, []string{"b.go"}, second.Removed)
}

func TestDetector_Diff_SortsOutputsLexicographically(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "zeta.go", "package z")
	writeFile(t, root, "alpha.go", "package a")
	writeFile(t, root, "mid.go", "package m")

	d := New()
	diff, err := d.Diff(context.Background(), root, []string{".go"}, nil, map[string]string{})
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha.go", "mid.go", "zeta.go"}, diff.Added)
}

func TestDetector_Diff_HonoursAllowedExtensions(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.go", "package a")
	writeFile(t, root, "notes.txt", "ignored")

	d := New()
	diff, err := d.Diff(context.Background(), root, []string{".go"}, nil, map[string]string{})
	require.NoError(t, err)
	assert.Equal(t, []string{"a.go"}, diff.Added)
}
