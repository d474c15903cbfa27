package logging_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opencodesearch/codesearch/internal/logging"
)

func TestRotatingWriterCreatesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "server.log")

	w, err := logging.NewRotatingWriter(path, 10, 3)
	require.NoError(t, err)
	defer w.Close()

	_, err = w.Write([]byte("hello\n"))
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "hello\n", string(data))
}

func TestRotatingWriterRotatesOnSizeLimit(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "server.log")

	// maxSizeMB=0 forces a rotation before every write.
	w, err := logging.NewRotatingWriter(path, 0, 2)
	require.NoError(t, err)
	defer w.Close()

	_, err = w.Write([]byte("first\n"))
	require.NoError(t, err)
	_, err = w.Write([]byte("second\n"))
	require.NoError(t, err)

	rotated := path + ".1"
	_, statErr := os.Stat(rotated)
	assert.NoError(t, statErr)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "second\n", string(data))
}

func TestRotatingWriterDeletesBeyondMaxFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "server.log")

	w, err := logging.NewRotatingWriter(path, 0, 1)
	require.NoError(t, err)
	defer w.Close()

	for i := 0; i < 4; i++ {
		_, err = w.Write([]byte("line\n"))
		require.NoError(t, err)
	}

	_, err = os.Stat(path + ".2")
	assert.True(t, os.IsNotExist(err), "expected .2 rotated file to be pruned beyond maxFiles=1")
}

func TestRotatingWriterSetImmediateSync(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "server.log")

	w, err := logging.NewRotatingWriter(path, 10, 3)
	require.NoError(t, err)
	defer w.Close()

	w.SetImmediateSync(false)
	_, err = w.Write([]byte("buffered\n"))
	require.NoError(t, err)
	require.NoError(t, w.Sync())
}
