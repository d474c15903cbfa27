package logging_test

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opencodesearch/codesearch/internal/logging"
)

func TestDefaultLogDirAndPath(t *testing.T) {
	dir := logging.DefaultLogDir()
	assert.True(t, strings.HasSuffix(dir, filepath.Join(".codesearch", "logs")))

	path := logging.DefaultLogPath()
	assert.Equal(t, filepath.Join(dir, "server.log"), path)
}

func TestDefaultConfig(t *testing.T) {
	cfg := logging.DefaultConfig()
	assert.Equal(t, "info", cfg.Level)
	assert.True(t, cfg.WriteToStderr)
	assert.Equal(t, 10, cfg.MaxSizeMB)
	assert.Equal(t, 5, cfg.MaxFiles)
}

func TestDebugConfig(t *testing.T) {
	cfg := logging.DebugConfig()
	assert.Equal(t, "debug", cfg.Level)
}

func TestLevelFromString(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, logging.LevelFromString("debug"))
	assert.Equal(t, slog.LevelWarn, logging.LevelFromString("warning"))
	assert.Equal(t, slog.LevelInfo, logging.LevelFromString("unknown"))
}

func TestSetupWritesJSONLines(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "server.log")

	cfg := logging.Config{
		Level:         "info",
		FilePath:      logPath,
		MaxSizeMB:     10,
		MaxFiles:      5,
		WriteToStderr: false,
	}

	logger, cleanup, err := logging.Setup(cfg)
	require.NoError(t, err)
	defer cleanup()

	logger.Info("indexing started", "root", "/tmp/project")
	cleanup()

	data, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"indexing started"`)
	assert.Contains(t, string(data), `"root":"/tmp/project"`)
}

func TestFindLogFileExplicitPath(t *testing.T) {
	dir := t.TempDir()
	explicit := filepath.Join(dir, "custom.log")
	require.NoError(t, os.WriteFile(explicit, []byte("line\n"), 0o644))

	found, err := logging.FindLogFile(explicit)
	require.NoError(t, err)
	assert.Equal(t, explicit, found)
}

func TestFindLogFileMissingReturnsError(t *testing.T) {
	_, err := logging.FindLogFile(filepath.Join(t.TempDir(), "does-not-exist.log"))
	assert.Error(t, err)
}
