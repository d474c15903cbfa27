package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opencodesearch/codesearch/internal/config"
)

func TestNewConfigDefaults(t *testing.T) {
	cfg := config.NewConfig()

	assert.Equal(t, "ast", cfg.Chunking.Strategy)
	assert.Equal(t, 2500, cfg.Chunking.MaxChunkChars)
	assert.Equal(t, 200, cfg.Chunking.MinChunkChars)
	assert.Equal(t, 1000, cfg.Chunking.ChunkSize)
	assert.Equal(t, 200, cfg.Chunking.ChunkOverlap)
	assert.Equal(t, 60, cfg.Search.RRFConstant)
	assert.Equal(t, 64, cfg.Performance.EmbedBatch)
	assert.Equal(t, 128, cfg.Performance.InsertBatch)
	assert.Equal(t, 2, cfg.Performance.MaxInFlightEmbed)
	assert.Equal(t, 2, cfg.Performance.MaxInFlightInsert)
	assert.LessOrEqual(t, cfg.Performance.Workers, 8)
	assert.Equal(t, "hnsw", cfg.Store.Backend)
	assert.NoError(t, cfg.Validate())
}

func TestValidateRejectsOverlapGreaterThanSize(t *testing.T) {
	cfg := config.NewConfig()
	cfg.Chunking.ChunkOverlap = cfg.Chunking.ChunkSize
	require.Error(t, cfg.Validate())
}

func TestValidateRejectsUnknownBackend(t *testing.T) {
	cfg := config.NewConfig()
	cfg.Store.Backend = "not-a-backend"
	require.Error(t, cfg.Validate())
}

func TestLoadFromProjectFile(t *testing.T) {
	dir := t.TempDir()
	yamlContent := []byte("search:\n  rrf_constant: 42\nchunking:\n  chunk_size: 1200\n  chunk_overlap: 100\n")
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".codesearch.yaml"), yamlContent, 0o644))

	cfg, err := config.Load(dir)
	require.NoError(t, err)
	assert.Equal(t, 42, cfg.Search.RRFConstant)
	assert.Equal(t, 1200, cfg.Chunking.ChunkSize)
}

func TestEnvOverrideTakesPrecedence(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("CODESEARCH_RRF_CONSTANT", "99")

	cfg, err := config.Load(dir)
	require.NoError(t, err)
	assert.Equal(t, 99, cfg.Search.RRFConstant)
}

func TestFindProjectRootFallsBackToStartDir(t *testing.T) {
	dir := t.TempDir()
	root, err := config.FindProjectRoot(dir)
	require.NoError(t, err)
	assert.Equal(t, dir, root)
}
