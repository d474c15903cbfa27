package index_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opencodesearch/codesearch/internal/embed"
	"github.com/opencodesearch/codesearch/internal/errors"
	"github.com/opencodesearch/codesearch/internal/index"
	"github.com/opencodesearch/codesearch/internal/snapshot"
	"github.com/opencodesearch/codesearch/internal/status"
	"github.com/opencodesearch/codesearch/internal/vectorstore"
)

// blockingEmbedder wraps a StaticEmbedder and stalls its first EmbedBatch
// call until released, closing started the moment it begins blocking. Used
// to hold an IndexCodebase run mid-flight so a second, concurrent call can
// observe it as already in progress.
type blockingEmbedder struct {
	*embed.StaticEmbedder
	started chan struct{}
	release chan struct{}
	once    bool
}

func newBlockingEmbedder() *blockingEmbedder {
	return &blockingEmbedder{
		StaticEmbedder: embed.NewStaticEmbedder(),
		started:        make(chan struct{}),
		release:        make(chan struct{}),
	}
}

func (b *blockingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if !b.once {
		b.once = true
		close(b.started)
		<-b.release
	}
	return b.StaticEmbedder.EmbedBatch(ctx, texts)
}

func newTestIndexer(t *testing.T) *index.Indexer {
	t.Helper()
	embedder := embed.NewStaticEmbedder()
	store := vectorstore.NewHNSWStore(vectorstore.HNSWConfig{Dimensions: embed.StaticDimensions})
	snapshots := snapshot.NewStore(t.TempDir())
	reg := status.NewRegistry("")
	return index.New(embedder, store, snapshots, reg)
}

func writeRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "auth.py"), []byte(
		"def authenticate(password):\n    return check(password)\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte(
		"# Project\n\nUnrelated documentation text.\n"), 0o644))
	return dir
}

func defaultOpts() index.IndexOptions {
	return index.IndexOptions{AllowedExts: []string{".py", ".md"}}
}

func TestIndexCodebaseFreshRun(t *testing.T) {
	ix := newTestIndexer(t)
	root := writeRepo(t)
	ctx := context.Background()

	stats, err := ix.IndexCodebase(ctx, root, defaultOpts(), nil)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.IndexedFiles)
	assert.Greater(t, stats.TotalChunks, 0)
	assert.Equal(t, "completed", stats.Status)

	collection := index.CollectionName(root)
	assert.Equal(t, collection, index.CollectionName(root+string(filepath.Separator)))

	entry, ok := ix.Status(root)
	require.True(t, ok)
	assert.Equal(t, status.PhaseIndexed, entry.Phase)
	assert.EqualValues(t, stats.IndexedFiles, entry.IndexedFiles)
}

func TestIndexCodebaseRejectsDoubleIndexWithoutForce(t *testing.T) {
	ix := newTestIndexer(t)
	root := writeRepo(t)
	ctx := context.Background()

	_, err := ix.IndexCodebase(ctx, root, defaultOpts(), nil)
	require.NoError(t, err)

	_, err = ix.IndexCodebase(ctx, root, defaultOpts(), nil)
	assert.Equal(t, errors.KindAlreadyIndexed, errors.GetKind(err))
}

func TestIndexCodebaseForceReindexesFromScratch(t *testing.T) {
	ix := newTestIndexer(t)
	root := writeRepo(t)
	ctx := context.Background()

	_, err := ix.IndexCodebase(ctx, root, defaultOpts(), nil)
	require.NoError(t, err)

	opts := defaultOpts()
	opts.Force = true
	stats, err := ix.IndexCodebase(ctx, root, opts, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.IndexedFiles)
}

func TestReindexByChangeDetectsModification(t *testing.T) {
	ix := newTestIndexer(t)
	root := writeRepo(t)
	ctx := context.Background()

	_, err := ix.IndexCodebase(ctx, root, defaultOpts(), nil)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(root, "auth.py"), []byte(
		"def authenticate(password, otp):\n    return check(password) and check(otp)\n"), 0o644))

	stats, err := ix.ReindexByChange(ctx, root, defaultOpts(), nil)
	require.NoError(t, err)
	assert.Equal(t, index.ReindexStats{Added: 0, Modified: 1, Removed: 0}, stats)
}

func TestReindexByChangeDetectsRemoval(t *testing.T) {
	ix := newTestIndexer(t)
	root := writeRepo(t)
	ctx := context.Background()

	_, err := ix.IndexCodebase(ctx, root, defaultOpts(), nil)
	require.NoError(t, err)

	require.NoError(t, os.Remove(filepath.Join(root, "README.md")))

	stats, err := ix.ReindexByChange(ctx, root, defaultOpts(), nil)
	require.NoError(t, err)
	assert.Equal(t, index.ReindexStats{Added: 0, Modified: 0, Removed: 1}, stats)

	docs, err := ix.Store.Query(ctx, index.CollectionName(root), `relativePath == "README.md"`, 0)
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestReindexByChangeDetectsAddition(t *testing.T) {
	ix := newTestIndexer(t)
	root := writeRepo(t)
	ctx := context.Background()

	_, err := ix.IndexCodebase(ctx, root, defaultOpts(), nil)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(root, "util.py"), []byte(
		"def helper():\n    return 1\n"), 0o644))

	stats, err := ix.ReindexByChange(ctx, root, defaultOpts(), nil)
	require.NoError(t, err)
	assert.Equal(t, index.ReindexStats{Added: 1, Modified: 0, Removed: 0}, stats)
}

func TestClearRemovesCollectionSnapshotAndStatus(t *testing.T) {
	ix := newTestIndexer(t)
	root := writeRepo(t)
	ctx := context.Background()

	_, err := ix.IndexCodebase(ctx, root, defaultOpts(), nil)
	require.NoError(t, err)

	require.NoError(t, ix.Clear(ctx, root))

	_, ok := ix.Status(root)
	assert.False(t, ok)

	files, err := ix.Snapshots.Load(root)
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestClearIsIdempotentOnAlreadyMissingState(t *testing.T) {
	ix := newTestIndexer(t)
	root := t.TempDir()
	assert.NoError(t, ix.Clear(context.Background(), root))
}

func TestIndexCodebaseCancellationMarksFailed(t *testing.T) {
	ix := newTestIndexer(t)
	root := writeRepo(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := ix.IndexCodebase(ctx, root, defaultOpts(), nil)
	assert.ErrorIs(t, err, context.Canceled)

	entry, ok := ix.Status(root)
	require.True(t, ok)
	assert.Equal(t, status.PhaseFailed, entry.Phase)
	assert.Equal(t, "cancelled", entry.ErrorMessage)
}

func TestReindexByChangeRejectsNeverIndexedRoot(t *testing.T) {
	ix := newTestIndexer(t)
	root := writeRepo(t)

	_, err := ix.ReindexByChange(context.Background(), root, defaultOpts(), nil)
	assert.Equal(t, errors.KindNotIndexed, errors.GetKind(err))
}

func TestIndexCodebaseRejectsConcurrentCallWhileIndexing(t *testing.T) {
	embedder := newBlockingEmbedder()
	store := vectorstore.NewHNSWStore(vectorstore.HNSWConfig{Dimensions: embed.StaticDimensions})
	snapshots := snapshot.NewStore(t.TempDir())
	reg := status.NewRegistry("")
	ix := index.New(embedder, store, snapshots, reg)
	root := writeRepo(t)

	done := make(chan error, 1)
	go func() {
		_, err := ix.IndexCodebase(context.Background(), root, defaultOpts(), nil)
		done <- err
	}()

	select {
	case <-embedder.started:
	case <-time.After(5 * time.Second):
		t.Fatal("first IndexCodebase call never reached the embedding step")
	}

	_, err := ix.IndexCodebase(context.Background(), root, defaultOpts(), nil)
	assert.Equal(t, errors.KindAlreadyIndexing, errors.GetKind(err))

	close(embedder.release)
	require.NoError(t, <-done)
}
