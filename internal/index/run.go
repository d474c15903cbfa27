package index

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/opencodesearch/codesearch/internal/chunk"
	"github.com/opencodesearch/codesearch/internal/vectorstore"
	"github.com/opencodesearch/codesearch/internal/walk"
)

// chunkMetadata is the JSON payload stored in a Document's opaque Metadata
// field, round-tripped by the searcher to shape result rows.
type chunkMetadata struct {
	Language string `json:"language"`
	NodeKind string `json:"node_kind,omitempty"`
}

// indexRun holds the mutable state of one IndexCodebase (or the insert side
// of one ReindexByChange) pass: the file-hash map being built for the next
// snapshot, and the embed/insert buffers the 13-step protocol streams
// through.
type indexRun struct {
	indexer    *Indexer
	root       string
	collection string
	newHashes  map[string]string

	embedBatch  int
	insertBatch int
	// relearnBM25 controls whether flushInsert re-learns the BM25 model
	// before inserting. A fresh index_codebase run relearns over the corpus
	// collected so far before every insert, per spec.md; reindex_by_change only ever
	// touches a small subset of files and has no access to the full
	// corpus, so it inserts sparse vectors from whatever vocabulary the
	// model already has rather than relearning on a partial corpus.
	relearnBM25 bool

	corpus         []string
	pendingEmbed   []*chunk.Chunk
	pendingInsert  []vectorstore.Document
	processedFiles int
	totalChunks    int
}

// processFile reads, hashes, and chunks one file, buffering its chunks for
// embedding and insertion. A per-file error (unreadable file, chunker
// failure) is returned to the caller: IndexCodebase logs it and skips the
// file, while ReindexByChange aborts without persisting a new snapshot.
func (r *indexRun) processFile(ctx context.Context, e walk.Entry) error {
	content, err := os.ReadFile(e.AbsPath)
	if err != nil {
		return err
	}
	r.newHashes[e.RelPath] = hashBytes(content)

	lang := r.indexer.languageFor(e.RelPath)
	chunker := r.indexer.chunkerFor(e.RelPath)
	chunks, err := chunker.Chunk(ctx, &chunk.FileInput{Path: e.RelPath, Content: content, Language: lang})
	if err != nil {
		return err
	}

	for _, c := range chunks {
		r.corpus = append(r.corpus, c.Content)
		r.pendingEmbed = append(r.pendingEmbed, c)
		if len(r.pendingEmbed) >= r.embedBatch {
			if err := r.flushEmbed(ctx); err != nil {
				return err
			}
		}
		if len(r.pendingInsert) >= r.insertBatch {
			if err := r.flushInsert(ctx); err != nil {
				return err
			}
		}
	}
	return nil
}

// flushEmbed embeds every buffered chunk as one batch call. If the batch
// call fails outright, or returns a mismatched count, it falls back to
// embedding chunks one at a time with a pacing delay between attempts;
// chunks that still fail to embed are WARN-logged and dropped rather than
// failing the whole run.
func (r *indexRun) flushEmbed(ctx context.Context) error {
	chunks := r.pendingEmbed
	r.pendingEmbed = nil
	if len(chunks) == 0 {
		return nil
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}

	okChunks := chunks
	okVecs, err := r.indexer.Embedder.EmbedBatch(ctx, texts)
	if err != nil || len(okVecs) != len(chunks) {
		if err != nil {
			slog.Warn("index: batch embed failed, falling back to per-item embedding",
				slog.Int("batch_size", len(chunks)), slog.String("error", err.Error()))
		}
		okChunks, okVecs = r.embedOneByOne(ctx, chunks)
	}

	for i, c := range okChunks {
		meta, _ := json.Marshal(chunkMetadata{Language: c.Language, NodeKind: c.NodeKind})
		r.pendingInsert = append(r.pendingInsert, vectorstore.Document{
			ID:            c.ID,
			Dense:         okVecs[i],
			Content:       c.Content,
			RelativePath:  c.FilePath,
			StartLine:     int64(c.StartLine),
			EndLine:       int64(c.EndLine),
			FileExtension: filepath.Ext(c.FilePath),
			Metadata:      string(meta),
		})
		r.totalChunks++
	}
	return nil
}

func (r *indexRun) embedOneByOne(ctx context.Context, chunks []*chunk.Chunk) ([]*chunk.Chunk, [][]float32) {
	var okChunks []*chunk.Chunk
	var okVecs [][]float32
	for _, c := range chunks {
		v, err := r.indexer.Embedder.Embed(ctx, c.Content)
		if err != nil {
			slog.Warn("index: embedding chunk failed, skipping",
				slog.String("file", c.FilePath), slog.String("error", err.Error()))
			continue
		}
		okChunks = append(okChunks, c)
		okVecs = append(okVecs, v)
		time.Sleep(perItemFallbackDelay)
	}
	return okChunks, okVecs
}

// flushInsert re-learns the BM25 model over the full corpus collected so far
// when relearnBM25 is set (spec.md requires a fresh learn before every
// hybrid insert during a full index_codebase run, not just the first),
// generates each pending document's sparse vector, and inserts the batch.
// The caller holds the per-collection lock for the duration of the run, so
// this never races a concurrent insert for the same collection.
func (r *indexRun) flushInsert(ctx context.Context) error {
	if len(r.pendingInsert) == 0 {
		return nil
	}
	if r.relearnBM25 {
		if err := r.indexer.BM25.Learn(r.corpus); err != nil {
			return err
		}
	}
	for i := range r.pendingInsert {
		sparse, err := r.indexer.BM25.Generate(r.pendingInsert[i].Content, 0)
		if err != nil {
			return err
		}
		r.pendingInsert[i].Sparse = sparse
	}
	if err := r.indexer.Store.InsertHybrid(ctx, r.collection, r.pendingInsert); err != nil {
		return err
	}
	r.pendingInsert = nil
	return nil
}

func (r *indexRun) flushAll(ctx context.Context) error {
	if err := r.flushEmbed(ctx); err != nil {
		return err
	}
	return r.flushInsert(ctx)
}

func (r *indexRun) lastPct(total int) float64 {
	if total <= 0 {
		return 100
	}
	pct := float64(r.processedFiles) / float64(total) * 100
	if pct > 100 {
		pct = 100
	}
	return pct
}

func (r *indexRun) stats(status string) IndexStats {
	return IndexStats{IndexedFiles: r.processedFiles, TotalChunks: r.totalChunks, Status: status}
}

// finish persists the freshly built snapshot and transitions the status
// registry to Indexed before returning the run's final stats.
func (r *indexRun) finish(root, status string) (IndexStats, error) {
	if err := r.indexer.Snapshots.Save(r.root, r.newHashes); err != nil {
		r.indexer.StatusRegistry.SetFailed(root, err.Error(), r.lastPct(r.processedFiles))
		return IndexStats{}, err
	}
	r.indexer.StatusRegistry.SetIndexed(root, uint64(r.processedFiles), uint64(r.totalChunks), status)
	return r.stats(status), nil
}

