package indexer

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/kestrelhq/coderag/internal/embedder"
	"github.com/kestrelhq/coderag/internal/manifest"
	"github.com/kestrelhq/coderag/internal/segmenter"
	"github.com/kestrelhq/coderag/internal/source"
	"github.com/kestrelhq/coderag/internal/vectorstore"
	"github.com/kestrelhq/coderag/pkg/types"
)

const (
	DefaultWorkers       = 4
	DefaultMaxChunkChars = 1800
)

// Statistics reports what one reconcile run did.
type Statistics struct {
	FilesScanned    int
	FilesIndexed    int
	FilesUnchanged  int
	FilesFailed     int
	FilesDeleted    int
	ChunksUpserted  int
	ChunksDeleted   int
	ChunksUnchanged int
	ChunksFailed    int
	Duration        time.Duration
	ErrorMessages   []string
}

// Config configures an Indexer.
type Config struct {
	Collection    string
	Workers       int
	MaxChunkChars int
	Walk          source.WalkConfig
	Logger        *slog.Logger
}

// Indexer keeps the vector index consistent with a repository tree.
// Re-running it against an unchanged tree performs no vector writes;
// edits re-embed only the chunks whose content hash changed.
type Indexer struct {
	store     vectorstore.Store
	manifest  manifest.Store
	embed     *embedder.Client
	segmenter *segmenter.Segmenter

	collection    string
	workers       int
	maxChunkChars int
	logger        *slog.Logger

	cfgMu   sync.Mutex
	walkCfg source.WalkConfig

	// walkFiles is source.Walk, swappable in tests.
	walkFiles func(root string, cfg source.WalkConfig) iter.Seq2[source.File, error]

	lock reconcileLock
}

// New creates an Indexer.
func New(store vectorstore.Store, man manifest.Store, embed *embedder.Client, cfg Config) (*Indexer, error) {
	if cfg.Collection == "" {
		return nil, fmt.Errorf("collection name required")
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = DefaultWorkers
	}
	maxChars := cfg.MaxChunkChars
	if maxChars <= 0 {
		maxChars = DefaultMaxChunkChars
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Indexer{
		store:         store,
		manifest:      man,
		embed:         embed,
		segmenter:     segmenter.New(segmenter.WithLogger(logger)),
		collection:    cfg.Collection,
		workers:       workers,
		maxChunkChars: maxChars,
		walkCfg:       cfg.Walk,
		walkFiles:     source.Walk,
		logger:        logger,
	}, nil
}

// WalkConfig returns a copy of the walk configuration used by
// Reconcile and Watch.
func (idx *Indexer) WalkConfig() source.WalkConfig {
	idx.cfgMu.Lock()
	defer idx.cfgMu.Unlock()
	return idx.walkCfg
}

// SetWalkConfig replaces the walk configuration for subsequent runs.
// A reconcile already in flight keeps the configuration it started
// with.
func (idx *Indexer) SetWalkConfig(cfg source.WalkConfig) {
	idx.cfgMu.Lock()
	defer idx.cfgMu.Unlock()
	idx.walkCfg = cfg
}

// EnsureCollection creates the code collection if missing and verifies
// its schema otherwise.
func (idx *Indexer) EnsureCollection(ctx context.Context) error {
	return idx.store.EnsureCollection(ctx, idx.collection, vectorstore.DefaultSchema(idx.embed.Dimension()))
}

// Reconcile walks the tree under root and brings the index in line
// with it: new and edited chunks are embedded and upserted, chunks
// whose symbols disappeared are deleted, files removed from disk are
// purged. Only one reconcile may run at a time; a second call returns
// types.ErrReconcileBusy immediately.
//
// Per-file failures (unparseable files, embedding outages) are logged
// and counted, not fatal. The run fails only on context cancellation
// or a store error that would leave the diff meaningless.
func (idx *Indexer) Reconcile(ctx context.Context, root string) (*Statistics, error) {
	if !idx.lock.TryAcquire() {
		return nil, types.ErrReconcileBusy
	}
	defer idx.lock.Release()

	return idx.reconcile(ctx, root)
}

// ReconcileWith runs a reconcile under the given walk configuration,
// which also becomes the configuration for later runs and Watch. The
// configuration is only installed after the run lock is held, so a
// rejected concurrent call cannot disturb a run already in flight.
func (idx *Indexer) ReconcileWith(ctx context.Context, root string, walk source.WalkConfig) (*Statistics, error) {
	if !idx.lock.TryAcquire() {
		return nil, types.ErrReconcileBusy
	}
	defer idx.lock.Release()

	idx.SetWalkConfig(walk)
	return idx.reconcile(ctx, root)
}

func (idx *Indexer) reconcile(ctx context.Context, root string) (*Statistics, error) {
	start := time.Now()
	stats := &Statistics{}

	if err := idx.EnsureCollection(ctx); err != nil {
		return nil, err
	}

	pool, err := ants.NewPool(idx.workers)
	if err != nil {
		return nil, fmt.Errorf("create worker pool: %w", err)
	}
	defer pool.Release()

	var (
		wg           sync.WaitGroup
		mu           sync.Mutex // guards stats.ErrorMessages
		scanned      int64
		indexed      int64
		unchanged    int64
		failed       int64
		upserted     int64
		deleted      int64
		skipped      int64
		chunksFailed int64
	)

	seen := make(map[string]bool)
	walkAborted := false

	for f, walkErr := range idx.walkFiles(root, idx.WalkConfig()) {
		if err := ctx.Err(); err != nil {
			wg.Wait()
			return nil, err
		}
		if walkErr != nil {
			atomic.AddInt64(&failed, 1)
			mu.Lock()
			stats.ErrorMessages = append(stats.ErrorMessages, walkErr.Error())
			mu.Unlock()
			// A file that errored is still present on disk; keep it out
			// of the purge. An error with no path means the walk itself
			// died and the rest of the tree was never visited.
			if f.Path != "" {
				seen[f.Path] = true
			} else {
				walkAborted = true
			}
			continue
		}

		seen[f.Path] = true
		atomic.AddInt64(&scanned, 1)

		file := f
		wg.Add(1)
		submitErr := pool.Submit(func() {
			defer wg.Done()

			res, err := idx.reconcileFile(ctx, file)
			if err != nil {
				atomic.AddInt64(&failed, 1)
				idx.logger.Warn("file reconcile failed", "file", file.Path, "error", err)
				mu.Lock()
				stats.ErrorMessages = append(stats.ErrorMessages, fmt.Sprintf("%s: %v", file.Path, err))
				mu.Unlock()
				return
			}

			atomic.AddInt64(&upserted, int64(res.upserted))
			atomic.AddInt64(&deleted, int64(res.deleted))
			atomic.AddInt64(&skipped, int64(res.unchanged))
			atomic.AddInt64(&chunksFailed, int64(res.failed))
			switch {
			case res.upserted > 0 || res.deleted > 0:
				atomic.AddInt64(&indexed, 1)
			case res.failed > 0:
				atomic.AddInt64(&failed, 1)
			default:
				atomic.AddInt64(&unchanged, 1)
			}
		})
		if submitErr != nil {
			wg.Done()
			wg.Wait()
			return nil, fmt.Errorf("submit work: %w", submitErr)
		}
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Purge files the manifest knows but the walk no longer saw. After
	// an aborted walk "unseen" is meaningless, so nothing is purged.
	if walkAborted {
		idx.logger.Warn("walk aborted early, skipping deleted-file purge")
	} else {
		known, err := idx.manifest.Files(ctx)
		if err != nil {
			return nil, fmt.Errorf("list manifest files: %w", err)
		}
		for _, path := range known {
			if seen[path] {
				continue
			}
			n, err := idx.DeleteFile(ctx, path)
			if err != nil {
				return nil, err
			}
			stats.FilesDeleted++
			atomic.AddInt64(&deleted, int64(n))
		}
	}

	stats.FilesScanned = int(scanned)
	stats.FilesIndexed = int(indexed)
	stats.FilesUnchanged = int(unchanged)
	stats.FilesFailed = int(failed)
	stats.ChunksUpserted = int(upserted)
	stats.ChunksDeleted = int(deleted)
	stats.ChunksUnchanged = int(skipped)
	stats.ChunksFailed = int(chunksFailed)
	stats.Duration = time.Since(start)

	idx.logger.Info("reconcile complete",
		"files_scanned", stats.FilesScanned,
		"files_indexed", stats.FilesIndexed,
		"files_failed", stats.FilesFailed,
		"chunks_upserted", stats.ChunksUpserted,
		"chunks_deleted", stats.ChunksDeleted,
		"chunks_unchanged", stats.ChunksUnchanged,
		"chunks_failed", stats.ChunksFailed,
		"duration", stats.Duration)

	return stats, nil
}

type fileResult struct {
	upserted  int
	deleted   int
	unchanged int
	failed    int
}

// reconcileFile diffs one file's fresh segmentation against the
// manifest and applies the minimal store writes. Vector deletes and
// upserts land before the manifest is replaced, so a crash in between
// re-does work on the next run instead of losing it.
func (idx *Indexer) reconcileFile(ctx context.Context, f source.File) (fileResult, error) {
	var res fileResult

	chunks, err := idx.segmenter.Segment(f)
	if err != nil {
		return res, err
	}

	old, err := idx.manifest.FileEntries(ctx, f.Path)
	if err != nil {
		return res, err
	}

	fresh := make(map[string]types.Chunk, len(chunks))
	for _, c := range chunks {
		fresh[c.ID] = c
	}

	var stale []string
	for id := range old {
		if _, ok := fresh[id]; !ok {
			stale = append(stale, id)
		}
	}

	var toEmbed []types.Chunk
	for _, c := range chunks {
		prev, existed := old[c.ID]
		if existed && prev.ContentHash == c.HashHex() {
			res.unchanged++
			continue
		}
		toEmbed = append(toEmbed, c)
	}

	// Nothing changed: no writes at all.
	if len(stale) == 0 && len(toEmbed) == 0 {
		return res, nil
	}

	// Deletes first so a removed symbol never outlives its file state.
	if len(stale) > 0 {
		if err := idx.store.Delete(ctx, idx.collection, stale); err != nil {
			return res, fmt.Errorf("%w: delete stale chunks: %v", types.ErrIndexInconsistency, err)
		}
		res.deleted = len(stale)
	}

	failedIDs := make(map[string]bool)
	if len(toEmbed) > 0 {
		points, failed, err := idx.buildPoints(ctx, toEmbed)
		if err != nil {
			return res, err
		}
		for _, id := range failed {
			failedIDs[id] = true
		}
		res.failed = len(failed)
		if len(points) > 0 {
			if err := idx.store.Upsert(ctx, idx.collection, points); err != nil {
				return res, fmt.Errorf("%w: upsert chunks: %v", types.ErrIndexInconsistency, err)
			}
			res.upserted = len(points)
		}
	}

	// Manifest last. Chunks whose embedding failed stay out of the
	// manifest so the next run retries them.
	entries := make([]manifest.Entry, 0, len(chunks))
	for _, c := range chunks {
		if failedIDs[c.ID] {
			continue
		}
		entries = append(entries, manifest.EntryFromChunk(c))
	}
	if err := idx.manifest.ReplaceFile(ctx, f.Path, entries); err != nil {
		return res, fmt.Errorf("update manifest: %w", err)
	}

	return res, nil
}

// buildPoints embeds chunks and assembles store points. Embedding
// input and stored text are both capped at maxChunkChars so one huge
// function cannot dominate an embedding or a context window.
//
// A failing batch falls back to per-chunk embedding: chunks that still
// fail are logged and returned as failed IDs, and their siblings index
// normally. The error return is reserved for cancellation.
func (idx *Indexer) buildPoints(ctx context.Context, chunks []types.Chunk) ([]vectorstore.Point, []string, error) {
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = embedText(c, idx.maxChunkChars)
	}

	dense, err := idx.embed.EmbedDense(ctx, texts)
	if err != nil {
		if ctx.Err() != nil {
			return nil, nil, err
		}
		return idx.buildPointsPerChunk(ctx, chunks, texts)
	}
	sparse, err := idx.embed.EmbedSparse(ctx, texts)
	if err != nil {
		return nil, nil, err
	}

	points := make([]vectorstore.Point, len(chunks))
	for i, c := range chunks {
		points[i] = vectorstore.Point{
			ID:      c.ID,
			Dense:   dense[i],
			Sparse:  sparse[i],
			Payload: payloadFromChunk(c, idx.maxChunkChars),
		}
	}
	return points, nil, nil
}

// buildPointsPerChunk embeds one chunk at a time so a single poisoned
// chunk cannot take the rest of its file down with it.
func (idx *Indexer) buildPointsPerChunk(ctx context.Context, chunks []types.Chunk, texts []string) ([]vectorstore.Point, []string, error) {
	points := make([]vectorstore.Point, 0, len(chunks))
	var failed []string

	for i, c := range chunks {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}

		dense, err := idx.embed.EmbedDenseOne(ctx, texts[i])
		if err != nil {
			idx.logger.Warn("chunk embedding failed, excluded from run",
				"file", c.FilePath, "symbol", c.SymbolPath(), "error", err)
			failed = append(failed, c.ID)
			continue
		}
		sparse, err := idx.embed.EmbedSparseOne(ctx, texts[i])
		if err != nil {
			idx.logger.Warn("chunk embedding failed, excluded from run",
				"file", c.FilePath, "symbol", c.SymbolPath(), "error", err)
			failed = append(failed, c.ID)
			continue
		}

		points = append(points, vectorstore.Point{
			ID:      c.ID,
			Dense:   dense,
			Sparse:  sparse,
			Payload: payloadFromChunk(c, idx.maxChunkChars),
		})
	}
	return points, failed, nil
}

// DeleteFile removes a file's chunks from the store and the manifest,
// in that order. It returns the number of chunks removed.
func (idx *Indexer) DeleteFile(ctx context.Context, filePath string) (int, error) {
	entries, err := idx.manifest.FileEntries(ctx, filePath)
	if err != nil {
		return 0, err
	}

	if err := idx.store.DeleteByFilter(ctx, idx.collection, vectorstore.FilterByField("file_path", filePath)); err != nil {
		return 0, fmt.Errorf("delete file vectors: %w", err)
	}
	if err := idx.manifest.DeleteFile(ctx, filePath); err != nil {
		return 0, fmt.Errorf("delete file manifest: %w", err)
	}
	return len(entries), nil
}

// RebuildManifest reconstructs the manifest from the vector store
// contents. Used when the manifest database is lost or suspected to
// diverge; afterwards a normal Reconcile converges the index.
func (idx *Indexer) RebuildManifest(ctx context.Context) (int, error) {
	points, err := idx.store.Scroll(ctx, idx.collection, nil, 0)
	if err != nil {
		if errors.Is(err, vectorstore.ErrCollectionNotFound) {
			return 0, nil
		}
		return 0, fmt.Errorf("scroll collection: %w", err)
	}

	byFile := make(map[string][]manifest.Entry)
	for _, p := range points {
		pl := p.Payload
		if pl.FilePath == "" {
			continue
		}
		byFile[pl.FilePath] = append(byFile[pl.FilePath], manifest.Entry{
			ChunkID:     p.ID,
			FilePath:    pl.FilePath,
			SymbolPath:  pl.SymbolName,
			Kind:        pl.Kind,
			ContentHash: pl.ContentHash,
		})
	}

	if err := idx.manifest.Reset(ctx); err != nil {
		return 0, err
	}
	total := 0
	for path, entries := range byFile {
		if err := idx.manifest.ReplaceFile(ctx, path, entries); err != nil {
			return total, err
		}
		total += len(entries)
	}

	idx.logger.Info("manifest rebuilt", "files", len(byFile), "chunks", total)
	return total, nil
}

// Status reports the current index size from the store and manifest.
func (idx *Indexer) Status(ctx context.Context) (points int, files int, chunks int, err error) {
	points, err = idx.store.Count(ctx, idx.collection)
	if err != nil && !errors.Is(err, vectorstore.ErrCollectionNotFound) {
		return 0, 0, 0, err
	}
	files, chunks, err = idx.manifest.Counts(ctx)
	if err != nil {
		return 0, 0, 0, err
	}
	return points, files, chunks, nil
}

// embedText is the text a chunk is embedded under: a small header so
// file and symbol names carry lexical weight, then capped source.
func embedText(c types.Chunk, maxChars int) string {
	header := fmt.Sprintf("%s %s\n", c.FilePath, c.SymbolPath())
	text := c.SourceText
	if len(text) > maxChars {
		text = text[:maxChars]
	}
	return header + text
}

func payloadFromChunk(c types.Chunk, maxChars int) types.Payload {
	text := c.SourceText
	if len(text) > maxChars {
		text = text[:maxChars]
	}
	return types.Payload{
		FilePath:     c.FilePath,
		SymbolName:   c.SymbolPath(),
		ParentSymbol: c.ParentSymbol,
		Kind:         c.Kind,
		StartLine:    c.StartLine,
		EndLine:      c.EndLine,
		SourceText:   text,
		ContentHash:  c.HashHex(),
		Language:     c.Language,
	}
}
