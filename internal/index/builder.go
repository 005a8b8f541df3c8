// Package index builds the corpus: scan roots, load and filter
// documents, extract metadata, chunk, embed, and persist.
package index

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"github.com/dkallur/srcindex/internal/chunk"
	"github.com/dkallur/srcindex/internal/config"
	"github.com/dkallur/srcindex/internal/embed"
	srcerrors "github.com/dkallur/srcindex/internal/errors"
	"github.com/dkallur/srcindex/internal/extract"
	"github.com/dkallur/srcindex/internal/scanner"
	"github.com/dkallur/srcindex/internal/search"
	"github.com/dkallur/srcindex/internal/store"
)

// Stage identifies where a refresh currently is.
type Stage string

const (
	StageIdle       Stage = "idle"
	StageScanning   Stage = "scanning"
	StageLoading    Stage = "loading"
	StageFiltering  Stage = "filtering"
	StageEmbedding  Stage = "embedding"
	StagePersisting Stage = "persisting"
	StageDone       Stage = "done"
	StageFailed     Stage = "failed"
)

// RefreshStats reports the outcome of one refresh.
type RefreshStats struct {
	Success       bool
	Elapsed       time.Duration
	TotalFiles    int            // Files discovered across all roots
	IndexedFiles  int            // Documents that made it into the corpus
	ExcludedFiles int            // Generated files plus load failures
	PathStats     map[string]int // Per-root discovered file counts
	NumRepos      int            // Roots that contributed at least one file
	Err           error          // Set when Success is false
}

// Builder orchestrates the indexing pipeline and owns the corpus.
type Builder struct {
	cfg       *config.Config
	scanner   *scanner.Scanner
	filter    *scanner.ContentFilter
	extractor extract.Extractor
	chunker   *chunk.Chunker
	embedder  embed.Embedder
	engine    *search.Engine
	logger    *slog.Logger

	mu     sync.Mutex
	corpus *store.Corpus
	stage  Stage
}

// NewBuilder creates a Builder. The engine may be nil when no search
// side exists (pure indexing); when set, every refresh invalidates its
// sparse cache and hands it the fresh corpus.
func NewBuilder(cfg *config.Config, embedder embed.Embedder, engine *search.Engine, logger *slog.Logger) *Builder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{
		cfg: cfg,
		scanner: scanner.New(scanner.Config{
			Extension:         cfg.Scan.Extension,
			ExcludedDirs:      cfg.Scan.ExcludedDirs,
			GeneratedSuffixes: cfg.Scan.GeneratedSuffixes,
		}, logger),
		filter:    scanner.NewContentFilter(cfg.Filter.HeaderCheckChars, cfg.Filter.GeneratedMarkers, logger),
		extractor: extract.NewRegexExtractor(cfg.Metadata.MaxFieldLength, logger),
		chunker:   chunk.New(cfg.Chunk.Lines, cfg.Chunk.OverlapLines),
		embedder:  embedder,
		engine:    engine,
		logger:    logger,
		stage:     StageIdle,
	}
}

// Stage returns the current pipeline stage.
func (b *Builder) Stage() Stage {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stage
}

func (b *Builder) setStage(s Stage) {
	b.mu.Lock()
	b.stage = s
	b.mu.Unlock()
}

// Corpus returns the current corpus, or nil before the first open.
func (b *Builder) Corpus() *store.Corpus {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.corpus
}

// ParseRoots splits a raw multi-root string into cleaned paths.
// Newlines take precedence over commas; a string without either is a
// single path. Entries are trimmed and empties dropped.
func ParseRoots(raw string) []string {
	var parts []string
	switch {
	case strings.Contains(raw, "\n"):
		parts = strings.Split(raw, "\n")
	case strings.Contains(raw, ","):
		parts = strings.Split(raw, ",")
	default:
		parts = []string{raw}
	}

	roots := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			roots = append(roots, p)
		}
	}
	return roots
}

// Refresh rebuilds the corpus from the given roots (a delimited
// multi-root string). Missing roots are skipped with a zero count;
// per-file load failures are logged and skipped. The previous corpus
// stays queryable until the new one is persisted; there is no partial
// rollback on failure. On success the engine's sparse cache is
// invalidated so the next search sees the new corpus.
func (b *Builder) Refresh(ctx context.Context, roots string) *RefreshStats {
	start := time.Now()

	fail := func(err error) *RefreshStats {
		b.setStage(StageFailed)
		b.logger.Error("refresh failed",
			slog.String("error", err.Error()),
			slog.Duration("elapsed", time.Since(start)))
		return &RefreshStats{
			Success: false,
			Elapsed: time.Since(start),
			Err:     err,
		}
	}

	parsed := ParseRoots(roots)
	if len(parsed) == 0 {
		return fail(srcerrors.NoValidPathsError())
	}

	// One refresh at a time across processes: the collection dir is
	// locked for the whole rebuild.
	dir := b.cfg.CollectionDir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fail(srcerrors.Wrap(srcerrors.ErrCodeLoadFailed, err))
	}
	lock := flock.New(filepath.Join(dir, "refresh.lock"))
	locked, err := lock.TryLockContext(ctx, 500*time.Millisecond)
	if err != nil || !locked {
		return fail(srcerrors.Newf(srcerrors.ErrCodeLoadFailed,
			"could not acquire refresh lock for %s", dir))
	}
	defer func() { _ = lock.Unlock() }()

	// Scan every root; missing roots count zero instead of aborting.
	b.setStage(StageScanning)
	pathStats := make(map[string]int, len(parsed))
	var allFiles []string
	filesByRoot := make(map[string][]string, len(parsed))
	for _, root := range parsed {
		files, err := b.scanner.Scan(ctx, root)
		if err != nil {
			if ctx.Err() != nil {
				return fail(ctx.Err())
			}
			b.logger.Warn("skipping unreadable root",
				slog.String("root", root),
				slog.String("error", err.Error()))
			pathStats[root] = 0
			continue
		}
		pathStats[root] = len(files)
		filesByRoot[root] = files
		allFiles = append(allFiles, files...)
	}

	if len(allFiles) == 0 {
		return fail(srcerrors.NoFilesFoundError(b.cfg.Scan.Extension))
	}

	numRepos := 0
	for _, count := range pathStats {
		if count > 0 {
			numRepos++
		}
	}

	// Load documents and attach metadata.
	b.setStage(StageLoading)
	docs := b.loadDocuments(ctx, parsed, allFiles)
	if ctx.Err() != nil {
		return fail(ctx.Err())
	}

	// Content-based generated-file filter.
	b.setStage(StageFiltering)
	kept, err := b.filter.Filter(docs)
	if err != nil {
		return fail(err)
	}
	// Counts generated files and load failures alike, so the three file
	// counts always add up.
	excluded := len(allFiles) - len(kept)

	// Chunk, embed, and persist.
	b.setStage(StageEmbedding)
	nodes := make([]*store.Node, 0, len(kept))
	for _, doc := range kept {
		nodes = append(nodes, b.chunker.Split(doc)...)
	}

	corpus, err := b.rebuildCorpus(ctx, dir, nodes)
	if err != nil {
		return fail(err)
	}

	b.mu.Lock()
	old := b.corpus
	b.corpus = corpus
	b.mu.Unlock()
	if old != nil && old != corpus {
		_ = old.Close()
	}

	if b.engine != nil {
		b.engine.SetCorpus(corpus)
		b.engine.SetNodes(nodes)
		b.engine.InvalidateSparse()
	}

	b.setStage(StageDone)
	stats := &RefreshStats{
		Success:       true,
		Elapsed:       time.Since(start),
		TotalFiles:    len(allFiles),
		IndexedFiles:  len(kept),
		ExcludedFiles: excluded,
		PathStats:     pathStats,
		NumRepos:      numRepos,
	}

	b.logger.Info("refresh complete",
		slog.Int("total_files", stats.TotalFiles),
		slog.Int("indexed_files", stats.IndexedFiles),
		slog.Int("excluded_files", stats.ExcludedFiles),
		slog.Int("num_repos", stats.NumRepos),
		slog.Duration("elapsed", stats.Elapsed))

	return stats
}

// loadDocuments reads files and attaches extracted metadata. Per-file
// failures are logged and the file skipped; a bad file never aborts the
// batch.
func (b *Builder) loadDocuments(ctx context.Context, roots []string, files []string) []*store.Document {
	docs := make([]*store.Document, 0, len(files))
	indexedAt := time.Now().UTC().Format(time.RFC3339)
	for _, path := range files {
		if ctx.Err() != nil {
			return docs
		}

		data, err := os.ReadFile(path)
		if err != nil {
			b.logger.Warn("skipping unreadable file",
				slog.String("error", srcerrors.LoadError(path, err).Error()))
			continue
		}
		text := string(data)

		meta := b.extractor.Extract(text)
		meta["file_path"] = path
		meta["source_repo"] = sourceRepo(roots, path)
		meta["indexed_at"] = indexedAt

		docs = append(docs, &store.Document{
			ID:       chunk.DocID(path),
			Path:     path,
			Text:     text,
			Metadata: meta,
		})
	}
	return docs
}

// sourceRepo names the repository a file belongs to: the base name of
// the first root that contains it, else "unknown".
func sourceRepo(roots []string, path string) string {
	for _, root := range roots {
		rel, err := filepath.Rel(root, path)
		if err != nil {
			continue
		}
		if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			continue
		}
		return filepath.Base(filepath.Clean(root))
	}
	return "unknown"
}

// rebuildCorpus replaces the persisted corpus with the given nodes:
// clear the node store, re-embed everything batch by batch, and save
// the fresh vector index atomically.
func (b *Builder) rebuildCorpus(ctx context.Context, dir string, nodes []*store.Node) (*store.Corpus, error) {
	nodeStore, err := store.NewSQLiteNodeStore(filepath.Join(dir, "nodes.db"))
	if err != nil {
		return nil, srcerrors.Wrap(srcerrors.ErrCodeLoadFailed, err)
	}

	vectors, err := store.NewHNSWIndex(store.DefaultVectorIndexConfig(b.embedder.Dimensions()))
	if err != nil {
		_ = nodeStore.Close()
		return nil, srcerrors.Wrap(srcerrors.ErrCodeLoadFailed, err)
	}

	corpus := &store.Corpus{Dir: dir, Nodes: nodeStore, Vectors: vectors}

	cleanup := func(err error) (*store.Corpus, error) {
		_ = corpus.Close()
		return nil, err
	}

	if err := nodeStore.Clear(ctx); err != nil {
		return cleanup(srcerrors.Wrap(srcerrors.ErrCodeLoadFailed, err))
	}

	batchSize := b.batchSize(nodeStore.MaxBatchSize())
	for start := 0; start < len(nodes); start += batchSize {
		if ctx.Err() != nil {
			return cleanup(ctx.Err())
		}

		end := start + batchSize
		if end > len(nodes) {
			end = len(nodes)
		}
		batch := nodes[start:end]

		texts := make([]string, len(batch))
		ids := make([]string, len(batch))
		for i, node := range batch {
			texts[i] = node.Text
			ids[i] = node.ID
		}

		embeddings, err := b.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return cleanup(srcerrors.Wrap(srcerrors.ErrCodeEmbedFailed, err))
		}

		if err := vectors.Add(ctx, ids, embeddings); err != nil {
			return cleanup(srcerrors.Wrap(srcerrors.ErrCodeEmbedFailed, err))
		}
		if err := nodeStore.Put(ctx, batch); err != nil {
			return cleanup(srcerrors.Wrap(srcerrors.ErrCodeLoadFailed, err))
		}
	}

	b.setStage(StagePersisting)
	if err := corpus.Save(); err != nil {
		return cleanup(srcerrors.Wrap(srcerrors.ErrCodeLoadFailed, err))
	}

	return corpus, nil
}

// batchSize derives the embedding batch size from the store's
// advertised maximum: min(ceiling, advertised/divisor), or the default
// when nothing is advertised.
func (b *Builder) batchSize(advertisedMax int) int {
	cfg := b.cfg.Embeddings
	if advertisedMax <= 0 {
		return cfg.BatchDefault
	}
	size := advertisedMax / cfg.BatchDivisor
	if size > cfg.BatchCeiling {
		size = cfg.BatchCeiling
	}
	if size < 1 {
		size = 1
	}
	return size
}

// Open loads an existing corpus from the collection directory without
// rebuilding, wiring it into the engine. Returns an index-not-found
// error when nothing has been persisted yet.
func (b *Builder) Open() error {
	dir := b.cfg.CollectionDir()
	if !store.CorpusExists(dir) {
		return srcerrors.IndexNotFoundError(b.cfg.Storage.Collection)
	}

	corpus, err := store.OpenCorpus(dir, store.DefaultVectorIndexConfig(b.embedder.Dimensions()))
	if err != nil {
		return srcerrors.Wrap(srcerrors.ErrCodeLoadFailed, err)
	}

	b.mu.Lock()
	old := b.corpus
	b.corpus = corpus
	b.mu.Unlock()
	if old != nil {
		_ = old.Close()
	}

	if b.engine != nil {
		b.engine.SetCorpus(corpus)
	}
	return nil
}

// Close releases the corpus.
func (b *Builder) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.corpus != nil {
		err := b.corpus.Close()
		b.corpus = nil
		return err
	}
	return nil
}
