package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dkallur/srcindex/internal/embed"
	srcerrors "github.com/dkallur/srcindex/internal/errors"
	"github.com/dkallur/srcindex/internal/store"
)

// Engine is the hybrid retriever. Dense retrieval always runs against
// the persisted vector index; sparse retrieval runs against a BM25
// cache built lazily from in-memory nodes (right after a refresh) or
// read back from the node store, and invalidated whenever the corpus
// changes.
type Engine struct {
	corpus      *store.Corpus
	embedder    embed.Embedder
	reranker    Reranker
	synthesizer Synthesizer
	config      EngineConfig
	fusion      *RRFFusion
	logger      *slog.Logger

	mu       sync.Mutex
	sparse   store.SparseIndex
	memNodes []*store.Node // nodes from the last refresh, if still in memory
}

// ErrNilDependency is returned when a required dependency is nil.
var ErrNilDependency = errors.New("nil dependency")

// EngineOption configures the engine.
type EngineOption func(*Engine)

// WithReranker sets the reranking stage. A nil reranker disables it.
func WithReranker(r Reranker) EngineOption {
	return func(e *Engine) { e.reranker = r }
}

// WithSynthesizer sets the answer synthesis stage. A nil synthesizer
// disables it.
func WithSynthesizer(s Synthesizer) EngineOption {
	return func(e *Engine) { e.synthesizer = s }
}

// WithLogger sets the engine logger.
func WithLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) { e.logger = l }
}

// NewEngine creates a hybrid engine over the given corpus. The corpus
// may be nil when no index has been built yet; searches then fail with
// an index-not-found error until SetCorpus is called.
func NewEngine(corpus *store.Corpus, embedder embed.Embedder, config EngineConfig, opts ...EngineOption) (*Engine, error) {
	if embedder == nil {
		return nil, fmt.Errorf("%w: embedder is required", ErrNilDependency)
	}

	e := &Engine{
		corpus:   corpus,
		embedder: embedder,
		config:   config,
		fusion:   NewRRFFusion(config.RRFConstant),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// SetCorpus swaps in a corpus, dropping the cached sparse index and any
// in-memory nodes from a previous refresh so the next sparse build reads
// the new corpus instead.
func (e *Engine) SetCorpus(corpus *store.Corpus) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.corpus = corpus
	e.memNodes = nil
	e.dropSparseLocked()
}

// SetNodes hands the engine the freshly indexed nodes so the next
// sparse build can skip reading the node store.
func (e *Engine) SetNodes(nodes []*store.Node) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.memNodes = nodes
}

// InvalidateSparse drops the cached sparse index. Called after every
// refresh so stale BM25 state never serves a query.
func (e *Engine) InvalidateSparse() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.dropSparseLocked()
}

func (e *Engine) dropSparseLocked() {
	if e.sparse != nil {
		_ = e.sparse.Close()
		e.sparse = nil
	}
}

// Search runs the full retrieval pipeline: dense + sparse retrieval in
// parallel, RRF fusion, optional rerank, optional synthesis.
//
// Only corpus-level failures produce Success=false. A failing stage
// degrades: sparse down means dense-only retrieval, rerank failure
// passes fused order through, synthesis failure returns retrieval
// results with a marker. Results are ordered by the last stage that
// actually executed.
func (e *Engine) Search(ctx context.Context, query string, topK int) *Result {
	start := time.Now()

	query = strings.TrimSpace(query)
	if query == "" {
		return &Result{Success: true, Nodes: []*ScoredNode{}}
	}
	if topK <= 0 {
		topK = e.config.TopK
	}

	e.mu.Lock()
	corpus := e.corpus
	e.mu.Unlock()

	if corpus == nil || !e.corpusPopulated(ctx, corpus) {
		return &Result{Success: false, Err: srcerrors.IndexNotFoundError("")}
	}

	fetchK := topK * e.config.VectorMultiplier

	sparseIdx := e.ensureSparse(ctx, corpus)

	sparseResults, vecResults, searchErr := e.parallelSearch(ctx, sparseIdx, query, fetchK)
	if searchErr != nil && sparseResults == nil && vecResults == nil {
		return &Result{
			Success: false,
			Err:     srcerrors.Wrap(srcerrors.ErrCodeRetrieverBuild, searchErr),
		}
	}

	fused := e.fusion.Fuse(sparseResults, vecResults)
	if len(fused) > fetchK {
		fused = fused[:fetchK]
	}

	fused = e.rerankResults(ctx, corpus, query, topK, fused)

	if len(fused) > topK {
		fused = fused[:topK]
	}

	nodes, err := e.enrichResults(ctx, corpus, fused)
	if err != nil {
		return &Result{Success: false, Err: err}
	}

	responseText := e.synthesizeResponse(ctx, query, nodes)

	e.logger.Debug("search complete",
		slog.String("query", query),
		slog.Int("results", len(nodes)),
		slog.Duration("elapsed", time.Since(start)))

	return &Result{
		ResponseText: responseText,
		Nodes:        nodes,
		Success:      true,
	}
}

// corpusPopulated reports whether anything has ever been indexed.
func (e *Engine) corpusPopulated(ctx context.Context, corpus *store.Corpus) bool {
	if corpus.Vectors.Count() > 0 {
		return true
	}
	count, err := corpus.Nodes.Count(ctx)
	return err == nil && count > 0
}

// ensureSparse returns the cached BM25 index, building it on first use.
// The build prefers in-memory nodes from the last refresh and falls
// back to reading every node from the store. The index is populated
// fully before being published under the lock. A failed build is a
// degradation, not an error: the caller gets nil and retrieval
// continues dense-only.
func (e *Engine) ensureSparse(ctx context.Context, corpus *store.Corpus) store.SparseIndex {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.sparse != nil {
		return e.sparse
	}

	nodes := e.memNodes
	if len(nodes) == 0 {
		var err error
		nodes, err = corpus.Nodes.GetAll(ctx)
		if err != nil {
			e.logger.Warn("sparse index build failed, degrading to dense-only retrieval",
				slog.String("error", srcerrors.Wrap(srcerrors.ErrCodeRetrieverBuild, err).Error()))
			return nil
		}
	}

	idx, err := store.NewBleveSparseIndex(store.DefaultSparseConfig())
	if err == nil {
		err = idx.Index(ctx, nodes)
	}
	if err != nil {
		e.logger.Warn("sparse index build failed, degrading to dense-only retrieval",
			slog.String("error", srcerrors.Wrap(srcerrors.ErrCodeRetrieverBuild, err).Error()))
		if idx != nil {
			_ = idx.Close()
		}
		return nil
	}

	e.sparse = idx
	return e.sparse
}

// parallelSearch runs sparse and dense retrieval concurrently. A
// single-side failure degrades to the other side's results; the error
// is returned for logging only.
func (e *Engine) parallelSearch(ctx context.Context, sparseIdx store.SparseIndex, query string, limit int) (
	sparseResults []*store.SparseResult,
	vecResults []*store.VectorResult,
	err error,
) {
	g, gctx := errgroup.WithContext(ctx)

	var sparseErr, vecErr error

	if sparseIdx != nil {
		g.Go(func() error {
			var searchErr error
			sparseResults, searchErr = sparseIdx.Search(gctx, query, limit)
			if searchErr != nil {
				sparseErr = searchErr
				// Dense retrieval continues regardless.
			}
			return nil
		})
	}

	g.Go(func() error {
		embedding, embedErr := e.embedder.Embed(gctx, query)
		if embedErr != nil {
			vecErr = embedErr
			return nil
		}

		var searchErr error
		e.mu.Lock()
		corpus := e.corpus
		e.mu.Unlock()
		vecResults, searchErr = corpus.Vectors.Search(gctx, embedding, limit)
		if searchErr != nil {
			vecErr = searchErr
		}
		return nil
	})

	if waitErr := g.Wait(); waitErr != nil {
		return nil, nil, waitErr
	}

	if sparseErr != nil && vecErr != nil {
		return nil, nil, errors.Join(sparseErr, vecErr)
	}

	if sparseErr != nil {
		e.logger.Warn("sparse retrieval failed, continuing dense-only",
			slog.String("error", sparseErr.Error()))
		err = sparseErr
	} else if vecErr != nil {
		e.logger.Warn("dense retrieval failed, continuing sparse-only",
			slog.String("error", vecErr.Error()))
		err = vecErr
	}

	return sparseResults, vecResults, err
}

// rerankResults rescores fused candidates and keeps topK*RerankRatio of
// them. Any failure passes the fused order through unchanged.
func (e *Engine) rerankResults(ctx context.Context, corpus *store.Corpus, query string, topK int, fused []*FusedResult) []*FusedResult {
	if !e.config.Rerank || e.reranker == nil {
		return fused
	}
	if len(fused) < 2 {
		return fused
	}
	if !e.reranker.Available(ctx) {
		e.logger.Debug("reranker unavailable, keeping fused order")
		return fused
	}

	keep := int(float64(topK) * e.config.RerankRatio)
	if keep < 1 {
		keep = 1
	}

	ids := make([]string, len(fused))
	for i, f := range fused {
		ids[i] = f.NodeID
	}

	nodes, err := corpus.Nodes.Get(ctx, ids)
	if err != nil {
		e.logger.Warn("rerank skipped: node fetch failed",
			slog.String("error", srcerrors.Wrap(srcerrors.ErrCodeRerankFailed, err).Error()))
		return fused
	}

	textByID := make(map[string]string, len(nodes))
	for _, node := range nodes {
		textByID[node.ID] = node.Text
	}

	documents := make([]string, 0, len(fused))
	validFused := make([]*FusedResult, 0, len(fused))
	for _, f := range fused {
		if text, ok := textByID[f.NodeID]; ok && text != "" {
			documents = append(documents, text)
			validFused = append(validFused, f)
		}
	}
	if len(documents) == 0 {
		return fused
	}

	reranked, err := e.reranker.Rerank(ctx, query, documents, keep)
	if err != nil {
		e.logger.Warn("reranking failed, keeping fused order",
			slog.String("error", srcerrors.Wrap(srcerrors.ErrCodeRerankFailed, err).Error()))
		return fused
	}

	results := make([]*FusedResult, 0, len(reranked))
	for _, rr := range reranked {
		if rr.Index < 0 || rr.Index >= len(validFused) {
			continue
		}
		f := validFused[rr.Index]
		f.RRFScore = rr.Score
		results = append(results, f)
	}

	return results
}

// enrichResults fetches node payloads for the final candidates in one
// batch, preserving ranking order.
func (e *Engine) enrichResults(ctx context.Context, corpus *store.Corpus, fused []*FusedResult) ([]*ScoredNode, error) {
	if len(fused) == 0 {
		return []*ScoredNode{}, nil
	}

	ids := make([]string, len(fused))
	for i, f := range fused {
		ids[i] = f.NodeID
	}

	nodes, err := corpus.Nodes.Get(ctx, ids)
	if err != nil {
		return nil, srcerrors.Wrap(srcerrors.ErrCodeRetrieverBuild, err)
	}

	nodeByID := make(map[string]*store.Node, len(nodes))
	for _, node := range nodes {
		nodeByID[node.ID] = node
	}

	results := make([]*ScoredNode, 0, len(fused))
	for _, f := range fused {
		node, ok := nodeByID[f.NodeID]
		if !ok {
			continue
		}
		results = append(results, &ScoredNode{
			Node:         node,
			Score:        f.RRFScore,
			BM25Score:    f.BM25Score,
			VecScore:     f.VecScore,
			BM25Rank:     f.BM25Rank,
			VecRank:      f.VecRank,
			InBothLists:  f.InBothLists,
			MatchedTerms: f.MatchedTerms,
		})
	}

	return results, nil
}

// synthesizeResponse generates an answer over the retrieved nodes when
// synthesis is enabled. On failure the result keeps the retrieval
// payload and carries an explicit marker instead.
func (e *Engine) synthesizeResponse(ctx context.Context, query string, scored []*ScoredNode) string {
	if !e.config.Synthesize || e.synthesizer == nil || len(scored) == 0 {
		return ""
	}

	nodes := make([]*store.Node, len(scored))
	for i, s := range scored {
		nodes[i] = s.Node
	}

	answer, err := e.synthesizer.Synthesize(ctx, query, nodes)
	if err != nil {
		e.logger.Warn("synthesis failed, returning retrieval-only result",
			slog.String("error", srcerrors.Wrap(srcerrors.ErrCodeSynthesisFailed, err).Error()))
		return SynthesisUnavailableMarker
	}
	return answer
}

// Close releases the engine's cached sparse index. The corpus is owned
// by the caller.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.dropSparseLocked()
	return nil
}
