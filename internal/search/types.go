// Package search implements hybrid retrieval: BM25 and dense vector
// search fused with Reciprocal Rank Fusion, optionally reranked and
// synthesized into a generated answer.
package search

import (
	"github.com/dkallur/srcindex/internal/store"
)

// ScoredNode is one retrieved node with its scores.
type ScoredNode struct {
	Node *store.Node

	// Score is the final score of the last executed stage.
	Score float64

	// BM25Score and VecScore preserve the per-source scores.
	BM25Score float64
	VecScore  float64

	// BM25Rank and VecRank are 1-indexed positions, 0 if absent.
	BM25Rank int
	VecRank  int

	// InBothLists marks nodes found by both retrievers.
	InBothLists bool

	// MatchedTerms are the BM25 query terms that hit this node.
	MatchedTerms []string
}

// Result is the outcome of one search call.
//
// Success is false only for corpus-level failures (no index built,
// both retrievers down). Degradations inside the pipeline — sparse
// unavailable, rerank failed, synthesis failed — keep Success true and
// are reflected in the payload instead.
type Result struct {
	// ResponseText is the synthesized answer, or a marker when
	// synthesis was unavailable, or "" when synthesis is disabled.
	ResponseText string

	// Nodes are the retrieved nodes in final ranking order.
	Nodes []*ScoredNode

	Success bool
	Err     error
}

// EngineConfig configures the hybrid engine.
type EngineConfig struct {
	// TopK is the default result count.
	TopK int

	// VectorMultiplier over-fetches candidates: both retrievers are
	// asked for TopK*VectorMultiplier before fusion.
	VectorMultiplier int

	// RerankRatio scales TopK into the post-rerank keep count.
	RerankRatio float64

	// RRFConstant is the fusion smoothing parameter k.
	RRFConstant int

	// Rerank enables the reranking stage.
	Rerank bool

	// Synthesize enables answer synthesis.
	Synthesize bool
}

// DefaultConfig returns sensible engine defaults.
func DefaultConfig() EngineConfig {
	return EngineConfig{
		TopK:             10,
		VectorMultiplier: 4,
		RerankRatio:      0.5,
		RRFConstant:      DefaultRRFConstant,
		Rerank:           true,
		Synthesize:       false,
	}
}
