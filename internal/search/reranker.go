package search

import (
	"context"
	"sort"

	"github.com/dkallur/srcindex/internal/store"
)

// RerankResult is one reranked document.
type RerankResult struct {
	Index    int     // Position in the input document list
	Score    float64 // Relevance score, higher is better
	Document string  // The document text
}

// Reranker rescores retrieved documents against the query.
type Reranker interface {
	// Rerank scores documents and returns them sorted by score
	// descending, truncated to topK (0 returns all).
	Rerank(ctx context.Context, query string, documents []string, topK int) ([]RerankResult, error)

	// Available reports whether the reranker is ready to serve.
	Available(ctx context.Context) bool

	Close() error
}

// NoOpReranker preserves the input order with decreasing scores. Used
// when reranking is configured off but a Reranker is still required.
type NoOpReranker struct{}

// Rerank implements Reranker.
func (n *NoOpReranker) Rerank(ctx context.Context, query string, documents []string, topK int) ([]RerankResult, error) {
	results := make([]RerankResult, len(documents))
	for i, doc := range documents {
		results[i] = RerankResult{
			Index:    i,
			Score:    1.0 - float64(i)*0.01,
			Document: doc,
		}
	}
	if topK > 0 && len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

// Available implements Reranker.
func (n *NoOpReranker) Available(ctx context.Context) bool { return true }

// Close implements Reranker.
func (n *NoOpReranker) Close() error { return nil }

var _ Reranker = (*NoOpReranker)(nil)

// TermOverlapReranker scores documents by code-token overlap with the
// query. Deterministic and offline; the default reranker.
type TermOverlapReranker struct{}

// NewTermOverlapReranker creates the default reranker.
func NewTermOverlapReranker() *TermOverlapReranker {
	return &TermOverlapReranker{}
}

// Rerank implements Reranker. The score is the fraction of distinct
// query tokens present in the document, with a small length prior so
// ties break toward shorter documents.
func (r *TermOverlapReranker) Rerank(ctx context.Context, query string, documents []string, topK int) ([]RerankResult, error) {
	queryTokens := store.TokenizeCode(query)
	querySet := make(map[string]struct{}, len(queryTokens))
	for _, t := range queryTokens {
		querySet[t] = struct{}{}
	}

	results := make([]RerankResult, len(documents))
	for i, doc := range documents {
		results[i] = RerankResult{
			Index:    i,
			Score:    r.score(querySet, doc),
			Document: doc,
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Index < results[j].Index
	})

	if topK > 0 && len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

func (r *TermOverlapReranker) score(querySet map[string]struct{}, doc string) float64 {
	if len(querySet) == 0 {
		return 0
	}

	docTokens := store.TokenizeCode(doc)
	docSet := make(map[string]struct{}, len(docTokens))
	for _, t := range docTokens {
		docSet[t] = struct{}{}
	}

	matched := 0
	for t := range querySet {
		if _, ok := docSet[t]; ok {
			matched++
		}
	}

	overlap := float64(matched) / float64(len(querySet))

	// Shorter documents with the same coverage rank higher.
	lengthPrior := 1.0 / (1.0 + float64(len(docTokens))/1000.0)
	return overlap * (0.9 + 0.1*lengthPrior)
}

// Available implements Reranker.
func (r *TermOverlapReranker) Available(ctx context.Context) bool { return true }

// Close implements Reranker.
func (r *TermOverlapReranker) Close() error { return nil }

var _ Reranker = (*TermOverlapReranker)(nil)
