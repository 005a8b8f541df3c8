package search

import (
	"sort"

	"github.com/dkallur/srcindex/internal/store"
)

// DefaultRRFConstant is the standard RRF smoothing parameter.
// k=60 is empirically validated across domains (Azure AI Search,
// OpenSearch).
const DefaultRRFConstant = 60

// FusedResult is one node after RRF fusion.
type FusedResult struct {
	NodeID       string
	RRFScore     float64  // Combined RRF score (normalized 0-1)
	BM25Score    float64  // Original BM25 score (preserved)
	BM25Rank     int      // Position in the BM25 list (1-indexed, 0 if absent)
	VecScore     float64  // Original vector similarity score (preserved)
	VecRank      int      // Position in the vector list (1-indexed, 0 if absent)
	InBothLists  bool     // Node appeared in both result lists
	MatchedTerms []string // BM25 matched terms
}

// RRFFusion combines sparse and dense results with Reciprocal Rank
// Fusion:
//
//	RRF_score(d) = Σ 1 / (k + rank_i)
//
// summed over the lists that actually contain d. A list that does not
// contain the node contributes nothing, so fusing against an empty
// list reduces exactly to the other list's ranking.
type RRFFusion struct {
	K int // smoothing constant (default: 60)
}

// NewRRFFusion creates an RRF fuser. If k <= 0, k defaults to 60.
func NewRRFFusion(k int) *RRFFusion {
	if k <= 0 {
		k = DefaultRRFConstant
	}
	return &RRFFusion{K: k}
}

// Fuse combines BM25 and vector results.
//
// Results are sorted by RRFScore (desc) → InBothLists (true first) →
// BM25Score (desc) → NodeID (asc), then normalized so the best score
// is 1.0.
func (f *RRFFusion) Fuse(sparse []*store.SparseResult, vec []*store.VectorResult) []*FusedResult {
	if len(sparse) == 0 && len(vec) == 0 {
		return []*FusedResult{}
	}

	scores := make(map[string]*FusedResult, len(sparse)+len(vec))

	for rank, r := range sparse {
		result := f.getOrCreate(scores, r.NodeID)
		result.BM25Score = r.Score
		result.BM25Rank = rank + 1
		result.MatchedTerms = r.MatchedTerms
		result.RRFScore += 1.0 / float64(f.K+rank+1)
	}

	for rank, r := range vec {
		result := f.getOrCreate(scores, r.ID)
		result.VecScore = float64(r.Score)
		result.VecRank = rank + 1
		result.RRFScore += 1.0 / float64(f.K+rank+1)

		if result.BM25Rank > 0 {
			result.InBothLists = true
		}
	}

	results := f.toSortedSlice(scores)
	f.normalize(results)

	return results
}

func (f *RRFFusion) getOrCreate(m map[string]*FusedResult, id string) *FusedResult {
	if r, ok := m[id]; ok {
		return r
	}
	r := &FusedResult{NodeID: id}
	m[id] = r
	return r
}

func (f *RRFFusion) toSortedSlice(m map[string]*FusedResult) []*FusedResult {
	results := make([]*FusedResult, 0, len(m))
	for _, r := range m {
		results = append(results, r)
	}

	sort.Slice(results, func(i, j int) bool {
		return f.compare(results[i], results[j])
	})

	return results
}

// compare orders results deterministically:
//  1. Higher RRF score
//  2. In both lists (true before false)
//  3. Higher BM25 score (exact-match indicator)
//  4. Lexicographically smaller NodeID
func (f *RRFFusion) compare(a, b *FusedResult) bool {
	if a.RRFScore != b.RRFScore {
		return a.RRFScore > b.RRFScore
	}
	if a.InBothLists != b.InBothLists {
		return a.InBothLists
	}
	if a.BM25Score != b.BM25Score {
		return a.BM25Score > b.BM25Score
	}
	return a.NodeID < b.NodeID
}

// normalize scales scores so the maximum becomes 1.0.
func (f *RRFFusion) normalize(results []*FusedResult) {
	if len(results) == 0 {
		return
	}

	maxScore := results[0].RRFScore
	if maxScore == 0 {
		return
	}

	for _, r := range results {
		r.RRFScore = r.RRFScore / maxScore
	}
}
