// Package store is the persistence layer: a SQLite node store, an HNSW
// vector index, and a disposable in-memory BM25 index.
package store

import (
	"context"
	"fmt"
)

// Document is a single loaded source file with its extracted metadata.
type Document struct {
	ID       string            // SHA256(path)
	Path     string            // Absolute file path
	Text     string            // Full file content
	Metadata map[string]string // file_path, source_repo, indexed_at, namespace, defined_types, methods
}

// Node is a retrievable chunk of a document. Nodes inherit their parent
// document's metadata; every node carries at least file_path.
type Node struct {
	ID       string            // SHA256(path + content hash)
	DocID    string            // Parent document ID
	Text     string            // Chunk content
	Metadata map[string]string // Inherited from the document, plus line range
}

// SparseResult is a single BM25 search hit.
type SparseResult struct {
	NodeID       string
	Score        float64
	MatchedTerms []string
}

// VectorResult is a single dense search hit.
type VectorResult struct {
	ID       string  // Node ID
	Distance float32 // Lower is more similar (0-2 for cosine)
	Score    float32 // Normalized similarity (0-1)
}

// SparseIndex provides keyword search over nodes using BM25 scoring.
// The sparse index is a cache: it is rebuilt from the node store on
// demand and never persisted.
type SparseIndex interface {
	// Index adds nodes to the index.
	Index(ctx context.Context, nodes []*Node) error

	// Search returns nodes matching query, scored by BM25.
	Search(ctx context.Context, query string, limit int) ([]*SparseResult, error)

	// DocCount returns the number of indexed nodes.
	DocCount() int

	Close() error
}

// VectorIndex provides approximate nearest-neighbor search.
type VectorIndex interface {
	// Add inserts vectors with their IDs. An existing ID is replaced.
	Add(ctx context.Context, ids []string, vectors [][]float32) error

	// Search finds the k nearest neighbors to the query vector.
	Search(ctx context.Context, query []float32, k int) ([]*VectorResult, error)

	// Delete removes vectors by ID.
	Delete(ctx context.Context, ids []string) error

	// Count returns the number of live vectors.
	Count() int

	// Persistence
	Save(path string) error
	Load(path string) error
	Close() error
}

// NodeStore persists node payloads (text + metadata).
type NodeStore interface {
	// Put inserts or replaces nodes.
	Put(ctx context.Context, nodes []*Node) error

	// Get retrieves nodes by ID, preserving input order. Missing IDs
	// are skipped.
	Get(ctx context.Context, ids []string) ([]*Node, error)

	// GetAll returns every stored node. Used to rebuild the sparse
	// index when no in-memory nodes are available.
	GetAll(ctx context.Context) ([]*Node, error)

	// Count returns the number of stored nodes.
	Count(ctx context.Context) (int, error)

	// Clear removes all nodes.
	Clear(ctx context.Context) error

	// MaxBatchSize advertises the largest batch Put accepts in one
	// statement, or 0 for no limit.
	MaxBatchSize() int

	Close() error
}

// SparseConfig configures the BM25 index.
type SparseConfig struct {
	// StopWords are filtered out during tokenization.
	StopWords []string

	// MinTokenLength is the minimum token length to index (default: 2).
	MinTokenLength int
}

// DefaultSparseConfig returns the default sparse index configuration.
func DefaultSparseConfig() SparseConfig {
	return SparseConfig{
		StopWords:      DefaultCodeStopWords,
		MinTokenLength: 2,
	}
}

// DefaultCodeStopWords contains language keywords and filler identifiers
// too common in source code to carry signal.
var DefaultCodeStopWords = []string{
	"var", "new", "using", "namespace", "public", "private", "protected",
	"internal", "static", "void", "class", "return", "if", "else", "for",
	"while", "get", "set", "value", "result", "item", "tmp", "obj",
}

// VectorIndexConfig configures the HNSW vector index.
type VectorIndexConfig struct {
	// Dimensions is the embedding vector width.
	Dimensions int

	// Metric is the distance metric: "cos" (cosine) or "l2" (euclidean).
	Metric string

	// M is HNSW max connections per layer.
	M int

	// EfSearch is HNSW query-time search width.
	EfSearch int
}

// DefaultVectorIndexConfig returns sensible defaults for the given
// embedding width.
func DefaultVectorIndexConfig(dimensions int) VectorIndexConfig {
	return VectorIndexConfig{
		Dimensions: dimensions,
		Metric:     "cos",
		M:          32,
		EfSearch:   64,
	}
}

// ErrDimensionMismatch indicates a vector did not match the index width.
type ErrDimensionMismatch struct {
	Expected int
	Got      int
}

func (e ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d (rebuild the index)", e.Expected, e.Got)
}
