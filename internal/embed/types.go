// Package embed provides text embedding for dense retrieval.
//
// Two providers are available: a deterministic hash-based embedder that
// works offline, and an Ollama HTTP embedder. Both can be wrapped with
// an LRU cache.
package embed

import (
	"context"
	"math"
	"time"
)

// Embedder generates vector embeddings for text.
type Embedder interface {
	// Embed generates an embedding for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the embedding vector width.
	Dimensions() int

	// ModelName returns the model identifier.
	ModelName() string

	// Available reports whether the embedder is ready to serve.
	Available(ctx context.Context) bool

	// Close releases resources.
	Close() error
}

// Default Ollama settings.
const (
	DefaultOllamaHost  = "http://localhost:11434"
	DefaultOllamaModel = "nomic-embed-text"

	// DefaultBatchSize bounds one HTTP embed request.
	DefaultBatchSize = 32

	// DefaultTimeout bounds one embed request.
	DefaultTimeout = 60 * time.Second

	// DefaultMaxRetries is the attempt count per batch.
	DefaultMaxRetries = 3
)

// OllamaConfig configures the HTTP embedder.
type OllamaConfig struct {
	Host       string
	Model      string
	Dimensions int // 0 auto-detects from the first embedding
	BatchSize  int
	Timeout    time.Duration
	MaxRetries int

	// SkipHealthCheck skips the startup model probe (tests).
	SkipHealthCheck bool
}

// ollamaEmbedRequest is the /api/embed request body.
type ollamaEmbedRequest struct {
	Model string `json:"model"`
	Input any    `json:"input"` // string or []string
}

// ollamaEmbedResponse is the /api/embed response body.
type ollamaEmbedResponse struct {
	Embeddings [][]float64 `json:"embeddings"`
}

// ollamaModelInfo describes one installed model.
type ollamaModelInfo struct {
	Name string `json:"name"`
}

// ollamaModelListResponse is the /api/tags response body.
type ollamaModelListResponse struct {
	Models []ollamaModelInfo `json:"models"`
}

// normalizeVector returns a unit-length copy of v. A zero vector is
// returned unchanged.
func normalizeVector(v []float32) []float32 {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}
	if sumSquares == 0 {
		return v
	}
	invMagnitude := float32(1.0 / math.Sqrt(sumSquares))
	out := make([]float32, len(v))
	for i, val := range v {
		out[i] = val * invMagnitude
	}
	return out
}
