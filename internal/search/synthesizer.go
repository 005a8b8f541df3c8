package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dkallur/srcindex/internal/store"
)

// Synthesizer generates an answer from the query and retrieved nodes.
type Synthesizer interface {
	// Synthesize returns a generated answer grounded on the nodes.
	Synthesize(ctx context.Context, query string, nodes []*store.Node) (string, error)

	// Available reports whether the synthesizer is ready to serve.
	Available(ctx context.Context) bool

	Close() error
}

// SynthesisUnavailableMarker prefixes the response when synthesis
// failed and the result falls back to raw retrieval.
const SynthesisUnavailableMarker = "Response synthesis unavailable; returning raw retrieval results."

// OllamaSynthesizerConfig configures the HTTP synthesizer.
type OllamaSynthesizerConfig struct {
	Host    string
	Model   string
	Timeout time.Duration
}

// OllamaSynthesizer generates answers via Ollama's /api/generate.
type OllamaSynthesizer struct {
	client *http.Client
	config OllamaSynthesizerConfig
}

// NewOllamaSynthesizer creates an Ollama-backed synthesizer.
func NewOllamaSynthesizer(cfg OllamaSynthesizerConfig) *OllamaSynthesizer {
	if cfg.Host == "" {
		cfg.Host = "http://localhost:11434"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &OllamaSynthesizer{
		client: &http.Client{},
		config: cfg,
	}
}

type ollamaGenerateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

type ollamaGenerateResponse struct {
	Response string `json:"response"`
}

// Synthesize builds a grounded prompt from the nodes and asks the model
// for an answer.
func (s *OllamaSynthesizer) Synthesize(ctx context.Context, query string, nodes []*store.Node) (string, error) {
	reqCtx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	body, err := json.Marshal(ollamaGenerateRequest{
		Model:  s.config.Model,
		Prompt: buildPrompt(query, nodes),
		Stream: false,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, s.config.Host+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to call ollama: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("generation failed with status %d: %s", resp.StatusCode, string(respBody))
	}

	var result ollamaGenerateResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}

	answer := strings.TrimSpace(result.Response)
	if answer == "" {
		return "", fmt.Errorf("empty response from model")
	}
	return answer, nil
}

// buildPrompt assembles the grounded generation prompt. Each node is
// labeled with its file path so the answer can cite sources.
func buildPrompt(query string, nodes []*store.Node) string {
	var sb strings.Builder
	sb.WriteString("Answer the question using only the source code excerpts below.\n\n")

	for i, node := range nodes {
		path := node.Metadata["file_path"]
		fmt.Fprintf(&sb, "--- Excerpt %d (%s) ---\n%s\n\n", i+1, path, node.Text)
	}

	sb.WriteString("Question: ")
	sb.WriteString(query)
	sb.WriteString("\nAnswer:")
	return sb.String()
}

// Available checks the Ollama endpoint responds.
func (s *OllamaSynthesizer) Available(ctx context.Context) bool {
	reqCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, s.config.Host+"/api/tags", nil)
	if err != nil {
		return false
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return false
	}
	defer func() { _ = resp.Body.Close() }()
	return resp.StatusCode == http.StatusOK
}

// Close releases HTTP resources.
func (s *OllamaSynthesizer) Close() error {
	s.client.CloseIdleConnections()
	return nil
}

var _ Synthesizer = (*OllamaSynthesizer)(nil)
