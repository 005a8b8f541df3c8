// Package config loads and validates srcindex configuration.
//
// Configuration is resolved in three layers, later layers winning:
//  1. Built-in defaults (NewConfig)
//  2. YAML config file (~/.srcindex/config.yaml or --config)
//  3. Environment variables (SRCINDEX_*)
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	srcerrors "github.com/dkallur/srcindex/internal/errors"
)

// Config represents the complete srcindex configuration.
type Config struct {
	Version    int              `yaml:"version"`
	Storage    StorageConfig    `yaml:"storage"`
	Scan       ScanConfig       `yaml:"scan"`
	Filter     FilterConfig     `yaml:"filter"`
	Metadata   MetadataConfig   `yaml:"metadata"`
	Chunk      ChunkConfig      `yaml:"chunk"`
	Search     SearchConfig     `yaml:"search"`
	Embeddings EmbeddingsConfig `yaml:"embeddings"`
	Synthesis  SynthesisConfig  `yaml:"synthesis"`
	Watch      WatchConfig      `yaml:"watch"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// StorageConfig configures where the persisted corpus lives.
type StorageConfig struct {
	// Dir is the collection directory holding the vector graph, the
	// node database, and the lock file.
	Dir string `yaml:"dir"`
	// Collection names the corpus inside Dir.
	Collection string `yaml:"collection"`
}

// ScanConfig configures file discovery.
type ScanConfig struct {
	// Extension is the file extension to index, including the dot.
	Extension string `yaml:"extension"`
	// ExcludedDirs are directory names pruned during traversal.
	ExcludedDirs []string `yaml:"excluded_dirs"`
	// GeneratedSuffixes are filename suffixes excluded without file I/O.
	GeneratedSuffixes []string `yaml:"generated_suffixes"`
}

// FilterConfig configures the content-based generated-file filter.
type FilterConfig struct {
	// HeaderCheckChars bounds how much of each file is inspected for
	// generated-code markers.
	HeaderCheckChars int `yaml:"header_check_chars"`
	// GeneratedMarkers are matched case-insensitively inside the header.
	GeneratedMarkers []string `yaml:"generated_markers"`
}

// MetadataConfig configures regex metadata extraction.
type MetadataConfig struct {
	// MaxFieldLength truncates each extracted metadata field.
	MaxFieldLength int `yaml:"max_field_length"`
}

// ChunkConfig configures document chunking.
type ChunkConfig struct {
	// Lines is the window size in lines per chunk.
	Lines int `yaml:"lines"`
	// OverlapLines is how many lines consecutive chunks share.
	OverlapLines int `yaml:"overlap_lines"`
}

// SearchConfig configures hybrid retrieval.
type SearchConfig struct {
	// TopK is the default number of results returned.
	TopK int `yaml:"top_k"`
	// VectorMultiplier over-fetches dense candidates: dense retrieval
	// requests TopK*VectorMultiplier before fusion.
	VectorMultiplier int `yaml:"vector_multiplier"`
	// RerankRatio scales TopK into the reranker keep count.
	RerankRatio float64 `yaml:"rerank_ratio"`
	// RRFConstant is the reciprocal-rank fusion smoothing parameter k.
	// Default 60, the value used by Azure AI Search and OpenSearch.
	RRFConstant int `yaml:"rrf_constant"`
	// Rerank enables the reranking stage.
	Rerank bool `yaml:"rerank"`
	// Synthesize enables response synthesis over retrieved nodes.
	Synthesize bool `yaml:"synthesize"`
}

// EmbeddingsConfig configures the embedding provider.
type EmbeddingsConfig struct {
	// Provider selects the embedder: "static" (offline, hash-based) or
	// "ollama" (HTTP).
	Provider string `yaml:"provider"`
	// Model is the embedding model name for the ollama provider.
	Model string `yaml:"model"`
	// Dimensions is the embedding vector width.
	Dimensions int `yaml:"dimensions"`
	// OllamaHost is the Ollama API endpoint.
	OllamaHost string `yaml:"ollama_host"`
	// CacheSize is the embedder LRU cache capacity (0 disables).
	CacheSize int `yaml:"cache_size"`
	// BatchCeiling caps embedding batch size regardless of what the
	// node store advertises.
	BatchCeiling int `yaml:"batch_ceiling"`
	// BatchDivisor divides the store's advertised max batch size.
	BatchDivisor int `yaml:"batch_divisor"`
	// BatchDefault is used when the store advertises no maximum.
	BatchDefault int `yaml:"batch_default"`
}

// SynthesisConfig configures generative answer synthesis.
type SynthesisConfig struct {
	// Model is the generation model for the ollama synthesizer.
	Model string `yaml:"model"`
	// OllamaHost is the Ollama API endpoint.
	OllamaHost string `yaml:"ollama_host"`
	// TimeoutSeconds bounds one synthesis call.
	TimeoutSeconds int `yaml:"timeout_seconds"`
}

// WatchConfig configures the filesystem watch mode.
type WatchConfig struct {
	// DebounceMS is how long to coalesce events before re-indexing.
	DebounceMS int `yaml:"debounce_ms"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	Level    string `yaml:"level"`
	FilePath string `yaml:"file_path"`
}

// NewConfig creates a Config with sensible defaults.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		Storage: StorageConfig{
			Dir:        defaultStorageDir(),
			Collection: "default",
		},
		Scan: ScanConfig{
			Extension: ".cs",
			ExcludedDirs: []string{
				"bin", "obj", ".git", ".vs", "packages", "node_modules", "TestResults",
			},
			GeneratedSuffixes: []string{
				".g.cs", ".g.i.cs", ".designer.cs", ".generated.cs", ".AssemblyInfo.cs",
			},
		},
		Filter: FilterConfig{
			HeaderCheckChars: 2048,
			GeneratedMarkers: []string{
				"<auto-generated",
				"this code was generated",
				"do not edit",
				"autogenerated",
				"generated by",
			},
		},
		Metadata: MetadataConfig{
			MaxFieldLength: 1000,
		},
		Chunk: ChunkConfig{
			Lines:        80,
			OverlapLines: 10,
		},
		Search: SearchConfig{
			TopK:             10,
			VectorMultiplier: 4,
			RerankRatio:      0.5,
			RRFConstant:      60,
			Rerank:           true,
			Synthesize:       false,
		},
		Embeddings: EmbeddingsConfig{
			Provider:     "static",
			Model:        "nomic-embed-text",
			Dimensions:   256,
			OllamaHost:   "http://localhost:11434",
			CacheSize:    10000,
			BatchCeiling: 500,
			BatchDivisor: 2,
			BatchDefault: 100,
		},
		Synthesis: SynthesisConfig{
			Model:          "qwen3:0.6b",
			OllamaHost:     "http://localhost:11434",
			TimeoutSeconds: 60,
		},
		Watch: WatchConfig{
			DebounceMS: 500,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

func defaultStorageDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".srcindex", "index")
	}
	return filepath.Join(home, ".srcindex", "index")
}

// Load reads configuration from path, merging over defaults and then
// applying environment overrides. A missing file is not an error: the
// defaults are returned.
func Load(path string) (*Config, error) {
	cfg := NewConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, srcerrors.Wrap(srcerrors.ErrCodeConfigInvalid, err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, srcerrors.New(srcerrors.ErrCodeConfigInvalid,
				fmt.Sprintf("invalid config file %s: %v", path, err), err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// DefaultPath returns the default config file location.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".srcindex", "config.yaml")
	}
	return filepath.Join(home, ".srcindex", "config.yaml")
}

// applyEnv applies SRCINDEX_* environment variable overrides.
func (c *Config) applyEnv() {
	if v := os.Getenv("SRCINDEX_STORAGE_DIR"); v != "" {
		c.Storage.Dir = v
	}
	if v := os.Getenv("SRCINDEX_OLLAMA_HOST"); v != "" {
		c.Embeddings.OllamaHost = v
		c.Synthesis.OllamaHost = v
	}
	if v := os.Getenv("SRCINDEX_EMBED_PROVIDER"); v != "" {
		c.Embeddings.Provider = v
	}
	if v := os.Getenv("SRCINDEX_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("SRCINDEX_TOP_K"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Search.TopK = n
		}
	}
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	if c.Scan.Extension == "" || !strings.HasPrefix(c.Scan.Extension, ".") {
		return srcerrors.Newf(srcerrors.ErrCodeConfigInvalid,
			"scan.extension must start with a dot, got %q", c.Scan.Extension)
	}
	if c.Filter.HeaderCheckChars <= 0 {
		return srcerrors.Newf(srcerrors.ErrCodeConfigInvalid,
			"filter.header_check_chars must be positive, got %d", c.Filter.HeaderCheckChars)
	}
	if c.Metadata.MaxFieldLength < 4 {
		return srcerrors.Newf(srcerrors.ErrCodeConfigInvalid,
			"metadata.max_field_length must be at least 4, got %d", c.Metadata.MaxFieldLength)
	}
	if c.Chunk.Lines <= 0 || c.Chunk.OverlapLines < 0 || c.Chunk.OverlapLines >= c.Chunk.Lines {
		return srcerrors.Newf(srcerrors.ErrCodeConfigInvalid,
			"chunk window %d with overlap %d is invalid", c.Chunk.Lines, c.Chunk.OverlapLines)
	}
	if c.Search.TopK <= 0 {
		return srcerrors.Newf(srcerrors.ErrCodeConfigInvalid,
			"search.top_k must be positive, got %d", c.Search.TopK)
	}
	if c.Search.VectorMultiplier <= 0 {
		return srcerrors.Newf(srcerrors.ErrCodeConfigInvalid,
			"search.vector_multiplier must be positive, got %d", c.Search.VectorMultiplier)
	}
	if c.Search.RerankRatio <= 0 {
		return srcerrors.Newf(srcerrors.ErrCodeConfigInvalid,
			"search.rerank_ratio must be positive, got %f", c.Search.RerankRatio)
	}
	if c.Search.RRFConstant <= 0 {
		return srcerrors.Newf(srcerrors.ErrCodeConfigInvalid,
			"search.rrf_constant must be positive, got %d", c.Search.RRFConstant)
	}
	switch c.Embeddings.Provider {
	case "static", "ollama":
	default:
		return srcerrors.Newf(srcerrors.ErrCodeConfigInvalid,
			"embeddings.provider must be static or ollama, got %q", c.Embeddings.Provider)
	}
	if c.Embeddings.Dimensions <= 0 {
		return srcerrors.Newf(srcerrors.ErrCodeConfigInvalid,
			"embeddings.dimensions must be positive, got %d", c.Embeddings.Dimensions)
	}
	if c.Embeddings.BatchDivisor <= 0 || c.Embeddings.BatchCeiling <= 0 || c.Embeddings.BatchDefault <= 0 {
		return srcerrors.Newf(srcerrors.ErrCodeConfigInvalid,
			"embedding batch parameters must be positive")
	}
	return nil
}

// CollectionDir returns the directory holding the named collection.
func (c *Config) CollectionDir() string {
	return filepath.Join(c.Storage.Dir, c.Storage.Collection)
}
