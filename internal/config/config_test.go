package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	srcerrors "github.com/dkallur/srcindex/internal/errors"
)

func TestNewConfig_Defaults(t *testing.T) {
	cfg := NewConfig()

	assert.Equal(t, ".cs", cfg.Scan.Extension)
	assert.Contains(t, cfg.Scan.ExcludedDirs, "obj")
	assert.Contains(t, cfg.Scan.GeneratedSuffixes, ".designer.cs")
	assert.Equal(t, 2048, cfg.Filter.HeaderCheckChars)
	assert.Equal(t, 80, cfg.Chunk.Lines)
	assert.Equal(t, 10, cfg.Chunk.OverlapLines)
	assert.Equal(t, 10, cfg.Search.TopK)
	assert.Equal(t, 60, cfg.Search.RRFConstant)
	assert.True(t, cfg.Search.Rerank)
	assert.False(t, cfg.Search.Synthesize)
	assert.Equal(t, "static", cfg.Embeddings.Provider)

	assert.NoError(t, cfg.Validate())
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, ".cs", cfg.Scan.Extension)
}

func TestLoad_EmptyPathUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 10, cfg.Search.TopK)
}

func TestLoad_YAMLOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
search:
  top_k: 25
chunk:
  lines: 120
  overlap_lines: 20
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 25, cfg.Search.TopK)
	assert.Equal(t, 120, cfg.Chunk.Lines)
	// Untouched sections keep their defaults.
	assert.Equal(t, ".cs", cfg.Scan.Extension)
}

func TestLoad_MalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("search: [not: a: map"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
	assert.True(t, errors.Is(err, srcerrors.New(srcerrors.ErrCodeConfigInvalid, "", nil)))
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	t.Setenv("SRCINDEX_TOP_K", "42")
	t.Setenv("SRCINDEX_EMBED_PROVIDER", "ollama")
	t.Setenv("SRCINDEX_OLLAMA_HOST", "http://embed-host:11434")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 42, cfg.Search.TopK)
	assert.Equal(t, "ollama", cfg.Embeddings.Provider)
	assert.Equal(t, "http://embed-host:11434", cfg.Embeddings.OllamaHost)
	assert.Equal(t, "http://embed-host:11434", cfg.Synthesis.OllamaHost)
}

func TestLoad_BadEnvTopKIgnored(t *testing.T) {
	t.Setenv("SRCINDEX_TOP_K", "banana")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 10, cfg.Search.TopK)
}

func TestValidate_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"extension without dot", func(c *Config) { c.Scan.Extension = "cs" }},
		{"zero header check", func(c *Config) { c.Filter.HeaderCheckChars = 0 }},
		{"overlap not below window", func(c *Config) { c.Chunk.OverlapLines = c.Chunk.Lines }},
		{"zero top_k", func(c *Config) { c.Search.TopK = 0 }},
		{"zero multiplier", func(c *Config) { c.Search.VectorMultiplier = 0 }},
		{"zero rerank ratio", func(c *Config) { c.Search.RerankRatio = 0 }},
		{"unknown provider", func(c *Config) { c.Embeddings.Provider = "openai" }},
		{"zero dimensions", func(c *Config) { c.Embeddings.Dimensions = 0 }},
		{"zero batch divisor", func(c *Config) { c.Embeddings.BatchDivisor = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, errors.Is(err, srcerrors.New(srcerrors.ErrCodeConfigInvalid, "", nil)))
		})
	}
}

func TestCollectionDir(t *testing.T) {
	cfg := NewConfig()
	cfg.Storage.Dir = "/data"
	cfg.Storage.Collection = "billing"

	assert.Equal(t, filepath.Join("/data", "billing"), cfg.CollectionDir())
}
