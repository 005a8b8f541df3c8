// Package cmd provides the CLI commands for srcindex.
package cmd

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/dkallur/srcindex/internal/config"
	"github.com/dkallur/srcindex/internal/embed"
	"github.com/dkallur/srcindex/internal/index"
	"github.com/dkallur/srcindex/internal/logging"
	"github.com/dkallur/srcindex/internal/search"
)

var (
	configPath string
	debugMode  bool
)

// NewRootCmd creates the root command.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "srcindex",
		Short: "Hybrid code search over C# codebases",
		Long: `srcindex indexes C# source trees and serves hybrid search over them:
BM25 keyword matching and semantic embeddings fused with Reciprocal
Rank Fusion, with optional reranking and answer synthesis.

Generated code (designer files, build output, auto-generated headers)
is filtered out before indexing.`,
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	cmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file (YAML)")
	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging")

	cmd.AddCommand(newIndexCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newWatchCmd())

	return cmd
}

// Execute runs the CLI.
func Execute() error {
	return NewRootCmd().Execute()
}

// loadConfig loads the config file (or defaults) and applies the
// global flags.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if debugMode {
		cfg.Logging.Level = "debug"
	}
	return cfg, nil
}

// setupLogging wires slog to the configured log file. CLI output goes
// through the output formatter, so stderr logging stays off.
func setupLogging(cfg *config.Config) (*slog.Logger, func()) {
	logCfg := logging.DefaultConfig()
	logCfg.Level = cfg.Logging.Level
	if cfg.Logging.FilePath != "" {
		logCfg.FilePath = cfg.Logging.FilePath
	}
	logCfg.WriteToStderr = false

	logger, cleanup, err := logging.Setup(logCfg)
	if err != nil {
		// Fall back to a discard-free stderr logger rather than fail
		// the whole command over a log file.
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
		return logger, func() {}
	}
	slog.SetDefault(logger)
	return logger, cleanup
}

// newEmbedder builds the configured embedder, wrapped in an LRU cache.
// An unreachable Ollama falls back to the offline static embedder so
// indexing and search keep working.
func newEmbedder(ctx context.Context, cfg *config.Config, logger *slog.Logger) embed.Embedder {
	var inner embed.Embedder

	switch cfg.Embeddings.Provider {
	case "ollama":
		ollama, err := embed.NewOllamaEmbedder(ctx, embed.OllamaConfig{
			Host:       cfg.Embeddings.OllamaHost,
			Model:      cfg.Embeddings.Model,
			Dimensions: cfg.Embeddings.Dimensions,
		})
		if err != nil {
			logger.Warn("ollama embedder unavailable, using static embeddings",
				slog.String("error", err.Error()))
			inner = embed.NewStaticEmbedder()
		} else {
			inner = ollama
		}
	default:
		inner = embed.NewStaticEmbedder()
	}

	if cfg.Embeddings.CacheSize > 0 {
		return embed.NewCachedEmbedder(inner, cfg.Embeddings.CacheSize)
	}
	return inner
}

// newEngine builds the hybrid engine with reranker and synthesizer
// per config. The corpus is attached later by the builder.
func newEngine(cfg *config.Config, embedder embed.Embedder, logger *slog.Logger) (*search.Engine, error) {
	engineCfg := search.EngineConfig{
		TopK:             cfg.Search.TopK,
		VectorMultiplier: cfg.Search.VectorMultiplier,
		RerankRatio:      cfg.Search.RerankRatio,
		RRFConstant:      cfg.Search.RRFConstant,
		Rerank:           cfg.Search.Rerank,
		Synthesize:       cfg.Search.Synthesize,
	}

	opts := []search.EngineOption{
		search.WithLogger(logger),
		search.WithReranker(search.NewTermOverlapReranker()),
	}
	if engineCfg.Synthesize {
		opts = append(opts, search.WithSynthesizer(search.NewOllamaSynthesizer(search.OllamaSynthesizerConfig{
			Host:    cfg.Synthesis.OllamaHost,
			Model:   cfg.Synthesis.Model,
			Timeout: time.Duration(cfg.Synthesis.TimeoutSeconds) * time.Second,
		})))
	}

	return search.NewEngine(nil, embedder, engineCfg, opts...)
}

// newBuilder builds the index builder wired to the engine.
func newBuilder(cfg *config.Config, embedder embed.Embedder, engine *search.Engine, logger *slog.Logger) *index.Builder {
	return index.NewBuilder(cfg, embedder, engine, logger)
}
