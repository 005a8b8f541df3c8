package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/dkallur/srcindex/internal/index"
	"github.com/dkallur/srcindex/internal/output"
	"github.com/dkallur/srcindex/internal/scanner"
	"github.com/dkallur/srcindex/internal/watcher"
)

func newWatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch <path> [path...]",
		Short: "Keep the index in sync with source changes",
		Long: `Build the index, then watch the given roots and rebuild whenever
C# source files change. Rapid bursts of changes are coalesced into a
single rebuild. Runs until interrupted.

Examples:
  srcindex watch ./src
  srcindex watch ./services/api ./services/worker`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd, args)
		},
	}
	return cmd
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, cleanup := setupLogging(cfg)
	defer cleanup()

	out := output.New(cmd.OutOrStdout())
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	embedder := newEmbedder(ctx, cfg, logger)
	defer func() { _ = embedder.Close() }()

	builder := newBuilder(cfg, embedder, nil, logger)
	defer func() { _ = builder.Close() }()

	roots := strings.Join(args, "\n")

	stats := builder.Refresh(ctx, roots)
	out.Stats(stats)
	if !stats.Success {
		return fmt.Errorf("initial indexing failed: %w", stats.Err)
	}

	w, err := watcher.New(watcher.Config{
		Roots: index.ParseRoots(roots),
		Scan: scanner.Config{
			Extension:         cfg.Scan.Extension,
			ExcludedDirs:      cfg.Scan.ExcludedDirs,
			GeneratedSuffixes: cfg.Scan.GeneratedSuffixes,
		},
		DebounceWindow: time.Duration(cfg.Watch.DebounceMS) * time.Millisecond,
		OnChange: func(ctx context.Context, events []watcher.FileEvent) {
			logger.Info("rebuilding after file changes",
				slog.Int("events", len(events)))
			stats := builder.Refresh(ctx, roots)
			out.Stats(stats)
		},
	}, logger)
	if err != nil {
		return err
	}
	defer w.Stop()

	out.Infof("Watching %d root(s); press Ctrl-C to stop.", len(args))
	err = w.Run(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
