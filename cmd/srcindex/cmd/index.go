package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dkallur/srcindex/internal/output"
)

func newIndexCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "index <path> [path...]",
		Short: "Build the index from one or more source roots",
		Long: `Scan the given directories for C# source files, filter out
generated code, and build the search index.

Multiple roots may be given as separate arguments or as one
comma-separated value. Missing roots are skipped with a warning.

Examples:
  srcindex index ./src
  srcindex index ./services/api ./services/worker
  srcindex index "./src,./tests"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIndex(cmd, args)
		},
	}
	return cmd
}

func runIndex(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, cleanup := setupLogging(cfg)
	defer cleanup()

	out := output.New(cmd.OutOrStdout())
	ctx := cmd.Context()

	embedder := newEmbedder(ctx, cfg, logger)
	defer func() { _ = embedder.Close() }()

	builder := newBuilder(cfg, embedder, nil, logger)
	defer func() { _ = builder.Close() }()

	// Separate args become newline-delimited roots so paths containing
	// commas survive.
	stats := builder.Refresh(ctx, strings.Join(args, "\n"))
	out.Stats(stats)
	if !stats.Success {
		return fmt.Errorf("indexing failed: %w", stats.Err)
	}
	return nil
}
