package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dkallur/srcindex/internal/output"
	"github.com/dkallur/srcindex/internal/search"
)

// searchOptions holds CLI flags for search.
type searchOptions struct {
	limit      int
	format     string // "text", "json"
	noRerank   bool
	synthesize bool
}

func newSearchCmd() *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the indexed codebase",
		Long: `Search the indexed codebase with hybrid retrieval.

BM25 keyword matching and semantic embeddings are fused with
Reciprocal Rank Fusion; results are reranked by default.

Examples:
  srcindex search "order validation"
  srcindex search "HandleRequest" --limit 5
  srcindex search "retry policy" --format json
  srcindex search "how is authentication wired" --synthesize`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(cmd, strings.Join(args, " "), opts)
		},
	}

	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 0, "Maximum number of results (default from config)")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "Output format: text, json")
	cmd.Flags().BoolVar(&opts.noRerank, "no-rerank", false, "Skip the reranking stage")
	cmd.Flags().BoolVar(&opts.synthesize, "synthesize", false, "Generate an answer from the retrieved code")

	return cmd
}

func runSearch(cmd *cobra.Command, query string, opts searchOptions) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if opts.noRerank {
		cfg.Search.Rerank = false
	}
	if opts.synthesize {
		cfg.Search.Synthesize = true
	}

	logger, cleanup := setupLogging(cfg)
	defer cleanup()

	out := output.New(cmd.OutOrStdout())
	ctx := cmd.Context()

	embedder := newEmbedder(ctx, cfg, logger)
	defer func() { _ = embedder.Close() }()

	engine, err := newEngine(cfg, embedder, logger)
	if err != nil {
		return err
	}
	defer func() { _ = engine.Close() }()

	builder := newBuilder(cfg, embedder, engine, logger)
	defer func() { _ = builder.Close() }()

	if err := builder.Open(); err != nil {
		return err
	}

	result := engine.Search(ctx, query, opts.limit)

	if opts.format == "json" {
		return writeJSONResult(cmd, result)
	}
	out.Result(result)
	if !result.Success {
		return fmt.Errorf("search failed: %w", result.Err)
	}
	return nil
}

// jsonResult is the stable JSON shape for scripting consumers.
type jsonResult struct {
	Response string     `json:"response,omitempty"`
	Success  bool       `json:"success"`
	Error    string     `json:"error,omitempty"`
	Nodes    []jsonNode `json:"nodes"`
}

type jsonNode struct {
	ID       string            `json:"id"`
	Score    float64           `json:"score"`
	Metadata map[string]string `json:"metadata,omitempty"`
	Text     string            `json:"text"`
}

func writeJSONResult(cmd *cobra.Command, result *search.Result) error {
	payload := jsonResult{
		Response: result.ResponseText,
		Success:  result.Success,
		Nodes:    make([]jsonNode, 0, len(result.Nodes)),
	}
	if result.Err != nil {
		payload.Error = result.Err.Error()
	}
	for _, scored := range result.Nodes {
		node := jsonNode{Score: scored.Score}
		if scored.Node != nil {
			node.ID = scored.Node.ID
			node.Metadata = scored.Node.Metadata
			node.Text = scored.Node.Text
		}
		payload.Nodes = append(payload.Nodes, node)
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(payload); err != nil {
		return err
	}
	if !result.Success {
		return fmt.Errorf("search failed: %w", result.Err)
	}
	return nil
}
