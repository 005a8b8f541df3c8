package index

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkallur/srcindex/internal/config"
	"github.com/dkallur/srcindex/internal/embed"
	srcerrors "github.com/dkallur/srcindex/internal/errors"
	"github.com/dkallur/srcindex/internal/search"
)

func TestParseRoots(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want []string
	}{
		{"single path", "/repo/src", []string{"/repo/src"}},
		{"comma separated", "/a,/b,/c", []string{"/a", "/b", "/c"}},
		{"newline separated", "/a\n/b", []string{"/a", "/b"}},
		{"newline wins over comma", "/a,with,commas\n/b", []string{"/a,with,commas", "/b"}},
		{"trims whitespace", "  /a , /b  ", []string{"/a", "/b"}},
		{"drops empties", "/a,,,\n", []string{"/a"}},
		{"all empty", " , , ", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseRoots(tt.raw)
			if tt.want == nil {
				assert.Empty(t, got)
			} else {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestSourceRepo(t *testing.T) {
	roots := []string{
		filepath.FromSlash("/work/billing"),
		filepath.FromSlash("/work/shipping"),
	}

	assert.Equal(t, "billing",
		sourceRepo(roots, filepath.FromSlash("/work/billing/src/Invoice.cs")))
	assert.Equal(t, "shipping",
		sourceRepo(roots, filepath.FromSlash("/work/shipping/Label.cs")))
	assert.Equal(t, "unknown",
		sourceRepo(roots, filepath.FromSlash("/elsewhere/Other.cs")))
}

func writeSource(t *testing.T, root, rel, content string) {
	t.Helper()
	full := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
}

func testBuilderConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.NewConfig()
	cfg.Storage.Dir = t.TempDir()
	cfg.Storage.Collection = "test"
	return cfg
}

func newTestBuilder(t *testing.T, cfg *config.Config, engine *search.Engine) *Builder {
	t.Helper()
	b := NewBuilder(cfg, embed.NewStaticEmbedder(), engine, nil)
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func TestBuilder_BatchSize(t *testing.T) {
	cfg := testBuilderConfig(t)
	cfg.Embeddings.BatchCeiling = 500
	cfg.Embeddings.BatchDivisor = 2
	cfg.Embeddings.BatchDefault = 100
	b := newTestBuilder(t, cfg, nil)

	// advertised/divisor below the ceiling
	assert.Equal(t, 400, b.batchSize(800))
	// capped at the ceiling
	assert.Equal(t, 500, b.batchSize(8191))
	// nothing advertised falls back to the default
	assert.Equal(t, 100, b.batchSize(0))
	// tiny advertised max never reaches zero
	assert.Equal(t, 1, b.batchSize(1))
}

func TestBuilder_Refresh_EmptyRoots(t *testing.T) {
	b := newTestBuilder(t, testBuilderConfig(t), nil)

	stats := b.Refresh(context.Background(), "  ,  ")

	assert.False(t, stats.Success)
	assert.True(t, errors.Is(stats.Err, srcerrors.NoValidPathsError()))
}

func TestBuilder_Refresh_NoFilesFound(t *testing.T) {
	b := newTestBuilder(t, testBuilderConfig(t), nil)

	empty := t.TempDir()
	stats := b.Refresh(context.Background(), empty)

	assert.False(t, stats.Success)
	assert.True(t, errors.Is(stats.Err, srcerrors.NoFilesFoundError(".cs")))
}

func TestBuilder_Refresh_IndexesSources(t *testing.T) {
	root := t.TempDir()
	writeSource(t, root, "src/InvoiceService.cs", `
namespace Acme.Billing
{
    public class InvoiceService
    {
        public Invoice CreateInvoice(Order order) { return new Invoice(); }
    }
}`)
	writeSource(t, root, "src/Generated.g.cs", "class Skipped {}")
	writeSource(t, root, "src/AutoGen.cs", "// <auto-generated>\nclass AlsoSkipped {}")

	b := newTestBuilder(t, testBuilderConfig(t), nil)
	stats := b.Refresh(context.Background(), root)

	require.True(t, stats.Success, "refresh error: %v", stats.Err)
	// The .g.cs file never reaches loading; the marker file is excluded
	// by the content filter.
	assert.Equal(t, 2, stats.TotalFiles)
	assert.Equal(t, 1, stats.IndexedFiles)
	assert.Equal(t, 1, stats.ExcludedFiles)
	assert.Equal(t, 1, stats.NumRepos)
	assert.Positive(t, stats.Elapsed)

	corpus := b.Corpus()
	require.NotNil(t, corpus)

	count, err := corpus.Nodes.Count(context.Background())
	require.NoError(t, err)
	assert.Positive(t, count)
	assert.Equal(t, count, corpus.Vectors.Count())

	nodes, err := corpus.Nodes.GetAll(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, nodes)
	assert.Equal(t, "Acme.Billing", nodes[0].Metadata["namespace"])
	assert.Equal(t, filepath.Base(root), nodes[0].Metadata["source_repo"])
	assert.NotEmpty(t, nodes[0].Metadata["file_path"])
	assert.Contains(t, nodes[0].Metadata["defined_types"], "class:InvoiceService")

	stamp, err := time.Parse(time.RFC3339, nodes[0].Metadata["indexed_at"])
	require.NoError(t, err, "every node carries an indexing timestamp")
	assert.WithinDuration(t, time.Now().UTC(), stamp, time.Minute)
}

func TestBuilder_Refresh_CountsLoadFailuresAsExcluded(t *testing.T) {
	root := t.TempDir()
	writeSource(t, root, "Program.cs", "public class Program { }")
	// A dangling symlink survives the scan but fails to load.
	require.NoError(t, os.Symlink(filepath.Join(root, "gone"), filepath.Join(root, "Broken.cs")))

	b := newTestBuilder(t, testBuilderConfig(t), nil)
	stats := b.Refresh(context.Background(), root)

	require.True(t, stats.Success, "refresh error: %v", stats.Err)
	assert.Equal(t, 2, stats.TotalFiles)
	assert.Equal(t, 1, stats.IndexedFiles)
	assert.Equal(t, 1, stats.ExcludedFiles)
	assert.Equal(t, stats.TotalFiles, stats.IndexedFiles+stats.ExcludedFiles)
}

func TestBuilder_Refresh_IsIdempotent(t *testing.T) {
	root := t.TempDir()
	writeSource(t, root, "src/Invoice.cs", "public class Invoice { public void Send() {} }")
	writeSource(t, root, "src/Order.cs", "public class Order { public void Submit() {} }")

	b := newTestBuilder(t, testBuilderConfig(t), nil)

	first := b.Refresh(context.Background(), root)
	require.True(t, first.Success, "refresh error: %v", first.Err)

	second := b.Refresh(context.Background(), root)
	require.True(t, second.Success, "refresh error: %v", second.Err)

	// An unchanged tree produces the same counts and the same corpus size.
	assert.Equal(t, first.TotalFiles, second.TotalFiles)
	assert.Equal(t, first.IndexedFiles, second.IndexedFiles)
	assert.Equal(t, first.ExcludedFiles, second.ExcludedFiles)

	corpus := b.Corpus()
	require.NotNil(t, corpus)
	count, err := corpus.Nodes.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, count, corpus.Vectors.Count())
}

func TestBuilder_Refresh_SkipsMissingRoots(t *testing.T) {
	root := t.TempDir()
	writeSource(t, root, "Program.cs", "class Program {}")
	missing := filepath.Join(t.TempDir(), "gone")

	b := newTestBuilder(t, testBuilderConfig(t), nil)
	stats := b.Refresh(context.Background(), root+"\n"+missing)

	require.True(t, stats.Success, "refresh error: %v", stats.Err)
	assert.Equal(t, 1, stats.TotalFiles)
	assert.Equal(t, 1, stats.NumRepos)
	assert.Equal(t, 1, stats.PathStats[root])
	assert.Zero(t, stats.PathStats[missing])
}

func TestBuilder_Refresh_WiresEngine(t *testing.T) {
	root := t.TempDir()
	writeSource(t, root, "Telemetry.cs", `
public class TelemetryCollector
{
    public void RecordSample(MetricSample sample) { }
}`)

	embedder := embed.NewStaticEmbedder()
	engine, err := search.NewEngine(nil, embedder, search.DefaultConfig())
	require.NoError(t, err)
	defer func() { _ = engine.Close() }()

	cfg := testBuilderConfig(t)
	b := NewBuilder(cfg, embedder, engine, nil)
	defer func() { _ = b.Close() }()

	stats := b.Refresh(context.Background(), root)
	require.True(t, stats.Success, "refresh error: %v", stats.Err)

	// The engine searches the fresh corpus without further wiring.
	result := engine.Search(context.Background(), "telemetry sample", 5)
	require.True(t, result.Success)
	require.NotEmpty(t, result.Nodes)
	assert.Contains(t, result.Nodes[0].Node.Text, "TelemetryCollector")
}

func TestBuilder_Open_MissingIndex(t *testing.T) {
	b := newTestBuilder(t, testBuilderConfig(t), nil)

	err := b.Open()
	require.Error(t, err)
	assert.True(t, errors.Is(err, srcerrors.IndexNotFoundError("")))
}

func TestBuilder_Open_AfterRefresh(t *testing.T) {
	root := t.TempDir()
	writeSource(t, root, "Program.cs", "public class Program { public void Run() {} }")

	cfg := testBuilderConfig(t)

	first := NewBuilder(cfg, embed.NewStaticEmbedder(), nil, nil)
	stats := first.Refresh(context.Background(), root)
	require.True(t, stats.Success, "refresh error: %v", stats.Err)
	require.NoError(t, first.Close())

	// A fresh builder reopens the persisted corpus.
	second := newTestBuilder(t, cfg, nil)
	require.NoError(t, second.Open())

	corpus := second.Corpus()
	require.NotNil(t, corpus)
	assert.Positive(t, corpus.Vectors.Count())
}

func TestBuilder_StageTransitions(t *testing.T) {
	b := newTestBuilder(t, testBuilderConfig(t), nil)
	assert.Equal(t, StageIdle, b.Stage())

	root := t.TempDir()
	writeSource(t, root, "Program.cs", "class Program {}")

	stats := b.Refresh(context.Background(), root)
	require.True(t, stats.Success)
	assert.Equal(t, StageDone, b.Stage())

	failed := b.Refresh(context.Background(), " ")
	assert.False(t, failed.Success)
	assert.Equal(t, StageFailed, b.Stage())
}
