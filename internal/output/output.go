// Package output renders search results and index statistics for the
// CLI, with colors when stdout is a terminal.
package output

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/dkallur/srcindex/internal/index"
	"github.com/dkallur/srcindex/internal/search"
)

// Formatter writes human-readable output.
type Formatter struct {
	out    io.Writer
	styles Styles
}

// New creates a Formatter that auto-detects color support on out.
func New(out io.Writer) *Formatter {
	return &Formatter{out: out, styles: StylesFor(out)}
}

// NewPlain creates a Formatter that never emits color.
func NewPlain(out io.Writer) *Formatter {
	return &Formatter{out: out, styles: NoColorStyles()}
}

// Result renders one search result: the synthesized answer (when
// present) followed by the ranked nodes with path, score, and the
// extracted type names.
func (f *Formatter) Result(result *search.Result) {
	if result == nil {
		return
	}

	if !result.Success {
		msg := "search failed"
		if result.Err != nil {
			msg = result.Err.Error()
		}
		f.printf("%s\n", f.styles.Error.Render(msg))
		return
	}

	if result.ResponseText != "" {
		if strings.HasPrefix(result.ResponseText, search.SynthesisUnavailableMarker) {
			f.printf("%s\n\n", f.styles.Warning.Render(result.ResponseText))
		} else {
			f.printf("%s\n\n", result.ResponseText)
		}
	}

	if len(result.Nodes) == 0 {
		f.printf("%s\n", f.styles.Dim.Render("No results."))
		return
	}

	f.printf("%s\n", f.styles.Header.Render(fmt.Sprintf("Results (%d)", len(result.Nodes))))
	for i, scored := range result.Nodes {
		node := scored.Node
		path := "(unknown)"
		if node != nil {
			if p, ok := node.Metadata["file_path"]; ok {
				path = p
			}
		}

		f.printf("%2d. %s  %s\n",
			i+1,
			f.styles.Path.Render(path),
			f.styles.Score.Render(fmt.Sprintf("score=%.4f", scored.Score)))

		if node == nil {
			continue
		}
		if types, ok := node.Metadata["defined_types"]; ok && types != "" {
			f.printf("    %s %s\n", f.styles.Label.Render("types:"), types)
		}
		if lines := lineRange(node.Metadata); lines != "" {
			f.printf("    %s %s\n", f.styles.Label.Render("lines:"), lines)
		}
		if len(scored.MatchedTerms) > 0 {
			f.printf("    %s %s\n",
				f.styles.Label.Render("matched:"),
				f.styles.Dim.Render(strings.Join(scored.MatchedTerms, ", ")))
		}
	}
}

// Stats renders the outcome of a refresh.
func (f *Formatter) Stats(stats *index.RefreshStats) {
	if stats == nil {
		return
	}

	if !stats.Success {
		msg := "indexing failed"
		if stats.Err != nil {
			msg = stats.Err.Error()
		}
		f.printf("%s %s\n", f.styles.Error.Render(msg),
			f.styles.Dim.Render(fmt.Sprintf("(%s)", stats.Elapsed.Round(10*time.Millisecond))))
		return
	}

	f.printf("%s\n", f.styles.Header.Render("Index refreshed"))
	f.printf("  %s %d files across %d repositories\n",
		f.styles.Label.Render("scanned:"), stats.TotalFiles, stats.NumRepos)
	f.printf("  %s %d documents (%d excluded as generated)\n",
		f.styles.Label.Render("indexed:"), stats.IndexedFiles, stats.ExcludedFiles)
	f.printf("  %s %s\n",
		f.styles.Label.Render("elapsed:"), stats.Elapsed.Round(10*time.Millisecond))

	if len(stats.PathStats) > 0 {
		roots := make([]string, 0, len(stats.PathStats))
		for root := range stats.PathStats {
			roots = append(roots, root)
		}
		sort.Strings(roots)
		for _, root := range roots {
			count := stats.PathStats[root]
			line := fmt.Sprintf("  %s: %d files", root, count)
			if count == 0 {
				f.printf("%s\n", f.styles.Dim.Render(line+" (skipped)"))
			} else {
				f.printf("%s\n", line)
			}
		}
	}
}

// Errorf prints an error line.
func (f *Formatter) Errorf(format string, args ...any) {
	f.printf("%s\n", f.styles.Error.Render(fmt.Sprintf(format, args...)))
}

// Infof prints a plain line.
func (f *Formatter) Infof(format string, args ...any) {
	f.printf(format+"\n", args...)
}

func (f *Formatter) printf(format string, args ...any) {
	_, _ = fmt.Fprintf(f.out, format, args...)
}

func lineRange(meta map[string]string) string {
	start, ok := meta["start_line"]
	if !ok {
		return ""
	}
	end, ok := meta["end_line"]
	if !ok {
		return start
	}
	return start + "-" + end
}
