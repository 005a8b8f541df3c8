package scanner

import (
	"log/slog"
	"strings"

	srcerrors "github.com/dkallur/srcindex/internal/errors"
	"github.com/dkallur/srcindex/internal/store"
)

// ContentFilter drops documents whose headers carry generated-code
// markers that path rules cannot see.
type ContentFilter struct {
	// HeaderCheckChars bounds how much of each document is inspected.
	HeaderCheckChars int
	// Markers are matched case-insensitively inside the header.
	Markers []string

	logger *slog.Logger
}

// NewContentFilter creates a ContentFilter. A nil logger uses the
// default.
func NewContentFilter(headerCheckChars int, markers []string, logger *slog.Logger) *ContentFilter {
	if logger == nil {
		logger = slog.Default()
	}
	lowered := make([]string, len(markers))
	for i, m := range markers {
		lowered[i] = strings.ToLower(m)
	}
	return &ContentFilter{
		HeaderCheckChars: headerCheckChars,
		Markers:          lowered,
		logger:           logger,
	}
}

// IsGenerated reports whether the document header contains a generated
// marker. Only the first HeaderCheckChars characters are inspected, so
// cost stays constant regardless of file size.
func (f *ContentFilter) IsGenerated(text string) bool {
	header := text
	if len(header) > f.HeaderCheckChars {
		header = header[:f.HeaderCheckChars]
	}
	header = strings.ToLower(header)

	for _, marker := range f.Markers {
		if strings.Contains(header, marker) {
			return true
		}
	}
	return false
}

// Filter removes generated documents, preserving input order, and logs
// how many were excluded. Returns an empty-corpus error when nothing
// survives.
func (f *ContentFilter) Filter(docs []*store.Document) ([]*store.Document, error) {
	kept := make([]*store.Document, 0, len(docs))
	for _, doc := range docs {
		if f.IsGenerated(doc.Text) {
			continue
		}
		kept = append(kept, doc)
	}

	excluded := len(docs) - len(kept)
	if excluded > 0 {
		f.logger.Info("excluded generated documents",
			slog.Int("excluded", excluded),
			slog.Int("kept", len(kept)))
	}

	if len(kept) == 0 {
		return nil, srcerrors.EmptyCorpusError()
	}
	return kept, nil
}
