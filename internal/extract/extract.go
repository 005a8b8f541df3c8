// Package extract pulls lightweight structural metadata out of source
// text with regular expressions. The extraction is deliberately not a
// parser: it tolerates malformed code and trades recall for speed.
package extract

import (
	"log/slog"
	"regexp"
	"strings"
)

// Extractor produces metadata fields for one document.
type Extractor interface {
	// Extract returns metadata key-value pairs for the given source
	// text. Implementations must never fail the caller: on trouble
	// they return whatever fields they managed to produce.
	Extract(text string) map[string]string
}

var (
	namespaceRegex = regexp.MustCompile(`namespace\s+([\w\.]+)`)
	typeRegex      = regexp.MustCompile(`(class|interface|struct|enum|record)\s+(\w+)`)

	// methodRegex is anchored on "public": private helpers stay out of
	// the metadata on purpose, keeping it focused on the API surface.
	// Local calls like "return Foo(x)" would otherwise false-positive.
	methodRegex = regexp.MustCompile(`public\s+(?:static\s+|virtual\s+|override\s+|async\s+)?[\w<>\[\]]+\s+(\w+)\s*\(`)
)

// RegexExtractor extracts namespace, type, and public method metadata
// from C#-style source.
type RegexExtractor struct {
	// MaxFieldLength truncates each joined field, appending "...".
	MaxFieldLength int

	logger *slog.Logger
}

// NewRegexExtractor creates a RegexExtractor. A nil logger uses the
// default.
func NewRegexExtractor(maxFieldLength int, logger *slog.Logger) *RegexExtractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &RegexExtractor{MaxFieldLength: maxFieldLength, logger: logger}
}

// Namespace returns the first declared namespace, or "".
func (e *RegexExtractor) Namespace(text string) string {
	m := namespaceRegex.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	return m[1]
}

// Types returns declared types as "kind:Name" entries in source order.
// Duplicate declarations (partial classes, overload files) are retained.
func (e *RegexExtractor) Types(text string) []string {
	var out []string
	for _, m := range typeRegex.FindAllStringSubmatch(text, -1) {
		out = append(out, m[1]+":"+m[2])
	}
	return out
}

// Methods returns public method names, deduplicated in first-seen
// order. Optional modifiers (static, virtual, override, async) between
// "public" and the return type are accepted.
func (e *RegexExtractor) Methods(text string) []string {
	var out []string
	for _, m := range methodRegex.FindAllStringSubmatch(text, -1) {
		out = append(out, m[1])
	}
	return dedupe(out)
}

// Extract implements Extractor. Empty fields are omitted; list fields
// are comma-joined and truncated with an ellipsis rather than dropped.
func (e *RegexExtractor) Extract(text string) map[string]string {
	meta := make(map[string]string)

	defer func() {
		if r := recover(); r != nil {
			// Keep whatever fields were already produced.
			e.logger.Warn("metadata extraction failed", slog.Any("error", r))
		}
	}()

	if ns := e.Namespace(text); ns != "" {
		meta["namespace"] = e.truncate(ns)
	}
	if types := e.Types(text); len(types) > 0 {
		meta["defined_types"] = e.truncate(strings.Join(types, ", "))
	}
	if methods := e.Methods(text); len(methods) > 0 {
		meta["methods"] = e.truncate(strings.Join(methods, ", "))
	}

	return meta
}

// truncate limits a field to MaxFieldLength characters, ending with
// "..." when cut.
func (e *RegexExtractor) truncate(s string) string {
	if e.MaxFieldLength <= 3 || len(s) <= e.MaxFieldLength {
		return s
	}
	return s[:e.MaxFieldLength-3] + "..."
}

func dedupe(items []string) []string {
	seen := make(map[string]struct{}, len(items))
	out := make([]string, 0, len(items))
	for _, item := range items {
		if _, ok := seen[item]; ok {
			continue
		}
		seen[item] = struct{}{}
		out = append(out, item)
	}
	return out
}

var _ Extractor = (*RegexExtractor)(nil)
