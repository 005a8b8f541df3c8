// Package chunk splits documents into overlapping line windows.
package chunk

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/dkallur/srcindex/internal/store"
)

// Chunker splits documents into fixed-size line windows. Consecutive
// windows share OverlapLines lines so statements near a boundary stay
// retrievable from at least one chunk.
type Chunker struct {
	// Lines is the window size.
	Lines int
	// OverlapLines is shared between consecutive windows. Must be
	// smaller than Lines.
	OverlapLines int
}

// New creates a Chunker.
func New(lines, overlapLines int) *Chunker {
	return &Chunker{Lines: lines, OverlapLines: overlapLines}
}

// Split chunks a document into nodes. Every node inherits the
// document's metadata and adds its own line range. Node IDs are
// content-addressed (path + chunk hash) so unchanged chunks keep their
// IDs across re-indexing even when line numbers shift.
func (c *Chunker) Split(doc *store.Document) []*store.Node {
	lines := strings.Split(doc.Text, "\n")

	step := c.Lines - c.OverlapLines
	if step <= 0 {
		step = c.Lines
	}

	var nodes []*store.Node
	for start := 0; start < len(lines); start += step {
		end := start + c.Lines
		if end > len(lines) {
			end = len(lines)
		}

		text := strings.Join(lines[start:end], "\n")
		if strings.TrimSpace(text) == "" {
			if end == len(lines) {
				break
			}
			continue
		}

		meta := make(map[string]string, len(doc.Metadata)+2)
		for k, v := range doc.Metadata {
			meta[k] = v
		}
		meta["start_line"] = fmt.Sprintf("%d", start+1)
		meta["end_line"] = fmt.Sprintf("%d", end)

		nodes = append(nodes, &store.Node{
			ID:       NodeID(doc.Path, text),
			DocID:    doc.ID,
			Text:     text,
			Metadata: meta,
		})

		if end == len(lines) {
			break
		}
	}

	return nodes
}

// NodeID derives a stable content-addressed chunk ID.
func NodeID(path, text string) string {
	h := sha256.New()
	h.Write([]byte(path))
	h.Write([]byte{0})
	h.Write([]byte(text))
	return hex.EncodeToString(h.Sum(nil))
}

// DocID derives a stable document ID from its path.
func DocID(path string) string {
	h := sha256.Sum256([]byte(path))
	return hex.EncodeToString(h[:])
}
