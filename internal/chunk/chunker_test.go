package chunk

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkallur/srcindex/internal/store"
)

func numberedDoc(lines int) *store.Document {
	var sb strings.Builder
	for i := 1; i <= lines; i++ {
		fmt.Fprintf(&sb, "line %d\n", i)
	}
	return &store.Document{
		ID:   "doc-1",
		Path: "/src/File.cs",
		Text: strings.TrimSuffix(sb.String(), "\n"),
		Metadata: map[string]string{
			"file_path":   "/src/File.cs",
			"source_repo": "acme",
		},
	}
}

func TestChunker_SmallDocumentIsOneChunk(t *testing.T) {
	doc := numberedDoc(10)
	nodes := New(80, 10).Split(doc)

	require.Len(t, nodes, 1)
	assert.Equal(t, doc.Text, nodes[0].Text)
	assert.Equal(t, "1", nodes[0].Metadata["start_line"])
	assert.Equal(t, "10", nodes[0].Metadata["end_line"])
}

func TestChunker_OverlappingWindows(t *testing.T) {
	doc := numberedDoc(200)
	nodes := New(80, 10).Split(doc)

	// Windows advance by 70: [1-80], [71-150], [141-200].
	require.Len(t, nodes, 3)
	assert.Equal(t, "1", nodes[0].Metadata["start_line"])
	assert.Equal(t, "80", nodes[0].Metadata["end_line"])
	assert.Equal(t, "71", nodes[1].Metadata["start_line"])
	assert.Equal(t, "150", nodes[1].Metadata["end_line"])
	assert.Equal(t, "141", nodes[2].Metadata["start_line"])
	assert.Equal(t, "200", nodes[2].Metadata["end_line"])

	// Consecutive chunks share the overlap region.
	assert.Contains(t, nodes[0].Text, "line 75")
	assert.Contains(t, nodes[1].Text, "line 75")
}

func TestChunker_InheritsDocumentMetadata(t *testing.T) {
	doc := numberedDoc(100)
	nodes := New(80, 10).Split(doc)

	require.NotEmpty(t, nodes)
	for _, n := range nodes {
		assert.Equal(t, "acme", n.Metadata["source_repo"])
		assert.Equal(t, "/src/File.cs", n.Metadata["file_path"])
		assert.Equal(t, "doc-1", n.DocID)
	}

	// Chunk metadata is a copy, not a shared map.
	nodes[0].Metadata["source_repo"] = "mutated"
	assert.Equal(t, "acme", doc.Metadata["source_repo"])
	assert.Equal(t, "acme", nodes[1].Metadata["source_repo"])
}

func TestChunker_SkipsWhitespaceOnlyWindows(t *testing.T) {
	doc := &store.Document{
		ID:   "doc-1",
		Path: "/src/File.cs",
		Text: "real content\n" + strings.Repeat("\n", 300) + "\nmore content",
	}

	nodes := New(80, 10).Split(doc)

	for _, n := range nodes {
		assert.NotEmpty(t, strings.TrimSpace(n.Text))
	}
}

func TestChunker_StableContentAddressedIDs(t *testing.T) {
	doc := numberedDoc(200)
	first := New(80, 10).Split(doc)
	second := New(80, 10).Split(doc)

	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i].ID, second[i].ID)
	}

	// Same text under a different path gets different IDs.
	moved := numberedDoc(200)
	moved.Path = "/src/Other.cs"
	other := New(80, 10).Split(moved)
	assert.NotEqual(t, first[0].ID, other[0].ID)
}

func TestNodeID_SeparatorPreventsCollisions(t *testing.T) {
	// path+text concatenation must not be ambiguous.
	assert.NotEqual(t, NodeID("ab", "c"), NodeID("a", "bc"))
}

func TestDocID_Deterministic(t *testing.T) {
	assert.Equal(t, DocID("/src/a.cs"), DocID("/src/a.cs"))
	assert.NotEqual(t, DocID("/src/a.cs"), DocID("/src/b.cs"))
}
