package store

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newNodeStore(t *testing.T) *SQLiteNodeStore {
	t.Helper()
	s, err := NewSQLiteNodeStore(filepath.Join(t.TempDir(), "nodes.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func storedNode(id string) *Node {
	return &Node{
		ID:    id,
		DocID: "doc-" + id,
		Text:  "content of " + id,
		Metadata: map[string]string{
			"file_path":  "/src/" + id + ".cs",
			"start_line": "1",
		},
	}
}

func TestSQLiteNodeStore_PutAndGet(t *testing.T) {
	s := newNodeStore(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, []*Node{storedNode("a"), storedNode("b")}))

	got, err := s.Get(ctx, []string{"b", "a"})
	require.NoError(t, err)
	require.Len(t, got, 2)

	// Input order is preserved.
	assert.Equal(t, "b", got[0].ID)
	assert.Equal(t, "a", got[1].ID)
	assert.Equal(t, "content of a", got[1].Text)
	assert.Equal(t, "/src/a.cs", got[1].Metadata["file_path"])
}

func TestSQLiteNodeStore_GetSkipsMissingIDs(t *testing.T) {
	s := newNodeStore(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, []*Node{storedNode("a")}))

	got, err := s.Get(ctx, []string{"missing", "a"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "a", got[0].ID)
}

func TestSQLiteNodeStore_PutReplacesExisting(t *testing.T) {
	s := newNodeStore(t)
	ctx := context.Background()

	original := storedNode("a")
	require.NoError(t, s.Put(ctx, []*Node{original}))

	updated := storedNode("a")
	updated.Text = "updated content"
	require.NoError(t, s.Put(ctx, []*Node{updated}))

	got, err := s.Get(ctx, []string{"a"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "updated content", got[0].Text)

	count, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestSQLiteNodeStore_GetAll(t *testing.T) {
	s := newNodeStore(t)
	ctx := context.Background()

	var nodes []*Node
	for i := 0; i < 5; i++ {
		nodes = append(nodes, storedNode(fmt.Sprintf("n%d", i)))
	}
	require.NoError(t, s.Put(ctx, nodes))

	got, err := s.GetAll(ctx)
	require.NoError(t, err)
	assert.Len(t, got, 5)
}

func TestSQLiteNodeStore_Clear(t *testing.T) {
	s := newNodeStore(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, []*Node{storedNode("a"), storedNode("b")}))
	require.NoError(t, s.Clear(ctx))

	count, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestSQLiteNodeStore_MaxBatchSize(t *testing.T) {
	s := newNodeStore(t)

	// 32766 bound variables, 4 columns per row.
	assert.Equal(t, 8191, s.MaxBatchSize())
}

func TestSQLiteNodeStore_PutLargeBatchChunks(t *testing.T) {
	s := newNodeStore(t)
	ctx := context.Background()

	// More rows than fit in one multi-row statement.
	count := s.MaxBatchSize() + 10
	nodes := make([]*Node, count)
	for i := range nodes {
		nodes[i] = storedNode(fmt.Sprintf("n%05d", i))
	}

	require.NoError(t, s.Put(ctx, nodes))

	stored, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, count, stored)
}

func TestSQLiteNodeStore_EmptyPut(t *testing.T) {
	s := newNodeStore(t)
	assert.NoError(t, s.Put(context.Background(), nil))
}
