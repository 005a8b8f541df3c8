package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDenseIndex(t *testing.T, dims int) *HNSWIndex {
	t.Helper()
	idx, err := NewHNSWIndex(DefaultVectorIndexConfig(dims))
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })
	return idx
}

func axisVector(dims, axis int) []float32 {
	v := make([]float32, dims)
	v[axis] = 1.0
	return v
}

func TestHNSWIndex_AddAndSearch(t *testing.T) {
	idx := newDenseIndex(t, 4)
	ctx := context.Background()

	require.NoError(t, idx.Add(ctx,
		[]string{"x", "y", "z"},
		[][]float32{axisVector(4, 0), axisVector(4, 1), axisVector(4, 2)}))

	results, err := idx.Search(ctx, axisVector(4, 0), 2)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "x", results[0].ID)
	assert.InDelta(t, 1.0, float64(results[0].Score), 1e-5)
}

func TestHNSWIndex_DimensionMismatch(t *testing.T) {
	idx := newDenseIndex(t, 4)
	ctx := context.Background()

	err := idx.Add(ctx, []string{"x"}, [][]float32{make([]float32, 8)})
	require.Error(t, err)

	var mismatch ErrDimensionMismatch
	assert.ErrorAs(t, err, &mismatch)
	assert.Equal(t, 4, mismatch.Expected)
	assert.Equal(t, 8, mismatch.Got)
}

func TestHNSWIndex_ReplaceExistingID(t *testing.T) {
	idx := newDenseIndex(t, 4)
	ctx := context.Background()

	require.NoError(t, idx.Add(ctx, []string{"x"}, [][]float32{axisVector(4, 0)}))
	require.NoError(t, idx.Add(ctx, []string{"x"}, [][]float32{axisVector(4, 1)}))

	assert.Equal(t, 1, idx.Count())

	results, err := idx.Search(ctx, axisVector(4, 1), 1)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "x", results[0].ID)
	assert.InDelta(t, 1.0, float64(results[0].Score), 1e-5)
}

func TestHNSWIndex_Delete(t *testing.T) {
	idx := newDenseIndex(t, 4)
	ctx := context.Background()

	require.NoError(t, idx.Add(ctx,
		[]string{"x", "y"},
		[][]float32{axisVector(4, 0), axisVector(4, 1)}))
	require.NoError(t, idx.Delete(ctx, []string{"x"}))

	assert.Equal(t, 1, idx.Count())

	results, err := idx.Search(ctx, axisVector(4, 0), 2)
	require.NoError(t, err)
	for _, r := range results {
		assert.NotEqual(t, "x", r.ID)
	}
}

func TestHNSWIndex_SaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "vectors.hnsw")
	ctx := context.Background()

	idx := newDenseIndex(t, 4)
	require.NoError(t, idx.Add(ctx,
		[]string{"x", "y"},
		[][]float32{axisVector(4, 0), axisVector(4, 1)}))
	require.NoError(t, idx.Save(path))

	restored := newDenseIndex(t, 4)
	require.NoError(t, restored.Load(path))

	assert.Equal(t, 2, restored.Count())

	results, err := restored.Search(ctx, axisVector(4, 1), 1)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "y", results[0].ID)
}

func TestNewHNSWIndex_RejectsZeroDimensions(t *testing.T) {
	_, err := NewHNSWIndex(VectorIndexConfig{Dimensions: 0})
	assert.Error(t, err)
}
