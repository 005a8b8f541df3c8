package embed

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingEmbedder records how many texts reach the inner embedder.
type countingEmbedder struct {
	inner      Embedder
	embedCalls int
	batchTexts int
}

func (c *countingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	c.embedCalls++
	return c.inner.Embed(ctx, text)
}

func (c *countingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	c.batchTexts += len(texts)
	return c.inner.EmbedBatch(ctx, texts)
}

func (c *countingEmbedder) Dimensions() int                    { return c.inner.Dimensions() }
func (c *countingEmbedder) ModelName() string                  { return c.inner.ModelName() }
func (c *countingEmbedder) Available(ctx context.Context) bool { return true }
func (c *countingEmbedder) Close() error                       { return c.inner.Close() }

func TestCachedEmbedder_SecondEmbedHitsCache(t *testing.T) {
	counting := &countingEmbedder{inner: NewStaticEmbedder()}
	cached := NewCachedEmbedder(counting, 10)
	ctx := context.Background()

	first, err := cached.Embed(ctx, "invoice")
	require.NoError(t, err)
	second, err := cached.Embed(ctx, "invoice")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, counting.embedCalls)
}

func TestCachedEmbedder_BatchEmbedsOnlyMisses(t *testing.T) {
	counting := &countingEmbedder{inner: NewStaticEmbedder()}
	cached := NewCachedEmbedder(counting, 10)
	ctx := context.Background()

	_, err := cached.Embed(ctx, "alpha")
	require.NoError(t, err)

	vecs, err := cached.EmbedBatch(ctx, []string{"alpha", "beta", "gamma"})
	require.NoError(t, err)
	require.Len(t, vecs, 3)

	// "alpha" was served from cache.
	assert.Equal(t, 2, counting.batchTexts)

	// A repeat batch is fully cached.
	_, err = cached.EmbedBatch(ctx, []string{"alpha", "beta", "gamma"})
	require.NoError(t, err)
	assert.Equal(t, 2, counting.batchTexts)
}

func TestCachedEmbedder_EvictsAtCapacity(t *testing.T) {
	counting := &countingEmbedder{inner: NewStaticEmbedder()}
	cached := NewCachedEmbedder(counting, 2)
	ctx := context.Background()

	_, err := cached.Embed(ctx, "one")
	require.NoError(t, err)
	_, err = cached.Embed(ctx, "two")
	require.NoError(t, err)
	_, err = cached.Embed(ctx, "three")
	require.NoError(t, err)

	// "one" was evicted, so embedding it again reaches the inner.
	_, err = cached.Embed(ctx, "one")
	require.NoError(t, err)
	assert.Equal(t, 4, counting.embedCalls)
}

func TestCachedEmbedder_PassthroughMetadata(t *testing.T) {
	cached := NewCachedEmbedder(NewStaticEmbedder(), 10)
	assert.Equal(t, StaticDimensions, cached.Dimensions())
	assert.Equal(t, "static", cached.ModelName())
}
