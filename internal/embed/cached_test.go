package embed

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingEmbedder records how many texts reached the backend.
type countingEmbedder struct {
	*StaticEmbedder
	mu    sync.Mutex
	texts []string
	err   error
}

func newCounting() *countingEmbedder {
	return &countingEmbedder{StaticEmbedder: NewStaticEmbedder(8)}
}

func (c *countingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (c *countingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	c.mu.Lock()
	c.texts = append(c.texts, texts...)
	c.mu.Unlock()
	if c.err != nil {
		return nil, c.err
	}
	return c.StaticEmbedder.EmbedBatch(ctx, texts)
}

func TestCachedEmbedder_EmbedHitsCache(t *testing.T) {
	inner := newCounting()
	c := NewCachedEmbedder(inner, 10)
	ctx := context.Background()

	first, err := c.Embed(ctx, "query")
	require.NoError(t, err)
	second, err := c.Embed(ctx, "query")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, []string{"query"}, inner.texts)
	assert.Equal(t, 1, c.Len())
}

func TestCachedEmbedder_BatchEmbedsOnlyMisses(t *testing.T) {
	inner := newCounting()
	c := NewCachedEmbedder(inner, 10)
	ctx := context.Background()

	_, err := c.Embed(ctx, "b")
	require.NoError(t, err)

	vecs, err := c.EmbedBatch(ctx, []string{"a", "b", "c"})
	require.NoError(t, err)
	require.Len(t, vecs, 3)
	for _, v := range vecs {
		assert.NotNil(t, v)
	}
	assert.Equal(t, []string{"b", "a", "c"}, inner.texts)

	_, err = c.EmbedBatch(ctx, []string{"a", "c"})
	require.NoError(t, err)
	assert.Len(t, inner.texts, 3, "fully cached batch must not reach the backend")
}

func TestCachedEmbedder_ErrorsAreNotCached(t *testing.T) {
	inner := newCounting()
	inner.err = errors.New("backend down")
	c := NewCachedEmbedder(inner, 10)

	_, err := c.EmbedBatch(context.Background(), []string{"x"})
	assert.Error(t, err)
	assert.Zero(t, c.Len())
}

func TestCachedEmbedder_EvictsOldest(t *testing.T) {
	c := NewCachedEmbedder(newCounting(), 2)
	ctx := context.Background()
	for _, s := range []string{"a", "b", "c"} {
		_, err := c.Embed(ctx, s)
		require.NoError(t, err)
	}
	assert.Equal(t, 2, c.Len())
}

func TestCachedEmbedder_Passthrough(t *testing.T) {
	inner := newCounting()
	c := NewCachedEmbedder(inner, 0)
	assert.Equal(t, 8, c.Dimensions())
	assert.Equal(t, "static-8", c.ModelName())
	assert.Same(t, Embedder(inner), c.Inner())
	assert.NoError(t, c.Close())
}
