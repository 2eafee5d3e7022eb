package embed

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func norm(v []float32) float64 {
	var s float64
	for _, x := range v {
		s += float64(x) * float64(x)
	}
	return math.Sqrt(s)
}

func cosine(a, b []float32) float64 {
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot / (norm(a) * norm(b))
}

func TestStaticEmbedder_DeterministicAndNormalized(t *testing.T) {
	e := NewStaticEmbedder(0)
	ctx := context.Background()

	a, err := e.Embed(ctx, "Graph neural networks for citation recommendation")
	require.NoError(t, err)
	b, err := e.Embed(ctx, "Graph neural networks for citation recommendation")
	require.NoError(t, err)

	assert.Len(t, a, StaticDimensions)
	assert.Equal(t, a, b)
	assert.InDelta(t, 1.0, norm(a), 1e-5)
}

func TestStaticEmbedder_SimilarTextsScoreHigher(t *testing.T) {
	e := NewStaticEmbedder(512)
	ctx := context.Background()

	q, _ := e.Embed(ctx, "citation graph embeddings")
	near, _ := e.Embed(ctx, "Learning embeddings of citation graphs")
	far, _ := e.Embed(ctx, "Protein folding with molecular dynamics")

	assert.Greater(t, cosine(q, near), cosine(q, far))
}

func TestStaticEmbedder_EmptyTextIsZeroVector(t *testing.T) {
	e := NewStaticEmbedder(16)
	v, err := e.Embed(context.Background(), "   ")
	require.NoError(t, err)
	assert.Equal(t, make([]float32, 16), v)
}

func TestStaticEmbedder_BatchAndClose(t *testing.T) {
	e := NewStaticEmbedder(32)
	ctx := context.Background()

	vecs, err := e.EmbedBatch(ctx, []string{"one", "two", "three"})
	require.NoError(t, err)
	assert.Len(t, vecs, 3)
	assert.Equal(t, "static-32", e.ModelName())
	assert.Equal(t, 32, e.Dimensions())
	assert.True(t, e.Available(ctx))

	require.NoError(t, e.Close())
	assert.False(t, e.Available(ctx))
	_, err = e.Embed(ctx, "late")
	assert.ErrorIs(t, err, ErrEmbedderClosed)
}

func TestNormalizeVector_Zero(t *testing.T) {
	v := []float32{0, 0}
	assert.Equal(t, v, normalizeVector(v))
}
