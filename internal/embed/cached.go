package embed

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCacheSize is the number of vectors kept by CachedEmbedder.
const DefaultCacheSize = 1000

// CachedEmbedder memoizes embeddings in an LRU keyed by model and text.
// Search queries repeat often; re-indexing unchanged abstracts also hits it.
type CachedEmbedder struct {
	inner Embedder
	cache *lru.Cache[string, []float32]
}

var _ Embedder = (*CachedEmbedder)(nil)

// NewCachedEmbedder wraps inner with a cache of size entries.
func NewCachedEmbedder(inner Embedder, size int) *CachedEmbedder {
	if size <= 0 {
		size = DefaultCacheSize
	}
	cache, _ := lru.New[string, []float32](size)
	return &CachedEmbedder{inner: inner, cache: cache}
}

func (c *CachedEmbedder) key(text string) string {
	sum := sha256.Sum256([]byte(c.inner.ModelName() + "\x00" + text))
	return hex.EncodeToString(sum[:])
}

// Embed implements Embedder.
func (c *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	k := c.key(text)
	if v, ok := c.cache.Get(k); ok {
		return v, nil
	}
	v, err := c.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	c.cache.Add(k, v)
	return v, nil
}

// EmbedBatch embeds only the cache misses, in one inner call.
func (c *CachedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	var missIdx []int
	var missText []string

	for i, t := range texts {
		if v, ok := c.cache.Get(c.key(t)); ok {
			out[i] = v
			continue
		}
		missIdx = append(missIdx, i)
		missText = append(missText, t)
	}
	if len(missText) == 0 {
		return out, nil
	}

	vecs, err := c.inner.EmbedBatch(ctx, missText)
	if err != nil {
		return nil, err
	}
	for j, i := range missIdx {
		out[i] = vecs[j]
		c.cache.Add(c.key(texts[i]), vecs[j])
	}
	return out, nil
}

// Len returns the number of cached vectors.
func (c *CachedEmbedder) Len() int { return c.cache.Len() }

// Inner returns the wrapped embedder.
func (c *CachedEmbedder) Inner() Embedder { return c.inner }

func (c *CachedEmbedder) Dimensions() int                    { return c.inner.Dimensions() }
func (c *CachedEmbedder) ModelName() string                  { return c.inner.ModelName() }
func (c *CachedEmbedder) Available(ctx context.Context) bool { return c.inner.Available(ctx) }
func (c *CachedEmbedder) Close() error                       { return c.inner.Close() }
