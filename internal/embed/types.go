// Package embed turns publication text into dense vectors.
//
// Two providers exist: Ollama (HTTP, model served locally) and a
// deterministic hash-based static embedder that needs no model. Either can be
// wrapped in CachedEmbedder.
package embed

import (
	"context"
	"math"
	"time"
)

const (
	// DefaultBatchSize is the number of texts sent per embedding request.
	DefaultBatchSize = 32

	// MaxBatchSize caps a single request.
	MaxBatchSize = 256

	// DefaultTimeout bounds one embedding request.
	DefaultTimeout = 120 * time.Second

	// StaticDimensions is the default static embedder width.
	StaticDimensions = 256
)

// Embedder generates vector embeddings for text.
type Embedder interface {
	// Embed generates the embedding of one text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch embeds texts, returning one vector per input in order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the vector width.
	Dimensions() int

	// ModelName returns the model identifier recorded in the index manifest.
	ModelName() string

	// Available reports whether the backend can serve requests right now.
	Available(ctx context.Context) bool

	Close() error
}

// normalizeVector scales v to unit length. Zero vectors are returned as-is.
func normalizeVector(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	mag := math.Sqrt(sum)
	if mag == 0 {
		return v
	}
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / mag)
	}
	return out
}

func toFloat32(v []float64) []float32 {
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(x)
	}
	return out
}
