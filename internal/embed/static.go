package embed

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"regexp"
	"strings"
	"sync"
)

// ErrEmbedderClosed is returned by embedders after Close.
var ErrEmbedderClosed = errors.New("embedder is closed")

const (
	tokenWeight = 0.7
	ngramWeight = 0.3
	ngramSize   = 3
)

var wordRegex = regexp.MustCompile(`[\p{L}\p{N}]+`)

// stopWords are dropped before hashing; they carry no topical signal.
var stopWords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true, "at": true,
	"be": true, "by": true, "for": true, "from": true, "in": true, "is": true,
	"it": true, "of": true, "on": true, "or": true, "that": true, "the": true,
	"this": true, "to": true, "we": true, "with": true, "our": true, "these": true,
}

// StaticEmbedder hashes words and character trigrams into a fixed-width
// vector. It is deterministic and needs no network, at the cost of semantic quality.
type StaticEmbedder struct {
	dims int

	mu     sync.RWMutex
	closed bool
}

// NewStaticEmbedder returns a static embedder of width dims (StaticDimensions when <= 0).
func NewStaticEmbedder(dims int) *StaticEmbedder {
	if dims <= 0 {
		dims = StaticDimensions
	}
	return &StaticEmbedder{dims: dims}
}

// Embed implements Embedder.
func (e *StaticEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return nil, ErrEmbedderClosed
	}
	return e.vector(text), nil
}

func (e *StaticEmbedder) vector(text string) []float32 {
	v := make([]float32, e.dims)
	text = strings.ToLower(strings.TrimSpace(text))
	if text == "" {
		return v
	}

	for _, w := range wordRegex.FindAllString(text, -1) {
		if stopWords[w] {
			continue
		}
		v[e.bucket(w)] += tokenWeight
	}

	compact := strings.Join(strings.Fields(text), " ")
	runes := []rune(compact)
	for i := 0; i+ngramSize <= len(runes); i++ {
		v[e.bucket(string(runes[i:i+ngramSize]))] += ngramWeight
	}

	return normalizeVector(v)
}

func (e *StaticEmbedder) bucket(s string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(s))
	return int(h.Sum32() % uint32(e.dims))
}

// EmbedBatch implements Embedder.
func (e *StaticEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		v, err := e.Embed(ctx, t)
		if err != nil {
			return nil, fmt.Errorf("failed to embed text %d: %w", i, err)
		}
		out[i] = v
	}
	return out, nil
}

// Dimensions implements Embedder.
func (e *StaticEmbedder) Dimensions() int { return e.dims }

// ModelName implements Embedder.
func (e *StaticEmbedder) ModelName() string { return fmt.Sprintf("static-%d", e.dims) }

// Available implements Embedder.
func (e *StaticEmbedder) Available(context.Context) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return !e.closed
}

// Close implements Embedder.
func (e *StaticEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}
