// Package store persists the publication index: HNSW vectors, a BM25 keyword
// index (SQLite FTS5 or Bleve), a SQLite document table, the index manifest
// and the cross-process index lock.
package store

import (
	"context"
	"errors"
	"fmt"
)

// ErrStoreClosed is returned by operations on a closed store.
var ErrStoreClosed = errors.New("store is closed")

// Document is one indexed publication.
type Document struct {
	ID    string
	Title string
	// Text is the embedded and keyword-indexed body (title and abstract).
	Text string
	Year int
}

// BM25Result is a single keyword hit.
type BM25Result struct {
	DocID        string
	Score        float64
	MatchedTerms []string
}

// IndexStats describes a BM25 index.
type IndexStats struct {
	DocumentCount int
}

// BM25Index provides keyword search scored by BM25.
type BM25Index interface {
	// Index adds docs, replacing any with the same ID.
	Index(ctx context.Context, docs []*Document) error

	// Search returns up to limit docs matching query, best first.
	Search(ctx context.Context, query string, limit int) ([]*BM25Result, error)

	Delete(ctx context.Context, docIDs []string) error

	// AllIDs returns every indexed document ID, sorted.
	AllIDs() ([]string, error)

	Stats() *IndexStats

	// Backend names the implementation ("sqlite" or "bleve").
	Backend() BM25Backend

	Close() error
}

// BM25Config configures tokenization for both BM25 backends.
type BM25Config struct {
	StopWords      []string
	MinTokenLength int
}

// DefaultBM25Config returns English prose defaults.
func DefaultBM25Config() BM25Config {
	return BM25Config{
		StopWords:      DefaultStopWords,
		MinTokenLength: 2,
	}
}

// DefaultStopWords are filtered from documents and queries before indexing.
var DefaultStopWords = []string{
	"a", "an", "and", "are", "as", "at", "be", "by", "for", "from", "in",
	"into", "is", "it", "its", "of", "on", "or", "that", "the", "their",
	"this", "to", "was", "we", "were", "which", "with", "our", "these",
}

// VectorResult is a single nearest-neighbour hit.
type VectorResult struct {
	ID       string
	Distance float32 // cosine distance, 0..2
	Score    float32 // similarity, 0..1
}

// VectorStoreConfig configures the HNSW graph.
type VectorStoreConfig struct {
	Dimensions int
	M          int
	EfSearch   int
}

// DefaultVectorStoreConfig returns defaults for the given width.
func DefaultVectorStoreConfig(dimensions int) VectorStoreConfig {
	return VectorStoreConfig{
		Dimensions: dimensions,
		M:          16,
		EfSearch:   64,
	}
}

// VectorStore provides approximate nearest-neighbour search.
type VectorStore interface {
	// Add inserts vectors. An existing ID is replaced.
	Add(ctx context.Context, ids []string, vectors [][]float32) error

	// Search returns the k nearest vectors to query.
	Search(ctx context.Context, query []float32, k int) ([]*VectorResult, error)

	Delete(ctx context.Context, ids []string) error
	Contains(id string) bool
	Count() int

	// AllIDs returns every live ID, sorted.
	AllIDs() []string

	Save(path string) error
	Load(path string) error
	Close() error
}

// ErrDimensionMismatch indicates a vector of the wrong width.
type ErrDimensionMismatch struct {
	Expected int
	Got      int
}

func (e ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d (run 'pubrag index --rebuild')", e.Expected, e.Got)
}
