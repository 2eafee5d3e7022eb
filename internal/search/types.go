// Package search provides hybrid publication search combining BM25 keyword
// matching and vector similarity. Results are fused with weighted Reciprocal
// Rank Fusion (RRF).
package search

import (
	"errors"
	"fmt"
	"math"
)

const (
	// DefaultLimit is the result count when Options.Limit is zero.
	DefaultLimit = 10

	// MaxLimit caps Options.Limit.
	MaxLimit = 100

	// candidateFactor widens each retriever's candidate list relative to
	// the requested limit so fusion and year filters have room to work.
	candidateFactor = 3

	snippetLength = 240
)

// ErrEmptyQuery is returned for a blank query.
var ErrEmptyQuery = errors.New("search query is empty")

// Weights sets the relative importance of BM25 and semantic search.
type Weights struct {
	BM25     float64
	Semantic float64
}

// DefaultWeights favours semantic matches for natural-language questions.
func DefaultWeights() Weights {
	return Weights{BM25: 0.35, Semantic: 0.65}
}

// Validate checks that both weights are in [0,1] and sum to 1.
func (w Weights) Validate() error {
	if w.BM25 < 0 || w.BM25 > 1 || w.Semantic < 0 || w.Semantic > 1 {
		return fmt.Errorf("weights must be in [0,1], got bm25=%.2f semantic=%.2f", w.BM25, w.Semantic)
	}
	if math.Abs(w.BM25+w.Semantic-1) > 0.01 {
		return fmt.Errorf("weights must sum to 1, got %.2f", w.BM25+w.Semantic)
	}
	return nil
}

// Options configures one search.
type Options struct {
	// Limit is the maximum number of results (default 10, max 100).
	Limit int

	// Weights overrides the engine defaults when non-nil.
	Weights *Weights

	// YearFrom and YearTo bound the publication year, inclusive. Zero means
	// unbounded. Publications with an unknown year are excluded when either
	// bound is set.
	YearFrom int
	YearTo   int

	// BM25Only skips the embedder and vector store.
	BM25Only bool
}

func (o Options) yearFiltered() bool { return o.YearFrom > 0 || o.YearTo > 0 }

func (o Options) inYearRange(year int) bool {
	if !o.yearFiltered() {
		return true
	}
	if year == 0 {
		return false
	}
	if o.YearFrom > 0 && year < o.YearFrom {
		return false
	}
	if o.YearTo > 0 && year > o.YearTo {
		return false
	}
	return true
}

// Result is one ranked publication.
type Result struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
	Year    int    `json:"year,omitempty"`

	// Score is the fused score normalized to [0,1].
	Score float64 `json:"score"`

	BM25Score   float64 `json:"bm25_score"`
	VectorScore float64 `json:"vector_score"`
	BM25Rank    int     `json:"bm25_rank,omitempty"`
	VectorRank  int     `json:"vector_rank,omitempty"`
	InBoth      bool    `json:"in_both"`

	MatchedTerms []string `json:"matched_terms,omitempty"`
}
