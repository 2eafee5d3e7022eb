package search

import (
	"sort"

	"github.com/Aman-CERP/pubrag/internal/store"
)

// DefaultRRFConstant is the standard RRF smoothing parameter.
const DefaultRRFConstant = 60

// FusedResult is one document after fusion, before hydration.
type FusedResult struct {
	DocID        string
	RRFScore     float64 // normalized 0-1
	BM25Score    float64
	BM25Rank     int // 1-indexed, 0 if absent
	VecScore     float64
	VecRank      int // 1-indexed, 0 if absent
	InBothLists  bool
	MatchedTerms []string
}

// RRFFusion combines BM25 and vector rankings:
//
//	score(d) = Σ weight_i / (k + rank_i(d))
//
// A document missing from list i is given rank len(list_i)+1 there.
type RRFFusion struct {
	K int
}

// NewRRFFusion returns fusion with k=60.
func NewRRFFusion() *RRFFusion {
	return &RRFFusion{K: DefaultRRFConstant}
}

// NewRRFFusionWithK returns fusion with a custom k; k <= 0 means 60.
func NewRRFFusionWithK(k int) *RRFFusion {
	if k <= 0 {
		k = DefaultRRFConstant
	}
	return &RRFFusion{K: k}
}

// Fuse ranks the union of both lists. Ties break by presence in both lists,
// then higher BM25 score, then smaller id.
func (f *RRFFusion) Fuse(bm25 []*store.BM25Result, vec []*store.VectorResult, weights Weights) []*FusedResult {
	if len(bm25) == 0 && len(vec) == 0 {
		return []*FusedResult{}
	}

	scores := make(map[string]*FusedResult, len(bm25)+len(vec))

	for rank, r := range bm25 {
		res := getOrCreate(scores, r.DocID)
		if res.BM25Rank != 0 {
			continue
		}
		res.BM25Score = r.Score
		res.BM25Rank = rank + 1
		res.MatchedTerms = r.MatchedTerms
		res.RRFScore += weights.BM25 / float64(f.K+rank+1)
	}

	for rank, r := range vec {
		res := getOrCreate(scores, r.ID)
		if res.VecRank != 0 {
			continue
		}
		res.VecScore = float64(r.Score)
		res.VecRank = rank + 1
		res.RRFScore += weights.Semantic / float64(f.K+rank+1)
		if res.BM25Rank > 0 {
			res.InBothLists = true
		}
	}

	missingBM25 := len(bm25) + 1
	missingVec := len(vec) + 1
	for _, r := range scores {
		if r.BM25Rank == 0 {
			r.RRFScore += weights.BM25 / float64(f.K+missingBM25)
		}
		if r.VecRank == 0 {
			r.RRFScore += weights.Semantic / float64(f.K+missingVec)
		}
	}

	results := make([]*FusedResult, 0, len(scores))
	for _, r := range scores {
		results = append(results, r)
	}
	sort.Slice(results, func(i, j int) bool { return less(results[i], results[j]) })

	normalize(results)
	return results
}

func getOrCreate(m map[string]*FusedResult, id string) *FusedResult {
	if r, ok := m[id]; ok {
		return r
	}
	r := &FusedResult{DocID: id}
	m[id] = r
	return r
}

func less(a, b *FusedResult) bool {
	if a.RRFScore != b.RRFScore {
		return a.RRFScore > b.RRFScore
	}
	if a.InBothLists != b.InBothLists {
		return a.InBothLists
	}
	if a.BM25Score != b.BM25Score {
		return a.BM25Score > b.BM25Score
	}
	return a.DocID < b.DocID
}

// normalize divides by the top score so the best result scores 1.
func normalize(results []*FusedResult) {
	if len(results) == 0 {
		return
	}
	top := results[0].RRFScore
	if top == 0 {
		return
	}
	for _, r := range results {
		r.RRFScore /= top
	}
}
