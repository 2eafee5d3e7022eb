package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	perrors "github.com/Aman-CERP/pubrag/internal/errors"
	"github.com/Aman-CERP/pubrag/internal/embed"
	"github.com/Aman-CERP/pubrag/internal/metrics"
	"github.com/Aman-CERP/pubrag/internal/store"
)

// DocumentReader hydrates fused ids. *store.DocumentStore satisfies it.
type DocumentReader interface {
	Get(ctx context.Context, ids []string) (map[string]*store.Document, error)
}

// QueryRecorder receives one call per completed search.
// *telemetry.Recorder satisfies it.
type QueryRecorder interface {
	RecordQuery(query, mode string, results int, elapsed time.Duration)
}

// Engine runs BM25 and vector retrieval in parallel and fuses the rankings.
// It is safe for concurrent use.
type Engine struct {
	bm25     store.BM25Index
	vectors  store.VectorStore
	embedder embed.Embedder
	docs     DocumentReader

	fusion       *RRFFusion
	weights      Weights
	defaultLimit int
	expander     *QueryExpander
	metrics      *metrics.Collector
	queries      QueryRecorder
	logger       *slog.Logger
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithWeights sets the default fusion weights.
func WithWeights(w Weights) EngineOption {
	return func(e *Engine) { e.weights = w }
}

// WithRRFConstant sets k.
func WithRRFConstant(k int) EngineOption {
	return func(e *Engine) { e.fusion = NewRRFFusionWithK(k) }
}

// WithDefaultLimit sets the limit used when Options.Limit is zero.
func WithDefaultLimit(n int) EngineOption {
	return func(e *Engine) {
		if n > 0 {
			e.defaultLimit = min(n, MaxLimit)
		}
	}
}

// WithQueryExpander expands BM25 queries with acronym spellings.
func WithQueryExpander(x *QueryExpander) EngineOption {
	return func(e *Engine) { e.expander = x }
}

// WithMetrics records request counts and latency.
func WithMetrics(c *metrics.Collector) EngineOption {
	return func(e *Engine) { e.metrics = c }
}

// WithQueryRecorder reports every completed search to r.
func WithQueryRecorder(r QueryRecorder) EngineOption {
	return func(e *Engine) { e.queries = r }
}

// WithLogger replaces slog.Default.
func WithLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) { e.logger = l }
}

// NewEngine builds an engine. A nil embedder or vector store makes every
// search BM25-only.
func NewEngine(bm25 store.BM25Index, vectors store.VectorStore, embedder embed.Embedder, docs DocumentReader, opts ...EngineOption) (*Engine, error) {
	if bm25 == nil {
		return nil, fmt.Errorf("BM25 index is required")
	}
	if docs == nil {
		return nil, fmt.Errorf("document reader is required")
	}
	e := &Engine{
		bm25:         bm25,
		vectors:      vectors,
		embedder:     embedder,
		docs:         docs,
		fusion:       NewRRFFusion(),
		weights:      DefaultWeights(),
		defaultLimit: DefaultLimit,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if err := e.weights.Validate(); err != nil {
		return nil, perrors.ConfigError("invalid search weights", err)
	}
	return e, nil
}

// Search returns up to opts.Limit publications for query, best first.
func (e *Engine) Search(ctx context.Context, query string, opts Options) ([]Result, error) {
	start := time.Now()
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = e.defaultLimit
	}
	limit = min(limit, MaxLimit)

	weights := e.weights
	if opts.Weights != nil {
		if err := opts.Weights.Validate(); err != nil {
			return nil, perrors.New(perrors.ErrCodeSearchFailed, "invalid weights", err)
		}
		weights = *opts.Weights
	}

	candidates := limit * candidateFactor
	if opts.yearFiltered() {
		candidates *= 2
	}

	useVectors := !opts.BM25Only && e.embedder != nil && e.vectors != nil
	bm25Hits, vecHits, degraded, err := e.retrieve(ctx, query, candidates, useVectors)
	if err != nil {
		return nil, err
	}

	mode := metrics.ModeHybrid
	if !useVectors || degraded {
		mode = metrics.ModeBM25Only
	}

	fused := e.fusion.Fuse(bm25Hits, vecHits, weights)
	results, err := e.hydrate(ctx, fused, opts, limit)
	if err != nil {
		return nil, err
	}

	elapsed := time.Since(start)
	e.metrics.RecordSearch(mode, elapsed)
	if e.queries != nil {
		e.queries.RecordQuery(query, mode, len(results), elapsed)
	}
	e.logger.Debug("search_complete",
		slog.String("query", query),
		slog.String("mode", mode),
		slog.Int("bm25_hits", len(bm25Hits)),
		slog.Int("vector_hits", len(vecHits)),
		slog.Int("results", len(results)),
		slog.Duration("duration", elapsed))
	return results, nil
}

// retrieve runs both retrievers. A failing embedder or vector store degrades
// to BM25-only; only both failing is an error.
func (e *Engine) retrieve(ctx context.Context, query string, k int, useVectors bool) (
	bm25Hits []*store.BM25Result, vecHits []*store.VectorResult, degraded bool, err error,
) {
	g, gctx := errgroup.WithContext(ctx)
	var bm25Err, vecErr error

	bm25Query := query
	if e.expander != nil {
		bm25Query = e.expander.Expand(query)
	}

	g.Go(func() error {
		bm25Hits, bm25Err = e.bm25.Search(gctx, bm25Query, k)
		return nil
	})

	if useVectors {
		g.Go(func() error {
			vec, embedErr := e.embedder.Embed(gctx, query)
			if embedErr != nil {
				vecErr = embedErr
				return nil
			}
			vecHits, vecErr = e.vectors.Search(gctx, vec, k)
			return nil
		})
	}

	_ = g.Wait()
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, nil, false, ctxErr
	}

	switch {
	case bm25Err != nil && (vecErr != nil || !useVectors):
		return nil, nil, false, perrors.New(perrors.ErrCodeSearchFailed, "search failed", errors.Join(bm25Err, vecErr))
	case vecErr != nil:
		e.logger.Warn("search_degraded",
			slog.String("mode", metrics.ModeBM25Only),
			slog.String("error", vecErr.Error()))
		return bm25Hits, nil, true, nil
	case bm25Err != nil:
		e.logger.Warn("bm25_search_failed", slog.String("error", bm25Err.Error()))
		return nil, vecHits, false, nil
	}
	return bm25Hits, vecHits, false, nil
}

// hydrate attaches titles and snippets, applies the year filter and cuts
// to limit. Ids missing from the document table are dropped.
func (e *Engine) hydrate(ctx context.Context, fused []*FusedResult, opts Options, limit int) ([]Result, error) {
	if len(fused) == 0 {
		return []Result{}, nil
	}

	ids := make([]string, len(fused))
	for i, f := range fused {
		ids[i] = f.DocID
	}
	docs, err := e.docs.Get(ctx, ids)
	if err != nil {
		return nil, perrors.New(perrors.ErrCodeSearchFailed, "failed to load documents", err)
	}

	results := make([]Result, 0, min(limit, len(fused)))
	for _, f := range fused {
		doc, ok := docs[f.DocID]
		if !ok {
			e.logger.Debug("search_stale_id", slog.String("id", f.DocID))
			continue
		}
		if !opts.inYearRange(doc.Year) {
			continue
		}
		results = append(results, Result{
			ID:           doc.ID,
			Title:        doc.Title,
			Snippet:      Snippet(doc, snippetLength),
			Year:         doc.Year,
			Score:        f.RRFScore,
			BM25Score:    f.BM25Score,
			VectorScore:  f.VecScore,
			BM25Rank:     f.BM25Rank,
			VectorRank:   f.VecRank,
			InBoth:       f.InBothLists,
			MatchedTerms: f.MatchedTerms,
		})
		if len(results) == limit {
			break
		}
	}
	return results, nil
}

// Snippet returns the start of the document body after the title, cut at a
// word boundary to at most n runes.
func Snippet(doc *store.Document, n int) string {
	body := strings.TrimSpace(strings.TrimPrefix(doc.Text, doc.Title))
	if body == "" {
		body = doc.Title
	}
	body = strings.Join(strings.Fields(body), " ")
	if utf8.RuneCountInString(body) <= n {
		return body
	}
	runes := []rune(body)
	cut := string(runes[:n])
	if i := strings.LastIndexByte(cut, ' '); i > n/2 {
		cut = cut[:i]
	}
	return cut + "..."
}
