// Package metrics exposes Prometheus counters and histograms for indexing
// and search. Every method is a no-op on a nil *Collector, so callers can
// take metrics as an optional dependency.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Namespace prefixes every metric name.
const Namespace = "pubrag"

// Batch outcomes for pubrag_index_batches_total.
const (
	BatchOK     = "ok"
	BatchFailed = "failed"
)

// Search modes for pubrag_search_requests_total.
const (
	ModeHybrid   = "hybrid"
	ModeBM25Only = "bm25_only"
)

// Collector owns a private registry, so tests and multiple servers never
// collide on the global one.
type Collector struct {
	registry *prometheus.Registry

	publicationsIndexed prometheus.Counter
	publicationsSkipped prometheus.Counter
	indexBatches        *prometheus.CounterVec
	embedDuration       prometheus.Histogram
	searchRequests      *prometheus.CounterVec
	searchDuration      prometheus.Histogram
}

// NewCollector registers all metrics plus the Go and process collectors.
func NewCollector() *Collector {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Collector{
		registry: reg,
		publicationsIndexed: f.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "publications_indexed_total",
			Help:      "Publications written to the index.",
		}),
		publicationsSkipped: f.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "publications_skipped_total",
			Help:      "Publications skipped for a missing id or title.",
		}),
		indexBatches: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "index_batches_total",
			Help:      "Indexing batches by outcome.",
		}, []string{"status"}),
		embedDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "embed_duration_seconds",
			Help:      "Time to embed one batch.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
		}),
		searchRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "search_requests_total",
			Help:      "Search requests by retrieval mode.",
		}, []string{"mode"}),
		searchDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "search_duration_seconds",
			Help:      "End-to-end hybrid search latency.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
}

// RecordBatch records one indexing batch.
func (c *Collector) RecordBatch(indexed, skipped int, embed time.Duration, err error) {
	if c == nil {
		return
	}
	if err != nil {
		c.indexBatches.WithLabelValues(BatchFailed).Inc()
		return
	}
	c.indexBatches.WithLabelValues(BatchOK).Inc()
	c.publicationsIndexed.Add(float64(indexed))
	c.publicationsSkipped.Add(float64(skipped))
	c.embedDuration.Observe(embed.Seconds())
}

// RecordSearch records one search request.
func (c *Collector) RecordSearch(mode string, d time.Duration) {
	if c == nil {
		return
	}
	c.searchRequests.WithLabelValues(mode).Inc()
	c.searchDuration.Observe(d.Seconds())
}

// Registry returns the private registry.
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}
