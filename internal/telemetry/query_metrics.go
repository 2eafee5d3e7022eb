// Package telemetry keeps a local log of search queries: which terms people
// search for, which queries find nothing and how long searches take. Nothing
// leaves the persist directory.
package telemetry

import (
	"cmp"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// LatencyBucket is a coarse latency histogram bucket.
type LatencyBucket string

const (
	BucketP10   LatencyBucket = "p10"   // <10ms
	BucketP50   LatencyBucket = "p50"   // 10-50ms
	BucketP100  LatencyBucket = "p100"  // 50-100ms
	BucketP500  LatencyBucket = "p500"  // 100-500ms
	BucketP1000 LatencyBucket = "p1000" // >=500ms
)

// LatencyBuckets lists the buckets in ascending order.
var LatencyBuckets = []LatencyBucket{BucketP10, BucketP50, BucketP100, BucketP500, BucketP1000}

// LatencyToBucket converts a duration to its histogram bucket.
func LatencyToBucket(d time.Duration) LatencyBucket {
	ms := d.Milliseconds()
	switch {
	case ms < 10:
		return BucketP10
	case ms < 50:
		return BucketP50
	case ms < 100:
		return BucketP100
	case ms < 500:
		return BucketP500
	default:
		return BucketP1000
	}
}

// ring is a fixed-capacity FIFO. The oldest item is evicted when full.
type ring[T any] struct {
	items []T
	head  int
	size  int
}

func newRing[T any](capacity int) *ring[T] {
	return &ring[T]{items: make([]T, capacity)}
}

func (r *ring[T]) add(item T) {
	r.items[r.head] = item
	r.head = (r.head + 1) % len(r.items)
	if r.size < len(r.items) {
		r.size++
	}
}

// all returns the items oldest first.
func (r *ring[T]) all() []T {
	out := make([]T, 0, r.size)
	start := (r.head - r.size + len(r.items)) % len(r.items)
	for i := 0; i < r.size; i++ {
		out = append(out, r.items[(start+i)%len(r.items)])
	}
	return out
}

func (r *ring[T]) clear() {
	r.head, r.size = 0, 0
}

// ExtractTerms lowercases query and keeps words of three or more bytes.
func ExtractTerms(query string) []string {
	var terms []string
	for _, w := range strings.Fields(strings.ToLower(query)) {
		w = strings.Trim(w, `.,;:!?"'()[]`)
		if len(w) >= 3 {
			terms = append(terms, w)
		}
	}
	return terms
}

// TermCount is a search term and how often it was used.
type TermCount struct {
	Term  string `json:"term"`
	Count int64  `json:"count"`
}

// Snapshot is a point-in-time view of the query log.
type Snapshot struct {
	Modes             map[string]int64        `json:"modes"`
	TopTerms          []TermCount             `json:"top_terms"`
	ZeroResultQueries []string                `json:"zero_result_queries"`
	Latency           map[LatencyBucket]int64 `json:"latency"`
	TotalQueries      int64                   `json:"total_queries"`
	ZeroResultCount   int64                   `json:"zero_result_count"`
	Since             time.Time               `json:"since"`
}

// ZeroResultPercentage returns the share of queries that found nothing.
func (s *Snapshot) ZeroResultPercentage() float64 {
	if s.TotalQueries == 0 {
		return 0
	}
	return float64(s.ZeroResultCount) / float64(s.TotalQueries) * 100
}

// Sink persists the deltas a Recorder accumulates. *Store satisfies it.
type Sink interface {
	SaveModeCounts(date string, counts map[string]int64) error
	UpsertTermCounts(terms map[string]int64) error
	AddZeroResultQueries(queries []string, at time.Time) error
	SaveLatencyCounts(date string, counts map[LatencyBucket]int64) error
}

// Config sizes the in-memory aggregates.
type Config struct {
	TopTermsCapacity    int           // default 100
	ZeroResultsCapacity int           // default 100
	FlushInterval       time.Duration // 0 flushes only on Flush and Close
}

// DefaultConfig returns the sizes used by the CLI.
func DefaultConfig() Config {
	return Config{TopTermsCapacity: 100, ZeroResultsCapacity: 100}
}

// Recorder aggregates search queries in memory and flushes the deltas to a
// Sink. It is safe for concurrent use.
type Recorder struct {
	mu sync.Mutex

	modes       map[string]int64
	topTerms    *lru.Cache[string, int64]
	zeroResults *ring[string]
	latencies   map[LatencyBucket]int64
	total       int64
	zero        int64
	since       time.Time

	// Not yet flushed.
	pendingModes   map[string]int64
	pendingTerms   map[string]int64
	pendingZero    []string
	pendingLatency map[LatencyBucket]int64

	sink   Sink
	ticker *time.Ticker
	stopCh chan struct{}
	closed bool
	logger *slog.Logger
}

// NewRecorder returns a Recorder flushing to sink. A nil sink keeps the log
// in memory only.
func NewRecorder(sink Sink, cfg Config, logger *slog.Logger) *Recorder {
	if cfg.TopTermsCapacity <= 0 {
		cfg.TopTermsCapacity = 100
	}
	if cfg.ZeroResultsCapacity <= 0 {
		cfg.ZeroResultsCapacity = 100
	}
	if logger == nil {
		logger = slog.Default()
	}
	topTerms, _ := lru.New[string, int64](cfg.TopTermsCapacity)

	r := &Recorder{
		modes:          map[string]int64{},
		topTerms:       topTerms,
		zeroResults:    newRing[string](cfg.ZeroResultsCapacity),
		latencies:      map[LatencyBucket]int64{},
		since:          time.Now(),
		pendingModes:   map[string]int64{},
		pendingTerms:   map[string]int64{},
		pendingLatency: map[LatencyBucket]int64{},
		sink:           sink,
		stopCh:         make(chan struct{}),
		logger:         logger,
	}
	if cfg.FlushInterval > 0 && sink != nil {
		r.ticker = time.NewTicker(cfg.FlushInterval)
		go r.flushLoop()
	}
	return r
}

func (r *Recorder) flushLoop() {
	for {
		select {
		case <-r.ticker.C:
			if err := r.Flush(); err != nil {
				r.logger.Warn("query_log_flush_failed", slog.String("error", err.Error()))
			}
		case <-r.stopCh:
			return
		}
	}
}

// RecordQuery logs one completed search.
func (r *Recorder) RecordQuery(query, mode string, results int, elapsed time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}

	r.total++
	r.modes[mode]++
	r.pendingModes[mode]++

	for _, term := range ExtractTerms(query) {
		n, _ := r.topTerms.Get(term)
		r.topTerms.Add(term, n+1)
		r.pendingTerms[term]++
	}

	if results == 0 {
		r.zero++
		r.zeroResults.add(query)
		r.pendingZero = append(r.pendingZero, query)
	}

	bucket := LatencyToBucket(elapsed)
	r.latencies[bucket]++
	r.pendingLatency[bucket]++
}

// Snapshot returns the aggregates since the Recorder was created.
func (r *Recorder) Snapshot() *Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	terms := make([]TermCount, 0, r.topTerms.Len())
	for _, k := range r.topTerms.Keys() {
		if n, ok := r.topTerms.Peek(k); ok {
			terms = append(terms, TermCount{Term: k, Count: n})
		}
	}
	sortTerms(terms)

	return &Snapshot{
		Modes:             cloneMap(r.modes),
		TopTerms:          terms,
		ZeroResultQueries: r.zeroResults.all(),
		Latency:           cloneMap(r.latencies),
		TotalQueries:      r.total,
		ZeroResultCount:   r.zero,
		Since:             r.since,
	}
}

// Flush writes what was recorded since the last flush. The deltas are kept
// for the next attempt when the sink fails.
func (r *Recorder) Flush() error {
	if r.sink == nil {
		return nil
	}

	r.mu.Lock()
	modes, terms, zero, latency := r.pendingModes, r.pendingTerms, r.pendingZero, r.pendingLatency
	r.pendingModes = map[string]int64{}
	r.pendingTerms = map[string]int64{}
	r.pendingZero = nil
	r.pendingLatency = map[LatencyBucket]int64{}
	r.mu.Unlock()

	if len(modes) == 0 {
		return nil
	}

	now := time.Now()
	today := now.Format(time.DateOnly)
	err := r.sink.SaveModeCounts(today, modes)
	if err == nil {
		err = r.sink.UpsertTermCounts(terms)
	}
	if err == nil && len(zero) > 0 {
		err = r.sink.AddZeroResultQueries(zero, now)
	}
	if err == nil {
		err = r.sink.SaveLatencyCounts(today, latency)
	}
	if err != nil {
		r.requeue(modes, terms, zero, latency)
		return err
	}
	return nil
}

func (r *Recorder) requeue(modes, terms map[string]int64, zero []string, latency map[LatencyBucket]int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for k, v := range modes {
		r.pendingModes[k] += v
	}
	for k, v := range terms {
		r.pendingTerms[k] += v
	}
	r.pendingZero = append(zero, r.pendingZero...)
	for k, v := range latency {
		r.pendingLatency[k] += v
	}
}

// Close stops the flush loop and flushes once more.
func (r *Recorder) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.mu.Unlock()

	if r.ticker != nil {
		r.ticker.Stop()
		close(r.stopCh)
	}
	return r.Flush()
}

func sortTerms(terms []TermCount) {
	slices.SortFunc(terms, func(a, b TermCount) int {
		if c := cmp.Compare(b.Count, a.Count); c != 0 {
			return c
		}
		return strings.Compare(a.Term, b.Term)
	})
}

func cloneMap[K comparable](m map[K]int64) map[K]int64 {
	out := make(map[K]int64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
