package indexer

import (
	"log/slog"

	"github.com/Aman-CERP/pubrag/internal/embed"
	"github.com/Aman-CERP/pubrag/internal/metrics"
	"github.com/Aman-CERP/pubrag/internal/store"
	"github.com/Aman-CERP/pubrag/internal/ui"
)

// Option configures New.
type Option func(*options)

type options struct {
	provider    embed.ProviderType
	database    string
	bm25Backend store.BM25Backend
	renderer    ui.Renderer
	logger      *slog.Logger
	metrics     *metrics.Collector
	embed       embed.Options
	rebuild     bool
}

func defaultOptions() options {
	return options{
		provider: embed.ProviderOllama,
		renderer: ui.NopRenderer{},
		embed: embed.Options{
			BatchSize: embed.DefaultBatchSize,
		},
	}
}

// WithProvider selects the embedding backend.
func WithProvider(p embed.ProviderType) Option {
	return func(o *options) { o.provider = p }
}

// WithDatabase selects a Neo4j database other than the server default.
func WithDatabase(name string) Option {
	return func(o *options) { o.database = name }
}

// WithBM25Backend selects the keyword index implementation. When unset the
// backend already on disk is reused, or SQLite for a fresh directory.
func WithBM25Backend(b store.BM25Backend) Option {
	return func(o *options) { o.bm25Backend = b }
}

// WithRenderer sends progress to r.
func WithRenderer(r ui.Renderer) Option {
	return func(o *options) {
		if r != nil {
			o.renderer = r
		}
	}
}

// WithLogger replaces slog.Default.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithMetrics records batch counters on c.
func WithMetrics(c *metrics.Collector) Option {
	return func(o *options) { o.metrics = c }
}

// WithOllamaHost points the Ollama embedder at host.
func WithOllamaHost(host string) Option {
	return func(o *options) { o.embed.OllamaHost = host }
}

// WithEmbedOptions sets cache, dimensions, rate limit and fallback for the
// embedder. The Ollama host set by WithOllamaHost is kept when opts leaves it empty.
func WithEmbedOptions(opts embed.Options) Option {
	return func(o *options) {
		host := o.embed.OllamaHost
		o.embed = opts
		if o.embed.OllamaHost == "" {
			o.embed.OllamaHost = host
		}
	}
}

// WithRebuild discards the existing index before indexing.
func WithRebuild(rebuild bool) Option {
	return func(o *options) { o.rebuild = rebuild }
}
