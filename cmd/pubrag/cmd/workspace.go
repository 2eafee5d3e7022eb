package cmd

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/Aman-CERP/pubrag/internal/config"
	"github.com/Aman-CERP/pubrag/internal/embed"
	perrors "github.com/Aman-CERP/pubrag/internal/errors"
	"github.com/Aman-CERP/pubrag/internal/graph"
	"github.com/Aman-CERP/pubrag/internal/metrics"
	"github.com/Aman-CERP/pubrag/internal/search"
	"github.com/Aman-CERP/pubrag/internal/store"
	"github.com/Aman-CERP/pubrag/internal/telemetry"
)

// workspace is a resolved root with its .env loaded and settings parsed.
type workspace struct {
	root      string
	settings  *config.Settings
	envLoaded bool
}

// workspaceRoot honours --root, then walks up from the working directory.
func workspaceRoot() (string, error) {
	if rootDir != "" {
		return filepath.Abs(rootDir)
	}
	return config.FindWorkspaceRoot(".")
}

// loadWorkspace loads .env before the settings so its values take part in
// the environment overrides.
func loadWorkspace() (*workspace, error) {
	root, err := workspaceRoot()
	if err != nil {
		return nil, perrors.New(perrors.ErrCodeWorkspace, "failed to resolve workspace root", err)
	}
	loaded, err := config.LoadDotEnv(root)
	if err != nil {
		return nil, err
	}
	settings, err := config.Load(root)
	if err != nil {
		return nil, err
	}
	return &workspace{root: root, settings: settings, envLoaded: loaded}, nil
}

func (w *workspace) config() *config.Config { return w.settings.Config() }

func (w *workspace) persistDir() string { return w.config().ResolvePersistDir(w.root) }

func (w *workspace) layout() store.Layout { return store.NewLayout(w.persistDir()) }

func (w *workspace) provider() (embed.ProviderType, error) {
	return embed.ParseProvider(w.config().Embeddings.Provider)
}

func (w *workspace) embedOptions() embed.Options {
	ec := w.config().Embeddings
	return embed.Options{
		OllamaHost:        ec.OllamaHost,
		Dimensions:        ec.Dimensions,
		BatchSize:         ec.BatchSize,
		RequestsPerSecond: ec.RequestsPerSecond,
		CacheSize:         ec.CacheSize,
	}
}

// dialGraph connects to Neo4j. Tests replace it.
var dialGraph = func(ctx context.Context, cfg *config.Config) (graph.Runner, func(), error) {
	cc, err := cfg.Neo4j.ClientConfig()
	if err != nil {
		return nil, nil, err
	}
	client, err := graph.NewNeo4jClient(ctx, cc)
	if err != nil {
		return nil, nil, err
	}
	closeFn := func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := client.Close(closeCtx); err != nil {
			slog.Warn("graph_close_failed", slog.String("error", err.Error()))
		}
	}
	return client, closeFn, nil
}

// openGraph connects with the neo4j section. The returned close func is
// safe to defer.
func (w *workspace) openGraph(ctx context.Context) (graph.Runner, func(), error) {
	return dialGraph(ctx, w.config())
}

// readManifest maps a missing manifest to ErrCodeIndexNotFound.
func readManifest(layout store.Layout) (*store.Manifest, error) {
	m, err := store.ReadManifest(layout)
	if err != nil {
		if errors.Is(err, store.ErrNoManifest) {
			return nil, perrors.New(perrors.ErrCodeIndexNotFound, "no index in "+layout.Dir, err).
				WithSuggestion("run 'pubrag index' first")
		}
		return nil, perrors.New(perrors.ErrCodeStoreCorrupt, "failed to read index manifest", err).
			WithSuggestion("run 'pubrag index --rebuild'")
	}
	return m, nil
}

type stackOptions struct {
	bm25Only bool
	metrics  *metrics.Collector
	queries  *telemetry.Recorder
	logger   *slog.Logger
}

// openQueryLog opens the query log under the persist dir when
// search.query_log is on. It returns nil when the log is off or cannot be
// opened; searching works either way.
func openQueryLog(w *workspace, flushEvery time.Duration) (*telemetry.Recorder, func()) {
	if !w.config().Search.QueryLog {
		return nil, func() {}
	}
	st, err := telemetry.Open(w.layout().TelemetryPath())
	if err != nil {
		slog.Warn("query_log_unavailable", slog.String("error", err.Error()))
		return nil, func() {}
	}
	cfg := telemetry.DefaultConfig()
	cfg.FlushInterval = flushEvery
	rec := telemetry.NewRecorder(st, cfg, slog.Default())
	return rec, func() {
		if err := rec.Close(); err != nil {
			slog.Warn("query_log_flush_failed", slog.String("error", err.Error()))
		}
		_ = st.Close()
	}
}

// searchStack holds the read side of an index: the stores named by the
// manifest and an engine over them.
type searchStack struct {
	engine   *search.Engine
	docs     *store.DocumentStore
	manifest *store.Manifest
	layout   store.Layout
	closers  []func() error
}

// Close releases the stores in reverse order of opening.
func (s *searchStack) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}

// openSearchStack opens the index under the workspace persist dir. The query
// embedder is built for the model recorded in the manifest. When it cannot
// be reached the engine runs BM25-only.
func openSearchStack(ctx context.Context, w *workspace, opts stackOptions) (*searchStack, error) {
	logger := opts.logger
	if logger == nil {
		logger = slog.Default()
	}
	layout := w.layout()
	m, err := readManifest(layout)
	if err != nil {
		return nil, err
	}

	s := &searchStack{manifest: m, layout: layout}
	fail := func(err error) (*searchStack, error) {
		_ = s.Close()
		return nil, err
	}

	backend := m.BM25Backend
	if backend == "" {
		backend = store.DetectBM25Backend(layout)
	}
	bm25, err := store.NewBM25Index(backend, layout.BM25Path(backend))
	if err != nil {
		return fail(perrors.StorageError("failed to open BM25 index", err))
	}
	s.closers = append(s.closers, bm25.Close)

	docs, err := store.NewDocumentStore(layout.DocumentsPath())
	if err != nil {
		return fail(perrors.StorageError("failed to open document store", err))
	}
	s.docs = docs
	s.closers = append(s.closers, docs.Close)

	var (
		vectors store.VectorStore
		emb     embed.Embedder
	)
	if !opts.bm25Only {
		vectors, emb, err = openVectorSide(ctx, w, m, layout, logger)
		if err != nil {
			return fail(err)
		}
		if vectors != nil {
			s.closers = append(s.closers, vectors.Close)
		}
		if emb != nil {
			s.closers = append(s.closers, emb.Close)
		}
	}

	sc := w.config().Search
	engineOpts := []search.EngineOption{
		search.WithWeights(search.Weights{BM25: sc.BM25Weight, Semantic: sc.SemanticWeight}),
		search.WithRRFConstant(sc.RRFConstant),
		search.WithDefaultLimit(sc.DefaultLimit),
		search.WithQueryExpander(search.NewQueryExpander()),
		search.WithMetrics(opts.metrics),
		search.WithLogger(logger),
	}
	if opts.queries != nil {
		engineOpts = append(engineOpts, search.WithQueryRecorder(opts.queries))
	}
	engine, err := search.NewEngine(bm25, vectors, emb, docs, engineOpts...)
	if err != nil {
		return fail(err)
	}
	s.engine = engine
	return s, nil
}

func openVectorSide(ctx context.Context, w *workspace, m *store.Manifest, layout store.Layout, logger *slog.Logger) (
	store.VectorStore,
	embed.Embedder,
	error,
) {
	vectors, err := store.NewHNSWStore(store.DefaultVectorStoreConfig(m.Dimensions))
	if err != nil {
		return nil, nil, perrors.StorageError("failed to create vector store", err)
	}
	if err := vectors.Load(layout.VectorPath()); err != nil {
		_ = vectors.Close()
		return nil, nil, perrors.New(perrors.ErrCodeStoreCorrupt, "failed to load vector store", err).
			WithSuggestion("run 'pubrag index --rebuild'")
	}

	provider, err := w.provider()
	if err != nil {
		_ = vectors.Close()
		return nil, nil, err
	}
	if strings.HasPrefix(m.Model, "static-") {
		provider = embed.ProviderStatic
	}
	opts := w.embedOptions()
	opts.Dimensions = m.Dimensions

	emb, err := embed.NewEmbedder(ctx, provider, m.Model, opts)
	if err != nil {
		logger.Warn("query_embedder_unavailable",
			slog.String("model", m.Model),
			slog.String("error", err.Error()))
		_ = vectors.Close()
		return nil, nil, nil
	}
	if emb.Dimensions() != m.Dimensions {
		_ = emb.Close()
		_ = vectors.Close()
		return nil, nil, perrors.New(perrors.ErrCodeDimensionMismatch, "query embedder width differs from the index", nil).
			WithDetail("model", m.Model).
			WithSuggestion("run 'pubrag index --rebuild'")
	}
	return vectors, emb, nil
}
