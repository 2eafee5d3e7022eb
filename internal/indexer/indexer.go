// Package indexer reads publications from Neo4j, embeds them and writes the
// vectors, keyword index and document table under a persist directory.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	perrors "github.com/Aman-CERP/pubrag/internal/errors"
	"github.com/Aman-CERP/pubrag/internal/embed"
	"github.com/Aman-CERP/pubrag/internal/graph"
	"github.com/Aman-CERP/pubrag/internal/metrics"
	"github.com/Aman-CERP/pubrag/internal/store"
	"github.com/Aman-CERP/pubrag/internal/ui"
)

// Params are the connection settings needed to build an indexer.
type Params struct {
	Neo4jURI       string
	Neo4jUser      string
	Neo4jPassword  string
	EmbeddingModel string
	PersistDir     string
}

func (p Params) validate() error {
	switch {
	case strings.TrimSpace(p.Neo4jURI) == "":
		return perrors.ConfigError("neo4j uri is required", nil)
	case strings.TrimSpace(p.EmbeddingModel) == "":
		return perrors.ConfigError("embedding model is required", nil)
	case strings.TrimSpace(p.PersistDir) == "":
		return perrors.ConfigError("persist directory is required", nil)
	}
	return nil
}

// PublicationSource pages through publication nodes. *graph.Queries
// satisfies it.
type PublicationSource interface {
	FetchPublications(ctx context.Context, skip, limit int) ([]graph.Publication, error)
}

// publicationCounter is implemented by sources that can report a total for
// progress display.
type publicationCounter interface {
	CountPublications(ctx context.Context) (int64, error)
}

// Dependencies are the collaborators of a PublicationIndexer.
type Dependencies struct {
	Source   PublicationSource
	Embedder embed.Embedder
	Vectors  store.VectorStore
	BM25     store.BM25Index
	Docs     *store.DocumentStore
	Layout   store.Layout

	// Lock is released last on Close. Nil means the caller manages locking.
	Lock *store.IndexLock

	// Closers release extra resources (the Neo4j driver) after the stores.
	Closers []func() error

	Renderer ui.Renderer
	Logger   *slog.Logger
	Metrics  *metrics.Collector
}

// PublicationIndexer builds the publication index.
type PublicationIndexer struct {
	source   PublicationSource
	embedder embed.Embedder
	vectors  store.VectorStore
	bm25     store.BM25Index
	docs     *store.DocumentStore
	layout   store.Layout
	lock     *store.IndexLock
	closers  []func() error

	renderer ui.Renderer
	logger   *slog.Logger
	metrics  *metrics.Collector

	closeOnce sync.Once
	closeErr  error
	closed    bool
	mu        sync.Mutex
}

// Result summarizes one IndexPublications call.
type Result struct {
	RunID    string
	Indexed  int
	Skipped  int
	Batches  int
	Duration time.Duration
}

// NewWithDependencies builds an indexer from injected parts.
func NewWithDependencies(deps Dependencies) (*PublicationIndexer, error) {
	switch {
	case deps.Source == nil:
		return nil, fmt.Errorf("publication source is required")
	case deps.Embedder == nil:
		return nil, fmt.Errorf("embedder is required")
	case deps.Vectors == nil:
		return nil, fmt.Errorf("vector store is required")
	case deps.BM25 == nil:
		return nil, fmt.Errorf("BM25 index is required")
	case deps.Docs == nil:
		return nil, fmt.Errorf("document store is required")
	case deps.Layout.Dir == "":
		return nil, fmt.Errorf("layout is required")
	}

	renderer := deps.Renderer
	if renderer == nil {
		renderer = ui.NopRenderer{}
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &PublicationIndexer{
		source:   deps.Source,
		embedder: deps.Embedder,
		vectors:  deps.Vectors,
		bm25:     deps.BM25,
		docs:     deps.Docs,
		layout:   deps.Layout,
		lock:     deps.Lock,
		closers:  deps.Closers,
		renderer: renderer,
		logger:   logger,
		metrics:  deps.Metrics,
	}, nil
}

// New connects to Neo4j, builds the embedder for p.EmbeddingModel, takes the
// index lock on p.PersistDir and opens the stores. An index built with a
// different model or width is discarded first.
func New(ctx context.Context, p Params, opts ...Option) (*PublicationIndexer, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if err := p.validate(); err != nil {
		return nil, err
	}
	logger := o.logger
	if logger == nil {
		logger = slog.Default()
	}

	layout := store.NewLayout(p.PersistDir)
	if err := os.MkdirAll(layout.Dir, 0o755); err != nil {
		return nil, perrors.StorageError("failed to create persist directory", err)
	}

	// Everything acquired so far is released in reverse if a later step fails.
	var acquired []func() error
	fail := func(err error) (*PublicationIndexer, error) {
		for i := len(acquired) - 1; i >= 0; i-- {
			_ = acquired[i]()
		}
		return nil, err
	}

	lock := store.NewIndexLock(layout.Dir)
	if err := lock.TryLock(); err != nil {
		if errors.Is(err, store.ErrIndexLocked) {
			return nil, perrors.New(perrors.ErrCodeStoreLocked, "another indexing run holds "+lock.Path(), err).
				WithSuggestion("wait for the other 'pubrag index' to finish")
		}
		return nil, perrors.StorageError("failed to lock index", err)
	}
	acquired = append(acquired, lock.Unlock)

	gcfg := graph.DefaultClientConfig(p.Neo4jURI, p.Neo4jUser, p.Neo4jPassword)
	gcfg.Database = o.database
	client, err := graph.NewNeo4jClient(ctx, gcfg)
	if err != nil {
		return fail(err)
	}
	closeGraph := func() error {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return client.Close(closeCtx)
	}
	acquired = append(acquired, closeGraph)

	emb, err := embed.NewEmbedder(ctx, o.provider, p.EmbeddingModel, o.embed)
	if err != nil {
		return fail(err)
	}
	acquired = append(acquired, emb.Close)

	backend, rebuild := planIndex(layout, emb, o, logger)
	if rebuild {
		if err := store.RemoveIndexFiles(layout); err != nil {
			return fail(perrors.StorageError("failed to clear index", err))
		}
	}

	vectors, err := store.NewHNSWStore(store.DefaultVectorStoreConfig(emb.Dimensions()))
	if err != nil {
		return fail(perrors.StorageError("failed to create vector store", err))
	}
	acquired = append(acquired, vectors.Close)
	if !rebuild {
		if _, statErr := os.Stat(layout.VectorPath()); statErr == nil {
			if err := vectors.Load(layout.VectorPath()); err != nil {
				return fail(perrors.New(perrors.ErrCodeStoreCorrupt, "failed to load vector store", err).
					WithSuggestion("run 'pubrag index --rebuild'"))
			}
		}
	}

	bm25, err := store.NewBM25Index(backend, layout.BM25Path(backend))
	if err != nil {
		return fail(perrors.StorageError("failed to open BM25 index", err))
	}
	acquired = append(acquired, bm25.Close)

	docs, err := store.NewDocumentStore(layout.DocumentsPath())
	if err != nil {
		return fail(perrors.StorageError("failed to open document store", err))
	}
	acquired = append(acquired, docs.Close)

	logger.Info("indexer_ready",
		slog.String("persist_dir", layout.Dir),
		slog.String("model", emb.ModelName()),
		slog.Int("dimensions", emb.Dimensions()),
		slog.String("bm25_backend", string(backend)),
		slog.Int("existing_vectors", vectors.Count()),
		slog.Bool("rebuild", rebuild))

	return NewWithDependencies(Dependencies{
		Source:   graph.NewQueries(client),
		Embedder: emb,
		Vectors:  vectors,
		BM25:     bm25,
		Docs:     docs,
		Layout:   layout,
		Lock:     lock,
		Closers:  []func() error{closeGraph, emb.Close},
		Renderer: o.renderer,
		Logger:   logger,
		Metrics:  o.metrics,
	})
}

// planIndex picks the BM25 backend and decides whether the existing index
// must be discarded.
func planIndex(layout store.Layout, emb embed.Embedder, o options, logger *slog.Logger) (store.BM25Backend, bool) {
	backend := o.bm25Backend
	if backend == "" {
		backend = store.DetectBM25Backend(layout)
	}
	if backend == "" {
		backend = store.BM25BackendSQLite
	}
	if o.rebuild {
		return backend, true
	}

	m, err := store.ReadManifest(layout)
	switch {
	case errors.Is(err, store.ErrNoManifest):
		return backend, false
	case err != nil:
		logger.Warn("manifest_unreadable", slog.String("error", err.Error()))
		return backend, true
	case !m.Compatible(emb.ModelName(), emb.Dimensions()):
		logger.Warn("index_incompatible",
			slog.String("manifest_model", m.Model),
			slog.Int("manifest_dimensions", m.Dimensions),
			slog.String("model", emb.ModelName()),
			slog.Int("dimensions", emb.Dimensions()))
		return backend, true
	case m.BM25Backend != "" && m.BM25Backend != backend:
		logger.Info("bm25_backend_changed",
			slog.String("from", string(m.BM25Backend)),
			slog.String("to", string(backend)))
		return backend, true
	}
	return backend, false
}

// Close releases the stores, the extra closers and then the lock, in
// reverse order of acquisition. Later calls return the first result.
func (ix *PublicationIndexer) Close() error {
	ix.closeOnce.Do(func() {
		ix.mu.Lock()
		ix.closed = true
		ix.mu.Unlock()

		var errs []error
		steps := []func() error{ix.docs.Close, ix.bm25.Close, ix.vectors.Close}
		for i := len(ix.closers) - 1; i >= 0; i-- {
			steps = append(steps, ix.closers[i])
		}
		if ix.lock != nil {
			steps = append(steps, ix.lock.Unlock)
		}
		for _, step := range steps {
			if err := step(); err != nil {
				errs = append(errs, err)
			}
		}
		ix.closeErr = errors.Join(errs...)
		ix.logger.Debug("indexer_closed")
	})
	return ix.closeErr
}

func (ix *PublicationIndexer) isClosed() bool {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return ix.closed
}
