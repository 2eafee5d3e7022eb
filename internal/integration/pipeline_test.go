package integration

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/pubrag/internal/embed"
	"github.com/Aman-CERP/pubrag/internal/graph"
	"github.com/Aman-CERP/pubrag/internal/graph/graphtest"
	"github.com/Aman-CERP/pubrag/internal/indexer"
	"github.com/Aman-CERP/pubrag/internal/rag"
	"github.com/Aman-CERP/pubrag/internal/search"
	"github.com/Aman-CERP/pubrag/internal/store"
	"github.com/Aman-CERP/pubrag/internal/subgraph"
	"github.com/Aman-CERP/pubrag/internal/telemetry"
)

// These tests run the whole read path over one fake graph: index the
// publications, reopen the persisted stores, search, extract the subgraph
// and build an answer.

const dims = 64

var publications = []graph.Publication{
	{ID: "p1", Title: "Graph neural networks for citation analysis", Year: 2019,
		Abstract: "We model citation graphs with message passing networks.", Authors: []string{"Ada"}, Topics: []string{"GNN"}},
	{ID: "p2", Title: "Attention is all you need", Year: 2017,
		Abstract: "The transformer relies entirely on attention.", Authors: []string{"Grace"}},
	{ID: "p3", Title: "Knowledge graph embeddings survey", Year: 2021,
		Abstract: "A survey of embedding methods for knowledge graphs.", Topics: []string{"KG"}},
	{ID: "", Title: "Missing id", Year: 2020},
}

func fakeGraph() *graphtest.Runner {
	byID := map[string]graph.Publication{}
	for _, p := range publications {
		byID[p.ID] = p
	}
	return graphtest.New().
		On("SKIP $skip", graphtest.Publications(publications)).
		Count("count(p)", int64(len(publications))).
		On("OPTIONAL MATCH (p)-[:PART_OF]", func(params map[string]any) ([]graph.Record, error) {
			var rows []graph.Record
			for _, id := range params["ids"].([]string) {
				p, ok := byID[id]
				if !ok || id == "" {
					continue
				}
				rows = append(rows, graph.Record{
					"id": p.ID, "title": p.Title,
					"authors": toAny(p.Authors), "topics": toAny(p.Topics), "venues": []any{},
				})
			}
			return rows, nil
		}).
		Rows("[:CITES]->(b:publication)", graph.Record{
			"source": "p1", "source_title": publications[0].Title,
			"target": "p2", "target_title": publications[1].Title,
		})
}

func toAny(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// buildIndex indexes the fake graph into a fresh persist dir.
func buildIndex(t *testing.T, runner graph.Runner) store.Layout {
	t.Helper()
	ctx := context.Background()
	layout := store.NewLayout(t.TempDir())

	emb := embed.NewStaticEmbedder(dims)
	vectors, err := store.NewHNSWStore(store.DefaultVectorStoreConfig(dims))
	require.NoError(t, err)
	bm25, err := store.NewBM25Index(store.BM25BackendSQLite, layout.BM25Path(store.BM25BackendSQLite))
	require.NoError(t, err)
	docs, err := store.NewDocumentStore(layout.DocumentsPath())
	require.NoError(t, err)
	lock := store.NewIndexLock(layout.Dir)
	require.NoError(t, lock.TryLock())

	ix, err := indexer.NewWithDependencies(indexer.Dependencies{
		Source:   graph.NewQueries(runner),
		Embedder: emb,
		Vectors:  vectors,
		BM25:     bm25,
		Docs:     docs,
		Layout:   layout,
		Lock:     lock,
		Logger:   quietLogger(),
	})
	require.NoError(t, err)

	res, err := ix.IndexPublications(ctx, 2, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Indexed)
	assert.Equal(t, 1, res.Skipped)
	require.NoError(t, ix.Close())
	return layout
}

// openEngine reopens the persisted index the way the CLI does.
func openEngine(t *testing.T, layout store.Layout, opts ...search.EngineOption) *search.Engine {
	t.Helper()
	m, err := store.ReadManifest(layout)
	require.NoError(t, err)
	require.Equal(t, dims, m.Dimensions)

	bm25, err := store.NewBM25Index(m.BM25Backend, layout.BM25Path(m.BM25Backend))
	require.NoError(t, err)
	vectors, err := store.NewHNSWStore(store.DefaultVectorStoreConfig(m.Dimensions))
	require.NoError(t, err)
	require.NoError(t, vectors.Load(layout.VectorPath()))
	docs, err := store.NewDocumentStore(layout.DocumentsPath())
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = bm25.Close()
		_ = vectors.Close()
		_ = docs.Close()
	})

	opts = append([]search.EngineOption{search.WithLogger(quietLogger())}, opts...)
	e, err := search.NewEngine(bm25, vectors, embed.NewStaticEmbedder(m.Dimensions), docs, opts...)
	require.NoError(t, err)
	return e
}

func TestIndexThenSearch(t *testing.T) {
	layout := buildIndex(t, fakeGraph())
	e := openEngine(t, layout)

	results, err := e.Search(context.Background(), "citation graphs", search.Options{Limit: 3})
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "p1", results[0].ID)
	assert.Equal(t, 2019, results[0].Year)
	assert.True(t, results[0].InBoth)

	results, err = e.Search(context.Background(), "attention", search.Options{YearFrom: 2018})
	require.NoError(t, err)
	for _, r := range results {
		assert.NotEqual(t, "p2", r.ID, "2017 publication passed the year filter")
	}
}

func TestManifestMatchesDocuments(t *testing.T) {
	layout := buildIndex(t, fakeGraph())
	m, err := store.ReadManifest(layout)
	require.NoError(t, err)

	docs, err := store.NewDocumentStore(layout.DocumentsPath())
	require.NoError(t, err)
	n, err := docs.Count(context.Background())
	require.NoError(t, err)
	require.NoError(t, docs.Close())
	assert.Equal(t, m.Count, n)
	assert.Equal(t, 3, n)
}

type stubGenerator struct{ prompt string }

func (g *stubGenerator) Generate(_ context.Context, prompt string) (string, error) {
	g.prompt = prompt
	return "GNNs model citations [1].", nil
}

func (g *stubGenerator) Model() string { return "stub" }

func TestAskOverIndexAndGraph(t *testing.T) {
	// Given: an index and the graph it was built from
	runner := fakeGraph()
	layout := buildIndex(t, runner)
	rec := telemetry.NewRecorder(nil, telemetry.DefaultConfig(), quietLogger())
	e := openEngine(t, layout, search.WithQueryRecorder(rec))
	gen := &stubGenerator{}

	p, err := rag.NewPipeline(e, subgraph.NewExtractor(runner), gen)
	require.NoError(t, err)

	// When: asking a question
	a, err := p.Answer(context.Background(), "How are citation graphs modelled?", rag.Options{Limit: 2, Depth: 1})
	require.NoError(t, err)

	// Then: the answer cites indexed publications and the prompt carries graph facts
	assert.Equal(t, "GNNs model citations [1].", a.Text)
	require.NotEmpty(t, a.Sources)
	assert.Equal(t, "p1", a.Sources[0].ID)
	require.NotNil(t, a.Subgraph)
	assert.Contains(t, gen.prompt, "[1] Graph neural networks for citation analysis (2019)")
	assert.Contains(t, gen.prompt, "AUTHORED_BY Ada")
	assert.Contains(t, gen.prompt, `CITES "Attention is all you need"`)

	// And: the search behind it was logged
	assert.Equal(t, int64(1), rec.Snapshot().TotalQueries)
}
