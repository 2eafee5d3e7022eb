package cmd

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/pubrag/internal/embed"
	"github.com/Aman-CERP/pubrag/internal/graph"
	"github.com/Aman-CERP/pubrag/internal/indexer"
	"github.com/Aman-CERP/pubrag/internal/store"
)

type fakeIndexer struct {
	params    indexer.Params
	batchSize int
	limit     int
	runErr    error
	runs      int
	closes    int
}

func (f *fakeIndexer) IndexPublications(_ context.Context, batchSize, limit int) (*indexer.Result, error) {
	f.runs++
	f.batchSize = batchSize
	f.limit = limit
	if f.runErr != nil {
		return nil, f.runErr
	}
	return &indexer.Result{RunID: "run-1", Indexed: 3, Batches: 1}, nil
}

func (f *fakeIndexer) Close() error {
	f.closes++
	return nil
}

// stubIndexer makes newIndexer return f, or ctorErr when set.
func stubIndexer(t *testing.T, f *fakeIndexer, ctorErr error) {
	t.Helper()
	orig := newIndexer
	t.Cleanup(func() { newIndexer = orig })
	newIndexer = func(_ context.Context, p indexer.Params, _ ...indexer.Option) (publicationIndexer, error) {
		if ctorErr != nil {
			return nil, ctorErr
		}
		f.params = p
		return f, nil
	}
}

func TestIndexCmd_Success(t *testing.T) {
	// Given: a workspace with a password in .env
	root := testWorkspace(t, "NEO4J_PASSWORD=secret\n")
	f := &fakeIndexer{}
	stubIndexer(t, f, nil)

	// When: running index
	out, err := execute(t, "index", "--root", root, "--no-tui")

	// Then: the driver prints both markers in order and closes once
	require.NoError(t, err)
	start := strings.Index(out, "Starting indexing process...")
	done := strings.Index(out, "\nIndexing complete!")
	require.GreaterOrEqual(t, start, 0, out)
	assert.Greater(t, done, start)
	assert.Equal(t, 1, f.runs)
	assert.Equal(t, 1, f.closes)

	// And: settings and .env reach the constructor
	assert.Equal(t, "bolt://localhost:7687", f.params.Neo4jURI)
	assert.Equal(t, "neo4j", f.params.Neo4jUser)
	assert.Equal(t, "secret", f.params.Neo4jPassword)
	assert.Equal(t, "nomic-embed-text", f.params.EmbeddingModel)
	assert.Equal(t, filepath.Join(root, "vector_store", "data"), f.params.PersistDir)
	assert.Equal(t, 32, f.batchSize)
	assert.Equal(t, 0, f.limit)
}

func TestIndexCmd_RunFailure(t *testing.T) {
	// Given: an indexer whose run fails
	root := testWorkspace(t, "NEO4J_PASSWORD=secret\n")
	boom := errors.New("graph went away")
	f := &fakeIndexer{runErr: boom}
	stubIndexer(t, f, nil)

	// When: running index
	out, err := execute(t, "index", "--root", root, "--no-tui")

	// Then: the error is printed, returned unchanged, and Close still runs once
	require.ErrorIs(t, err, boom)
	assert.Contains(t, out, "\nError during indexing: graph went away")
	assert.NotContains(t, out, "Indexing complete!")
	assert.Equal(t, 1, f.closes)
}

func TestIndexCmd_ConstructorFailure(t *testing.T) {
	// Given: a constructor that cannot connect
	root := testWorkspace(t, "NEO4J_PASSWORD=secret\n")
	boom := errors.New("connection refused")
	f := &fakeIndexer{}
	stubIndexer(t, f, boom)

	// When: running index
	out, err := execute(t, "index", "--root", root, "--no-tui")

	// Then: nothing was started and nothing needs closing
	require.ErrorIs(t, err, boom)
	assert.NotContains(t, out, "Starting indexing process...")
	assert.Zero(t, f.runs)
	assert.Zero(t, f.closes)
}

func TestIndexCmd_Flags(t *testing.T) {
	root := testWorkspace(t, "NEO4J_PASSWORD=secret\n")

	tests := []struct {
		name      string
		args      []string
		wantLimit int
		wantErr   bool
	}{
		{"default limit is all", nil, 0, false},
		{"limit passes through", []string{"--limit", "25"}, 25, false},
		{"negative limit rejected", []string{"--limit", "-1"}, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &fakeIndexer{}
			stubIndexer(t, f, nil)

			_, err := execute(t, append([]string{"index", "--root", root, "--no-tui"}, tt.args...)...)
			if tt.wantErr {
				require.Error(t, err)
				assert.Zero(t, f.runs)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantLimit, f.limit)
		})
	}
}

func TestIndexCmd_BatchSizeFromEnv(t *testing.T) {
	root := testWorkspace(t, "NEO4J_PASSWORD=secret\nPUBRAG_BATCH_SIZE=8\n")
	f := &fakeIndexer{}
	stubIndexer(t, f, nil)

	_, err := execute(t, "index", "--root", root, "--no-tui")

	require.NoError(t, err)
	assert.Equal(t, 8, f.batchSize)
}

func TestIndexCmd_MissingConfig(t *testing.T) {
	// Given: a directory without config/config.yaml
	t.Setenv("HOME", t.TempDir())
	f := &fakeIndexer{}
	stubIndexer(t, f, nil)

	// When: running index
	_, err := execute(t, "index", "--root", t.TempDir())

	// Then: it fails before building an indexer
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ERR_101_CONFIG_NOT_FOUND")
	assert.Zero(t, f.runs)
}

// sliceSource pages through a fixed publication list.
type sliceSource []graph.Publication

func (s sliceSource) FetchPublications(_ context.Context, skip, limit int) ([]graph.Publication, error) {
	if skip >= len(s) {
		return nil, nil
	}
	return s[skip:min(skip+limit, len(s))], nil
}

var corpus = sliceSource{
	{ID: "p1", Title: "Graph neural networks for citation analysis", Abstract: "We learn representations of citation graphs with message passing.", Year: 2019},
	{ID: "p2", Title: "Attention is all you need", Abstract: "A transformer architecture based solely on attention mechanisms.", Year: 2017},
	{ID: "p3", Title: "Knowledge graph embeddings survey", Abstract: "We survey translational and semantic matching models for knowledge graphs.", Year: 2021},
	{ID: "p4", Abstract: "An abstract whose publication lost its title.", Year: 2020},
}

// useStaticIndexer builds real stores in the persist dir over corpus with a
// 16-dimensional static embedder, so the read commands see a genuine index.
func useStaticIndexer(t *testing.T) {
	t.Helper()
	orig := newIndexer
	t.Cleanup(func() { newIndexer = orig })
	newIndexer = func(_ context.Context, p indexer.Params, _ ...indexer.Option) (publicationIndexer, error) {
		layout := store.NewLayout(p.PersistDir)
		if err := os.MkdirAll(layout.Dir, 0o755); err != nil {
			return nil, err
		}
		vectors, err := store.NewHNSWStore(store.DefaultVectorStoreConfig(16))
		if err != nil {
			return nil, err
		}
		bm25, err := store.NewBM25Index(store.BM25BackendSQLite, layout.BM25Path(store.BM25BackendSQLite))
		if err != nil {
			return nil, err
		}
		docs, err := store.NewDocumentStore(layout.DocumentsPath())
		if err != nil {
			return nil, err
		}
		return indexer.NewWithDependencies(indexer.Dependencies{
			Source:   corpus,
			Embedder: embed.NewStaticEmbedder(16),
			Vectors:  vectors,
			BM25:     bm25,
			Docs:     docs,
			Layout:   layout,
		})
	}
}

// indexedWorkspace returns a workspace with corpus indexed.
func indexedWorkspace(t *testing.T) string {
	t.Helper()
	root := testWorkspace(t, "NEO4J_PASSWORD=secret\n")
	useStaticIndexer(t)
	out, err := execute(t, "index", "--root", root, "--no-tui")
	require.NoError(t, err, out)
	return root
}

func TestIndexCmd_BuildsReadableIndex(t *testing.T) {
	root := indexedWorkspace(t)

	m, err := store.ReadManifest(store.NewLayout(filepath.Join(root, "vector_store", "data")))
	require.NoError(t, err)
	assert.Equal(t, "static-16", m.Model)
	assert.Equal(t, 16, m.Dimensions)
	assert.Equal(t, 3, m.Count, "the publication without a title is skipped")
}

func TestIndexCmd_HelpDescribesReruns(t *testing.T) {
	out, err := execute(t, "index", "--help")
	require.NoError(t, err)
	assert.Contains(t, out, "replaces their entries")
	assert.NotContains(t, out, "already indexed are skipped")
}
