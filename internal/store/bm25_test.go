package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var bm25Corpus = []*Document{
	{ID: "p1", Title: "Graph Neural Networks", Text: "Graph neural networks for citation recommendation"},
	{ID: "p2", Title: "Transformers", Text: "Attention is all you need for sequence transduction"},
	{ID: "p3", Title: "Citation Analysis", Text: "A bibliometric study of citation networks in physics"},
}

// Both backends must behave the same for the indexer and search engine.
func forEachBackend(t *testing.T, fn func(t *testing.T, idx BM25Index)) {
	for _, backend := range []BM25Backend{BM25BackendSQLite, BM25BackendBleve} {
		t.Run(string(backend), func(t *testing.T) {
			idx, err := NewBM25Index(backend, "")
			require.NoError(t, err)
			t.Cleanup(func() { _ = idx.Close() })
			assert.Equal(t, backend, idx.Backend())
			fn(t, idx)
		})
	}
}

func TestBM25Index_IndexAndSearch(t *testing.T) {
	forEachBackend(t, func(t *testing.T, idx BM25Index) {
		ctx := context.Background()
		require.NoError(t, idx.Index(ctx, bm25Corpus))

		results, err := idx.Search(ctx, "citation networks", 10)
		require.NoError(t, err)
		require.Len(t, results, 2)

		ids := []string{results[0].DocID, results[1].DocID}
		assert.ElementsMatch(t, []string{"p1", "p3"}, ids)
		assert.Greater(t, results[0].Score, 0.0)
		assert.GreaterOrEqual(t, results[0].Score, results[1].Score)
	})
}

func TestBM25Index_Stemming(t *testing.T) {
	forEachBackend(t, func(t *testing.T, idx BM25Index) {
		ctx := context.Background()
		require.NoError(t, idx.Index(ctx, bm25Corpus))

		// "recommendations" stems to the same root as "recommendation".
		results, err := idx.Search(ctx, "recommendations", 10)
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, "p1", results[0].DocID)
	})
}

func TestBM25Index_EmptyAndStopWordQueries(t *testing.T) {
	forEachBackend(t, func(t *testing.T, idx BM25Index) {
		ctx := context.Background()
		require.NoError(t, idx.Index(ctx, bm25Corpus))

		for _, q := range []string{"", "   ", "the of and"} {
			results, err := idx.Search(ctx, q, 10)
			require.NoError(t, err, q)
			assert.Empty(t, results, q)
		}
	})
}

func TestBM25Index_ReplaceAndDelete(t *testing.T) {
	forEachBackend(t, func(t *testing.T, idx BM25Index) {
		ctx := context.Background()
		require.NoError(t, idx.Index(ctx, bm25Corpus))

		require.NoError(t, idx.Index(ctx, []*Document{{ID: "p2", Text: "quantum chromodynamics"}}))
		results, err := idx.Search(ctx, "attention", 10)
		require.NoError(t, err)
		assert.Empty(t, results, "replaced text must no longer match")

		results, err = idx.Search(ctx, "chromodynamics", 10)
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, "p2", results[0].DocID)

		require.NoError(t, idx.Delete(ctx, []string{"p1", "p2"}))
		ids, err := idx.AllIDs()
		require.NoError(t, err)
		assert.Equal(t, []string{"p3"}, ids)
		assert.Equal(t, 1, idx.Stats().DocumentCount)
	})
}

func TestBM25Index_Closed(t *testing.T) {
	forEachBackend(t, func(t *testing.T, idx BM25Index) {
		require.NoError(t, idx.Close())
		require.NoError(t, idx.Close())

		_, err := idx.Search(context.Background(), "graph", 1)
		assert.ErrorIs(t, err, ErrStoreClosed)
		assert.Equal(t, 0, idx.Stats().DocumentCount)
	})
}

func TestBM25Index_PersistsAcrossReopen(t *testing.T) {
	for _, backend := range []BM25Backend{BM25BackendSQLite, BM25BackendBleve} {
		t.Run(string(backend), func(t *testing.T) {
			l := NewLayout(t.TempDir())
			ctx := context.Background()

			idx, err := NewBM25Index(backend, l.BM25Path(backend))
			require.NoError(t, err)
			require.NoError(t, idx.Index(ctx, bm25Corpus))
			require.NoError(t, idx.Close())

			assert.Equal(t, backend, DetectBM25Backend(l))

			idx, err = NewBM25Index(backend, l.BM25Path(backend))
			require.NoError(t, err)
			defer func() { _ = idx.Close() }()
			assert.Equal(t, 3, idx.Stats().DocumentCount)
		})
	}
}

func TestParseBM25Backend(t *testing.T) {
	tests := []struct {
		in      string
		want    BM25Backend
		wantErr bool
	}{
		{"", BM25BackendSQLite, false},
		{"sqlite", BM25BackendSQLite, false},
		{"bleve", BM25BackendBleve, false},
		{"lucene", "", true},
	}
	for _, tt := range tests {
		got, err := ParseBM25Backend(tt.in)
		if tt.wantErr {
			assert.Error(t, err)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}
}

func TestDetectBM25Backend_None(t *testing.T) {
	assert.Equal(t, BM25Backend(""), DetectBM25Backend(NewLayout(filepath.Join(t.TempDir(), "x"))))
}
