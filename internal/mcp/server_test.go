package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	perrors "github.com/Aman-CERP/pubrag/internal/errors"
	"github.com/Aman-CERP/pubrag/internal/graph"
	"github.com/Aman-CERP/pubrag/internal/rag"
	"github.com/Aman-CERP/pubrag/internal/search"
	"github.com/Aman-CERP/pubrag/internal/store"
	"github.com/Aman-CERP/pubrag/internal/subgraph"
)

type fakeSearcher struct {
	results []search.Result
	err     error
	query   string
	opts    search.Options
}

func (f *fakeSearcher) Search(_ context.Context, q string, opts search.Options) ([]search.Result, error) {
	f.query, f.opts = q, opts
	return f.results, f.err
}

type fakeExtractor struct {
	sg   *subgraph.Subgraph
	err  error
	ids  []string
	opts subgraph.Options
}

func (f *fakeExtractor) Extract(_ context.Context, ids []string, opts subgraph.Options) (*subgraph.Subgraph, error) {
	f.ids, f.opts = ids, opts
	return f.sg, f.err
}

type fakeAnswerer struct {
	answer *rag.Answer
	err    error
	opts   rag.Options
}

func (f *fakeAnswerer) Answer(_ context.Context, q string, opts rag.Options) (*rag.Answer, error) {
	f.opts = opts
	if f.err != nil {
		return nil, f.err
	}
	a := *f.answer
	a.Question = q
	return &a, nil
}

type fakeDocs map[string]*store.Document

func (f fakeDocs) Get(_ context.Context, ids []string) (map[string]*store.Document, error) {
	out := make(map[string]*store.Document)
	for _, id := range ids {
		if d, ok := f[id]; ok {
			out[id] = d
		}
	}
	return out, nil
}

var testResults = []search.Result{
	{ID: "p1", Title: "Graph neural networks", Year: 2019, Score: 1, Snippet: "We model citation graphs.",
		BM25Rank: 1, VectorRank: 1, InBoth: true, MatchedTerms: []string{"graph"}},
	{ID: "p2", Title: "Message passing", Score: 0.4, VectorRank: 2},
}

// indexedLayout returns a persist dir holding a manifest.
func indexedLayout(t *testing.T) store.Layout {
	t.Helper()
	l := store.NewLayout(t.TempDir())
	require.NoError(t, store.WriteManifest(l, &store.Manifest{
		Model:       "nomic-embed-text",
		Dimensions:  768,
		Count:       42,
		BM25Backend: store.BM25BackendSQLite,
		RunID:       "run-1",
		UpdatedAt:   time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC),
	}))
	return l
}

// connect serves s over in-memory transports and returns a client session.
func connect(t *testing.T, s *Server) *mcp.ClientSession {
	t.Helper()
	ctx := context.Background()
	serverT, clientT := mcp.NewInMemoryTransports()

	ss, err := s.MCPServer().Connect(ctx, serverT, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ss.Close() })

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "v0.0.1"}, nil)
	cs, err := client.Connect(ctx, clientT, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = cs.Close() })
	return cs
}

// callTool returns the result and, for a failed call, the error text.
// Tool errors may arrive as IsError results or as call errors.
func callTool(t *testing.T, cs *mcp.ClientSession, name string, args map[string]any) (*mcp.CallToolResult, string) {
	t.Helper()
	res, err := cs.CallTool(context.Background(), &mcp.CallToolParams{Name: name, Arguments: args})
	if err != nil {
		return nil, err.Error()
	}
	if res.IsError {
		return res, contentText(res)
	}
	return res, ""
}

func contentText(res *mcp.CallToolResult) string {
	var parts []string
	for _, c := range res.Content {
		if tc, ok := c.(*mcp.TextContent); ok {
			parts = append(parts, tc.Text)
		}
	}
	return strings.Join(parts, "\n")
}

func decode(t *testing.T, v any, out any) {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, out))
}

func newTestServer(t *testing.T, deps Deps) *mcp.ClientSession {
	t.Helper()
	if deps.Layout.Dir == "" {
		deps.Layout = indexedLayout(t)
	}
	s, err := NewServer(deps)
	require.NoError(t, err)
	return connect(t, s)
}

func TestNewServer_Validation(t *testing.T) {
	_, err := NewServer(Deps{Layout: store.NewLayout(t.TempDir())})
	assert.EqualError(t, err, "searcher is required")

	_, err = NewServer(Deps{Searcher: &fakeSearcher{}})
	assert.EqualError(t, err, "persist directory is required")
}

func TestServer_ListTools(t *testing.T) {
	cs := newTestServer(t, Deps{Searcher: &fakeSearcher{}})

	res, err := cs.ListTools(context.Background(), &mcp.ListToolsParams{})
	require.NoError(t, err)

	names := make([]string, 0, len(res.Tools))
	for _, tool := range res.Tools {
		names = append(names, tool.Name)
		assert.NotEmpty(t, tool.Description, tool.Name)
	}
	assert.ElementsMatch(t, []string{ToolSearchPublications, ToolGetSubgraph, ToolAsk, ToolIndexStatus}, names)
}

func TestSearchPublications(t *testing.T) {
	t.Run("returns results", func(t *testing.T) {
		s := &fakeSearcher{results: testResults}
		cs := newTestServer(t, Deps{Searcher: s})

		res, errText := callTool(t, cs, ToolSearchPublications, map[string]any{
			"query": "  graph networks ", "limit": 500, "year_from": 2015, "year_to": 2020,
		})
		require.Empty(t, errText)

		assert.Equal(t, "graph networks", s.query)
		assert.Equal(t, maxLimit, s.opts.Limit)
		assert.Equal(t, 2015, s.opts.YearFrom)
		assert.Equal(t, 2020, s.opts.YearTo)

		var out SearchOutput
		decode(t, res.StructuredContent, &out)
		require.Len(t, out.Results, 2)
		assert.Equal(t, "p1", out.Results[0].ID)

		text := contentText(res)
		assert.Contains(t, text, "### 1. Graph neural networks (2019) (score: 1.00)")
		assert.Contains(t, text, "matched: graph; found by keyword and semantic search")
		assert.Contains(t, text, "semantic match")
	})

	t.Run("default limit", func(t *testing.T) {
		s := &fakeSearcher{}
		cs := newTestServer(t, Deps{Searcher: s})
		res, errText := callTool(t, cs, ToolSearchPublications, map[string]any{"query": "graph"})
		require.Empty(t, errText)
		assert.Equal(t, defaultLimit, s.opts.Limit)
		assert.Contains(t, contentText(res), `No publications found for "graph"`)
	})

	tests := []struct {
		name     string
		deps     func(t *testing.T) Deps
		args     map[string]any
		wantCode string
		wantMsg  string
	}{
		{
			name:     "blank query",
			args:     map[string]any{"query": "   "},
			wantCode: "-32602",
			wantMsg:  "query parameter is required",
		},
		{
			name:     "inverted year range",
			args:     map[string]any{"query": "graph", "year_from": 2021, "year_to": 2019},
			wantCode: "-32602",
			wantMsg:  "year_from (2021) is after year_to (2019)",
		},
		{
			name: "no index",
			deps: func(t *testing.T) Deps {
				return Deps{Searcher: &fakeSearcher{}, Layout: store.NewLayout(t.TempDir())}
			},
			args:     map[string]any{"query": "graph"},
			wantCode: "-32001",
			wantMsg:  "Run 'pubrag index' first",
		},
		{
			name: "search failure",
			deps: func(*testing.T) Deps {
				return Deps{Searcher: &fakeSearcher{err: perrors.New(perrors.ErrCodeSearchFailed, "bm25 search failed", nil)}}
			},
			args:     map[string]any{"query": "graph"},
			wantCode: "-32603",
			wantMsg:  "bm25 search failed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			deps := Deps{Searcher: &fakeSearcher{}}
			if tt.deps != nil {
				deps = tt.deps(t)
			}
			cs := newTestServer(t, deps)

			_, errText := callTool(t, cs, ToolSearchPublications, tt.args)
			assert.Contains(t, errText, tt.wantCode)
			assert.Contains(t, errText, tt.wantMsg)
		})
	}
}

func TestGetSubgraph(t *testing.T) {
	sg := &subgraph.Subgraph{
		Nodes: []subgraph.Node{
			{ID: "p1", Label: graph.LabelPublication, Name: "Graph neural networks", Seed: true},
			{ID: "author:Ada", Label: graph.LabelAuthor, Name: "Ada"},
		},
		Edges: []subgraph.Edge{{From: "author:Ada", To: "p1", Type: graph.RelAuthored}},
	}

	t.Run("extracts", func(t *testing.T) {
		x := &fakeExtractor{sg: sg}
		cs := newTestServer(t, Deps{Searcher: &fakeSearcher{}, Extractor: x})

		res, errText := callTool(t, cs, ToolGetSubgraph, map[string]any{"ids": []any{"p1", " ", "p2"}, "depth": 2})
		require.Empty(t, errText)
		assert.Equal(t, []string{"p1", "p2"}, x.ids)
		assert.Equal(t, 2, x.opts.Depth)

		var out SubgraphOutput
		decode(t, res.StructuredContent, &out)
		require.NotNil(t, out.Subgraph)
		assert.Len(t, out.Subgraph.Nodes, 2)
		assert.Contains(t, out.Summary, "AUTHORED_BY Ada")
		assert.Contains(t, contentText(res), "2 nodes, 1 edges, 1 authors")
	})

	tests := []struct {
		name     string
		deps     Deps
		args     map[string]any
		wantCode string
		wantMsg  string
	}{
		{
			name:     "no ids",
			deps:     Deps{Searcher: &fakeSearcher{}, Extractor: &fakeExtractor{sg: sg}},
			args:     map[string]any{"ids": []any{" "}},
			wantCode: "-32602",
			wantMsg:  "at least one publication id",
		},
		{
			name:     "depth too deep",
			deps:     Deps{Searcher: &fakeSearcher{}, Extractor: &fakeExtractor{sg: sg}},
			args:     map[string]any{"ids": []any{"p1"}, "depth": 3},
			wantCode: "-32602",
			wantMsg:  "depth must be between 1 and 2",
		},
		{
			name:     "no graph",
			deps:     Deps{Searcher: &fakeSearcher{}},
			args:     map[string]any{"ids": []any{"p1"}},
			wantCode: "-32603",
			wantMsg:  "graph database not configured",
		},
		{
			name: "graph down",
			deps: Deps{Searcher: &fakeSearcher{}, Extractor: &fakeExtractor{
				err: perrors.GraphError("failed to run query", errors.New("connection reset")),
			}},
			args:     map[string]any{"ids": []any{"p1"}},
			wantCode: "-32603",
			wantMsg:  "failed to run query",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cs := newTestServer(t, tt.deps)
			_, errText := callTool(t, cs, ToolGetSubgraph, tt.args)
			assert.Contains(t, errText, tt.wantCode)
			assert.Contains(t, errText, tt.wantMsg)
		})
	}
}

func TestAsk(t *testing.T) {
	t.Run("answers with sources", func(t *testing.T) {
		a := &fakeAnswerer{answer: &rag.Answer{
			Text:    "GNNs pass messages [1].",
			Model:   "llama3.2",
			Sources: testResults[:1],
		}}
		cs := newTestServer(t, Deps{Searcher: &fakeSearcher{}, Answerer: a})

		res, errText := callTool(t, cs, ToolAsk, map[string]any{"question": "What are GNNs?"})
		require.Empty(t, errText)
		assert.Equal(t, defaultAskLimit, a.opts.Limit)

		var out AskOutput
		decode(t, res.StructuredContent, &out)
		assert.Equal(t, "GNNs pass messages [1].", out.Answer)
		assert.Equal(t, "llama3.2", out.Model)
		require.Len(t, out.Sources, 1)

		text := contentText(res)
		assert.Contains(t, text, "**Sources:**")
		assert.Contains(t, text, "1. Graph neural networks (2019) `p1`")
	})

	t.Run("limit clamped", func(t *testing.T) {
		a := &fakeAnswerer{answer: &rag.Answer{Text: rag.NoResultsAnswer}}
		cs := newTestServer(t, Deps{Searcher: &fakeSearcher{}, Answerer: a})
		res, errText := callTool(t, cs, ToolAsk, map[string]any{"question": "q", "limit": 99})
		require.Empty(t, errText)
		assert.Equal(t, maxAskLimit, a.opts.Limit)
		assert.Equal(t, rag.NoResultsAnswer+"\n", contentText(res))
	})

	t.Run("blank question", func(t *testing.T) {
		cs := newTestServer(t, Deps{Searcher: &fakeSearcher{}, Answerer: &fakeAnswerer{}})
		_, errText := callTool(t, cs, ToolAsk, map[string]any{"question": " "})
		assert.Contains(t, errText, "-32602")
	})

	t.Run("generator failure", func(t *testing.T) {
		a := &fakeAnswerer{err: perrors.New(perrors.ErrCodeEmbedUnavailable, "Ollama not reachable", nil).
			WithSuggestion("start Ollama with 'ollama serve'")}
		cs := newTestServer(t, Deps{Searcher: &fakeSearcher{}, Answerer: a})
		_, errText := callTool(t, cs, ToolAsk, map[string]any{"question": "q"})
		assert.Contains(t, errText, "-32603")
		assert.Contains(t, errText, "Ollama not reachable (start Ollama with 'ollama serve')")
	})
}

func TestIndexStatus(t *testing.T) {
	t.Run("reads manifest", func(t *testing.T) {
		layout := indexedLayout(t)
		cs := newTestServer(t, Deps{Searcher: &fakeSearcher{}, Layout: layout})

		res, errText := callTool(t, cs, ToolIndexStatus, map[string]any{})
		require.Empty(t, errText)

		var out IndexStatusOutput
		decode(t, res.StructuredContent, &out)
		assert.Equal(t, layout.Dir, out.PersistDir)
		assert.Equal(t, "nomic-embed-text", out.Model)
		assert.Equal(t, 768, out.Dimensions)
		assert.Equal(t, 42, out.Publications)
		assert.Equal(t, "sqlite", out.BM25Backend)
		assert.Equal(t, "run-1", out.RunID)
		assert.Equal(t, "2026-10-01T12:00:00Z", out.UpdatedAt)
	})

	t.Run("not indexed", func(t *testing.T) {
		cs := newTestServer(t, Deps{Searcher: &fakeSearcher{}, Layout: store.NewLayout(t.TempDir())})
		_, errText := callTool(t, cs, ToolIndexStatus, map[string]any{})
		assert.Contains(t, errText, "-32001")
	})
}

func TestResources(t *testing.T) {
	docs := fakeDocs{"p1": {ID: "p1", Title: "Graph neural networks", Text: "Graph neural networks\n\nWe model citation graphs."}}
	cs := newTestServer(t, Deps{Searcher: &fakeSearcher{}, Docs: docs})
	ctx := context.Background()

	res, err := cs.ReadResource(ctx, &mcp.ReadResourceParams{URI: manifestURI})
	require.NoError(t, err)
	require.Len(t, res.Contents, 1)
	var m store.Manifest
	require.NoError(t, json.Unmarshal([]byte(res.Contents[0].Text), &m))
	assert.Equal(t, 42, m.Count)

	res, err = cs.ReadResource(ctx, &mcp.ReadResourceParams{URI: publicationURIScheme + "p1"})
	require.NoError(t, err)
	require.Len(t, res.Contents, 1)
	assert.Contains(t, res.Contents[0].Text, "We model citation graphs.")

	_, err = cs.ReadResource(ctx, &mcp.ReadResourceParams{URI: publicationURIScheme + "missing"})
	assert.Error(t, err)
}
