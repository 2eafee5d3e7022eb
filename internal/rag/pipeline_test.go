package rag

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	perrors "github.com/Aman-CERP/pubrag/internal/errors"
	"github.com/Aman-CERP/pubrag/internal/graph"
	"github.com/Aman-CERP/pubrag/internal/search"
	"github.com/Aman-CERP/pubrag/internal/subgraph"
)

type fakeSearcher struct {
	results []search.Result
	err     error
	got     search.Options
}

func (f *fakeSearcher) Search(_ context.Context, _ string, opts search.Options) ([]search.Result, error) {
	f.got = opts
	return f.results, f.err
}

type fakeExtractor struct {
	sg    *subgraph.Subgraph
	err   error
	seeds []string
	depth int
}

func (f *fakeExtractor) Extract(_ context.Context, seeds []string, opts subgraph.Options) (*subgraph.Subgraph, error) {
	f.seeds = seeds
	f.depth = opts.Depth
	return f.sg, f.err
}

type fakeGenerator struct {
	reply   string
	err     error
	prompts []string
}

func (f *fakeGenerator) Generate(_ context.Context, prompt string) (string, error) {
	f.prompts = append(f.prompts, prompt)
	return f.reply, f.err
}

func (f *fakeGenerator) Model() string { return "test-model" }

var hits = []search.Result{
	{ID: "p1", Title: "Graph neural networks", Year: 2019, Snippet: "We model citation graphs."},
	{ID: "p2", Title: "Message passing", Snippet: "Message passing"},
}

func sampleSubgraph() *subgraph.Subgraph {
	return &subgraph.Subgraph{
		Nodes: []subgraph.Node{
			{ID: "p1", Label: graph.LabelPublication, Name: "Graph neural networks", Seed: true},
			{ID: "p2", Label: graph.LabelPublication, Name: "Message passing", Seed: true},
			{ID: "author:Ada", Label: graph.LabelAuthor, Name: "Ada"},
		},
		Edges: []subgraph.Edge{
			{From: "author:Ada", To: "p1", Type: graph.RelAuthored},
			{From: "p1", To: "p2", Type: graph.RelCites},
		},
	}
}

func TestAnswer_FullPipeline(t *testing.T) {
	s := &fakeSearcher{results: hits}
	x := &fakeExtractor{sg: sampleSubgraph()}
	g := &fakeGenerator{reply: "  GNNs pass messages [1].  "}
	p, err := NewPipeline(s, x, g)
	require.NoError(t, err)

	ans, err := p.Answer(context.Background(), "  how do GNNs work? ", Options{Limit: 2, Depth: 2, YearFrom: 2018})
	require.NoError(t, err)

	assert.Equal(t, "GNNs pass messages [1].", ans.Text)
	assert.Equal(t, "how do GNNs work?", ans.Question)
	assert.Equal(t, "test-model", ans.Model)
	assert.Len(t, ans.Sources, 2)
	assert.Same(t, x.sg, ans.Subgraph)
	_, err = uuid.Parse(ans.RequestID)
	assert.NoError(t, err)

	assert.Equal(t, 2, s.got.Limit)
	assert.Equal(t, 2018, s.got.YearFrom)
	assert.Equal(t, []string{"p1", "p2"}, x.seeds)
	assert.Equal(t, 2, x.depth)

	require.Len(t, g.prompts, 1)
	prompt := g.prompts[0]
	assert.Contains(t, prompt, "[1] Graph neural networks (2019)\nWe model citation graphs.\n")
	assert.Contains(t, prompt, "[2] Message passing\n")
	assert.NotContains(t, prompt, "Message passing\nMessage passing")
	assert.Contains(t, prompt, "Graph facts:\n")
	assert.Contains(t, prompt, `Publication "Graph neural networks" AUTHORED_BY Ada; CITES "Message passing"`)
	assert.True(t, strings.HasSuffix(prompt, "Question: how do GNNs work?\nAnswer:"))
}

func TestAnswer_DefaultLimit(t *testing.T) {
	s := &fakeSearcher{results: hits}
	p, err := NewPipeline(s, nil, &fakeGenerator{reply: "ok"})
	require.NoError(t, err)

	_, err = p.Answer(context.Background(), "q", Options{})
	require.NoError(t, err)
	assert.Equal(t, DefaultContextPublications, s.got.Limit)
}

func TestAnswer_NoResultsSkipsGenerator(t *testing.T) {
	g := &fakeGenerator{reply: "should not be used"}
	x := &fakeExtractor{}
	p, err := NewPipeline(&fakeSearcher{}, x, g)
	require.NoError(t, err)

	ans, err := p.Answer(context.Background(), "quantum gravity", Options{})
	require.NoError(t, err)
	assert.Equal(t, NoResultsAnswer, ans.Text)
	assert.Empty(t, ans.Sources)
	assert.Nil(t, ans.Subgraph)
	assert.Empty(t, g.prompts)
	assert.Nil(t, x.seeds)
}

func TestAnswer_EmptyQuestion(t *testing.T) {
	p, err := NewPipeline(&fakeSearcher{}, nil, &fakeGenerator{})
	require.NoError(t, err)
	_, err = p.Answer(context.Background(), "   ", Options{})
	assert.ErrorIs(t, err, search.ErrEmptyQuery)
}

func TestAnswer_SubgraphFailureDegrades(t *testing.T) {
	g := &fakeGenerator{reply: "answer"}
	p, err := NewPipeline(&fakeSearcher{results: hits}, &fakeExtractor{err: errors.New("neo4j down")}, g)
	require.NoError(t, err)

	ans, err := p.Answer(context.Background(), "q", Options{})
	require.NoError(t, err)
	assert.Equal(t, "answer", ans.Text)
	assert.Nil(t, ans.Subgraph)
	require.Len(t, g.prompts, 1)
	assert.NotContains(t, g.prompts[0], "Graph facts:")
}

func TestAnswer_Errors(t *testing.T) {
	tests := []struct {
		name     string
		searcher *fakeSearcher
		gen      *fakeGenerator
		wantCode string
		wantMsg  string
	}{
		{
			name:     "search fails",
			searcher: &fakeSearcher{err: perrors.New(perrors.ErrCodeSearchFailed, "bm25 broken", nil)},
			gen:      &fakeGenerator{},
			wantCode: perrors.ErrCodeSearchFailed,
			wantMsg:  "bm25 broken",
		},
		{
			name:     "plain generator error is wrapped",
			searcher: &fakeSearcher{results: hits},
			gen:      &fakeGenerator{err: errors.New("model crashed")},
			wantCode: perrors.ErrCodeGenerateFailed,
			wantMsg:  "model crashed",
		},
		{
			name:     "coded generator error is kept",
			searcher: &fakeSearcher{results: hits},
			gen:      &fakeGenerator{err: perrors.New(perrors.ErrCodeEmbedUnavailable, "ollama unreachable", nil)},
			wantCode: perrors.ErrCodeEmbedUnavailable,
			wantMsg:  "ollama unreachable",
		},
		{
			name:     "blank reply",
			searcher: &fakeSearcher{results: hits},
			gen:      &fakeGenerator{reply: " \n\t "},
			wantCode: perrors.ErrCodeGenerateFailed,
			wantMsg:  "empty answer",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewPipeline(tt.searcher, nil, tt.gen)
			require.NoError(t, err)
			_, err = p.Answer(context.Background(), "q", Options{})
			require.Error(t, err)
			assert.Equal(t, tt.wantCode, perrors.GetCode(err))
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}

func TestAnswer_CancelledGeneration(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p, err := NewPipeline(&fakeSearcher{results: hits}, nil, &fakeGenerator{err: errors.New("aborted")})
	require.NoError(t, err)

	_, err = p.Answer(ctx, "q", Options{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewPipeline_Validation(t *testing.T) {
	_, err := NewPipeline(nil, nil, &fakeGenerator{})
	assert.EqualError(t, err, "searcher is required")
	_, err = NewPipeline(&fakeSearcher{}, nil, nil)
	assert.EqualError(t, err, "generator is required")
}

func TestBuildPrompt_WithoutGraph(t *testing.T) {
	prompt := BuildPrompt("what?", hits[:1], nil)
	assert.Contains(t, prompt, "Sources:\n[1] Graph neural networks (2019)\n")
	assert.NotContains(t, prompt, "Graph facts")
	assert.Contains(t, prompt, "Cite sources by their number")
}
