package mcp

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Aman-CERP/pubrag/internal/graph"
	"github.com/Aman-CERP/pubrag/internal/rag"
	"github.com/Aman-CERP/pubrag/internal/search"
	"github.com/Aman-CERP/pubrag/internal/subgraph"
)

func TestFormatSearchResults(t *testing.T) {
	out := FormatSearchResults("graph", testResults[:1])
	assert.Contains(t, out, "## Publications for \"graph\"\n\nFound 1 result\n\n")
	assert.Contains(t, out, "**ID:** `p1`")
	assert.Contains(t, out, "> We model citation graphs.")

	assert.Equal(t, `No publications found for "x"`, FormatSearchResults("x", nil))
}

func TestMatchReason(t *testing.T) {
	tests := []struct {
		name string
		r    search.Result
		want string
	}{
		{"both lists", search.Result{InBoth: true, BM25Rank: 1, VectorRank: 1}, "found by keyword and semantic search"},
		{"keyword only", search.Result{BM25Rank: 2, MatchedTerms: []string{"gnn"}}, "matched: gnn; keyword match"},
		{"semantic only", search.Result{VectorRank: 3}, "semantic match"},
		{"terms capped at five", search.Result{MatchedTerms: []string{"a", "b", "c", "d", "e", "f"}}, "matched: a, b, c, d, e"},
		{"nothing known", search.Result{}, "matched content"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, matchReason(tt.r))
		})
	}
}

func TestFormatSubgraph(t *testing.T) {
	assert.Equal(t, "No matching publications in the graph.", FormatSubgraph(nil))

	sg := &subgraph.Subgraph{
		Nodes: []subgraph.Node{
			{ID: "p1", Label: graph.LabelPublication, Name: "Graph neural networks", Seed: true},
			{ID: "author:Ada", Label: graph.LabelAuthor, Name: "Ada"},
		},
		Edges:     []subgraph.Edge{{From: "author:Ada", To: "p1", Type: graph.RelAuthored}},
		Truncated: true,
	}
	out := FormatSubgraph(sg)
	assert.Contains(t, out, "2 nodes, 1 edges, 1 authors (truncated)")
	assert.Contains(t, out, sg.Summary())
}

func TestFormatAnswer(t *testing.T) {
	out := FormatAnswer(&rag.Answer{
		Text:    "Answer [1].",
		Sources: []search.Result{{ID: "p1", Title: "T"}},
	})
	assert.Equal(t, "Answer [1].\n\n**Sources:**\n1. T `p1`\n", out)
}
