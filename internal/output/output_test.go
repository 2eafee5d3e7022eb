package output

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/pubrag/internal/graph"
	"github.com/Aman-CERP/pubrag/internal/rag"
	"github.com/Aman-CERP/pubrag/internal/search"
	"github.com/Aman-CERP/pubrag/internal/subgraph"
)

func TestWriter_StatusLines(t *testing.T) {
	tests := []struct {
		name  string
		write func(w *Writer)
		want  string
	}{
		{"status", func(w *Writer) { w.Status("🔍", "Checking embedder...") }, "🔍 Checking embedder...\n"},
		{"status without icon", func(w *Writer) { w.Status("", "indented") }, "   indented\n"},
		{"statusf", func(w *Writer) { w.Statusf("📂", "Found %d publications", 42) }, "📂 Found 42 publications\n"},
		{"success", func(w *Writer) { w.Successf("Indexed %d", 3) }, "✅ Indexed 3\n"},
		{"warning", func(w *Writer) { w.Warning("Embedder not available") }, "⚠️  Embedder not available\n"},
		{"error", func(w *Writer) { w.Errorf("Failed to connect to %s", "neo4j") }, "❌ Failed to connect to neo4j\n"},
		{"println", func(w *Writer) { w.Println("plain") }, "plain\n"},
		{"newline", func(w *Writer) { w.Newline() }, "\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			tt.write(New(buf))
			assert.Equal(t, tt.want, buf.String())
		})
	}
}

func TestWriter_Code_IndentsLines(t *testing.T) {
	buf := &bytes.Buffer{}
	New(buf).Code("a\nb")
	assert.Equal(t, "\n  a\n  b\n\n", buf.String())
}

func TestWriter_JSON(t *testing.T) {
	buf := &bytes.Buffer{}
	require.NoError(t, New(buf).JSON(map[string]int{"count": 2}))

	var got map[string]int
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, 2, got["count"])
	assert.Contains(t, buf.String(), "\n  \"count\"")
}

func TestWriter_SearchResults(t *testing.T) {
	results := []search.Result{
		{ID: "p1", Title: "Graph neural networks", Year: 2019, Score: 1, Snippet: "We model citation graphs.",
			BM25Rank: 1, BM25Score: 3.2, VectorRank: 2, VectorScore: 0.81, InBoth: true, MatchedTerms: []string{"graph"}},
		{ID: "p2", Title: "Message passing", Score: 0.5, Snippet: "Message passing"},
	}

	t.Run("compact", func(t *testing.T) {
		buf := &bytes.Buffer{}
		New(buf).SearchResults("graph", results, false)
		out := buf.String()

		assert.Contains(t, out, `2 results for "graph"`)
		assert.Contains(t, out, " 1. Graph neural networks (2019) p1\n    score 1.000\n    We model citation graphs.\n")
		assert.Contains(t, out, " 2. Message passing p2\n    score 0.500\n\n")
		assert.NotContains(t, out, "bm25 #")
	})

	t.Run("verbose", func(t *testing.T) {
		buf := &bytes.Buffer{}
		New(buf).SearchResults("graph", results, true)
		assert.Contains(t, buf.String(), "bm25 #1 (3.200)  vector #2 (0.810)  both=true")
		assert.Contains(t, buf.String(), "terms: graph")
	})

	t.Run("empty", func(t *testing.T) {
		buf := &bytes.Buffer{}
		New(buf).SearchResults("nothing", nil, false)
		assert.Equal(t, "🔍 No results for \"nothing\"\n", buf.String())
	})
}

func TestWriter_Subgraph(t *testing.T) {
	sg := &subgraph.Subgraph{
		Nodes: []subgraph.Node{
			{ID: "p1", Label: graph.LabelPublication, Name: "Graph neural networks", Seed: true},
			{ID: "p2", Label: graph.LabelPublication, Name: "Message passing"},
			{ID: "author:Ada", Label: graph.LabelAuthor, Name: "Ada"},
		},
		Edges: []subgraph.Edge{
			{From: "author:Ada", To: "p1", Type: graph.RelAuthored},
			{From: "p1", To: "p2", Type: graph.RelCites},
		},
		Truncated: true,
	}

	buf := &bytes.Buffer{}
	New(buf).Subgraph(sg, true)
	out := buf.String()

	assert.Contains(t, out, "1 Author, 2 publication, 2 edges")
	assert.Contains(t, out, "Subgraph truncated")
	assert.Contains(t, out, `Publication "Graph neural networks" AUTHORED_BY Ada; CITES "Message passing"`)
	assert.Contains(t, out, `  Ada -[AUTHORED]-> "Graph neural networks"`)
	assert.Contains(t, out, `  "Graph neural networks" -[CITES]-> "Message passing"`)

	buf.Reset()
	New(buf).Subgraph(&subgraph.Subgraph{}, false)
	assert.Contains(t, buf.String(), "No matching publications")
}

func TestWriter_Answer(t *testing.T) {
	buf := &bytes.Buffer{}
	New(buf).Answer(&rag.Answer{
		Text:    "GNNs pass messages [1].",
		Sources: []search.Result{{ID: "p1", Title: "Graph neural networks", Year: 2019}},
	})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "GNNs pass messages [1].", lines[0])
	assert.Equal(t, "Sources:", lines[2])
	assert.Equal(t, "  [1] Graph neural networks (2019) p1", lines[3])

	buf.Reset()
	New(buf).Answer(&rag.Answer{Text: rag.NoResultsAnswer})
	assert.Equal(t, rag.NoResultsAnswer+"\n", buf.String())
}
