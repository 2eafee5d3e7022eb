package mcp

import (
	"fmt"
	"strings"

	"github.com/Aman-CERP/pubrag/internal/graph"
	"github.com/Aman-CERP/pubrag/internal/rag"
	"github.com/Aman-CERP/pubrag/internal/search"
	"github.com/Aman-CERP/pubrag/internal/subgraph"
)

// FormatSearchResults formats ranked publications as markdown.
func FormatSearchResults(query string, results []search.Result) string {
	if len(results) == 0 {
		return fmt.Sprintf("No publications found for \"%s\"", query)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "## Publications for \"%s\"\n\n", query)
	fmt.Fprintf(&sb, "Found %d result", len(results))
	if len(results) != 1 {
		sb.WriteString("s")
	}
	sb.WriteString("\n\n")

	for i, r := range results {
		formatResult(&sb, i+1, r)
	}
	return sb.String()
}

func formatResult(sb *strings.Builder, num int, r search.Result) {
	title := r.Title
	if r.Year > 0 {
		title = fmt.Sprintf("%s (%d)", title, r.Year)
	}
	fmt.Fprintf(sb, "### %d. %s (score: %.2f)\n", num, title, r.Score)
	fmt.Fprintf(sb, "**ID:** `%s`\n", r.ID)
	fmt.Fprintf(sb, "**Match:** %s\n\n", matchReason(r))
	if r.Snippet != "" && r.Snippet != r.Title {
		fmt.Fprintf(sb, "> %s\n\n", r.Snippet)
	}
}

// matchReason explains in one line why a result was returned.
func matchReason(r search.Result) string {
	var parts []string
	if len(r.MatchedTerms) > 0 {
		terms := r.MatchedTerms
		if len(terms) > 5 {
			terms = terms[:5]
		}
		parts = append(parts, "matched: "+strings.Join(terms, ", "))
	}
	switch {
	case r.InBoth:
		parts = append(parts, "found by keyword and semantic search")
	case r.BM25Rank > 0:
		parts = append(parts, "keyword match")
	case r.VectorRank > 0:
		parts = append(parts, "semantic match")
	}
	if len(parts) == 0 {
		return "matched content"
	}
	return strings.Join(parts, "; ")
}

// FormatSubgraph formats an extracted subgraph as markdown.
func FormatSubgraph(sg *subgraph.Subgraph) string {
	if sg == nil || len(sg.Nodes) == 0 {
		return "No matching publications in the graph."
	}

	counts, edges := sg.Stats()
	var sb strings.Builder
	sb.WriteString("## Subgraph\n\n")
	fmt.Fprintf(&sb, "%d nodes, %d edges", len(sg.Nodes), edges)
	if n := counts[graph.LabelAuthor]; n > 0 {
		fmt.Fprintf(&sb, ", %d authors", n)
	}
	if sg.Truncated {
		sb.WriteString(" (truncated)")
	}
	sb.WriteString("\n\n")
	sb.WriteString(sg.Summary())
	return sb.String()
}

// FormatAnswer formats a generated answer and its numbered sources.
func FormatAnswer(a *rag.Answer) string {
	var sb strings.Builder
	sb.WriteString(a.Text)
	sb.WriteString("\n")
	if len(a.Sources) == 0 {
		return sb.String()
	}
	sb.WriteString("\n**Sources:**\n")
	for i, s := range a.Sources {
		fmt.Fprintf(&sb, "%d. %s", i+1, s.Title)
		if s.Year > 0 {
			fmt.Fprintf(&sb, " (%d)", s.Year)
		}
		fmt.Fprintf(&sb, " `%s`\n", s.ID)
	}
	return sb.String()
}

// clampLimit ensures limit is within bounds.
func clampLimit(limit, defaultVal, min, max int) int {
	if limit <= 0 {
		return defaultVal
	}
	if limit < min {
		return min
	}
	if limit > max {
		return max
	}
	return limit
}
