// Package output formats pubrag command output: status lines, search
// results, subgraphs and answers. Colors are used only on terminals.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/Aman-CERP/pubrag/internal/graph"
	"github.com/Aman-CERP/pubrag/internal/rag"
	"github.com/Aman-CERP/pubrag/internal/search"
	"github.com/Aman-CERP/pubrag/internal/subgraph"
	"github.com/Aman-CERP/pubrag/internal/ui"
)

// Writer provides formatted output for CLI.
type Writer struct {
	out    io.Writer
	styles ui.Styles
}

// New creates a Writer. Output is colored when out is a terminal and
// NO_COLOR is unset.
func New(out io.Writer) *Writer {
	return &Writer{
		out:    out,
		styles: ui.GetStyles(!ui.IsTTY(out) || ui.DetectNoColor()),
	}
}

// Status prints a status message with an icon.
// Errors from writing are intentionally ignored for console output.
func (w *Writer) Status(icon, msg string) {
	if icon != "" {
		_, _ = fmt.Fprintf(w.out, "%s %s\n", icon, msg)
	} else {
		_, _ = fmt.Fprintf(w.out, "   %s\n", msg)
	}
}

// Statusf prints a formatted status message with an icon.
func (w *Writer) Statusf(icon, format string, args ...any) {
	w.Status(icon, fmt.Sprintf(format, args...))
}

// Success prints a success message with checkmark.
func (w *Writer) Success(msg string) {
	w.Status("✅", w.styles.Success.Render(msg))
}

// Successf prints a formatted success message.
func (w *Writer) Successf(format string, args ...any) {
	w.Success(fmt.Sprintf(format, args...))
}

// Warning prints a warning message.
func (w *Writer) Warning(msg string) {
	w.Status("⚠️ ", w.styles.Warning.Render(msg))
}

// Warningf prints a formatted warning message.
func (w *Writer) Warningf(format string, args ...any) {
	w.Warning(fmt.Sprintf(format, args...))
}

// Error prints an error message.
func (w *Writer) Error(msg string) {
	w.Status("❌", w.styles.Error.Render(msg))
}

// Errorf prints a formatted error message.
func (w *Writer) Errorf(format string, args ...any) {
	w.Error(fmt.Sprintf(format, args...))
}

// Println prints msg unadorned.
func (w *Writer) Println(msg string) {
	_, _ = fmt.Fprintln(w.out, msg)
}

// Code prints a code block with indentation.
func (w *Writer) Code(content string) {
	_, _ = fmt.Fprintln(w.out)
	for _, line := range strings.Split(content, "\n") {
		_, _ = fmt.Fprintf(w.out, "  %s\n", line)
	}
	_, _ = fmt.Fprintln(w.out)
}

// Newline prints an empty line.
func (w *Writer) Newline() {
	_, _ = fmt.Fprintln(w.out)
}

// JSON writes v as indented JSON.
func (w *Writer) JSON(v any) error {
	enc := json.NewEncoder(w.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// SearchResults prints ranked results. Verbose adds the per-list ranks.
func (w *Writer) SearchResults(query string, results []search.Result, verbose bool) {
	if len(results) == 0 {
		w.Statusf("🔍", "No results for %q", query)
		return
	}
	w.Statusf("🔍", "%d results for %q", len(results), query)
	w.Newline()

	for i, r := range results {
		title := r.Title
		if r.Year > 0 {
			title = fmt.Sprintf("%s (%d)", title, r.Year)
		}
		_, _ = fmt.Fprintf(w.out, "%2d. %s %s\n", i+1, w.styles.Header.Render(title), w.styles.Dim.Render(r.ID))
		_, _ = fmt.Fprintf(w.out, "    %s\n", w.styles.Label.Render(fmt.Sprintf("score %.3f", r.Score)))
		if verbose {
			_, _ = fmt.Fprintf(w.out, "    bm25 #%d (%.3f)  vector #%d (%.3f)  both=%t\n",
				r.BM25Rank, r.BM25Score, r.VectorRank, r.VectorScore, r.InBoth)
			if len(r.MatchedTerms) > 0 {
				_, _ = fmt.Fprintf(w.out, "    terms: %s\n", strings.Join(r.MatchedTerms, ", "))
			}
		}
		if r.Snippet != "" && r.Snippet != r.Title {
			_, _ = fmt.Fprintf(w.out, "    %s\n", r.Snippet)
		}
		_, _ = fmt.Fprintln(w.out)
	}
}

// Subgraph prints node counts, the relationship summary and, verbosely,
// every edge.
func (w *Writer) Subgraph(sg *subgraph.Subgraph, verbose bool) {
	if sg == nil || len(sg.Nodes) == 0 {
		w.Warning("No matching publications in the graph")
		return
	}

	counts, edges := sg.Stats()
	labels := make([]string, 0, len(counts))
	for l := range counts {
		labels = append(labels, l)
	}
	sort.Strings(labels)
	parts := make([]string, len(labels))
	for i, l := range labels {
		parts[i] = fmt.Sprintf("%d %s", counts[l], l)
	}
	w.Statusf("🕸️ ", "%s, %d edges", strings.Join(parts, ", "), edges)
	if sg.Truncated {
		w.Warning("Subgraph truncated at the node limit")
	}
	w.Newline()
	_, _ = fmt.Fprint(w.out, sg.Summary())

	if verbose {
		w.Newline()
		for _, e := range sg.Edges {
			_, _ = fmt.Fprintf(w.out, "  %s -[%s]-> %s\n", w.nodeName(sg, e.From), e.Type, w.nodeName(sg, e.To))
		}
	}
}

func (w *Writer) nodeName(sg *subgraph.Subgraph, id string) string {
	n, ok := sg.Node(id)
	if !ok || n.Name == "" {
		return id
	}
	if n.Label == graph.LabelPublication {
		return fmt.Sprintf("%q", n.Name)
	}
	return n.Name
}

// Answer prints a generated answer followed by its numbered sources.
func (w *Writer) Answer(a *rag.Answer) {
	_, _ = fmt.Fprintln(w.out, a.Text)
	if len(a.Sources) == 0 {
		return
	}
	w.Newline()
	_, _ = fmt.Fprintln(w.out, w.styles.Label.Render("Sources:"))
	for i, s := range a.Sources {
		line := fmt.Sprintf("[%d] %s", i+1, s.Title)
		if s.Year > 0 {
			line += fmt.Sprintf(" (%d)", s.Year)
		}
		_, _ = fmt.Fprintf(w.out, "  %s %s\n", line, w.styles.Dim.Render(s.ID))
	}
}
