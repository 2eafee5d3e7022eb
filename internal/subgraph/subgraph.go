// Package subgraph extracts the neighbourhood of a set of publications from
// the graph: authors, topics, venues and citations in both directions.
package subgraph

import (
	"fmt"
	"strings"

	"github.com/Aman-CERP/pubrag/internal/graph"
)

// Node is a vertex of an extracted subgraph.
type Node struct {
	// ID is the publication id, or "<label>:<name>" for other nodes.
	ID    string `json:"id"`
	Label string `json:"label"`
	Name  string `json:"name"`
	// Seed marks the publications the extraction started from.
	Seed bool `json:"seed,omitempty"`
}

// Edge is a directed relationship between two nodes of the subgraph.
type Edge struct {
	From string `json:"from"`
	To   string `json:"to"`
	Type string `json:"type"`
}

// Subgraph is the result of Extract. Nodes are unique, seeds first.
type Subgraph struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`

	// Truncated is set when MaxNodes cut the neighbourhood short.
	Truncated bool `json:"truncated,omitempty"`
}

// Node returns the node with id, or false.
func (s *Subgraph) Node(id string) (Node, bool) {
	for _, n := range s.Nodes {
		if n.ID == id {
			return n, true
		}
	}
	return Node{}, false
}

// Summary renders one line per publication listing its relationships, for
// use as LLM context. For example:
//
//	Publication "T" AUTHORED_BY A, B; HAS_TOPIC X; CITES "U"
func (s *Subgraph) Summary() string {
	if s == nil || len(s.Nodes) == 0 {
		return ""
	}

	names := make(map[string]string, len(s.Nodes))
	for _, n := range s.Nodes {
		names[n.ID] = n.Name
	}

	type facts struct {
		authors, topics, venues, cites, citedBy []string
	}
	byPub := make(map[string]*facts)
	get := func(id string) *facts {
		f, ok := byPub[id]
		if !ok {
			f = &facts{}
			byPub[id] = f
		}
		return f
	}
	for _, e := range s.Edges {
		switch e.Type {
		case graph.RelAuthored:
			get(e.To).authors = append(get(e.To).authors, names[e.From])
		case graph.RelHasTopic:
			get(e.From).topics = append(get(e.From).topics, names[e.To])
		case graph.RelPartOf:
			get(e.From).venues = append(get(e.From).venues, names[e.To])
		case graph.RelCites:
			get(e.From).cites = append(get(e.From).cites, quote(names[e.To]))
			get(e.To).citedBy = append(get(e.To).citedBy, quote(names[e.From]))
		}
	}

	var b strings.Builder
	for _, n := range s.Nodes {
		if n.Label != graph.LabelPublication {
			continue
		}
		b.WriteString("Publication ")
		b.WriteString(quote(n.Name))
		if f, ok := byPub[n.ID]; ok {
			var parts []string
			add := func(rel string, items []string) {
				if len(items) > 0 {
					parts = append(parts, rel+" "+strings.Join(items, ", "))
				}
			}
			add("AUTHORED_BY", f.authors)
			add(graph.RelHasTopic, f.topics)
			add(graph.RelPartOf, f.venues)
			add(graph.RelCites, f.cites)
			add("CITED_BY", f.citedBy)
			if len(parts) > 0 {
				b.WriteString(" ")
				b.WriteString(strings.Join(parts, "; "))
			}
		}
		b.WriteString("\n")
	}
	return b.String()
}

// Stats returns node counts by label and the edge count.
func (s *Subgraph) Stats() (map[string]int, int) {
	counts := make(map[string]int)
	for _, n := range s.Nodes {
		counts[n.Label]++
	}
	return counts, len(s.Edges)
}

func quote(s string) string { return fmt.Sprintf("%q", s) }

func nodeID(label, name string) string {
	return strings.ToLower(label) + ":" + name
}
