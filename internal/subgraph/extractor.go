package subgraph

import (
	"context"
	"log/slog"
	"strings"

	perrors "github.com/Aman-CERP/pubrag/internal/errors"
	"github.com/Aman-CERP/pubrag/internal/graph"
)

const (
	// DefaultMaxNodes caps the subgraph when Options.MaxNodes is zero.
	DefaultMaxNodes = 100

	// MaxDepth is the deepest citation expansion allowed.
	MaxDepth = 2
)

const (
	cypherPublicationContext = `
MATCH (p:publication)
WHERE toString(p.id) IN $ids
OPTIONAL MATCH (a:Author)-[:AUTHORED]->(p)
OPTIONAL MATCH (p)-[:HAS_TOPIC]->(t)
OPTIONAL MATCH (p)-[:PART_OF]->(v)
RETURN toString(p.id) as id, p.title as title,
       collect(DISTINCT a.name) as authors,
       collect(DISTINCT t.name) as topics,
       collect(DISTINCT coalesce(v.name, v.title)) as venues`

	cypherCitations = `
MATCH (a:publication)-[:CITES]->(b:publication)
WHERE toString(a.id) IN $ids OR toString(b.id) IN $ids
RETURN toString(a.id) as source, a.title as source_title,
       toString(b.id) as target, b.title as target_title
LIMIT $limit`
)

// Options bounds an extraction.
type Options struct {
	// Depth is the number of citation hops, 1 or 2. Zero means 1.
	Depth int

	// MaxNodes caps the node count. Zero means DefaultMaxNodes.
	MaxNodes int
}

func (o Options) normalized() Options {
	if o.Depth <= 0 {
		o.Depth = 1
	}
	if o.Depth > MaxDepth {
		o.Depth = MaxDepth
	}
	if o.MaxNodes <= 0 {
		o.MaxNodes = DefaultMaxNodes
	}
	return o
}

// Extractor reads subgraphs through a graph.Runner.
type Extractor struct {
	runner graph.Runner
	logger *slog.Logger
}

// NewExtractor returns an extractor over r.
func NewExtractor(r graph.Runner) *Extractor {
	return &Extractor{runner: r, logger: slog.Default()}
}

// Extract collects the seed publications with their authors, topics and
// venues, then follows CITES edges in both directions up to opts.Depth hops.
// Seeds unknown to the graph are ignored.
func (x *Extractor) Extract(ctx context.Context, seedIDs []string, opts Options) (*Subgraph, error) {
	opts = opts.normalized()
	b := newBuilder(opts.MaxNodes)

	seeds := dedupe(seedIDs)
	if len(seeds) == 0 {
		return b.result(), nil
	}

	rows, err := x.runner.Run(ctx, cypherPublicationContext, map[string]any{"ids": seeds})
	if err != nil {
		return nil, perrors.GraphError("failed to load publication context", err)
	}
	byID := make(map[string]graph.Record, len(rows))
	for _, row := range rows {
		byID[row.GetString("id")] = row
	}

	// Seeds go in first and in caller order so truncation keeps them.
	var found []string
	for _, id := range seeds {
		row, ok := byID[id]
		if !ok {
			x.logger.Debug("subgraph_seed_missing", slog.String("id", id))
			continue
		}
		if b.addNode(Node{ID: id, Label: graph.LabelPublication, Name: row.GetString("title"), Seed: true}) {
			found = append(found, id)
		}
	}
	for _, id := range found {
		row := byID[id]
		for _, name := range row.GetStrings("authors") {
			b.link(Node{ID: nodeID(graph.LabelAuthor, name), Label: graph.LabelAuthor, Name: name}, id, graph.RelAuthored, true)
		}
		for _, name := range row.GetStrings("topics") {
			b.link(Node{ID: nodeID(graph.LabelTopic, name), Label: graph.LabelTopic, Name: name}, id, graph.RelHasTopic, false)
		}
		for _, name := range row.GetStrings("venues") {
			b.link(Node{ID: nodeID(graph.LabelVenue, name), Label: graph.LabelVenue, Name: name}, id, graph.RelPartOf, false)
		}
	}

	frontier := found
	for hop := 0; hop < opts.Depth && len(frontier) > 0 && !b.full(); hop++ {
		next, err := x.expandCitations(ctx, b, frontier, opts.MaxNodes)
		if err != nil {
			return nil, err
		}
		frontier = next
	}

	sg := b.result()
	counts, edges := sg.Stats()
	x.logger.Debug("subgraph_extracted",
		slog.Int("seeds", len(found)),
		slog.Int("depth", opts.Depth),
		slog.Int("publications", counts[graph.LabelPublication]),
		slog.Int("edges", edges),
		slog.Bool("truncated", sg.Truncated))
	return sg, nil
}

// expandCitations adds one hop of CITES edges around frontier and returns the
// publications first reached in this hop.
func (x *Extractor) expandCitations(ctx context.Context, b *builder, frontier []string, maxNodes int) ([]string, error) {
	rows, err := x.runner.Run(ctx, cypherCitations, map[string]any{
		"ids":   frontier,
		"limit": int64(maxNodes * 4),
	})
	if err != nil {
		return nil, perrors.GraphError("failed to load citations", err)
	}

	var next []string
	for _, row := range rows {
		src, dst := row.GetString("source"), row.GetString("target")
		if src == "" || dst == "" || src == dst {
			continue
		}
		for _, n := range []Node{
			{ID: src, Label: graph.LabelPublication, Name: row.GetString("source_title")},
			{ID: dst, Label: graph.LabelPublication, Name: row.GetString("target_title")},
		} {
			if b.has(n.ID) {
				continue
			}
			if b.addNode(n) {
				next = append(next, n.ID)
			}
		}
		b.addEdge(Edge{From: src, To: dst, Type: graph.RelCites})
	}
	return next, nil
}

// builder accumulates unique nodes and edges under a node cap.
type builder struct {
	limit int
	nodes []Node
	index map[string]int
	edges []Edge
	seen  map[Edge]bool
	cut   bool
}

func newBuilder(limit int) *builder {
	return &builder{limit: limit, index: make(map[string]int), seen: make(map[Edge]bool)}
}

func (b *builder) has(id string) bool {
	_, ok := b.index[id]
	return ok
}

func (b *builder) full() bool { return len(b.nodes) >= b.limit }

// addNode reports whether n is present after the call.
func (b *builder) addNode(n Node) bool {
	if i, ok := b.index[n.ID]; ok {
		if b.nodes[i].Name == "" {
			b.nodes[i].Name = n.Name
		}
		return true
	}
	if b.full() {
		b.cut = true
		return false
	}
	b.index[n.ID] = len(b.nodes)
	b.nodes = append(b.nodes, n)
	return true
}

// addEdge keeps e only when both endpoints are in the subgraph.
func (b *builder) addEdge(e Edge) {
	if !b.has(e.From) || !b.has(e.To) || b.seen[e] {
		return
	}
	b.seen[e] = true
	b.edges = append(b.edges, e)
}

// link adds n and an edge between n and pub. inbound means n -> pub.
func (b *builder) link(n Node, pub, rel string, inbound bool) {
	if strings.TrimSpace(n.Name) == "" || !b.addNode(n) {
		return
	}
	if inbound {
		b.addEdge(Edge{From: n.ID, To: pub, Type: rel})
	} else {
		b.addEdge(Edge{From: pub, To: n.ID, Type: rel})
	}
}

func (b *builder) result() *Subgraph {
	nodes := b.nodes
	if nodes == nil {
		nodes = []Node{}
	}
	edges := b.edges
	if edges == nil {
		edges = []Edge{}
	}
	return &Subgraph{Nodes: nodes, Edges: edges, Truncated: b.cut}
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
