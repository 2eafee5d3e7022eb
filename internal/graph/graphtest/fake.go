// Package graphtest provides an in-memory graph.Runner for tests.
package graphtest

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/Aman-CERP/pubrag/internal/graph"
)

// Handler answers a statement. It receives the parameters passed to Run.
type Handler func(params map[string]any) ([]graph.Record, error)

type route struct {
	contains string
	handler  Handler
}

// Runner routes statements to handlers by substring, first match wins.
// Unmatched statements fail, so tests notice queries they did not expect.
type Runner struct {
	mu     sync.Mutex
	routes []route
	calls  []string
}

// New returns an empty Runner.
func New() *Runner {
	return &Runner{}
}

// On registers h for statements containing substr.
func (r *Runner) On(substr string, h Handler) *Runner {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.routes = append(r.routes, route{contains: substr, handler: h})
	return r
}

// Rows registers fixed rows for statements containing substr.
func (r *Runner) Rows(substr string, rows ...graph.Record) *Runner {
	return r.On(substr, func(map[string]any) ([]graph.Record, error) {
		return rows, nil
	})
}

// Count registers a single {"count": n} row.
func (r *Runner) Count(substr string, n int64) *Runner {
	return r.Rows(substr, graph.Record{"count": n})
}

// Fail registers err for statements containing substr.
func (r *Runner) Fail(substr string, err error) *Runner {
	return r.On(substr, func(map[string]any) ([]graph.Record, error) {
		return nil, err
	})
}

// Run implements graph.Runner.
func (r *Runner) Run(ctx context.Context, cypher string, params map[string]any) ([]graph.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.calls = append(r.calls, cypher)
	routes := append([]route(nil), r.routes...)
	r.mu.Unlock()

	for _, rt := range routes {
		if strings.Contains(cypher, rt.contains) {
			return rt.handler(params)
		}
	}
	return nil, fmt.Errorf("graphtest: unexpected statement: %s", strings.TrimSpace(cypher))
}

// Calls returns the statements run so far.
func (r *Runner) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

// Publications serves FetchPublications pages from pubs using the skip and
// limit parameters.
func Publications(pubs []graph.Publication) Handler {
	return func(params map[string]any) ([]graph.Record, error) {
		skip, _ := params["skip"].(int64)
		limit, _ := params["limit"].(int64)
		var rows []graph.Record
		for i := int(skip); i < len(pubs) && int64(len(rows)) < limit; i++ {
			rows = append(rows, PublicationRecord(pubs[i]))
		}
		return rows, nil
	}
}

// PublicationRecord renders p the way the fetch statements return it.
func PublicationRecord(p graph.Publication) graph.Record {
	rec := graph.Record{
		"id":       nilIfEmpty(p.ID),
		"title":    nilIfEmpty(p.Title),
		"abstract": nilIfEmpty(p.Abstract),
		"authors":  toAny(p.Authors),
		"topics":   toAny(p.Topics),
	}
	if p.Year != 0 {
		rec["year"] = int64(p.Year)
	} else {
		rec["year"] = nil
	}
	return rec
}

func nilIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func toAny(in []string) []any {
	out := make([]any, len(in))
	for i, s := range in {
		out[i] = s
	}
	return out
}
