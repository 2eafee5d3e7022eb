package preflight

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/Aman-CERP/pubrag/internal/config"
	"github.com/Aman-CERP/pubrag/internal/graph"
)

// GraphConnector opens the connection the graph checks share. The returned
// close func is called once after the last graph check.
type GraphConnector func(ctx context.Context, cfg *config.Config) (graph.Runner, func(context.Context) error, error)

// ConnectNeo4j is the default GraphConnector. It makes a single connection
// attempt so an unreachable database fails fast.
func ConnectNeo4j(ctx context.Context, cfg *config.Config) (graph.Runner, func(context.Context) error, error) {
	cc, err := cfg.Neo4j.ClientConfig()
	if err != nil {
		return nil, nil, err
	}
	cc.ConnectAttempts = 1
	client, err := graph.NewNeo4jClient(ctx, cc)
	if err != nil {
		return nil, nil, err
	}
	return client, client.Close, nil
}

type graphCheck struct {
	name     string
	required bool
	run      func(ctx context.Context, q *graph.Queries) CheckResult
}

func (c *Checker) graphChecks() []graphCheck {
	return []graphCheck{
		{"neo4j_connection", true, c.checkConnection},
		{"neo4j_version", true, c.checkVersion},
		{"publications_exist", true, c.checkPublicationsExist},
		{"publication_properties", true, c.checkPublicationProperties},
		{"publication_relationships", false, c.checkRelationships},
		{"author_nodes", false, c.checkAuthors},
		{"database_constraints", false, c.checkConstraints},
		{"database_indexes", false, c.checkIndexes},
	}
}

func (c *Checker) runGraph(ctx context.Context) []CheckResult {
	checks := c.graphChecks()
	failAll := func(msg string) []CheckResult {
		out := make([]CheckResult, len(checks))
		for i, gc := range checks {
			out[i] = fail(gc.name, gc.required, msg)
		}
		return out
	}

	s, err := c.loadSettings()
	if err != nil {
		return failAll(fmt.Sprintf("config not loaded: %v", err))
	}
	runner, closeFn, err := c.connect(ctx, s.Config())
	if err != nil {
		return failAll(fmt.Sprintf("Neo4j connection failed: %v", err))
	}
	defer func() {
		if closeFn == nil {
			return
		}
		if err := closeFn(context.WithoutCancel(ctx)); err != nil {
			slog.Debug("preflight_graph_close_failed", slog.String("error", err.Error()))
		}
	}()

	q := graph.NewQueries(runner)
	results := make([]CheckResult, 0, len(checks))
	for _, gc := range checks {
		r := gc.run(ctx, q)
		r.Name = gc.name
		r.Required = gc.required
		results = append(results, r)
	}
	return results
}

func queryFailed(err error) CheckResult {
	return CheckResult{Status: StatusFail, Message: fmt.Sprintf("query failed: %v", err)}
}

func (c *Checker) checkConnection(ctx context.Context, q *graph.Queries) CheckResult {
	v, err := q.Ping(ctx)
	if err != nil {
		return queryFailed(err)
	}
	if v != 1 {
		return CheckResult{Status: StatusFail, Message: fmt.Sprintf("expected test = 1, got %d", v)}
	}
	return CheckResult{Status: StatusPass, Message: "Neo4j connection successful"}
}

func (c *Checker) checkVersion(ctx context.Context, q *graph.Queries) CheckResult {
	v, err := q.Version(ctx)
	if err != nil {
		return queryFailed(err)
	}
	if v == "" {
		return CheckResult{Status: StatusFail, Message: "Neo4j version not reported"}
	}
	return CheckResult{Status: StatusPass, Message: "Neo4j version: " + v}
}

func (c *Checker) checkPublicationsExist(ctx context.Context, q *graph.Queries) CheckResult {
	n, err := q.CountPublications(ctx)
	if err != nil {
		return queryFailed(err)
	}
	if n <= 0 {
		return CheckResult{Status: StatusFail, Message: "No Publication nodes found in database. Load data first."}
	}
	return CheckResult{Status: StatusPass, Message: fmt.Sprintf("Found %d publications in Neo4j", n)}
}

func (c *Checker) checkPublicationProperties(ctx context.Context, q *graph.Queries) CheckResult {
	p, err := q.SamplePublication(ctx)
	if err != nil {
		return queryFailed(err)
	}
	switch {
	case p == nil:
		return CheckResult{Status: StatusFail, Message: "No publications found"}
	case !p.Has("id"):
		return CheckResult{Status: StatusFail, Message: "Publication missing 'id' property"}
	case !p.Has("title"):
		return CheckResult{Status: StatusFail, Message: "Publication missing 'title' property"}
	}

	details := fmt.Sprintf("Sample publication ID: %s\nSample publication title: %s...", p.ID, truncate(p.Title, 50))
	if !p.HasAbstract() {
		return CheckResult{Status: StatusWarn, Message: "Sample publication has no abstract", Details: details}
	}
	n := utf8.RuneCountInString(p.Abstract)
	return CheckResult{
		Status:  StatusPass,
		Message: fmt.Sprintf("Sample %q has id, title and abstract (%d characters)", truncate(p.Title, 50), n),
		Details: details + fmt.Sprintf("\nAbstract available: %d characters", n),
	}
}

func (c *Checker) checkRelationships(ctx context.Context, q *graph.Queries) CheckResult {
	var found []string
	for _, rel := range graph.RelationshipTypes {
		n, err := q.CountRelationships(ctx, rel)
		if err != nil {
			return queryFailed(err)
		}
		if n > 0 {
			found = append(found, fmt.Sprintf("Found %d %s relationships", n, rel))
		}
	}
	if len(found) == 0 {
		return CheckResult{Status: StatusWarn, Message: "No " + strings.Join(graph.RelationshipTypes, ", ") + " relationships found"}
	}
	return CheckResult{Status: StatusPass, Message: strings.Join(found, ", ")}
}

func (c *Checker) checkAuthors(ctx context.Context, q *graph.Queries) CheckResult {
	n, err := q.CountAuthors(ctx)
	if err != nil {
		return queryFailed(err)
	}
	if n == 0 {
		return CheckResult{Status: StatusWarn, Message: "No Author nodes found"}
	}
	return CheckResult{Status: StatusPass, Message: fmt.Sprintf("Found %d authors in database", n)}
}

func (c *Checker) checkConstraints(ctx context.Context, q *graph.Queries) CheckResult {
	names, err := q.Constraints(ctx)
	if err != nil {
		return queryFailed(err)
	}
	return listing(fmt.Sprintf("Database has %d constraints", len(names)), names)
}

func (c *Checker) checkIndexes(ctx context.Context, q *graph.Queries) CheckResult {
	names, err := q.Indexes(ctx)
	if err != nil {
		return queryFailed(err)
	}
	return listing(fmt.Sprintf("Database has %d indexes", len(names)), names)
}

func listing(msg string, names []string) CheckResult {
	lines := make([]string, len(names))
	for i, n := range names {
		lines[i] = "- " + n
	}
	return CheckResult{Status: StatusPass, Message: msg, Details: strings.Join(lines, "\n")}
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
