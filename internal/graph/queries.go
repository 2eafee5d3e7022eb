package graph

import (
	"context"
	"fmt"
	"regexp"
	"slices"

	perrors "github.com/Aman-CERP/pubrag/internal/errors"
)

const (
	cypherPing              = "RETURN 1 as test"
	cypherVersion           = "CALL dbms.components() YIELD versions RETURN versions[0] as version"
	cypherCountPublications = "MATCH (p:publication) RETURN count(p) as count"
	cypherCountAuthors      = "MATCH (a:Author) RETURN count(a) as count"
	cypherSamplePublication = `
MATCH (p:publication)
RETURN p.id as id, p.title as title, p.abstract as abstract
LIMIT 1`
	cypherShowConstraints = "SHOW CONSTRAINTS"
	cypherShowIndexes     = "SHOW INDEXES"

	cypherFetchPublications = `
MATCH (p:publication)
WITH p ORDER BY coalesce(toString(p.id), ''), elementId(p) SKIP $skip LIMIT $limit
OPTIONAL MATCH (a:Author)-[:AUTHORED]->(p)
OPTIONAL MATCH (p)-[:HAS_TOPIC]->(t:Topic)
RETURN toString(p.id) as id, p.title as title, p.abstract as abstract, p.year as year,
       collect(DISTINCT a.name) as authors, collect(DISTINCT t.name) as topics
ORDER BY coalesce(id, '')`

	cypherPublicationsByID = `
MATCH (p:publication)
WHERE toString(p.id) IN $ids
OPTIONAL MATCH (a:Author)-[:AUTHORED]->(p)
OPTIONAL MATCH (p)-[:HAS_TOPIC]->(t:Topic)
RETURN toString(p.id) as id, p.title as title, p.abstract as abstract, p.year as year,
       collect(DISTINCT a.name) as authors, collect(DISTINCT t.name) as topics`
)

// relTypePattern guards the relationship type interpolated into Cypher.
var relTypePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Queries runs the fixed read statements used by indexing and validation.
type Queries struct {
	r Runner
}

// NewQueries wraps r.
func NewQueries(r Runner) *Queries {
	return &Queries{r: r}
}

// Runner returns the underlying runner.
func (q *Queries) Runner() Runner { return q.r }

// Ping runs RETURN 1 and returns the value of the test column.
func (q *Queries) Ping(ctx context.Context) (int64, error) {
	rec, err := q.single(ctx, cypherPing, nil)
	if err != nil {
		return 0, err
	}
	if rec == nil {
		return 0, perrors.GraphError("ping returned no record", nil)
	}
	v, _ := toInt64(rec["test"])
	return v, nil
}

// Version returns the first version string reported by dbms.components().
func (q *Queries) Version(ctx context.Context) (string, error) {
	rec, err := q.single(ctx, cypherVersion, nil)
	if err != nil {
		return "", err
	}
	if rec == nil {
		return "", nil
	}
	return toString(rec["version"]), nil
}

// CountPublications counts publication nodes.
func (q *Queries) CountPublications(ctx context.Context) (int64, error) {
	return q.count(ctx, cypherCountPublications)
}

// CountAuthors counts Author nodes.
func (q *Queries) CountAuthors(ctx context.Context) (int64, error) {
	return q.count(ctx, cypherCountAuthors)
}

// CountRelationships counts relationships of relType.
func (q *Queries) CountRelationships(ctx context.Context, relType string) (int64, error) {
	if !relTypePattern.MatchString(relType) {
		return 0, perrors.New(perrors.ErrCodeGraphQuery,
			fmt.Sprintf("invalid relationship type %q", relType), nil)
	}
	return q.count(ctx, fmt.Sprintf("MATCH ()-[r:%s]->() RETURN count(r) as count", relType))
}

// PublicationSample is one publication as stored. Missing names the
// properties that are null in the graph.
type PublicationSample struct {
	Publication
	Missing []string
}

// Has reports whether prop is set on the node. An empty string counts as set.
func (s *PublicationSample) Has(prop string) bool {
	return !slices.Contains(s.Missing, prop)
}

// SamplePublication returns one publication with its raw properties, or nil
// when the graph has none.
func (q *Queries) SamplePublication(ctx context.Context) (*PublicationSample, error) {
	rec, err := q.single(ctx, cypherSamplePublication, nil)
	if err != nil || rec == nil {
		return nil, err
	}
	s := &PublicationSample{Publication: Publication{
		ID:       toString(rec["id"]),
		Title:    toString(rec["title"]),
		Abstract: toString(rec["abstract"]),
	}}
	for _, prop := range []string{"id", "title", "abstract"} {
		if rec[prop] == nil {
			s.Missing = append(s.Missing, prop)
		}
	}
	return s, nil
}

// Constraints lists constraint names from SHOW CONSTRAINTS.
func (q *Queries) Constraints(ctx context.Context) ([]string, error) {
	return q.names(ctx, cypherShowConstraints)
}

// Indexes lists index names from SHOW INDEXES.
func (q *Queries) Indexes(ctx context.Context) ([]string, error) {
	return q.names(ctx, cypherShowIndexes)
}

// FetchPublications returns up to limit publications ordered by id, after skip.
func (q *Queries) FetchPublications(ctx context.Context, skip, limit int) ([]Publication, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := q.r.Run(ctx, cypherFetchPublications, map[string]any{
		"skip":  int64(skip),
		"limit": int64(limit),
	})
	if err != nil {
		return nil, err
	}
	return toPublications(rows), nil
}

// PublicationsByID returns the publications whose id is in ids, in no particular order.
func (q *Queries) PublicationsByID(ctx context.Context, ids []string) ([]Publication, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := q.r.Run(ctx, cypherPublicationsByID, map[string]any{"ids": ids})
	if err != nil {
		return nil, err
	}
	return toPublications(rows), nil
}

func (q *Queries) single(ctx context.Context, cypher string, params map[string]any) (Record, error) {
	rows, err := q.r.Run(ctx, cypher, params)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

func (q *Queries) count(ctx context.Context, cypher string) (int64, error) {
	rec, err := q.single(ctx, cypher, nil)
	if err != nil {
		return 0, err
	}
	if rec == nil {
		return 0, nil
	}
	n, ok := toInt64(rec["count"])
	if !ok {
		return 0, perrors.GraphError(fmt.Sprintf("unexpected count value %v", rec["count"]), nil)
	}
	return n, nil
}

func (q *Queries) names(ctx context.Context, cypher string) ([]string, error) {
	rows, err := q.r.Run(ctx, cypher, nil)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(rows))
	for _, row := range rows {
		name := toString(row["name"])
		if name == "" {
			name = "unnamed"
		}
		out = append(out, name)
	}
	return out, nil
}

func toPublications(rows []Record) []Publication {
	pubs := make([]Publication, 0, len(rows))
	for _, row := range rows {
		year, _ := toInt64(row["year"])
		pubs = append(pubs, Publication{
			ID:       toString(row["id"]),
			Title:    toString(row["title"]),
			Abstract: toString(row["abstract"]),
			Year:     int(year),
			Authors:  toStrings(row["authors"]),
			Topics:   toStrings(row["topics"]),
		})
	}
	return pubs
}

func toString(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	default:
		return fmt.Sprint(s)
	}
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case float64:
		return int64(n), true
	default:
		return 0, false
	}
}

func toStrings(v any) []string {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	var out []string
	for _, it := range items {
		if s := toString(it); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// GetString returns the column as a string, "" when absent or null.
func (r Record) GetString(key string) string { return toString(r[key]) }

// GetStrings returns a list column with nulls and blanks dropped.
func (r Record) GetStrings(key string) []string { return toStrings(r[key]) }

// GetInt returns an integer column, 0 when absent or not a number.
func (r Record) GetInt(key string) int64 {
	n, _ := toInt64(r[key])
	return n
}
