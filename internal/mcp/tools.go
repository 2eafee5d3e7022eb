package mcp

import (
	"github.com/Aman-CERP/pubrag/internal/search"
	"github.com/Aman-CERP/pubrag/internal/subgraph"
)

// Tool names.
const (
	ToolSearchPublications = "search_publications"
	ToolGetSubgraph        = "get_subgraph"
	ToolAsk                = "ask"
	ToolIndexStatus        = "index_status"
)

const (
	defaultLimit    = 10
	maxLimit        = 50
	defaultAskLimit = 5
	maxAskLimit     = 20
)

// SearchInput defines the input schema for the search_publications tool.
type SearchInput struct {
	Query    string `json:"query" jsonschema:"the search query, keywords or a natural-language question"`
	Limit    int    `json:"limit,omitempty" jsonschema:"maximum number of results, default 10, max 50"`
	YearFrom int    `json:"year_from,omitempty" jsonschema:"earliest publication year, inclusive"`
	YearTo   int    `json:"year_to,omitempty" jsonschema:"latest publication year, inclusive"`
}

// SearchOutput defines the output schema for the search_publications tool.
type SearchOutput struct {
	Query   string          `json:"query"`
	Results []search.Result `json:"results" jsonschema:"ranked publications, best first"`
}

// SubgraphInput defines the input schema for the get_subgraph tool.
type SubgraphInput struct {
	IDs   []string `json:"ids" jsonschema:"publication ids to start from"`
	Depth int      `json:"depth,omitempty" jsonschema:"citation hops, 1 or 2, default 1"`
}

// SubgraphOutput defines the output schema for the get_subgraph tool.
type SubgraphOutput struct {
	Subgraph *subgraph.Subgraph `json:"subgraph"`
	Summary  string             `json:"summary"`
}

// AskInput defines the input schema for the ask tool.
type AskInput struct {
	Question string `json:"question" jsonschema:"the question to answer from the indexed publications"`
	Limit    int    `json:"limit,omitempty" jsonschema:"number of publications used as context, default 5, max 20"`
}

// AskOutput defines the output schema for the ask tool.
type AskOutput struct {
	Answer  string          `json:"answer"`
	Model   string          `json:"model,omitempty"`
	Sources []search.Result `json:"sources"`
}

// IndexStatusInput defines the input schema for the index_status tool (no parameters).
type IndexStatusInput struct{}

// IndexStatusOutput describes the index manifest.
type IndexStatusOutput struct {
	PersistDir   string `json:"persist_dir"`
	Model        string `json:"model"`
	Dimensions   int    `json:"dimensions"`
	Publications int    `json:"publications"`
	BM25Backend  string `json:"bm25_backend"`
	RunID        string `json:"run_id,omitempty"`
	UpdatedAt    string `json:"updated_at" jsonschema:"RFC 3339 time of the last indexing run"`
}
