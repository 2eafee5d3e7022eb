package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Aman-CERP/pubrag/internal/rag"
	"github.com/Aman-CERP/pubrag/internal/search"
	"github.com/Aman-CERP/pubrag/internal/store"
	"github.com/Aman-CERP/pubrag/internal/subgraph"
	"github.com/Aman-CERP/pubrag/pkg/version"
)

// ServerName is reported to MCP clients.
const ServerName = "pubrag"

// Searcher runs hybrid search. *search.Engine satisfies it.
type Searcher interface {
	Search(ctx context.Context, query string, opts search.Options) ([]search.Result, error)
}

// SubgraphExtractor is satisfied by *subgraph.Extractor.
type SubgraphExtractor interface {
	Extract(ctx context.Context, ids []string, opts subgraph.Options) (*subgraph.Subgraph, error)
}

// Answerer is satisfied by *rag.Pipeline.
type Answerer interface {
	Answer(ctx context.Context, question string, opts rag.Options) (*rag.Answer, error)
}

// Deps are the backends behind the tools. Searcher and Layout are
// required. A nil Extractor or Answerer makes the matching tool fail
// with an internal error.
type Deps struct {
	Searcher  Searcher
	Extractor SubgraphExtractor
	Answerer  Answerer
	Docs      search.DocumentReader
	Layout    store.Layout
	Logger    *slog.Logger
}

// Server is the MCP server for pubrag.
type Server struct {
	mcp       *mcp.Server
	searcher  Searcher
	extractor SubgraphExtractor
	answerer  Answerer
	docs      search.DocumentReader
	layout    store.Layout
	logger    *slog.Logger
}

// NewServer creates a server and registers its tools and resources.
func NewServer(deps Deps) (*Server, error) {
	if deps.Searcher == nil {
		return nil, errors.New("searcher is required")
	}
	if deps.Layout.Dir == "" {
		return nil, errors.New("persist directory is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		searcher:  deps.Searcher,
		extractor: deps.Extractor,
		answerer:  deps.Answerer,
		docs:      deps.Docs,
		layout:    deps.Layout,
		logger:    logger,
	}
	s.mcp = mcp.NewServer(&mcp.Implementation{
		Name:    ServerName,
		Version: version.Short(),
	}, nil)

	s.registerTools()
	s.registerResources()
	return s, nil
}

// MCPServer returns the underlying MCP server instance.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcp
}

// Serve runs the server over stdio until ctx is canceled.
func (s *Server) Serve(ctx context.Context) error {
	s.logger.Info("mcp_server_started", slog.String("transport", "stdio"))
	err := s.mcp.Run(ctx, &mcp.StdioTransport{})
	if err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Error("mcp_server_stopped", slog.String("error", err.Error()))
		return err
	}
	s.logger.Info("mcp_server_stopped")
	return nil
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name: ToolSearchPublications,
		Description: "Hybrid keyword and semantic search over indexed publications. " +
			"Returns ranked publications with ids usable by get_subgraph.",
	}, s.handleSearch)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name: ToolGetSubgraph,
		Description: "Extract the knowledge-graph neighbourhood of publications: " +
			"authors, topics, venues and citations in both directions.",
	}, s.handleSubgraph)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        ToolAsk,
		Description: "Answer a question from the indexed publications and their graph context, citing sources.",
	}, s.handleAsk)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        ToolIndexStatus,
		Description: "Report which model built the index, its dimensions and publication count.",
	}, s.handleIndexStatus)

	s.logger.Debug("mcp_tools_registered", slog.Int("count", 4))
}

func (s *Server) handleSearch(ctx context.Context, _ *mcp.CallToolRequest, in SearchInput) (
	*mcp.CallToolResult,
	SearchOutput,
	error,
) {
	query := strings.TrimSpace(in.Query)
	if query == "" {
		return nil, SearchOutput{}, NewInvalidParamsError("query parameter is required")
	}
	if in.YearFrom > 0 && in.YearTo > 0 && in.YearFrom > in.YearTo {
		return nil, SearchOutput{}, NewInvalidParamsError(
			fmt.Sprintf("year_from (%d) is after year_to (%d)", in.YearFrom, in.YearTo))
	}
	if err := s.requireIndex(); err != nil {
		return nil, SearchOutput{}, MapError(err)
	}

	requestID := uuid.NewString()
	start := time.Now()
	results, err := s.searcher.Search(ctx, query, search.Options{
		Limit:    clampLimit(in.Limit, defaultLimit, 1, maxLimit),
		YearFrom: in.YearFrom,
		YearTo:   in.YearTo,
	})
	if err != nil {
		s.logger.Error("mcp_search_failed",
			slog.String("request_id", requestID),
			slog.String("error", err.Error()))
		return nil, SearchOutput{}, MapError(err)
	}
	s.logger.Info("mcp_search_complete",
		slog.String("request_id", requestID),
		slog.Int("results", len(results)),
		slog.Duration("duration", time.Since(start)))

	if results == nil {
		results = []search.Result{}
	}
	return textResult(FormatSearchResults(query, results)), SearchOutput{Query: query, Results: results}, nil
}

func (s *Server) handleSubgraph(ctx context.Context, _ *mcp.CallToolRequest, in SubgraphInput) (
	*mcp.CallToolResult,
	SubgraphOutput,
	error,
) {
	ids := make([]string, 0, len(in.IDs))
	for _, id := range in.IDs {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return nil, SubgraphOutput{}, NewInvalidParamsError("ids must contain at least one publication id")
	}
	if in.Depth < 0 || in.Depth > subgraph.MaxDepth {
		return nil, SubgraphOutput{}, NewInvalidParamsError(
			fmt.Sprintf("depth must be between 1 and %d", subgraph.MaxDepth))
	}
	if s.extractor == nil {
		return nil, SubgraphOutput{}, &MCPError{Code: ErrCodeInternalError, Message: "graph database not configured"}
	}

	sg, err := s.extractor.Extract(ctx, ids, subgraph.Options{Depth: in.Depth})
	if err != nil {
		s.logger.Error("mcp_subgraph_failed", slog.String("error", err.Error()))
		return nil, SubgraphOutput{}, MapError(err)
	}
	if sg == nil {
		sg = &subgraph.Subgraph{Nodes: []subgraph.Node{}, Edges: []subgraph.Edge{}}
	}
	return textResult(FormatSubgraph(sg)), SubgraphOutput{Subgraph: sg, Summary: sg.Summary()}, nil
}

func (s *Server) handleAsk(ctx context.Context, _ *mcp.CallToolRequest, in AskInput) (
	*mcp.CallToolResult,
	AskOutput,
	error,
) {
	question := strings.TrimSpace(in.Question)
	if question == "" {
		return nil, AskOutput{}, NewInvalidParamsError("question parameter is required")
	}
	if s.answerer == nil {
		return nil, AskOutput{}, &MCPError{Code: ErrCodeInternalError, Message: "answer generation not configured"}
	}
	if err := s.requireIndex(); err != nil {
		return nil, AskOutput{}, MapError(err)
	}

	a, err := s.answerer.Answer(ctx, question, rag.Options{
		Limit: clampLimit(in.Limit, defaultAskLimit, 1, maxAskLimit),
	})
	if err != nil {
		s.logger.Error("mcp_ask_failed", slog.String("error", err.Error()))
		return nil, AskOutput{}, MapError(err)
	}
	sources := a.Sources
	if sources == nil {
		sources = []search.Result{}
	}
	return textResult(FormatAnswer(a)), AskOutput{Answer: a.Text, Model: a.Model, Sources: sources}, nil
}

func (s *Server) handleIndexStatus(_ context.Context, _ *mcp.CallToolRequest, _ IndexStatusInput) (
	*mcp.CallToolResult,
	IndexStatusOutput,
	error,
) {
	m, err := store.ReadManifest(s.layout)
	if err != nil {
		return nil, IndexStatusOutput{}, MapError(err)
	}
	return nil, IndexStatusOutput{
		PersistDir:   s.layout.Dir,
		Model:        m.Model,
		Dimensions:   m.Dimensions,
		Publications: m.Count,
		BM25Backend:  string(m.BM25Backend),
		RunID:        m.RunID,
		UpdatedAt:    m.UpdatedAt.UTC().Format(time.RFC3339),
	}, nil
}

// requireIndex fails with ErrIndexNotFound before any store is queried.
func (s *Server) requireIndex() error {
	if _, err := store.ReadManifest(s.layout); err != nil {
		if errors.Is(err, store.ErrNoManifest) {
			return ErrIndexNotFound
		}
		return err
	}
	return nil
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}
}
