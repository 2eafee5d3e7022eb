package cmd

import (
	"context"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/pubrag/internal/output"
	"github.com/Aman-CERP/pubrag/internal/rag"
	"github.com/Aman-CERP/pubrag/internal/search"
	"github.com/Aman-CERP/pubrag/internal/subgraph"
)

type askOptions struct {
	limit      int
	depth      int
	yearFrom   int
	yearTo     int
	jsonOutput bool
}

func newAskCmd() *cobra.Command {
	var opts askOptions

	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Answer a question from the indexed publications",
		Long: `Retrieve the most relevant publications, extract their graph
neighbourhood and ask the rag.model in Ollama to answer with numbered
citations.

Without a reachable Neo4j the answer is generated from the publications
alone.`,
		Example: `  pubrag ask "Which papers introduced graph attention?"
  pubrag ask "Who works on citation recommendation?" --limit 8 --depth 2`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAsk(cmd.Context(), cmd, strings.Join(args, " "), opts)
		},
	}

	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 0, "Publications used as context (default from rag.max_context_publications)")
	cmd.Flags().IntVarP(&opts.depth, "depth", "d", 0, "Citation hops in the context subgraph (default from rag.subgraph_depth)")
	cmd.Flags().IntVar(&opts.yearFrom, "year-from", 0, "Earliest publication year, inclusive")
	cmd.Flags().IntVar(&opts.yearTo, "year-to", 0, "Latest publication year, inclusive")
	cmd.Flags().BoolVar(&opts.jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runAsk(ctx context.Context, cmd *cobra.Command, question string, opts askOptions) error {
	if strings.TrimSpace(question) == "" {
		return search.ErrEmptyQuery
	}
	if err := checkYearRange(opts.yearFrom, opts.yearTo); err != nil {
		return err
	}

	ws, err := loadWorkspace()
	if err != nil {
		return err
	}
	queries, closeQueries := openQueryLog(ws, 0)
	defer closeQueries()

	stack, err := openSearchStack(ctx, ws, stackOptions{queries: queries})
	if err != nil {
		return err
	}
	defer func() { _ = stack.Close() }()

	extractor, closeGraph := optionalExtractor(ctx, ws)
	defer closeGraph()

	pipeline, err := newPipeline(ws, stack.engine, extractor)
	if err != nil {
		return err
	}

	rc := ws.config().RAG
	if opts.limit <= 0 {
		opts.limit = rc.MaxContextPublications
	}
	if opts.depth <= 0 {
		opts.depth = rc.SubgraphDepth
	}
	answer, err := pipeline.Answer(ctx, question, rag.Options{
		Limit:    opts.limit,
		Depth:    opts.depth,
		YearFrom: opts.yearFrom,
		YearTo:   opts.yearTo,
	})
	if err != nil {
		return err
	}

	out := output.New(cmd.OutOrStdout())
	if opts.jsonOutput {
		return out.JSON(answer)
	}
	out.Answer(answer)
	return nil
}

// optionalExtractor connects to Neo4j for graph context. When the graph is
// unreachable it returns nil and answers carry no graph facts.
func optionalExtractor(ctx context.Context, ws *workspace) (*subgraph.Extractor, func()) {
	client, closeGraph, err := ws.openGraph(ctx)
	if err != nil {
		slog.Warn("graph_unavailable",
			slog.String("error", err.Error()),
			slog.String("effect", "answers without graph context"))
		return nil, func() {}
	}
	return subgraph.NewExtractor(client), closeGraph
}

func newPipeline(ws *workspace, searcher rag.Searcher, extractor *subgraph.Extractor) (*rag.Pipeline, error) {
	gen := rag.NewOllamaGenerator(rag.OllamaConfig{
		Host:       ws.config().Embeddings.OllamaHost,
		Model:      ws.config().RAG.Model,
		MaxRetries: 2,
	})
	// A nil *Extractor must not reach the pipeline as a non-nil interface.
	var x rag.SubgraphExtractor
	if extractor != nil {
		x = extractor
	}
	return rag.NewPipeline(searcher, x, gen)
}
