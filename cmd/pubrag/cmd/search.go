package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/pubrag/internal/output"
	"github.com/Aman-CERP/pubrag/internal/search"
)

type searchOptions struct {
	limit      int
	yearFrom   int
	yearTo     int
	bm25Only   bool
	jsonOutput bool
	verbose    bool
}

func newSearchCmd() *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Hybrid keyword and semantic search over indexed publications",
		Long: `Search the local index with BM25 and vector retrieval fused by weighted
Reciprocal Rank Fusion. Weights and the RRF constant come from the search
section of config/config.yaml.

When the embedding model cannot be reached the search runs keyword-only.`,
		Example: `  pubrag search "graph neural networks"
  pubrag search "citation analysis" --year-from 2018 --limit 5
  pubrag search "BERT" --bm25-only --json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(cmd.Context(), cmd, strings.Join(args, " "), opts)
		},
	}

	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 0, "Maximum results (default from search.default_limit)")
	cmd.Flags().IntVar(&opts.yearFrom, "year-from", 0, "Earliest publication year, inclusive")
	cmd.Flags().IntVar(&opts.yearTo, "year-to", 0, "Latest publication year, inclusive")
	cmd.Flags().BoolVar(&opts.bm25Only, "bm25-only", false, "Skip the embedder and vector store")
	cmd.Flags().BoolVar(&opts.jsonOutput, "json", false, "Output as JSON")
	cmd.Flags().BoolVarP(&opts.verbose, "verbose", "v", false, "Show per-list ranks and matched terms")

	return cmd
}

func runSearch(ctx context.Context, cmd *cobra.Command, query string, opts searchOptions) error {
	if strings.TrimSpace(query) == "" {
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

	stack, err := openSearchStack(ctx, ws, stackOptions{bm25Only: opts.bm25Only, queries: queries})
	if err != nil {
		return err
	}
	defer func() { _ = stack.Close() }()

	results, err := stack.engine.Search(ctx, query, search.Options{
		Limit:    opts.limit,
		YearFrom: opts.yearFrom,
		YearTo:   opts.yearTo,
		BM25Only: opts.bm25Only,
	})
	if err != nil {
		return err
	}

	out := output.New(cmd.OutOrStdout())
	if opts.jsonOutput {
		if results == nil {
			results = []search.Result{}
		}
		return out.JSON(results)
	}
	out.SearchResults(query, results, opts.verbose)
	return nil
}

func checkYearRange(from, to int) error {
	if from < 0 || to < 0 {
		return fmt.Errorf("years must not be negative")
	}
	if from > 0 && to > 0 && from > to {
		return fmt.Errorf("--year-from (%d) is after --year-to (%d)", from, to)
	}
	return nil
}
