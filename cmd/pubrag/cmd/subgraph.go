package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/pubrag/internal/output"
	"github.com/Aman-CERP/pubrag/internal/subgraph"
)

func newSubgraphCmd() *cobra.Command {
	var (
		depth      int
		maxNodes   int
		jsonOutput bool
		verbose    bool
	)

	cmd := &cobra.Command{
		Use:   "subgraph <publication-id>...",
		Short: "Show the graph neighbourhood of publications",
		Long: `Extract the authors, topics, venues and citations around the given
publications from Neo4j. Citations are followed in both directions for
--depth hops.`,
		Example: `  pubrag subgraph W2741809807
  pubrag subgraph W2741809807 W2100837269 --depth 2 --verbose`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSubgraph(cmd.Context(), cmd, args, subgraph.Options{Depth: depth, MaxNodes: maxNodes}, jsonOutput, verbose)
		},
	}

	cmd.Flags().IntVarP(&depth, "depth", "d", 1, fmt.Sprintf("Citation hops, 1 to %d", subgraph.MaxDepth))
	cmd.Flags().IntVar(&maxNodes, "max-nodes", 0, "Cap on nodes (0 = default)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "List every edge")

	return cmd
}

func runSubgraph(ctx context.Context, cmd *cobra.Command, ids []string, opts subgraph.Options, jsonOutput, verbose bool) error {
	if opts.Depth < 1 || opts.Depth > subgraph.MaxDepth {
		return fmt.Errorf("--depth must be between 1 and %d", subgraph.MaxDepth)
	}
	seeds := make([]string, 0, len(ids))
	for _, id := range ids {
		if id = strings.TrimSpace(id); id != "" {
			seeds = append(seeds, id)
		}
	}
	if len(seeds) == 0 {
		return fmt.Errorf("at least one publication id is required")
	}

	ws, err := loadWorkspace()
	if err != nil {
		return err
	}
	client, closeGraph, err := ws.openGraph(ctx)
	if err != nil {
		return err
	}
	defer closeGraph()

	sg, err := subgraph.NewExtractor(client).Extract(ctx, seeds, opts)
	if err != nil {
		return err
	}

	out := output.New(cmd.OutOrStdout())
	if jsonOutput {
		return out.JSON(sg)
	}
	out.Subgraph(sg, verbose)
	return nil
}
