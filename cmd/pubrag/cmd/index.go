package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/pubrag/internal/indexer"
	"github.com/Aman-CERP/pubrag/internal/preflight"
	"github.com/Aman-CERP/pubrag/internal/store"
	"github.com/Aman-CERP/pubrag/internal/ui"
)

// publicationIndexer is the part of *indexer.PublicationIndexer the driver uses.
type publicationIndexer interface {
	IndexPublications(ctx context.Context, batchSize, limit int) (*indexer.Result, error)
	Close() error
}

// newIndexer builds the indexer. Tests replace it.
var newIndexer = func(ctx context.Context, p indexer.Params, opts ...indexer.Option) (publicationIndexer, error) {
	ix, err := indexer.New(ctx, p, opts...)
	if err != nil {
		return nil, err
	}
	return ix, nil
}

type indexOptions struct {
	limit   int
	noTUI   bool
	rebuild bool
}

func newIndexCmd() *cobra.Command {
	var opts indexOptions

	cmd := &cobra.Command{
		Use:   "index",
		Short: "Index graph publications into the vector store and BM25 index",
		Long: `Read every Publication node from Neo4j, embed its title and abstract,
and persist the vectors, the BM25 index and the document store under
vector_store.persist_dir.

Connection settings come from config/config.yaml and .env. Every run
re-embeds all publications and replaces their entries, so re-running never
duplicates them. The index is rebuilt
from scratch when the embedding model or its dimensions change, or when
--rebuild is given.`,
		Example: `  # Index everything
  pubrag index

  # Index the first 100 publications with plain output
  pubrag index --limit 100 --no-tui

  # Discard the existing index first
  pubrag index --rebuild`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runIndex(cmd.Context(), cmd, opts)
		},
	}

	cmd.Flags().IntVar(&opts.limit, "limit", 0, "Index at most N publications (0 = all)")
	cmd.Flags().BoolVar(&opts.noTUI, "no-tui", false, "Plain text progress instead of the interactive view")
	cmd.Flags().BoolVar(&opts.rebuild, "rebuild", false, "Discard the existing index before indexing")

	return cmd
}

func runIndex(ctx context.Context, cmd *cobra.Command, opts indexOptions) error {
	if opts.limit < 0 {
		return fmt.Errorf("--limit must not be negative")
	}
	out := cmd.OutOrStdout()

	ws, err := loadWorkspace()
	if err != nil {
		return err
	}
	cfg := ws.config()

	provider, err := ws.provider()
	if err != nil {
		return err
	}
	backend, err := store.ParseBM25Backend(cfg.VectorStore.BM25Backend)
	if err != nil {
		return err
	}

	persistDir := ws.persistDir()
	if preflight.NeedsCheck(persistDir) {
		fmt.Fprintln(cmd.ErrOrStderr(), "Tip: run 'pubrag validate' to check the graph and environment first.")
	}

	renderer := ui.NewRenderer(ui.NewConfig(out,
		ui.WithForcePlain(opts.noTUI),
		ui.WithTitle("Indexing publications"),
	))

	ix, err := newIndexer(ctx, indexer.Params{
		Neo4jURI:       ws.settings.GetString("neo4j", "uri"),
		Neo4jUser:      ws.settings.GetString("neo4j", "user"),
		Neo4jPassword:  ws.settings.GetString("neo4j", "password"),
		EmbeddingModel: ws.settings.GetString("embeddings", "model_name"),
		PersistDir:     persistDir,
	},
		indexer.WithProvider(provider),
		indexer.WithDatabase(cfg.Neo4j.Database),
		indexer.WithBM25Backend(backend),
		indexer.WithOllamaHost(cfg.Embeddings.OllamaHost),
		indexer.WithEmbedOptions(ws.embedOptions()),
		indexer.WithRenderer(renderer),
		indexer.WithRebuild(opts.rebuild),
	)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := ix.Close(); cerr != nil {
			slog.Warn("indexer_close_failed", slog.String("error", cerr.Error()))
		}
	}()

	fmt.Fprintln(out, "Starting indexing process...")
	result, err := ix.IndexPublications(ctx, cfg.Embeddings.BatchSize, opts.limit)
	if err != nil {
		fmt.Fprintf(out, "\nError during indexing: %v\n", err)
		return err
	}
	slog.Info("index_command_complete",
		slog.String("run_id", result.RunID),
		slog.Int("indexed", result.Indexed),
		slog.Int("skipped", result.Skipped),
		slog.Duration("duration", result.Duration))
	fmt.Fprintln(out, "\nIndexing complete!")
	return nil
}
