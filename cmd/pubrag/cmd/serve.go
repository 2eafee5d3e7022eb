package cmd

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/pubrag/internal/mcp"
	"github.com/Aman-CERP/pubrag/internal/metrics"
)

func newServeCmd() *cobra.Command {
	var metricsAddr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the MCP tool server over stdio",
		Long: `Serve search_publications, get_subgraph, ask and index_status to an MCP
client over stdin/stdout.

stdout carries only JSON-RPC; logs go to the log file. With --metrics-addr a
Prometheus endpoint is served on /metrics.`,
		Example: `  # Register with an MCP client
  pubrag serve

  # Also expose Prometheus metrics
  pubrag serve --metrics-addr :9090`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), metricsAddr)
		},
	}

	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9090)")

	return cmd
}

func runServe(ctx context.Context, metricsAddr string) error {
	ws, err := loadWorkspace()
	if err != nil {
		return err
	}
	logger := slog.Default()

	var collector *metrics.Collector
	if metricsAddr != "" {
		collector = metrics.NewCollector()
		stopMetrics := serveMetrics(metricsAddr, collector, logger)
		defer stopMetrics()
	}

	queries, closeQueries := openQueryLog(ws, time.Minute)
	defer closeQueries()

	stack, err := openSearchStack(ctx, ws, stackOptions{metrics: collector, queries: queries, logger: logger})
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

	deps := mcp.Deps{
		Searcher: stack.engine,
		Answerer: pipeline,
		Docs:     stack.docs,
		Layout:   stack.layout,
		Logger:   logger,
	}
	if extractor != nil {
		deps.Extractor = extractor
	}
	server, err := mcp.NewServer(deps)
	if err != nil {
		return err
	}
	return server.Serve(ctx)
}

// serveMetrics starts the Prometheus endpoint and returns its shutdown func.
func serveMetrics(addr string, c *metrics.Collector, logger *slog.Logger) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		logger.Info("metrics_server_started", slog.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics_server_failed", slog.String("error", err.Error()))
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}
