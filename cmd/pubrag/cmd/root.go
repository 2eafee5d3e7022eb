// Package cmd provides the CLI commands for pubrag.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/pubrag/internal/config"
	perrors "github.com/Aman-CERP/pubrag/internal/errors"
	"github.com/Aman-CERP/pubrag/internal/logging"
	"github.com/Aman-CERP/pubrag/internal/profiling"
	"github.com/Aman-CERP/pubrag/pkg/version"
)

// Profiling flags
var (
	profileCPU   string
	profileMem   string
	profileTrace string
	profile      *profiling.Session
)

// Global flags
var (
	debugMode      bool
	rootDir        string
	loggingCleanup func()
)

// NewRootCmd creates the root command for the pubrag CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pubrag",
		Short: "Hybrid retrieval and RAG over a publication knowledge graph",
		Long: `pubrag indexes the Publication nodes of a Neo4j knowledge graph into a
local vector store and BM25 index, then answers questions with hybrid search,
subgraph extraction and retrieval-augmented generation.

Start with 'pubrag init', fill in .env, then run 'pubrag validate' and
'pubrag index'.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.SetVersionTemplate("pubrag version {{.Version}}\n")

	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging (also mirrored to stderr)")
	cmd.PersistentFlags().StringVar(&rootDir, "root", "", "Workspace root (default: nearest directory with config/config.yaml or .env)")
	cmd.PersistentFlags().StringVar(&profileCPU, "profile-cpu", "", "Write CPU profile to file")
	cmd.PersistentFlags().StringVar(&profileMem, "profile-mem", "", "Write memory profile to file")
	cmd.PersistentFlags().StringVar(&profileTrace, "profile-trace", "", "Write execution trace to file")

	cmd.PersistentPreRunE = startProfilingAndLogging
	cmd.PersistentPostRunE = stopProfilingAndLogging

	cmd.AddCommand(newIndexCmd())
	cmd.AddCommand(newValidateCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newSubgraphCmd())
	cmd.AddCommand(newAskCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newInitCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// startProfilingAndLogging installs the file logger and starts profiling
// when the matching flags are set.
func startProfilingAndLogging(_ *cobra.Command, _ []string) error {
	if loggingCleanup != nil {
		loggingCleanup()
		loggingCleanup = nil
	}
	logger, cleanup, err := logging.Setup(loggingConfig(debugMode))
	if err != nil {
		if debugMode {
			return fmt.Errorf("failed to setup debug logging: %w", err)
		}
		// Logging is best effort outside --debug.
		fmt.Fprintf(os.Stderr, "warning: logging disabled: %v\n", err)
	} else {
		loggingCleanup = cleanup
		slog.SetDefault(logger)
		if debugMode {
			slog.Info("debug_logging_enabled",
				slog.String("log_file", logging.DefaultLogPath()),
				slog.String("version", version.Short()))
		}
	}

	opts := profiling.Options{CPU: profileCPU, Heap: profileMem, Trace: profileTrace}
	if opts.Enabled() && profile == nil {
		profile, err = profiling.Start(opts, slog.Default())
		if err != nil {
			return err
		}
	}
	return nil
}

// stopProfilingAndLogging flushes profiles and closes the log file.
func stopProfilingAndLogging(_ *cobra.Command, _ []string) error {
	if profile != nil {
		err := profile.Stop()
		profile = nil
		if err != nil {
			return err
		}
	}
	if loggingCleanup != nil {
		loggingCleanup()
		loggingCleanup = nil
	}
	return nil
}

// loggingConfig applies the logging section of config.yaml, when one can be
// read, over the default or debug config.
func loggingConfig(debug bool) logging.Config {
	cfg := logging.DefaultConfig()
	if debug {
		cfg = logging.DebugConfig()
	}

	root, err := workspaceRoot()
	if err != nil {
		return cfg
	}
	settings, err := config.Load(root)
	if err != nil {
		return cfg
	}
	lc := settings.Config().Logging
	if lc.Level != "" && !debug {
		cfg.Level = lc.Level
	}
	if lc.File != "" {
		cfg.FilePath = lc.File
		if !filepath.IsAbs(cfg.FilePath) {
			cfg.FilePath = filepath.Join(root, cfg.FilePath)
		}
	}
	return cfg
}

// Execute runs the root command. SIGINT and SIGTERM cancel its context.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := NewRootCmd()
	// Post-run hooks are skipped when a command fails.
	defer func() { _ = stopProfilingAndLogging(cmd, nil) }()
	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(cmd.ErrOrStderr(), perrors.FormatForCLI(err))
		return err
	}
	return nil
}
