package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/pubrag/internal/config"
	"github.com/Aman-CERP/pubrag/internal/preflight"
)

// Check backends. Tests replace them.
var (
	graphConnector preflight.GraphConnector = preflight.ConnectNeo4j
	ollamaProbe    preflight.OllamaProbe    = preflight.ProbeOllama
)

func newValidateCmd() *cobra.Command {
	var (
		verbose    bool
		jsonOutput bool
		groups     []string
	)

	cmd := &cobra.Command{
		Use:     "validate",
		Aliases: []string{"doctor"},
		Short:   "Check the environment, workspace files and graph database",
		Long: `Run the validation suite before indexing.

Groups:
  env       Go runtime, build info and linked dependencies
  files     .env, NEO4J_PASSWORD, config/config.yaml and the workspace directories
  graph     Neo4j connection, version, Publication nodes and their properties,
            relationships, Author nodes, constraints and indexes
  system    write permissions and free disk space on the persist directory
  embedder  Ollama reachability (warning only)

Every check runs even when an earlier one fails. Failed required checks make
the command exit non-zero; warnings do not.`,
		Example: `  # Run every check
  pubrag validate

  # Only the graph checks, with details
  pubrag validate --group graph --verbose

  # JSON output for scripting
  pubrag validate --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runValidate(cmd.Context(), cmd, verbose, jsonOutput, groups)
		},
	}

	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Show check details")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	cmd.Flags().StringSliceVar(&groups, "group", nil, "Run only these groups: env, files, graph, system, embedder")

	return cmd
}

func runValidate(ctx context.Context, cmd *cobra.Command, verbose, jsonOutput bool, groupNames []string) error {
	selected, err := parseGroups(groupNames)
	if err != nil {
		return err
	}

	root, err := workspaceRoot()
	if err != nil {
		return err
	}
	// The process env is what the graph connector sees, so .env goes first.
	// A broken .env is reported by the files group rather than here.
	if _, err := config.LoadDotEnv(root); err != nil {
		slog.Warn("dotenv_load_failed", slog.String("error", err.Error()))
	}

	checker := preflight.New(
		preflight.WithVerbose(verbose),
		preflight.WithOutput(cmd.OutOrStdout()),
		preflight.WithRoot(root),
		preflight.WithGraphConnector(graphConnector),
		preflight.WithOllamaProbe(ollamaProbe),
	)

	var results []preflight.CheckResult
	for _, g := range selected {
		results = append(results, checker.RunGroup(ctx, g)...)
	}

	markerDir := persistDirFor(root)
	lastPassed := preflight.MarkerAge(markerDir)
	critical := checker.HasCriticalFailures(results)
	if !critical && preflight.CoversMarker(selected) {
		if err := preflight.MarkPassed(markerDir, selected); err != nil {
			slog.Warn("validation_marker_failed", slog.String("error", err.Error()))
		}
	}

	if jsonOutput {
		if err := writeValidationJSON(cmd, checker, results); err != nil {
			return err
		}
	} else {
		checker.PrintResults(results)
		if lastPassed > 0 {
			fmt.Fprintf(cmd.OutOrStdout(), "\nLast successful check: %s ago\n", formatDuration(lastPassed))
		}
	}

	if critical {
		return &validationError{message: "validation failed"}
	}
	return nil
}

func parseGroups(names []string) ([]preflight.Group, error) {
	if len(names) == 0 {
		return preflight.Groups, nil
	}
	groups := make([]preflight.Group, 0, len(names))
	for _, n := range names {
		g, err := preflight.ParseGroup(n)
		if err != nil {
			return nil, err
		}
		groups = append(groups, g)
	}
	return groups, nil
}

// persistDirFor resolves the persist dir from config when it loads, or from
// the defaults.
func persistDirFor(root string) string {
	if s, err := config.Load(root); err == nil {
		return s.Config().ResolvePersistDir(root)
	}
	return config.NewConfig().ResolvePersistDir(root)
}

// validationError is returned when a required check failed.
type validationError struct {
	message string
}

func (e *validationError) Error() string {
	return e.message
}

// JSONOutput is the structure for JSON output.
type JSONOutput struct {
	Status   string                  `json:"status"`
	Checks   []preflight.CheckResult `json:"checks"`
	Warnings []string                `json:"warnings,omitempty"`
	Errors   []string                `json:"errors,omitempty"`
}

func writeValidationJSON(cmd *cobra.Command, checker *preflight.Checker, results []preflight.CheckResult) error {
	out := JSONOutput{
		Status: checker.SummaryStatus(results),
		Checks: results,
	}
	for _, r := range results {
		switch {
		case r.IsCritical():
			out.Errors = append(out.Errors, r.Name+": "+r.Message)
		case r.Status != preflight.StatusPass:
			out.Warnings = append(out.Warnings, r.Name+": "+r.Message)
		}
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

// formatDuration renders d with the largest sensible unit.
func formatDuration(d time.Duration) string {
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd", int(d.Hours()/24))
	}
}
