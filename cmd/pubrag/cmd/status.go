package cmd

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/pubrag/internal/output"
	"github.com/Aman-CERP/pubrag/internal/preflight"
	"github.com/Aman-CERP/pubrag/internal/store"
	"github.com/Aman-CERP/pubrag/internal/telemetry"
)

// StatusOutput is the JSON form of 'pubrag status'.
type StatusOutput struct {
	PersistDir     string    `json:"persist_dir"`
	Model          string    `json:"model"`
	Dimensions     int       `json:"dimensions"`
	Publications   int       `json:"publications"`
	BM25Backend    string    `json:"bm25_backend"`
	RunID          string    `json:"run_id,omitempty"`
	UpdatedAt      time.Time `json:"updated_at"`
	ValidatedSince string    `json:"validated_since,omitempty"`

	Queries *telemetry.Snapshot `json:"queries,omitempty"`
}

type statusOptions struct {
	jsonOutput bool
	queries    bool
	days       int
}

func newStatusCmd() *cobra.Command {
	var opts statusOptions

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the state of the local index",
		Long: `Print the index manifest: embedding model, dimensions, publication count and last run.

With --queries, also summarise the local query log: top search terms,
queries that found nothing and latency.`,
		Example: `  pubrag status
  pubrag status --queries --days 30`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStatus(cmd, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.jsonOutput, "json", false, "Output as JSON")
	cmd.Flags().BoolVar(&opts.queries, "queries", false, "Include the query log summary")
	cmd.Flags().IntVar(&opts.days, "days", 7, "Days of query history to summarise")

	return cmd
}

func runStatus(cmd *cobra.Command, opts statusOptions) error {
	if opts.days < 1 {
		return fmt.Errorf("--days must be at least 1")
	}
	ws, err := loadWorkspace()
	if err != nil {
		return err
	}
	layout := ws.layout()
	m, err := readManifest(layout)
	if err != nil {
		return err
	}

	st := StatusOutput{
		PersistDir:   layout.Dir,
		Model:        m.Model,
		Dimensions:   m.Dimensions,
		Publications: m.Count,
		BM25Backend:  string(m.BM25Backend),
		RunID:        m.RunID,
		UpdatedAt:    m.UpdatedAt,
	}
	if age := preflight.MarkerAge(layout.Dir); age > 0 {
		st.ValidatedSince = formatDuration(age)
	}
	if opts.queries {
		if st.Queries, err = readQueryReport(layout, opts.days); err != nil {
			return err
		}
	}

	out := output.New(cmd.OutOrStdout())
	if opts.jsonOutput {
		return out.JSON(st)
	}
	out.Successf("Index at %s", st.PersistDir)
	out.Statusf("", "Publications: %d", st.Publications)
	out.Statusf("", "Model:        %s (%d dimensions)", st.Model, st.Dimensions)
	out.Statusf("", "BM25 backend: %s", st.BM25Backend)
	out.Statusf("", "Last run:     %s (%s ago)", st.UpdatedAt.Local().Format(time.DateTime), formatDuration(time.Since(st.UpdatedAt)))
	if st.ValidatedSince != "" {
		out.Statusf("", "Validated:    %s ago", st.ValidatedSince)
	} else {
		out.Warning("Not validated yet. Run 'pubrag validate'.")
	}
	if opts.queries {
		printQueryReport(out, st.Queries, opts.days)
	}
	return nil
}

// readQueryReport summarises the last days of the query log. It returns an
// empty snapshot when nothing was logged yet.
func readQueryReport(layout store.Layout, days int) (*telemetry.Snapshot, error) {
	path := layout.TelemetryPath()
	if _, err := os.Stat(path); err != nil {
		return &telemetry.Snapshot{}, nil
	}
	st, err := telemetry.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = st.Close() }()

	now := time.Now()
	from := now.AddDate(0, 0, 1-days).Format(time.DateOnly)
	return st.Report(from, now.Format(time.DateOnly), 10)
}

func printQueryReport(out *output.Writer, s *telemetry.Snapshot, days int) {
	out.Newline()
	if s == nil || s.TotalQueries == 0 {
		out.Statusf("🔎", "No queries logged in the last %d days", days)
		return
	}
	out.Statusf("🔎", "Queries (last %d days): %d", days, s.TotalQueries)

	modes := make([]string, 0, len(s.Modes))
	for _, m := range []string{"hybrid", "bm25_only"} {
		if n, ok := s.Modes[m]; ok {
			modes = append(modes, fmt.Sprintf("%s %d", m, n))
		}
	}
	if len(modes) > 0 {
		out.Statusf("", "Modes:        %s", strings.Join(modes, ", "))
	}

	if len(s.TopTerms) > 0 {
		terms := make([]string, len(s.TopTerms))
		for i, tc := range s.TopTerms {
			terms[i] = fmt.Sprintf("%s (%d)", tc.Term, tc.Count)
		}
		out.Statusf("", "Top terms:    %s", strings.Join(terms, ", "))
	}

	buckets := make([]string, 0, len(telemetry.LatencyBuckets))
	for _, b := range telemetry.LatencyBuckets {
		if n := s.Latency[b]; n > 0 {
			buckets = append(buckets, fmt.Sprintf("%s %d", b, n))
		}
	}
	if len(buckets) > 0 {
		out.Statusf("", "Latency:      %s", strings.Join(buckets, ", "))
	}

	if len(s.ZeroResultQueries) > 0 {
		shown := s.ZeroResultQueries[:min(5, len(s.ZeroResultQueries))]
		out.Warningf("%d recent queries found nothing, e.g. %q", s.ZeroResultCount, shown)
	}
}
