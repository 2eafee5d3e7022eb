package preflight

import (
	"context"
	"fmt"
	"io"
	"os"
	"runtime"
	"runtime/debug"
	"strings"
	"sync"

	"github.com/Aman-CERP/pubrag/internal/config"
)

// CheckStatus represents the result of a preflight check.
type CheckStatus int

const (
	// StatusPass indicates the check passed successfully.
	StatusPass CheckStatus = iota
	// StatusWarn indicates a non-critical warning.
	StatusWarn
	// StatusFail indicates the check failed.
	StatusFail
)

// String returns the string representation of a CheckStatus.
func (s CheckStatus) String() string {
	switch s {
	case StatusPass:
		return "PASS"
	case StatusWarn:
		return "WARN"
	case StatusFail:
		return "FAIL"
	default:
		return "UNKNOWN"
	}
}

// MarshalText renders the status as PASS, WARN or FAIL in JSON output.
func (s CheckStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses PASS, WARN or FAIL.
func (s *CheckStatus) UnmarshalText(text []byte) error {
	switch string(text) {
	case "PASS":
		*s = StatusPass
	case "WARN":
		*s = StatusWarn
	case "FAIL":
		*s = StatusFail
	default:
		return fmt.Errorf("unknown check status %q", text)
	}
	return nil
}

// Group names a set of related checks.
type Group string

const (
	GroupEnv      Group = "env"
	GroupFiles    Group = "files"
	GroupGraph    Group = "graph"
	GroupSystem   Group = "system"
	GroupEmbedder Group = "embedder"
)

// Groups lists every group in run order.
var Groups = []Group{GroupEnv, GroupFiles, GroupGraph, GroupSystem, GroupEmbedder}

// ParseGroup accepts a group name, case-insensitively.
func ParseGroup(s string) (Group, error) {
	g := Group(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Groups {
		if g == known {
			return g, nil
		}
	}
	return "", fmt.Errorf("unknown check group %q (want env, files, graph, system or embedder)", s)
}

// CheckResult holds the result of a single preflight check.
type CheckResult struct {
	Name     string      `json:"name"`
	Group    Group       `json:"group"`
	Status   CheckStatus `json:"status"`
	Message  string      `json:"message"`
	Details  string      `json:"details,omitempty"`
	Required bool        `json:"required"`
}

// IsCritical returns true if this is a required check that failed.
func (r CheckResult) IsCritical() bool {
	return r.Required && r.Status == StatusFail
}

func pass(name string, required bool, msg string) CheckResult {
	return CheckResult{Name: name, Status: StatusPass, Message: msg, Required: required}
}

func warn(name string, msg string) CheckResult {
	return CheckResult{Name: name, Status: StatusWarn, Message: msg}
}

func fail(name string, required bool, msg string) CheckResult {
	return CheckResult{Name: name, Status: StatusFail, Message: msg, Required: required}
}

// Checker performs preflight validation checks against a workspace.
type Checker struct {
	root    string
	verbose bool
	output  io.Writer

	connect     GraphConnector
	probeOllama OllamaProbe

	goVersion string
	buildInfo func() (*debug.BuildInfo, bool)
	lookupEnv func(string) (string, bool)
	diskFree  func(path string) (uint64, error)

	settingsOnce sync.Once
	settings     *config.Settings
	settingsErr  error
}

// Option configures a Checker.
type Option func(*Checker)

// WithVerbose enables verbose output.
func WithVerbose(verbose bool) Option {
	return func(c *Checker) {
		c.verbose = verbose
	}
}

// WithOutput sets the output writer.
func WithOutput(w io.Writer) Option {
	return func(c *Checker) {
		c.output = w
	}
}

// WithRoot sets the workspace root the file checks resolve against.
func WithRoot(root string) Option {
	return func(c *Checker) {
		c.root = root
	}
}

// WithGraphConnector replaces the Neo4j connector used by the graph group.
func WithGraphConnector(fn GraphConnector) Option {
	return func(c *Checker) {
		c.connect = fn
	}
}

// WithOllamaProbe replaces the reachability probe used by the embedder group.
func WithOllamaProbe(fn OllamaProbe) Option {
	return func(c *Checker) {
		c.probeOllama = fn
	}
}

// New creates a new Checker with the given options.
func New(opts ...Option) *Checker {
	c := &Checker{
		root:        ".",
		output:      os.Stdout,
		connect:     ConnectNeo4j,
		probeOllama: ProbeOllama,
		goVersion:   runtime.Version(),
		buildInfo:   debug.ReadBuildInfo,
		lookupEnv:   os.LookupEnv,
		diskFree:    freeBytes,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RunAll runs every group in order and returns the results.
func (c *Checker) RunAll(ctx context.Context) []CheckResult {
	var results []CheckResult
	for _, g := range Groups {
		results = append(results, c.RunGroup(ctx, g)...)
	}
	return results
}

// RunGroup runs the checks of one group. Each check runs regardless of the
// outcome of the ones before it.
func (c *Checker) RunGroup(ctx context.Context, g Group) []CheckResult {
	var results []CheckResult
	switch g {
	case GroupEnv:
		results = c.runEnv()
	case GroupFiles:
		results = c.runFiles()
	case GroupGraph:
		results = c.runGraph(ctx)
	case GroupSystem:
		results = c.runSystem()
	case GroupEmbedder:
		results = c.runEmbedder(ctx)
	}
	for i := range results {
		results[i].Group = g
	}
	return results
}

// loadSettings loads config/config.yaml once per Checker.
func (c *Checker) loadSettings() (*config.Settings, error) {
	c.settingsOnce.Do(func() {
		c.settings, c.settingsErr = config.Load(c.root)
	})
	return c.settings, c.settingsErr
}

// effectiveConfig is the loaded config, or the defaults when it cannot load.
func (c *Checker) effectiveConfig() *config.Config {
	if s, err := c.loadSettings(); err == nil {
		return s.Config()
	}
	return config.NewConfig()
}

// HasCriticalFailures returns true if any required check failed.
func (c *Checker) HasCriticalFailures(results []CheckResult) bool {
	for _, r := range results {
		if r.IsCritical() {
			return true
		}
	}
	return false
}

// SummaryStatus returns a summary status string for the results.
func (c *Checker) SummaryStatus(results []CheckResult) string {
	hasWarnings := false
	hasCriticalFailure := false

	for _, r := range results {
		if r.IsCritical() {
			hasCriticalFailure = true
		}
		if r.Status == StatusWarn || (r.Status == StatusFail && !r.Required) {
			hasWarnings = true
		}
	}

	if hasCriticalFailure {
		return "failed"
	}
	if hasWarnings {
		return "ready_with_warnings"
	}
	return "ready"
}

// PrintResults prints check results to the configured output.
func (c *Checker) PrintResults(results []CheckResult) {
	_, _ = fmt.Fprintln(c.output, "pubrag validation")
	_, _ = fmt.Fprintln(c.output, "=================")

	var group Group
	passed := 0
	for _, r := range results {
		if r.Group != group {
			group = r.Group
			_, _ = fmt.Fprintf(c.output, "\n%s\n", strings.ToUpper(string(group)))
		}
		if r.Status == StatusPass {
			passed++
		}
		_, _ = fmt.Fprintf(c.output, "[%s] %s: %s\n", r.Status, r.Name, r.Message)
		if c.verbose && r.Details != "" {
			for _, line := range strings.Split(r.Details, "\n") {
				_, _ = fmt.Fprintf(c.output, "      %s\n", line)
			}
		}
	}

	_, _ = fmt.Fprintln(c.output)
	status := c.SummaryStatus(results)
	_, _ = fmt.Fprintf(c.output, "Status: %s (%d/%d checks passed)\n", strings.ToUpper(status), passed, len(results))

	var warnings, errors []string
	for _, r := range results {
		if r.IsCritical() {
			errors = append(errors, r.Name+": "+r.Message)
		} else if r.Status != StatusPass {
			warnings = append(warnings, r.Name+": "+r.Message)
		}
	}

	if len(errors) > 0 {
		_, _ = fmt.Fprintln(c.output)
		_, _ = fmt.Fprintf(c.output, "%d error(s):\n", len(errors))
		for _, e := range errors {
			_, _ = fmt.Fprintf(c.output, "  - %s\n", e)
		}
	}

	if len(warnings) > 0 {
		_, _ = fmt.Fprintln(c.output)
		_, _ = fmt.Fprintf(c.output, "%d warning(s):\n", len(warnings))
		for _, w := range warnings {
			_, _ = fmt.Fprintf(c.output, "  - %s\n", w)
		}
	}
}
