// Package ui renders indexing progress: a bubbletea TUI on interactive
// terminals and plain lines everywhere else.
package ui

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/mattn/go-isatty"
)

// Stage is a step of an indexing run.
type Stage int

const (
	StageFetch Stage = iota
	StageEmbed
	StageIndex
	StageSave
	StageComplete
)

// String returns the human-readable stage name.
func (s Stage) String() string {
	switch s {
	case StageFetch:
		return "Fetch"
	case StageEmbed:
		return "Embed"
	case StageIndex:
		return "Index"
	case StageSave:
		return "Save"
	case StageComplete:
		return "Complete"
	default:
		return "Unknown"
	}
}

// Icon returns the short tag used by plain output.
func (s Stage) Icon() string {
	switch s {
	case StageFetch:
		return "FETCH"
	case StageEmbed:
		return "EMBED"
	case StageIndex:
		return "INDEX"
	case StageSave:
		return "SAVE"
	case StageComplete:
		return "DONE"
	default:
		return "???"
	}
}

// ProgressEvent reports progress within a stage. Total is 0 when unknown.
type ProgressEvent struct {
	Stage   Stage
	Current int
	Total   int
	Item    string
	Message string
}

// ErrorEvent reports a problem with one publication or the whole run.
type ErrorEvent struct {
	Item   string
	Err    error
	IsWarn bool
}

// StageTimings accumulates time spent per stage.
type StageTimings struct {
	Fetch time.Duration
	Embed time.Duration
	Index time.Duration
	Save  time.Duration
}

// EmbedderInfo describes the embedder used for a run.
type EmbedderInfo struct {
	Backend    string
	Model      string
	Dimensions int
}

// CompletionStats summarizes a finished run.
type CompletionStats struct {
	Publications int
	Skipped      int
	Batches      int
	Duration     time.Duration
	Errors       int
	Warnings     int
	Stages       StageTimings
	Embedder     EmbedderInfo
}

// Renderer displays indexing progress.
type Renderer interface {
	Start(ctx context.Context) error
	UpdateProgress(event ProgressEvent)
	AddError(event ErrorEvent)
	Complete(stats CompletionStats)
	Stop() error
}

// Config configures renderer selection.
type Config struct {
	Output     io.Writer
	ForcePlain bool
	NoColor    bool
	// Title is shown in the TUI header, usually the persist directory.
	Title string
}

// ConfigOption modifies Config.
type ConfigOption func(*Config)

func WithForcePlain(force bool) ConfigOption { return func(c *Config) { c.ForcePlain = force } }
func WithNoColor(noColor bool) ConfigOption  { return func(c *Config) { c.NoColor = noColor } }
func WithTitle(title string) ConfigOption    { return func(c *Config) { c.Title = title } }

// NewConfig builds a Config for output.
func NewConfig(output io.Writer, opts ...ConfigOption) Config {
	cfg := Config{Output: output}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// NewRenderer returns the TUI for interactive terminals and the plain
// renderer for pipes, CI or --no-tui.
func NewRenderer(cfg Config) Renderer {
	if cfg.ForcePlain || !IsTTY(cfg.Output) || DetectCI() {
		return NewPlainRenderer(cfg)
	}
	tui, err := NewTUIRenderer(cfg)
	if err != nil {
		return NewPlainRenderer(cfg)
	}
	return tui
}

// IsTTY reports whether w is a terminal.
func IsTTY(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok || f == nil {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// DetectNoColor reports whether NO_COLOR is set.
func DetectNoColor() bool {
	_, ok := os.LookupEnv("NO_COLOR")
	return ok
}

// DetectCI reports whether a CI environment variable is set.
func DetectCI() bool {
	for _, v := range []string{"CI", "GITHUB_ACTIONS", "GITLAB_CI", "JENKINS_URL", "TRAVIS"} {
		if _, ok := os.LookupEnv(v); ok {
			return true
		}
	}
	return false
}

// NopRenderer discards everything.
type NopRenderer struct{}

func (NopRenderer) Start(context.Context) error   { return nil }
func (NopRenderer) UpdateProgress(ProgressEvent)  {}
func (NopRenderer) AddError(ErrorEvent)           {}
func (NopRenderer) Complete(CompletionStats)      {}
func (NopRenderer) Stop() error                   { return nil }

var _ Renderer = NopRenderer{}
