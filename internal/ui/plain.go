package ui

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"
)

// PlainRenderer writes one line per event, without ANSI codes.
type PlainRenderer struct {
	mu  sync.Mutex
	out io.Writer
}

// NewPlainRenderer creates a plain text renderer.
func NewPlainRenderer(cfg Config) *PlainRenderer {
	return &PlainRenderer{out: cfg.Output}
}

// Start implements Renderer.
func (r *PlainRenderer) Start(context.Context) error { return nil }

// UpdateProgress prints "[STAGE] current/total - message".
func (r *PlainRenderer) UpdateProgress(event ProgressEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	msg := event.Message
	if msg == "" {
		msg = event.Item
	}

	if event.Total > 0 {
		_, _ = fmt.Fprintf(r.out, "[%s] %d/%d - %s\n", event.Stage.Icon(), event.Current, event.Total, msg)
	} else if msg != "" {
		_, _ = fmt.Fprintf(r.out, "[%s] %s\n", event.Stage.Icon(), msg)
	}
}

// AddError implements Renderer.
func (r *PlainRenderer) AddError(event ErrorEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	prefix := "ERROR"
	if event.IsWarn {
		prefix = "WARN"
	}
	if event.Item != "" {
		_, _ = fmt.Fprintf(r.out, "%s: %s: %v\n", prefix, event.Item, event.Err)
	} else {
		_, _ = fmt.Fprintf(r.out, "%s: %v\n", prefix, event.Err)
	}
}

// Complete prints the summary and stage breakdown.
func (r *PlainRenderer) Complete(stats CompletionStats) {
	r.mu.Lock()
	defer r.mu.Unlock()

	const round = 100 * time.Millisecond

	_, _ = fmt.Fprintf(r.out, "Complete: %d publications indexed in %d batches (%s)",
		stats.Publications, stats.Batches, stats.Duration.Round(round))
	if stats.Skipped > 0 {
		_, _ = fmt.Fprintf(r.out, ", %d skipped", stats.Skipped)
	}
	if stats.Errors > 0 || stats.Warnings > 0 {
		_, _ = fmt.Fprintf(r.out, " (%d errors, %d warnings)", stats.Errors, stats.Warnings)
	}
	_, _ = fmt.Fprintln(r.out)

	if s := stats.Stages; s.Fetch > 0 || s.Embed > 0 {
		_, _ = fmt.Fprintln(r.out)
		_, _ = fmt.Fprintln(r.out, "Stage Breakdown:")
		_, _ = fmt.Fprintf(r.out, "  Fetch: %s (graph reads)\n", s.Fetch.Round(round))
		if s.Embed > 0 && stats.Publications > 0 {
			_, _ = fmt.Fprintf(r.out, "  Embed: %s (%.1f publications/sec)\n",
				s.Embed.Round(round), float64(stats.Publications)/s.Embed.Seconds())
		} else {
			_, _ = fmt.Fprintf(r.out, "  Embed: %s\n", s.Embed.Round(round))
		}
		_, _ = fmt.Fprintf(r.out, "  Index: %s (BM25 + vector + documents)\n", s.Index.Round(round))
		_, _ = fmt.Fprintf(r.out, "  Save:  %s\n", s.Save.Round(round))
	}

	if stats.Embedder.Backend != "" {
		_, _ = fmt.Fprintln(r.out)
		_, _ = fmt.Fprintf(r.out, "Backend: %s (%s, %d dims)\n",
			stats.Embedder.Backend, stats.Embedder.Model, stats.Embedder.Dimensions)
	}
}

// Stop implements Renderer.
func (r *PlainRenderer) Stop() error { return nil }

var _ Renderer = (*PlainRenderer)(nil)
