package ui

import (
	"bytes"
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStage_StringAndIcon(t *testing.T) {
	tests := []struct {
		stage Stage
		name  string
		icon  string
	}{
		{StageFetch, "Fetch", "FETCH"},
		{StageEmbed, "Embed", "EMBED"},
		{StageIndex, "Index", "INDEX"},
		{StageSave, "Save", "SAVE"},
		{StageComplete, "Complete", "DONE"},
		{Stage(99), "Unknown", "???"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.name, tt.stage.String())
		assert.Equal(t, tt.icon, tt.stage.Icon())
	}
}

func TestNewRenderer_PlainForNonTTY(t *testing.T) {
	r := NewRenderer(NewConfig(&bytes.Buffer{}))
	assert.IsType(t, &PlainRenderer{}, r)

	r = NewRenderer(NewConfig(os.Stdout, WithForcePlain(true)))
	assert.IsType(t, &PlainRenderer{}, r)
}

func TestNewTUIRenderer_RejectsNonTTY(t *testing.T) {
	_, err := NewTUIRenderer(NewConfig(&bytes.Buffer{}))
	assert.Error(t, err)
}

func TestDetectCI(t *testing.T) {
	t.Setenv("CI", "true")
	assert.True(t, DetectCI())
}

func TestPlainRenderer_Progress(t *testing.T) {
	buf := &bytes.Buffer{}
	r := NewPlainRenderer(NewConfig(buf))
	require.NoError(t, r.Start(context.Background()))

	r.UpdateProgress(ProgressEvent{Stage: StageEmbed, Current: 32, Total: 100, Item: "pub-42"})
	r.UpdateProgress(ProgressEvent{Stage: StageSave, Message: "writing vectors"})
	r.UpdateProgress(ProgressEvent{Stage: StageFetch})

	assert.Equal(t, "[EMBED] 32/100 - pub-42\n[SAVE] writing vectors\n", buf.String())
	assert.NotContains(t, buf.String(), "\x1b[")
	assert.NoError(t, r.Stop())
}

func TestPlainRenderer_Errors(t *testing.T) {
	buf := &bytes.Buffer{}
	r := NewPlainRenderer(NewConfig(buf))

	r.AddError(ErrorEvent{Item: "pub-1", Err: errors.New("missing title"), IsWarn: true})
	r.AddError(ErrorEvent{Err: errors.New("graph down")})

	assert.Equal(t, "WARN: pub-1: missing title\nERROR: graph down\n", buf.String())
}

func TestPlainRenderer_Complete(t *testing.T) {
	buf := &bytes.Buffer{}
	r := NewPlainRenderer(NewConfig(buf))

	r.Complete(CompletionStats{
		Publications: 120,
		Skipped:      3,
		Batches:      4,
		Duration:     2 * time.Second,
		Stages:       StageTimings{Fetch: time.Second, Embed: 2 * time.Second},
		Embedder:     EmbedderInfo{Backend: "static", Model: "static-256", Dimensions: 256},
	})

	out := buf.String()
	assert.True(t, strings.HasPrefix(out, "Complete: 120 publications indexed in 4 batches (2s), 3 skipped\n"))
	assert.Contains(t, out, "Embed: 2s (60.0 publications/sec)")
	assert.Contains(t, out, "Backend: static (static-256, 256 dims)")
}

func TestProgressTracker(t *testing.T) {
	p := NewProgressTracker()
	assert.Equal(t, StageFetch, p.Stats().Stage)

	p.SetStage(StageEmbed, 10)
	p.Update(5, 0, "pub-5")
	p.AddError(ErrorEvent{IsWarn: true})
	p.AddError(ErrorEvent{})

	st := p.Stats()
	assert.Equal(t, StageEmbed, st.Stage)
	assert.InDelta(t, 0.5, st.Progress, 1e-9)
	assert.Equal(t, "pub-5", st.Item)
	assert.Equal(t, 1, st.Errors)
	assert.Equal(t, 1, st.Warnings)

	p.Update(20, 0, "")
	assert.InDelta(t, 1.0, p.Stats().Progress, 1e-9)
	assert.Zero(t, p.Stats().ETA)
}

func TestFormatDuration(t *testing.T) {
	tests := map[time.Duration]string{
		42 * time.Second:               "42s",
		3 * time.Minute:                "3m",
		3*time.Minute + 5*time.Second:  "3m 5s",
		time.Hour + 2*time.Minute:      "1h 2m",
	}
	for d, want := range tests {
		assert.Equal(t, want, formatDuration(d))
	}
}

func TestIndexingModel_ViewStages(t *testing.T) {
	tracker := NewProgressTracker()
	m := newIndexingModel(tracker, "data/vector_store")
	m.styles = NoColorStyles()

	tracker.SetStage(StageIndex, 10)
	tracker.Update(4, 10, "pub-4")

	view := m.View()
	assert.Contains(t, view, "● Fetch")
	assert.Contains(t, view, "● Embed")
	assert.Contains(t, view, "○ Save")
	assert.Contains(t, view, "4 / 10 publications")
	assert.Contains(t, view, "pubrag indexer • data/vector_store")

	_, cmd := m.Update(completeMsg(CompletionStats{Publications: 10, Batches: 1}))
	assert.NotNil(t, cmd)
	assert.Contains(t, m.View(), "Indexing Complete")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "...6789", truncate("0123456789", 7))
	assert.Equal(t, "...", truncate("0123456789", 2))
}

func TestNopRenderer(t *testing.T) {
	var r Renderer = NopRenderer{}
	assert.NoError(t, r.Start(context.Background()))
	r.UpdateProgress(ProgressEvent{})
	assert.NoError(t, r.Stop())
}
