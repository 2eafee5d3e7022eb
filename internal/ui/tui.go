package ui

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// TUIRenderer draws a bubbletea progress panel.
type TUIRenderer struct {
	mu      sync.Mutex
	cfg     Config
	program *tea.Program
	model   *indexingModel
	tracker *ProgressTracker
	cancel  context.CancelFunc
	started bool
	done    chan struct{}
}

var _ Renderer = (*TUIRenderer)(nil)

// NewTUIRenderer fails when the output is not a terminal.
func NewTUIRenderer(cfg Config) (*TUIRenderer, error) {
	if !IsTTY(cfg.Output) {
		return nil, fmt.Errorf("output is not a TTY")
	}

	tracker := NewProgressTracker()
	model := newIndexingModel(tracker, cfg.Title)
	if cfg.NoColor || DetectNoColor() {
		model.styles = NoColorStyles()
	}

	return &TUIRenderer{
		cfg:     cfg,
		tracker: tracker,
		model:   model,
		done:    make(chan struct{}),
	}, nil
}

// Start runs the program in the background.
func (r *TUIRenderer) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return nil
	}

	ctx, r.cancel = context.WithCancel(ctx)
	opts := []tea.ProgramOption{tea.WithContext(ctx)}
	if f, ok := r.cfg.Output.(*os.File); ok {
		opts = append(opts, tea.WithOutput(f))
	}

	r.program = tea.NewProgram(r.model, opts...)
	r.started = true

	go func() {
		defer close(r.done)
		_, _ = r.program.Run()
	}()
	return nil
}

// UpdateProgress implements Renderer.
func (r *TUIRenderer) UpdateProgress(event ProgressEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if event.Stage != r.tracker.Stats().Stage {
		r.tracker.SetStage(event.Stage, event.Total)
	}
	r.tracker.Update(event.Current, event.Total, event.Item)
	if r.program != nil {
		r.program.Send(progressMsg(event))
	}
}

// AddError implements Renderer.
func (r *TUIRenderer) AddError(event ErrorEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tracker.AddError(event)
	if r.program != nil {
		r.program.Send(errorMsg(event))
	}
}

// Complete implements Renderer.
func (r *TUIRenderer) Complete(stats CompletionStats) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tracker.SetStage(StageComplete, 0)
	if r.program != nil {
		r.program.Send(completeMsg(stats))
	}
}

// Stop quits the program, waiting at most two seconds.
func (r *TUIRenderer) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.program == nil {
		return nil
	}
	r.program.Quit()
	select {
	case <-r.done:
	case <-time.After(2 * time.Second):
	}
	if r.cancel != nil {
		r.cancel()
	}
	return nil
}

type (
	progressMsg ProgressEvent
	errorMsg    ErrorEvent
	completeMsg CompletionStats
	tickMsg     time.Time
)

type indexingModel struct {
	tracker  *ProgressTracker
	title    string
	width    int
	quitting bool
	complete bool
	stats    CompletionStats
	spinner  spinner.Model
	bar      progress.Model
	styles   Styles
}

func newIndexingModel(tracker *ProgressTracker, title string) *indexingModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color(ColorAccent))

	return &indexingModel{
		tracker: tracker,
		title:   title,
		width:   80,
		spinner: s,
		bar: progress.New(
			progress.WithSolidFill(ColorAccent),
			progress.WithWidth(50),
			progress.WithoutPercentage(),
		),
		styles: DefaultStyles(),
	}
}

func (m *indexingModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, tickCmd())
}

func tickCmd() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m *indexingModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if s := msg.String(); s == "ctrl+c" || s == "q" {
			m.quitting = true
			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.bar.Width = max(msg.Width-20, 20)
	case completeMsg:
		m.complete = true
		m.stats = CompletionStats(msg)
		return m, tea.Quit
	case tickMsg:
		return m, tickCmd()
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	// progressMsg and errorMsg are already applied to the tracker.
	return m, nil
}

func (m *indexingModel) View() string {
	if m.quitting {
		return "Cancelled.\n"
	}
	if m.complete {
		return m.renderComplete()
	}

	width := max(m.width-4, 40)
	st := m.tracker.Stats()

	lines := []string{m.renderStages(st.Stage), m.styles.Border.Render(strings.Repeat("─", width))}
	if st.Total == 0 {
		lines = append(lines, fmt.Sprintf("%s %s...", m.spinner.View(), st.Stage))
	} else {
		lines = append(lines,
			fmt.Sprintf("%s  %s", m.bar.ViewAs(st.Progress), m.styles.Active.Render(fmt.Sprintf("%3.0f%%", st.Progress*100))),
			m.styles.Label.Render(fmt.Sprintf("%d / %d publications", st.Current, st.Total)))
	}

	speed := fmt.Sprintf("Rate: %.1f/s", st.Rate)
	if st.ETA > 0 {
		speed += "  •  ETA: " + formatDuration(st.ETA)
	}
	lines = append(lines, m.styles.Label.Render(speed))
	if st.Item != "" {
		lines = append(lines, m.styles.Dim.Render(truncate(st.Item, width-2)))
	}

	title := "pubrag indexer"
	if m.title != "" {
		title += " • " + m.title
	}
	panel := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color(ColorDarkGray)).
		Padding(0, 1).
		Width(width)

	return lipgloss.JoinVertical(lipgloss.Left,
		m.styles.Header.Render(title),
		panel.Render(strings.Join(lines, "\n")),
	) + "\n" + m.renderStatusBar(st)
}

func (m *indexingModel) renderStages(current Stage) string {
	var parts []string
	for _, s := range []Stage{StageFetch, StageEmbed, StageIndex, StageSave} {
		switch {
		case s < current:
			parts = append(parts, m.styles.Success.Render("● "+s.String()))
		case s == current:
			parts = append(parts, m.styles.Active.Render(m.spinner.View()+" "+s.String()))
		default:
			parts = append(parts, m.styles.Dim.Render("○ "+s.String()))
		}
	}
	return strings.Join(parts, m.styles.Dim.Render(" → "))
}

func (m *indexingModel) renderStatusBar(st ProgressStats) string {
	var parts []string
	if st.Warnings > 0 {
		parts = append(parts, m.styles.Warning.Render(fmt.Sprintf("⚠ %d warnings", st.Warnings)))
	}
	if st.Errors > 0 {
		parts = append(parts, m.styles.Error.Render(fmt.Sprintf("✗ %d errors", st.Errors)))
	}
	parts = append(parts, m.styles.Dim.Render("q to quit"))
	return strings.Join(parts, m.styles.Dim.Render("  │  "))
}

func (m *indexingModel) renderComplete() string {
	lines := []string{
		m.styles.Success.Render("✓ Indexing Complete"),
		"",
		fmt.Sprintf("%s %s", m.styles.Label.Render("Publications:"), m.styles.Active.Render(fmt.Sprint(m.stats.Publications))),
		fmt.Sprintf("%s      %s", m.styles.Label.Render("Batches:"), m.styles.Active.Render(fmt.Sprint(m.stats.Batches))),
		fmt.Sprintf("%s     %s", m.styles.Label.Render("Duration:"), m.styles.Active.Render(formatDuration(m.stats.Duration))),
	}
	if m.stats.Skipped > 0 {
		lines = append(lines, m.styles.Warning.Render(fmt.Sprintf("⚠ %d skipped (missing id or title)", m.stats.Skipped)))
	}
	if m.stats.Errors > 0 {
		lines = append(lines, m.styles.Error.Render(fmt.Sprintf("✗ %d errors", m.stats.Errors)))
	}

	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color(ColorGreen)).
		Padding(1, 2).
		Width(max(m.width-4, 40)).
		Render(strings.Join(lines, "\n")) + "\n"
}

// truncate shortens s to maxLen runes with a leading ellipsis.
func truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return "..."
	}
	return "..." + string(r[len(r)-maxLen+3:])
}
