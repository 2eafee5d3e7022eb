package ui

import (
	"strconv"
	"sync"
	"time"
)

// etaSmoothing weights a new ETA estimate against the previous one.
const etaSmoothing = 0.3

// ProgressTracker holds the current stage, counts and throughput. It is safe
// for concurrent use.
type ProgressTracker struct {
	mu         sync.RWMutex
	stage      Stage
	current    int
	total      int
	item       string
	stageStart time.Time
	lastETA    time.Duration
	errors     int
	warnings   int
}

// ProgressStats is a snapshot of a ProgressTracker.
type ProgressStats struct {
	Stage    Stage
	Current  int
	Total    int
	Progress float64
	Rate     float64 // items per second in the current stage
	ETA      time.Duration
	Item     string
	Errors   int
	Warnings int
}

// NewProgressTracker starts at StageFetch.
func NewProgressTracker() *ProgressTracker {
	return &ProgressTracker{stage: StageFetch, stageStart: time.Now()}
}

// SetStage switches stage and resets counters.
func (p *ProgressTracker) SetStage(stage Stage, total int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stage = stage
	p.total = total
	p.current = 0
	p.item = ""
	p.stageStart = time.Now()
	p.lastETA = 0
}

// Update records progress within the stage.
func (p *ProgressTracker) Update(current, total int, item string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.current = current
	if total > 0 {
		p.total = total
	}
	if item != "" {
		p.item = item
	}
}

// AddError counts an error or warning.
func (p *ProgressTracker) AddError(event ErrorEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if event.IsWarn {
		p.warnings++
	} else {
		p.errors++
	}
}

// Stats returns a snapshot. It takes the write lock because ETA smoothing
// updates state.
func (p *ProgressTracker) Stats() ProgressStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	st := ProgressStats{
		Stage:    p.stage,
		Current:  p.current,
		Total:    p.total,
		Item:     p.item,
		Errors:   p.errors,
		Warnings: p.warnings,
	}
	if p.total > 0 {
		st.Progress = min(float64(p.current)/float64(p.total), 1)
	}
	if elapsed := time.Since(p.stageStart); elapsed > 0 {
		st.Rate = float64(p.current) / elapsed.Seconds()
	}
	st.ETA = p.eta(st.Progress)
	return st
}

func (p *ProgressTracker) eta(progress float64) time.Duration {
	if progress <= 0 || progress >= 1 {
		return 0
	}
	elapsed := time.Since(p.stageStart)
	raw := time.Duration(float64(elapsed)/progress) - elapsed
	if raw < 0 {
		return 0
	}
	if p.lastETA == 0 {
		p.lastETA = raw
		return raw
	}
	p.lastETA = time.Duration(etaSmoothing*float64(raw) + (1-etaSmoothing)*float64(p.lastETA))
	return p.lastETA
}

// formatDuration renders d as "42s", "3m 5s" or "1h 2m".
func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	switch {
	case d < time.Minute:
		return strconv.Itoa(int(d.Seconds())) + "s"
	case d < time.Hour:
		m, s := int(d.Minutes()), int(d.Seconds())%60
		if s == 0 {
			return strconv.Itoa(m) + "m"
		}
		return strconv.Itoa(m) + "m " + strconv.Itoa(s) + "s"
	default:
		return strconv.Itoa(int(d.Hours())) + "h " + strconv.Itoa(int(d.Minutes())%60) + "m"
	}
}
