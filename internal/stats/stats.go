// Package stats keeps rolling latency windows for the deck-building stages.
package stats

import (
	"slices"
	"sync"
	"time"
)

// Stage names recorded by the pipeline and API handlers.
const (
	StageParse   = "parse"
	StageSegment = "segment"
	StagePackage = "package"
	StagePush    = "push"
)

type sample struct {
	at         time.Time
	durationMs int64
}

// Snapshot is a point-in-time aggregate of one stage's samples.
type Snapshot struct {
	Count int     `json:"count"`
	MinMs int64   `json:"min_ms"`
	MaxMs int64   `json:"max_ms"`
	AvgMs float64 `json:"avg_ms"`
	P50Ms float64 `json:"p50_ms"`
	P95Ms float64 `json:"p95_ms"`
	P99Ms float64 `json:"p99_ms"`
}

// Window tracks recent durations for a single stage.
type Window struct {
	mu      sync.Mutex
	samples []sample
	maxAge  time.Duration
}

func NewWindow(maxAge time.Duration) *Window {
	if maxAge <= 0 {
		maxAge = time.Hour
	}
	return &Window{samples: make([]sample, 0, 64), maxAge: maxAge}
}

// Record adds one duration. Negative durations count as zero.
func (w *Window) Record(d time.Duration) {
	ms := d.Milliseconds()
	if ms < 0 {
		ms = 0
	}
	now := time.Now()

	w.mu.Lock()
	defer w.mu.Unlock()
	w.pruneLocked(now)
	w.samples = append(w.samples, sample{at: now, durationMs: ms})
}

func (w *Window) Snapshot() Snapshot {
	now := time.Now()

	w.mu.Lock()
	defer w.mu.Unlock()
	w.pruneLocked(now)
	if len(w.samples) == 0 {
		return Snapshot{}
	}

	values := make([]int64, len(w.samples))
	var sum int64
	for i, s := range w.samples {
		values[i] = s.durationMs
		sum += s.durationMs
	}
	slices.Sort(values)

	return Snapshot{
		Count: len(values),
		MinMs: values[0],
		MaxMs: values[len(values)-1],
		AvgMs: float64(sum) / float64(len(values)),
		P50Ms: percentile(values, 50),
		P95Ms: percentile(values, 95),
		P99Ms: percentile(values, 99),
	}
}

func (w *Window) pruneLocked(now time.Time) {
	cutoff := now.Add(-w.maxAge)
	w.samples = slices.DeleteFunc(w.samples, func(s sample) bool {
		return s.at.Before(cutoff)
	})
}

// percentile interpolates linearly between the two nearest ranks.
func percentile(sorted []int64, pct float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if pct <= 0 {
		return float64(sorted[0])
	}
	if pct >= 100 {
		return float64(sorted[len(sorted)-1])
	}
	index := float64(len(sorted)-1) * pct / 100.0
	lower := int(index)
	if lower+1 >= len(sorted) {
		return float64(sorted[lower])
	}
	weight := index - float64(lower)
	lo, hi := float64(sorted[lower]), float64(sorted[lower+1])
	return lo + (hi-lo)*weight
}

// Recorder holds one window per stage.
type Recorder struct {
	mu      sync.Mutex
	windows map[string]*Window
	maxAge  time.Duration
}

func NewRecorder(maxAge time.Duration) *Recorder {
	return &Recorder{windows: make(map[string]*Window), maxAge: maxAge}
}

// Record adds a duration to the named stage. A nil Recorder is a no-op.
func (r *Recorder) Record(stage string, d time.Duration) {
	if r == nil {
		return
	}
	r.mu.Lock()
	w, ok := r.windows[stage]
	if !ok {
		w = NewWindow(r.maxAge)
		r.windows[stage] = w
	}
	r.mu.Unlock()
	w.Record(d)
}

// Since records the time elapsed since start.
func (r *Recorder) Since(stage string, start time.Time) {
	r.Record(stage, time.Since(start))
}

// Snapshot returns every stage seen so far.
func (r *Recorder) Snapshot() map[string]Snapshot {
	out := map[string]Snapshot{}
	if r == nil {
		return out
	}
	r.mu.Lock()
	windows := make(map[string]*Window, len(r.windows))
	for k, w := range r.windows {
		windows[k] = w
	}
	r.mu.Unlock()

	for k, w := range windows {
		out[k] = w.Snapshot()
	}
	return out
}
