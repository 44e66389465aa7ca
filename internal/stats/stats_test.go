package stats

import (
	"testing"
	"time"
)

func TestWindowSnapshotPercentiles(t *testing.T) {
	w := NewWindow(time.Hour)
	for _, ms := range []int64{100, 200, 300, 400, 500} {
		w.Record(time.Duration(ms) * time.Millisecond)
	}

	snap := w.Snapshot()
	if snap.Count != 5 {
		t.Fatalf("expected count=5, got %d", snap.Count)
	}
	if snap.MinMs != 100 || snap.MaxMs != 500 {
		t.Fatalf("expected min=100 max=500, got min=%d max=%d", snap.MinMs, snap.MaxMs)
	}
	if snap.AvgMs != 300 {
		t.Fatalf("expected avg=300, got %f", snap.AvgMs)
	}
	if snap.P50Ms != 300 {
		t.Fatalf("expected p50=300, got %f", snap.P50Ms)
	}
	if snap.P95Ms != 480 {
		t.Fatalf("expected p95=480, got %f", snap.P95Ms)
	}
	if snap.P99Ms != 496 {
		t.Fatalf("expected p99=496, got %f", snap.P99Ms)
	}
}

func TestWindowPrunesExpiredSamples(t *testing.T) {
	w := NewWindow(10 * time.Millisecond)
	w.Record(100 * time.Millisecond)
	time.Sleep(25 * time.Millisecond)

	if snap := w.Snapshot(); snap.Count != 0 {
		t.Fatalf("expected count=0 after prune, got %d", snap.Count)
	}

	w.Record(200 * time.Millisecond)
	snap := w.Snapshot()
	if snap.Count != 1 || snap.MinMs != 200 || snap.MaxMs != 200 {
		t.Fatalf("expected single 200ms sample, got %+v", snap)
	}
}

func TestWindowClampsNegativeDuration(t *testing.T) {
	w := NewWindow(time.Hour)
	w.Record(-5 * time.Millisecond)
	if snap := w.Snapshot(); snap.MinMs != 0 {
		t.Fatalf("expected clamped min=0, got %d", snap.MinMs)
	}
}

func TestRecorderStages(t *testing.T) {
	r := NewRecorder(time.Hour)
	r.Record(StageParse, 10*time.Millisecond)
	r.Record(StageParse, 30*time.Millisecond)
	r.Record(StagePackage, 5*time.Millisecond)

	snap := r.Snapshot()
	if len(snap) != 2 {
		t.Fatalf("expected 2 stages, got %d", len(snap))
	}
	if snap[StageParse].Count != 2 || snap[StageParse].AvgMs != 20 {
		t.Errorf("unexpected parse stats %+v", snap[StageParse])
	}
	if _, ok := snap[StageSegment]; ok {
		t.Error("expected unseen stage to be absent")
	}
}

func TestRecorderNil(t *testing.T) {
	var r *Recorder
	r.Record(StageParse, time.Second)
	if len(r.Snapshot()) != 0 {
		t.Error("expected empty snapshot from nil recorder")
	}
}
