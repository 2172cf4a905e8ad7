package db

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/banshee-data/fade.report/internal/fade"
	"github.com/banshee-data/fade.report/internal/timeutil"
)

func verdictEvent(source, label string, capturedAt, luminance float64, verdict fade.VerdictType, confidence, rate float64) fade.VerdictEvent {
	return fade.VerdictEvent{
		Source: fade.SourceID(source),
		Label:  label,
		Sample: fade.FrameSample{
			Luminance:   luminance,
			Variance:    0.01,
			EdgeDensity: 0.02,
			CapturedAt:  capturedAt,
		},
		Verdict: fade.FadeVerdict{Type: verdict, Confidence: confidence, AverageRate: rate},
	}
}

// runWorker starts the worker and returns a channel carrying Run's
// result.
func runWorker(ctx context.Context, w *TransitionWorker, events chan fade.VerdictEvent) chan error {
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx, events) }()
	return done
}

func waitForWorker(t *testing.T, done chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for worker to stop")
		return nil
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("Timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestTransitionWorkerRecordsEdges(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	w := NewTransitionWorker(db, "run-1", WorkerConfig{
		Clock: timeutil.NewMockClock(time.Unix(0, 0)),
	})

	events := make(chan fade.VerdictEvent, 16)
	events <- verdictEvent("src-a", "cam1", 1.0, 0.80, fade.VerdictNone, 0, 0)
	events <- verdictEvent("src-a", "cam1", 2.0, 0.60, fade.VerdictPotentialFadeOut, 0.80, -0.010)
	events <- verdictEvent("src-a", "cam1", 3.0, 0.40, fade.VerdictPotentialFadeOut, 0.85, -0.012)
	events <- verdictEvent("src-a", "cam1", 4.0, 0.05, fade.VerdictFadeOut, 0.95, -0.020)
	events <- verdictEvent("src-a", "cam1", 5.0, 0.05, fade.VerdictNone, 0, 0)
	close(events)

	if err := waitForWorker(t, runWorker(ctx, w, events)); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	rows, err := db.Transitions(ctx, "", 0, 0)
	if err != nil {
		t.Fatalf("Transitions failed: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("Expected 2 transition rows, got %d: %+v", len(rows), rows)
	}

	// Newest first: the escalation to fade_out, then the initial
	// potential_fade_out.
	fadeOut, potential := rows[0], rows[1]
	if fadeOut.Verdict != "fade_out" || potential.Verdict != "potential_fade_out" {
		t.Fatalf("Unexpected verdicts: %q, %q", fadeOut.Verdict, potential.Verdict)
	}
	if potential.StartedAt != 2.0 || potential.DetectedAt != 2.0 || potential.FrameCount != 1 {
		t.Errorf("Unexpected initial row: %+v", potential)
	}
	if fadeOut.StartedAt != 2.0 || fadeOut.DetectedAt != 4.0 || fadeOut.FrameCount != 3 {
		t.Errorf("Escalation should keep the episode start: %+v", fadeOut)
	}
	if fadeOut.RunID != "run-1" || fadeOut.Label != "cam1" {
		t.Errorf("Unexpected provenance: %+v", fadeOut)
	}
	if fadeOut.Confidence != 0.95 || fadeOut.AverageRate != -0.020 || fadeOut.Luminance != 0.05 {
		t.Errorf("Expected detecting-frame statistics: %+v", fadeOut)
	}

	sources, err := db.Sources(ctx)
	if err != nil {
		t.Fatalf("Sources failed: %v", err)
	}
	if len(sources) != 1 || sources[0].Label != "cam1" || sources[0].LastSeen != 5.0 {
		t.Errorf("Unexpected source rows: %+v", sources)
	}
}

func TestTransitionWorkerNewEpisodeAfterRecovery(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	w := NewTransitionWorker(db, "run-1", WorkerConfig{
		Clock: timeutil.NewMockClock(time.Unix(0, 0)),
	})

	events := make(chan fade.VerdictEvent, 16)
	events <- verdictEvent("src-a", "cam1", 2.0, 0.60, fade.VerdictPotentialFadeOut, 0.80, -0.010)
	events <- verdictEvent("src-a", "cam1", 3.0, 0.75, fade.VerdictNone, 0, 0)
	events <- verdictEvent("src-a", "cam1", 5.0, 0.55, fade.VerdictPotentialFadeOut, 0.82, -0.011)
	close(events)

	if err := waitForWorker(t, runWorker(ctx, w, events)); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	rows, err := db.Transitions(ctx, "src-a", 0, 0)
	if err != nil {
		t.Fatalf("Transitions failed: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("Expected a row per episode, got %d", len(rows))
	}
	// The second episode restarts its own frame count and start time.
	if rows[0].StartedAt != 5.0 || rows[0].FrameCount != 1 {
		t.Errorf("Expected a fresh episode after recovery: %+v", rows[0])
	}
}

func TestTransitionWorkerTickerFlush(t *testing.T) {
	db := setupTestDB(t)
	clock := timeutil.NewMockClock(time.Unix(0, 0))

	w := NewTransitionWorker(db, "run-1", WorkerConfig{
		FlushInterval: 5 * time.Second,
		Clock:         clock,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events := make(chan fade.VerdictEvent, 16)
	done := runWorker(ctx, w, events)

	events <- verdictEvent("src-a", "cam1", 2.0, 0.60, fade.VerdictPotentialFadeOut, 0.80, -0.010)
	waitFor(t, "event to be buffered", func() bool { return w.PendingCount() == 1 })

	clock.Advance(5 * time.Second)
	waitFor(t, "ticker flush to land", func() bool {
		rows, err := db.Transitions(context.Background(), "", 0, 0)
		return err == nil && len(rows) == 1
	})
	if w.PendingCount() != 0 {
		t.Errorf("Expected empty buffer after flush, got %d", w.PendingCount())
	}

	cancel()
	if err := waitForWorker(t, done); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

func TestTransitionWorkerFlushesOnCancel(t *testing.T) {
	db := setupTestDB(t)

	w := NewTransitionWorker(db, "run-1", WorkerConfig{
		Clock: timeutil.NewMockClock(time.Unix(0, 0)),
	})

	ctx, cancel := context.WithCancel(context.Background())
	events := make(chan fade.VerdictEvent, 16)
	done := runWorker(ctx, w, events)

	events <- verdictEvent("src-a", "cam1", 2.0, 0.60, fade.VerdictPotentialFadeOut, 0.80, -0.010)
	waitFor(t, "event to be buffered", func() bool { return w.PendingCount() == 1 })

	cancel()
	if err := waitForWorker(t, done); !errors.Is(err, context.Canceled) {
		t.Fatalf("Expected context.Canceled, got %v", err)
	}

	rows, err := db.Transitions(context.Background(), "", 0, 0)
	if err != nil {
		t.Fatalf("Transitions failed: %v", err)
	}
	if len(rows) != 1 {
		t.Errorf("Expected the shutdown flush to land the row, got %d rows", len(rows))
	}
	if w.PendingCount() != 0 {
		t.Errorf("Expected empty buffer after shutdown, got %d", w.PendingCount())
	}
}
