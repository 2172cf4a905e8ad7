package db

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/banshee-data/fade.report/internal/fade"
	"github.com/banshee-data/fade.report/internal/timeutil"
)

// sourceSeen carries the latest registration data for a source between
// flushes.
type sourceSeen struct {
	label    string
	lastSeen float64
}

// episode tracks a contiguous run of non-none verdicts on one source.
type episode struct {
	lastType fade.VerdictType
	startAt  float64
	frames   int
}

// WorkerConfig tunes the transition worker. Zero values select the
// defaults.
type WorkerConfig struct {
	// FlushInterval is how often buffered rows are written. Defaults
	// to 5 seconds.
	FlushInterval time.Duration

	// Clock supplies the flush ticker. Defaults to the system clock.
	Clock timeutil.Clock
}

// TransitionWorker turns the tracker's per-frame verdict events into
// persisted transition rows. Recording is edge triggered: a row is
// buffered each time a source's verdict type changes to a non-none
// type, and the episode closes when the verdict returns to none. Rows
// and source sightings are flushed in batches on a ticker and once more
// when the event stream ends.
type TransitionWorker struct {
	db       *DB
	runID    string
	clock    timeutil.Clock
	interval time.Duration

	mu       sync.Mutex
	episodes map[fade.SourceID]*episode
	touched  map[fade.SourceID]sourceSeen
	pending  []Transition
}

// NewTransitionWorker builds a worker recording under the given run id.
func NewTransitionWorker(database *DB, runID string, config WorkerConfig) *TransitionWorker {
	if config.FlushInterval <= 0 {
		config.FlushInterval = 5 * time.Second
	}
	if config.Clock == nil {
		config.Clock = timeutil.RealClock{}
	}
	return &TransitionWorker{
		db:       database,
		runID:    runID,
		clock:    config.Clock,
		interval: config.FlushInterval,
		episodes: make(map[fade.SourceID]*episode),
		touched:  make(map[fade.SourceID]sourceSeen),
	}
}

// Run consumes verdict events until the context is cancelled or the
// channel closes, flushing buffered rows on each ticker fire and once
// more before returning.
func (w *TransitionWorker) Run(ctx context.Context, events <-chan fade.VerdictEvent) error {
	ticker := w.clock.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.finalFlush()
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				w.finalFlush()
				return nil
			}
			w.handleEvent(ev)
		case <-ticker.C():
			if err := w.Flush(ctx); err != nil {
				log.Printf("Transition worker flush error: %v", err)
			}
		}
	}
}

// handleEvent updates episode state for one event and buffers a row when
// the verdict type changes to a non-none type.
func (w *TransitionWorker) handleEvent(ev fade.VerdictEvent) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.touched[ev.Source] = sourceSeen{label: ev.Label, lastSeen: ev.Sample.CapturedAt}

	cur := ev.Verdict.Type
	ep := w.episodes[ev.Source]

	if cur == fade.VerdictNone {
		delete(w.episodes, ev.Source)
		return
	}

	if ep == nil {
		ep = &episode{startAt: ev.Sample.CapturedAt}
		w.episodes[ev.Source] = ep
	}
	ep.frames++

	if cur != ep.lastType {
		w.pending = append(w.pending, Transition{
			RunID:       w.runID,
			SourceID:    string(ev.Source),
			Label:       ev.Label,
			Verdict:     string(cur),
			Confidence:  ev.Verdict.Confidence,
			AverageRate: ev.Verdict.AverageRate,
			Luminance:   ev.Sample.Luminance,
			Variance:    ev.Sample.Variance,
			EdgeDensity: ev.Sample.EdgeDensity,
			StartedAt:   ep.startAt,
			DetectedAt:  ev.Sample.CapturedAt,
			FrameCount:  ep.frames,
		})
		ep.lastType = cur
	}
}

// Flush writes all buffered source sightings and transition rows. Rows
// that fail to insert are put back so the next flush retries them.
func (w *TransitionWorker) Flush(ctx context.Context) error {
	w.mu.Lock()
	pending := w.pending
	w.pending = nil
	touched := w.touched
	w.touched = make(map[fade.SourceID]sourceSeen)
	w.mu.Unlock()

	var firstErr error
	for id, seen := range touched {
		if err := w.db.UpsertSource(ctx, string(id), seen.label, seen.lastSeen); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	if err := w.db.RecordTransitions(ctx, pending); err != nil {
		w.mu.Lock()
		w.pending = append(pending, w.pending...)
		w.mu.Unlock()
		if firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// finalFlush drains the buffers with a fresh context so a shutdown
// flush still succeeds after the run context is cancelled.
func (w *TransitionWorker) finalFlush() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := w.Flush(ctx); err != nil {
		log.Printf("Transition worker final flush error: %v", err)
	}
}

// PendingCount reports how many transition rows are buffered.
func (w *TransitionWorker) PendingCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.pending)
}
