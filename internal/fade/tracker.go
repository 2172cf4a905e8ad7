package fade

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/fade.report/internal/monitoring"
)

// Tracker owns all per-source detection state and is the process-wide
// entry point of the core: the ingest path calls Observe once per frame
// per source, everything else reads snapshots.
//
// Locking is split into two independent domains. The stats store (plus
// black-run state and registration) forms domain one and is mutated only
// inside Observe; the last-verdict map is domain two, written at the end
// of Observe and read concurrently by the opacity driver and the HTTP
// surfaces.
type Tracker struct {
	store      *StatsStore
	black      *BlackFrameTracker
	classifier *Classifier
	stats      *AnalysisStats
	trace      TraceSink

	cfgMu sync.RWMutex
	cfg   AnalysisConfig

	// registration state: label to handle and back
	regMu  sync.RWMutex
	byID   map[SourceID]string
	byName map[string]SourceID

	// lock domain two: last verdict per source
	verdictMu sync.RWMutex
	verdicts  map[SourceID]FadeVerdict

	subMu       sync.Mutex
	subscribers map[string]chan VerdictEvent
}

// NewTracker creates a tracker with the given configuration. A nil-safe
// trace sink is installed; replace it with WithTraceSink.
func NewTracker(cfg AnalysisConfig) *Tracker {
	black := NewBlackFrameTracker()
	return &Tracker{
		store:       NewStatsStore(cfg.RollingWindow),
		black:       black,
		classifier:  NewClassifier(black),
		stats:       NewAnalysisStats(),
		trace:       NopTraceSink{},
		cfg:         cfg,
		byID:        make(map[SourceID]string),
		byName:      make(map[string]SourceID),
		verdicts:    make(map[SourceID]FadeVerdict),
		subscribers: make(map[string]chan VerdictEvent),
	}
}

// WithTraceSink installs the sink receiving one trace event per
// evaluation and returns the tracker for chaining.
func (t *Tracker) WithTraceSink(sink TraceSink) *Tracker {
	if sink == nil {
		sink = NopTraceSink{}
	}
	t.trace = sink
	return t
}

// Config returns the current analysis configuration.
func (t *Tracker) Config() AnalysisConfig {
	t.cfgMu.RLock()
	defer t.cfgMu.RUnlock()
	return t.cfg
}

// SetConfig swaps the analysis configuration. Takes effect on the next
// evaluation; history and black-run state are preserved.
func (t *Tracker) SetConfig(cfg AnalysisConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	t.cfgMu.Lock()
	t.cfg = cfg
	t.cfgMu.Unlock()
	monitoring.Logf("[Tracker] analysis config updated: fade_threshold=%g black_lum=%g black_var=%g black_duration=%gs",
		cfg.FadeThreshold, cfg.BlackLuminanceThreshold, cfg.BlackVarianceThreshold, cfg.RequiredBlackDuration)
	return nil
}

// Register mints a handle for the labeled source, or returns the
// existing handle if the label is already registered.
func (t *Tracker) Register(label string) SourceID {
	t.regMu.Lock()
	defer t.regMu.Unlock()
	if id, ok := t.byName[label]; ok {
		return id
	}
	id := SourceID(uuid.NewString())
	t.byName[label] = id
	t.byID[id] = label
	monitoring.Logf("[Tracker] registered source %q as %s", label, id)
	return id
}

// Lookup returns the handle for a registered label.
func (t *Tracker) Lookup(label string) (SourceID, bool) {
	t.regMu.RLock()
	defer t.regMu.RUnlock()
	id, ok := t.byName[label]
	return id, ok
}

// Label returns the label a handle was registered under; empty for
// unregistered handles.
func (t *Tracker) Label(id SourceID) string {
	t.regMu.RLock()
	defer t.regMu.RUnlock()
	return t.byID[id]
}

// Observe runs one frame through the core: append to the window,
// classify, publish. Returns the verdict for this frame. Samples with
// non-finite values are skipped: state is unchanged and the previous
// verdict (or none) is returned.
//
// One producer per source; concurrent Observe calls for different
// sources are safe.
func (t *Tracker) Observe(id SourceID, sample FrameSample) FadeVerdict {
	cfg := t.Config()

	start := time.Now()
	stamped, ok := t.store.Append(id, sample)
	if !ok {
		t.stats.AddDropped()
		prev, _ := t.LastVerdict(id)
		return prev
	}

	history := t.store.History(id)
	prev, _ := t.LastVerdict(id)

	verdict, traceEv := t.classifier.Evaluate(id, history, prev, cfg)

	t.verdictMu.Lock()
	t.verdicts[id] = verdict
	t.verdictMu.Unlock()

	t.stats.AddEvaluation(verdict.Type, time.Since(start))
	t.trace.Emit(traceEv)
	t.publish(VerdictEvent{Source: id, Label: t.Label(id), Sample: stamped, Verdict: verdict})

	return verdict
}

// LastVerdict returns the most recent verdict for the source. ok is
// false if the source has never been evaluated.
func (t *Tracker) LastVerdict(id SourceID) (FadeVerdict, bool) {
	t.verdictMu.RLock()
	defer t.verdictMu.RUnlock()
	v, ok := t.verdicts[id]
	if !ok {
		return FadeVerdict{Type: VerdictNone}, false
	}
	return v, true
}

// History returns the source's current window, oldest to newest.
func (t *Tracker) History(id SourceID) []FrameSample {
	return t.store.History(id)
}

// Tail returns the source's most recent n samples, oldest to newest.
func (t *Tracker) Tail(id SourceID, n int) []FrameSample {
	return t.store.Tail(id, n)
}

// FrameCount returns the next sequence index the source will be
// assigned.
func (t *Tracker) FrameCount(id SourceID) int {
	return t.store.FrameCount(id)
}

// BlackState returns the source's black-run snapshot.
func (t *Tracker) BlackState(id SourceID) BlackFrameState {
	return t.black.State(id)
}

// LuminanceSlope returns the least-squares luminance slope over the
// source's current window; a diagnostic for the monitor surfaces.
func (t *Tracker) LuminanceSlope(id SourceID) float64 {
	history := t.store.History(id)
	values := make([]float64, len(history))
	for i, s := range history {
		values[i] = s.Luminance
	}
	return Slope(values)
}

// Remove evicts every trace of the source: history, counters, black-run
// state, verdict, and registration. Unknown handles are a no-op.
func (t *Tracker) Remove(id SourceID) {
	t.store.Remove(id)
	t.black.Remove(id)

	t.verdictMu.Lock()
	delete(t.verdicts, id)
	t.verdictMu.Unlock()

	t.regMu.Lock()
	if label, ok := t.byID[id]; ok {
		delete(t.byName, label)
		delete(t.byID, id)
		monitoring.Logf("[Tracker] removed source %q (%s)", label, id)
	}
	t.regMu.Unlock()
}

// EvictIdle removes every source whose newest sample is older than
// maxAge seconds relative to now, returning the evicted handles. Sources
// that never stored a sample are left alone.
func (t *Tracker) EvictIdle(maxAge float64, now float64) []SourceID {
	var evicted []SourceID
	for _, id := range t.store.SourceIDs() {
		last := t.store.LastSeen(id)
		if last > 0 && now-last > maxAge {
			evicted = append(evicted, id)
		}
	}
	for _, id := range evicted {
		t.Remove(id)
	}
	return evicted
}

// Sources returns a snapshot of every source with stored state, sorted
// by label for stable display.
func (t *Tracker) Sources() []SourceInfo {
	ids := t.store.SourceIDs()
	infos := make([]SourceInfo, 0, len(ids))
	for _, id := range ids {
		verdict, _ := t.LastVerdict(id)
		infos = append(infos, SourceInfo{
			ID:           id,
			Label:        t.Label(id),
			FrameCount:   t.store.FrameCount(id),
			LastSampleAt: t.store.LastSeen(id),
			Verdict:      verdict,
		})
	}
	sort.Slice(infos, func(i, j int) bool {
		if infos[i].Label != infos[j].Label {
			return infos[i].Label < infos[j].Label
		}
		return infos[i].ID < infos[j].ID
	})
	return infos
}

// Stats returns the tracker's counters.
func (t *Tracker) Stats() *AnalysisStats {
	return t.stats
}

// Subscribe creates a channel receiving every verdict event. The channel
// ID identifies the subscription for Unsubscribe. Slow subscribers miss
// events rather than stalling the observe path.
func (t *Tracker) Subscribe() (string, chan VerdictEvent) {
	id := uuid.NewString()
	ch := make(chan VerdictEvent, 16)
	t.subMu.Lock()
	defer t.subMu.Unlock()
	t.subscribers[id] = ch
	return id, ch
}

// Unsubscribe removes a subscription and closes its channel.
func (t *Tracker) Unsubscribe(id string) {
	t.subMu.Lock()
	defer t.subMu.Unlock()
	if ch, ok := t.subscribers[id]; ok {
		close(ch)
		delete(t.subscribers, id)
	}
}

func (t *Tracker) publish(ev VerdictEvent) {
	t.subMu.Lock()
	defer t.subMu.Unlock()
	for _, ch := range t.subscribers {
		select {
		case ch <- ev:
		default:
			// drop rather than block the render-rate observe path
		}
	}
}
