package fade

import "sync"

// BlackFrameTracker maintains the per-source black-run state machine.
// States are NotBlack and Black; transitions happen only on new-frame
// arrival:
//
//	NotBlack --(black frame)--> Black        start time = frame CapturedAt
//	Black    --(black frame)--> Black        run count += 1
//	any      --(non-black)----> NotBlack     run count = 0
//
// Duration is measured in sample time (CapturedAt), not wall clock, so
// replay behaves identically to live ingest.
type BlackFrameTracker struct {
	mu     sync.Mutex
	states map[SourceID]*BlackFrameState
}

// NewBlackFrameTracker creates an empty tracker.
func NewBlackFrameTracker() *BlackFrameTracker {
	return &BlackFrameTracker{states: make(map[SourceID]*BlackFrameState)}
}

// Update advances the source's state machine with a new frame.
func (b *BlackFrameTracker) Update(id SourceID, s FrameSample, cfg AnalysisConfig) {
	b.mu.Lock()
	defer b.mu.Unlock()

	st, ok := b.states[id]
	if !ok {
		st = &BlackFrameState{}
		b.states[id] = st
	}

	if !isBlackFrame(s, cfg) {
		st.IsBlack = false
		st.ConsecutiveBlackFrames = 0
		return
	}

	if !st.IsBlack {
		st.IsBlack = true
		st.BlackFrameStartTime = s.CapturedAt
		st.ConsecutiveBlackFrames = 1
		return
	}
	st.ConsecutiveBlackFrames++
}

// HasSustainedBlack reports whether the source is in a black run that has
// lasted at least cfg.RequiredBlackDuration seconds up to the latest
// sample. This is the authoritative fade-out signal: the classifier
// reports fade-out with confidence 1.0 whenever it is true.
func (b *BlackFrameTracker) HasSustainedBlack(id SourceID, latest FrameSample, cfg AnalysisConfig) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	st, ok := b.states[id]
	if !ok || !st.IsBlack {
		return false
	}
	return latest.CapturedAt-st.BlackFrameStartTime >= cfg.RequiredBlackDuration
}

// State returns a copy of the source's black-run state. Unknown sources
// report the zero state.
func (b *BlackFrameTracker) State(id SourceID) BlackFrameState {
	b.mu.Lock()
	defer b.mu.Unlock()
	if st, ok := b.states[id]; ok {
		return *st
	}
	return BlackFrameState{}
}

// Remove discards the source's state. Unknown sources are a no-op.
func (b *BlackFrameTracker) Remove(id SourceID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.states, id)
}
