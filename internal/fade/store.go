package fade

import "sync"

// StatsStore holds the rolling frame-statistics window and frame counter
// for every source. It is lock domain one of the core: a single RWMutex
// guards history and counters together so a history snapshot and its
// frame count can never disagree.
//
// Writes for a given source come from exactly one producer (the ingest
// path for that source); reads may come from any goroutine.
type StatsStore struct {
	mu      sync.RWMutex
	window  int
	sources map[SourceID]*sourceHistory
}

type sourceHistory struct {
	ring      *sampleRing
	nextSeq   int
	lastSeen  float64 // CapturedAt of the newest appended sample
	dropCount int64   // non-finite samples rejected
}

// NewStatsStore creates a store whose per-source history holds at most
// window samples.
func NewStatsStore(window int) *StatsStore {
	if window < 1 {
		window = DefaultAnalysisConfig().RollingWindow
	}
	return &StatsStore{
		window:  window,
		sources: make(map[SourceID]*sourceHistory),
	}
}

// Append stamps the sample with the source's next sequence index and
// stores it, evicting the oldest sample once the window is full. Samples
// with non-finite values are rejected: the frame is treated as skipped,
// the counter does not advance, and ok is false. An unknown source is
// created on first append.
func (st *StatsStore) Append(id SourceID, s FrameSample) (FrameSample, bool) {
	if !s.Finite() {
		st.mu.Lock()
		h := st.historyLocked(id)
		h.dropCount++
		st.mu.Unlock()
		return FrameSample{}, false
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	h := st.historyLocked(id)
	s.SequenceIndex = h.nextSeq
	h.nextSeq++
	h.lastSeen = s.CapturedAt
	h.ring.add(s)
	return s, true
}

// History returns a consistent oldest-to-newest snapshot of the source's
// window. An absent source yields an empty slice, never an error.
func (st *StatsStore) History(id SourceID) []FrameSample {
	st.mu.RLock()
	defer st.mu.RUnlock()
	h, ok := st.sources[id]
	if !ok {
		return nil
	}
	return h.ring.snapshot()
}

// Tail returns the most recent n samples, oldest to newest.
func (st *StatsStore) Tail(id SourceID, n int) []FrameSample {
	st.mu.RLock()
	defer st.mu.RUnlock()
	h, ok := st.sources[id]
	if !ok {
		return nil
	}
	return h.ring.tail(n)
}

// Latest returns the newest sample for the source.
func (st *StatsStore) Latest(id SourceID) (FrameSample, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	h, ok := st.sources[id]
	if !ok {
		return FrameSample{}, false
	}
	return h.ring.previous(1)
}

// FrameCount returns the next sequence index to assign for the source:
// zero for an absent source, incremented by exactly one per successful
// append.
func (st *StatsStore) FrameCount(id SourceID) int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	h, ok := st.sources[id]
	if !ok {
		return 0
	}
	return h.nextSeq
}

// LastSeen returns the CapturedAt of the source's newest sample, or zero
// if none has been stored.
func (st *StatsStore) LastSeen(id SourceID) float64 {
	st.mu.RLock()
	defer st.mu.RUnlock()
	h, ok := st.sources[id]
	if !ok {
		return 0
	}
	return h.lastSeen
}

// Dropped returns how many non-finite samples the source has rejected.
func (st *StatsStore) Dropped(id SourceID) int64 {
	st.mu.RLock()
	defer st.mu.RUnlock()
	h, ok := st.sources[id]
	if !ok {
		return 0
	}
	return h.dropCount
}

// Remove discards all stored state for the source. Unknown sources are a
// no-op.
func (st *StatsStore) Remove(id SourceID) {
	st.mu.Lock()
	defer st.mu.Unlock()
	delete(st.sources, id)
}

// SourceIDs returns the ids of every source with stored state.
func (st *StatsStore) SourceIDs() []SourceID {
	st.mu.RLock()
	defer st.mu.RUnlock()
	ids := make([]SourceID, 0, len(st.sources))
	for id := range st.sources {
		ids = append(ids, id)
	}
	return ids
}

func (st *StatsStore) historyLocked(id SourceID) *sourceHistory {
	h, ok := st.sources[id]
	if !ok {
		h = &sourceHistory{ring: newSampleRing(st.window)}
		st.sources[id] = h
	}
	return h
}
