package fade

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/banshee-data/fade.report/internal/monitoring"
)

// TraceEvent records one classifier evaluation: the stage that produced
// the verdict plus the intermediate values computed on the way there.
// Formatting and storage live entirely in sinks; the classifier only
// emits.
type TraceEvent struct {
	Source   SourceID           `json:"source"`
	Sequence int                `json:"sequence"`
	Stage    string             `json:"stage"`
	Verdict  FadeVerdict        `json:"verdict"`
	Values   map[string]float64 `json:"values,omitempty"`
}

// TraceSink receives classifier trace events. Emit is called once per
// evaluation from the observe path and must not block.
type TraceSink interface {
	Emit(TraceEvent)
}

// NopTraceSink discards all events.
type NopTraceSink struct{}

func (NopTraceSink) Emit(TraceEvent) {}

// LogTraceSink writes events through monitoring.Logf. Intended for
// debugging sessions, not steady-state production.
type LogTraceSink struct{}

func (LogTraceSink) Emit(ev TraceEvent) {
	keys := make([]string, 0, len(ev.Values))
	for k := range ev.Values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%.4f", k, ev.Values[k])
	}
	monitoring.Logf("[Classifier] source=%s seq=%d stage=%s verdict=%s conf=%.2f rate=%.4f%s",
		ev.Source, ev.Sequence, ev.Stage, ev.Verdict.Type, ev.Verdict.Confidence, ev.Verdict.AverageRate, b.String())
}

// RingTraceSink keeps the most recent events in memory for the monitor
// UI. Oldest events are discarded once the capacity is reached.
type RingTraceSink struct {
	mu       sync.Mutex
	events   []TraceEvent
	capacity int
	head     int
	size     int
}

// NewRingTraceSink creates a sink holding at most capacity events.
func NewRingTraceSink(capacity int) *RingTraceSink {
	if capacity < 1 {
		capacity = 256
	}
	return &RingTraceSink{
		events:   make([]TraceEvent, capacity),
		capacity: capacity,
	}
}

func (r *RingTraceSink) Emit(ev TraceEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events[r.head] = ev
	r.head = (r.head + 1) % r.capacity
	if r.size < r.capacity {
		r.size++
	}
}

// Recent returns up to n most recent events, newest first, optionally
// filtered to one source (empty id matches all).
func (r *RingTraceSink) Recent(id SourceID, n int) []TraceEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	if n <= 0 || n > r.size {
		n = r.size
	}
	out := make([]TraceEvent, 0, n)
	for i := 1; i <= r.size && len(out) < n; i++ {
		idx := (r.head - i + r.capacity) % r.capacity
		ev := r.events[idx]
		if id != "" && ev.Source != id {
			continue
		}
		out = append(out, ev)
	}
	return out
}
