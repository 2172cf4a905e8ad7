package fade

import "math"

// SourceID is an opaque handle for one video source. Handles are minted by
// Tracker.Register and stay stable for the lifetime of the connected
// source; after Remove the handle is dead and a reconnecting source
// receives a fresh one.
type SourceID string

// FrameSample holds the reduced image statistics for a single rendered
// frame of one source. Samples are immutable once stored.
type FrameSample struct {
	// Mean normalized brightness in [0,1]. May slightly exceed 1.0 on
	// noisy feeds.
	Luminance float64 `json:"luminance"`

	// Variance of per-pixel luminance, in [0,1]-scale units. Near zero
	// for flat or black frames.
	Variance float64 `json:"variance"`

	// Fraction of pixels classed as edges by the upstream gradient test.
	EdgeDensity float64 `json:"edge_density"`

	// Monotonically increasing per-source counter, starting at 0.
	// Assigned by StatsStore.Append.
	SequenceIndex int `json:"sequence_index"`

	// Wall-clock seconds since epoch at capture, monotonically
	// non-decreasing per source.
	CapturedAt float64 `json:"captured_at"`
}

// Finite reports whether all numeric fields hold finite values. Samples
// failing this test are dropped at append time so NaN/Inf can never reach
// the confidence arithmetic.
func (s FrameSample) Finite() bool {
	for _, v := range []float64{s.Luminance, s.Variance, s.EdgeDensity, s.CapturedAt} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// VerdictType identifies the classifier's decision for one frame.
type VerdictType string

const (
	// VerdictNone means no fade activity was detected.
	VerdictNone VerdictType = "none"

	// VerdictFadeIn means brightness is consistently climbing, either out
	// of black or across the window.
	VerdictFadeIn VerdictType = "fade_in"

	// VerdictPotentialFadeOut means a darkening trend was detected but
	// not yet confirmed by a sustained black period. Confirmation only
	// ever arrives via VerdictFadeOut.
	VerdictPotentialFadeOut VerdictType = "potential_fade_out"

	// VerdictFadeOut means the source has been black for at least the
	// configured duration. Reachable only through the sustained-black
	// override.
	VerdictFadeOut VerdictType = "fade_out"
)

// FadeVerdict is the classifier output for one source and frame. The
// previous verdict is retained per source to drive hold-over hysteresis on
// the next evaluation.
type FadeVerdict struct {
	Type VerdictType `json:"type"`

	// Confidence in [0,1]. 1.0 for the sustained-black override.
	Confidence float64 `json:"confidence"`

	// AverageRate is the mean per-frame luminance change magnitude
	// backing the verdict, never negative. Zero for none and for the
	// black override.
	AverageRate float64 `json:"average_rate"`
}

// Darkening reports whether the verdict describes a fade toward black.
func (v FadeVerdict) Darkening() bool {
	return v.Type == VerdictPotentialFadeOut || v.Type == VerdictFadeOut
}

// VerdictEvent is the fan-out payload published after every evaluation.
type VerdictEvent struct {
	Source  SourceID    `json:"source"`
	Label   string      `json:"label"`
	Sample  FrameSample `json:"sample"`
	Verdict FadeVerdict `json:"verdict"`
}

// BlackFrameState is a snapshot of one source's black-run tracking.
type BlackFrameState struct {
	// IsBlack is true while the most recent frame satisfied the
	// black-frame predicate.
	IsBlack bool `json:"is_black"`

	// BlackFrameStartTime is the CapturedAt of the first frame in the
	// current black run. Meaningless when IsBlack is false.
	BlackFrameStartTime float64 `json:"black_frame_start_time"`

	// ConsecutiveBlackFrames counts the current black run, at least 1
	// while IsBlack.
	ConsecutiveBlackFrames int `json:"consecutive_black_frames"`
}

// SourceInfo is a read-only snapshot of one tracked source for the HTTP
// and monitor surfaces.
type SourceInfo struct {
	ID           SourceID    `json:"id"`
	Label        string      `json:"label"`
	FrameCount   int         `json:"frame_count"`
	LastSampleAt float64     `json:"last_sample_at"`
	Verdict      FadeVerdict `json:"verdict"`
}
