package main

import (
	"math"
	"math/rand"

	"github.com/banshee-data/fade.report/internal/fade"
	"github.com/banshee-data/fade.report/internal/ingest"
	"github.com/banshee-data/fade.report/internal/units"
)

// blackLevel is the clean luminance of a fully faded frame. It sits far
// enough below the default black threshold that jitter cannot lift a
// black frame back over it.
const blackLevel = 0.002

// blackGraceSec is how long after black onset the fade-out label
// starts. It covers the default required black duration plus margin, so
// the labeled stretch only contains frames a reasonably tuned detector
// has had time to confirm.
const blackGraceSec = 1.2

// openingBlackGraceSec is the grace for runs that begin on black. The
// classifier does not advance black-run state until its window holds
// MinFadeFrames samples, so black at stream start is confirmed roughly
// one second later than mid-stream black.
const openingBlackGraceSec = 2.2

// Scenario describes one synthetic feed: a clean luminance waveform
// plus the ground-truth intervals a classifier should reproduce on it.
// Waveforms are written in fractions of the total duration, so any
// -duration stretches the same shape.
type Scenario struct {
	Name string

	// luminance returns the clean value at t seconds into a run of
	// total seconds.
	luminance func(t, total float64) float64

	// labels returns ground-truth intervals for a run of n frames at
	// the given frame rate. Stretches whose correct verdict depends on
	// tuning (ramps, detection grace) are left unlabeled.
	labels func(n int, fps float64) []fade.IntervalLabel
}

// scenarios returns the built-in scenario set.
func scenarios() []Scenario {
	return []Scenario{
		staticScenario(),
		fadeOutScenario(),
		fadeInScenario(),
		cutBlackScenario(),
		flickerScenario(),
		noisyDarkScenario(),
		fadeOutInterruptedScenario(),
	}
}

// staticScenario holds steady mid-brightness content. Nothing should
// ever be detected.
func staticScenario() Scenario {
	return Scenario{
		Name:      "static",
		luminance: func(t, total float64) float64 { return 0.55 },
		labels: func(n int, fps float64) []fade.IntervalLabel {
			b := newLabelBuilder("static", n, fps)
			b.mark(0, -1, fade.VerdictNone)
			return b.out
		},
	}
}

// fadeOutScenario plays steady content, ramps to black across the
// middle fifth of the run, then stays black. The ramp itself is
// unlabeled: whether it reads as a potential fade-out there depends on
// tuning.
func fadeOutScenario() Scenario {
	return Scenario{
		Name: "fade_out",
		luminance: func(t, total float64) float64 {
			rampStart, rampEnd := 0.4*total, 0.6*total
			switch {
			case t < rampStart:
				return 0.55
			case t < rampEnd:
				return ramp(0.55, blackLevel, (t-rampStart)/(rampEnd-rampStart))
			default:
				return blackLevel
			}
		},
		labels: func(n int, fps float64) []fade.IntervalLabel {
			total := float64(n) / fps
			b := newLabelBuilder("fade_out", n, fps)
			b.mark(0, 0.4*total-0.2, fade.VerdictNone)
			b.mark(0.6*total+blackGraceSec, -1, fade.VerdictFadeOut)
			return b.out
		},
	}
}

// fadeInScenario opens on black, climbs to bright across a fifth of the
// run, then holds. The opening black run is a genuine sustained-black
// state; the climb should read as a fade-in. The bright tail is
// unlabeled because fade-in verdicts legitimately persist while black
// frames remain in the rolling window.
func fadeInScenario() Scenario {
	return Scenario{
		Name: "fade_in",
		luminance: func(t, total float64) float64 {
			rampStart, rampEnd := 0.3*total, 0.5*total
			switch {
			case t < rampStart:
				return blackLevel
			case t < rampEnd:
				return ramp(blackLevel, 0.8, (t-rampStart)/(rampEnd-rampStart))
			default:
				return 0.8
			}
		},
		labels: func(n int, fps float64) []fade.IntervalLabel {
			total := float64(n) / fps
			b := newLabelBuilder("fade_in", n, fps)
			b.mark(openingBlackGraceSec, 0.3*total-0.2, fade.VerdictFadeOut)
			b.mark(0.3*total+0.5, 0.5*total, fade.VerdictFadeIn)
			return b.out
		},
	}
}

// cutBlackScenario drops to black instantly at the midpoint, the
// hard-cut case where no darkening trend precedes the black run.
func cutBlackScenario() Scenario {
	return Scenario{
		Name: "cut_black",
		luminance: func(t, total float64) float64 {
			if t < 0.5*total {
				return 0.55
			}
			return blackLevel
		},
		labels: func(n int, fps float64) []fade.IntervalLabel {
			total := float64(n) / fps
			b := newLabelBuilder("cut_black", n, fps)
			b.mark(0, 0.5*total-0.2, fade.VerdictNone)
			b.mark(0.5*total+blackGraceSec, -1, fade.VerdictFadeOut)
			return b.out
		},
	}
}

// flickerScenario alternates between bright and dim every couple of
// frames. Strobing content must not read as a fade, and the dim phase
// sits well above the black threshold.
func flickerScenario() Scenario {
	return Scenario{
		Name: "flicker",
		luminance: func(t, total float64) float64 {
			if math.Mod(t*7.5, 1.0) < 0.5 {
				return 0.6
			}
			return 0.2
		},
		labels: func(n int, fps float64) []fade.IntervalLabel {
			b := newLabelBuilder("flicker", n, fps)
			b.mark(0, -1, fade.VerdictNone)
			return b.out
		},
	}
}

// noisyDarkScenario holds just above the black threshold, dark but live
// content such as a night feed. It must read as none, not fade-out.
func noisyDarkScenario() Scenario {
	return Scenario{
		Name:      "noisy_dark",
		luminance: func(t, total float64) float64 { return 0.08 },
		labels: func(n int, fps float64) []fade.IntervalLabel {
			b := newLabelBuilder("noisy_dark", n, fps)
			b.mark(0, -1, fade.VerdictNone)
			return b.out
		},
	}
}

// fadeOutInterruptedScenario starts a real darkening ramp, reverses
// partway down, and recovers. A potential fade-out during the descent
// is acceptable; a confirmed fade-out is not, and the recovered tail
// must settle back to none.
func fadeOutInterruptedScenario() Scenario {
	return Scenario{
		Name: "fade_out_interrupted",
		luminance: func(t, total float64) float64 {
			downStart, turn, upEnd := 0.35*total, 0.5*total, 0.65*total
			switch {
			case t < downStart:
				return 0.55
			case t < turn:
				return ramp(0.55, 0.15, (t-downStart)/(turn-downStart))
			case t < upEnd:
				return ramp(0.15, 0.55, (t-turn)/(upEnd-turn))
			default:
				return 0.55
			}
		},
		labels: func(n int, fps float64) []fade.IntervalLabel {
			total := float64(n) / fps
			b := newLabelBuilder("fade_out_interrupted", n, fps)
			b.mark(0, 0.35*total-0.2, fade.VerdictNone)
			b.mark(0.65*total+1.0, -1, fade.VerdictNone)
			return b.out
		},
	}
}

func ramp(from, to, frac float64) float64 {
	return from + (to-from)*frac
}

// labelBuilder accumulates interval labels for one run, converting
// second ranges to frame indices and clamping them to the run.
type labelBuilder struct {
	source fade.SourceID
	fps    float64
	n      int
	out    []fade.IntervalLabel
}

func newLabelBuilder(source string, n int, fps float64) *labelBuilder {
	return &labelBuilder{source: fade.SourceID(source), fps: fps, n: n}
}

// mark labels the frames from fromSec to toSec inclusive. A negative
// toSec means the end of the run. Ranges that hold no frames after
// clamping are dropped.
func (b *labelBuilder) mark(fromSec, toSec float64, v fade.VerdictType) {
	start := int(math.Ceil(fromSec * b.fps))
	if start < 0 {
		start = 0
	}
	end := b.n - 1
	if toSec >= 0 {
		end = int(toSec * b.fps)
	}
	if end > b.n-1 {
		end = b.n - 1
	}
	if start > end {
		return
	}
	b.out = append(b.out, fade.IntervalLabel{
		Source:   b.source,
		StartSeq: start,
		EndSeq:   end,
		Verdict:  v,
	})
}

// Generator produces wire records for a scenario run. Jitter comes from
// a seeded source, so runs with equal configuration are reproducible.
// Frames must be generated in order: the jitter stream advances per
// call.
type Generator struct {
	FPS      float64
	Duration float64 // seconds per run
	Noise    float64 // luminance jitter amplitude at full brightness
	BaseTime float64 // CapturedAt of frame zero

	rng *rand.Rand
}

// NewGenerator creates a generator with production-shaped defaults.
func NewGenerator(seed int64) *Generator {
	return &Generator{
		FPS:      30,
		Duration: 10,
		Noise:    0.01,
		BaseTime: 1000,
		rng:      rand.New(rand.NewSource(seed)),
	}
}

// Frames returns the number of records in one run.
func (g *Generator) Frames() int {
	return units.FramesForDuration(g.Duration, g.FPS)
}

// Frame generates record i of the scenario. Variance and edge density
// are derived from the jittered luminance: dark frames carry little of
// either, which is what keeps the black-frame predicate satisfied
// through a real fade.
func (g *Generator) Frame(sc Scenario, i int) ingest.StatsRecord {
	t := float64(i) / g.FPS
	lum := sc.luminance(t, g.Duration)

	// Jitter scales down with brightness so black frames stay black.
	amp := g.Noise * (0.1 + 0.9*lum)
	lum = clamp01(lum + amp*(2*g.rng.Float64()-1))

	variance := varianceFor(lum) * (1 + 0.1*(2*g.rng.Float64()-1))
	edge := clamp01(0.45*lum + 0.02*(2*g.rng.Float64()-1))

	return ingest.StatsRecord{
		Source:      sc.Name,
		CapturedAt:  g.BaseTime + t,
		Luminance:   lum,
		Variance:    variance,
		EdgeDensity: edge,
	}
}

// varianceFor models pixel variance as a function of brightness. The
// quadratic keeps a full bright-to-black fade's variance swing large
// enough to register as textural change, while black frames land under
// the default black-variance threshold.
func varianceFor(lum float64) float64 {
	return 0.0003 + 0.35*lum*lum
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
