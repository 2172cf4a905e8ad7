package fade

import "math"

// Stage names, in evaluation order. Each evaluation's trace event carries
// the name of the stage that produced the verdict.
const (
	StageWindow         = "window"
	StageSustainedBlack = "sustained_black"
	StageBlackRecovery  = "black_recovery"
	StageHoldOver       = "hold_over"
	StageTrend          = "trend"
	StageGradualFadeIn  = "gradual_fade_in"
	StageDefault        = "default"
)

// Classifier turns a source's statistics window, black-run state, and
// previous verdict into a FadeVerdict. Evaluation walks an ordered chain
// of heuristic stages; the first stage to decide wins. Given identical
// inputs the result is deterministic.
type Classifier struct {
	black  *BlackFrameTracker
	stages []stage
}

type stage struct {
	name string
	run  func(*evalContext) (FadeVerdict, bool)
}

// evalContext carries one evaluation's inputs plus the intermediate
// values accumulated for the trace event.
type evalContext struct {
	id      SourceID
	history []FrameSample // oldest to newest
	prev    FadeVerdict
	cfg     AnalysisConfig
	values  map[string]float64
}

func (e *evalContext) record(key string, v float64) {
	e.values[key] = v
}

func (e *evalContext) newest() FrameSample {
	return e.history[len(e.history)-1]
}

// recentSlice returns the most recent min(n, len) samples.
func (e *evalContext) recentSlice(n int) []FrameSample {
	if len(e.history) < n {
		n = len(e.history)
	}
	return e.history[len(e.history)-n:]
}

// NewClassifier creates a classifier sharing the given black-frame
// tracker. The tracker is advanced as a side effect of evaluation (stage
// two), so callers must not update it separately.
func NewClassifier(black *BlackFrameTracker) *Classifier {
	c := &Classifier{black: black}
	c.stages = []stage{
		{StageWindow, c.stageWindow},
		{StageSustainedBlack, c.stageSustainedBlack},
		{StageBlackRecovery, c.stageBlackRecovery},
		{StageHoldOver, c.stageHoldOver},
		{StageTrend, c.stageTrend},
		{StageGradualFadeIn, c.stageGradualFadeIn},
		{StageDefault, c.stageDefault},
	}
	return c
}

// Evaluate classifies the newest frame of the given history. prev is the
// source's previous verdict (zero value on first evaluation).
func (c *Classifier) Evaluate(id SourceID, history []FrameSample, prev FadeVerdict, cfg AnalysisConfig) (FadeVerdict, TraceEvent) {
	ectx := &evalContext{
		id:      id,
		history: history,
		prev:    prev,
		cfg:     cfg,
		values:  make(map[string]float64, 8),
	}

	seq := 0
	if len(history) > 0 {
		seq = history[len(history)-1].SequenceIndex
	}

	for _, s := range c.stages {
		verdict, decided := s.run(ectx)
		if !decided {
			continue
		}
		return verdict, TraceEvent{
			Source:   id,
			Sequence: seq,
			Stage:    s.name,
			Verdict:  verdict,
			Values:   ectx.values,
		}
	}

	// The default stage always decides; this is unreachable.
	return FadeVerdict{Type: VerdictNone}, TraceEvent{Source: id, Sequence: seq, Stage: StageDefault}
}

// stageWindow rejects evaluations without enough history. Nothing below
// it runs (and no black-run state advances) until the window holds at
// least MinFadeFrames samples.
func (c *Classifier) stageWindow(e *evalContext) (FadeVerdict, bool) {
	e.record("frames", float64(len(e.history)))
	if len(e.history) < e.cfg.MinFadeFrames {
		return FadeVerdict{Type: VerdictNone}, true
	}
	return FadeVerdict{}, false
}

// stageSustainedBlack advances the black-run state machine with the
// newest sample and fires the authoritative fade-out override once the
// run has lasted RequiredBlackDuration. Overrides every later stage,
// including an in-progress hold-over.
func (c *Classifier) stageSustainedBlack(e *evalContext) (FadeVerdict, bool) {
	latest := e.newest()
	c.black.Update(e.id, latest, e.cfg)
	if c.black.HasSustainedBlack(e.id, latest, e.cfg) {
		return FadeVerdict{Type: VerdictFadeOut, Confidence: 1.0, AverageRate: 0}, true
	}
	return FadeVerdict{}, false
}

// stageBlackRecovery recognizes a fade-in while the window still starts
// in black: brightness must be consistently climbing across the recent
// slice even though the source remains statistically dark.
func (c *Classifier) stageBlackRecovery(e *evalContext) (FadeVerdict, bool) {
	oldest := e.history[0]
	if !isBlackFrame(oldest, e.cfg) {
		return FadeVerdict{}, false
	}

	recent := e.recentSlice(15)
	sliceLen := len(recent)

	nonBlack := 0
	for _, s := range recent {
		if !isBlackFrame(s, e.cfg) {
			nonBlack++
		}
	}
	nonBlackRatio := float64(nonBlack) / float64(sliceLen)

	trendRatio := 0.0
	if sliceLen > 1 {
		trendRatio = float64(strictIncreases(recent)) / float64(sliceLen-1)
	}

	e.record("non_black_ratio", nonBlackRatio)
	e.record("trend_ratio", trendRatio)

	if nonBlackRatio > 0.3 && trendRatio > 0.4 {
		rate := (e.newest().Luminance - oldest.Luminance) / float64(sliceLen)
		if rate < 0 {
			rate = 0
		}
		return FadeVerdict{
			Type:        VerdictFadeIn,
			Confidence:  math.Min(nonBlackRatio*1.5, 1.0),
			AverageRate: rate,
		}, true
	}
	return FadeVerdict{}, false
}

// stageHoldOver continues a previous potential-fade-out verdict unless
// the recent window shows clear recovery. A single noisy brighter frame
// cannot cancel a real fade; a sustained brightening trend can.
func (c *Classifier) stageHoldOver(e *evalContext) (FadeVerdict, bool) {
	if e.prev.Type != VerdictPotentialFadeOut {
		return FadeVerdict{}, false
	}

	recent := e.recentSlice(15)
	avgRecentChange := meanLuminanceDelta(recent)
	e.record("avg_recent_change", avgRecentChange)

	if avgRecentChange > e.cfg.FadeThreshold*0.5 {
		// Brightness is clearly recovering; the fade-out is interrupted.
		return FadeVerdict{Type: VerdictNone}, true
	}

	avgLumChange := meanLuminanceDelta(e.history)
	e.record("avg_lum_change", avgLumChange)
	return FadeVerdict{
		Type:        VerdictPotentialFadeOut,
		Confidence:  e.prev.Confidence,
		AverageRate: math.Abs(avgLumChange),
	}, true
}

// stageTrend is the initial whole-window detection: both tonal and
// textural change must clear a floor, the per-frame trend must be strong
// and consistent, and the weighted confidence must reach 0.6. Darkening
// trends are reported as potential-fade-out; confirmed fade-out only ever
// comes from the sustained-black override.
func (c *Classifier) stageTrend(e *evalContext) (FadeVerdict, bool) {
	n := len(e.history)
	first, last := e.history[0], e.history[n-1]

	deltas := luminanceDeltas(e.history)
	avgLumChange := meanOf(deltas)
	totalLumChange := math.Abs(last.Luminance - first.Luminance)
	totalVarChange := math.Abs(last.Variance - first.Variance)

	lumFloor := e.cfg.FadeThreshold * float64(e.cfg.MinFadeFrames) * 0.5
	varFloor := 0.3 * lumFloor

	e.record("avg_lum_change", avgLumChange)
	e.record("total_lum_change", totalLumChange)
	e.record("total_var_change", totalVarChange)

	// Static or merely noisy content fails both floors.
	if totalLumChange < lumFloor || totalVarChange < varFloor {
		return FadeVerdict{Type: VerdictNone}, true
	}

	consistent := 0
	for _, d := range deltas {
		if math.Abs(d) >= e.cfg.FadeThreshold*0.8 && sameSign(d, avgLumChange) {
			consistent++
		}
	}
	lumConsistency := float64(consistent) / float64(len(deltas))
	e.record("lum_consistency", lumConsistency)

	significantVarChange := totalVarChange >= 2*varFloor

	if math.Abs(avgLumChange) >= e.cfg.FadeThreshold*0.8 &&
		lumConsistency >= e.cfg.FadeConsistencyThreshold &&
		significantVarChange {

		brightening := avgLumChange > 0
		confidence := c.trendConfidence(e, avgLumChange, totalVarChange, lumConsistency, brightening)
		e.record("confidence", confidence)

		if confidence >= 0.6 {
			verdictType := VerdictFadeIn
			if !brightening {
				verdictType = VerdictPotentialFadeOut
			}
			return FadeVerdict{
				Type:        verdictType,
				Confidence:  confidence,
				AverageRate: math.Abs(avgLumChange),
			}, true
		}
	}
	return FadeVerdict{}, false
}

// trendConfidence scores a trend candidate. The four weights sum to 1.0;
// the situational boost applies after.
func (c *Classifier) trendConfidence(e *evalContext, avgLumChange, totalVarChange, consistency float64, brightening bool) float64 {
	cfg := e.cfg

	magnitude := math.Min((math.Abs(avgLumChange)+0.5*totalVarChange)/(cfg.FadeThreshold*2.0), 1.0)

	// Direction score checks the endpoint in the fade's frame of
	// reference: the newest sample for brightening, the window's oldest
	// for darkening.
	direction := 0.5
	if brightening {
		if e.newest().Luminance > 0.15 {
			direction = 1.0
		}
	} else {
		if e.history[0].Luminance < 0.05 {
			direction = 1.0
		}
	}

	rate := math.Min(math.Abs(avgLumChange)/(cfg.FadeThreshold*0.5), 1.0)

	confidence := 0.35*magnitude + 0.35*consistency + 0.15*direction + 0.15*rate

	latest := e.newest().Luminance
	if math.Abs(avgLumChange) >= cfg.FadeThreshold {
		if (!brightening && latest < 0.05) || (brightening && latest > 0.2) {
			confidence += 0.10
		}
	}
	return clampConfidence(confidence, 0, 1)
}

// stageGradualFadeIn catches slow fade-ins that fail the trend stage's
// simultaneous-variance gate: a dark start, a clearly positive total
// change, and a mostly-increasing recent slice.
func (c *Classifier) stageGradualFadeIn(e *evalContext) (FadeVerdict, bool) {
	slice := e.recentSlice(30)
	sliceLen := len(slice)
	if sliceLen < 2 {
		return FadeVerdict{}, false
	}

	totalChange := slice[sliceLen-1].Luminance - slice[0].Luminance
	if totalChange <= e.cfg.FadeThreshold*3 {
		return FadeVerdict{}, false
	}
	if slice[0].Luminance >= 0.3 {
		return FadeVerdict{}, false
	}

	increaseRatio := float64(strictIncreases(slice)) / float64(sliceLen-1)
	e.record("increase_ratio", increaseRatio)
	if increaseRatio < 0.6 {
		return FadeVerdict{}, false
	}

	return FadeVerdict{
		Type:        VerdictFadeIn,
		Confidence:  math.Min(increaseRatio*1.2, 1.0),
		AverageRate: totalChange / float64(sliceLen-1),
	}, true
}

func (c *Classifier) stageDefault(e *evalContext) (FadeVerdict, bool) {
	return FadeVerdict{Type: VerdictNone}, true
}

// luminanceDeltas returns the frame-to-frame luminance changes, one per
// consecutive pair.
func luminanceDeltas(samples []FrameSample) []float64 {
	if len(samples) < 2 {
		return nil
	}
	deltas := make([]float64, len(samples)-1)
	for i := 1; i < len(samples); i++ {
		deltas[i-1] = samples[i].Luminance - samples[i-1].Luminance
	}
	return deltas
}

// meanLuminanceDelta returns the mean frame-to-frame luminance change
// across the samples, 0 for fewer than two.
func meanLuminanceDelta(samples []FrameSample) float64 {
	if len(samples) < 2 {
		return 0
	}
	sum := 0.0
	for i := 1; i < len(samples); i++ {
		sum += samples[i].Luminance - samples[i-1].Luminance
	}
	return sum / float64(len(samples)-1)
}

func meanOf(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// strictIncreases counts consecutive pairs whose luminance strictly
// increased.
func strictIncreases(samples []FrameSample) int {
	count := 0
	for i := 1; i < len(samples); i++ {
		if samples[i].Luminance > samples[i-1].Luminance {
			count++
		}
	}
	return count
}

func sameSign(a, b float64) bool {
	return (a > 0 && b > 0) || (a < 0 && b < 0)
}

// clampConfidence bounds a confidence value to [min, max].
func clampConfidence(value, min, max float64) float64 {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}
