package fade

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// GroundTruth labels frames of a replayed capture with the verdict the
// classifier should have produced.
type GroundTruth interface {
	// Truth returns the expected verdict for a frame, or ok=false when
	// the frame is unlabeled and should be skipped in scoring.
	Truth(id SourceID, seq int) (VerdictType, bool)
}

// GroundTruthFunc adapts a function to the GroundTruth interface.
type GroundTruthFunc func(id SourceID, seq int) (VerdictType, bool)

func (f GroundTruthFunc) Truth(id SourceID, seq int) (VerdictType, bool) {
	return f(id, seq)
}

// IntervalLabel marks a labeled stretch of one source's frames.
type IntervalLabel struct {
	Source   SourceID    `json:"source"`
	StartSeq int         `json:"start_seq"`
	EndSeq   int         `json:"end_seq"` // inclusive
	Verdict  VerdictType `json:"verdict"`
}

// IntervalGroundTruth labels frames from a list of intervals. Frames
// outside every interval are treated as VerdictNone.
type IntervalGroundTruth struct {
	Intervals []IntervalLabel
}

func (g *IntervalGroundTruth) Truth(id SourceID, seq int) (VerdictType, bool) {
	for _, iv := range g.Intervals {
		if iv.Source == id && seq >= iv.StartSeq && seq <= iv.EndSeq {
			return iv.Verdict, true
		}
	}
	return VerdictNone, true
}

// LabeledScenario pairs one recorded stream with its ground-truth
// intervals. Unlike IntervalGroundTruth, frames outside every interval
// are unlabeled rather than VerdictNone, so transition frames whose
// correct verdict depends on tuning can be left out of scoring.
type LabeledScenario struct {
	File      string          `json:"file"`
	Source    SourceID        `json:"source"`
	Intervals []IntervalLabel `json:"intervals"`
}

func (s LabeledScenario) Truth(id SourceID, seq int) (VerdictType, bool) {
	for _, iv := range s.Intervals {
		if iv.Source == id && seq >= iv.StartSeq && seq <= iv.EndSeq {
			return iv.Verdict, true
		}
	}
	return VerdictNone, false
}

// ScenarioManifest is the labels file written next to generated
// scenario recordings.
type ScenarioManifest struct {
	Scenarios []LabeledScenario `json:"scenarios"`
}

// Disagreement records one frame where classifier output and label
// differ.
type Disagreement struct {
	Source     SourceID    `json:"source"`
	Sequence   int         `json:"sequence"`
	Got        VerdictType `json:"got"`
	Want       VerdictType `json:"want"`
	Confidence float64     `json:"confidence"`
	Luminance  float64     `json:"luminance"`
}

// ClassMetrics holds the confusion counts for one verdict class.
type ClassMetrics struct {
	TruePositives  int `json:"true_positives"`
	FalsePositives int `json:"false_positives"`
	FalseNegatives int `json:"false_negatives"`
}

// Precision is TP/(TP+FP); 0 when the class was never predicted.
func (m ClassMetrics) Precision() float64 {
	denom := m.TruePositives + m.FalsePositives
	if denom == 0 {
		return 0
	}
	return float64(m.TruePositives) / float64(denom)
}

// Recall is TP/(TP+FN); 0 when the class never occurred.
func (m ClassMetrics) Recall() float64 {
	denom := m.TruePositives + m.FalseNegatives
	if denom == 0 {
		return 0
	}
	return float64(m.TruePositives) / float64(denom)
}

// F1 is the harmonic mean of precision and recall.
func (m ClassMetrics) F1() float64 {
	p, r := m.Precision(), m.Recall()
	if p+r == 0 {
		return 0
	}
	return 2 * p * r / (p + r)
}

// EvaluationReport summarizes one scored replay.
type EvaluationReport struct {
	Frames         int                          `json:"frames"`
	Labeled        int                          `json:"labeled"`
	Agreements     int                          `json:"agreements"`
	PerClass       map[VerdictType]ClassMetrics `json:"per_class"`
	MeanConfidence float64                      `json:"mean_confidence"`
	Disagreements  []Disagreement               `json:"disagreements"`
}

// Accuracy is the agreement ratio over labeled frames.
func (r EvaluationReport) Accuracy() float64 {
	if r.Labeled == 0 {
		return 0
	}
	return float64(r.Agreements) / float64(r.Labeled)
}

// Summary renders the report as one line per class, suitable for the
// sweep tools.
func (r EvaluationReport) Summary() string {
	out := fmt.Sprintf("frames=%d labeled=%d accuracy=%.3f mean_conf=%.3f\n",
		r.Frames, r.Labeled, r.Accuracy(), r.MeanConfidence)
	classes := make([]VerdictType, 0, len(r.PerClass))
	for c := range r.PerClass {
		classes = append(classes, c)
	}
	sort.Slice(classes, func(i, j int) bool { return classes[i] < classes[j] })
	for _, c := range classes {
		m := r.PerClass[c]
		out += fmt.Sprintf("  %-20s precision=%.3f recall=%.3f f1=%.3f\n",
			c, m.Precision(), m.Recall(), m.F1())
	}
	return out
}

// EvaluationHarness scores classifier verdicts against labeled replays.
// Feed it every frame in order with Record, then call Report. Not
// concurrency-safe; score one replay per harness.
type EvaluationHarness struct {
	truth            GroundTruth
	maxDisagreements int

	frames      int
	labeled     int
	agreements  int
	perClass    map[VerdictType]*ClassMetrics
	confidences []float64
	saved       []Disagreement
}

// NewEvaluationHarness creates a harness retaining at most
// maxDisagreements examples for inspection (32 if non-positive).
func NewEvaluationHarness(truth GroundTruth, maxDisagreements int) *EvaluationHarness {
	if maxDisagreements <= 0 {
		maxDisagreements = 32
	}
	return &EvaluationHarness{
		truth:            truth,
		maxDisagreements: maxDisagreements,
		perClass:         make(map[VerdictType]*ClassMetrics),
	}
}

// Record scores one frame's verdict against its label.
func (h *EvaluationHarness) Record(id SourceID, sample FrameSample, verdict FadeVerdict) {
	h.frames++
	want, ok := h.truth.Truth(id, sample.SequenceIndex)
	if !ok {
		return
	}
	h.labeled++
	h.confidences = append(h.confidences, verdict.Confidence)

	if verdict.Type == want {
		h.agreements++
		h.class(want).TruePositives++
		return
	}

	h.class(verdict.Type).FalsePositives++
	h.class(want).FalseNegatives++
	if len(h.saved) < h.maxDisagreements {
		h.saved = append(h.saved, Disagreement{
			Source:     id,
			Sequence:   sample.SequenceIndex,
			Got:        verdict.Type,
			Want:       want,
			Confidence: verdict.Confidence,
			Luminance:  sample.Luminance,
		})
	}
}

// Report builds the summary for everything recorded so far.
func (h *EvaluationHarness) Report() EvaluationReport {
	per := make(map[VerdictType]ClassMetrics, len(h.perClass))
	for c, m := range h.perClass {
		per[c] = *m
	}
	mean := 0.0
	if len(h.confidences) > 0 {
		mean = stat.Mean(h.confidences, nil)
	}
	return EvaluationReport{
		Frames:         h.frames,
		Labeled:        h.labeled,
		Agreements:     h.agreements,
		PerClass:       per,
		MeanConfidence: mean,
		Disagreements:  append([]Disagreement(nil), h.saved...),
	}
}

func (h *EvaluationHarness) class(c VerdictType) *ClassMetrics {
	m, ok := h.perClass[c]
	if !ok {
		m = &ClassMetrics{}
		h.perClass[c] = m
	}
	return m
}
