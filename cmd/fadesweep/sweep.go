package main

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"log"
	"math"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/banshee-data/fade.report/internal/fade"
	"github.com/banshee-data/fade.report/internal/fsutil"
	"github.com/banshee-data/fade.report/internal/ingest"
)

// maxCombinations bounds the grid so a mistyped range spec cannot
// allocate an absurd sweep.
const maxCombinations = 10000

// sweepGrid holds the parameter values for each swept axis.
type sweepGrid struct {
	fadeThresholds  []float64
	blackLuminances []float64
	blackDurations  []float64
}

// combination is one point of the grid.
type combination struct {
	fadeThreshold  float64
	blackLuminance float64
	blackDuration  float64
}

// combinations expands the grid in deterministic order, fade threshold
// outermost.
func (g sweepGrid) combinations() ([]combination, error) {
	total := len(g.fadeThresholds) * len(g.blackLuminances) * len(g.blackDurations)
	if total == 0 {
		return nil, fmt.Errorf("empty sweep grid")
	}
	if total > maxCombinations {
		return nil, fmt.Errorf("%d combinations exceeds the limit of %d", total, maxCombinations)
	}
	out := make([]combination, 0, total)
	for _, ft := range g.fadeThresholds {
		for _, bl := range g.blackLuminances {
			for _, bd := range g.blackDurations {
				out = append(out, combination{fadeThreshold: ft, blackLuminance: bl, blackDuration: bd})
			}
		}
	}
	return out, nil
}

// config returns the analysis config for this grid point, overlaying
// the swept values on the base.
func (c combination) config(base fade.AnalysisConfig) fade.AnalysisConfig {
	base.FadeThreshold = c.fadeThreshold
	base.BlackLuminanceThreshold = c.blackLuminance
	base.RequiredBlackDuration = c.blackDuration
	return base
}

// parseParamList parses either a comma-separated list of floats or a
// "min:max:step" range specification.
func parseParamList(s string) ([]float64, error) {
	if strings.Contains(s, ":") {
		return parseRangeSpec(s)
	}
	parts := strings.Split(s, ",")
	out := make([]float64, 0, len(parts))
	for _, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid value %q: %w", p, err)
		}
		out = append(out, v)
	}
	return out, nil
}

func parseRangeSpec(s string) ([]float64, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return nil, fmt.Errorf("invalid range %q: expected min:max:step", s)
	}
	min, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return nil, fmt.Errorf("invalid min %q: %w", parts[0], err)
	}
	max, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return nil, fmt.Errorf("invalid max %q: %w", parts[1], err)
	}
	step, err := strconv.ParseFloat(strings.TrimSpace(parts[2]), 64)
	if err != nil {
		return nil, fmt.Errorf("invalid step %q: %w", parts[2], err)
	}
	if step <= 0 {
		return nil, fmt.Errorf("step must be positive, got %v", step)
	}
	if min > max {
		return nil, fmt.Errorf("range %q has min above max", s)
	}

	var out []float64
	// The epsilon keeps the max endpoint in despite accumulation error.
	for v := min; v <= max+step/1000; v += step {
		out = append(out, math.Round(v*1e9)/1e9)
		if len(out) > maxCombinations {
			return nil, fmt.Errorf("range %q expands past the limit of %d values", s, maxCombinations)
		}
	}
	return out, nil
}

// sourceTruth maps runtime source handles to their labeled scenarios.
// The tracker mints fresh handles per run, so the bridge from handle to
// manifest source is built as sources register.
type sourceTruth map[fade.SourceID]fade.LabeledScenario

func (t sourceTruth) Truth(id fade.SourceID, seq int) (fade.VerdictType, bool) {
	sc, ok := t[id]
	if !ok {
		return fade.VerdictNone, false
	}
	return sc.Truth(sc.Source, seq)
}

// loadManifest reads the labels manifest a generator run left in dir.
func loadManifest(fs fsutil.FileSystem, dir string) (fade.ScenarioManifest, error) {
	data, err := fs.ReadFile(filepath.Join(dir, "labels.json"))
	if err != nil {
		return fade.ScenarioManifest{}, fmt.Errorf("failed to read labels manifest: %w", err)
	}
	var manifest fade.ScenarioManifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return fade.ScenarioManifest{}, fmt.Errorf("failed to parse labels manifest: %w", err)
	}
	if len(manifest.Scenarios) == 0 {
		return fade.ScenarioManifest{}, fmt.Errorf("labels manifest lists no scenarios")
	}
	return manifest, nil
}

// readRecording loads one scenario's JSONL recording, one wire record
// per line, in frame order.
func readRecording(fs fsutil.FileSystem, path string) ([]ingest.StatsRecord, error) {
	f, err := fs.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open recording: %w", err)
	}
	defer f.Close()

	var records []ingest.StatsRecord
	scanner := bufio.NewScanner(f)
	line := 0
	for scanner.Scan() {
		line++
		text := bytes.TrimSpace(scanner.Bytes())
		if len(text) == 0 {
			continue
		}
		rec, err := ingest.ParseRecord(text)
		if err != nil {
			return nil, fmt.Errorf("%s line %d: %w", path, line, err)
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%s holds no records", path)
	}
	return records, nil
}

// sweepResult is one scored grid point.
type sweepResult struct {
	combo  combination
	report fade.EvaluationReport
}

// evaluateCombination replays every scenario through a fresh tracker at
// this grid point's config and scores the verdicts against the labels.
func evaluateCombination(combo combination, base fade.AnalysisConfig, manifest fade.ScenarioManifest, recordings map[string][]ingest.StatsRecord) (sweepResult, error) {
	cfg := combo.config(base)
	if err := cfg.Validate(); err != nil {
		return sweepResult{}, fmt.Errorf("grid point %+v: %w", combo, err)
	}

	tr := fade.NewTracker(cfg)
	truth := make(sourceTruth)
	harness := fade.NewEvaluationHarness(truth, 16)

	for _, sc := range manifest.Scenarios {
		id := tr.Register(string(sc.Source))
		truth[id] = sc
		for i, rec := range recordings[sc.File] {
			sample := rec.Sample()
			verdict := tr.Observe(id, sample)
			sample.SequenceIndex = i
			harness.Record(id, sample, verdict)
		}
	}
	return sweepResult{combo: combo, report: harness.Report()}, nil
}

// runSweep scores the whole grid against the recordings in dir and
// writes the results CSV.
func runSweep(fs fsutil.FileSystem, dir, outPath string, grid sweepGrid, base fade.AnalysisConfig) error {
	combos, err := grid.combinations()
	if err != nil {
		return err
	}
	manifest, err := loadManifest(fs, dir)
	if err != nil {
		return err
	}

	recordings := make(map[string][]ingest.StatsRecord, len(manifest.Scenarios))
	for _, sc := range manifest.Scenarios {
		records, err := readRecording(fs, filepath.Join(dir, sc.File))
		if err != nil {
			return err
		}
		recordings[sc.File] = records
	}
	log.Printf("loaded %d scenarios from %s, sweeping %d combinations", len(manifest.Scenarios), dir, len(combos))

	results := make([]sweepResult, 0, len(combos))
	best := -1
	for i, combo := range combos {
		res, err := evaluateCombination(combo, base, manifest, recordings)
		if err != nil {
			return err
		}
		results = append(results, res)
		if best < 0 || res.report.Accuracy() > results[best].report.Accuracy() {
			best = i
		}
		log.Printf("[%d/%d] fade_threshold=%v black_luminance=%v black_duration=%v accuracy=%.3f",
			i+1, len(combos), combo.fadeThreshold, combo.blackLuminance, combo.blackDuration,
			res.report.Accuracy())
	}

	if err := fs.WriteFileAtomic(outPath, renderCSV(results), 0o644); err != nil {
		return fmt.Errorf("failed to write results: %w", err)
	}
	log.Printf("✓ Created: %s (%d combinations)", outPath, len(results))

	b := results[best]
	log.Printf("best: fade_threshold=%v black_luminance=%v black_duration=%v accuracy=%.3f",
		b.combo.fadeThreshold, b.combo.blackLuminance, b.combo.blackDuration, b.report.Accuracy())
	return nil
}

// renderCSV renders results in grid order with per-class metrics for
// the two fade classes.
func renderCSV(results []sweepResult) []byte {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	w.Write([]string{
		"fade_threshold", "black_luminance_threshold", "required_black_duration",
		"frames", "labeled", "accuracy", "mean_confidence", "disagreements",
		"fade_out_precision", "fade_out_recall", "fade_out_f1",
		"fade_in_precision", "fade_in_recall", "fade_in_f1",
	})
	for _, res := range results {
		out := res.report.PerClass[fade.VerdictFadeOut]
		in := res.report.PerClass[fade.VerdictFadeIn]
		w.Write([]string{
			formatParam(res.combo.fadeThreshold),
			formatParam(res.combo.blackLuminance),
			formatParam(res.combo.blackDuration),
			strconv.Itoa(res.report.Frames),
			strconv.Itoa(res.report.Labeled),
			formatMetric(res.report.Accuracy()),
			formatMetric(res.report.MeanConfidence),
			strconv.Itoa(res.report.Labeled - res.report.Agreements),
			formatMetric(out.Precision()),
			formatMetric(out.Recall()),
			formatMetric(out.F1()),
			formatMetric(in.Precision()),
			formatMetric(in.Recall()),
			formatMetric(in.F1()),
		})
	}
	w.Flush()
	return buf.Bytes()
}

func formatParam(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func formatMetric(v float64) string {
	return strconv.FormatFloat(v, 'f', 4, 64)
}
