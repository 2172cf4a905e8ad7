package fade

import (
	"fmt"
	"sync"
	"time"

	"github.com/banshee-data/fade.report/internal/monitoring"
)

// AnalysisStats tracks evaluation counters with thread-safe operations.
// Interval counters feed the periodic log line and reset with each
// GetAndReset; the totals accumulate for the lifetime of the process
// and back the stats API.
type AnalysisStats struct {
	mu            sync.Mutex
	frameCount    int64
	droppedCount  int64
	verdictCounts map[VerdictType]int64
	evalNanos     int64
	lastReset     time.Time

	totalFrames   int64
	totalDropped  int64
	totalVerdicts map[VerdictType]int64
	totalNanos    int64
	started       time.Time
}

// AnalysisStatsSnapshot is a window of counters: one logging interval
// from GetAndReset, or the running totals from Totals.
type AnalysisStatsSnapshot struct {
	Frames        int64                 `json:"frames"`
	Dropped       int64                 `json:"dropped"`
	VerdictCounts map[VerdictType]int64 `json:"verdict_counts"`
	AvgEvalMicros float64               `json:"avg_eval_micros"`
	Duration      time.Duration         `json:"duration"`
}

// NewAnalysisStats creates a new AnalysisStats instance.
func NewAnalysisStats() *AnalysisStats {
	now := time.Now()
	return &AnalysisStats{
		verdictCounts: make(map[VerdictType]int64),
		totalVerdicts: make(map[VerdictType]int64),
		lastReset:     now,
		started:       now,
	}
}

// AddEvaluation records one completed evaluation and its cost.
func (as *AnalysisStats) AddEvaluation(t VerdictType, elapsed time.Duration) {
	as.mu.Lock()
	defer as.mu.Unlock()
	as.frameCount++
	as.verdictCounts[t]++
	as.evalNanos += elapsed.Nanoseconds()
	as.totalFrames++
	as.totalVerdicts[t]++
	as.totalNanos += elapsed.Nanoseconds()
}

// AddDropped records a sample rejected for non-finite values.
func (as *AnalysisStats) AddDropped() {
	as.mu.Lock()
	defer as.mu.Unlock()
	as.droppedCount++
	as.totalDropped++
}

// Totals returns the cumulative counters since startup without
// disturbing the logging interval.
func (as *AnalysisStats) Totals() AnalysisStatsSnapshot {
	as.mu.Lock()
	defer as.mu.Unlock()

	snap := AnalysisStatsSnapshot{
		Frames:        as.totalFrames,
		Dropped:       as.totalDropped,
		VerdictCounts: make(map[VerdictType]int64, len(as.totalVerdicts)),
		Duration:      time.Since(as.started),
	}
	for verdict, n := range as.totalVerdicts {
		snap.VerdictCounts[verdict] = n
	}
	if as.totalFrames > 0 {
		snap.AvgEvalMicros = float64(as.totalNanos) / float64(as.totalFrames) / 1e3
	}
	return snap
}

// GetAndReset returns current stats and resets counters.
func (as *AnalysisStats) GetAndReset() AnalysisStatsSnapshot {
	as.mu.Lock()
	defer as.mu.Unlock()

	now := time.Now()
	snap := AnalysisStatsSnapshot{
		Frames:        as.frameCount,
		Dropped:       as.droppedCount,
		VerdictCounts: as.verdictCounts,
		Duration:      now.Sub(as.lastReset),
	}
	if as.frameCount > 0 {
		snap.AvgEvalMicros = float64(as.evalNanos) / float64(as.frameCount) / 1e3
	}

	as.frameCount = 0
	as.droppedCount = 0
	as.verdictCounts = make(map[VerdictType]int64)
	as.evalNanos = 0
	as.lastReset = now

	return snap
}

// LogStats logs formatted statistics for the interval since the last
// reset, staying silent when nothing happened.
func (as *AnalysisStats) LogStats() {
	snap := as.GetAndReset()
	if snap.Frames == 0 && snap.Dropped == 0 {
		return
	}

	framesPerSec := float64(snap.Frames) / snap.Duration.Seconds()
	logMsg := fmt.Sprintf("Fade stats (/sec): %.1f frames, %.1fµs/eval", framesPerSec, snap.AvgEvalMicros)

	fades := snap.VerdictCounts[VerdictFadeIn] + snap.VerdictCounts[VerdictPotentialFadeOut] + snap.VerdictCounts[VerdictFadeOut]
	if fades > 0 {
		logMsg += fmt.Sprintf(", verdicts in=%s potential=%s out=%s",
			FormatWithCommas(snap.VerdictCounts[VerdictFadeIn]),
			FormatWithCommas(snap.VerdictCounts[VerdictPotentialFadeOut]),
			FormatWithCommas(snap.VerdictCounts[VerdictFadeOut]))
	}
	if snap.Dropped > 0 {
		logMsg += fmt.Sprintf(", %d dropped non-finite", snap.Dropped)
	}

	monitoring.Logf("%s", logMsg)
}

// FormatWithCommas formats a number with thousands separators.
func FormatWithCommas(n int64) string {
	str := fmt.Sprintf("%d", n)
	if len(str) <= 3 {
		return str
	}

	result := ""
	for i, char := range str {
		if i > 0 && (len(str)-i)%3 == 0 {
			result += ","
		}
		result += string(char)
	}
	return result
}
