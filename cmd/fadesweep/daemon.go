package main

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"strconv"
	"time"

	"github.com/banshee-data/fade.report/internal/fade"
	"github.com/banshee-data/fade.report/internal/fsutil"
	"github.com/banshee-data/fade.report/internal/httputil"
)

// daemonStats is the slice of the daemon's stats payload the sweep
// reads.
type daemonStats struct {
	Analysis struct {
		Frames        int64                      `json:"frames"`
		VerdictCounts map[fade.VerdictType]int64 `json:"verdict_counts"`
	} `json:"analysis"`
}

// liveResult is one grid point sampled against a running daemon. The
// counters are deltas across the observation window, not totals.
type liveResult struct {
	combo  combination
	frames int64
	counts map[fade.VerdictType]int64
}

// sweepDaemon walks the grid against a live daemon: apply the grid
// point through the params endpoint, let live traffic flow for wait,
// then read the verdict counters and keep the delta. The daemon's
// counters are cumulative, so each point samples before and after its
// window rather than resetting anything.
func sweepDaemon(client httputil.HTTPClient, fs fsutil.FileSystem, baseURL, outPath string, grid sweepGrid, wait time.Duration) error {
	combos, err := grid.combinations()
	if err != nil {
		return err
	}
	log.Printf("sweeping %d combinations against %s (%s per point)", len(combos), baseURL, wait)

	results := make([]liveResult, 0, len(combos))
	for i, combo := range combos {
		if err := postParams(client, baseURL, combo); err != nil {
			return err
		}
		before, err := fetchStats(client, baseURL)
		if err != nil {
			return err
		}
		time.Sleep(wait)
		after, err := fetchStats(client, baseURL)
		if err != nil {
			return err
		}

		res := liveResult{
			combo:  combo,
			frames: after.Analysis.Frames - before.Analysis.Frames,
			counts: make(map[fade.VerdictType]int64, len(after.Analysis.VerdictCounts)),
		}
		for verdict, n := range after.Analysis.VerdictCounts {
			res.counts[verdict] = n - before.Analysis.VerdictCounts[verdict]
		}
		results = append(results, res)
		log.Printf("[%d/%d] fade_threshold=%v black_luminance=%v black_duration=%v frames=%d",
			i+1, len(combos), combo.fadeThreshold, combo.blackLuminance, combo.blackDuration, res.frames)
	}

	if err := fs.WriteFileAtomic(outPath, renderLiveCSV(results), 0o644); err != nil {
		return fmt.Errorf("failed to write results: %w", err)
	}
	log.Printf("✓ Created: %s (%d combinations)", outPath, len(results))
	return nil
}

func postParams(client httputil.HTTPClient, baseURL string, combo combination) error {
	body, err := json.Marshal(map[string]float64{
		"fade_threshold":            combo.fadeThreshold,
		"black_luminance_threshold": combo.blackLuminance,
		"required_black_duration":   combo.blackDuration,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal params: %w", err)
	}
	resp, err := client.Post(baseURL+"/api/params", "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to set params: %w", err)
	}
	defer resp.Body.Close()
	payload, _ := io.ReadAll(resp.Body)
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("params endpoint returned %d: %s", resp.StatusCode, payload)
	}
	return nil
}

func fetchStats(client httputil.HTTPClient, baseURL string) (daemonStats, error) {
	resp, err := client.Get(baseURL + "/api/stats")
	if err != nil {
		return daemonStats{}, fmt.Errorf("failed to fetch stats: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		io.Copy(io.Discard, resp.Body)
		return daemonStats{}, fmt.Errorf("stats endpoint returned %d", resp.StatusCode)
	}
	var stats daemonStats
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		return daemonStats{}, fmt.Errorf("failed to decode stats: %w", err)
	}
	return stats, nil
}

// renderLiveCSV renders live results, one column per verdict class.
func renderLiveCSV(results []liveResult) []byte {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	w.Write([]string{
		"fade_threshold", "black_luminance_threshold", "required_black_duration",
		"frames", "none", "fade_in", "potential_fade_out", "fade_out",
	})
	for _, res := range results {
		w.Write([]string{
			formatParam(res.combo.fadeThreshold),
			formatParam(res.combo.blackLuminance),
			formatParam(res.combo.blackDuration),
			strconv.FormatInt(res.frames, 10),
			strconv.FormatInt(res.counts[fade.VerdictNone], 10),
			strconv.FormatInt(res.counts[fade.VerdictFadeIn], 10),
			strconv.FormatInt(res.counts[fade.VerdictPotentialFadeOut], 10),
			strconv.FormatInt(res.counts[fade.VerdictFadeOut], 10),
		})
	}
	w.Flush()
	return buf.Bytes()
}
