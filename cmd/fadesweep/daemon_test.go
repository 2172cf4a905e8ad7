package main

import (
	"encoding/csv"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/banshee-data/fade.report/internal/fsutil"
	"github.com/banshee-data/fade.report/internal/httputil"
)

func TestSweepDaemon(t *testing.T) {
	client := httputil.NewMockHTTPClient()
	// First grid point: params accepted, counters move 100 -> 160.
	client.AddResponse(http.StatusOK, `{}`)
	client.AddResponse(http.StatusOK, `{"analysis":{"frames":100,"verdict_counts":{"none":90,"fade_out":10}}}`)
	client.AddResponse(http.StatusOK, `{"analysis":{"frames":160,"verdict_counts":{"none":130,"fade_out":25,"fade_in":5}}}`)
	// Second grid point: counters move 160 -> 200 with no new fades.
	client.AddResponse(http.StatusOK, `{}`)
	client.AddResponse(http.StatusOK, `{"analysis":{"frames":160,"verdict_counts":{"none":130,"fade_out":25,"fade_in":5}}}`)
	client.AddResponse(http.StatusOK, `{"analysis":{"frames":200,"verdict_counts":{"none":170,"fade_out":25,"fade_in":5}}}`)

	fs := fsutil.NewMemoryFileSystem()
	grid := sweepGrid{
		fadeThresholds:  []float64{0.01},
		blackLuminances: []float64{0.01},
		blackDurations:  []float64{0.5, 1.0},
	}
	if err := sweepDaemon(client, fs, "http://daemon:8080", "live.csv", grid, 0); err != nil {
		t.Fatal(err)
	}

	requests := client.Requests()
	if len(requests) != 6 {
		t.Fatalf("expected 6 requests, got %d", len(requests))
	}
	wantPaths := []string{
		"/api/params", "/api/stats", "/api/stats",
		"/api/params", "/api/stats", "/api/stats",
	}
	for i, req := range requests {
		if req.URL.Path != wantPaths[i] {
			t.Errorf("request %d hit %s, want %s", i, req.URL.Path, wantPaths[i])
		}
		if req.URL.Host != "daemon:8080" {
			t.Errorf("request %d hit host %s", i, req.URL.Host)
		}
	}

	body, err := io.ReadAll(requests[0].Body)
	if err != nil {
		t.Fatal(err)
	}
	for _, field := range []string{"fade_threshold", "black_luminance_threshold", "required_black_duration"} {
		if !strings.Contains(string(body), field) {
			t.Errorf("params body missing %s: %s", field, body)
		}
	}
	if !strings.Contains(string(body), "0.5") {
		t.Errorf("first params body should carry the first duration: %s", body)
	}

	data, err := fs.ReadFile("live.csv")
	if err != nil {
		t.Fatal(err)
	}
	rows, err := csv.NewReader(strings.NewReader(string(data))).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected header plus 2 rows, got %d", len(rows))
	}

	first := rows[1]
	// frames, none, fade_in, potential_fade_out, fade_out deltas.
	want := []string{"60", "40", "5", "0", "15"}
	if got := first[3:]; strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("first row deltas %v, want %v", got, want)
	}
	second := rows[2]
	if second[3] != "40" || second[7] != "0" {
		t.Errorf("second row deltas wrong: %v", second)
	}
}

func TestSweepDaemonStopsOnRejectedParams(t *testing.T) {
	client := httputil.NewMockHTTPClient()
	client.AddResponse(http.StatusBadRequest, `{"error":"Invalid analysis config"}`)

	fs := fsutil.NewMemoryFileSystem()
	grid := sweepGrid{
		fadeThresholds:  []float64{-1},
		blackLuminances: []float64{0.01},
		blackDurations:  []float64{1.0},
	}
	err := sweepDaemon(client, fs, "http://daemon:8080", "live.csv", grid, 0)
	if err == nil {
		t.Fatal("expected an error when the daemon rejects params")
	}
	if !strings.Contains(err.Error(), "400") {
		t.Errorf("error should carry the status code, got: %v", err)
	}
	if fs.Exists("live.csv") {
		t.Error("no results should be written after a rejected grid point")
	}
}

func TestFetchStatsRejectsBadPayloads(t *testing.T) {
	client := httputil.NewMockHTTPClient()
	client.AddResponse(http.StatusOK, "not json")
	if _, err := fetchStats(client, "http://daemon:8080"); err == nil {
		t.Error("expected a decode error")
	}

	client.AddResponse(http.StatusInternalServerError, `{"error":"boom"}`)
	if _, err := fetchStats(client, "http://daemon:8080"); err == nil {
		t.Error("expected an error for a 500")
	}
}
