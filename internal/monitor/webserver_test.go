package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/banshee-data/fade.report/internal/db"
	"github.com/banshee-data/fade.report/internal/fade"
	"github.com/banshee-data/fade.report/internal/ingest"
)

// seedTracker returns a tracker with one registered source and a few
// observed frames.
func seedTracker(t *testing.T) (*fade.Tracker, fade.SourceID) {
	t.Helper()
	tracker := fade.NewTracker(fade.DefaultAnalysisConfig())
	id := tracker.Register("cam-a")
	for i := 0; i < 5; i++ {
		tracker.Observe(id, fade.FrameSample{
			Luminance:   0.5,
			Variance:    0.02,
			EdgeDensity: 0.1,
			CapturedAt:  100 + float64(i)/30,
		})
	}
	return tracker, id
}

func TestNewWebServer(t *testing.T) {
	tracker := fade.NewTracker(fade.DefaultAnalysisConfig())
	feed := ingest.NewPacketStats()

	config := WebServerConfig{
		Address:       ":0",
		Tracker:       tracker,
		Feed:          feed,
		UDPPort:       9999,
		DimmerEnabled: true,
		DimmerPort:    "/dev/ttyUSB0",
	}

	server := NewWebServer(config)

	if server == nil {
		t.Fatal("NewWebServer returned nil")
	}

	if server.tracker != tracker {
		t.Error("WebServer tracker not set correctly")
	}

	if server.feed != feed {
		t.Error("WebServer feed not set correctly")
	}

	if server.udpPort != 9999 {
		t.Error("WebServer udpPort not set correctly")
	}

	if !server.dimmerEnabled {
		t.Error("WebServer dimmerEnabled not set correctly")
	}

	if server.dimmerPort != "/dev/ttyUSB0" {
		t.Error("WebServer dimmerPort not set correctly")
	}

	if server.templates == nil {
		t.Error("WebServer should default to the embedded templates")
	}
}

func TestWebServer_StatusHandler(t *testing.T) {
	tracker, _ := seedTracker(t)
	feed := ingest.NewPacketStats()
	feed.AddDatagram(48)
	feed.AddObserved()

	config := WebServerConfig{
		Address: ":0",
		Tracker: tracker,
		Feed:    feed,
		UDPPort: 9999,
	}

	server := NewWebServer(config)

	req, err := http.NewRequest("GET", "/", nil)
	if err != nil {
		t.Fatal(err)
	}

	rr := httptest.NewRecorder()
	mux := server.setupRoutes()
	mux.ServeHTTP(rr, req)

	if status := rr.Code; status != http.StatusOK {
		t.Errorf("Status handler returned wrong status code: got %v want %v",
			status, http.StatusOK)
	}

	body := rr.Body.String()

	if !strings.Contains(body, "fade.report monitor") {
		t.Error("Response should contain 'fade.report monitor'")
	}

	if !strings.Contains(body, "cam-a") {
		t.Error("Response should contain the registered source label")
	}

	if !strings.Contains(body, "9999") {
		t.Error("Response should contain the UDP port")
	}

	if !strings.Contains(body, "disabled") {
		t.Error("Response should report the dimmer as disabled")
	}

	// Five observed frames is below the analysis window, so the verdict
	// is the zero-confidence warm-up verdict.
	if !strings.Contains(body, "0.0%") {
		t.Error("Response should render the verdict confidence as a percentage")
	}
}

func TestNewTransitionView(t *testing.T) {
	tr := db.Transition{
		Verdict:     "fade_out",
		Confidence:  1.0,
		AverageRate: 0.01,
		StartedAt:   100.0,
		DetectedAt:  102.0,
		FrameCount:  61,
	}

	view := newTransitionView(tr)

	// 60 frame intervals over 2 s is 30 fps, so 0.01 per frame reads as
	// 0.3 per second.
	if math.Abs(view.RatePerSecond-0.3) > 1e-9 {
		t.Errorf("RatePerSecond = %v, want 0.3", view.RatePerSecond)
	}
	if view.Length != "2.0s" {
		t.Errorf("Length = %q, want \"2.0s\"", view.Length)
	}
	if view.ConfidencePct != "100.0%" {
		t.Errorf("ConfidencePct = %q, want \"100.0%%\"", view.ConfidencePct)
	}
}

func TestNewTransitionViewDegenerate(t *testing.T) {
	cases := []struct {
		name string
		tr   db.Transition
	}{
		{"zero span", db.Transition{AverageRate: 0.01, StartedAt: 100, DetectedAt: 100, FrameCount: 10}},
		{"single frame", db.Transition{AverageRate: 0.01, StartedAt: 100, DetectedAt: 101, FrameCount: 1}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			view := newTransitionView(tc.tr)
			if view.RatePerSecond != 0 {
				t.Errorf("RatePerSecond = %v, want 0 when the frame rate is unknowable", view.RatePerSecond)
			}
		})
	}
}

func TestWebServer_StatusHandlerNoSources(t *testing.T) {
	tracker := fade.NewTracker(fade.DefaultAnalysisConfig())

	server := NewWebServer(WebServerConfig{Address: ":0", Tracker: tracker})

	req := httptest.NewRequest("GET", "/", nil)
	rr := httptest.NewRecorder()
	server.setupRoutes().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}

	if !strings.Contains(rr.Body.String(), "no sources registered yet") {
		t.Error("Response should contain the empty-state message")
	}
}

func TestWebServer_StatusHandlerUnknownPath(t *testing.T) {
	tracker := fade.NewTracker(fade.DefaultAnalysisConfig())
	server := NewWebServer(WebServerConfig{Address: ":0", Tracker: tracker})

	req := httptest.NewRequest("GET", "/nonexistent", nil)
	rr := httptest.NewRecorder()
	server.setupRoutes().ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown path, got %d", rr.Code)
	}
}

func TestWebServer_StatusHandlerTemplateError(t *testing.T) {
	tracker := fade.NewTracker(fade.DefaultAnalysisConfig())
	mock := NewMockTemplateProvider(map[string]string{
		"status.html": "unused",
	})
	mock.ExecuteError = errors.New("boom")

	server := NewWebServer(WebServerConfig{
		Address:   ":0",
		Tracker:   tracker,
		Templates: mock,
	})

	req := httptest.NewRequest("GET", "/", nil)
	rr := httptest.NewRecorder()
	server.setupRoutes().ServeHTTP(rr, req)

	if rr.Code != http.StatusInternalServerError {
		t.Errorf("expected 500 on template failure, got %d", rr.Code)
	}

	if len(mock.ExecuteCalls) != 1 {
		t.Fatalf("expected 1 template call, got %d", len(mock.ExecuteCalls))
	}
	if mock.ExecuteCalls[0].Name != "status.html" {
		t.Errorf("expected template 'status.html', got %q", mock.ExecuteCalls[0].Name)
	}
}

func TestWebServer_HealthHandler(t *testing.T) {
	tracker := fade.NewTracker(fade.DefaultAnalysisConfig())
	server := NewWebServer(WebServerConfig{Address: ":0", Tracker: tracker})

	req, err := http.NewRequest("GET", "/health", nil)
	if err != nil {
		t.Fatal(err)
	}

	rr := httptest.NewRecorder()
	server.setupRoutes().ServeHTTP(rr, req)

	if status := rr.Code; status != http.StatusOK {
		t.Errorf("Health handler returned wrong status code: got %v want %v",
			status, http.StatusOK)
	}

	expected := "application/json"
	if ctype := rr.Header().Get("Content-Type"); ctype != expected {
		t.Errorf("Health handler returned wrong content type: got %v want %v",
			ctype, expected)
	}

	body := rr.Body.String()

	if !strings.Contains(body, `"status": "ok"`) {
		t.Error("Response should contain status: ok (with spaces)")
	}

	if !strings.Contains(body, `"service": "fade-monitor"`) {
		t.Error("Response should contain service: fade-monitor (with spaces)")
	}
}

func TestWebServer_StartStop(t *testing.T) {
	tracker := fade.NewTracker(fade.DefaultAnalysisConfig())

	server := NewWebServer(WebServerConfig{
		Address: ":0", // Use port 0 to get an available port
		Tracker: tracker,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errChan := make(chan error, 1)
	go func() {
		err := server.Start(ctx)
		if err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	// Give the server time to start
	time.Sleep(50 * time.Millisecond)

	cancel()

	// Wait a bit for the server to stop
	time.Sleep(50 * time.Millisecond)

	select {
	case err := <-errChan:
		t.Fatalf("Server start failed: %v", err)
	default:
	}
}

func TestWebServer_TraceHandler(t *testing.T) {
	ring := fade.NewRingTraceSink(64)
	tracker := fade.NewTracker(fade.DefaultAnalysisConfig()).WithTraceSink(ring)
	id := tracker.Register("cam-a")
	for i := 0; i < 3; i++ {
		tracker.Observe(id, fade.FrameSample{
			Luminance:  0.4,
			Variance:   0.01,
			CapturedAt: float64(i),
		})
	}

	server := NewWebServer(WebServerConfig{
		Address: ":0",
		Tracker: tracker,
		Trace:   ring,
	})

	req := httptest.NewRequest("GET", "/trace?source="+string(id), nil)
	rr := httptest.NewRecorder()
	server.setupRoutes().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var events []fade.TraceEvent
	if err := json.Unmarshal(rr.Body.Bytes(), &events); err != nil {
		t.Fatalf("failed to decode trace response: %v", err)
	}

	if len(events) == 0 {
		t.Fatal("expected trace events for an observed source")
	}

	for _, ev := range events {
		if ev.Source != id {
			t.Errorf("expected only events for %s, got %s", id, ev.Source)
		}
	}
}

func TestWebServer_TraceHandlerAllSources(t *testing.T) {
	ring := fade.NewRingTraceSink(64)
	tracker := fade.NewTracker(fade.DefaultAnalysisConfig()).WithTraceSink(ring)
	a := tracker.Register("cam-a")
	b := tracker.Register("cam-b")
	tracker.Observe(a, fade.FrameSample{Luminance: 0.4, CapturedAt: 1})
	tracker.Observe(b, fade.FrameSample{Luminance: 0.6, CapturedAt: 1})

	server := NewWebServer(WebServerConfig{Address: ":0", Tracker: tracker, Trace: ring})

	req := httptest.NewRequest("GET", "/trace", nil)
	rr := httptest.NewRecorder()
	server.setupRoutes().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}

	var events []fade.TraceEvent
	if err := json.Unmarshal(rr.Body.Bytes(), &events); err != nil {
		t.Fatalf("failed to decode trace response: %v", err)
	}

	seen := map[fade.SourceID]bool{}
	for _, ev := range events {
		seen[ev.Source] = true
	}
	if !seen[a] || !seen[b] {
		t.Errorf("expected events from both sources, got %v", seen)
	}
}

func TestWebServer_TraceHandlerErrors(t *testing.T) {
	ring := fade.NewRingTraceSink(64)
	tracker := fade.NewTracker(fade.DefaultAnalysisConfig()).WithTraceSink(ring)
	tracker.Register("cam-a")

	server := NewWebServer(WebServerConfig{Address: ":0", Tracker: tracker, Trace: ring})
	mux := server.setupRoutes()

	cases := []struct {
		name string
		path string
		want int
	}{
		{"unknown source", "/trace?source=ghost", http.StatusNotFound},
		{"invalid n", "/trace?n=abc", http.StatusBadRequest},
		{"zero n", "/trace?n=0", http.StatusBadRequest},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", tc.path, nil)
			rr := httptest.NewRecorder()
			mux.ServeHTTP(rr, req)
			if rr.Code != tc.want {
				t.Errorf("expected %d, got %d", tc.want, rr.Code)
			}
		})
	}
}

func TestWebServer_TraceHandlerNoRing(t *testing.T) {
	tracker := fade.NewTracker(fade.DefaultAnalysisConfig())
	server := NewWebServer(WebServerConfig{Address: ":0", Tracker: tracker})

	req := httptest.NewRequest("GET", "/trace", nil)
	rr := httptest.NewRecorder()
	server.setupRoutes().ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Errorf("expected 404 when no trace ring is configured, got %d", rr.Code)
	}
}
