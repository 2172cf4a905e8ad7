package monitor

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/banshee-data/fade.report/internal/fade"
)

func TestSourceChart(t *testing.T) {
	tracker, id := seedTracker(t)
	server := NewWebServer(WebServerConfig{Address: ":0", Tracker: tracker})
	mux := server.setupRoutes()

	req := httptest.NewRequest("GET", "/charts/source?source="+string(id), nil)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	if ctype := rr.Header().Get("Content-Type"); !strings.HasPrefix(ctype, "text/html") {
		t.Errorf("expected text/html content type, got %q", ctype)
	}

	body := rr.Body.String()
	if !strings.Contains(body, "luminance") {
		t.Error("chart should include the luminance series")
	}
	if !strings.Contains(body, "cam-a") {
		t.Error("chart subtitle should name the source")
	}
}

func TestSourceChartByLabel(t *testing.T) {
	tracker, _ := seedTracker(t)
	server := NewWebServer(WebServerConfig{Address: ":0", Tracker: tracker})

	req := httptest.NewRequest("GET", "/charts/source?source=cam-a", nil)
	rr := httptest.NewRecorder()
	server.setupRoutes().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 resolving by label, got %d", rr.Code)
	}
}

func TestSourceChartUnknownSource(t *testing.T) {
	tracker := fade.NewTracker(fade.DefaultAnalysisConfig())
	server := NewWebServer(WebServerConfig{Address: ":0", Tracker: tracker})

	req := httptest.NewRequest("GET", "/charts/source?source=ghost", nil)
	rr := httptest.NewRecorder()
	server.setupRoutes().ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown source, got %d", rr.Code)
	}
}

func TestSourceChartNoHistory(t *testing.T) {
	tracker := fade.NewTracker(fade.DefaultAnalysisConfig())
	tracker.Register("cam-a")
	server := NewWebServer(WebServerConfig{Address: ":0", Tracker: tracker})

	req := httptest.NewRequest("GET", "/charts/source?source=cam-a", nil)
	rr := httptest.NewRecorder()
	server.setupRoutes().ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Errorf("expected 404 for source without history, got %d", rr.Code)
	}
}

func TestConfidenceChart(t *testing.T) {
	ring := fade.NewRingTraceSink(64)
	tracker := fade.NewTracker(fade.DefaultAnalysisConfig()).WithTraceSink(ring)
	id := tracker.Register("cam-a")
	for i := 0; i < 4; i++ {
		tracker.Observe(id, fade.FrameSample{Luminance: 0.5, CapturedAt: float64(i)})
	}

	server := NewWebServer(WebServerConfig{Address: ":0", Tracker: tracker, Trace: ring})

	req := httptest.NewRequest("GET", "/charts/confidence?source="+string(id), nil)
	rr := httptest.NewRecorder()
	server.setupRoutes().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	if !strings.Contains(rr.Body.String(), "confidence") {
		t.Error("chart should include the confidence series")
	}
}

func TestConfidenceChartNoRing(t *testing.T) {
	tracker, id := seedTracker(t)
	server := NewWebServer(WebServerConfig{Address: ":0", Tracker: tracker})

	req := httptest.NewRequest("GET", "/charts/confidence?source="+string(id), nil)
	rr := httptest.NewRecorder()
	server.setupRoutes().ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Errorf("expected 404 when no trace ring is configured, got %d", rr.Code)
	}
}

func TestVerdictsChart(t *testing.T) {
	tracker, _ := seedTracker(t)
	server := NewWebServer(WebServerConfig{Address: ":0", Tracker: tracker})

	req := httptest.NewRequest("GET", "/charts/verdicts", nil)
	rr := httptest.NewRecorder()
	server.setupRoutes().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}

	body := rr.Body.String()
	if !strings.Contains(body, "Verdict Totals") {
		t.Error("chart should carry the verdict totals title")
	}
	if !strings.Contains(body, "fade_out") {
		t.Error("chart should list the fade_out bucket")
	}
}

func TestDashboard(t *testing.T) {
	tracker, _ := seedTracker(t)
	server := NewWebServer(WebServerConfig{Address: ":0", Tracker: tracker})

	req := httptest.NewRequest("GET", "/dashboard", nil)
	rr := httptest.NewRecorder()
	server.setupRoutes().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}

	body := rr.Body.String()
	if !strings.Contains(body, "/charts/verdicts") {
		t.Error("dashboard should embed the verdicts chart")
	}
	if strings.Contains(body, "?source=") {
		t.Error("dashboard without a source should not thread a source param")
	}
}

func TestDashboardWithSource(t *testing.T) {
	tracker, _ := seedTracker(t)
	server := NewWebServer(WebServerConfig{Address: ":0", Tracker: tracker})

	req := httptest.NewRequest("GET", "/dashboard?source=cam-a", nil)
	rr := httptest.NewRecorder()
	server.setupRoutes().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}

	if !strings.Contains(rr.Body.String(), "/charts/source?source=cam-a") {
		t.Error("dashboard should thread the source into the chart iframes")
	}
}

func TestDashboardEscapesSource(t *testing.T) {
	tracker, _ := seedTracker(t)
	server := NewWebServer(WebServerConfig{Address: ":0", Tracker: tracker})

	req := httptest.NewRequest("GET", "/dashboard?source=%3Cscript%3E", nil)
	rr := httptest.NewRecorder()
	server.setupRoutes().ServeHTTP(rr, req)

	if strings.Contains(rr.Body.String(), "<script>") {
		t.Error("dashboard must escape the source parameter")
	}
}
