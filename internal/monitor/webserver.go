package monitor

import (
	"context"
	"embed"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/banshee-data/fade.report/internal/db"
	"github.com/banshee-data/fade.report/internal/fade"
	"github.com/banshee-data/fade.report/internal/httputil"
	"github.com/banshee-data/fade.report/internal/ingest"
	"github.com/banshee-data/fade.report/internal/units"
)

//go:embed status.html
var statusHTML embed.FS

// WebServer serves the human-facing monitor: the status page, debug
// charts and the classifier trace view. The JSON API for machine
// consumers lives in internal/api; this server is for operators.
type WebServer struct {
	address       string
	tracker       *fade.Tracker
	db            *db.DB
	trace         *fade.RingTraceSink
	feed          *ingest.PacketStats
	udpPort       int
	dimmerEnabled bool
	dimmerPort    string
	templates     TemplateProvider
	server        *http.Server
	started       time.Time
}

// WebServerConfig contains configuration options for the monitor server.
type WebServerConfig struct {
	Address       string
	Tracker       *fade.Tracker
	DB            *db.DB
	Trace         *fade.RingTraceSink
	Feed          *ingest.PacketStats
	UDPPort       int
	DimmerEnabled bool
	DimmerPort    string

	// Templates overrides the embedded templates; nil selects them.
	Templates TemplateProvider
}

// NewWebServer creates a monitor server with the provided configuration.
func NewWebServer(config WebServerConfig) *WebServer {
	templates := config.Templates
	if templates == nil {
		templates = NewEmbeddedTemplateProvider(statusHTML, "")
	}

	ws := &WebServer{
		address:       config.Address,
		tracker:       config.Tracker,
		db:            config.DB,
		trace:         config.Trace,
		feed:          config.Feed,
		udpPort:       config.UDPPort,
		dimmerEnabled: config.DimmerEnabled,
		dimmerPort:    config.DimmerPort,
		templates:     templates,
		started:       time.Now(),
	}

	ws.server = &http.Server{
		Addr:    ws.address,
		Handler: ws.setupRoutes(),
	}

	return ws
}

// Start runs the HTTP server until the context is cancelled, then shuts
// it down gracefully.
func (ws *WebServer) Start(ctx context.Context) error {
	go func() {
		log.Printf("Starting monitor server on %s", ws.address)
		if err := ws.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("failed to start monitor server: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("shutting down monitor server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()

	if err := ws.server.Shutdown(shutdownCtx); err != nil {
		log.Printf("monitor server shutdown error: %v", err)
		if err := ws.server.Close(); err != nil {
			log.Printf("monitor server force close error: %v", err)
		}
	}

	log.Printf("monitor server routine stopped")
	return nil
}

// Close shuts down the web server immediately.
func (ws *WebServer) Close() error {
	if ws.server != nil {
		return ws.server.Close()
	}
	return nil
}

// setupRoutes configures the HTTP routes and handlers.
func (ws *WebServer) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/", ws.handleStatus)
	mux.HandleFunc("/health", ws.handleHealth)
	mux.HandleFunc("/dashboard", ws.handleDashboard)
	mux.HandleFunc("/charts/source", ws.handleSourceChart)
	mux.HandleFunc("/charts/confidence", ws.handleConfidenceChart)
	mux.HandleFunc("/charts/verdicts", ws.handleVerdictsChart)
	mux.HandleFunc("/plots/source", ws.handleSourcePlot)
	mux.HandleFunc("/trace", ws.handleTrace)

	return mux
}

// resolveSource interprets the request's source parameter as a tracker
// handle first and a label second.
func (ws *WebServer) resolveSource(r *http.Request) (fade.SourceID, string, bool) {
	value := r.URL.Query().Get("source")
	if value == "" {
		return "", "", false
	}
	id := fade.SourceID(value)
	if label := ws.tracker.Label(id); label != "" {
		return id, label, true
	}
	if id, ok := ws.tracker.Lookup(value); ok {
		return id, value, true
	}
	return "", "", false
}

// handleHealth handles the health check endpoint.
func (ws *WebServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"status": "ok", "service": "fade-monitor", "timestamp": "%s"}`,
		time.Now().UTC().Format(time.RFC3339))
}

// sourceView is one status-page source row with display fields derived
// from the raw snapshot. Slope is the least-squares luminance slope over
// the source's current window, negative while darkening.
type sourceView struct {
	fade.SourceInfo
	ConfidencePct string
	Slope         float64
}

// transitionView is one status-page transition row. RatePerSecond is the
// stored per-frame rate converted at the episode's own observed frame
// rate; Length is the formatted episode span.
type transitionView struct {
	db.Transition
	ConfidencePct string
	RatePerSecond float64
	Length        string
}

func newTransitionView(tr db.Transition) transitionView {
	span := tr.DetectedAt - tr.StartedAt
	view := transitionView{
		Transition:    tr,
		ConfidencePct: units.Percent(tr.Confidence),
		Length:        units.Seconds(span),
	}
	if span > 0 && tr.FrameCount > 1 {
		fps := float64(tr.FrameCount-1) / span
		view.RatePerSecond = units.PerSecond(tr.AverageRate, fps)
	}
	return view
}

// handleStatus renders the main status page.
func (ws *WebServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html")

	dimmerStatus := "disabled"
	if ws.dimmerEnabled {
		dimmerStatus = fmt.Sprintf("enabled (%s)", ws.dimmerPort)
	}

	var ingestTotals *ingest.PacketStatsSnapshot
	if ws.feed != nil {
		totals := ws.feed.Totals()
		ingestTotals = &totals
	}

	infos := ws.tracker.Sources()
	sources := make([]sourceView, 0, len(infos))
	for _, info := range infos {
		sources = append(sources, sourceView{
			SourceInfo:    info,
			ConfidencePct: units.Percent(info.Verdict.Confidence),
			Slope:         ws.tracker.LuminanceSlope(info.ID),
		})
	}

	var transitions []transitionView
	if ws.db != nil {
		recent, err := ws.db.Transitions(r.Context(), "", 0, 10)
		if err != nil {
			log.Printf("monitor: failed to load recent transitions: %v", err)
		} else {
			transitions = make([]transitionView, 0, len(recent))
			for _, tr := range recent {
				transitions = append(transitions, newTransitionView(tr))
			}
		}
	}

	data := struct {
		HTTPAddress  string
		UDPPort      int
		DimmerStatus string
		Uptime       string
		Sources      []sourceView
		Analysis     fade.AnalysisStatsSnapshot
		Ingest       *ingest.PacketStatsSnapshot
		Transitions  []transitionView
	}{
		HTTPAddress:  ws.address,
		UDPPort:      ws.udpPort,
		DimmerStatus: dimmerStatus,
		Uptime:       time.Since(ws.started).Round(time.Second).String(),
		Sources:      sources,
		Analysis:     ws.tracker.Stats().Totals(),
		Ingest:       ingestTotals,
		Transitions:  transitions,
	}

	if err := ws.templates.ExecuteTemplate(w, "status.html", data); err != nil {
		http.Error(w, "Error executing template: "+err.Error(), http.StatusInternalServerError)
		return
	}
}

// handleTrace returns recent classifier trace events as JSON, newest
// first. Query params: source (optional handle or label), n (optional,
// default 100).
func (ws *WebServer) handleTrace(w http.ResponseWriter, r *http.Request) {
	if ws.trace == nil {
		httputil.NotFound(w, "trace ring not configured")
		return
	}

	var id fade.SourceID
	if r.URL.Query().Get("source") != "" {
		resolved, _, ok := ws.resolveSource(r)
		if !ok {
			httputil.NotFound(w, "unknown source")
			return
		}
		id = resolved
	}

	n := 100
	if v := r.URL.Query().Get("n"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 1 {
			httputil.BadRequest(w, "Invalid 'n' parameter")
			return
		}
		n = parsed
	}

	events := ws.trace.Recent(id, n)
	if events == nil {
		events = []fade.TraceEvent{}
	}
	httputil.WriteJSONOK(w, events)
}
