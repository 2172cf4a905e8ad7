// Package api serves the daemon's JSON surface: live tracker state,
// persisted transitions, dimmer levels, runtime tuning, and a streamed
// verdict feed.
package api

import (
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/banshee-data/fade.report/internal/db"
	"github.com/banshee-data/fade.report/internal/fade"
	"github.com/banshee-data/fade.report/internal/httputil"
	"github.com/banshee-data/fade.report/internal/ingest"
	"github.com/banshee-data/fade.report/internal/opacity"
	"github.com/banshee-data/fade.report/internal/version"
)

// ANSI escape codes for the request log line
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

// Server bundles the live tracker, persistence, the dimmer driver, and
// the feed counters behind the JSON API. The driver and feed references
// may be nil when the corresponding subsystem is disabled.
type Server struct {
	tracker *fade.Tracker
	db      *db.DB
	dimmer  *opacity.Driver
	feed    *ingest.PacketStats
	started time.Time
}

func NewServer(tracker *fade.Tracker, database *db.DB, dimmer *opacity.Driver, feed *ingest.PacketStats) *Server {
	return &Server{
		tracker: tracker,
		db:      database,
		dimmer:  dimmer,
		feed:    feed,
		started: time.Now(),
	}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		log.Printf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/sources", s.listSources)
	mux.HandleFunc("/api/sources/", s.handleSourceByID)
	mux.HandleFunc("/api/transitions", s.listTransitions)
	mux.HandleFunc("/api/export/transitions", s.exportTransitions)
	mux.HandleFunc("/api/opacity", s.showOpacity)
	mux.HandleFunc("/api/stream", s.streamVerdicts)
	mux.HandleFunc("/api/params", s.handleParams)
	mux.HandleFunc("/api/stats", s.showStats)
	mux.HandleFunc("/api/health", s.showHealth)
	mux.HandleFunc("/api/version", s.showVersion)
	return mux
}

func (s *Server) listSources(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	sources := s.tracker.Sources()
	if sources == nil {
		sources = []fade.SourceInfo{}
	}
	httputil.WriteJSONOK(w, sources)
}

// handleSourceByID routes /api/sources/{id}/verdict and
// /api/sources/{id}/history.
func (s *Server) handleSourceByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/api/sources/"), "/")
	if len(parts) != 2 || parts[0] == "" {
		httputil.NotFound(w, "not found")
		return
	}

	id := fade.SourceID(parts[0])
	label := s.tracker.Label(id)
	if label == "" {
		httputil.NotFound(w, fmt.Sprintf("unknown source %q", parts[0]))
		return
	}

	switch parts[1] {
	case "verdict":
		s.showVerdict(w, id, label)
	case "history":
		s.showHistory(w, r, id, label)
	default:
		httputil.NotFound(w, "not found")
	}
}

type sourceVerdictResponse struct {
	Source  fade.SourceID    `json:"source"`
	Label   string           `json:"label"`
	Verdict fade.FadeVerdict `json:"verdict"`
}

func (s *Server) showVerdict(w http.ResponseWriter, id fade.SourceID, label string) {
	verdict, _ := s.tracker.LastVerdict(id)
	httputil.WriteJSONOK(w, sourceVerdictResponse{
		Source:  id,
		Label:   label,
		Verdict: verdict,
	})
}

type sourceHistoryResponse struct {
	Source  fade.SourceID      `json:"source"`
	Label   string             `json:"label"`
	Samples []fade.FrameSample `json:"samples"`
}

func (s *Server) showHistory(w http.ResponseWriter, r *http.Request, id fade.SourceID, label string) {
	var samples []fade.FrameSample
	if n := r.URL.Query().Get("n"); n != "" {
		parsed, err := strconv.Atoi(n)
		if err != nil || parsed < 1 {
			httputil.BadRequest(w, "Invalid 'n' parameter")
			return
		}
		samples = s.tracker.Tail(id, parsed)
	} else {
		samples = s.tracker.History(id)
	}
	if samples == nil {
		samples = []fade.FrameSample{}
	}

	httputil.WriteJSONOK(w, sourceHistoryResponse{
		Source:  id,
		Label:   label,
		Samples: samples,
	})
}

func (s *Server) listTransitions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	query := r.URL.Query()
	source := query.Get("source")

	var since float64
	if v := query.Get("since"); v != "" {
		parsed, err := strconv.ParseFloat(v, 64)
		if err != nil || parsed < 0 {
			httputil.BadRequest(w, "Invalid 'since' parameter")
			return
		}
		since = parsed
	}

	var limit int
	if v := query.Get("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 1 {
			httputil.BadRequest(w, "Invalid 'limit' parameter")
			return
		}
		limit = parsed
	}

	transitions, err := s.db.Transitions(r.Context(), source, since, limit)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("Failed to retrieve transitions: %v", err))
		return
	}
	if transitions == nil {
		transitions = []db.Transition{}
	}
	httputil.WriteJSONOK(w, transitions)
}

func (s *Server) showOpacity(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	levels := []opacity.SourceLevel{}
	if s.dimmer != nil {
		if snapshot := s.dimmer.Snapshot(); snapshot != nil {
			levels = snapshot
		}
	}
	httputil.WriteJSONOK(w, levels)
}

type statsResponse struct {
	Sources       int                         `json:"sources"`
	Analysis      fade.AnalysisStatsSnapshot  `json:"analysis"`
	Ingest        *ingest.PacketStatsSnapshot `json:"ingest,omitempty"`
	UptimeSeconds float64                     `json:"uptime_seconds"`
}

func (s *Server) showStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	resp := statsResponse{
		Sources:       len(s.tracker.Sources()),
		Analysis:      s.tracker.Stats().Totals(),
		UptimeSeconds: time.Since(s.started).Seconds(),
	}
	if s.feed != nil {
		totals := s.feed.Totals()
		resp.Ingest = &totals
	}
	httputil.WriteJSONOK(w, resp)
}

func (s *Server) showHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	httputil.WriteJSONOK(w, map[string]interface{}{
		"status":         "ok",
		"uptime_seconds": time.Since(s.started).Seconds(),
	})
}

func (s *Server) showVersion(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	httputil.WriteJSONOK(w, map[string]string{
		"version":    version.Version,
		"git_sha":    version.GitSHA,
		"build_time": version.BuildTime,
	})
}
