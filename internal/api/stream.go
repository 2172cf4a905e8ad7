package api

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"

	"github.com/banshee-data/fade.report/internal/httputil"
)

// streamVerdicts serves the tracker's verdict feed as Server-Sent
// Events, one JSON event per observed frame. Slow consumers miss
// events rather than stalling the tracker; clients needing a complete
// record should query /api/transitions instead.
func (s *Server) streamVerdicts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		httputil.InternalServerError(w, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable buffering for nginx

	id, events := s.tracker.Subscribe()
	defer s.tracker.Unsubscribe(id)

	// Send an initial comment to establish the stream.
	fmt.Fprint(w, ": connected\n\n")
	flusher.Flush()

	for {
		select {
		case ev, open := <-events:
			if !open {
				return
			}
			payload, err := json.Marshal(ev)
			if err != nil {
				log.Printf("Failed to marshal verdict event: %v", err)
				continue
			}
			if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
				return
			}
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}
