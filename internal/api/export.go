package api

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/banshee-data/fade.report/internal/httputil"
	"github.com/banshee-data/fade.report/internal/security"
)

// exportDir anchors all transition exports. Callers supply a filename,
// not a destination; the directory is fixed so an API client cannot
// write outside controlled locations.
var exportDir = func() string {
	tmp := os.TempDir()
	abs, err := filepath.Abs(tmp)
	if err != nil {
		log.Printf("export: could not resolve absolute temp dir from %q: %v", tmp, err)
		return tmp
	}
	return filepath.Clean(abs)
}()

// safeExportPath turns a user-supplied name into an absolute path under
// exportDir. Only the final path component of the input is used, and the
// result must still pass the shared path validation.
func safeExportPath(userPath string) (string, error) {
	if userPath == "" {
		return "", fmt.Errorf("empty export path")
	}
	base := filepath.Base(userPath)
	if base == "." || base == ".." || base == "" {
		return "", fmt.Errorf("invalid export filename")
	}

	cleanPath := filepath.Clean(filepath.Join(exportDir, base))
	if cleanPath != exportDir && !strings.HasPrefix(cleanPath, exportDir+string(os.PathSeparator)) {
		return "", fmt.Errorf("export path escapes base directory")
	}

	if err := security.ValidateExportPath(cleanPath); err != nil {
		log.Printf("Security: rejected export path %q (from %q): %v", cleanPath, userPath, err)
		return "", fmt.Errorf("invalid export path: %w", err)
	}
	return cleanPath, nil
}

type exportRequest struct {
	Path   string  `json:"path"`
	Source string  `json:"source,omitempty"`
	Since  float64 `json:"since,omitempty"`
	Limit  int     `json:"limit,omitempty"`
}

type exportResponse struct {
	Path string `json:"path"`
	Rows int    `json:"rows"`
}

// exportTransitions writes recorded transitions to a CSV file on the
// daemon host and reports where they landed. POST /api/export/transitions
// with {"path": "transitions.csv", "source": ..., "since": ..., "limit": ...}.
func (s *Server) exportTransitions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}

	var req exportRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4096)).Decode(&req); err != nil {
		httputil.BadRequest(w, fmt.Sprintf("Invalid export request: %v", err))
		return
	}
	if req.Since < 0 {
		httputil.BadRequest(w, "Invalid 'since' parameter")
		return
	}
	if req.Limit < 0 {
		httputil.BadRequest(w, "Invalid 'limit' parameter")
		return
	}

	outPath, err := safeExportPath(req.Path)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}

	transitions, err := s.db.Transitions(r.Context(), req.Source, req.Since, req.Limit)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("Failed to retrieve transitions: %v", err))
		return
	}

	f, err := os.Create(outPath)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("Failed to create export file: %v", err))
		return
	}
	defer f.Close()

	cw := csv.NewWriter(f)
	header := []string{
		"id", "run_id", "source_id", "label", "verdict", "confidence",
		"average_rate", "luminance", "variance", "edge_density",
		"started_at", "detected_at", "frame_count",
	}
	if err := cw.Write(header); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("Failed to write export: %v", err))
		return
	}
	for _, tr := range transitions {
		row := []string{
			strconv.FormatInt(tr.ID, 10),
			tr.RunID,
			tr.SourceID,
			tr.Label,
			tr.Verdict,
			strconv.FormatFloat(tr.Confidence, 'f', -1, 64),
			strconv.FormatFloat(tr.AverageRate, 'f', -1, 64),
			strconv.FormatFloat(tr.Luminance, 'f', -1, 64),
			strconv.FormatFloat(tr.Variance, 'f', -1, 64),
			strconv.FormatFloat(tr.EdgeDensity, 'f', -1, 64),
			strconv.FormatFloat(tr.StartedAt, 'f', -1, 64),
			strconv.FormatFloat(tr.DetectedAt, 'f', -1, 64),
			strconv.Itoa(tr.FrameCount),
		}
		if err := cw.Write(row); err != nil {
			httputil.InternalServerError(w, fmt.Sprintf("Failed to write export: %v", err))
			return
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("Failed to write export: %v", err))
		return
	}

	log.Printf("exported %d transitions to %s", len(transitions), outPath)
	httputil.WriteJSONOK(w, exportResponse{Path: outPath, Rows: len(transitions)})
}
