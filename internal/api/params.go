package api

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"

	"github.com/banshee-data/fade.report/internal/fade"
	"github.com/banshee-data/fade.report/internal/httputil"
)

// TuningParams mirrors fade.AnalysisConfig with pointer fields so a
// POST can adjust a subset of parameters in one call.
type TuningParams struct {
	RollingWindow            *int     `json:"rolling_window,omitempty"`
	MinFadeFrames            *int     `json:"min_fade_frames,omitempty"`
	FadeThreshold            *float64 `json:"fade_threshold,omitempty"`
	FadeConsistencyThreshold *float64 `json:"fade_consistency_threshold,omitempty"`
	BlackLuminanceThreshold  *float64 `json:"black_luminance_threshold,omitempty"`
	BlackVarianceThreshold   *float64 `json:"black_variance_threshold,omitempty"`
	RequiredBlackDuration    *float64 `json:"required_black_duration,omitempty"`
}

// TuningView is a full config rendered with the same field names the
// POST body uses.
type TuningView struct {
	RollingWindow            int     `json:"rolling_window"`
	MinFadeFrames            int     `json:"min_fade_frames"`
	FadeThreshold            float64 `json:"fade_threshold"`
	FadeConsistencyThreshold float64 `json:"fade_consistency_threshold"`
	BlackLuminanceThreshold  float64 `json:"black_luminance_threshold"`
	BlackVarianceThreshold   float64 `json:"black_variance_threshold"`
	RequiredBlackDuration    float64 `json:"required_black_duration"`
}

func viewOf(cfg fade.AnalysisConfig) TuningView {
	return TuningView{
		RollingWindow:            cfg.RollingWindow,
		MinFadeFrames:            cfg.MinFadeFrames,
		FadeThreshold:            cfg.FadeThreshold,
		FadeConsistencyThreshold: cfg.FadeConsistencyThreshold,
		BlackLuminanceThreshold:  cfg.BlackLuminanceThreshold,
		BlackVarianceThreshold:   cfg.BlackVarianceThreshold,
		RequiredBlackDuration:    cfg.RequiredBlackDuration,
	}
}

// apply overlays the non-nil fields onto cfg.
func (p TuningParams) apply(cfg fade.AnalysisConfig) fade.AnalysisConfig {
	if p.RollingWindow != nil {
		cfg.RollingWindow = *p.RollingWindow
	}
	if p.MinFadeFrames != nil {
		cfg.MinFadeFrames = *p.MinFadeFrames
	}
	if p.FadeThreshold != nil {
		cfg.FadeThreshold = *p.FadeThreshold
	}
	if p.FadeConsistencyThreshold != nil {
		cfg.FadeConsistencyThreshold = *p.FadeConsistencyThreshold
	}
	if p.BlackLuminanceThreshold != nil {
		cfg.BlackLuminanceThreshold = *p.BlackLuminanceThreshold
	}
	if p.BlackVarianceThreshold != nil {
		cfg.BlackVarianceThreshold = *p.BlackVarianceThreshold
	}
	if p.RequiredBlackDuration != nil {
		cfg.RequiredBlackDuration = *p.RequiredBlackDuration
	}
	return cfg
}

// handleParams serves GET (current tuning) and POST (partial update,
// validated and applied atomically to the tracker).
func (s *Server) handleParams(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		httputil.WriteJSONOK(w, viewOf(s.tracker.Config()))

	case http.MethodPost:
		var req TuningParams
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httputil.BadRequest(w, "Invalid request body")
			return
		}

		cfg := req.apply(s.tracker.Config())
		if err := s.tracker.SetConfig(cfg); err != nil {
			httputil.BadRequest(w, fmt.Sprintf("Invalid analysis config: %v", err))
			return
		}

		log.Printf("Analysis config updated via API: %+v", cfg)
		httputil.WriteJSONOK(w, viewOf(cfg))

	default:
		httputil.MethodNotAllowed(w)
	}
}
