package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DefaultConfigPath is the path to the canonical tuning defaults file.
// This is the single source of truth for all default tuning values.
const DefaultConfigPath = "config/tuning.defaults.json"

// TuningConfig represents the root configuration for tuning parameters.
// The schema matches the /api/params endpoint so the same JSON can be
// used for both startup configuration and runtime updates.
type TuningConfig struct {
	// Analysis params
	RollingWindow            *int     `json:"rolling_window,omitempty"`
	MinFadeFrames            *int     `json:"min_fade_frames,omitempty"`
	FadeThreshold            *float64 `json:"fade_threshold,omitempty"`
	FadeConsistencyThreshold *float64 `json:"fade_consistency_threshold,omitempty"`
	BlackLuminanceThreshold  *float64 `json:"black_luminance_threshold,omitempty"`
	BlackVarianceThreshold   *float64 `json:"black_variance_threshold,omitempty"`
	RequiredBlackDuration    *float64 `json:"required_black_duration,omitempty"` // seconds

	// Overlay params
	OverlayConfidenceThreshold *float64 `json:"overlay_confidence_threshold,omitempty"`
	OverlayMinInterval         *string  `json:"overlay_min_interval,omitempty"` // duration string like "2s"
	OverlayTransition          *string  `json:"overlay_transition,omitempty"`   // duration string like "1500ms"

	// Maintenance params
	IdleEviction  *string `json:"idle_eviction,omitempty"`  // duration string like "5m"
	StatsInterval *string `json:"stats_interval,omitempty"` // duration string like "60s"
	TraceRingSize *int    `json:"trace_ring_size,omitempty"`
}

// EmptyTuningConfig returns a TuningConfig with all fields set to nil.
// Use LoadTuningConfig to load actual values from the defaults file.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// LoadTuningConfig loads a TuningConfig from a JSON file. The file must
// carry a .json extension and stay under the max file size. Fields
// omitted from the JSON retain their default values, so partial configs
// are safe.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical tuning defaults from
// DefaultConfigPath, searching the current directory and common parent
// directories. Panics if the file cannot be loaded; intended for test
// setup.
func MustLoadDefaultConfig() *TuningConfig {
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath,    // from internal/config/
		"../../../" + DefaultConfigPath, // deeper packages
		"../../../../" + DefaultConfigPath,
	}
	for _, path := range candidates {
		if cfg, err := LoadTuningConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are valid.
func (c *TuningConfig) Validate() error {
	if c.RollingWindow != nil && *c.RollingWindow < 2 {
		return fmt.Errorf("rolling_window must be at least 2, got %d", *c.RollingWindow)
	}
	if c.MinFadeFrames != nil && *c.MinFadeFrames < 2 {
		return fmt.Errorf("min_fade_frames must be at least 2, got %d", *c.MinFadeFrames)
	}
	if c.RollingWindow != nil && c.MinFadeFrames != nil && *c.MinFadeFrames > *c.RollingWindow {
		return fmt.Errorf("min_fade_frames %d exceeds rolling_window %d", *c.MinFadeFrames, *c.RollingWindow)
	}
	if c.FadeThreshold != nil && *c.FadeThreshold <= 0 {
		return fmt.Errorf("fade_threshold must be positive, got %f", *c.FadeThreshold)
	}
	if c.FadeConsistencyThreshold != nil {
		if *c.FadeConsistencyThreshold <= 0 || *c.FadeConsistencyThreshold > 1 {
			return fmt.Errorf("fade_consistency_threshold must be in (0,1], got %f", *c.FadeConsistencyThreshold)
		}
	}
	if c.BlackLuminanceThreshold != nil && *c.BlackLuminanceThreshold <= 0 {
		return fmt.Errorf("black_luminance_threshold must be positive, got %f", *c.BlackLuminanceThreshold)
	}
	if c.BlackVarianceThreshold != nil && *c.BlackVarianceThreshold <= 0 {
		return fmt.Errorf("black_variance_threshold must be positive, got %f", *c.BlackVarianceThreshold)
	}
	if c.RequiredBlackDuration != nil && *c.RequiredBlackDuration <= 0 {
		return fmt.Errorf("required_black_duration must be positive, got %f", *c.RequiredBlackDuration)
	}
	if c.OverlayConfidenceThreshold != nil {
		if *c.OverlayConfidenceThreshold < 0 || *c.OverlayConfidenceThreshold > 1 {
			return fmt.Errorf("overlay_confidence_threshold must be between 0 and 1, got %f", *c.OverlayConfidenceThreshold)
		}
	}
	for name, v := range map[string]*string{
		"overlay_min_interval": c.OverlayMinInterval,
		"overlay_transition":   c.OverlayTransition,
		"idle_eviction":        c.IdleEviction,
		"stats_interval":       c.StatsInterval,
	} {
		if v != nil && *v != "" {
			if _, err := time.ParseDuration(*v); err != nil {
				return fmt.Errorf("invalid %s '%s': %w", name, *v, err)
			}
		}
	}
	if c.TraceRingSize != nil && *c.TraceRingSize < 0 {
		return fmt.Errorf("trace_ring_size must be non-negative, got %d", *c.TraceRingSize)
	}
	return nil
}

// GetRollingWindow returns the rolling_window value or the default.
func (c *TuningConfig) GetRollingWindow() int {
	if c.RollingWindow == nil {
		return 120
	}
	return *c.RollingWindow
}

// GetMinFadeFrames returns the min_fade_frames value or the default.
func (c *TuningConfig) GetMinFadeFrames() int {
	if c.MinFadeFrames == nil {
		return 30
	}
	return *c.MinFadeFrames
}

// GetFadeThreshold returns the fade_threshold value or the default.
func (c *TuningConfig) GetFadeThreshold() float64 {
	if c.FadeThreshold == nil {
		return 0.01
	}
	return *c.FadeThreshold
}

// GetFadeConsistencyThreshold returns the fade_consistency_threshold value or the default.
func (c *TuningConfig) GetFadeConsistencyThreshold() float64 {
	if c.FadeConsistencyThreshold == nil {
		return 0.40
	}
	return *c.FadeConsistencyThreshold
}

// GetBlackLuminanceThreshold returns the black_luminance_threshold value or the default.
func (c *TuningConfig) GetBlackLuminanceThreshold() float64 {
	if c.BlackLuminanceThreshold == nil {
		return 0.01
	}
	return *c.BlackLuminanceThreshold
}

// GetBlackVarianceThreshold returns the black_variance_threshold value or the default.
func (c *TuningConfig) GetBlackVarianceThreshold() float64 {
	if c.BlackVarianceThreshold == nil {
		return 0.001
	}
	return *c.BlackVarianceThreshold
}

// GetRequiredBlackDuration returns the required_black_duration value or the default.
func (c *TuningConfig) GetRequiredBlackDuration() float64 {
	if c.RequiredBlackDuration == nil {
		return 1.0
	}
	return *c.RequiredBlackDuration
}

// GetOverlayConfidenceThreshold returns the overlay_confidence_threshold value or the default.
func (c *TuningConfig) GetOverlayConfidenceThreshold() float64 {
	if c.OverlayConfidenceThreshold == nil {
		return 0.7
	}
	return *c.OverlayConfidenceThreshold
}

// GetOverlayMinInterval parses and returns the OverlayMinInterval as a time.Duration.
func (c *TuningConfig) GetOverlayMinInterval() time.Duration {
	return durationOrDefault(c.OverlayMinInterval, 2*time.Second)
}

// GetOverlayTransition parses and returns the OverlayTransition as a time.Duration.
func (c *TuningConfig) GetOverlayTransition() time.Duration {
	return durationOrDefault(c.OverlayTransition, 1500*time.Millisecond)
}

// GetIdleEviction parses and returns the IdleEviction as a time.Duration.
func (c *TuningConfig) GetIdleEviction() time.Duration {
	return durationOrDefault(c.IdleEviction, 5*time.Minute)
}

// GetStatsInterval parses and returns the StatsInterval as a time.Duration.
func (c *TuningConfig) GetStatsInterval() time.Duration {
	return durationOrDefault(c.StatsInterval, 60*time.Second)
}

// GetTraceRingSize returns the trace_ring_size value or the default.
func (c *TuningConfig) GetTraceRingSize() int {
	if c.TraceRingSize == nil {
		return 256
	}
	return *c.TraceRingSize
}

func durationOrDefault(v *string, def time.Duration) time.Duration {
	if v == nil || *v == "" {
		return def
	}
	d, err := time.ParseDuration(*v)
	if err != nil {
		return def
	}
	return d
}
