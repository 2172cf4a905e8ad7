package fade

import "fmt"

// AnalysisConfig holds the tunable parameters of the detection core. Zero
// values are invalid; construct with DefaultAnalysisConfig and override
// fields as needed. All parameters may be swapped at runtime via
// Tracker.SetConfig.
type AnalysisConfig struct {
	// RollingWindow is the per-source history capacity in frames
	// (e.g., 120 = four seconds at 30 fps). Oldest frames are evicted
	// FIFO.
	RollingWindow int

	// MinFadeFrames is the minimum history length before any
	// classification runs (e.g., 30). Below this every evaluation
	// returns none.
	MinFadeFrames int

	// FadeThreshold is the per-frame luminance delta regarded as fade
	// motion (e.g., 0.01). Most classifier gates scale off this value.
	FadeThreshold float64

	// FadeConsistencyThreshold is the minimum fraction of frame deltas
	// that must agree in sign and magnitude for a trend detection
	// (e.g., 0.40).
	FadeConsistencyThreshold float64

	// BlackLuminanceThreshold marks a frame as black when luminance
	// falls below it and the variance test also passes (e.g., 0.01;
	// deployments have run anywhere in 0.001–0.01).
	BlackLuminanceThreshold float64

	// BlackVarianceThreshold is the variance ceiling of the black-frame
	// predicate (e.g., 0.001).
	BlackVarianceThreshold float64

	// RequiredBlackDuration is how long a black run must persist, in
	// seconds of sample time, before the fade-out override fires
	// (e.g., 1.0; deployments have run 0.5–1.0).
	RequiredBlackDuration float64
}

// DefaultAnalysisConfig returns the production defaults.
func DefaultAnalysisConfig() AnalysisConfig {
	return AnalysisConfig{
		RollingWindow:            120,
		MinFadeFrames:            30,
		FadeThreshold:            0.01,
		FadeConsistencyThreshold: 0.40,
		BlackLuminanceThreshold:  0.01,
		BlackVarianceThreshold:   0.001,
		RequiredBlackDuration:    1.0,
	}
}

// Validate checks the configuration for values that would break the
// classifier's arithmetic.
func (c AnalysisConfig) Validate() error {
	if c.RollingWindow < 2 {
		return fmt.Errorf("rolling window %d: must be at least 2", c.RollingWindow)
	}
	if c.MinFadeFrames < 2 {
		return fmt.Errorf("min fade frames %d: must be at least 2", c.MinFadeFrames)
	}
	if c.MinFadeFrames > c.RollingWindow {
		return fmt.Errorf("min fade frames %d exceeds rolling window %d", c.MinFadeFrames, c.RollingWindow)
	}
	if c.FadeThreshold <= 0 {
		return fmt.Errorf("fade threshold %g: must be positive", c.FadeThreshold)
	}
	if c.FadeConsistencyThreshold <= 0 || c.FadeConsistencyThreshold > 1 {
		return fmt.Errorf("fade consistency threshold %g: must be in (0,1]", c.FadeConsistencyThreshold)
	}
	if c.BlackLuminanceThreshold <= 0 {
		return fmt.Errorf("black luminance threshold %g: must be positive", c.BlackLuminanceThreshold)
	}
	if c.BlackVarianceThreshold <= 0 {
		return fmt.Errorf("black variance threshold %g: must be positive", c.BlackVarianceThreshold)
	}
	if c.RequiredBlackDuration <= 0 {
		return fmt.Errorf("required black duration %g: must be positive", c.RequiredBlackDuration)
	}
	return nil
}

// isBlackFrame is the shared black-frame predicate: both tonal and
// textural darkness are required so dim but detailed content does not
// count as black.
func isBlackFrame(s FrameSample, cfg AnalysisConfig) bool {
	return s.Luminance < cfg.BlackLuminanceThreshold && s.Variance < cfg.BlackVarianceThreshold
}
