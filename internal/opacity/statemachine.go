// Package opacity turns per-frame fade verdicts into smoothly ramped
// overlay levels and drives them out to the dimmer console. The state
// machine decides when a transition is warranted; the driver samples the
// resulting level on a fixed cadence and writes it to the wire.
package opacity

import (
	"fmt"
	"sync"
	"time"

	"github.com/banshee-data/fade.report/internal/fade"
	"github.com/banshee-data/fade.report/internal/timeutil"
)

// Config holds the transition rules shared by every per-source machine.
type Config struct {
	ConfidenceThreshold   float64       // Minimum verdict confidence to start or reverse a ramp
	MinTransitionInterval time.Duration // Cooldown between ramp starts
	TransitionDuration    time.Duration // Wall time for a full ramp between 0 and 1
}

// DefaultConfig returns the overlay transition defaults. The confidence
// threshold sits in the observed useful range of 0.6 to 0.8.
func DefaultConfig() Config {
	return Config{
		ConfidenceThreshold:   0.7,
		MinTransitionInterval: 2 * time.Second,
		TransitionDuration:    1500 * time.Millisecond,
	}
}

// Validate checks the configuration for values that would stall or thrash
// the overlay.
func (c Config) Validate() error {
	if c.ConfidenceThreshold < 0 || c.ConfidenceThreshold > 1 {
		return fmt.Errorf("confidence threshold %g out of range [0,1]", c.ConfidenceThreshold)
	}
	if c.MinTransitionInterval < 0 {
		return fmt.Errorf("min transition interval %v is negative", c.MinTransitionInterval)
	}
	if c.TransitionDuration <= 0 {
		return fmt.Errorf("transition duration %v must be positive", c.TransitionDuration)
	}
	return nil
}

// withDefaults fills zero or out-of-range fields with the DefaultConfig
// values. A zero MinTransitionInterval is kept: it means no cooldown.
func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.ConfidenceThreshold <= 0 || c.ConfidenceThreshold > 1 {
		c.ConfidenceThreshold = def.ConfidenceThreshold
	}
	if c.MinTransitionInterval < 0 {
		c.MinTransitionInterval = def.MinTransitionInterval
	}
	if c.TransitionDuration <= 0 {
		c.TransitionDuration = def.TransitionDuration
	}
	return c
}

// OverlayStateMachine ramps one source's overlay level between 0 and 1 in
// response to fade verdicts. A fade-in verdict ramps toward 1, a fade-out
// or potential fade-out verdict ramps toward 0, and none never starts a
// ramp. The machine starts at level 0.
//
// Verdicts arriving mid-ramp are ignored unless they reverse direction, in
// which case the ramp restarts from the current level toward the new
// target. Ramp starts are gated by MinTransitionInterval measured from the
// previous ramp start; reversals bypass the gate so a wrong call can be
// corrected immediately.
type OverlayStateMachine struct {
	cfg   Config
	clock timeutil.Clock

	mu        sync.Mutex
	level     float64   // resting level while no ramp is active
	target    float64   // ramp destination
	rampFrom  float64   // level at ramp start
	rampStart time.Time // start of the active ramp
	lastStart time.Time // start of the most recent ramp, for the cooldown gate
	active    bool
}

// NewOverlayStateMachine creates a machine at level 0 using the given
// transition rules and clock. Zero config fields fall back to defaults.
func NewOverlayStateMachine(cfg Config, clock timeutil.Clock) *OverlayStateMachine {
	return &OverlayStateMachine{
		cfg:   cfg.withDefaults(),
		clock: clock,
	}
}

// targetFor maps a verdict type to its overlay target level.
func targetFor(t fade.VerdictType) (float64, bool) {
	switch t {
	case fade.VerdictFadeIn:
		return 1.0, true
	case fade.VerdictFadeOut, fade.VerdictPotentialFadeOut:
		return 0.0, true
	default:
		return 0, false
	}
}

// Apply feeds one verdict into the machine and reports whether it started
// or redirected a ramp.
func (m *OverlayStateMachine) Apply(verdict fade.FadeVerdict) bool {
	target, ok := targetFor(verdict.Type)
	if !ok {
		return false
	}
	if verdict.Confidence < m.cfg.ConfidenceThreshold {
		return false
	}

	now := m.clock.Now()

	m.mu.Lock()
	defer m.mu.Unlock()
	m.settle(now)

	if m.active {
		if target == m.target {
			return false
		}
		// Reversal: restart from wherever the ramp has reached.
		m.rampFrom = m.levelAt(now)
		m.rampStart = now
		m.lastStart = now
		m.target = target
		return true
	}

	if m.level == target {
		return false
	}
	if !m.lastStart.IsZero() && now.Sub(m.lastStart) < m.cfg.MinTransitionInterval {
		return false
	}

	m.rampFrom = m.level
	m.rampStart = now
	m.lastStart = now
	m.target = target
	m.active = true
	return true
}

// Level returns the overlay level at the given time, interpolating along
// the active ramp.
func (m *OverlayStateMachine) Level(now time.Time) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settle(now)
	return m.levelAt(now)
}

// State returns the level, ramp target, and whether a ramp is active at
// the given time. The target equals the level while idle.
func (m *OverlayStateMachine) State(now time.Time) (level, target float64, transitioning bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settle(now)
	level = m.levelAt(now)
	if !m.active {
		return level, level, false
	}
	return level, m.target, true
}

// settle completes the active ramp if its duration has fully elapsed.
// Callers must hold m.mu.
func (m *OverlayStateMachine) settle(now time.Time) {
	if !m.active {
		return
	}
	if now.Sub(m.rampStart) >= m.cfg.TransitionDuration {
		m.level = m.target
		m.active = false
	}
}

// levelAt interpolates the level at now. Callers must hold m.mu.
func (m *OverlayStateMachine) levelAt(now time.Time) float64 {
	if !m.active {
		return m.level
	}
	f := float64(now.Sub(m.rampStart)) / float64(m.cfg.TransitionDuration)
	if f < 0 {
		f = 0
	}
	if f > 1 {
		f = 1
	}
	return m.rampFrom + (m.target-m.rampFrom)*f
}
