package units

import (
	"math"
	"testing"
)

func TestPerSecond(t *testing.T) {
	tests := []struct {
		name     string
		perFrame float64
		fps      float64
		expected float64
	}{
		{"zero rate", 0.0, 30, 0.0},
		{"typical fade at 30fps", 0.01, 30, 0.3},
		{"typical fade at 60fps", 0.01, 60, 0.6},
		{"film rate", 0.02, 24, 0.48},
		{"zero fps", 0.01, 0, 0.0},
		{"negative fps", 0.01, -30, 0.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := PerSecond(tt.perFrame, tt.fps)
			if math.Abs(result-tt.expected) > 1e-12 {
				t.Errorf("PerSecond(%v, %v) = %v, want %v", tt.perFrame, tt.fps, result, tt.expected)
			}
		})
	}
}

func TestPerFrame(t *testing.T) {
	tests := []struct {
		name      string
		perSecond float64
		fps       float64
		expected  float64
	}{
		{"zero rate", 0.0, 30, 0.0},
		{"typical fade at 30fps", 0.3, 30, 0.01},
		{"typical fade at 60fps", 0.6, 60, 0.01},
		{"zero fps", 0.3, 0, 0.0},
		{"negative fps", 0.3, -30, 0.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := PerFrame(tt.perSecond, tt.fps)
			if math.Abs(result-tt.expected) > 1e-12 {
				t.Errorf("PerFrame(%v, %v) = %v, want %v", tt.perSecond, tt.fps, result, tt.expected)
			}
		})
	}
}

func TestPerFrameInvertsPerSecond(t *testing.T) {
	for _, fps := range []float64{24, 25, 30, 60} {
		rate := 0.0137
		back := PerFrame(PerSecond(rate, fps), fps)
		if math.Abs(back-rate) > 1e-12 {
			t.Errorf("round trip at %v fps: got %v, want %v", fps, back, rate)
		}
	}
}

func TestFramesForDuration(t *testing.T) {
	tests := []struct {
		name     string
		seconds  float64
		fps      float64
		expected int
	}{
		{"one second at 30fps", 1.0, 30, 30},
		{"ten seconds at 30fps", 10.0, 30, 300},
		{"half second at 25fps", 0.5, 25, 13},
		{"black duration default", 1.0, 60, 60},
		{"zero duration", 0.0, 30, 0},
		{"negative duration", -1.0, 30, 0},
		{"zero fps", 1.0, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := FramesForDuration(tt.seconds, tt.fps)
			if result != tt.expected {
				t.Errorf("FramesForDuration(%v, %v) = %d, want %d", tt.seconds, tt.fps, result, tt.expected)
			}
		})
	}
}

func TestPercent(t *testing.T) {
	tests := []struct {
		name     string
		fraction float64
		expected string
	}{
		{"zero", 0.0, "0.0%"},
		{"half", 0.5, "50.0%"},
		{"typical confidence", 0.875, "87.5%"},
		{"full", 1.0, "100.0%"},
		{"above range clamps", 1.5, "100.0%"},
		{"below range clamps", -0.1, "0.0%"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Percent(tt.fraction)
			if result != tt.expected {
				t.Errorf("Percent(%v) = %s, want %s", tt.fraction, result, tt.expected)
			}
		})
	}
}

func TestSeconds(t *testing.T) {
	tests := []struct {
		name     string
		seconds  float64
		expected string
	}{
		{"zero", 0.0, "0ms"},
		{"sub-second", 0.85, "850ms"},
		{"short fade", 1.5, "1.5s"},
		{"under a minute", 59.9, "59.9s"},
		{"exactly a minute", 60.0, "1m00s"},
		{"minutes and seconds", 125.0, "2m05s"},
		{"negative", -3.0, "0ms"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Seconds(tt.seconds)
			if result != tt.expected {
				t.Errorf("Seconds(%v) = %s, want %s", tt.seconds, result, tt.expected)
			}
		})
	}
}
