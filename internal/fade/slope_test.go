package fade

import (
	"math"
	"testing"
)

func TestSlope_DegenerateInputs(t *testing.T) {
	if got := Slope(nil); got != 0 {
		t.Errorf("nil input: expected 0, got %v", got)
	}
	if got := Slope([]float64{0.5}); got != 0 {
		t.Errorf("single value: expected 0, got %v", got)
	}
	if got := Slope([]float64{0.5, 0.5, 0.5, 0.5}); got != 0 {
		t.Errorf("constant values: expected slope 0, got %v", got)
	}
}

func TestSlope_Linear(t *testing.T) {
	// Exact line: y = 0.05 + 0.01*x over 50 points.
	values := make([]float64, 50)
	for i := range values {
		values[i] = 0.05 + 0.01*float64(i)
	}
	got := Slope(values)
	if math.Abs(got-0.01) > 1e-9 {
		t.Errorf("expected slope 0.01, got %v", got)
	}

	// Two points define the slope exactly.
	if got := Slope([]float64{0.2, 0.5}); math.Abs(got-0.3) > 1e-9 {
		t.Errorf("two points: expected slope 0.3, got %v", got)
	}
}

func TestSlope_Descending(t *testing.T) {
	values := []float64{0.9, 0.7, 0.5, 0.3, 0.1}
	got := Slope(values)
	if math.Abs(got-(-0.2)) > 1e-9 {
		t.Errorf("expected slope -0.2, got %v", got)
	}
}

func TestSlope_NoisyTrendSign(t *testing.T) {
	// Rising trend with alternating jitter still reports a positive slope.
	values := make([]float64, 40)
	for i := range values {
		jitter := 0.003
		if i%2 == 1 {
			jitter = -0.003
		}
		values[i] = 0.1 + 0.008*float64(i) + jitter
	}
	if got := Slope(values); got <= 0 {
		t.Errorf("expected positive slope for rising noisy series, got %v", got)
	}
}
