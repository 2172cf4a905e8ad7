// Package units converts analysis values between their internal and
// display representations. Rates are stored per frame (luminance delta
// between consecutive frames); operators read them per second at the
// source's frame rate.
package units

import (
	"fmt"
	"math"
)

// PerSecond converts a per-frame rate to a per-second rate at the given
// frame rate. Non-positive fps returns 0.
func PerSecond(perFrame, fps float64) float64 {
	if fps <= 0 {
		return 0
	}
	return perFrame * fps
}

// PerFrame converts a per-second rate to a per-frame rate at the given
// frame rate. Non-positive fps returns 0.
func PerFrame(perSecond, fps float64) float64 {
	if fps <= 0 {
		return 0
	}
	return perSecond / fps
}

// FramesForDuration returns the number of frames spanning the given
// duration at the given frame rate, rounded to the nearest whole frame.
// Non-positive durations and frame rates return 0.
func FramesForDuration(seconds, fps float64) int {
	if seconds <= 0 || fps <= 0 {
		return 0
	}
	return int(math.Round(seconds * fps))
}

// Percent formats a fraction in [0,1] as a percentage with one decimal
// place. Out-of-range values are clamped.
func Percent(fraction float64) string {
	if fraction < 0 {
		fraction = 0
	}
	if fraction > 1 {
		fraction = 1
	}
	return fmt.Sprintf("%.1f%%", fraction*100)
}

// Seconds formats a duration in seconds for display: milliseconds under
// one second, one decimal place under a minute, minutes and whole
// seconds beyond. Negative durations format as 0ms.
func Seconds(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	switch {
	case seconds < 1:
		return fmt.Sprintf("%.0fms", seconds*1000)
	case seconds < 60:
		return fmt.Sprintf("%.1fs", seconds)
	default:
		m := int(seconds) / 60
		s := int(seconds) % 60
		return fmt.Sprintf("%dm%02ds", m, s)
	}
}
