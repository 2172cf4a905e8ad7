package fade

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// Slope computes the least-squares linear regression slope of values,
// treating values[i] as the dependent variable at position i. Returns 0.0
// for fewer than two values or a degenerate fit. Used as a diagnostic on
// luminance windows; the verdict pipeline does not depend on it.
func Slope(values []float64) float64 {
	if len(values) < 2 {
		return 0.0
	}
	xs := make([]float64, len(values))
	for i := range xs {
		xs[i] = float64(i)
	}
	_, slope := stat.LinearRegression(xs, values, nil, false)
	if math.IsNaN(slope) || math.IsInf(slope, 0) {
		return 0.0
	}
	return slope
}
