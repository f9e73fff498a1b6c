// Package calculator holds the numeric kernels behind the indicator engine.
// Every function works on aligned []float64 series where NaN marks an
// undefined value, and returns a new slice of the same length.
package calculator

import "math"

// NaNs returns a series of n undefined values.
func NaNs(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}

// HasNaN reports whether any value is NaN.
func HasNaN(values []float64) bool {
	for _, v := range values {
		if math.IsNaN(v) {
			return true
		}
	}
	return false
}

// Diff returns values[i] - values[i-1]; the first element is NaN.
func Diff(values []float64) []float64 {
	out := NaNs(len(values))
	for i := 1; i < len(values); i++ {
		out[i] = values[i] - values[i-1]
	}
	return out
}

// PctChange returns values[i]/values[i-1] - 1; the first element is NaN.
func PctChange(values []float64) []float64 {
	out := NaNs(len(values))
	for i := 1; i < len(values); i++ {
		out[i] = Ratio(values[i], values[i-1]) - 1
	}
	return out
}

// Sub returns a - b element-wise.
func Sub(a, b []float64) []float64 {
	out := make([]float64, len(a))
	for i := range a {
		out[i] = a[i] - b[i]
	}
	return out
}

// Ratio divides and maps a zero denominator to NaN.
func Ratio(num, den float64) float64 {
	if den == 0 || math.IsNaN(den) {
		return math.NaN()
	}
	return num / den
}

// Last returns the final element, or NaN for an empty series.
func Last(values []float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	return values[len(values)-1]
}
