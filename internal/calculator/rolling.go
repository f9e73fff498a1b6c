package calculator

import "math"

// rolling applies fn to every full window of period values. Windows that are
// not fully populated, or contain NaN, produce NaN.
func rolling(values []float64, period int, fn func(window []float64) float64) []float64 {
	out := NaNs(len(values))
	if period < 1 {
		return out
	}
	nan := 0
	for i, v := range values {
		if math.IsNaN(v) {
			nan++
		}
		if i >= period && math.IsNaN(values[i-period]) {
			nan--
		}
		if i+1 < period || nan > 0 {
			continue
		}
		out[i] = fn(values[i+1-period : i+1])
	}
	return out
}

func mean(window []float64) float64 {
	sum := 0.0
	for _, v := range window {
		sum += v
	}
	return sum / float64(len(window))
}

// RollingMean is the simple moving average over period values.
func RollingMean(values []float64, period int) []float64 {
	return rolling(values, period, mean)
}

// RollingStd is the sample standard deviation (ddof=1) over period values.
func RollingStd(values []float64, period int) []float64 {
	if period < 2 {
		return NaNs(len(values))
	}
	return rolling(values, period, func(w []float64) float64 {
		m := mean(w)
		ss := 0.0
		for _, v := range w {
			d := v - m
			ss += d * d
		}
		return math.Sqrt(ss / float64(len(w)-1))
	})
}

// RollingMAD is the mean absolute deviation around the window mean.
func RollingMAD(values []float64, period int) []float64 {
	return rolling(values, period, func(w []float64) float64 {
		m := mean(w)
		dev := 0.0
		for _, v := range w {
			dev += math.Abs(v - m)
		}
		return dev / float64(len(w))
	})
}

// RollingMax is the highest value over period values.
func RollingMax(values []float64, period int) []float64 {
	if fast, ok := talibExtreme(values, period, true); ok {
		return fast
	}
	return rolling(values, period, func(w []float64) float64 {
		m := w[0]
		for _, v := range w[1:] {
			m = math.Max(m, v)
		}
		return m
	})
}

// RollingMin is the lowest value over period values.
func RollingMin(values []float64, period int) []float64 {
	if fast, ok := talibExtreme(values, period, false); ok {
		return fast
	}
	return rolling(values, period, func(w []float64) float64 {
		m := w[0]
		for _, v := range w[1:] {
			m = math.Min(m, v)
		}
		return m
	})
}
