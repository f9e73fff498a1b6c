package calculator

import (
	"math"

	talib "github.com/markcheno/go-talib"
)

// SMA computes the simple moving average of prices over period. Bars before
// the window is full are NaN.
func SMA(prices []float64, period int) []float64 {
	if period < 1 || len(prices) < period {
		return NaNs(len(prices))
	}
	if HasNaN(prices) {
		return RollingMean(prices, period)
	}
	return warmup(talib.Sma(prices, period), period)
}

// talibExtreme runs the ta-lib rolling max/min on finite input. ta-lib treats
// period 1 as degenerate, so that case falls back to the generic window.
func talibExtreme(values []float64, period int, highest bool) ([]float64, bool) {
	if period < 2 || len(values) < period || HasNaN(values) {
		return nil, false
	}
	if highest {
		return warmup(talib.Max(values, period), period), true
	}
	return warmup(talib.Min(values, period), period), true
}

// warmup masks the lookback region ta-lib leaves as zeros.
func warmup(out []float64, period int) []float64 {
	for i := 0; i < period-1 && i < len(out); i++ {
		out[i] = math.NaN()
	}
	return out
}
