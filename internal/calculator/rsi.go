package calculator

import "math"

// smooth averages a series either exponentially (span=period) or with a
// simple rolling window, both requiring period observations.
func smooth(values []float64, period int, exponential bool) []float64 {
	if exponential {
		return EWM(values, period, period)
	}
	return RollingMean(values, period)
}

// RSI computes the relative strength index of closes. avgLoss of zero leaves
// the value undefined.
func RSI(closes []float64, period int, exponential bool) []float64 {
	change := Diff(closes)
	gain := NaNs(len(change))
	loss := NaNs(len(change))
	for i, c := range change {
		if math.IsNaN(c) {
			continue
		}
		gain[i], loss[i] = 0, 0
		if c >= 0 {
			gain[i] = c
		} else {
			loss[i] = -c
		}
	}

	avgGain := smooth(gain, period, exponential)
	avgLoss := smooth(loss, period, exponential)

	out := NaNs(len(closes))
	for i := range out {
		rs := Ratio(avgGain[i], avgLoss[i])
		if math.IsNaN(rs) {
			continue
		}
		out[i] = 100 - 100/(1+rs)
	}
	return out
}

// StochasticRSI positions the RSI within its rolling range over period, scaled to 0..100.
func StochasticRSI(closes []float64, period int, exponential bool) []float64 {
	rsi := RSI(closes, period, exponential)
	lo := RollingMin(rsi, period)
	hi := RollingMax(rsi, period)

	out := make([]float64, len(rsi))
	for i := range rsi {
		out[i] = 100 * Ratio(rsi[i]-lo[i], hi[i]-lo[i])
	}
	return out
}
