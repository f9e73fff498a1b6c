package calculator

import "math"

// SpanAlpha converts an EWM span into its smoothing factor 2/(span+1).
func SpanAlpha(span int) float64 {
	return 2 / (float64(span) + 1)
}

// EWM computes the exponentially weighted mean with span, emitting values once
// minPeriods non-NaN observations have been seen.
func EWM(values []float64, span, minPeriods int) []float64 {
	if span < 1 {
		return NaNs(len(values))
	}
	return EWMAlpha(values, SpanAlpha(span), minPeriods)
}

// EWMAlpha computes the adjusted exponentially weighted mean:
//
//	y[t] = sum((1-alpha)^i * x[t-i]) / sum((1-alpha)^i)
//
// NaN inputs are skipped but still age the previous weights.
func EWMAlpha(values []float64, alpha float64, minPeriods int) []float64 {
	out := NaNs(len(values))
	if len(values) == 0 || !(alpha > 0 && alpha <= 1) {
		return out
	}
	if minPeriods < 1 {
		minPeriods = 1
	}

	decay := 1 - alpha
	avg := values[0]
	nobs := 0
	if !math.IsNaN(avg) {
		nobs = 1
	}
	if nobs >= minPeriods {
		out[0] = avg
	}

	oldWeight := 1.0
	for i := 1; i < len(values); i++ {
		cur := values[i]
		observed := !math.IsNaN(cur)
		if observed {
			nobs++
		}
		switch {
		case !math.IsNaN(avg):
			oldWeight *= decay
			if observed {
				if avg != cur {
					avg = (oldWeight*avg + cur) / (oldWeight + 1)
				}
				oldWeight++
			}
		case observed:
			avg = cur
		}
		if nobs >= minPeriods {
			out[i] = avg
		}
	}
	return out
}
