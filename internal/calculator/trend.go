package calculator

// EMA is the exponential moving average of closes. A non-zero alpha in (0, 1]
// replaces the span-derived factor. Values start once period bars exist.
func EMA(closes []float64, period int, alpha float64) []float64 {
	if alpha > 0 && alpha <= 1 {
		return EWMAlpha(closes, alpha, period)
	}
	return EWM(closes, period, period)
}

// MACD returns the fast-minus-slow EWM line and its signal EWM.
func MACD(closes []float64, fast, slow, signal int) (line, sig []float64) {
	line = Sub(EWM(closes, fast, fast), EWM(closes, slow, slow))
	return line, EWM(line, signal, signal)
}

// MoneyFlowVolume is ((2c-l-h)/(h-l))*volume, undefined when high equals low.
func MoneyFlowVolume(highs, lows, closes, volumes []float64) []float64 {
	out := make([]float64, len(closes))
	for i := range closes {
		mult := Ratio(2*closes[i]-lows[i]-highs[i], highs[i]-lows[i])
		out[i] = mult * volumes[i]
	}
	return out
}

// Chaikin is the fast-minus-slow EWM of money-flow volume.
func Chaikin(highs, lows, closes, volumes []float64, fast, slow int) []float64 {
	mfv := MoneyFlowVolume(highs, lows, closes, volumes)
	return Sub(EWM(mfv, fast, fast), EWM(mfv, slow, slow))
}
