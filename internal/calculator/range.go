package calculator

import "math"

// TrueRange is max(high-low, |high-prevClose|, |low-prevClose|). The first bar
// has no previous close and is undefined.
func TrueRange(highs, lows, closes []float64) []float64 {
	out := NaNs(len(closes))
	for i := 1; i < len(closes); i++ {
		pc := closes[i-1]
		out[i] = math.Max(highs[i]-lows[i], math.Max(math.Abs(highs[i]-pc), math.Abs(lows[i]-pc)))
	}
	return out
}

// ATR is the smoothed true range.
func ATR(highs, lows, closes []float64, period int, exponential bool) []float64 {
	return smooth(TrueRange(highs, lows, closes), period, exponential)
}

// Bands holds Bollinger band columns.
type Bands struct {
	Upper  []float64
	Middle []float64
	Lower  []float64
	Width  []float64 // (upper-lower)/middle*100
}

// BollingerBands places bands sigmaWidth sample deviations around the SMA.
func BollingerBands(closes []float64, period int, sigmaWidth float64) Bands {
	mid := SMA(closes, period)
	sigma := RollingStd(closes, period)

	b := Bands{
		Upper:  make([]float64, len(closes)),
		Middle: mid,
		Lower:  make([]float64, len(closes)),
		Width:  make([]float64, len(closes)),
	}
	for i := range closes {
		off := sigmaWidth * sigma[i]
		b.Upper[i] = mid[i] + off
		b.Lower[i] = mid[i] - off
		b.Width[i] = Ratio(b.Upper[i]-b.Lower[i], mid[i]) * 100
	}
	return b
}

// TypicalPrice is (high+low+close)/3.
func TypicalPrice(highs, lows, closes []float64) []float64 {
	out := make([]float64, len(closes))
	for i := range closes {
		out[i] = (highs[i] + lows[i] + closes[i]) / 3
	}
	return out
}

// CCI is the commodity channel index of the typical price, scaled by the
// mean absolute deviation (or sample std when useMAD is false) times 0.015.
func CCI(highs, lows, closes []float64, period int, useMAD bool) []float64 {
	tp := TypicalPrice(highs, lows, closes)
	tpSMA := RollingMean(tp, period)

	var dev []float64
	if useMAD {
		dev = RollingMAD(tp, period)
	} else {
		dev = RollingStd(tp, period)
	}

	out := make([]float64, len(tp))
	for i := range tp {
		out[i] = Ratio(tp[i]-tpSMA[i], dev[i]*0.015)
	}
	return out
}

// Stochastic returns %K (close within the kPeriod high/low range, 0..100) and
// %D, the dPeriod simple average of %K.
func Stochastic(highs, lows, closes []float64, kPeriod, dPeriod int) (k, d []float64) {
	hi := RollingMax(highs, kPeriod)
	lo := RollingMin(lows, kPeriod)

	k = make([]float64, len(closes))
	for i := range closes {
		k[i] = 100 * Ratio(closes[i]-lo[i], hi[i]-lo[i])
	}
	return k, RollingMean(k, dPeriod)
}
