package portfolio

import (
	"fmt"
	"math"
	"sort"

	"SignalSentinel/internal/calculator"
	"SignalSentinel/internal/pricestore"
)

// ReturnVector maps tickers to expected (mean daily) returns.
type ReturnVector map[string]float64

// Covariance is a square matrix addressed by ticker name.
type Covariance struct {
	tickers []string
	index   map[string]int
	values  [][]float64
}

// NewCovariance builds a matrix; values[i][j] is cov(tickers[i], tickers[j]).
func NewCovariance(tickers []string, values [][]float64) (Covariance, error) {
	if len(values) != len(tickers) {
		return Covariance{}, fmt.Errorf("covariance: %d rows for %d tickers", len(values), len(tickers))
	}
	idx := make(map[string]int, len(tickers))
	for i, t := range tickers {
		if len(values[i]) != len(tickers) {
			return Covariance{}, fmt.Errorf("covariance: row %s has %d columns", t, len(values[i]))
		}
		if _, dup := idx[t]; dup {
			return Covariance{}, fmt.Errorf("covariance: duplicate ticker %s", t)
		}
		idx[t] = i
	}
	return Covariance{tickers: append([]string(nil), tickers...), index: idx, values: values}, nil
}

// At returns cov(a, b).
func (c Covariance) At(a, b string) (float64, bool) {
	i, ok := c.index[a]
	if !ok {
		return 0, false
	}
	j, ok := c.index[b]
	if !ok {
		return 0, false
	}
	return c.values[i][j], true
}

// Tickers returns the matrix tickers in construction order.
func (c Covariance) Tickers() []string { return append([]string(nil), c.tickers...) }

// ReturnStats holds daily return statistics per ticker.
type ReturnStats struct {
	Mean         ReturnVector
	Std          map[string]float64
	Cov          Covariance
	Observations map[string]int
}

// ComputeReturnStats derives daily percentage returns from each series using
// bars at or after since (epoch seconds, 0 for all), then their mean, sample
// std and pairwise sample covariance aligned on timestamps. Statistics with
// fewer than two observations are NaN.
func ComputeReturnStats(series []pricestore.Series, since int64) ReturnStats {
	returns := make(map[string]map[int64]float64, len(series))
	tickers := make([]string, 0, len(series))

	for _, s := range series {
		var closes []float64
		var stamps []int64
		for _, b := range s.Bars {
			if b.Timestamp >= since {
				closes = append(closes, b.Close)
				stamps = append(stamps, b.Timestamp)
			}
		}
		byTS := make(map[int64]float64, len(closes))
		for i, r := range calculator.PctChange(closes) {
			if !math.IsNaN(r) && !math.IsInf(r, 0) {
				byTS[stamps[i]] = r
			}
		}
		returns[s.Ticker] = byTS
		tickers = append(tickers, s.Ticker)
	}
	sort.Strings(tickers)

	stats := ReturnStats{
		Mean:         make(ReturnVector, len(tickers)),
		Std:          make(map[string]float64, len(tickers)),
		Observations: make(map[string]int, len(tickers)),
	}
	for _, t := range tickers {
		vals := values(returns[t])
		stats.Mean[t] = meanOf(vals)
		stats.Std[t] = math.Sqrt(pairCov(vals, vals))
		stats.Observations[t] = len(vals)
	}

	matrix := make([][]float64, len(tickers))
	for i, a := range tickers {
		matrix[i] = make([]float64, len(tickers))
		for j, b := range tickers {
			if j < i {
				matrix[i][j] = matrix[j][i]
				continue
			}
			x, y := aligned(returns[a], returns[b])
			matrix[i][j] = pairCov(x, y)
		}
	}
	stats.Cov, _ = NewCovariance(tickers, matrix)
	return stats
}

func values(m map[int64]float64) []float64 {
	stamps := make([]int64, 0, len(m))
	for ts := range m {
		stamps = append(stamps, ts)
	}
	sort.Slice(stamps, func(i, j int) bool { return stamps[i] < stamps[j] })
	out := make([]float64, len(stamps))
	for i, ts := range stamps {
		out[i] = m[ts]
	}
	return out
}

func aligned(a, b map[int64]float64) (x, y []float64) {
	stamps := make([]int64, 0, len(a))
	for ts := range a {
		if _, ok := b[ts]; ok {
			stamps = append(stamps, ts)
		}
	}
	sort.Slice(stamps, func(i, j int) bool { return stamps[i] < stamps[j] })
	for _, ts := range stamps {
		x = append(x, a[ts])
		y = append(y, b[ts])
	}
	return x, y
}

func meanOf(v []float64) float64 {
	if len(v) == 0 {
		return math.NaN()
	}
	sum := 0.0
	for _, x := range v {
		sum += x
	}
	return sum / float64(len(v))
}

// pairCov is the sample covariance of two aligned series.
func pairCov(x, y []float64) float64 {
	if len(x) < 2 {
		return math.NaN()
	}
	mx, my := meanOf(x), meanOf(y)
	sum := 0.0
	for i := range x {
		sum += (x[i] - mx) * (y[i] - my)
	}
	return sum / float64(len(x)-1)
}
