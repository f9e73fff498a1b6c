package portfolio

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"SignalSentinel/internal/model"

	"github.com/shopspring/decimal"
)

var (
	// ErrMissingTicker is returned when a weighted ticker has no return or covariance entry.
	ErrMissingTicker = errors.New("ticker missing from statistics")
	// ErrZeroMarketValue is returned when weights are requested for an empty portfolio.
	ErrZeroMarketValue = errors.New("portfolio market value is zero")
)

// MarketValues projects every position that has a quote. Tickers quoted but
// not held are ignored.
func MarketValues(assets map[string]model.Asset, quotes map[string]float64) model.Valuations {
	out := model.Valuations{Tickers: make(map[string]model.Valuation, len(quotes))}
	totalMV, totalIV := decimal.Zero, decimal.Zero

	for ticker, price := range quotes {
		a, ok := assets[ticker]
		if !ok {
			continue
		}
		qty := decimal.NewFromFloat(a.Qty)
		bought := decimal.NewFromFloat(a.PurchasedPrice)
		current := decimal.NewFromFloat(price)

		mv := qty.Mul(current)
		iv := qty.Mul(bought)
		totalMV = totalMV.Add(mv)
		totalIV = totalIV.Add(iv)

		out.Tickers[ticker] = model.Valuation{
			PurchasedPrice: a.PurchasedPrice,
			CurrentPrice:   price,
			Qty:            a.Qty,
			MarketValue:    mv.InexactFloat64(),
			InvestedValue:  iv.InexactFloat64(),
			Return:         mv.Sub(iv).InexactFloat64(),
			ReturnPct:      changeRatio(current, bought),
			Profitable:     a.PurchasedPrice <= price,
		}
	}

	ret := totalMV.Sub(totalIV)
	out.Total = model.Valuation{
		MarketValue:   totalMV.InexactFloat64(),
		InvestedValue: totalIV.InexactFloat64(),
		Return:        ret.InexactFloat64(),
		ReturnPct:     changeRatio(totalMV, totalIV),
		Profitable:    ret.IsPositive(),
	}
	return out
}

// changeRatio is now/then - 1, NaN when then is zero.
func changeRatio(now, then decimal.Decimal) float64 {
	if then.IsZero() {
		return math.NaN()
	}
	return now.Div(then).Sub(decimal.NewFromInt(1)).InexactFloat64()
}

// Weights returns each ticker's share of the total market value.
func Weights(v model.Valuations) (map[string]float64, error) {
	total := decimal.Zero
	for _, t := range v.Tickers {
		total = total.Add(decimal.NewFromFloat(t.MarketValue))
	}
	if total.IsZero() {
		return nil, ErrZeroMarketValue
	}
	out := make(map[string]float64, len(v.Tickers))
	for ticker, t := range v.Tickers {
		out[ticker] = decimal.NewFromFloat(t.MarketValue).Div(total).InexactFloat64()
	}
	return out, nil
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Mean is the weighted expected return r·w. Every weighted ticker must have a return.
func Mean(weights map[string]float64, returns ReturnVector) (float64, error) {
	sum := 0.0
	for _, t := range sortedKeys(weights) {
		r, ok := returns[t]
		if !ok {
			return 0, fmt.Errorf("%w: %s", ErrMissingTicker, t)
		}
		sum += weights[t] * r
	}
	return sum, nil
}

// Variance is wᵀΣw. Weights and covariance are both read through one sorted
// ticker list so the two can never be misaligned.
func Variance(weights map[string]float64, cov Covariance) (float64, error) {
	keys := sortedKeys(weights)
	total := 0.0
	for _, a := range keys {
		row := 0.0
		for _, b := range keys {
			c, ok := cov.At(a, b)
			if !ok {
				return 0, fmt.Errorf("%w: %s/%s", ErrMissingTicker, a, b)
			}
			row += c * weights[b]
		}
		total += weights[a] * row
	}
	return total, nil
}

// Metrics summarises weight, mean and std per ticker plus the aggregate
// portfolio row (weight 1, weighted mean, sqrt of variance).
func Metrics(weights map[string]float64, stats ReturnStats) (map[string]model.PortfolioMetric, error) {
	out := make(map[string]model.PortfolioMetric, len(weights)+1)
	for t, w := range weights {
		mean, ok := stats.Mean[t]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingTicker, t)
		}
		out[t] = model.PortfolioMetric{Weight: w, Mean: mean, Std: stats.Std[t]}
	}

	mean, err := Mean(weights, stats.Mean)
	if err != nil {
		return nil, err
	}
	variance, err := Variance(weights, stats.Cov)
	if err != nil {
		return nil, err
	}
	out[model.PortfolioKey] = model.PortfolioMetric{Weight: 1, Mean: mean, Std: math.Sqrt(variance)}
	return out, nil
}
