package recorder

import (
	"context"
	"errors"
	"math"
	"sort"

	"SignalSentinel/internal/model"
)

// Recorder persists cycle output for later analysis.
type Recorder interface {
	RecordSignals(ctx context.Context, cycleID string, records []model.SignalRecord) error
	RecordPortfolio(ctx context.Context, cycleID string, v model.Valuations, metrics map[string]model.PortfolioMetric) error
	Close() error
}

// Multi fans every call out to several recorders and joins their errors.
type Multi []Recorder

func (m Multi) RecordSignals(ctx context.Context, cycleID string, records []model.SignalRecord) error {
	var errs []error
	for _, r := range m {
		errs = append(errs, r.RecordSignals(ctx, cycleID, records))
	}
	return errors.Join(errs...)
}

func (m Multi) RecordPortfolio(ctx context.Context, cycleID string, v model.Valuations, metrics map[string]model.PortfolioMetric) error {
	var errs []error
	for _, r := range m {
		errs = append(errs, r.RecordPortfolio(ctx, cycleID, v, metrics))
	}
	return errors.Join(errs...)
}

func (m Multi) Close() error {
	var errs []error
	for _, r := range m {
		errs = append(errs, r.Close())
	}
	return errors.Join(errs...)
}

// finite returns nil for NaN and infinities so they persist as NULL / JSON null.
func finite(f float64) *float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return &f
}

// portfolioRow flattens one ticker (or the aggregate) for storage.
type portfolioRow struct {
	Ticker        string   `json:"ticker"`
	MarketValue   *float64 `json:"market_value"`
	InvestedValue *float64 `json:"invested_value"`
	Return        *float64 `json:"return"`
	ReturnPct     *float64 `json:"return_pct"`
	Weight        *float64 `json:"weight"`
	Mean          *float64 `json:"mean"`
	Std           *float64 `json:"std"`
}

// portfolioRows merges valuations and metrics by ticker. The aggregate is
// stored under model.PortfolioKey.
func portfolioRows(v model.Valuations, metrics map[string]model.PortfolioMetric) []portfolioRow {
	seen := make(map[string]bool)
	var tickers []string
	for t := range v.Tickers {
		seen[t] = true
		tickers = append(tickers, t)
	}
	for t := range metrics {
		if !seen[t] && t != model.PortfolioKey {
			seen[t] = true
			tickers = append(tickers, t)
		}
	}
	sort.Strings(tickers)
	tickers = append(tickers, model.PortfolioKey)

	rows := make([]portfolioRow, 0, len(tickers))
	for _, t := range tickers {
		row := portfolioRow{Ticker: t}
		val, hasVal := v.Tickers[t]
		if t == model.PortfolioKey {
			val, hasVal = v.Total, v.Tickers != nil
		}
		if hasVal {
			row.MarketValue = finite(val.MarketValue)
			row.InvestedValue = finite(val.InvestedValue)
			row.Return = finite(val.Return)
			row.ReturnPct = finite(val.ReturnPct)
		}
		if m, ok := metrics[t]; ok {
			row.Weight = finite(m.Weight)
			row.Mean = finite(m.Mean)
			row.Std = finite(m.Std)
		}
		rows = append(rows, row)
	}
	return rows
}
