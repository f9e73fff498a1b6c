package collector

import (
	"context"
	"time"

	"SignalSentinel/internal/model"
)

// Fetcher defines the interface for fetching market data.
type Fetcher interface {
	// FetchBars returns bars for ticker with from <= timestamp <= to, oldest first.
	FetchBars(ctx context.Context, ticker, interval string, from, to time.Time) ([]model.Bar, error)
	FetchCurrentPrice(ctx context.Context, ticker string) (float64, error)
	Name() string
}
