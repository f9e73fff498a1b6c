package collector

import (
	"context"
	"fmt"
	"sync"
	"time"

	"SignalSentinel/internal/model"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// MockFetcher returns controllable fixed data for development and testing.
type MockFetcher struct {
	mu     sync.Mutex
	Price  float64
	Step   time.Duration
	Bars   map[string][]model.Bar
	Prices map[string]float64
	Err    map[string]error
}

func (m *MockFetcher) Name() string { return "mock" }

// SetBars replaces the bars served for ticker.
func (m *MockFetcher) SetBars(ticker string, bars []model.Bar) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Bars == nil {
		m.Bars = make(map[string][]model.Bar)
	}
	m.Bars[ticker] = bars
}

func (m *MockFetcher) FetchBars(_ context.Context, ticker, _ string, from, to time.Time) ([]model.Bar, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.Err[ticker]; err != nil {
		return nil, err
	}
	src, ok := m.Bars[ticker]
	if !ok {
		src = generateMockBars(ticker, m.Price, m.Step, from, to)
	}
	var out []model.Bar
	for _, b := range src {
		if b.Timestamp >= from.Unix() && b.Timestamp <= to.Unix() {
			b.Ticker = ticker
			out = append(out, b)
		}
	}
	return out, nil
}

func (m *MockFetcher) FetchCurrentPrice(_ context.Context, ticker string) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.Err[ticker]; err != nil {
		return 0, err
	}
	if p, ok := m.Prices[ticker]; ok {
		return p, nil
	}
	if bars := m.Bars[ticker]; len(bars) > 0 {
		return bars[len(bars)-1].Close, nil
	}
	return m.Price, nil
}

func generateMockBars(ticker string, basePrice float64, step time.Duration, from, to time.Time) []model.Bar {
	if step <= 0 {
		step = 24 * time.Hour
	}
	count := int(to.Sub(from)/step) + 1
	bars := make([]model.Bar, 0, count)
	for i := 0; i < count; i++ {
		p := basePrice * (1 + float64(i-count/2)*0.001)
		bars = append(bars, model.Bar{
			Ticker:    ticker,
			Timestamp: from.Add(time.Duration(i) * step).Unix(),
			Open:      p * 0.999,
			High:      p * 1.005,
			Low:       p * 0.995,
			Close:     p,
			Volume:    1000000,
		})
	}
	return bars
}

// Collector fetches bars and quotes for a fixed ticker list.
type Collector struct {
	Fetcher     Fetcher
	Tickers     []string
	Interval    string
	Parallelism int
	// Limiter paces upstream requests; nil means unlimited.
	Limiter *rate.Limiter

	loc    *time.Location
	logger *zap.Logger
	now    func() time.Time
}

// NewCollector creates a new Collector. Bar Datetime fields are rendered in loc.
func NewCollector(fetcher Fetcher, tickers []string, interval string, loc *time.Location, logger *zap.Logger) *Collector {
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Collector{
		Fetcher:     fetcher,
		Tickers:     append([]string(nil), tickers...),
		Interval:    interval,
		Parallelism: 4,
		loc:         loc,
		logger:      logger,
		now:         time.Now,
	}
}

// BuildHistory fetches the last days of bars at interval for every ticker.
// Tickers that fail are logged and left out; it errors only when all fail.
func (c *Collector) BuildHistory(ctx context.Context, interval string, days int) (map[string][]model.Bar, error) {
	return c.History(ctx, c.Tickers, interval, days)
}

// History is BuildHistory over an explicit ticker list.
func (c *Collector) History(ctx context.Context, tickers []string, interval string, days int) (map[string][]model.Bar, error) {
	to := c.now()
	from := to.AddDate(0, 0, -days)
	since := make(map[string]int64, len(tickers))
	for _, t := range tickers {
		since[t] = from.Unix()
	}
	return c.fetch(ctx, interval, since, to)
}

// FetchSince fetches bars at the collector interval newer than or equal to
// each ticker's last known timestamp, so the still-forming bar is refreshed.
// Tickers missing from last are fetched over the full history window of days.
func (c *Collector) FetchSince(ctx context.Context, last map[string]int64, days int) (map[string][]model.Bar, error) {
	to := c.now()
	since := make(map[string]int64, len(c.Tickers))
	for _, t := range c.Tickers {
		if ts, ok := last[t]; ok {
			since[t] = ts
		} else {
			since[t] = to.AddDate(0, 0, -days).Unix()
		}
	}
	return c.fetch(ctx, c.Interval, since, to)
}

// SetRateLimit caps upstream requests at rps per second. rps <= 0 removes the cap.
func (c *Collector) SetRateLimit(rps float64) {
	if rps <= 0 {
		c.Limiter = nil
		return
	}
	c.Limiter = rate.NewLimiter(rate.Limit(rps), max(c.Parallelism, 1))
}

func (c *Collector) wait(ctx context.Context) error {
	if c.Limiter == nil {
		return nil
	}
	return c.Limiter.Wait(ctx)
}

func (c *Collector) fetch(ctx context.Context, interval string, since map[string]int64, to time.Time) (map[string][]model.Bar, error) {
	var (
		mu     sync.Mutex
		out    = make(map[string][]model.Bar, len(since))
		failed int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(c.Parallelism, 1))
	for ticker, from := range since {
		g.Go(func() error {
			if err := c.wait(gctx); err != nil {
				return err
			}
			bars, err := c.Fetcher.FetchBars(gctx, ticker, interval, time.Unix(from, 0), to)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				c.logger.Warn("fetch bars failed",
					zap.String("ticker", ticker), zap.String("source", c.Fetcher.Name()), zap.Error(err))
				mu.Lock()
				failed++
				mu.Unlock()
				return nil
			}
			for i := range bars {
				bars[i].Ticker = ticker
				if bars[i].Datetime == "" {
					bars[i].Datetime = bars[i].Time(c.loc).Format(model.AtTimeLayout)
				}
			}
			mu.Lock()
			out[ticker] = bars
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if len(since) > 0 && failed == len(since) {
		return nil, fmt.Errorf("fetch bars: all %d tickers failed", failed)
	}
	return out, nil
}

// Quotes fetches the current price of each ticker. Failed tickers are logged and omitted.
func (c *Collector) Quotes(ctx context.Context, tickers []string) (map[string]float64, error) {
	var mu sync.Mutex
	out := make(map[string]float64, len(tickers))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(c.Parallelism, 1))
	for _, ticker := range tickers {
		g.Go(func() error {
			if err := c.wait(gctx); err != nil {
				return err
			}
			p, err := c.Fetcher.FetchCurrentPrice(gctx, ticker)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				c.logger.Warn("fetch quote failed", zap.String("ticker", ticker), zap.Error(err))
				return nil
			}
			mu.Lock()
			out[ticker] = p
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
