package pricestore

import (
	"sort"

	"SignalSentinel/internal/model"
)

// Series is a read-only view over one ticker's bars in ascending timestamp order.
// Callers must not modify Bars.
type Series struct {
	Ticker string
	Bars   []model.Bar
}

// Len returns the number of bars.
func (s Series) Len() int { return len(s.Bars) }

// Opens returns a copy of the open prices.
func (s Series) Opens() []float64 { return s.extract(func(b model.Bar) float64 { return b.Open }) }

// Highs returns a copy of the high prices.
func (s Series) Highs() []float64 { return s.extract(func(b model.Bar) float64 { return b.High }) }

// Lows returns a copy of the low prices.
func (s Series) Lows() []float64 { return s.extract(func(b model.Bar) float64 { return b.Low }) }

// Closes returns a copy of the close prices.
func (s Series) Closes() []float64 { return s.extract(func(b model.Bar) float64 { return b.Close }) }

// Volumes returns a copy of the volumes.
func (s Series) Volumes() []float64 { return s.extract(func(b model.Bar) float64 { return b.Volume }) }

// Timestamps returns a copy of the bar timestamps.
func (s Series) Timestamps() []int64 {
	out := make([]int64, len(s.Bars))
	for i, b := range s.Bars {
		out[i] = b.Timestamp
	}
	return out
}

func (s Series) extract(f func(model.Bar) float64) []float64 {
	out := make([]float64, len(s.Bars))
	for i, b := range s.Bars {
		out[i] = f(b)
	}
	return out
}

// AppendResult reports how an Append batch was merged.
type AppendResult struct {
	Inserted    int
	Overwritten int
}

// Store keeps per-ticker bar series, unique on (ticker, timestamp) and sorted.
// It is not safe for concurrent mutation; readers may share it between appends.
type Store struct {
	series  map[string][]model.Bar
	tickers []string
}

// New returns an empty store.
func New() *Store {
	return &Store{series: make(map[string][]model.Bar)}
}

// Build creates a store from rows keyed by ticker. Rows may arrive unsorted and
// with duplicate timestamps; the last row for a timestamp wins.
func Build(rowsByTicker map[string][]model.Bar) *Store {
	s := New()
	s.Append(rowsByTicker)
	return s
}

// Append merges new rows into the store. A row whose (ticker, timestamp) already
// exists overwrites the stored values; nothing is ever removed.
func (s *Store) Append(rowsByTicker map[string][]model.Bar) AppendResult {
	var res AppendResult
	for ticker, rows := range rowsByTicker {
		if len(rows) == 0 {
			continue
		}
		inserted, overwritten := s.mergeTicker(ticker, rows)
		res.Inserted += inserted
		res.Overwritten += overwritten
	}
	return res
}

func (s *Store) mergeTicker(ticker string, rows []model.Bar) (inserted, overwritten int) {
	existing, known := s.series[ticker]

	// Last write wins inside the batch too.
	pending := make(map[int64]model.Bar, len(rows))
	for _, r := range rows {
		r.Ticker = ticker
		pending[r.Timestamp] = r
	}

	fresh := make([]model.Bar, 0, len(pending))
	for ts, r := range pending {
		if i, ok := search(existing, ts); ok {
			existing[i] = r
			overwritten++
			continue
		}
		fresh = append(fresh, r)
	}

	if len(fresh) > 0 {
		existing = append(existing, fresh...)
		sort.Slice(existing, func(i, j int) bool { return existing[i].Timestamp < existing[j].Timestamp })
		inserted = len(fresh)
	}
	s.series[ticker] = existing

	if !known {
		s.tickers = append(s.tickers, ticker)
		sort.Strings(s.tickers)
	}
	return inserted, overwritten
}

func search(bars []model.Bar, ts int64) (int, bool) {
	i := sort.Search(len(bars), func(i int) bool { return bars[i].Timestamp >= ts })
	return i, i < len(bars) && bars[i].Timestamp == ts
}

// Tickers returns the known tickers in lexicographic order.
func (s *Store) Tickers() []string {
	out := make([]string, len(s.tickers))
	copy(out, s.tickers)
	return out
}

// Len returns the total number of rows across tickers.
func (s *Store) Len() int {
	n := 0
	for _, bars := range s.series {
		n += len(bars)
	}
	return n
}

// Series returns the view for one ticker. Unknown tickers give an empty series.
func (s *Store) Series(ticker string) Series {
	return Series{Ticker: ticker, Bars: s.series[ticker]}
}

// GroupedByTicker returns one view per ticker, ordered by ticker.
func (s *Store) GroupedByTicker() []Series {
	out := make([]Series, 0, len(s.tickers))
	for _, t := range s.tickers {
		out = append(out, Series{Ticker: t, Bars: s.series[t]})
	}
	return out
}

// LastRow returns the latest bar of a ticker, or of the whole store when ticker is empty.
func (s *Store) LastRow(ticker string) (model.Bar, bool) {
	return s.RowAt(ticker, 1)
}

// RowAt returns the n-th row from the end (n=1 is the last row). With an empty
// ticker the store is treated as one sequence ordered by (ticker, timestamp).
// It reports false when fewer than n rows exist.
func (s *Store) RowAt(ticker string, n int) (model.Bar, bool) {
	if n < 1 {
		return model.Bar{}, false
	}
	if ticker != "" {
		bars := s.series[ticker]
		if len(bars) < n {
			return model.Bar{}, false
		}
		return bars[len(bars)-n], true
	}

	for i := len(s.tickers) - 1; i >= 0; i-- {
		bars := s.series[s.tickers[i]]
		if n <= len(bars) {
			return bars[len(bars)-n], true
		}
		n -= len(bars)
	}
	return model.Bar{}, false
}

// LastTimestamps returns the latest timestamp per ticker.
func (s *Store) LastTimestamps() map[string]int64 {
	out := make(map[string]int64, len(s.tickers))
	for _, t := range s.tickers {
		if bars := s.series[t]; len(bars) > 0 {
			out[t] = bars[len(bars)-1].Timestamp
		}
	}
	return out
}
