package model

import "time"

// Bar is a single OHLCV row for one ticker.
type Bar struct {
	Ticker    string  `json:"ticker"`
	Timestamp int64   `json:"timestamp"` // epoch seconds
	Datetime  string  `json:"datetime"`  // local wall-clock time as sent by the feed
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    float64 `json:"volume"`
}

// Time returns the bar timestamp in the given location.
func (b Bar) Time(loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	return time.Unix(b.Timestamp, 0).In(loc)
}

// Base column names bound for every row next to indicator columns.
const (
	ColumnOpen   = "open"
	ColumnHigh   = "high"
	ColumnLow    = "low"
	ColumnClose  = "close"
	ColumnVolume = "volume"
)

// Row is the latest bar of a ticker projected together with its indicator values.
type Row struct {
	Bar
	Values map[string]float64
}

// Value returns a bound column value and whether it exists.
func (r Row) Value(column string) (float64, bool) {
	switch column {
	case ColumnOpen:
		return r.Open, true
	case ColumnHigh:
		return r.High, true
	case ColumnLow:
		return r.Low, true
	case ColumnClose:
		return r.Close, true
	case ColumnVolume:
		return r.Volume, true
	}
	v, ok := r.Values[column]
	return v, ok
}
