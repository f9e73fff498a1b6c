package model

// Signal labels emitted on a SignalRecord.
const (
	SignalBuy  = "Buy"
	SignalSell = "Sell"
)

// AtTimeLayout formats SignalRecord.AtTime.
const AtTimeLayout = "2006-01-02 15:04:05"

// SignalRecord is the evaluator output for one ticker.
type SignalRecord struct {
	Ticker     string  `json:"ticker"`
	Buy        bool    `json:"buy"`
	Sell       bool    `json:"sell"`
	AtTime     string  `json:"at_time"`
	Signal     string  `json:"signal"`
	ClosePrice float64 `json:"close_price"`
}

// Label resolves the signal string. Sell takes precedence over Buy.
func Label(buy, sell bool) string {
	switch {
	case sell:
		return SignalSell
	case buy:
		return SignalBuy
	default:
		return ""
	}
}

// HasSignal reports whether the record carries a buy or sell.
func (r SignalRecord) HasSignal() bool { return r.Signal != "" }
