package model

// Asset is a held (or watched) position.
type Asset struct {
	Ticker         string  `json:"ticker"`
	AssetType      string  `json:"asset_type"`
	PurchasedDate  string  `json:"purchased_date"`
	Qty            float64 `json:"qty"`
	PurchasedPrice float64 `json:"purchased_price"`
	IsOwned        bool    `json:"is_owned"`
}

// PortfolioKey is the aggregate row name in valuations and metrics.
const PortfolioKey = "portfolio"

// Valuation is the projected market value of one position, or of the whole portfolio.
type Valuation struct {
	PurchasedPrice float64 `json:"purchased_price,omitempty"`
	CurrentPrice   float64 `json:"current_price,omitempty"`
	Qty            float64 `json:"qty,omitempty"`
	MarketValue    float64 `json:"market_value"`
	InvestedValue  float64 `json:"invested_value"`
	Return         float64 `json:"return"`
	ReturnPct      float64 `json:"return_pct"`
	Profitable     bool    `json:"profitable"`
}

// Valuations holds per-ticker valuations plus the aggregate under Total.
type Valuations struct {
	Tickers map[string]Valuation `json:"tickers"`
	Total   Valuation            `json:"portfolio"`
}

// PortfolioMetric summarises weight and daily return statistics of a position.
type PortfolioMetric struct {
	Weight float64 `json:"weight"`
	Mean   float64 `json:"mean"`
	Std    float64 `json:"std"`
}
