package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"gopkg.in/yaml.v3"
)

// Asset is a configured portfolio position.
type Asset struct {
	Ticker         string  `yaml:"ticker"`
	Type           string  `yaml:"type"`
	PurchasedDate  string  `yaml:"purchased_date"`
	Qty            float64 `yaml:"qty"`
	PurchasedPrice float64 `yaml:"purchased_price"`
	Owned          bool    `yaml:"owned"`
}

// Indicator registers one indicator on startup. An empty key uses the kind's default.
type Indicator struct {
	Kind   string         `yaml:"kind"`
	Key    string         `yaml:"key"`
	Params map[string]any `yaml:"params"`
}

// Bound is one side of a threshold rule.
type Bound struct {
	Op    string  `yaml:"op"`
	Value float64 `yaml:"value"`
}

// Threshold compares one column against fixed bounds.
type Threshold struct {
	Column  string `yaml:"column"`
	Buy     *Bound `yaml:"buy"`
	BuyMax  *Bound `yaml:"buy_max"`
	Sell    *Bound `yaml:"sell"`
	SellMax *Bound `yaml:"sell_max"`
}

// Pair compares two columns.
type Pair struct {
	ColumnA string `yaml:"column_a"`
	ColumnB string `yaml:"column_b"`
	BuyOp   string `yaml:"buy_op"`
	SellOp  string `yaml:"sell_op"`
}

// Expression is a buy/sell expression pair over named columns.
type Expression struct {
	Buy       string   `yaml:"buy"`
	Sell      string   `yaml:"sell"`
	Variables []string `yaml:"variables"`
}

// Config holds all application configuration.
type Config struct {
	Timezone string `yaml:"timezone"`
	Telegram struct {
		BotToken string `yaml:"bot_token"`
		ChatID   string `yaml:"chat_id"`
	} `yaml:"telegram"`
	DataSource struct {
		BaseURL          string   `yaml:"base_url"`
		APIKey           string   `yaml:"api_key"`
		Tickers          []string `yaml:"tickers"`
		Interval         string   `yaml:"interval"`
		HistoryDays      int      `yaml:"history_days"`
		DailyHistoryDays int      `yaml:"daily_history_days"`
		RateLimit        float64  `yaml:"rate_limit"` // requests per second, 0 = unlimited
	} `yaml:"data_source"`
	Portfolio struct {
		HoldingsFile string  `yaml:"holdings_file"`
		Assets       []Asset `yaml:"assets"`
	} `yaml:"portfolio"`
	Indicators []Indicator `yaml:"indicators"`
	Signals    struct {
		Match       string       `yaml:"match"`
		Expressions []Expression `yaml:"expressions"`
		Thresholds  []Threshold  `yaml:"thresholds"`
		Pairs       []Pair       `yaml:"pairs"`
	} `yaml:"signals"`
	Schedule struct {
		RefreshCron string `yaml:"refresh_cron"`
		MetricsCron string `yaml:"metrics_cron"`
	} `yaml:"schedule"`
	Database struct {
		SQLitePath string `yaml:"sqlite_path"`
	} `yaml:"database"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`
	Metrics struct {
		Addr string `yaml:"addr"`
	} `yaml:"metrics"`
	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`
	Proxy string `yaml:"proxy"`
}

// Intervals lists the supported bar intervals.
var Intervals = map[string]time.Duration{
	"1m":  time.Minute,
	"5m":  5 * time.Minute,
	"15m": 15 * time.Minute,
	"30m": 30 * time.Minute,
	"1h":  time.Hour,
	"1d":  24 * time.Hour,
}

// Load reads config from a YAML file, then applies environment variable overrides.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	// Environment variable overrides
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		cfg.Telegram.BotToken = v
	}
	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		cfg.Telegram.ChatID = v
	}
	if v := os.Getenv("VSTRADER_BASE_URL"); v != "" {
		cfg.DataSource.BaseURL = v
	}
	if v := os.Getenv("VSTRADER_API_KEY"); v != "" {
		cfg.DataSource.APIKey = v
	}
	if v := os.Getenv("TICKERS"); v != "" {
		cfg.DataSource.Tickers = splitList(v)
	}
	if v := os.Getenv("HTTPS_PROXY"); v != "" {
		cfg.Proxy = v
	}
	if v := os.Getenv("SIGNAL_TIMEZONE"); v != "" {
		cfg.Timezone = v
	}
	if v := os.Getenv("CRON_REFRESH"); v != "" {
		cfg.Schedule.RefreshCron = v
	}
	if v := os.Getenv("CRON_METRICS"); v != "" {
		cfg.Schedule.MetricsCron = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Database.SQLitePath = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("REDIS_DB"); v != "" {
		if db, err := strconv.Atoi(v); err == nil {
			cfg.Redis.DB = db
		}
	}
	if v := os.Getenv("METRICS_ADDR"); v != "" {
		cfg.Metrics.Addr = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}

	// Defaults
	if cfg.Timezone == "" {
		cfg.Timezone = "Asia/Ho_Chi_Minh"
	}
	if cfg.DataSource.Interval == "" {
		cfg.DataSource.Interval = "15m"
	}
	if cfg.DataSource.HistoryDays == 0 {
		cfg.DataSource.HistoryDays = 30
	}
	if cfg.DataSource.DailyHistoryDays == 0 {
		cfg.DataSource.DailyHistoryDays = 365
	}
	if cfg.Portfolio.HoldingsFile == "" {
		cfg.Portfolio.HoldingsFile = "data/holdings.json"
	}
	if cfg.Schedule.RefreshCron == "" {
		cfg.Schedule.RefreshCron = "0 */15 9-14 * * 1-5"
	}
	if cfg.Schedule.MetricsCron == "" {
		cfg.Schedule.MetricsCron = "0 30 15 * * 1-5"
	}
	if cfg.Database.SQLitePath == "" {
		cfg.Database.SQLitePath = "data/signal_sentinel.db"
	}
	if cfg.Metrics.Addr == "" {
		cfg.Metrics.Addr = ":9100"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if len(cfg.Indicators) == 0 {
		cfg.Indicators = []Indicator{{Kind: "macd"}, {Kind: "rsi"}}
	}
	if len(cfg.Signals.Expressions) == 0 && len(cfg.Signals.Thresholds) == 0 && len(cfg.Signals.Pairs) == 0 {
		cfg.Signals.Expressions = []Expression{{
			Buy:  "macd > macd_signal and rsi_14 < 30",
			Sell: "macd < macd_signal and rsi_14 > 70",
		}}
	}

	return cfg, nil
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Validate checks that all required fields are set.
func (c *Config) Validate() error {
	if c.Telegram.BotToken != "" && c.Telegram.ChatID == "" {
		return fmt.Errorf("telegram.chat_id is required when bot_token is set")
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("timezone %q: %w", c.Timezone, err)
	}
	if _, ok := Intervals[c.DataSource.Interval]; !ok {
		return fmt.Errorf("data_source.interval %q is not supported", c.DataSource.Interval)
	}
	if c.DataSource.HistoryDays <= 0 || c.DataSource.DailyHistoryDays <= 0 {
		return fmt.Errorf("data_source history days must be positive")
	}
	if c.DataSource.RateLimit < 0 {
		return fmt.Errorf("data_source.rate_limit must not be negative")
	}
	if len(c.Tickers()) == 0 {
		return fmt.Errorf("data_source.tickers or portfolio.assets must name at least one ticker")
	}
	for i, a := range c.Portfolio.Assets {
		if a.Ticker == "" {
			return fmt.Errorf("portfolio.assets[%d].ticker is required", i)
		}
		if a.Qty < 0 || a.PurchasedPrice < 0 {
			return fmt.Errorf("portfolio.assets[%d] (%s): qty and purchased_price must not be negative", i, a.Ticker)
		}
	}
	for i, ind := range c.Indicators {
		if ind.Kind == "" {
			return fmt.Errorf("indicators[%d].kind is required", i)
		}
	}
	switch strings.ToLower(c.Signals.Match) {
	case "", "all", "any":
	default:
		return fmt.Errorf("signals.match must be \"all\" or \"any\"")
	}
	return nil
}

// Location returns the configured timezone, UTC if it cannot be loaded.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Tickers returns the watched tickers followed by any portfolio tickers not
// already listed, without duplicates.
func (c *Config) Tickers() []string {
	seen := make(map[string]bool)
	var out []string
	add := func(t string) {
		t = strings.ToUpper(strings.TrimSpace(t))
		if t != "" && !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	for _, t := range c.DataSource.Tickers {
		add(t)
	}
	for _, a := range c.Portfolio.Assets {
		add(a.Ticker)
	}
	return out
}

// BarInterval returns the configured bar interval as a duration.
func (c *Config) BarInterval() time.Duration {
	return Intervals[c.DataSource.Interval]
}
