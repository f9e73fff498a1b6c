package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Timezone != "Asia/Ho_Chi_Minh" {
		t.Errorf("timezone = %q", cfg.Timezone)
	}
	if cfg.DataSource.Interval != "15m" || cfg.BarInterval() != 15*time.Minute {
		t.Errorf("interval = %q", cfg.DataSource.Interval)
	}
	if cfg.DataSource.DailyHistoryDays != 365 {
		t.Errorf("daily history = %d", cfg.DataSource.DailyHistoryDays)
	}
	if len(cfg.Indicators) != 2 || len(cfg.Signals.Expressions) != 1 {
		t.Errorf("default indicators/signals not applied: %+v", cfg.Indicators)
	}
	if err := cfg.Validate(); err == nil {
		t.Error("expected validation error without tickers")
	}
}

func TestLoad_FileAndEnv(t *testing.T) {
	path := writeConfig(t, `
timezone: UTC
data_source:
  tickers: [vcb, fpt]
  interval: 1h
portfolio:
  assets:
    - ticker: FPT
      qty: 10
      purchased_price: 120
      owned: true
    - ticker: HPG
      qty: 5
      purchased_price: 25
      owned: true
indicators:
  - kind: rsi
    params:
      period: 7
      rsi_col: rsi_7
signals:
  match: any
  thresholds:
    - column: rsi_7
      buy: {op: "<", value: 30}
      sell: {op: ">", value: 70}
`)
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("REDIS_DB", "2")

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatal(err)
	}
	if got := cfg.Tickers(); !reflect.DeepEqual(got, []string{"VCB", "FPT", "HPG"}) {
		t.Errorf("tickers = %v", got)
	}
	if cfg.Location() != time.UTC {
		t.Errorf("location = %v", cfg.Location())
	}
	if cfg.Redis.Addr != "localhost:6379" || cfg.Redis.DB != 2 {
		t.Errorf("redis = %+v", cfg.Redis)
	}
	if len(cfg.Indicators) != 1 || cfg.Indicators[0].Params["period"] != 7 {
		t.Errorf("indicators = %+v", cfg.Indicators)
	}
	if len(cfg.Signals.Expressions) != 0 {
		t.Error("default expression should not be added when thresholds are configured")
	}
	th := cfg.Signals.Thresholds[0]
	if th.Buy == nil || th.Buy.Op != "<" || th.Buy.Value != 30 || th.BuyMax != nil {
		t.Errorf("threshold = %+v", th)
	}
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		cfg, err := Load(filepath.Join(t.TempDir(), "none.yaml"))
		if err != nil {
			t.Fatal(err)
		}
		cfg.DataSource.Tickers = []string{"VCB"}
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad timezone", func(c *Config) { c.Timezone = "Mars/Olympus" }},
		{"bad interval", func(c *Config) { c.DataSource.Interval = "7m" }},
		{"token without chat", func(c *Config) { c.Telegram.BotToken = "x" }},
		{"empty kind", func(c *Config) { c.Indicators = []Indicator{{Key: "k"}} }},
		{"bad match", func(c *Config) { c.Signals.Match = "most" }},
		{"negative rate limit", func(c *Config) { c.DataSource.RateLimit = -1 }},
		{"negative qty", func(c *Config) { c.Portfolio.Assets = []Asset{{Ticker: "A", Qty: -1}} }},
	}
	if err := base().Validate(); err != nil {
		t.Fatalf("base config invalid: %v", err)
	}
	for _, tt := range tests {
		cfg := base()
		tt.mutate(cfg)
		if err := cfg.Validate(); err == nil {
			t.Errorf("%s: expected error", tt.name)
		}
	}
}
