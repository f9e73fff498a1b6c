package scheduler

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"SignalSentinel/internal/collector"
	"SignalSentinel/internal/config"
	"SignalSentinel/internal/indicator"
	"SignalSentinel/internal/metrics"
	"SignalSentinel/internal/model"
	"SignalSentinel/internal/portfolio"
	"SignalSentinel/internal/pricestore"
	"SignalSentinel/internal/strategy"
)

type captureRecorder struct {
	mu        sync.Mutex
	signals   map[string][]model.SignalRecord
	portfolio []map[string]model.PortfolioMetric
}

func (c *captureRecorder) RecordSignals(_ context.Context, cycleID string, records []model.SignalRecord) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.signals == nil {
		c.signals = make(map[string][]model.SignalRecord)
	}
	c.signals[cycleID] = records
	return nil
}

func (c *captureRecorder) RecordPortfolio(_ context.Context, _ string, _ model.Valuations, m map[string]model.PortfolioMetric) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.portfolio = append(c.portfolio, m)
	return nil
}

func (c *captureRecorder) Close() error { return nil }

type captureNotifier struct {
	mu   sync.Mutex
	sent []string
}

func (c *captureNotifier) SendWithRetry(_ context.Context, text string, _ int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, text)
	return nil
}

type fixture struct {
	sched    *Scheduler
	fetcher  *collector.MockFetcher
	store    *pricestore.Store
	recorder *captureRecorder
	notifier *captureNotifier
	base     int64
}

const step = int64(15 * 60)

func series(ticker string, base int64, closes ...float64) []model.Bar {
	out := make([]model.Bar, len(closes))
	for i, c := range closes {
		out[i] = model.Bar{Ticker: ticker, Timestamp: base + int64(i)*step, Open: c, High: c, Low: c, Close: c, Volume: 100}
	}
	return out
}

func newFixture(t *testing.T, rules ...strategy.Rule) *fixture {
	t.Helper()
	ctx := context.Background()
	base := time.Now().Add(-10 * time.Hour).Unix()

	f := &fixture{
		fetcher:  &collector.MockFetcher{},
		store:    pricestore.New(),
		recorder: &captureRecorder{},
		notifier: &captureNotifier{},
		base:     base,
	}
	f.fetcher.SetBars("VCB", series("VCB", base, 10, 11, 12, 13, 14))
	f.fetcher.SetBars("FPT", series("FPT", base, 14, 13, 12, 11, 10))

	engine := indicator.NewEngine(f.store, nil)
	if _, err := engine.Register(ctx, indicator.KindSMA, indicator.Params{"period": 3, "sma_col": "sma_3"}, ""); err != nil {
		t.Fatal(err)
	}
	ev := strategy.NewEvaluator(time.UTC)
	if len(rules) == 0 {
		rules = []strategy.Rule{strategy.ExpressionRule{Buy: "close > sma_3", Sell: "close < sma_3"}}
	}
	if err := ev.SetRules(rules...); err != nil {
		t.Fatal(err)
	}

	f.sched = NewScheduler(ctx, Deps{
		Collector: collector.NewCollector(f.fetcher, []string{"VCB", "FPT"}, "15m", time.UTC, nil),
		Store:     f.store,
		Engine:    engine,
		Evaluator: ev,
		Portfolio: portfolio.New(
			model.Asset{Ticker: "VCB", Qty: 10, PurchasedPrice: 12, IsOwned: true},
			model.Asset{Ticker: "FPT", Qty: 5, PurchasedPrice: 12, IsOwned: true},
		),
		Recorder:         f.recorder,
		Notifier:         f.notifier,
		Metrics:          metrics.New(),
		Health:           metrics.NewHealth(),
		HistoryDays:      2,
		DailyHistoryDays: 2,
	})
	ids := 0
	f.sched.newID = func() string {
		ids++
		return "cycle-" + string(rune('0'+ids))
	}
	return f
}

func bySignal(records []model.SignalRecord) map[string]string {
	out := make(map[string]string, len(records))
	for _, r := range records {
		out[r.Ticker] = r.Signal
	}
	return out
}

func TestRunCycle_BuildsHistoryAndSignals(t *testing.T) {
	f := newFixture(t)
	records, err := f.sched.RunCycle(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	got := bySignal(records)
	if got["VCB"] != model.SignalBuy || got["FPT"] != model.SignalSell {
		t.Errorf("signals = %v", got)
	}
	if f.store.Len() != 10 {
		t.Errorf("store len = %d, want 10", f.store.Len())
	}
	if len(f.recorder.signals["cycle-1"]) != 2 {
		t.Errorf("recorded = %v", f.recorder.signals)
	}
	if len(f.notifier.sent) != 1 || !strings.Contains(f.notifier.sent[0], "VCB") {
		t.Errorf("notifications = %v", f.notifier.sent)
	}

	vals := f.sched.valuations
	if vals.Tickers["VCB"].MarketValue != 140 || vals.Tickers["FPT"].MarketValue != 50 {
		t.Errorf("valuations = %+v", vals.Tickers)
	}
}

func TestRunCycle_AppendsIncrementally(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.sched.RunCycle(ctx); err != nil {
		t.Fatal(err)
	}

	f.fetcher.SetBars("VCB", series("VCB", f.base, 10, 11, 12, 13, 14, 5))
	records, err := f.sched.RunCycle(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if f.store.Len() != 11 {
		t.Errorf("store len = %d, want 11", f.store.Len())
	}
	if got := bySignal(records); got["VCB"] != model.SignalSell {
		t.Errorf("VCB signal after drop = %q, want Sell", got["VCB"])
	}
	last, _ := f.store.LastRow("VCB")
	if last.Close != 5 {
		t.Errorf("last close = %v", last.Close)
	}
}

func TestRunCycle_MissingIndicator(t *testing.T) {
	f := newFixture(t, strategy.ThresholdRule{Column: "rsi_14", Buy: &strategy.Bound{Op: strategy.OpLT, Threshold: 30}})
	_, err := f.sched.RunCycle(context.Background())
	var missing *strategy.MissingIndicatorError
	if !errors.As(err, &missing) || missing.Columns[0] != "rsi_14" {
		t.Fatalf("err = %v, want MissingIndicatorError", err)
	}
	if len(f.recorder.signals) != 0 {
		t.Error("nothing should be recorded on a failed cycle")
	}
}

func TestRunCycle_FetchFailure(t *testing.T) {
	f := newFixture(t)
	f.fetcher.Err = map[string]error{"VCB": errors.New("down"), "FPT": errors.New("down")}
	if _, err := f.sched.RunCycle(context.Background()); err == nil {
		t.Fatal("expected error when every ticker fails")
	}
}

func TestRunPortfolioMetrics(t *testing.T) {
	f := newFixture(t)
	m, err := f.sched.RunPortfolioMetrics(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	p, ok := m[model.PortfolioKey]
	if !ok || p.Weight != 1 {
		t.Fatalf("portfolio row = %+v", p)
	}
	if w := m["VCB"].Weight + m["FPT"].Weight; w < 0.999999 || w > 1.000001 {
		t.Errorf("weights sum = %v", w)
	}
	if len(f.recorder.portfolio) != 1 {
		t.Errorf("portfolio records = %d", len(f.recorder.portfolio))
	}
	if len(f.notifier.sent) != 1 || !strings.Contains(f.notifier.sent[0], "组合") {
		t.Errorf("notifications = %v", f.notifier.sent)
	}
}

func TestHandleCommand(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if got := f.sched.HandleCommand(ctx, "/signals"); !strings.Contains(got, "尚未执行刷新") {
		t.Errorf("/signals before run = %q", got)
	}
	if got := f.sched.HandleCommand(ctx, "/run"); !strings.Contains(got, "VCB") {
		t.Errorf("/run = %q", got)
	}
	if got := f.sched.HandleCommand(ctx, "/signals@SignalBot"); !strings.Contains(got, "FPT") {
		t.Errorf("/signals = %q", got)
	}
	if got := f.sched.HandleCommand(ctx, "/indicators"); !strings.Contains(got, "sma_3") {
		t.Errorf("/indicators = %q", got)
	}
	if got := f.sched.HandleCommand(ctx, "/portfolio"); !strings.Contains(got, "VCB") {
		t.Errorf("/portfolio = %q", got)
	}
	if got := f.sched.HandleCommand(ctx, "/history"); !strings.Contains(got, "未启用") {
		t.Errorf("/history = %q", got)
	}
	if got := f.sched.HandleCommand(ctx, "  "); !strings.Contains(got, "/signals") {
		t.Errorf("help = %q", got)
	}
}

func TestRegisterAll(t *testing.T) {
	f := newFixture(t)
	if err := f.sched.RegisterAll("0 */15 9-14 * * 1-5", "0 30 15 * * 1-5"); err != nil {
		t.Fatal(err)
	}
	if len(f.sched.Cron.Entries()) != 2 {
		t.Errorf("entries = %d", len(f.sched.Cron.Entries()))
	}
	if err := f.sched.RegisterAll("bad", "0 30 15 * * 1-5"); err == nil {
		t.Error("expected error for invalid cron spec")
	}
}

func TestBuildRules(t *testing.T) {
	cfg := &config.Config{}
	cfg.Signals.Match = "any"
	cfg.Signals.Expressions = []config.Expression{{Buy: "rsi_14 < 30"}}
	cfg.Signals.Thresholds = []config.Threshold{{
		Column: "rsi_14",
		Buy:    &config.Bound{Op: ">", Value: 20},
		BuyMax: &config.Bound{Op: "<", Value: 30},
	}}
	cfg.Signals.Pairs = []config.Pair{{ColumnA: "macd", ColumnB: "macd_signal", BuyOp: ">"}}

	rules, match, err := BuildRules(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if match != strategy.MatchAny || len(rules) != 3 {
		t.Fatalf("match = %q, rules = %d", match, len(rules))
	}
	th, ok := rules[1].(strategy.ThresholdRule)
	if !ok || th.Buy.Op != strategy.OpGT || th.BuyMax.Threshold != 30 || th.Sell != nil {
		t.Errorf("threshold = %+v", rules[1])
	}
	pr := rules[2].(strategy.PairRule)
	if pr.BuyOp != strategy.OpGT || pr.SellOp != "" {
		t.Errorf("pair = %+v", pr)
	}

	cfg.Signals.Pairs[0].SellOp = "=>"
	if _, _, err := BuildRules(cfg); err == nil {
		t.Error("expected error for bad operator")
	}
}

func TestRegisterIndicators(t *testing.T) {
	engine := indicator.NewEngine(pricestore.New(), nil)
	keys, err := RegisterIndicators(context.Background(), engine, []config.Indicator{
		{Kind: "macd"},
		{Kind: "rsi", Params: map[string]any{"period": 7, "rsi_col": "rsi_7"}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(keys) != 2 || keys[0] != "macd_12_26" || keys[1] != "rsi_7" {
		t.Errorf("keys = %v", keys)
	}
	if _, err := RegisterIndicators(context.Background(), engine, []config.Indicator{{Kind: "nope"}}); !errors.Is(err, indicator.ErrUnknownKind) {
		t.Errorf("err = %v", err)
	}
}
