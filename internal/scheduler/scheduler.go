package scheduler

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"SignalSentinel/internal/collector"
	"SignalSentinel/internal/indicator"
	"SignalSentinel/internal/metrics"
	"SignalSentinel/internal/model"
	"SignalSentinel/internal/notifier"
	"SignalSentinel/internal/portfolio"
	"SignalSentinel/internal/pricestore"
	"SignalSentinel/internal/recorder"
	"SignalSentinel/internal/strategy"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Notifier delivers formatted messages.
type Notifier interface {
	SendWithRetry(ctx context.Context, text string, maxRetries int) error
}

// SignalHistory reads back recorded signals.
type SignalHistory interface {
	RecentSignals(ctx context.Context, limit int) ([]model.SignalRecord, error)
}

// Deps wires the scheduler. Notifier, History, Metrics and Health are optional.
type Deps struct {
	Collector *collector.Collector
	Store     *pricestore.Store
	Engine    *indicator.Engine
	Evaluator *strategy.Evaluator
	Portfolio *portfolio.Portfolio
	Recorder  recorder.Recorder
	Notifier  Notifier
	History   SignalHistory
	Metrics   *metrics.Metrics
	Health    *metrics.Health
	Logger    *zap.Logger

	// HistoryDays bounds the initial intraday history; DailyHistoryDays the
	// daily history used for return statistics.
	HistoryDays      int
	DailyHistoryDays int
}

// Scheduler runs the refresh cycle and the portfolio metrics task on cron.
type Scheduler struct {
	Deps
	Cron *cron.Cron
	Ctx  context.Context

	// mu serializes cycles and metrics runs.
	mu sync.Mutex

	stateMu     sync.RWMutex
	lastSignals []model.SignalRecord
	lastAt      time.Time
	valuations  model.Valuations
	riskMetrics map[string]model.PortfolioMetric

	now   func() time.Time
	newID func() string
}

// NewScheduler creates a new Scheduler.
func NewScheduler(ctx context.Context, deps Deps) *Scheduler {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Recorder == nil {
		deps.Recorder = recorder.NewNoopRecorder()
	}
	cl := cronLogger{deps.Logger.Sugar()}
	return &Scheduler{
		Deps:  deps,
		Cron:  cron.New(cron.WithSeconds(), cron.WithChain(cron.SkipIfStillRunning(cl)), cron.WithLogger(cl)),
		Ctx:   ctx,
		now:   time.Now,
		newID: uuid.NewString,
	}
}

type cronLogger struct{ l *zap.SugaredLogger }

func (c cronLogger) Info(msg string, kv ...interface{}) { c.l.Debugw(msg, kv...) }

func (c cronLogger) Error(err error, msg string, kv ...interface{}) {
	c.l.Errorw(msg, append(kv, "error", err)...)
}

// RegisterAll registers the refresh and portfolio metrics tasks.
func (s *Scheduler) RegisterAll(refreshCron, metricsCron string) error {
	if _, err := s.Cron.AddFunc(refreshCron, s.refreshTask); err != nil {
		return fmt.Errorf("register refresh task: %w", err)
	}
	if _, err := s.Cron.AddFunc(metricsCron, s.metricsTask); err != nil {
		return fmt.Errorf("register metrics task: %w", err)
	}
	return nil
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.Cron.Start()
	s.Logger.Info("scheduler started")
}

// Stop stops the cron scheduler and waits for running jobs.
func (s *Scheduler) Stop() {
	<-s.Cron.Stop().Done()
	s.Logger.Info("scheduler stopped")
}

func (s *Scheduler) refreshTask() {
	if _, err := s.RunCycle(s.Ctx); err != nil {
		s.Logger.Error("refresh cycle failed", zap.Error(err))
	}
}

func (s *Scheduler) metricsTask() {
	if _, err := s.RunPortfolioMetrics(s.Ctx); err != nil {
		s.Logger.Error("portfolio metrics failed", zap.Error(err))
		s.trySend(fmt.Sprintf("❌ 组合指标计算失败: %v", err))
	}
}

// RunCycle fetches new bars, refreshes indicators, evaluates the rules on the
// latest row of every ticker, then records and announces the signals.
func (s *Scheduler) RunCycle(ctx context.Context) ([]model.SignalRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := s.now()
	cycleID := s.newID()
	log := s.Logger.With(zap.String("cycle_id", cycleID))
	records, err := s.runCycle(ctx, cycleID, log)
	s.Metrics.ObserveCycle(start, err)
	s.Health.Record(start, err)
	if err != nil {
		return nil, err
	}
	log.Info("cycle finished", zap.Int("tickers", len(records)), zap.Duration("elapsed", s.now().Sub(start)))
	return records, nil
}

func (s *Scheduler) runCycle(ctx context.Context, cycleID string, log *zap.Logger) ([]model.SignalRecord, error) {
	var (
		bars map[string][]model.Bar
		err  error
	)
	if s.Store.Len() == 0 {
		bars, err = s.Collector.BuildHistory(ctx, s.Collector.Interval, s.HistoryDays)
	} else {
		bars, err = s.Collector.FetchSince(ctx, s.Store.LastTimestamps(), s.HistoryDays)
	}
	if err != nil {
		return nil, fmt.Errorf("fetch bars: %w", err)
	}
	res := s.Store.Append(bars)
	s.Metrics.ObserveAppend(res.Inserted, res.Overwritten)
	log.Debug("bars appended", zap.Int("inserted", res.Inserted), zap.Int("overwritten", res.Overwritten))

	refreshStart := s.now()
	if err := s.Engine.Refresh(ctx); err != nil {
		return nil, err
	}
	s.Metrics.ObserveRefresh(s.now().Sub(refreshStart), len(s.Engine.Active()))

	records, err := s.Evaluator.Evaluate(s.Engine.LatestRows())
	if err != nil {
		return nil, fmt.Errorf("evaluate signals: %w", err)
	}

	fired := 0
	for _, r := range records {
		s.Metrics.ObserveSignal(r.Signal)
		if r.HasSignal() {
			fired++
			log.Info("signal", zap.String("ticker", r.Ticker), zap.String("signal", r.Signal),
				zap.Float64("close", r.ClosePrice), zap.String("at", r.AtTime))
		}
	}
	if err := s.Recorder.RecordSignals(ctx, cycleID, records); err != nil {
		log.Error("record signals failed", zap.Error(err))
	}

	vals := s.valuePortfolio()
	s.Metrics.SetPortfolio(vals.Total.MarketValue, vals.Total.Return)

	s.stateMu.Lock()
	s.lastSignals = records
	s.lastAt = s.now()
	s.valuations = vals
	s.stateMu.Unlock()

	if fired > 0 {
		s.trySend(notifier.FormatSignals(records, s.now()))
	}
	return records, nil
}

// valuePortfolio prices held positions at the latest stored close.
func (s *Scheduler) valuePortfolio() model.Valuations {
	if s.Portfolio == nil {
		return model.Valuations{}
	}
	owned := s.Portfolio.Owned()
	quotes := make(map[string]float64, len(owned))
	for t := range owned {
		if b, ok := s.Store.LastRow(t); ok {
			quotes[t] = b.Close
		}
	}
	return portfolio.MarketValues(owned, quotes)
}

// RunPortfolioMetrics builds a daily price history for the held positions and
// derives weights, mean daily returns and volatility per ticker and in total.
func (s *Scheduler) RunPortfolioMetrics(ctx context.Context) (map[string]model.PortfolioMetric, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Portfolio == nil {
		return nil, fmt.Errorf("no portfolio configured")
	}
	owned := s.Portfolio.Owned()
	tickers := make([]string, 0, len(owned))
	for t := range owned {
		tickers = append(tickers, t)
	}
	sort.Strings(tickers)
	if len(tickers) == 0 {
		return nil, fmt.Errorf("no owned positions")
	}

	cycleID := s.newID()
	log := s.Logger.With(zap.String("cycle_id", cycleID))

	daily, err := s.Collector.History(ctx, tickers, "1d", s.DailyHistoryDays)
	if err != nil {
		return nil, fmt.Errorf("fetch daily history: %w", err)
	}
	stats := portfolio.ComputeReturnStats(pricestore.Build(daily).GroupedByTicker(), 0)

	quotes, err := s.Collector.Quotes(ctx, tickers)
	if err != nil {
		return nil, fmt.Errorf("fetch quotes: %w", err)
	}
	vals := portfolio.MarketValues(owned, quotes)
	weights, err := portfolio.Weights(vals)
	if err != nil {
		return nil, err
	}
	result, err := portfolio.Metrics(weights, stats)
	if err != nil {
		return nil, err
	}

	if err := s.Recorder.RecordPortfolio(ctx, cycleID, vals, result); err != nil {
		log.Error("record portfolio failed", zap.Error(err))
	}
	s.Metrics.SetPortfolio(vals.Total.MarketValue, vals.Total.Return)

	s.stateMu.Lock()
	s.valuations = vals
	s.riskMetrics = result
	s.stateMu.Unlock()

	log.Info("portfolio metrics computed",
		zap.Int("tickers", len(tickers)),
		zap.Float64("market_value", vals.Total.MarketValue),
		zap.Float64("std", result[model.PortfolioKey].Std))
	s.trySend(notifier.FormatPortfolio(vals) + "\n" + notifier.FormatMetrics(result))
	return result, nil
}

// HandleCommand processes a user command and returns a reply.
func (s *Scheduler) HandleCommand(ctx context.Context, command string) string {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return notifier.FormatHelp()
	}
	cmd := strings.ToLower(fields[0])
	if i := strings.Index(cmd, "@"); i > 0 {
		cmd = cmd[:i]
	}

	switch cmd {
	case "/signals", "查看信号":
		s.stateMu.RLock()
		defer s.stateMu.RUnlock()
		if s.lastAt.IsZero() {
			return "尚未执行刷新，请稍后再试"
		}
		return notifier.FormatSignals(s.lastSignals, s.lastAt)
	case "/portfolio", "查看持仓":
		s.stateMu.RLock()
		defer s.stateMu.RUnlock()
		return notifier.FormatPortfolio(s.valuations)
	case "/metrics", "查看风险":
		s.stateMu.RLock()
		m := s.riskMetrics
		s.stateMu.RUnlock()
		if m == nil {
			var err error
			if m, err = s.RunPortfolioMetrics(ctx); err != nil {
				return fmt.Sprintf("❌ 组合指标计算失败: %v", err)
			}
		}
		return notifier.FormatMetrics(m)
	case "/indicators", "查看指标":
		s.mu.Lock()
		defer s.mu.Unlock()
		return notifier.FormatIndicators(s.Engine.Active())
	case "/history":
		if s.History == nil {
			return "未启用信号记录"
		}
		recs, err := s.History.RecentSignals(ctx, 10)
		if err != nil {
			return fmt.Sprintf("❌ 查询失败: %v", err)
		}
		return notifier.FormatSignals(recs, s.now())
	case "/run", "立即刷新":
		records, err := s.RunCycle(ctx)
		if err != nil {
			return fmt.Sprintf("❌ 刷新失败: %v", err)
		}
		return notifier.FormatSignals(records, s.now())
	default:
		return notifier.FormatHelp()
	}
}

func (s *Scheduler) trySend(text string) {
	if s.Notifier == nil {
		return
	}
	if err := s.Notifier.SendWithRetry(s.Ctx, text, 3); err != nil {
		s.Logger.Error("send notification failed", zap.Error(err))
	}
}
