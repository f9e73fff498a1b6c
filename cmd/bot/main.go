package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"SignalSentinel/internal/collector"
	"SignalSentinel/internal/config"
	"SignalSentinel/internal/indicator"
	"SignalSentinel/internal/logging"
	"SignalSentinel/internal/metrics"
	"SignalSentinel/internal/model"
	"SignalSentinel/internal/notifier"
	"SignalSentinel/internal/portfolio"
	"SignalSentinel/internal/pricestore"
	"SignalSentinel/internal/recorder"
	"SignalSentinel/internal/scheduler"
	"SignalSentinel/internal/strategy"

	"go.uber.org/zap"
)

func main() {
	// Load config
	cfgPath := "configs/config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		cfgPath = v
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("config validation: %v", err)
	}

	logger, err := logging.New(cfg.Log.Level)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer logger.Sync()
	logger.Info("SignalSentinel starting", zap.String("config", cfgPath))

	// Context for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Init fetcher
	var fetcher collector.Fetcher
	if cfg.DataSource.BaseURL != "" {
		fetcher = collector.NewVsTraderFetcher(cfg.DataSource.BaseURL, cfg.DataSource.APIKey, cfg.Proxy)
	} else {
		fetcher = collector.NewYahooFetcher(cfg.Proxy)
	}
	tickers := cfg.Tickers()
	logger.Info("data source", zap.String("fetcher", fetcher.Name()), zap.Strings("tickers", tickers))
	col := collector.NewCollector(fetcher, tickers, cfg.DataSource.Interval, cfg.Location(), logger)
	col.SetRateLimit(cfg.DataSource.RateLimit)

	// Init holdings
	defaults := make([]model.Asset, 0, len(cfg.Portfolio.Assets))
	for _, a := range cfg.Portfolio.Assets {
		defaults = append(defaults, model.Asset{
			Ticker:         a.Ticker,
			AssetType:      a.Type,
			PurchasedDate:  a.PurchasedDate,
			Qty:            a.Qty,
			PurchasedPrice: a.PurchasedPrice,
			IsOwned:        a.Owned,
		})
	}
	holdings, err := portfolio.Open(cfg.Portfolio.HoldingsFile, defaults...)
	if err != nil {
		logger.Fatal("open holdings", zap.Error(err))
	}

	// Init indicators and rules
	store := pricestore.New()
	engine := indicator.NewEngine(store, logger)
	keys, err := scheduler.RegisterIndicators(ctx, engine, cfg.Indicators)
	if err != nil {
		logger.Fatal("register indicators", zap.Error(err))
	}
	logger.Info("indicators registered", zap.Strings("keys", keys))

	rules, match, err := scheduler.BuildRules(cfg)
	if err != nil {
		logger.Fatal("build signal rules", zap.Error(err))
	}
	evaluator := strategy.NewEvaluator(cfg.Location())
	evaluator.SetMatch(match)
	if err := evaluator.SetRules(rules...); err != nil {
		logger.Fatal("compile signal rules", zap.Error(err))
	}

	// Init recorders
	var recs recorder.Multi
	var history scheduler.SignalHistory
	if cfg.Database.SQLitePath != "" {
		sr, err := recorder.NewSQLiteRecorder(cfg.Database.SQLitePath, logger)
		if err != nil {
			logger.Warn("init sqlite recorder failed, continuing without it", zap.Error(err))
		} else {
			recs = append(recs, sr)
			history = sr
		}
	}
	if cfg.Redis.Addr != "" {
		rr, err := recorder.NewRedisRecorder(recorder.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		}, logger)
		if err != nil {
			logger.Warn("init redis recorder failed, continuing without it", zap.Error(err))
		} else {
			recs = append(recs, rr)
		}
	}
	defer recs.Close()

	// Init metrics
	m := metrics.New()
	health := metrics.NewHealth()
	go func() {
		if err := m.Serve(ctx, cfg.Metrics.Addr, health, logger); err != nil {
			logger.Error("metrics server stopped", zap.Error(err))
		}
	}()

	deps := scheduler.Deps{
		Collector:        col,
		Store:            store,
		Engine:           engine,
		Evaluator:        evaluator,
		Portfolio:        holdings,
		Recorder:         recs,
		History:          history,
		Metrics:          m,
		Health:           health,
		Logger:           logger,
		HistoryDays:      cfg.DataSource.HistoryDays,
		DailyHistoryDays: cfg.DataSource.DailyHistoryDays,
	}

	// Init Telegram notifier
	tn := notifier.NewTelegramNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Proxy, logger)
	if tn.Enabled() {
		deps.Notifier = tn
	}

	// Init scheduler
	sched := scheduler.NewScheduler(ctx, deps)
	if err := sched.RegisterAll(cfg.Schedule.RefreshCron, cfg.Schedule.MetricsCron); err != nil {
		logger.Fatal("register cron tasks", zap.Error(err))
	}
	sched.Start()
	defer sched.Stop()

	// Start Telegram polling
	if tn.Enabled() {
		go tn.StartPolling(ctx, sched.HandleCommand)
		logger.Info("telegram polling started")
	}

	// Optional: run immediately on start
	if os.Getenv("RUN_ON_START") == "true" {
		logger.Info("RUN_ON_START enabled, executing refresh cycle now")
		go func() {
			if _, err := sched.RunCycle(ctx); err != nil {
				logger.Error("initial cycle failed", zap.Error(err))
			}
		}()
	}

	logger.Info("SignalSentinel is running. Press Ctrl+C to stop.")
	<-ctx.Done()
	logger.Info("shutdown signal received, stopping...")
}
