package recorder

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"SignalSentinel/internal/model"

	goredis "github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

const (
	signalStream     = "signals"
	signalStreamLen  = 10000
	latestSignalTTL  = 24 * time.Hour
	portfolioKey     = "portfolio:metrics"
	portfolioChannel = "pub:portfolio"
)

// RedisConfig configures the Redis recorder.
type RedisConfig struct {
	Addr     string // Redis address, e.g. "localhost:6379"
	Password string
	DB       int
}

// RedisRecorder publishes cycle output to Redis streams, keys and channels.
type RedisRecorder struct {
	client *goredis.Client
	logger *zap.Logger
}

// NewRedisRecorder connects and pings the server.
func NewRedisRecorder(cfg RedisConfig, logger *zap.Logger) (*RedisRecorder, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	logger.Info("redis recorder connected", zap.String("addr", cfg.Addr))
	return &RedisRecorder{client: client, logger: logger}, nil
}

// Client returns the underlying Redis client for health checks.
func (r *RedisRecorder) Client() *goredis.Client { return r.client }

// signalPayload is the JSON published per signal.
type signalPayload struct {
	CycleID    string   `json:"cycle_id"`
	Ticker     string   `json:"ticker"`
	Signal     string   `json:"signal"`
	Buy        bool     `json:"buy"`
	Sell       bool     `json:"sell"`
	AtTime     string   `json:"at_time"`
	ClosePrice *float64 `json:"close_price"`
}

func encodeSignal(cycleID string, rec model.SignalRecord) ([]byte, error) {
	return json.Marshal(signalPayload{
		CycleID:    cycleID,
		Ticker:     rec.Ticker,
		Signal:     rec.Signal,
		Buy:        rec.Buy,
		Sell:       rec.Sell,
		AtTime:     rec.AtTime,
		ClosePrice: finite(rec.ClosePrice),
	})
}

// RecordSignals writes XADD + SET + PUBLISH per record in a single pipeline.
func (r *RedisRecorder) RecordSignals(ctx context.Context, cycleID string, records []model.SignalRecord) error {
	if len(records) == 0 {
		return nil
	}
	pipe := r.client.Pipeline()
	for _, rec := range records {
		data, err := encodeSignal(cycleID, rec)
		if err != nil {
			return fmt.Errorf("encode signal %s: %w", rec.Ticker, err)
		}
		payload := string(data)
		pipe.XAdd(ctx, &goredis.XAddArgs{
			Stream: signalStream,
			MaxLen: signalStreamLen,
			Approx: true,
			Values: map[string]interface{}{"data": payload},
		})
		pipe.Set(ctx, "signal:latest:"+rec.Ticker, payload, latestSignalTTL)
		if rec.HasSignal() {
			pipe.Publish(ctx, "pub:signal:"+rec.Ticker, payload)
		}
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis signal pipeline (%d records): %w", len(records), err)
	}
	return nil
}

func encodePortfolio(cycleID string, v model.Valuations, metrics map[string]model.PortfolioMetric) ([]byte, error) {
	return json.Marshal(struct {
		CycleID string         `json:"cycle_id"`
		Rows    []portfolioRow `json:"rows"`
	}{cycleID, portfolioRows(v, metrics)})
}

// RecordPortfolio stores the latest snapshot and announces it.
func (r *RedisRecorder) RecordPortfolio(ctx context.Context, cycleID string, v model.Valuations, metrics map[string]model.PortfolioMetric) error {
	data, err := encodePortfolio(cycleID, v, metrics)
	if err != nil {
		return fmt.Errorf("encode portfolio: %w", err)
	}
	pipe := r.client.Pipeline()
	pipe.Set(ctx, portfolioKey, string(data), 0)
	pipe.Publish(ctx, portfolioChannel, string(data))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis portfolio pipeline: %w", err)
	}
	return nil
}

func (r *RedisRecorder) Close() error {
	r.logger.Info("closing redis recorder")
	return r.client.Close()
}
