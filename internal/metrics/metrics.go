// Package metrics exposes Prometheus instrumentation for the refresh cycle.
package metrics

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Metrics holds the collectors registered on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	CycleDuration   prometheus.Histogram
	CyclesTotal     *prometheus.CounterVec // labels: result
	BarsAppended    *prometheus.CounterVec // labels: kind=inserted|overwritten
	SignalsTotal    *prometheus.CounterVec // labels: signal
	RefreshDuration prometheus.Histogram
	ActiveIndicator prometheus.Gauge
	PortfolioValue  prometheus.Gauge
	PortfolioReturn prometheus.Gauge
}

// New registers and returns all metrics.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		CycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "signalsentinel_cycle_duration_seconds",
			Help:    "Refresh cycle latency",
			Buckets: prometheus.DefBuckets,
		}),
		CyclesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signalsentinel_cycles_total",
			Help: "Refresh cycles by result",
		}, []string{"result"}),
		BarsAppended: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signalsentinel_bars_appended_total",
			Help: "Bars appended to the price store",
		}, []string{"kind"}),
		SignalsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signalsentinel_signals_total",
			Help: "Signals emitted by label",
		}, []string{"signal"}),
		RefreshDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "signalsentinel_indicator_refresh_duration_seconds",
			Help:    "Indicator recomputation latency",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		}),
		ActiveIndicator: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "signalsentinel_active_indicators",
			Help: "Registered indicators",
		}),
		PortfolioValue: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "signalsentinel_portfolio_market_value",
			Help: "Total market value of held positions",
		}),
		PortfolioReturn: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "signalsentinel_portfolio_return",
			Help: "Total unrealised return of held positions",
		}),
	}

	m.registry.MustRegister(
		m.CycleDuration,
		m.CyclesTotal,
		m.BarsAppended,
		m.SignalsTotal,
		m.RefreshDuration,
		m.ActiveIndicator,
		m.PortfolioValue,
		m.PortfolioReturn,
	)
	return m
}

// Registry returns the registry the metrics live on.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// ObserveCycle records a finished cycle.
func (m *Metrics) ObserveCycle(start time.Time, err error) {
	if m == nil {
		return
	}
	m.CycleDuration.Observe(time.Since(start).Seconds())
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.CyclesTotal.WithLabelValues(result).Inc()
}

// ObserveAppend counts bars merged into the store.
func (m *Metrics) ObserveAppend(inserted, overwritten int) {
	if m == nil {
		return
	}
	m.BarsAppended.WithLabelValues("inserted").Add(float64(inserted))
	m.BarsAppended.WithLabelValues("overwritten").Add(float64(overwritten))
}

// ObserveSignal counts one emitted signal.
func (m *Metrics) ObserveSignal(label string) {
	if m == nil || label == "" {
		return
	}
	m.SignalsTotal.WithLabelValues(label).Inc()
}

// ObserveRefresh records an indicator refresh and the active indicator count.
func (m *Metrics) ObserveRefresh(d time.Duration, active int) {
	if m == nil {
		return
	}
	m.RefreshDuration.Observe(d.Seconds())
	m.ActiveIndicator.Set(float64(active))
}

// SetPortfolio publishes the latest portfolio valuation.
func (m *Metrics) SetPortfolio(marketValue, ret float64) {
	if m == nil {
		return
	}
	m.PortfolioValue.Set(marketValue)
	m.PortfolioReturn.Set(ret)
}

// Health tracks the outcome of the last cycle for /healthz.
type Health struct {
	mu        sync.RWMutex
	startedAt time.Time
	lastCycle time.Time
	lastErr   string
}

// NewHealth returns a health tracker started now.
func NewHealth() *Health {
	return &Health{startedAt: time.Now()}
}

// Record stores the result of a cycle.
func (h *Health) Record(at time.Time, err error) {
	if h == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.lastCycle = at
	h.lastErr = ""
	if err != nil {
		h.lastErr = err.Error()
	}
}

func (h *Health) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	status := struct {
		Status    string `json:"status"`
		Uptime    string `json:"uptime"`
		LastCycle string `json:"last_cycle,omitempty"`
		LastError string `json:"last_error,omitempty"`
	}{
		Status:    "healthy",
		Uptime:    time.Since(h.startedAt).Round(time.Second).String(),
		LastError: h.lastErr,
	}
	if !h.lastCycle.IsZero() {
		status.LastCycle = h.lastCycle.Format(time.RFC3339)
	}

	w.Header().Set("Content-Type", "application/json")
	if h.lastErr != "" {
		status.Status = "degraded"
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	json.NewEncoder(w).Encode(status)
}

// Handler serves /metrics and /healthz.
func (m *Metrics) Handler(h *Health) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
	mux.Handle("/healthz", h)
	return mux
}

// Serve runs the metrics endpoint on addr until ctx is cancelled.
func (m *Metrics) Serve(ctx context.Context, addr string, h *Health, logger *zap.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           m.Handler(h),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	logger.Info("metrics server listening", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
