package notifier

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"SignalSentinel/internal/indicator"
	"SignalSentinel/internal/model"
)

func TestFormatSignals(t *testing.T) {
	at := time.Date(2024, 1, 2, 10, 15, 0, 0, time.UTC)
	msg := FormatSignals([]model.SignalRecord{
		{Ticker: "VCB", Signal: model.SignalBuy, ClosePrice: 90500, AtTime: "2024-01-02 10:15:00"},
		{Ticker: "FPT"},
		{Ticker: "HPG", Signal: model.SignalSell, ClosePrice: 27.5, AtTime: "2024-01-02 10:15:00"},
	}, at)

	for _, want := range []string{"2024-01-02 10:15", "🟢 <b>买入</b> VCB @ 90,500", "🔴 <b>卖出</b> HPG @ 27.5"} {
		if !strings.Contains(msg, want) {
			t.Errorf("message missing %q:\n%s", want, msg)
		}
	}
	if strings.Contains(msg, "FPT") {
		t.Error("ticker without signal should be omitted")
	}

	if empty := FormatSignals(nil, at); !strings.Contains(empty, "暂无买卖信号") {
		t.Errorf("empty message = %q", empty)
	}
}

func TestFormatPortfolio(t *testing.T) {
	msg := FormatPortfolio(model.Valuations{
		Tickers: map[string]model.Valuation{
			"FPT": {CurrentPrice: 110, MarketValue: 1100, Return: 100, ReturnPct: 0.1, Profitable: true},
			"ACB": {CurrentPrice: 40, MarketValue: 200, Return: -50, ReturnPct: math.NaN()},
		},
		Total: model.Valuation{MarketValue: 1300, InvestedValue: 1250, Return: 50, ReturnPct: 0.04},
	})
	for _, want := range []string{"📈 FPT", "市值 1,100", "+10.00%", "📉 ACB", "N/A", "总市值: 1,300", "+4.00%"} {
		if !strings.Contains(msg, want) {
			t.Errorf("message missing %q:\n%s", want, msg)
		}
	}
	if strings.Index(msg, "ACB") > strings.Index(msg, "FPT") {
		t.Error("tickers should be sorted")
	}
}

func TestFormatMetrics(t *testing.T) {
	msg := FormatMetrics(map[string]model.PortfolioMetric{
		model.PortfolioKey: {Weight: 1, Mean: 0.001, Std: 0.02},
		"FPT":              {Weight: 0.6, Mean: 0.002, Std: math.NaN()},
	})
	if !strings.Contains(msg, "FPT: 权重 0.60 | 均值 +0.20% | 波动 N/A") {
		t.Errorf("ticker line wrong:\n%s", msg)
	}
	if !strings.HasSuffix(msg, "组合: 权重 1.00 | 均值 +0.10% | 波动 +2.00%\n") {
		t.Errorf("portfolio row should be last:\n%s", msg)
	}
}

func TestFormatIndicators(t *testing.T) {
	msg := FormatIndicators([]indicator.ActiveIndicator{
		{Key: "macd_12_26", Kind: indicator.KindMACD, Outputs: []string{"macd", "macd_signal"}},
	})
	if !strings.Contains(msg, "macd_12_26 (macd): macd, macd_signal") {
		t.Errorf("message = %s", msg)
	}
}

func TestSendWithRetry(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		var payload map[string]string
		json.NewDecoder(r.Body).Decode(&payload)
		if r.URL.Path != "/bottoken/sendMessage" || payload["chat_id"] != "42" || payload["parse_mode"] != "HTML" {
			w.WriteHeader(http.StatusBadRequest)
		}
	}))
	defer srv.Close()

	n := NewTelegramNotifier("token", "42", "", nil)
	n.APIBase = srv.URL
	if err := n.SendWithRetry(context.Background(), "hi", 1); err != nil {
		t.Fatalf("send: %v", err)
	}
	if calls.Load() != 2 {
		t.Errorf("calls = %d, want 2", calls.Load())
	}
}

func TestPoll_DispatchesCommands(t *testing.T) {
	var (
		mu      sync.Mutex
		replies []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/getUpdates"):
			w.Write([]byte(`{"ok":true,"result":[{"update_id":7,"message":{"text":" /signals "}},{"update_id":8}]}`))
		case strings.HasSuffix(r.URL.Path, "/sendMessage"):
			var payload map[string]string
			json.NewDecoder(r.Body).Decode(&payload)
			mu.Lock()
			replies = append(replies, payload["text"])
			mu.Unlock()
		}
	}))
	defer srv.Close()

	n := NewTelegramNotifier("token", "42", "", nil)
	n.APIBase = srv.URL
	var got string
	next, err := n.poll(context.Background(), srv.Client(), 0, func(_ context.Context, cmd string) string {
		got = cmd
		return "ok"
	})
	if err != nil {
		t.Fatal(err)
	}
	if next != 9 || got != "/signals" {
		t.Errorf("next = %d, command = %q", next, got)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(replies) != 1 || replies[0] != "ok" {
		t.Errorf("replies = %v", replies)
	}
}

func TestEnabled(t *testing.T) {
	var n *TelegramNotifier
	if n.Enabled() {
		t.Error("nil notifier should be disabled")
	}
	if NewTelegramNotifier("", "1", "", nil).Enabled() {
		t.Error("notifier without token should be disabled")
	}
}
