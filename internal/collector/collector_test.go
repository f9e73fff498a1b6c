package collector

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"SignalSentinel/internal/model"
)

var ict = time.FixedZone("ICT", 7*3600)

func fixedCollector(f Fetcher, tickers ...string) *Collector {
	c := NewCollector(f, tickers, "15m", ict, nil)
	c.now = func() time.Time { return time.Unix(1700000000, 0) }
	return c
}

func bars(ts ...int64) []model.Bar {
	out := make([]model.Bar, len(ts))
	for i, t := range ts {
		out[i] = model.Bar{Timestamp: t, Close: float64(100 + i)}
	}
	return out
}

func TestFetchSince_FiltersAndStamps(t *testing.T) {
	m := &MockFetcher{}
	m.SetBars("VCB", bars(1699990000, 1699995000, 1699999000))
	m.SetBars("FPT", bars(1699000000, 1699999000))

	c := fixedCollector(m, "VCB", "FPT")
	got, err := c.FetchSince(context.Background(), map[string]int64{"VCB": 1699995000}, 30)
	if err != nil {
		t.Fatal(err)
	}
	if len(got["VCB"]) != 2 {
		t.Fatalf("VCB bars = %d, want 2 (last known bar refetched)", len(got["VCB"]))
	}
	if len(got["FPT"]) != 2 {
		t.Errorf("FPT bars = %d, want full window", len(got["FPT"]))
	}
	b := got["VCB"][1]
	if b.Ticker != "VCB" || b.Datetime != "2023-11-15 04:56:40" {
		t.Errorf("bar = %+v", b)
	}
}

func TestFetchSince_PartialAndTotalFailure(t *testing.T) {
	m := &MockFetcher{Err: map[string]error{"BAD": errors.New("boom")}}
	m.SetBars("VCB", bars(1699999000))

	got, err := fixedCollector(m, "VCB", "BAD").FetchSince(context.Background(), nil, 1)
	if err != nil {
		t.Fatalf("partial failure should not error: %v", err)
	}
	if _, ok := got["BAD"]; ok || len(got["VCB"]) != 1 {
		t.Errorf("got = %v", got)
	}

	if _, err := fixedCollector(m, "BAD").FetchSince(context.Background(), nil, 1); err == nil {
		t.Error("expected error when every ticker fails")
	}
}

func TestBuildHistory_GeneratedBars(t *testing.T) {
	m := &MockFetcher{Price: 50, Step: 24 * time.Hour}
	got, err := fixedCollector(m, "HPG").BuildHistory(context.Background(), "1d", 10)
	if err != nil {
		t.Fatal(err)
	}
	if n := len(got["HPG"]); n != 11 {
		t.Errorf("bars = %d, want 11", n)
	}
}

func TestQuotes(t *testing.T) {
	m := &MockFetcher{
		Price:  10,
		Prices: map[string]float64{"VCB": 90},
		Err:    map[string]error{"BAD": errors.New("down")},
	}
	m.SetBars("FPT", bars(1, 2))

	got, err := fixedCollector(m).Quotes(context.Background(), []string{"VCB", "FPT", "BAD", "HPG"})
	if err != nil {
		t.Fatal(err)
	}
	want := map[string]float64{"VCB": 90, "FPT": 101, "HPG": 10}
	if len(got) != len(want) {
		t.Fatalf("quotes = %v", got)
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("%s = %v, want %v", k, got[k], v)
		}
	}
}

func TestVsTraderFetcher(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		switch r.URL.Path {
		case "/api/v1/bars":
			if r.URL.Query().Get("interval") != "15m" {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			w.Write([]byte(`[{"timestamp":200,"close":2},{"timestamp":100,"close":1}]`))
		case "/api/v1/quote":
			w.Write([]byte(`{"price":42.5}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	f := NewVsTraderFetcher(srv.URL, "key", "")
	got, err := f.FetchBars(context.Background(), "VCB", "15m", time.Unix(0, 0), time.Unix(300, 0))
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].Timestamp != 100 || got[1].Ticker != "VCB" {
		t.Errorf("bars = %+v", got)
	}
	p, err := f.FetchCurrentPrice(context.Background(), "VCB")
	if err != nil || p != 42.5 {
		t.Errorf("price = %v, %v", p, err)
	}

	if _, err := NewVsTraderFetcher(srv.URL, "wrong", "").FetchCurrentPrice(context.Background(), "VCB"); err == nil {
		t.Error("expected error on 401")
	}
}

func TestYahooFetcher(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Write([]byte(`{"chart":{"result":[{"meta":{"regularMarketPrice":0},
			"timestamp":[100,200,300],
			"indicators":{"quote":[{"open":[1,null,3],"high":[1,null,3],"low":[1,null,3],
			"close":[1,null,3],"volume":[10,null,30]}]}}],"error":null}}`))
	}))
	defer srv.Close()

	f := NewYahooFetcher("")
	f.BaseURL = srv.URL + "/chart/"

	got, err := f.FetchBars(context.Background(), "FPT", "15m", time.Unix(0, 0), time.Unix(1000, 0))
	if err != nil {
		t.Fatal(err)
	}
	if gotPath != "/chart/FPT.VN" {
		t.Errorf("path = %q", gotPath)
	}
	if len(got) != 2 || got[1].Close != 3 || got[1].Volume != 30 {
		t.Errorf("bars = %+v", got)
	}

	p, err := f.FetchCurrentPrice(context.Background(), "FPT")
	if err != nil || p != 3 {
		t.Errorf("price = %v, %v (want last non-null close)", p, err)
	}
}

func TestSetRateLimit(t *testing.T) {
	c := fixedCollector(&MockFetcher{Price: 10}, "VCB")
	c.SetRateLimit(0)
	if c.Limiter != nil {
		t.Fatal("rate 0 should leave collector unlimited")
	}
	c.SetRateLimit(0.001)
	if c.Limiter == nil {
		t.Fatal("expected limiter")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := c.Quotes(ctx, []string{"VCB"}); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}
