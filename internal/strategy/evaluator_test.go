package strategy

import (
	"errors"
	"math"
	"reflect"
	"testing"
	"time"

	"SignalSentinel/internal/model"
)

func row(ticker string, close float64, values map[string]float64) model.Row {
	return model.Row{
		Bar:    model.Bar{Ticker: ticker, Timestamp: 1_700_000_000, Close: close},
		Values: values,
	}
}

func TestEvaluate_ExpressionBuy(t *testing.T) {
	e := NewEvaluator(time.FixedZone("ICT", 7*3600))
	err := e.SetRules(ExpressionRule{
		Buy:       "macd > macd_signal and rsi_14 < 30",
		Sell:      "macd < macd_signal and rsi_14 > 70",
		Variables: []string{"macd", "macd_signal", "rsi_14"},
	})
	if err != nil {
		t.Fatalf("SetRules: %v", err)
	}

	recs, err := e.Evaluate([]model.Row{
		row("VCB", 88.5, map[string]float64{"macd": 1.2, "macd_signal": 0.9, "rsi_14": 25}),
		row("FPT", 120, map[string]float64{"macd": -1, "macd_signal": 0.5, "rsi_14": 75}),
		row("ACB", 22, map[string]float64{"macd": 1, "macd_signal": 0.5, "rsi_14": 50}),
	})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}

	want := []model.SignalRecord{
		{Ticker: "VCB", Buy: true, AtTime: "2023-11-15 05:13:20", Signal: "Buy", ClosePrice: 88.5},
		{Ticker: "FPT", Sell: true, AtTime: "2023-11-15 05:13:20", Signal: "Sell", ClosePrice: 120},
		{Ticker: "ACB", AtTime: "2023-11-15 05:13:20", ClosePrice: 22},
	}
	if !reflect.DeepEqual(recs, want) {
		t.Errorf("records =\n%+v\nwant\n%+v", recs, want)
	}
}

func TestEvaluate_MissingColumns(t *testing.T) {
	e := NewEvaluator(nil)
	if err := e.SetRules(ExpressionRule{Buy: "rsi_14 < 30 and cci_20 < -100"}); err != nil {
		t.Fatal(err)
	}
	recs, err := e.Evaluate([]model.Row{
		row("VCB", 1, map[string]float64{"rsi_14": 20}),
		row("FPT", 1, map[string]float64{}),
	})
	var missing *MissingIndicatorError
	if !errors.As(err, &missing) {
		t.Fatalf("err = %v, want MissingIndicatorError", err)
	}
	if !reflect.DeepEqual(missing.Columns, []string{"cci_20", "rsi_14"}) {
		t.Errorf("missing = %v", missing.Columns)
	}
	if recs != nil {
		t.Errorf("records = %v, want none", recs)
	}
}

func TestEvaluate_NaNComparesFalse(t *testing.T) {
	nan := math.NaN()
	tests := []struct {
		name string
		rule Rule
	}{
		{"expression lt", ExpressionRule{Buy: "rsi_14 < 30", Sell: "rsi_14 >= 0"}},
		{"expression ne", ExpressionRule{Buy: "rsi_14 != 30", Sell: "not (rsi_14 == 30) and rsi_14 != 1"}},
		{"threshold", ThresholdRule{Column: "rsi_14", Buy: &Bound{OpLT, 30}, Sell: &Bound{OpNE, 70}}},
		{"pair", PairRule{ColumnA: "rsi_14", ColumnB: "close", BuyOp: OpNE, SellOp: OpLE}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewEvaluator(nil)
			if err := e.SetRules(tt.rule); err != nil {
				t.Fatal(err)
			}
			recs, err := e.Evaluate([]model.Row{row("VCB", 10, map[string]float64{"rsi_14": nan})})
			if err != nil {
				t.Fatal(err)
			}
			if recs[0].Buy || recs[0].Sell || recs[0].Signal != "" {
				t.Errorf("record = %+v, want no signal for NaN input", recs[0])
			}
		})
	}
}

func TestEvaluate_SellOverridesBuy(t *testing.T) {
	e := NewEvaluator(nil)
	if err := e.SetRules(ThresholdRule{Column: "rsi_14", Buy: &Bound{OpGT, 10}, Sell: &Bound{OpGT, 20}}); err != nil {
		t.Fatal(err)
	}
	recs, err := e.Evaluate([]model.Row{row("VCB", 1, map[string]float64{"rsi_14": 50})})
	if err != nil {
		t.Fatal(err)
	}
	if !recs[0].Buy || !recs[0].Sell || recs[0].Signal != model.SignalSell {
		t.Errorf("record = %+v, want both flags and Sell", recs[0])
	}
}

func TestThresholdRule_Range(t *testing.T) {
	r := ThresholdRule{
		Column: "rsi_14",
		Buy:    &Bound{OpGT, 20}, BuyMax: &Bound{OpLT, 30},
		Sell: &Bound{OpGT, 70},
	}
	e := NewEvaluator(nil)
	if err := e.SetRules(r); err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		rsi       float64
		buy, sell bool
	}{
		{25, true, false},
		{15, false, false},
		{30, false, false},
		{80, false, true},
	}
	for _, tt := range tests {
		recs, err := e.Evaluate([]model.Row{row("VCB", 1, map[string]float64{"rsi_14": tt.rsi})})
		if err != nil {
			t.Fatal(err)
		}
		if recs[0].Buy != tt.buy || recs[0].Sell != tt.sell {
			t.Errorf("rsi=%v: buy=%v sell=%v, want %v/%v", tt.rsi, recs[0].Buy, recs[0].Sell, tt.buy, tt.sell)
		}
	}
}

func TestPairRule(t *testing.T) {
	e := NewEvaluator(nil)
	if err := e.SetRules(PairRule{ColumnA: "macd", ColumnB: "macd_signal", BuyOp: OpGT, SellOp: OpLT}); err != nil {
		t.Fatal(err)
	}
	recs, err := e.Evaluate([]model.Row{
		row("UP", 1, map[string]float64{"macd": 2, "macd_signal": 1}),
		row("DOWN", 1, map[string]float64{"macd": 0, "macd_signal": 1}),
	})
	if err != nil {
		t.Fatal(err)
	}
	if recs[0].Signal != "Buy" || recs[1].Signal != "Sell" {
		t.Errorf("signals = %q, %q", recs[0].Signal, recs[1].Signal)
	}
}

func TestEvaluate_MatchModes(t *testing.T) {
	rules := []Rule{
		ThresholdRule{Column: "rsi_14", Buy: &Bound{OpLT, 30}},
		PairRule{ColumnA: "macd", ColumnB: "macd_signal", BuyOp: OpGT},
	}
	r := row("VCB", 1, map[string]float64{"rsi_14": 25, "macd": 0, "macd_signal": 1})

	for _, tt := range []struct {
		match Match
		buy   bool
	}{{MatchAll, false}, {MatchAny, true}} {
		e := NewEvaluator(nil)
		e.SetMatch(tt.match)
		if err := e.SetRules(rules...); err != nil {
			t.Fatal(err)
		}
		recs, err := e.Evaluate([]model.Row{r})
		if err != nil {
			t.Fatal(err)
		}
		if recs[0].Buy != tt.buy {
			t.Errorf("match %s: buy = %v, want %v", tt.match, recs[0].Buy, tt.buy)
		}
	}
}

func TestSetRules_RejectsOutsideGrammar(t *testing.T) {
	tests := []struct {
		name string
		rule ExpressionRule
	}{
		{"function call", ExpressionRule{Buy: "abs(macd) > 1"}},
		{"member access", ExpressionRule{Buy: "row.macd > 1"}},
		{"string literal", ExpressionRule{Buy: "macd == 'x'"}},
		{"modulo", ExpressionRule{Buy: "macd % 2 == 0"}},
		{"ternary", ExpressionRule{Buy: "macd > 0 ? true : false"}},
		{"bool literal", ExpressionRule{Buy: "true"}},
		{"undeclared identifier", ExpressionRule{Buy: "macd > rsi_14", Variables: []string{"macd"}}},
		{"syntax", ExpressionRule{Buy: "macd >"}},
		{"not boolean", ExpressionRule{Buy: "macd + 1"}},
		{"empty", ExpressionRule{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewEvaluator(nil)
			if err := e.SetRules(tt.rule); err == nil {
				t.Errorf("expected error for %q", tt.rule.Buy)
			}
		})
	}
}

func TestSetRules_ErrorKeepsPreviousSet(t *testing.T) {
	e := NewEvaluator(nil)
	if err := e.SetRules(ExpressionRule{Buy: "rsi_14 < 30"}); err != nil {
		t.Fatal(err)
	}
	if err := e.SetRules(PairRule{ColumnA: "macd"}); err == nil {
		t.Fatal("expected error")
	}
	if got := e.Columns(); !reflect.DeepEqual(got, []string{"rsi_14"}) {
		t.Errorf("columns = %v, want [rsi_14]", got)
	}
}

func TestEvaluate_NoRules(t *testing.T) {
	if _, err := NewEvaluator(nil).Evaluate(nil); !errors.Is(err, ErrNoRules) {
		t.Errorf("err = %v, want ErrNoRules", err)
	}
}

func TestExpression_Arithmetic(t *testing.T) {
	e := NewEvaluator(nil)
	if err := e.SetRules(ExpressionRule{Buy: "close < bb_lower * 1.01 && -atr_14 < 0"}); err != nil {
		t.Fatal(err)
	}
	recs, err := e.Evaluate([]model.Row{row("VCB", 100, map[string]float64{"bb_lower": 99.5, "atr_14": 2})})
	if err != nil {
		t.Fatal(err)
	}
	if !recs[0].Buy {
		t.Errorf("expected buy, got %+v", recs[0])
	}
}
