package indicator

import (
	"fmt"
	"sort"

	"SignalSentinel/internal/calculator"
	"SignalSentinel/internal/pricestore"
)

// Kind names an indicator implementation.
type Kind string

const (
	KindMACD           Kind = "macd"
	KindSMA            Kind = "sma"
	KindEMA            Kind = "ema"
	KindRSI            Kind = "rsi"
	KindStochRSI       Kind = "stoch_rsi"
	KindATR            Kind = "atr"
	KindBollingerBands Kind = "bollinger_bands"
	KindCCI            Kind = "commodity_channel_index"
	KindStoch          Kind = "stoch"
	KindChaikin        Kind = "chaikin"
)

// Columns maps output column names to series aligned with the ticker's bars.
type Columns map[string][]float64

type definition struct {
	defaults Params
	// outputs lists the column names produced for p, in display order.
	outputs func(p Params) []string
	// key derives the default registration key.
	key     func(p Params) string
	compute func(s pricestore.Series, p Params) Columns
}

func primaryKey(param string) func(Params) string {
	return func(p Params) string { return p.String(param) }
}

func single(param string) func(Params) []string {
	return func(p Params) []string { return []string{p.String(param)} }
}

var definitions = map[Kind]definition{
	KindMACD: {
		defaults: Params{
			"fast_period": 12, "slow_period": 26, "macd_signal_period": 9,
			"macd_col": "macd", "signal_col": "macd_signal",
		},
		outputs: func(p Params) []string { return []string{p.String("macd_col"), p.String("signal_col")} },
		key: func(p Params) string {
			return fmt.Sprintf("%s_%d_%d", p.String("macd_col"), p.Int("fast_period"), p.Int("slow_period"))
		},
		compute: func(s pricestore.Series, p Params) Columns {
			line, sig := calculator.MACD(s.Closes(), p.Int("fast_period"), p.Int("slow_period"), p.Int("macd_signal_period"))
			return Columns{p.String("macd_col"): line, p.String("signal_col"): sig}
		},
	},
	KindSMA: {
		defaults: Params{"period": 20, "sma_col": "sma_20"},
		outputs:  single("sma_col"),
		key:      primaryKey("sma_col"),
		compute: func(s pricestore.Series, p Params) Columns {
			return Columns{p.String("sma_col"): calculator.SMA(s.Closes(), p.Int("period"))}
		},
	},
	KindEMA: {
		defaults: Params{"period": 20, "alpha": 0.0, "ema_col": "ema_20"},
		outputs:  single("ema_col"),
		key:      primaryKey("ema_col"),
		compute: func(s pricestore.Series, p Params) Columns {
			return Columns{p.String("ema_col"): calculator.EMA(s.Closes(), p.Int("period"), p.Float("alpha"))}
		},
	},
	KindRSI: {
		defaults: Params{"period": 14, "ewm": true, "rsi_col": "rsi_14"},
		outputs:  single("rsi_col"),
		key:      primaryKey("rsi_col"),
		compute: func(s pricestore.Series, p Params) Columns {
			return Columns{p.String("rsi_col"): calculator.RSI(s.Closes(), p.Int("period"), p.Bool("ewm"))}
		},
	},
	KindStochRSI: {
		defaults: Params{"period": 14, "ewm": true, "stochrsi_col": "stochrsi_14"},
		outputs:  single("stochrsi_col"),
		key:      primaryKey("stochrsi_col"),
		compute: func(s pricestore.Series, p Params) Columns {
			return Columns{p.String("stochrsi_col"): calculator.StochasticRSI(s.Closes(), p.Int("period"), p.Bool("ewm"))}
		},
	},
	KindATR: {
		defaults: Params{"period": 14, "ewm": true, "atr_col": "atr_14"},
		outputs:  single("atr_col"),
		key:      primaryKey("atr_col"),
		compute: func(s pricestore.Series, p Params) Columns {
			return Columns{p.String("atr_col"): calculator.ATR(s.Highs(), s.Lows(), s.Closes(), p.Int("period"), p.Bool("ewm"))}
		},
	},
	KindBollingerBands: {
		defaults: Params{
			"period": 20, "sigma_width": 2.0,
			"bb_upper_col": "bb_upper", "bb_lower_col": "bb_lower", "bb_width_col": "bbw",
		},
		outputs: func(p Params) []string {
			out := []string{p.String("bb_upper_col"), p.String("bb_lower_col")}
			if w := p.String("bb_width_col"); w != "" {
				out = append(out, w)
			}
			return out
		},
		key: primaryKey("bb_upper_col"),
		compute: func(s pricestore.Series, p Params) Columns {
			b := calculator.BollingerBands(s.Closes(), p.Int("period"), p.Float("sigma_width"))
			cols := Columns{p.String("bb_upper_col"): b.Upper, p.String("bb_lower_col"): b.Lower}
			if w := p.String("bb_width_col"); w != "" {
				cols[w] = b.Width
			}
			return cols
		},
	},
	KindCCI: {
		defaults: Params{"period": 20, "use_mad": true, "cci_col": "cci_20"},
		outputs:  single("cci_col"),
		key:      primaryKey("cci_col"),
		compute: func(s pricestore.Series, p Params) Columns {
			return Columns{p.String("cci_col"): calculator.CCI(s.Highs(), s.Lows(), s.Closes(), p.Int("period"), p.Bool("use_mad"))}
		},
	},
	KindStoch: {
		defaults: Params{"k_period": 14, "d_period": 3, "stoch_k_col": "stoch_14", "stoch_d_col": "stoch_3"},
		outputs:  func(p Params) []string { return []string{p.String("stoch_k_col"), p.String("stoch_d_col")} },
		key:      primaryKey("stoch_k_col"),
		compute: func(s pricestore.Series, p Params) Columns {
			k, d := calculator.Stochastic(s.Highs(), s.Lows(), s.Closes(), p.Int("k_period"), p.Int("d_period"))
			return Columns{p.String("stoch_k_col"): k, p.String("stoch_d_col"): d}
		},
	},
	KindChaikin: {
		defaults: Params{"fast_period": 3, "slow_period": 10, "chaikin_col": "chaikin"},
		outputs:  single("chaikin_col"),
		key:      primaryKey("chaikin_col"),
		compute: func(s pricestore.Series, p Params) Columns {
			return Columns{p.String("chaikin_col"): calculator.Chaikin(
				s.Highs(), s.Lows(), s.Closes(), s.Volumes(), p.Int("fast_period"), p.Int("slow_period"))}
		},
	},
}

// Kinds returns every known kind, sorted.
func Kinds() []Kind {
	out := make([]Kind, 0, len(definitions))
	for k := range definitions {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// AvailableIndicators returns kind name -> parameter name -> default value.
func AvailableIndicators() map[string]map[string]any {
	out := make(map[string]map[string]any, len(definitions))
	for kind, def := range definitions {
		out[string(kind)] = def.defaults.Clone()
	}
	return out
}
