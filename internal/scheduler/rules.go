package scheduler

import (
	"context"
	"fmt"

	"SignalSentinel/internal/config"
	"SignalSentinel/internal/indicator"
	"SignalSentinel/internal/strategy"
)

// RegisterIndicators registers every configured indicator on the engine.
func RegisterIndicators(ctx context.Context, engine *indicator.Engine, cfgs []config.Indicator) ([]string, error) {
	keys := make([]string, 0, len(cfgs))
	for i, c := range cfgs {
		key, err := engine.Register(ctx, indicator.Kind(c.Kind), indicator.Params(c.Params), c.Key)
		if err != nil {
			return nil, fmt.Errorf("indicators[%d] %s: %w", i, c.Kind, err)
		}
		keys = append(keys, key)
	}
	return keys, nil
}

func bound(b *config.Bound) (*strategy.Bound, error) {
	if b == nil {
		return nil, nil
	}
	op, err := strategy.ParseOp(b.Op)
	if err != nil {
		return nil, err
	}
	return &strategy.Bound{Op: op, Threshold: b.Value}, nil
}

func optionalOp(s string) (strategy.Op, error) {
	if s == "" {
		return "", nil
	}
	return strategy.ParseOp(s)
}

// BuildRules converts the configured signal rules. Expressions come first,
// then thresholds, then pairs.
func BuildRules(cfg *config.Config) ([]strategy.Rule, strategy.Match, error) {
	match, err := strategy.ParseMatch(cfg.Signals.Match)
	if err != nil {
		return nil, "", err
	}

	var rules []strategy.Rule
	for _, e := range cfg.Signals.Expressions {
		rules = append(rules, strategy.ExpressionRule{Buy: e.Buy, Sell: e.Sell, Variables: e.Variables})
	}
	for i, t := range cfg.Signals.Thresholds {
		r := strategy.ThresholdRule{Column: t.Column}
		bounds := []struct {
			src *config.Bound
			dst **strategy.Bound
		}{{t.Buy, &r.Buy}, {t.BuyMax, &r.BuyMax}, {t.Sell, &r.Sell}, {t.SellMax, &r.SellMax}}
		for _, b := range bounds {
			if *b.dst, err = bound(b.src); err != nil {
				return nil, "", fmt.Errorf("signals.thresholds[%d]: %w", i, err)
			}
		}
		rules = append(rules, r)
	}
	for i, p := range cfg.Signals.Pairs {
		buy, err := optionalOp(p.BuyOp)
		if err != nil {
			return nil, "", fmt.Errorf("signals.pairs[%d]: %w", i, err)
		}
		sell, err := optionalOp(p.SellOp)
		if err != nil {
			return nil, "", fmt.Errorf("signals.pairs[%d]: %w", i, err)
		}
		rules = append(rules, strategy.PairRule{ColumnA: p.ColumnA, ColumnB: p.ColumnB, BuyOp: buy, SellOp: sell})
	}
	return rules, match, nil
}
