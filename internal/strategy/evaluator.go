// Package strategy evaluates buy/sell rules against the latest indicator row
// of every ticker.
package strategy

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"SignalSentinel/internal/model"
)

// ErrNoRules is returned by Evaluate before any rule has been set.
var ErrNoRules = errors.New("no signal rules configured")

// MissingIndicatorError reports rule columns absent from the evaluated rows.
type MissingIndicatorError struct {
	Columns []string
}

func (e *MissingIndicatorError) Error() string {
	return fmt.Sprintf("missing indicator columns: %s", strings.Join(e.Columns, ", "))
}

// Match controls how multiple rules combine into one signal.
type Match string

const (
	// MatchAll fires a side only when every rule agrees.
	MatchAll Match = "all"
	// MatchAny fires a side when at least one rule does.
	MatchAny Match = "any"
)

// ParseMatch validates a match mode; empty means MatchAll.
func ParseMatch(s string) (Match, error) {
	switch m := Match(strings.ToLower(s)); m {
	case "":
		return MatchAll, nil
	case MatchAll, MatchAny:
		return m, nil
	}
	return "", fmt.Errorf("unsupported match mode %q", s)
}

// Evaluator holds the active rule set.
type Evaluator struct {
	rules   []compiledRule
	columns []string
	match   Match
	loc     *time.Location
}

// NewEvaluator creates an evaluator that formats signal times in loc.
func NewEvaluator(loc *time.Location) *Evaluator {
	if loc == nil {
		loc = time.UTC
	}
	return &Evaluator{match: MatchAll, loc: loc}
}

// SetMatch changes how rules combine.
func (e *Evaluator) SetMatch(m Match) { e.match = m }

// SetRules compiles and replaces the active rule set. On error the previous
// set is kept.
func (e *Evaluator) SetRules(rules ...Rule) error {
	compiled := make([]compiledRule, 0, len(rules))
	seen := make(map[string]bool)
	var cols []string
	for i, r := range rules {
		c, err := r.compile()
		if err != nil {
			return fmt.Errorf("rule %d: %w", i, err)
		}
		compiled = append(compiled, c)
		for _, col := range c.columns() {
			if !seen[col] {
				seen[col] = true
				cols = append(cols, col)
			}
		}
	}
	sort.Strings(cols)
	e.rules = compiled
	e.columns = cols
	return nil
}

// Columns returns every column referenced by the active rules.
func (e *Evaluator) Columns() []string {
	return append([]string(nil), e.columns...)
}

// Evaluate applies the rules to each row. All referenced columns must be
// present in every row; otherwise a *MissingIndicatorError is returned and no
// records are produced.
func (e *Evaluator) Evaluate(rows []model.Row) ([]model.SignalRecord, error) {
	if len(e.rules) == 0 {
		return nil, ErrNoRules
	}
	if missing := e.missing(rows); len(missing) > 0 {
		return nil, &MissingIndicatorError{Columns: missing}
	}

	records := make([]model.SignalRecord, 0, len(rows))
	for _, row := range rows {
		get := func(col string) float64 {
			if v, ok := row.Value(col); ok {
				return v
			}
			return math.NaN()
		}

		buy, sell, err := e.combine(get)
		if err != nil {
			return nil, fmt.Errorf("evaluate %s: %w", row.Ticker, err)
		}
		records = append(records, model.SignalRecord{
			Ticker:     row.Ticker,
			Buy:        buy,
			Sell:       sell,
			AtTime:     row.Time(e.loc).Format(model.AtTimeLayout),
			Signal:     model.Label(buy, sell),
			ClosePrice: row.Close,
		})
	}
	return records, nil
}

func (e *Evaluator) missing(rows []model.Row) []string {
	set := make(map[string]bool)
	for _, row := range rows {
		for _, col := range e.columns {
			if _, ok := row.Value(col); !ok {
				set[col] = true
			}
		}
	}
	out := make([]string, 0, len(set))
	for col := range set {
		out = append(out, col)
	}
	sort.Strings(out)
	return out
}

func (e *Evaluator) combine(get lookup) (buy, sell bool, err error) {
	buy, sell = e.match == MatchAll, e.match == MatchAll
	for _, r := range e.rules {
		b, s, err := r.eval(get)
		if err != nil {
			return false, false, err
		}
		if e.match == MatchAny {
			buy, sell = buy || b, sell || s
		} else {
			buy, sell = buy && b, sell && s
		}
	}
	return buy, sell, nil
}
