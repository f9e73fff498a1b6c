package strategy

import (
	"fmt"
	"math"
)

// Op is a comparison operator used by threshold and pair rules.
type Op string

const (
	OpGT Op = ">"
	OpGE Op = ">="
	OpLT Op = "<"
	OpLE Op = "<="
	OpEQ Op = "=="
	OpNE Op = "!="
)

// ParseOp validates an operator string.
func ParseOp(s string) (Op, error) {
	switch op := Op(s); op {
	case OpGT, OpGE, OpLT, OpLE, OpEQ, OpNE:
		return op, nil
	}
	return "", fmt.Errorf("unsupported operator %q", s)
}

// Compare applies the operator. Any NaN operand yields false.
func (o Op) Compare(a, b float64) bool {
	if math.IsNaN(a) || math.IsNaN(b) {
		return false
	}
	switch o {
	case OpGT:
		return a > b
	case OpGE:
		return a >= b
	case OpLT:
		return a < b
	case OpLE:
		return a <= b
	case OpEQ:
		return a == b
	case OpNE:
		return a != b
	}
	return false
}

// Bound is one side of a threshold comparison: value Op Threshold.
type Bound struct {
	Op        Op
	Threshold float64
}

func (b *Bound) holds(v float64) bool {
	return b != nil && b.Op.Compare(v, b.Threshold)
}

// lookup resolves a bound column value for the row being evaluated.
type lookup func(column string) float64

// Rule is a buy/sell condition over the bound columns of a row.
type Rule interface {
	// Columns lists the columns the rule reads.
	Columns() []string
	compile() (compiledRule, error)
}

type compiledRule interface {
	columns() []string
	eval(get lookup) (buy, sell bool, err error)
}

// ThresholdRule compares one column against fixed thresholds. A side with a
// Max bound additionally requires the value to satisfy it, which expresses
// ranges such as 20 < rsi < 30.
type ThresholdRule struct {
	Column  string
	Buy     *Bound
	BuyMax  *Bound
	Sell    *Bound
	SellMax *Bound
}

func (r ThresholdRule) Columns() []string { return []string{r.Column} }

func (r ThresholdRule) compile() (compiledRule, error) {
	if r.Column == "" {
		return nil, fmt.Errorf("threshold rule: empty column")
	}
	for _, b := range []*Bound{r.Buy, r.BuyMax, r.Sell, r.SellMax} {
		if b == nil {
			continue
		}
		if _, err := ParseOp(string(b.Op)); err != nil {
			return nil, fmt.Errorf("threshold rule %s: %w", r.Column, err)
		}
	}
	if r.Buy == nil && r.Sell == nil {
		return nil, fmt.Errorf("threshold rule %s: no buy or sell bound", r.Column)
	}
	return r, nil
}

func (r ThresholdRule) columns() []string { return r.Columns() }

func (r ThresholdRule) eval(get lookup) (bool, bool, error) {
	v := get(r.Column)
	buy := r.Buy.holds(v) && (r.BuyMax == nil || r.BuyMax.holds(v))
	sell := r.Sell.holds(v) && (r.SellMax == nil || r.SellMax.holds(v))
	return buy, sell, nil
}

// PairRule compares two columns, e.g. macd against macd_signal.
// An empty operator disables that side.
type PairRule struct {
	ColumnA string
	ColumnB string
	BuyOp   Op
	SellOp  Op
}

func (r PairRule) Columns() []string { return []string{r.ColumnA, r.ColumnB} }

func (r PairRule) compile() (compiledRule, error) {
	if r.ColumnA == "" || r.ColumnB == "" {
		return nil, fmt.Errorf("pair rule: both columns are required")
	}
	if r.BuyOp == "" && r.SellOp == "" {
		return nil, fmt.Errorf("pair rule %s/%s: no buy or sell operator", r.ColumnA, r.ColumnB)
	}
	for _, op := range []Op{r.BuyOp, r.SellOp} {
		if op == "" {
			continue
		}
		if _, err := ParseOp(string(op)); err != nil {
			return nil, fmt.Errorf("pair rule %s/%s: %w", r.ColumnA, r.ColumnB, err)
		}
	}
	return r, nil
}

func (r PairRule) columns() []string { return r.Columns() }

func (r PairRule) eval(get lookup) (bool, bool, error) {
	a, b := get(r.ColumnA), get(r.ColumnB)
	buy := r.BuyOp != "" && r.BuyOp.Compare(a, b)
	sell := r.SellOp != "" && r.SellOp.Compare(a, b)
	return buy, sell, nil
}
