package strategy

import (
	"errors"
	"fmt"
	"sort"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/ast"
	"github.com/expr-lang/expr/parser"
	"github.com/expr-lang/expr/vm"
)

// ErrExpression marks an expression outside the allowed grammar.
var ErrExpression = errors.New("invalid expression")

var (
	allowedBinary = map[string]bool{
		"<": true, "<=": true, ">": true, ">=": true, "==": true, "!=": true,
		"and": true, "&&": true, "or": true, "||": true,
		"+": true, "-": true, "*": true, "/": true,
	}
	allowedUnary = map[string]bool{"not": true, "!": true, "-": true, "+": true}
)

// ExpressionRule evaluates boolean buy/sell expressions over named columns,
// e.g. "macd > macd_signal and rsi_14 < 30". Only identifiers from Variables,
// numeric literals, arithmetic, comparisons and boolean operators are
// accepted. When Variables is empty every identifier is treated as a column.
// An empty expression never fires.
type ExpressionRule struct {
	Buy       string
	Sell      string
	Variables []string
}

func (r ExpressionRule) Columns() []string {
	cols, err := r.referenced()
	if err != nil {
		return append([]string(nil), r.Variables...)
	}
	return cols
}

func (r ExpressionRule) referenced() ([]string, error) {
	seen := make(map[string]bool)
	for _, src := range []string{r.Buy, r.Sell} {
		if src == "" {
			continue
		}
		idents, err := validate(src, r.allowed())
		if err != nil {
			return nil, err
		}
		for _, id := range idents {
			seen[id] = true
		}
	}
	out := make([]string, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}

func (r ExpressionRule) allowed() map[string]bool {
	if len(r.Variables) == 0 {
		return nil
	}
	m := make(map[string]bool, len(r.Variables))
	for _, v := range r.Variables {
		m[v] = true
	}
	return m
}

func (r ExpressionRule) compile() (compiledRule, error) {
	if r.Buy == "" && r.Sell == "" {
		return nil, fmt.Errorf("%w: expression rule has neither buy nor sell", ErrExpression)
	}
	cols, err := r.referenced()
	if err != nil {
		return nil, err
	}

	env := make(map[string]any, len(cols))
	for _, c := range cols {
		env[c] = 0.0
	}

	c := &compiledExpression{cols: cols}
	if c.buy, err = compileBool(r.Buy, env); err != nil {
		return nil, fmt.Errorf("buy %q: %w", r.Buy, err)
	}
	if c.sell, err = compileBool(r.Sell, env); err != nil {
		return nil, fmt.Errorf("sell %q: %w", r.Sell, err)
	}
	return c, nil
}

func compileBool(src string, env map[string]any) (*vm.Program, error) {
	if src == "" {
		return nil, nil
	}
	return expr.Compile(src,
		expr.Env(env),
		expr.AsBool(),
		expr.DisableAllBuiltins(),
		expr.Patch(notEqual{}),
	)
}

type compiledExpression struct {
	cols      []string
	buy, sell *vm.Program
}

func (c *compiledExpression) columns() []string { return c.cols }

func (c *compiledExpression) eval(get lookup) (bool, bool, error) {
	env := make(map[string]any, len(c.cols))
	for _, col := range c.cols {
		env[col] = get(col)
	}
	buy, err := run(c.buy, env)
	if err != nil {
		return false, false, err
	}
	sell, err := run(c.sell, env)
	if err != nil {
		return false, false, err
	}
	return buy, sell, nil
}

func run(p *vm.Program, env map[string]any) (bool, error) {
	if p == nil {
		return false, nil
	}
	out, err := expr.Run(p, env)
	if err != nil {
		return false, err
	}
	b, _ := out.(bool)
	return b, nil
}

// validate parses src and walks the tree against the allowed grammar. It
// returns the identifiers referenced. A nil allowed set accepts any identifier.
func validate(src string, allowed map[string]bool) ([]string, error) {
	tree, err := parser.Parse(src)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExpression, err)
	}
	v := &grammar{allowed: allowed}
	ast.Walk(&tree.Node, v)
	if v.err != nil {
		return nil, v.err
	}
	return v.idents, nil
}

type grammar struct {
	allowed map[string]bool
	idents  []string
	err     error
}

func (g *grammar) Visit(node *ast.Node) {
	if g.err != nil {
		return
	}
	switch n := (*node).(type) {
	case *ast.IdentifierNode:
		if g.allowed != nil && !g.allowed[n.Value] {
			g.err = fmt.Errorf("%w: unknown identifier %q", ErrExpression, n.Value)
			return
		}
		g.idents = append(g.idents, n.Value)
	case *ast.IntegerNode, *ast.FloatNode:
	case *ast.UnaryNode:
		if !allowedUnary[n.Operator] {
			g.err = fmt.Errorf("%w: operator %q not allowed", ErrExpression, n.Operator)
		}
	case *ast.BinaryNode:
		if !allowedBinary[n.Operator] {
			g.err = fmt.Errorf("%w: operator %q not allowed", ErrExpression, n.Operator)
		}
	default:
		g.err = fmt.Errorf("%w: %s not allowed", ErrExpression, nodeName(n))
	}
}

func nodeName(n ast.Node) string {
	switch n.(type) {
	case *ast.CallNode, *ast.BuiltinNode:
		return "function call"
	case *ast.MemberNode, *ast.ChainNode:
		return "member access"
	case *ast.StringNode:
		return "string literal"
	case *ast.BoolNode:
		return "boolean literal"
	case *ast.ConditionalNode:
		return "conditional"
	}
	return fmt.Sprintf("%T", n)
}

// notEqual rewrites a != b into a < b || a > b so that NaN operands compare false.
type notEqual struct{}

func (notEqual) Visit(node *ast.Node) {
	b, ok := (*node).(*ast.BinaryNode)
	if !ok || b.Operator != "!=" {
		return
	}
	ast.Patch(node, &ast.BinaryNode{
		Operator: "||",
		Left:     &ast.BinaryNode{Operator: "<", Left: b.Left, Right: b.Right},
		Right:    &ast.BinaryNode{Operator: ">", Left: b.Left, Right: b.Right},
	})
}
