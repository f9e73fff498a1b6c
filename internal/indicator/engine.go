// Package indicator derives technical indicator columns from a price store.
package indicator

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"SignalSentinel/internal/model"
	"SignalSentinel/internal/pricestore"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ActiveIndicator is a registered indicator with its concrete parameters.
type ActiveIndicator struct {
	Key     string
	Kind    Kind
	Params  Params
	Outputs []string
}

// Engine keeps the active indicators and their computed columns per ticker.
// Every refresh recomputes all columns from the full series.
type Engine struct {
	store  *pricestore.Store
	logger *zap.Logger

	// Parallelism bounds per-ticker workers during refresh.
	Parallelism int

	active []ActiveIndicator
	frame  map[string]Columns
}

// NewEngine creates an engine reading from store.
func NewEngine(store *pricestore.Store, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		store:       store,
		logger:      logger,
		Parallelism: runtime.GOMAXPROCS(0),
		frame:       make(map[string]Columns),
	}
}

// Register validates params against the kind defaults, stores the indicator
// under key (derived from its output column when empty) and computes it.
// Registering an existing key replaces the previous definition.
func (e *Engine) Register(ctx context.Context, kind Kind, params Params, key string) (string, error) {
	def, ok := definitions[kind]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	p, err := merge(kind, def.defaults, params)
	if err != nil {
		return "", err
	}
	outputs := def.outputs(p)
	for _, col := range outputs {
		if col == "" {
			return "", fmt.Errorf("%w: %s has an empty output column", ErrInvalidParam, kind)
		}
	}
	if key == "" {
		key = def.key(p)
	}

	ai := ActiveIndicator{Key: key, Kind: kind, Params: p, Outputs: outputs}
	replaced := false
	for i := range e.active {
		if e.active[i].Key == key {
			e.active[i] = ai
			replaced = true
			break
		}
	}
	if !replaced {
		e.active = append(e.active, ai)
	}

	e.logger.Info("indicator registered",
		zap.String("key", key),
		zap.String("kind", string(kind)),
		zap.Strings("columns", outputs),
		zap.Bool("replaced", replaced),
	)
	return key, e.Refresh(ctx)
}

// Unregister removes an indicator; its columns disappear on the next refresh.
func (e *Engine) Unregister(key string) bool {
	for i := range e.active {
		if e.active[i].Key == key {
			e.active = append(e.active[:i], e.active[i+1:]...)
			return true
		}
	}
	return false
}

// Active returns the registered indicators in registration order.
func (e *Engine) Active() []ActiveIndicator {
	out := make([]ActiveIndicator, len(e.active))
	copy(out, e.active)
	return out
}

// Columns lists every output column of the active indicators.
func (e *Engine) Columns() []string {
	var out []string
	seen := make(map[string]bool)
	for _, ai := range e.active {
		for _, c := range ai.Outputs {
			if !seen[c] {
				seen[c] = true
				out = append(out, c)
			}
		}
	}
	return out
}

// Refresh recomputes every active indicator for every ticker. Tickers are
// computed in parallel; the new columns replace the old ones only when all
// tickers succeed.
func (e *Engine) Refresh(ctx context.Context) error {
	start := time.Now()
	groups := e.store.GroupedByTicker()
	active := e.Active()
	results := make([]Columns, len(groups))

	g, gctx := errgroup.WithContext(ctx)
	if e.Parallelism > 0 {
		g.SetLimit(e.Parallelism)
	}
	for i, s := range groups {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = computeAll(s, active)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("refresh indicators: %w", err)
	}

	frame := make(map[string]Columns, len(groups))
	for i, s := range groups {
		frame[s.Ticker] = results[i]
	}
	e.frame = frame

	e.logger.Debug("indicators refreshed",
		zap.Int("tickers", len(groups)),
		zap.Int("indicators", len(active)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return nil
}

func computeAll(s pricestore.Series, active []ActiveIndicator) Columns {
	cols := make(Columns)
	for _, ai := range active {
		for name, values := range definitions[ai.Kind].compute(s, ai.Params) {
			cols[name] = values
		}
	}
	return cols
}

// Column returns a computed column for a ticker.
func (e *Engine) Column(ticker, column string) ([]float64, bool) {
	values, ok := e.frame[ticker][column]
	return values, ok
}

// LatestRows projects the last bar of every ticker together with the value of
// each indicator column at that bar. Columns computed before the latest
// append are left out.
func (e *Engine) LatestRows() []model.Row {
	groups := e.store.GroupedByTicker()
	rows := make([]model.Row, 0, len(groups))
	for _, s := range groups {
		if s.Len() == 0 {
			continue
		}
		last := s.Bars[s.Len()-1]
		values := make(map[string]float64)
		for name, col := range e.frame[s.Ticker] {
			if len(col) == s.Len() {
				values[name] = col[len(col)-1]
			}
		}
		rows = append(rows, model.Row{Bar: last, Values: values})
	}
	return rows
}
