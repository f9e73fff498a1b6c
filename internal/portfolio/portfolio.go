// Package portfolio tracks held positions and computes valuation and risk
// statistics for them.
package portfolio

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"SignalSentinel/internal/model"
)

// ErrUnknownTicker is returned for operations on a ticker not in the portfolio.
var ErrUnknownTicker = errors.New("ticker not in portfolio")

// Portfolio maps tickers to positions. When opened from a holdings file every
// change is written back to it.
type Portfolio struct {
	mu       sync.RWMutex
	assets   map[string]model.Asset
	filePath string
}

// New returns an in-memory portfolio.
func New(assets ...model.Asset) *Portfolio {
	p := &Portfolio{assets: make(map[string]model.Asset, len(assets))}
	for _, a := range assets {
		if a.Ticker != "" {
			p.assets[a.Ticker] = a
		}
	}
	return p
}

// Open loads positions from filePath, seeding it with defaults when the file
// does not exist yet.
func Open(filePath string, defaults ...model.Asset) (*Portfolio, error) {
	assets, found, err := LoadHoldings(filePath)
	if err != nil {
		return nil, fmt.Errorf("load holdings: %w", err)
	}
	if !found {
		assets = defaults
	}
	p := New(assets...)
	p.filePath = filePath
	if !found {
		if err := p.save(); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// Add inserts or replaces a position.
func (p *Portfolio) Add(a model.Asset) error {
	if a.Ticker == "" {
		return errors.New("asset ticker is required")
	}
	if a.Qty < 0 {
		return fmt.Errorf("asset %s: negative quantity", a.Ticker)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.assets[a.Ticker] = a
	return p.save()
}

// AddAll adds several positions.
func (p *Portfolio) AddAll(assets []model.Asset) error {
	for _, a := range assets {
		if err := p.Add(a); err != nil {
			return err
		}
	}
	return nil
}

// Remove deletes a position and returns it.
func (p *Portfolio) Remove(ticker string) (model.Asset, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	a, ok := p.assets[ticker]
	if !ok {
		return model.Asset{}, fmt.Errorf("%w: %s", ErrUnknownTicker, ticker)
	}
	delete(p.assets, ticker)
	return a, p.save()
}

// Get returns a position.
func (p *Portfolio) Get(ticker string) (model.Asset, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	a, ok := p.assets[ticker]
	return a, ok
}

// Exists reports whether the ticker is tracked.
func (p *Portfolio) Exists(ticker string) bool {
	_, ok := p.Get(ticker)
	return ok
}

// IsOwned reports whether the ticker is tracked and currently held.
func (p *Portfolio) IsOwned(ticker string) bool {
	a, ok := p.Get(ticker)
	return ok && a.IsOwned
}

// IsProfitable reports whether price is at or above the purchase price.
func (p *Portfolio) IsProfitable(ticker string, price float64) (bool, error) {
	a, ok := p.Get(ticker)
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrUnknownTicker, ticker)
	}
	return a.PurchasedPrice <= price, nil
}

// Labels returns every tracked ticker, sorted.
func (p *Portfolio) Labels() []string {
	return p.labels(func(model.Asset) bool { return true })
}

// OwnedLabels returns the held tickers, sorted.
func (p *Portfolio) OwnedLabels() []string {
	return p.labels(func(a model.Asset) bool { return a.IsOwned })
}

func (p *Portfolio) labels(keep func(model.Asset) bool) []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]string, 0, len(p.assets))
	for t, a := range p.assets {
		if keep(a) {
			out = append(out, t)
		}
	}
	sort.Strings(out)
	return out
}

// Assets returns a copy of all positions.
func (p *Portfolio) Assets() map[string]model.Asset {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make(map[string]model.Asset, len(p.assets))
	for t, a := range p.assets {
		out[t] = a
	}
	return out
}

// Owned returns a copy of the held positions.
func (p *Portfolio) Owned() map[string]model.Asset {
	out := p.Assets()
	for t, a := range out {
		if !a.IsOwned {
			delete(out, t)
		}
	}
	return out
}

// save must be called with mu held.
func (p *Portfolio) save() error {
	if p.filePath == "" {
		return nil
	}
	assets := make([]model.Asset, 0, len(p.assets))
	for _, a := range p.assets {
		assets = append(assets, a)
	}
	if err := SaveHoldings(p.filePath, assets); err != nil {
		return fmt.Errorf("save holdings: %w", err)
	}
	return nil
}
