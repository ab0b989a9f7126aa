package live

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"algo-trader/internal/strategy"
	"algo-trader/pkg/types"
)

// Manager owns the live runners, keyed by strategy name and symbol, and
// routes completed bars from the feed to the runners trading that symbol.
type Manager struct {
	mu      sync.RWMutex
	runners map[string]*Runner

	base       Config
	loc        *time.Location
	openMinute int
	place      types.OrderPlacer
	onTrade    types.TradeCallback
	notifier   types.Notifier
}

// NewManager wires a runner manager. base supplies the per-runner defaults;
// Symbol and Quantity may be overridden per Start call.
func NewManager(base Config, loc *time.Location, openMinute int, place types.OrderPlacer, onTrade types.TradeCallback, notifier types.Notifier) *Manager {
	if loc == nil {
		loc = time.UTC
	}
	return &Manager{
		runners:    make(map[string]*Runner),
		base:       base,
		loc:        loc,
		openMinute: openMinute,
		place:      place,
		onTrade:    onTrade,
		notifier:   notifier,
	}
}

func runnerKey(strategyName, symbol string) string {
	return strategyName + "/" + symbol
}

// Start creates and arms a runner for a strategy on a symbol. history warms
// the generator before any live bar arrives; out-of-order bars in it are
// skipped the same way the replay path skips them.
func (m *Manager) Start(params types.StrategyParams, symbol string, quantity int, history []types.Bar) error {
	key := runnerKey(params.Name, symbol)

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.runners[key]; exists {
		return fmt.Errorf("runner %s already active", key)
	}

	gen, err := strategy.New(params, m.loc, m.openMinute)
	if err != nil {
		return err
	}
	if _, _, err := strategy.Precompute(gen, history); err != nil {
		return fmt.Errorf("warm %s: %w", key, err)
	}

	cfg := m.base
	cfg.Symbol = symbol
	if quantity > 0 {
		cfg.Quantity = quantity
	}
	cfg.Location = m.loc

	r, err := NewRunner(cfg, gen, m.place, m.onTrade, m.notifier)
	if err != nil {
		return err
	}
	r.Start()
	m.runners[key] = r

	log.Printf("📡 Runner %s armed with %d warmup bars", key, len(history))
	return nil
}

// Stop disarms and removes a runner, squaring off any open position at
// lastPrice.
func (m *Manager) Stop(ctx context.Context, strategyName, symbol string, lastPrice float64) error {
	key := runnerKey(strategyName, symbol)

	m.mu.Lock()
	r, exists := m.runners[key]
	if exists {
		delete(m.runners, key)
	}
	m.mu.Unlock()

	if !exists {
		return fmt.Errorf("runner %s not active", key)
	}
	r.Stop(ctx, lastPrice)
	return nil
}

// Dispatch feeds a completed bar to every runner trading its symbol.
func (m *Manager) Dispatch(ctx context.Context, bar types.Bar) {
	m.mu.RLock()
	var targets []*Runner
	for key, r := range m.runners {
		if keySymbol(key) == bar.Symbol {
			targets = append(targets, r)
		}
	}
	m.mu.RUnlock()

	for _, r := range targets {
		r.OnBar(ctx, bar)
	}
}

// Statuses snapshots every active runner.
func (m *Manager) Statuses() []Status {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Status, 0, len(m.runners))
	for _, r := range m.runners {
		out = append(out, r.Status())
	}
	return out
}

// Status returns the snapshot for one runner.
func (m *Manager) Status(strategyName, symbol string) (Status, bool) {
	m.mu.RLock()
	r, exists := m.runners[runnerKey(strategyName, symbol)]
	m.mu.RUnlock()

	if !exists {
		return Status{}, false
	}
	return r.Status(), true
}

// StopAll squares off and stops every runner, used at shutdown.
func (m *Manager) StopAll(ctx context.Context, lastPrice func(symbol string) float64) {
	m.mu.Lock()
	runners := m.runners
	m.runners = make(map[string]*Runner)
	m.mu.Unlock()

	for key, r := range runners {
		price := 0.0
		if lastPrice != nil {
			price = lastPrice(keySymbol(key))
		}
		r.Stop(ctx, price)
	}
}

func keySymbol(key string) string {
	for i := 0; i < len(key); i++ {
		if key[i] == '/' {
			return key[i+1:]
		}
	}
	return key
}
