package live

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"algo-trader/internal/backtest"
	"algo-trader/internal/strategy"
	"algo-trader/pkg/types"
)

// Config parametrizes one live runner instance.
type Config struct {
	Symbol        string
	Quantity      int
	Costs         types.CostConfig
	Location      *time.Location
	SquareOffHour int
	SquareOffMin  int
	OrderTimeout  time.Duration
}

// Status is a point-in-time snapshot of a runner, safe to serialize.
type Status struct {
	Symbol      string          `json:"symbol"`
	Strategy    string          `json:"strategy"`
	Running     bool            `json:"running"`
	Position    *types.Position `json:"position,omitempty"`
	TradesToday int             `json:"trades_today"`
	LastBarTime int64           `json:"last_bar_time,omitempty"`
	LastError   string          `json:"last_error,omitempty"`
}

// Runner drives one strategy instance against the live 1-minute stream and
// executes through an injected order placer. Bars from the feed funnel
// through OnBar under the runner's mutex, so the generator never sees
// concurrent calls.
type Runner struct {
	mu sync.Mutex

	cfg      Config
	gen      strategy.Generator
	place    types.OrderPlacer
	onTrade  types.TradeCallback
	notifier types.Notifier

	running   bool
	position  *types.Position
	trades    []types.Trade
	lastBar   int64
	lastClose float64
	lastErr   string
}

// NewRunner wires a runner. place is required; onTrade and notifier may be
// nil.
func NewRunner(cfg Config, gen strategy.Generator, place types.OrderPlacer, onTrade types.TradeCallback, notifier types.Notifier) (*Runner, error) {
	if gen == nil {
		return nil, fmt.Errorf("live runner needs a strategy generator")
	}
	if place == nil {
		return nil, fmt.Errorf("live runner needs an order placer")
	}
	if cfg.Quantity <= 0 {
		cfg.Quantity = 1
	}
	if cfg.Costs == (types.CostConfig{}) {
		cfg.Costs = backtest.DefaultCosts
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.SquareOffHour == 0 {
		cfg.SquareOffHour = 15
		cfg.SquareOffMin = 15
	}
	if cfg.OrderTimeout <= 0 {
		cfg.OrderTimeout = 5 * time.Second
	}
	return &Runner{cfg: cfg, gen: gen, place: place, onTrade: onTrade, notifier: notifier}, nil
}

// Start arms the runner. Bars received while stopped are dropped.
func (r *Runner) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.running = true
	log.Printf("▶️  Live runner started: %s on %s", r.gen.Params().Name, r.cfg.Symbol)
}

// Stop disarms the runner. An open position is squared off at the last seen
// close before stopping.
func (r *Runner) Stop(ctx context.Context, lastPrice float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.position != nil && lastPrice > 0 {
		r.exit(ctx, lastPrice, r.lastBar, types.ExitMarketClose)
	}
	r.running = false
	log.Printf("⏹️  Live runner stopped: %s on %s", r.gen.Params().Name, r.cfg.Symbol)
}

// OnBar processes one completed 1-minute bar. Exits are evaluated before the
// bar's own signal, matching the replay engine's ordering.
func (r *Runner) OnBar(ctx context.Context, bar types.Bar) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.running {
		return
	}

	// A position never survives into the next trading day. If the previous
	// session's bars stopped before the square-off clock (half-day, feed
	// outage), settle at that session's last seen close.
	if r.position != nil && r.lastBar != 0 && !sameDay(r.lastBar, bar.Time, r.cfg.Location) {
		r.exit(ctx, r.lastClose, r.lastBar, types.ExitMarketClose)
	}
	r.lastBar = bar.Time
	r.lastClose = bar.Close

	sig, _, err := r.gen.OnBar(bar)
	if err != nil {
		r.lastErr = err.Error()
		r.notify("warn", fmt.Sprintf("%s: bar %d rejected: %v", r.cfg.Symbol, bar.Time, err))
		return
	}

	if r.position != nil {
		if r.checkExits(ctx, bar, sig) {
			sig = nil
		}
	}

	atSquareOff := r.squareOffReached(bar)
	if r.position != nil && atSquareOff {
		r.exit(ctx, bar.Close, bar.Time, types.ExitMarketClose)
	}

	if r.position == nil && sig != nil && !sig.IsExit && !atSquareOff {
		r.enter(ctx, sig)
	}
}

// checkExits applies stop/target first-touch, then a same-bar exit signal.
// Returns true when the signal was consumed by an exit.
func (r *Runner) checkExits(ctx context.Context, bar types.Bar, sig *types.Signal) bool {
	pos := r.position

	hitStop := false
	hitTarget := false
	if pos.Direction == types.Long {
		hitStop = pos.StopLoss > 0 && bar.Low <= pos.StopLoss
		hitTarget = pos.TakeProfit > 0 && bar.High >= pos.TakeProfit
		if hitStop && hitTarget {
			hitTarget = bar.High-bar.Open < bar.Open-bar.Low
			hitStop = !hitTarget
		}
	} else {
		hitStop = pos.StopLoss > 0 && bar.High >= pos.StopLoss
		hitTarget = pos.TakeProfit > 0 && bar.Low <= pos.TakeProfit
		if hitStop && hitTarget {
			hitTarget = bar.Open-bar.Low < bar.High-bar.Open
			hitStop = !hitTarget
		}
	}

	switch {
	case hitStop:
		r.exit(ctx, pos.StopLoss, bar.Time, types.ExitStopLoss)
		return true
	case hitTarget:
		r.exit(ctx, pos.TakeProfit, bar.Time, types.ExitTakeProfit)
		return true
	case sig != nil && (sig.IsExit || oppositeDir(sig.Type, pos.Direction)):
		r.exit(ctx, sig.Price, bar.Time, types.ExitSignal)
		return true
	case sig != nil:
		// Same-direction signal while holding: dropped, no pyramiding.
		return true
	}
	return false
}

// enter places the entry order. If the broker rejects it, the generator is
// re-armed so the same setup can fire again, and the runner stays flat.
func (r *Runner) enter(ctx context.Context, sig *types.Signal) {
	dir := types.Long
	if sig.Type == types.SignalSell {
		dir = types.Short
	}

	octx, cancel := context.WithTimeout(ctx, r.cfg.OrderTimeout)
	defer cancel()

	result, err := r.place(octx, sig.Type, r.cfg.Quantity)
	if err != nil {
		r.lastErr = err.Error()
		r.gen.Rearm(dir)
		r.notify("error", fmt.Sprintf("%s: entry order failed, signal re-armed: %v", r.cfg.Symbol, err))
		log.Printf("❌ Entry order failed for %s: %v", r.cfg.Symbol, err)
		return
	}

	entryPrice := result.Price
	if entryPrice <= 0 {
		entryPrice = sig.Price
	}

	r.position = &types.Position{
		ID:         sig.ID,
		Direction:  dir,
		EntryTime:  sig.Time,
		EntryPrice: entryPrice,
		StopLoss:   sig.StopLoss,
		TakeProfit: sig.TakeProfit,
		Quantity:   r.cfg.Quantity,
		Indicators: sig.Indicators,
	}
	log.Printf("✅ Entered %s %s @ %.2f (order %s)", dir, r.cfg.Symbol, entryPrice, result.OrderID)
	r.notify("info", fmt.Sprintf("%s: entered %s @ %.2f", r.cfg.Symbol, dir, entryPrice))
}

// exit closes the position through the broker and records the trade. A
// rejected exit order is surfaced but the position is still closed locally:
// the broker's own intraday square-off is the backstop.
func (r *Runner) exit(ctx context.Context, price float64, exitTime int64, reason types.ExitReason) {
	pos := r.position
	r.position = nil

	side := types.SignalSell
	if pos.Direction == types.Short {
		side = types.SignalBuy
	}

	octx, cancel := context.WithTimeout(ctx, r.cfg.OrderTimeout)
	defer cancel()

	result, err := r.place(octx, side, pos.Quantity)
	if err != nil {
		r.lastErr = err.Error()
		r.notify("error", fmt.Sprintf("%s: exit order failed: %v", r.cfg.Symbol, err))
		log.Printf("⚠️  Exit order failed for %s: %v", r.cfg.Symbol, err)
	} else if result.Price > 0 {
		price = result.Price
	}

	trade := types.Trade{
		ID:            pos.ID,
		Symbol:        r.cfg.Symbol,
		Strategy:      r.gen.Params().Name,
		Direction:     pos.Direction,
		EntryTime:     pos.EntryTime,
		ExitTime:      exitTime,
		EntryPrice:    pos.EntryPrice,
		ExitPrice:     price,
		Quantity:      pos.Quantity,
		ExitReason:    reason,
		Indicators:    pos.Indicators,
		CorrelationID: pos.ID,
	}
	backtest.Settle(r.cfg.Costs, &trade, 0)

	r.trades = append(r.trades, trade)
	log.Printf("💰 Closed %s %s @ %.2f (%s): net %.2f", pos.Direction, r.cfg.Symbol, price, reason, trade.Pnl)
	r.notify("info", fmt.Sprintf("%s: closed %s @ %.2f (%s)", r.cfg.Symbol, pos.Direction, price, reason))

	if r.onTrade != nil {
		r.onTrade(trade)
	}
}

// Status returns a snapshot. The position is copied so callers cannot mutate
// runner state.
func (r *Runner) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()

	st := Status{
		Symbol:      r.cfg.Symbol,
		Strategy:    r.gen.Params().Name,
		Running:     r.running,
		TradesToday: len(r.trades),
		LastBarTime: r.lastBar,
		LastError:   r.lastErr,
	}
	if r.position != nil {
		p := *r.position
		st.Position = &p
	}
	return st
}

// Trades returns a copy of the closed-trade log.
func (r *Runner) Trades() []types.Trade {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]types.Trade, len(r.trades))
	copy(out, r.trades)
	return out
}

func sameDay(a, b int64, loc *time.Location) bool {
	ta, tb := time.Unix(a, 0).In(loc), time.Unix(b, 0).In(loc)
	return ta.Year() == tb.Year() && ta.YearDay() == tb.YearDay()
}

func (r *Runner) squareOffReached(bar types.Bar) bool {
	ts := bar.Timestamp(r.cfg.Location)
	return ts.Hour()*60+ts.Minute() >= r.cfg.SquareOffHour*60+r.cfg.SquareOffMin
}

func (r *Runner) notify(level, msg string) {
	if r.notifier != nil {
		r.notifier.Notify(level, msg)
	}
}

func oppositeDir(sigType types.SignalType, dir types.Direction) bool {
	return (sigType == types.SignalSell && dir == types.Long) ||
		(sigType == types.SignalBuy && dir == types.Short)
}
