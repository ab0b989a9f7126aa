package backtest

import (
	"errors"
	"time"

	"algo-trader/pkg/types"
)

// Config parametrizes one backtest run.
type Config struct {
	StrategyName   string
	Symbol         string
	InitialCapital float64
	Quantity       int
	Costs          types.CostConfig
	Location       *time.Location
	SquareOffHour  int
	SquareOffMin   int
}

// Result is the output of a run: the ordered trade log plus the
// timeframe-bucketed metrics derived from it.
type Result struct {
	RunID    string                         `json:"run_id"`
	Strategy string                         `json:"strategy"`
	Symbol   string                         `json:"symbol"`
	From     int64                          `json:"from"`
	To       int64                          `json:"to"`
	Trades   []types.Trade                  `json:"trades"`
	Metrics  map[string]types.MetricsBucket `json:"metrics"`
}

// ErrNoBars is returned when the bar array is empty.
var ErrNoBars = errors.New("no bars to replay")

// firstTouch resolves which of stop/target a bar hits first when both are
// inside its range, using the open-proximity heuristic: the extremum nearer
// the open is assumed to trade first.
type touch int

const (
	touchNone touch = iota
	touchStop
	touchTarget
)

func firstTouchLong(bar types.Bar, stop, target float64) touch {
	hitStop := stop > 0 && bar.Low <= stop
	hitTarget := target > 0 && bar.High >= target
	if hitStop && hitTarget {
		// Equidistant extremes resolve to the stop.
		if bar.Open-bar.Low <= bar.High-bar.Open {
			return touchStop
		}
		return touchTarget
	}
	if hitStop {
		return touchStop
	}
	if hitTarget {
		return touchTarget
	}
	return touchNone
}

func firstTouchShort(bar types.Bar, stop, target float64) touch {
	hitStop := stop > 0 && bar.High >= stop
	hitTarget := target > 0 && bar.Low <= target
	if hitStop && hitTarget {
		if bar.High-bar.Open <= bar.Open-bar.Low {
			return touchStop
		}
		return touchTarget
	}
	if hitStop {
		return touchStop
	}
	if hitTarget {
		return touchTarget
	}
	return touchNone
}

// Run replays a precomputed signal sequence against the bar array. It is a
// pure batch computation: same inputs, same trade log, every time.
func Run(bars []types.Bar, signals []types.Signal, cfg Config) (*Result, error) {
	if len(bars) == 0 {
		return nil, ErrNoBars
	}
	if cfg.InitialCapital <= 0 {
		cfg.InitialCapital = 100000
	}
	if cfg.Quantity <= 0 {
		cfg.Quantity = 1
	}
	if cfg.Costs == (types.CostConfig{}) {
		cfg.Costs = DefaultCosts
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.SquareOffHour == 0 {
		cfg.SquareOffHour = 15
		cfg.SquareOffMin = 15
	}

	res := &Result{
		Strategy: cfg.StrategyName,
		Symbol:   cfg.Symbol,
		From:     bars[0].Time,
		To:       bars[len(bars)-1].Time,
		Trades:   []types.Trade{},
	}

	var pos *types.Position
	var prev *types.Bar
	sigIdx := 0

	for i, bar := range bars {
		// A position never survives into the next trading day. When a
		// session's bars end before the square-off clock (half-day, truncated
		// feed), the position is settled at that session's final bar.
		if pos != nil && prev != nil && !sameDay(*prev, bar, cfg.Location) {
			res.Trades = append(res.Trades, closeTrade(cfg, pos, prev.Time, prev.Close, types.ExitMarketClose))
			pos = nil
		}

		// Signals are consumed exactly once, in time order. A signal whose
		// bar was skipped upstream is dropped rather than replayed late.
		var sig *types.Signal
		for sigIdx < len(signals) && signals[sigIdx].Time < bar.Time {
			sigIdx++
		}
		if sigIdx < len(signals) && signals[sigIdx].Time == bar.Time {
			sig = &signals[sigIdx]
			sigIdx++
		}

		lastBar := i == len(bars)-1

		if pos != nil {
			// Stop/target first-touch has priority over a same-bar signal.
			var hit touch
			if pos.Direction == types.Long {
				hit = firstTouchLong(bar, pos.StopLoss, pos.TakeProfit)
			} else {
				hit = firstTouchShort(bar, pos.StopLoss, pos.TakeProfit)
			}

			switch {
			case hit == touchStop:
				res.Trades = append(res.Trades, closeTrade(cfg, pos, bar.Time, pos.StopLoss, types.ExitStopLoss))
				pos = nil
				sig = nil
			case hit == touchTarget:
				res.Trades = append(res.Trades, closeTrade(cfg, pos, bar.Time, pos.TakeProfit, types.ExitTakeProfit))
				pos = nil
				sig = nil
			case sig != nil && (sig.IsExit || opposite(sig.Type, pos.Direction)):
				res.Trades = append(res.Trades, closeTrade(cfg, pos, bar.Time, sig.Price, types.ExitSignal))
				pos = nil
				sig = nil
			case sig != nil:
				// Same-direction signal while holding: no pyramiding.
				sig = nil
			}
		}

		atSquareOff := squareOffReached(bar, cfg)

		if pos != nil && (atSquareOff || lastBar) {
			res.Trades = append(res.Trades, closeTrade(cfg, pos, bar.Time, bar.Close, types.ExitMarketClose))
			pos = nil
		}

		if pos == nil && sig != nil && !sig.IsExit && !atSquareOff && !lastBar {
			pos = openPosition(sig, cfg.Quantity)
		}

		prev = &bars[i]
	}

	res.Metrics = ComputeMetrics(res.Trades, cfg.InitialCapital, res.From, res.To)
	return res, nil
}

func opposite(sigType types.SignalType, dir types.Direction) bool {
	return (sigType == types.SignalSell && dir == types.Long) ||
		(sigType == types.SignalBuy && dir == types.Short)
}

func sameDay(a, b types.Bar, loc *time.Location) bool {
	ta, tb := a.Timestamp(loc), b.Timestamp(loc)
	return ta.Year() == tb.Year() && ta.YearDay() == tb.YearDay()
}

func squareOffReached(bar types.Bar, cfg Config) bool {
	ts := bar.Timestamp(cfg.Location)
	return ts.Hour()*60+ts.Minute() >= cfg.SquareOffHour*60+cfg.SquareOffMin
}

// openPosition derives the position from an entry signal. IDs carry over
// from the signal so the run stays deterministic.
func openPosition(sig *types.Signal, qty int) *types.Position {
	dir := types.Long
	if sig.Type == types.SignalSell {
		dir = types.Short
	}
	return &types.Position{
		ID:         sig.ID,
		Direction:  dir,
		EntryTime:  sig.Time,
		EntryPrice: sig.Price,
		StopLoss:   sig.StopLoss,
		TakeProfit: sig.TakeProfit,
		Quantity:   qty,
		Indicators: sig.Indicators,
	}
}

func closeTrade(cfg Config, pos *types.Position, exitTime int64, exitPrice float64, reason types.ExitReason) types.Trade {
	trade := types.Trade{
		ID:            pos.ID,
		Symbol:        cfg.Symbol,
		Strategy:      cfg.StrategyName,
		Direction:     pos.Direction,
		EntryTime:     pos.EntryTime,
		ExitTime:      exitTime,
		EntryPrice:    pos.EntryPrice,
		ExitPrice:     exitPrice,
		Quantity:      pos.Quantity,
		ExitReason:    reason,
		Indicators:    pos.Indicators,
		CorrelationID: pos.ID,
	}
	Settle(cfg.Costs, &trade, cfg.InitialCapital)
	return trade
}
