package candles

import (
	"time"

	"algo-trader/pkg/types"
)

// TicksToBars converts a tick series to 1-minute OHLCV bars. Ticks are
// assumed to be in time order; the bar timestamp is the minute open.
func TicksToBars(ticks []types.Tick, period time.Duration) []types.Bar {
	if len(ticks) == 0 {
		return []types.Bar{}
	}

	bars := []types.Bar{}
	var current *types.Bar

	for _, tick := range ticks {
		barTime := tick.Timestamp.Truncate(period).Unix()

		if current == nil || current.Time != barTime {
			if current != nil {
				bars = append(bars, *current)
			}
			current = &types.Bar{
				Symbol: tick.Symbol,
				Time:   barTime,
				Open:   tick.Price,
				High:   tick.Price,
				Low:    tick.Price,
				Close:  tick.Price,
				Volume: tick.Volume,
			}
			continue
		}

		if tick.Price > current.High {
			current.High = tick.Price
		}
		if tick.Price < current.Low {
			current.Low = tick.Price
		}
		current.Close = tick.Price
		current.Volume += tick.Volume
	}

	if current != nil {
		bars = append(bars, *current)
	}

	return bars
}

// Aggregator rolls a live tick stream into 1-minute bars, emitting each bar
// only once its minute has closed. Strategies never see a bar that is still
// forming.
type Aggregator struct {
	period  time.Duration
	current *types.Bar
}

// NewAggregator builds a streaming aggregator. period is normally one minute.
func NewAggregator(period time.Duration) *Aggregator {
	if period <= 0 {
		period = time.Minute
	}
	return &Aggregator{period: period}
}

// Add folds one tick in. When the tick opens a new period the previous bar is
// returned as completed; otherwise the return is nil.
func (a *Aggregator) Add(tick types.Tick) *types.Bar {
	barTime := tick.Timestamp.Truncate(a.period).Unix()

	if a.current == nil {
		a.current = newBar(tick, barTime)
		return nil
	}

	if barTime == a.current.Time {
		if tick.Price > a.current.High {
			a.current.High = tick.Price
		}
		if tick.Price < a.current.Low {
			a.current.Low = tick.Price
		}
		a.current.Close = tick.Price
		a.current.Volume += tick.Volume
		return nil
	}

	// Late tick for an already-emitted period: dropped at this boundary.
	if barTime < a.current.Time {
		return nil
	}

	done := *a.current
	a.current = newBar(tick, barTime)
	return &done
}

// Flush returns the in-progress bar and clears it. Used at session end.
func (a *Aggregator) Flush() *types.Bar {
	if a.current == nil {
		return nil
	}
	done := *a.current
	a.current = nil
	return &done
}

func newBar(tick types.Tick, barTime int64) *types.Bar {
	return &types.Bar{
		Symbol: tick.Symbol,
		Time:   barTime,
		Open:   tick.Price,
		High:   tick.Price,
		Low:    tick.Price,
		Close:  tick.Price,
		Volume: tick.Volume,
	}
}
