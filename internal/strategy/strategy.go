package strategy

import (
	"fmt"
	"time"

	"algo-trader/internal/indicators"
	"algo-trader/internal/levels"
	"algo-trader/pkg/types"

	"github.com/google/uuid"
)

// Blocked reasons recorded on CalcRows when an entry partially matched but
// was vetoed. These feed the dashboard's audit table.
const (
	BlockedOutsideWindow  = "outside_window"
	BlockedLevelsNotReady = "levels_not_ready"
	BlockedADXUnavailable = "adx_unavailable"
	BlockedADXBelow       = "adx_below_threshold"
	BlockedNotReset       = "not_reset"
	BlockedDegenerateRisk = "degenerate_risk"
)

// Generator is the interface shared by the breakout and crossover rule
// engines. Implementations are single-goroutine; callers serialize OnBar.
type Generator interface {
	// OnBar evaluates one bar and returns a signal when one fires, plus the
	// per-bar diagnostic row.
	OnBar(bar types.Bar) (*types.Signal, types.CalcRow, error)
	// Rearm restores the reset state for a direction. The live runner calls
	// this to roll back an entry whose order was not filled.
	Rearm(dir types.Direction)
	// Params returns the declarative config the generator was built from.
	Params() types.StrategyParams
}

// New builds a generator from a declarative strategy config.
func New(params types.StrategyParams, loc *time.Location, openMinute int) (Generator, error) {
	switch params.Kind {
	case types.KindBreakout:
		return newBreakout(params, loc, openMinute), nil
	case types.KindCrossover:
		return newCrossover(params, loc), nil
	default:
		return nil, fmt.Errorf("unknown strategy kind %q", params.Kind)
	}
}

// Breakout evaluates the multi-timeframe breakout rule: enter long when the
// close breaks above ALL tracked previous-period highs (mirror for short),
// gated by the trading window, an optional daily-ADX filter and a
// per-direction reset state machine.
type Breakout struct {
	params  types.StrategyParams
	loc     *time.Location
	tracker *levels.Tracker
	days    *dailyAggregate

	// Per-direction reset flags. An entry requires the flag; firing clears
	// it; a pullback through any tracked previous level restores it.
	longReset  bool
	shortReset bool
}

func newBreakout(params types.StrategyParams, loc *time.Location, openMinute int) *Breakout {
	return &Breakout{
		params:     params,
		loc:        loc,
		tracker:    levels.NewTracker(loc, openMinute),
		days:       newDailyAggregate(loc),
		longReset:  true,
		shortReset: true,
	}
}

// Params implements Generator.
func (s *Breakout) Params() types.StrategyParams { return s.params }

// Rearm implements Generator.
func (s *Breakout) Rearm(dir types.Direction) {
	if dir == types.Long {
		s.longReset = true
	} else {
		s.shortReset = true
	}
}

// OnBar implements Generator.
func (s *Breakout) OnBar(bar types.Bar) (*types.Signal, types.CalcRow, error) {
	s.days.update(bar)

	bounds, err := s.tracker.Update(bar)
	if err != nil {
		return nil, types.CalcRow{}, err
	}

	row := types.CalcRow{
		Time:     bar.Time,
		Close:    bar.Close,
		Levels:   s.tracker.Snapshot(),
		NewHour:  bounds.NewHour,
		NewDay:   bounds.NewDay,
		NewWeek:  bounds.NewWeek,
		NewMonth: bounds.NewMonth,
	}

	adx, adxErr := s.dailyADX()
	if adxErr == nil {
		row.ADX = adx
	}

	// Pullback through any tracked level restores the reset flag for the
	// armed direction. Deliberately "any", asymmetric with the "all"
	// requirement to arm.
	s.applyPullbacks(bar.Close)

	var sig *types.Signal
	if s.allows(types.Long) && s.breaksAllHighs(bar.Close) {
		sig, row.BlockedReason = s.tryEntry(bar, types.Long, adx, adxErr)
	} else if s.allows(types.Short) && s.breaksAllLows(bar.Close) {
		sig, row.BlockedReason = s.tryEntry(bar, types.Short, adx, adxErr)
	}

	row.LongReset = s.longReset
	row.ShortReset = s.shortReset
	if sig != nil {
		row.SignalID = sig.ID
	}

	return sig, row, nil
}

// tryEntry runs the veto chain for a direction whose breakout condition
// already holds, and fires the signal when everything passes.
func (s *Breakout) tryEntry(bar types.Bar, dir types.Direction, adx float64, adxErr error) (*types.Signal, string) {
	if !s.params.Window.Contains(bar.Timestamp(s.loc)) {
		return nil, BlockedOutsideWindow
	}
	if !s.tracker.Ready(s.params.Timeframes) {
		return nil, BlockedLevelsNotReady
	}
	if s.params.ADX != nil {
		if adxErr != nil {
			return nil, BlockedADXUnavailable
		}
		if adx < s.params.ADX.Threshold {
			return nil, BlockedADXBelow
		}
	}
	if dir == types.Long && !s.longReset {
		return nil, BlockedNotReset
	}
	if dir == types.Short && !s.shortReset {
		return nil, BlockedNotReset
	}

	// Stop at the nearest shorter-timeframe level in the adverse direction,
	// target at entry plus risk times the configured reward ratio.
	hourly := s.tracker.Get(types.TF1H)
	entry := bar.Close

	var stop float64
	if dir == types.Long {
		stop = hourly.PreviousLow
	} else {
		stop = hourly.PreviousHigh
	}

	risk := entry - stop
	if dir == types.Short {
		risk = stop - entry
	}
	if risk <= 0 {
		return nil, BlockedDegenerateRisk
	}

	var target float64
	sigType := types.SignalBuy
	if dir == types.Long {
		target = entry + risk*s.params.RewardRatio
	} else {
		sigType = types.SignalSell
		target = entry - risk*s.params.RewardRatio
	}

	if dir == types.Long {
		s.longReset = false
	} else {
		s.shortReset = false
	}

	snapshot := map[string]float64{
		"risk":   risk,
		"reward": risk * s.params.RewardRatio,
	}
	if s.params.ADX != nil {
		snapshot["daily_adx"] = adx
	}
	for _, tf := range s.params.Timeframes {
		lvl := s.tracker.Get(tf)
		snapshot["prev_"+string(tf)+"_high"] = lvl.PreviousHigh
		snapshot["prev_"+string(tf)+"_low"] = lvl.PreviousLow
	}

	return &types.Signal{
		ID:         uuid.New().String(),
		Time:       bar.Time,
		Type:       sigType,
		Price:      entry,
		StopLoss:   stop,
		TakeProfit: target,
		Indicators: snapshot,
	}, ""
}

// applyPullbacks restores reset flags when the close crosses back through
// any tracked previous level.
func (s *Breakout) applyPullbacks(close float64) {
	if !s.longReset {
		for _, tf := range s.params.Timeframes {
			lvl := s.tracker.Get(tf)
			if lvl.Ready && close < lvl.PreviousHigh {
				s.longReset = true
				break
			}
		}
	}
	if !s.shortReset {
		for _, tf := range s.params.Timeframes {
			lvl := s.tracker.Get(tf)
			if lvl.Ready && close > lvl.PreviousLow {
				s.shortReset = true
				break
			}
		}
	}
}

// breaksAllHighs reports whether the close is beyond every tracked
// previous-period high. Timeframes without a completed period count as not
// broken, so partially warmed trackers can never arm.
func (s *Breakout) breaksAllHighs(close float64) bool {
	for _, tf := range s.params.Timeframes {
		lvl := s.tracker.Get(tf)
		if !lvl.Ready || close <= lvl.PreviousHigh {
			return false
		}
	}
	return len(s.params.Timeframes) > 0
}

func (s *Breakout) breaksAllLows(close float64) bool {
	for _, tf := range s.params.Timeframes {
		lvl := s.tracker.Get(tf)
		if !lvl.Ready || close >= lvl.PreviousLow {
			return false
		}
	}
	return len(s.params.Timeframes) > 0
}

func (s *Breakout) allows(dir types.Direction) bool {
	switch s.params.Direction {
	case "long":
		return dir == types.Long
	case "short":
		return dir == types.Short
	default:
		return true
	}
}

// dailyADX computes ADX over completed trading days only. The in-progress
// day never contributes.
func (s *Breakout) dailyADX() (float64, error) {
	if s.params.ADX == nil {
		return 0, nil
	}
	highs, lows, closes := s.days.completed()
	return indicators.ADX(highs, lows, closes, s.params.ADX.Period)
}

// dailyAggregate rolls 1-minute bars into daily OHLC, keeping only days that
// have fully closed.
type dailyAggregate struct {
	loc     *time.Location
	key     int64
	curHigh float64
	curLow  float64

	highs  []float64
	lows   []float64
	closes []float64

	lastClose float64
}

func newDailyAggregate(loc *time.Location) *dailyAggregate {
	return &dailyAggregate{loc: loc}
}

func (d *dailyAggregate) update(bar types.Bar) {
	ts := bar.Timestamp(d.loc)
	key := int64(ts.Year())*1000 + int64(ts.YearDay())

	if d.key == 0 {
		d.key = key
		d.curHigh = bar.High
		d.curLow = bar.Low
		d.lastClose = bar.Close
		return
	}

	if key != d.key {
		// Previous day closed
		d.highs = append(d.highs, d.curHigh)
		d.lows = append(d.lows, d.curLow)
		d.closes = append(d.closes, d.lastClose)

		d.key = key
		d.curHigh = bar.High
		d.curLow = bar.Low
		d.lastClose = bar.Close
		return
	}

	if bar.High > d.curHigh {
		d.curHigh = bar.High
	}
	if bar.Low < d.curLow {
		d.curLow = bar.Low
	}
	d.lastClose = bar.Close
}

func (d *dailyAggregate) completed() (highs, lows, closes []float64) {
	return d.highs, d.lows, d.closes
}

// Precompute runs a generator over a full bar array, collecting the signal
// sequence and the audit rows for a backtest. Out-of-order bars are skipped
// at this boundary rather than reordered.
func Precompute(gen Generator, bars []types.Bar) ([]types.Signal, []types.CalcRow, error) {
	signals := []types.Signal{}
	rows := make([]types.CalcRow, 0, len(bars))

	for _, bar := range bars {
		sig, row, err := gen.OnBar(bar)
		if err != nil {
			if err == levels.ErrOutOfOrder {
				continue
			}
			return nil, nil, fmt.Errorf("strategy %s: %w", gen.Params().Name, err)
		}
		rows = append(rows, row)
		if sig != nil {
			signals = append(signals, *sig)
		}
	}

	return signals, rows, nil
}
