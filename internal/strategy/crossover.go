package strategy

import (
	"time"

	"algo-trader/internal/indicators"
	"algo-trader/internal/levels"
	"algo-trader/pkg/types"

	"github.com/google/uuid"
)

// CrossoverStrategy is the long-only EMA crossover variant: enter on a
// bullish fast/slow cross while flat, exit on a bearish cross while holding.
// No HTF levels are involved; the signal contract is the same.
type CrossoverStrategy struct {
	params types.StrategyParams
	loc    *time.Location

	closes   []float64
	fastEMA  float64
	slowEMA  float64
	prevFast *float64
	prevSlow *float64
	seeded   bool

	holding  bool
	lastTime int64
}

func newCrossover(params types.StrategyParams, loc *time.Location) *CrossoverStrategy {
	return &CrossoverStrategy{params: params, loc: loc}
}

// Params implements Generator.
func (s *CrossoverStrategy) Params() types.StrategyParams { return s.params }

// Rearm implements Generator. The crossover machine re-enters the flat state
// when an entry order fails.
func (s *CrossoverStrategy) Rearm(dir types.Direction) {
	s.holding = false
}

// OnBar implements Generator.
func (s *CrossoverStrategy) OnBar(bar types.Bar) (*types.Signal, types.CalcRow, error) {
	if s.lastTime != 0 && bar.Time <= s.lastTime {
		return nil, types.CalcRow{}, levels.ErrOutOfOrder
	}
	s.lastTime = bar.Time

	s.closes = append(s.closes, bar.Close)

	row := types.CalcRow{
		Time:  bar.Time,
		Close: bar.Close,
	}

	slow := s.params.SlowPeriod
	if len(s.closes) < slow {
		// Unavailable indicators are a hard veto on entries.
		row.BlockedReason = "ma_unavailable"
		return nil, row, nil
	}

	if !s.seeded {
		fast, err := indicators.EMA(s.closes, s.params.FastPeriod)
		if err != nil {
			return nil, row, err
		}
		slowV, err := indicators.EMA(s.closes, slow)
		if err != nil {
			return nil, row, err
		}
		s.fastEMA, s.slowEMA = fast, slowV
		s.seeded = true
		return nil, row, nil
	}

	pf, ps := s.fastEMA, s.slowEMA
	s.fastEMA = indicators.EMAFrom(bar.Close, s.params.FastPeriod, s.fastEMA)
	s.slowEMA = indicators.EMAFrom(bar.Close, slow, s.slowEMA)
	s.prevFast, s.prevSlow = &pf, &ps

	cross := indicators.DetectCrossover(s.fastEMA, s.slowEMA, s.prevFast, s.prevSlow)

	snapshot := map[string]float64{
		"fast_ma": s.fastEMA,
		"slow_ma": s.slowEMA,
	}

	switch {
	case cross == indicators.CrossBullish && !s.holding:
		if !s.params.Window.Contains(bar.Timestamp(s.loc)) {
			row.BlockedReason = BlockedOutsideWindow
			return nil, row, nil
		}
		s.holding = true
		sig := &types.Signal{
			ID:         uuid.New().String(),
			Time:       bar.Time,
			Type:       types.SignalBuy,
			Price:      bar.Close,
			Indicators: snapshot,
		}
		row.SignalID = sig.ID
		return sig, row, nil

	case cross == indicators.CrossBearish && s.holding:
		s.holding = false
		sig := &types.Signal{
			ID:         uuid.New().String(),
			Time:       bar.Time,
			Type:       types.SignalSell,
			Price:      bar.Close,
			IsExit:     true,
			Indicators: snapshot,
		}
		row.SignalID = sig.ID
		return sig, row, nil
	}

	return nil, row, nil
}
