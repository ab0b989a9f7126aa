package strategy

import "algo-trader/pkg/types"

// nseWindow is the default entry window: 9:20 to 15:00 exchange time,
// leaving room after open and before the square-off.
var nseWindow = types.TradingWindow{StartHour: 9, StartMinute: 20, EndHour: 15, EndMinute: 0}

// Presets are the named strategy variants the dashboard offers. Each is a
// parametrization of the same two rule engines; the old per-variant classes
// differed only in these fields.
var Presets = []types.StrategyParams{
	{
		Name:        "mtf_breakout_all",
		Kind:        types.KindBreakout,
		Direction:   "both",
		Timeframes:  []types.Timeframe{types.TF1H, types.TFDay, types.TFWeek, types.TFMonth},
		RewardRatio: 2.0,
		Window:      nseWindow,
	},
	{
		Name:        "mtf_breakout_all_adx",
		Kind:        types.KindBreakout,
		Direction:   "both",
		Timeframes:  []types.Timeframe{types.TF1H, types.TFDay, types.TFWeek, types.TFMonth},
		RewardRatio: 2.0,
		ADX:         &types.ADXFilter{Period: 14, Threshold: 25},
		Window:      nseWindow,
	},
	{
		Name:        "mtf_breakout_intraday",
		Kind:        types.KindBreakout,
		Direction:   "both",
		Timeframes:  []types.Timeframe{types.TF1H, types.TFDay},
		RewardRatio: 1.5,
		Window:      nseWindow,
	},
	{
		Name:        "mtf_breakout_long_3r",
		Kind:        types.KindBreakout,
		Direction:   "long",
		Timeframes:  []types.Timeframe{types.TF1H, types.TFDay, types.TFWeek},
		RewardRatio: 3.0,
		ADX:         &types.ADXFilter{Period: 14, Threshold: 20},
		Window:      nseWindow,
	},
	{
		Name:       "ema_crossover_9_21",
		Kind:       types.KindCrossover,
		Direction:  "long",
		FastPeriod: 9,
		SlowPeriod: 21,
		Window:     nseWindow,
	},
}

// Preset returns a named preset, or false when it does not exist.
func Preset(name string) (types.StrategyParams, bool) {
	for _, p := range Presets {
		if p.Name == name {
			return p, true
		}
	}
	return types.StrategyParams{}, false
}
