package backtest

import (
	"fmt"
	"math"
	"time"

	"algo-trader/pkg/types"
)

// Bucket names, in display order.
var BucketNames = []string{"daily", "weekly", "monthly", "quarterly", "yearly", "overall"}

// Annualization factors per bucket. Chosen deliberately: √252 trading days,
// √52 weeks, √12 months, √4 quarters, 1 for yearly. "overall" works on
// per-trade returns and uses the daily factor.
var annualization = map[string]float64{
	"daily":     math.Sqrt(252),
	"weekly":    math.Sqrt(52),
	"monthly":   math.Sqrt(12),
	"quarterly": math.Sqrt(4),
	"yearly":    1,
	"overall":   math.Sqrt(252),
}

// ComputeMetrics recomputes the full metrics set from the trade log for each
// calendar bucket plus overall. The log is the single source of truth; no
// bucket is ever incrementally patched.
func ComputeMetrics(trades []types.Trade, capital float64, from, to int64) map[string]types.MetricsBucket {
	out := make(map[string]types.MetricsBucket, len(BucketNames))
	for _, name := range BucketNames {
		out[name] = computeBucket(name, trades, capital, from, to)
	}
	return out
}

// computeBucket groups trade P&L by calendar period (each trade is its own
// period for "overall") and derives every statistic from the grouped series.
func computeBucket(name string, trades []types.Trade, capital float64, from, to int64) types.MetricsBucket {
	bucket := types.MetricsBucket{Period: name, TotalTrades: len(trades)}
	if len(trades) == 0 || capital <= 0 {
		// All ratios stay at their neutral zero; never NaN.
		return bucket
	}

	pnls := groupPnl(name, trades)

	var wins, losses int
	var winSum, lossSum float64
	var net float64
	maxWinStreak, maxLossStreak := 0, 0
	winStreak, lossStreak := 0, 0

	for _, p := range pnls {
		net += p
		if p > 0 {
			wins++
			winSum += p
			winStreak++
			lossStreak = 0
			if winStreak > maxWinStreak {
				maxWinStreak = winStreak
			}
		} else {
			losses++
			lossSum += -p
			lossStreak++
			winStreak = 0
			if lossStreak > maxLossStreak {
				maxLossStreak = lossStreak
			}
		}
	}

	n := float64(len(pnls))
	bucket.ReturnPct = net / capital * 100
	bucket.WinRate = float64(wins) / n * 100
	bucket.LossRate = float64(losses) / n * 100
	bucket.MaxConsecutiveWins = maxWinStreak
	bucket.MaxConsecutiveLosses = maxLossStreak

	if wins > 0 {
		bucket.AvgWin = winSum / float64(wins)
	}
	if losses > 0 {
		bucket.AvgLoss = lossSum / float64(losses)
	}
	if lossSum > 0 {
		bucket.ProfitFactor = winSum / lossSum
	} else if winSum > 0 {
		bucket.ProfitFactor = winSum
	}
	if bucket.AvgLoss > 0 {
		bucket.PayoffRatio = bucket.AvgWin / bucket.AvgLoss
	}
	bucket.Expectancy = bucket.WinRate/100*bucket.AvgWin - bucket.LossRate/100*bucket.AvgLoss

	bucket.RiskRewardRatio = grossRiskReward(trades)

	// Sharpe from per-period returns on capital.
	returns := make([]float64, len(pnls))
	for i, p := range pnls {
		returns[i] = p / capital
	}
	bucket.SharpeRatio = sharpe(returns, annualization[name])

	// Drawdown from the running equity curve at period closes.
	maxDD := maxDrawdown(capital, pnls)
	bucket.MaxDrawdownPct = maxDD / capital * 100
	if maxDD > 0 {
		bucket.RecoveryFactor = net / maxDD
	}

	bucket.TimeInMarketPct = timeInMarket(trades, from, to)
	return bucket
}

// groupPnl sums net P&L per calendar period keyed by exit time. For
// "overall" each trade stands alone.
func groupPnl(name string, trades []types.Trade) []float64 {
	if name == "overall" {
		pnls := make([]float64, len(trades))
		for i, t := range trades {
			pnls[i] = t.Pnl
		}
		return pnls
	}

	var keys []string
	sums := map[string]float64{}
	for _, t := range trades {
		key := periodKey(name, time.Unix(t.ExitTime, 0).UTC())
		if _, seen := sums[key]; !seen {
			keys = append(keys, key)
		}
		sums[key] += t.Pnl
	}

	pnls := make([]float64, len(keys))
	for i, k := range keys {
		pnls[i] = sums[k]
	}
	return pnls
}

func periodKey(name string, ts time.Time) string {
	switch name {
	case "daily":
		return ts.Format("2006-01-02")
	case "weekly":
		y, w := ts.ISOWeek()
		return fmt.Sprintf("%d-W%02d", y, w)
	case "monthly":
		return ts.Format("2006-01")
	case "quarterly":
		q := (int(ts.Month())-1)/3 + 1
		return fmt.Sprintf("%s-Q%d", ts.Format("2006"), q)
	case "yearly":
		return ts.Format("2006")
	}
	return ts.Format("2006-01-02")
}

// sharpe is mean/stddev of the return series scaled by the bucket's
// annualization factor. Degenerate series return 0.
func sharpe(returns []float64, factor float64) float64 {
	if len(returns) < 2 {
		return 0
	}
	mean := 0.0
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))

	variance := 0.0
	for _, r := range returns {
		d := r - mean
		variance += d * d
	}
	variance /= float64(len(returns) - 1)

	std := math.Sqrt(variance)
	if std == 0 {
		return 0
	}
	return mean / std * factor
}

// maxDrawdown returns the largest peak-to-trough fall of the running equity
// curve, in currency.
func maxDrawdown(capital float64, pnls []float64) float64 {
	equity := capital
	peak := capital
	maxDD := 0.0
	for _, p := range pnls {
		equity += p
		if equity > peak {
			peak = equity
		}
		if dd := peak - equity; dd > maxDD {
			maxDD = dd
		}
	}
	return maxDD
}

// grossRiskReward compares average gross win to average gross loss,
// before costs, to show the raw edge of the rule set.
func grossRiskReward(trades []types.Trade) float64 {
	var winSum, lossSum float64
	var wins, losses int
	for _, t := range trades {
		if t.GrossPnl > 0 {
			winSum += t.GrossPnl
			wins++
		} else if t.GrossPnl < 0 {
			lossSum += -t.GrossPnl
			losses++
		}
	}
	if wins == 0 || losses == 0 || lossSum == 0 {
		return 0
	}
	return (winSum / float64(wins)) / (lossSum / float64(losses))
}

// timeInMarket is the share of the tested span spent holding a position.
func timeInMarket(trades []types.Trade, from, to int64) float64 {
	span := to - from
	if span <= 0 {
		return 0
	}
	var held int64
	for _, t := range trades {
		held += t.ExitTime - t.EntryTime
	}
	pct := float64(held) / float64(span) * 100
	if pct > 100 {
		pct = 100
	}
	return pct
}
