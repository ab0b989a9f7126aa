package indicators

import (
	"errors"
	"math"
)

// ErrInsufficientData is returned when a series is shorter than the
// indicator's lookback. Callers must treat it as a hard veto, never as zero.
var ErrInsufficientData = errors.New("insufficient data for indicator")

// SMA calculates the simple moving average of the last period values.
func SMA(prices []float64, period int) (float64, error) {
	if period <= 0 || len(prices) < period {
		return 0, ErrInsufficientData
	}

	sum := 0.0
	for i := len(prices) - period; i < len(prices); i++ {
		sum += prices[i]
	}

	return sum / float64(period), nil
}

// EMA calculates the exponential moving average over the full series,
// seeding with the SMA of the first period values and rolling forward with
// k = 2/(period+1).
func EMA(prices []float64, period int) (float64, error) {
	if period <= 0 || len(prices) < period {
		return 0, ErrInsufficientData
	}

	seed := 0.0
	for i := 0; i < period; i++ {
		seed += prices[i]
	}
	ema := seed / float64(period)

	k := 2.0 / float64(period+1)
	for i := period; i < len(prices); i++ {
		ema = prices[i]*k + ema*(1-k)
	}

	return ema, nil
}

// EMAFrom applies one incremental EMA update from a previous value.
// Feeding a series through EMAFrom bar by bar must match EMA computed from
// scratch over the same series.
func EMAFrom(price float64, period int, previous float64) float64 {
	k := 2.0 / float64(period+1)
	return price*k + previous*(1-k)
}

// Crossover is the result of comparing two moving averages across updates.
type Crossover int

const (
	CrossNone Crossover = iota
	CrossBullish
	CrossBearish
)

// DetectCrossover reports a bullish cross when the fast MA moves from at or
// below the slow MA to above it, bearish for the mirror case. Without
// previous values there is nothing to compare.
func DetectCrossover(currFast, currSlow float64, prevFast, prevSlow *float64) Crossover {
	if prevFast == nil || prevSlow == nil {
		return CrossNone
	}
	if *prevFast <= *prevSlow && currFast > currSlow {
		return CrossBullish
	}
	if *prevFast >= *prevSlow && currFast < currSlow {
		return CrossBearish
	}
	return CrossNone
}

// ADX calculates Wilder's Average Directional Index from completed period
// bars. The caller must only pass closed periods; at least period+1 bars are
// required before a value is available.
func ADX(highs, lows, closes []float64, period int) (float64, error) {
	n := len(closes)
	if period <= 0 || len(highs) != n || len(lows) != n || n < period+1 {
		return 0, ErrInsufficientData
	}

	// True range and directional movement per bar transition.
	trs := make([]float64, 0, n-1)
	plusDMs := make([]float64, 0, n-1)
	minusDMs := make([]float64, 0, n-1)

	for i := 1; i < n; i++ {
		highDiff := highs[i] - highs[i-1]
		lowDiff := lows[i-1] - lows[i]

		plusDM := 0.0
		minusDM := 0.0
		if highDiff > lowDiff && highDiff > 0 {
			plusDM = highDiff
		}
		if lowDiff > highDiff && lowDiff > 0 {
			minusDM = lowDiff
		}

		tr := math.Max(highs[i]-lows[i],
			math.Max(math.Abs(highs[i]-closes[i-1]), math.Abs(lows[i]-closes[i-1])))

		trs = append(trs, tr)
		plusDMs = append(plusDMs, plusDM)
		minusDMs = append(minusDMs, minusDM)
	}

	if len(trs) < period {
		return 0, ErrInsufficientData
	}

	// Wilder smoothing: seed with the plain sum of the first period values.
	smoothTR := 0.0
	smoothPlus := 0.0
	smoothMinus := 0.0
	for i := 0; i < period; i++ {
		smoothTR += trs[i]
		smoothPlus += plusDMs[i]
		smoothMinus += minusDMs[i]
	}

	dxs := []float64{dx(smoothPlus, smoothMinus, smoothTR)}

	for i := period; i < len(trs); i++ {
		smoothTR = smoothTR - smoothTR/float64(period) + trs[i]
		smoothPlus = smoothPlus - smoothPlus/float64(period) + plusDMs[i]
		smoothMinus = smoothMinus - smoothMinus/float64(period) + minusDMs[i]
		dxs = append(dxs, dx(smoothPlus, smoothMinus, smoothTR))
	}

	// ADX is the Wilder-smoothed DX. With fewer than period DX values the
	// plain average of what exists is used.
	if len(dxs) <= period {
		sum := 0.0
		for _, v := range dxs {
			sum += v
		}
		return sum / float64(len(dxs)), nil
	}

	adx := 0.0
	for i := 0; i < period; i++ {
		adx += dxs[i]
	}
	adx /= float64(period)
	for i := period; i < len(dxs); i++ {
		adx = (adx*float64(period-1) + dxs[i]) / float64(period)
	}

	return adx, nil
}

func dx(plusDM, minusDM, tr float64) float64 {
	if tr == 0 {
		return 0
	}
	plusDI := 100 * plusDM / tr
	minusDI := 100 * minusDM / tr
	if plusDI+minusDI == 0 {
		return 0
	}
	return 100 * math.Abs(plusDI-minusDI) / (plusDI + minusDI)
}
