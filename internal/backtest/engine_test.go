package backtest

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"algo-trader/pkg/types"
)

func mkBar(t time.Time, o, h, l, c float64) types.Bar {
	return types.Bar{Symbol: "TEST", Time: t.Unix(), Open: o, High: h, Low: l, Close: c, Volume: 100}
}

func testConfig() Config {
	return Config{
		StrategyName:   "test",
		Symbol:         "TEST",
		InitialCapital: 100000,
		Quantity:       10,
		Costs:          DefaultCosts,
		Location:       time.UTC,
		SquareOffHour:  15,
		SquareOffMin:   15,
	}
}

// A stop reached intrabar on the session's last bar exits at the stop price
// with reason StopLoss, not MarketClose.
func TestStopBeatsMarketCloseOnLastBar(t *testing.T) {
	base := time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC)
	bars := []types.Bar{
		mkBar(base, 100, 100, 100, 100),
		mkBar(base.Add(time.Minute), 100, 101, 100, 100.5),
		// 15:15: square-off bar that also touches the stop
		mkBar(time.Date(2024, 1, 2, 15, 15, 0, 0, time.UTC), 99, 99.5, 94.5, 96),
	}
	signals := []types.Signal{{
		ID: "sig-1", Time: bars[0].Time, Type: types.SignalBuy,
		Price: 100, StopLoss: 95, TakeProfit: 110,
	}}

	res, err := Run(bars, signals, testConfig())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(res.Trades) != 1 {
		t.Fatalf("expected 1 trade, got %d", len(res.Trades))
	}

	tr := res.Trades[0]
	if tr.ExitReason != types.ExitStopLoss {
		t.Fatalf("expected StopLoss exit, got %s", tr.ExitReason)
	}
	if tr.ExitPrice != 95 {
		t.Fatalf("expected exit at stop price 95, got %.2f", tr.ExitPrice)
	}
}

func TestTakeProfitExit(t *testing.T) {
	base := time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC)
	bars := []types.Bar{
		mkBar(base, 100, 100, 100, 100),
		mkBar(base.Add(time.Minute), 100, 111, 99, 110),
		mkBar(base.Add(2*time.Minute), 110, 110, 109, 109),
	}
	signals := []types.Signal{{
		ID: "sig-1", Time: bars[0].Time, Type: types.SignalBuy,
		Price: 100, StopLoss: 95, TakeProfit: 110,
	}}

	res, err := Run(bars, signals, testConfig())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(res.Trades) != 1 {
		t.Fatalf("expected 1 trade, got %d", len(res.Trades))
	}
	if res.Trades[0].ExitReason != types.ExitTakeProfit {
		t.Fatalf("expected TakeProfit, got %s", res.Trades[0].ExitReason)
	}
	if res.Trades[0].ExitPrice != 110 {
		t.Fatalf("expected exit at target 110, got %.2f", res.Trades[0].ExitPrice)
	}
}

// When stop and target are both inside one bar, the extremum closer to the
// open trades first.
func TestSameBarStopAndTargetResolvedByOpenProximity(t *testing.T) {
	base := time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC)
	bars := []types.Bar{
		mkBar(base, 100, 100, 100, 100),
		// opens at 96: the low (94) is nearer than the high (111)
		mkBar(base.Add(time.Minute), 96, 111, 94, 105),
	}
	signals := []types.Signal{{
		ID: "sig-1", Time: bars[0].Time, Type: types.SignalBuy,
		Price: 100, StopLoss: 95, TakeProfit: 110,
	}}

	res, err := Run(bars, signals, testConfig())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if res.Trades[0].ExitReason != types.ExitStopLoss {
		t.Fatalf("expected stop to trade first, got %s", res.Trades[0].ExitReason)
	}
}

func TestForcedMarketCloseAtSquareOff(t *testing.T) {
	bars := []types.Bar{
		mkBar(time.Date(2024, 1, 2, 14, 0, 0, 0, time.UTC), 100, 100, 100, 100),
		mkBar(time.Date(2024, 1, 2, 15, 0, 0, 0, time.UTC), 101, 102, 100, 101),
		mkBar(time.Date(2024, 1, 2, 15, 15, 0, 0, time.UTC), 101, 102, 100, 101.5),
		mkBar(time.Date(2024, 1, 3, 9, 15, 0, 0, time.UTC), 103, 104, 102, 103),
	}
	signals := []types.Signal{{
		ID: "sig-1", Time: bars[0].Time, Type: types.SignalBuy,
		Price: 100, StopLoss: 90, TakeProfit: 120,
	}}

	res, err := Run(bars, signals, testConfig())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(res.Trades) != 1 {
		t.Fatalf("expected 1 trade, got %d", len(res.Trades))
	}

	tr := res.Trades[0]
	if tr.ExitReason != types.ExitMarketClose {
		t.Fatalf("expected MarketClose, got %s", tr.ExitReason)
	}
	if tr.ExitTime != bars[2].Time {
		t.Fatal("position carried past the square-off bar")
	}
	if tr.ExitPrice != 101.5 {
		t.Fatalf("expected square-off at 101.5, got %.2f", tr.ExitPrice)
	}
}

// An opposite-direction signal while holding exits the position; the signal
// is consumed, not replayed as a fresh entry.
func TestOppositeSignalExits(t *testing.T) {
	base := time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC)
	bars := []types.Bar{
		mkBar(base, 100, 100, 100, 100),
		mkBar(base.Add(time.Minute), 101, 102, 100, 101),
		mkBar(base.Add(2*time.Minute), 102, 103, 101, 102),
		mkBar(base.Add(3*time.Minute), 102, 102, 101, 101),
	}
	signals := []types.Signal{
		{ID: "sig-1", Time: bars[0].Time, Type: types.SignalBuy, Price: 100},
		{ID: "sig-2", Time: bars[2].Time, Type: types.SignalSell, Price: 102, IsExit: true},
	}

	res, err := Run(bars, signals, testConfig())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(res.Trades) != 1 {
		t.Fatalf("expected 1 trade, got %d", len(res.Trades))
	}
	if res.Trades[0].ExitReason != types.ExitSignal {
		t.Fatalf("expected Signal exit, got %s", res.Trades[0].ExitReason)
	}
	if res.Trades[0].ExitPrice != 102 {
		t.Fatalf("expected exit at 102, got %.2f", res.Trades[0].ExitPrice)
	}
}

// netPnl == grossPnl - totalCost - slippageCost, to the paise.
func TestNetPnlIdentity(t *testing.T) {
	base := time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC)
	bars := []types.Bar{
		mkBar(base, 100, 100, 100, 100),
		mkBar(base.Add(time.Minute), 100, 111, 99, 110),
	}
	signals := []types.Signal{{
		ID: "sig-1", Time: bars[0].Time, Type: types.SignalBuy,
		Price: 100.37, StopLoss: 95.11, TakeProfit: 110.89,
	}}

	res, err := Run(bars, signals, testConfig())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	v := Verify(res.Trades)
	if !v.OK {
		t.Fatalf("identity violated: max error %.6f", v.MaxAbsError)
	}
	for _, tr := range res.Trades {
		got := tr.GrossPnl - tr.Costs.TotalCost - tr.SlippageCost
		if math.Abs(tr.Pnl-got) > 0.005 {
			t.Fatalf("net %.4f != gross %.4f - costs %.4f - slip %.4f",
				tr.Pnl, tr.GrossPnl, tr.Costs.TotalCost, tr.SlippageCost)
		}
	}
}

// Costs itemization: the total equals the sum of its parts.
func TestCostBreakdownSums(t *testing.T) {
	c := ComputeCosts(DefaultCosts, types.Long, 250.5, 255.25, 100)
	sum := c.Brokerage + c.STT + c.TransactionCharges + c.GST + c.SEBICharges + c.StampDuty
	if math.Abs(sum-c.TotalCost) > 1e-9 {
		t.Fatalf("component sum %.4f != total %.4f", sum, c.TotalCost)
	}
	if c.TotalCost <= 0 {
		t.Fatal("expected positive costs on a real turnover")
	}
}

// Two runs over the same inputs produce byte-identical trade logs and metrics.
func TestRunIsIdempotent(t *testing.T) {
	base := time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC)
	var bars []types.Bar
	for i := 0; i < 200; i++ {
		p := 100 + math.Sin(float64(i)*0.3)*5
		bars = append(bars, mkBar(base.Add(time.Duration(i)*time.Minute), p, p+1, p-1, p))
	}
	signals := []types.Signal{
		{ID: "sig-1", Time: bars[10].Time, Type: types.SignalBuy, Price: bars[10].Close, StopLoss: bars[10].Close - 3, TakeProfit: bars[10].Close + 6},
		{ID: "sig-2", Time: bars[80].Time, Type: types.SignalBuy, Price: bars[80].Close, StopLoss: bars[80].Close - 3, TakeProfit: bars[80].Close + 6},
	}

	run1, err := Run(bars, signals, testConfig())
	if err != nil {
		t.Fatalf("first run failed: %v", err)
	}
	run2, err := Run(bars, signals, testConfig())
	if err != nil {
		t.Fatalf("second run failed: %v", err)
	}

	j1, _ := json.Marshal(run1)
	j2, _ := json.Marshal(run2)
	if string(j1) != string(j2) {
		t.Fatal("runs over identical inputs diverged")
	}
}

// A session whose bars stop before the square-off clock (half-day, truncated
// feed) still closes the position at that session's final bar, never on the
// next trading day.
func TestTruncatedSessionClosesPositionSameDay(t *testing.T) {
	day1 := time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC)
	day2 := time.Date(2024, 1, 3, 9, 16, 0, 0, time.UTC)
	bars := []types.Bar{
		mkBar(day1, 100, 100.5, 99.5, 100),
		mkBar(day1.Add(time.Minute), 100, 101, 99.5, 100.5),
		mkBar(day2, 102, 103, 101, 102),
		mkBar(day2.Add(time.Minute), 102, 103, 101, 102.5),
	}
	signals := []types.Signal{{
		ID: "sig-1", Time: bars[0].Time, Type: types.SignalBuy,
		Price: 100, StopLoss: 90, TakeProfit: 120,
	}}

	res, err := Run(bars, signals, testConfig())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(res.Trades) != 1 {
		t.Fatalf("expected 1 trade, got %d", len(res.Trades))
	}

	tr := res.Trades[0]
	if tr.ExitReason != types.ExitMarketClose {
		t.Fatalf("expected MarketClose, got %s", tr.ExitReason)
	}
	if tr.ExitTime != bars[1].Time {
		t.Fatalf("position carried into the next day: exited at %d, want %d", tr.ExitTime, bars[1].Time)
	}
	if tr.ExitPrice != 100.5 {
		t.Fatalf("expected exit at the session's last close 100.5, got %.2f", tr.ExitPrice)
	}
}

// When the open sits exactly between stop and target, the stop trades first.
func TestSameBarEquidistantTieGoesToStop(t *testing.T) {
	base := time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC)
	bars := []types.Bar{
		mkBar(base, 100, 100, 100, 100),
		// open 100, stop 95 and target 105 both 5 away
		mkBar(base.Add(time.Minute), 100, 105, 95, 100),
	}
	signals := []types.Signal{{
		ID: "sig-1", Time: bars[0].Time, Type: types.SignalBuy,
		Price: 100, StopLoss: 95, TakeProfit: 105,
	}}

	res, err := Run(bars, signals, testConfig())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if res.Trades[0].ExitReason != types.ExitStopLoss {
		t.Fatalf("expected the tie to resolve to the stop, got %s", res.Trades[0].ExitReason)
	}
	if res.Trades[0].ExitPrice != 95 {
		t.Fatalf("expected exit at stop 95, got %.2f", res.Trades[0].ExitPrice)
	}
}

// Signals with no stop/target (crossover style) are never stopped out.
func TestZeroStopTargetSkipsTouchChecks(t *testing.T) {
	base := time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC)
	bars := []types.Bar{
		mkBar(base, 100, 100, 100, 100),
		mkBar(base.Add(time.Minute), 100, 200, 1, 100),
		mkBar(base.Add(2*time.Minute), 100, 101, 99, 100),
	}
	signals := []types.Signal{{ID: "sig-1", Time: bars[0].Time, Type: types.SignalBuy, Price: 100}}

	res, err := Run(bars, signals, testConfig())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(res.Trades) != 1 || res.Trades[0].ExitReason != types.ExitMarketClose {
		t.Fatalf("expected only the final-bar market close, got %+v", res.Trades)
	}
}
