package candles

import (
	"testing"
	"time"

	"algo-trader/pkg/types"
)

func tick(t time.Time, price float64) types.Tick {
	return types.Tick{Symbol: "TEST", Price: price, Volume: 1, Timestamp: t}
}

func TestTicksToBarsOHLC(t *testing.T) {
	base := time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC)
	ticks := []types.Tick{
		tick(base.Add(5*time.Second), 100),
		tick(base.Add(20*time.Second), 103),
		tick(base.Add(40*time.Second), 99),
		tick(base.Add(55*time.Second), 101),
		tick(base.Add(65*time.Second), 102), // next minute
	}

	bars := TicksToBars(ticks, time.Minute)
	if len(bars) != 2 {
		t.Fatalf("expected 2 bars, got %d", len(bars))
	}

	b := bars[0]
	if b.Time != base.Unix() {
		t.Fatalf("bar time not aligned to minute open")
	}
	if b.Open != 100 || b.High != 103 || b.Low != 99 || b.Close != 101 {
		t.Fatalf("bad OHLC: %+v", b)
	}
	if b.Volume != 4 {
		t.Fatalf("expected volume 4, got %d", b.Volume)
	}
}

func TestTicksToBarsEmpty(t *testing.T) {
	if bars := TicksToBars(nil, time.Minute); len(bars) != 0 {
		t.Fatalf("expected no bars, got %d", len(bars))
	}
}

// The streaming aggregator only emits a bar once its minute has closed.
func TestAggregatorEmitsOnRollover(t *testing.T) {
	base := time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC)
	a := NewAggregator(time.Minute)

	if b := a.Add(tick(base.Add(10*time.Second), 100)); b != nil {
		t.Fatal("bar emitted while still forming")
	}
	if b := a.Add(tick(base.Add(30*time.Second), 105)); b != nil {
		t.Fatal("bar emitted while still forming")
	}

	done := a.Add(tick(base.Add(61*time.Second), 104))
	if done == nil {
		t.Fatal("expected the completed bar on rollover")
	}
	if done.High != 105 || done.Close != 105 || done.Open != 100 {
		t.Fatalf("bad completed bar: %+v", done)
	}
}

func TestAggregatorDropsLateTicks(t *testing.T) {
	base := time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC)
	a := NewAggregator(time.Minute)

	a.Add(tick(base.Add(65*time.Second), 100))
	if b := a.Add(tick(base.Add(30*time.Second), 999)); b != nil {
		t.Fatal("late tick produced a bar")
	}

	done := a.Flush()
	if done == nil || done.High == 999 {
		t.Fatalf("late tick leaked into the current bar: %+v", done)
	}
}

func TestAggregatorFlush(t *testing.T) {
	base := time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC)
	a := NewAggregator(time.Minute)
	a.Add(tick(base, 100))

	if b := a.Flush(); b == nil || b.Close != 100 {
		t.Fatalf("flush lost the forming bar: %+v", b)
	}
	if b := a.Flush(); b != nil {
		t.Fatal("second flush should be empty")
	}
}
