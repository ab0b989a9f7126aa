package collector

import (
	"testing"
	"time"

	"algo-trader/internal/storage"
	"algo-trader/pkg/types"
)

func feedTick(sym string, t time.Time, price float64) types.Tick {
	return types.Tick{Symbol: sym, Price: price, Volume: 1, Timestamp: t}
}

func TestProcessTickPublishesCompletedBars(t *testing.T) {
	store := storage.NewMemoryStorage(100)
	c := NewFeedCollector(store, types.DataSourceConfig{}, []string{"RELIANCE"})

	var published []types.Bar
	c.OnBar(func(b types.Bar) { published = append(published, b) })

	base := time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC)
	c.ProcessTick(feedTick("RELIANCE", base.Add(5*time.Second), 2500))
	c.ProcessTick(feedTick("RELIANCE", base.Add(40*time.Second), 2510))
	if len(published) != 0 {
		t.Fatal("bar published before its minute closed")
	}

	c.ProcessTick(feedTick("RELIANCE", base.Add(70*time.Second), 2505))
	if len(published) != 1 {
		t.Fatalf("expected 1 published bar, got %d", len(published))
	}
	if published[0].High != 2510 || published[0].Open != 2500 {
		t.Fatalf("bad bar: %+v", published[0])
	}
	if store.BarCount("RELIANCE") != 1 {
		t.Fatal("completed bar not stored")
	}
}

func TestUnknownSymbolIgnored(t *testing.T) {
	store := storage.NewMemoryStorage(100)
	c := NewFeedCollector(store, types.DataSourceConfig{}, []string{"RELIANCE"})

	base := time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC)
	c.ProcessTick(feedTick("UNLISTED", base, 100))
	c.ProcessTick(feedTick("UNLISTED", base.Add(70*time.Second), 101))

	if store.BarCount("UNLISTED") != 0 {
		t.Fatal("unsubscribed symbol produced bars")
	}
}

func TestOutOfOrderBarNotRepublished(t *testing.T) {
	store := storage.NewMemoryStorage(100)
	c := NewFeedCollector(store, types.DataSourceConfig{}, []string{"RELIANCE"})

	var published int
	c.OnBar(func(types.Bar) { published++ })

	base := time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC)
	// Pre-store a bar ahead of what the aggregator will emit.
	store.AddBar(types.Bar{Symbol: "RELIANCE", Time: base.Add(5 * time.Minute).Unix(), Close: 2500})

	c.ProcessTick(feedTick("RELIANCE", base, 2500))
	c.ProcessTick(feedTick("RELIANCE", base.Add(70*time.Second), 2501))

	if published != 0 {
		t.Fatal("stale bar reached the handlers")
	}
}
