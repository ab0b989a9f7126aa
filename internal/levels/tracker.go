package levels

import (
	"errors"
	"time"

	"algo-trader/pkg/types"
)

// ErrOutOfOrder is returned when a bar does not advance the clock. The
// tracker's state is left untouched; silently reordering bars would corrupt
// the frozen previous-period levels.
var ErrOutOfOrder = errors.New("bar timestamp not after previous bar")

// Boundaries reports which periods rolled over on a given bar.
type Boundaries struct {
	NewHour  bool
	NewDay   bool
	NewWeek  bool
	NewMonth bool
}

type bucketState struct {
	key    int64
	levels types.LevelBucket
}

// Tracker maintains rolling high/low aggregates for the 1H/Day/Week/Month
// buckets from a single 1-minute bar stream. Previous* values are frozen on
// rollover and never reflect the in-progress period.
type Tracker struct {
	loc        *time.Location
	openMinute int
	buckets    map[types.Timeframe]*bucketState
	lastTime   int64
}

// NewTracker creates a tracker. openMinute shifts the hourly buckets so they
// roll at the exchange session offset (NSE opens 9:15, hours roll at :15).
func NewTracker(loc *time.Location, openMinute int) *Tracker {
	return &Tracker{
		loc:        loc,
		openMinute: openMinute,
		buckets:    make(map[types.Timeframe]*bucketState),
	}
}

// Update feeds one bar through all four timeframes in a single pass.
func (t *Tracker) Update(bar types.Bar) (Boundaries, error) {
	if t.lastTime != 0 && bar.Time <= t.lastTime {
		return Boundaries{}, ErrOutOfOrder
	}

	ts := bar.Timestamp(t.loc)

	var b Boundaries
	b.NewHour = t.updateBucket(types.TF1H, t.hourKey(ts), bar)
	b.NewDay = t.updateBucket(types.TFDay, t.dayKey(ts), bar)
	b.NewWeek = t.updateBucket(types.TFWeek, t.weekKey(ts), bar)
	b.NewMonth = t.updateBucket(types.TFMonth, t.monthKey(ts), bar)

	t.lastTime = bar.Time
	return b, nil
}

// updateBucket either extends the current period or rolls it over.
// Returns true when a new period began.
func (t *Tracker) updateBucket(tf types.Timeframe, key int64, bar types.Bar) bool {
	state, exists := t.buckets[tf]
	if !exists {
		t.buckets[tf] = &bucketState{
			key: key,
			levels: types.LevelBucket{
				CurrentHigh: bar.High,
				CurrentLow:  bar.Low,
			},
		}
		return false
	}

	if key == state.key {
		if bar.High > state.levels.CurrentHigh {
			state.levels.CurrentHigh = bar.High
		}
		if bar.Low < state.levels.CurrentLow {
			state.levels.CurrentLow = bar.Low
		}
		return false
	}

	// Period closed: freeze current into previous and start fresh.
	state.levels.PreviousHigh = state.levels.CurrentHigh
	state.levels.PreviousLow = state.levels.CurrentLow
	state.levels.Ready = true
	state.levels.CurrentHigh = bar.High
	state.levels.CurrentLow = bar.Low
	state.key = key
	return true
}

// Get returns the levels for one timeframe.
func (t *Tracker) Get(tf types.Timeframe) types.LevelBucket {
	if state, exists := t.buckets[tf]; exists {
		return state.levels
	}
	return types.LevelBucket{}
}

// Snapshot returns a copy of all four buckets.
func (t *Tracker) Snapshot() map[types.Timeframe]types.LevelBucket {
	snap := make(map[types.Timeframe]types.LevelBucket, len(t.buckets))
	for tf, state := range t.buckets {
		snap[tf] = state.levels
	}
	return snap
}

// Ready reports whether every listed timeframe has a completed period.
func (t *Tracker) Ready(tfs []types.Timeframe) bool {
	for _, tf := range tfs {
		if !t.Get(tf).Ready {
			return false
		}
	}
	return true
}

// hourKey buckets by session-shifted hour: the bar's clock minus the market
// open offset, so 9:15-10:14 is one bucket when openMinute is 15.
func (t *Tracker) hourKey(ts time.Time) int64 {
	shifted := ts.Add(-time.Duration(t.openMinute) * time.Minute)
	return int64(shifted.Year())*100000 + int64(shifted.YearDay())*100 + int64(shifted.Hour())
}

func (t *Tracker) dayKey(ts time.Time) int64 {
	return int64(ts.Year())*1000 + int64(ts.YearDay())
}

func (t *Tracker) weekKey(ts time.Time) int64 {
	year, week := ts.ISOWeek()
	return int64(year)*100 + int64(week)
}

func (t *Tracker) monthKey(ts time.Time) int64 {
	return int64(ts.Year())*100 + int64(ts.Month())
}
