package storage

import (
	"sync"
	"time"

	"algo-trader/internal/backtest"
	"algo-trader/pkg/types"
)

// MemoryStorage keeps bars, backtest results and live trades in memory behind
// one RWMutex. Bars per symbol are bounded; the oldest fall off.
type MemoryStorage struct {
	bars       map[string][]types.Bar
	lastBar    map[string]int64
	results    map[string]*backtest.Result
	resultTime map[string]time.Time
	liveTrades []types.Trade
	mu         sync.RWMutex
	maxBars    int
}

// NewMemoryStorage creates a store bounded at maxBars 1-minute bars per
// symbol.
func NewMemoryStorage(maxBars int) *MemoryStorage {
	if maxBars <= 0 {
		maxBars = 200000
	}
	return &MemoryStorage{
		bars:       make(map[string][]types.Bar),
		lastBar:    make(map[string]int64),
		results:    make(map[string]*backtest.Result),
		resultTime: make(map[string]time.Time),
		maxBars:    maxBars,
	}
}

// AddBar appends a completed bar. Bars at or before the last stored time for
// the symbol are dropped so the series stays strictly increasing.
func (s *MemoryStorage) AddBar(bar types.Bar) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if last, ok := s.lastBar[bar.Symbol]; ok && bar.Time <= last {
		return false
	}

	s.bars[bar.Symbol] = append(s.bars[bar.Symbol], bar)
	s.lastBar[bar.Symbol] = bar.Time

	if len(s.bars[bar.Symbol]) > s.maxBars {
		s.bars[bar.Symbol] = s.bars[bar.Symbol][len(s.bars[bar.Symbol])-s.maxBars:]
	}
	return true
}

// LoadBars replaces a symbol's history wholesale, e.g. from a historical
// download. The input must already be in time order.
func (s *MemoryStorage) LoadBars(symbol string, bars []types.Bar) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := make([]types.Bar, len(bars))
	copy(stored, bars)
	if len(stored) > s.maxBars {
		stored = stored[len(stored)-s.maxBars:]
	}
	s.bars[symbol] = stored
	if len(stored) > 0 {
		s.lastBar[symbol] = stored[len(stored)-1].Time
	}
}

// GetBars returns the last n bars for a symbol, or all of them when n <= 0.
func (s *MemoryStorage) GetBars(symbol string, n int) []types.Bar {
	s.mu.RLock()
	defer s.mu.RUnlock()

	bars := s.bars[symbol]
	if n > 0 && len(bars) > n {
		bars = bars[len(bars)-n:]
	}
	out := make([]types.Bar, len(bars))
	copy(out, bars)
	return out
}

// GetBarsRange returns bars with from <= time <= to.
func (s *MemoryStorage) GetBarsRange(symbol string, from, to int64) []types.Bar {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []types.Bar{}
	for _, b := range s.bars[symbol] {
		if b.Time >= from && b.Time <= to {
			out = append(out, b)
		}
	}
	return out
}

// GetLatestPrice returns the last close for a symbol, 0 when unknown.
func (s *MemoryStorage) GetLatestPrice(symbol string) float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	bars := s.bars[symbol]
	if len(bars) == 0 {
		return 0
	}
	return bars[len(bars)-1].Close
}

// BarCount returns the stored bar count for a symbol.
func (s *MemoryStorage) BarCount(symbol string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.bars[symbol])
}

// Symbols lists symbols with at least one bar.
func (s *MemoryStorage) Symbols() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []string{}
	for sym, bars := range s.bars {
		if len(bars) > 0 {
			out = append(out, sym)
		}
	}
	return out
}

// StoreResult keeps a finished backtest result, addressable by run ID.
func (s *MemoryStorage) StoreResult(res *backtest.Result) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.results[res.RunID] = res
	s.resultTime[res.RunID] = time.Now()
}

// GetResult retrieves a backtest result by run ID.
func (s *MemoryStorage) GetResult(runID string) (*backtest.Result, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	res, exists := s.results[runID]
	return res, exists
}

// ListResults returns summaries of all stored runs, newest first not
// guaranteed; callers sort for display.
func (s *MemoryStorage) ListResults() []*backtest.Result {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*backtest.Result, 0, len(s.results))
	for _, res := range s.results {
		out = append(out, res)
	}
	return out
}

// AddLiveTrade records a completed live trade.
func (s *MemoryStorage) AddLiveTrade(trade types.Trade) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.liveTrades = append(s.liveTrades, trade)
}

// GetLiveTrades returns a copy of the live trade log.
func (s *MemoryStorage) GetLiveTrades() []types.Trade {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]types.Trade, len(s.liveTrades))
	copy(out, s.liveTrades)
	return out
}

// Cleanup drops backtest results older than keepHours.
func (s *MemoryStorage) Cleanup(keepHours int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().Add(-time.Duration(keepHours) * time.Hour)
	for id, at := range s.resultTime {
		if at.Before(cutoff) {
			delete(s.results, id)
			delete(s.resultTime, id)
		}
	}
}
