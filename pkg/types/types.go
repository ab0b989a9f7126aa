package types

import (
	"context"
	"time"
)

// Bar represents a single OHLCV candle. Time is unix seconds and must be
// strictly increasing within a symbol's stream.
type Bar struct {
	Symbol string  `json:"symbol"`
	Time   int64   `json:"time"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume int64   `json:"volume"`
}

// Timestamp returns the bar time in the given location.
func (b Bar) Timestamp(loc *time.Location) time.Time {
	return time.Unix(b.Time, 0).In(loc)
}

// Tick represents a single traded price point from the live feed.
type Tick struct {
	Symbol    string    `json:"symbol"`
	Price     float64   `json:"price"`
	Volume    int64     `json:"volume"`
	Timestamp time.Time `json:"timestamp"`
}

// Timeframe identifies a higher-timeframe bucket tracked from the 1-minute stream.
type Timeframe string

const (
	TF1H    Timeframe = "1H"
	TFDay   Timeframe = "D"
	TFWeek  Timeframe = "W"
	TFMonth Timeframe = "M"
)

// AllTimeframes lists the tracked buckets in ascending order.
var AllTimeframes = []Timeframe{TF1H, TFDay, TFWeek, TFMonth}

// LevelBucket holds the rolling high/low state for one timeframe.
// Previous* is only meaningful once Ready is true (one full period has closed).
type LevelBucket struct {
	CurrentHigh  float64 `json:"current_high"`
	CurrentLow   float64 `json:"current_low"`
	PreviousHigh float64 `json:"previous_high"`
	PreviousLow  float64 `json:"previous_low"`
	Ready        bool    `json:"ready"`
}

// SignalType is the direction of an emitted signal.
type SignalType string

const (
	SignalBuy  SignalType = "BUY"
	SignalSell SignalType = "SELL"
)

// Signal is an entry or exit instruction produced by a strategy.
// Entry signals carry the stop/target computed at signal time.
type Signal struct {
	ID         string             `json:"id"`
	Time       int64              `json:"time"`
	Type       SignalType         `json:"type"`
	Price      float64            `json:"price"`
	StopLoss   float64            `json:"stop_loss,omitempty"`
	TakeProfit float64            `json:"take_profit,omitempty"`
	IsExit     bool               `json:"is_exit,omitempty"`
	Indicators map[string]float64 `json:"indicators,omitempty"`
}

// Direction of a position.
type Direction string

const (
	Long  Direction = "long"
	Short Direction = "short"
)

// Position is the open-trade state. At most one per strategy instance.
type Position struct {
	ID         string             `json:"id"`
	Direction  Direction          `json:"direction"`
	EntryTime  int64              `json:"entry_time"`
	EntryPrice float64            `json:"entry_price"`
	StopLoss   float64            `json:"stop_loss"`
	TakeProfit float64            `json:"take_profit"`
	Quantity   int                `json:"quantity"`
	Indicators map[string]float64 `json:"indicators,omitempty"`
}

// ExitReason records why a position was closed.
type ExitReason string

const (
	ExitStopLoss    ExitReason = "StopLoss"
	ExitTakeProfit  ExitReason = "TakeProfit"
	ExitMarketClose ExitReason = "MarketClose"
	ExitSignal      ExitReason = "Signal"
)

// CostBreakdown itemizes per-trade transaction charges, rounded to the paise.
type CostBreakdown struct {
	Brokerage          float64 `json:"brokerage"`
	STT                float64 `json:"stt"`
	TransactionCharges float64 `json:"transaction_charges"`
	GST                float64 `json:"gst"`
	SEBICharges        float64 `json:"sebi_charges"`
	StampDuty          float64 `json:"stamp_duty"`
	TotalCost          float64 `json:"total_cost"`
}

// Trade is a closed-position record, immutable once created.
type Trade struct {
	ID            string             `json:"id"`
	Symbol        string             `json:"symbol"`
	Strategy      string             `json:"strategy"`
	Direction     Direction          `json:"direction"`
	EntryTime     int64              `json:"entry_time"`
	ExitTime      int64              `json:"exit_time"`
	EntryPrice    float64            `json:"entry_price"`
	ExitPrice     float64            `json:"exit_price"`
	Quantity      int                `json:"quantity"`
	GrossPnl      float64            `json:"gross_pnl"`
	Costs         CostBreakdown      `json:"costs"`
	SlippageCost  float64            `json:"slippage_cost"`
	Pnl           float64            `json:"pnl"`
	PnlPercent    float64            `json:"pnl_percent"`
	DurationSecs  int64              `json:"duration_secs"`
	ExitReason    ExitReason         `json:"exit_reason"`
	Indicators    map[string]float64 `json:"indicators,omitempty"`
	CorrelationID string             `json:"correlation_id,omitempty"`
}

// CalcRow is the per-bar diagnostic emitted by a strategy whether or not a
// signal fired. The dashboard renders these as an audit trail.
type CalcRow struct {
	Time          int64                     `json:"time"`
	Close         float64                   `json:"close"`
	Levels        map[Timeframe]LevelBucket `json:"levels"`
	NewHour       bool                      `json:"new_hour"`
	NewDay        bool                      `json:"new_day"`
	NewWeek       bool                      `json:"new_week"`
	NewMonth      bool                      `json:"new_month"`
	LongReset     bool                      `json:"long_reset"`
	ShortReset    bool                      `json:"short_reset"`
	ADX           float64                   `json:"adx,omitempty"`
	BlockedReason string                    `json:"blocked_reason,omitempty"`
	SignalID      string                    `json:"signal_id,omitempty"`
}

// MetricsBucket holds the derived performance statistics for one calendar
// bucket. Recomputed wholesale from the trade log, never patched.
type MetricsBucket struct {
	Period               string  `json:"period"`
	ReturnPct            float64 `json:"return_pct"`
	SharpeRatio          float64 `json:"sharpe_ratio"`
	MaxDrawdownPct       float64 `json:"max_drawdown_pct"`
	WinRate              float64 `json:"win_rate"`
	LossRate             float64 `json:"loss_rate"`
	TotalTrades          int     `json:"total_trades"`
	ProfitFactor         float64 `json:"profit_factor"`
	Expectancy           float64 `json:"expectancy"`
	AvgWin               float64 `json:"avg_win"`
	AvgLoss              float64 `json:"avg_loss"`
	PayoffRatio          float64 `json:"payoff_ratio"`
	RecoveryFactor       float64 `json:"recovery_factor"`
	RiskRewardRatio      float64 `json:"risk_reward_ratio"`
	MaxConsecutiveWins   int     `json:"max_consecutive_wins"`
	MaxConsecutiveLosses int     `json:"max_consecutive_losses"`
	TimeInMarketPct      float64 `json:"time_in_market_pct"`
}

// TradingWindow bounds the entry session in exchange-local time.
type TradingWindow struct {
	StartHour   int `yaml:"start_hour" json:"start_hour"`
	StartMinute int `yaml:"start_minute" json:"start_minute"`
	EndHour     int `yaml:"end_hour" json:"end_hour"`
	EndMinute   int `yaml:"end_minute" json:"end_minute"`
}

// Contains reports whether t falls inside the window.
func (w TradingWindow) Contains(t time.Time) bool {
	mins := t.Hour()*60 + t.Minute()
	return mins >= w.StartHour*60+w.StartMinute && mins < w.EndHour*60+w.EndMinute
}

// ADXFilter gates entries on trend strength.
type ADXFilter struct {
	Period    int     `yaml:"period" json:"period"`
	Threshold float64 `yaml:"threshold" json:"threshold"`
}

// StrategyKind selects the rule engine for a strategy.
type StrategyKind string

const (
	KindBreakout  StrategyKind = "breakout"
	KindCrossover StrategyKind = "crossover"
)

// StrategyParams is the declarative rule config a strategy is built from.
// The breakout variants differ only in timeframe subset, reward ratio and
// ADX filter; Kind selects between the breakout and crossover rule engines.
type StrategyParams struct {
	Name        string        `yaml:"name" json:"name"`
	Kind        StrategyKind  `yaml:"kind" json:"kind"`
	Direction   string        `yaml:"direction" json:"direction"` // "long", "short" or "both"
	Timeframes  []Timeframe   `yaml:"timeframes" json:"timeframes"`
	RewardRatio float64       `yaml:"reward_ratio" json:"reward_ratio"`
	ADX         *ADXFilter    `yaml:"adx,omitempty" json:"adx,omitempty"`
	Window      TradingWindow `yaml:"window" json:"window"`
	FastPeriod  int           `yaml:"fast_period" json:"fast_period"` // crossover only
	SlowPeriod  int           `yaml:"slow_period" json:"slow_period"` // crossover only
}

// OrderResult is the broker's response to a placed order.
type OrderResult struct {
	OrderID       string  `json:"order_id"`
	CorrelationID string  `json:"correlation_id"`
	Price         float64 `json:"price"`
}

// OrderPlacer submits an order to the broker. An error means not filled.
type OrderPlacer func(ctx context.Context, side SignalType, quantity int) (OrderResult, error)

// TradeCallback is invoked exactly once per completed trade.
type TradeCallback func(Trade)

// Notifier surfaces non-fatal runner events to the display layer.
// Injected instead of a global toast queue.
type Notifier interface {
	Notify(level, message string)
}

// Config is the application configuration loaded from config.yaml.
type Config struct {
	Symbols    []string         `yaml:"symbols"`
	DataSource DataSourceConfig `yaml:"datasource"`
	Market     MarketConfig     `yaml:"market"`
	Backtest   BacktestConfig   `yaml:"backtest"`
	Costs      CostConfig       `yaml:"costs"`
	Strategies []StrategyParams `yaml:"strategies"`
	Storage    StorageConfig    `yaml:"storage"`
	API        APIConfig        `yaml:"api"`
}

type DataSourceConfig struct {
	FeedURL        string `yaml:"feed_url"`
	ReconnectDelay int    `yaml:"reconnect_delay"`
	PingInterval   int    `yaml:"ping_interval"`
}

// MarketConfig describes the exchange session. OpenMinute shifts the hourly
// level buckets so they roll at session-open offsets (9:15, 10:15, ...).
type MarketConfig struct {
	Timezone       string `yaml:"timezone"`
	OpenMinute     int    `yaml:"open_minute"`
	SquareOffHour  int    `yaml:"square_off_hour"`
	SquareOffMin   int    `yaml:"square_off_minute"`
	OrderTimeoutMs int    `yaml:"order_timeout_ms"`
}

type BacktestConfig struct {
	InitialCapital float64 `yaml:"initial_capital"`
	Quantity       int     `yaml:"quantity"`
}

// CostConfig parametrizes the intraday-equity transaction cost model.
// Rates are fractions of turnover (0.0003 = 0.03%), caps are rupees.
type CostConfig struct {
	BrokerageRate   float64 `yaml:"brokerage_rate"`
	BrokerageCap    float64 `yaml:"brokerage_cap"`
	STTRate         float64 `yaml:"stt_rate"`
	TransactionRate float64 `yaml:"transaction_rate"`
	GSTRate         float64 `yaml:"gst_rate"`
	SEBIRate        float64 `yaml:"sebi_rate"`
	StampDutyRate   float64 `yaml:"stamp_duty_rate"`
	SlippageRate    float64 `yaml:"slippage_rate"`
}

type StorageConfig struct {
	MaxBarsInMemory  int `yaml:"max_bars_in_memory"`
	KeepResultsHours int `yaml:"keep_results_hours"`
	CleanupInterval  int `yaml:"cleanup_interval"`
}

type APIConfig struct {
	Host             string `yaml:"host"`
	Port             int    `yaml:"port"`
	EnableCORS       bool   `yaml:"enable_cors"`
	WebSocketEnabled bool   `yaml:"websocket_enabled"`
}
