package config

import (
	"fmt"
	"os"
	"time"

	"algo-trader/internal/strategy"
	"algo-trader/pkg/types"

	"gopkg.in/yaml.v3"
)

// Load loads configuration from file
func Load(filename string) (types.Config, error) {
	var config types.Config

	data, err := os.ReadFile(filename)
	if err != nil {
		return config, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, &config); err != nil {
		return config, fmt.Errorf("failed to parse config: %w", err)
	}

	setDefaults(&config)

	if err := validate(config); err != nil {
		return config, fmt.Errorf("invalid config: %w", err)
	}

	return config, nil
}

// setDefaults sets default values for missing config fields
func setDefaults(config *types.Config) {
	// Market session defaults: NSE equities
	if config.Market.Timezone == "" {
		config.Market.Timezone = "Asia/Kolkata"
	}
	if config.Market.OpenMinute == 0 {
		config.Market.OpenMinute = 15
	}
	if config.Market.SquareOffHour == 0 {
		config.Market.SquareOffHour = 15
		config.Market.SquareOffMin = 15
	}
	if config.Market.OrderTimeoutMs == 0 {
		config.Market.OrderTimeoutMs = 5000
	}

	// DataSource defaults
	if config.DataSource.ReconnectDelay == 0 {
		config.DataSource.ReconnectDelay = 5
	}
	if config.DataSource.PingInterval == 0 {
		config.DataSource.PingInterval = 25
	}

	// Backtest defaults
	if config.Backtest.InitialCapital == 0 {
		config.Backtest.InitialCapital = 100000
	}
	if config.Backtest.Quantity == 0 {
		config.Backtest.Quantity = 1
	}

	// Cost model: any fully-zero block falls back to the NSE intraday rates
	if config.Costs == (types.CostConfig{}) {
		config.Costs = defaultCosts
	}

	// Strategies: run the built-in presets when none are configured
	if len(config.Strategies) == 0 {
		config.Strategies = strategy.Presets
	}

	// Storage defaults
	if config.Storage.MaxBarsInMemory == 0 {
		config.Storage.MaxBarsInMemory = 200000
	}
	if config.Storage.KeepResultsHours == 0 {
		config.Storage.KeepResultsHours = 24
	}
	if config.Storage.CleanupInterval == 0 {
		config.Storage.CleanupInterval = 1800
	}

	// API defaults
	if config.API.Host == "" {
		config.API.Host = "0.0.0.0"
	}
	if config.API.Port == 0 {
		config.API.Port = 8080
	}
}

// defaultCosts mirrors the replay engine's NSE intraday model.
var defaultCosts = types.CostConfig{
	BrokerageRate:   0.0003,
	BrokerageCap:    20.0,
	STTRate:         0.00025,
	TransactionRate: 0.0000297,
	GSTRate:         0.18,
	SEBIRate:        0.000001,
	StampDutyRate:   0.00003,
	SlippageRate:    0.0002,
}

// validate validates configuration
func validate(config types.Config) error {
	if len(config.Symbols) == 0 {
		return fmt.Errorf("no symbols configured")
	}

	if _, err := time.LoadLocation(config.Market.Timezone); err != nil {
		return fmt.Errorf("invalid market timezone %q: %w", config.Market.Timezone, err)
	}

	if config.API.Port < 1 || config.API.Port > 65535 {
		return fmt.Errorf("invalid API port")
	}

	seen := map[string]bool{}
	for _, params := range config.Strategies {
		if params.Name == "" {
			return fmt.Errorf("strategy without a name")
		}
		if seen[params.Name] {
			return fmt.Errorf("duplicate strategy name %q", params.Name)
		}
		seen[params.Name] = true

		switch params.Kind {
		case types.KindBreakout:
			if len(params.Timeframes) == 0 {
				return fmt.Errorf("strategy %q: breakout needs at least one timeframe", params.Name)
			}
			if params.RewardRatio <= 0 {
				return fmt.Errorf("strategy %q: reward_ratio must be positive", params.Name)
			}
		case types.KindCrossover:
			if params.FastPeriod <= 0 || params.SlowPeriod <= 0 {
				return fmt.Errorf("strategy %q: crossover needs fast_period and slow_period", params.Name)
			}
			if params.FastPeriod >= params.SlowPeriod {
				return fmt.Errorf("strategy %q: fast_period must be below slow_period", params.Name)
			}
		default:
			return fmt.Errorf("strategy %q: unknown kind %q", params.Name, params.Kind)
		}
	}

	return nil
}
