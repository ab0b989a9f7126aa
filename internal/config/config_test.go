package config

import (
	"os"
	"path/filepath"
	"testing"

	"algo-trader/pkg/types"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
symbols:
  - RELIANCE
datasource:
  feed_url: "wss://feed.example.com/stream"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Market.Timezone != "Asia/Kolkata" {
		t.Fatalf("timezone default: got %q", cfg.Market.Timezone)
	}
	if cfg.Market.OpenMinute != 15 || cfg.Market.SquareOffHour != 15 || cfg.Market.SquareOffMin != 15 {
		t.Fatalf("session defaults wrong: %+v", cfg.Market)
	}
	if cfg.Backtest.InitialCapital != 100000 {
		t.Fatalf("capital default: got %.0f", cfg.Backtest.InitialCapital)
	}
	if cfg.Costs.BrokerageCap != 20 {
		t.Fatalf("cost defaults missing: %+v", cfg.Costs)
	}
	if len(cfg.Strategies) == 0 {
		t.Fatal("preset strategies not applied")
	}
	if cfg.API.Port != 8080 {
		t.Fatalf("api port default: got %d", cfg.API.Port)
	}
}

func TestLoadRejectsEmptySymbols(t *testing.T) {
	path := writeConfig(t, `
datasource:
  feed_url: "wss://feed.example.com/stream"
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for empty symbols")
	}
}

func TestLoadRejectsBadStrategy(t *testing.T) {
	cases := map[string]string{
		"no timeframes": `
symbols: [RELIANCE]
strategies:
  - name: broken
    kind: breakout
    reward_ratio: 2.0
`,
		"inverted crossover periods": `
symbols: [RELIANCE]
strategies:
  - name: broken
    kind: crossover
    fast_period: 21
    slow_period: 9
`,
		"duplicate names": `
symbols: [RELIANCE]
strategies:
  - name: dup
    kind: crossover
    fast_period: 9
    slow_period: 21
  - name: dup
    kind: crossover
    fast_period: 9
    slow_period: 21
`,
		"unknown kind": `
symbols: [RELIANCE]
strategies:
  - name: broken
    kind: martingale
`,
	}

	for name, body := range cases {
		if _, err := Load(writeConfig(t, body)); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}
}

func TestLoadKeepsExplicitValues(t *testing.T) {
	path := writeConfig(t, `
symbols: [RELIANCE, TCS]
market:
  timezone: "UTC"
  square_off_hour: 14
  square_off_minute: 45
backtest:
  initial_capital: 500000
  quantity: 25
strategies:
  - name: custom
    kind: breakout
    direction: long
    timeframes: [1H, D]
    reward_ratio: 1.5
    window:
      start_hour: 9
      start_minute: 30
      end_hour: 14
      end_minute: 30
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Market.Timezone != "UTC" || cfg.Market.SquareOffHour != 14 {
		t.Fatalf("explicit market config overridden: %+v", cfg.Market)
	}
	if cfg.Backtest.InitialCapital != 500000 || cfg.Backtest.Quantity != 25 {
		t.Fatalf("explicit backtest config overridden: %+v", cfg.Backtest)
	}
	if len(cfg.Strategies) != 1 || cfg.Strategies[0].Name != "custom" {
		t.Fatalf("explicit strategies replaced: %+v", cfg.Strategies)
	}
	if cfg.Strategies[0].Timeframes[1] != types.TFDay {
		t.Fatalf("timeframe parse: %+v", cfg.Strategies[0].Timeframes)
	}
}
