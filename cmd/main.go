package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"algo-trader/internal/api"
	"algo-trader/internal/backtest"
	"algo-trader/internal/collector"
	"algo-trader/internal/config"
	"algo-trader/internal/live"
	"algo-trader/internal/storage"
	"algo-trader/pkg/types"
)

func main() {
	log.Println("🚀 Algo Trader Starting...")

	// Load configuration
	cfg, err := config.Load("config.yaml")
	if err != nil {
		log.Fatalf("❌ Failed to load config: %v", err)
	}

	loc, err := time.LoadLocation(cfg.Market.Timezone)
	if err != nil {
		log.Fatalf("❌ Invalid market timezone: %v", err)
	}

	log.Printf("✅ Configuration loaded: %d symbols, %d strategies", len(cfg.Symbols), len(cfg.Strategies))

	// Initialize storage
	store := storage.NewMemoryStorage(cfg.Storage.MaxBarsInMemory)
	log.Println("✅ Storage initialized")

	// Live runner manager. Orders go to the paper broker, which fills at the
	// last stored price; swap the placer to go live against a real broker.
	manager := live.NewManager(
		live.Config{
			Quantity:      cfg.Backtest.Quantity,
			Costs:         cfg.Costs,
			SquareOffHour: cfg.Market.SquareOffHour,
			SquareOffMin:  cfg.Market.SquareOffMin,
			OrderTimeout:  time.Duration(cfg.Market.OrderTimeoutMs) * time.Millisecond,
		},
		loc,
		cfg.Market.OpenMinute,
		paperPlacer(store),
		func(trade types.Trade) { store.AddLiveTrade(trade) },
		logNotifier{},
	)
	log.Println("✅ Runner manager initialized")

	// Feed collector: ticks in, 1-minute bars out to storage and runners
	feed := collector.NewFeedCollector(store, cfg.DataSource, cfg.Symbols)
	feed.OnBar(func(bar types.Bar) {
		manager.Dispatch(context.Background(), bar)
	})
	if cfg.DataSource.FeedURL != "" {
		if err := feed.Start(); err != nil {
			log.Fatalf("❌ Failed to start feed collector: %v", err)
		}
	} else {
		log.Println("⚠️  No feed_url configured, running without live data")
	}

	// Start background maintenance
	go startBackgroundTasks(store, cfg)

	// Initialize and start API server
	server := api.NewServer(store, manager, cfg, loc)

	go func() {
		if err := server.Start(); err != nil {
			log.Fatalf("❌ Failed to start API server: %v", err)
		}
	}()

	printUsageInstructions(cfg)

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	log.Println("✅ System ready! Press Ctrl+C to stop")
	<-quit

	log.Println("\n🛑 Shutting down gracefully...")

	// Square off any open positions, then stop data and API
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	manager.StopAll(shutdownCtx, store.GetLatestPrice)

	feed.Stop()

	if err := server.Shutdown(); err != nil {
		log.Printf("⚠️  Error during shutdown: %v", err)
	}

	// Print final performance summary
	log.Println("\n" + performanceSummary(store, cfg))

	log.Println("👋 Goodbye!")
}

// paperPlacer fills every order at the symbol-agnostic last price. It stands
// in for a real broker adapter during development and dry runs.
func paperPlacer(store *storage.MemoryStorage) types.OrderPlacer {
	orderSeq := 0
	return func(ctx context.Context, side types.SignalType, quantity int) (types.OrderResult, error) {
		select {
		case <-ctx.Done():
			return types.OrderResult{}, ctx.Err()
		default:
		}
		orderSeq++
		return types.OrderResult{
			OrderID: fmt.Sprintf("paper-%d", orderSeq),
			Price:   0, // 0 means "use the signal price"
		}, nil
	}
}

// logNotifier routes runner notifications to the process log.
type logNotifier struct{}

func (logNotifier) Notify(level, message string) {
	switch level {
	case "error":
		log.Printf("❌ %s", message)
	case "warn":
		log.Printf("⚠️  %s", message)
	default:
		log.Printf("ℹ️  %s", message)
	}
}

// startBackgroundTasks starts background maintenance tasks
func startBackgroundTasks(store *storage.MemoryStorage, cfg types.Config) {
	// Storage cleanup
	go func() {
		ticker := time.NewTicker(time.Duration(cfg.Storage.CleanupInterval) * time.Second)
		defer ticker.Stop()

		for range ticker.C {
			store.Cleanup(cfg.Storage.KeepResultsHours)
			log.Println("🧹 Storage cleanup completed")
		}
	}()

	// Performance summary every 5 minutes
	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()

		for range ticker.C {
			log.Println(performanceSummary(store, cfg))
		}
	}()
}

// performanceSummary renders the live trade log's overall metrics.
func performanceSummary(store *storage.MemoryStorage, cfg types.Config) string {
	trades := store.GetLiveTrades()
	if len(trades) == 0 {
		return "📊 No live trades yet"
	}

	from := trades[0].EntryTime
	to := time.Now().Unix()
	overall := backtest.ComputeMetrics(trades, cfg.Backtest.InitialCapital, from, to)["overall"]

	var b strings.Builder
	b.WriteString("📊 LIVE PERFORMANCE\n")
	fmt.Fprintf(&b, "  Trades:        %d\n", overall.TotalTrades)
	fmt.Fprintf(&b, "  Win rate:      %.1f%%\n", overall.WinRate)
	fmt.Fprintf(&b, "  Return:        %.2f%%\n", overall.ReturnPct)
	fmt.Fprintf(&b, "  Profit factor: %.2f\n", overall.ProfitFactor)
	fmt.Fprintf(&b, "  Expectancy:    %.2f\n", overall.Expectancy)
	fmt.Fprintf(&b, "  Max drawdown:  %.2f%%", overall.MaxDrawdownPct)
	return b.String()
}

// printUsageInstructions prints API usage instructions
func printUsageInstructions(cfg types.Config) {
	log.Println("\n" + strings.Repeat("=", 70))
	log.Println("📚 API USAGE INSTRUCTIONS")
	log.Println(strings.Repeat("=", 70))
	log.Printf("\n📡 ENDPOINTS:\n")
	log.Printf("  GET  /api/health                   - Health check\n")
	log.Printf("  GET  /api/strategies               - Configured strategies\n")
	log.Printf("  GET  /api/bars/:symbol             - Recent 1-minute bars\n")
	log.Printf("  POST /api/backtest                 - Run a backtest\n")
	log.Printf("  GET  /api/backtest/:id             - Backtest result\n")
	log.Printf("  GET  /api/backtest/:id/export      - Audited JSON export\n")
	log.Printf("  POST /api/live/start               - Arm a live runner\n")
	log.Printf("  POST /api/live/stop                - Disarm a live runner\n")
	log.Printf("  GET  /api/live/status              - Runner snapshots\n")
	log.Printf("  GET  /api/performance              - Live metrics\n")
	log.Printf("  WS   /api/stream/:symbol           - Real-time bars\n")
	log.Printf("\n💡 EXAMPLES:\n")
	log.Printf("  curl -X POST http://localhost:%d/api/backtest -d '{\"strategy\":\"mtf_breakout_all\",\"symbol\":\"RELIANCE\"}'\n", cfg.API.Port)
	log.Printf("  curl http://localhost:%d/api/strategies\n", cfg.API.Port)
	log.Println("\n" + strings.Repeat("=", 70) + "\n")
}
