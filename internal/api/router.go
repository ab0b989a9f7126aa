package api

import (
	"fmt"
	"log"
	"time"

	"algo-trader/internal/live"
	"algo-trader/internal/storage"
	"algo-trader/pkg/types"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/websocket/v2"
)

// Server represents the API server
type Server struct {
	app     *fiber.App
	handler *Handler
	config  types.APIConfig
}

// NewServer creates a new API server
func NewServer(store *storage.MemoryStorage, manager *live.Manager, cfg types.Config, loc *time.Location) *Server {
	app := fiber.New(fiber.Config{
		AppName: "Algo Trader API",
	})

	// Middleware
	if cfg.API.EnableCORS {
		app.Use(cors.New(cors.Config{
			AllowOrigins: "*",
			AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
			AllowHeaders: "Origin, Content-Type, Accept",
		}))
	}

	app.Use(logger.New(logger.Config{
		Format: "[${time}] ${status} - ${method} ${path} (${latency})\n",
	}))

	return &Server{
		app:     app,
		handler: NewHandler(store, manager, cfg, loc),
		config:  cfg.API,
	}
}

// SetupRoutes configures all API routes
func (s *Server) SetupRoutes() {
	api := s.app.Group("/api")

	// Health check
	api.Get("/health", s.handler.Health)

	// Strategies and market data
	api.Get("/strategies", s.handler.GetStrategies)
	api.Get("/bars/:symbol", s.handler.GetBars)

	// Backtests
	api.Post("/backtest", s.handler.RunBacktest)
	api.Get("/backtest", s.handler.ListBacktests)
	api.Get("/backtest/:id", s.handler.GetBacktest)
	api.Get("/backtest/:id/export", s.handler.ExportBacktest)

	// Live runners
	api.Post("/live/start", s.handler.StartRunner)
	api.Post("/live/stop", s.handler.StopRunner)
	api.Get("/live/status", s.handler.GetRunnerStatus)
	api.Get("/live/trades", s.handler.GetLiveTrades)
	api.Get("/performance", s.handler.GetPerformance)

	// WebSocket for real-time bars
	if s.config.WebSocketEnabled {
		api.Get("/stream/:symbol", websocket.New(s.handler.WebSocketHandler))
	}

	// 404 handler for everything else
	s.app.Use(func(c *fiber.Ctx) error {
		return c.Status(404).JSON(fiber.Map{
			"error": "Not found",
			"path":  c.Path(),
		})
	})
}

// Start starts the API server
func (s *Server) Start() error {
	s.SetupRoutes()

	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	log.Printf("🌐 API server starting on http://%s", addr)
	log.Printf("🧪 Backtests: POST http://%s/api/backtest", addr)
	log.Printf("📡 WebSocket: ws://%s/api/stream/:symbol", addr)

	return s.app.Listen(addr)
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}
