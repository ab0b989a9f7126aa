package api

import (
	"context"
	"log"
	"time"

	"algo-trader/internal/backtest"
	"algo-trader/internal/live"
	"algo-trader/internal/storage"
	"algo-trader/internal/strategy"
	"algo-trader/pkg/types"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
)

// Handler handles HTTP requests
type Handler struct {
	storage *storage.MemoryStorage
	manager *live.Manager
	config  types.Config
	loc     *time.Location
}

// NewHandler creates a new API handler
func NewHandler(store *storage.MemoryStorage, manager *live.Manager, cfg types.Config, loc *time.Location) *Handler {
	return &Handler{storage: store, manager: manager, config: cfg, loc: loc}
}

// Health returns service liveness plus basic data coverage.
func (h *Handler) Health(c *fiber.Ctx) error {
	symbols := h.storage.Symbols()
	return c.JSON(fiber.Map{
		"status":  "ok",
		"symbols": len(symbols),
		"time":    time.Now().UTC().Format(time.RFC3339),
	})
}

// GetStrategies lists the configured strategy parametrizations.
func (h *Handler) GetStrategies(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"strategies": h.config.Strategies,
		"count":      len(h.config.Strategies),
	})
}

// GetBars returns recent bars for a symbol.
func (h *Handler) GetBars(c *fiber.Ctx) error {
	symbol := c.Params("symbol")
	n := c.QueryInt("limit", 500)

	bars := h.storage.GetBars(symbol, n)
	if len(bars) == 0 {
		return c.Status(404).JSON(fiber.Map{"error": "no data for symbol", "symbol": symbol})
	}
	return c.JSON(fiber.Map{"symbol": symbol, "count": len(bars), "bars": bars})
}

// BacktestRequest is the POST /api/backtest body.
type BacktestRequest struct {
	Strategy string  `json:"strategy"`
	Symbol   string  `json:"symbol"`
	From     int64   `json:"from,omitempty"`
	To       int64   `json:"to,omitempty"`
	Capital  float64 `json:"capital,omitempty"`
	Quantity int     `json:"quantity,omitempty"`
}

// RunBacktest replays a strategy over stored history and keeps the result
// addressable by run ID.
func (h *Handler) RunBacktest(c *fiber.Ctx) error {
	var req BacktestRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid request body"})
	}

	params, ok := h.findStrategy(req.Strategy)
	if !ok {
		return c.Status(404).JSON(fiber.Map{"error": "unknown strategy", "strategy": req.Strategy})
	}

	var bars []types.Bar
	if req.From > 0 || req.To > 0 {
		to := req.To
		if to == 0 {
			to = time.Now().Unix()
		}
		bars = h.storage.GetBarsRange(req.Symbol, req.From, to)
	} else {
		bars = h.storage.GetBars(req.Symbol, 0)
	}
	if len(bars) == 0 {
		return c.Status(404).JSON(fiber.Map{"error": "no data for symbol", "symbol": req.Symbol})
	}

	gen, err := strategy.New(params, h.loc, h.config.Market.OpenMinute)
	if err != nil {
		return c.Status(400).JSON(fiber.Map{"error": err.Error()})
	}

	signals, rows, err := strategy.Precompute(gen, bars)
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"error": err.Error()})
	}

	capital := req.Capital
	if capital <= 0 {
		capital = h.config.Backtest.InitialCapital
	}
	quantity := req.Quantity
	if quantity <= 0 {
		quantity = h.config.Backtest.Quantity
	}

	res, err := backtest.Run(bars, signals, backtest.Config{
		StrategyName:   params.Name,
		Symbol:         req.Symbol,
		InitialCapital: capital,
		Quantity:       quantity,
		Costs:          h.config.Costs,
		Location:       h.loc,
		SquareOffHour:  h.config.Market.SquareOffHour,
		SquareOffMin:   h.config.Market.SquareOffMin,
	})
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"error": err.Error()})
	}

	res.RunID = uuid.New().String()
	h.storage.StoreResult(res)

	log.Printf("🧪 Backtest %s: %s on %s, %d bars, %d signals, %d trades",
		res.RunID, params.Name, req.Symbol, len(bars), len(signals), len(res.Trades))

	return c.JSON(fiber.Map{
		"run_id":    res.RunID,
		"strategy":  params.Name,
		"symbol":    req.Symbol,
		"bars":      len(bars),
		"signals":   len(signals),
		"trades":    len(res.Trades),
		"calc_rows": len(rows),
		"metrics":   res.Metrics,
	})
}

// ListBacktests returns summaries of stored runs.
func (h *Handler) ListBacktests(c *fiber.Ctx) error {
	results := h.storage.ListResults()
	out := make([]fiber.Map, 0, len(results))
	for _, res := range results {
		out = append(out, fiber.Map{
			"run_id":   res.RunID,
			"strategy": res.Strategy,
			"symbol":   res.Symbol,
			"trades":   len(res.Trades),
		})
	}
	return c.JSON(fiber.Map{"runs": out, "count": len(out)})
}

// GetBacktest returns a full stored result.
func (h *Handler) GetBacktest(c *fiber.Ctx) error {
	res, ok := h.storage.GetResult(c.Params("id"))
	if !ok {
		return c.Status(404).JSON(fiber.Map{"error": "unknown run id"})
	}
	return c.JSON(res)
}

// ExportBacktest returns the audited export document for a run.
func (h *Handler) ExportBacktest(c *fiber.Ctx) error {
	res, ok := h.storage.GetResult(c.Params("id"))
	if !ok {
		return c.Status(404).JSON(fiber.Map{"error": "unknown run id"})
	}

	doc := backtest.BuildExport(res, h.loc)
	body, err := backtest.MarshalExport(doc)
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"error": err.Error()})
	}

	c.Set("Content-Type", "application/json")
	c.Set("Content-Disposition", `attachment; filename="backtest-`+res.RunID+`.json"`)
	return c.Send(body)
}

// LiveRequest is the body for the runner start/stop endpoints.
type LiveRequest struct {
	Strategy string `json:"strategy"`
	Symbol   string `json:"symbol"`
	Quantity int    `json:"quantity,omitempty"`
}

// StartRunner arms a live runner, warming its generator from stored history.
func (h *Handler) StartRunner(c *fiber.Ctx) error {
	var req LiveRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid request body"})
	}

	params, ok := h.findStrategy(req.Strategy)
	if !ok {
		return c.Status(404).JSON(fiber.Map{"error": "unknown strategy", "strategy": req.Strategy})
	}

	history := h.storage.GetBars(req.Symbol, 0)
	if err := h.manager.Start(params, req.Symbol, req.Quantity, history); err != nil {
		return c.Status(409).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(fiber.Map{"status": "started", "strategy": params.Name, "symbol": req.Symbol})
}

// StopRunner disarms a live runner, squaring off at the last stored close.
func (h *Handler) StopRunner(c *fiber.Ctx) error {
	var req LiveRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid request body"})
	}

	lastPrice := h.storage.GetLatestPrice(req.Symbol)
	if err := h.manager.Stop(context.Background(), req.Strategy, req.Symbol, lastPrice); err != nil {
		return c.Status(404).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(fiber.Map{"status": "stopped", "strategy": req.Strategy, "symbol": req.Symbol})
}

// GetRunnerStatus lists every active runner's snapshot.
func (h *Handler) GetRunnerStatus(c *fiber.Ctx) error {
	statuses := h.manager.Statuses()
	return c.JSON(fiber.Map{"runners": statuses, "count": len(statuses)})
}

// GetLiveTrades returns the live trade log.
func (h *Handler) GetLiveTrades(c *fiber.Ctx) error {
	trades := h.storage.GetLiveTrades()
	return c.JSON(fiber.Map{"trades": trades, "count": len(trades)})
}

// GetPerformance computes the metrics set over the live trade log.
func (h *Handler) GetPerformance(c *fiber.Ctx) error {
	trades := h.storage.GetLiveTrades()

	from, to := int64(0), time.Now().Unix()
	if len(trades) > 0 {
		from = trades[0].EntryTime
	}

	metrics := backtest.ComputeMetrics(trades, h.config.Backtest.InitialCapital, from, to)
	return c.JSON(fiber.Map{"trades": len(trades), "metrics": metrics})
}

// WebSocketHandler streams completed bars for a symbol, polling storage once
// a second and forwarding anything new.
func (h *Handler) WebSocketHandler(c *websocket.Conn) {
	symbol := c.Params("symbol")
	log.Printf("🔌 Stream client connected for %s", symbol)

	defer func() {
		c.Close()
		log.Printf("🔌 Stream client disconnected for %s", symbol)
	}()

	var lastSent int64
	if bars := h.storage.GetBars(symbol, 1); len(bars) > 0 {
		if err := c.WriteJSON(bars[0]); err != nil {
			return
		}
		lastSent = bars[0].Time
	}

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for range ticker.C {
		bars := h.storage.GetBars(symbol, 50)
		for _, bar := range bars {
			if bar.Time <= lastSent {
				continue
			}
			if err := c.WriteJSON(bar); err != nil {
				return
			}
			lastSent = bar.Time
		}
	}
}

func (h *Handler) findStrategy(name string) (types.StrategyParams, bool) {
	for _, params := range h.config.Strategies {
		if params.Name == name {
			return params, true
		}
	}
	return strategy.Preset(name)
}
