package collector

import (
	"fmt"
	"log"
	"sync"
	"time"

	"algo-trader/internal/candles"
	"algo-trader/internal/storage"
	"algo-trader/pkg/types"

	"github.com/gorilla/websocket"
)

// BarHandler receives each completed 1-minute bar, after it is stored.
type BarHandler func(bar types.Bar)

// FeedCollector maintains the broker WebSocket connection, folds ticks into
// 1-minute bars and fans completed bars out to storage and the registered
// handlers.
type FeedCollector struct {
	storage *storage.MemoryStorage
	config  types.DataSourceConfig
	symbols []string

	conn   *websocket.Conn
	connMu sync.RWMutex

	aggregators map[string]*candles.Aggregator
	aggMu       sync.Mutex

	handlers  []BarHandler
	handlerMu sync.RWMutex

	stopChan chan struct{}
	stopOnce sync.Once
}

// FeedMessage is the broker's wire envelope.
type FeedMessage struct {
	Type   string    `json:"type"`
	Tick   *FeedTick `json:"tick,omitempty"`
	Error  *FeedErr  `json:"error,omitempty"`
	Symbol string    `json:"symbol,omitempty"`
}

// FeedTick is one traded price point on the wire.
type FeedTick struct {
	Symbol string  `json:"symbol"`
	Price  float64 `json:"ltp"`
	Volume int64   `json:"volume"`
	Epoch  int64   `json:"epoch"`
}

// FeedErr is a broker-side error payload.
type FeedErr struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewFeedCollector creates a collector for the given symbols.
func NewFeedCollector(store *storage.MemoryStorage, config types.DataSourceConfig, symbols []string) *FeedCollector {
	aggs := make(map[string]*candles.Aggregator, len(symbols))
	for _, sym := range symbols {
		aggs[sym] = candles.NewAggregator(time.Minute)
	}
	return &FeedCollector{
		storage:     store,
		config:      config,
		symbols:     symbols,
		aggregators: aggs,
		stopChan:    make(chan struct{}),
	}
}

// OnBar registers a handler for completed bars. Handlers run on the read
// goroutine and must not block.
func (c *FeedCollector) OnBar(h BarHandler) {
	c.handlerMu.Lock()
	defer c.handlerMu.Unlock()
	c.handlers = append(c.handlers, h)
}

// Start launches the connection manager.
func (c *FeedCollector) Start() error {
	if len(c.symbols) == 0 {
		return fmt.Errorf("no symbols to subscribe")
	}
	log.Printf("🚀 Starting feed collector for %d symbols", len(c.symbols))
	go c.connectionManager()
	return nil
}

// connectionManager reconnects with exponential backoff, capped at 30s.
func (c *FeedCollector) connectionManager() {
	backoffDelay := c.config.ReconnectDelay
	if backoffDelay <= 0 {
		backoffDelay = 2
	}

	for {
		select {
		case <-c.stopChan:
			return
		default:
			if err := c.connect(); err != nil {
				log.Printf("❌ Feed connection failed: %v", err)
				log.Printf("⏳ Retrying in %d seconds...", backoffDelay)
				time.Sleep(time.Duration(backoffDelay) * time.Second)

				backoffDelay *= 2
				if backoffDelay > 30 {
					backoffDelay = 30
				}
				continue
			}

			backoffDelay = c.config.ReconnectDelay
			if backoffDelay <= 0 {
				backoffDelay = 2
			}

			for _, sym := range c.symbols {
				if err := c.subscribe(sym); err != nil {
					log.Printf("⚠️  Failed to subscribe to %s: %v", sym, err)
				}
			}

			c.readMessages()

			log.Println("⚠️  Feed connection lost, reconnecting...")
			time.Sleep(time.Duration(backoffDelay) * time.Second)
		}
	}
}

func (c *FeedCollector) connect() error {
	conn, _, err := websocket.DefaultDialer.Dial(c.config.FeedURL, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", c.config.FeedURL, err)
	}

	c.connMu.Lock()
	c.conn = conn
	c.connMu.Unlock()

	log.Printf("✅ Connected to feed %s", c.config.FeedURL)
	go c.keepAlive()
	return nil
}

func (c *FeedCollector) subscribe(symbol string) error {
	c.connMu.RLock()
	conn := c.conn
	c.connMu.RUnlock()

	if conn == nil {
		return fmt.Errorf("not connected")
	}

	msg := map[string]interface{}{
		"action": "subscribe",
		"symbol": symbol,
	}
	if err := conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("subscribe %s: %w", symbol, err)
	}

	log.Printf("📊 Subscribed to %s", symbol)
	return nil
}

func (c *FeedCollector) readMessages() {
	defer func() {
		c.connMu.Lock()
		if c.conn != nil {
			c.conn.Close()
			c.conn = nil
		}
		c.connMu.Unlock()
	}()

	for {
		c.connMu.RLock()
		conn := c.conn
		c.connMu.RUnlock()

		if conn == nil {
			return
		}

		var msg FeedMessage
		if err := conn.ReadJSON(&msg); err != nil {
			log.Printf("⚠️  Feed read error: %v", err)
			return
		}

		c.handleMessage(msg)
	}
}

func (c *FeedCollector) handleMessage(msg FeedMessage) {
	switch msg.Type {
	case "tick":
		if msg.Tick != nil {
			c.ProcessTick(types.Tick{
				Symbol:    msg.Tick.Symbol,
				Price:     msg.Tick.Price,
				Volume:    msg.Tick.Volume,
				Timestamp: time.Unix(msg.Tick.Epoch, 0),
			})
		}
	case "error":
		if msg.Error != nil {
			log.Printf("❌ Feed error: %s - %s", msg.Error.Code, msg.Error.Message)
		}
	case "pong":
		return
	}
}

// ProcessTick folds one tick into its symbol's forming bar and publishes the
// completed bar when the minute rolls. Out-of-order bars are dropped at the
// storage boundary, so downstream consumers only ever see a strictly
// increasing series.
func (c *FeedCollector) ProcessTick(tick types.Tick) {
	c.aggMu.Lock()
	agg, ok := c.aggregators[tick.Symbol]
	if !ok {
		c.aggMu.Unlock()
		return
	}
	done := agg.Add(tick)
	c.aggMu.Unlock()

	if done == nil {
		return
	}

	if !c.storage.AddBar(*done) {
		log.Printf("⚠️  Dropped out-of-order bar for %s at %d", done.Symbol, done.Time)
		return
	}

	c.handlerMu.RLock()
	handlers := c.handlers
	c.handlerMu.RUnlock()
	for _, h := range handlers {
		h(*done)
	}
}

// keepAlive sends periodic pings so idle connections stay open.
func (c *FeedCollector) keepAlive() {
	interval := c.config.PingInterval
	if interval <= 0 {
		interval = 30
	}
	ticker := time.NewTicker(time.Duration(interval) * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopChan:
			return
		case <-ticker.C:
			c.connMu.RLock()
			conn := c.conn
			c.connMu.RUnlock()

			if conn == nil {
				return
			}
			if err := conn.WriteJSON(map[string]interface{}{"action": "ping"}); err != nil {
				log.Printf("⚠️  Ping failed: %v", err)
				return
			}
		}
	}
}

// Stop closes the connection and halts reconnection.
func (c *FeedCollector) Stop() {
	c.stopOnce.Do(func() { close(c.stopChan) })

	c.connMu.Lock()
	defer c.connMu.Unlock()
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}

	log.Println("🛑 Feed collector stopped")
}
