package source

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sync"
	"time"

	"AlphaPilot/internal/domain/models"
	drepo "AlphaPilot/internal/domain/repository"

	"github.com/gorilla/websocket"
)

// DexStreamConfig configures one on-chain swap stream source.
type DexStreamConfig struct {
	SourceID      string
	URL           string
	APIKey        string
	Assets        []string
	PingInterval  time.Duration
	HalfLife      time.Duration
	WhaleFloorUSD float64 // swaps at or above this get the whale tag
	RefSizeUSD    float64 // swap notional mapped to strength 1.0
}

// DexStream ingests a WebSocket feed of on-chain swap events, normalizing
// them to Signals and surfacing observed prices for the execution engine.
// All writes to the connection go through mu: gorilla/websocket forbids
// concurrent writers. connDone is closed when the current connection dies
// so its ping loop stops before a reconnect starts the next one.
type DexStream struct {
	cfg    DexStreamConfig
	prices chan *models.PriceUpdate

	mu        sync.Mutex
	conn      *websocket.Conn
	connDone  chan struct{}
	connected bool
}

// NewDexStream creates a DexStream SignalSource.
func NewDexStream(cfg DexStreamConfig) drepo.SignalSource {
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 15 * time.Second
	}
	if cfg.RefSizeUSD <= 0 {
		cfg.RefSizeUSD = 25_000
	}
	if cfg.WhaleFloorUSD <= 0 {
		cfg.WhaleFloorUSD = 10_000
	}
	return &DexStream{
		cfg:    cfg,
		prices: make(chan *models.PriceUpdate, 256),
	}
}

func (c *DexStream) ID() string { return c.cfg.SourceID }

// Connect establishes the WebSocket connection.
func (c *DexStream) Connect(ctx context.Context) error {
	u := c.cfg.URL
	if c.cfg.APIKey != "" {
		u = fmt.Sprintf("%s?token=%s", c.cfg.URL, c.cfg.APIKey)
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u, nil)
	if err != nil {
		return fmt.Errorf("dexstream connect: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.connDone = make(chan struct{})
	c.connected = true
	c.mu.Unlock()
	return nil
}

// Subscribe subscribes to configured assets.
func (c *DexStream) Subscribe(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil || !c.connected {
		return fmt.Errorf("dexstream not connected")
	}
	for _, a := range c.cfg.Assets {
		msg := map[string]string{"type": "subscribe", "asset": a}
		if err := c.conn.WriteJSON(msg); err != nil {
			return fmt.Errorf("subscribe %s: %w", a, err)
		}
	}
	return nil
}

type swapEvent struct {
	Asset     string  `json:"asset"`
	Side      string  `json:"side"` // buy or sell
	AmountUSD float64 `json:"amount_usd"`
	Price     float64 `json:"price"`
	T         int64   `json:"t"` // ms
}

type swapMessage struct {
	Type string      `json:"type"`
	Data []swapEvent `json:"data"`
}

// Read streams normalized Signals and errors. The ping loop it spawns is
// bound to the current connection, not the application context: Close ends
// it, so a reconnect never stacks a second writer on the new connection.
func (c *DexStream) Read(ctx context.Context) (<-chan *models.Signal, <-chan error) {
	signals := make(chan *models.Signal, 1024)
	errs := make(chan error, 1)

	c.mu.Lock()
	conn, done := c.conn, c.connDone
	c.mu.Unlock()
	if conn == nil {
		errs <- fmt.Errorf("dexstream conn nil")
		close(signals)
		close(errs)
		return signals, errs
	}

	// ping loop for this connection
	go func() {
		ticker := time.NewTicker(c.cfg.PingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-done:
				return
			case <-ticker.C:
				c.writePing()
			}
		}
	}()

	// read loop; Close unblocks ReadMessage with an error
	go func() {
		defer close(signals)
		defer close(errs)
		for {
			select {
			case <-ctx.Done():
				return
			default:
				_, b, err := conn.ReadMessage()
				if err != nil {
					errs <- fmt.Errorf("dexstream read: %w", err)
					return
				}
				var m swapMessage
				if err := json.Unmarshal(b, &m); err != nil {
					// ignore non-swap frames
					continue
				}
				if m.Type != "swap" {
					continue
				}
				for _, ev := range m.Data {
					s := c.normalize(ev)
					if s == nil {
						continue
					}
					select {
					case signals <- s:
					default:
						// drop when the pipeline lags; next swap supersedes
					}
					if ev.Price > 0 {
						select {
						case c.prices <- &models.PriceUpdate{
							AssetID:    ev.Asset,
							Price:      ev.Price,
							ObservedAt: time.UnixMilli(ev.T),
						}:
						default:
						}
					}
				}
			}
		}
	}()

	return signals, errs
}

// Prices streams observed per-asset prices.
func (c *DexStream) Prices() <-chan *models.PriceUpdate { return c.prices }

// writePing sends a ping frame under the write lock.
func (c *DexStream) writePing() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		_ = c.conn.WriteMessage(websocket.PingMessage, nil)
	}
}

// normalize maps a swap event to a Signal. Strength scales with notional
// against the reference size, saturating at 1.
func (c *DexStream) normalize(ev swapEvent) *models.Signal {
	if ev.Asset == "" || ev.AmountUSD <= 0 {
		return nil
	}
	dir := models.DirectionNeutral
	switch ev.Side {
	case "buy":
		dir = models.DirectionBullish
	case "sell":
		dir = models.DirectionBearish
	}
	strength := math.Min(1, ev.AmountUSD/c.cfg.RefSizeUSD)
	tags := []string{"onchain_swap"}
	if ev.AmountUSD >= c.cfg.WhaleFloorUSD {
		tags = append(tags, "whale")
	}
	return &models.Signal{
		SourceID:      c.cfg.SourceID,
		AssetID:       ev.Asset,
		Direction:     dir,
		Strength:      strength,
		ObservedAt:    time.UnixMilli(ev.T),
		DecayHalfLife: c.cfg.HalfLife,
		Tags:          tags,
	}
}

// Reconnect re-establishes the connection and subscriptions.
func (c *DexStream) Reconnect(ctx context.Context) error {
	_ = c.Close()
	if err := c.Connect(ctx); err != nil {
		return err
	}
	return c.Subscribe(ctx)
}

// Close stops the connection's ping loop and closes the socket, which
// unblocks any pending ReadMessage.
func (c *DexStream) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = false
	if c.connDone != nil {
		close(c.connDone)
		c.connDone = nil
	}
	if c.conn != nil {
		err := c.conn.Close()
		c.conn = nil
		return err
	}
	return nil
}

// IsConnected reports connection status.
func (c *DexStream) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}
