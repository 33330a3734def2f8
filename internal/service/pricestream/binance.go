package pricestream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	domrepo "SignalDesk/internal/domain/repository"
	"SignalDesk/pkg/logger"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
)

const DefaultURL = "wss://fstream.binance.com/ws/!miniTicker@arr"

type Config struct {
	URL            string
	ReconnectDelay time.Duration
	PingInterval   time.Duration
}

// Client keeps the last close of every symbol on the miniTicker stream.
type Client struct {
	cfg Config
	log *logger.Logger

	mu     sync.RWMutex
	conn   *websocket.Conn
	prices map[string]float64

	connected atomic.Bool
}

var _ domrepo.PriceStream = (*Client)(nil)

func New(cfg Config, log *logger.Logger) *Client {
	if cfg.URL == "" {
		cfg.URL = DefaultURL
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = 3 * time.Second
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 30 * time.Second
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Client{cfg: cfg, log: log.With("pricestream"), prices: make(map[string]float64)}
}

func (c *Client) Connect(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.cfg.URL, nil)
	if err != nil {
		return fmt.Errorf("price stream connect: %w", err)
	}
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	c.connected.Store(true)
	c.log.Info("price stream connected", logger.String("url", c.cfg.URL))
	return nil
}

// Run reads until ctx is done, reconnecting after every failure.
func (c *Client) Run(ctx context.Context) error {
	for {
		if !c.connected.Load() {
			if err := c.Connect(ctx); err != nil {
				c.log.Warn("price stream connect failed", logger.Error(err))
				if !sleep(ctx, c.cfg.ReconnectDelay) {
					return nil
				}
				continue
			}
		}
		err := c.readLoop(ctx)
		_ = c.Close()
		if ctx.Err() != nil {
			return nil
		}
		c.log.Warn("price stream disconnected", logger.Error(err))
		if !sleep(ctx, c.cfg.ReconnectDelay) {
			return nil
		}
	}
}

type miniTicker struct {
	Symbol string `json:"s"`
	Close  string `json:"c"`
}

func (c *Client) readLoop(ctx context.Context) error {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()
	if conn == nil {
		return errors.New("price stream not connected")
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(c.cfg.PingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				_ = conn.Close()
				return
			case <-done:
				return
			case <-ticker.C:
				_ = conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
			}
		}
	}()

	for {
		_, b, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("price stream read: %w", err)
		}
		var batch []miniTicker
		if err := json.Unmarshal(b, &batch); err != nil {
			continue
		}
		c.apply(batch)
	}
}

func (c *Client) apply(batch []miniTicker) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, t := range batch {
		if t.Symbol == "" || t.Close == "" {
			continue
		}
		px, err := decimal.NewFromString(t.Close)
		if err != nil {
			continue
		}
		c.prices[t.Symbol] = px.InexactFloat64()
	}
}

func (c *Client) LastPrice(symbol string) (float64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.prices[strings.ToUpper(symbol)]
	return p, ok
}

// Prices returns a copy of every known price.
func (c *Client) Prices() map[string]float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]float64, len(c.prices))
	for k, v := range c.prices {
		out[k] = v
	}
	return out
}

func (c *Client) IsConnected() bool { return c.connected.Load() }

func (c *Client) Close() error {
	c.connected.Store(false)
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
