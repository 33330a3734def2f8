package market

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"SignalDesk/internal/domain/models"
	"SignalDesk/internal/service/ratelimit"
	"SignalDesk/pkg/cache"
	xhttp "SignalDesk/pkg/http"
	"SignalDesk/pkg/logger"

	"github.com/sony/gobreaker"
)

const (
	DefaultBaseURL = "https://fapi.binance.com"
	klinesPath     = "/fapi/v1/klines"
	summaryLimit   = 200
	CacheTTL       = 10 * time.Second
)

// ErrNoData is returned when no timeframe produced candles.
var ErrNoData = errors.New("market: no kline data")

// Client reads Binance USD-M futures klines. Responses are cached for ten
// seconds and calls go through a per-host limiter and a circuit breaker.
type Client struct {
	baseURL string
	host    string
	http    *xhttp.Client
	cache   cache.Service
	limiter *ratelimit.Limiter
	breaker *gobreaker.CircuitBreaker
	log     *logger.Logger
	now     func() time.Time
}

type Option func(*Client)

func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

func WithHTTPClient(h *xhttp.Client) Option {
	return func(c *Client) { c.http = h }
}

func WithCache(s cache.Service) Option {
	return func(c *Client) { c.cache = s }
}

func WithLimiter(l *ratelimit.Limiter) Option {
	return func(c *Client) { c.limiter = l }
}

func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

func NewClient(log *logger.Logger, opts ...Option) *Client {
	c := &Client{baseURL: DefaultBaseURL, now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	if c.http == nil {
		c.http = xhttp.NewClient(xhttp.WithTimeout(10 * time.Second))
	}
	if c.cache == nil {
		c.cache = cache.NewMemoryCache(cache.WithMemoryMaxSize(256))
	}
	if c.limiter == nil {
		c.limiter = ratelimit.New(10, 20)
	}
	if log == nil {
		log = logger.Nop()
	}
	c.log = log.With("market")
	if u, err := url.Parse(c.baseURL); err == nil {
		c.host = u.Host
	}
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:     "binance-klines",
		Interval: time.Minute,
		Timeout:  30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			var se *xhttp.StatusError
			if errors.As(err, &se) {
				return !se.Retryable()
			}
			return err == nil
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.log.Warn("circuit breaker state change",
				logger.String("breaker", name),
				logger.String("from", from.String()),
				logger.String("to", to.String()))
		},
	})
	return c
}

// Klines returns up to limit candles, oldest first.
func (c *Client) Klines(ctx context.Context, symbol string, tf models.Timeframe, limit int) ([]Candle, error) {
	symbol = strings.ToUpper(symbol)
	key := cache.Key("klines", symbol, tf, limit)

	var candles []Candle
	if err := c.cache.Get(ctx, key, &candles); err == nil {
		return candles, nil
	}

	if err := c.limiter.Wait(ctx, c.host); err != nil {
		return nil, fmt.Errorf("klines %s %s: %w", symbol, tf, err)
	}
	out, err := c.breaker.Execute(func() (interface{}, error) {
		var rows [][]interface{}
		err := c.http.SendAndParse(ctx, &xhttp.RequestOptions{
			Method: xhttp.MethodGet,
			URL:    c.baseURL + klinesPath,
			QueryParams: url.Values{
				"symbol":   {symbol},
				"interval": {string(tf)},
				"limit":    {strconv.Itoa(limit)},
			},
		}, &rows)
		return rows, err
	})
	if err != nil {
		return nil, fmt.Errorf("klines %s %s: %w", symbol, tf, err)
	}

	candles, err = parseKlines(out.([][]interface{}))
	if err != nil {
		return nil, fmt.Errorf("klines %s %s: %w", symbol, tf, err)
	}
	if err := c.cache.Set(ctx, key, candles, CacheTTL); err != nil {
		c.log.Warn("kline cache set failed", logger.String("key", key), logger.Error(err))
	}
	return candles, nil
}

// GetContext summarizes every timeframe. A failing timeframe gets a zero
// summary; if all fail the call returns ErrNoData.
func (c *Client) GetContext(ctx context.Context, symbol string) (*models.MarketContext, error) {
	symbol = strings.ToUpper(symbol)
	type result struct {
		tf      models.Timeframe
		candles []Candle
		err     error
	}

	results := make([]result, len(models.Timeframes))
	var wg sync.WaitGroup
	for i, tf := range models.Timeframes {
		wg.Add(1)
		go func(i int, tf models.Timeframe) {
			defer wg.Done()
			candles, err := c.Klines(ctx, symbol, tf, summaryLimit)
			results[i] = result{tf: tf, candles: candles, err: err}
		}(i, tf)
	}
	wg.Wait()

	mc := &models.MarketContext{
		Symbol:    symbol,
		Frames:    make(map[models.Timeframe]models.MarketSummary, len(results)),
		FetchedAt: c.now().UnixMilli(),
	}
	var ok int
	for _, r := range results {
		if r.err != nil {
			c.log.Warn("klines fetch failed", logger.String("symbol", symbol), logger.String("tf", string(r.tf)), logger.Error(r.err))
			mc.Frames[r.tf] = models.MarketSummary{TF: r.tf}
			continue
		}
		ok++
		mc.Frames[r.tf] = Summarize(r.tf, r.candles)
	}
	if ok == 0 {
		return nil, ErrNoData
	}
	for _, tf := range []models.Timeframe{models.TF15m, models.TF1h, models.TF4h} {
		if s := mc.Frames[tf]; s.LastPrice > 0 {
			mc.LastPrice = s.LastPrice
			break
		}
	}
	return mc, nil
}

// LastPrice is the close of the newest 15m candle.
func (c *Client) LastPrice(ctx context.Context, symbol string) (float64, error) {
	candles, err := c.Klines(ctx, symbol, models.TF15m, 1)
	if err != nil {
		return 0, err
	}
	if len(candles) == 0 {
		return 0, ErrNoData
	}
	return candles[len(candles)-1].Close.InexactFloat64(), nil
}

func (c *Client) Close() error { return c.cache.Close() }
