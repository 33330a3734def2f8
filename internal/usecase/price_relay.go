package usecase

import (
	"context"
	"sync"
	"time"

	domrepo "SignalDesk/internal/domain/repository"
	"SignalDesk/pkg/logger"
)

// DefaultRelayInterval is how often subscribers receive the price map.
const DefaultRelayInterval = time.Second

// PriceGauge exports the last price of watchlist symbols.
type PriceGauge interface {
	RecordLastPrice(symbol string, price float64)
}

// PriceRelay runs the live price stream and pushes snapshots of its price
// map to subscribers on a fixed interval.
type PriceRelay struct {
	stream   domrepo.PriceStream
	gauge    PriceGauge
	config   *ConfigHolder
	log      *logger.Logger
	interval time.Duration

	mu     sync.Mutex
	subs   map[int]chan map[string]float64
	nextID int

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewPriceRelay(stream domrepo.PriceStream, gauge PriceGauge, config *ConfigHolder, log *logger.Logger, interval time.Duration) *PriceRelay {
	if interval <= 0 {
		interval = DefaultRelayInterval
	}
	if log == nil {
		log = logger.Nop()
	}
	return &PriceRelay{
		stream:   stream,
		gauge:    gauge,
		config:   config,
		log:      log.With("price_relay"),
		interval: interval,
		subs:     make(map[int]chan map[string]float64),
	}
}

// IsConnected reports whether the underlying stream is live.
func (r *PriceRelay) IsConnected() bool { return r.stream.IsConnected() }

func (r *PriceRelay) Start(ctx context.Context) {
	ctx, r.cancel = context.WithCancel(ctx)
	r.wg.Add(2)
	go func() {
		defer r.wg.Done()
		if err := r.stream.Run(ctx); err != nil {
			r.log.Error("price stream stopped", logger.Error(err))
		}
	}()
	go r.broadcast(ctx)
}

func (r *PriceRelay) broadcast(ctx context.Context) {
	defer r.wg.Done()
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Publish()
		}
	}
}

// Publish sends the current price map to every subscriber. Slow subscribers
// miss a tick instead of blocking the relay.
func (r *PriceRelay) Publish() {
	prices := r.stream.Prices()
	if r.gauge != nil && r.config != nil {
		for _, sym := range r.config.Current().WatchlistSymbols {
			if p, ok := r.stream.LastPrice(sym); ok {
				r.gauge.RecordLastPrice(sym, p)
			}
		}
	}
	if len(prices) == 0 {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ch := range r.subs {
		select {
		case ch <- prices:
		default:
		}
	}
}

// Subscribe returns a channel of price maps and a func that ends the subscription.
func (r *PriceRelay) Subscribe() (<-chan map[string]float64, func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.nextID
	r.nextID++
	ch := make(chan map[string]float64, 1)
	r.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			r.mu.Lock()
			delete(r.subs, id)
			r.mu.Unlock()
			close(ch)
		})
	}
}

// Shutdown stops the relay and closes the stream.
func (r *PriceRelay) Shutdown(ctx context.Context) error {
	if r.cancel != nil {
		r.cancel()
	}
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}
	return r.stream.Close()
}
