package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"SignalDesk/internal/domain/models"
	domrepo "SignalDesk/internal/domain/repository"
	"SignalDesk/internal/domain/service"
	"SignalDesk/internal/services/normalizer"
	"SignalDesk/pkg/logger"
	"SignalDesk/pkg/util"
)

// Event query limits.
const (
	DefaultEventsLimit = 50
	MaxEventsLimit     = 500
)

// StatusSource reports scheduler state.
type StatusSource interface {
	Status() models.SchedulerStatus
}

// QueryService serves the read side: events, snapshots, prices and status.
type QueryService struct {
	events    domrepo.EventStore
	snapshots domrepo.SnapshotStore
	limiter   domrepo.RateLimiter
	archive   domrepo.DecisionArchive
	stream    domrepo.PriceStream
	market    service.MarketData
	scheduler StatusSource
	config    *ConfigHolder
	log       *logger.Logger
	started   time.Time
	now       func() time.Time
}

type QueryOption func(*QueryService)

func WithPriceSources(stream domrepo.PriceStream, market service.MarketData) QueryOption {
	return func(q *QueryService) {
		q.stream = stream
		q.market = market
	}
}

func WithStatusSources(limiter domrepo.RateLimiter, scheduler StatusSource) QueryOption {
	return func(q *QueryService) {
		q.limiter = limiter
		q.scheduler = scheduler
	}
}

func WithArchive(a domrepo.DecisionArchive) QueryOption {
	return func(q *QueryService) { q.archive = a }
}

func WithQueryClock(now func() time.Time) QueryOption {
	return func(q *QueryService) {
		q.now = now
		q.started = now()
	}
}

func NewQueryService(events domrepo.EventStore, snapshots domrepo.SnapshotStore, config *ConfigHolder, log *logger.Logger, opts ...QueryOption) *QueryService {
	if log == nil {
		log = logger.Nop()
	}
	q := &QueryService{
		events:    events,
		snapshots: snapshots,
		config:    config,
		log:       log.With("query"),
		now:       time.Now,
		started:   time.Now(),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

type eventFilter struct {
	indicator string
	tf        models.Timeframe
	signal    models.Signal
	after     int64
	before    int64
}

func newEventFilter(req models.EventsRequest) (eventFilter, error) {
	f := eventFilter{indicator: strings.TrimSpace(req.Indicator)}
	if req.TF != "" {
		tf, ok := models.ParseTimeframe(req.TF)
		if !ok {
			return f, fmt.Errorf("%w: tf %q", ErrInvalidQuery, req.TF)
		}
		f.tf = tf
	}
	if req.Signal != "" {
		f.signal = models.Signal(strings.ToUpper(strings.TrimSpace(req.Signal)))
		if f.signal.Direction() == 0 {
			return f, fmt.Errorf("%w: signal %q", ErrInvalidQuery, req.Signal)
		}
	}
	if req.After != "" {
		t, ok := util.ParseTime(req.After)
		if !ok {
			return f, fmt.Errorf("%w: after %q", ErrInvalidQuery, req.After)
		}
		f.after = t.Unix()
	}
	if req.Before != "" {
		t, ok := util.ParseTime(req.Before)
		if !ok {
			return f, fmt.Errorf("%w: before %q", ErrInvalidQuery, req.Before)
		}
		f.before = t.Unix()
	}
	return f, nil
}

func (f eventFilter) match(rec models.EventRecord) bool {
	switch {
	case f.indicator != "" && !strings.EqualFold(rec.Indicator, f.indicator):
		return false
	case f.tf != "" && rec.TF != f.tf:
		return false
	case f.signal != "" && rec.Signal != f.signal:
		return false
	case f.after > 0 && rec.TS < f.after:
		return false
	case f.before > 0 && rec.TS > f.before:
		return false
	}
	return true
}

// Events returns stored events newest first, filtered, without the shared secret.
func (q *QueryService) Events(ctx context.Context, req models.EventsRequest) (models.EventsResponse, error) {
	symbol := normalizer.NormalizeSymbol(req.Symbol)
	if symbol == "" {
		return models.EventsResponse{}, fmt.Errorf("%w: symbol is required", ErrInvalidQuery)
	}
	filter, err := newEventFilter(req)
	if err != nil {
		return models.EventsResponse{}, err
	}
	limit := req.Limit
	if limit <= 0 {
		limit = DefaultEventsLimit
	}
	limit = min(limit, MaxEventsLimit)

	out := make([]models.EventRecord, 0, limit)
	for rec, err := range q.events.ReadNewest(ctx, symbol) {
		if err != nil {
			return models.EventsResponse{}, fmt.Errorf("events %s: %w", symbol, err)
		}
		if !filter.match(rec) {
			continue
		}
		out = append(out, rec.Sanitized())
		if len(out) == limit {
			break
		}
	}
	return models.EventsResponse{Symbol: symbol, Count: len(out), Events: out}, nil
}

// Latest returns both snapshot tiers, or ErrUnknownSymbol when neither exists.
func (q *QueryService) Latest(ctx context.Context, symbol string) (models.Snapshot, error) {
	symbol = normalizer.NormalizeSymbol(symbol)
	snap, err := q.snapshots.Read(ctx, symbol)
	if err != nil {
		return models.Snapshot{}, fmt.Errorf("latest %s: %w", symbol, err)
	}
	if snap.Empty() {
		return models.Snapshot{}, fmt.Errorf("%w: %s", ErrUnknownSymbol, symbol)
	}
	return snap, nil
}

// Price prefers the live stream for the last price and adds the market
// summary when available.
func (q *QueryService) Price(ctx context.Context, symbol string) (models.PriceResponse, error) {
	symbol = normalizer.NormalizeSymbol(symbol)
	resp := models.PriceResponse{Symbol: symbol}
	if q.stream != nil {
		if p, ok := q.stream.LastPrice(symbol); ok {
			resp.LastPrice = p
			resp.Live = true
		}
	}
	if q.market != nil {
		mc, err := q.market.GetContext(ctx, symbol)
		if err != nil {
			q.log.Debug("market context unavailable", logger.String("symbol", symbol), logger.Error(err))
		} else {
			resp.Frames = mc.Frames
			if !resp.Live {
				resp.LastPrice = mc.LastPrice
			}
		}
	}
	if !resp.Live && resp.Frames == nil {
		return models.PriceResponse{}, fmt.Errorf("%w: %s", ErrUnknownSymbol, symbol)
	}
	return resp, nil
}

// Decisions returns archived evaluations of symbol between from and to, newest first.
func (q *QueryService) Decisions(ctx context.Context, symbol string, from, to time.Time, limit int) ([]models.RulesResult, error) {
	if q.archive == nil {
		return nil, nil
	}
	symbol = normalizer.NormalizeSymbol(symbol)
	if to.IsZero() {
		to = q.now()
	}
	if from.IsZero() {
		from = to.Add(-24 * time.Hour)
	}
	return q.archive.Query(ctx, symbol, from, to, limit)
}

func (q *QueryService) Status(ctx context.Context) models.StatusResponse {
	resp := models.StatusResponse{
		RedisOK:       q.events.Ping(ctx) == nil,
		UptimeSeconds: int64(q.now().Sub(q.started) / time.Second),
		Watchlist:     q.config.Current().WatchlistSymbols,
	}
	if q.limiter != nil {
		n, err := q.limiter.RecentCount(ctx, time.Minute)
		if err != nil {
			q.log.Warn("recent event count unavailable", logger.Error(err))
		}
		resp.EventsLastMinute = n
	}
	if q.scheduler != nil {
		resp.Scheduler = q.scheduler.Status()
	}
	return resp
}
