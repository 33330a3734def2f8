package usecase

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"SignalDesk/internal/domain/models"
	domrepo "SignalDesk/internal/domain/repository"
	"SignalDesk/internal/domain/service"
	"SignalDesk/internal/services/normalizer"
	"SignalDesk/pkg/logger"
	pkgmetrics "SignalDesk/pkg/metrics"
	"SignalDesk/pkg/queue"
)

// Ingestor accepts alerts from any ingress: rate limit, normalize, append,
// evaluate, then hand the explanation off to the job queue.
type Ingestor struct {
	secret    string
	events    domrepo.EventStore
	limiter   domrepo.RateLimiter
	evaluator RulesRunner
	jobs      queue.Publisher
	market    service.MarketData
	config    *ConfigHolder
	metrics   domrepo.Metrics
	log       *logger.Logger
	now       func() time.Time
}

type IngestorOption func(*Ingestor)

// WithFallbackPrices looks up the last price of alerts that carry none.
func WithFallbackPrices(m service.MarketData) IngestorOption {
	return func(i *Ingestor) { i.market = m }
}

func WithRateLimiter(l domrepo.RateLimiter) IngestorOption {
	return func(i *Ingestor) { i.limiter = l }
}

func WithExplainJobs(p queue.Publisher) IngestorOption {
	return func(i *Ingestor) { i.jobs = p }
}

func WithIngestClock(now func() time.Time) IngestorOption {
	return func(i *Ingestor) { i.now = now }
}

func NewIngestor(
	secret string,
	events domrepo.EventStore,
	evaluator RulesRunner,
	config *ConfigHolder,
	metrics domrepo.Metrics,
	log *logger.Logger,
	opts ...IngestorOption,
) *Ingestor {
	if log == nil {
		log = logger.Nop()
	}
	if metrics == nil {
		metrics = pkgmetrics.Nop{}
	}
	i := &Ingestor{
		secret:    secret,
		events:    events,
		evaluator: evaluator,
		config:    config,
		metrics:   metrics,
		log:       log.With("ingest"),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Authorize compares the shared secret in constant time.
func (i *Ingestor) Authorize(secret string) bool {
	return subtle.ConstantTimeCompare([]byte(secret), []byte(i.secret)) == 1
}

// Ingest processes one trusted alert. A *normalizer.NormalizeError is
// returned for payloads that fail validation.
func (i *Ingestor) Ingest(ctx context.Context, raw models.RawAlert) (models.WebhookResponse, error) {
	symbol := normalizer.NormalizeSymbol(raw.Symbol)
	opts := []normalizer.Option{normalizer.WithClock(i.now)}
	if !raw.Price.Set && symbol != "" && i.market != nil {
		if p, err := i.market.LastPrice(ctx, symbol); err == nil {
			opts = append(opts, normalizer.WithFallbackPrice(p))
		} else {
			i.log.Debug("fallback price unavailable", logger.String("symbol", symbol), logger.Error(err))
		}
	}

	ev, err := normalizer.Normalize(raw, opts...)
	if err != nil {
		var nerr *normalizer.NormalizeError
		if errors.As(err, &nerr) {
			i.metrics.RecordRejection(nerr.Code)
			i.metrics.RecordAlert("rejected")
		}
		return models.WebhookResponse{}, err
	}

	// Retries of a stored alert and rejected payloads never use the rate budget.
	if seen, err := i.events.Seen(ctx, ev.Symbol, ev.EventID); err != nil {
		i.log.Warn("dedup pre-check failed", logger.String("symbol", ev.Symbol), logger.Error(err))
	} else if seen {
		return i.duplicate(ev), nil
	}
	if limited := i.rateLimited(ctx, ev.Symbol); limited {
		i.metrics.RecordAlert(string(models.WebhookRateLimited))
		return models.WebhookResponse{Status: models.WebhookRateLimited, Symbol: ev.Symbol}, nil
	}

	cfg := i.config.Current()
	rec := models.EventRecord{NormalizedEvent: ev, ReceivedAt: i.now().Unix()}
	appended, err := i.events.Append(ctx, rec, domrepo.AppendOptions{
		MaxLen:       cfg.EventsMaxPerSymbol,
		TTL:          time.Duration(cfg.EventsTTLSeconds) * time.Second,
		DedupHorizon: time.Duration(cfg.DedupHorizonSeconds) * time.Second,
	})
	if err != nil {
		i.metrics.RecordStoreError("events_append")
		return models.WebhookResponse{}, fmt.Errorf("ingest %s: %w", ev.Symbol, err)
	}
	if !appended {
		return i.duplicate(ev), nil
	}
	i.metrics.RecordAlert(string(models.WebhookAccepted))
	i.log.Info("alert accepted",
		logger.String("symbol", ev.Symbol),
		logger.String("indicator", ev.Indicator),
		logger.String("tf", string(ev.TF)),
		logger.String("signal", string(ev.Signal)),
		logger.String("event_id", ev.EventID))

	resp := models.WebhookResponse{Status: models.WebhookAccepted, EventID: ev.EventID, Symbol: ev.Symbol}
	evaluation, err := i.evaluator.Evaluate(ctx, ev.Symbol)
	if err != nil {
		i.log.Warn("synchronous evaluation failed", logger.String("symbol", ev.Symbol), logger.Error(err))
		return resp, nil
	}
	res := evaluation.Rules.RulesResult
	resp.Decision = res.Decision
	resp.Bias = res.Bias
	resp.Confidence = res.Confidence
	resp.Score = res.Score

	if i.jobs != nil {
		if err := i.jobs.Enqueue(ctx, ExplainJobType, ExplainPayload{Symbol: ev.Symbol}); err != nil {
			i.log.Warn("explain job enqueue failed", logger.String("symbol", ev.Symbol), logger.Error(err))
		}
	}
	return resp, nil
}

func (i *Ingestor) duplicate(ev models.NormalizedEvent) models.WebhookResponse {
	i.metrics.RecordAlert(string(models.WebhookDuplicate))
	return models.WebhookResponse{Status: models.WebhookDuplicate, EventID: ev.EventID, Symbol: ev.Symbol}
}

// rateLimited charges one alert to the symbol's window. Limiter errors admit
// the alert.
func (i *Ingestor) rateLimited(ctx context.Context, symbol string) bool {
	if i.limiter == nil {
		return false
	}
	ok, err := i.limiter.Allow(ctx, symbol)
	if err != nil {
		i.metrics.RecordStoreError("rate_limit")
		i.log.Warn("rate limiter unavailable, admitting alert", logger.String("symbol", symbol), logger.Error(err))
		return false
	}
	return !ok
}
