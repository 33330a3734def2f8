package usecase

import (
	"context"
	"fmt"
	"time"

	"SignalDesk/internal/domain/models"
	domrepo "SignalDesk/internal/domain/repository"
	"SignalDesk/internal/domain/service"
	"SignalDesk/internal/services/aggregator"
	"SignalDesk/internal/services/rules"
	"SignalDesk/pkg/logger"
	pkgmetrics "SignalDesk/pkg/metrics"

	"github.com/google/uuid"
)

// Evaluation is the outcome of one rules pass for a symbol.
type Evaluation struct {
	Rules     models.LatestRules
	Written   bool
	Previous  models.Decision
	Changed   bool
	Aggregate []string
}

// Evaluator runs events → aggregator → market context → rules → snapshot.
type Evaluator struct {
	events    domrepo.EventStore
	snapshots domrepo.SnapshotStore
	market    service.MarketData
	publisher domrepo.DecisionPublisher
	archive   domrepo.DecisionArchive
	config    *ConfigHolder
	metrics   domrepo.Metrics
	log       *logger.Logger
	now       func() time.Time
	newID     func() string
}

type EvaluatorOption func(*Evaluator)

// WithMarketData attaches informational market context to every evaluation.
func WithMarketData(m service.MarketData) EvaluatorOption {
	return func(e *Evaluator) { e.market = m }
}

func WithDecisionPublisher(p domrepo.DecisionPublisher) EvaluatorOption {
	return func(e *Evaluator) { e.publisher = p }
}

func WithDecisionArchive(a domrepo.DecisionArchive) EvaluatorOption {
	return func(e *Evaluator) { e.archive = a }
}

func WithEvaluatorClock(now func() time.Time) EvaluatorOption {
	return func(e *Evaluator) { e.now = now }
}

func WithEvaluationIDs(next func() string) EvaluatorOption {
	return func(e *Evaluator) { e.newID = next }
}

func NewEvaluator(
	events domrepo.EventStore,
	snapshots domrepo.SnapshotStore,
	config *ConfigHolder,
	metrics domrepo.Metrics,
	log *logger.Logger,
	opts ...EvaluatorOption,
) *Evaluator {
	if log == nil {
		log = logger.Nop()
	}
	if metrics == nil {
		metrics = pkgmetrics.Nop{}
	}
	e := &Evaluator{
		events:    events,
		snapshots: snapshots,
		config:    config,
		metrics:   metrics,
		log:       log.With("evaluator"),
		now:       time.Now,
		newID:     uuid.NewString,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Evaluate scores symbol from its stored events and publishes the result if
// no newer snapshot exists. Market data failures only drop the context.
func (e *Evaluator) Evaluate(ctx context.Context, symbol string) (Evaluation, error) {
	cfg := e.config.Current()
	now := e.now()

	records, err := e.collect(ctx, symbol, now.Unix()-maxWindowSeconds(cfg))
	if err != nil {
		e.metrics.RecordStoreError("events_read")
		return Evaluation{}, fmt.Errorf("evaluate %s: %w", symbol, err)
	}
	agg := aggregator.Aggregate(symbol, records, cfg, now)

	var mc *models.MarketContext
	if e.market != nil {
		mc, err = e.market.GetContext(ctx, symbol)
		if err != nil {
			e.log.Warn("market context unavailable", logger.String("symbol", symbol), logger.Error(err))
			mc = nil
		}
	}

	res := rules.Evaluate(rules.Input{
		Symbol:       symbol,
		Signals:      agg.Signals,
		Config:       cfg,
		Market:       mc,
		Now:          now,
		EvaluationID: e.newID(),
	})
	latest := models.LatestRules{
		RulesResult: res,
		SignalsUsed: aggregator.UsedSignals(agg.Signals),
		Counts:      agg.Counts,
		Market:      mc,
	}

	prev, err := e.snapshots.Read(ctx, symbol)
	if err != nil {
		e.metrics.RecordStoreError("snapshot_read")
		return Evaluation{}, fmt.Errorf("evaluate %s: %w", symbol, err)
	}
	written, err := e.snapshots.WriteRules(ctx, symbol, latest)
	if err != nil {
		e.metrics.RecordStoreError("snapshot_write")
		return Evaluation{}, fmt.Errorf("evaluate %s: %w", symbol, err)
	}
	e.metrics.RecordEvaluation(string(res.Decision))

	ev := Evaluation{Rules: latest, Written: written, Aggregate: agg.Reasons}
	if prev.Rules != nil {
		ev.Previous = prev.Rules.Decision
	}
	ev.Changed = written && (prev.Rules == nil || prev.Rules.Decision != res.Decision)

	if !written {
		e.log.Debug("stale evaluation discarded", logger.String("symbol", symbol), logger.String("evaluation_id", res.EvaluationID))
		return ev, nil
	}
	e.log.Debug("evaluation published",
		logger.String("symbol", symbol),
		logger.String("decision", string(res.Decision)),
		logger.Float64("score", res.Score),
		logger.Strings("signals", agg.Reasons))

	if e.archive != nil {
		if err := e.archive.Store(ctx, latest); err != nil {
			e.log.Warn("archive store failed", logger.String("symbol", symbol), logger.Error(err))
		}
	}
	if ev.Changed && e.publisher != nil {
		change := models.DecisionChange{
			Symbol:       symbol,
			From:         ev.Previous,
			To:           res.Decision,
			Score:        res.Score,
			Confidence:   res.Confidence,
			EvaluationID: res.EvaluationID,
			At:           res.GeneratedAt,
		}
		if err := e.publisher.PublishChange(ctx, change); err != nil {
			e.log.Warn("decision change publish failed", logger.String("symbol", symbol), logger.Error(err))
		}
	}
	return ev, nil
}

func (e *Evaluator) collect(ctx context.Context, symbol string, since int64) ([]models.EventRecord, error) {
	var out []models.EventRecord
	for rec, err := range e.events.Read(ctx, symbol, since) {
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func maxWindowSeconds(cfg models.RuntimeConfig) int64 {
	var longest int
	for _, w := range cfg.TFWindows {
		if w > longest {
			longest = w
		}
	}
	return int64(longest)
}
