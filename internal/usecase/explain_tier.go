package usecase

import (
	"context"
	"time"

	"SignalDesk/internal/domain/models"
	domrepo "SignalDesk/internal/domain/repository"
	"SignalDesk/internal/domain/service"
	"SignalDesk/internal/repository"
	"SignalDesk/internal/services/explainer"
	"SignalDesk/pkg/logger"
	pkgmetrics "SignalDesk/pkg/metrics"
)

// RefreshOutcome describes what one explanation refresh did.
type RefreshOutcome string

const (
	RefreshWritten   RefreshOutcome = "written"
	RefreshContended RefreshOutcome = "contended"
	RefreshLockError RefreshOutcome = "lock_error"
	RefreshNoRules   RefreshOutcome = "no_rules"
	RefreshCurrent   RefreshOutcome = "current"
	RefreshFailed    RefreshOutcome = "explain_failed"
)

const releaseTimeout = 2 * time.Second

// ExplainTier produces the slow-tier snapshot under a per-symbol single-flight lock.
type ExplainTier struct {
	locker    domrepo.Locker
	snapshots domrepo.SnapshotStore
	explainer service.Explainer
	metrics   domrepo.Metrics
	log       *logger.Logger
	lockTTL   time.Duration
	now       func() time.Time
}

func NewExplainTier(
	locker domrepo.Locker,
	snapshots domrepo.SnapshotStore,
	ex service.Explainer,
	metrics domrepo.Metrics,
	log *logger.Logger,
	lockTTL time.Duration,
) *ExplainTier {
	if lockTTL <= 0 {
		lockTTL = repository.DefaultLockTTL
	}
	if log == nil {
		log = logger.Nop()
	}
	if metrics == nil {
		metrics = pkgmetrics.Nop{}
	}
	return &ExplainTier{
		locker:    locker,
		snapshots: snapshots,
		explainer: ex,
		metrics:   metrics,
		log:       log.With("explain"),
		lockTTL:   lockTTL,
		now:       time.Now,
	}
}

// Refresh explains the current rules snapshot of symbol. Lock contention and
// lock errors skip the symbol; the lock is always released with a fresh
// context so shutdown does not strand it until the TTL.
func (t *ExplainTier) Refresh(ctx context.Context, symbol string) (RefreshOutcome, error) {
	log := t.log.WithFields(logger.String("symbol", symbol))
	key := repository.AILockKey(symbol)
	token, ok, err := t.locker.Acquire(ctx, key, t.lockTTL)
	if err != nil {
		t.metrics.RecordLock("error")
		log.Warn("explain lock unavailable", logger.Error(err))
		return RefreshLockError, nil
	}
	if !ok {
		t.metrics.RecordLock("contended")
		return RefreshContended, nil
	}
	t.metrics.RecordLock("acquired")
	defer t.release(log, key, token)

	snap, err := t.snapshots.Read(ctx, symbol)
	if err != nil {
		t.metrics.RecordStoreError("snapshot_read")
		return "", err
	}
	if snap.Rules == nil {
		return RefreshNoRules, nil
	}
	if snap.AI != nil && snap.AI.EvaluationID == snap.Rules.EvaluationID {
		return RefreshCurrent, nil
	}

	provider := t.explainer.Provider()
	text, err := t.explainer.Explain(ctx, service.ExplainInput{
		Symbol: symbol,
		Rules:  *snap.Rules,
		Market: snap.Rules.Market,
	})
	if err != nil {
		t.metrics.RecordExplanation(provider, "error")
		log.Warn("explanation failed", logger.String("provider", provider), logger.Error(err))
		return RefreshFailed, nil
	}

	ai := models.LatestAI{
		EvaluationID: snap.Rules.EvaluationID,
		Lines:        explainer.Lines(text),
		GeneratedAt:  t.now().UnixMilli(),
		Provider:     provider,
	}
	if err := t.snapshots.WriteAI(ctx, symbol, ai); err != nil {
		t.metrics.RecordStoreError("snapshot_write_ai")
		return "", err
	}
	t.metrics.RecordExplanation(provider, "ok")
	return RefreshWritten, nil
}

func (t *ExplainTier) release(log *logger.Logger, key, token string) {
	ctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
	defer cancel()
	if _, err := t.locker.Release(ctx, key, token); err != nil {
		log.Warn("explain lock release failed", logger.Error(err))
	}
}
