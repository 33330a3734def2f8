package repository

import (
	"context"
	"errors"
	"iter"
	"time"

	"SignalDesk/internal/domain/models"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrStoreUnavailable = errors.New("store unavailable")
)

// AppendOptions bound the per-symbol log on every append.
type AppendOptions struct {
	MaxLen       int
	TTL          time.Duration
	DedupHorizon time.Duration
}

// EventStore is the bounded, deduplicated, per-symbol event log.
type EventStore interface {
	// Append returns false without error when the event id was already seen
	// inside the dedup horizon.
	Append(ctx context.Context, rec models.EventRecord, opts AppendOptions) (bool, error)
	// Seen reports whether an unexpired dedup marker exists for the event id.
	// Append still decides atomically; Seen only lets callers answer early.
	Seen(ctx context.Context, symbol, eventID string) (bool, error)
	// Read yields records oldest first, skipping those with ts < since.
	Read(ctx context.Context, symbol string, since int64) iter.Seq2[models.EventRecord, error]
	// ReadNewest yields records newest first.
	ReadNewest(ctx context.Context, symbol string) iter.Seq2[models.EventRecord, error]
	Delete(ctx context.Context, symbol, eventID string) (int, error)
	Ping(ctx context.Context) error
}

// SnapshotStore keeps the two tiers of the latest decision per symbol.
type SnapshotStore interface {
	// WriteRules returns false when a snapshot generated at the same time or
	// later is already stored.
	WriteRules(ctx context.Context, symbol string, rules models.LatestRules) (bool, error)
	WriteAI(ctx context.Context, symbol string, ai models.LatestAI) error
	Read(ctx context.Context, symbol string) (models.Snapshot, error)
}

// Locker is a non-blocking, TTL-bounded mutual exclusion primitive.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (token string, ok bool, err error)
	Release(ctx context.Context, key, token string) (bool, error)
}

// RuntimeConfigStore persists the hot-swappable configuration.
type RuntimeConfigStore interface {
	Load(ctx context.Context) ([]byte, error)
	Save(ctx context.Context, data []byte) error
}

// RateLimiter counts webhook deliveries per symbol in fixed windows.
type RateLimiter interface {
	Allow(ctx context.Context, symbol string) (bool, error)
	// RecentCount sums the windows that started within d of now.
	RecentCount(ctx context.Context, d time.Duration) (int64, error)
}

// DecisionPublisher fans decision changes out to other systems.
type DecisionPublisher interface {
	PublishChange(ctx context.Context, ch models.DecisionChange) error
	Close() error
}

// DecisionArchive is the bounded audit trail of evaluations.
type DecisionArchive interface {
	Init(ctx context.Context) error
	Store(ctx context.Context, rules models.LatestRules) error
	Query(ctx context.Context, symbol string, from, to time.Time, limit int) ([]models.RulesResult, error)
	Health(ctx context.Context) error
	Close() error
}

// PriceStream is a live last-price feed.
type PriceStream interface {
	Connect(ctx context.Context) error
	Run(ctx context.Context) error
	LastPrice(symbol string) (float64, bool)
	Prices() map[string]float64
	IsConnected() bool
	Close() error
}

type Metrics interface {
	RecordAlert(status string)
	RecordRejection(code string)
	RecordEvaluation(decision string)
	RecordLock(outcome string)
	RecordExplanation(provider, outcome string)
	RecordStoreError(op string)
	RecordTick(tier string, seconds float64)
}
