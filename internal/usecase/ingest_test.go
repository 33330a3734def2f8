package usecase

import (
	"context"
	"testing"

	"SignalDesk/internal/domain/models"
	"SignalDesk/internal/repository"
	"SignalDesk/internal/services/normalizer"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type ingestFixture struct {
	ingestor *Ingestor
	events   *repository.MemoryEventStore
	snaps    *repository.MemorySnapshotStore
	jobs     *recordingJobs
	metrics  *countingMetrics
	clk      *clock
}

func newIngestFixture(t *testing.T, opts ...IngestorOption) *ingestFixture {
	t.Helper()
	clk := newClock()
	events := repository.NewMemoryEventStore(clk.Now)
	snaps := repository.NewMemorySnapshotStore()
	holder := newHolder(t)
	metrics := newCountingMetrics()
	jobs := &recordingJobs{}
	ev := NewEvaluator(events, snaps, holder, metrics, nil, WithEvaluatorClock(clk.Now), WithEvaluationIDs(sequentialIDs()))
	opts = append([]IngestorOption{
		WithIngestClock(clk.Now),
		WithExplainJobs(jobs),
		WithRateLimiter(repository.NewMemoryRateLimiter(repository.RateLimitConfig{Max: 2, Now: clk.Now})),
	}, opts...)
	return &ingestFixture{
		ingestor: NewIngestor("s3cret", events, ev, holder, metrics, nil, opts...),
		events:   events,
		snaps:    snaps,
		jobs:     jobs,
		metrics:  metrics,
		clk:      clk,
	}
}

func rawAlert(tf, signal string, ts int64) models.RawAlert {
	return models.RawAlert{
		Secret:    "s3cret",
		Indicator: "AdaptiveTrendFlow",
		Symbol:    "BINANCE:ETHUSDT.P",
		TF:        models.FlexText(tf),
		Signal:    signal,
		Price:     models.FlexNumber(2000.5),
		TS:        models.FlexInt(ts),
	}
}

func TestIngestAcceptsAndEvaluates(t *testing.T) {
	f := newIngestFixture(t)
	ctx := context.Background()

	resp, err := f.ingestor.Ingest(ctx, rawAlert("1h", "buy", f.clk.Now().Unix()))
	require.NoError(t, err)
	assert.Equal(t, models.WebhookAccepted, resp.Status)
	assert.Equal(t, "ETHUSDT", resp.Symbol)
	assert.NotEmpty(t, resp.EventID)
	assert.Equal(t, models.DecisionLongSetup, resp.Decision)
	assert.Equal(t, models.BiasLong, resp.Bias)
	assert.InDelta(t, 0.35, resp.Score, 1e-9)

	snap, err := f.snaps.Read(ctx, "ETHUSDT")
	require.NoError(t, err)
	require.NotNil(t, snap.Rules)

	require.Len(t, f.jobs.msgs, 1)
	assert.Equal(t, ExplainPayload{Symbol: "ETHUSDT"}, f.jobs.msgs[0])
	assert.Equal(t, 1, f.metrics.get(f.metrics.alerts, "accepted"))

	for rec, err := range f.events.ReadNewest(ctx, "ETHUSDT") {
		require.NoError(t, err)
		require.NotNil(t, rec.Raw)
		assert.Empty(t, rec.Raw.Secret, "stored payload never keeps the secret")
	}
}

func TestIngestDuplicateAndRateLimit(t *testing.T) {
	f := newIngestFixture(t)
	ctx := context.Background()
	alert := rawAlert("15m", "SELL", f.clk.Now().Unix())

	_, err := f.ingestor.Ingest(ctx, alert)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		resp, err := f.ingestor.Ingest(ctx, alert)
		require.NoError(t, err)
		assert.Equal(t, models.WebhookDuplicate, resp.Status, "retries stay duplicates and do not use the budget")
	}
	assert.Len(t, f.jobs.msgs, 1, "duplicates are not re-evaluated")

	resp, err := f.ingestor.Ingest(ctx, rawAlert("15m", "BUY", f.clk.Now().Unix()+1))
	require.NoError(t, err)
	assert.Equal(t, models.WebhookAccepted, resp.Status)

	resp, err = f.ingestor.Ingest(ctx, rawAlert("15m", "BUY", f.clk.Now().Unix()+2))
	require.NoError(t, err)
	assert.Equal(t, models.WebhookRateLimited, resp.Status)
	assert.Equal(t, "ETHUSDT", resp.Symbol)
	assert.Equal(t, 1, f.metrics.get(f.metrics.alerts, "rate_limited"))
	assert.Equal(t, 3, f.metrics.get(f.metrics.alerts, "duplicate"))
}

func TestIngestRejectedAlertsDoNotUseRateBudget(t *testing.T) {
	f := newIngestFixture(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := f.ingestor.Ingest(ctx, rawAlert("7m", "BUY", f.clk.Now().Unix()))
		require.Error(t, err)
	}
	resp, err := f.ingestor.Ingest(ctx, rawAlert("1h", "BUY", f.clk.Now().Unix()))
	require.NoError(t, err)
	assert.Equal(t, models.WebhookAccepted, resp.Status)
}

func TestIngestRejectsInvalidAlert(t *testing.T) {
	f := newIngestFixture(t)

	_, err := f.ingestor.Ingest(context.Background(), rawAlert("7m", "BUY", 0))
	var nerr *normalizer.NormalizeError
	require.ErrorAs(t, err, &nerr)
	assert.Equal(t, normalizer.ErrCodeTimeframe, nerr.Code)
	assert.Equal(t, "tf", nerr.Field)
	assert.Equal(t, 1, f.metrics.get(f.metrics.rejections, normalizer.ErrCodeTimeframe))
	assert.Empty(t, f.jobs.msgs)
}

func TestIngestUsesFallbackPrice(t *testing.T) {
	f := newIngestFixture(t, WithFallbackPrices(&fakeMarket{price: 1999.25}))
	ctx := context.Background()
	alert := rawAlert("4h", "BUY", f.clk.Now().Unix())
	alert.Price = models.FlexValue{}

	_, err := f.ingestor.Ingest(ctx, alert)
	require.NoError(t, err)

	for rec, err := range f.events.ReadNewest(ctx, "ETHUSDT") {
		require.NoError(t, err)
		assert.Equal(t, 1999.25, rec.Price)
	}
}

func TestIngestSurvivesEnqueueFailure(t *testing.T) {
	f := newIngestFixture(t)
	f.jobs.err = errBoom

	resp, err := f.ingestor.Ingest(context.Background(), rawAlert("1h", "SELL", f.clk.Now().Unix()))
	require.NoError(t, err)
	assert.Equal(t, models.WebhookAccepted, resp.Status)
	assert.Equal(t, models.DecisionShortSetup, resp.Decision)
}

func TestIngestorAuthorize(t *testing.T) {
	f := newIngestFixture(t)
	assert.True(t, f.ingestor.Authorize("s3cret"))
	assert.False(t, f.ingestor.Authorize("s3cre"))
	assert.False(t, f.ingestor.Authorize(""))
}
