package usecase

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"testing"
	"time"

	"SignalDesk/internal/domain/models"
	domrepo "SignalDesk/internal/domain/repository"
	"SignalDesk/internal/domain/service"
	"SignalDesk/internal/repository"

	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock { return &clock{now: t0} }

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func sequentialIDs() func() string {
	var n int
	return func() string {
		n++
		return fmt.Sprintf("eval-%d", n)
	}
}

func newHolder(t *testing.T) *ConfigHolder {
	t.Helper()
	h, err := NewConfigHolder(models.DefaultRuntimeConfig(), repository.NewMemoryConfigStore(), nil)
	require.NoError(t, err)
	return h
}

var appendOpts = domrepo.AppendOptions{MaxLen: 100, TTL: time.Hour, DedupHorizon: 10 * time.Minute}

func appendSignal(t *testing.T, store domrepo.EventStore, ts int64, tf models.Timeframe, sig models.Signal) {
	t.Helper()
	rec := models.EventRecord{NormalizedEvent: models.NormalizedEvent{
		EventID:   fmt.Sprintf("%s-%s-%d", tf, sig, ts),
		Symbol:    "ETHUSDT",
		Indicator: "AdaptiveTrendFlow",
		TF:        tf,
		Signal:    sig,
		Price:     2000,
		TS:        ts,
		Strength:  1,
	}, ReceivedAt: ts}
	ok, err := store.Append(context.Background(), rec, appendOpts)
	require.NoError(t, err)
	require.True(t, ok)
}

type fakeMarket struct {
	price float64
	err   error
	calls int
}

func (m *fakeMarket) GetContext(_ context.Context, symbol string) (*models.MarketContext, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return &models.MarketContext{
		Symbol:    symbol,
		LastPrice: m.price,
		Frames: map[models.Timeframe]models.MarketSummary{
			models.TF4h: {TF: models.TF4h, LastPrice: m.price, Slope: 12.5},
		},
	}, nil
}

func (m *fakeMarket) LastPrice(context.Context, string) (float64, error) {
	if m.err != nil {
		return 0, m.err
	}
	return m.price, nil
}

type recordingPublisher struct {
	mu      sync.Mutex
	changes []models.DecisionChange
}

func (p *recordingPublisher) PublishChange(_ context.Context, ch models.DecisionChange) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.changes = append(p.changes, ch)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

type stubExplainer struct {
	text  string
	err   error
	calls int
}

func (e *stubExplainer) Explain(_ context.Context, in service.ExplainInput) (string, error) {
	e.calls++
	if e.err != nil {
		return "", e.err
	}
	return e.text + "\n" + string(in.Rules.Decision), nil
}

func (e *stubExplainer) Provider() string { return "stub" }

type recordingJobs struct {
	mu   sync.Mutex
	msgs []any
	err  error
}

func (j *recordingJobs) Enqueue(_ context.Context, msgType string, payload interface{}) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.err != nil {
		return j.err
	}
	j.msgs = append(j.msgs, payload)
	return nil
}

type countingMetrics struct {
	mu          sync.Mutex
	alerts      map[string]int
	rejections  map[string]int
	locks       map[string]int
	storeErrors map[string]int
	ticks       map[string]int
}

func newCountingMetrics() *countingMetrics {
	return &countingMetrics{
		alerts:      map[string]int{},
		rejections:  map[string]int{},
		locks:       map[string]int{},
		storeErrors: map[string]int{},
		ticks:       map[string]int{},
	}
}

func (m *countingMetrics) RecordAlert(status string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.alerts[status]++
}

func (m *countingMetrics) RecordRejection(code string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rejections[code]++
}

func (m *countingMetrics) RecordEvaluation(string) {}

func (m *countingMetrics) RecordLock(outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.locks[outcome]++
}

func (m *countingMetrics) RecordExplanation(string, string) {}

func (m *countingMetrics) RecordStoreError(op string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.storeErrors[op]++
}

func (m *countingMetrics) RecordTick(tier string, _ float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ticks[tier]++
}

func (m *countingMetrics) get(counts map[string]int, key string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return counts[key]
}

var errBoom = errors.New("boom")

func formatInt(n int64) string { return strconv.FormatInt(n, 10) }
