package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"SignalDesk/internal/domain/models"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExplainJobHandle(t *testing.T) {
	ref := &fakeRefresher{}
	job := NewExplainJob(ref)
	assert.Equal(t, ExplainJobType, job.Type())

	payload, err := json.Marshal(ExplainPayload{Symbol: "ETHUSDT"})
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), payload))
	assert.Equal(t, []string{"ETHUSDT"}, ref.seen())

	assert.ErrorIs(t, job.Handle(context.Background(), json.RawMessage(`{}`)), ErrUnknownSymbol)
	assert.Error(t, job.Handle(context.Background(), json.RawMessage(`[`)))
}

type stubIngester struct {
	got []models.RawAlert
	err error
}

func (s *stubIngester) Ingest(_ context.Context, raw models.RawAlert) (models.WebhookResponse, error) {
	s.got = append(s.got, raw)
	return models.WebhookResponse{Status: models.WebhookAccepted}, s.err
}

func TestKafkaAlertsHandler(t *testing.T) {
	ing := &stubIngester{}
	h := NewKafkaAlertsHandler("tv.alerts", ing)
	assert.Equal(t, "tv.alerts", h.Topic())
	ctx := context.Background()

	require.NoError(t, h.Handle(ctx, []byte(`{"indicator":"X","symbol":"ETHUSDT","tf":"1h","signal":"BUY","price":"2000"}`)))
	require.Len(t, ing.got, 1)
	assert.Equal(t, "1h", ing.got[0].TF.String())

	var perm *backoff.PermanentError
	err := h.Handle(ctx, []byte(`not json`))
	assert.True(t, errors.As(err, &perm), "undecodable payloads are permanent")

	ing.err = errBoom
	err = h.Handle(ctx, []byte(`{"symbol":"ETHUSDT"}`))
	assert.ErrorIs(t, err, errBoom)
	assert.False(t, errors.As(err, &perm), "store failures are retried")
}

func TestKafkaAlertsHandlerRejectionsArePermanent(t *testing.T) {
	f := newIngestFixture(t)
	h := NewKafkaAlertsHandler("tv.alerts", f.ingestor)

	err := h.Handle(context.Background(), []byte(`{"indicator":"X","symbol":"ETHUSDT","tf":"2h","signal":"BUY"}`))
	var perm *backoff.PermanentError
	assert.True(t, errors.As(err, &perm))
}

type gaugeRecorder struct {
	prices map[string]float64
}

func (g *gaugeRecorder) RecordLastPrice(symbol string, price float64) {
	g.prices[symbol] = price
}

func TestPriceRelayPublish(t *testing.T) {
	stream := &fakeStream{prices: map[string]float64{"ETHUSDT": 2000, "DOGEUSDT": 0.1}, connected: true}
	gauge := &gaugeRecorder{prices: map[string]float64{}}
	relay := NewPriceRelay(stream, gauge, newHolder(t), nil, 0)
	assert.True(t, relay.IsConnected())

	ch, unsubscribe := relay.Subscribe()
	relay.Publish()
	relay.Publish()

	got := <-ch
	assert.Equal(t, 2000.0, got["ETHUSDT"])
	assert.Len(t, got, 2)
	assert.Equal(t, map[string]float64{"ETHUSDT": 2000}, gauge.prices, "only watchlist symbols are exported")

	unsubscribe()
	unsubscribe()
	_, open := <-ch
	assert.False(t, open)
	relay.Publish()
}

func TestPriceRelayStartAndShutdown(t *testing.T) {
	stream := &fakeStream{prices: map[string]float64{"ETHUSDT": 2000}}
	relay := NewPriceRelay(stream, nil, nil, nil, 10*time.Millisecond)
	ch, unsubscribe := relay.Subscribe()
	defer unsubscribe()

	relay.Start(context.Background())
	select {
	case got := <-ch:
		assert.Equal(t, 2000.0, got["ETHUSDT"])
	case <-time.After(2 * time.Second):
		t.Fatal("no price broadcast")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, relay.Shutdown(ctx))
}
