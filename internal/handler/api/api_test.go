package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"SignalDesk/internal/domain/models"
	"SignalDesk/internal/repository"
	"SignalDesk/internal/usecase"
	xhttp "SignalDesk/pkg/http"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticStream struct {
	prices map[string]float64
}

func (s *staticStream) Connect(context.Context) error { return nil }

func (s *staticStream) Run(ctx context.Context) error {
	<-ctx.Done()
	return nil
}

func (s *staticStream) LastPrice(symbol string) (float64, bool) {
	p, ok := s.prices[symbol]
	return p, ok
}

func (s *staticStream) Prices() map[string]float64 { return s.prices }

func (s *staticStream) IsConnected() bool { return true }

func (s *staticStream) Close() error { return nil }

type fixture struct {
	server *xhttp.Server
	relay  *usecase.PriceRelay
	events *repository.MemoryEventStore
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	events := repository.NewMemoryEventStore(nil)
	snaps := repository.NewMemorySnapshotStore()
	holder, err := usecase.NewConfigHolder(models.DefaultRuntimeConfig(), repository.NewMemoryConfigStore(), nil)
	require.NoError(t, err)

	ev := usecase.NewEvaluator(events, snaps, holder, nil, nil)
	ingest := usecase.NewIngestor("s3cret", events, ev, holder, nil, nil)
	stream := &staticStream{prices: map[string]float64{"ETHUSDT": 2000.5}}
	query := usecase.NewQueryService(events, snaps, holder, nil, usecase.WithPriceSources(stream, nil))
	admin := usecase.NewAdminService(holder, events, nil)
	relay := usecase.NewPriceRelay(stream, nil, holder, nil, time.Hour)

	handlers := []xhttp.Handler{
		NewWebhookHandler(nil, ingest),
		NewQueryHandler(nil, query),
		NewAdminHandler(nil, admin, "adm1n"),
		NewPriceSocketHandler(nil, relay),
	}
	return &fixture{
		server: xhttp.NewServer(nil, handlers, xhttp.WithRegistry(prometheus.NewRegistry())),
		relay:  relay,
		events: events,
	}
}

func (f *fixture) do(method, target, body string, headers map[string]string) (int, xhttp.APIResponse) {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "text/plain")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	f.server.Echo().ServeHTTP(rec, req)
	var resp xhttp.APIResponse
	_ = json.Unmarshal(rec.Body.Bytes(), &resp)
	return rec.Code, resp
}

func alertBody(secret, tf, signal string) string {
	return `{"secret":"` + secret + `","indicator":"AdaptiveTrendFlow","symbol":"BINANCE:ETHUSDT.P","tf":"` + tf +
		`","signal":"` + signal + `","price":"2000.5","ts":"` + time.Now().UTC().Format("2006-01-02T15:04:05Z") + `"}`
}

func dataMap(t *testing.T, resp xhttp.APIResponse) map[string]interface{} {
	t.Helper()
	m, ok := resp.Data.(map[string]interface{})
	require.True(t, ok, "data is %T", resp.Data)
	return m
}

func TestWebhook(t *testing.T) {
	f := newFixture(t)

	code, resp := f.do(http.MethodPost, "/tv-webhook", `{"secret":`, nil)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "ERR_INVALID_JSON", dataMap(t, resp)["code"])

	code, _ = f.do(http.MethodPost, "/tv-webhook", alertBody("wrong", "1h", "BUY"), nil)
	assert.Equal(t, http.StatusUnauthorized, code)

	code, resp = f.do(http.MethodPost, "/tv-webhook", alertBody("s3cret", "2h", "BUY"), nil)
	assert.Equal(t, http.StatusBadRequest, code)
	data := dataMap(t, resp)
	assert.Equal(t, "ERR_TIMEFRAME", data["code"])
	assert.Equal(t, "tf", data["field"])
	assert.NotEmpty(t, data["message"])

	body := alertBody("s3cret", "60", "buy")
	code, resp = f.do(http.MethodPost, "/tv-webhook", body, nil)
	require.Equal(t, http.StatusOK, code)
	data = dataMap(t, resp)
	assert.Equal(t, "accepted", data["status"])
	assert.Equal(t, "ETHUSDT", data["symbol"])
	assert.Equal(t, "LONG_SETUP", data["decision"])

	code, resp = f.do(http.MethodPost, "/tv-webhook", body, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "duplicate", dataMap(t, resp)["status"])
}

func TestQueryEndpoints(t *testing.T) {
	f := newFixture(t)

	code, _ := f.do(http.MethodGet, "/latest?symbol=ETHUSDT", "", nil)
	assert.Equal(t, http.StatusNotFound, code)
	code, _ = f.do(http.MethodGet, "/latest", "", nil)
	assert.Equal(t, http.StatusBadRequest, code)

	_, _ = f.do(http.MethodPost, "/tv-webhook", alertBody("s3cret", "4h", "SELL"), nil)

	code, resp := f.do(http.MethodGet, "/latest?symbol=ETHUSDT", "", nil)
	require.Equal(t, http.StatusOK, code)
	rules := dataMap(t, resp)["rules"].(map[string]interface{})
	assert.Equal(t, "WATCH", rules["decision"])

	code, resp = f.do(http.MethodGet, "/events?symbol=ETHUSDT&tf=4h", "", nil)
	require.Equal(t, http.StatusOK, code)
	events := dataMap(t, resp)
	assert.Equal(t, float64(1), events["count"])
	raw, err := json.Marshal(events)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "s3cret")

	code, _ = f.do(http.MethodGet, "/events?symbol=ETHUSDT&limit=900", "", nil)
	assert.Equal(t, http.StatusBadRequest, code)
	code, _ = f.do(http.MethodGet, "/events?symbol=ETHUSDT&after=someday", "", nil)
	assert.Equal(t, http.StatusBadRequest, code)

	code, resp = f.do(http.MethodGet, "/price?symbol=ETHUSDT", "", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 2000.5, dataMap(t, resp)["last_price"])
	code, _ = f.do(http.MethodGet, "/price?symbol=DOGEUSDT", "", nil)
	assert.Equal(t, http.StatusNotFound, code)

	code, resp = f.do(http.MethodGet, "/status", "", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, dataMap(t, resp)["redis_ok"])

	code, resp = f.do(http.MethodGet, "/decisions?symbol=ETHUSDT", "", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, []interface{}{}, resp.Data)
}

func TestAdminEndpoints(t *testing.T) {
	f := newFixture(t)
	auth := map[string]string{"X-Admin-Token": "adm1n"}

	code, _ := f.do(http.MethodGet, "/admin/config", "", nil)
	assert.Equal(t, http.StatusUnauthorized, code)
	code, _ = f.do(http.MethodGet, "/admin/config", "", map[string]string{"X-Admin-Token": "nope"})
	assert.Equal(t, http.StatusUnauthorized, code)

	code, resp := f.do(http.MethodGet, "/admin/config", "", auth)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 0.35, dataMap(t, resp)["threshold"])

	code, resp = f.do(http.MethodPost, "/admin/config", `{"threshold":-2}`, auth)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "ERR_INVALID_CONFIG", dataMap(t, resp)["code"])

	code, resp = f.do(http.MethodPost, "/admin/config", `{"threshold":0.5}`, auth)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 0.5, dataMap(t, resp)["threshold"])

	_, _ = f.do(http.MethodPost, "/tv-webhook", alertBody("s3cret", "1h", "BUY"), nil)
	var id string
	for rec := range f.events.ReadNewest(context.Background(), "ETHUSDT") {
		id = rec.EventID
	}
	require.NotEmpty(t, id)

	code, resp = f.do(http.MethodDelete, "/admin/events/ETHUSDT?event_id="+id, "", auth)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(1), dataMap(t, resp)["removed"])

	code, _ = f.do(http.MethodDelete, "/admin/events/ETHUSDT", "", auth)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestPriceSocket(t *testing.T) {
	f := newFixture(t)
	srv := httptest.NewServer(f.server.Echo())
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws/prices", nil)
	require.NoError(t, err)
	defer conn.Close()

	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(20 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				f.relay.Publish()
			}
		}
	}()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg struct {
		Prices map[string]float64 `json:"prices"`
		TS     int64              `json:"ts"`
	}
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, 2000.5, msg.Prices["ETHUSDT"])
	assert.NotZero(t, msg.TS)
}
