package market

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"SignalDesk/internal/domain/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func candle(open, close string) Candle {
	return Candle{Open: decimal.RequireFromString(open), Close: decimal.RequireFromString(close)}
}

func TestSummarizeUsesLastTwentyCandles(t *testing.T) {
	var candles []Candle
	for i := 0; i < 5; i++ {
		candles = append(candles, candle("1", "0.5"))
	}
	// 20 candles: 15 green, 5 red, closes rising from 100 to 119
	for i := 0; i < 20; i++ {
		open, close := fmt.Sprint(99+i), fmt.Sprint(100+i)
		if i%4 == 0 {
			open = fmt.Sprint(101 + i)
		}
		candles = append(candles, candle(open, close))
	}

	s := Summarize(models.TF1h, candles)
	assert.Equal(t, models.TF1h, s.TF)
	assert.Equal(t, 119.0, s.LastPrice)
	assert.Equal(t, 15, s.GreenCandles)
	assert.Equal(t, 5, s.RedCandles)
	assert.Equal(t, 19.0, s.Slope)
}

func TestSummarizeFlatCandleIsGreen(t *testing.T) {
	s := Summarize(models.TF15m, []Candle{candle("2", "2")})
	assert.Equal(t, 1, s.GreenCandles)
	assert.Equal(t, 0.0, s.Slope)
	assert.Equal(t, models.MarketSummary{TF: models.TF4h}, Summarize(models.TF4h, nil))
}

func klineServer(t *testing.T, hits *atomic.Int32, failTF string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		q := r.URL.Query()
		if q.Get("interval") == failTF {
			http.Error(w, `{"code":-1121,"msg":"Invalid symbol."}`, http.StatusBadRequest)
			return
		}
		assert.Equal(t, "/fapi/v1/klines", r.URL.Path)
		assert.Equal(t, "ETHUSDT", q.Get("symbol"))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `[[1700000000000,"2000.0","2010","1990","2005.5","10",1700000899999],`+
			`[1700000900000,"2005.5","2020","2000","2001.25","12",1700001799999]]`)
	}))
}

func TestClientGetContext(t *testing.T) {
	var hits atomic.Int32
	srv := klineServer(t, &hits, "")
	defer srv.Close()

	now := time.UnixMilli(1700002000000)
	c := NewClient(nil, WithBaseURL(srv.URL), WithClock(func() time.Time { return now }))
	defer c.Close()

	mc, err := c.GetContext(context.Background(), "ethusdt")
	require.NoError(t, err)
	assert.Equal(t, "ETHUSDT", mc.Symbol)
	assert.Equal(t, 2001.25, mc.LastPrice)
	assert.Equal(t, int64(1700002000000), mc.FetchedAt)
	require.Len(t, mc.Frames, 3)
	assert.Equal(t, -4.25, mc.Frames[models.TF4h].Slope)
	assert.Equal(t, 1, mc.Frames[models.TF4h].RedCandles)

	_, err = c.GetContext(context.Background(), "ETHUSDT")
	require.NoError(t, err)
	assert.Equal(t, int32(3), hits.Load(), "second call is served from cache")
}

func TestClientGetContextPartialFailure(t *testing.T) {
	var hits atomic.Int32
	srv := klineServer(t, &hits, "1h")
	defer srv.Close()
	c := NewClient(nil, WithBaseURL(srv.URL))
	defer c.Close()

	mc, err := c.GetContext(context.Background(), "ETHUSDT")
	require.NoError(t, err)
	assert.Equal(t, models.MarketSummary{TF: models.TF1h}, mc.Frames[models.TF1h])
	assert.Equal(t, 2001.25, mc.Frames[models.TF15m].LastPrice)
}

func TestClientLastPrice(t *testing.T) {
	var hits atomic.Int32
	srv := klineServer(t, &hits, "")
	defer srv.Close()
	c := NewClient(nil, WithBaseURL(srv.URL))
	defer c.Close()

	p, err := c.LastPrice(context.Background(), "ETHUSDT")
	require.NoError(t, err)
	assert.Equal(t, 2001.25, p)
}

func TestClientAllFramesFail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer srv.Close()
	c := NewClient(nil, WithBaseURL(srv.URL))
	defer c.Close()

	_, err := c.GetContext(context.Background(), "ETHUSDT")
	assert.ErrorIs(t, err, ErrNoData)

	_, err = c.LastPrice(context.Background(), "ETHUSDT")
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "502"))
}
