package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultRuntimeConfig(t *testing.T) {
	cfg := DefaultRuntimeConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, []string{"ETHUSDT", "BTCUSDT"}, cfg.WatchlistSymbols)
	assert.Equal(t, 0.35, cfg.Threshold)
	assert.Equal(t, 300*time.Second, cfg.Window(TF15m))
	assert.Equal(t, 1800*time.Second, cfg.Window(TF4h))
	assert.Equal(t, 0.30, cfg.TFWeight(TF4h))
	assert.Equal(t, 1.0, cfg.IndicatorWeight("Unknown"))
	assert.Equal(t, StrengthUnit, cfg.StrengthMode)
	assert.Equal(t, TF4h, cfg.VetoTimeframe)
}

func TestDecodeRuntimeConfig(t *testing.T) {
	t.Run("overlay keeps unspecified defaults", func(t *testing.T) {
		cfg, err := DecodeRuntimeConfig([]byte(`{"threshold":0.5,"watchlist_symbols":["SOLUSDT"]}`))
		require.NoError(t, err)
		assert.Equal(t, 0.5, cfg.Threshold)
		assert.Equal(t, []string{"SOLUSDT"}, cfg.WatchlistSymbols)
		assert.Equal(t, 30, cfg.RefreshRulesSeconds)
	})

	t.Run("explicit zero threshold is rejected", func(t *testing.T) {
		_, err := DecodeRuntimeConfig([]byte(`{"threshold":0}`))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "Threshold")
	})

	t.Run("negative threshold is rejected", func(t *testing.T) {
		_, err := DecodeRuntimeConfig([]byte(`{"threshold":-1}`))
		require.Error(t, err)
	})

	t.Run("maps replace defaults", func(t *testing.T) {
		cfg, err := DecodeRuntimeConfig([]byte(`{"tf_weights":{"4h":1}}`))
		require.NoError(t, err)
		assert.Len(t, cfg.TFWeights, 1)
		assert.Equal(t, 0.0, cfg.TFWeight(TF1h))
	})

	t.Run("unknown timeframe key is rejected", func(t *testing.T) {
		_, err := DecodeRuntimeConfig([]byte(`{"tf_windows":{"5m":180}}`))
		require.Error(t, err)
	})

	t.Run("bad strength mode", func(t *testing.T) {
		_, err := DecodeRuntimeConfig([]byte(`{"strength_mode":"loud"}`))
		require.Error(t, err)
	})

	t.Run("malformed json", func(t *testing.T) {
		_, err := DecodeRuntimeConfig([]byte(`{`))
		require.Error(t, err)
	})
}

func TestRuntimeConfigIntervalsAreClamped(t *testing.T) {
	cfg := DefaultRuntimeConfig()
	cfg.RefreshRulesSeconds = 1
	assert.Equal(t, MinRefreshInterval, cfg.RulesInterval())
	cfg.RefreshAISeconds = 60
	assert.Equal(t, time.Minute, cfg.AIInterval())
}

func TestRuntimeConfigClone(t *testing.T) {
	cfg := DefaultRuntimeConfig()
	cp := cfg.Clone()
	cp.TFWeights[TF4h] = 9
	cp.WatchlistSymbols[0] = "X"
	assert.Equal(t, 0.30, cfg.TFWeights[TF4h])
	assert.Equal(t, "ETHUSDT", cfg.WatchlistSymbols[0])
}

func TestParseTimeframe(t *testing.T) {
	cases := map[string]Timeframe{
		"15": TF15m, "15m": TF15m, " 60 ": TF1h, "1H": TF1h, "1h": TF1h, "240": TF4h, "4H": TF4h,
	}
	for in, want := range cases {
		got, ok := ParseTimeframe(in)
		require.True(t, ok, in)
		assert.Equal(t, want, got, in)
	}
	for _, in := range []string{"", "5", "5m", "1d", "D", "15M"} {
		_, ok := ParseTimeframe(in)
		assert.False(t, ok, in)
	}
}

func TestFlexValueAcceptsNumbersAndStrings(t *testing.T) {
	var a RawAlert
	require.NoError(t, json.Unmarshal([]byte(`{"symbol":"X","price":"101.5","ts":1700000000,"strength":null,"tf":15}`), &a))

	assert.True(t, a.Price.Set)
	assert.True(t, a.Price.Quoted)
	assert.Equal(t, "101.5", a.Price.String())
	assert.Equal(t, "1700000000", a.TS.String())
	assert.False(t, a.TS.Quoted)
	assert.False(t, a.Strength.Set)
	assert.Equal(t, "15", a.TF.String())
}

func TestEventRecordSanitized(t *testing.T) {
	raw := RawAlert{Secret: "s3cret", Symbol: "BTCUSDT"}
	rec := EventRecord{NormalizedEvent: NormalizedEvent{Raw: &raw}}

	out := rec.Sanitized()
	assert.Empty(t, out.Raw.Secret)
	assert.Equal(t, "s3cret", raw.Secret)
}

func TestSignalDirection(t *testing.T) {
	assert.Equal(t, 1.0, SignalBuy.Direction())
	assert.Equal(t, -1.0, SignalSell.Direction())
	assert.Equal(t, 0.0, Signal("HOLD").Direction())
}
