package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type payload struct {
	Price float64 `json:"price"`
}

func TestMemoryCacheRoundTripAndExpiry(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	mc := NewMemoryCache(WithMemoryClock(func() time.Time { return now }))
	defer mc.Close()
	ctx := context.Background()

	require.NoError(t, mc.Set(ctx, "k", payload{Price: 10.5}, 10*time.Second))

	var got payload
	require.NoError(t, mc.Get(ctx, "k", &got))
	assert.Equal(t, 10.5, got.Price)

	now = now.Add(11 * time.Second)
	assert.ErrorIs(t, mc.Get(ctx, "k", &got), ErrCacheMiss)
	assert.Equal(t, 0, mc.Len())
}

func TestMemoryCacheEvictsLeastRecentlyUsed(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	mc := NewMemoryCache(WithMemoryMaxSize(2), WithMemoryClock(func() time.Time { return now }))
	defer mc.Close()
	ctx := context.Background()

	require.NoError(t, mc.Set(ctx, "a", "1", time.Minute))
	now = now.Add(time.Second)
	require.NoError(t, mc.Set(ctx, "b", "2", time.Minute))
	now = now.Add(time.Second)
	var s string
	require.NoError(t, mc.Get(ctx, "a", &s))
	now = now.Add(time.Second)
	require.NoError(t, mc.Set(ctx, "c", "3", time.Minute))

	assert.Equal(t, 2, mc.Len())
	assert.ErrorIs(t, mc.Get(ctx, "b", &s), ErrCacheMiss)
	require.NoError(t, mc.Get(ctx, "a", &s))
	assert.Equal(t, "1", s)
}

func TestRedisCacheUsesPrefix(t *testing.T) {
	db, mock := redismock.NewClientMock()
	rc := NewRedisCache(db, "sd")
	ctx := context.Background()

	mock.ExpectSet("sd:klines:ETHUSDT", []byte(`{"price":1}`), time.Second).SetVal("OK")
	require.NoError(t, rc.Set(ctx, "klines:ETHUSDT", payload{Price: 1}, time.Second))

	mock.ExpectGet("sd:klines:ETHUSDT").SetVal(`{"price":2}`)
	var got payload
	require.NoError(t, rc.Get(ctx, "klines:ETHUSDT", &got))
	assert.Equal(t, 2.0, got.Price)

	mock.ExpectGet("sd:missing").RedisNil()
	assert.ErrorIs(t, rc.Get(ctx, "missing", &got), ErrCacheMiss)

	mock.ExpectGet("sd:broken").SetErr(errors.New("conn reset"))
	assert.Error(t, rc.Get(ctx, "broken", &got))

	require.NoError(t, rc.Close())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLayeredCacheFillsL1FromRemote(t *testing.T) {
	remote := NewMemoryCache()
	lc := NewLayeredCache(remote, WithLayeredMemoryTTL(time.Second))
	defer lc.Close()
	ctx := context.Background()

	require.NoError(t, remote.Set(ctx, "k", payload{Price: 3}, time.Minute))

	var got payload
	require.NoError(t, lc.Get(ctx, "k", &got))
	assert.Equal(t, 3.0, got.Price)

	require.NoError(t, remote.Delete(ctx, "k"))
	got = payload{}
	require.NoError(t, lc.Get(ctx, "k", &got))
	assert.Equal(t, 3.0, got.Price)
}

func TestKey(t *testing.T) {
	assert.Equal(t, "klines:ETHUSDT:15m:200", Key("klines", "ETHUSDT", "15m", 200))
}
