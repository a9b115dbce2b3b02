package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SignalScanner/internal/model"
)

func sampleSeries(symbol string) *model.Series {
	return &model.Series{
		Symbol: symbol,
		Window: model.Window1Mo,
		Source: "mock",
		Bars: []model.OHLCV{
			{Time: time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC), Open: 1, High: 2, Low: 0.5, Close: 1.5, Volume: 100},
			{Time: time.Date(2025, 1, 3, 0, 0, 0, 0, time.UTC), Open: 1.5, High: 2.5, Low: 1, Close: 2, Volume: 120},
		},
	}
}

func newRedis(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	c := NewRedisCache(RedisOptions{Addr: mr.Addr(), Prefix: "test:", RecentMax: 3, MaxFailures: 2, ResetTimeout: time.Hour})
	t.Cleanup(func() { _ = c.Close() })
	return c, mr
}

func TestRedisOptions_ApplyURL(t *testing.T) {
	mr := miniredis.RunT(t)
	mr.RequireAuth("s3cret")

	var opts RedisOptions
	require.NoError(t, opts.ApplyURL("redis://:s3cret@"+mr.Addr()+"/2"))
	assert.Equal(t, mr.Addr(), opts.Addr)
	assert.Equal(t, 2, opts.DB)

	c := NewRedisCache(opts)
	t.Cleanup(func() { _ = c.Close() })
	ctx := context.Background()
	require.NoError(t, c.Ping(ctx))
	ok, err := c.ClaimCooldown(ctx, "AAPL", time.Hour)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, mr.DB(2).Exists("cooldown:AAPL"), "claim lands in the database from the URL")

	var bare RedisOptions
	require.NoError(t, bare.ApplyURL("cache:6379"))
	assert.Equal(t, "cache:6379", bare.Addr)

	assert.Error(t, bare.ApplyURL("redis://cache:6379/db"))
}

func TestSeriesKey(t *testing.T) {
	ny := time.FixedZone("EST", -5*3600)
	// 21:00 in New York is already the next day in UTC
	at := time.Date(2025, 1, 2, 21, 0, 0, 0, ny)
	assert.Equal(t, "series:AAPL:3mo:2025-01-03", SeriesKey("AAPL", model.Window3Mo, at))
}

func TestRedisCache_Series(t *testing.T) {
	c, mr := newRedis(t)
	ctx := context.Background()

	_, ok, err := c.GetSeries(ctx, "k1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.SetSeries(ctx, "k1", sampleSeries("AAPL"), time.Minute))
	assert.True(t, mr.Exists("test:k1"))

	got, ok, err := c.GetSeries(ctx, "k1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "AAPL", got.Symbol)
	assert.Equal(t, 2.0, got.Last().Close)
	assert.True(t, got.Bars[0].Time.Equal(sampleSeries("AAPL").Bars[0].Time))

	mr.FastForward(2 * time.Minute)
	_, ok, err = c.GetSeries(ctx, "k1")
	require.NoError(t, err)
	assert.False(t, ok, "entry past TTL is a miss")
}

func TestRedisCache_CorruptEntryIsMiss(t *testing.T) {
	c, mr := newRedis(t)
	require.NoError(t, mr.Set("test:bad", "{not json"))
	_, ok, err := c.GetSeries(context.Background(), "bad")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.False(t, mr.Exists("test:bad"))
}

func TestRedisCache_Cooldown(t *testing.T) {
	c, mr := newRedis(t)
	ctx := context.Background()

	ok, err := c.ClaimCooldown(ctx, "AAPL", time.Hour)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.ClaimCooldown(ctx, "AAPL", time.Hour)
	require.NoError(t, err)
	assert.False(t, ok, "second claim inside the window must fail")

	ok, err = c.ClaimCooldown(ctx, "MSFT", time.Hour)
	require.NoError(t, err)
	assert.True(t, ok)

	mr.FastForward(61 * time.Minute)
	ok, err = c.ClaimCooldown(ctx, "AAPL", time.Hour)
	require.NoError(t, err)
	assert.True(t, ok, "claim expires with the window")

	require.NoError(t, c.ReleaseCooldown(ctx, "AAPL"))
	ok, err = c.ClaimCooldown(ctx, "AAPL", time.Hour)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisCache_Recent(t *testing.T) {
	c, _ := newRedis(t)
	ctx := context.Background()
	for _, s := range []string{"A", "B", "C", "D"} {
		require.NoError(t, c.PushRecent(ctx, model.Signal{ID: s, Symbol: s}))
	}
	got, err := c.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "D", got[0].Symbol)
	assert.Equal(t, "B", got[2].Symbol)

	got, err = c.Recent(ctx, 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "D", got[0].Symbol)
}

func TestRedisCache_UnavailableOpensBreaker(t *testing.T) {
	c, mr := newRedis(t)
	ctx := context.Background()
	mr.Close()

	for i := 0; i < 2; i++ {
		_, _, err := c.GetSeries(ctx, "k")
		assert.True(t, errors.Is(err, ErrCacheUnavailable))
	}
	assert.Equal(t, BreakerOpen, c.Breaker().State())

	_, err := c.ClaimCooldown(ctx, "AAPL", time.Hour)
	assert.ErrorIs(t, err, ErrCacheUnavailable)
	assert.ErrorContains(t, err, ErrBreakerOpen.Error())
}

func TestMemoryCache(t *testing.T) {
	now := time.Date(2025, 1, 2, 12, 0, 0, 0, time.UTC)
	m := NewMemoryCache(2)
	m.Now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, m.SetSeries(ctx, "k", sampleSeries("AAPL"), time.Minute))
	got, ok, err := m.GetSeries(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	got.Bars[0].Close = -1
	again, _, _ := m.GetSeries(ctx, "k")
	assert.Equal(t, 1.5, again.Bars[0].Close, "callers get a copy")

	now = now.Add(time.Minute)
	_, ok, _ = m.GetSeries(ctx, "k")
	assert.False(t, ok)

	ok, _ = m.ClaimCooldown(ctx, "AAPL", time.Hour)
	assert.True(t, ok)
	ok, _ = m.ClaimCooldown(ctx, "AAPL", time.Hour)
	assert.False(t, ok)
	now = now.Add(time.Hour)
	ok, _ = m.ClaimCooldown(ctx, "AAPL", time.Hour)
	assert.True(t, ok)

	for _, s := range []string{"A", "B", "C"} {
		require.NoError(t, m.PushRecent(ctx, model.Signal{Symbol: s}))
	}
	recent, _ := m.Recent(ctx, 0)
	require.Len(t, recent, 2)
	assert.Equal(t, "C", recent[0].Symbol)
}
