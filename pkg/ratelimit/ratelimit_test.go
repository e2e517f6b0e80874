package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (f *fakeClock) now() time.Time          { return f.t }
func (f *fakeClock) advance(d time.Duration) { f.t = f.t.Add(d) }

func exerciseWindow(t *testing.T, l Limiter, clock *fakeClock) {
	t.Helper()
	ctx := context.Background()
	for i := 0; i < 10; i++ {
		d, err := l.Allow(ctx, "user-1")
		require.NoError(t, err)
		require.True(t, d.Allowed, "request %d should pass", i+1)
		clock.advance(time.Second)
	}

	d, err := l.Allow(ctx, "user-1")
	require.NoError(t, err)
	require.False(t, d.Allowed, "11th request inside the window must be limited")
	require.Greater(t, d.RetryAfter, time.Duration(0))

	other, err := l.Allow(ctx, "user-2")
	require.NoError(t, err)
	require.True(t, other.Allowed, "keys are independent")

	clock.advance(61 * time.Second)
	d, err = l.Allow(ctx, "user-1")
	require.NoError(t, err)
	require.True(t, d.Allowed, "request after the window must pass")

	st := l.Stats()
	require.Equal(t, int64(13), st.Total)
	require.Equal(t, int64(1), st.Limited)
}

func TestMemoryWindow(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1700000000, 0)}
	l := NewMemory(10, 60*time.Second, clock.now)
	exerciseWindow(t, l, clock)
}

func TestRedisWindow(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	clock := &fakeClock{t: time.Unix(1700000000, 0)}
	l := NewRedis(client, 10, 60*time.Second, clock.now)
	exerciseWindow(t, l, clock)
}

func TestMemoryBoundaryIsExclusive(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1700000000, 0)}
	l := NewMemory(1, 60*time.Second, clock.now)
	ctx := context.Background()

	d, _ := l.Allow(ctx, "k")
	require.True(t, d.Allowed)
	clock.advance(60 * time.Second)
	d, _ = l.Allow(ctx, "k")
	require.True(t, d.Allowed, "a hit exactly one window old no longer counts")
}

func TestResetStatsPrunesIdleKeys(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1700000000, 0)}
	l := NewMemory(10, 60*time.Second, clock.now)
	ctx := context.Background()

	_, _ = l.Allow(ctx, "a")
	_, _ = l.Allow(ctx, "b")
	require.Equal(t, 2, l.Keys())

	clock.advance(2 * time.Minute)
	prev := l.ResetStats(ctx)
	require.Equal(t, int64(2), prev.Total)
	require.Equal(t, 0, l.Keys())
	require.Equal(t, int64(0), l.Stats().Total)
	require.True(t, l.Stats().LastReset.Equal(clock.t))
}
