package jobs

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"meerchat/pkg/logger"
	"meerchat/pkg/ratelimit"
)

func init() { logger.InitDiscard() }

func TestNewRejectsBadCron(t *testing.T) {
	_, err := New("x", "not a cron", func(context.Context) error { return nil })
	require.Error(t, err)
}

func TestNextTick(t *testing.T) {
	j, err := New("x", "0 * * * *", func(context.Context) error { return nil })
	require.NoError(t, err)

	tests := []struct {
		now  time.Time
		want time.Time
	}{
		{time.Date(2024, 5, 1, 10, 15, 0, 0, time.UTC), time.Date(2024, 5, 1, 11, 0, 0, 0, time.UTC)},
		{time.Date(2024, 5, 1, 23, 59, 30, 0, time.UTC), time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		got, err := j.Next(tt.now)
		require.NoError(t, err)
		require.True(t, tt.want.Equal(got), "now=%s got=%s", tt.now, got)
	}
}

func TestScheduleWaitsForNextTick(t *testing.T) {
	now := time.Date(2024, 5, 1, 10, 45, 0, 0, time.UTC)
	waits := make(chan time.Duration, 4)
	fire := make(chan time.Time)
	after := func(d time.Duration) <-chan time.Time {
		waits <- d
		return fire
	}
	var ran atomic.Int32
	j, err := New("x", "0 * * * *", func(context.Context) error {
		ran.Add(1)
		return nil
	}, WithClock(func() time.Time { return now }, after))
	require.NoError(t, err)

	stop := j.Start(context.Background())
	defer stop()

	require.Equal(t, 15*time.Minute, <-waits)
	fire <- now
	require.Equal(t, 15*time.Minute, <-waits)
	require.Equal(t, int32(1), ran.Load())
	require.Equal(t, 1, j.Runs())
}

func TestRunNowSkipsOverlap(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	j, err := New("x", "* * * * *", func(context.Context) error {
		close(entered)
		<-release
		return errors.New("boom")
	})
	require.NoError(t, err)

	done := make(chan bool)
	go func() { done <- j.RunNow(context.Background()) }()
	<-entered
	require.False(t, j.RunNow(context.Background()))
	close(release)
	require.True(t, <-done)
	require.Equal(t, 1, j.Runs())
}

func TestStatsResetZeroesCounters(t *testing.T) {
	lim := ratelimit.NewMemory(1, time.Minute, time.Now)
	ctx := context.Background()
	_, err := lim.Allow(ctx, "u1")
	require.NoError(t, err)
	_, err = lim.Allow(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, int64(2), lim.Stats().Total)

	j, err := StatsReset("0 * * * *", lim)
	require.NoError(t, err)
	require.True(t, j.RunNow(ctx))
	require.Equal(t, int64(0), lim.Stats().Total)
	require.Equal(t, int64(0), lim.Stats().Limited)
}
