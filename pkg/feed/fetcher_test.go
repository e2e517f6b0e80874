package feed

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFetcherPagesAscending(t *testing.T) {
	src := newFakeSource()
	src.seed("general", 7)
	f := NewFetcher(src, 3)
	ctx := context.Background()

	p, err := f.FetchOlderThan(ctx, "general", nil)
	require.NoError(t, err)
	require.Equal(t, []string{"general-004", "general-005", "general-006"}, ids(p.Messages))
	require.True(t, p.HasMore)

	before := p.Messages[0].CreatedAt
	p, err = f.FetchOlderThan(ctx, "general", &before)
	require.NoError(t, err)
	require.Equal(t, []string{"general-001", "general-002", "general-003"}, ids(p.Messages))
	require.True(t, p.HasMore)

	before = p.Messages[0].CreatedAt
	p, err = f.FetchOlderThan(ctx, "general", &before)
	require.NoError(t, err)
	require.Equal(t, []string{"general-000"}, ids(p.Messages))
	require.False(t, p.HasMore)
}

func TestFetcherExactMultipleNeedsOneEmptyPage(t *testing.T) {
	src := newFakeSource()
	src.seed("general", 4)
	f := NewFetcher(src, 2)
	ctx := context.Background()

	p, err := f.FetchOlderThan(ctx, "general", nil)
	require.NoError(t, err)
	require.True(t, p.HasMore)
	before := p.Messages[0].CreatedAt

	p, err = f.FetchOlderThan(ctx, "general", &before)
	require.NoError(t, err)
	require.Len(t, p.Messages, 2)
	require.True(t, p.HasMore, "a full page always assumes more")
	before = p.Messages[0].CreatedAt

	p, err = f.FetchOlderThan(ctx, "general", &before)
	require.NoError(t, err)
	require.Empty(t, p.Messages)
	require.False(t, p.HasMore)
}

func TestFetcherSingleFlight(t *testing.T) {
	src := newFakeSource()
	src.seed("general", 2)
	src.gate = make(chan struct{})
	f := NewFetcher(src, 10)

	done := make(chan error, 1)
	go func() {
		_, err := f.FetchOlderThan(context.Background(), "general", nil)
		done <- err
	}()
	require.Eventually(t, func() bool { return f.InFlight("general") }, time.Second, time.Millisecond)

	_, err := f.FetchOlderThan(context.Background(), "general", nil)
	require.ErrorIs(t, err, ErrFetchInFlight)

	// other channels are independent
	go func() {
		src.gate <- struct{}{}
		src.gate <- struct{}{}
	}()
	_, err = f.FetchOlderThan(context.Background(), "thread1", nil)
	require.NoError(t, err)
	require.NoError(t, <-done)
	require.False(t, f.InFlight("general"))
}

func TestFetcherLatestIgnoresInFlightOlder(t *testing.T) {
	src := newFakeSource()
	src.seed("general", 5)
	gate := make(chan struct{})
	src.gate = gate
	f := NewFetcher(src, 3)

	before := msgAt("general", 2).CreatedAt
	done := make(chan error, 1)
	go func() {
		_, err := f.FetchOlderThan(context.Background(), "general", &before)
		done <- err
	}()
	require.Eventually(t, func() bool { return src.blocked() == 1 }, time.Second, time.Millisecond)

	src.mu.Lock()
	src.gate = nil
	src.mu.Unlock()
	p, err := f.FetchLatest(context.Background(), "general")
	require.NoError(t, err)
	require.Equal(t, []string{"general-002", "general-003", "general-004"}, ids(p.Messages))
	require.True(t, f.InFlight("general"))

	gate <- struct{}{}
	require.NoError(t, <-done)
	require.False(t, f.InFlight("general"))
}

func TestFetcherWrapsSourceError(t *testing.T) {
	src := newFakeSource()
	src.err = errSource
	f := NewFetcher(src, 10)
	_, err := f.FetchOlderThan(context.Background(), "general", nil)
	require.True(t, errors.Is(err, errSource))
	require.False(t, f.InFlight("general"))
}
