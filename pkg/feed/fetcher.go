package feed

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"meerchat/pkg/models"
)

var ErrFetchInFlight = errors.New("fetch already in flight")

// PageSource lists messages of a channel older than a bound, newest first.
// store.MessageStore and remote.Client both satisfy it.
type PageSource interface {
	ListMessages(ctx context.Context, req models.PageRequest) ([]models.Message, error)
}

// Page is one fetched batch in ascending time order.
type Page struct {
	Messages []models.Message
	HasMore  bool
}

// Fetcher issues bounded page fetches, at most one per channel at a time.
type Fetcher struct {
	src   PageSource
	limit int

	mu   sync.Mutex
	busy map[string]bool
}

func NewFetcher(src PageSource, limit int) *Fetcher {
	return &Fetcher{src: src, limit: models.ClampLimit(limit), busy: make(map[string]bool)}
}

// InFlight reports whether a fetch for channel is running.
func (f *Fetcher) InFlight(channel string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.busy[channel]
}

// FetchLatest loads the newest page of channel. It ignores the in-flight
// guard; an older-page fetch left over from an abandoned view must not
// block a fresh open.
func (f *Fetcher) FetchLatest(ctx context.Context, channel string) (Page, error) {
	return f.fetch(ctx, channel, nil)
}

// FetchOlderThan loads up to limit messages strictly older than before, or
// the newest page when before is nil.
func (f *Fetcher) FetchOlderThan(ctx context.Context, channel string, before *time.Time) (Page, error) {
	f.mu.Lock()
	if f.busy[channel] {
		f.mu.Unlock()
		return Page{}, ErrFetchInFlight
	}
	f.busy[channel] = true
	f.mu.Unlock()
	defer func() {
		f.mu.Lock()
		delete(f.busy, channel)
		f.mu.Unlock()
	}()
	return f.fetch(ctx, channel, before)
}

func (f *Fetcher) fetch(ctx context.Context, channel string, before *time.Time) (Page, error) {
	rows, err := f.src.ListMessages(ctx, models.PageRequest{Channel: channel, Before: before, Limit: f.limit})
	if err != nil {
		return Page{}, fmt.Errorf("fetch %s page: %w", channel, err)
	}

	msgs := make([]models.Message, len(rows))
	for i, m := range rows {
		msgs[len(rows)-1-i] = m
	}
	sortAscending(msgs)
	return Page{Messages: msgs, HasMore: len(rows) == f.limit}, nil
}

func sortAscending(msgs []models.Message) {
	slices.SortStableFunc(msgs, func(a, b models.Message) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
}
