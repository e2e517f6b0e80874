// Package feed keeps a channel's message list consistent across the first
// page load, older-page pagination and the live insert stream, and decides
// how the viewport scrolls in response.
package feed

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"meerchat/pkg/logger"
	"meerchat/pkg/models"
)

const defaultRowHeight = 48.0

var (
	ErrClosed = errors.New("feed closed")
	// ErrStale is returned when a page arrives after the channel was switched.
	ErrStale = errors.New("stale page discarded")
)

// State is a point-in-time copy of the feed.
type State struct {
	Channel      string           `json:"channel"`
	Messages     []models.Message `json:"messages"`
	Watermark    *time.Time       `json:"watermark,omitempty"`
	HasMore      bool             `json:"has_more"`
	NearBottom   bool             `json:"near_bottom"`
	NearTop      bool             `json:"near_top"`
	AlertVisible bool             `json:"alert_visible"`
}

type options struct {
	pageSize   int
	rowHeight  func(models.Message) float64
	filter     func(models.Message) bool
	clock      Clock
	threshold  float64
	alertDelay time.Duration
}

type Option func(*options)

// WithPageSize sets the rows per fetch; values are clamped to 1..100.
func WithPageSize(n int) Option { return func(o *options) { o.pageSize = n } }

// WithRowHeight sets the pixel height used to keep position on prepend.
func WithRowHeight(fn func(models.Message) float64) Option {
	return func(o *options) { o.rowHeight = fn }
}

// WithFilter hides messages for which keep returns false.
func WithFilter(keep func(models.Message) bool) Option {
	return func(o *options) { o.filter = keep }
}

func WithClock(c Clock) Option { return func(o *options) { o.clock = c } }

func WithThreshold(px float64) Option { return func(o *options) { o.threshold = px } }

func WithAlertDelay(d time.Duration) Option { return func(o *options) { o.alertDelay = d } }

// HideAssistantReplies is a filter that drops assistant messages.
func HideAssistantReplies(m models.Message) bool { return !m.IsAIResponse }

// Synchronizer owns the feed of one open channel at a time.
type Synchronizer struct {
	fetcher   *Fetcher
	listener  *Listener
	ledger    *Ledger
	anchor    *Anchor
	rowHeight func(models.Message) float64
	filter    func(models.Message) bool

	mu       sync.Mutex
	channel  string
	gen      uint64
	merger   *Merger
	messages []models.Message
	hasMore  bool
	loaded   bool
	closed   bool
}

func New(source PageSource, sub Subscriber, view Viewport, opts ...Option) *Synchronizer {
	o := options{
		pageSize:   models.DefaultPageSize,
		threshold:  DefaultThreshold,
		alertDelay: DefaultAlertDelay,
		clock:      SystemClock,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.rowHeight == nil {
		o.rowHeight = func(models.Message) float64 { return defaultRowHeight }
	}
	ledger := NewLedger()
	return &Synchronizer{
		fetcher:   NewFetcher(source, o.pageSize),
		listener:  NewListener(sub),
		ledger:    ledger,
		anchor:    NewAnchor(view, o.clock, o.threshold, o.alertDelay),
		rowHeight: o.rowHeight,
		filter:    o.filter,
		merger:    NewMerger(ledger, "", o.filter),
	}
}

// Open switches to channel: the previous subscription and state are
// dropped, the newest page is loaded and live inserts start flowing.
func (s *Synchronizer) Open(ctx context.Context, channel string) error {
	s.listener.Release()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.gen++
	gen := s.gen
	s.channel = channel
	s.ledger.Reset()
	s.merger = NewMerger(s.ledger, channel, s.filter)
	s.messages = nil
	s.hasMore = false
	s.loaded = false
	s.mu.Unlock()

	type result struct {
		page Page
		err  error
	}
	done := make(chan result, 1)
	go func() {
		p, err := s.fetcher.FetchLatest(ctx, channel)
		done <- result{p, err}
	}()

	if err := s.listener.Acquire(channel, func(m models.Message) { s.onLive(gen, m) }); err != nil {
		logger.Warn("feed_subscribe_failed", "channel", channel, "error", err)
		return fmt.Errorf("subscribe %s: %w", channel, err)
	}

	res := <-done
	if res.err != nil {
		logger.Warn("feed_initial_fetch_failed", "channel", channel, "error", res.err)
		return res.err
	}

	s.mu.Lock()
	if s.closed || s.gen != gen {
		s.mu.Unlock()
		return ErrStale
	}
	s.messages, _ = s.merger.mergeOlder(s.messages, res.page.Messages)
	s.hasMore = res.page.HasMore
	s.loaded = true
	count := len(s.messages)
	s.mu.Unlock()

	logger.Debug("feed_opened", "channel", channel, "messages", count, "has_more", res.page.HasMore)
	s.anchor.OnInitialLoad()
	return nil
}

func (s *Synchronizer) onLive(gen uint64, m models.Message) {
	s.mu.Lock()
	if s.closed || s.gen != gen {
		s.mu.Unlock()
		return
	}
	before := len(s.messages)
	s.messages = s.merger.AppendLive(s.messages, m)
	added := len(s.messages) > before
	loaded := s.loaded
	s.mu.Unlock()

	if added && loaded {
		s.anchor.OnLiveMessage()
	}
}

// LoadOlder fetches the page before the watermark and returns how many
// rows were prepended. It does nothing when no older page exists or a
// fetch is already running.
func (s *Synchronizer) LoadOlder(ctx context.Context) (int, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return 0, ErrClosed
	}
	if s.channel == "" || !s.loaded || !s.hasMore {
		s.mu.Unlock()
		return 0, nil
	}
	channel, gen := s.channel, s.gen
	before := s.merger.Watermark()
	s.mu.Unlock()

	page, err := s.fetcher.FetchOlderThan(ctx, channel, before)
	if errors.Is(err, ErrFetchInFlight) {
		return 0, nil
	}
	if err != nil {
		logger.Warn("feed_older_fetch_failed", "channel", channel, "error", err)
		return 0, err
	}

	s.mu.Lock()
	if s.closed || s.gen != gen || s.channel != channel {
		s.mu.Unlock()
		logger.Debug("feed_stale_page", "channel", channel)
		return 0, ErrStale
	}
	var fresh []models.Message
	s.messages, fresh = s.merger.mergeOlder(s.messages, page.Messages)
	s.hasMore = page.HasMore
	s.mu.Unlock()

	var height float64
	for _, m := range fresh {
		height += s.rowHeight(m)
	}
	s.anchor.OnPrepend(height)
	return len(fresh), nil
}

// Scroll records a scroll position and loads older rows near the top.
func (s *Synchronizer) Scroll(ctx context.Context, m ScrollMetrics) error {
	if !s.anchor.Observe(m) {
		return nil
	}
	_, err := s.LoadOlder(ctx)
	if errors.Is(err, ErrStale) {
		return nil
	}
	return err
}

func (s *Synchronizer) ClickAlert() { s.anchor.ClickAlert() }

func (s *Synchronizer) Snapshot() State {
	s.mu.Lock()
	st := State{
		Channel:   s.channel,
		Messages:  slices.Clone(s.messages),
		Watermark: s.merger.Watermark(),
		HasMore:   s.hasMore,
	}
	s.mu.Unlock()
	st.NearBottom = s.anchor.State() == AtBottom
	st.NearTop = s.anchor.NearTop()
	st.AlertVisible = s.anchor.AlertVisible()
	return st
}

// Close releases the subscription and stops the alert timer.
func (s *Synchronizer) Close() {
	s.mu.Lock()
	s.closed = true
	s.gen++
	s.mu.Unlock()
	s.listener.Release()
	s.anchor.Close()
}
