// Package changefeed fans out row change events to subscribers, in process
// and optionally across instances through Redis pub/sub.
package changefeed

import (
	"errors"
	"sync"

	"meerchat/pkg/logger"
	"meerchat/pkg/metrics"
	"meerchat/pkg/models"
)

// event types
const (
	EventInsert = "insert"
	EventUpdate = "update"
	EventDelete = "delete"
)

// TableChats is the only table that emits events.
const TableChats = "Chats"

const defaultBuffer = 256

var ErrClosed = errors.New("change feed closed")

// Event is one row change. It is also the websocket frame format.
type Event struct {
	Type    string         `json:"type"`
	Table   string         `json:"table"`
	Message models.Message `json:"record"`
	Origin  string         `json:"origin,omitempty"`
}

type subscriber struct {
	channel string
	fn      func(Event)
	queue   chan Event
	done    chan struct{}
}

// Hub delivers events to subscribers. Each subscriber has its own queue and
// pump goroutine so a slow consumer never blocks Publish or its peers.
type Hub struct {
	mu     sync.RWMutex
	subs   map[uint64]*subscriber
	nextID uint64
	buffer int
	closed bool
	wg     sync.WaitGroup
}

func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	return &Hub{subs: make(map[uint64]*subscriber), buffer: buffer}
}

// Publish emits an insert event for m.
func (h *Hub) Publish(m models.Message) {
	h.PublishEvent(Event{Type: EventInsert, Table: TableChats, Message: m})
}

func (h *Hub) PublishEvent(ev Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return
	}
	for id, s := range h.subs {
		if s.channel != "" && s.channel != ev.Message.Channel {
			continue
		}
		select {
		case s.queue <- ev:
		default:
			metrics.ChangeFeedDropped.Inc()
			logger.Warn("changefeed_event_dropped", "subscriber", id, "channel", ev.Message.Channel, "id", ev.Message.ID)
		}
	}
}

// Subscribe registers fn for events on channel; an empty channel receives
// every event. The returned func unsubscribes and may be called repeatedly.
func (h *Hub) Subscribe(channel string, fn func(Event)) (func(), error) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil, ErrClosed
	}
	id := h.nextID
	h.nextID++
	s := &subscriber{
		channel: channel,
		fn:      fn,
		queue:   make(chan Event, h.buffer),
		done:    make(chan struct{}),
	}
	h.subs[id] = s
	h.wg.Add(1)
	h.mu.Unlock()
	metrics.ChangeFeedSubscribers.Inc()

	go h.pump(s)

	var once sync.Once
	return func() {
		once.Do(func() { h.remove(id) })
	}, nil
}

func (h *Hub) pump(s *subscriber) {
	defer h.wg.Done()
	for {
		select {
		case ev := <-s.queue:
			s.fn(ev)
		case <-s.done:
			return
		}
	}
}

func (h *Hub) remove(id uint64) {
	h.mu.Lock()
	s, ok := h.subs[id]
	if ok {
		delete(h.subs, id)
	}
	h.mu.Unlock()
	if ok {
		close(s.done)
		metrics.ChangeFeedSubscribers.Dec()
	}
}

// Subscribers returns the number of active subscriptions.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Close drops every subscription and waits for pumps to exit.
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	subs := h.subs
	h.subs = make(map[uint64]*subscriber)
	h.mu.Unlock()

	for _, s := range subs {
		close(s.done)
		metrics.ChangeFeedSubscribers.Dec()
	}
	h.wg.Wait()
}
