package feed

import (
	"sync"

	"meerchat/pkg/changefeed"
	"meerchat/pkg/models"
)

type Event = changefeed.Event

// Subscriber delivers change events for one channel until the returned
// cancel func is called.
type Subscriber interface {
	Subscribe(channel string, fn func(Event)) (func(), error)
}

// Listener owns at most one live subscription.
type Listener struct {
	sub Subscriber

	mu      sync.Mutex
	cancel  func()
	channel string
}

func NewListener(sub Subscriber) *Listener {
	return &Listener{sub: sub}
}

// Acquire releases any held subscription and subscribes to channel.
// onInsert sees only inserts for that channel.
func (l *Listener) Acquire(channel string, onInsert func(models.Message)) error {
	l.Release()

	cancel, err := l.sub.Subscribe(channel, func(ev Event) {
		if ev.Type != changefeed.EventInsert || ev.Message.Channel != channel {
			return
		}
		onInsert(ev.Message)
	})
	if err != nil {
		return err
	}

	l.mu.Lock()
	l.cancel = cancel
	l.channel = channel
	l.mu.Unlock()
	return nil
}

func (l *Listener) Release() {
	l.mu.Lock()
	cancel := l.cancel
	l.cancel = nil
	l.channel = ""
	l.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Channel returns the subscribed channel, or "" when released.
func (l *Listener) Channel() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.channel
}
