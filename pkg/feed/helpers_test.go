package feed

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"meerchat/pkg/changefeed"
	"meerchat/pkg/models"
)

var t0 = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func msgAt(channel string, i int) models.Message {
	return models.Message{
		ID:        fmt.Sprintf("%s-%03d", channel, i),
		Channel:   channel,
		UID:       "u1",
		Body:      fmt.Sprintf("message %d", i),
		CreatedAt: t0.Add(time.Duration(i) * time.Second),
	}
}

// fakeSource serves rows newest first like the store does.
type fakeSource struct {
	mu    sync.Mutex
	rows  map[string][]models.Message // ascending
	calls int
	err   error
	// gate, when set, blocks each call until a value is received
	gate    chan struct{}
	waiting int
}

func newFakeSource() *fakeSource {
	return &fakeSource{rows: make(map[string][]models.Message)}
}

func (f *fakeSource) seed(channel string, n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := 0; i < n; i++ {
		f.rows[channel] = append(f.rows[channel], msgAt(channel, i))
	}
}

func (f *fakeSource) add(m models.Message) {
	f.mu.Lock()
	f.rows[m.Channel] = append(f.rows[m.Channel], m)
	f.mu.Unlock()
}

func (f *fakeSource) ListMessages(ctx context.Context, req models.PageRequest) ([]models.Message, error) {
	f.mu.Lock()
	gate := f.gate
	if gate != nil {
		f.waiting++
	}
	f.mu.Unlock()
	if gate != nil {
		var err error
		select {
		case <-gate:
		case <-ctx.Done():
			err = ctx.Err()
		}
		f.mu.Lock()
		f.waiting--
		f.mu.Unlock()
		if err != nil {
			return nil, err
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	var out []models.Message
	rows := f.rows[req.Channel]
	for i := len(rows) - 1; i >= 0 && len(out) < req.Limit; i-- {
		if req.Before != nil && !rows[i].CreatedAt.Before(*req.Before) {
			continue
		}
		out = append(out, rows[i])
	}
	return out, nil
}

// blocked reports how many calls are parked on the gate.
func (f *fakeSource) blocked() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.waiting
}

var errSource = errors.New("source down")

// fakeSub delivers events synchronously on emit.
type fakeSub struct {
	mu     sync.Mutex
	subs   map[int]func(Event)
	chans  map[int]string
	nextID int
	err    error
}

func newFakeSub() *fakeSub {
	return &fakeSub{subs: make(map[int]func(Event)), chans: make(map[int]string)}
}

func (f *fakeSub) Subscribe(channel string, fn func(Event)) (func(), error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	id := f.nextID
	f.nextID++
	f.subs[id] = fn
	f.chans[id] = channel
	return func() {
		f.mu.Lock()
		delete(f.subs, id)
		delete(f.chans, id)
		f.mu.Unlock()
	}, nil
}

func (f *fakeSub) active() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

func (f *fakeSub) emit(ev Event) {
	f.mu.Lock()
	var fns []func(Event)
	for id, fn := range f.subs {
		if f.chans[id] == ev.Message.Channel {
			fns = append(fns, fn)
		}
	}
	f.mu.Unlock()
	for _, fn := range fns {
		fn(ev)
	}
}

func (f *fakeSub) insert(m models.Message) {
	f.emit(Event{Type: changefeed.EventInsert, Table: changefeed.TableChats, Message: m})
}

type viewCall struct {
	op   string
	arg  float64
	flag bool
}

type fakeView struct {
	mu    sync.Mutex
	calls []viewCall
}

func (v *fakeView) ScrollToBottom(animated bool) { v.record(viewCall{op: "bottom", flag: animated}) }
func (v *fakeView) ScrollBy(delta float64)       { v.record(viewCall{op: "by", arg: delta}) }
func (v *fakeView) SetAlert(visible bool)        { v.record(viewCall{op: "alert", flag: visible}) }

func (v *fakeView) record(c viewCall) {
	v.mu.Lock()
	v.calls = append(v.calls, c)
	v.mu.Unlock()
}

func (v *fakeView) last() viewCall {
	v.mu.Lock()
	defer v.mu.Unlock()
	if len(v.calls) == 0 {
		return viewCall{}
	}
	return v.calls[len(v.calls)-1]
}

func (v *fakeView) count(op string) int {
	v.mu.Lock()
	defer v.mu.Unlock()
	n := 0
	for _, c := range v.calls {
		if c.op == op {
			n++
		}
	}
	return n
}

func (v *fakeView) reset() {
	v.mu.Lock()
	v.calls = nil
	v.mu.Unlock()
}

// fakeClock fires timers only when told to.
type fakeClock struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

type fakeTimer struct {
	mu      sync.Mutex
	d       time.Duration
	f       func()
	stopped bool
	fired   bool
}

func (t *fakeTimer) Stop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	was := !t.stopped && !t.fired
	t.stopped = true
	return was
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	t := &fakeTimer{d: d, f: f}
	c.mu.Lock()
	c.timers = append(c.timers, t)
	c.mu.Unlock()
	return t
}

// fireAll runs every armed timer, ignoring Stop so late fires can be tested.
func (c *fakeClock) fireAll(includeStopped bool) int {
	c.mu.Lock()
	timers := c.timers
	c.timers = nil
	c.mu.Unlock()
	n := 0
	for _, t := range timers {
		t.mu.Lock()
		run := !t.fired && (includeStopped || !t.stopped)
		t.fired = true
		t.mu.Unlock()
		if run {
			t.f()
			n++
		}
	}
	return n
}

func (c *fakeClock) pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		t.mu.Lock()
		if !t.stopped && !t.fired {
			n++
		}
		t.mu.Unlock()
	}
	return n
}

func ids(msgs []models.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.ID
	}
	return out
}
