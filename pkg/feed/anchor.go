package feed

import (
	"sync"
	"time"
)

const (
	DefaultThreshold  = 50.0
	DefaultAlertDelay = 3 * time.Second
)

// Viewport is the scrollable list the anchor drives.
type Viewport interface {
	ScrollToBottom(animated bool)
	ScrollBy(delta float64)
	SetAlert(visible bool)
}

// ScrollMetrics is one scroll observation in pixels.
type ScrollMetrics struct {
	Top          float64
	Height       float64
	ClientHeight float64
}

type AnchorState int

const (
	AtBottom AnchorState = iota
	ScrolledUp
)

func (s AnchorState) String() string {
	if s == AtBottom {
		return "at_bottom"
	}
	return "scrolled_up"
}

// Timer is a pending AfterFunc call.
type Timer interface {
	Stop() bool
}

// Clock schedules the alert auto-clear.
type Clock interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type realClock struct{}

func (realClock) AfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }

// SystemClock uses time.AfterFunc.
var SystemClock Clock = realClock{}

// Anchor decides how the viewport reacts to loads and live messages.
// Viewport calls are made without holding the anchor lock.
type Anchor struct {
	view      Viewport
	clock     Clock
	threshold float64
	delay     time.Duration

	mu       sync.Mutex
	state    AnchorState
	nearTop  bool
	alert    bool
	timer    Timer
	timerGen uint64
	closed   bool
}

func NewAnchor(view Viewport, clock Clock, threshold float64, delay time.Duration) *Anchor {
	if clock == nil {
		clock = SystemClock
	}
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	if delay <= 0 {
		delay = DefaultAlertDelay
	}
	return &Anchor{view: view, clock: clock, threshold: threshold, delay: delay}
}

// Observe classifies a scroll position and reports whether it is near the top.
// Reaching the bottom hides a visible alert.
func (a *Anchor) Observe(m ScrollMetrics) bool {
	nearTop := m.Top <= a.threshold
	nearBottom := m.Height-m.Top-m.ClientHeight <= a.threshold

	a.mu.Lock()
	a.nearTop = nearTop
	hide := false
	if nearBottom {
		a.state = AtBottom
		hide = a.clearAlertLocked()
	} else {
		a.state = ScrolledUp
	}
	a.mu.Unlock()

	if hide {
		a.view.SetAlert(false)
	}
	return nearTop
}

// OnLiveMessage follows the new message when at the bottom and otherwise
// shows the alert, restarting its auto-clear timer.
func (a *Anchor) OnLiveMessage() {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	if a.state == AtBottom {
		a.mu.Unlock()
		a.view.ScrollToBottom(true)
		return
	}
	a.alert = true
	if a.timer != nil {
		a.timer.Stop()
	}
	a.timerGen++
	gen := a.timerGen
	a.timer = a.clock.AfterFunc(a.delay, func() { a.expire(gen) })
	a.mu.Unlock()

	a.view.SetAlert(true)
}

func (a *Anchor) expire(gen uint64) {
	a.mu.Lock()
	if a.closed || gen != a.timerGen || !a.alert {
		a.mu.Unlock()
		return
	}
	a.alert = false
	a.timer = nil
	a.mu.Unlock()
	a.view.SetAlert(false)
}

// clearAlertLocked stops the timer and reports whether the alert was visible.
func (a *Anchor) clearAlertLocked() bool {
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
	a.timerGen++
	was := a.alert
	a.alert = false
	return was
}

func (a *Anchor) ClickAlert() {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	a.clearAlertLocked()
	a.state = AtBottom
	a.mu.Unlock()

	a.view.SetAlert(false)
	a.view.ScrollToBottom(true)
}

func (a *Anchor) OnInitialLoad() {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	hide := a.clearAlertLocked()
	a.state = AtBottom
	a.nearTop = false
	a.mu.Unlock()

	if hide {
		a.view.SetAlert(false)
	}
	a.view.ScrollToBottom(false)
}

// OnPrepend keeps the visible rows in place after addedHeight pixels were
// inserted above them.
func (a *Anchor) OnPrepend(addedHeight float64) {
	if addedHeight <= 0 {
		return
	}
	a.mu.Lock()
	closed := a.closed
	a.mu.Unlock()
	if !closed {
		a.view.ScrollBy(addedHeight)
	}
}

func (a *Anchor) State() AnchorState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

func (a *Anchor) AlertVisible() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.alert
}

func (a *Anchor) NearTop() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.nearTop
}

// Close stops the alert timer. Later timer fires are ignored.
func (a *Anchor) Close() {
	a.mu.Lock()
	a.closed = true
	a.clearAlertLocked()
	a.mu.Unlock()
}
