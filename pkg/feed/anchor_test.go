package feed

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestAnchor() (*Anchor, *fakeView, *fakeClock) {
	v := &fakeView{}
	c := &fakeClock{}
	return NewAnchor(v, c, 0, 0), v, c
}

// 1000px of content in a 400px window.
func scrolledTo(top float64) ScrollMetrics {
	return ScrollMetrics{Top: top, Height: 1000, ClientHeight: 400}
}

func TestAnchorObserve(t *testing.T) {
	a, _, _ := newTestAnchor()
	cases := []struct {
		top     float64
		nearTop bool
		state   AnchorState
	}{
		{0, true, ScrolledUp},
		{50, true, ScrolledUp},
		{51, false, ScrolledUp},
		{549, false, ScrolledUp},
		{550, false, AtBottom},
		{600, false, AtBottom},
	}
	for _, tc := range cases {
		require.Equal(t, tc.nearTop, a.Observe(scrolledTo(tc.top)), "top=%v", tc.top)
		require.Equal(t, tc.state, a.State(), "top=%v", tc.top)
	}
}

func TestAnchorLiveMessageAtBottomScrolls(t *testing.T) {
	a, v, c := newTestAnchor()
	a.OnInitialLoad()
	require.Equal(t, viewCall{op: "bottom", flag: false}, v.last())

	a.OnLiveMessage()
	require.Equal(t, viewCall{op: "bottom", flag: true}, v.last())
	require.False(t, a.AlertVisible())
	require.Zero(t, c.pending())
}

func TestAnchorLiveMessageScrolledUpShowsAlert(t *testing.T) {
	a, v, c := newTestAnchor()
	a.OnInitialLoad()
	a.Observe(scrolledTo(200))
	v.reset()

	a.OnLiveMessage()
	require.True(t, a.AlertVisible())
	require.Equal(t, viewCall{op: "alert", flag: true}, v.last())
	require.Zero(t, v.count("bottom"))
	require.Equal(t, 1, c.pending())

	// a second message restarts the timer
	a.OnLiveMessage()
	require.Equal(t, 1, c.pending())

	require.Equal(t, 1, c.fireAll(false))
	require.False(t, a.AlertVisible())
	require.Equal(t, viewCall{op: "alert", flag: false}, v.last())
	require.Equal(t, ScrolledUp, a.State())
}

func TestAnchorClickAlert(t *testing.T) {
	a, v, c := newTestAnchor()
	a.Observe(scrolledTo(200))
	a.OnLiveMessage()

	a.ClickAlert()
	require.False(t, a.AlertVisible())
	require.Equal(t, AtBottom, a.State())
	require.Equal(t, viewCall{op: "bottom", flag: true}, v.last())
	require.Zero(t, c.pending())

	// the cancelled timer firing late changes nothing
	v.reset()
	c.fireAll(true)
	require.Zero(t, v.count("alert"))
}

func TestAnchorReachingBottomHidesAlert(t *testing.T) {
	a, v, _ := newTestAnchor()
	a.Observe(scrolledTo(200))
	a.OnLiveMessage()
	a.Observe(scrolledTo(600))
	require.False(t, a.AlertVisible())
	require.Equal(t, viewCall{op: "alert", flag: false}, v.last())
}

func TestAnchorCloseStopsTimer(t *testing.T) {
	a, v, c := newTestAnchor()
	a.Observe(scrolledTo(200))
	a.OnLiveMessage()
	a.Close()
	require.Zero(t, c.pending())

	v.reset()
	c.fireAll(true)
	a.OnLiveMessage()
	a.OnPrepend(100)
	require.Empty(t, v.calls)
}

func TestAnchorOnPrepend(t *testing.T) {
	a, v, _ := newTestAnchor()
	a.OnPrepend(0)
	require.Empty(t, v.calls)
	a.OnPrepend(144)
	require.Equal(t, viewCall{op: "by", arg: 144}, v.last())
}
