package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Memory keeps request timestamps per key in process memory.
type Memory struct {
	max    int
	window time.Duration
	now    Clock

	mu   sync.Mutex
	hits map[string][]time.Time
	counters
}

var _ Limiter = (*Memory)(nil)

func NewMemory(max int, window time.Duration, now Clock) *Memory {
	if now == nil {
		now = time.Now
	}
	m := &Memory{max: max, window: window, now: now, hits: make(map[string][]time.Time)}
	m.stats.LastReset = now()
	return m
}

func (m *Memory) Allow(ctx context.Context, key string) (Decision, error) {
	now := m.now()
	m.mu.Lock()
	live := m.prune(key, now)
	if len(live) >= m.max {
		retry := live[0].Add(m.window).Sub(now)
		m.mu.Unlock()
		m.record(true)
		return Decision{Allowed: false, RetryAfter: retry}, nil
	}
	m.hits[key] = append(live, now)
	remaining := m.max - len(live) - 1
	m.mu.Unlock()
	m.record(false)
	return Decision{Allowed: true, Remaining: remaining}, nil
}

// prune drops timestamps outside the window. Caller holds m.mu.
func (m *Memory) prune(key string, now time.Time) []time.Time {
	ts := m.hits[key]
	cutoff := now.Add(-m.window)
	i := 0
	for i < len(ts) && !ts[i].After(cutoff) {
		i++
	}
	live := ts[i:]
	if len(live) == 0 {
		delete(m.hits, key)
		return nil
	}
	m.hits[key] = live
	return live
}

func (m *Memory) Stats() Stats { return m.snapshot() }

func (m *Memory) ResetStats(ctx context.Context) Stats {
	now := m.now()
	m.mu.Lock()
	for key := range m.hits {
		m.prune(key, now)
	}
	m.mu.Unlock()
	return m.reset(now, "memory")
}

// Keys returns the number of keys with requests inside the window.
func (m *Memory) Keys() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.hits)
}
