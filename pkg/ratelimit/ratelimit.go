// Package ratelimit implements the sliding-window limit on message posts.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"meerchat/pkg/logger"
	"meerchat/pkg/metrics"
)

// Decision is the outcome of one Allow call.
type Decision struct {
	Allowed   bool
	Remaining int
	// RetryAfter is how long until a slot frees up; zero when allowed.
	RetryAfter time.Duration
}

// Stats counts decisions since the last reset.
type Stats struct {
	Total     int64     `json:"total"`
	Limited   int64     `json:"limited"`
	LastReset time.Time `json:"last_reset"`
}

// LimitedPct returns the share of limited requests as a percentage.
func (s Stats) LimitedPct() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Limited) / float64(s.Total) * 100
}

// Limiter admits at most a fixed number of requests per key within a
// sliding window.
type Limiter interface {
	Allow(ctx context.Context, key string) (Decision, error)
	Stats() Stats
	// ResetStats logs and zeroes the counters and prunes idle keys.
	ResetStats(ctx context.Context) Stats
}

// Clock returns the current time.
type Clock func() time.Time

type counters struct {
	mu    sync.Mutex
	stats Stats
}

func (c *counters) record(limited bool) {
	c.mu.Lock()
	c.stats.Total++
	if limited {
		c.stats.Limited++
	}
	c.mu.Unlock()
	metrics.RateLimitRequests.Inc()
	if limited {
		metrics.RateLimitLimited.Inc()
	}
}

func (c *counters) snapshot() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

func (c *counters) reset(now time.Time, backend string) Stats {
	c.mu.Lock()
	prev := c.stats
	c.stats = Stats{LastReset: now}
	c.mu.Unlock()

	logger.Info("ratelimit_stats",
		"backend", backend,
		"period", now.Sub(prev.LastReset).Round(time.Second).String(),
		"total_requests", prev.Total,
		"limited_requests", prev.Limited,
		"limit_percentage", fmt.Sprintf("%.2f%%", prev.LimitedPct()),
	)
	return prev
}
