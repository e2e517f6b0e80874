package auth

import (
	"math"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	bucketIdleTTL = 10 * time.Minute
	bucketSweep   = time.Minute
)

type bucket struct {
	l        *rate.Limiter
	lastSeen time.Time
}

// ipBuckets keeps one token bucket per client ip. Buckets idle for longer
// than bucketIdleTTL are swept.
type ipBuckets struct {
	rps   float64
	burst int
	now   func() time.Time

	mu      sync.Mutex
	buckets map[string]*bucket

	sweepOnce sync.Once
	stopCh    chan struct{}
	stopOnce  sync.Once
}

func newIPBuckets(rps float64, burst int, now func() time.Time) *ipBuckets {
	if now == nil {
		now = time.Now
	}
	return &ipBuckets{rps: rps, burst: burst, now: now, buckets: make(map[string]*bucket), stopCh: make(chan struct{})}
}

// take spends one token for ip. When the bucket is empty it reports how long
// until the next token.
func (p *ipBuckets) take(ip string) (bool, time.Duration) {
	if p.rps <= 0 {
		return true, 0
	}
	p.sweepOnce.Do(func() { go p.sweepLoop() })

	now := p.now()
	p.mu.Lock()
	b, ok := p.buckets[ip]
	if !ok {
		b = &bucket{l: rate.NewLimiter(rate.Limit(p.rps), p.burst)}
		p.buckets[ip] = b
	}
	b.lastSeen = now
	p.mu.Unlock()

	r := b.l.ReserveN(now, 1)
	if !r.OK() {
		return false, time.Second
	}
	if d := r.DelayFrom(now); d > 0 {
		r.CancelAt(now)
		return false, d
	}
	return true, 0
}

func (p *ipBuckets) sweep() {
	cutoff := p.now().Add(-bucketIdleTTL)
	p.mu.Lock()
	for ip, b := range p.buckets {
		if b.lastSeen.Before(cutoff) {
			delete(p.buckets, ip)
		}
	}
	p.mu.Unlock()
}

func (p *ipBuckets) len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.buckets)
}

func (p *ipBuckets) sweepLoop() {
	t := time.NewTicker(bucketSweep)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			p.sweep()
		case <-p.stopCh:
			return
		}
	}
}

func (p *ipBuckets) stop() {
	p.stopOnce.Do(func() { close(p.stopCh) })
}

// retryAfterSeconds rounds d up to whole seconds, minimum one.
func retryAfterSeconds(d time.Duration) int {
	s := int(math.Ceil(d.Seconds()))
	if s < 1 {
		return 1
	}
	return s
}
