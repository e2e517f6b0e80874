// Package sensor watches disk usage of the data volume.
package sensor

import (
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"meerchat/pkg/logger"
)

// UsageFunc returns the used percentage of the volume holding path.
type UsageFunc func(path string) (float64, error)

// Sensor polls disk usage and latches a "full" flag above the high
// watermark.
type Sensor struct {
	path     string
	highPct  int
	interval time.Duration
	usage    UsageFunc

	mu       sync.RWMutex
	diskFull bool
	lastPct  float64

	stopCh   chan struct{}
	stopOnce sync.Once
}

func New(path string, highPct int, interval time.Duration) *Sensor {
	return &Sensor{
		path:     path,
		highPct:  highPct,
		interval: interval,
		usage:    DiskUsedPct,
		stopCh:   make(chan struct{}),
	}
}

// WithUsage replaces the disk probe; tests use it.
func (s *Sensor) WithUsage(fn UsageFunc) *Sensor {
	s.usage = fn
	return s
}

// start sensor
func (s *Sensor) Start() {
	s.Check()
	go s.run()
}

// stop sensor
func (s *Sensor) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
	})
}

func (s *Sensor) run() {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.Check()
		case <-s.stopCh:
			return
		}
	}
}

// Check probes once and updates the flag.
func (s *Sensor) Check() {
	pct, err := s.usage(s.path)
	if err != nil {
		logger.Warn("disk_stat_failed", "path", s.path, "error", err)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastPct = pct
	full := pct >= float64(s.highPct)
	if full != s.diskFull {
		if full {
			logger.Warn("disk_usage_high", "used_pct", pct, "threshold", s.highPct)
		} else {
			logger.Info("disk_usage_recovered", "used_pct", pct, "threshold", s.highPct)
		}
	}
	s.diskFull = full
}

// DiskFull reports whether the last probe was above the watermark.
func (s *Sensor) DiskFull() bool {
	if s == nil {
		return false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.diskFull
}

func DiskUsedPct(path string) (float64, error) {
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return 0, err
	}
	available := stat.Bavail * uint64(stat.Bsize)
	total := stat.Blocks * uint64(stat.Bsize)
	if total == 0 {
		return 0, nil
	}
	return float64(total-available) / float64(total) * 100, nil
}
