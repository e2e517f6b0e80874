// Package jobs runs periodic maintenance tasks on a cron schedule.
package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/adhocore/gronx"

	"meerchat/pkg/logger"
	"meerchat/pkg/ratelimit"
)

const retryAfterBadCron = 30 * time.Second

// Task is one run of a job.
type Task func(ctx context.Context) error

// Job calls a Task at every tick of a cron expression. Overlapping runs are
// skipped.
type Job struct {
	name string
	cron string
	task Task

	now   func() time.Time
	after func(time.Duration) <-chan time.Time

	mu      sync.Mutex
	running bool
	runs    int
}

// Option customises a Job.
type Option func(*Job)

// WithClock replaces time.Now and time.After.
func WithClock(now func() time.Time, after func(time.Duration) <-chan time.Time) Option {
	return func(j *Job) {
		if now != nil {
			j.now = now
		}
		if after != nil {
			j.after = after
		}
	}
}

func New(name, cron string, task Task, opts ...Option) (*Job, error) {
	if !gronx.IsValid(cron) {
		return nil, fmt.Errorf("job %s: invalid cron expression %q", name, cron)
	}
	j := &Job{name: name, cron: cron, task: task, now: time.Now, after: time.After}
	for _, o := range opts {
		o(j)
	}
	return j, nil
}

// Start runs the schedule loop in the background. The returned function
// stops it.
func (j *Job) Start(ctx context.Context) context.CancelFunc {
	ctx, cancel := context.WithCancel(ctx)
	logger.Info("job_scheduled", "job", j.name, "cron", j.cron)
	go j.scheduleLoop(ctx)
	return cancel
}

// Next returns the first tick strictly after now.
func (j *Job) Next(now time.Time) (time.Time, error) {
	return gronx.NextTickAfter(j.cron, now, false)
}

func (j *Job) scheduleLoop(ctx context.Context) {
	for {
		now := j.now()
		next, err := j.Next(now)
		if err != nil {
			logger.Error("job_nexttick_failed", "job", j.name, "cron", j.cron, "error", err)
			select {
			case <-j.after(retryAfterBadCron):
			case <-ctx.Done():
				return
			}
			continue
		}

		wait := next.Sub(now)
		if wait <= 0 {
			wait = time.Second
		}
		select {
		case <-j.after(wait):
			j.RunNow(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// RunNow runs the task unless a run is already in progress. It reports
// whether the task ran.
func (j *Job) RunNow(ctx context.Context) bool {
	j.mu.Lock()
	if j.running {
		j.mu.Unlock()
		logger.Debug("job_run_skipped", "job", j.name)
		return false
	}
	j.running = true
	j.mu.Unlock()

	defer func() {
		j.mu.Lock()
		j.running = false
		j.runs++
		j.mu.Unlock()
	}()

	start := j.now()
	if err := j.task(ctx); err != nil {
		logger.Error("job_run_failed", "job", j.name, "error", err)
		return true
	}
	logger.Debug("job_run_done", "job", j.name, "took", j.now().Sub(start).String())
	return true
}

// Runs returns the number of completed runs.
func (j *Job) Runs() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.runs
}

// StatsReset returns the job that logs and zeroes the rate limiter counters.
func StatsReset(cron string, limiter ratelimit.Limiter, opts ...Option) (*Job, error) {
	return New("ratelimit_stats_reset", cron, func(ctx context.Context) error {
		limiter.ResetStats(ctx)
		return nil
	}, opts...)
}
