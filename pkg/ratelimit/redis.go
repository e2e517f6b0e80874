package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

const keyPrefix = "meerchat:ratelimit:"

// Redis keeps one sorted set per key, scored by request time in
// milliseconds, so limits are shared by every instance.
type Redis struct {
	client *redis.Client
	max    int
	window time.Duration
	now    Clock
	counters
}

var _ Limiter = (*Redis)(nil)

func NewRedis(client *redis.Client, max int, window time.Duration, now Clock) *Redis {
	if now == nil {
		now = time.Now
	}
	r := &Redis{client: client, max: max, window: window, now: now}
	r.stats.LastReset = now()
	return r
}

func (r *Redis) Allow(ctx context.Context, key string) (Decision, error) {
	now := r.now()
	k := keyPrefix + key
	member := strconv.FormatInt(now.UnixNano(), 10) + "-" + uuid.NewString()
	cutoff := strconv.FormatInt(now.Add(-r.window).UnixMilli(), 10)

	var (
		card   *redis.IntCmd
		oldest *redis.ZSliceCmd
	)
	_, err := r.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.ZRemRangeByScore(ctx, k, "-inf", cutoff)
		card = p.ZCard(ctx, k)
		oldest = p.ZRangeWithScores(ctx, k, 0, 0)
		p.ZAdd(ctx, k, &redis.Z{Score: float64(now.UnixMilli()), Member: member})
		p.PExpire(ctx, k, r.window)
		return nil
	})
	if err != nil {
		return Decision{}, fmt.Errorf("ratelimit redis: %w", err)
	}

	count := int(card.Val())
	if count >= r.max {
		if err := r.client.ZRem(ctx, k, member).Err(); err != nil {
			return Decision{}, fmt.Errorf("ratelimit redis: %w", err)
		}
		retry := r.window
		if zs := oldest.Val(); len(zs) > 0 {
			retry = time.UnixMilli(int64(zs[0].Score)).Add(r.window).Sub(now)
		}
		r.record(true)
		return Decision{Allowed: false, RetryAfter: retry}, nil
	}
	r.record(false)
	return Decision{Allowed: true, Remaining: r.max - count - 1}, nil
}

func (r *Redis) Stats() Stats { return r.snapshot() }

// ResetStats only resets counters; idle keys expire through PEXPIRE.
func (r *Redis) ResetStats(ctx context.Context) Stats {
	return r.reset(r.now(), "redis")
}
