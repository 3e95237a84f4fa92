package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/planpage/server/internal/port/outbound"
	"github.com/redis/go-redis/v9"
)

// slidingWindow keeps one sorted set per key, scored by request time in
// microseconds.
type slidingWindow struct {
	client *redis.Client
	prefix string
	now    func() time.Time
}

// NewRateLimiter creates a sliding window limiter whose keys start with prefix.
func NewRateLimiter(client *redis.Client, prefix string) outbound.RateLimiterPort {
	return &slidingWindow{client: client, prefix: prefix, now: time.Now}
}

func (l *slidingWindow) Take(ctx context.Context, key string, limit int, window time.Duration) (outbound.RateDecision, error) {
	k := l.prefix + key
	now := l.now()
	floor := strconv.FormatInt(now.Add(-window).UnixMicro(), 10)

	var used *redis.IntCmd
	_, err := l.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.ZRemRangeByScore(ctx, k, "-inf", "("+floor)
		used = p.ZCard(ctx, k)
		return nil
	})
	if err != nil {
		return outbound.RateDecision{}, fmt.Errorf("count %s: %w", key, err)
	}

	n := int(used.Val())
	if n >= limit {
		return outbound.RateDecision{Allowed: false, Remaining: 0}, nil
	}

	_, err = l.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.ZAdd(ctx, k, redis.Z{Score: float64(now.UnixMicro()), Member: uuid.NewString()})
		p.PExpire(ctx, k, window)
		return nil
	})
	if err != nil {
		return outbound.RateDecision{}, fmt.Errorf("record %s: %w", key, err)
	}
	return outbound.RateDecision{Allowed: true, Remaining: limit - n - 1}, nil
}
