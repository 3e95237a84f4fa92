package outbound

import (
	"context"
	"time"
)

// RateDecision is the outcome of one rate limit check.
type RateDecision struct {
	Allowed   bool
	Remaining int
}

// RateLimiterPort counts requests per key over a sliding window.
type RateLimiterPort interface {
	// Take records one request for key if it still fits under limit.
	// Rejected requests are not recorded.
	Take(ctx context.Context, key string, limit int, window time.Duration) (RateDecision, error)
}
