package billing

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/planpage/server/internal/port/outbound"
)

const statusCacheName = "subscription_status"

// StatusCache keeps recently read subscriptions keyed by user id.
type StatusCache interface {
	Get(ctx context.Context, userID string) (*Subscription, bool)
	Set(ctx context.Context, sub *Subscription)
	Delete(ctx context.Context, userID string) error
}

type statusCache struct {
	cache outbound.CachePort
	ttl   time.Duration
}

// NewStatusCache creates a StatusCache over a cache port.
// A nil port yields a cache that never hits.
func NewStatusCache(cache outbound.CachePort, ttl time.Duration) StatusCache {
	if cache == nil {
		return noopStatusCache{}
	}
	return &statusCache{cache: cache, ttl: ttl}
}

func statusKey(userID string) string {
	return "status:" + userID
}

func (c *statusCache) Get(ctx context.Context, userID string) (*Subscription, bool) {
	data, err := c.cache.Get(ctx, statusKey(userID))
	if err != nil {
		return nil, false
	}
	var rec cachedSubscription
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, false
	}
	return rec.toSubscription(), true
}

// Set is best effort; a failed write only costs a database read later.
func (c *statusCache) Set(ctx context.Context, sub *Subscription) {
	data, err := json.Marshal(newCachedSubscription(sub))
	if err != nil {
		return
	}
	_ = c.cache.Set(ctx, statusKey(sub.UserID), data, c.ttl)
}

func (c *statusCache) Delete(ctx context.Context, userID string) error {
	err := c.cache.Delete(ctx, statusKey(userID))
	if errors.Is(err, outbound.ErrCacheMiss) {
		return nil
	}
	return err
}

// cachedSubscription keeps every column, including the Stripe ids that
// Subscription hides from JSON.
type cachedSubscription struct {
	ID                   uuid.UUID          `json:"id"`
	UserID               string             `json:"user_id"`
	Email                string             `json:"email"`
	Tier                 Interval           `json:"tier"`
	Status               SubscriptionStatus `json:"status"`
	StripeCustomerID     string             `json:"stripe_customer_id"`
	StripeSubscriptionID string             `json:"stripe_subscription_id"`
	CurrentPeriodEnd     *time.Time         `json:"current_period_end"`
	CancelAtPeriodEnd    bool               `json:"cancel_at_period_end"`
	CanceledAt           *time.Time         `json:"canceled_at"`
	CreatedAt            time.Time          `json:"created_at"`
	UpdatedAt            time.Time          `json:"updated_at"`
}

func newCachedSubscription(s *Subscription) cachedSubscription {
	return cachedSubscription{
		ID:                   s.ID,
		UserID:               s.UserID,
		Email:                s.Email,
		Tier:                 s.Tier,
		Status:               s.Status,
		StripeCustomerID:     s.StripeCustomerID,
		StripeSubscriptionID: s.StripeSubscriptionID,
		CurrentPeriodEnd:     s.CurrentPeriodEnd,
		CancelAtPeriodEnd:    s.CancelAtPeriodEnd,
		CanceledAt:           s.CanceledAt,
		CreatedAt:            s.CreatedAt,
		UpdatedAt:            s.UpdatedAt,
	}
}

func (r cachedSubscription) toSubscription() *Subscription {
	return &Subscription{
		ID:                   r.ID,
		UserID:               r.UserID,
		Email:                r.Email,
		Tier:                 r.Tier,
		Status:               r.Status,
		StripeCustomerID:     r.StripeCustomerID,
		StripeSubscriptionID: r.StripeSubscriptionID,
		CurrentPeriodEnd:     r.CurrentPeriodEnd,
		CancelAtPeriodEnd:    r.CancelAtPeriodEnd,
		CanceledAt:           r.CanceledAt,
		CreatedAt:            r.CreatedAt,
		UpdatedAt:            r.UpdatedAt,
	}
}

type noopStatusCache struct{}

func (noopStatusCache) Get(context.Context, string) (*Subscription, bool) { return nil, false }
func (noopStatusCache) Set(context.Context, *Subscription) {}
func (noopStatusCache) Delete(context.Context, string) error { return nil }
