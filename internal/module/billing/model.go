package billing

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/planpage/server/internal/shared/config"
)

// Interval is the billing period of a plan. It doubles as the subscription
// tier reported to clients.
type Interval string

const (
	IntervalWeekly  Interval = "weekly"
	IntervalMonthly Interval = "monthly"
	IntervalYearly  Interval = "yearly"
)

// Plan is a catalog entry.
type Plan struct {
	Name          string   `json:"name"`
	Amount        float64  `json:"amount"`
	Currency      string   `json:"currency"`
	Interval      Interval `json:"interval"`
	StripePriceID string   `json:"-"`
}

// Catalog is the static, read-only list of purchasable plans.
type Catalog struct {
	plans []Plan
}

// NewCatalog builds a catalog from configuration entries.
func NewCatalog(entries []config.PlanConfig) *Catalog {
	plans := make([]Plan, 0, len(entries))
	for _, e := range entries {
		plans = append(plans, Plan{
			Name:          e.Name,
			Amount:        e.Amount,
			Currency:      strings.ToUpper(e.Currency),
			Interval:      Interval(strings.ToLower(e.Interval)),
			StripePriceID: e.StripePriceID,
		})
	}
	return &Catalog{plans: plans}
}

// Plans returns a copy of the catalog entries in catalog order.
func (c *Catalog) Plans() []Plan {
	out := make([]Plan, len(c.plans))
	copy(out, c.plans)
	return out
}

// Find returns the first plan whose interval matches.
func (c *Catalog) Find(interval Interval) (*Plan, bool) {
	for i := range c.plans {
		if c.plans[i].Interval == interval {
			p := c.plans[i]
			return &p, true
		}
	}
	return nil, false
}

// FindByPriceID returns the plan billed with the given Stripe price.
func (c *Catalog) FindByPriceID(priceID string) (*Plan, bool) {
	if priceID == "" {
		return nil, false
	}
	for i := range c.plans {
		if c.plans[i].StripePriceID == priceID {
			p := c.plans[i]
			return &p, true
		}
	}
	return nil, false
}

// SubscriptionStatus represents the status of a subscription.
type SubscriptionStatus string

const (
	SubscriptionStatusActive   SubscriptionStatus = "active"
	SubscriptionStatusPastDue  SubscriptionStatus = "past_due"
	SubscriptionStatusCanceled SubscriptionStatus = "canceled"
)

// Subscription represents a user's subscription to a plan.
type Subscription struct {
	ID                   uuid.UUID          `json:"id" gorm:"type:uuid;primaryKey"`
	UserID               string             `json:"user_id" gorm:"uniqueIndex;not null"`
	Email                string             `json:"email"`
	Tier                 Interval           `json:"tier" gorm:"not null"`
	Status               SubscriptionStatus `json:"status" gorm:"not null"`
	StripeCustomerID     string             `json:"-"`
	StripeSubscriptionID string             `json:"-" gorm:"index"`
	CurrentPeriodEnd     *time.Time         `json:"current_period_end,omitempty"`
	CancelAtPeriodEnd    bool               `json:"cancel_at_period_end"`
	CanceledAt           *time.Time         `json:"canceled_at,omitempty"`
	CreatedAt            time.Time          `json:"created_at"`
	UpdatedAt            time.Time          `json:"updated_at"`
}

// TableName returns the database table name.
func (Subscription) TableName() string {
	return "subscriptions"
}

// IsCanceled returns true if the subscription is canceled.
func (s *Subscription) IsCanceled() bool {
	return s.Status == SubscriptionStatusCanceled
}

// HasStripe reports whether the subscription is linked to a Stripe subscription.
func (s *Subscription) HasStripe() bool {
	return s.StripeSubscriptionID != ""
}
