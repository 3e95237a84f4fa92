package billing

import (
	"context"
	"time"
)

// CheckoutRequest describes a hosted checkout for one plan.
type CheckoutRequest struct {
	UserID string
	Email  string
	Plan   *Plan
}

// CheckoutSession is a created hosted checkout page.
type CheckoutSession struct {
	ID  string
	URL string
}

// Webhook event types handled by the service.
const (
	EventCheckoutCompleted   = "checkout.session.completed"
	EventSubscriptionUpdated = "customer.subscription.updated"
	EventSubscriptionDeleted = "customer.subscription.deleted"
)

// WebhookEvent is a verified payment provider event reduced to the fields
// the service acts on.
type WebhookEvent struct {
	ID                   string
	Type                 string
	UserID               string
	Email                string
	PlanType             string
	StripeCustomerID     string
	StripeSubscriptionID string
	PriceID              string
	Status               string
	CancelAtPeriodEnd    bool
	CurrentPeriodEnd     *time.Time
}

// Provider is the payment provider behind checkout and subscription changes.
type Provider interface {
	CreateCheckoutSession(ctx context.Context, req *CheckoutRequest) (*CheckoutSession, error)
	// ChangeSubscriptionPlan records plan's interval on the subscription and
	// swaps the item price when plan has a price id.
	ChangeSubscriptionPlan(ctx context.Context, subscriptionID string, plan *Plan) error
	CancelSubscription(ctx context.Context, subscriptionID string) error
	ParseWebhook(payload []byte, signature string) (*WebhookEvent, error)
}
