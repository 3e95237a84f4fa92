package api

import "time"

// Plan is a catalog entry as served by GET /api/plans.
type Plan struct {
	Name     string  `json:"name"`
	Amount   float64 `json:"amount"`
	Currency string  `json:"currency"`
	Interval string  `json:"interval"`
}

// Subscription is the user's subscription record.
type Subscription struct {
	SubscriptionTier  string     `json:"subscriptionTier"`
	Status            string     `json:"status"`
	CancelAtPeriodEnd bool       `json:"cancelAtPeriodEnd"`
	CurrentPeriodEnd  *time.Time `json:"currentPeriodEnd,omitempty"`
}

// SubscriptionStatus wraps a possibly absent subscription.
type SubscriptionStatus struct {
	Subscription *Subscription `json:"subscription"`
}

// CheckoutRequest is the body of POST /api/checkout.
type CheckoutRequest struct {
	PlanType string `json:"planType"`
	UserID   string `json:"userId"`
	Email    string `json:"email"`
}

// CheckoutSession is the result of a created checkout.
type CheckoutSession struct {
	URL       string `json:"url"`
	SessionID string `json:"sessionId"`
}

type plansResponse struct {
	Plans []Plan `json:"plans"`
}

type changePlanRequest struct {
	NewPlan string `json:"newPlan"`
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}
