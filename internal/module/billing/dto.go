package billing

import "time"

// PlansResponse is the body of GET /api/plans.
type PlansResponse struct {
	Plans []Plan `json:"plans"`
}

// SubscriptionResponse is the client-facing view of a subscription.
type SubscriptionResponse struct {
	SubscriptionTier  Interval   `json:"subscriptionTier"`
	Status            string     `json:"status"`
	CancelAtPeriodEnd bool       `json:"cancelAtPeriodEnd"`
	CurrentPeriodEnd  *time.Time `json:"currentPeriodEnd,omitempty"`
}

// SubscriptionEnvelope wraps a possibly absent subscription.
type SubscriptionEnvelope struct {
	Subscription *SubscriptionResponse `json:"subscription"`
}

// ChangePlanRequest is the body of POST /api/profile/change-plan.
type ChangePlanRequest struct {
	NewPlan string `json:"newPlan"`
}

// ToResponse converts a Subscription to SubscriptionResponse.
func (s *Subscription) ToResponse() *SubscriptionResponse {
	if s == nil {
		return nil
	}
	return &SubscriptionResponse{
		SubscriptionTier:  s.Tier,
		Status:            string(s.Status),
		CancelAtPeriodEnd: s.CancelAtPeriodEnd,
		CurrentPeriodEnd:  s.CurrentPeriodEnd,
	}
}
