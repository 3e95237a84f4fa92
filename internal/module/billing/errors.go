package billing

import "errors"

// Billing module errors.
var (
	ErrSubscriptionNotFound = errors.New("subscription not found")
	ErrSubscriptionCanceled = errors.New("subscription is canceled")
	ErrPlanNotFound         = errors.New("plan not found")
	ErrInvalidPlan          = errors.New("invalid plan")
	ErrInvalidWebhook       = errors.New("invalid webhook payload")
)
