package checkout

import "errors"

// Checkout module errors.
var (
	ErrInvalidPlanType = errors.New("invalid plan type")
)

// Client-facing messages.
const (
	msgMissingFields = "Plan type, user id, and email are required."
	msgInvalidPlan   = "Invalid plan type."
	msgSessionFailed = "Failed to create checkout session."
	msgRateLimited   = "Too many checkout attempts, please try again later."
)
