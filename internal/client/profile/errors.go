package profile

import "errors"

var (
	// ErrNoPlanSelected is returned when a plan change is submitted without a plan.
	ErrNoPlanSelected = errors.New("no plan selected")
	// ErrConfirmationNotFound is returned for unknown, declined or expired confirmations.
	ErrConfirmationNotFound = errors.New("unsubscribe confirmation not found")
)
