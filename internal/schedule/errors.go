package schedule

import "errors"

var (
	// ErrBlackoutViolation rejects edits whose day falls inside the rolling
	// blackout window.
	ErrBlackoutViolation = errors.New("schedule: blackout window violation")
	// ErrTierPolicyViolation rejects opens in day periods the provider's
	// tier does not grant.
	ErrTierPolicyViolation = errors.New("schedule: tier policy violation")
	// ErrHasBookingViolation rejects ordinary closes of booked slots; only
	// an emergency cancel may touch those.
	ErrHasBookingViolation = errors.New("schedule: slot has booking")
	// ErrProviderSuspended blocks every grid mutation until an
	// administrative reset.
	ErrProviderSuspended = errors.New("schedule: provider suspended")
	// ErrInvalidReason rejects emergency cancels without a valid category
	// or with an empty slot list.
	ErrInvalidReason = errors.New("schedule: invalid cancellation reason")
)
