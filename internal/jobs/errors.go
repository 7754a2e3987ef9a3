package jobs

import (
	"errors"
	"fmt"
)

var (
	ErrInsufficientCredits = errors.New("insufficient credits")
	ErrRateLimitExceeded   = errors.New("heavy job rate limit exceeded")
	ErrJobNotFound         = errors.New("job not found")
	// ErrPollTimeout is recorded as the failure message when polling gives up.
	ErrPollTimeout = errors.New("Timeout")
)

// ValidationError reports a malformed job request.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// InsufficientCreditsError carries the caller's balance so it can be shown
// alongside the rejection.
type InsufficientCreditsError struct {
	Balance  int
	Required int
}

func (e *InsufficientCreditsError) Error() string {
	return fmt.Sprintf("insufficient credits: have %d, need %d", e.Balance, e.Required)
}

func (e *InsufficientCreditsError) Unwrap() error { return ErrInsufficientCredits }
