package core

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotFound         = errors.New("submission not found")
	ErrValidation       = errors.New("invalid input")
	ErrGenerationFailed = errors.New("review generation failed")
	ErrStoreUnavailable = errors.New("store unavailable")

	ErrServiceDisabled     = errors.New("AI review service is disabled")
	ErrGlobalLimitExceeded = errors.New("daily AI review limit reached for the service")
	ErrUserLimitExceeded   = errors.New("daily AI review limit reached for this user")

	ErrRateLimited = errors.New("provider rate limit reached")
	ErrTooSoon     = fmt.Errorf("%w: calls are too close together", ErrRateLimited)
	ErrRPMExceeded = fmt.Errorf("%w: requests per minute exceeded", ErrRateLimited)
	ErrRPDExceeded = fmt.Errorf("%w: requests per day exceeded", ErrRateLimited)
)

// QuotaError is returned when a quota check rejects a request.
type QuotaError struct {
	Reason error
	Status QuotaStatus
}

func (e *QuotaError) Error() string { return e.Reason.Error() }
func (e *QuotaError) Unwrap() error { return e.Reason }

// RateLimitError is returned when the provider limiter rejects a call.
// RetryAfter is zero when no wait can be suggested.
type RateLimitError struct {
	Reason     error
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("%s (retry in %s)", e.Reason, e.RetryAfter)
	}
	return e.Reason.Error()
}

func (e *RateLimitError) Unwrap() error { return e.Reason }

// IsRejection reports whether err is a quota or rate limit rejection that is
// surfaced to callers as-is.
func IsRejection(err error) bool {
	return errors.Is(err, ErrServiceDisabled) ||
		errors.Is(err, ErrGlobalLimitExceeded) ||
		errors.Is(err, ErrUserLimitExceeded) ||
		errors.Is(err, ErrRateLimited)
}
