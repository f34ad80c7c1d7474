package ratelimit

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrRateLimitExceeded is wrapped by ExceededError
	ErrRateLimitExceeded = errors.New("rate limit exceeded")

	// ErrInvalidWindow is reported for windows shorter than one second
	ErrInvalidWindow = errors.New("rate limit window must be at least one second")
)

// Limiter counts requests for an opaque identifier over a rolling window.
type Limiter interface {
	// Check records one request and reports whether it is admitted.
	// Backend failures admit the request and populate Result.Err.
	Check(ctx context.Context, identifier string, limit int, window time.Duration) Result

	// Status reports the current window without recording a request.
	Status(ctx context.Context, identifier string, limit int, window time.Duration) Result

	// Release removes an entry previously recorded by Check.
	Release(ctx context.Context, identifier string, window time.Duration, member string) error

	// Reset clears the window for the identifier.
	Reset(ctx context.Context, identifier string, window time.Duration) error
}

// Result describes a single window decision.
type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	Count     int
	ResetAt   time.Time
	// RetryAfter is the number of whole seconds to wait, 0 when allowed
	RetryAfter int
	// Member identifies the entry recorded for an admitted request
	Member string
	// Err is set when the decision was made without the backend (fail open)
	Err error
}

// NoopLimiter admits everything. Used when rate limiting is disabled.
type NoopLimiter struct{}

// NewNoopLimiter creates a limiter that never denies
func NewNoopLimiter() *NoopLimiter {
	return &NoopLimiter{}
}

func (l *NoopLimiter) Check(ctx context.Context, identifier string, limit int, window time.Duration) Result {
	return Result{Allowed: true, Limit: limit, Remaining: limit, ResetAt: time.Now().Add(window)}
}

func (l *NoopLimiter) Status(ctx context.Context, identifier string, limit int, window time.Duration) Result {
	return l.Check(ctx, identifier, limit, window)
}

func (l *NoopLimiter) Release(ctx context.Context, identifier string, window time.Duration, member string) error {
	return nil
}

func (l *NoopLimiter) Reset(ctx context.Context, identifier string, window time.Duration) error {
	return nil
}
