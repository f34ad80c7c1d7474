package auth

import (
	"errors"
	"fmt"

	"keyguard/internal/ratelimit"
)

// Authentication failures
var (
	ErrInvalidFormat        = errors.New("invalid API key format")
	ErrKeyNotFound          = errors.New("API key not found")
	ErrKeyInactive          = errors.New("API key is inactive")
	ErrKeyExpired           = errors.New("API key has expired")
	ErrInsufficientScope    = errors.New("insufficient scope")
	ErrRateLimited          = errors.New("rate limit exceeded")
	ErrAuthenticationFailed = errors.New("authentication failed")
)

// Management failures
var (
	ErrDuplicateName   = errors.New("an API key with this name already exists")
	ErrMaxKeysReached  = errors.New("maximum number of active API keys reached")
	ErrInvalidInput    = errors.New("invalid input")
	ErrInvalidPassword = errors.New("invalid email or password")
	ErrInvalidSession  = errors.New("invalid session token")
)

// ScopeError reports the scope a key was missing
type ScopeError struct {
	Required string
}

func (e *ScopeError) Error() string {
	return fmt.Sprintf("API key lacks required scope %q", e.Required)
}

func (e *ScopeError) Unwrap() error {
	return ErrInsufficientScope
}

// RateLimitError reports the first exhausted window
type RateLimitError struct {
	Window     string
	Limit      int
	RetryAfter int // seconds

	// Limits holds every window's result for response headers
	Limits []ratelimit.WindowResult
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit of %d per %s exceeded, retry after %ds", e.Limit, e.Window, e.RetryAfter)
}

func (e *RateLimitError) Unwrap() error {
	return ErrRateLimited
}

// MaxKeysError reports the active-key cap an owner hit
type MaxKeysError struct {
	Max int
}

func (e *MaxKeysError) Error() string {
	return fmt.Sprintf("maximum number of active API keys (%d) reached", e.Max)
}

func (e *MaxKeysError) Unwrap() error {
	return ErrMaxKeysReached
}

// ValidationError reports a rejected input field
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidInput
}
