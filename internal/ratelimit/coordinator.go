package ratelimit

import (
	"context"
	"fmt"
	"time"

	"keyguard/internal/metrics"
	"keyguard/internal/utils"
)

// Window names used for API keys
const (
	WindowMinute = "minute"
	WindowHour   = "hour"
	WindowDay    = "day"
)

// Window is one named limit over a period.
type Window struct {
	Name   string
	Limit  int
	Period time.Duration
}

// WindowResult pairs a window with its decision.
type WindowResult struct {
	Window Window
	Result
}

// KeyWindows returns the minute, hour and day windows in evaluation order.
func KeyWindows(perMinute, perHour, perDay int) []Window {
	return []Window{
		{Name: WindowMinute, Limit: perMinute, Period: time.Minute},
		{Name: WindowHour, Limit: perHour, Period: time.Hour},
		{Name: WindowDay, Limit: perDay, Period: 24 * time.Hour},
	}
}

// ExceededError reports the first window that denied a request.
type ExceededError struct {
	Window     string
	Limit      int
	RetryAfter int // seconds
}

func (e *ExceededError) Error() string {
	return fmt.Sprintf("rate limit exceeded for %s window (limit %d, retry after %ds)", e.Window, e.Limit, e.RetryAfter)
}

func (e *ExceededError) Unwrap() error {
	return ErrRateLimitExceeded
}

// Coordinator combines several windows into one decision per identifier.
type Coordinator struct {
	limiter Limiter
	scope   string
	metrics metrics.Metrics
	logger  *utils.Logger
}

// NewCoordinator creates a coordinator. scope labels metrics (api_key, ip).
func NewCoordinator(limiter Limiter, scope string, m metrics.Metrics) *Coordinator {
	if m == nil {
		m = metrics.NewNoopMetrics()
	}
	return &Coordinator{
		limiter: limiter,
		scope:   scope,
		metrics: m,
		logger:  utils.NewLogger("ratelimit"),
	}
}

func windowIdentifier(w Window, identifier string) string {
	return w.Name + ":" + identifier
}

// CheckAll evaluates every window in order and returns all results. When any
// window denies, entries recorded by the admitting windows are released and
// an *ExceededError for the first denying window is returned.
func (c *Coordinator) CheckAll(ctx context.Context, identifier string, windows []Window) ([]WindowResult, error) {
	results := make([]WindowResult, 0, len(windows))
	var exceeded *ExceededError

	for _, w := range windows {
		res := c.limiter.Check(ctx, windowIdentifier(w, identifier), w.Limit, w.Period)
		c.metrics.RecordRateLimitDecision(c.scope, w.Name, res.Allowed)
		if !res.Allowed && exceeded == nil {
			exceeded = &ExceededError{Window: w.Name, Limit: w.Limit, RetryAfter: res.RetryAfter}
		}
		results = append(results, WindowResult{Window: w, Result: res})
	}

	if exceeded == nil {
		return results, nil
	}

	for i := range results {
		r := &results[i]
		if !r.Allowed || r.Member == "" {
			continue
		}
		if err := c.limiter.Release(ctx, windowIdentifier(r.Window, identifier), r.Window.Period, r.Member); err != nil {
			c.logger.Warn("Failed to release rate limit entry", "identifier", identifier, "window", r.Window.Name, "error", err)
			continue
		}
		r.Member = ""
		r.Count--
		r.Remaining = min(r.Limit, r.Remaining+1)
	}

	return results, exceeded
}

// Status returns a read-only snapshot of every window.
func (c *Coordinator) Status(ctx context.Context, identifier string, windows []Window) []WindowResult {
	results := make([]WindowResult, 0, len(windows))
	for _, w := range windows {
		res := c.limiter.Status(ctx, windowIdentifier(w, identifier), w.Limit, w.Period)
		results = append(results, WindowResult{Window: w, Result: res})
	}
	return results
}

// Reset clears every window for the identifier.
func (c *Coordinator) Reset(ctx context.Context, identifier string, windows []Window) error {
	for _, w := range windows {
		if err := c.limiter.Reset(ctx, windowIdentifier(w, identifier), w.Period); err != nil {
			return fmt.Errorf("failed to reset %s window: %w", w.Name, err)
		}
	}
	c.logger.Info("Rate limits reset", "scope", c.scope, "identifier", identifier)
	return nil
}
