package middleware

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/httprate"

	"keyguard/internal/auth"
	"keyguard/internal/ratelimit"
	"keyguard/internal/utils"
)

// SessionParser verifies a session token without a store lookup
type SessionParser interface {
	Parse(token string) (*auth.SessionClaims, error)
}

// IPRateLimit checks every request against the client address windows.
// sessions may be nil, in which case session tokens count as anonymous.
func IPRateLimit(limiter *ratelimit.IPLimiter, sessions SessionParser) func(http.Handler) http.Handler {
	logger := utils.NewLogger("http")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tier := callerTier(r, sessions)

			ip := utils.ClientIP(r)
			_, err := limiter.Check(r.Context(), ip, tier)

			var exceeded *ratelimit.ExceededError
			if errors.As(err, &exceeded) {
				logger.Warn("IP rate limited", "ip", ip, "tier", tier, "window", exceeded.Window)
				w.Header().Set("Retry-After", strconv.Itoa(exceeded.RetryAfter))
				utils.RespondWithErrorCode(w, http.StatusTooManyRequests, "rate_limit_exceeded", "Too many requests from this address")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// callerTier picks the IP tier from what can be checked before
// authentication: a well-formed API key earns the authenticated tier, a
// signed session token the tier it was issued with. Anything else is
// anonymous.
func callerTier(r *http.Request, sessions SessionParser) string {
	if key, _ := ExtractAPIKey(r); key != "" {
		if auth.ValidateFormat(key) {
			return ratelimit.TierAuthenticated
		}
		return ratelimit.TierAnonymous
	}

	token, ok := SessionToken(r)
	if !ok || sessions == nil {
		return ratelimit.TierAnonymous
	}
	claims, err := sessions.Parse(token)
	switch {
	case err != nil:
		return ratelimit.TierAnonymous
	case claims.Premium:
		return ratelimit.TierPremium
	default:
		return ratelimit.TierAuthenticated
	}
}

// LoginRateLimit limits password attempts per client address in process
func LoginRateLimit(requestsPerMinute int) func(http.Handler) http.Handler {
	return httprate.Limit(
		requestsPerMinute,
		time.Minute,
		httprate.WithKeyFuncs(func(r *http.Request) (string, error) {
			return utils.ClientIP(r), nil
		}),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			utils.RespondWithErrorCode(w, http.StatusTooManyRequests, "rate_limit_exceeded", "Too many login attempts")
		}),
	)
}
