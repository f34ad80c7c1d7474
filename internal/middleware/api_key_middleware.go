package middleware

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"keyguard/internal/auth"
	"keyguard/internal/models"
	"keyguard/internal/utils"
)

// KeyValidator authenticates raw API keys
type KeyValidator interface {
	Validate(ctx context.Context, raw string, opts auth.ValidateOptions) (*auth.Principal, error)
}

// SessionAuthenticator resolves session tokens to owners
type SessionAuthenticator interface {
	Authenticate(ctx context.Context, token string) (*models.Owner, error)
}

// UsageSink accepts usage events without blocking the request
type UsageSink interface {
	Enqueue(ctx context.Context, ev models.UsageEvent)
}

// Authenticator builds the authentication middlewares. Sessions and usage
// are optional.
type Authenticator struct {
	keys     KeyValidator
	sessions SessionAuthenticator
	usage    UsageSink
	logger   *utils.Logger
	now      func() time.Time
}

// NewAuthenticator creates an authenticator
func NewAuthenticator(keys KeyValidator, sessions SessionAuthenticator, usage UsageSink) *Authenticator {
	return &Authenticator{
		keys:     keys,
		sessions: sessions,
		usage:    usage,
		logger:   utils.NewLogger("http"),
		now:      time.Now,
	}
}

// RequireAPIKey admits only requests carrying a valid API key with scope.
// An empty scope skips the scope check.
func (a *Authenticator) RequireAPIKey(scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, source := ExtractAPIKey(r)
			if raw == "" {
				unauthorized(w, "missing_credentials", "API key authentication required")
				return
			}

			identity, err := a.authenticateKey(r, raw, source, scope)
			if err != nil {
				a.writeKeyError(w, err)
				return
			}

			a.admitKey(w, r, next, identity)
		})
	}
}

// RequireAuth admits requests with a valid API key or session token. A
// rejected API key falls back to the session token, except when the key was
// rate limited.
func (a *Authenticator) RequireAuth(scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var keyErr error
			if raw, source := ExtractAPIKey(r); raw != "" {
				identity, err := a.authenticateKey(r, raw, source, scope)
				if err == nil {
					a.admitKey(w, r, next, identity)
					return
				}
				if errors.Is(err, auth.ErrRateLimited) {
					a.writeKeyError(w, err)
					return
				}
				keyErr = err
			}

			if identity, ok := a.authenticateSession(r); ok {
				next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
				return
			}

			if keyErr != nil {
				a.writeKeyError(w, keyErr)
				return
			}
			if _, ok := SessionToken(r); ok {
				unauthorized(w, "invalid_session", "Invalid or expired session")
				return
			}
			unauthorized(w, "missing_credentials", "Authentication required")
		})
	}
}

func (a *Authenticator) authenticateKey(r *http.Request, raw, source, scope string) (*Identity, error) {
	principal, err := a.keys.Validate(r.Context(), raw, auth.ValidateOptions{RequiredScope: scope})
	if err != nil {
		return nil, err
	}

	a.logger.Debug("API key authenticated", "key_id", principal.Key.ID, "prefix", principal.Key.KeyPrefix, "source", source)
	return &Identity{
		Owner:  principal.Owner,
		Key:    principal.Key,
		Limits: principal.Limits,
		Method: MethodAPIKey,
	}, nil
}

// admitKey sets the limit headers, queues the usage event and calls next
func (a *Authenticator) admitKey(w http.ResponseWriter, r *http.Request, next http.Handler, identity *Identity) {
	SetRateLimitHeaders(w, identity.Limits)

	if a.usage != nil {
		a.usage.Enqueue(r.Context(), models.UsageEvent{
			APIKeyID:  identity.Key.ID,
			Timestamp: a.now().UTC(),
			ClientIP:  utils.ClientIP(r),
			UserAgent: r.UserAgent(),
			Path:      r.URL.Path,
		})
	}

	next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
}

// writeKeyError maps validation failures to responses
func (a *Authenticator) writeKeyError(w http.ResponseWriter, err error) {
	var rlErr *auth.RateLimitError
	var scopeErr *auth.ScopeError

	switch {
	case errors.As(err, &rlErr):
		a.logger.Warn("API key rate limited", "window", rlErr.Window, "limit", rlErr.Limit)
		SetRateLimitHeaders(w, rlErr.Limits)
		w.Header().Set("Retry-After", strconv.Itoa(rlErr.RetryAfter))
		utils.RespondWithErrorCode(w, http.StatusTooManyRequests, "rate_limit_exceeded", rlErr.Error())
	case errors.As(err, &scopeErr):
		a.logger.Warn("API key lacks scope", "scope", scopeErr.Required)
		utils.RespondWithErrorCode(w, http.StatusForbidden, "insufficient_scope", scopeErr.Error())
	case errors.Is(err, auth.ErrInvalidFormat):
		unauthorized(w, "invalid_api_key", "Invalid API key format")
	case errors.Is(err, auth.ErrKeyNotFound):
		a.logger.Warn("API key not found")
		unauthorized(w, "invalid_api_key", "Invalid API key")
	case errors.Is(err, auth.ErrKeyInactive):
		a.logger.Warn("Inactive API key used")
		unauthorized(w, "api_key_inactive", "API key is inactive")
	case errors.Is(err, auth.ErrKeyExpired):
		a.logger.Warn("Expired API key used")
		unauthorized(w, "api_key_expired", "API key has expired")
	default:
		a.logger.Error("API key authentication error", "error", err)
		unauthorized(w, "authentication_failed", "Authentication failed")
	}
}

func unauthorized(w http.ResponseWriter, code, message string) {
	w.Header().Set("WWW-Authenticate", "Bearer")
	utils.RespondWithErrorCode(w, http.StatusUnauthorized, code, message)
}
