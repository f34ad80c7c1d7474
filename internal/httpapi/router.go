package httpapi

import (
	"net/http"

	"keyguard/internal/app"
	"keyguard/internal/auth"
	"keyguard/internal/logging"
	"keyguard/internal/middleware"
	"keyguard/internal/ratelimit"
)

// Dependencies aggregates all services the HTTP layer needs.
// UsageWorker, Sessions, IPLimiter, AccessLog and Metrics are optional.
type Dependencies struct {
	Manager        *auth.Manager
	Sessions       *auth.SessionManager
	UsageWorker    *auth.UsageWorker
	IPLimiter      *ratelimit.IPLimiter
	AccessLog      *logging.AccessLogger
	Metrics        http.Handler
	HealthChecks   []app.HealthCheck
	LoginPerMinute int
}

// NewDependencies exposes the assembled services to the HTTP layer
func NewDependencies(s *app.Services) *Dependencies {
	return &Dependencies{
		Manager:        s.Manager,
		Sessions:       s.Sessions,
		UsageWorker:    s.UsageWorker,
		IPLimiter:      s.IPLimiter,
		AccessLog:      s.AccessLog,
		Metrics:        s.Metrics.Handler(),
		HealthChecks:   s.HealthChecks(),
		LoginPerMinute: s.Config.RateLimit.LoginPerMinute,
	}
}

// NewRouter creates the HTTP handler with every route registered
func NewRouter(deps *Dependencies) http.Handler {
	// Typed nils must not reach the interfaces
	var sessions middleware.SessionAuthenticator
	var parser middleware.SessionParser
	if deps.Sessions != nil {
		sessions = deps.Sessions
		parser = deps.Sessions
	}
	var usage middleware.UsageSink
	if deps.UsageWorker != nil {
		usage = deps.UsageWorker
	}
	authn := middleware.NewAuthenticator(deps.Manager, sessions, usage)

	mux := http.NewServeMux()
	registerRoutes(mux, deps, authn)

	var handler http.Handler = mux
	if deps.IPLimiter != nil {
		handler = middleware.IPRateLimit(deps.IPLimiter, parser)(handler)
	}
	if deps.AccessLog != nil {
		handler = deps.AccessLog.Middleware(handler)
	}
	return handler
}

func registerRoutes(mux *http.ServeMux, deps *Dependencies, authn *middleware.Authenticator) {
	keys := NewAPIKeysHandler(deps.Manager)
	reader := authn.RequireAuth(auth.ScopeRead)
	changes := authn.RequireAuth(auth.ScopeAdmin)

	// Owner key management - session, or an API key holding admin for changes
	mux.Handle("POST /api-keys", changes(http.HandlerFunc(keys.Create)))
	mux.Handle("GET /api-keys", reader(http.HandlerFunc(keys.List)))
	mux.Handle("GET /api-keys/{id}", reader(http.HandlerFunc(keys.Get)))
	mux.Handle("PUT /api-keys/{id}", changes(http.HandlerFunc(keys.Update)))
	mux.Handle("DELETE /api-keys/{id}", changes(http.HandlerFunc(keys.Delete)))
	mux.Handle("POST /api-keys/{id}/rotate", changes(http.HandlerFunc(keys.Rotate)))
	mux.Handle("GET /api-keys/{id}/usage", reader(http.HandlerFunc(keys.Usage)))
	mux.Handle("GET /api-keys/{id}/rate-limit", reader(http.HandlerFunc(keys.RateLimitStatus)))

	// Superuser endpoints
	admin := NewAdminHandler(deps.Manager, deps.UsageWorker)
	superuser := func(h http.HandlerFunc) http.Handler {
		return authn.RequireAuth(auth.ScopeAdmin)(middleware.RequireSuperuser(h))
	}
	mux.Handle("GET /admin/api-keys", superuser(admin.ListKeys))
	mux.Handle("POST /admin/api-keys/{id}/reset-limits", superuser(admin.ResetLimits))
	mux.Handle("GET /admin/usage/dead-letters", superuser(admin.ListDeadLetters))
	mux.Handle("POST /admin/usage/dead-letters/{id}/retry", superuser(admin.RetryDeadLetter))

	// Password login - public, guarded per client address
	if deps.Sessions != nil {
		login := NewAuthHandler(deps.Sessions)
		perMinute := deps.LoginPerMinute
		if perMinute <= 0 {
			perMinute = 5
		}
		mux.Handle("POST /auth/login", middleware.LoginRateLimit(perMinute)(http.HandlerFunc(login.Login)))
	}

	// Identity of the authenticated caller
	mux.Handle("GET /v1/whoami", authn.RequireAuth("")(http.HandlerFunc(handleWhoAmI)))

	// Health check endpoint - public
	mux.Handle("GET /health", NewHealthHandler(deps.HealthChecks))

	// Metrics endpoint - public
	if deps.Metrics != nil {
		mux.Handle("GET /metrics", deps.Metrics)
	}
}
