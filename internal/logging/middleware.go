package logging

import (
	"context"
	"net/http"
	"time"

	"keyguard/internal/utils"
)

type callerKey struct{}

// caller is filled in by the authentication layer further down the chain
type caller struct {
	method   string
	ownerID  string
	apiKeyID string
}

// Annotate records who the request was authenticated as. It is a no-op
// when the request is not passing through an access logger.
func Annotate(ctx context.Context, method, ownerID, apiKeyID string) {
	if c, ok := ctx.Value(callerKey{}).(*caller); ok {
		c.method, c.ownerID, c.apiKeyID = method, ownerID, apiKeyID
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// Middleware writes one entry per request once the handler returns
func (l *AccessLogger) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		c := &caller{}
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r.WithContext(context.WithValue(r.Context(), callerKey{}, c)))

		l.Log(AccessEntry{
			Timestamp:  start.UTC(),
			Method:     r.Method,
			Path:       r.URL.Path,
			Status:     rec.status,
			DurationMs: time.Since(start).Milliseconds(),
			ClientIP:   utils.ClientIP(r),
			UserAgent:  r.UserAgent(),
			AuthMethod: c.method,
			OwnerID:    c.ownerID,
			APIKeyID:   c.apiKeyID,
		})
	})
}
