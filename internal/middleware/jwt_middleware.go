package middleware

import (
	"errors"
	"net/http"

	"keyguard/internal/auth"
	"keyguard/internal/utils"
)

// RequireSession admits only requests with a valid session token
func (a *Authenticator) RequireSession() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, ok := a.authenticateSession(r)
			if !ok {
				unauthorized(w, "invalid_session", "Invalid or expired session")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
		})
	}
}

// authenticateSession resolves the Bearer session token, if any
func (a *Authenticator) authenticateSession(r *http.Request) (*Identity, bool) {
	if a.sessions == nil {
		return nil, false
	}
	token, ok := SessionToken(r)
	if !ok {
		return nil, false
	}

	owner, err := a.sessions.Authenticate(r.Context(), token)
	if err != nil {
		if !errors.Is(err, auth.ErrInvalidSession) {
			a.logger.Error("Session authentication error", "error", err)
		}
		return nil, false
	}

	return &Identity{Owner: owner, Method: MethodSession}, true
}

// RequireSuperuser must run after an authentication middleware
func RequireSuperuser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		owner, ok := GetOwner(r.Context())
		if !ok {
			unauthorized(w, "missing_credentials", "Authentication required")
			return
		}
		if !owner.IsSuperuser {
			utils.RespondWithErrorCode(w, http.StatusForbidden, "forbidden", "Superuser access required")
			return
		}
		next.ServeHTTP(w, r)
	})
}
