package httpapi

import (
	"context"
	"net/http"
	"time"

	"keyguard/internal/app"
	"keyguard/internal/middleware"
	"keyguard/internal/utils"
)

const healthTimeout = 2 * time.Second

// HealthResponse reports the state of every backing service
type HealthResponse struct {
	Status     string            `json:"status"`
	Components map[string]string `json:"components"`
}

// NewHealthHandler returns a handler that runs every check. Any failure
// turns the response into a 503.
func NewHealthHandler(checks []app.HealthCheck) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
		defer cancel()

		resp := HealthResponse{Status: "healthy", Components: make(map[string]string, len(checks))}
		status := http.StatusOK
		for _, check := range checks {
			if err := check.Check(ctx); err != nil {
				resp.Components[check.Name] = err.Error()
				resp.Status = "unhealthy"
				status = http.StatusServiceUnavailable
				continue
			}
			resp.Components[check.Name] = "ok"
		}

		utils.RespondWithJSON(w, status, resp)
	})
}

// WhoAmIResponse describes the authenticated caller
type WhoAmIResponse struct {
	Owner      OwnerResponse   `json:"owner"`
	AuthMethod string          `json:"auth_method"`
	APIKey     *APIKeyResponse `json:"api_key,omitempty"`
}

func handleWhoAmI(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.GetIdentity(r.Context())
	if !ok || identity.Owner == nil {
		utils.RespondWithErrorCode(w, http.StatusUnauthorized, "missing_credentials", "Authentication required")
		return
	}

	resp := WhoAmIResponse{
		Owner: OwnerResponse{
			ID:               identity.Owner.ID.String(),
			Email:            identity.Owner.Email,
			SubscriptionTier: identity.Owner.SubscriptionTier,
			IsSuperuser:      identity.Owner.IsSuperuser,
		},
		AuthMethod: identity.Method,
	}
	if identity.Key != nil {
		key := toAPIKeyResponse(identity.Key)
		resp.APIKey = &key
	}

	utils.RespondWithJSON(w, http.StatusOK, resp)
}
