package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"keyguard/internal/auth"
	"keyguard/internal/utils"
)

// AuthHandler handles password login
type AuthHandler struct {
	sessions *auth.SessionManager
}

// NewAuthHandler creates a new login handler
func NewAuthHandler(sessions *auth.SessionManager) *AuthHandler {
	return &AuthHandler{sessions: sessions}
}

// LoginRequest represents the login request body
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResponse carries the session token
type LoginResponse struct {
	AccessToken string        `json:"access_token"`
	TokenType   string        `json:"token_type"`
	ExpiresAt   string        `json:"expires_at"`
	Owner       OwnerResponse `json:"owner"`
}

// OwnerResponse describes an account
type OwnerResponse struct {
	ID               string `json:"id"`
	Email            string `json:"email"`
	SubscriptionTier string `json:"subscription_tier"`
	IsSuperuser      bool   `json:"is_superuser"`
}

// Login handles POST /auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondWithErrorCode(w, http.StatusBadRequest, "invalid_input", "Invalid request body")
		return
	}
	if req.Email == "" || req.Password == "" {
		utils.RespondWithErrorCode(w, http.StatusBadRequest, "invalid_input", "Email and password are required")
		return
	}

	token, expiresAt, owner, err := h.sessions.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidPassword) {
			logger.Warn("Login failed", "ip", utils.ClientIP(r))
			utils.RespondWithErrorCode(w, http.StatusUnauthorized, "invalid_credentials", "Invalid email or password")
			return
		}
		respondError(w, err)
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, LoginResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresAt:   expiresAt.UTC().Format(time.RFC3339),
		Owner: OwnerResponse{
			ID:               owner.ID.String(),
			Email:            owner.Email,
			SubscriptionTier: owner.SubscriptionTier,
			IsSuperuser:      owner.IsSuperuser,
		},
	})
}
