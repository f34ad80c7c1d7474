package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"keyguard/internal/auth"
	"keyguard/internal/middleware"
	"keyguard/internal/models"
	"keyguard/internal/ratelimit"
	"keyguard/internal/utils"
)

const rawKeyWarning = "Store this key securely. It will not be shown again."

// APIKeysHandler handles the caller's own API keys
type APIKeysHandler struct {
	manager *auth.Manager
}

// NewAPIKeysHandler creates a new API keys handler
func NewAPIKeysHandler(manager *auth.Manager) *APIKeysHandler {
	return &APIKeysHandler{manager: manager}
}

// APIKeyResponse represents an API key response (without secret or hash)
type APIKeyResponse struct {
	ID                 string          `json:"id"`
	OwnerID            string          `json:"owner_id"`
	Name               string          `json:"name"`
	Description        *string         `json:"description,omitempty"`
	KeyPrefix          string          `json:"key_prefix"`
	Scopes             []string        `json:"scopes"`
	IsActive           bool            `json:"is_active"`
	ExpiresAt          *string         `json:"expires_at,omitempty"`
	RateLimitPerMinute int             `json:"rate_limit_per_minute"`
	RateLimitPerHour   int             `json:"rate_limit_per_hour"`
	RateLimitPerDay    int             `json:"rate_limit_per_day"`
	TotalRequests      int64           `json:"total_requests"`
	LastUsedAt         *string         `json:"last_used_at,omitempty"`
	Metadata           models.Metadata `json:"metadata,omitempty"`
	CreatedAt          string          `json:"created_at"`
	UpdatedAt          string          `json:"updated_at"`
}

// APIKeySecretResponse is returned once when a key is created or rotated
type APIKeySecretResponse struct {
	APIKeyResponse
	Key     string `json:"key"`
	Message string `json:"message"`
}

// ListAPIKeysResponse is one page of keys
type ListAPIKeysResponse struct {
	Items      []APIKeyResponse `json:"items"`
	TotalCount int              `json:"total_count"`
	Page       int              `json:"page"`
	PageSize   int              `json:"page_size"`
}

// UsageResponse reports a key's request counters
type UsageResponse struct {
	APIKeyID string `json:"api_key_id"`
	auth.Usage
	LastUsedIP *string `json:"last_used_ip,omitempty"`
}

// WindowStatus describes one rate limit window
type WindowStatus struct {
	Window     string `json:"window"`
	Limit      int    `json:"limit"`
	Count      int    `json:"count"`
	Remaining  int    `json:"remaining"`
	ResetAt    string `json:"reset_at"`
	RetryAfter int    `json:"retry_after,omitempty"`
	Exceeded   bool   `json:"exceeded"`
}

// RateLimitStatusResponse reports every window of a key
type RateLimitStatusResponse struct {
	APIKeyID string         `json:"api_key_id"`
	Windows  []WindowStatus `json:"windows"`
	Degraded bool           `json:"degraded"`
}

// Create handles POST /api-keys
func (h *APIKeysHandler) Create(w http.ResponseWriter, r *http.Request) {
	owner, ok := requireOwner(w, r)
	if !ok {
		return
	}

	var req auth.CreateKeyParams
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondWithErrorCode(w, http.StatusBadRequest, "invalid_input", "Invalid request body")
		return
	}

	if caller := callerKey(r); caller != nil {
		scopes := req.Scopes
		if len(scopes) == 0 {
			scopes = auth.DefaultScopes()
		}
		if err := auth.CheckGrant(caller, scopes); err != nil {
			respondError(w, err)
			return
		}
	}

	raw, key, err := h.manager.Create(r.Context(), owner, req)
	if err != nil {
		respondError(w, err)
		return
	}

	logger.Info("API key created", "key_id", key.ID, "owner_id", owner.ID)
	utils.RespondWithJSON(w, http.StatusCreated, APIKeySecretResponse{
		APIKeyResponse: toAPIKeyResponse(key),
		Key:            raw,
		Message:        rawKeyWarning,
	})
}

// List handles GET /api-keys
func (h *APIKeysHandler) List(w http.ResponseWriter, r *http.Request) {
	owner, ok := requireOwner(w, r)
	if !ok {
		return
	}

	page, err := h.manager.List(r.Context(), owner, parseListOptions(r))
	if err != nil {
		respondError(w, err)
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, toListResponse(page))
}

// Get handles GET /api-keys/{id}
func (h *APIKeysHandler) Get(w http.ResponseWriter, r *http.Request) {
	owner, id, ok := ownerAndKeyID(w, r)
	if !ok {
		return
	}

	key, err := h.manager.Get(r.Context(), owner, id)
	if err != nil {
		respondError(w, err)
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, toAPIKeyResponse(key))
}

// Update handles PUT /api-keys/{id}
func (h *APIKeysHandler) Update(w http.ResponseWriter, r *http.Request) {
	owner, id, ok := ownerAndKeyID(w, r)
	if !ok {
		return
	}

	var req auth.UpdateKeyParams
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondWithErrorCode(w, http.StatusBadRequest, "invalid_input", "Invalid request body")
		return
	}

	if caller := callerKey(r); caller != nil && req.Scopes != nil {
		if err := auth.CheckGrant(caller, req.Scopes); err != nil {
			respondError(w, err)
			return
		}
	}

	key, err := h.manager.Update(r.Context(), owner, id, req)
	if err != nil {
		respondError(w, err)
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, toAPIKeyResponse(key))
}

// Delete handles DELETE /api-keys/{id}
func (h *APIKeysHandler) Delete(w http.ResponseWriter, r *http.Request) {
	owner, id, ok := ownerAndKeyID(w, r)
	if !ok {
		return
	}

	if err := h.manager.Delete(r.Context(), owner, id); err != nil {
		respondError(w, err)
		return
	}

	logger.Info("API key deleted", "key_id", id, "owner_id", owner.ID)
	w.WriteHeader(http.StatusNoContent)
}

// Rotate handles POST /api-keys/{id}/rotate
func (h *APIKeysHandler) Rotate(w http.ResponseWriter, r *http.Request) {
	owner, id, ok := ownerAndKeyID(w, r)
	if !ok {
		return
	}

	// Rotating hands out a secret carrying the target's scopes
	if caller := callerKey(r); caller != nil {
		target, err := h.manager.Get(r.Context(), owner, id)
		if err != nil {
			respondError(w, err)
			return
		}
		if err := auth.CheckGrant(caller, target.Scopes); err != nil {
			respondError(w, err)
			return
		}
	}

	raw, key, err := h.manager.Rotate(r.Context(), owner, id)
	if err != nil {
		respondError(w, err)
		return
	}

	logger.Info("API key rotated", "key_id", key.ID, "owner_id", owner.ID)
	utils.RespondWithJSON(w, http.StatusOK, APIKeySecretResponse{
		APIKeyResponse: toAPIKeyResponse(key),
		Key:            raw,
		Message:        rawKeyWarning,
	})
}

// Usage handles GET /api-keys/{id}/usage
func (h *APIKeysHandler) Usage(w http.ResponseWriter, r *http.Request) {
	owner, id, ok := ownerAndKeyID(w, r)
	if !ok {
		return
	}

	key, err := h.manager.Get(r.Context(), owner, id)
	if err != nil {
		respondError(w, err)
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, UsageResponse{
		APIKeyID:   key.ID.String(),
		Usage:      h.manager.CurrentUsage(r.Context(), key),
		LastUsedIP: key.LastUsedIP,
	})
}

// RateLimitStatus handles GET /api-keys/{id}/rate-limit
func (h *APIKeysHandler) RateLimitStatus(w http.ResponseWriter, r *http.Request) {
	owner, id, ok := ownerAndKeyID(w, r)
	if !ok {
		return
	}

	key, err := h.manager.Get(r.Context(), owner, id)
	if err != nil {
		respondError(w, err)
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, toRateLimitStatus(key.ID, h.manager.RateLimitStatus(r.Context(), key)))
}

// callerKey is the API key the request authenticated with, nil for sessions
func callerKey(r *http.Request) *models.APIKey {
	if identity, ok := middleware.GetIdentity(r.Context()); ok {
		return identity.Key
	}
	return nil
}

func requireOwner(w http.ResponseWriter, r *http.Request) (*models.Owner, bool) {
	owner, ok := middleware.GetOwner(r.Context())
	if !ok {
		utils.RespondWithErrorCode(w, http.StatusUnauthorized, "missing_credentials", "Authentication required")
		return nil, false
	}
	return owner, true
}

func ownerAndKeyID(w http.ResponseWriter, r *http.Request) (*models.Owner, uuid.UUID, bool) {
	owner, ok := requireOwner(w, r)
	if !ok {
		return nil, uuid.Nil, false
	}
	id, ok := parseKeyID(w, r)
	return owner, id, ok
}

func parseKeyID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		utils.RespondWithErrorCode(w, http.StatusBadRequest, "invalid_input", "Invalid API key ID")
		return uuid.Nil, false
	}
	return id, true
}

func parseListOptions(r *http.Request) auth.ListOptions {
	q := r.URL.Query()
	opts := auth.ListOptions{}
	if v, err := strconv.Atoi(q.Get("page")); err == nil {
		opts.Page = v
	}
	if v, err := strconv.Atoi(q.Get("page_size")); err == nil {
		opts.PageSize = v
	}
	opts.IncludeInactive, _ = strconv.ParseBool(q.Get("include_inactive"))
	return opts
}

func toListResponse(page *auth.KeyPage) ListAPIKeysResponse {
	items := make([]APIKeyResponse, 0, len(page.Keys))
	for _, key := range page.Keys {
		items = append(items, toAPIKeyResponse(key))
	}
	return ListAPIKeysResponse{
		Items:      items,
		TotalCount: page.Total,
		Page:       page.Page,
		PageSize:   page.PageSize,
	}
}

// toAPIKeyResponse converts a models.APIKey to APIKeyResponse
func toAPIKeyResponse(key *models.APIKey) APIKeyResponse {
	scopes := []string(key.Scopes)
	if scopes == nil {
		scopes = []string{}
	}

	return APIKeyResponse{
		ID:                 key.ID.String(),
		OwnerID:            key.OwnerID.String(),
		Name:               key.Name,
		Description:        key.Description,
		KeyPrefix:          key.KeyPrefix,
		Scopes:             scopes,
		IsActive:           key.IsActive,
		ExpiresAt:          formatTime(key.ExpiresAt),
		RateLimitPerMinute: key.RateLimitPerMinute,
		RateLimitPerHour:   key.RateLimitPerHour,
		RateLimitPerDay:    key.RateLimitPerDay,
		TotalRequests:      key.TotalRequests,
		LastUsedAt:         formatTime(key.LastUsedAt),
		Metadata:           key.Metadata,
		CreatedAt:          key.CreatedAt.Format(time.RFC3339),
		UpdatedAt:          key.UpdatedAt.Format(time.RFC3339),
	}
}

func toRateLimitStatus(id uuid.UUID, results []ratelimit.WindowResult) RateLimitStatusResponse {
	resp := RateLimitStatusResponse{APIKeyID: id.String(), Windows: make([]WindowStatus, 0, len(results))}
	for _, res := range results {
		if res.Err != nil {
			resp.Degraded = true
		}
		resp.Windows = append(resp.Windows, WindowStatus{
			Window:     res.Window.Name,
			Limit:      res.Window.Limit,
			Count:      res.Count,
			Remaining:  res.Remaining,
			ResetAt:    res.ResetAt.UTC().Format(time.RFC3339),
			RetryAfter: res.RetryAfter,
			Exceeded:   !res.Allowed,
		})
	}
	return resp
}

func formatTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.UTC().Format(time.RFC3339)
	return &s
}
