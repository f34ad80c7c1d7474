package httpapi

import (
	"net/http"

	"keyguard/internal/auth"
	"keyguard/internal/middleware"
	"keyguard/internal/utils"
)

// AdminHandler handles superuser endpoints
type AdminHandler struct {
	manager *auth.Manager
	usage   *auth.UsageWorker
}

// NewAdminHandler creates a new admin handler. usage may be nil when no
// usage worker runs.
func NewAdminHandler(manager *auth.Manager, usage *auth.UsageWorker) *AdminHandler {
	return &AdminHandler{manager: manager, usage: usage}
}

// ListKeys handles GET /admin/api-keys
func (h *AdminHandler) ListKeys(w http.ResponseWriter, r *http.Request) {
	page, err := h.manager.ListAll(r.Context(), parseListOptions(r))
	if err != nil {
		respondError(w, err)
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, toListResponse(page))
}

// ResetLimits handles POST /admin/api-keys/{id}/reset-limits
func (h *AdminHandler) ResetLimits(w http.ResponseWriter, r *http.Request) {
	id, ok := parseKeyID(w, r)
	if !ok {
		return
	}

	if err := h.manager.ResetLimits(r.Context(), id); err != nil {
		respondError(w, err)
		return
	}

	admin, _ := middleware.GetOwner(r.Context())
	logger.Info("Rate limits reset", "key_id", id, "admin_id", admin.ID)
	utils.RespondWithJSON(w, http.StatusOK, map[string]string{
		"message":    "Rate limits reset",
		"api_key_id": id.String(),
	})
}
