package httpapi

import (
	"net/http"
	"strconv"

	"keyguard/internal/queue"
	"keyguard/internal/utils"
)

const defaultDeadLetterPage = 100

// DeadLettersResponse lists usage events that exhausted their retries
type DeadLettersResponse struct {
	Items       []queue.DeadLetterItem `json:"items"`
	QueueLength int                    `json:"queue_length"`
}

// ListDeadLetters handles GET /admin/usage/dead-letters
func (h *AdminHandler) ListDeadLetters(w http.ResponseWriter, r *http.Request) {
	if h.usage == nil {
		utils.RespondWithErrorCode(w, http.StatusServiceUnavailable, "usage_disabled", "Usage recording is not enabled")
		return
	}

	limit := defaultDeadLetterPage
	if v, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && v > 0 {
		limit = v
	}

	items, err := h.usage.DeadLetterItems(r.Context(), limit)
	if err != nil {
		respondError(w, err)
		return
	}
	if items == nil {
		items = []queue.DeadLetterItem{}
	}

	length, err := h.usage.QueueLength(r.Context())
	if err != nil {
		logger.Warn("Failed to read usage queue length", "error", err)
	}

	utils.RespondWithJSON(w, http.StatusOK, DeadLettersResponse{Items: items, QueueLength: length})
}

// RetryDeadLetter handles POST /admin/usage/dead-letters/{id}/retry
func (h *AdminHandler) RetryDeadLetter(w http.ResponseWriter, r *http.Request) {
	if h.usage == nil {
		utils.RespondWithErrorCode(w, http.StatusServiceUnavailable, "usage_disabled", "Usage recording is not enabled")
		return
	}

	id := r.PathValue("id")
	if err := h.usage.RetryDeadLetterItem(r.Context(), id); err != nil {
		respondError(w, err)
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, map[string]string{"message": "Item re-enqueued", "id": id})
}
