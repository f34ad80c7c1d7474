package httpapi

import (
	"errors"
	"net/http"

	"keyguard/internal/auth"
	"keyguard/internal/queue"
	"keyguard/internal/utils"
)

var logger = utils.NewLogger("http")

// respondError maps service errors to HTTP responses. Only unexpected
// errors become 500s.
func respondError(w http.ResponseWriter, err error) {
	var validationErr *auth.ValidationError
	var maxKeysErr *auth.MaxKeysError
	var scopeErr *auth.ScopeError

	switch {
	case errors.As(err, &validationErr):
		utils.RespondWithErrorCode(w, http.StatusBadRequest, "invalid_input", validationErr.Error())
	case errors.As(err, &maxKeysErr):
		utils.RespondWithErrorCode(w, http.StatusBadRequest, "max_keys_reached", maxKeysErr.Error())
	case errors.As(err, &scopeErr):
		utils.RespondWithErrorCode(w, http.StatusForbidden, "insufficient_scope", scopeErr.Error())
	case errors.Is(err, auth.ErrDuplicateName):
		utils.RespondWithErrorCode(w, http.StatusConflict, "duplicate_name", err.Error())
	case errors.Is(err, auth.ErrKeyNotFound):
		utils.RespondWithErrorCode(w, http.StatusNotFound, "not_found", "API key not found")
	case errors.Is(err, queue.ErrDeadLetterNotFound):
		utils.RespondWithErrorCode(w, http.StatusNotFound, "not_found", "Item not found")
	default:
		logger.Error("Request failed", "error", err)
		utils.RespondWithErrorCode(w, http.StatusInternalServerError, "internal_error", "Internal server error")
	}
}
