package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/learnhub/offline-sync/internal/domain"
)

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}

// mapError translates domain sentinel errors to HTTP status codes.
// All mapping lives here so individual handlers stay concise.
func mapError(w http.ResponseWriter, err error) {
	var apiErr *domain.APIError

	switch {
	case errors.Is(err, domain.ErrNotFound):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrInvalidKind),
		errors.Is(err, domain.ErrInvalidPriority),
		errors.Is(err, domain.ErrMissingIdempotencyKey):
		respondError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, domain.ErrNotInitialized):
		respondError(w, http.StatusServiceUnavailable, err.Error())
	case errors.As(err, &apiErr):
		// Backend outcomes pass through with their original status when one
		// was observed; pure transport failures become 502.
		if apiErr.Status > 0 {
			respondError(w, apiErr.Status, apiErr.Error())
			return
		}
		respondError(w, http.StatusBadGateway, apiErr.Error())
	default:
		respondError(w, http.StatusInternalServerError, "internal server error")
	}
}
