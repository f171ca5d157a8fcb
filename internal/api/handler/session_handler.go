package handler

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/learnhub/offline-sync/internal/session"
)

// SessionHandler exposes the cached session state and a manual refresh
// trigger. The refresh goes through the coordinator, so a concurrent cycle
// started by a sibling agent is joined rather than duplicated.
type SessionHandler struct {
	cache  *session.Cache
	coord  *session.Coordinator
	logger *zap.Logger
}

func NewSessionHandler(cache *session.Cache, coord *session.Coordinator, logger *zap.Logger) *SessionHandler {
	return &SessionHandler{cache: cache, coord: coord, logger: logger}
}

// Get handles GET /api/v1/session
//
// @Summary  Cached session state
// @Tags     session
// @Produce  json
// @Success  200  {object}  map[string]any
// @Router   /api/v1/session [get]
func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"active":              h.cache.HasActiveSession(),
		"user_id":             h.cache.Identity(),
		"refresh_in_progress": h.coord.InProgress(),
	})
}

// Refresh handles POST /api/v1/session/refresh
//
// @Summary  Force a session refresh
// @Tags     session
// @Produce  json
// @Success  200  {object}  map[string]bool
// @Failure  504  {object}  map[string]string
// @Router   /api/v1/session/refresh [post]
func (h *SessionHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	ok, err := h.coord.Refresh(r.Context())
	if err != nil {
		h.logger.Warn("manual session refresh failed", zap.Error(err))
		respondError(w, http.StatusGatewayTimeout, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"success": ok})
}
