package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/learnhub/offline-sync/internal/queue"
	"github.com/learnhub/offline-sync/internal/store"
)

// QueueHandler exposes the buffered mutation queue for inspection and
// manual intervention.
type QueueHandler struct {
	q      *queue.Queue
	qs     *store.QueueStore
	logger *zap.Logger
}

func NewQueueHandler(q *queue.Queue, qs *store.QueueStore, logger *zap.Logger) *QueueHandler {
	return &QueueHandler{q: q, qs: qs, logger: logger}
}

// List handles GET /api/v1/queue
//
// @Summary  Inspect the buffered queue
// @Tags     queue
// @Produce  json
// @Success  200  {object}  map[string]any
// @Router   /api/v1/queue [get]
func (h *QueueHandler) List(w http.ResponseWriter, r *http.Request) {
	items := h.q.Snapshot()
	high, medium, low := h.q.Depths()

	respondJSON(w, http.StatusOK, map[string]any{
		"items": items,
		"total": len(items),
		"depths": map[string]int{
			"high":   high,
			"medium": medium,
			"low":    low,
		},
		"storage_degraded": h.qs.Degraded(),
	})
}

// Remove handles DELETE /api/v1/queue/items/{id}
//
// @Summary  Remove one buffered item
// @Tags     queue
// @Param    id   path  string  true  "Item UUID"
// @Success  204
// @Failure  404  {object}  map[string]string
// @Router   /api/v1/queue/items/{id} [delete]
func (h *QueueHandler) Remove(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.q.Remove(id); err != nil {
		mapError(w, err)
		return
	}
	h.logger.Info("queued item removed by operator", zap.String("id", id))
	w.WriteHeader(http.StatusNoContent)
}

// Clear handles DELETE /api/v1/queue
//
// @Summary  Drop every buffered item
// @Tags     queue
// @Success  204
// @Router   /api/v1/queue [delete]
func (h *QueueHandler) Clear(w http.ResponseWriter, r *http.Request) {
	h.q.Clear()
	h.logger.Info("queue cleared by operator")
	w.WriteHeader(http.StatusNoContent)
}
