package handler

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/learnhub/offline-sync/internal/producer"
)

// ProgressHandler accepts progress mutations from the local UI and hands
// them to the syncer, which decides between immediate delivery and
// buffering.
type ProgressHandler struct {
	syncer *producer.ProgressSyncer
	logger *zap.Logger
}

func NewProgressHandler(syncer *producer.ProgressSyncer, logger *zap.Logger) *ProgressHandler {
	return &ProgressHandler{syncer: syncer, logger: logger}
}

type progressEventRequest struct {
	UserID   string  `json:"user_id"`
	CourseID string  `json:"course_id"`
	LessonID string  `json:"lesson_id"`
	Position float64 `json:"position_seconds"`
	Done     bool    `json:"done,omitempty"`
}

type progressSnapshotRequest struct {
	UserID           string   `json:"user_id"`
	CourseID         string   `json:"course_id"`
	CompletedLessons []string `json:"completed_lessons"`
	PercentComplete  float64  `json:"percent_complete"`
}

// CreateEvent handles POST /api/v1/progress/events
//
// @Summary  Record a progress event
// @Tags     progress
// @Accept   json
// @Produce  json
// @Success  202  {object}  map[string]bool  "queued: buffered for later delivery"
// @Success  200  {object}  map[string]bool  "queued=false: delivered immediately"
// @Failure  400  {object}  map[string]string
// @Router   /api/v1/progress/events [post]
func (h *ProgressHandler) CreateEvent(w http.ResponseWriter, r *http.Request) {
	var req progressEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.UserID == "" || req.CourseID == "" || req.LessonID == "" {
		respondError(w, http.StatusBadRequest, "user_id, course_id and lesson_id are required")
		return
	}

	queued, err := h.syncer.SyncEvent(r.Context(), req.UserID, req.CourseID, producer.ProgressEvent{
		LessonID: req.LessonID,
		Position: req.Position,
		Done:     req.Done,
	})
	if err != nil {
		h.logger.Warn("progress event rejected", zap.Error(err))
		mapError(w, err)
		return
	}

	status := http.StatusOK
	if queued {
		status = http.StatusAccepted
	}
	respondJSON(w, status, map[string]bool{"queued": queued})
}

// CreateSnapshot handles POST /api/v1/progress/snapshots
//
// @Summary  Record an aggregated progress snapshot
// @Tags     progress
// @Accept   json
// @Produce  json
// @Success  202  {object}  map[string]bool
// @Success  200  {object}  map[string]bool
// @Failure  400  {object}  map[string]string
// @Router   /api/v1/progress/snapshots [post]
func (h *ProgressHandler) CreateSnapshot(w http.ResponseWriter, r *http.Request) {
	var req progressSnapshotRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.UserID == "" || req.CourseID == "" {
		respondError(w, http.StatusBadRequest, "user_id and course_id are required")
		return
	}

	queued, err := h.syncer.SyncSnapshot(r.Context(), req.UserID, req.CourseID, producer.ProgressSnapshot{
		CompletedLessons: req.CompletedLessons,
		PercentComplete:  req.PercentComplete,
	})
	if err != nil {
		h.logger.Warn("progress snapshot rejected", zap.Error(err))
		mapError(w, err)
		return
	}

	status := http.StatusOK
	if queued {
		status = http.StatusAccepted
	}
	respondJSON(w, status, map[string]bool{"queued": queued})
}
