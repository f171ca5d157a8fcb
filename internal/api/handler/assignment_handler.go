package handler

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/learnhub/offline-sync/internal/producer"
)

// AssignmentHandler accepts course-assignment requests from the local UI.
type AssignmentHandler struct {
	requester *producer.AssignmentRequester
	logger    *zap.Logger
}

func NewAssignmentHandler(requester *producer.AssignmentRequester, logger *zap.Logger) *AssignmentHandler {
	return &AssignmentHandler{requester: requester, logger: logger}
}

type assignmentRequest struct {
	UserID   string `json:"user_id"`
	OrgID    string `json:"org_id"`
	CourseID string `json:"course_id"`
	Note     string `json:"note,omitempty"`
}

// Create handles POST /api/v1/assignments
//
// @Summary  Request a course assignment
// @Tags     assignments
// @Accept   json
// @Produce  json
// @Success  202  {object}  map[string]bool  "queued: buffered for later delivery"
// @Success  200  {object}  map[string]bool  "queued=false: delivered immediately"
// @Failure  400  {object}  map[string]string
// @Router   /api/v1/assignments [post]
func (h *AssignmentHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req assignmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.UserID == "" || req.OrgID == "" || req.CourseID == "" {
		respondError(w, http.StatusBadRequest, "user_id, org_id and course_id are required")
		return
	}

	queued, err := h.requester.Request(r.Context(), req.UserID, req.OrgID, producer.AssignmentRequest{
		CourseID: req.CourseID,
		Note:     req.Note,
	})
	if err != nil {
		h.logger.Warn("assignment request rejected",
			zap.String("org_id", req.OrgID),
			zap.Error(err),
		)
		mapError(w, err)
		return
	}

	status := http.StatusOK
	if queued {
		status = http.StatusAccepted
	}
	respondJSON(w, status, map[string]bool{"queued": queued})
}
