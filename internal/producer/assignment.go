package producer

import (
	"context"
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/learnhub/offline-sync/internal/domain"
	"github.com/learnhub/offline-sync/internal/idempotency"
	"github.com/learnhub/offline-sync/internal/queue"
	"github.com/learnhub/offline-sync/internal/transport"
)

// AssignmentRequest asks an organization to assign a course to the user.
type AssignmentRequest struct {
	CourseID string `json:"course_id"`
	Note     string `json:"note,omitempty"`
}

// AssignmentRequester delivers assignment requests, buffering them while
// offline. Requests are high priority: the user is actively waiting on the
// outcome.
type AssignmentRequester struct {
	pipe   transport.Doer
	q      *queue.Queue
	logger *zap.Logger
}

func NewAssignmentRequester(pipe transport.Doer, q *queue.Queue, logger *zap.Logger) *AssignmentRequester {
	return &AssignmentRequester{pipe: pipe, q: q, logger: logger}
}

// Request tries to submit immediately; queued=true means it was buffered.
func (r *AssignmentRequester) Request(ctx context.Context, ownerID, orgID string, req AssignmentRequest) (queued bool, err error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return false, err
	}

	key := idempotency.Key(idempotency.ActionCourseAssign, map[string]string{
		"courseId": req.CourseID,
		"orgId":    orgID,
	})
	in := domain.ItemInput{
		Kind:           domain.KindAssignmentRequest,
		OwnerID:        ownerID,
		ScopeID:        orgID,
		Payload:        payload,
		Priority:       domain.PriorityHigh,
		IdempotencyKey: key,
	}

	_, err = r.pipe.Do(ctx, assignmentPath(orgID), &transport.Call{
		Method:  http.MethodPost,
		Headers: map[string]string{"Idempotency-Key": key},
		Body:    payload,
	})
	if err == nil {
		return false, nil
	}
	if !domain.IsRetriable(err) {
		return false, err
	}

	r.logger.Info("assignment request failed, queueing",
		zap.String("org_id", orgID),
		zap.Error(err),
	)
	if _, qErr := r.q.Enqueue(in); qErr != nil {
		return false, qErr
	}
	return true, nil
}

// Deliver is the drain handler for assignment-request items.
func (r *AssignmentRequester) Deliver(ctx context.Context, item domain.QueueItem) (bool, error) {
	_, err := r.pipe.Do(ctx, assignmentPath(item.ScopeID), &transport.Call{
		Method:  http.MethodPost,
		Headers: map[string]string{"Idempotency-Key": item.IdempotencyKey},
		Body:    item.Payload,
	})
	return drainOutcome(r.logger, item, err)
}

func assignmentPath(orgID string) string {
	return "/api/v1/orgs/" + orgID + "/assignments"
}
