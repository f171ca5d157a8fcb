// Package producer holds the mutation sources that feed the queue: progress
// sync and course-assignment requests. Each producer tries the request
// pipeline synchronously and falls back to the queue only for retriable
// failures; auth and client errors surface to the caller immediately.
package producer

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/learnhub/offline-sync/internal/domain"
	"github.com/learnhub/offline-sync/internal/idempotency"
	"github.com/learnhub/offline-sync/internal/queue"
	"github.com/learnhub/offline-sync/internal/transport"
)

// ProgressEvent is one playback/progress tick inside a course.
type ProgressEvent struct {
	LessonID string  `json:"lesson_id"`
	Position float64 `json:"position_seconds"`
	Done     bool    `json:"done,omitempty"`
}

// ProgressSnapshot is the aggregated per-course progress state. Snapshots
// are last-write-wins upstream, so a buffered one going stale is harmless.
type ProgressSnapshot struct {
	CompletedLessons []string `json:"completed_lessons"`
	PercentComplete  float64  `json:"percent_complete"`
}

// ProgressSyncer delivers progress mutations, buffering them while offline.
type ProgressSyncer struct {
	pipe   transport.Doer
	q      *queue.Queue
	logger *zap.Logger
}

func NewProgressSyncer(pipe transport.Doer, q *queue.Queue, logger *zap.Logger) *ProgressSyncer {
	return &ProgressSyncer{pipe: pipe, q: q, logger: logger}
}

// SyncEvent tries to deliver the event immediately. Returns queued=true when
// the event was buffered for a later drain instead.
func (s *ProgressSyncer) SyncEvent(ctx context.Context, ownerID, courseID string, ev ProgressEvent) (queued bool, err error) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return false, err
	}

	key := idempotency.Key(idempotency.ActionProgressEvent, map[string]string{
		"courseId": courseID,
		"lessonId": ev.LessonID,
	})
	return s.tryOrEnqueue(ctx, domain.ItemInput{
		Kind:           domain.KindProgressEvent,
		OwnerID:        ownerID,
		ScopeID:        courseID,
		Payload:        payload,
		Priority:       domain.PriorityMedium,
		IdempotencyKey: key,
	})
}

// SyncSnapshot is SyncEvent for the aggregated course state. Low priority:
// a fresher snapshot supersedes it anyway.
func (s *ProgressSyncer) SyncSnapshot(ctx context.Context, ownerID, courseID string, snap ProgressSnapshot) (queued bool, err error) {
	payload, err := json.Marshal(snap)
	if err != nil {
		return false, err
	}

	key := idempotency.Key(idempotency.ActionProgressSnapshot, map[string]string{
		"courseId": courseID,
	})
	return s.tryOrEnqueue(ctx, domain.ItemInput{
		Kind:           domain.KindProgressSnapshot,
		OwnerID:        ownerID,
		ScopeID:        courseID,
		Payload:        payload,
		Priority:       domain.PriorityLow,
		IdempotencyKey: key,
	})
}

func (s *ProgressSyncer) tryOrEnqueue(ctx context.Context, in domain.ItemInput) (bool, error) {
	_, err := s.pipe.Do(ctx, progressPath(in.Kind, in.ScopeID), &transport.Call{
		Method:  http.MethodPost,
		Headers: map[string]string{"Idempotency-Key": in.IdempotencyKey},
		Body:    in.Payload,
	})
	if err == nil {
		return false, nil
	}
	if !domain.IsRetriable(err) {
		return false, err
	}

	s.logger.Info("progress delivery failed, queueing",
		zap.String("kind", string(in.Kind)),
		zap.String("course_id", in.ScopeID),
		zap.Error(err),
	)
	if _, qErr := s.q.Enqueue(in); qErr != nil {
		return false, qErr
	}
	return true, nil
}

// Deliver is the drain handler for both progress kinds. A client error means
// the item can never succeed; it is dropped so it cannot block the walk
// forever, which counts as processed.
func (s *ProgressSyncer) Deliver(ctx context.Context, item domain.QueueItem) (bool, error) {
	_, err := s.pipe.Do(ctx, progressPath(item.Kind, item.ScopeID), &transport.Call{
		Method:  http.MethodPost,
		Headers: map[string]string{"Idempotency-Key": item.IdempotencyKey},
		Body:    item.Payload,
	})
	return drainOutcome(s.logger, item, err)
}

func progressPath(kind domain.Kind, courseID string) string {
	if kind == domain.KindProgressSnapshot {
		return "/api/v1/courses/" + courseID + "/progress"
	}
	return "/api/v1/courses/" + courseID + "/progress/events"
}

// drainOutcome maps a pipeline result onto the drain handler contract.
// Success and permanent client failures both delete the item; everything
// else stops the walk so the backoff schedule applies.
func drainOutcome(logger *zap.Logger, item domain.QueueItem, err error) (bool, error) {
	if err == nil {
		return true, nil
	}
	var apiErr *domain.APIError
	if errors.As(err, &apiErr) && apiErr.Code == domain.CodeClientError {
		logger.Warn("buffered mutation rejected by server, dropping",
			zap.String("id", item.ID),
			zap.Int("status", apiErr.Status),
		)
		return true, nil
	}
	return false, err
}
