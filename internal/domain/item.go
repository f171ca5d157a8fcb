package domain

import (
	"encoding/json"
	"time"
)

// Kind identifies the logical mutation a queue item carries.
type Kind string

const (
	KindProgressEvent     Kind = "progress-event"
	KindProgressSnapshot  Kind = "progress-snapshot"
	KindAssignmentRequest Kind = "assignment-request"
)

func (k Kind) IsValid() bool {
	switch k {
	case KindProgressEvent, KindProgressSnapshot, KindAssignmentRequest:
		return true
	}
	return false
}

// Priority controls drain ordering. High is processed first.
// It never affects correctness, only the order items leave the queue.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

func (p Priority) IsValid() bool {
	switch p {
	case PriorityHigh, PriorityMedium, PriorityLow:
		return true
	}
	return false
}

// Rank maps a priority to its processing order. Lower ranks drain first.
// Unknown priorities sort last so a corrupt record cannot jump the queue.
func (p Priority) Rank() int {
	switch p {
	case PriorityHigh:
		return 0
	case PriorityMedium:
		return 1
	case PriorityLow:
		return 2
	}
	return 3
}

// QueueItem is one buffered mutation awaiting delivery.
//
// After creation the only field that may change is Attempts (monotonically
// increasing); everything else, the IdempotencyKey in particular, is frozen
// so the server can deduplicate retries of the same logical action.
type QueueItem struct {
	ID             string          `json:"id"`
	Kind           Kind            `json:"kind"`
	OwnerID        string          `json:"owner_id"`
	ScopeID        string          `json:"scope_id"`
	Payload        json.RawMessage `json:"payload"`
	Priority       Priority        `json:"priority"`
	EnqueuedAt     time.Time       `json:"enqueued_at"`
	Attempts       int             `json:"attempts"`
	IdempotencyKey string          `json:"idempotency_key"`
}

// ItemInput is what producers hand to the queue facade. The facade assigns
// ID, EnqueuedAt, and Attempts itself.
type ItemInput struct {
	Kind           Kind
	OwnerID        string
	ScopeID        string
	Payload        json.RawMessage
	Priority       Priority
	IdempotencyKey string
}

func (in *ItemInput) Validate() error {
	if !in.Kind.IsValid() {
		return ErrInvalidKind
	}
	if !in.Priority.IsValid() {
		return ErrInvalidPriority
	}
	if in.IdempotencyKey == "" {
		return ErrMissingIdempotencyKey
	}
	return nil
}

// DrainResult reports one ProcessKind pass. Failures are encoded here, never
// thrown: Remaining > 0 with a NextDelay means the caller should come back
// after the suggested backoff.
type DrainResult struct {
	Processed int           `json:"processed"`
	Remaining int           `json:"remaining"`
	NextDelay time.Duration `json:"next_delay,omitempty"`
}
