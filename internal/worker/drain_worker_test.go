package worker_test

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/learnhub/offline-sync/internal/domain"
	"github.com/learnhub/offline-sync/internal/queue"
	"github.com/learnhub/offline-sync/internal/store"
	"github.com/learnhub/offline-sync/internal/worker"
)

func newTestQueue() *queue.Queue {
	qs := store.NewQueueStore(store.NewMemoryBlob(), zap.NewNop(), nil)
	q := queue.New(qs, queue.NewScheduler(50, time.Second, time.Minute), zap.NewNop(), nil, queue.Hooks{})
	q.Initialize()
	return q
}

func enqueue(t *testing.T, q *queue.Queue, kind domain.Kind) {
	t.Helper()
	_, err := q.Enqueue(domain.ItemInput{
		Kind:           kind,
		OwnerID:        "u",
		ScopeID:        "c",
		Payload:        json.RawMessage(`{}`),
		Priority:       domain.PriorityMedium,
		IdempotencyKey: "k-" + string(kind),
	})
	if err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}
}

// TestDrainWorker_OnlineKickDrainsImmediately: the worker has a long tick
// interval, so only the Online kick can explain a prompt drain.
func TestDrainWorker_OnlineKickDrainsImmediately(t *testing.T) {
	q := newTestQueue()
	enqueue(t, q, domain.KindProgressEvent)

	var delivered atomic.Int32
	targets := map[domain.Kind]queue.Handler{
		domain.KindProgressEvent: func(context.Context, domain.QueueItem) (bool, error) {
			delivered.Add(1)
			return true, nil
		},
	}

	w := worker.NewDrainWorker(q, targets, rate.NewLimiter(rate.Inf, 1), time.Hour, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	w.Online()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if delivered.Load() == 1 && q.Len() == 0 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("drain never ran: delivered=%d len=%d", delivered.Load(), q.Len())
}

// TestDrainWorker_BackoffWindowSkipsKind: after a failed pass the kind is
// not retried until its backoff window elapses, but Online clears it.
func TestDrainWorker_BackoffWindowSkipsKind(t *testing.T) {
	q := newTestQueue()
	enqueue(t, q, domain.KindProgressEvent)

	var attempts atomic.Int32
	targets := map[domain.Kind]queue.Handler{
		domain.KindProgressEvent: func(context.Context, domain.QueueItem) (bool, error) {
			attempts.Add(1)
			return false, nil
		},
	}

	w := worker.NewDrainWorker(q, targets, rate.NewLimiter(rate.Inf, 1), 20*time.Millisecond, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	// Several tick intervals pass; the 2s backoff window must hold attempts
	// at one.
	time.Sleep(150 * time.Millisecond)
	if got := attempts.Load(); got != 1 {
		t.Fatalf("expected 1 attempt inside the backoff window, got %d", got)
	}

	// Connectivity restored: the window clears and a second attempt runs.
	w.Online()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if attempts.Load() >= 2 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("Online() did not clear the backoff window")
}
