package queue_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/learnhub/offline-sync/internal/domain"
	"github.com/learnhub/offline-sync/internal/queue"
	"github.com/learnhub/offline-sync/internal/store"
)

func newQueue(capacity int, onQueueFull func()) (*queue.Queue, *store.MemoryBlob) {
	blob := store.NewMemoryBlob()
	qs := store.NewQueueStore(blob, zap.NewNop(), nil)
	sched := queue.NewScheduler(capacity, 2*time.Second, 60*time.Second)
	q := queue.New(qs, sched, zap.NewNop(), onQueueFull, queue.Hooks{})
	q.Initialize()
	return q, blob
}

func input(kind domain.Kind, p domain.Priority, key string) domain.ItemInput {
	return domain.ItemInput{
		Kind:           kind,
		OwnerID:        "user-1",
		ScopeID:        "course-1",
		Payload:        json.RawMessage(`{"n":1}`),
		Priority:       p,
		IdempotencyKey: key,
	}
}

func TestQueue_EnqueueBeforeInitialize(t *testing.T) {
	blob := store.NewMemoryBlob()
	qs := store.NewQueueStore(blob, zap.NewNop(), nil)
	q := queue.New(qs, queue.NewScheduler(0, 0, 0), zap.NewNop(), nil, queue.Hooks{})

	_, err := q.Enqueue(input(domain.KindProgressEvent, domain.PriorityLow, "k"))
	if err != domain.ErrNotInitialized {
		t.Fatalf("expected ErrNotInitialized, got %v", err)
	}
}

func TestQueue_EnqueueAssignsIdentity(t *testing.T) {
	q, _ := newQueue(10, nil)

	item, err := q.Enqueue(input(domain.KindProgressEvent, domain.PriorityMedium, "key-1"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if item.ID == "" {
		t.Fatal("expected a non-empty ID")
	}
	if item.Attempts != 0 {
		t.Fatalf("expected attempts=0, got %d", item.Attempts)
	}
	if item.IdempotencyKey != "key-1" {
		t.Fatal("idempotency key must pass through unchanged")
	}
	if item.EnqueuedAt.IsZero() {
		t.Fatal("expected an enqueue timestamp")
	}
}

// TestQueue_PriorityOrdering: items enqueued [low, high, medium, high]
// drain as [high1, high2, medium, low].
func TestQueue_PriorityOrdering(t *testing.T) {
	q, _ := newQueue(10, nil)

	_, _ = q.Enqueue(input(domain.KindProgressEvent, domain.PriorityLow, "low"))
	_, _ = q.Enqueue(input(domain.KindProgressEvent, domain.PriorityHigh, "high1"))
	_, _ = q.Enqueue(input(domain.KindProgressEvent, domain.PriorityMedium, "medium"))
	_, _ = q.Enqueue(input(domain.KindProgressEvent, domain.PriorityHigh, "high2"))

	var visited []string
	res := q.ProcessKind(context.Background(), domain.KindProgressEvent,
		func(_ context.Context, it domain.QueueItem) (bool, error) {
			visited = append(visited, it.IdempotencyKey)
			return true, nil
		})

	want := []string{"high1", "high2", "medium", "low"}
	if len(visited) != len(want) {
		t.Fatalf("visited %d items, want %d", len(visited), len(want))
	}
	for i, w := range want {
		if visited[i] != w {
			t.Fatalf("position %d: expected %s, got %s", i, w, visited[i])
		}
	}
	if res.Processed != 4 || res.Remaining != 0 {
		t.Fatalf("unexpected result: %+v", res)
	}
}

// TestQueue_CapacityInvariant: the store never exceeds the cap, and
// low-priority items are preferred for eviction.
func TestQueue_CapacityInvariant(t *testing.T) {
	q, _ := newQueue(5, nil)

	_, _ = q.Enqueue(input(domain.KindProgressEvent, domain.PriorityLow, "low-victim"))
	for i := 0; i < 10; i++ {
		_, _ = q.Enqueue(input(domain.KindProgressEvent, domain.PriorityHigh, "high"))
		if q.Len() > 5 {
			t.Fatalf("queue exceeded cap: %d", q.Len())
		}
	}

	for _, it := range q.Snapshot() {
		if it.IdempotencyKey == "low-victim" {
			t.Fatal("expected the low-priority item to be evicted first")
		}
	}
}

// TestQueue_QueueFullOncePerEpisode: the queue-full signal fires when a
// non-low item must be dropped, and only once until the queue recovers.
func TestQueue_QueueFullOncePerEpisode(t *testing.T) {
	var fired int
	q, _ := newQueue(3, func() { fired++ })

	for i := 0; i < 6; i++ {
		_, _ = q.Enqueue(input(domain.KindProgressEvent, domain.PriorityHigh, "k"))
	}
	if fired != 1 {
		t.Fatalf("expected queue-full to fire once per episode, fired %d times", fired)
	}

	// Draining below the cap ends the episode; the next overflow fires again.
	_ = q.ProcessKind(context.Background(), domain.KindProgressEvent,
		func(context.Context, domain.QueueItem) (bool, error) { return true, nil })

	for i := 0; i < 6; i++ {
		_, _ = q.Enqueue(input(domain.KindProgressEvent, domain.PriorityHigh, "k"))
	}
	if fired != 2 {
		t.Fatalf("expected second episode to fire again, fired %d times", fired)
	}
}

// TestQueue_StopAtFirstFailure: a failing item halts the walk so later items
// of the same kind keep their relative order.
func TestQueue_StopAtFirstFailure(t *testing.T) {
	q, _ := newQueue(10, nil)

	_, _ = q.Enqueue(input(domain.KindProgressEvent, domain.PriorityHigh, "first"))
	_, _ = q.Enqueue(input(domain.KindProgressEvent, domain.PriorityHigh, "second"))

	var visited []string
	res := q.ProcessKind(context.Background(), domain.KindProgressEvent,
		func(_ context.Context, it domain.QueueItem) (bool, error) {
			visited = append(visited, it.IdempotencyKey)
			return false, nil
		})

	if len(visited) != 1 || visited[0] != "first" {
		t.Fatalf("expected the walk to stop at the first failure, visited %v", visited)
	}
	if res.Processed != 0 || res.Remaining != 2 {
		t.Fatalf("unexpected result: %+v", res)
	}
	if res.NextDelay != 4*time.Second {
		// attempts incremented to 1 before computing: 2s * 2^1.
		t.Fatalf("expected 4s backoff after first failure, got %v", res.NextDelay)
	}

	if first := q.Snapshot()[0]; first.Attempts != 1 {
		t.Fatalf("expected attempts=1 on failed item, got %d", first.Attempts)
	}
}

// TestQueue_EndToEndOfflineDrain: enqueue while "offline", then drain with a
// handler that fails once and succeeds on the next pass.
func TestQueue_EndToEndOfflineDrain(t *testing.T) {
	q, _ := newQueue(10, nil)
	ctx := context.Background()

	item, err := q.Enqueue(input(domain.KindProgressEvent, domain.PriorityMedium, "evt-1"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	first := q.ProcessKind(ctx, domain.KindProgressEvent,
		func(_ context.Context, it domain.QueueItem) (bool, error) {
			return false, errors.New("network unreachable")
		})
	if first.Processed != 0 || first.Remaining != 1 || first.NextDelay == 0 {
		t.Fatalf("unexpected first pass result: %+v", first)
	}

	second := q.ProcessKind(ctx, domain.KindProgressEvent,
		func(_ context.Context, it domain.QueueItem) (bool, error) {
			if it.IdempotencyKey != item.IdempotencyKey {
				t.Fatalf("idempotency key changed across retries: %q", it.IdempotencyKey)
			}
			return true, nil
		})
	if second.Processed != 1 || second.Remaining != 0 {
		t.Fatalf("unexpected second pass result: %+v", second)
	}
	if q.Len() != 0 {
		t.Fatalf("expected empty queue, got %d items", q.Len())
	}
}

// TestQueue_IdempotencyKeyStableAcrossRestart: the key survives persist,
// restore, and backoff increments byte-identical.
func TestQueue_IdempotencyKeyStableAcrossRestart(t *testing.T) {
	blob := store.NewMemoryBlob()
	qs := store.NewQueueStore(blob, zap.NewNop(), nil)
	sched := queue.NewScheduler(10, 2*time.Second, 60*time.Second)
	q := queue.New(qs, sched, zap.NewNop(), nil, queue.Hooks{})
	q.Initialize()

	item, _ := q.Enqueue(input(domain.KindAssignmentRequest, domain.PriorityHigh, "course.assign:courseId=c1:ff01"))

	// Fail a few drains to bump attempts.
	for i := 0; i < 3; i++ {
		_ = q.ProcessKind(context.Background(), domain.KindAssignmentRequest,
			func(context.Context, domain.QueueItem) (bool, error) { return false, nil })
	}

	// Simulate a restart: a fresh facade over the same blob.
	q2 := queue.New(store.NewQueueStore(blob, zap.NewNop(), nil), sched, zap.NewNop(), nil, queue.Hooks{})
	q2.Initialize()

	snap := q2.Snapshot()
	if len(snap) != 1 {
		t.Fatalf("expected 1 item after restart, got %d", len(snap))
	}
	if snap[0].IdempotencyKey != item.IdempotencyKey {
		t.Fatal("idempotency key changed across restart")
	}
	if snap[0].Attempts != 3 {
		t.Fatalf("expected attempts=3 after restart, got %d", snap[0].Attempts)
	}
}

func TestQueue_SubscribeNotifiedOnMutations(t *testing.T) {
	q, _ := newQueue(10, nil)

	var notifications int
	unsubscribe := q.Subscribe(func([]domain.QueueItem) { notifications++ })

	_, _ = q.Enqueue(input(domain.KindProgressEvent, domain.PriorityLow, "k"))
	if notifications != 1 {
		t.Fatalf("expected 1 notification after enqueue, got %d", notifications)
	}

	q.Clear()
	if notifications != 2 {
		t.Fatalf("expected 2 notifications after clear, got %d", notifications)
	}

	unsubscribe()
	_, _ = q.Enqueue(input(domain.KindProgressEvent, domain.PriorityLow, "k"))
	if notifications != 2 {
		t.Fatal("expected no notification after unsubscribe")
	}
}

func TestQueue_Remove(t *testing.T) {
	q, _ := newQueue(10, nil)

	item, _ := q.Enqueue(input(domain.KindProgressEvent, domain.PriorityLow, "k"))
	if err := q.Remove(item.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := q.Remove(item.ID); err != domain.ErrNotFound {
		t.Fatalf("expected ErrNotFound on second remove, got %v", err)
	}
}

func TestQueue_InitializeMergesLegacy(t *testing.T) {
	blob := store.NewMemoryBlob()
	_ = blob.Put("offline_queue_v1", []byte(`[
		{"id":"l1","type":"progress-snapshot","userId":"u1","courseId":"c1",
		 "data":{},"priority":"high","queuedAt":1700000000000,"retries":0,
		 "idempotencyKey":"progress.snapshot:x"}
	]`))

	qs := store.NewQueueStore(blob, zap.NewNop(), nil)
	q := queue.New(qs, queue.NewScheduler(10, 0, 0), zap.NewNop(), nil, queue.Hooks{})
	q.Initialize()
	q.Initialize() // idempotent

	if q.Len() != 1 {
		t.Fatalf("expected 1 item after legacy merge, got %d", q.Len())
	}
	if q.Snapshot()[0].ID != "l1" {
		t.Fatal("expected legacy item in snapshot")
	}
}
