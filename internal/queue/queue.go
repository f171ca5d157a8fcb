// Package queue buffers mutations that could not be delivered synchronously
// and drains them in priority order once connectivity returns.
//
// The facade owns an in-memory mirror of the persisted snapshot. Every
// mutation updates the mirror synchronously, persists, then notifies
// subscribers; the mirror stays authoritative if persistence is degraded.
// The facade is the only writer to the durable store.
package queue

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/learnhub/offline-sync/internal/domain"
	"github.com/learnhub/offline-sync/internal/store"
)

// Handler delivers one item during a drain. Returning (true, nil) deletes
// the item; anything else stops the walk and schedules a retry.
type Handler func(ctx context.Context, item domain.QueueItem) (bool, error)

// Listener receives a snapshot after every mutation of the in-memory state.
// Listeners are invoked outside the queue's lock and may call back into it.
type Listener func(items []domain.QueueItem)

// Hooks carries metric callbacks injected by main, keeping the queue
// metrics-agnostic. Nil funcs are no-ops.
type Hooks struct {
	OnEnqueued func(priority domain.Priority)
	OnDrained  func(kind domain.Kind)
	OnEvicted  func(priority domain.Priority)
	OnDropped  func()
}

func (h *Hooks) fill() {
	if h.OnEnqueued == nil {
		h.OnEnqueued = func(domain.Priority) {}
	}
	if h.OnDrained == nil {
		h.OnDrained = func(domain.Kind) {}
	}
	if h.OnEvicted == nil {
		h.OnEvicted = func(domain.Priority) {}
	}
	if h.OnDropped == nil {
		h.OnDropped = func() {}
	}
}

// Queue is the mutation queue facade used by producers.
type Queue struct {
	qs     *store.QueueStore
	sched  *Scheduler
	logger *zap.Logger
	hooks  Hooks

	// onQueueFull fires once per overflow episode, when eviction had to
	// drop a non-low-priority item.
	onQueueFull func()

	mu          sync.Mutex
	items       []domain.QueueItem
	ready       bool
	overflowing bool
	subs        map[int]Listener
	nextSub     int
}

func New(qs *store.QueueStore, sched *Scheduler, logger *zap.Logger, onQueueFull func(), hooks Hooks) *Queue {
	if onQueueFull == nil {
		onQueueFull = func() {}
	}
	hooks.fill()
	return &Queue{
		qs:          qs,
		sched:       sched,
		logger:      logger,
		hooks:       hooks,
		onQueueFull: onQueueFull,
		subs:        make(map[int]Listener),
	}
}

// Initialize loads the persisted snapshot, merges any legacy-format items,
// sorts, and persists the merged result once. Idempotent: repeat calls are
// no-ops.
func (q *Queue) Initialize() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.ready {
		return
	}

	items := q.qs.ReadAll()
	items = append(items, q.qs.MigrateLegacy()...)
	q.sched.Sort(items)

	q.items = items
	q.ready = true
	q.qs.WriteAll(q.snapshotLocked())
	q.logger.Info("mutation queue initialized", zap.Int("items", len(items)))
}

// Enqueue assigns identity and timestamps, applies the capacity policy,
// persists, and notifies subscribers. The item's idempotency key comes in
// on the input and is never regenerated.
func (q *Queue) Enqueue(in domain.ItemInput) (*domain.QueueItem, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	q.mu.Lock()
	if !q.ready {
		q.mu.Unlock()
		return nil, domain.ErrNotInitialized
	}

	kept, evicted, overflow := q.sched.MakeRoom(q.items)
	q.items = kept
	for _, ev := range evicted {
		q.logger.Warn("queue at capacity, evicting item",
			zap.String("id", ev.ID),
			zap.String("priority", string(ev.Priority)),
		)
		q.hooks.OnEvicted(ev.Priority)
	}

	fireQueueFull := false
	if overflow && !q.overflowing {
		q.overflowing = true
		fireQueueFull = true
		q.hooks.OnDropped()
	}

	item := domain.QueueItem{
		ID:             uuid.New().String(),
		Kind:           in.Kind,
		OwnerID:        in.OwnerID,
		ScopeID:        in.ScopeID,
		Payload:        in.Payload,
		Priority:       in.Priority,
		EnqueuedAt:     time.Now().UTC(),
		Attempts:       0,
		IdempotencyKey: in.IdempotencyKey,
	}
	q.items = append(q.items, item)
	q.sched.Sort(q.items)
	listeners, snap := q.commitLocked()
	q.hooks.OnEnqueued(item.Priority)
	q.mu.Unlock()

	publish(listeners, snap)
	if fireQueueFull {
		q.onQueueFull()
	}
	return &item, nil
}

// Snapshot returns a copy of the in-memory mirror, in drain order.
func (q *Queue) Snapshot() []domain.QueueItem {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.snapshotLocked()
}

// Len returns the number of buffered items.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Depths returns the item count per priority tier, for the metrics gauges.
func (q *Queue) Depths() (high, medium, low int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, it := range q.items {
		switch it.Priority {
		case domain.PriorityHigh:
			high++
		case domain.PriorityMedium:
			medium++
		case domain.PriorityLow:
			low++
		}
	}
	return high, medium, low
}

// Subscribe registers a listener notified synchronously after every
// mutation. The returned func unsubscribes.
func (q *Queue) Subscribe(fn Listener) func() {
	q.mu.Lock()
	defer q.mu.Unlock()
	id := q.nextSub
	q.nextSub++
	q.subs[id] = fn
	return func() {
		q.mu.Lock()
		defer q.mu.Unlock()
		delete(q.subs, id)
	}
}

// Remove deletes one item by ID.
func (q *Queue) Remove(id string) error {
	q.mu.Lock()
	idx := q.indexOfLocked(id)
	if idx < 0 {
		q.mu.Unlock()
		return domain.ErrNotFound
	}
	q.items = append(q.items[:idx], q.items[idx+1:]...)
	listeners, snap := q.commitLocked()
	q.mu.Unlock()

	publish(listeners, snap)
	return nil
}

// Clear drops every buffered item.
func (q *Queue) Clear() {
	q.mu.Lock()
	q.items = nil
	listeners, snap := q.commitLocked()
	q.mu.Unlock()

	publish(listeners, snap)
}

// ProcessKind drains items of one kind in priority order, stopping at the
// first failure so relative ordering is preserved and a degraded backend is
// not hammered. Failures never propagate: the result carries the remaining
// count and the backoff delay to wait before the next pass.
//
// The lock is released around each handler call; the walk re-reads the
// mirror afterwards, so concurrent enqueues and removes are safe.
func (q *Queue) ProcessKind(ctx context.Context, kind domain.Kind, handler Handler) domain.DrainResult {
	res := domain.DrainResult{}

	for {
		if ctx.Err() != nil {
			break
		}

		q.mu.Lock()
		if !q.ready {
			q.mu.Unlock()
			return res
		}
		idx := q.firstOfKindLocked(kind)
		if idx < 0 {
			q.mu.Unlock()
			return res
		}
		item := q.items[idx]
		q.mu.Unlock()

		ok, err := handler(ctx, item)
		if err != nil {
			q.logger.Warn("drain handler failed",
				zap.String("id", item.ID),
				zap.String("kind", string(kind)),
				zap.Int("attempts", item.Attempts),
				zap.Error(err),
			)
		}

		q.mu.Lock()
		idx = q.indexOfLocked(item.ID)
		if idx < 0 {
			// Removed while the handler ran; nothing to apply.
			q.mu.Unlock()
			continue
		}
		if ok && err == nil {
			q.items = append(q.items[:idx], q.items[idx+1:]...)
			listeners, snap := q.commitLocked()
			q.mu.Unlock()
			publish(listeners, snap)
			q.hooks.OnDrained(kind)
			res.Processed++
			continue
		}

		// Failed attempt: bump the counter, compute backoff, stop the walk.
		q.items[idx].Attempts++
		attempts := q.items[idx].Attempts
		listeners, snap := q.commitLocked()
		q.mu.Unlock()
		publish(listeners, snap)

		res.NextDelay = q.sched.Backoff(attempts)
		break
	}

	q.mu.Lock()
	for _, it := range q.items {
		if it.Kind == kind {
			res.Remaining++
		}
	}
	q.mu.Unlock()
	return res
}

// ---- internal, caller holds q.mu ----

func (q *Queue) firstOfKindLocked(kind domain.Kind) int {
	for i, it := range q.items {
		if it.Kind == kind {
			return i
		}
	}
	return -1
}

func (q *Queue) indexOfLocked(id string) int {
	for i, it := range q.items {
		if it.ID == id {
			return i
		}
	}
	return -1
}

func (q *Queue) snapshotLocked() []domain.QueueItem {
	out := make([]domain.QueueItem, len(q.items))
	copy(out, q.items)
	return out
}

// commitLocked persists the mirror, clears the overflow episode once the
// queue is back under the cap, and hands back the listeners to notify after
// the lock is released.
func (q *Queue) commitLocked() ([]Listener, []domain.QueueItem) {
	if len(q.items) < q.sched.Cap() {
		q.overflowing = false
	}
	snap := q.snapshotLocked()
	q.qs.WriteAll(snap)

	listeners := make([]Listener, 0, len(q.subs))
	for _, fn := range q.subs {
		listeners = append(listeners, fn)
	}
	return listeners, snap
}

func publish(listeners []Listener, snap []domain.QueueItem) {
	for _, fn := range listeners {
		fn(snap)
	}
}
