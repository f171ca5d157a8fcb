package queue

import (
	"sort"
	"time"

	"github.com/learnhub/offline-sync/internal/domain"
)

// Default scheduling constants. Overridable through config.
const (
	DefaultCap       = 200
	DefaultBaseDelay = 2 * time.Second
	DefaultMaxDelay  = 60 * time.Second
)

// Scheduler owns the three queue policies: drain order, retry delay, and
// capacity eviction. It is pure computation over item slices; the facade
// owns the state and persistence.
type Scheduler struct {
	cap       int
	baseDelay time.Duration
	maxDelay  time.Duration
}

func NewScheduler(capacity int, baseDelay, maxDelay time.Duration) *Scheduler {
	if capacity <= 0 {
		capacity = DefaultCap
	}
	if baseDelay <= 0 {
		baseDelay = DefaultBaseDelay
	}
	if maxDelay <= 0 {
		maxDelay = DefaultMaxDelay
	}
	return &Scheduler{cap: capacity, baseDelay: baseDelay, maxDelay: maxDelay}
}

func (s *Scheduler) Cap() int { return s.cap }

// Sort orders items for draining: priority first (high before medium before
// low), enqueue time ascending within a priority band. The sort is stable so
// equal items keep their relative order across repeated calls.
func (s *Scheduler) Sort(items []domain.QueueItem) {
	sort.SliceStable(items, func(i, j int) bool {
		ri, rj := items[i].Priority.Rank(), items[j].Priority.Rank()
		if ri != rj {
			return ri < rj
		}
		return items[i].EnqueuedAt.Before(items[j].EnqueuedAt)
	})
}

// Backoff returns the retry delay for an item that has failed `attempts`
// times: baseDelay * 2^attempts, capped at maxDelay.
func (s *Scheduler) Backoff(attempts int) time.Duration {
	if attempts < 0 {
		attempts = 0
	}
	// 2^attempts overflows a Duration long before attempts reaches 63;
	// anything past the cap point is maxDelay anyway.
	if attempts > 30 {
		return s.maxDelay
	}
	d := s.baseDelay << uint(attempts)
	if d > s.maxDelay || d < s.baseDelay {
		return s.maxDelay
	}
	return d
}

// MakeRoom evicts until one more item fits under the cap. Oldest low-priority
// items go first; only when none remain does the oldest item of any priority
// get dropped, and overflow=true tells the caller to raise the queue-full
// signal. Items must already be sorted.
func (s *Scheduler) MakeRoom(items []domain.QueueItem) (kept, evicted []domain.QueueItem, overflow bool) {
	kept = items
	for len(kept) >= s.cap {
		idx := oldestOfPriority(kept, domain.PriorityLow)
		if idx < 0 {
			idx = oldest(kept)
			overflow = true
		}
		if idx < 0 {
			break
		}
		evicted = append(evicted, kept[idx])
		kept = append(kept[:idx], kept[idx+1:]...)
	}
	return kept, evicted, overflow
}

func oldestOfPriority(items []domain.QueueItem, p domain.Priority) int {
	idx := -1
	for i, it := range items {
		if it.Priority != p {
			continue
		}
		if idx < 0 || it.EnqueuedAt.Before(items[idx].EnqueuedAt) {
			idx = i
		}
	}
	return idx
}

func oldest(items []domain.QueueItem) int {
	idx := -1
	for i, it := range items {
		if idx < 0 || it.EnqueuedAt.Before(items[idx].EnqueuedAt) {
			idx = i
		}
	}
	return idx
}
