package store

import (
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/learnhub/offline-sync/internal/domain"
)

const (
	// queueKey is the single logical record holding the serialized item array.
	queueKey = "mutation_queue_v2"

	// legacyQueueKey is the pre-v2 record format, imported once and deleted.
	legacyQueueKey = "offline_queue_v1"
)

// QueueStore persists the full queue snapshot. The queue facade is its only
// writer; everyone else reads through the facade's in-memory mirror.
//
// Persistence failures never propagate into the caller's control flow: the
// first failure of an episode is reported through the storage-error callback,
// the store runs memory-only, and the next successful write self-heals.
type QueueStore struct {
	blob   Blob
	logger *zap.Logger

	mu       sync.Mutex
	degraded bool
	onError  func(error)
}

// NewQueueStore wraps blob. onError is invoked once per degradation episode;
// nil means log-only.
func NewQueueStore(blob Blob, logger *zap.Logger, onError func(error)) *QueueStore {
	if onError == nil {
		onError = func(error) {}
	}
	return &QueueStore{blob: blob, logger: logger, onError: onError}
}

// ReadAll returns the persisted snapshot. Storage being absent or the record
// being corrupt both degrade to an empty queue; ReadAll never fails.
func (qs *QueueStore) ReadAll() []domain.QueueItem {
	raw, ok, err := qs.blob.Get(queueKey)
	if err != nil {
		qs.logger.Warn("queue store read failed, starting empty", zap.Error(err))
		return nil
	}
	if !ok {
		return nil
	}

	var items []domain.QueueItem
	if err := json.Unmarshal(raw, &items); err != nil {
		qs.logger.Warn("queue store record corrupt, starting empty", zap.Error(err))
		return nil
	}
	return items
}

// WriteAll replaces the persisted snapshot. The in-memory mirror stays
// authoritative on failure, so the error is swallowed after reporting.
func (qs *QueueStore) WriteAll(items []domain.QueueItem) {
	if items == nil {
		items = []domain.QueueItem{}
	}
	raw, err := json.Marshal(items)
	if err != nil {
		// Items are plain serializable structs; this indicates a programming
		// error in a payload producer.
		qs.logger.Error("queue snapshot marshal failed", zap.Error(err))
		return
	}

	qs.mu.Lock()
	defer qs.mu.Unlock()

	if err := qs.blob.Put(queueKey, raw); err != nil {
		if !qs.degraded {
			qs.degraded = true
			qs.logger.Warn("queue persistence degraded, continuing memory-only", zap.Error(err))
			qs.onError(err)
		}
		return
	}

	if qs.degraded {
		qs.degraded = false
		qs.logger.Info("queue persistence recovered")
	}
}

// Degraded reports whether the last write failed.
func (qs *QueueStore) Degraded() bool {
	qs.mu.Lock()
	defer qs.mu.Unlock()
	return qs.degraded
}

// legacyItem is the v1 on-disk shape. Field names changed in v2 and the
// enqueue timestamp was unix milliseconds.
type legacyItem struct {
	ID             string          `json:"id"`
	Type           string          `json:"type"`
	UserID         string          `json:"userId"`
	CourseID       string          `json:"courseId"`
	Data           json.RawMessage `json:"data"`
	Priority       string          `json:"priority"`
	QueuedAt       int64           `json:"queuedAt"`
	Retries        int             `json:"retries"`
	IdempotencyKey string          `json:"idempotencyKey"`
}

// MigrateLegacy imports the v1 record into the current schema, then deletes
// it. Best effort: an unreadable legacy record is dropped with a warning
// rather than blocking startup.
func (qs *QueueStore) MigrateLegacy() []domain.QueueItem {
	raw, ok, err := qs.blob.Get(legacyQueueKey)
	if err != nil || !ok {
		return nil
	}

	var legacy []legacyItem
	if err := json.Unmarshal(raw, &legacy); err != nil {
		qs.logger.Warn("legacy queue record corrupt, discarding", zap.Error(err))
		qs.deleteLegacy()
		return nil
	}

	items := make([]domain.QueueItem, 0, len(legacy))
	for _, l := range legacy {
		kind := domain.Kind(l.Type)
		if !kind.IsValid() {
			continue
		}
		priority := domain.Priority(l.Priority)
		if !priority.IsValid() {
			priority = domain.PriorityMedium
		}
		items = append(items, domain.QueueItem{
			ID:             l.ID,
			Kind:           kind,
			OwnerID:        l.UserID,
			ScopeID:        l.CourseID,
			Payload:        l.Data,
			Priority:       priority,
			EnqueuedAt:     time.UnixMilli(l.QueuedAt).UTC(),
			Attempts:       l.Retries,
			IdempotencyKey: l.IdempotencyKey,
		})
	}

	qs.deleteLegacy()
	if len(items) > 0 {
		qs.logger.Info("imported legacy queue items", zap.Int("count", len(items)))
	}
	return items
}

func (qs *QueueStore) deleteLegacy() {
	if err := qs.blob.Delete(legacyQueueKey); err != nil {
		qs.logger.Warn("failed to delete legacy queue record", zap.Error(err))
	}
}
