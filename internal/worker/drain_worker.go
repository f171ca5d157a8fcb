// Package worker drives the queue drain: a periodic tick plus an immediate
// kick when connectivity returns.
package worker

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/learnhub/offline-sync/internal/domain"
	"github.com/learnhub/offline-sync/internal/queue"
)

// DrainWorker walks every registered kind each pass, skipping kinds still
// inside their backoff window. Delivery order within a kind is the queue's
// concern; the worker only decides when a kind is due.
type DrainWorker struct {
	q        *queue.Queue
	targets  map[domain.Kind]queue.Handler
	kinds    []domain.Kind
	limiter  *rate.Limiter
	interval time.Duration
	logger   *zap.Logger

	kick chan struct{}

	mu          sync.Mutex
	nextAttempt map[domain.Kind]time.Time
}

func NewDrainWorker(
	q *queue.Queue,
	targets map[domain.Kind]queue.Handler,
	limiter *rate.Limiter,
	interval time.Duration,
	logger *zap.Logger,
) *DrainWorker {
	kinds := make([]domain.Kind, 0, len(targets))
	for k := range targets {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })

	return &DrainWorker{
		q:           q,
		targets:     targets,
		kinds:       kinds,
		limiter:     limiter,
		interval:    interval,
		logger:      logger,
		kick:        make(chan struct{}, 1),
		nextAttempt: make(map[domain.Kind]time.Time),
	}
}

// Online signals that connectivity was restored: backoff windows are
// cleared and a pass runs immediately.
func (w *DrainWorker) Online() {
	w.mu.Lock()
	w.nextAttempt = make(map[domain.Kind]time.Time)
	w.mu.Unlock()

	select {
	case w.kick <- struct{}{}:
	default:
	}
}

// Run ticks every interval and drains due kinds. Stops cleanly when ctx is
// cancelled.
func (w *DrainWorker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.Info("drain worker started", zap.Duration("interval", w.interval))

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("drain worker stopping")
			return
		case <-ticker.C:
			w.pass(ctx)
		case <-w.kick:
			w.pass(ctx)
		}
	}
}

func (w *DrainWorker) pass(ctx context.Context) {
	now := time.Now()
	for _, kind := range w.kinds {
		w.mu.Lock()
		due := now.After(w.nextAttempt[kind]) || w.nextAttempt[kind].IsZero()
		w.mu.Unlock()
		if !due {
			continue
		}

		target := w.targets[kind]
		res := w.q.ProcessKind(ctx, kind, func(ctx context.Context, item domain.QueueItem) (bool, error) {
			// Token bucket in front of delivery so a big backlog does not
			// hammer a backend that just came back.
			if err := w.limiter.Wait(ctx); err != nil {
				return false, err
			}
			return target(ctx, item)
		})

		if res.Processed > 0 {
			w.logger.Info("drained queued mutations",
				zap.String("kind", string(kind)),
				zap.Int("processed", res.Processed),
				zap.Int("remaining", res.Remaining),
			)
		}
		if res.NextDelay > 0 {
			w.mu.Lock()
			w.nextAttempt[kind] = time.Now().Add(res.NextDelay)
			w.mu.Unlock()
			w.logger.Debug("drain backing off",
				zap.String("kind", string(kind)),
				zap.Duration("delay", res.NextDelay),
			)
		}
	}
}
