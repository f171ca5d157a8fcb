package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/learnhub/offline-sync/internal/api"
	"github.com/learnhub/offline-sync/internal/bus"
	"github.com/learnhub/offline-sync/internal/config"
	"github.com/learnhub/offline-sync/internal/domain"
	"github.com/learnhub/offline-sync/internal/metrics"
	"github.com/learnhub/offline-sync/internal/producer"
	"github.com/learnhub/offline-sync/internal/queue"
	"github.com/learnhub/offline-sync/internal/session"
	"github.com/learnhub/offline-sync/internal/store"
	"github.com/learnhub/offline-sync/internal/transport"
	"github.com/learnhub/offline-sync/internal/worker"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync() //nolint:errcheck

	// ---- configuration ----
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}

	ctx := context.Background()

	// ---- durable store ----
	var blob store.Blob
	sqlite, err := store.OpenSQLite(cfg.StorePath)
	if err != nil {
		// The queue still works without durability; buffered mutations just
		// do not survive a restart.
		logger.Warn("durable store unavailable, falling back to memory",
			zap.String("path", cfg.StorePath),
			zap.Error(err),
		)
		blob = store.NewMemoryBlob()
	} else {
		defer sqlite.Close()
		blob = sqlite
		logger.Info("durable store opened", zap.String("path", cfg.StorePath))
	}

	// ---- core dependencies ----
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	qs := store.NewQueueStore(blob, logger, m.OnStorageError)

	sched := queue.NewScheduler(cfg.QueueCap, cfg.BaseDelay, cfg.MaxDelay)
	onEnqueued, onDrained, onEvicted, onDropped := m.QueueHooks()
	q := queue.New(qs, sched, logger,
		func() { logger.Warn("offline queue at capacity, oldest items are being evicted") },
		queue.Hooks{
			OnEnqueued: onEnqueued,
			OnDrained:  onDrained,
			OnEvicted:  onEvicted,
			OnDropped:  onDropped,
		})
	q.Initialize()
	q.Subscribe(func([]domain.QueueItem) { m.SetDepths(q.Depths()) })
	m.SetDepths(q.Depths())

	// ---- broadcast bus ----
	var b bus.Bus
	if cfg.RelayURL == "" {
		b = bus.NewMemoryBus().Handle()
		logger.Info("single-agent mode, using in-process bus")
	} else {
		ws, err := bus.DialWS(ctx, cfg.RelayURL, logger)
		if err != nil {
			logger.Fatal("failed to dial relay", zap.String("url", cfg.RelayURL), zap.Error(err))
		}
		b = ws
		logger.Info("connected to relay", zap.String("url", cfg.RelayURL))
	}
	defer b.Close()

	// ---- session and transport ----
	cache := session.NewCache()
	gate := session.NewGate()
	tr := transport.NewHTTPTransport(cfg.APIBaseURL, cfg.RequestTimeout)
	auth := transport.NewAuthClient(tr, cache, logger)

	coord := session.NewCoordinator(b, auth.Refresh, cfg.RefreshWatchdog, logger, m.OnRefreshResult)
	defer coord.Close()

	pipe := transport.NewPipeline(tr, gate, cache, coord, auth, logger, m.OnAuthRetry)

	// ---- producers ----
	syncer := producer.NewProgressSyncer(pipe, q, logger)
	requester := producer.NewAssignmentRequester(pipe, q, logger)

	// ---- drain worker ----
	// Context for all background goroutines; cancelled on shutdown signal.
	workerCtx, cancelWorkers := context.WithCancel(ctx)
	defer cancelWorkers()

	targets := map[domain.Kind]queue.Handler{
		domain.KindProgressEvent:     syncer.Deliver,
		domain.KindProgressSnapshot:  syncer.Deliver,
		domain.KindAssignmentRequest: requester.Deliver,
	}
	drainer := worker.NewDrainWorker(q, targets,
		rate.NewLimiter(rate.Limit(cfg.DrainRate), 1), cfg.DrainInterval, logger)
	go drainer.Run(workerCtx)

	// ---- HTTP server ----
	router := api.NewRouter(syncer, requester, q, qs, cache, coord, reg, logger)
	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	// Start server in a goroutine so it does not block the shutdown listener.
	go func() {
		logger.Info("agent starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	// ---- graceful shutdown ----
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutdown signal received")

	// 1. Stop accepting new HTTP requests.
	shutdownCtx, shutdownCancel := context.WithTimeout(ctx, cfg.ShutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", zap.Error(err))
	}

	// 2. Stop the drain worker. Anything undelivered is already persisted
	// and will be drained on the next start.
	cancelWorkers()

	logger.Info("agent stopped cleanly")
}
