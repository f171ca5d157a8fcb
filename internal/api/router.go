package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/learnhub/offline-sync/internal/api/handler"
	apimw "github.com/learnhub/offline-sync/internal/api/middleware"
	"github.com/learnhub/offline-sync/internal/producer"
	"github.com/learnhub/offline-sync/internal/queue"
	"github.com/learnhub/offline-sync/internal/session"
	"github.com/learnhub/offline-sync/internal/store"
)

// NewRouter wires the chi router, attaches all middleware, and registers
// every route. It is the single source of truth for the agent's local HTTP
// surface area.
func NewRouter(
	syncer *producer.ProgressSyncer,
	requester *producer.AssignmentRequester,
	q *queue.Queue,
	qs *store.QueueStore,
	cache *session.Cache,
	coord *session.Coordinator,
	reg prometheus.Gatherer,
	logger *zap.Logger,
) http.Handler {
	r := chi.NewRouter()

	// --- global middleware (applied to every route) ---
	r.Use(chimw.Recoverer)          // recover panics, return 500
	r.Use(chimw.RealIP)             // trust X-Forwarded-For / X-Real-IP
	r.Use(chimw.RequestSize(1<<20)) // 1 MB max request body
	r.Use(apimw.CorrelationID)      // X-Correlation-ID inject / echo
	r.Use(apimw.RequestLogger(logger))

	// --- handler instances ---
	ph := handler.NewProgressHandler(syncer, logger)
	ah := handler.NewAssignmentHandler(requester, logger)
	qh := handler.NewQueueHandler(q, qs, logger)
	sh := handler.NewSessionHandler(cache, coord, logger)
	hh := handler.NewHealthHandler()

	// --- routes ---
	r.Get("/health", hh.Health)

	// Raw Prometheus scrape endpoint
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	r.Route("/api/v1", func(r chi.Router) {
		// Mutations
		r.Post("/progress/events", ph.CreateEvent)
		r.Post("/progress/snapshots", ph.CreateSnapshot)
		r.Post("/assignments", ah.Create)

		// Queue inspection and intervention
		r.Get("/queue", qh.List)
		r.Delete("/queue", qh.Clear)
		r.Delete("/queue/items/{id}", qh.Remove)

		// Session state
		r.Get("/session", sh.Get)
		r.Post("/session/refresh", sh.Refresh)
	})

	return r
}
