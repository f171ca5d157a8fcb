package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/learnhub/offline-sync/internal/domain"
)

// Metrics groups all Prometheus instruments used across the application.
// Registered once at startup via New(); passed by pointer wherever needed.
type Metrics struct {
	ItemsEnqueued  *prometheus.CounterVec
	ItemsDrained   *prometheus.CounterVec
	ItemsEvicted   *prometheus.CounterVec
	QueueOverflows prometheus.Counter

	QueueDepthHigh   prometheus.Gauge
	QueueDepthMedium prometheus.Gauge
	QueueDepthLow    prometheus.Gauge

	RefreshResults  *prometheus.CounterVec
	AuthRetries     prometheus.Counter
	StorageFailures prometheus.Counter
}

// New registers all instruments with the given Prometheus registerer and
// returns the populated Metrics struct.
// Using a custom registry (instead of prometheus.DefaultRegisterer) keeps
// tests isolated and avoids global state.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ItemsEnqueued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "queue_items_enqueued_total",
			Help: "Total number of mutations buffered into the offline queue.",
		}, []string{"priority"}),

		ItemsDrained: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "queue_items_drained_total",
			Help: "Total number of queued mutations delivered to the backend.",
		}, []string{"kind"}),

		ItemsEvicted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "queue_items_evicted_total",
			Help: "Total number of items evicted to make room at capacity.",
		}, []string{"priority"}),

		QueueOverflows: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "queue_overflow_episodes_total",
			Help: "Number of times the queue entered an at-capacity episode.",
		}),

		QueueDepthHigh: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "queue_depth_high",
			Help: "Current number of buffered high-priority items.",
		}),
		QueueDepthMedium: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "queue_depth_medium",
			Help: "Current number of buffered medium-priority items.",
		}),
		QueueDepthLow: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "queue_depth_low",
			Help: "Current number of buffered low-priority items.",
		}),

		RefreshResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "session_refresh_results_total",
			Help: "Session refresh cycle outcomes (success, failure, timeout).",
		}, []string{"result"}),

		AuthRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "auth_request_retries_total",
			Help: "Requests transparently replayed after a session refresh.",
		}),

		StorageFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "storage_degraded_episodes_total",
			Help: "Number of times the durable store entered a degraded episode.",
		}),
	}

	reg.MustRegister(
		m.ItemsEnqueued,
		m.ItemsDrained,
		m.ItemsEvicted,
		m.QueueOverflows,
		m.QueueDepthHigh,
		m.QueueDepthMedium,
		m.QueueDepthLow,
		m.RefreshResults,
		m.AuthRetries,
		m.StorageFailures,
	)

	return m
}

// QueueHooks returns the metric callbacks expected by queue.Hooks.
// Centralises the prometheus observation calls so the queue stays
// import-free.
func (m *Metrics) QueueHooks() (
	onEnqueued func(domain.Priority),
	onDrained func(domain.Kind),
	onEvicted func(domain.Priority),
	onDropped func(),
) {
	onEnqueued = func(p domain.Priority) {
		m.ItemsEnqueued.WithLabelValues(string(p)).Inc()
	}
	onDrained = func(k domain.Kind) {
		m.ItemsDrained.WithLabelValues(string(k)).Inc()
	}
	onEvicted = func(p domain.Priority) {
		m.ItemsEvicted.WithLabelValues(string(p)).Inc()
	}
	onDropped = func() {
		m.QueueOverflows.Inc()
	}
	return
}

// SetDepths updates the per-tier depth gauges from a queue.Depths() reading.
func (m *Metrics) SetDepths(high, medium, low int) {
	m.QueueDepthHigh.Set(float64(high))
	m.QueueDepthMedium.Set(float64(medium))
	m.QueueDepthLow.Set(float64(low))
}

// OnRefreshResult counts one refresh cycle outcome.
func (m *Metrics) OnRefreshResult(result string) {
	m.RefreshResults.WithLabelValues(result).Inc()
}

// OnAuthRetry counts one transparent replay after a refresh.
func (m *Metrics) OnAuthRetry() {
	m.AuthRetries.Inc()
}

// OnStorageError counts one degraded-store episode.
func (m *Metrics) OnStorageError(error) {
	m.StorageFailures.Inc()
}
