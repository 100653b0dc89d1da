package observability

import (
	"context"
	"net/http"
	"time"

	"github.com/aretw0/strata/pkg/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the collectors of one process on their own registry.
type Metrics struct {
	Registry *prometheus.Registry

	mutations      *prometheus.CounterVec
	evicted        prometheus.Counter
	cacheRequests  *prometheus.CounterVec
	cacheEvictions prometheus.Counter
	renderDuration *prometheus.HistogramVec
	transforms     *prometheus.CounterVec
	transformTime  *prometheus.HistogramVec
	snapshotOps    *prometheus.CounterVec
	snapshotTime   *prometheus.HistogramVec
}

// NewMetrics creates and registers every collector, plus the Go and process
// collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		mutations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "strata_stack_mutations_total",
				Help: "Committed stack mutations by type",
			},
			[]string{"op"},
		),
		evicted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "strata_versions_evicted_total",
			Help: "Versions dropped from a history by truncation or reset",
		}),
		cacheRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "strata_render_cache_requests_total",
				Help: "Render cache lookups by result",
			},
			[]string{"result"},
		),
		cacheEvictions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "strata_render_cache_evictions_total",
			Help: "Render cache entries dropped to respect the size bound",
		}),
		renderDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "strata_render_duration_seconds",
				Help:    "Time spent loading and encoding an image",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"kind"},
		),
		transforms: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "strata_transforms_total",
				Help: "Transform requests by operation and outcome",
			},
			[]string{"op", "outcome"},
		),
		transformTime: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "strata_transform_duration_seconds",
				Help:    "Duration of executor calls",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"op"},
		),
		snapshotOps: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "strata_snapshot_operations_total",
				Help: "Snapshot store calls by operation and outcome",
			},
			[]string{"op", "outcome"},
		),
		snapshotTime: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "strata_snapshot_duration_seconds",
				Help:    "Duration of snapshot store calls",
				Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
			},
			[]string{"op"},
		),
	}

	m.Registry.MustRegister(
		m.mutations,
		m.evicted,
		m.cacheRequests,
		m.cacheEvictions,
		m.renderDuration,
		m.transforms,
		m.transformTime,
		m.snapshotOps,
		m.snapshotTime,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}

// Hooks returns stack lifecycle hooks that record mutations and evictions.
func (m *Metrics) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnMutation: func(_ context.Context, e *domain.MutationEvent) {
			m.mutations.WithLabelValues(string(e.Type)).Inc()
		},
		OnEvict: func(_ context.Context, ids []domain.VersionID) {
			m.evicted.Add(float64(len(ids)))
		},
	}
}

// CacheHit records a render cache hit.
func (m *Metrics) CacheHit() {
	if m == nil {
		return
	}
	m.cacheRequests.WithLabelValues("hit").Inc()
}

// CacheMiss records a render cache miss.
func (m *Metrics) CacheMiss() {
	if m == nil {
		return
	}
	m.cacheRequests.WithLabelValues("miss").Inc()
}

// CacheEviction records an entry dropped by the LRU bound.
func (m *Metrics) CacheEviction() {
	if m == nil {
		return
	}
	m.cacheEvictions.Inc()
}

// ObserveRender records how long producing one encoded image took.
func (m *Metrics) ObserveRender(kind string, d time.Duration) {
	if m == nil {
		return
	}
	m.renderDuration.WithLabelValues(kind).Observe(d.Seconds())
}

// ObserveTransform records one executor round trip and its outcome.
func (m *Metrics) ObserveTransform(op, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.transforms.WithLabelValues(op, outcome).Inc()
	m.transformTime.WithLabelValues(op).Observe(d.Seconds())
}

// ObserveSnapshot records one snapshot store call.
func (m *Metrics) ObserveSnapshot(op string, err error, d time.Duration) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.snapshotOps.WithLabelValues(op, outcome).Inc()
	m.snapshotTime.WithLabelValues(op).Observe(d.Seconds())
}
