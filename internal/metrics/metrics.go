package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "lexicite"

// Backend call durations span a fast cache-warm lookup up to a slow
// web-grounded reasoner call.
var backendBuckets = []float64{.05, .1, .25, .5, 1, 2, 5, 10, 30, 60}

// Metrics holds the collectors for one process. A nil *Metrics is valid and
// records nothing, so library callers and tests may omit it.
type Metrics struct {
	registry *prometheus.Registry

	batchesStarted    prometheus.Counter
	batchesSuperseded prometheus.Counter
	noCitations       prometheus.Counter
	pipelinesInFlight prometheus.Gauge
	outcomes          *prometheus.CounterVec
	backendDuration   *prometheus.HistogramVec
	backendErrors     *prometheus.CounterVec
	cacheLookups      *prometheus.CounterVec
	linkChecks        *prometheus.CounterVec
}

// New registers every collector on a private registry
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		batchesStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "batches_started_total",
			Help: "Verification batches started",
		}),
		batchesSuperseded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "batches_superseded_total",
			Help: "Batches cancelled before completion by a newer batch or the caller",
		}),
		noCitations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "batches_without_citations_total",
			Help: "Batches whose text contained no citations",
		}),
		pipelinesInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "pipelines_in_flight",
			Help: "Per-citation verification pipelines currently running",
		}),
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "citation_outcomes_total",
			Help: "Terminal citation record states",
		}, []string{"status", "error_kind"}),
		backendDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "backend_request_duration_seconds",
			Help:    "Latency of reasoner and authority calls",
			Buckets: backendBuckets,
		}, []string{"backend"}),
		backendErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "backend_errors_total",
			Help: "Failed backend calls by error kind",
		}, []string{"backend", "kind"}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "cache_lookups_total",
			Help: "Verdict cache lookups",
		}, []string{"backend", "result"}),
		linkChecks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "evidence_link_checks_total",
			Help: "Evidence URI probes by result",
		}, []string{"result"}),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.batchesStarted,
		m.batchesSuperseded,
		m.noCitations,
		m.pipelinesInFlight,
		m.outcomes,
		m.backendDuration,
		m.backendErrors,
		m.cacheLookups,
		m.linkChecks,
	)
	return m
}

// Registry exposes the underlying registry, mainly for tests
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) BatchStarted() {
	if m == nil {
		return
	}
	m.batchesStarted.Inc()
}

func (m *Metrics) BatchSuperseded() {
	if m == nil {
		return
	}
	m.batchesSuperseded.Inc()
}

func (m *Metrics) NoCitations() {
	if m == nil {
		return
	}
	m.noCitations.Inc()
}

// PipelineStarted marks one pipeline as running; pair with PipelineFinished
func (m *Metrics) PipelineStarted() {
	if m == nil {
		return
	}
	m.pipelinesInFlight.Inc()
}

// PipelineFinished records the terminal state of a pipeline. errorKind is
// empty unless status is "error".
func (m *Metrics) PipelineFinished(status, errorKind string) {
	if m == nil {
		return
	}
	m.pipelinesInFlight.Dec()
	m.outcomes.WithLabelValues(status, errorKind).Inc()
}

// ObserveBackend records one backend call. kind is empty on success.
func (m *Metrics) ObserveBackend(backend string, d time.Duration, kind string) {
	if m == nil {
		return
	}
	m.backendDuration.WithLabelValues(backend).Observe(d.Seconds())
	if kind != "" {
		m.backendErrors.WithLabelValues(backend, kind).Inc()
	}
}

func (m *Metrics) CacheLookup(backend string, hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(backend, result).Inc()
}

// LinkChecked counts one evidence probe: ok, dead, disallowed or error
func (m *Metrics) LinkChecked(result string) {
	if m == nil {
		return
	}
	m.linkChecks.WithLabelValues(result).Inc()
}
