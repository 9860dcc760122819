package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "charging_stations"

// Metrics collects the service's prometheus instruments. All methods are
// safe on a nil receiver so callers can run without metrics.
type Metrics struct {
	gatherer prometheus.Gatherer

	httpRequestsTotal *prometheus.CounterVec
	httpDuration      *prometheus.HistogramVec
	aggregations      *prometheus.CounterVec
	streamFailures    *prometheus.CounterVec
	cacheHits         prometheus.Counter
	cacheMisses       prometheus.Counter
	recalculations    *prometheus.CounterVec
	recordsWritten    prometheus.Counter
	upstreamDuration  *prometheus.HistogramVec
}

// New registers the instruments on reg. A nil reg uses a private registry.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	m := &Metrics{
		gatherer: reg,
		httpRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total count of HTTP requests processed by route and status.",
		}, []string{"route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Histogram of HTTP request durations by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
		aggregations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "aggregations_total",
			Help:      "Aggregation requests by view and outcome (complete, partial, failed, cached).",
		}, []string{"view", "outcome"}),
		streamFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_failures_total",
			Help:      "Record stream fetch failures by stream.",
		}, []string{"stream"}),
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Total report cache hits observed.",
		}),
		cacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_misses_total",
			Help:      "Total report cache misses observed.",
		}),
		recalculations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recalculations_total",
			Help:      "Loss recalculation runs by outcome (written, skipped, failed).",
		}, []string{"outcome"}),
		recordsWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "loss_records_written_total",
			Help:      "Loss records written by recalculation.",
		}),
		upstreamDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "record_fetch_duration_seconds",
			Help:      "Histogram of record source fetch durations by stream.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"stream"}),
	}

	reg.MustRegister(
		m.httpRequestsTotal,
		m.httpDuration,
		m.aggregations,
		m.streamFailures,
		m.cacheHits,
		m.cacheMisses,
		m.recalculations,
		m.recordsWritten,
		m.upstreamDuration,
	)
	return m
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(status int) {
	s.status = status
	s.ResponseWriter.WriteHeader(status)
}

// WrapHandler records request count and latency under route.
func (m *Metrics) WrapHandler(route string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		next.ServeHTTP(recorder, r)

		if m != nil {
			m.httpRequestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
			m.httpDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
		}
	})
}

// Handler exposes the registry in the prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

func (m *Metrics) CacheHit() {
	if m == nil {
		return
	}
	m.cacheHits.Inc()
}

func (m *Metrics) CacheMiss() {
	if m == nil {
		return
	}
	m.cacheMisses.Inc()
}

// Aggregation counts one built view. outcome is complete, partial, failed or cached.
func (m *Metrics) Aggregation(view, outcome string) {
	if m == nil {
		return
	}
	m.aggregations.WithLabelValues(view, outcome).Inc()
}

func (m *Metrics) StreamFailure(stream string) {
	if m == nil {
		return
	}
	m.streamFailures.WithLabelValues(stream).Inc()
}

func (m *Metrics) StreamFetch(stream string, duration time.Duration) {
	if m == nil {
		return
	}
	m.upstreamDuration.WithLabelValues(stream).Observe(duration.Seconds())
}

// Recalculation counts a recalculation run and the records it wrote.
func (m *Metrics) Recalculation(outcome string, written int) {
	if m == nil {
		return
	}
	m.recalculations.WithLabelValues(outcome).Inc()
	if written > 0 {
		m.recordsWritten.Add(float64(written))
	}
}
