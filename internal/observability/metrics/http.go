package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type HTTPServerMetrics struct {
	registry *prometheus.Registry

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge

	queryTotal        *prometheus.CounterVec
	queryNoContext    *prometheus.CounterVec
	fusedCandidates   *prometheus.HistogramVec
	rerankedSources   *prometheus.HistogramVec
	retrievalDuration *prometheus.HistogramVec

	agentRunsTotal  *prometheus.CounterVec
	agentIterations *prometheus.HistogramVec
}

func NewHTTPServerMetrics(service string) *HTTPServerMetrics {
	registry := prometheus.NewRegistry()

	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dr",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"service", "method", "path", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "dr",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)
	requestInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "dr",
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Number of in-flight HTTP requests.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	queryTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dr",
			Subsystem: "retrieval",
			Name:      "queries_total",
			Help:      "Total successful retrieval queries.",
		},
		[]string{"service", "endpoint"},
	)
	queryNoContext := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dr",
			Subsystem: "retrieval",
			Name:      "no_context_total",
			Help:      "Total queries answered without any retrieved source.",
		},
		[]string{"service", "endpoint"},
	)
	fusedCandidates := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "dr",
			Subsystem: "retrieval",
			Name:      "fused_candidates",
			Help:      "Distribution of candidates after dense/lexical fusion.",
			Buckets:   []float64{0, 1, 2, 3, 5, 8, 13, 21},
		},
		[]string{"service"},
	)
	rerankedSources := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "dr",
			Subsystem: "retrieval",
			Name:      "reranked_sources",
			Help:      "Distribution of sources surviving the cross-encoder.",
			Buckets:   []float64{0, 1, 2, 3, 4, 5},
		},
		[]string{"service", "endpoint"},
	)
	retrievalDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "dr",
			Subsystem: "retrieval",
			Name:      "duration_seconds",
			Help:      "End-to-end query duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "endpoint"},
	)
	agentRunsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dr",
			Subsystem: "agent",
			Name:      "runs_total",
			Help:      "Total completed research runs by status.",
		},
		[]string{"service", "status"},
	)
	agentIterations := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "dr",
			Subsystem: "agent",
			Name:      "iterations",
			Help:      "Distribution of planner iterations per research run.",
			Buckets:   []float64{1, 2, 3, 4, 5, 6, 8, 10},
		},
		[]string{"service"},
	)

	registry.MustRegister(
		requestTotal,
		requestDuration,
		requestInFlight,
		queryTotal,
		queryNoContext,
		fusedCandidates,
		rerankedSources,
		retrievalDuration,
		agentRunsTotal,
		agentIterations,
	)

	return &HTTPServerMetrics{
		registry:          registry,
		requestTotal:      requestTotal,
		requestDuration:   requestDuration,
		requestInFlight:   requestInFlight,
		queryTotal:        queryTotal,
		queryNoContext:    queryNoContext,
		fusedCandidates:   fusedCandidates,
		rerankedSources:   rerankedSources,
		retrievalDuration: retrievalDuration,
		agentRunsTotal:    agentRunsTotal,
		agentIterations:   agentIterations,
	}
}

func (m *HTTPServerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *HTTPServerMetrics) Middleware(service string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		path := normalizePath(r.URL.Path)
		recorder := &statusRecorder{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		m.requestInFlight.Inc()
		defer m.requestInFlight.Dec()

		next.ServeHTTP(recorder, r)

		m.requestTotal.WithLabelValues(
			service,
			r.Method,
			path,
			strconv.Itoa(recorder.statusCode),
		).Inc()
		m.requestDuration.WithLabelValues(service, r.Method, path).Observe(time.Since(start).Seconds())
	})
}

func normalizePath(path string) string {
	switch {
	case strings.HasPrefix(path, "/v1/documents/"):
		return "/v1/documents/{document_id}"
	default:
		return path
	}
}

// RecordQuery counts one answered query and observes how many sources
// survived reranking.
func (m *HTTPServerMetrics) RecordQuery(service, endpoint string, sourceCount int, duration time.Duration) {
	m.queryTotal.WithLabelValues(service, endpoint).Inc()
	m.rerankedSources.WithLabelValues(service, endpoint).Observe(float64(sourceCount))
	m.retrievalDuration.WithLabelValues(service, endpoint).Observe(duration.Seconds())

	if sourceCount == 0 {
		m.queryNoContext.WithLabelValues(service, endpoint).Inc()
	}
}

func (m *HTTPServerMetrics) ObserveFusedCandidates(service string, count int) {
	m.fusedCandidates.WithLabelValues(service).Observe(float64(count))
}

func (m *HTTPServerMetrics) RecordResearchRun(service, status string, iterations int) {
	if status == "" {
		status = "unknown"
	}
	m.agentRunsTotal.WithLabelValues(service, status).Inc()
	if iterations > 0 {
		m.agentIterations.WithLabelValues(service).Observe(float64(iterations))
	}
}

// RetrievalObserver bridges the usecases to the registered retrieval metrics
// without the core importing prometheus.
type RetrievalObserver struct {
	metrics *HTTPServerMetrics
	service string
}

func (m *HTTPServerMetrics) RetrievalObserver(service string) *RetrievalObserver {
	return &RetrievalObserver{metrics: m, service: service}
}

func (o *RetrievalObserver) ObserveFusedCandidates(count int) {
	o.metrics.ObserveFusedCandidates(o.service, count)
}

func (o *RetrievalObserver) ObserveResearchRun(status string, iterations int) {
	o.metrics.RecordResearchRun(o.service, status, iterations)
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusRecorder) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *statusRecorder) Flush() {
	if flusher, ok := w.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}
