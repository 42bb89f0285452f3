package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type APIMetrics struct {
	registry *prometheus.Registry

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge

	pipelineRunsTotal *prometheus.CounterVec
	pipelineDuration  *prometheus.HistogramVec
	toolCallsTotal    *prometheus.CounterVec
	modalityHits      *prometheus.HistogramVec
	degradedTotal     *prometheus.CounterVec
}

func NewAPIMetrics(service string) *APIMetrics {
	registry := prometheus.NewRegistry()

	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mediarag",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"service", "method", "path", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "mediarag",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)
	requestInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "mediarag",
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Number of in-flight HTTP requests.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	pipelineRunsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mediarag",
			Subsystem: "agent",
			Name:      "runs_total",
			Help:      "Total agent pipeline runs by outcome.",
		},
		[]string{"service", "status"},
	)
	pipelineDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "mediarag",
			Subsystem: "agent",
			Name:      "run_duration_seconds",
			Help:      "Agent pipeline run duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service"},
	)
	toolCallsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mediarag",
			Subsystem: "agent",
			Name:      "tool_calls_total",
			Help:      "Total tool invocations by tool and status.",
		},
		[]string{"service", "tool", "status"},
	)
	modalityHits := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "mediarag",
			Subsystem: "retrieval",
			Name:      "modality_hits",
			Help:      "Distribution of retrieved hits per modality per run.",
			Buckets:   []float64{0, 1, 2, 3, 5, 8, 13, 21},
		},
		[]string{"service", "modality"},
	)
	degradedTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mediarag",
			Subsystem: "retrieval",
			Name:      "degraded_total",
			Help:      "Total retrieval steps that degraded to zero hits on failure.",
		},
		[]string{"service", "modality"},
	)

	registry.MustRegister(
		requestTotal,
		requestDuration,
		requestInFlight,
		pipelineRunsTotal,
		pipelineDuration,
		toolCallsTotal,
		modalityHits,
		degradedTotal,
	)

	return &APIMetrics{
		registry:          registry,
		requestTotal:      requestTotal,
		requestDuration:   requestDuration,
		requestInFlight:   requestInFlight,
		pipelineRunsTotal: pipelineRunsTotal,
		pipelineDuration:  pipelineDuration,
		toolCallsTotal:    toolCallsTotal,
		modalityHits:      modalityHits,
		degradedTotal:     degradedTotal,
	}
}

func (m *APIMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *APIMetrics) Middleware(service string, next http.Handler) http.Handler {
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
	case strings.HasPrefix(path, "/v1/agent/conversations/"):
		return "/v1/agent/conversations/{conversation_id}"
	default:
		return path
	}
}

func (m *APIMetrics) RecordPipelineRun(service, status string, duration time.Duration) {
	if status == "" {
		status = "unknown"
	}
	m.pipelineRunsTotal.WithLabelValues(service, status).Inc()
	m.pipelineDuration.WithLabelValues(service).Observe(duration.Seconds())
}

func (m *APIMetrics) RecordToolCall(service, tool, status string) {
	if tool == "" {
		tool = "none"
	}
	if status == "" {
		status = "unknown"
	}
	m.toolCallsTotal.WithLabelValues(service, tool, status).Inc()
}

func (m *APIMetrics) RecordModalityHits(service, modality string, hits int) {
	m.modalityHits.WithLabelValues(service, modality).Observe(float64(hits))
}

func (m *APIMetrics) RecordDegradedModality(service, modality string) {
	m.degradedTotal.WithLabelValues(service, modality).Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusRecorder) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}
