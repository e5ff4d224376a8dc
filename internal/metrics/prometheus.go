// Package metrics provides Prometheus metrics for the analysis service.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Analysis outcomes.
const (
	OutcomeOK          = "ok"
	OutcomeNoData      = "no_data"
	OutcomeMalformed   = "malformed"
	OutcomeUnsupported = "unsupported"
	OutcomeError       = "error"
)

// Manager owns the service's collectors and the registry that serves them.
type Manager struct {
	namespace        string
	histogramBuckets []float64
	registry         *prometheus.Registry

	analyses         *prometheus.CounterVec
	analysisDuration prometheus.Histogram
	studentsAnalyzed prometheus.Counter
	weakSubjects     prometheus.Counter
	insights         *prometheus.CounterVec

	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

// NewManager builds a manager on a fresh registry unless one is supplied.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "gradelens",
		histogramBuckets: prometheus.DefBuckets,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.registry == nil {
		m.registry = prometheus.NewRegistry()
		m.registry.MustRegister(collectors.NewGoCollector())
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) initializeMetrics() {
	auto := promauto.With(m.registry)

	m.analyses = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "analysis",
		Name:      "runs_total",
		Help:      "Analyses attempted, by outcome",
	}, []string{"outcome", "kind"})

	m.analysisDuration = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: "analysis",
		Name:      "duration_seconds",
		Help:      "Time spent parsing and analyzing one upload",
		Buckets:   m.histogramBuckets,
	})

	m.studentsAnalyzed = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "analysis",
		Name:      "students_total",
		Help:      "Student rows analyzed",
	})

	m.weakSubjects = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "analysis",
		Name:      "weak_subjects_total",
		Help:      "Weak subjects reported",
	})

	m.insights = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "insight",
		Name:      "generated_total",
		Help:      "Insights generated, by source (llm or local)",
	}, []string{"source"})

	m.httpRequests = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "HTTP requests, by route, method and status",
	}, []string{"route", "method", "status"})

	m.httpRequestDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency",
		Buckets:   m.histogramBuckets,
	}, []string{"route", "method"})
}

// RecordAnalysis counts one analysis attempt.
func (m *Manager) RecordAnalysis(outcome, kind string, elapsed time.Duration) {
	m.analyses.WithLabelValues(outcome, kind).Inc()
	m.analysisDuration.Observe(elapsed.Seconds())
}

// RecordReport adds a successful report's size.
func (m *Manager) RecordReport(students, weak int) {
	m.studentsAnalyzed.Add(float64(students))
	m.weakSubjects.Add(float64(weak))
}

// RecordInsight counts one generated insight by source.
func (m *Manager) RecordInsight(source string) {
	m.insights.WithLabelValues(source).Inc()
}

// RecordHTTPRequest counts one request and observes its latency.
func (m *Manager) RecordHTTPRequest(route, method string, status int, elapsed time.Duration) {
	m.httpRequests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.httpRequestDuration.WithLabelValues(route, method).Observe(elapsed.Seconds())
}

// Registry returns the registry the collectors live on.
func (m *Manager) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Manager) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
