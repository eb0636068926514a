package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HTTPServerMetrics covers the API surface plus the pipeline stages behind
// it: gate decisions, golden lookups, retrieval sub-queries, fusion sizes,
// refinement attempts and token spend.
type HTTPServerMetrics struct {
	registry *prometheus.Registry

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge

	gateDecisionsTotal     *prometheus.CounterVec
	goldenLookupsTotal     *prometheus.CounterVec
	subQueriesTotal        *prometheus.CounterVec
	fusedDocuments         *prometheus.HistogramVec
	refinementAttempts     *prometheus.HistogramVec
	lowQualityAnswersTotal *prometheus.CounterVec
	answersTotal           *prometheus.CounterVec
	pipelineDuration       *prometheus.HistogramVec
	llmTokensTotal         *prometheus.CounterVec
}

func NewHTTPServerMetrics(service string) *HTTPServerMetrics {
	registry := prometheus.NewRegistry()

	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fdk",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"service", "method", "path", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "fdk",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)
	requestInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "fdk",
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Number of in-flight HTTP requests.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	gateDecisionsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fdk",
			Subsystem: "pipeline",
			Name:      "gate_decisions_total",
			Help:      "Total retrieval gate decisions by outcome.",
		},
		[]string{"service", "outcome"},
	)
	goldenLookupsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fdk",
			Subsystem: "pipeline",
			Name:      "golden_lookups_total",
			Help:      "Total golden-set lookups by result (signature, semantic, miss).",
		},
		[]string{"service", "result"},
	)
	subQueriesTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fdk",
			Subsystem: "pipeline",
			Name:      "retrieval_subqueries_total",
			Help:      "Total retrieval sub-queries by source and status.",
		},
		[]string{"service", "source", "status"},
	)
	fusedDocuments := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "fdk",
			Subsystem: "pipeline",
			Name:      "fused_documents",
			Help:      "Distribution of fused documents per answered query.",
			Buckets:   []float64{0, 1, 2, 3, 5, 8, 13, 21},
		},
		[]string{"service"},
	)
	refinementAttempts := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "fdk",
			Subsystem: "pipeline",
			Name:      "refinement_attempts",
			Help:      "Distribution of refinement attempts per answered query.",
			Buckets:   []float64{1, 2, 3},
		},
		[]string{"service"},
	)
	lowQualityAnswersTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fdk",
			Subsystem: "pipeline",
			Name:      "low_quality_answers_total",
			Help:      "Total answers that exhausted refinement below thresholds.",
		},
		[]string{"service"},
	)
	answersTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fdk",
			Subsystem: "pipeline",
			Name:      "answers_total",
			Help:      "Total answers by path (golden, synthesis).",
		},
		[]string{"service", "path"},
	)
	pipelineDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "fdk",
			Subsystem: "pipeline",
			Name:      "duration_seconds",
			Help:      "End-to-end pipeline duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "path"},
	)
	llmTokensTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fdk",
			Subsystem: "llm",
			Name:      "tokens_total",
			Help:      "Approximate token usage by direction.",
		},
		[]string{"service", "direction", "model"},
	)

	registry.MustRegister(
		requestTotal,
		requestDuration,
		requestInFlight,
		gateDecisionsTotal,
		goldenLookupsTotal,
		subQueriesTotal,
		fusedDocuments,
		refinementAttempts,
		lowQualityAnswersTotal,
		answersTotal,
		pipelineDuration,
		llmTokensTotal,
	)

	return &HTTPServerMetrics{
		registry:               registry,
		requestTotal:           requestTotal,
		requestDuration:        requestDuration,
		requestInFlight:        requestInFlight,
		gateDecisionsTotal:     gateDecisionsTotal,
		goldenLookupsTotal:     goldenLookupsTotal,
		subQueriesTotal:        subQueriesTotal,
		fusedDocuments:         fusedDocuments,
		refinementAttempts:     refinementAttempts,
		lowQualityAnswersTotal: lowQualityAnswersTotal,
		answersTotal:           answersTotal,
		pipelineDuration:       pipelineDuration,
		llmTokensTotal:         llmTokensTotal,
	}
}

func (m *HTTPServerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *HTTPServerMetrics) Middleware(service string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
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
			r.URL.Path,
			strconv.Itoa(recorder.statusCode),
		).Inc()
		m.requestDuration.WithLabelValues(service, r.Method, r.URL.Path).Observe(time.Since(start).Seconds())
	})
}

func (m *HTTPServerMetrics) RecordGateDecision(service string, needsRetrieval bool) {
	outcome := "skip"
	if needsRetrieval {
		outcome = "retrieve"
	}
	m.gateDecisionsTotal.WithLabelValues(service, outcome).Inc()
}

func (m *HTTPServerMetrics) RecordGoldenLookup(service, result string) {
	if result == "" {
		result = "miss"
	}
	m.goldenLookupsTotal.WithLabelValues(service, result).Inc()
}

func (m *HTTPServerMetrics) RecordSubQuery(service, source, status string) {
	m.subQueriesTotal.WithLabelValues(service, source, status).Inc()
}

func (m *HTTPServerMetrics) RecordAnswer(service, path string, fused, attempts int, lowQuality bool, duration time.Duration) {
	if path == "" {
		path = "unknown"
	}
	m.answersTotal.WithLabelValues(service, path).Inc()
	m.fusedDocuments.WithLabelValues(service).Observe(float64(fused))
	m.pipelineDuration.WithLabelValues(service, path).Observe(duration.Seconds())
	if attempts > 0 {
		m.refinementAttempts.WithLabelValues(service).Observe(float64(attempts))
	}
	if lowQuality {
		m.lowQualityAnswersTotal.WithLabelValues(service).Inc()
	}
}

func (m *HTTPServerMetrics) RecordTokenUsage(service, model string, promptTokens, completionTokens int) {
	if model == "" {
		model = "unknown"
	}
	if promptTokens > 0 {
		m.llmTokensTotal.WithLabelValues(service, "in", model).Add(float64(promptTokens))
	}
	if completionTokens > 0 {
		m.llmTokensTotal.WithLabelValues(service, "out", model).Add(float64(completionTokens))
	}
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
	flusher, ok := w.ResponseWriter.(http.Flusher)
	if ok {
		flusher.Flush()
	}
}

func (w *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not implement http.Hijacker")
	}
	return hijacker.Hijack()
}
