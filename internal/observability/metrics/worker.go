package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type WorkerMetrics struct {
	registry *prometheus.Registry

	recordTotal    *prometheus.CounterVec
	recordDuration *prometheus.HistogramVec
	recordInFlight prometheus.Gauge
	queueLag       *prometheus.HistogramVec
}

func NewWorkerMetrics(service string) *WorkerMetrics {
	registry := prometheus.NewRegistry()

	recordTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fdk",
			Subsystem: "worker",
			Name:      "usage_record_total",
			Help:      "Total persisted usage records by status.",
		},
		[]string{"service", "status"},
	)
	recordDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "fdk",
			Subsystem: "worker",
			Name:      "usage_record_duration_seconds",
			Help:      "Usage record persistence duration in seconds by status.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "status"},
	)
	recordInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "fdk",
			Subsystem: "worker",
			Name:      "usage_record_in_flight",
			Help:      "Number of in-flight usage record writes.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	queueLag := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "fdk",
			Subsystem: "worker",
			Name:      "queue_lag_seconds",
			Help:      "Delay between request completion and audit persistence.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"service"},
	)

	registry.MustRegister(recordTotal, recordDuration, recordInFlight, queueLag)

	return &WorkerMetrics{
		registry:       registry,
		recordTotal:    recordTotal,
		recordDuration: recordDuration,
		recordInFlight: recordInFlight,
		queueLag:       queueLag,
	}
}

func (m *WorkerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *WorkerMetrics) StartRecord() {
	m.recordInFlight.Inc()
}

func (m *WorkerMetrics) FinishRecord(service string, duration time.Duration, err error) {
	m.recordInFlight.Dec()

	status := "success"
	if err != nil {
		status = "error"
	}

	m.recordTotal.WithLabelValues(service, status).Inc()
	m.recordDuration.WithLabelValues(service, status).Observe(duration.Seconds())
}

func (m *WorkerMetrics) ObserveQueueLag(service string, lag time.Duration) {
	if lag < 0 {
		return
	}
	m.queueLag.WithLabelValues(service).Observe(lag.Seconds())
}
