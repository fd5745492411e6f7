package metrics

import (
	"net/http"
	"time"

	"github.com/kirillkom/comment-labeler/internal/core/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ClassifierMetrics implements ports.Observer on a private registry.
type ClassifierMetrics struct {
	registry *prometheus.Registry

	rowsTotal         *prometheus.CounterVec
	batchesTotal      *prometheus.CounterVec
	inferenceDuration *prometheus.HistogramVec
	cacheHitsTotal    *prometheus.CounterVec
	checkpointsTotal  *prometheus.CounterVec
}

func NewClassifierMetrics() *ClassifierMetrics {
	registry := prometheus.NewRegistry()

	rowsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "labeler",
			Subsystem: "classify",
			Name:      "rows_total",
			Help:      "Total labeled rows by label source.",
		},
		[]string{"task", "source"},
	)
	batchesTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "labeler",
			Subsystem: "classify",
			Name:      "batches_total",
			Help:      "Total resolved batches by outcome.",
		},
		[]string{"task", "outcome"},
	)
	inferenceDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "labeler",
			Name:      "inference_duration_seconds",
			Help:      "Inference call duration in seconds, retries included.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 20, 30, 60, 120, 180, 300},
		},
		[]string{"task", "operation"},
	)
	cacheHitsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "labeler",
			Name:      "cache_hits_total",
			Help:      "Total rows answered from the label cache.",
		},
		[]string{"task"},
	)
	checkpointsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "labeler",
			Name:      "checkpoints_total",
			Help:      "Total checkpoints written.",
		},
		[]string{"task"},
	)

	registry.MustRegister(rowsTotal, batchesTotal, inferenceDuration, cacheHitsTotal, checkpointsTotal)

	return &ClassifierMetrics{
		registry:          registry,
		rowsTotal:         rowsTotal,
		batchesTotal:      batchesTotal,
		inferenceDuration: inferenceDuration,
		cacheHitsTotal:    cacheHitsTotal,
		checkpointsTotal:  checkpointsTotal,
	}
}

func (m *ClassifierMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *ClassifierMetrics) ObserveRow(task string, source domain.LabelSource) {
	if source == "" {
		source = "unknown"
	}
	m.rowsTotal.WithLabelValues(task, string(source)).Inc()
	if source == domain.SourceCache {
		m.cacheHitsTotal.WithLabelValues(task).Inc()
	}
}

func (m *ClassifierMetrics) ObserveBatch(task, outcome string) {
	if outcome == "" {
		outcome = "unknown"
	}
	m.batchesTotal.WithLabelValues(task, outcome).Inc()
}

func (m *ClassifierMetrics) ObserveInference(task, operation string, elapsed time.Duration) {
	if elapsed < 0 {
		return
	}
	m.inferenceDuration.WithLabelValues(task, operation).Observe(elapsed.Seconds())
}

func (m *ClassifierMetrics) ObserveCheckpoint(task string) {
	m.checkpointsTotal.WithLabelValues(task).Inc()
}
