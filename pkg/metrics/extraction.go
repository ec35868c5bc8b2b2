package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Image outcomes reported by the extraction worker.
const (
	OutcomeReady          = "ready"
	OutcomeError          = "error"
	OutcomeStorageError   = "storage_error"
	OutcomeSkipped        = "skipped"
	SessionResultComplete = "completed"
	SessionResultExpired  = "expired"
	SessionResultStopped  = "stopped"
)

// ExtractionMetrics tracks the bulk extraction worker.
type ExtractionMetrics struct {
	images   *prometheus.CounterVec
	duration prometheus.Histogram
	active   prometheus.Gauge
	finished *prometheus.CounterVec
}

// NewExtractionMetrics registers extraction metrics on reg. A nil registerer
// yields a no-op recorder.
func NewExtractionMetrics(reg prometheus.Registerer) *ExtractionMetrics {
	if reg == nil {
		return &ExtractionMetrics{}
	}
	images := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "extraction",
		Name:      "images_total",
		Help:      "Images visited by the extraction worker, by outcome.",
	}, []string{"outcome"})
	duration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "extraction",
		Name:      "duration_seconds",
		Help:      "Time spent extracting a single image.",
		Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120},
	})
	active := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "extraction",
		Name:      "sessions_active",
		Help:      "Sessions currently being processed by this instance.",
	})
	finished := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "extraction",
		Name:      "sessions_finished_total",
		Help:      "Worker runs that ended, by result.",
	}, []string{"result"})
	reg.MustRegister(images, duration, active, finished)
	return &ExtractionMetrics{
		images:   images,
		duration: duration,
		active:   active,
		finished: finished,
	}
}

// ObserveImage records one processed image.
func (m *ExtractionMetrics) ObserveImage(outcome string, took time.Duration) {
	if m == nil || m.images == nil {
		return
	}
	m.images.WithLabelValues(normalizeLabel(outcome)).Inc()
	if outcome == OutcomeReady || outcome == OutcomeError {
		m.duration.Observe(took.Seconds())
	}
}

// SessionStarted marks a worker run as active.
func (m *ExtractionMetrics) SessionStarted() {
	if m == nil || m.active == nil {
		return
	}
	m.active.Inc()
}

// SessionFinished closes a worker run.
func (m *ExtractionMetrics) SessionFinished(result string) {
	if m == nil || m.active == nil {
		return
	}
	m.active.Dec()
	m.finished.WithLabelValues(normalizeLabel(result)).Inc()
}
