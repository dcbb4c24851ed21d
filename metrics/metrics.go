package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	// RabbitMQConnected is 1 when the subscriber considers itself connected.
	RabbitMQConnected = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "fixspot",
		Subsystem: "ingest",
		Name:      "rabbitmq_connected",
		Help:      "Whether the upload-event subscriber is currently connected (best-effort).",
	})

	// EventsProcessedTotal counts bucket-notification records by outcome.
	EventsProcessedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fixspot",
		Subsystem: "ingest",
		Name:      "events_processed_total",
		Help:      "Total bucket-notification records processed, labeled by result.",
	}, []string{"result"})

	// ProcessingDurationSeconds is end-to-end classification time per upload.
	ProcessingDurationSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "fixspot",
		Subsystem: "ingest",
		Name:      "processing_duration_seconds",
		Help:      "End-to-end time to classify one uploaded image and write its submission.",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
	})
)

// Outcome labels for EventsProcessedTotal.
const (
	ResultClassified  = "classified"
	ResultSkipped     = "skipped"
	ResultOversized   = "oversized"
	ResultUndecodable = "undecodable"
	ResultFailed      = "failed"
)

// Register registers all collectors with the default registry. Safe to call
// more than once.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			RabbitMQConnected,
			EventsProcessedTotal,
			ProcessingDurationSeconds,
		)
	})
}
