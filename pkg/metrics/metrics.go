package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all application metrics
type Metrics struct {
	// Outbox related metrics
	OutboxEventsProcessed   prometheus.Counter
	OutboxEventsFailed      prometheus.Counter
	OutboxProcessingLatency prometheus.Histogram

	// Database metrics
	DatabaseOperations *prometheus.CounterVec

	// Intake metrics
	IntakeRequests    *prometheus.CounterVec
	IntakeRateLimited prometheus.Counter
}

// NewMetrics creates and registers all application metrics
func NewMetrics(namespace, subsystem string) *Metrics {
	return &Metrics{
		OutboxEventsProcessed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "outbox_events_processed_total",
			Help:      "Total number of successfully published feed events",
		}),
		OutboxEventsFailed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "outbox_events_failed_total",
			Help:      "Total number of feed events that failed to publish",
		}),
		OutboxProcessingLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "outbox_processing_duration_seconds",
			Help:      "Time spent publishing pending feed events",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}),
		DatabaseOperations: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "database_operations_total",
			Help:      "Total number of database operations",
		}, []string{"operation", "status"}),
		IntakeRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "intake_requests_total",
			Help:      "Total number of intake requests by outcome",
		}, []string{"outcome"}),
		IntakeRateLimited: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "intake_rate_limited_total",
			Help:      "Total number of intake requests rejected by the rate limiter",
		}),
	}
}
