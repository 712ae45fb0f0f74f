package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"
)

var (
	// Registry holds every collector of the alert action. A batch process has
	// no scrape endpoint, so the registry is pushed once at exit.
	Registry = prometheus.NewRegistry()

	// Buckets for Confluence API calls, bounded by the 30s client timeout
	CustomAPIBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 3, 5, 8, 13, 21, 30}

	// HTTP Client Metrics (Confluence REST API)
	HTTPClientRequestDuration = promauto.With(Registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_client_request_duration_seconds",
			Help:    "Outbound HTTP request duration in seconds",
			Buckets: CustomAPIBuckets,
		},
		[]string{"http_request_method", "http_response_status_code"},
	)

	HTTPClientRequestTotal = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_client_request_total",
			Help: "Total number of outbound HTTP requests",
		},
		[]string{"http_request_method", "http_response_status_code"},
	)

	// Page updater metrics
	ConfluenceOperationDuration = promauto.With(Registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "confluence_operation_duration_seconds",
			Help:    "Confluence page operation duration in seconds",
			Buckets: CustomAPIBuckets,
		},
		[]string{"operation", "status"},
	)

	ConfluenceOperationTotal = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "confluence_operation_total",
			Help: "Total number of Confluence page operations",
		},
		[]string{"operation", "status"},
	)

	ConfluenceVersionConflicts = promauto.With(Registry).NewCounter(
		prometheus.CounterOpts{
			Name: "confluence_version_conflicts_total",
			Help: "Total number of page writes rejected for a stale version",
		},
	)

	// Storage Client Metrics (page archive)
	ArchiveRequestDuration = promauto.With(Registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "storage_client_operation_duration_seconds",
			Help:    "Storage client operation duration in seconds",
			Buckets: CustomAPIBuckets,
		},
		[]string{"operation", "status"},
	)

	ArchiveRequestTotal = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "storage_client_operation_total",
			Help: "Total number of storage client operations",
		},
		[]string{"operation", "status"},
	)

	// Business Metrics
	AlertActionRuns = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "alert_action_runs_total",
			Help: "Total alert action runs by outcome",
		},
		[]string{"outcome"},
	)

	AlertResultRows = promauto.With(Registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "alert_action_result_rows",
			Help: "Number of result rows rendered by the last run",
		},
	)

	PublishedPageVersion = promauto.With(Registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "alert_action_page_version",
			Help: "Page version written by the last successful run",
		},
	)

	LastSuccessTimestamp = promauto.With(Registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "alert_action_last_success_timestamp_seconds",
			Help: "Unix time of the last successful page update",
		},
	)
)

// MeasureDuration measures the duration of an operation
func MeasureDuration(start time.Time) float64 {
	return time.Since(start).Seconds()
}

// StatusCodeLabel renders a status code label, "0" meaning no response
func StatusCodeLabel(code int) string {
	return fmt.Sprintf("%d", code)
}

// Push sends the registry to a Prometheus Pushgateway. An empty URL disables
// pushing.
func Push(gatewayURL, job string, groupings map[string]string) error {
	if gatewayURL == "" {
		return nil
	}

	pusher := push.New(gatewayURL, job).Gatherer(Registry)
	for name, value := range groupings {
		pusher = pusher.Grouping(name, value)
	}

	if err := pusher.Push(); err != nil {
		return fmt.Errorf("failed to push metrics to %s: %w", gatewayURL, err)
	}
	return nil
}
