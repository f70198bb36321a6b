package dispatch

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "packlate_backend_requests_total",
			Help: "Total number of backend calls",
		},
		[]string{"provider", "status"},
	)

	requestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "packlate_backend_request_duration_seconds",
			Help:    "Duration of backend calls in seconds",
			Buckets: []float64{0.5, 1.0, 2.0, 5.0, 10.0, 30.0, 60.0, 120.0},
		},
		[]string{"provider", "status"},
	)

	requestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "packlate_backend_requests_in_flight",
			Help: "Number of backend calls currently in flight",
		},
	)

	retryRoundsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "packlate_retry_rounds_total",
			Help: "Retry rounds started, by retry level",
		},
		[]string{"level"},
	)

	fallbackItemsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "packlate_fallback_items_total",
			Help: "Items that kept their source text after exhausting retries",
		},
	)
)

func recordRequest(provider string, d time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	requestsTotal.WithLabelValues(provider, status).Inc()
	requestDuration.WithLabelValues(provider, status).Observe(d.Seconds())
}

// RecordRetryRound counts one started retry round at the given level
// ("bulk", "fallback" or "quality").
func RecordRetryRound(level string) {
	retryRoundsTotal.WithLabelValues(level).Inc()
}

// RecordFallbackItem counts one item that exhausted every retry level.
func RecordFallbackItem() {
	fallbackItemsTotal.Inc()
}
