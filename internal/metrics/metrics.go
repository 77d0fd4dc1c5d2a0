// Package metrics exposes Prometheus collectors for the sweeper service.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	sweepConfigurationsTotal *prometheus.CounterVec
	sweepObservationsTotal   prometheus.Counter
	sweepRecordsTotal        *prometheus.CounterVec
	fetchAttemptsTotal       *prometheus.CounterVec
	rateGateDelaySeconds     prometheus.Histogram
	httpRequestDuration      *prometheus.HistogramVec
	activeSweepWorkers       prometheus.Gauge

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		sweepConfigurationsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sweeper_configurations_total",
				Help: "Configurations processed per sweep, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		sweepObservationsTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "sweeper_observations_total",
				Help: "Raw observations extracted from page text.",
			},
		)

		sweepRecordsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sweeper_records_total",
				Help: "Normalized records, labeled by status (accepted, rejected, invalid).",
			},
			[]string{"status"},
		)

		fetchAttemptsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sweeper_fetch_attempts_total",
				Help: "Page fetch attempts, labeled by result (success, retry, exhausted).",
			},
			[]string{"result"},
		)

		rateGateDelaySeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "sweeper_rate_gate_delay_seconds",
				Help:    "Histogram of outbound rate gate wait durations.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
		)

		httpRequestDuration = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of API request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)

		activeSweepWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "sweeper_active_workers",
				Help: "Number of workers currently processing a configuration.",
			},
		)
	})
}

// CountConfiguration records one terminal configuration outcome.
func CountConfiguration(outcome string) {
	if sweepConfigurationsTotal != nil {
		sweepConfigurationsTotal.WithLabelValues(outcome).Inc()
	}
}

// CountObservations adds extracted observation counts.
func CountObservations(n int) {
	if sweepObservationsTotal != nil {
		sweepObservationsTotal.Add(float64(n))
	}
}

// CountRecords adds record counts for a status label.
func CountRecords(status string, n int) {
	if sweepRecordsTotal != nil && n > 0 {
		sweepRecordsTotal.WithLabelValues(status).Add(float64(n))
	}
}

// CountFetchAttempt records one fetch attempt result.
func CountFetchAttempt(result string) {
	if fetchAttemptsTotal != nil {
		fetchAttemptsTotal.WithLabelValues(result).Inc()
	}
}

// ObserveRateGateDelay records how long a worker waited at the rate gate.
func ObserveRateGateDelay(d time.Duration) {
	if rateGateDelaySeconds != nil {
		rateGateDelaySeconds.Observe(d.Seconds())
	}
}

// ObserveRequestDuration records an API request latency.
func ObserveRequestDuration(method, route string, d time.Duration) {
	if httpRequestDuration != nil {
		httpRequestDuration.WithLabelValues(method, route).Observe(d.Seconds())
	}
}

// WorkerStarted increments the active worker gauge.
func WorkerStarted() {
	if activeSweepWorkers != nil {
		activeSweepWorkers.Inc()
	}
}

// WorkerFinished decrements the active worker gauge.
func WorkerFinished() {
	if activeSweepWorkers != nil {
		activeSweepWorkers.Dec()
	}
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}
