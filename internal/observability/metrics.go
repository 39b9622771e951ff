// Package observability exposes prometheus metrics for the realtime
// service: ingest volume, classification outcomes, notification activity
// and live device counts.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the service's prometheus collectors, registered on a
// private registry so tests can create instances independently.
type Metrics struct {
	registry *prometheus.Registry

	SamplesIngested    *prometheus.CounterVec
	IngestErrors       *prometheus.CounterVec
	ReadingsClassified *prometheus.CounterVec
	DevicesOnline      prometheus.Gauge
	FeedRequests       prometheus.Counter
	RollupDuration     prometheus.Histogram
}

// NewMetrics creates and registers the service collectors.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		SamplesIngested: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pondpal_samples_ingested_total",
			Help: "Telemetry samples accepted, by ingest source.",
		}, []string{"source"}),
		IngestErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pondpal_ingest_errors_total",
			Help: "Telemetry samples rejected, by ingest source.",
		}, []string{"source"}),
		ReadingsClassified: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pondpal_readings_classified_total",
			Help: "Sensor readings classified against thresholds, by level.",
		}, []string{"level"}),
		DevicesOnline: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pondpal_devices_online",
			Help: "Devices currently considered online.",
		}),
		FeedRequests: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pondpal_feed_requests_total",
			Help: "Notification feed fetches served.",
		}),
		RollupDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "pondpal_rollup_duration_seconds",
			Help:    "Time spent computing rollup series.",
			Buckets: prometheus.DefBuckets,
		}),
	}

	registry.MustRegister(
		m.SamplesIngested,
		m.IngestErrors,
		m.ReadingsClassified,
		m.DevicesOnline,
		m.FeedRequests,
		m.RollupDuration,
	)
	return m
}

// Handler returns the /metrics HTTP handler for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
