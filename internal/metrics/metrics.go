// Package metrics collects and exposes Prometheus metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder is the metrics interface consumed by services.
type Recorder interface {
	RecordLocationSaved()
	RecordLocationDeleted()
	RecordSaveRetry()
	RecordAuthFailure(code string)
	RecordGeocodeLatency(d time.Duration)
	RecordGeocodeFailure()
	RecordOrphanedBlob()
}

// Collector implements Recorder backed by a Prometheus registry.
type Collector struct {
	locationsSaved   prometheus.Counter
	locationsDeleted prometheus.Counter
	saveRetries      prometheus.Counter
	authFailures     *prometheus.CounterVec
	geocodeLatency   prometheus.Histogram
	geocodeFailures  prometheus.Counter
	orphanedBlobs    prometheus.Counter
}

var _ Recorder = (*Collector)(nil)

// NewCollector creates a Collector and registers its metrics with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		locationsSaved: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "merkel_locations_saved_total",
			Help: "Total saved or updated locations.",
		}),
		locationsDeleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "merkel_locations_deleted_total",
			Help: "Total deleted locations.",
		}),
		saveRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "merkel_save_retries_total",
			Help: "Total persistence retries during location saves.",
		}),
		authFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "merkel_auth_failures_total",
			Help: "Authentication failures by code.",
		}, []string{"code"}),
		geocodeLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "merkel_geocode_latency_seconds",
			Help:    "Latency of forward and reverse geocode calls.",
			Buckets: prometheus.DefBuckets,
		}),
		geocodeFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "merkel_geocode_failures_total",
			Help: "Failed geocode calls.",
		}),
		orphanedBlobs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "merkel_orphaned_blobs_total",
			Help: "Photo blobs left behind after a failed best-effort delete.",
		}),
	}

	reg.MustRegister(
		c.locationsSaved,
		c.locationsDeleted,
		c.saveRetries,
		c.authFailures,
		c.geocodeLatency,
		c.geocodeFailures,
		c.orphanedBlobs,
	)

	return c
}

func (c *Collector) RecordLocationSaved()   { c.locationsSaved.Inc() }
func (c *Collector) RecordLocationDeleted() { c.locationsDeleted.Inc() }
func (c *Collector) RecordSaveRetry()       { c.saveRetries.Inc() }

func (c *Collector) RecordAuthFailure(code string) {
	c.authFailures.WithLabelValues(code).Inc()
}

func (c *Collector) RecordGeocodeLatency(d time.Duration) {
	c.geocodeLatency.Observe(d.Seconds())
}

func (c *Collector) RecordGeocodeFailure() { c.geocodeFailures.Inc() }
func (c *Collector) RecordOrphanedBlob()   { c.orphanedBlobs.Inc() }

// Handler returns the HTTP handler exposing the registry.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

// Noop is a Recorder that discards everything; used in tests.
type Noop struct{}

var _ Recorder = Noop{}

func (Noop) RecordLocationSaved()                 {}
func (Noop) RecordLocationDeleted()               {}
func (Noop) RecordSaveRetry()                     {}
func (Noop) RecordAuthFailure(string)             {}
func (Noop) RecordGeocodeLatency(_ time.Duration) {}
func (Noop) RecordGeocodeFailure()                {}
func (Noop) RecordOrphanedBlob()                  {}
