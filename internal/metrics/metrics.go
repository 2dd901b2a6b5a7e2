// Package metrics holds the Prometheus collectors of the directory service.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "directory"

// Metrics groups every collector the service reports.
type Metrics struct {
	ProposalsSubmitted *prometheus.CounterVec
	ProposalsReviewed  *prometheus.CounterVec
	GeocoderRequests   *prometheus.CounterVec
	GeocoderLatency    prometheus.Histogram
	HTTPRequests       *prometheus.CounterVec
	HTTPDuration       *prometheus.HistogramVec
}

// New creates the collectors and registers them with reg. A nil reg leaves
// them unregistered, which is what tests want.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ProposalsSubmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "proposals_submitted_total",
			Help:      "Proposals accepted for review, by operation.",
		}, []string{"operation"}),
		ProposalsReviewed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "proposals_reviewed_total",
			Help:      "Proposals reviewed, by operation and decision.",
		}, []string{"operation", "decision"}),
		GeocoderRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "geocoder_requests_total",
			Help:      "Geocoder lookups, by where the answer came from.",
		}, []string{"source"}),
		GeocoderLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "geocoder_request_duration_seconds",
			Help:      "Latency of upstream geocoder calls.",
			Buckets:   prometheus.DefBuckets,
		}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests, by method and status code.",
		}, []string{"method", "status"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency, by method.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
	}
	if reg != nil {
		reg.MustRegister(
			m.ProposalsSubmitted,
			m.ProposalsReviewed,
			m.GeocoderRequests,
			m.GeocoderLatency,
			m.HTTPRequests,
			m.HTTPDuration,
		)
	}
	return m
}

// ObserveGeocoderCall records one upstream geocoder round trip.
func (m *Metrics) ObserveGeocoderCall(started time.Time) {
	if m == nil {
		return
	}
	m.GeocoderLatency.Observe(time.Since(started).Seconds())
}

// IncGeocoder counts a lookup answered from source.
func (m *Metrics) IncGeocoder(source string) {
	if m == nil {
		return
	}
	m.GeocoderRequests.WithLabelValues(source).Inc()
}

// IncSubmitted counts an accepted proposal.
func (m *Metrics) IncSubmitted(operation string) {
	if m == nil {
		return
	}
	m.ProposalsSubmitted.WithLabelValues(operation).Inc()
}

// IncReviewed counts a completed review.
func (m *Metrics) IncReviewed(operation, decision string) {
	if m == nil {
		return
	}
	m.ProposalsReviewed.WithLabelValues(operation, decision).Inc()
}
