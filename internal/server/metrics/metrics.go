// Package metrics defines the Prometheus metrics exported by tooltool.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Verification outcomes.
const (
	OutcomeVerified     = "verified"
	OutcomeRejected     = "rejected"
	OutcomeAbandoned    = "abandoned"
	OutcomeUnconfigured = "unconfigured"
	OutcomeMissing      = "missing"
)

// Replication outcomes.
const (
	OutcomeCopied  = "copied"
	OutcomeFailed  = "failed"
	OutcomeSkipped = "skipped"
)

type Metrics struct {
	GrantsIssued    *prometheus.CounterVec   // tooltool_upload_grants_total{region}
	Verifications   *prometheus.CounterVec   // tooltool_verifications_total{outcome}
	Replications    *prometheus.CounterVec   // tooltool_replications_total{outcome}
	Downloads       *prometheus.CounterVec   // tooltool_downloads_total{via}
	RequestsTotal   *prometheus.CounterVec   // tooltool_http_requests_total{method,route,status}
	RequestDuration *prometheus.HistogramVec // tooltool_http_request_duration_seconds{route}
}

// New registers the metrics with registry, or the default registerer when nil.
func New(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	f := promauto.With(registry)
	return &Metrics{
		GrantsIssued: f.NewCounterVec(prometheus.CounterOpts{
			Name: "tooltool_upload_grants_total",
			Help: "Upload grants issued by region",
		}, []string{"region"}),

		Verifications: f.NewCounterVec(prometheus.CounterOpts{
			Name: "tooltool_verifications_total",
			Help: "Pending upload checks by outcome",
		}, []string{"outcome"}),

		Replications: f.NewCounterVec(prometheus.CounterOpts{
			Name: "tooltool_replications_total",
			Help: "Replication attempts by outcome",
		}, []string{"outcome"}),

		Downloads: f.NewCounterVec(prometheus.CounterOpts{
			Name: "tooltool_downloads_total",
			Help: "Download redirects by delivery path",
		}, []string{"via"}),

		RequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "tooltool_http_requests_total",
			Help: "HTTP requests by method, route and status",
		}, []string{"method", "route", "status"}),

		RequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tooltool_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
	}
}

func (m *Metrics) GrantIssued(region string) {
	if m == nil {
		return
	}
	m.GrantsIssued.WithLabelValues(region).Inc()
}

func (m *Metrics) Verification(outcome string) {
	if m == nil {
		return
	}
	m.Verifications.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Replication(outcome string) {
	if m == nil {
		return
	}
	m.Replications.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Download(via string) {
	if m == nil {
		return
	}
	m.Downloads.WithLabelValues(via).Inc()
}

func (m *Metrics) Request(method, route string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.RequestDuration.WithLabelValues(route).Observe(elapsed.Seconds())
}
