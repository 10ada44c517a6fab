package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics provides observability for the grant backend.
// It registers on its own registry so tests and multiple instances do not collide.
type Metrics struct {
	registry *prometheus.Registry

	ApplicationsSubmitted prometheus.Counter
	StatusUpdates         *prometheus.CounterVec
	PurchasesConfirmed    prometheus.Counter
	SideEffectFailures    *prometheus.CounterVec
	UpstreamCalls         *prometheus.CounterVec
	UpstreamDuration      *prometheus.HistogramVec
	RateLimited           *prometheus.CounterVec
}

// New creates a new Metrics instance with all grant metrics registered.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		ApplicationsSubmitted: factory.NewCounter(prometheus.CounterOpts{
			Name: "social_grant_applications_submitted_total",
			Help: "Total number of applications accepted",
		}),
		StatusUpdates: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "social_grant_status_updates_total",
			Help: "Total number of reviewer status changes by target status",
		}, []string{"status"}),
		PurchasesConfirmed: factory.NewCounter(prometheus.CounterOpts{
			Name: "social_grant_purchases_confirmed_total",
			Help: "Total number of confirmed purchases",
		}),
		SideEffectFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "social_grant_side_effect_failures_total",
			Help: "Failed credential feed writes and notifications by kind",
		}, []string{"kind"}),
		UpstreamCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "social_grant_upstream_calls_total",
			Help: "Calls to the identity provider by endpoint and outcome",
		}, []string{"endpoint", "outcome"}),
		UpstreamDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "social_grant_upstream_duration_seconds",
			Help:    "Duration of identity provider calls",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"endpoint"}),
		RateLimited: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "social_grant_rate_limited_total",
			Help: "Requests rejected by the rate limiter by bucket",
		}, []string{"bucket"}),
	}
}

func (m *Metrics) ApplicationSubmitted() {
	m.ApplicationsSubmitted.Inc()
}

func (m *Metrics) StatusUpdated(status string) {
	m.StatusUpdates.WithLabelValues(status).Inc()
}

func (m *Metrics) PurchaseConfirmed() {
	m.PurchasesConfirmed.Inc()
}

// ObserveSideEffectFailure counts a failed or abandoned side effect
func (m *Metrics) ObserveSideEffectFailure(kind string) {
	m.SideEffectFailures.WithLabelValues(kind).Inc()
}

// ObserveUpstream records one identity provider call
func (m *Metrics) ObserveUpstream(endpoint, outcome string, elapsed time.Duration) {
	m.UpstreamCalls.WithLabelValues(endpoint, outcome).Inc()
	m.UpstreamDuration.WithLabelValues(endpoint).Observe(elapsed.Seconds())
}

func (m *Metrics) ObserveRateLimited(bucket string) {
	m.RateLimited.WithLabelValues(bucket).Inc()
}

// Registry exposes the underlying registry, mainly for tests
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
