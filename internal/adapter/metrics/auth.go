package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// AuthMetrics covers the profile cache and the identity provider behind it.
type AuthMetrics struct {
	CacheLookups     *prometheus.CounterVec
	IdentityRequests *prometheus.CounterVec
	IdentityDuration prometheus.Histogram
	Outcomes         *prometheus.CounterVec
}

func NewAuthMetrics(reg prometheus.Registerer) *AuthMetrics {
	m := &AuthMetrics{
		CacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "profile_cache",
			Name:      "lookups_total",
			Help:      "Profile cache lookups by result (hit, miss, error).",
		}, []string{"result"}),
		IdentityRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "identity",
			Name:      "requests_total",
			Help:      "Identity provider profile fetches by result.",
		}, []string{"result"}),
		IdentityDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "identity",
			Name:      "request_duration_seconds",
			Help:      "Identity provider profile fetch latency.",
			Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}),
		Outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "outcomes_total",
			Help:      "Authentication outcomes (ok, unauthenticated, no_channel, error).",
		}, []string{"outcome"}),
	}

	reg.MustRegister(m.CacheLookups, m.IdentityRequests, m.IdentityDuration, m.Outcomes)
	return m
}

func (m *AuthMetrics) CacheLookup(result string) {
	m.CacheLookups.WithLabelValues(result).Inc()
}

func (m *AuthMetrics) IdentityRequest(result string, d time.Duration) {
	m.IdentityRequests.WithLabelValues(result).Inc()
	m.IdentityDuration.Observe(d.Seconds())
}

func (m *AuthMetrics) Outcome(outcome string) {
	m.Outcomes.WithLabelValues(outcome).Inc()
}
