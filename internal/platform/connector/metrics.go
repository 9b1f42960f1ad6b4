package connector

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/ehr/fits/internal/domain/forecast"
)

// Metrics exposes counters and histograms for connector queries.
type Metrics struct {
	queries   *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	unmatched *prometheus.CounterVec
}

// NewMetrics creates the connector collectors and registers them with reg,
// or with the default registerer when reg is nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		queries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fits",
			Subsystem: "connector",
			Name:      "queries_total",
			Help:      "Forecast queries by target system and outcome",
		}, []string{"software", "service_type", "status"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "fits",
			Subsystem: "connector",
			Name:      "query_seconds",
			Help:      "Latency of forecast queries",
			Buckets:   prometheus.DefBuckets,
		}, []string{"software", "service_type"}),
		unmatched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fits",
			Subsystem: "connector",
			Name:      "unmatched_lines_total",
			Help:      "Reply lines no decoder recognized",
		}, []string{"software"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.queries, m.latency, m.unmatched)
	return m
}

// ObserveQuery counts one query by outcome and records its latency.
func (m *Metrics) ObserveQuery(sw forecast.Software, status string, seconds float64) {
	if m == nil {
		return
	}
	m.queries.WithLabelValues(sw.Name, sw.ServiceType, status).Inc()
	m.latency.WithLabelValues(sw.Name, sw.ServiceType).Observe(seconds)
}

// ObserveUnmatched adds n reply lines that no decoder recognized.
func (m *Metrics) ObserveUnmatched(sw forecast.Software, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.unmatched.WithLabelValues(sw.Name).Add(float64(n))
}
