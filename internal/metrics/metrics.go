package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "oidc_connector"

// Metrics holds the counters describing sign-in flow outcomes.
type Metrics struct {
	registry *prometheus.Registry

	AuthStarted      prometheus.Counter
	AuthOutcomes     *prometheus.CounterVec // label: outcome
	AuthFailures     *prometheus.CounterVec // label: reason
	Disconnects      prometheus.Counter
	StatesPurged     prometheus.Counter
	ExchangeDuration prometheus.Histogram
}

// New creates Metrics on a private registry that also carries the Go
// runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		AuthStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_started_total",
			Help:      "Authorization requests sent to the provider.",
		}),
		AuthOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_completed_total",
			Help:      "Successful callbacks by resolution outcome.",
		}, []string{"outcome"}),
		AuthFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_failed_total",
			Help:      "Failed callbacks by error kind.",
		}, []string{"reason"}),
		Disconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "disconnects_total",
			Help:      "Accounts unlinked from the provider.",
		}),
		StatesPurged: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "states_purged_total",
			Help:      "Expired state/nonce pairs removed by housekeeping.",
		}),
		ExchangeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "token_exchange_duration_seconds",
			Help:      "Latency of authorization code exchanges.",
			Buckets:   prometheus.DefBuckets,
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.AuthStarted,
		m.AuthOutcomes,
		m.AuthFailures,
		m.Disconnects,
		m.StatesPurged,
		m.ExchangeDuration,
	)
	return m
}

// ObserveExchange records how long an exchange starting at start took.
func (m *Metrics) ObserveExchange(start time.Time) {
	m.ExchangeDuration.Observe(time.Since(start).Seconds())
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
