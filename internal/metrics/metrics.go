// Package metrics holds the Prometheus collectors for backend selection.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "quoteselect"

// Cache decision labels.
const (
	CacheHit    = "hit"
	CacheMiss   = "miss"
	CacheBypass = "bypass"
)

// FanOut labels selections that landed in the default bucket.
const FanOut = "fanout"

type Metrics struct {
	Selections     *prometheus.CounterVec
	CacheDecisions *prometheus.CounterVec
	BackendErrors  *prometheus.CounterVec
}

// New creates the collectors and registers them with reg. A nil reg leaves
// them unregistered, which keeps tests independent of the default registry.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		Selections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backend_selections_total",
			Help:      "Requests routed to each backend by the weighted selector.",
		}, []string{"backend"}),
		CacheDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_decisions_total",
			Help:      "Per-request cache outcomes: hit, miss or bypass.",
		}, []string{"decision"}),
		BackendErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backend_errors_total",
			Help:      "Failed fetches per backend.",
		}, []string{"backend"}),
	}
	if reg == nil {
		return m, nil
	}
	for _, c := range []prometheus.Collector{m.Selections, m.CacheDecisions, m.BackendErrors} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Unregistered returns collectors that are not attached to any registry.
func Unregistered() *Metrics {
	m, _ := New(nil)
	return m
}
