// Package metrics holds the Prometheus collectors for session lifecycle
// events.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Result label values.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
	ResultReused  = "reused"
)

// Collectors groups the counters recorded by the auth service. A nil
// *Collectors is valid and records nothing.
type Collectors struct {
	registry      *prometheus.Registry
	logins        *prometheus.CounterVec
	refreshes     *prometheus.CounterVec
	registrations *prometheus.CounterVec
}

// New creates the collectors on a dedicated registry.
func New() *Collectors {
	c := &Collectors{
		registry: prometheus.NewRegistry(),
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "userauth",
			Name:      "logins_total",
			Help:      "Login attempts by result.",
		}, []string{"result"}),
		refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "userauth",
			Name:      "refreshes_total",
			Help:      "Refresh token rotations by result.",
		}, []string{"result"}),
		registrations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "userauth",
			Name:      "registrations_total",
			Help:      "User registrations by result.",
		}, []string{"result"}),
	}
	c.registry.MustRegister(c.logins, c.refreshes, c.registrations)
	return c
}

func (c *Collectors) Login(result string) {
	if c != nil {
		c.logins.WithLabelValues(result).Inc()
	}
}

func (c *Collectors) Refresh(result string) {
	if c != nil {
		c.refreshes.WithLabelValues(result).Inc()
	}
}

func (c *Collectors) Registration(result string) {
	if c != nil {
		c.registrations.WithLabelValues(result).Inc()
	}
}

// Registry exposes the underlying registry, mainly for tests.
func (c *Collectors) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collectors) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
