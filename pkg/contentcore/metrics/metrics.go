// Package metrics turns content lifecycle events into Prometheus metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/tendant/content-core/pkg/contentcore"
)

// Collector owns a private Prometheus registry with the content metrics and
// the Go runtime collectors.
type Collector struct {
	registry *prometheus.Registry

	EventsTotal        *prometheus.CounterVec
	OperationsInFlight *prometheus.GaugeVec
}

// NewCollector creates and registers the content metrics
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),

		EventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "content_core",
				Name:      "events_total",
				Help:      "Total number of content lifecycle events by phase",
			},
			[]string{"content_type", "operation", "phase"},
		),

		OperationsInFlight: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "content_core",
				Name:      "operations_in_flight",
				Help:      "Content operations started but not yet finished",
			},
			[]string{"content_type", "operation"},
		),
	}

	c.registry.MustRegister(
		c.EventsTotal,
		c.OperationsInFlight,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

// Registry returns the underlying Prometheus registry
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Attach subscribes to every event on bus and returns the detach func.
func (c *Collector) Attach(bus *contentcore.EventBus) func() {
	return bus.Subscribe(c.Observe)
}

// Observe records one event. Unknown event types are ignored.
func (c *Collector) Observe(event contentcore.Event) {
	op, phase := event.Type.Operation(), event.Type.Phase()
	if op == "" {
		return
	}

	c.EventsTotal.WithLabelValues(event.ContentType, op, phase).Inc()

	inFlight := c.OperationsInFlight.WithLabelValues(event.ContentType, op)
	if phase == contentcore.PhaseStart {
		inFlight.Inc()
	} else {
		inFlight.Dec()
	}
}

// Handler serves the registry in the Prometheus text format
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}
