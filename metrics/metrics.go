// Package metrics exposes consumer events as Prometheus metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/jacklaaa89/msgq"
)

const (
	namespace = "msgq"
)

// Collector counts consumer events per queue and kind, Observe is a msgq.Observer.
type Collector struct {
	events *prometheus.CounterVec
}

// New creates a collector and registers it with reg.
func New(reg prometheus.Registerer) (*Collector, error) {
	c := &Collector{
		events: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "consumer",
				Name:      "events_total",
				Help:      "Total number of consumer events, labeled by queue and event kind",
			},
			[]string{"queue", "kind"},
		),
	}
	if err := reg.Register(c.events); err != nil {
		return nil, err
	}
	return c, nil
}

// Observe implements msgq.Observer.
func (c *Collector) Observe(e msgq.Event) {
	c.events.WithLabelValues(e.Queue, string(e.Kind)).Inc()
}
