// Package metrics exposes the runtime's counters on a private prometheus
// registry so embedders can mount or scrape them.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the runtime's instruments.
type Metrics struct {
	registry *prometheus.Registry

	MacrotasksDispatched prometheus.Counter
	MacrotasksInFlight   prometheus.Gauge
	TimersFired          prometheus.Counter
	TimersCleared        prometheus.Counter
	CronsRegistered      prometheus.Counter
	CronsFired           prometheus.Counter
	LocksGranted         prometheus.Counter
	LocksStolen          prometheus.Counter
	LocksAborted         prometheus.Counter
}

// New creates a Metrics with its own registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	counter := func(name, help string) prometheus.Counter {
		return factory.NewCounter(prometheus.CounterOpts{
			Namespace: "andromeda",
			Name:      name,
			Help:      help,
		})
	}
	return &Metrics{
		registry:             reg,
		MacrotasksDispatched: counter("macrotasks_dispatched_total", "Macrotasks dispatched by the event loop."),
		MacrotasksInFlight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "andromeda",
			Name:      "macrotasks_in_flight",
			Help:      "Background tasks spawned and not yet retired.",
		}),
		TimersFired:     counter("timers_fired_total", "Timeout and interval callbacks invoked."),
		TimersCleared:   counter("timers_cleared_total", "Timers removed by clearTimeout/clearInterval."),
		CronsRegistered: counter("crons_registered_total", "Cron jobs accepted by registration."),
		CronsFired:      counter("crons_fired_total", "Cron callbacks invoked."),
		LocksGranted:    counter("locks_granted_total", "Web Locks grants."),
		LocksStolen:     counter("locks_stolen_total", "Web Locks steals."),
		LocksAborted:    counter("locks_aborted_total", "Web Locks requests aborted."),
	}
}

// Registry returns the underlying registry for scraping.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }
