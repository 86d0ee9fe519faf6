// Package metrics exposes headset events and broker counters to prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/charlie0129/hxstat/pkg/broker"
	"github.com/charlie0129/hxstat/pkg/events"
)

const namespace = "hxstat"

// StatsFunc returns the current broker counters.
type StatsFunc func() broker.Stats

// Metrics owns a private registry, so tests and multiple daemons in one
// process do not collide on the global one.
type Metrics struct {
	registry *prometheus.Registry

	events  *prometheus.CounterVec
	battery prometheus.Gauge
	muted   prometheus.Gauge
	powered prometheus.Gauge
}

// New registers the event collectors, plus the broker counters when stats is
// not nil.
func New(stats StatsFunc) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Headset events delivered to subscribers, by event name.",
		}, []string{"event"}),
		battery: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "battery_percent",
			Help:      "Last reported headset battery level.",
		}),
		muted: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "microphone_muted",
			Help:      "1 if the microphone was last reported muted.",
		}),
		powered: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "power_on",
			Help:      "1 if the headset was last reported powered on.",
		}),
	}

	m.registry.MustRegister(
		m.events, m.battery, m.muted, m.powered,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	if stats != nil {
		m.registerStats(stats)
	}

	return m
}

func (m *Metrics) registerStats(stats StatsFunc) {
	counter := func(name, help string, get func(broker.Stats) uint64) prometheus.Collector {
		return prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "broker",
			Name:      name,
			Help:      help,
		}, func() float64 { return float64(get(stats())) })
	}

	m.registry.MustRegister(
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "broker",
			Name:      "subscribers",
			Help:      "Active broker subscribers.",
		}, func() float64 { return float64(stats().Subscribers) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "broker",
			Name:      "connected",
			Help:      "1 if a device handle is open.",
		}, func() float64 {
			if stats().State == broker.Connected {
				return 1
			}
			return 0
		}),
		counter("connects_total", "Connection attempts, reconnects included.", func(s broker.Stats) uint64 { return s.Connects }),
		counter("open_failures_total", "Failed connection attempts.", func(s broker.Stats) uint64 { return s.OpenFailures }),
		counter("cleanups_total", "Device handles torn down.", func(s broker.Stats) uint64 { return s.Cleanups }),
		counter("listener_errors_total", "Subscriber callbacks that panicked.", func(s broker.Stats) uint64 { return s.ListenerErrors }),
		counter("health_checks_total", "Health monitor ticks.", func(s broker.Stats) uint64 { return s.StaleChecks }),
	)
}

// Handle records e. Pass it to Subscribe.
func (m *Metrics) Handle(e events.Event) {
	m.events.WithLabelValues(e.Name()).Inc()

	switch ev := e.(type) {
	case events.Battery:
		m.battery.Set(float64(ev.Percent))
	case events.Muted:
		m.muted.Set(boolToFloat(ev.Value))
	case events.Power:
		m.powered.Set(boolToFloat(ev.State == events.PowerOn))
	}
}

// Registry returns the registry holding every collector.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
