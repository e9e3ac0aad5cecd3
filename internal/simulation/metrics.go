package simulation

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "solirona"

// Metrics holds the engine's Prometheus instruments. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	ticks        prometheus.Counter
	collapses    prometheus.Counter
	tickDuration prometheus.Histogram
	population   prometheus.Gauge
	collapsed    prometheus.Gauge
	edges        prometheus.Gauge
	running      prometheus.Gauge
	commands     *prometheus.CounterVec
}

// NewMetrics registers the engine instruments with reg. Passing a fresh
// prometheus.NewRegistry() keeps tests isolated from the default registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		ticks: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "engine",
			Name:      "rounds_total",
			Help:      "Total evolution rounds executed",
		}),
		collapses: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "engine",
			Name:      "collapses_total",
			Help:      "Total entity collapses",
		}),
		tickDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "engine",
			Name:      "tick_duration_seconds",
			Help:      "Wall time of one Tick call including every round it ran",
			Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 1},
		}),
		population: f.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: "graph",
			Name:      "entities",
			Help:      "Current population",
		}),
		collapsed: f.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: "graph",
			Name:      "collapsed_entities",
			Help:      "Entities currently collapsed",
		}),
		edges: f.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: "graph",
			Name:      "relations",
			Help:      "Current undirected relation count",
		}),
		running: f.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: "engine",
			Name:      "driver_running",
			Help:      "1 while the automatic driver is active",
		}),
		// Labels: command, outcome (ok, invalid, unknown, duplicate, error)
		commands: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "engine",
			Name:      "commands_total",
			Help:      "Engine commands by kind and outcome",
		}, []string{"command", "outcome"}),
	}
}

func (m *Metrics) observeTicks(rounds, collapses int, d time.Duration) {
	if m == nil {
		return
	}
	m.ticks.Add(float64(rounds))
	m.collapses.Add(float64(collapses))
	m.tickDuration.Observe(d.Seconds())
}

func (m *Metrics) observeCollapses(n int) {
	if m == nil {
		return
	}
	m.collapses.Add(float64(n))
}

func (m *Metrics) observeGraph(population, collapsed, edges int) {
	if m == nil {
		return
	}
	m.population.Set(float64(population))
	m.collapsed.Set(float64(collapsed))
	m.edges.Set(float64(edges))
}

func (m *Metrics) setRunning(on bool) {
	if m == nil {
		return
	}
	if on {
		m.running.Set(1)
	} else {
		m.running.Set(0)
	}
}

func (m *Metrics) observeCommand(command string, err error) {
	if m == nil {
		return
	}
	m.commands.WithLabelValues(command, outcome(err)).Inc()
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrInvalidParameter):
		return "invalid"
	case errors.Is(err, ErrUnknownEntity):
		return "unknown"
	case errors.Is(err, ErrDuplicateIdentifier):
		return "duplicate"
	default:
		return "error"
	}
}
