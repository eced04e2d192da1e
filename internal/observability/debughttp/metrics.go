package debughttp

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const namespace = "picotick"

// Sample is one copy of the process counters, taken on the scheduler goroutine.
type Sample struct {
	Ticks, Fired, Overruns, Rejected uint64
	Active, Capacity                 int
	LastTick, MaxTick                time.Duration

	Polls, Readings, ReadErrors uint64
	DistanceCM                  uint32
	HasDistance                 bool

	Written, Dropped, WriteErrors uint64

	Goroutines int64
}

// Metrics mirrors Samples into Prometheus collectors. Monotonic values are
// exported as counters by adding the delta since the previous Observe.
type Metrics struct {
	reg *prometheus.Registry

	ticks, fired, overruns, rejected prometheus.Counter
	active, capacity                 prometheus.Gauge
	lastTick, maxTick                prometheus.Gauge
	polls, readings, readErrors      prometheus.Counter
	distance                         prometheus.Gauge
	written, dropped, writeErrors    prometheus.Counter
	goroutines                       prometheus.Gauge

	prev Sample
}

func NewMetrics() *Metrics {
	counter := func(sub, name, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{Namespace: namespace, Subsystem: sub, Name: name, Help: help})
	}
	gauge := func(sub, name, help string) prometheus.Gauge {
		return prometheus.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Subsystem: sub, Name: name, Help: help})
	}

	m := &Metrics{
		reg: prometheus.NewRegistry(),

		ticks:    counter("scheduler", "ticks_total", "Scheduler ticks run."),
		fired:    counter("scheduler", "fired_total", "Task callbacks invoked."),
		overruns: counter("scheduler", "overruns_total", "Ticks slower than the overrun budget."),
		rejected: counter("scheduler", "rejected_total", "Nested tick calls refused."),
		active:   gauge("scheduler", "tasks", "Registered tasks."),
		capacity: gauge("scheduler", "capacity", "Registry capacity."),
		lastTick: gauge("scheduler", "last_tick_seconds", "Duration of the most recent tick."),
		maxTick:  gauge("scheduler", "max_tick_seconds", "Longest tick seen."),

		polls:      counter("sensor", "polls_total", "Sensor ready-flag checks."),
		readings:   counter("sensor", "readings_total", "Readings published on the bus."),
		readErrors: counter("sensor", "read_errors_total", "Failed sensor reads."),
		distance:   gauge("sensor", "distance_cm", "Last published distance."),

		written:     counter("storage", "written_total", "Readings persisted."),
		dropped:     counter("storage", "dropped_total", "Readings dropped because the writer was behind."),
		writeErrors: counter("storage", "write_errors_total", "Failed batch writes."),

		goroutines: gauge("supervisor", "goroutines", "Supervised goroutines running."),
	}
	m.reg.MustRegister(
		m.ticks, m.fired, m.overruns, m.rejected, m.active, m.capacity, m.lastTick, m.maxTick,
		m.polls, m.readings, m.readErrors, m.distance,
		m.written, m.dropped, m.writeErrors,
		m.goroutines,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry is what /metrics serves.
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// Observe must be called from a single goroutine.
func (m *Metrics) Observe(s Sample) {
	addDelta(m.ticks, s.Ticks, m.prev.Ticks)
	addDelta(m.fired, s.Fired, m.prev.Fired)
	addDelta(m.overruns, s.Overruns, m.prev.Overruns)
	addDelta(m.rejected, s.Rejected, m.prev.Rejected)
	m.active.Set(float64(s.Active))
	m.capacity.Set(float64(s.Capacity))
	m.lastTick.Set(s.LastTick.Seconds())
	m.maxTick.Set(s.MaxTick.Seconds())

	addDelta(m.polls, s.Polls, m.prev.Polls)
	addDelta(m.readings, s.Readings, m.prev.Readings)
	addDelta(m.readErrors, s.ReadErrors, m.prev.ReadErrors)
	if s.HasDistance {
		m.distance.Set(float64(s.DistanceCM))
	}

	addDelta(m.written, s.Written, m.prev.Written)
	addDelta(m.dropped, s.Dropped, m.prev.Dropped)
	addDelta(m.writeErrors, s.WriteErrors, m.prev.WriteErrors)

	m.goroutines.Set(float64(s.Goroutines))
	m.prev = s
}

func addDelta(c prometheus.Counter, cur, prev uint64) {
	if cur > prev {
		c.Add(float64(cur - prev))
	}
}
