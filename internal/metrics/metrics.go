// Package metrics exports engine activity as Prometheus metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Collector holds the clojalk metric set. It implements core.Observer.
type Collector struct {
	registry *prometheus.Registry

	commands    *prometheus.CounterVec
	jobsInserts *prometheus.CounterVec
	jobTimeouts prometheus.Counter
	jobStates   *prometheus.GaugeVec
	connections prometheus.Gauge
	walAppends  prometheus.CounterFunc
}

// NewCollector registers the metric set on a fresh registry.
func NewCollector(walAppends func() uint64) *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "clojalk_commands_total",
			Help: "Commands dispatched, by verb",
		}, []string{"command"}),
		jobsInserts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "clojalk_jobs_inserted_total",
			Help: "Jobs inserted, by tube",
		}, []string{"tube"}),
		jobTimeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "clojalk_job_timeouts_total",
			Help: "Reservations expired by TTR",
		}),
		jobStates: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "clojalk_jobs",
			Help: "Current jobs, by state",
		}, []string{"state"}),
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "clojalk_connections",
			Help: "Open client connections",
		}),
	}
	c.registry.MustRegister(c.commands, c.jobsInserts, c.jobTimeouts, c.jobStates, c.connections)
	if walAppends != nil {
		c.walAppends = prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name: "clojalk_wal_appends_total",
			Help: "Records appended to the write-ahead log",
		}, func() float64 { return float64(walAppends()) })
		c.registry.MustRegister(c.walAppends)
	}
	return c
}

// Registry exposes the underlying registry for the /metrics handler.
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// Command implements core.Observer.
func (c *Collector) Command(name string) {
	c.commands.WithLabelValues(name).Inc()
}

// JobInserted implements core.Observer.
func (c *Collector) JobInserted(tube string) {
	c.jobsInserts.WithLabelValues(tube).Inc()
}

// JobTimedOut implements core.Observer.
func (c *Collector) JobTimedOut() {
	c.jobTimeouts.Inc()
}

// JobStates implements core.Observer.
func (c *Collector) JobStates(ready, delayed, reserved, buried int) {
	c.jobStates.WithLabelValues("ready").Set(float64(ready))
	c.jobStates.WithLabelValues("delayed").Set(float64(delayed))
	c.jobStates.WithLabelValues("reserved").Set(float64(reserved))
	c.jobStates.WithLabelValues("buried").Set(float64(buried))
}

// ConnOpened tracks a new client connection.
func (c *Collector) ConnOpened() { c.connections.Inc() }

// ConnClosed tracks a finished client connection.
func (c *Collector) ConnClosed() { c.connections.Dec() }
