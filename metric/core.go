package metric

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Namespace prefixes every metric exported by this module
const Namespace = "mads"

// Metrics contains the protocol-level metrics shared by every pipeline
type Metrics struct {
	// Plugin operations
	PluginOperations  *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec
	PluginInstances   *prometheus.CounterVec

	// Pipelines
	PipelineCycles *prometheus.CounterVec

	// Persistence service
	StoreOperations *prometheus.CounterVec

	// NATS connection
	NATSConnected  prometheus.Gauge
	NATSReconnects prometheus.Counter
}

// NewMetrics creates a new Metrics instance
func NewMetrics() *Metrics {
	return &Metrics{
		PluginOperations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: "plugin",
				Name:      "operations_total",
				Help:      "Plugin operations by driver, role, operation and returned status",
			},
			[]string{"driver", "role", "operation", "status"},
		),

		OperationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: Namespace,
				Subsystem: "plugin",
				Name:      "operation_duration_seconds",
				Help:      "Plugin operation duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"driver", "role", "operation"},
		),

		PluginInstances: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: "plugin",
				Name:      "instances_total",
				Help:      "Plugin instance lifecycle events (created, terminated, disposed)",
			},
			[]string{"driver", "role", "state"},
		),

		PipelineCycles: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: "pipeline",
				Name:      "cycles_total",
				Help:      "Pipeline cycles by worst stage status",
			},
			[]string{"pipeline", "status"},
		),

		StoreOperations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: "store",
				Name:      "operations_total",
				Help:      "Persistence service operations by backend, operation and outcome",
			},
			[]string{"backend", "operation", "outcome"},
		),

		NATSConnected: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: Namespace,
				Subsystem: "nats",
				Name:      "connected",
				Help:      "NATS connection status (0=disconnected, 1=connected)",
			},
		),

		NATSReconnects: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: "nats",
				Name:      "reconnects_total",
				Help:      "Total number of NATS reconnections",
			},
		),
	}
}

func (c *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		c.PluginOperations,
		c.OperationDuration,
		c.PluginInstances,
		c.PipelineCycles,
		c.StoreOperations,
		c.NATSConnected,
		c.NATSReconnects,
	}
}

// RecordOperation counts a plugin operation and observes its duration
func (c *Metrics) RecordOperation(driver, role, operation, status string, duration time.Duration) {
	if c == nil {
		return
	}
	c.PluginOperations.WithLabelValues(driver, role, operation, status).Inc()
	c.OperationDuration.WithLabelValues(driver, role, operation).Observe(duration.Seconds())
}

// RecordInstance counts a plugin instance lifecycle event
func (c *Metrics) RecordInstance(driver, role, state string) {
	if c == nil {
		return
	}
	c.PluginInstances.WithLabelValues(driver, role, state).Inc()
}

// RecordCycle counts a pipeline cycle with its worst status
func (c *Metrics) RecordCycle(pipeline, status string) {
	if c == nil {
		return
	}
	c.PipelineCycles.WithLabelValues(pipeline, status).Inc()
}

// RecordStoreOperation counts a persistence service operation
func (c *Metrics) RecordStoreOperation(backend, operation string, err error) {
	if c == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	c.StoreOperations.WithLabelValues(backend, operation, outcome).Inc()
}

// RecordNATSStatus updates NATS connection status
func (c *Metrics) RecordNATSStatus(connected bool) {
	if c == nil {
		return
	}
	value := 0.0
	if connected {
		value = 1.0
	}
	c.NATSConnected.Set(value)
}

// RecordNATSReconnect increments reconnection counter
func (c *Metrics) RecordNATSReconnect() {
	if c == nil {
		return
	}
	c.NATSReconnects.Inc()
}
