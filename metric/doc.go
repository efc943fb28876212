// Package metric provides Prometheus metrics for hosts that drive plugins.
//
// MetricsRegistry wraps a private prometheus.Registry that already carries the Go
// runtime and process collectors plus the core protocol metrics:
//
//	mads_plugin_operations_total{driver,role,operation,status}
//	mads_plugin_operation_duration_seconds{driver,role,operation}
//	mads_plugin_instances_total{driver,role,state}
//	mads_pipeline_cycles_total{pipeline,status}
//	mads_store_operations_total{backend,operation,outcome}
//	mads_nats_connected, mads_nats_reconnects_total
//
// Components register their own collectors through MetricsRegistrar, keyed by
// owner and metric name so the same component cannot register twice:
//
//	writes := prometheus.NewCounter(prometheus.CounterOpts{
//	    Namespace: metric.Namespace, Subsystem: "file_sink", Name: "records_total",
//	})
//	if err := registry.RegisterCounter("file", "records_total", writes); err != nil {
//	    return err
//	}
//
// The Record* helpers on Metrics are nil-safe, so code paths built without a
// registry can call them unconditionally.
//
// Server exposes the registry over HTTP with promhttp on the configured path
// (default /metrics) and a plain /health endpoint.
package metric
