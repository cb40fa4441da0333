// Package metric provides Prometheus metrics for the bridge.
//
// # Overview
//
// MetricsRegistry wraps a private prometheus.Registry preloaded with:
//
//   - the core bridge Metrics (messages received, mapped and dropped, skipped
//     fields, sink writes, transport connection state)
//   - Go runtime and process collectors
//
// Components that need their own series (the worker pool, for example) register
// them through the MetricsRegistrar methods, keyed by component name so that a
// double registration returns an invalid error instead of panicking.
//
// # Nil Safety
//
// Every Record method on *Metrics is a no-op on a nil receiver, and
// (*MetricsRegistry)(nil).CoreMetrics() returns nil. Components built without
// a registry therefore need no conditionals:
//
//	m := deps.MetricsRegistry.CoreMetrics()
//	m.RecordReceived("mqtt") // safe when the registry is nil
//
// # HTTP
//
// Server serves the registry on /metrics (OpenMetrics enabled) and delegates
// /health to the handler it was given, normally a *health.Monitor:
//
//	srv := metric.NewServer(9090, "/metrics", registry, monitor)
//	go func() { _ = srv.Run(ctx) }() // shuts down when ctx is done
//
// All metric names carry the "mqtt2influxdb" namespace.
package metric
