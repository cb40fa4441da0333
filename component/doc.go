// Package component defines the lifecycle contract shared by the bridge's
// inputs, outputs and the bridge itself.
//
// Every long-running part implements LifecycleComponent:
//
//	Initialize() error                 // validate config, build clients
//	Start(ctx context.Context) error   // connect, subscribe, spawn goroutines
//	Stop(timeout time.Duration) error  // drain and release resources
//
// The context passed to Start is never stored beyond the goroutines it governs.
//
// Manager owns ordering: StartAll runs Initialize on everything, then Start in
// registration order, rolling back on failure. StopAll runs in reverse, so
// inputs registered last stop first and sinks registered first are the last
// to close. WatchHealth periodically copies each component's HealthStatus into
// a health.Monitor keyed by Metadata.Key ("input.mqtt", "output.influxdb").
package component
