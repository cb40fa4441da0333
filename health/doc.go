// Package health tracks the health of the bridge components and serves it on
// /health.
//
// A component is healthy, degraded (the InfluxDB ping failed at startup but
// writes may still succeed) or unhealthy (a transport is disconnected).
//
//	monitor := health.NewMonitor("mqtt2influxdb")
//	monitor.UpdateHealthy("input.mqtt", "connected")
//	monitor.UpdateUnhealthy("sink.influxdb", err.Error())
//	client, _ := natsclient.NewClient(url,
//	    natsclient.WithHealthChangeCallback(monitor.ConnectionReporter("natsclient")))
//
// The aggregate takes the worst component level. Monitor is an http.Handler
// that answers 503 while the aggregate is unhealthy, so it works as a
// container liveness probe.
//
// Messages given to UpdateUnhealthy and UpdateDegraded go through Sanitize,
// which replaces credentials, URLs, file paths, IP addresses and ports.
package health
