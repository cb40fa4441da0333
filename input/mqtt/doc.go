// Package mqtt provides the MQTT input component built on the Eclipse paho client.
//
// # Overview
//
// The input subscribes to every src_topic of the mapping table and hands each
// message to an input.Handler, usually the bridge:
//
//	in, err := mqtt.NewInput(mqtt.InputDeps{
//	    Config:  cfg.MQTT,
//	    Topics:  engine.Topics(),
//	    Handler: b.Handle,
//	    Metrics: registry.CoreMetrics(),
//	    Logger:  logger,
//	})
//
// # Connection
//
// The broker URL accepts mqtt:// and tcp:// (port 1883 by default) and
// mqtts://, ssl:// or tls:// (port 8883). A client_id query parameter overrides
// the configured client id. Start retries the first connect with
// retry.Persistent(); after that paho reconnects on its own and the connect
// handler restores the subscriptions.
//
// # Health
//
// A running input whose broker connection dropped reports Degraded until paho
// reconnects. The mqtt label of the transport gauges follows the same state.
package mqtt
