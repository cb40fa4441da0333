// Package natsclient wraps nats.go for the optional NATS input and sink.
//
// The client tracks the connection state, reports it on the transport gauges
// and drains the connection on Close. Subscribe hands every message to a
// MessageHandler with a per-message deadline; Publish, EnsureStream and
// PublishToStream cover the record sink.
//
//	client, err := natsclient.NewClient("nats://localhost:4222",
//	    natsclient.WithName("mqtt2influxdb"),
//	    natsclient.WithLogger(logger),
//	)
//	if err != nil {
//	    return err
//	}
//	if err := client.Connect(ctx); err != nil {
//	    return err
//	}
//	defer client.Close(context.Background())
//
// # Circuit breaker
//
// Failed connects, stream creations and stream publishes are counted. After
// five consecutive failures (WithCircuitBreaker) Status reports
// StatusCircuitOpen and those operations fail fast with ErrCircuitOpen for
// one second. The next failure after that reopens it for twice as long, up to
// a minute. Any success closes it.
//
// nats.go reconnects on its own; subscriptions survive reconnects.
//
// Integration tests start a NATS container with testcontainers-go. They need
// the integration build tag and INTEGRATION_TESTS set.
package natsclient
