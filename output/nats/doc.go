// Package nats republishes mapped records on NATS as JSON RecordEnvelopes.
//
// A record named temperature is published on <prefix>.temperature. Characters
// that are not allowed in a subject token are replaced with '_'. With a stream
// configured, New creates or updates the stream over <prefix>.> and each Write
// waits for the JetStream ack.
package nats
