// Package message defines what flows between the bridge stages.
//
// Inputs produce a Message per broker delivery. The topic is normalised to
// MQTT form so one mapping table serves both transports. After mapping, sinks
// that emit JSON (NATS, file) serialize the record as a RecordEnvelope:
//
//	{"id":"6f1c...","measurement":"sensors","topic":"sensors/kitchen",
//	 "fields":{"temperature":21.5},"tags":{"room":"kitchen"},"timestamp":1700000000000}
package message
