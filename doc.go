// Package mqtt2influxdb bridges MQTT topics to InfluxDB time-series points.
//
// A YAML mapping document lists entries. Each entry names a source topic
// filter, a destination measurement and how to pull values out of the payload.
// Every incoming message is matched against the entries in order, the first
// match is decoded into a record of fields and tags, and the record is written
// to every configured sink.
//
// # Data flow
//
//	MQTT broker ──┐
//	              ├─► bridge (worker pool) ──► mapping.Engine ──┬─► InfluxDB
//	NATS subjects ┘                                             ├─► NATS subjects / JetStream
//	                                                            └─► JSON-lines file
//
// # Packages
//
// Core:
//   - mapping: topic matching, payload paths, value coercion, record building
//     and the YAML loader
//
// Transports and sinks:
//   - input/mqtt: paho subscriber for every mapped topic
//   - input/nats: the same topics received from NATS subjects
//   - output/influxdb: blocking writes with millisecond precision
//   - output/nats: record envelopes published per measurement
//   - output/file: record envelopes appended as JSON lines, optionally zstd
//
// Runtime:
//   - bridge: worker pool, mapping and sink fan-out
//   - component: lifecycle interfaces and the start/stop manager
//   - config: runtime configuration from environment and flags
//   - errors: classified errors (transient, invalid, fatal)
//   - metric, health: Prometheus metrics and the /health endpoint
//   - natsclient: NATS connection with circuit breaker and JetStream helpers
//   - pkg/cache, pkg/retry, pkg/worker, pkg/timestamp, pkg/tlsutil: shared helpers
//
// # Mapping document
//
//	entries:
//	  - src_topic: sensors/+/temp
//	    dst_name: temperature
//	    type: json
//	    fields:
//	      - src_path: value
//	        dst_name: celsius
//	      - src_path: unit
//	        dst_variant: tag
//	  - src_topic: home/door
//	    dst_name: door
//	    type: single_text
//	    dst_variant: tag
//	    field_name: state
//
// # Running
//
//	mqtt2influxdb --config mapping.yaml \
//	    --mqtt-url mqtt://broker \
//	    --influxdb-url http://influx:8086 \
//	    --influxdb-org home --influxdb-bucket sensors --influxdb-jwt $TOKEN
//
// Every flag falls back to an environment variable (MQTT_URL, INFLUXDB_URL,
// INFLUXDB_BUCKET, INFLUXDB_ORG, INFLUXDB_JWT, CONFIG and so on). Use
// --validate to check a mapping document without connecting anywhere.
package mqtt2influxdb
