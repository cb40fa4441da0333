// Package bridge connects the broker inputs to the sinks.
//
// Inputs call Handle for every message. Handle queues the message on a
// worker.Pool; each worker maps it with the mapping.Engine and writes the
// record to every sink concurrently.
//
//	b, err := bridge.New(bridge.Deps{
//	    Engine:  mapping.NewEngine(cfg),
//	    Sinks:   []output.Sink{influx, archive},
//	    Workers: config.WorkersConfig{Count: 4, QueueSize: 1024},
//	    Metrics: registry.CoreMetrics(),
//	    Logger:  logger,
//	})
//
// # Outcomes
//
// A message either becomes a record or is dropped with one of the
// metric.Drop* reasons:
//
//   - no_match: no entry matches the topic (debug log)
//   - decode: the matching entry could not decode the payload (sampled warning)
//   - no_fields: a sink returned output.ErrNoFields for a tag-only record; counted
//     once per refusing sink, which is not a write failure. InfluxDB refuses
//     them, the NATS and file sinks store them.
//   - queue_full: the queue stayed full (DropWhenFull, or the caller's context expired)
//
// Unsupported field values skip the field only; the rest of the record is kept.
//
// # Sink failures
//
// A failed write is logged (sampled), counted per sink and never stops the
// bridge or the other sinks. Records are not retried. The bridge reports
// Degraded while any sink's latest write failed.
//
// # Ordering
//
// With more than one worker, records may reach the sinks out of order. Each
// record carries the time its message was received, so the time series is
// unaffected.
package bridge
