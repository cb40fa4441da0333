// Package worker provides a generic, thread-safe worker pool.
//
// # Overview
//
// The bridge hands each received message to a Pool[message.Message]. A fixed
// number of goroutines run the processor (map the message, write to sinks)
// while a bounded channel absorbs bursts from the broker.
//
//	pool := worker.NewPool(4, 1024, b.process,
//	    worker.WithMetrics[message.Message](registry, "bridge_pool"),
//	    worker.WithPanicHandler(func(msg message.Message, r any) {
//	        logger.Error("Processor panic", "topic", msg.Topic, "panic", r)
//	    }),
//	)
//	if err := pool.Start(ctx); err != nil {
//	    return err
//	}
//	defer pool.Stop(5 * time.Second)
//
// # Submitting
//
// Submit never blocks: a full queue drops the item and returns ErrQueueFull.
// SubmitWait blocks until there is room, ctx is done or the pool stops. Blocking
// inside a broker callback pushes backpressure onto the broker connection
// instead of losing messages.
//
// # Shutdown
//
// Stop closes the queue, lets workers drain what is already queued and waits
// up to the timeout (ErrStopTimeout otherwise). Cancelling the Start context
// makes workers exit without draining.
//
// # Panics
//
// A panicking processor is recovered; the item counts as failed, Stats().Panics
// is incremented and the optional panic handler is called.
//
// # Observability
//
// Stats is always available. WithMetrics additionally exports the same
// counters, queue depth and utilization, read at scrape time, plus a
// processing-time histogram under the mqtt2influxdb namespace.
package worker
