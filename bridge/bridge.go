package bridge

import (
	"context"
	stderrors "errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/c360/mqtt2influxdb/component"
	"github.com/c360/mqtt2influxdb/config"
	"github.com/c360/mqtt2influxdb/errors"
	"github.com/c360/mqtt2influxdb/mapping"
	"github.com/c360/mqtt2influxdb/message"
	"github.com/c360/mqtt2influxdb/metric"
	"github.com/c360/mqtt2influxdb/output"
	"github.com/c360/mqtt2influxdb/pkg/worker"
)

// DefaultWriteTimeout bounds a single sink write
const DefaultWriteTimeout = 10 * time.Second

// Deps holds everything the bridge needs
type Deps struct {
	Engine  *mapping.Engine
	Sinks   []output.Sink
	Workers config.WorkersConfig

	// WriteTimeout bounds each sink write (DefaultWriteTimeout when zero)
	WriteTimeout time.Duration

	Metrics  *metric.Metrics
	Registry *metric.MetricsRegistry // optional, registers worker pool metrics
	Logger   *slog.Logger
}

type sinkState struct {
	sink     output.Sink
	writes   atomic.Int64
	failures atomic.Int64
	failing  atomic.Bool
}

// Bridge maps received messages to records and writes them to every sink
type Bridge struct {
	engine       *mapping.Engine
	sinks        []*sinkState
	workers      config.WorkersConfig
	writeTimeout time.Duration
	metrics      *metric.Metrics
	logger       *slog.Logger
	dataLog      *sampledLogger // decode and skipped-field warnings
	sinkLog      *sampledLogger // sink failures

	pool   *worker.Pool[message.Message]
	cancel context.CancelFunc

	mu        sync.Mutex
	running   atomic.Bool
	startedAt atomic.Int64
	lastError atomic.Value // string

	received      atomic.Int64
	mapped        atomic.Int64
	noMatch       atomic.Int64
	decodeErrors  atomic.Int64
	fieldsSkipped atomic.Int64
	noFields      atomic.Int64
	queueDropped  atomic.Int64
}

// Stats is a snapshot of bridge counters
type Stats struct {
	Received      int64            `json:"received"`
	Mapped        int64            `json:"mapped"`
	NoMatch       int64            `json:"no_match"`
	DecodeErrors  int64            `json:"decode_errors"`
	FieldsSkipped int64            `json:"fields_skipped"`
	NoFields      int64            `json:"no_fields"`
	QueueDropped  int64            `json:"queue_dropped"`
	SinkWrites    map[string]int64 `json:"sink_writes"`
	SinkFailures  map[string]int64 `json:"sink_failures"`
	Pool          worker.Stats     `json:"pool"`
}

// New creates a bridge. Call Initialize and Start before handing messages to
// Handle.
func New(deps Deps) (*Bridge, error) {
	if deps.Engine == nil {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "Bridge", "New", "mapping engine is required")
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "bridge")

	timeout := deps.WriteTimeout
	if timeout <= 0 {
		timeout = DefaultWriteTimeout
	}

	b := &Bridge{
		engine:       deps.Engine,
		workers:      deps.Workers,
		writeTimeout: timeout,
		metrics:      deps.Metrics,
		logger:       logger,
		dataLog:      newSampledLogger(logger, 100*time.Millisecond, 20),
		sinkLog:      newSampledLogger(logger, time.Second, 5),
	}
	for _, s := range deps.Sinks {
		if s != nil {
			b.sinks = append(b.sinks, &sinkState{sink: s})
		}
	}

	opts := []worker.Option[message.Message]{
		worker.WithPanicHandler(func(msg message.Message, r any) {
			b.logger.Error("Processor panic", "topic", msg.Topic, "panic", r)
		}),
	}
	if deps.Registry != nil {
		opts = append(opts, worker.WithMetrics[message.Message](deps.Registry, "bridge_pool"))
	}
	b.pool = worker.NewPool(deps.Workers.Count, deps.Workers.QueueSize, b.process, opts...)

	return b, nil
}

// Meta returns component metadata
func (b *Bridge) Meta() component.Metadata {
	return component.Metadata{
		Name:        "bridge",
		Type:        component.TypeProcessor,
		Description: "Maps broker messages to time-series records",
		Version:     "1.0.0",
	}
}

// Health is degraded while any sink's latest write failed
func (b *Bridge) Health() component.HealthStatus {
	running := b.running.Load()

	var uptime time.Duration
	if running {
		uptime = time.Since(time.Unix(0, b.startedAt.Load()))
	}

	degraded := false
	failures := 0
	for _, s := range b.sinks {
		if s.failing.Load() {
			degraded = true
		}
		failures += int(s.failures.Load())
	}

	lastErr, _ := b.lastError.Load().(string)
	return component.HealthStatus{
		Healthy:    running,
		Degraded:   running && degraded,
		LastCheck:  time.Now(),
		ErrorCount: failures + int(b.decodeErrors.Load()),
		LastError:  lastErr,
		Uptime:     uptime,
		Processed:  b.mapped.Load(),
	}
}

// Initialize checks that there is somewhere to write to
func (b *Bridge) Initialize() error {
	if len(b.sinks) == 0 {
		return errors.WrapInvalid(errors.ErrMissingConfig, "Bridge", "Initialize", "at least one sink is required")
	}
	if b.engine.Len() == 0 {
		return errors.WrapInvalid(errors.ErrMissingConfig, "Bridge", "Initialize", "mapping has no entries")
	}
	return nil
}

// Start launches the workers. They run until Stop drains them; cancelling
// ctx does not abandon queued messages.
func (b *Bridge) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.running.Load() {
		return errors.WrapFatal(errors.ErrAlreadyStarted, "Bridge", "Start", "check running state")
	}

	poolCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	if err := b.pool.Start(poolCtx); err != nil {
		cancel()
		return errors.WrapFatal(err, "Bridge", "Start", "start worker pool")
	}
	b.cancel = cancel

	b.running.Store(true)
	b.startedAt.Store(time.Now().UnixNano())

	names := make([]string, len(b.sinks))
	for i, s := range b.sinks {
		names[i] = s.sink.Name()
	}
	stats := b.pool.Stats()
	b.logger.Info("Bridge started",
		"entries", b.engine.Len(),
		"sinks", names,
		"workers", stats.Workers,
		"queue_size", stats.QueueSize,
		"drop_when_full", b.workers.DropWhenFull)
	return nil
}

// Stop drains queued messages for up to timeout, then closes every sink
func (b *Bridge) Stop(timeout time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.running.Load() {
		return nil
	}
	b.running.Store(false)

	var errs []error
	if err := b.pool.Stop(timeout); err != nil {
		errs = append(errs, errors.WrapTransient(err, "Bridge", "Stop", "drain worker pool"))
	}
	b.cancel()

	for _, s := range b.sinks {
		if err := s.sink.Close(); err != nil {
			errs = append(errs, errors.Wrap(err, "Bridge", "Stop", "close sink "+s.sink.Name()))
		}
	}

	st := b.Stats()
	b.logger.Info("Bridge stopped",
		"received", st.Received,
		"mapped", st.Mapped,
		"no_match", st.NoMatch,
		"decode_errors", st.DecodeErrors,
		"queue_dropped", st.QueueDropped)

	return stderrors.Join(errs...)
}

// Handle queues msg for processing. It has the input.Handler signature.
//
// By default it blocks while the queue is full, which stalls the broker
// delivery goroutine. With DropWhenFull the message is dropped instead.
func (b *Bridge) Handle(ctx context.Context, msg message.Message) {
	b.received.Add(1)

	var err error
	if b.workers.DropWhenFull {
		err = b.pool.Submit(msg)
	} else {
		err = b.pool.SubmitWait(ctx, msg)
	}
	if err == nil {
		return
	}

	switch {
	case stderrors.Is(err, worker.ErrQueueFull), stderrors.Is(err, context.DeadlineExceeded):
		b.queueDropped.Add(1)
		b.metrics.RecordDropped(metric.DropQueueFull)
		b.dataLog.Warn("Message dropped, queue full", "topic", msg.Topic, "transport", msg.Transport)
	default:
		// Shutting down
		b.logger.Debug("Message not queued", "topic", msg.Topic, "error", err)
	}
}

// process maps one message and writes the record to every sink
func (b *Bridge) process(ctx context.Context, msg message.Message) error {
	start := time.Now()

	res, matched, err := b.engine.Handle(msg.Topic, msg.Payload)
	if !matched {
		b.noMatch.Add(1)
		b.metrics.RecordDropped(metric.DropNoMatch)
		b.logger.Debug("No mapping entry for topic", "topic", msg.Topic)
		return nil
	}
	if err != nil {
		b.decodeErrors.Add(1)
		b.metrics.RecordDropped(metric.DropDecode)
		b.dataLog.Warn("Payload decode failed",
			"topic", msg.Topic,
			"measurement", res.Entry.DstName,
			"bytes", len(msg.Payload),
			"error", err)
		return nil
	}

	measurement := res.Record.Name
	if n := len(res.Skipped); n > 0 {
		b.fieldsSkipped.Add(int64(n))
		b.metrics.RecordFieldsSkipped(measurement, n)
		for _, fe := range res.Skipped {
			b.dataLog.Warn("Field skipped", "topic", msg.Topic, "measurement", measurement, "error", fe)
		}
	}

	b.mapped.Add(1)
	b.metrics.RecordMapped(measurement)

	err = b.fanOut(ctx, output.Record{Record: res.Record, Topic: msg.Topic, Time: msg.ReceivedAt})
	b.metrics.RecordProcessingDuration(measurement, time.Since(start))
	return err
}

// fanOut writes rec to all sinks concurrently. A failing sink does not cancel
// the others; the first error is returned.
func (b *Bridge) fanOut(ctx context.Context, rec output.Record) error {
	if len(b.sinks) == 1 {
		return b.write(ctx, b.sinks[0], rec)
	}

	var g errgroup.Group
	for _, s := range b.sinks {
		g.Go(func() error {
			return b.write(ctx, s, rec)
		})
	}
	return g.Wait()
}

func (b *Bridge) write(ctx context.Context, s *sinkState, rec output.Record) error {
	ctx, cancel := context.WithTimeout(ctx, b.writeTimeout)
	defer cancel()

	start := time.Now()
	err := s.sink.Write(ctx, rec)
	if stderrors.Is(err, output.ErrNoFields) {
		b.noFields.Add(1)
		b.metrics.RecordDropped(metric.DropNoFields)
		b.logger.Debug("Sink refused record without fields",
			"sink", s.sink.Name(), "topic", rec.Topic, "measurement", rec.Name)
		return nil
	}
	b.metrics.RecordSinkWrite(s.sink.Name(), time.Since(start), err)

	if err != nil {
		s.failures.Add(1)
		s.failing.Store(true)
		b.lastError.Store(err.Error())
		b.sinkLog.Error("Sink write failed",
			"sink", s.sink.Name(),
			"measurement", rec.Name,
			"topic", rec.Topic,
			"transient", errors.IsTransient(err),
			"error", err)
		return err
	}

	s.writes.Add(1)
	s.failing.Store(false)
	return nil
}

// Stats returns a snapshot of the counters
func (b *Bridge) Stats() Stats {
	st := Stats{
		Received:      b.received.Load(),
		Mapped:        b.mapped.Load(),
		NoMatch:       b.noMatch.Load(),
		DecodeErrors:  b.decodeErrors.Load(),
		FieldsSkipped: b.fieldsSkipped.Load(),
		NoFields:      b.noFields.Load(),
		QueueDropped:  b.queueDropped.Load(),
		SinkWrites:    make(map[string]int64, len(b.sinks)),
		SinkFailures:  make(map[string]int64, len(b.sinks)),
		Pool:          b.pool.Stats(),
	}
	for _, s := range b.sinks {
		st.SinkWrites[s.sink.Name()] += s.writes.Load()
		st.SinkFailures[s.sink.Name()] += s.failures.Load()
	}
	return st
}
