package worker

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/mqtt2influxdb/metric"
)

const (
	defaultWorkers   = 10
	defaultQueueSize = 1000
)

type poolState int

const (
	idle poolState = iota
	running
	stopped
)

// Pool runs a processor over work items of type T on a fixed number of
// goroutines fed by a bounded queue
type Pool[T any] struct {
	workers   int
	queueSize int
	processor func(context.Context, T) error
	onPanic   func(work T, recovered any)
	registry  metric.MetricsRegistrar
	name      string
	duration  *prometheus.HistogramVec

	queue chan T
	quit  chan struct{} // closed once the pool stops accepting work
	once  sync.Once
	wg    sync.WaitGroup

	// Submitters hold the read lock so Stop never closes queue under them
	mu    sync.RWMutex
	state poolState

	submitted atomic.Int64
	processed atomic.Int64
	failed    atomic.Int64
	dropped   atomic.Int64
	panics    atomic.Int64
	busy      atomic.Int64
}

// Option configures a Pool
type Option[T any] func(*Pool[T])

// WithMetrics exports the pool counters, queue depth, utilization and a
// processing-time histogram as <namespace>_<name>_*
func WithMetrics[T any](registry metric.MetricsRegistrar, name string) Option[T] {
	return func(p *Pool[T]) {
		p.registry = registry
		p.name = name
	}
}

// WithPanicHandler is called with the work item and recovered value when the
// processor panics. The pool keeps running either way.
func WithPanicHandler[T any](fn func(work T, recovered any)) Option[T] {
	return func(p *Pool[T]) {
		p.onPanic = fn
	}
}

// NewPool creates a worker pool. Zero workers or queue size select defaults.
// It panics on a nil processor.
func NewPool[T any](workers, queueSize int, processor func(context.Context, T) error, opts ...Option[T]) *Pool[T] {
	if processor == nil {
		panic(errNilProcessor)
	}
	if workers <= 0 {
		workers = defaultWorkers
	}
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}

	p := &Pool[T]{
		workers:   workers,
		queueSize: queueSize,
		processor: processor,
		queue:     make(chan T, queueSize),
		quit:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.registry != nil && p.name != "" {
		p.registerMetrics()
	}
	return p
}

// registerMetrics reads the atomic counters at scrape time. Registration
// errors leave the pool working without the affected series.
func (p *Pool[T]) registerMetrics() {
	opts := func(name, help string) prometheus.Opts {
		return prometheus.Opts{Namespace: metric.Namespace, Subsystem: p.name, Name: name, Help: help}
	}
	counter := func(name, help string, v *atomic.Int64) prometheus.Collector {
		return prometheus.NewCounterFunc(prometheus.CounterOpts(opts(name, help)), func() float64 {
			return float64(v.Load())
		})
	}
	gauge := func(name, help string, fn func() float64) prometheus.Collector {
		return prometheus.NewGaugeFunc(prometheus.GaugeOpts(opts(name, help)), fn)
	}

	p.duration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: metric.Namespace,
		Subsystem: p.name,
		Name:      "processing_duration_seconds",
		Help:      "Time spent processing one work item",
		Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 8),
	}, []string{"status"})

	collectors := map[string]prometheus.Collector{
		"submitted": counter("submitted_total", "Work items accepted into the queue", &p.submitted),
		"processed": counter("processed_total", "Work items processed", &p.processed),
		"failed":    counter("failed_total", "Work items whose processor failed or panicked", &p.failed),
		"dropped":   counter("dropped_total", "Work items rejected by a full queue", &p.dropped),
		"queue_depth": gauge("queue_depth", "Work items waiting for a worker", func() float64 {
			return float64(len(p.queue))
		}),
		"utilization": gauge("utilization", "Fraction of workers busy", func() float64 {
			return float64(p.busy.Load()) / float64(p.workers)
		}),
		"duration": p.duration,
	}
	for name, c := range collectors {
		_ = p.registry.Register("worker."+p.name, name, c)
	}
}

// Start launches the workers. Cancelling ctx makes them exit without draining
// and stops the pool from accepting work.
func (p *Pool[T]) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state != idle {
		return ErrPoolAlreadyStarted
	}
	p.state = running

	p.wg.Add(p.workers)
	for range p.workers {
		go p.run(ctx)
	}
	go func() {
		select {
		case <-ctx.Done():
			p.stopAccepting()
		case <-p.quit:
		}
	}()
	return nil
}

func (p *Pool[T]) stopAccepting() {
	p.once.Do(func() { close(p.quit) })
}

// admit must be called with the read lock held
func (p *Pool[T]) admit() error {
	switch p.state {
	case idle:
		return ErrPoolNotStarted
	case stopped:
		return ErrPoolStopped
	}
	select {
	case <-p.quit:
		return ErrPoolStopped
	default:
		return nil
	}
}

// Submit enqueues work without blocking. A full queue drops the item and
// returns ErrQueueFull.
func (p *Pool[T]) Submit(work T) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if err := p.admit(); err != nil {
		return err
	}
	select {
	case p.queue <- work:
		p.submitted.Add(1)
		return nil
	default:
		p.dropped.Add(1)
		return ErrQueueFull
	}
}

// SubmitWait enqueues work, blocking while the queue is full until ctx is
// done or the pool stops
func (p *Pool[T]) SubmitWait(ctx context.Context, work T) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if err := p.admit(); err != nil {
		return err
	}
	select {
	case p.queue <- work:
		p.submitted.Add(1)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-p.quit:
		return ErrPoolStopped
	}
}

// Stop stops accepting work, lets the workers drain the queue and waits up
// to timeout for them. Stopping twice, or a pool never started, is a no-op.
func (p *Pool[T]) Stop(timeout time.Duration) error {
	// Blocked SubmitWait callers hold the read lock; release them first
	p.stopAccepting()

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state != running {
		return nil
	}
	p.state = stopped
	close(p.queue)

	drained := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(drained)
	}()

	select {
	case <-drained:
		return nil
	case <-time.After(timeout):
		return ErrStopTimeout
	}
}

func (p *Pool[T]) run(ctx context.Context) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case work, ok := <-p.queue:
			if !ok {
				return
			}
			p.process(ctx, work)
		}
	}
}

func (p *Pool[T]) process(ctx context.Context, work T) {
	p.busy.Add(1)
	defer p.busy.Add(-1)

	start := time.Now()
	err := p.call(ctx, work)
	p.processed.Add(1)

	status := "ok"
	if err != nil {
		p.failed.Add(1)
		status = "error"
	}
	if p.duration != nil {
		p.duration.WithLabelValues(status).Observe(time.Since(start).Seconds())
	}
}

func (p *Pool[T]) call(ctx context.Context, work T) (err error) {
	defer func() {
		if r := recover(); r != nil {
			p.panics.Add(1)
			if p.onPanic != nil {
				p.onPanic(work, r)
			}
			err = fmt.Errorf("%w: %v", ErrProcessorPanic, r)
		}
	}()
	return p.processor(ctx, work)
}

// Stats is a snapshot of the pool counters
type Stats struct {
	Workers    int   `json:"workers"`
	QueueSize  int   `json:"queue_size"`
	QueueDepth int   `json:"queue_depth"`
	Busy       int64 `json:"busy"`
	Submitted  int64 `json:"submitted"`
	Processed  int64 `json:"processed"`
	Failed     int64 `json:"failed"`
	Dropped    int64 `json:"dropped"`
	Panics     int64 `json:"panics"`
}

func (p *Pool[T]) Stats() Stats {
	return Stats{
		Workers:    p.workers,
		QueueSize:  p.queueSize,
		QueueDepth: len(p.queue),
		Busy:       p.busy.Load(),
		Submitted:  p.submitted.Load(),
		Processed:  p.processed.Load(),
		Failed:     p.failed.Load(),
		Dropped:    p.dropped.Load(),
		Panics:     p.panics.Load(),
	}
}
