package bridge

import (
	"context"
	stderrors "errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/mqtt2influxdb/config"
	"github.com/c360/mqtt2influxdb/errors"
	"github.com/c360/mqtt2influxdb/mapping"
	"github.com/c360/mqtt2influxdb/message"
	"github.com/c360/mqtt2influxdb/metric"
	"github.com/c360/mqtt2influxdb/output"
)

const mappingDoc = `
entries:
  - src_topic: sensors/+/temp
    dst_name: temperature
    type: json
    fields:
      - src_path: value
        dst_name: celsius
      - src_path: humidity
      - src_path: unit
        dst_variant: tag
  - src_topic: home/door
    dst_name: door
    type: single_text
    dst_variant: tag
    field_name: state
  - src_topic: home/window
    dst_name: window
    type: single_text
    field_name: state
`

type fakeSink struct {
	name string

	mu      sync.Mutex
	records []output.Record
	failN   int // fail this many writes, then succeed
	closed  bool
	panics  bool
	gate    chan struct{}
	entered chan struct{}

	// Records without fields are refused with output.ErrNoFields, as
	// InfluxDB does, unless acceptTagOnly is set
	acceptTagOnly bool
}

func (f *fakeSink) Name() string { return f.name }

func (f *fakeSink) Write(ctx context.Context, rec output.Record) error {
	if f.entered != nil {
		f.entered <- struct{}{}
	}
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if f.panics {
		panic("sink exploded")
	}
	if !f.acceptTagOnly && !rec.HasFields() {
		return errors.WrapInvalid(output.ErrNoFields, "fakeSink", "Write", "build point")
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failN > 0 {
		f.failN--
		return errors.WrapTransient(errors.ErrStorageUnavailable, "fakeSink", "Write", "write")
	}
	f.records = append(f.records, rec)
	return nil
}

func (f *fakeSink) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeSink) written() []output.Record {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]output.Record(nil), f.records...)
}

func newEngine(t *testing.T) *mapping.Engine {
	t.Helper()
	cfg, err := mapping.Parse([]byte(mappingDoc))
	require.NoError(t, err)
	return mapping.NewEngine(cfg)
}

func newBridge(t *testing.T, workers config.WorkersConfig, sinks ...output.Sink) (*Bridge, *metric.Metrics) {
	t.Helper()
	metrics := metric.NewMetrics()
	b, err := New(Deps{
		Engine:  newEngine(t),
		Sinks:   sinks,
		Workers: workers,
		Metrics: metrics,
	})
	require.NoError(t, err)
	require.NoError(t, b.Initialize())
	require.NoError(t, b.Start(context.Background()))
	return b, metrics
}

func defaultWorkers() config.WorkersConfig {
	return config.WorkersConfig{Count: 2, QueueSize: 16}
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Deps{})
	assert.True(t, errors.IsInvalid(err))

	b, err := New(Deps{Engine: newEngine(t)})
	require.NoError(t, err)
	assert.True(t, errors.IsInvalid(b.Initialize()), "no sinks")

	b, err = New(Deps{Engine: mapping.NewEngine(nil), Sinks: []output.Sink{&fakeSink{name: "a"}}})
	require.NoError(t, err)
	assert.True(t, errors.IsInvalid(b.Initialize()), "empty mapping")
}

func TestBridge_MapsAndFansOut(t *testing.T) {
	influx := &fakeSink{name: "influxdb"}
	archive := &fakeSink{name: "file"}
	b, metrics := newBridge(t, defaultWorkers(), influx, archive)

	msg := message.New(message.TransportMQTT, "sensors/kitchen/temp", []byte(`{"value":21.5,"humidity":40,"unit":"C"}`))
	b.Handle(context.Background(), msg)
	require.NoError(t, b.Stop(time.Second))

	for _, sink := range []*fakeSink{influx, archive} {
		recs := sink.written()
		require.Len(t, recs, 1, sink.name)

		rec := recs[0]
		assert.Equal(t, "temperature", rec.Name)
		assert.Equal(t, "sensors/kitchen/temp", rec.Topic)
		assert.True(t, rec.Time.Equal(msg.ReceivedAt))

		want := map[string]any{"celsius": 21.5, "humidity": 40.0}
		if diff := cmp.Diff(want, rec.FieldMap()); diff != "" {
			t.Errorf("fields mismatch (-want +got):\n%s", diff)
		}
		assert.Equal(t, map[string]string{"unit": "C"}, rec.TagMap())
		assert.True(t, sink.closed)
	}

	st := b.Stats()
	assert.Equal(t, int64(1), st.Received)
	assert.Equal(t, int64(1), st.Mapped)
	assert.Equal(t, map[string]int64{"influxdb": 1, "file": 1}, st.SinkWrites)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.MessagesMapped.WithLabelValues("temperature")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.RecordsWritten.WithLabelValues("influxdb")))
}

func TestBridge_DropOutcomes(t *testing.T) {
	tests := []struct {
		name    string
		topic   string
		payload string
		reason  string
		stat    func(Stats) int64
	}{
		{
			name:    "no matching entry",
			topic:   "garage/light",
			payload: "on",
			reason:  metric.DropNoMatch,
			stat:    func(s Stats) int64 { return s.NoMatch },
		},
		{
			name:    "payload is not json",
			topic:   "sensors/kitchen/temp",
			payload: "21.5 C",
			reason:  metric.DropDecode,
			stat:    func(s Stats) int64 { return s.DecodeErrors },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sink := &fakeSink{name: "influxdb"}
			b, metrics := newBridge(t, defaultWorkers(), sink)

			b.Handle(context.Background(), message.New(message.TransportMQTT, tt.topic, []byte(tt.payload)))
			require.NoError(t, b.Stop(time.Second))

			assert.Empty(t, sink.written())
			assert.Equal(t, int64(1), tt.stat(b.Stats()))
			assert.Equal(t, 1.0, testutil.ToFloat64(metrics.MessagesDropped.WithLabelValues(tt.reason)))
		})
	}
}

func TestBridge_TagOnlyRecordReachesSinks(t *testing.T) {
	influx := &fakeSink{name: "influxdb"}
	archive := &fakeSink{name: "file", acceptTagOnly: true}
	b, metrics := newBridge(t, defaultWorkers(), influx, archive)

	b.Handle(context.Background(), message.New(message.TransportMQTT, "home/door", []byte("open")))
	require.NoError(t, b.Stop(time.Second))

	assert.Empty(t, influx.written())
	recs := archive.written()
	require.Len(t, recs, 1)
	assert.Equal(t, "door", recs[0].Name)
	assert.Equal(t, map[string]string{"state": "open"}, recs[0].TagMap())
	assert.Empty(t, recs[0].FieldMap())

	st := b.Stats()
	assert.Equal(t, int64(1), st.Mapped)
	assert.Equal(t, int64(1), st.NoFields)
	assert.Equal(t, map[string]int64{"influxdb": 0, "file": 1}, st.SinkWrites)
	assert.Equal(t, map[string]int64{"influxdb": 0, "file": 0}, st.SinkFailures)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.MessagesDropped.WithLabelValues(metric.DropNoFields)))
	assert.Zero(t, testutil.ToFloat64(metrics.RecordsFailed.WithLabelValues("influxdb")))
}

func TestBridge_SkippedFieldKeepsRecord(t *testing.T) {
	sink := &fakeSink{name: "influxdb"}
	b, metrics := newBridge(t, defaultWorkers(), sink)

	b.Handle(context.Background(), message.New(message.TransportMQTT, "sensors/attic/temp",
		[]byte(`{"value":30,"humidity":null}`)))
	require.NoError(t, b.Stop(time.Second))

	recs := sink.written()
	require.Len(t, recs, 1)
	assert.Equal(t, map[string]any{"celsius": 30.0}, recs[0].FieldMap())
	assert.Equal(t, int64(1), b.Stats().FieldsSkipped)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.FieldsSkipped.WithLabelValues("temperature")))
}

func TestBridge_SingleTextField(t *testing.T) {
	sink := &fakeSink{name: "influxdb"}
	b, _ := newBridge(t, defaultWorkers(), sink)

	b.Handle(context.Background(), message.New(message.TransportNATS, "home/window", []byte("closed")))
	require.NoError(t, b.Stop(time.Second))

	recs := sink.written()
	require.Len(t, recs, 1)
	assert.Equal(t, "window", recs[0].Name)
	assert.Equal(t, map[string]any{"state": "closed"}, recs[0].FieldMap())
}

func TestBridge_SinkFailureIsolated(t *testing.T) {
	flaky := &fakeSink{name: "influxdb", failN: 1}
	good := &fakeSink{name: "file"}
	b, metrics := newBridge(t, config.WorkersConfig{Count: 1, QueueSize: 4}, flaky, good)
	defer b.Stop(time.Second)

	b.Handle(context.Background(), message.New(message.TransportMQTT, "home/window", []byte("open")))

	require.Eventually(t, func() bool { return len(good.written()) == 1 }, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return b.Stats().SinkFailures["influxdb"] == 1 }, time.Second, 5*time.Millisecond)

	health := b.Health()
	assert.True(t, health.Healthy)
	assert.True(t, health.Degraded)
	assert.Contains(t, health.LastError, "storage unavailable")
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.RecordsFailed.WithLabelValues("influxdb")))

	// The next successful write clears the degraded state
	b.Handle(context.Background(), message.New(message.TransportMQTT, "home/window", []byte("closed")))
	require.Eventually(t, func() bool { return len(flaky.written()) == 1 }, time.Second, 5*time.Millisecond)
	assert.False(t, b.Health().Degraded)
}

func TestBridge_DropWhenFull(t *testing.T) {
	sink := &fakeSink{
		name:    "influxdb",
		gate:    make(chan struct{}),
		entered: make(chan struct{}, 4),
	}
	b, metrics := newBridge(t, config.WorkersConfig{Count: 1, QueueSize: 1, DropWhenFull: true}, sink)

	msg := func() message.Message {
		return message.New(message.TransportMQTT, "home/window", []byte("open"))
	}

	b.Handle(context.Background(), msg())
	<-sink.entered // the only worker is now blocked in the sink

	b.Handle(context.Background(), msg()) // queued
	b.Handle(context.Background(), msg()) // dropped

	assert.Equal(t, int64(1), b.Stats().QueueDropped)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.MessagesDropped.WithLabelValues(metric.DropQueueFull)))

	close(sink.gate)
	require.NoError(t, b.Stop(time.Second))
	assert.Len(t, sink.written(), 2)
}

func TestBridge_BlocksWhenFull(t *testing.T) {
	sink := &fakeSink{
		name:    "influxdb",
		gate:    make(chan struct{}),
		entered: make(chan struct{}, 4),
	}
	b, _ := newBridge(t, config.WorkersConfig{Count: 1, QueueSize: 1}, sink)

	b.Handle(context.Background(), message.New(message.TransportMQTT, "home/window", []byte("a")))
	<-sink.entered
	b.Handle(context.Background(), message.New(message.TransportMQTT, "home/window", []byte("b")))

	// Queue is full: a bounded context gives up and the message counts as dropped
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	b.Handle(ctx, message.New(message.TransportMQTT, "home/window", []byte("c")))
	assert.Equal(t, int64(1), b.Stats().QueueDropped)

	close(sink.gate)
	require.NoError(t, b.Stop(time.Second))
	assert.Len(t, sink.written(), 2)
}

func TestBridge_SinkPanicRecovered(t *testing.T) {
	sink := &fakeSink{name: "influxdb", panics: true}
	b, _ := newBridge(t, defaultWorkers(), sink)

	b.Handle(context.Background(), message.New(message.TransportMQTT, "home/window", []byte("open")))
	require.NoError(t, b.Stop(time.Second))

	st := b.Stats()
	assert.Equal(t, int64(1), st.Pool.Panics)
	assert.Equal(t, int64(1), st.Pool.Failed)
}

func TestBridge_Lifecycle(t *testing.T) {
	sink := &fakeSink{name: "influxdb"}
	b, _ := newBridge(t, defaultWorkers(), sink)

	assert.Equal(t, "processor.bridge", b.Meta().Key())
	assert.True(t, b.Health().Healthy)
	assert.ErrorIs(t, b.Start(context.Background()), errors.ErrAlreadyStarted)

	require.NoError(t, b.Stop(time.Second))
	require.NoError(t, b.Stop(time.Second))
	assert.False(t, b.Health().Healthy)
	assert.True(t, sink.closed)

	// Messages after Stop are not queued and not counted as drops
	b.Handle(context.Background(), message.New(message.TransportMQTT, "home/window", []byte("late")))
	assert.Zero(t, b.Stats().QueueDropped)
}

func TestBridge_StopTimeoutStillClosesSinks(t *testing.T) {
	sink := &fakeSink{
		name:    "influxdb",
		gate:    make(chan struct{}),
		entered: make(chan struct{}, 1),
	}
	b, _ := newBridge(t, config.WorkersConfig{Count: 1, QueueSize: 1}, sink)

	b.Handle(context.Background(), message.New(message.TransportMQTT, "home/window", []byte("a")))
	<-sink.entered

	err := b.Stop(20 * time.Millisecond)
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, context.DeadlineExceeded) || errors.IsTransient(err))
	assert.True(t, sink.closed)
	close(sink.gate)
}
