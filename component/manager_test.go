package component

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/mqtt2influxdb/health"
)

type fakeComponent struct {
	name     string
	startErr error
	stopErr  error
	healthy  bool

	mu     *sync.Mutex
	events *[]string
}

func (f *fakeComponent) record(event string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	*f.events = append(*f.events, event+":"+f.name)
}

func (f *fakeComponent) Meta() Metadata { return Metadata{Name: f.name, Type: TypeInput} }
func (f *fakeComponent) Health() HealthStatus {
	return HealthStatus{Healthy: f.healthy, LastError: "dial tcp 10.1.1.1:1883 refused"}
}
func (f *fakeComponent) Initialize() error { f.record("init"); return nil }
func (f *fakeComponent) Start(context.Context) error {
	f.record("start")
	return f.startErr
}
func (f *fakeComponent) Stop(time.Duration) error {
	f.record("stop")
	return f.stopErr
}

func newFakes(names ...string) ([]*fakeComponent, *[]string) {
	events := &[]string{}
	mu := &sync.Mutex{}
	out := make([]*fakeComponent, len(names))
	for i, n := range names {
		out[i] = &fakeComponent{name: n, healthy: true, mu: mu, events: events}
	}
	return out, events
}

func TestManager_StartStopOrder(t *testing.T) {
	fakes, events := newFakes("a", "b", "c")
	m := NewManager(nil)
	for _, f := range fakes {
		m.Add(f)
	}

	require.NoError(t, m.StartAll(context.Background(), time.Second))
	assert.Equal(t, StateStarted, m.States()["input.b"])

	require.NoError(t, m.StopAll(time.Second))
	assert.Equal(t, []string{
		"init:a", "init:b", "init:c",
		"start:a", "start:b", "start:c",
		"stop:c", "stop:b", "stop:a",
	}, *events)
	assert.Equal(t, StateStopped, m.States()["input.a"])
}

func TestManager_StartFailureRollsBack(t *testing.T) {
	fakes, events := newFakes("a", "b", "c")
	fakes[1].startErr = fmt.Errorf("broker unreachable")

	m := NewManager(nil)
	for _, f := range fakes {
		m.Add(f)
	}

	err := m.StartAll(context.Background(), time.Second)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "start input.b")

	assert.Equal(t, []string{
		"init:a", "init:b", "init:c",
		"start:a", "start:b",
		"stop:a",
	}, *events)
	assert.Equal(t, StateFailed, m.States()["input.b"])
	assert.Equal(t, StateInitialized, m.States()["input.c"])
}

func TestManager_StopErrorsJoined(t *testing.T) {
	fakes, _ := newFakes("a", "b")
	fakes[0].stopErr = fmt.Errorf("flush failed")
	fakes[1].stopErr = fmt.Errorf("close failed")

	m := NewManager(nil)
	for _, f := range fakes {
		m.Add(f)
	}
	require.NoError(t, m.StartAll(context.Background(), time.Second))

	err := m.StopAll(time.Second)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "flush failed")
	assert.Contains(t, err.Error(), "close failed")
}

func TestManager_ReportHealth(t *testing.T) {
	fakes, _ := newFakes("mqtt", "nats")
	fakes[1].healthy = false

	m := NewManager(nil)
	for _, f := range fakes {
		m.Add(f)
	}

	monitor := health.NewMonitor("bridge")
	m.ReportHealth(monitor)

	mqtt, ok := monitor.Get("input.mqtt")
	require.True(t, ok)
	assert.True(t, mqtt.IsHealthy())

	nats, ok := monitor.Get("input.nats")
	require.True(t, ok)
	assert.True(t, nats.IsUnhealthy())
	assert.NotContains(t, nats.Message, "10.1.1.1")

	assert.True(t, monitor.AggregateHealth().IsUnhealthy())
}

func TestHealthStatus_ToStatus(t *testing.T) {
	degraded := HealthStatus{Healthy: true, Degraded: true, LastError: "ping failed", ErrorCount: 1}.ToStatus("output.influxdb")
	assert.True(t, degraded.IsDegraded())
	assert.Equal(t, 1, degraded.Metrics.ErrorCount)

	down := HealthStatus{}.ToStatus("input.mqtt")
	assert.True(t, down.IsUnhealthy())
	assert.Equal(t, "Component not running", down.Message)
}

func TestMetadata_Key(t *testing.T) {
	assert.Equal(t, "output.file", Metadata{Name: "file", Type: TypeOutput}.Key())
	assert.Equal(t, "bridge", Metadata{Name: "bridge"}.Key())
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "created", StateCreated.String())
	assert.Equal(t, "started", StateStarted.String())
	assert.Equal(t, "failed", StateFailed.String())
	assert.Equal(t, "unknown", State(42).String())
	assert.Equal(t, "unknown", State(-1).String())
}
