//go:build integration

package natsclient

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIntegration_PublishSubscribe(t *testing.T) {
	client := startServer(t, false)
	require.True(t, client.IsHealthy())

	type delivery struct {
		subject string
		data    string
	}
	received := make(chan delivery, 4)

	ctx := context.Background()
	require.NoError(t, client.Subscribe(ctx, "sensors.*.temperature", func(_ context.Context, subject string, data []byte) {
		received <- delivery{subject, string(data)}
	}))
	assert.Equal(t, []string{"sensors.*.temperature"}, client.Subscriptions())

	require.NoError(t, client.Publish(ctx, "sensors.kitchen.temperature", []byte("21.5")))

	select {
	case d := <-received:
		assert.Equal(t, "sensors.kitchen.temperature", d.subject)
		assert.Equal(t, "21.5", d.data)
	case <-time.After(5 * time.Second):
		t.Fatal("message not delivered")
	}

	assert.Positive(t, client.Stats().RTT)

	require.NoError(t, client.Unsubscribe("sensors.*.temperature"))
	assert.Empty(t, client.Subscriptions())
}

func TestIntegration_JetStreamPublish(t *testing.T) {
	client := startServer(t, true)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	require.NoError(t, client.EnsureStream(ctx, "RECORDS", []string{"records.>"}))
	require.NoError(t, client.EnsureStream(ctx, "RECORDS", []string{"records.>"}), "idempotent")

	require.NoError(t, client.PublishToStream(ctx, "records.sensors", []byte(`{"measurement":"sensors"}`)))

	js, err := client.JetStream()
	require.NoError(t, err)
	stream, err := js.Stream(ctx, "RECORDS")
	require.NoError(t, err)
	info, err := stream.Info(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), info.State.Msgs)
}

func TestIntegration_CloseDrains(t *testing.T) {
	client := startServer(t, false)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, client.Subscribe(ctx, "a.>", func(context.Context, string, []byte) {}))
	require.NoError(t, client.Close(ctx))
	assert.Equal(t, StatusDisconnected, client.Status())
	assert.ErrorIs(t, client.Publish(ctx, "a.b", nil), ErrNotConnected)
}
