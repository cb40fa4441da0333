//go:build integration

package natsclient

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const natsImage = "nats:2.11.7-alpine"

// startServer runs a NATS container, with JetStream when js is set, and
// returns a connected client. Both are cleaned up with t.
func startServer(t *testing.T, js bool) *Client {
	t.Helper()
	if os.Getenv("INTEGRATION_TESTS") == "" {
		t.Skip("set INTEGRATION_TESTS=1 to run against a NATS container")
	}

	ctx := context.Background()
	cmd := []string{"--port", "4222", "--http_port", "8222"}
	if js {
		cmd = append(cmd, "--js")
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        natsImage,
			ExposedPorts: []string{"4222/tcp", "8222/tcp"},
			Cmd:          cmd,
			WaitingFor: wait.ForAll(
				wait.ForListeningPort("4222/tcp"),
				wait.ForHTTP("/").WithPort("8222/tcp").WithStartupTimeout(30*time.Second),
			),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "4222")
	require.NoError(t, err)

	client, err := NewClient(fmt.Sprintf("nats://%s:%s", host, port.Port()),
		WithTimeout(5*time.Second),
		WithMaxReconnects(0))
	require.NoError(t, err)

	connectCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	require.NoError(t, client.Connect(connectCtx))
	t.Cleanup(func() { _ = client.Close(context.Background()) })
	return client
}
