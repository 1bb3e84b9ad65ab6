package messaging

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// natsClient connects to the server in NATS_URL, skipping when unset.
func natsClient(t *testing.T) *NATSClient {
	t.Helper()
	url := os.Getenv("NATS_URL")
	if url == "" {
		t.Skip("NATS_URL not set")
	}
	cfg := DefaultNATSConfig()
	cfg.URL = url
	c, err := NewNATSClient(cfg, nil)
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c
}

func TestActionSubject(t *testing.T) {
	assert.Equal(t, "carta.action.relay-1", ActionSubject("relay-1"))
}

func TestForwardAction(t *testing.T) {
	c := natsClient(t)
	node := "test-" + time.Now().Format("150405.000000")

	require.NoError(t, c.ServeActions(node, func(_ context.Context, data []byte) []byte {
		return append([]byte("echo:"), data...)
	}))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	reply, err := c.ForwardAction(ctx, node, []byte("ping"))
	require.NoError(t, err)
	assert.Equal(t, "echo:ping", string(reply))

	require.NoError(t, c.StopServing(node))
	assert.Error(t, c.StopServing(node))
}

func TestForwardAction_NoResponders(t *testing.T) {
	c := natsClient(t)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err := c.ForwardAction(ctx, "nobody-home", []byte("ping"))
	assert.Error(t, err)
}
