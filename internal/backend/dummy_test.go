package backend

import (
	"bytes"
	"context"
	"log/slog"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/idia-astro/carta-scripting/internal/rpc"
)

func TestDummy_ValidParameters(t *testing.T) {
	var buf bytes.Buffer
	d := NewDummy(slog.New(slog.NewTextHandler(&buf, nil)))

	reply, err := d.CallAction(context.Background(), &rpc.ActionRequest{
		SessionID:  7,
		Path:       "activeFrame.renderConfig",
		Action:     "setColorMap",
		Parameters: `["viridis"]`,
	})
	require.NoError(t, err)
	assert.True(t, reply.Success)
	assert.Empty(t, reply.Message)
	assert.JSONEq(t, `{"foo":"bar"}`, reply.Response)

	out := buf.String()
	assert.Contains(t, out, "session_id=7")
	assert.Contains(t, out, "action=setColorMap")
}

func TestDummy_InvalidParameters(t *testing.T) {
	var buf bytes.Buffer
	d := NewDummy(slog.New(slog.NewTextHandler(&buf, nil)))

	reply, err := d.CallAction(context.Background(), &rpc.ActionRequest{
		SessionID:  7,
		Action:     "openFile",
		Parameters: `["unterminated`,
	})
	require.NoError(t, err)
	assert.False(t, reply.Success)
	assert.True(t, strings.HasPrefix(reply.Message, "Parameter array is not valid JSON: "), reply.Message)

	out := buf.String()
	assert.Contains(t, out, `level=WARN msg="invalid action parameters"`)
	assert.Contains(t, out, "action=openFile")
	assert.Contains(t, out, `error="unexpected end of JSON input"`)
	assert.NotContains(t, out, `msg="Parameter array`)
}

func serve(t *testing.T, srv rpc.Servicer) (string, func()) {
	t.Helper()
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	s := rpc.NewServer(srv)
	go func() { _ = s.Serve(lis) }()
	return lis.Addr().String(), s.Stop
}

func TestDummy_OverGRPC(t *testing.T) {
	lisAddr, stop := serve(t, NewDummy(nil))
	defer stop()

	conn, err := rpc.Dial(lisAddr)
	require.NoError(t, err)
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	reply, err := rpc.NewClient(conn).CallAction(ctx, &rpc.ActionRequest{SessionID: 1, Action: "noop", Parameters: "[]"})
	require.NoError(t, err)
	assert.True(t, reply.Success)
	assert.Equal(t, DummyResponse, reply.Response)
}
