package ws

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/idia-astro/carta-scripting/internal/protocol"
	"github.com/idia-astro/carta-scripting/internal/session"
)

type testServer struct {
	*Server
	url  string
	base string
}

func startServer(t *testing.T, config ServerConfig, store *session.Store, setup func(s *Server, d *MessageDispatcher)) *testServer {
	t.Helper()
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	s := NewServer(config, store, nil, nil)
	d := NewMessageDispatcher(s)
	s.SetOnMessage(d.Dispatch)
	if setup != nil {
		setup(s, d)
	}

	go s.Serve(lis)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.Shutdown(ctx)
	})

	base := "http://" + lis.Addr().String()
	return &testServer{Server: s, url: "ws://" + lis.Addr().String() + "/ws", base: base}
}

func testConfig() ServerConfig {
	cfg := DefaultServerConfig()
	cfg.WorkerPoolSize = 8
	cfg.ReadTimeout = time.Second
	cfg.WriteTimeout = time.Second
	return cfg
}

// rawClient is a bare frontend used to inspect frames.
type rawClient struct {
	conn net.Conn
	rw   io.ReadWriter
}

func dial(t *testing.T, url string) *rawClient {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, br, _, err := ws.Dial(ctx, url)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	var r io.Reader = conn
	if br != nil {
		r = io.MultiReader(br, conn)
	}
	rw := struct {
		io.Reader
		io.Writer
	}{r, conn}
	return &rawClient{conn: conn, rw: rw}
}

func (c *rawClient) send(t *testing.T, data string) {
	t.Helper()
	require.NoError(t, wsutil.WriteClientText(c.conn, []byte(data)))
}

func (c *rawClient) read(t *testing.T) (string, any) {
	t.Helper()
	require.NoError(t, c.conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	data, err := wsutil.ReadServerText(c.rw)
	require.NoError(t, err)
	msgType, msg, err := protocol.ParseRelayMessage(data)
	require.NoError(t, err)
	return msgType, msg
}

func (c *rawClient) sessionID(t *testing.T) uint32 {
	t.Helper()
	msgType, msg := c.read(t)
	require.Equal(t, protocol.TypeSessionCreated, msgType)
	return msg.(protocol.SessionCreatedMsg).SessionID
}

func TestServer_SessionIDs(t *testing.T) {
	srv := startServer(t, testConfig(), nil, nil)

	a := dial(t, srv.url)
	assert.Equal(t, uint32(1), a.sessionID(t))
	b := dial(t, srv.url)
	assert.Equal(t, uint32(2), b.sessionID(t))
	assert.Equal(t, 2, srv.Connections().Count())
}

func TestServer_RedisSessions(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	store := session.NewStoreWithClient(client, "relay-test")

	// Another node already handed out some ids.
	mr.Set(session.SessionCounterKey, "41")

	srv := startServer(t, testConfig(), store, nil)
	c := dial(t, srv.url)
	id := c.sessionID(t)
	assert.Equal(t, uint32(42), id)

	got, err := store.Get(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "relay-test", got.Node)

	require.NoError(t, c.conn.Close())
	assert.Eventually(t, func() bool {
		s, err := store.Get(context.Background(), id)
		return err == nil && s == nil
	}, 5*time.Second, 20*time.Millisecond)
}

func TestServer_PingPong(t *testing.T) {
	srv := startServer(t, testConfig(), nil, nil)
	c := dial(t, srv.url)
	c.sessionID(t)

	c.send(t, `{"type":"ping"}`)
	msgType, _ := c.read(t)
	assert.Equal(t, protocol.TypePong, msgType)
}

func TestServer_ErrorFrames(t *testing.T) {
	srv := startServer(t, testConfig(), nil, nil)
	c := dial(t, srv.url)
	c.sessionID(t)

	cases := []struct {
		input string
		code  string
	}{
		{`not json`, protocol.CodeParseError},
		{`{"type":"launch_rocket"}`, protocol.CodeUnsupportedType},
		{`{"type":"action_reply","success":true}`, protocol.CodeParseError},
		// Valid reply but nothing registered to receive it.
		{`{"type":"action_reply","request_id":"r-1","success":true}`, protocol.CodeUnsupportedType},
	}
	for _, tc := range cases {
		c.send(t, tc.input)
		msgType, msg := c.read(t)
		require.Equal(t, protocol.TypeError, msgType, tc.input)
		assert.Equal(t, tc.code, msg.(protocol.ErrorMsg).Code, tc.input)
	}
}

func TestServer_DispatchAndDisconnect(t *testing.T) {
	var (
		mu           sync.Mutex
		replies      []protocol.ActionReplyMsg
		disconnected []uint32
	)
	srv := startServer(t, testConfig(), nil, func(s *Server, d *MessageDispatcher) {
		d.Register(protocol.TypeActionReply, func(conn *Connection, msg any) {
			mu.Lock()
			replies = append(replies, msg.(protocol.ActionReplyMsg))
			mu.Unlock()
		})
		s.SetOnDisconnect(func(conn *Connection) {
			mu.Lock()
			disconnected = append(disconnected, conn.ID)
			mu.Unlock()
		})
	})

	c := dial(t, srv.url)
	id := c.sessionID(t)

	c.send(t, `{"type":"action_reply","request_id":"r-7","success":true,"response":"{\"foo\":\"bar\"}"}`)
	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(replies) == 1
	}, 5*time.Second, 10*time.Millisecond)

	mu.Lock()
	assert.Equal(t, "r-7", replies[0].RequestID)
	assert.Equal(t, `{"foo":"bar"}`, replies[0].Response)
	mu.Unlock()

	require.NoError(t, wsutil.WriteClientMessage(c.conn, ws.OpClose, ws.NewCloseFrameBody(ws.StatusNormalClosure, "")))
	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(disconnected) == 1 && disconnected[0] == id
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, 0, srv.Connections().Count())
}

func TestServer_SendMessage(t *testing.T) {
	srv := startServer(t, testConfig(), nil, nil)
	c := dial(t, srv.url)
	id := c.sessionID(t)

	data, err := protocol.NewMessage(protocol.TypeActionRequest, protocol.ActionRequestMsg{
		RequestID:  "r-1",
		Path:       "",
		Action:     "openFile",
		Parameters: json.RawMessage(`["/data","m51.fits",""]`),
	})
	require.NoError(t, err)
	require.NoError(t, srv.SendMessage(id, data))

	msgType, msg := c.read(t)
	require.Equal(t, protocol.TypeActionRequest, msgType)
	req := msg.(protocol.ActionRequestMsg)
	assert.Equal(t, "openFile", req.Action)
	assert.JSONEq(t, `["/data","m51.fits",""]`, string(req.Parameters))

	assert.ErrorIs(t, srv.SendMessage(id+100, data), ErrConnectionNotFound)
}

func TestServer_MaxConnections(t *testing.T) {
	cfg := testConfig()
	cfg.MaxConnections = 1
	srv := startServer(t, cfg, nil, nil)

	c := dial(t, srv.url)
	c.sessionID(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, _, _, err := ws.Dial(ctx, srv.url)
	assert.Error(t, err)
}

func TestServer_HealthAndRoutes(t *testing.T) {
	srv := startServer(t, testConfig(), nil, func(s *Server, d *MessageDispatcher) {
		s.SetRoutes(func(r chi.Router) {
			r.Get("/extra", func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusTeapot)
			})
		})
	})
	c := dial(t, srv.url)
	c.sessionID(t)

	resp, err := http.Get(srv.base + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var health struct {
		Status      string `json:"status"`
		Connections int    `json:"connections"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, 1, health.Connections)

	extra, err := http.Get(srv.base + "/extra")
	require.NoError(t, err)
	extra.Body.Close()
	assert.Equal(t, http.StatusTeapot, extra.StatusCode)
}

func TestHeartbeat_RemovesStaleConnections(t *testing.T) {
	srv := startServer(t, testConfig(), nil, nil)
	stale := dial(t, srv.url)
	staleID := stale.sessionID(t)
	fresh := dial(t, srv.url)
	freshID := fresh.sessionID(t)

	cfg := HeartbeatConfig{Interval: time.Minute, Timeout: time.Second}
	srv.Connections().Get(staleID).lastActive.Store(time.Now().Add(-time.Hour).UnixNano())

	checkConnections(srv.Server, cfg)

	assert.Nil(t, srv.Connections().Get(staleID))
	assert.NotNil(t, srv.Connections().Get(freshID))
}

func TestHeartbeat_RefreshesSessionTTL(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	store := session.NewStoreWithClient(client, "relay-test")

	srv := startServer(t, testConfig(), store, nil)
	c := dial(t, srv.url)
	id := c.sessionID(t)

	key := session.SessionPrefix + strconv.FormatUint(uint64(id), 10)
	mr.SetTTL(key, time.Minute)

	checkConnections(srv.Server, HeartbeatConfig{Interval: time.Minute, Timeout: time.Minute})
	assert.Equal(t, session.SessionTTL, mr.TTL(key))
}
