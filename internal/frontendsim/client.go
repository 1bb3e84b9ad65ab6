package frontendsim

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"

	"github.com/idia-astro/carta-scripting/internal/protocol"
)

// Client connects a Store to a relay the way a browser frontend would: it
// receives a session ID on connect and answers every action request from
// the store.
type Client struct {
	conn    net.Conn
	rw      io.ReadWriter
	store   *Store
	logger  *slog.Logger
	address string

	writeMu   sync.Mutex
	sessionID atomic.Uint32
	ready     chan struct{}
	readyOnce sync.Once
	done      chan struct{}
	closeOnce sync.Once
	closing   atomic.Bool
	handled   atomic.Int64
	lastPong  atomic.Int64 // unix nanos
}

// Dial connects to the relay WebSocket endpoint at rawURL, e.g.
// "ws://localhost:3002/ws". Action requests are answered from store.
func Dial(ctx context.Context, rawURL string, store *Store, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("frontendsim: parse url: %w", err)
	}

	conn, br, _, err := ws.Dial(ctx, rawURL)
	if err != nil {
		return nil, fmt.Errorf("frontendsim: dial: %w", err)
	}

	// Frames sent right after the handshake may already be buffered.
	var r io.Reader = conn
	if br != nil {
		r = io.MultiReader(br, conn)
	}
	rw := struct {
		io.Reader
		io.Writer
	}{r, conn}

	c := &Client{
		conn:    conn,
		rw:      rw,
		store:   store,
		logger:  logger,
		address: serverAddress(u),
		ready:   make(chan struct{}),
		done:    make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

// serverAddress renders the URL as scheme://host:port, adding the default
// port when the URL has none.
func serverAddress(u *url.URL) string {
	host := u.Host
	if u.Port() == "" {
		port := "80"
		if u.Scheme == "wss" {
			port = "443"
		}
		host = net.JoinHostPort(u.Hostname(), port)
	}
	return u.Scheme + "://" + host
}

// SessionID returns the session ID assigned by the relay, or zero before
// the handshake completes.
func (c *Client) SessionID() uint32 { return c.sessionID.Load() }

// Handled returns the number of action requests answered so far.
func (c *Client) Handled() int64 { return c.handled.Load() }

// WaitForSession blocks until the relay has assigned a session ID.
func (c *Client) WaitForSession(ctx context.Context) (uint32, error) {
	select {
	case <-c.ready:
		return c.SessionID(), nil
	case <-c.done:
		return 0, errors.New("frontendsim: connection closed before session was created")
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// Done is closed when the connection ends.
func (c *Client) Done() <-chan struct{} { return c.done }

// Ping sends an application-level ping.
func (c *Client) Ping() error {
	return c.send(protocol.TypePing, protocol.PingMsg{})
}

// LastPong returns when the relay last answered a ping, or the zero time.
func (c *Client) LastPong() time.Time {
	ns := c.lastPong.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

// KeepAlive pings the relay every interval until ctx is done or the
// connection ends. The relay counts pings as activity.
func (c *Client) KeepAlive(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		case <-ticker.C:
			if err := c.Ping(); err != nil {
				c.logger.Warn("ping failed", "error", err)
				return
			}
		}
	}
}

// Close closes the connection. It is safe to call multiple times.
func (c *Client) Close() error {
	c.closing.Store(true)
	var err error
	c.closeOnce.Do(func() {
		c.writeMu.Lock()
		_ = wsutil.WriteClientMessage(c.conn, ws.OpClose, ws.NewCloseFrameBody(ws.StatusNormalClosure, ""))
		c.writeMu.Unlock()
		err = c.conn.Close()
	})
	<-c.done
	return err
}

func (c *Client) send(msgType string, payload any) error {
	data, err := protocol.NewMessage(msgType, payload)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return wsutil.WriteClientMessage(c.conn, ws.OpText, data)
}

func (c *Client) readLoop() {
	defer close(c.done)
	for {
		data, op, err := wsutil.ReadServerData(c.rw)
		if err != nil {
			if !c.closing.Load() {
				c.logger.Warn("connection lost", "error", err)
			}
			return
		}
		if op != ws.OpText {
			continue
		}

		msgType, msg, err := protocol.ParseRelayMessage(data)
		if err != nil {
			c.logger.Warn("unreadable relay message", "error", err)
			continue
		}

		switch msgType {
		case protocol.TypeSessionCreated:
			id := msg.(protocol.SessionCreatedMsg).SessionID
			c.sessionID.Store(id)
			c.logger.Info(fmt.Sprintf("Connected to server %s with session ID %d", c.address, id))
			c.readyOnce.Do(func() { close(c.ready) })
		case protocol.TypeActionRequest:
			c.answer(msg.(protocol.ActionRequestMsg))
		case protocol.TypeError:
			e := msg.(protocol.ErrorMsg)
			c.logger.Warn("relay error", "code", e.Code, "message", e.Message)
		case protocol.TypePong:
			c.lastPong.Store(time.Now().UnixNano())
		}
	}
}

func (c *Client) answer(req protocol.ActionRequestMsg) {
	reply := protocol.ActionReplyMsg{RequestID: req.RequestID, Success: true}
	resp, err := c.store.Handle(req.Path, req.Action, req.Parameters)
	if err != nil {
		reply.Success = false
		reply.Message = err.Error()
	} else {
		reply.Response = string(resp)
	}
	c.handled.Add(1)

	if err := c.send(protocol.TypeActionReply, reply); err != nil {
		c.logger.Warn("failed to send action reply", "request_id", req.RequestID, "error", err)
	}
}
