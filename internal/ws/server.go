// Package ws handles frontend WebSocket connections: upgrading HTTP
// requests, assigning numeric session IDs, and dispatching incoming frames
// to the relay through an epoll-driven worker pool.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"

	"github.com/idia-astro/carta-scripting/internal/metrics"
	"github.com/idia-astro/carta-scripting/internal/protocol"
	"github.com/idia-astro/carta-scripting/internal/session"
)

// ErrConnectionNotFound is returned when a session has no connection on
// this node.
var ErrConnectionNotFound = errors.New("ws: connection not found")

// ServerConfig holds tunable parameters for the WebSocket server.
type ServerConfig struct {
	ListenAddr     string        // address to listen on, e.g. ":3002"
	WorkerPoolSize int           // max concurrent read-worker goroutines
	MaxConnections int           // hard cap on total connections
	ReadTimeout    time.Duration // timeout for WebSocket read operations
	WriteTimeout   time.Duration // timeout for WebSocket write operations
	Heartbeat      HeartbeatConfig
}

// DefaultServerConfig returns a ServerConfig with sensible production defaults.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		ListenAddr:     ":3002",
		WorkerPoolSize: 256,
		MaxConnections: 10000,
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   10 * time.Second,
		Heartbeat:      DefaultHeartbeatConfig(),
	}
}

// Server is the WebSocket server built on gobwas/ws and epoll. It upgrades
// HTTP connections, registers them for read readiness notifications, and
// hands ready connections to a bounded worker pool for frame reading.
type Server struct {
	config       ServerConfig
	epoll        *Epoll
	conns        *ConnectionManager
	sessionStore *session.Store // optional Redis-backed session registry
	logger       *slog.Logger
	workerPool   chan struct{}                       // semaphore limiting concurrent read workers
	onMessage    func(conn *Connection, data []byte) // message handler callback
	onDisconnect func(conn *Connection)              // called when a connection is removed
	routes       func(r chi.Router)                  // extra HTTP routes
	allowConnect func(r *http.Request) bool          // optional admission check
	nextID       atomic.Uint32                       // local session counter when Redis is not configured
	done         chan struct{}
	closeOnce    sync.Once

	// mu guards the fields set up by Serve.
	mu         sync.Mutex
	httpServer *http.Server
	listener   net.Listener
	startedAt  time.Time
}

// NewServer creates a Server. sessionStore may be nil, in which case session
// IDs come from a process-local counter. onMessage is called from a worker
// goroutine for every complete text frame received from a frontend.
func NewServer(config ServerConfig, sessionStore *session.Store, logger *slog.Logger, onMessage func(conn *Connection, data []byte)) *Server {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if config.WorkerPoolSize <= 0 {
		config.WorkerPoolSize = 1
	}
	if config.MaxConnections <= 0 {
		config.MaxConnections = DefaultServerConfig().MaxConnections
	}
	if config.Heartbeat.Interval <= 0 {
		config.Heartbeat = DefaultHeartbeatConfig()
	}
	return &Server{
		config:       config,
		conns:        NewConnectionManager(),
		sessionStore: sessionStore,
		logger:       logger,
		workerPool:   make(chan struct{}, config.WorkerPoolSize),
		onMessage:    onMessage,
		done:         make(chan struct{}),
	}
}

// SetOnMessage replaces the message callback. It must be called before the
// server starts.
func (s *Server) SetOnMessage(fn func(conn *Connection, data []byte)) {
	s.onMessage = fn
}

// SetOnDisconnect registers a callback invoked when a connection is removed
// (read error, heartbeat timeout, or graceful close). It runs before the
// Redis session is deleted.
func (s *Server) SetOnDisconnect(fn func(conn *Connection)) {
	s.onDisconnect = fn
}

// SetRoutes registers extra HTTP routes served next to /ws and /health.
func (s *Server) SetRoutes(fn func(r chi.Router)) {
	s.routes = fn
}

// SetAllowConnect registers a check run before each upgrade. Requests it
// rejects get 429 Too Many Requests.
func (s *Server) SetAllowConnect(fn func(r *http.Request) bool) {
	s.allowConnect = fn
}

// Start listens on the configured address and serves until Shutdown.
func (s *Server) Start() error {
	lis, err := net.Listen("tcp", s.config.ListenAddr)
	if err != nil {
		return fmt.Errorf("ws: listen: %w", err)
	}
	return s.Serve(lis)
}

// Serve initializes the epoll instance and serves WebSocket connections on
// lis. It starts the event loop and the heartbeat monitor in the background
// and blocks until the HTTP server stops.
func (s *Server) Serve(lis net.Listener) error {
	epoll, err := NewEpoll()
	if err != nil {
		return fmt.Errorf("ws: failed to create epoll: %w", err)
	}

	s.mu.Lock()
	s.epoll = epoll
	s.startedAt = time.Now()
	s.listener = lis
	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.mu.Unlock()

	go s.startEventLoop()
	StartHeartbeat(s, s.config.Heartbeat)

	s.logger.Info("ws server listening",
		"addr", lis.Addr().String(),
		"workers", s.config.WorkerPoolSize,
		"max_conns", s.config.MaxConnections)

	if err := s.httpServer.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("ws: http server error: %w", err)
	}
	return nil
}

// Addr returns the listening address, or nil before Serve.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Handler returns the HTTP routes of the server.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Get("/ws", s.handleUpgrade)
	r.Get("/health", s.handleHealth)
	if s.routes != nil {
		s.routes(r)
	}
	return r
}

// handleUpgrade upgrades an HTTP request to a WebSocket connection, assigns
// it a session ID, registers it with epoll and tells the frontend its ID.
func (s *Server) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	if s.conns.Count() >= s.config.MaxConnections {
		http.Error(w, "too many connections", http.StatusServiceUnavailable)
		return
	}
	if s.allowConnect != nil && !s.allowConnect(r) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
		return
	}

	conn, _, _, err := ws.UpgradeHTTP(r, w)
	if err != nil {
		s.logger.Warn("ws upgrade failed", "remote_addr", r.RemoteAddr, "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	c := &Connection{
		ID:         s.allocateID(ctx),
		Conn:       conn,
		RemoteAddr: r.RemoteAddr,
		CreatedAt:  time.Now(),
	}
	c.Touch()

	s.conns.Add(c)
	if err := s.epoll.Add(conn); err != nil {
		s.logger.Error("epoll add failed", "session_id", c.ID, "error", err)
		s.conns.Remove(c.ID)
		return
	}
	metrics.FrontendConnections.Inc()

	if s.sessionStore != nil {
		if err := s.sessionStore.Create(ctx, c.ID, c.RemoteAddr); err != nil {
			s.logger.Warn("failed to create redis session", "session_id", c.ID, "error", err)
		}
	}

	msg, err := protocol.NewMessage(protocol.TypeSessionCreated, protocol.SessionCreatedMsg{SessionID: c.ID})
	if err != nil {
		s.logger.Error("failed to build session_created", "session_id", c.ID, "error", err)
	} else if err := s.SendMessage(c.ID, msg); err != nil {
		s.logger.Warn("failed to send session_created", "session_id", c.ID, "error", err)
	}

	s.logger.Info("frontend connected",
		"session_id", c.ID,
		"remote_addr", c.RemoteAddr,
		"total", s.conns.Count())
}

// allocateID returns the next session ID. With Redis the counter is shared
// by every relay node. Zero is never handed out.
func (s *Server) allocateID(ctx context.Context) uint32 {
	if s.sessionStore != nil {
		id, err := s.sessionStore.NextID(ctx)
		if err == nil {
			return id
		}
		s.logger.Warn("session counter unavailable, using local ids", "error", err)
	}
	for {
		if id := s.nextID.Add(1); id != 0 {
			return id
		}
	}
}

// handleHealth responds with the server's health status as JSON.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	resp := struct {
		Status      string `json:"status"`
		Connections int    `json:"connections"`
		Uptime      string `json:"uptime"`
	}{
		Status:      "ok",
		Connections: s.conns.Count(),
		Uptime:      time.Since(s.startedAt).Round(time.Second).String(),
	}

	_ = json.NewEncoder(w).Encode(resp)
}

// startEventLoop runs the epoll wait loop. Each ready connection is handed
// to a worker goroutine bounded by the worker pool semaphore.
func (s *Server) startEventLoop() {
	for {
		select {
		case <-s.done:
			return
		default:
		}

		conns, err := s.epoll.Wait()
		if err != nil {
			select {
			case <-s.done:
				return
			default:
			}
			if isEINTR(err) {
				continue
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			s.logger.Error("epoll wait error", "error", err)
			continue
		}

		for _, conn := range conns {
			s.workerPool <- struct{}{}

			go func() {
				defer func() { <-s.workerPool }()
				s.handleConn(conn)
				s.epoll.Rearm(conn)
			}()
		}
	}
}

// handleConn reads a single WebSocket frame from a ready connection. Control
// frames are consumed without blocking on a data frame. A failed read
// removes the connection.
func (s *Server) handleConn(netConn net.Conn) {
	c := s.conns.GetByConn(netConn)
	if c == nil {
		return
	}

	// Level-triggered epoll may report the same connection twice.
	if !c.processing.CompareAndSwap(false, true) {
		return
	}
	defer c.processing.Store(false)

	if s.config.ReadTimeout > 0 {
		_ = netConn.SetReadDeadline(time.Now().Add(s.config.ReadTimeout))
		defer netConn.SetReadDeadline(time.Time{})
	}

	header, reader, err := wsutil.NextReader(s.epoll.Reader(netConn), ws.StateServerSide)
	if err != nil {
		// A timeout means no data was available; the heartbeat handles dead peers.
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return
		}
		s.RemoveConnection(c)
		return
	}

	c.Touch()

	if header.OpCode.IsControl() {
		if header.OpCode == ws.OpClose {
			s.RemoveConnection(c)
			return
		}
		if _, err := io.Copy(io.Discard, reader); err != nil {
			s.RemoveConnection(c)
		}
		return
	}

	data := make([]byte, header.Length)
	if header.Length > 0 {
		if _, err := io.ReadFull(reader, data); err != nil {
			s.RemoveConnection(c)
			return
		}
	}

	if len(data) == 0 {
		return
	}

	if s.onMessage != nil {
		s.onMessage(c, data)
	}
}

// RemoveConnection removes a connection from epoll and the connection
// manager, closes it, and deletes its Redis session. Concurrent calls for
// the same connection clean up once.
func (s *Server) RemoveConnection(c *Connection) {
	_ = s.epoll.Remove(c.Conn)

	if !s.conns.Remove(c.ID) {
		return
	}
	metrics.FrontendConnections.Dec()

	if s.onDisconnect != nil {
		s.onDisconnect(c)
	}

	if s.sessionStore != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := s.sessionStore.Delete(ctx, c.ID); err != nil {
			s.logger.Warn("failed to delete redis session", "session_id", c.ID, "error", err)
		}
	}

	s.logger.Info("frontend disconnected", "session_id", c.ID, "total", s.conns.Count())
}

// SendMessage writes a WebSocket text frame to the frontend with the given
// session ID.
func (s *Server) SendMessage(sessionID uint32, data []byte) error {
	c := s.conns.Get(sessionID)
	if c == nil {
		return fmt.Errorf("%w: session %d", ErrConnectionNotFound, sessionID)
	}

	if s.config.WriteTimeout > 0 {
		_ = c.Conn.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout))
	}

	err := c.WriteMessage(data)

	// Heartbeat pings must not inherit this deadline.
	_ = c.Conn.SetWriteDeadline(time.Time{})

	return err
}

// Connections returns the ConnectionManager.
func (s *Server) Connections() *ConnectionManager {
	return s.conns
}

// SessionStore returns the Redis session store, or nil.
func (s *Server) SessionStore() *session.Store {
	return s.sessionStore
}

// Shutdown stops the HTTP listener and the event loop, closes all frontend
// connections and releases the epoll instance.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("ws server shutting down")

	var err error
	s.closeOnce.Do(func() {
		close(s.done)

		s.mu.Lock()
		defer s.mu.Unlock()

		if s.httpServer != nil {
			if shutdownErr := s.httpServer.Shutdown(ctx); shutdownErr != nil {
				err = fmt.Errorf("ws: http shutdown: %w", shutdownErr)
			}
		}

		for _, c := range s.conns.All() {
			if s.epoll != nil {
				s.RemoveConnection(c)
			} else {
				s.conns.Remove(c.ID)
			}
		}

		if s.epoll != nil {
			_ = s.epoll.Close()
		}
	})
	return err
}
