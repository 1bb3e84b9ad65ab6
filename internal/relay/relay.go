// Package relay implements the CartaBackend service on top of live frontend
// WebSocket connections. Each action call is pushed to the frontend owning
// the session and the caller blocks until the frontend answers. Sessions
// connected to another relay node are reached over NATS.
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/idia-astro/carta-scripting/internal/audit"
	"github.com/idia-astro/carta-scripting/internal/history"
	"github.com/idia-astro/carta-scripting/internal/metrics"
	"github.com/idia-astro/carta-scripting/internal/protocol"
	"github.com/idia-astro/carta-scripting/internal/ratelimit"
	"github.com/idia-astro/carta-scripting/internal/rpc"
	"github.com/idia-astro/carta-scripting/internal/session"
	"github.com/idia-astro/carta-scripting/internal/ws"
)

// DefaultActionTimeout bounds how long a caller waits for a frontend reply.
const DefaultActionTimeout = 30 * time.Second

// MessageRateLimited is the reply message for sessions over their action
// budget.
const MessageRateLimited = "rate limited"

// Forwarder carries actions between relay nodes. It is implemented by
// messaging.NATSClient.
type Forwarder interface {
	ServeActions(node string, handler func(ctx context.Context, data []byte) []byte) error
	StopServing(node string) error
	ForwardAction(ctx context.Context, node string, data []byte) ([]byte, error)
}

// Relay routes CallAction requests to frontend sessions.
type Relay struct {
	server     *ws.Server
	dispatcher *ws.MessageDispatcher

	node          string
	actionTimeout time.Duration
	sessions      *session.Store     // optional; required for forwarding
	limiter       *ratelimit.Limiter // optional
	forwarder     Forwarder          // optional
	audit         *audit.Store       // optional
	history       *history.Buffer
	logger        *slog.Logger

	mu      sync.Mutex
	pending map[string]*pendingAction // request_id -> waiting caller
}

// pendingAction is a caller waiting for a frontend reply.
type pendingAction struct {
	sessionID uint32
	reply     chan protocol.ActionReplyMsg
	lost      chan struct{} // closed when the frontend disconnects
}

// Option configures a Relay.
type Option func(*Relay)

// WithNodeName sets the name this relay registers its sessions under.
func WithNodeName(node string) Option {
	return func(r *Relay) { r.node = node }
}

// WithActionTimeout sets how long a caller waits for a frontend reply.
func WithActionTimeout(d time.Duration) Option {
	return func(r *Relay) {
		if d > 0 {
			r.actionTimeout = d
		}
	}
}

// WithSessionStore sets the Redis session registry. It defaults to the
// WebSocket server's store.
func WithSessionStore(s *session.Store) Option {
	return func(r *Relay) { r.sessions = s }
}

// WithLimiter enables per-session action rate limiting and per-address
// connection rate limiting.
func WithLimiter(l *ratelimit.Limiter) Option {
	return func(r *Relay) { r.limiter = l }
}

// WithForwarder enables forwarding to sessions owned by other nodes.
func WithForwarder(f Forwarder) Option {
	return func(r *Relay) { r.forwarder = f }
}

// WithAudit records every completed action in the audit log.
func WithAudit(a *audit.Store) Option {
	return func(r *Relay) { r.audit = a }
}

// WithHistory replaces the in-memory action history.
func WithHistory(h *history.Buffer) Option {
	return func(r *Relay) { r.history = h }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Relay) { r.logger = l }
}

// New wires a relay to a WebSocket server. The relay takes over the
// server's message and disconnect callbacks.
func New(server *ws.Server, opts ...Option) *Relay {
	r := &Relay{
		server:        server,
		actionTimeout: DefaultActionTimeout,
		history:       history.NewBuffer(),
		logger:        slog.New(slog.DiscardHandler),
		pending:       make(map[string]*pendingAction),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.sessions == nil {
		r.sessions = server.SessionStore()
	}
	if r.node == "" && r.sessions != nil {
		r.node = r.sessions.NodeName()
	}
	r.logger = r.logger.With("component", "relay")

	r.dispatcher = ws.NewMessageDispatcher(server)
	r.dispatcher.Register(protocol.TypeActionReply, r.handleReply)
	server.SetOnMessage(r.dispatcher.Dispatch)
	server.SetOnDisconnect(r.handleDisconnect)
	if r.limiter != nil {
		server.SetAllowConnect(r.allowConnect)
	}
	return r
}

// Start begins answering actions forwarded by other nodes.
func (r *Relay) Start() error {
	if r.forwarder == nil {
		return nil
	}
	if err := r.forwarder.ServeActions(r.node, r.serveForwarded); err != nil {
		return fmt.Errorf("relay: serve forwarded actions: %w", err)
	}
	r.logger.Info("serving forwarded actions", "node", r.node)
	return nil
}

// Stop stops answering forwarded actions.
func (r *Relay) Stop() error {
	if r.forwarder == nil {
		return nil
	}
	return r.forwarder.StopServing(r.node)
}

// History returns the in-memory action history.
func (r *Relay) History() *history.Buffer {
	return r.history
}

// CallAction implements rpc.Servicer.
func (r *Relay) CallAction(ctx context.Context, req *rpc.ActionRequest) (*rpc.ActionReply, error) {
	start := time.Now()

	var params any
	if err := json.Unmarshal([]byte(req.Parameters), &params); err != nil {
		reply := &rpc.ActionReply{Message: fmt.Sprintf("Parameter array is not valid JSON: %v", err)}
		r.observe(req, "", reply, metrics.ResultInvalid, start)
		return reply, nil
	}

	if r.limiter != nil {
		allowed, _ := r.limiter.Allow(ctx, strconv.FormatUint(uint64(req.SessionID), 10), ratelimit.RuleAction)
		if !allowed {
			reply := &rpc.ActionReply{Message: MessageRateLimited}
			r.observe(req, "", reply, metrics.ResultRateLimited, start)
			return reply, nil
		}
	}

	if r.server.Connections().Get(req.SessionID) != nil {
		return r.callLocal(ctx, req, start)
	}

	if node, ok := r.owner(ctx, req.SessionID); ok {
		return r.forward(ctx, node, req, start)
	}

	r.observe(req, "", nil, metrics.ResultNotFound, start)
	return nil, status.Errorf(codes.NotFound, "session %d not found", req.SessionID)
}

// callLocal sends an action to a frontend connected to this node and waits
// for its reply.
func (r *Relay) callLocal(ctx context.Context, req *rpc.ActionRequest, start time.Time) (*rpc.ActionReply, error) {
	requestID := uuid.NewString()
	p := &pendingAction{
		sessionID: req.SessionID,
		reply:     make(chan protocol.ActionReplyMsg, 1),
		lost:      make(chan struct{}),
	}

	r.mu.Lock()
	r.pending[requestID] = p
	r.mu.Unlock()
	metrics.PendingActions.Inc()
	defer func() {
		r.mu.Lock()
		delete(r.pending, requestID)
		r.mu.Unlock()
		metrics.PendingActions.Dec()
	}()

	data, err := protocol.NewMessage(protocol.TypeActionRequest, protocol.ActionRequestMsg{
		RequestID:  requestID,
		Path:       req.Path,
		Action:     req.Action,
		Parameters: json.RawMessage(req.Parameters),
		Async:      req.Async,
	})
	if err != nil {
		r.observe(req, requestID, nil, metrics.ResultInvalid, start)
		return nil, status.Errorf(codes.Internal, "encode action request: %v", err)
	}

	if err := r.server.SendMessage(req.SessionID, data); err != nil {
		if errors.Is(err, ws.ErrConnectionNotFound) {
			r.observe(req, requestID, nil, metrics.ResultNotFound, start)
			return nil, status.Errorf(codes.NotFound, "session %d not found", req.SessionID)
		}
		r.observe(req, requestID, nil, metrics.ResultUnavailable, start)
		return nil, status.Errorf(codes.Unavailable, "send to session %d: %v", req.SessionID, err)
	}

	if r.sessions != nil {
		if err := r.sessions.Touch(ctx, req.SessionID); err != nil {
			r.logger.Warn("failed to touch session", "session_id", req.SessionID, "error", err)
		}
	}

	timer := time.NewTimer(r.actionTimeout)
	defer timer.Stop()

	select {
	case msg := <-p.reply:
		reply := &rpc.ActionReply{Success: msg.Success, Message: msg.Message, Response: msg.Response}
		result := metrics.ResultSuccess
		if !msg.Success {
			result = metrics.ResultFailure
		}
		r.observe(req, requestID, reply, result, start)
		return reply, nil
	case <-p.lost:
		r.observe(req, requestID, nil, metrics.ResultUnavailable, start)
		return nil, status.Errorf(codes.Unavailable, "session %d disconnected", req.SessionID)
	case <-timer.C:
		r.observe(req, requestID, nil, metrics.ResultTimeout, start)
		return nil, status.Errorf(codes.DeadlineExceeded, "no reply from session %d within %s", req.SessionID, r.actionTimeout)
	case <-ctx.Done():
		result := metrics.ResultCanceled
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			result = metrics.ResultTimeout
		}
		r.observe(req, requestID, nil, result, start)
		return nil, status.FromContextError(ctx.Err()).Err()
	}
}

// handleReply delivers a frontend reply to the waiting caller.
func (r *Relay) handleReply(conn *ws.Connection, msg any) {
	reply := msg.(protocol.ActionReplyMsg)

	r.mu.Lock()
	p, ok := r.pending[reply.RequestID]
	r.mu.Unlock()

	if !ok || p.sessionID != conn.ID {
		r.logger.Debug("reply for unknown request", "session_id", conn.ID, "request_id", reply.RequestID)
		r.dispatcher.SendError(conn, protocol.CodeUnknownRequest, "unknown request_id")
		return
	}

	select {
	case p.reply <- reply:
	default:
		r.logger.Debug("duplicate reply", "session_id", conn.ID, "request_id", reply.RequestID)
	}
}

// handleDisconnect fails every action still waiting on the frontend.
func (r *Relay) handleDisconnect(conn *ws.Connection) {
	r.mu.Lock()
	for id, p := range r.pending {
		if p.sessionID == conn.ID {
			close(p.lost)
			delete(r.pending, id)
		}
	}
	r.mu.Unlock()

	r.history.Remove(conn.ID)
}

// allowConnect applies the per-address connection rate limit.
func (r *Relay) allowConnect(req *http.Request) bool {
	host, _, err := net.SplitHostPort(req.RemoteAddr)
	if err != nil {
		host = req.RemoteAddr
	}
	allowed, _ := r.limiter.Allow(req.Context(), host, ratelimit.RuleConnect)
	if !allowed {
		r.logger.Warn("connection rate limited", "remote_addr", host)
	}
	return allowed
}

// observe records a finished action in metrics, the history buffer and the
// audit log.
func (r *Relay) observe(req *rpc.ActionRequest, requestID string, reply *rpc.ActionReply, result string, start time.Time) {
	elapsed := time.Since(start)
	metrics.ActionsTotal.WithLabelValues(result).Inc()
	metrics.ActionLatency.Observe(elapsed.Seconds())

	rec := history.ActionRecord{
		RequestID: requestID,
		Path:      req.Path,
		Action:    req.Action,
		Duration:  elapsed,
		Ts:        time.Now().UnixMilli(),
	}
	if reply != nil {
		rec.Success = reply.Success
		rec.Message = reply.Message
	} else {
		rec.Message = result
	}
	// Only sessions connected here keep history; their buffer is dropped on
	// disconnect.
	if r.server.Connections().Get(req.SessionID) != nil {
		r.history.Add(req.SessionID, rec)
	}

	r.logger.Debug("action finished",
		"session_id", req.SessionID,
		"action", req.FullAction(),
		"result", result,
		"duration", elapsed)

	if r.audit == nil {
		return
	}
	entry := audit.Entry{
		SessionID:  req.SessionID,
		RequestID:  requestID,
		Node:       r.node,
		Path:       req.Path,
		Action:     req.Action,
		Parameters: req.Parameters,
		Success:    rec.Success,
		Message:    rec.Message,
		Duration:   elapsed,
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := r.audit.Record(ctx, entry); err != nil {
			r.logger.Warn("failed to record action", "session_id", entry.SessionID, "error", err)
		}
	}()
}
