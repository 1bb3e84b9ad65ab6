package frontendsim

import (
	"context"
	"log/slog"
	"sync"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/idia-astro/carta-scripting/internal/rpc"
)

// Servicer answers CartaBackend calls directly from in-process stores,
// without a relay or WebSocket in between.
type Servicer struct {
	mu     sync.RWMutex
	stores map[uint32]*Store
	logger *slog.Logger
}

// NewServicer returns a servicer with no sessions.
func NewServicer(logger *slog.Logger) *Servicer {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Servicer{stores: make(map[uint32]*Store), logger: logger}
}

// AddSession registers a store under a session ID, replacing any previous
// store with that ID.
func (s *Servicer) AddSession(id uint32, store *Store) {
	s.mu.Lock()
	s.stores[id] = store
	s.mu.Unlock()
}

// RemoveSession unregisters a session.
func (s *Servicer) RemoveSession(id uint32) {
	s.mu.Lock()
	delete(s.stores, id)
	s.mu.Unlock()
}

// CallAction implements rpc.Servicer.
func (s *Servicer) CallAction(_ context.Context, req *rpc.ActionRequest) (*rpc.ActionReply, error) {
	s.mu.RLock()
	store := s.stores[req.SessionID]
	s.mu.RUnlock()
	if store == nil {
		return nil, status.Errorf(codes.NotFound, "session %d not found", req.SessionID)
	}

	resp, err := store.Handle(req.Path, req.Action, []byte(req.Parameters))
	if err != nil {
		s.logger.Debug("action failed", "session_id", req.SessionID, "action", req.FullAction(), "error", err)
		return &rpc.ActionReply{Success: false, Message: err.Error()}, nil
	}
	return &rpc.ActionReply{Success: true, Response: string(resp)}, nil
}
