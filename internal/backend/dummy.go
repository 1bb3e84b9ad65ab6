// Package backend holds CartaBackend servicers that do not need a frontend.
package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/idia-astro/carta-scripting/internal/rpc"
)

// DummyResponse is returned for every action.
const DummyResponse = `{"foo":"bar"}`

// Dummy answers every action with a fixed response after checking that the
// parameters are a valid JSON document. It is useful for exercising clients
// without a running frontend.
type Dummy struct {
	logger *slog.Logger
}

// NewDummy returns a dummy servicer that logs each request to logger.
func NewDummy(logger *slog.Logger) *Dummy {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Dummy{logger: logger}
}

// CallAction implements rpc.Servicer.
func (d *Dummy) CallAction(_ context.Context, req *rpc.ActionRequest) (*rpc.ActionReply, error) {
	reply := &rpc.ActionReply{Success: true, Response: DummyResponse}

	var params any
	if err := json.Unmarshal([]byte(req.Parameters), &params); err != nil {
		reply.Success = false
		reply.Message = fmt.Sprintf("Parameter array is not valid JSON: %v", err)
		d.logger.Warn("invalid action parameters",
			"session_id", req.SessionID,
			"action", req.FullAction(),
			"error", err)
		return reply, nil
	}

	d.logger.Info("got action request",
		"session_id", req.SessionID,
		"path", req.Path,
		"action", req.Action,
		"parameters", req.Parameters,
		"async", req.Async)
	return reply, nil
}
