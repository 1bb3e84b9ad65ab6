package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/idia-astro/carta-scripting/internal/metrics"
	"github.com/idia-astro/carta-scripting/internal/rpc"
)

// forwardedReply is the payload a node answers forwarded actions with. A
// non-OK code carries a gRPC error instead of a reply.
type forwardedReply struct {
	Reply   *rpc.ActionReply `json:"reply,omitempty"`
	Code    codes.Code       `json:"code"`
	Message string           `json:"message,omitempty"`
}

// owner returns the node that owns a session, when it is not this node.
func (r *Relay) owner(ctx context.Context, sessionID uint32) (string, bool) {
	if r.sessions == nil || r.forwarder == nil {
		return "", false
	}
	s, err := r.sessions.Get(ctx, sessionID)
	if err != nil {
		r.logger.Warn("session lookup failed", "session_id", sessionID, "error", err)
		return "", false
	}
	if s == nil || s.Node == "" || s.Node == r.node {
		return "", false
	}
	return s.Node, true
}

// forward sends an action to the node owning the session and relays its
// answer. The owning node records the action in its history and audit log.
func (r *Relay) forward(ctx context.Context, node string, req *rpc.ActionRequest, start time.Time) (*rpc.ActionReply, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode forwarded action: %v", err)
	}

	// Leave the owner time to report its own timeout.
	fctx, cancel := context.WithTimeout(ctx, r.actionTimeout+5*time.Second)
	defer cancel()

	metrics.ForwardedActions.WithLabelValues("out").Inc()
	raw, err := r.forwarder.ForwardAction(fctx, node, data)
	if err != nil {
		if ctx.Err() != nil {
			r.observeForward(metrics.ResultCanceled, start)
			return nil, status.FromContextError(ctx.Err()).Err()
		}
		r.observeForward(metrics.ResultUnavailable, start)
		return nil, status.Errorf(codes.Unavailable, "forward to node %s: %v", node, err)
	}

	var fr forwardedReply
	if err := json.Unmarshal(raw, &fr); err != nil {
		r.observeForward(metrics.ResultUnavailable, start)
		return nil, status.Errorf(codes.Unavailable, "bad reply from node %s: %v", node, err)
	}
	if fr.Code != codes.OK {
		r.observeForward(resultForCode(fr.Code), start)
		return nil, status.Error(fr.Code, fr.Message)
	}
	if fr.Reply == nil {
		r.observeForward(metrics.ResultUnavailable, start)
		return nil, status.Errorf(codes.Unavailable, "empty reply from node %s", node)
	}

	result := metrics.ResultSuccess
	if !fr.Reply.Success {
		result = metrics.ResultFailure
	}
	r.observeForward(result, start)
	return fr.Reply, nil
}

// serveForwarded answers an action forwarded by another node.
func (r *Relay) serveForwarded(ctx context.Context, data []byte) []byte {
	metrics.ForwardedActions.WithLabelValues("in").Inc()

	var fr forwardedReply
	var req rpc.ActionRequest
	if err := json.Unmarshal(data, &req); err != nil {
		fr = forwardedReply{Code: codes.InvalidArgument, Message: "bad forwarded request: " + err.Error()}
	} else if r.server.Connections().Get(req.SessionID) == nil {
		fr = forwardedReply{Code: codes.NotFound, Message: fmt.Sprintf("session %d not found", req.SessionID)}
	} else {
		reply, err := r.callLocal(ctx, &req, time.Now())
		if err != nil {
			st := status.Convert(err)
			fr = forwardedReply{Code: st.Code(), Message: st.Message()}
		} else {
			fr = forwardedReply{Reply: reply}
		}
	}

	out, err := json.Marshal(fr)
	if err != nil {
		r.logger.Error("failed to encode forwarded reply", "error", err)
		out = []byte(`{"code":13,"message":"encode reply"}`)
	}
	return out
}

func (r *Relay) observeForward(result string, start time.Time) {
	metrics.ActionsTotal.WithLabelValues(result).Inc()
	metrics.ActionLatency.Observe(time.Since(start).Seconds())
}

func resultForCode(c codes.Code) string {
	switch c {
	case codes.NotFound:
		return metrics.ResultNotFound
	case codes.DeadlineExceeded:
		return metrics.ResultTimeout
	case codes.Canceled:
		return metrics.ResultCanceled
	case codes.InvalidArgument, codes.Internal:
		return metrics.ResultInvalid
	default:
		return metrics.ResultUnavailable
	}
}
