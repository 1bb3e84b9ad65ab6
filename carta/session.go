package carta

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"

	"github.com/idia-astro/carta-scripting/internal/rpc"
)

const tracerName = "github.com/idia-astro/carta-scripting/carta"

// Session corresponds to a frontend session connected to a CARTA backend.
// It holds no frontend state: every method is a remote call, and the
// session is not guaranteed to refer to a live frontend.
type Session struct {
	uri     string
	id      uint32
	conn    *grpc.ClientConn
	client  *rpc.Client
	logger  *slog.Logger
	tracer  trace.Tracer
	timeout time.Duration
	browser Browser

	closeOnce sync.Once
	closeErr  error
}

// ActionCall is a single call to a frontend action.
type ActionCall struct {
	// Path is the full dot-separated path to the action, e.g.
	// "overlayStore.global.setSystem".
	Path string
	// Args are serialized into a JSON array. Macro values are evaluated
	// by the frontend.
	Args []any
	// Async is passed through to the backend.
	Async bool
	// ResponseExpected makes an empty response an error.
	ResponseExpected bool
}

// Connect returns a session for an existing frontend session. No request is
// sent until the first action.
func Connect(host string, port int, sessionID uint32, opts ...Option) (*Session, error) {
	o := buildOptions(opts)
	uri := net.JoinHostPort(host, strconv.Itoa(port))

	conn, err := rpc.Dial(uri, o.dialOptions...)
	if err != nil {
		return nil, fmt.Errorf("%w: connect to %s: %w", ErrScripting, uri, err)
	}

	return &Session{
		uri:     uri,
		id:      sessionID,
		conn:    conn,
		client:  rpc.NewClient(conn),
		logger:  o.logger.With("session_id", sessionID),
		tracer:  o.tracerProvider.Tracer(tracerName),
		timeout: o.timeout,
		browser: o.browser,
	}, nil
}

// ID returns the frontend session ID.
func (s *Session) ID() uint32 { return s.id }

// URI returns the backend's gRPC address.
func (s *Session) URI() string { return s.uri }

func (s *Session) String() string {
	return fmt.Sprintf("Session(session_id=%d, uri=%s)", s.id, s.uri)
}

// SplitPath separates a combined path into the store path and the final
// action or attribute name.
func SplitPath(path string) (string, string) {
	i := strings.LastIndex(path, ".")
	if i < 0 {
		return "", path
	}
	return path[:i], path[i+1:]
}

// Call runs an action on the frontend through the backend. It returns the
// raw JSON response, or nil when the action returned nothing.
//
// This is the generic mechanism behind every other method. It is exported so
// experimental functionality can be scripted before a dedicated method
// exists.
func (s *Session) Call(ctx context.Context, call ActionCall) (json.RawMessage, error) {
	path, action := SplitPath(call.Path)

	parameters, err := encodeParameters(call.Args)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrValidation, err)
	}

	ctx, span := s.tracer.Start(ctx, "carta.CallAction", trace.WithAttributes(
		attribute.Int64("carta.session_id", int64(s.id)),
		attribute.String("carta.path", path),
		attribute.String("carta.action", action),
	))
	defer span.End()

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	s.logger.Debug("sending action request",
		"path", path, "action", action, "parameters", parameters, "async", call.Async)

	fail := func(kind error, reason string, cause error) error {
		err := &ActionError{
			Path: path, Action: action, Parameters: parameters,
			Reason: reason, Kind: kind, Err: cause,
		}
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, reason)
		return err
	}

	reply, err := s.client.CallAction(ctx, &rpc.ActionRequest{
		SessionID:  s.id,
		Path:       path,
		Action:     action,
		Parameters: parameters,
		Async:      call.Async,
	})
	if err != nil {
		return nil, fail(ErrActionFailed, "failed: "+status.Convert(err).Message(), err)
	}

	s.logger.Debug("got action reply",
		"success", reply.Success, "message", reply.Message, "response", reply.Response)

	if !reply.Success {
		return nil, fail(ErrActionFailed, "failed: "+reply.Message, nil)
	}

	if reply.Response == "" {
		if call.ResponseExpected {
			return nil, fail(ErrBadResponse, "expected a response, but did not receive one.", nil)
		}
		return nil, nil
	}

	var decoded any
	if err := json.Unmarshal([]byte(reply.Response), &decoded); err != nil {
		return nil, fail(ErrBadResponse, fmt.Sprintf(
			"received a response which could not be decoded.\nResponse string: %q\nError: %v", reply.Response, err), err)
	}

	return json.RawMessage(reply.Response), nil
}

// CallAction runs an action which is not expected to return anything.
func (s *Session) CallAction(ctx context.Context, path string, args ...any) error {
	_, err := s.Call(ctx, ActionCall{Path: path, Args: args})
	return err
}

// GetValue fetches an attribute of a frontend store and decodes it into dst.
// path is the full dot-separated path to the attribute.
func (s *Session) GetValue(ctx context.Context, path string, dst any) error {
	target, attr := SplitPath(path)
	raw, err := s.Call(ctx, ActionCall{
		Path:             "fetchParameter",
		Args:             []any{NewMacro(target, attr)},
		ResponseExpected: true,
	})
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("%w: decode value of %s: %w", ErrBadResponse, path, err)
	}
	return nil
}

// Close releases the backend connection and, for sessions created through
// a browser, shuts the browser down. It is safe to call more than once.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		var errs []error
		if s.conn != nil {
			errs = append(errs, s.conn.Close())
		}
		if s.browser != nil {
			errs = append(errs, s.browser.Close())
		}
		s.closeErr = errors.Join(errs...)
	})
	return s.closeErr
}
