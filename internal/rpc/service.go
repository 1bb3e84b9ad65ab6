// Package rpc defines the CartaBackend gRPC service: the generic
// remote-procedure proxy through which scripts call actions on a frontend
// session. Messages are plain Go structs carried by a JSON codec.
package rpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

const (
	// ServiceName is the fully qualified gRPC service name.
	ServiceName = "CARTAVIS.CartaBackend"

	// CallActionMethod is the full method name of the single RPC.
	CallActionMethod = "/" + ServiceName + "/CallAction"
)

// ActionRequest asks the backend to run an action on a frontend store.
type ActionRequest struct {
	SessionID  uint32 `json:"session_id"`
	Path       string `json:"path"`
	Action     string `json:"action"`
	Parameters string `json:"parameters"` // JSON array of positional arguments
	Async      bool   `json:"async"`
}

// ActionReply carries the outcome of an action. Response holds the
// JSON-encoded return value and is empty when the action returns nothing.
type ActionReply struct {
	Success  bool   `json:"success"`
	Message  string `json:"message"`
	Response string `json:"response"`
}

// FullAction returns the dot-joined path and action name.
func (r *ActionRequest) FullAction() string {
	if r.Path == "" {
		return r.Action
	}
	return r.Path + "." + r.Action
}

// Servicer is implemented by anything that can answer CallAction.
type Servicer interface {
	CallAction(ctx context.Context, req *ActionRequest) (*ActionReply, error)
}

// ServiceDesc describes the CartaBackend service for grpc.Server registration.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*Servicer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "CallAction",
			Handler:    callActionHandler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "carta_service.proto",
}

func callActionHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(ActionRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(Servicer).CallAction(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: CallActionMethod,
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(Servicer).CallAction(ctx, req.(*ActionRequest))
	}
	return interceptor(ctx, in, info, handler)
}

// Register attaches a Servicer to a gRPC server.
func Register(s grpc.ServiceRegistrar, srv Servicer) {
	s.RegisterService(&ServiceDesc, srv)
}

// Client calls CartaBackend over an existing connection.
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient wraps a client connection.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// CallAction invokes the remote action. The JSON codec is always selected.
func (c *Client) CallAction(ctx context.Context, req *ActionRequest, opts ...grpc.CallOption) (*ActionReply, error) {
	out := new(ActionReply)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	if err := c.cc.Invoke(ctx, CallActionMethod, req, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// Dial opens a plaintext client connection to target. The connection is
// lazy: nothing is sent until the first call.
func Dial(target string, opts ...grpc.DialOption) (*grpc.ClientConn, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	return grpc.NewClient(target, opts...)
}

// NewServer returns a gRPC server with the CartaBackend service registered.
func NewServer(srv Servicer, opts ...grpc.ServerOption) *grpc.Server {
	s := grpc.NewServer(opts...)
	Register(s, srv)
	return s
}
