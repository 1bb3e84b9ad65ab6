package carta

import (
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
)

type sessionOptions struct {
	logger         *slog.Logger
	timeout        time.Duration
	dialOptions    []grpc.DialOption
	tracerProvider trace.TracerProvider
	browser        Browser
}

// Option configures a Session.
type Option func(*sessionOptions)

// WithLogger sets the logger used for request and reply debug logging.
func WithLogger(l *slog.Logger) Option {
	return func(o *sessionOptions) {
		o.logger = l
	}
}

// WithTimeout bounds every action call. Zero means no bound beyond the
// caller's context.
func WithTimeout(d time.Duration) Option {
	return func(o *sessionOptions) {
		o.timeout = d
	}
}

// WithDialOptions appends gRPC dial options.
func WithDialOptions(opts ...grpc.DialOption) Option {
	return func(o *sessionOptions) {
		o.dialOptions = append(o.dialOptions, opts...)
	}
}

// WithTracerProvider sets the OpenTelemetry tracer provider. The global
// provider is used by default.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *sessionOptions) {
		o.tracerProvider = tp
	}
}

func withBrowser(b Browser) Option {
	return func(o *sessionOptions) {
		o.browser = b
	}
}

func buildOptions(opts []Option) sessionOptions {
	o := sessionOptions{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.New(slog.DiscardHandler)
	}
	if o.tracerProvider == nil {
		o.tracerProvider = otel.GetTracerProvider()
	}
	return o
}

// Float returns a pointer to v, for optional numeric settings.
func Float(v float64) *float64 { return &v }
