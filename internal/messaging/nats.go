// Package messaging provides a NATS client wrapper used between relay nodes.
// A script may reach any relay over gRPC while the frontend session's
// WebSocket lives on another; actions are forwarded to the owning node with
// NATS request/reply.
package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
)

// SubjectAction is the subject prefix for forwarded actions. The owning
// node's name is appended: carta.action.<node>.
const SubjectAction = "carta.action"

// ActionSubject returns the subject a node serves forwarded actions on.
func ActionSubject(node string) string {
	return SubjectAction + "." + node
}

// NATSClient wraps the NATS connection with helper methods for request/reply.
type NATSClient struct {
	conn   *nats.Conn
	logger *slog.Logger
	mu     sync.Mutex
	subs   map[string]*nats.Subscription
}

// NATSConfig holds NATS connection settings.
type NATSConfig struct {
	URL           string        // nats://localhost:4222
	Name          string        // client name for identification
	ReconnectWait time.Duration // time between reconnect attempts
	MaxReconnects int           // max reconnect attempts (-1 for infinite)
}

// DefaultNATSConfig returns sensible defaults.
func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		URL:           "nats://localhost:4222",
		Name:          "carta-relay",
		ReconnectWait: 2 * time.Second,
		MaxReconnects: -1, // infinite reconnects
	}
}

// NewNATSClient connects to NATS with the given config and returns a ready client.
// It returns an error if the initial connection fails. A nil logger discards
// output.
func NewNATSClient(config NATSConfig, logger *slog.Logger) (*NATSClient, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	logger = logger.With("component", "nats")

	opts := []nats.Option{
		nats.Name(config.Name),
		nats.ReconnectWait(config.ReconnectWait),
		nats.MaxReconnects(config.MaxReconnects),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("disconnected", "error", err)
			} else {
				logger.Warn("disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("reconnected", "url", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			logger.Info("connection closed")
		}),
	}

	nc, err := nats.Connect(config.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	logger.Info("connected", "url", nc.ConnectedUrl())

	return &NATSClient{
		conn:   nc,
		logger: logger,
		subs:   make(map[string]*nats.Subscription),
	}, nil
}

// Subscribe registers a handler for the given subject and stores the
// subscription internally for later cleanup.
func (c *NATSClient) Subscribe(subject string, handler func(msg *nats.Msg)) error {
	sub, err := c.conn.Subscribe(subject, handler)
	if err != nil {
		return fmt.Errorf("nats subscribe %s: %w", subject, err)
	}

	c.mu.Lock()
	c.subs[subject] = sub
	c.mu.Unlock()

	return nil
}

// ServeActions answers actions forwarded to node. handler receives the
// request payload and returns the reply payload. Each request is handled in
// its own goroutine because handlers block until the frontend replies.
func (c *NATSClient) ServeActions(node string, handler func(ctx context.Context, data []byte) []byte) error {
	subject := ActionSubject(node)
	return c.Subscribe(subject, func(msg *nats.Msg) {
		go func() {
			reply := handler(context.Background(), msg.Data)
			if err := msg.Respond(reply); err != nil {
				c.logger.Warn("failed to respond to forwarded action", "subject", subject, "error", err)
			}
		}()
	})
}

// StopServing stops answering actions forwarded to node.
func (c *NATSClient) StopServing(node string) error {
	return c.unsubscribe(ActionSubject(node))
}

// ForwardAction sends data to the node owning a session and waits for its
// reply until ctx is done.
func (c *NATSClient) ForwardAction(ctx context.Context, node string, data []byte) ([]byte, error) {
	msg, err := c.conn.RequestWithContext(ctx, ActionSubject(node), data)
	if err != nil {
		return nil, fmt.Errorf("nats forward to %s: %w", node, err)
	}
	return msg.Data, nil
}

// Close drains all active subscriptions and closes the NATS connection.
func (c *NATSClient) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for subject, sub := range c.subs {
		if err := sub.Drain(); err != nil {
			c.logger.Warn("drain failed", "subject", subject, "error", err)
		}
	}
	c.subs = make(map[string]*nats.Subscription)

	if err := c.conn.Drain(); err != nil {
		c.logger.Warn("connection drain failed", "error", err)
	}

	c.logger.Info("client closed")
}

// unsubscribe removes and unsubscribes from a specific subject.
func (c *NATSClient) unsubscribe(subject string) error {
	c.mu.Lock()
	sub, ok := c.subs[subject]
	if !ok {
		c.mu.Unlock()
		return fmt.Errorf("nats: no subscription for subject %s", subject)
	}
	delete(c.subs, subject)
	c.mu.Unlock()

	if err := sub.Unsubscribe(); err != nil {
		return fmt.Errorf("nats unsubscribe %s: %w", subject, err)
	}
	return nil
}
