// Package config loads binary configuration from environment variables.
// A .env file in the working directory is read first when present; variables
// already set in the environment take precedence over it.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Log holds logging settings shared by every binary.
type Log struct {
	// Level sets the minimum log level (debug, info, warn, error). Defaults to info.
	Level string `envconfig:"LOG_LEVEL" default:"info"`

	// Format is "json" or "text". Defaults to json.
	Format string `envconfig:"LOG_FORMAT" default:"json"`

	// File, when set, sends logs to a size-rotated file instead of stderr.
	File string `envconfig:"LOG_FILE"`
}

// SlogLevel converts the Level string to a slog.Level.
// Unknown values default to slog.LevelInfo.
func (l Log) SlogLevel() slog.Level {
	switch l.Level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Relay configures carta-relay.
type Relay struct {
	Log

	// NodeName identifies this relay in the session registry and on NATS.
	// Defaults to the host name.
	NodeName string `envconfig:"CARTA_NODE_NAME"`

	// GRPCAddr is the CartaBackend listen address.
	GRPCAddr string `envconfig:"CARTA_GRPC_ADDR" default:":50051"`

	// WSAddr is the listen address for frontend WebSocket connections,
	// health, metrics and action history.
	WSAddr string `envconfig:"CARTA_WS_ADDR" default:":3002"`

	// ActionTimeout bounds the wait for a frontend reply.
	ActionTimeout time.Duration `envconfig:"CARTA_ACTION_TIMEOUT" default:"30s"`

	WorkerPoolSize    int           `envconfig:"CARTA_WS_WORKERS" default:"256"`
	MaxConnections    int           `envconfig:"CARTA_WS_MAX_CONNECTIONS" default:"10000"`
	HeartbeatInterval time.Duration `envconfig:"CARTA_WS_HEARTBEAT" default:"30s"`

	// RedisAddr enables the shared session registry and rate limiting.
	RedisAddr string `envconfig:"REDIS_ADDR"`

	// NATSURL enables forwarding actions between relay nodes. Requires
	// RedisAddr so nodes can find each other's sessions.
	NATSURL string `envconfig:"NATS_URL"`

	// DatabaseURL enables the PostgreSQL action audit log.
	DatabaseURL string `envconfig:"DATABASE_URL"`
}

// DummyBackend configures carta-dummy-backend.
type DummyBackend struct {
	Log

	GRPCAddr string `envconfig:"CARTA_GRPC_ADDR" default:":50051"`
}

// FrontendSim configures carta-frontend-sim.
type FrontendSim struct {
	Log

	// RelayURL is the relay's frontend WebSocket endpoint.
	RelayURL string `envconfig:"CARTA_RELAY_URL" default:"ws://localhost:3002/ws"`

	// RootDir is the directory served to the file browser.
	RootDir string `envconfig:"CARTA_ROOT_DIR" default:"."`

	// CatalogFile optionally describes image dimensions and headers.
	CatalogFile string `envconfig:"CARTA_CATALOG"`

	// Sessions is the number of simulated frontends to connect.
	Sessions int `envconfig:"CARTA_SIM_SESSIONS" default:"1"`

	// PingInterval is how often each frontend pings the relay. Zero disables
	// pings.
	PingInterval time.Duration `envconfig:"CARTA_SIM_PING_INTERVAL" default:"20s"`
}

// LoadRelay reads Relay from the environment.
func LoadRelay() (*Relay, error) {
	var c Relay
	if err := load(&c); err != nil {
		return nil, err
	}
	if c.NodeName == "" {
		host, err := os.Hostname()
		if err != nil {
			return nil, fmt.Errorf("resolving host name: %w", err)
		}
		c.NodeName = host
	}
	if c.NATSURL != "" && c.RedisAddr == "" {
		return nil, errors.New("loading config: NATS_URL requires REDIS_ADDR")
	}
	if c.ActionTimeout <= 0 {
		return nil, fmt.Errorf("loading config: CARTA_ACTION_TIMEOUT must be positive, got %s", c.ActionTimeout)
	}
	return &c, nil
}

// LoadDummyBackend reads DummyBackend from the environment.
func LoadDummyBackend() (*DummyBackend, error) {
	var c DummyBackend
	if err := load(&c); err != nil {
		return nil, err
	}
	return &c, nil
}

// LoadFrontendSim reads FrontendSim from the environment.
func LoadFrontendSim() (*FrontendSim, error) {
	var c FrontendSim
	if err := load(&c); err != nil {
		return nil, err
	}
	if c.Sessions < 1 {
		return nil, fmt.Errorf("loading config: CARTA_SIM_SESSIONS must be at least 1, got %d", c.Sessions)
	}
	return &c, nil
}

func load(dst any) error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("loading .env: %w", err)
	}
	if err := envconfig.Process("", dst); err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	return nil
}
