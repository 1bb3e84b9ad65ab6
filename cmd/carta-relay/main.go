// Command carta-relay serves the CartaBackend gRPC service to scripts and
// relays each action to the frontend session it names.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"

	"github.com/idia-astro/carta-scripting/internal/audit"
	"github.com/idia-astro/carta-scripting/internal/config"
	"github.com/idia-astro/carta-scripting/internal/logger"
	"github.com/idia-astro/carta-scripting/internal/messaging"
	"github.com/idia-astro/carta-scripting/internal/metrics"
	"github.com/idia-astro/carta-scripting/internal/ratelimit"
	"github.com/idia-astro/carta-scripting/internal/relay"
	"github.com/idia-astro/carta-scripting/internal/rpc"
	"github.com/idia-astro/carta-scripting/internal/session"
	"github.com/idia-astro/carta-scripting/internal/ws"
)

func main() {
	cfg, err := config.LoadRelay()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	log, closer := logger.New(logger.Options{Level: cfg.SlogLevel(), Format: cfg.Format, File: cfg.File})
	defer closer.Close()

	if err := run(cfg, log); err != nil {
		log.Error("relay stopped", "error", err)
		closer.Close()
		os.Exit(1)
	}
}

func run(cfg *config.Relay, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info("carta relay starting",
		"node", cfg.NodeName,
		"grpc_addr", cfg.GRPCAddr,
		"ws_addr", cfg.WSAddr,
		"action_timeout", cfg.ActionTimeout,
		"redis", cfg.RedisAddr != "",
		"nats", cfg.NATSURL != "",
		"audit", cfg.DatabaseURL != "")

	var opts []relay.Option
	opts = append(opts,
		relay.WithNodeName(cfg.NodeName),
		relay.WithActionTimeout(cfg.ActionTimeout),
		relay.WithLogger(log))

	// --- Redis ---
	var sessionStore *session.Store
	if cfg.RedisAddr != "" {
		store, err := session.NewStore(cfg.RedisAddr, cfg.NodeName)
		if err != nil {
			return fmt.Errorf("connect to redis: %w", err)
		}
		defer store.Close()
		sessionStore = store
		opts = append(opts,
			relay.WithSessionStore(sessionStore),
			relay.WithLimiter(ratelimit.NewLimiter(sessionStore.Client(), log)))
	}

	// --- NATS ---
	if cfg.NATSURL != "" {
		natsConfig := messaging.DefaultNATSConfig()
		natsConfig.URL = cfg.NATSURL
		natsConfig.Name = "carta-relay-" + cfg.NodeName
		natsClient, err := messaging.NewNATSClient(natsConfig, log)
		if err != nil {
			return fmt.Errorf("connect to nats: %w", err)
		}
		defer natsClient.Close()
		opts = append(opts, relay.WithForwarder(natsClient))
	}

	// --- PostgreSQL ---
	if cfg.DatabaseURL != "" {
		dbCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		auditStore, err := audit.Open(dbCtx, cfg.DatabaseURL)
		cancel()
		if err != nil {
			return err
		}
		defer auditStore.Close()
		opts = append(opts, relay.WithAudit(auditStore))
	}

	wsConfig := ws.DefaultServerConfig()
	wsConfig.ListenAddr = cfg.WSAddr
	wsConfig.WorkerPoolSize = cfg.WorkerPoolSize
	wsConfig.MaxConnections = cfg.MaxConnections
	wsConfig.Heartbeat.Interval = cfg.HeartbeatInterval

	server := ws.NewServer(wsConfig, sessionStore, log, nil)
	r := relay.New(server, opts...)
	server.SetRoutes(func(router chi.Router) {
		r.Routes(router)
		router.Handle("/metrics", metrics.Handler())
	})

	grpcLis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", cfg.GRPCAddr, err)
	}
	grpcServer := rpc.NewServer(r)

	if err := r.Start(); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("grpc server listening", "addr", grpcLis.Addr().String())
		return grpcServer.Serve(grpcLis)
	})
	g.Go(server.Start)
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")

		if err := r.Stop(); err != nil {
			log.Warn("stop forwarding", "error", err)
		}
		grpcServer.GracefulStop()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
