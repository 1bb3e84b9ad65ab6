// Command carta-dummy-backend answers every CartaBackend action with a fixed
// response, for testing scripts without a frontend.
package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/idia-astro/carta-scripting/internal/backend"
	"github.com/idia-astro/carta-scripting/internal/config"
	"github.com/idia-astro/carta-scripting/internal/logger"
	"github.com/idia-astro/carta-scripting/internal/rpc"
)

func main() {
	cfg, err := config.LoadDummyBackend()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	log, closer := logger.New(logger.Options{Level: cfg.SlogLevel(), Format: cfg.Format, File: cfg.File})
	defer closer.Close()

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		log.Error("listen failed", "addr", cfg.GRPCAddr, "error", err)
		closer.Close()
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	server := rpc.NewServer(backend.NewDummy(log))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("dummy backend listening", "addr", lis.Addr().String())
		return server.Serve(lis)
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		server.GracefulStop()
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Error("dummy backend stopped", "error", err)
		closer.Close()
		os.Exit(1)
	}
}
