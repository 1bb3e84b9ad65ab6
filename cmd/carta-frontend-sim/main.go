// Command carta-frontend-sim connects simulated frontends to a relay so
// scripts can be run end to end without a browser. Each frontend logs its
// session ID on connect.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/idia-astro/carta-scripting/internal/config"
	"github.com/idia-astro/carta-scripting/internal/frontendsim"
	"github.com/idia-astro/carta-scripting/internal/logger"
)

func main() {
	cfg, err := config.LoadFrontendSim()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	log, closer := logger.New(logger.Options{Level: cfg.SlogLevel(), Format: cfg.Format, File: cfg.File})
	defer closer.Close()

	if err := run(cfg, log); err != nil {
		log.Error("frontend simulator stopped", "error", err)
		closer.Close()
		os.Exit(1)
	}
}

func run(cfg *config.FrontendSim, log *slog.Logger) error {
	var storeOpts []frontendsim.Option
	storeOpts = append(storeOpts, frontendsim.WithLogger(log))
	if cfg.CatalogFile != "" {
		catalog, err := frontendsim.LoadCatalog(cfg.CatalogFile)
		if err != nil {
			return err
		}
		storeOpts = append(storeOpts, frontendsim.WithCatalog(catalog))
	}
	fsys := os.DirFS(cfg.RootDir)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info("frontend simulator starting",
		"relay_url", cfg.RelayURL,
		"root_dir", cfg.RootDir,
		"sessions", cfg.Sessions,
		"ping_interval", cfg.PingInterval)

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < cfg.Sessions; i++ {
		g.Go(func() error {
			dialCtx, cancel := context.WithTimeout(gctx, 10*time.Second)
			defer cancel()

			store := frontendsim.NewStore(fsys, storeOpts...)
			client, err := frontendsim.Dial(dialCtx, cfg.RelayURL, store, log.With("frontend", i))
			if err != nil {
				return err
			}
			if _, err := client.WaitForSession(dialCtx); err != nil {
				client.Close()
				return err
			}
			go client.KeepAlive(gctx, cfg.PingInterval)

			select {
			case <-gctx.Done():
				client.Close()
				return nil
			case <-client.Done():
				return fmt.Errorf("frontend %d: connection to relay lost after %d actions", i, client.Handled())
			}
		})
	}
	return g.Wait()
}
