// Command carta-loadtest drives a relay with many simulated frontend sessions
// and concurrent scripted actions, then reports client-side latency
// percentiles alongside the relay's own Prometheus metrics.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/idia-astro/carta-scripting/internal/frontendsim"
	"github.com/idia-astro/carta-scripting/internal/loadstats"
	"github.com/idia-astro/carta-scripting/internal/rpc"
)

var rootCmd = &cobra.Command{
	Use:   "carta-loadtest",
	Short: "Load test a CARTA scripting relay",
	Long: `Connect simulated frontends to a relay's WebSocket endpoint, then send
scripted actions to each session over gRPC and report latencies.

Examples:
  carta-loadtest --sessions 100 --actions 50
  carta-loadtest --relay-url ws://relay:3002/ws --grpc-addr relay:50051 --concurrency 200`,
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          run,
}

func init() {
	rootCmd.Flags().String("relay-url", "ws://localhost:3002/ws", "Relay WebSocket URL")
	rootCmd.Flags().String("grpc-addr", "localhost:50051", "Relay gRPC address")
	rootCmd.Flags().Int("sessions", 50, "Number of simulated frontend sessions")
	rootCmd.Flags().Int("actions", 100, "Actions sent to each session")
	rootCmd.Flags().Int("concurrency", 50, "Maximum in-flight actions and connection attempts")
	rootCmd.Flags().String("metrics-url", "http://localhost:3002/metrics", "Relay Prometheus endpoint, empty to disable")
	rootCmd.Flags().Duration("scrape-interval", 2*time.Second, "Interval between metrics scrapes")
	rootCmd.Flags().Duration("timeout", 10*time.Second, "Timeout for each connect and action")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, _ []string) error {
	relayURL, _ := cmd.Flags().GetString("relay-url")
	grpcAddr, _ := cmd.Flags().GetString("grpc-addr")
	sessions, _ := cmd.Flags().GetInt("sessions")
	actions, _ := cmd.Flags().GetInt("actions")
	concurrency, _ := cmd.Flags().GetInt("concurrency")
	metricsURL, _ := cmd.Flags().GetString("metrics-url")
	scrapeInterval, _ := cmd.Flags().GetDuration("scrape-interval")
	timeout, _ := cmd.Flags().GetDuration("timeout")

	if sessions <= 0 || actions < 0 || concurrency <= 0 {
		return fmt.Errorf("sessions and concurrency must be positive, actions non-negative")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fmt.Printf("Load test: %d sessions x %d actions via %s (frontends on %s, concurrency=%d)\n",
		sessions, actions, grpcAddr, relayURL, concurrency)

	collector := loadstats.NewCollector()
	var scraper *loadstats.Scraper
	if metricsURL != "" {
		scraper = loadstats.NewScraper(metricsURL, scrapeInterval)
		collector.SetScraper(scraper)
		scraper.Start(ctx)
	}

	fmt.Println("\n--- Phase 1: Connect frontends ---")
	clients := connect(ctx, relayURL, sessions, concurrency, timeout, collector)
	defer func() {
		for _, c := range clients {
			c.Close()
		}
	}()
	fmt.Printf("Connected %d/%d frontends (%d errors)\n", len(clients), sessions, collector.ErrorCount())

	if len(clients) > 0 && actions > 0 && ctx.Err() == nil {
		fmt.Println("\n--- Phase 2: Run actions ---")
		if err := runActions(ctx, grpcAddr, clients, actions, concurrency, timeout, collector); err != nil {
			return err
		}
	}

	if ctx.Err() != nil {
		fmt.Println("\nInterrupted.")
	}

	// Stop before reporting so the final snapshot is included.
	if scraper != nil {
		scraper.Stop()
	}
	collector.Report(os.Stdout)
	return nil
}

// connect dials the frontends, bounded by concurrency, and returns the ones
// that received a session ID.
func connect(ctx context.Context, relayURL string, n, concurrency int, timeout time.Duration, collector *loadstats.Collector) []*frontendsim.Client {
	var (
		mu      sync.Mutex
		clients = make([]*frontendsim.Client, 0, n)
	)

	g := new(errgroup.Group)
	g.SetLimit(concurrency)
	for i := 0; i < n && ctx.Err() == nil; i++ {
		g.Go(func() error {
			cctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			start := time.Now()
			store := frontendsim.NewStore(os.DirFS("."))
			c, err := frontendsim.Dial(cctx, relayURL, store, nil)
			if err != nil {
				collector.AddError()
				return nil
			}
			if _, err := c.WaitForSession(cctx); err != nil {
				collector.AddError()
				c.Close()
				return nil
			}
			collector.AddConnect(time.Since(start))

			mu.Lock()
			clients = append(clients, c)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return clients
}

// runActions sends actions to every session over one gRPC connection,
// alternating a parameter echo with a store mutation.
func runActions(ctx context.Context, grpcAddr string, clients []*frontendsim.Client, actions, concurrency int, timeout time.Duration, collector *loadstats.Collector) error {
	conn, err := rpc.Dial(grpcAddr)
	if err != nil {
		return fmt.Errorf("dial relay: %w", err)
	}
	defer conn.Close()
	client := rpc.NewClient(conn)

	progressDone := make(chan struct{})
	defer close(progressDone)
	go func() {
		ticker := time.NewTicker(2 * time.Second)
		defer ticker.Stop()
		total := len(clients) * actions
		for {
			select {
			case <-ticker.C:
				fmt.Printf("  [actions] %d/%d  errors: %d\n", collector.ActionCount(), total, collector.ErrorCount())
			case <-progressDone:
				return
			}
		}
	}()

	g := new(errgroup.Group)
	g.SetLimit(concurrency)
	for i := 0; i < actions && ctx.Err() == nil; i++ {
		req := rpc.ActionRequest{Action: "fetchParameter", Parameters: fmt.Sprintf("[%d]", i)}
		if i%2 == 1 {
			req = rpc.ActionRequest{Path: "overlayStore", Action: "toggleLabels", Parameters: "[]"}
		}
		for _, c := range clients {
			req := req
			req.SessionID = c.SessionID()
			g.Go(func() error {
				actx, cancel := context.WithTimeout(ctx, timeout)
				defer cancel()

				start := time.Now()
				reply, err := client.CallAction(actx, &req)
				if err != nil {
					collector.AddError()
					return nil
				}
				collector.AddAction(time.Since(start), reply.Success)
				return nil
			})
		}
	}
	return g.Wait()
}
