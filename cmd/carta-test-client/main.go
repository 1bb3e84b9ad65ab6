// Command carta-test-client is a basic end-to-end check of the scripting
// client: it opens an image in an existing frontend session and applies a
// colormap.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/idia-astro/carta-scripting/carta"
	"github.com/idia-astro/carta-scripting/internal/logger"
)

var rootCmd = &cobra.Command{
	Use:   "carta-test-client --session <id> --image <path>",
	Short: "A basic test of the CARTA scripting client",
	Long: `Connect to a CARTA backend, open an image in the given frontend
session, set its colormap to viridis and report its shape.

Examples:
  carta-test-client --session 1 --image /images/m51.fits
  carta-test-client --host carta.local --port 50051 --session 1 --image cube.fits --append --debug`,
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          run,
}

func init() {
	rootCmd.Flags().String("host", "localhost", "Server host")
	rootCmd.Flags().Int("port", 50051, "Server port")
	rootCmd.Flags().Uint32("session", 0, "Session ID")
	rootCmd.Flags().String("image", "", "Image name")
	rootCmd.Flags().Bool("append", false, "Append image")
	rootCmd.Flags().Bool("debug", false, "Log gRPC requests and responses")
	_ = rootCmd.MarkFlagRequired("session")
	_ = rootCmd.MarkFlagRequired("image")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, _ []string) error {
	host, _ := cmd.Flags().GetString("host")
	port, _ := cmd.Flags().GetInt("port")
	sessionID, _ := cmd.Flags().GetUint32("session")
	image, _ := cmd.Flags().GetString("image")
	appendImage, _ := cmd.Flags().GetBool("append")
	debug, _ := cmd.Flags().GetBool("debug")

	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	log, closer := logger.New(logger.Options{Level: level, Format: "text"})
	defer closer.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	session, err := carta.Connect(host, port, sessionID, carta.WithLogger(log))
	if err != nil {
		return err
	}
	defer session.Close()

	var img *carta.Image
	if appendImage {
		img, err = session.AppendImage(ctx, image, "")
	} else {
		img, err = session.OpenImage(ctx, image, "")
	}
	if err != nil {
		return err
	}

	if err := img.SetColormap(ctx, carta.ColormapViridis, false); err != nil {
		return err
	}

	shape, err := img.Shape(ctx)
	if err != nil {
		return err
	}
	log.Info(fmt.Sprintf("Image shape is %v", shape))
	log.Info(fmt.Sprintf("Image name is %s", img.FileName()))
	return nil
}
