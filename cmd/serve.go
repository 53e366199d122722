package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"aiservices/internal/app"
	"aiservices/internal/logger"
	"aiservices/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	Long: `Load every model backend once and serve the NSFW, OCR and ID card
endpoints until interrupted.

A backend that fails to load does not stop the server: its endpoints answer
503 and /health reports the service as unhealthy.`,
	Example: `  # Serve on the configured host and port
  aiservices serve

  # Override the port
  aiservices serve --port 8080`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("host", "", "Listen host (default from HOST)")
	serveCmd.Flags().String("port", "", "Listen port (default from PORT)")
}

func runServe(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("serve")

	if host, _ := cmd.Flags().GetString("host"); host != "" {
		cfg.Host = host
	}
	if port, _ := cmd.Flags().GetString("port"); port != "" {
		cfg.Port = port
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := app.New(ctx, cfg)
	defer func() {
		if err := a.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close model backends")
		}
	}()

	log.Info().Str("addr", cfg.Addr()).Str("version", app.Version).Msg("Starting HTTP API")

	if err := server.New(a).Run(ctx); err != nil {
		return fmt.Errorf("server failed: %w", err)
	}
	log.Info().Msg("Server stopped")
	return nil
}
