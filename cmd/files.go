package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"aiservices/internal/apperr"
	"aiservices/internal/app"
	"aiservices/internal/ingest"
)

// addFileFlags registers the flags shared by the file processing commands.
func addFileFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("output", "o", "", "Output file path (default: stdout)")
	cmd.Flags().Int("timeout", 120, "Processing timeout in seconds")
}

// loadImage reads and validates a local image with the same rules the API
// applies to uploads.
func loadImage(path string, log zerolog.Logger) (*ingest.Image, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			log.Error().Str("file", path).Msg("Image file not found")
			return nil, fmt.Errorf("image file not found: %s", path)
		}
		return nil, fmt.Errorf("error accessing image file: %w", err)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("path is not a regular file: %s", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read image file: %w", err)
	}

	img, err := ingest.FromBytes(path, data, cfg.MaxUploadBytes)
	if err != nil {
		log.Error().Err(err).Str("file", path).Msg("Image rejected")
		return nil, errors.New(apperr.Message(err))
	}

	log.Debug().
		Str("file", path).
		Str("format", img.Format).
		Int("width", img.Width).
		Int("height", img.Height).
		Msg("Image loaded")
	return img, nil
}

// createContextWithTimeout creates a context with timeout and signal handling
func createContextWithTimeout(timeoutSecs int) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(timeoutSecs)*time.Second)
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	return ctx, func() {
		stop()
		cancel()
	}
}

// startApp loads the backends and returns the app with a function closing it.
func startApp(ctx context.Context, log zerolog.Logger) (*app.App, func()) {
	a := app.New(ctx, cfg)
	return a, func() {
		if err := a.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close model backends")
		}
	}
}

// handleServiceError turns a service error into a message for the terminal.
func handleServiceError(err error, log zerolog.Logger) error {
	log.Error().Err(err).Msg("Processing failed")

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("processing timed out. Try increasing --timeout")
	case errors.Is(err, context.Canceled):
		return fmt.Errorf("processing was canceled")
	case errors.Is(err, apperr.ErrServiceUnavailable):
		return fmt.Errorf("%s. Check the credentials and model settings in your environment", apperr.Message(err))
	default:
		return errors.New(apperr.Message(err))
	}
}

// writeJSON writes v as indented JSON to path, or stdout when path is empty.
func writeJSON(v any, outputPath string, log zerolog.Logger) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to create JSON output: %w", err)
	}
	return writeOutput(append(data, '\n'), outputPath, log)
}

func writeOutput(data []byte, outputPath string, log zerolog.Logger) error {
	if outputPath == "" {
		if _, err := os.Stdout.Write(data); err != nil {
			return fmt.Errorf("failed to write output: %w", err)
		}
		return nil
	}

	if err := os.WriteFile(outputPath, data, 0o644); err != nil {
		log.Error().
			Err(err).
			Str("output_file", outputPath).
			Msg("Failed to write output file")
		return fmt.Errorf("failed to write output file: %w", err)
	}

	log.Info().
		Str("output_file", outputPath).
		Int("bytes", len(data)).
		Msg("Results written to file")
	return nil
}
