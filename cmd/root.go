package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"aiservices/internal/app"
	"aiservices/internal/config"
	"aiservices/internal/logger"
)

// cfg is the configuration loaded by main before Execute runs.
var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "aiservices",
	Short: "AI Services - NSFW detection, image OCR and ID card extraction",
	Long: `AI Services bundles three image services behind one HTTP API:

  - NSFW detection backed by Cloud Vision SafeSearch
  - Image to text through a configurable OCR engine chain
  - Indonesian ID card (KTP) detection and field extraction

Run "aiservices serve" to start the API, or use the ocr, nsfw and
idcard subcommands to process local files directly.`,
	Version: app.Version,
	Run: func(cmd *cobra.Command, args []string) {
		log := logger.WithComponent("root")
		log.Info().
			Str("version", app.Version).
			Msg("AI Services CLI executed")

		fmt.Println("Welcome to AI Services!")
		fmt.Println("Use --help to see available commands and options.")
	},
}

// Execute runs the CLI with the given configuration.
func Execute(c *config.Config) {
	cfg = c
	log := logger.WithComponent("cmd")

	if err := rootCmd.Execute(); err != nil {
		log.Error().
			Err(err).
			Msg("Command execution failed")
		fmt.Fprintf(os.Stderr, "Error executing command: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.Flags().BoolP("version", "v", false, "Print version information")
}
