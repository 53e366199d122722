package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"aiservices/internal/logger"
)

var nsfwCmd = &cobra.Command{
	Use:   "nsfw [image-file...]",
	Short: "Classify images as safe or not safe for work",
	Long: `Classify one or more local images with the NSFW detector and print the
results as JSON. A file that fails is reported on its own and does not stop
the others.`,
	Example: `  aiservices nsfw photo.jpg
  aiservices nsfw a.png b.png -o results.json`,
	Args: cobra.MinimumNArgs(1),
	RunE: runNSFW,
}

// NSFWFileResult is the outcome for one file.
type NSFWFileResult struct {
	File   string `json:"file"`
	Result any    `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
}

func init() {
	rootCmd.AddCommand(nsfwCmd)
	addFileFlags(nsfwCmd)
}

func runNSFW(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("nsfw")

	outputPath, _ := cmd.Flags().GetString("output")
	timeoutSecs, _ := cmd.Flags().GetInt("timeout")

	ctx, cancel := createContextWithTimeout(timeoutSecs)
	defer cancel()

	a, closeApp := startApp(ctx, log)
	defer closeApp()

	if !a.NSFW.Available() {
		return fmt.Errorf("NSFW Detection Service not available. Check your Google Cloud credentials")
	}

	results := make([]NSFWFileResult, 0, len(args))
	failed := 0
	for _, path := range args {
		out := NSFWFileResult{File: path}

		img, err := loadImage(path, log)
		if err == nil {
			var res any
			if res, err = a.NSFW.Detect(ctx, img); err == nil {
				out.Result = res
			} else {
				err = handleServiceError(err, log)
			}
		}
		if err != nil {
			out.Error = err.Error()
			failed++
		}
		results = append(results, out)
	}

	log.Info().
		Int("files", len(args)).
		Int("failed", failed).
		Msg("NSFW classification finished")

	if len(args) == 1 {
		if failed == 1 {
			return fmt.Errorf("%s", results[0].Error)
		}
		return writeJSON(results[0].Result, outputPath, log)
	}
	return writeJSON(results, outputPath, log)
}
