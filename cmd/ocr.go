package cmd

import (
	"time"

	"github.com/spf13/cobra"

	"aiservices/internal/logger"
)

var ocrCmd = &cobra.Command{
	Use:   "ocr [image-file]",
	Short: "Extract text from an image",
	Long: `Run a local image through the OCR engine chain and print the text.

The primary engine and its fallbacks come from OCR_PRIMARY and
OCR_FALLBACKS. Google engines need credentials:
  GOOGLE_APPLICATION_CREDENTIALS - Path to service account JSON file, OR
  GOOGLE_CREDENTIALS - Inline JSON credentials string
  GOOGLE_CLOUD_PROJECT - Your Google Cloud project ID`,
	Example: `  # Print the text of a scanned receipt
  aiservices ocr receipt.jpg

  # Keep at most 200 characters and write JSON to a file
  aiservices ocr receipt.jpg --max-length 200 --json -o result.json`,
	Args: cobra.ExactArgs(1),
	RunE: runOCR,
}

// OCROutput is written when --json is set.
type OCROutput struct {
	ExtractedText      string `json:"extracted_text"`
	TextLength         int    `json:"text_length"`
	ModelUsed          string `json:"model_used"`
	FileName           string `json:"file_name"`
	ProcessingDuration string `json:"processing_duration"`
}

func init() {
	rootCmd.AddCommand(ocrCmd)

	addFileFlags(ocrCmd)
	ocrCmd.Flags().Int("max-length", 0, "Maximum number of characters (default from OCR_MAX_LENGTH)")
	ocrCmd.Flags().Bool("json", false, "Output as JSON")
}

func runOCR(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("ocr")

	outputPath, _ := cmd.Flags().GetString("output")
	timeoutSecs, _ := cmd.Flags().GetInt("timeout")
	maxLength, _ := cmd.Flags().GetInt("max-length")
	jsonOutput, _ := cmd.Flags().GetBool("json")

	img, err := loadImage(args[0], log)
	if err != nil {
		return err
	}

	ctx, cancel := createContextWithTimeout(timeoutSecs)
	defer cancel()

	a, closeApp := startApp(ctx, log)
	defer closeApp()

	start := time.Now()
	result, err := a.OCR.Extract(ctx, img, maxLength)
	if err != nil {
		return handleServiceError(err, log)
	}

	log.Info().
		Str("engine", result.ModelUsed).
		Int("text_length", result.TextLength).
		Dur("duration", time.Since(start)).
		Msg("OCR processing completed successfully")

	if jsonOutput {
		return writeJSON(OCROutput{
			ExtractedText:      result.ExtractedText,
			TextLength:         result.TextLength,
			ModelUsed:          result.ModelUsed,
			FileName:           img.Filename,
			ProcessingDuration: time.Since(start).String(),
		}, outputPath, log)
	}
	return writeOutput([]byte(result.ExtractedText+"\n"), outputPath, log)
}
