package cmd

import (
	"github.com/spf13/cobra"

	"aiservices/internal/idcard"
	"aiservices/internal/logger"
)

var idcardCmd = &cobra.Command{
	Use:   "idcard [image-file]",
	Short: "Detect an ID card and extract its fields",
	Long: `Locate an Indonesian ID card (KTP) in a local image, crop it, read it
with the OCR engines and parse the printed fields.

The output has the same shape as the /id-card/detect-and-extract response
data. With --detect-only no OCR runs and only the location is reported.`,
	Example: `  # Full extraction
  aiservices idcard ktp.jpg

  # Only check whether a card is present
  aiservices idcard ktp.jpg --detect-only`,
	Args: cobra.ExactArgs(1),
	RunE: runIDCard,
}

func init() {
	rootCmd.AddCommand(idcardCmd)

	addFileFlags(idcardCmd)
	idcardCmd.Flags().Bool("detect-only", false, "Only detect the card, skip OCR")
}

func runIDCard(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("idcard")

	outputPath, _ := cmd.Flags().GetString("output")
	timeoutSecs, _ := cmd.Flags().GetInt("timeout")
	detectOnly, _ := cmd.Flags().GetBool("detect-only")

	img, err := loadImage(args[0], log)
	if err != nil {
		return err
	}

	ctx, cancel := createContextWithTimeout(timeoutSecs)
	defer cancel()

	a, closeApp := startApp(ctx, log)
	defer closeApp()

	var result any
	if detectOnly {
		result, err = a.IDCard.Detect(ctx, img)
	} else {
		result, err = a.IDCard.Process(ctx, img, idcard.Options{ExtractData: true})
	}
	if err != nil {
		return handleServiceError(err, log)
	}

	return writeJSON(result, outputPath, log)
}
