package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"aiservices/internal/logger"
	"aiservices/internal/sheets"
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Show recent ID card audit rows",
	Long: `Read the newest rows from the ID card audit worksheet.

Required environment variables:
  IDCARD_AUDIT_SHEET_URL - URL of the audit spreadsheet
  GOOGLE_APPLICATION_CREDENTIALS or GOOGLE_CREDENTIALS - service account credentials`,
	Example: `  aiservices audit --limit 20`,
	Args:    cobra.NoArgs,
	RunE:    runAudit,
}

func init() {
	rootCmd.AddCommand(auditCmd)

	auditCmd.Flags().Int("limit", 10, "Number of rows to show (0 for all)")
	auditCmd.Flags().Int("timeout", 60, "Request timeout in seconds")
}

func runAudit(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("audit")

	limit, _ := cmd.Flags().GetInt("limit")
	timeoutSecs, _ := cmd.Flags().GetInt("timeout")

	if cfg.AuditSheetURL == "" {
		return fmt.Errorf("IDCARD_AUDIT_SHEET_URL is not set")
	}

	ctx, cancel := createContextWithTimeout(timeoutSecs)
	defer cancel()

	rec, err := sheets.NewRecorder(ctx, cfg.AuditSheetURL, cfg.AuditSheetWorksheet)
	if err != nil {
		return fmt.Errorf("failed to open audit sheet: %w", err)
	}

	rows, err := rec.Recent(ctx, limit)
	if err != nil {
		return fmt.Errorf("failed to read audit rows: %w", err)
	}
	log.Debug().Int("rows", len(rows)).Str("worksheet", rec.Worksheet()).Msg("Audit rows loaded")

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "REQUEST ID\tTIME\tDETECTED\tDETECTION\tAVERAGE\tFIELDS\tENGINE")
	for _, row := range rows {
		for i := 0; i < 7; i++ {
			if i > 0 {
				fmt.Fprint(w, "\t")
			}
			if i < len(row) {
				fmt.Fprint(w, row[i])
			}
		}
		fmt.Fprintln(w)
	}
	return w.Flush()
}
