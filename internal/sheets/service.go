// Package sheets appends ID card audit records to a Google Sheet.
//
// Rows hold processing metadata only: request id, time, detection outcome,
// confidences, the names of the fields found and the OCR engine. Card
// contents are never written.
package sheets

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"aiservices/internal/gcp"
	"aiservices/internal/idcard"
	"aiservices/internal/logger"
)

// DefaultWorksheet is used when no worksheet name is configured.
const DefaultWorksheet = "IDCard_Audit"

const timeLayout = "02.01.2006 15:04:05"

var headers = []interface{}{
	"Request ID", "Time", "Card Detected", "Detection Confidence",
	"Average Confidence", "Fields Found", "OCR Engine",
}

var spreadsheetIDPattern = regexp.MustCompile(`/spreadsheets/d/([a-zA-Z0-9-_]+)`)

// Recorder writes audit rows to one worksheet. It implements idcard.Recorder.
type Recorder struct {
	sheetsService *sheets.Service
	spreadsheetID string
	sheetName     string
	log           zerolog.Logger

	mu           sync.Mutex
	headersReady bool
}

// NewRecorder creates a recorder for the spreadsheet at sheetURL.
func NewRecorder(ctx context.Context, sheetURL, sheetName string) (*Recorder, error) {
	const op = "NewRecorder"

	log := logger.WithComponent("sheets")

	spreadsheetID, err := extractSpreadsheetID(sheetURL)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to extract spreadsheet ID: %w", op, err)
	}
	if sheetName == "" {
		sheetName = DefaultWorksheet
	}

	log.Debug().Str("spreadsheet_id", spreadsheetID).Str("sheet", sheetName).Msg("Extracted spreadsheet ID")

	creds, err := gcp.CredentialsJSON()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	config, err := google.JWTConfigFromJSON(creds, sheets.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to parse credentials: %w", op, err)
	}

	client := config.Client(ctx)
	sheetsService, err := sheets.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return nil, fmt.Errorf("%s: failed to create sheets service: %w", op, err)
	}

	return &Recorder{
		sheetsService: sheetsService,
		spreadsheetID: spreadsheetID,
		sheetName:     sheetName,
		log:           log,
	}, nil
}

// Worksheet returns the worksheet rows are written to.
func (r *Recorder) Worksheet() string {
	return r.sheetName
}

func extractSpreadsheetID(url string) (string, error) {
	matches := spreadsheetIDPattern.FindStringSubmatch(url)
	if len(matches) < 2 {
		return "", fmt.Errorf("invalid Google Sheets URL format")
	}
	return matches[1], nil
}

// columnRange returns the A1 range spanning every audit column.
func columnRange(sheetName string) string {
	last := rune('A' + len(headers) - 1)
	return fmt.Sprintf("%s!A:%c", sheetName, last)
}

// Record appends one row for rec.
func (r *Recorder) Record(ctx context.Context, rec idcard.AuditRecord) error {
	const op = "Record"

	if err := r.ensureSheetWithHeaders(ctx); err != nil {
		return fmt.Errorf("%s: failed to ensure sheet exists: %w", op, err)
	}

	valueRange := &sheets.ValueRange{
		Values: [][]interface{}{rowToValues(rec)},
	}

	_, err := r.sheetsService.Spreadsheets.Values.Append(
		r.spreadsheetID,
		columnRange(r.sheetName),
		valueRange,
	).ValueInputOption("USER_ENTERED").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("%s: failed to append values to sheet: %w", op, err)
	}

	r.log.Debug().Str("request_id", rec.RequestID).Msg("Audit row written")
	return nil
}

func rowToValues(rec idcard.AuditRecord) []interface{} {
	detected := "NO"
	if rec.CardDetected {
		detected = "YES"
	}
	return []interface{}{
		rec.RequestID,                       // A: Request ID
		rec.Time.Format(timeLayout),         // B: Time
		detected,                            // C: Card Detected
		rec.DetectionConfidence,             // D: Detection Confidence
		rec.AverageConfidence,               // E: Average Confidence
		strings.Join(rec.FieldsFound, ", "), // F: Fields Found
		rec.OCREngine,                       // G: OCR Engine
	}
}

// ensureSheetWithHeaders creates the worksheet and header row on first use.
func (r *Recorder) ensureSheetWithHeaders(ctx context.Context) error {
	const op = "ensureSheetWithHeaders"

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.headersReady {
		return nil
	}

	spreadsheet, err := r.sheetsService.Spreadsheets.Get(r.spreadsheetID).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("%s: failed to get spreadsheet: %w", op, err)
	}

	var sheetExists bool
	var sheetID int64
	for _, sheet := range spreadsheet.Sheets {
		if sheet.Properties.Title == r.sheetName {
			sheetExists = true
			sheetID = sheet.Properties.SheetId
			break
		}
	}

	if !sheetExists {
		r.log.Info().Str("sheet", r.sheetName).Msg("Creating new sheet")

		batchUpdateReq := &sheets.BatchUpdateSpreadsheetRequest{
			Requests: []*sheets.Request{
				{AddSheet: &sheets.AddSheetRequest{Properties: &sheets.SheetProperties{Title: r.sheetName}}},
			},
		}

		resp, err := r.sheetsService.Spreadsheets.BatchUpdate(r.spreadsheetID, batchUpdateReq).Context(ctx).Do()
		if err != nil {
			return fmt.Errorf("%s: failed to create sheet: %w", op, err)
		}
		sheetID = resp.Replies[0].AddSheet.Properties.SheetId
	}

	headerRange := fmt.Sprintf("%s!A1:%c1", r.sheetName, rune('A'+len(headers)-1))
	resp, err := r.sheetsService.Spreadsheets.Values.Get(r.spreadsheetID, headerRange).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("%s: failed to get headers: %w", op, err)
	}

	if len(resp.Values) == 0 || len(resp.Values[0]) == 0 {
		r.log.Info().Str("sheet", r.sheetName).Msg("Adding headers to sheet")

		valueRange := &sheets.ValueRange{Values: [][]interface{}{headers}}
		_, err = r.sheetsService.Spreadsheets.Values.Update(
			r.spreadsheetID,
			headerRange,
			valueRange,
		).ValueInputOption("RAW").Context(ctx).Do()
		if err != nil {
			return fmt.Errorf("%s: failed to add headers: %w", op, err)
		}

		if err := r.formatHeaders(ctx, sheetID); err != nil {
			r.log.Warn().Err(err).Msg("Failed to format headers, continuing anyway")
		}
	}

	r.headersReady = true
	return nil
}

// formatHeaders makes the header row bold and sizes the columns.
func (r *Recorder) formatHeaders(ctx context.Context, sheetID int64) error {
	const op = "formatHeaders"

	columns := int64(len(headers))
	requests := []*sheets.Request{
		{
			RepeatCell: &sheets.RepeatCellRequest{
				Range: &sheets.GridRange{
					SheetId:          sheetID,
					StartRowIndex:    0,
					EndRowIndex:      1,
					StartColumnIndex: 0,
					EndColumnIndex:   columns,
				},
				Cell: &sheets.CellData{
					UserEnteredFormat: &sheets.CellFormat{
						TextFormat:      &sheets.TextFormat{Bold: true},
						BackgroundColor: &sheets.Color{Red: 0.9, Green: 0.9, Blue: 0.9},
					},
				},
				Fields: "userEnteredFormat(textFormat,backgroundColor)",
			},
		},
		{
			AutoResizeDimensions: &sheets.AutoResizeDimensionsRequest{
				Dimensions: &sheets.DimensionRange{
					SheetId:    sheetID,
					Dimension:  "COLUMNS",
					StartIndex: 0,
					EndIndex:   columns,
				},
			},
		},
	}

	batchUpdateReq := &sheets.BatchUpdateSpreadsheetRequest{Requests: requests}
	if _, err := r.sheetsService.Spreadsheets.BatchUpdate(r.spreadsheetID, batchUpdateReq).Context(ctx).Do(); err != nil {
		return fmt.Errorf("%s: failed to format headers: %w", op, err)
	}
	return nil
}

// Recent returns up to limit of the newest audit rows, oldest first,
// without the header row.
func (r *Recorder) Recent(ctx context.Context, limit int) ([][]interface{}, error) {
	const op = "Recent"

	rangeSpec := columnRange(r.sheetName)
	r.log.Debug().Str("range", rangeSpec).Msg("Reading range from spreadsheet")

	resp, err := r.sheetsService.Spreadsheets.Values.Get(r.spreadsheetID, rangeSpec).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("%s: failed to read range %s: %w", op, rangeSpec, err)
	}
	return tail(resp.Values, limit), nil
}

func tail(rows [][]interface{}, limit int) [][]interface{} {
	if len(rows) > 0 && len(rows[0]) > 0 && rows[0][0] == headers[0] {
		rows = rows[1:]
	}
	if limit > 0 && len(rows) > limit {
		rows = rows[len(rows)-limit:]
	}
	return rows
}
