package sheets

import (
	"reflect"
	"testing"
	"time"

	"aiservices/internal/idcard"
)

func TestExtractSpreadsheetID(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		want    string
		wantErr bool
	}{
		{
			name: "edit url",
			url:  "https://docs.google.com/spreadsheets/d/1AbC-d_9xyz/edit#gid=0",
			want: "1AbC-d_9xyz",
		},
		{
			name: "bare url",
			url:  "https://docs.google.com/spreadsheets/d/abc123",
			want: "abc123",
		},
		{
			name:    "not a sheet",
			url:     "https://example.com/doc/abc",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := extractSpreadsheetID(tt.url)
			if (err != nil) != tt.wantErr {
				t.Fatalf("extractSpreadsheetID() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("extractSpreadsheetID() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRowToValues(t *testing.T) {
	rec := idcard.AuditRecord{
		RequestID:           "req-1",
		Time:                time.Date(2025, 3, 4, 5, 6, 7, 0, time.UTC),
		CardDetected:        true,
		DetectionConfidence: 0.91,
		AverageConfidence:   0.87,
		FieldsFound:         []string{"id_number", "name"},
		OCREngine:           "google-vision",
	}

	got := rowToValues(rec)
	want := []interface{}{"req-1", "04.03.2025 05:06:07", "YES", 0.91, 0.87, "id_number, name", "google-vision"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("rowToValues() = %v, want %v", got, want)
	}
	if len(got) != len(headers) {
		t.Errorf("row has %d columns, headers %d", len(got), len(headers))
	}

	if row := rowToValues(idcard.AuditRecord{}); row[2] != "NO" || row[5] != "" {
		t.Errorf("empty record row = %v", row)
	}
}

func TestColumnRange(t *testing.T) {
	if got := columnRange("Audit"); got != "Audit!A:G" {
		t.Errorf("columnRange() = %q, want Audit!A:G", got)
	}
}

func TestTail(t *testing.T) {
	rows := [][]interface{}{
		headers,
		{"a"}, {"b"}, {"c"},
	}

	if got := tail(rows, 2); !reflect.DeepEqual(got, [][]interface{}{{"b"}, {"c"}}) {
		t.Errorf("tail(2) = %v", got)
	}
	if got := tail(rows, 0); len(got) != 3 {
		t.Errorf("tail(0) = %v, want all data rows", got)
	}
	if got := tail(nil, 5); len(got) != 0 {
		t.Errorf("tail(nil) = %v", got)
	}
}
