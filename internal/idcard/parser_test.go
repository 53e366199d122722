package idcard

import (
	"fmt"
	"reflect"
	"testing"

	"aiservices/internal/model"
)

// line places text at (x, y) with a 20px tall, 100px wide quad.
func line(text string, x, y, conf float64) model.OCRLine {
	return model.OCRLine{
		Text:       text,
		Confidence: conf,
		Quad: [4]model.Point{
			{X: x, Y: y},
			{X: x + 100, Y: y},
			{X: x + 100, Y: y + 20},
			{X: x, Y: y + 20},
		},
	}
}

func rows(texts ...string) []model.OCRLine {
	lines := make([]model.OCRLine, len(texts))
	for i, t := range texts {
		lines[i] = line(t, 0, float64(i*40), 0.9)
	}
	return lines
}

func TestGroupRows(t *testing.T) {
	lines := []model.OCRLine{
		line("BUDI", 120, 42, 0.9),
		line("Nama", 0, 40, 0.9),
		line("3171012345678901", 0, 0, 0.9),
		line(":", 60, 38, 0.9),
	}

	got := GroupRows(lines)
	var texts []string
	for _, r := range got {
		texts = append(texts, r.Text)
	}

	want := []string{"3171012345678901", "Nama : BUDI"}
	if !reflect.DeepEqual(texts, want) {
		t.Errorf("GroupRows() = %q, want %q", texts, want)
	}
}

func TestParseLabeledCard(t *testing.T) {
	p := NewParser()
	got := p.Parse(rows(
		"PROVINSI DKI JAKARTA",
		"NIK : 3171012345678901",
		"Nama : BUDI SANTOSO",
		"Tempat/Tgl Lahir : JAKARTA, 17-08-1990",
		"Jenis Kelamin : LAKI-LAKI Gol. Darah : O",
		"Alamat : JL. MERDEKA NO. 10",
		"RT/RW : 001/002",
		"Kel/Desa : MENTENG",
		"Kecamatan : MENTENG",
		"Agama : ISLAM",
		"Status Perkawinan : KAWIN",
		"Pekerjaan : KARYAWAN SWASTA",
		"Kewarganegaraan : WNI",
		"Berlaku Hingga : SEUMUR HIDUP",
	)).Data

	want := ExtractedData{
		IDNumber:      "3171012345678901",
		Name:          "BUDI SANTOSO",
		PlaceOfBirth:  "JAKARTA",
		DateOfBirth:   "17-08-1990",
		Gender:        "LAKI-LAKI",
		Address:       "JL. MERDEKA NO. 10 RT/RW 001/002 Kel/Desa MENTENG Kecamatan MENTENG",
		Religion:      "ISLAM",
		MaritalStatus: "KAWIN",
		Occupation:    "KARYAWAN SWASTA",
		Nationality:   "WNI",
		ValidUntil:    "SEUMUR HIDUP",
		RawText:       []string{"PROVINSI DKI JAKARTA"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Parse() =\n%+v\nwant\n%+v", got, want)
	}
}

func TestParseUnlabeledValues(t *testing.T) {
	got := NewParser().Parse(rows(
		"3171012345678901",
		"BUDI SANTOSO",
		"JAKARTA, 17-08-1990",
		"PEREMPUAN",
		"JL. MAWAR 5",
		"KRISTEN",
		"BELUM KAWIN",
		"WNI",
		"SEUMUR HIDUP",
	)).Data

	checks := map[Field]string{
		FieldIDNumber:      "3171012345678901",
		FieldName:          "BUDI SANTOSO",
		FieldPlaceOfBirth:  "JAKARTA",
		FieldDateOfBirth:   "17-08-1990",
		FieldGender:        "PEREMPUAN",
		FieldAddress:       "JL. MAWAR 5",
		FieldReligion:      "KRISTEN",
		FieldMaritalStatus: "BELUM KAWIN",
		FieldNationality:   "WNI",
		FieldValidUntil:    "SEUMUR HIDUP",
	}
	for f, want := range checks {
		if v := got.Get(f); v != want {
			t.Errorf("%s = %q, want %q", f, v, want)
		}
	}
	if len(got.RawText) != 0 {
		t.Errorf("RawText = %q, want empty", got.RawText)
	}
}

func TestParseRuleOrder(t *testing.T) {
	tests := []struct {
		name  string
		lines []model.OCRLine
		field Field
		want  string
		raw   []string
	}{
		{
			name:  "label beats keyword",
			lines: rows("Alamat : JL. KAWIN RAYA"),
			field: FieldAddress,
			want:  "JL. KAWIN RAYA",
		},
		{
			name:  "bare label takes next row",
			lines: rows("Nama", "SITI AMINAH"),
			field: FieldName,
			want:  "SITI AMINAH",
		},
		{
			name:  "pending labels resolve in order",
			lines: rows("Agama", "Pekerjaan", "ISLAM", "PETANI"),
			field: FieldOccupation,
			want:  "PETANI",
		},
		{
			name: "label without value expires",
			lines: rows(
				"NIK : 3171012345678901",
				"Nama",
				"Tempat/Tgl Lahir : BANDUNG, 01-02-1985",
				"Jenis Kelamin : PEREMPUAN",
				"Agama : ISLAM",
				"Kewarganegaraan : WNI",
				"JAKARTA PUSAT",
			),
			field: FieldName,
			want:  "",
			raw:   []string{"JAKARTA PUSAT"},
		},
		{
			name:  "date beats waiting label",
			lines: rows("Pekerjaan", "17-08-1990"),
			field: FieldDateOfBirth,
			want:  "17-08-1990",
		},
		{
			name:  "waiting label not filled by date",
			lines: rows("Pekerjaan", "17-08-1990"),
			field: FieldOccupation,
			want:  "",
		},
		{
			name:  "keyword resolves its own waiting label",
			lines: rows("Agama", "Pekerjaan", "ISLAM", "PETANI"),
			field: FieldReligion,
			want:  "ISLAM",
		},
		{
			name:  "first value wins",
			lines: rows("3171012345678901", "3171012345678999"),
			field: FieldIDNumber,
			want:  "3171012345678901",
			raw:   []string{"3171012345678999"},
		},
		{
			name:  "name only directly after id",
			lines: rows("3171012345678901", "GOL. DARAH: O", "BUDI"),
			field: FieldName,
			want:  "",
			raw:   []string{"GOL. DARAH: O", "BUDI"},
		},
		{
			name:  "female is not male",
			lines: rows("FEMALE"),
			field: FieldGender,
			want:  "FEMALE",
		},
		{
			name:  "label spelled with dots",
			lines: rows("Tempat/Tgl.Lahir: BANDUNG 01.02.1985"),
			field: FieldDateOfBirth,
			want:  "01.02.1985",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NewParser().Parse(tt.lines).Data
			if v := got.Get(tt.field); v != tt.want {
				t.Errorf("%s = %q, want %q", tt.field, v, tt.want)
			}
			if tt.raw != nil && !reflect.DeepEqual(got.RawText, tt.raw) {
				t.Errorf("RawText = %q, want %q", got.RawText, tt.raw)
			}
		})
	}
}

func TestParseConfidence(t *testing.T) {
	lines := []model.OCRLine{
		line("NIK", 0, 0, 0.9),
		line("3171012345678901", 120, 0, 0.8),
		line("Nama : ANI", 0, 40, 0.7),
		line("PROVINSI", 0, 80, 0.5),
	}

	got := NewParser().Parse(lines)

	if c := got.FieldConfidence[FieldIDNumber]; c != 0.85 {
		t.Errorf("id_number confidence = %v, want 0.85", c)
	}
	if c := got.FieldConfidence[FieldName]; c != 0.7 {
		t.Errorf("name confidence = %v, want 0.7", c)
	}
	if _, ok := got.FieldConfidence[FieldGender]; ok {
		t.Error("confidence reported for a field that was not found")
	}
	if want := []float64{0.9, 0.8, 0.7, 0.5}; !reflect.DeepEqual(got.Scores, want) {
		t.Errorf("Scores = %v, want %v", got.Scores, want)
	}
	if got.Average != 0.725 {
		t.Errorf("Average = %v, want 0.725", got.Average)
	}
}

func TestParseEmpty(t *testing.T) {
	got := NewParser().Parse(nil)
	if got.Data.RawText == nil || got.Scores == nil {
		t.Error("empty parse returned nil slices")
	}
	if got.Average != 0 || len(got.Data.Found()) != 0 {
		t.Errorf("Parse(nil) = %+v", got)
	}
}

func TestNormalizeLabel(t *testing.T) {
	tests := map[string]string{
		"Tempat / Tgl.Lahir": "tempat/tgl lahir",
		"  JENIS   KELAMIN ": "jenis kelamin",
		"RT/RW":              "rt/rw",
	}
	for in, want := range tests {
		if got := NormalizeLabel(in); got != want {
			t.Errorf("NormalizeLabel(%q) = %q, want %q", in, got, want)
		}
	}
}

func ExampleParser_Parse() {
	lines := []model.OCRLine{
		line("NIK", 0, 0, 0.95),
		line(": 3171012345678901", 120, 2, 0.95),
		line("Nama : BUDI SANTOSO", 0, 40, 0.9),
		line("Agama : ISLAM", 0, 80, 0.9),
	}

	parsed := NewParser().Parse(lines)
	for _, f := range parsed.Data.Found() {
		fmt.Printf("%s: %s\n", f, parsed.Data.Get(f))
	}
	// Output:
	// id_number: 3171012345678901
	// name: BUDI SANTOSO
	// religion: ISLAM
}
