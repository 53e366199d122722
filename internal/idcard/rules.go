package idcard

import (
	"regexp"
	"strings"
)

type label struct {
	field Field
	// display is prepended to the value when the label contributes to a
	// field assembled from several rows.
	display string
	append  bool
}

// labels maps normalized card labels to fields.
var labels = map[string]label{
	"nik":                  {field: FieldIDNumber},
	"nama":                 {field: FieldName},
	"name":                 {field: FieldName},
	"tempat/tgl lahir":     {field: FieldPlaceOfBirth},
	"tempat/tanggal lahir": {field: FieldPlaceOfBirth},
	"tempat lahir":         {field: FieldPlaceOfBirth},
	"tgl lahir":            {field: FieldDateOfBirth},
	"tanggal lahir":        {field: FieldDateOfBirth},
	"jenis kelamin":        {field: FieldGender},
	"gender":               {field: FieldGender},
	"alamat":               {field: FieldAddress, append: true},
	"address":              {field: FieldAddress, append: true},
	"rt/rw":                {field: FieldAddress, display: "RT/RW", append: true},
	"kel/desa":             {field: FieldAddress, display: "Kel/Desa", append: true},
	"kecamatan":            {field: FieldAddress, display: "Kecamatan", append: true},
	"agama":                {field: FieldReligion},
	"religion":             {field: FieldReligion},
	"status perkawinan":    {field: FieldMaritalStatus},
	"pekerjaan":            {field: FieldOccupation},
	"occupation":           {field: FieldOccupation},
	"kewarganegaraan":      {field: FieldNationality},
	"nationality":          {field: FieldNationality},
	"berlaku hingga":       {field: FieldValidUntil},
}

const maxLabelWords = 4

var (
	slashSpaces  = regexp.MustCompile(`\s*/\s*`)
	idNumberExpr = regexp.MustCompile(`\b\d{16}\b`)
	dateExpr     = regexp.MustCompile(`\b(\d{1,2})[-/.](\d{1,2})[-/.](\d{4})\b`)
	genderExpr   = regexp.MustCompile(`(?i)\b(laki-laki|laki laki|perempuan|female|male)\b`)
	religionExpr = regexp.MustCompile(`(?i)\b(islam|kristen|katolik|katholik|hindu|budha|buddha|konghucu)\b`)
	maritalExpr  = regexp.MustCompile(`(?i)\b(belum kawin|cerai hidup|cerai mati|kawin)\b`)
	nationExpr   = regexp.MustCompile(`(?i)\b(wni|wna)\b`)
	lifetimeExpr = regexp.MustCompile(`(?i)\bseumur hidup\b`)
	addressExpr  = regexp.MustCompile(`(?i)\b(jl|jln|jalan|rt|rw|kel|kec)\b`)
	nameExpr     = regexp.MustCompile(`^[A-Za-z][A-Za-z .,'-]*$`)
	bloodExpr    = regexp.MustCompile(`(?i)\bgol\b`)
)

// DefaultRules returns the rules in evaluation order. Labeled rows come
// first so a row carrying its own label is never claimed by a value
// heuristic, and fixed patterns win over a label waiting for its value.
func DefaultRules() []Rule {
	return []Rule{
		{Name: "labeled-value", Apply: labeledValue},
		{Name: "id-number", Apply: idNumber},
		{Name: "birth-date", Apply: birthDate},
		{Name: "gender", Apply: keyword(FieldGender, genderExpr)},
		{Name: "religion", Apply: keyword(FieldReligion, religionExpr)},
		{Name: "marital-status", Apply: keyword(FieldMaritalStatus, maritalExpr)},
		{Name: "nationality", Apply: keyword(FieldNationality, nationExpr)},
		{Name: "valid-until", Apply: keyword(FieldValidUntil, lifetimeExpr)},
		{Name: "pending-value", Apply: pendingValue},
		{Name: "address", Apply: addressLine},
		{Name: "name-after-id", Apply: nameAfterID},
	}
}

// NormalizeLabel lowercases s, treats dots as spaces and collapses
// whitespace, so "Tempat / Tgl.Lahir" and "tempat/tgl lahir" compare equal.
func NormalizeLabel(s string) string {
	s = strings.ToLower(strings.ReplaceAll(s, ".", " "))
	s = slashSpaces.ReplaceAllString(s, "/")
	return strings.Join(strings.Fields(s), " ")
}

func lookupLabel(s string) (label, bool) {
	l, ok := labels[NormalizeLabel(s)]
	return l, ok
}

// splitLabel finds a label at the start of text, either before a colon or
// as its leading words, and returns the value after it.
func splitLabel(text string) (label, string, bool) {
	if head, value, found := strings.Cut(text, ":"); found {
		if l, ok := lookupLabel(head); ok {
			return l, strings.TrimSpace(value), true
		}
	}

	words := strings.Fields(text)
	for n := min(maxLabelWords, len(words)); n > 0; n-- {
		if l, ok := lookupLabel(strings.Join(words[:n], " ")); ok {
			value := strings.Join(words[n:], " ")
			return l, strings.TrimSpace(strings.TrimPrefix(value, ":")), true
		}
	}
	return label{}, "", false
}

func labeledValue(st *State, text string) (Match, bool) {
	l, value, ok := splitLabel(text)
	if !ok {
		return Match{}, false
	}
	if value == "" {
		return Match{Pending: l.field}, true
	}
	if l.display != "" {
		value = l.display + " " + value
	}
	values := valuesFor(l.field, value)
	for i := range values {
		if values[i].Field == l.field {
			values[i].Append = l.append
		}
	}
	return Match{Values: values}, true
}

// valuesFor cleans a raw value for f. Place of birth may carry the date
// of birth with it.
func valuesFor(f Field, value string) []FieldValue {
	value = strings.TrimSpace(value)
	switch f {
	case FieldIDNumber:
		if m := idNumberExpr.FindString(value); m != "" {
			value = m
		}
	case FieldPlaceOfBirth:
		if loc := dateExpr.FindStringIndex(value); loc != nil {
			return []FieldValue{
				{Field: FieldPlaceOfBirth, Value: trimPlace(value[:loc[0]])},
				{Field: FieldDateOfBirth, Value: value[loc[0]:loc[1]]},
			}
		}
	case FieldDateOfBirth:
		if m := dateExpr.FindString(value); m != "" {
			value = m
		}
	case FieldGender:
		if loc := bloodExpr.FindStringIndex(value); loc != nil {
			value = strings.TrimSpace(value[:loc[0]])
		}
	}
	if value == "" {
		return nil
	}
	return []FieldValue{{Field: f, Value: value}}
}

func trimPlace(s string) string {
	return strings.TrimSpace(strings.TrimRight(strings.TrimSpace(s), ",;"))
}

func idNumber(st *State, text string) (Match, bool) {
	m := idNumberExpr.FindString(text)
	if m == "" || st.Has(FieldIDNumber) {
		return Match{}, false
	}
	return Match{Values: []FieldValue{{Field: FieldIDNumber, Value: m}}}, true
}

func pendingValue(st *State, text string) (Match, bool) {
	f, ok := st.NextPending()
	if !ok {
		return Match{}, false
	}
	values := valuesFor(f, text)
	if len(values) == 0 {
		return Match{}, false
	}
	if f == FieldAddress {
		values[0].Append = true
	}
	return Match{Values: values}, true
}

func birthDate(st *State, text string) (Match, bool) {
	loc := dateExpr.FindStringIndex(text)
	if loc == nil || st.Has(FieldDateOfBirth) {
		return Match{}, false
	}
	values := []FieldValue{{Field: FieldDateOfBirth, Value: text[loc[0]:loc[1]]}}
	if place := trimPlace(text[:loc[0]]); place != "" {
		values = append(values, FieldValue{Field: FieldPlaceOfBirth, Value: place})
	}
	return Match{Values: values}, true
}

func keyword(f Field, expr *regexp.Regexp) func(*State, string) (Match, bool) {
	return func(st *State, text string) (Match, bool) {
		if st.Has(f) {
			return Match{}, false
		}
		m := expr.FindString(text)
		if m == "" {
			return Match{}, false
		}
		return Match{Values: []FieldValue{{Field: f, Value: strings.ToUpper(m)}}}, true
	}
}

func addressLine(st *State, text string) (Match, bool) {
	if !addressExpr.MatchString(text) {
		return Match{}, false
	}
	return Match{Values: []FieldValue{{Field: FieldAddress, Value: text, Append: true}}}, true
}

func nameAfterID(st *State, text string) (Match, bool) {
	if st.LastField() != FieldIDNumber || st.Has(FieldName) || !nameExpr.MatchString(text) {
		return Match{}, false
	}
	return Match{Values: []FieldValue{{Field: FieldName, Value: text}}}, true
}
