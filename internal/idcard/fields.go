package idcard

// Field names one slot of the extracted card data.
type Field string

const (
	FieldIDNumber      Field = "id_number"
	FieldName          Field = "name"
	FieldPlaceOfBirth  Field = "place_of_birth"
	FieldDateOfBirth   Field = "date_of_birth"
	FieldGender        Field = "gender"
	FieldAddress       Field = "address"
	FieldReligion      Field = "religion"
	FieldMaritalStatus Field = "marital_status"
	FieldOccupation    Field = "occupation"
	FieldNationality   Field = "nationality"
	FieldValidUntil    Field = "valid_until"
)

// Fields lists every field in card layout order.
var Fields = []Field{
	FieldIDNumber,
	FieldName,
	FieldPlaceOfBirth,
	FieldDateOfBirth,
	FieldGender,
	FieldAddress,
	FieldReligion,
	FieldMaritalStatus,
	FieldOccupation,
	FieldNationality,
	FieldValidUntil,
}

// ExtractedData holds the parsed card fields. Fields not found on the card
// stay empty. RawText keeps every row no rule could place.
type ExtractedData struct {
	IDNumber      string   `json:"id_number"`
	Name          string   `json:"name"`
	PlaceOfBirth  string   `json:"place_of_birth"`
	DateOfBirth   string   `json:"date_of_birth"`
	Gender        string   `json:"gender"`
	Address       string   `json:"address"`
	Religion      string   `json:"religion"`
	MaritalStatus string   `json:"marital_status"`
	Occupation    string   `json:"occupation"`
	Nationality   string   `json:"nationality"`
	ValidUntil    string   `json:"valid_until"`
	RawText       []string `json:"raw_text"`
}

func (d *ExtractedData) slot(f Field) *string {
	switch f {
	case FieldIDNumber:
		return &d.IDNumber
	case FieldName:
		return &d.Name
	case FieldPlaceOfBirth:
		return &d.PlaceOfBirth
	case FieldDateOfBirth:
		return &d.DateOfBirth
	case FieldGender:
		return &d.Gender
	case FieldAddress:
		return &d.Address
	case FieldReligion:
		return &d.Religion
	case FieldMaritalStatus:
		return &d.MaritalStatus
	case FieldOccupation:
		return &d.Occupation
	case FieldNationality:
		return &d.Nationality
	case FieldValidUntil:
		return &d.ValidUntil
	default:
		return nil
	}
}

// Get returns the value of f.
func (d *ExtractedData) Get(f Field) string {
	if s := d.slot(f); s != nil {
		return *s
	}
	return ""
}

// Found returns the fields that received a value, in layout order.
func (d *ExtractedData) Found() []Field {
	var found []Field
	for _, f := range Fields {
		if d.Get(f) != "" {
			found = append(found, f)
		}
	}
	return found
}
