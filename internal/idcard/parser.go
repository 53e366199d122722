package idcard

import (
	"slices"
	"sort"
	"strings"

	"aiservices/internal/model"
)

// FieldValue assigns Value to Field. Append joins it to an existing value
// instead of being ignored when the field is already set.
type FieldValue struct {
	Field  Field
	Value  string
	Append bool
}

// Match is what a rule produced for one row: values to assign and, for a
// bare label, the field whose value is expected on a following row.
type Match struct {
	Values  []FieldValue
	Pending Field
}

// Rule classifies one row of text. It returns false when it does not apply.
type Rule struct {
	Name  string
	Apply func(st *State, text string) (Match, bool)
}

// State is the parser state visible to rules while walking the rows.
type State struct {
	data      ExtractedData
	pending   []Field
	lastField Field
}

// Has reports whether f already holds a value.
func (st *State) Has(f Field) bool {
	return st.data.Get(f) != ""
}

// NextPending returns the oldest label still waiting for a value.
func (st *State) NextPending() (Field, bool) {
	if len(st.pending) == 0 {
		return "", false
	}
	return st.pending[0], true
}

// LastField returns the field assigned by the previous row, if any.
func (st *State) LastField() Field {
	return st.lastField
}

func (st *State) dropPending(f Field) {
	kept := st.pending[:0]
	for _, p := range st.pending {
		if p != f {
			kept = append(kept, p)
		}
	}
	st.pending = kept
}

// Row is a set of OCR lines sharing a baseline, left to right.
type Row struct {
	Text  string
	Lines []model.OCRLine
}

// Parsed is the parser output.
type Parsed struct {
	Data            ExtractedData
	FieldConfidence map[Field]float64
	Scores          []float64
	Average         float64
}

// Parser applies an ordered rule list to the rows of a card.
type Parser struct {
	rules []Rule
}

// NewParser returns a parser with rules. With no rules it uses DefaultRules.
func NewParser(rules ...Rule) *Parser {
	if len(rules) == 0 {
		rules = DefaultRules()
	}
	return &Parser{rules: rules}
}

// Rules returns the rule names in evaluation order.
func (p *Parser) Rules() []string {
	names := make([]string, len(p.rules))
	for i, r := range p.rules {
		names[i] = r.Name
	}
	return names
}

// Parse assigns the lines to fields. The first rule that matches a row
// wins; rows no rule matches are kept in RawText. Bare labels wait for
// the rows that follow them and are dropped at the first row that neither
// resolves one of them nor is a bare label itself.
func (p *Parser) Parse(lines []model.OCRLine) Parsed {
	st := &State{}
	sources := make(map[Field][]float64)

	rows := GroupRows(lines)
	var scores []float64
	for _, row := range rows {
		for _, l := range row.Lines {
			scores = append(scores, model.Round4(l.Confidence))
		}
	}

	for _, row := range rows {
		text := strings.TrimSpace(row.Text)
		if text == "" {
			continue
		}

		waiting := slices.Clone(st.pending)
		match, ok := p.apply(st, text)
		if !ok {
			st.data.RawText = append(st.data.RawText, text)
			st.lastField = ""
			st.pending = nil
			continue
		}

		var assigned Field
		resolved := false
		for _, v := range match.Values {
			if st.assign(v) {
				assigned = v.Field
				resolved = resolved || slices.Contains(waiting, v.Field)
				for _, l := range row.Lines {
					sources[v.Field] = append(sources[v.Field], l.Confidence)
				}
			}
		}
		switch {
		case match.Pending != "":
			if !st.Has(match.Pending) {
				st.pending = append(st.pending, match.Pending)
			}
		case !resolved:
			// a label only reaches the rows directly below it
			st.pending = nil
		}
		st.lastField = assigned
	}

	parsed := Parsed{
		Data:            st.data,
		FieldConfidence: make(map[Field]float64, len(sources)),
		Scores:          scores,
	}
	if parsed.Data.RawText == nil {
		parsed.Data.RawText = []string{}
	}
	if parsed.Scores == nil {
		parsed.Scores = []float64{}
	}
	for f, confs := range sources {
		parsed.FieldConfidence[f] = model.Round4(mean(confs))
	}

	var all []float64
	for _, l := range lines {
		all = append(all, l.Confidence)
	}
	parsed.Average = model.Round4(mean(all))
	return parsed
}

func (p *Parser) apply(st *State, text string) (Match, bool) {
	for _, r := range p.rules {
		if m, ok := r.Apply(st, text); ok {
			return m, true
		}
	}
	return Match{}, false
}

// assign stores v and reports whether the state changed.
func (st *State) assign(v FieldValue) bool {
	value := strings.TrimSpace(v.Value)
	slot := st.data.slot(v.Field)
	if slot == nil || value == "" {
		return false
	}

	switch {
	case *slot == "":
		*slot = value
	case v.Append:
		*slot += " " + value
	default:
		return false
	}
	st.dropPending(v.Field)
	return true
}

// GroupRows orders lines top to bottom and merges lines whose centers lie
// within half a line height of each other into one row, left to right.
func GroupRows(lines []model.OCRLine) []Row {
	sorted := make([]model.OCRLine, len(lines))
	copy(sorted, lines)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Center().Y < sorted[j].Center().Y
	})

	var rows []Row
	var current []model.OCRLine
	var anchorY, tolerance float64

	flush := func() {
		if len(current) == 0 {
			return
		}
		sort.SliceStable(current, func(i, j int) bool {
			return current[i].Center().X < current[j].Center().X
		})
		texts := make([]string, 0, len(current))
		for _, l := range current {
			if t := strings.TrimSpace(l.Text); t != "" {
				texts = append(texts, t)
			}
		}
		rows = append(rows, Row{Text: strings.Join(texts, " "), Lines: current})
		current = nil
	}

	for _, l := range sorted {
		c := l.Center()
		if len(current) > 0 && c.Y-anchorY <= tolerance {
			current = append(current, l)
			continue
		}
		flush()
		current = []model.OCRLine{l}
		anchorY = c.Y
		tolerance = l.Height() / 2
	}
	flush()
	return rows
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
