// Package problem is the read-only view of Problems records used by the
// analysis pipeline: categorical label fields for clustering and display
// fields for reports.
package problem

import (
	"errors"
	"fmt"
	"strings"

	"github.com/hurttlocker/problemsift/internal/store"
)

// Field is a multi-valued categorical field usable as clustering features.
type Field string

const (
	FieldElements  Field = "elements"
	FieldProcesses Field = "processes"
	FieldData      Field = "data"
	FieldProgram   Field = "program"
	FieldRoles     Field = "roles"
)

// Fields lists every categorical field in canonical order.
var Fields = []Field{FieldElements, FieldProcesses, FieldData, FieldProgram, FieldRoles}

// Unknown is the display value used for absent fields.
const Unknown = "unknown"

// ErrUnknownField is returned for names outside Fields.
var ErrUnknownField = errors.New("unknown categorical field")

// flagFields maps the single-letter selection flags to fields.
var flagFields = map[rune]Field{
	'e': FieldElements,
	'p': FieldProcesses,
	'd': FieldData,
	'g': FieldProgram,
	'r': FieldRoles,
}

// ParseField validates a categorical field name.
func ParseField(name string) (Field, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, f := range Fields {
		if string(f) == name {
			return f, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownField, name)
}

// ParseFieldSelection accepts either letter flags ("epd") or a comma separated
// list of names ("elements,data"). Duplicates are dropped; order follows
// first mention.
func ParseFieldSelection(raw string) ([]Field, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}

	var out []Field
	seen := make(map[Field]bool)
	add := func(f Field) {
		if !seen[f] {
			seen[f] = true
			out = append(out, f)
		}
	}

	if !strings.Contains(raw, ",") && len(raw) <= len(flagFields) && isFlagString(raw) {
		for _, r := range strings.ToLower(raw) {
			add(flagFields[r])
		}
		return out, nil
	}

	for _, name := range strings.Split(raw, ",") {
		if strings.TrimSpace(name) == "" {
			continue
		}
		f, err := ParseField(name)
		if err != nil {
			return nil, err
		}
		add(f)
	}
	return out, nil
}

func isFlagString(raw string) bool {
	for _, r := range strings.ToLower(raw) {
		if _, ok := flagFields[r]; !ok {
			return false
		}
	}
	return true
}

// Problem is one submission: its store id plus raw fields.
type Problem struct {
	ID     int64
	Fields store.Fields
}

// FromRecords converts store records, preserving order.
func FromRecords(records []*store.Record) []Problem {
	out := make([]Problem, 0, len(records))
	for _, r := range records {
		if r == nil {
			continue
		}
		out = append(out, Problem{ID: r.ID, Fields: r.Fields})
	}
	return out
}

// Labels returns the field's labels; a missing field yields none.
func (p Problem) Labels(f Field) []string {
	return p.Fields.Strings(string(f))
}

// Display holds the human-readable summary of a problem.
type Display struct {
	ProblemID    int64  `json:"problem_id"`
	Title        string `json:"title"`
	Statement    string `json:"statement"`
	Program      string `json:"program"`
	SponsorOrg   string `json:"sponsor_org"`
	SponsorName  string `json:"sponsor_name"`
	SponsorTitle string `json:"sponsor_title"`
}

// Display resolves display fields, substituting Unknown for absent ones.
func (p Problem) Display() Display {
	return Display{
		ProblemID:    p.ID,
		Title:        p.text("problem_title"),
		Statement:    p.text("problem_statement"),
		Program:      p.text("program"),
		SponsorOrg:   p.text("sponsor_org"),
		SponsorName:  p.text("sponsor_name"),
		SponsorTitle: p.text("sponsor_title"),
	}
}

func (p Problem) text(name string) string {
	v, ok := p.Fields.String(name)
	if !ok || strings.TrimSpace(v) == "" {
		return Unknown
	}
	return v
}

// Index maps problem ids to problems.
type Index map[int64]Problem

// NewIndex builds an Index from problems.
func NewIndex(problems []Problem) Index {
	idx := make(Index, len(problems))
	for _, p := range problems {
		idx[p.ID] = p
	}
	return idx
}

// IDs returns problem ids in slice order.
func IDs(problems []Problem) []int64 {
	ids := make([]int64, len(problems))
	for i, p := range problems {
		ids[i] = p.ID
	}
	return ids
}
