package store

import (
	"errors"
	"fmt"
	"strings"
)

// MatchMode controls how filter terms combine.
type MatchMode string

const (
	// MatchAll (strict) returns records matching every term.
	MatchAll MatchMode = "all"
	// MatchAny (loose) returns records matching at least one term.
	MatchAny MatchMode = "any"
)

// SearchableFields are the Problems fields accepted by ParseFilter.
var SearchableFields = []string{
	"problem_title",
	"problem_statement",
	"sponsor_name",
	"sponsor_title",
	"sponsor_email",
	"sponsor_org",
	"program",
	"elements",
	"setting",
	"roles",
	"processes",
	"data",
	"employee_sourced_curated",
}

// ErrEmptyFilter is returned when a non-empty query produced no usable terms.
var ErrEmptyFilter = errors.New("no searchable terms in query")

// Term is a case-insensitive substring search for Value inside Field.
type Term struct {
	Field string `json:"field"`
	Value string `json:"value"`
}

// Filter selects records. The zero Filter matches everything.
type Filter struct {
	Terms []Term    `json:"terms,omitempty"`
	Mode  MatchMode `json:"mode,omitempty"`

	// Ignored lists query fields that were skipped as unsearchable.
	Ignored []string `json:"ignored,omitempty"`
}

// Match reports whether fields satisfy the filter.
func (f Filter) Match(fields Fields) bool {
	if len(f.Terms) == 0 {
		return true
	}
	loose := f.Mode == MatchAny
	for _, t := range f.Terms {
		hit := termMatches(t, fields)
		if loose && hit {
			return true
		}
		if !loose && !hit {
			return false
		}
	}
	return !loose
}

func termMatches(t Term, fields Fields) bool {
	needle := strings.ToLower(strings.TrimSpace(t.Value))
	haystack, ok := fields.String(t.Field)
	if !ok {
		return false
	}
	return strings.Contains(strings.ToLower(haystack), needle)
}

// ParseFilter parses the search syntax
//
//	<field_1>=<value_1>;<field_2>=<value_a>,<value_b>;...
//
// Input is lower-cased. A comma in a value produces one term per item.
// Unsearchable fields are skipped and listed in Filter.Ignored.
func ParseFilter(raw string, mode MatchMode) (Filter, error) {
	if mode == "" {
		mode = MatchAll
	}
	if mode != MatchAll && mode != MatchAny {
		return Filter{}, fmt.Errorf("invalid match mode %q", mode)
	}

	f := Filter{Mode: mode}
	raw = strings.ToLower(strings.TrimSpace(raw))
	if raw == "" {
		return f, nil
	}

	for _, param := range strings.Split(raw, ";") {
		param = strings.TrimSpace(param)
		if param == "" {
			continue
		}
		field, value, ok := strings.Cut(param, "=")
		if !ok {
			return Filter{}, fmt.Errorf("invalid search term %q: expected <field>=<value>", param)
		}
		field = strings.TrimSpace(field)
		if !isSearchable(field) {
			f.Ignored = append(f.Ignored, field)
			continue
		}
		for _, item := range strings.Split(value, ",") {
			item = strings.TrimSpace(item)
			if item == "" {
				continue
			}
			f.Terms = append(f.Terms, Term{Field: field, Value: item})
		}
	}

	if len(f.Terms) == 0 {
		return f, fmt.Errorf("%w: %q", ErrEmptyFilter, raw)
	}
	return f, nil
}

func isSearchable(field string) bool {
	for _, s := range SearchableFields {
		if s == field {
			return true
		}
	}
	return false
}
