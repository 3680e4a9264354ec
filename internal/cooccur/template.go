package cooccur

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// ErrTemplateRow is returned for template rows with fewer than two columns.
var ErrTemplateRow = errors.New("malformed template row")

// TemplateOptions controls template parsing.
type TemplateOptions struct {
	// Header treats the first non-blank row as a header and passes it
	// through to the output.
	Header bool
}

// Template is the ordered grid of expected pairs.
type Template struct {
	Header []string
	Pairs  []Pair
}

// LoadTemplate reads (labelA, labelB, placeholder...) rows. Columns past the
// second are ignored; blank lines are skipped.
func LoadTemplate(r io.Reader, opts TemplateOptions) (*Template, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	t := &Template{}
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading template: %w", err)
		}
		if blank(rec) {
			continue
		}
		if opts.Header && t.Header == nil {
			t.Header = rec
			continue
		}
		if len(rec) < 2 {
			line, _ := cr.FieldPos(0)
			return nil, fmt.Errorf("%w: line %d has %d column(s)", ErrTemplateRow, line, len(rec))
		}
		t.Pairs = append(t.Pairs, Pair{A: strings.TrimSpace(rec[0]), B: strings.TrimSpace(rec[1])})
	}
	return t, nil
}

func blank(rec []string) bool {
	for _, f := range rec {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}

// Row is one rendered template row.
type Row struct {
	A     string `json:"a"`
	B     string `json:"b"`
	Count int    `json:"count"`
}

// Render fills every template pair with its count, or 0 when absent. Counted
// pairs missing from the template are dropped.
func Render(table Table, tmpl *Template) []Row {
	rows := make([]Row, len(tmpl.Pairs))
	for i, p := range tmpl.Pairs {
		rows[i] = Row{A: p.A, B: p.B, Count: table[p]}
	}
	return rows
}

// WriteCSV writes rows as labelA,labelB,count. A non-nil header is written
// first, padded or truncated to three columns.
func WriteCSV(w io.Writer, header []string, rows []Row) error {
	cw := csv.NewWriter(w)
	if header != nil {
		h := make([]string, 3)
		copy(h, header)
		if err := cw.Write(h); err != nil {
			return fmt.Errorf("writing header: %w", err)
		}
	}
	for _, r := range rows {
		if err := cw.Write([]string{r.A, r.B, strconv.Itoa(r.Count)}); err != nil {
			return fmt.Errorf("writing row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}
