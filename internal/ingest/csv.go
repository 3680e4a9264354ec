package ingest

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hurttlocker/problemsift/internal/store"
)

// CSVImporter handles .csv and .tsv files.
type CSVImporter struct{}

// CanHandle returns true for CSV/TSV file extensions.
func (c *CSVImporter) CanHandle(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".csv" || ext == ".tsv"
}

// Import parses a CSV file into submissions.
// First row is treated as headers (become field names).
// Each subsequent non-empty row becomes one record.
func (c *CSVImporter) Import(ctx context.Context, path string) ([]RawRecord, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	reader := csv.NewReader(f)

	// Auto-detect TSV
	if strings.ToLower(filepath.Ext(path)) == ".tsv" {
		reader.Comma = '\t'
	}

	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parsing CSV %s: %w", path, err)
	}

	if len(records) < 2 {
		// Need at least headers + one row
		return nil, nil
	}

	headers := records[0]
	var out []RawRecord

	for i, row := range records[1:] {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		fields := make(store.Fields)
		for j, val := range row {
			if j < len(headers) && strings.TrimSpace(val) != "" {
				key := strings.TrimSpace(headers[j])
				if key == "" {
					continue
				}
				fields[key] = strings.TrimSpace(val)
			}
		}

		if len(fields) == 0 {
			continue
		}

		out = append(out, RawRecord{
			Fields:        fields,
			SourceFile:    absPath,
			SourceLine:    i + 2, // 1-indexed, skip header row
			SourceSection: fmt.Sprintf("row-%d", i+1),
		})
	}

	return out, nil
}
