// Package ingest bulk-loads problem submissions into the record store.
// Each supported format (CSV, JSON, YAML, Markdown) has its own importer
// implementing Importer; the engine picks one by file extension.
package ingest

import (
	"context"

	"github.com/hurttlocker/problemsift/internal/problem"
	"github.com/hurttlocker/problemsift/internal/store"
)

// RawRecord is one parsed submission ready for storage.
type RawRecord struct {
	Fields        store.Fields // Field values as decoded; normalized by the engine
	SourceFile    string       // Absolute path to source file
	SourceLine    int          // Starting line number (1-indexed)
	SourceSection string       // Row, index or document label
}

// Importer handles a specific file format.
type Importer interface {
	// CanHandle returns true if this importer supports the given file path.
	CanHandle(path string) bool

	// Import parses the file and returns one RawRecord per submission.
	Import(ctx context.Context, path string) ([]RawRecord, error)
}

// ImportResult summarizes an import operation.
type ImportResult struct {
	FilesScanned   int
	FilesImported  int
	FilesSkipped   int
	RecordsNew     int
	RecordsSkipped int
	IDs            []int64
	Errors         []ImportError
}

// Add merges another ImportResult into this one.
func (r *ImportResult) Add(other *ImportResult) {
	r.FilesScanned += other.FilesScanned
	r.FilesImported += other.FilesImported
	r.FilesSkipped += other.FilesSkipped
	r.RecordsNew += other.RecordsNew
	r.RecordsSkipped += other.RecordsSkipped
	r.IDs = append(r.IDs, other.IDs...)
	r.Errors = append(r.Errors, other.Errors...)
}

// ImportError records a non-fatal error during import.
type ImportError struct {
	File    string
	Line    int
	Message string
}

// ImportOptions configures an import operation.
type ImportOptions struct {
	Recursive   bool
	DryRun      bool
	MaxFileSize int64  // bytes, default 10MB
	Table       string // target table, default store.TableProblems
	// ListFields are split on "," when given as a single string. Defaults to
	// the categorical problem fields.
	ListFields []string
	ProgressFn func(current, total int, file string)
}

// DefaultMaxFileSize is 10MB.
const DefaultMaxFileSize = 10 * 1024 * 1024

// Normalize fills in defaults.
func (o *ImportOptions) Normalize() {
	if o.MaxFileSize <= 0 {
		o.MaxFileSize = DefaultMaxFileSize
	}
	if o.Table == "" {
		o.Table = store.TableProblems
	}
	if o.ListFields == nil {
		for _, f := range problem.Fields {
			o.ListFields = append(o.ListFields, string(f))
		}
	}
}
