package ingest

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/hurttlocker/problemsift/internal/logging"
	"github.com/hurttlocker/problemsift/internal/store"
)

// Engine dispatches files to importers and writes records to the store.
type Engine struct {
	store     store.Store
	importers []Importer
	logger    *zap.Logger
}

// NewEngine creates an engine with every built-in importer.
func NewEngine(s store.Store, logger *zap.Logger) *Engine {
	return &Engine{
		store: s,
		importers: []Importer{
			&CSVImporter{},
			&JSONImporter{},
			&YAMLImporter{},
			&MarkdownImporter{},
		},
		logger: logging.OrNop(logger),
	}
}

// ImportFile imports a file, or every supported file in a directory.
// Directories are walked recursively only when opts.Recursive is set.
func (e *Engine) ImportFile(ctx context.Context, path string, opts ImportOptions) (*ImportResult, error) {
	opts.Normalize()

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}

	var files []string
	if info.IsDir() {
		files, err = e.collectFiles(path, opts.Recursive)
		if err != nil {
			return nil, err
		}
	} else {
		files = []string{path}
	}

	result := &ImportResult{}
	for i, file := range files {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if opts.ProgressFn != nil {
			opts.ProgressFn(i+1, len(files), file)
		}
		result.Add(e.importOne(ctx, file, opts))
	}
	return result, nil
}

// collectFiles lists supported files under root, skipping hidden files and
// directories.
func (e *Engine) collectFiles(root string, recursive bool) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if p != root && (!recursive || strings.HasPrefix(d.Name(), ".")) {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(d.Name(), ".") {
			return nil
		}
		if e.importerFor(p) != nil {
			files = append(files, p)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking %s: %w", root, err)
	}
	sort.Strings(files)
	return files, nil
}

func (e *Engine) importerFor(path string) Importer {
	for _, imp := range e.importers {
		if imp.CanHandle(path) {
			return imp
		}
	}
	return nil
}

func (e *Engine) importOne(ctx context.Context, path string, opts ImportOptions) *ImportResult {
	result := &ImportResult{FilesScanned: 1}
	skip := func(msg string) *ImportResult {
		result.FilesSkipped++
		result.Errors = append(result.Errors, ImportError{File: path, Message: msg})
		e.logger.Warn("skipping file", zap.String("file", path), zap.String("reason", msg))
		return result
	}

	imp := e.importerFor(path)
	if imp == nil {
		return skip("unsupported file type")
	}
	info, err := os.Stat(path)
	if err != nil {
		return skip(err.Error())
	}
	if info.Size() > opts.MaxFileSize {
		return skip(fmt.Sprintf("file exceeds %d bytes", opts.MaxFileSize))
	}

	raws, err := imp.Import(ctx, path)
	if err != nil {
		return skip(err.Error())
	}

	for _, raw := range raws {
		fields, err := prepareFields(raw.Fields, opts.ListFields)
		if err != nil {
			result.RecordsSkipped++
			result.Errors = append(result.Errors, ImportError{File: path, Line: raw.SourceLine, Message: err.Error()})
			continue
		}
		if len(fields) == 0 {
			result.RecordsSkipped++
			continue
		}
		if opts.DryRun {
			result.RecordsNew++
			continue
		}
		id, err := e.store.Insert(ctx, opts.Table, fields)
		if err != nil {
			result.RecordsSkipped++
			result.Errors = append(result.Errors, ImportError{File: path, Line: raw.SourceLine, Message: err.Error()})
			continue
		}
		result.RecordsNew++
		result.IDs = append(result.IDs, id)
	}

	result.FilesImported++
	e.logger.Debug("file imported",
		zap.String("file", path),
		zap.Int("records", result.RecordsNew),
		zap.Int("skipped", result.RecordsSkipped),
		zap.Bool("dry_run", opts.DryRun),
	)
	return result
}

// prepareFields normalizes decoded values and splits comma separated list
// fields into trimmed, non-empty labels.
func prepareFields(raw store.Fields, listFields []string) (store.Fields, error) {
	fields, err := store.NormalizeFields(raw)
	if err != nil {
		return nil, err
	}
	for _, name := range listFields {
		s, ok := fields[name].(string)
		if !ok {
			continue
		}
		labels := splitList(s)
		if len(labels) == 0 {
			delete(fields, name)
			continue
		}
		fields[name] = labels
	}
	return fields, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// FormatImportResult renders a human-readable import summary.
func FormatImportResult(r *ImportResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Import complete:\n")
	fmt.Fprintf(&b, "  Files: %d scanned, %d imported, %d skipped\n", r.FilesScanned, r.FilesImported, r.FilesSkipped)
	fmt.Fprintf(&b, "  Records: %d new, %d skipped\n", r.RecordsNew, r.RecordsSkipped)
	if len(r.Errors) > 0 {
		fmt.Fprintf(&b, "  Errors (%d):\n", len(r.Errors))
		for _, e := range r.Errors {
			if e.Line > 0 {
				fmt.Fprintf(&b, "    %s:%d: %s\n", e.File, e.Line, e.Message)
			} else {
				fmt.Fprintf(&b, "    %s: %s\n", e.File, e.Message)
			}
		}
	}
	return b.String()
}
