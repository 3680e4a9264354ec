package analysis

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/hurttlocker/problemsift/internal/cooccur"
	"github.com/hurttlocker/problemsift/internal/logging"
	"github.com/hurttlocker/problemsift/internal/problem"
)

// ExportOptions configures a co-occurrence export.
type ExportOptions struct {
	// Header passes the template's first row through to the output.
	Header  bool
	Logger  *zap.Logger
	Metrics *Metrics
}

// ExportResult summarizes one export.
type ExportResult struct {
	Export   string        `json:"export"`
	Path     string        `json:"path,omitempty"`
	Rows     int           `json:"rows"`
	NonZero  int           `json:"non_zero"`
	Dropped  int           `json:"dropped"`
	Rendered []cooccur.Row `json:"-"`
}

// Export counts exp.Primary x exp.Other over problems, renders the counts
// against the template read from tmpl and writes the CSV to out.
func Export(ctx context.Context, problems []problem.Problem, exp cooccur.Export, tmpl io.Reader, out io.Writer, opts ExportOptions) (res *ExportResult, err error) {
	logger := logging.OrNop(opts.Logger).With(zap.String("export", exp.Name))
	defer func() {
		outcome := outcomeOK
		if err != nil {
			outcome = outcomeError
		}
		opts.Metrics.observeExport(exp.Name, outcome)
	}()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	template, err := cooccur.LoadTemplate(tmpl, cooccur.TemplateOptions{Header: opts.Header})
	if err != nil {
		return nil, fmt.Errorf("loading %s template: %w", exp.Name, err)
	}

	table := cooccur.Count(problems, exp.Primary, exp.Other)
	rows := cooccur.Render(table, template)

	var header []string
	if opts.Header {
		header = template.Header
	}
	if err := cooccur.WriteCSV(out, header, rows); err != nil {
		return nil, fmt.Errorf("writing %s export: %w", exp.Name, err)
	}

	res = &ExportResult{Export: exp.Name, Rows: len(rows), Rendered: rows}
	inTemplate := make(map[cooccur.Pair]bool, len(template.Pairs))
	for _, p := range template.Pairs {
		inTemplate[p] = true
	}
	for _, r := range rows {
		if r.Count > 0 {
			res.NonZero++
		}
	}
	for p := range table {
		if !inTemplate[p] {
			res.Dropped++
		}
	}

	logger.Info("co-occurrence export written",
		zap.Int("rows", res.Rows),
		zap.Int("non_zero", res.NonZero),
		zap.Int("dropped_pairs", res.Dropped),
	)
	return res, nil
}

// ExportToDir runs Export reading templatePath and writing exp.Output under
// dir. The output is written to a temporary file and renamed into place, so
// a failed export leaves any previous output untouched.
func ExportToDir(ctx context.Context, problems []problem.Problem, exp cooccur.Export, templatePath, dir string, opts ExportOptions) (*ExportResult, error) {
	in, err := os.Open(templatePath)
	if err != nil {
		return nil, fmt.Errorf("opening template: %w", err)
	}
	defer in.Close()

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}
	path := filepath.Join(dir, exp.Output)
	f, err := os.CreateTemp(dir, "."+exp.Output+".*.tmp")
	if err != nil {
		return nil, fmt.Errorf("creating %s: %w", path, err)
	}
	tmp := f.Name()

	res, err := Export(ctx, problems, exp, in, f, opts)
	if cerr := f.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("closing %s: %w", tmp, cerr)
	}
	if err == nil {
		if rerr := os.Rename(tmp, path); rerr != nil {
			err = fmt.Errorf("replacing %s: %w", path, rerr)
		}
	}
	if err != nil {
		os.Remove(tmp)
		return nil, err
	}
	res.Path = path
	return res, nil
}
