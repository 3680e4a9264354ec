// Package analysis runs one clustering pass over a fixed problem snapshot:
// encode the selected fields, assemble the combined matrix, build the
// average-linkage tree, cut it and materialize the report.
package analysis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hurttlocker/problemsift/internal/cluster"
	"github.com/hurttlocker/problemsift/internal/features"
	"github.com/hurttlocker/problemsift/internal/logging"
	"github.com/hurttlocker/problemsift/internal/problem"
	"github.com/hurttlocker/problemsift/internal/report"
	"github.com/hurttlocker/problemsift/internal/store"
)

const (
	outcomeOK    = "ok"
	outcomeError = "error"
)

// RunRecorder persists finished runs. store.Store satisfies it.
type RunRecorder interface {
	SaveRun(ctx context.Context, run *store.Run) error
}

// Config is the explicit per-run configuration.
type Config struct {
	Fields    []problem.Field
	Metric    cluster.Metric
	Criterion cluster.Criterion

	Logger   *zap.Logger
	Metrics  *Metrics
	Renderer cluster.Renderer
	Recorder RunRecorder
}

// Result is a complete run. Partition and Report are nil when no cut
// criterion was given and there are at least two problems.
type Result struct {
	RunID      string                `json:"run_id"`
	Fields     []problem.Field       `json:"fields"`
	Metric     cluster.Metric        `json:"metric"`
	Criterion  cluster.Criterion     `json:"criterion"`
	ProblemIDs []int64               `json:"problem_ids"`
	RowCounts  map[problem.Field]int `json:"row_counts"`
	Features   *features.Combined    `json:"-"`
	Tree       *cluster.Tree         `json:"tree"`
	Partition  cluster.Partition     `json:"partition,omitempty"`
	Report     *report.Report        `json:"report,omitempty"`
	Duration   time.Duration         `json:"duration"`
}

// Run executes the pipeline. Either every stage succeeds or the run fails
// as a whole; a recorder error also fails the run.
func Run(ctx context.Context, problems []problem.Problem, cfg Config) (res *Result, err error) {
	logger := logging.OrNop(cfg.Logger)
	start := time.Now()
	runID := uuid.NewString()
	logger = logger.With(zap.String("run_id", runID))

	defer func() {
		outcome, clusters := outcomeOK, 0
		if err != nil {
			outcome = outcomeError
			logger.Warn("clustering run failed", zap.Error(err))
		} else {
			clusters = res.numClusters()
		}
		cfg.Metrics.observeRun(outcome, time.Since(start), len(problems), clusters)
	}()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	metric := cfg.Metric
	if metric == "" {
		metric = cluster.DefaultMetric
	}
	if _, err := cluster.ParseMetric(string(metric)); err != nil {
		return nil, err
	}
	if !cfg.Criterion.IsZero() {
		if err := cfg.Criterion.Validate(); err != nil {
			return nil, err
		}
	}

	combined, err := assemble(problems, cfg.Fields)
	if err != nil {
		return nil, err
	}
	rows, cols := combined.Dims()
	logger.Debug("feature matrix assembled",
		zap.Int("features", rows),
		zap.Int("problems", cols),
		zap.Strings("fields", fieldNames(combined.Fields)),
	)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	tree, err := cluster.Build(combined.Vectors(), metric)
	if err != nil {
		return nil, fmt.Errorf("building merge tree: %w", err)
	}
	logger.Debug("merge tree built", zap.Int("merges", len(tree.Merges)), zap.String("metric", string(metric)))

	if cfg.Renderer != nil {
		if rerr := cfg.Renderer.RenderDendrogram(tree, leafLabels(combined.ProblemIDs)); rerr != nil {
			logger.Warn("dendrogram rendering failed", zap.Error(rerr))
		}
	}

	res = &Result{
		RunID:      runID,
		Fields:     combined.Fields,
		Metric:     metric,
		Criterion:  cfg.Criterion,
		ProblemIDs: combined.ProblemIDs,
		Features:   combined,
		Tree:       tree,
		RowCounts:  combined.RowCounts(),
	}

	if !cfg.Criterion.IsZero() || tree.N <= 1 {
		partition, err := tree.Cut(combined.ProblemIDs, cfg.Criterion)
		if err != nil {
			return nil, fmt.Errorf("cutting merge tree: %w", err)
		}
		res.Partition = partition
		res.Report = report.Build(partition, report.IndexLookup(problem.NewIndex(problems)))
		res.Report.RunID = runID
	}

	if cfg.Recorder != nil && res.Partition != nil {
		if err := cfg.Recorder.SaveRun(ctx, res.StoreRun()); err != nil {
			return nil, fmt.Errorf("recording run: %w", err)
		}
	}

	res.Duration = time.Since(start)
	fields := []zap.Field{
		zap.Int("problems", tree.N),
		zap.String("criterion", cfg.Criterion.String()),
		zap.Duration("elapsed", res.Duration),
	}
	if res.Report != nil {
		fields = append(fields,
			zap.Int("clusters", res.Report.NumClusters),
			zap.Int("singletons", res.Report.NumSingletons),
		)
	}
	logger.Info("clustering run complete", fields...)
	return res, nil
}

// assemble encodes every known field in canonical order and enables the
// selected ones.
func assemble(problems []problem.Problem, selected []problem.Field) (*features.Combined, error) {
	if len(selected) == 0 {
		return nil, features.ErrNoFieldsSelected
	}
	enabled := make(map[problem.Field]bool, len(selected))
	for _, raw := range selected {
		f, err := problem.ParseField(string(raw))
		if err != nil {
			return nil, err
		}
		enabled[f] = true
	}

	parts := make([]features.Part, 0, len(problem.Fields))
	for _, f := range problem.Fields {
		if !enabled[f] {
			continue
		}
		m, err := features.Encode(f, problems)
		if err != nil {
			return nil, fmt.Errorf("encoding %s: %w", f, err)
		}
		parts = append(parts, features.Part{Matrix: m, Enabled: true})
	}
	return features.Assemble(parts...)
}

// StoreRun converts the result into its persisted form.
func (r *Result) StoreRun() *store.Run {
	run := &store.Run{
		ID:          r.RunID,
		Fields:      fieldNames(r.Fields),
		Metric:      string(r.Metric),
		Criterion:   r.Criterion.String(),
		NumProblems: len(r.ProblemIDs),
	}
	if r.Report != nil {
		run.NumClusters = r.Report.NumClusters
		run.NumSingletons = r.Report.NumSingletons
	}
	for _, g := range r.Partition {
		run.Groups = append(run.Groups, []int64(g))
	}
	return run
}

func (r *Result) numClusters() int {
	if r == nil || r.Report == nil {
		return 0
	}
	return r.Report.NumClusters
}

func fieldNames(fields []problem.Field) []string {
	out := make([]string, len(fields))
	for i, f := range fields {
		out[i] = string(f)
	}
	return out
}

func leafLabels(ids []int64) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = "#" + strconv.FormatInt(id, 10)
	}
	return out
}
