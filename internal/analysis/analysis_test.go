package analysis

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/hurttlocker/problemsift/internal/cluster"
	"github.com/hurttlocker/problemsift/internal/cooccur"
	"github.com/hurttlocker/problemsift/internal/features"
	"github.com/hurttlocker/problemsift/internal/problem"
	"github.com/hurttlocker/problemsift/internal/report"
	"github.com/hurttlocker/problemsift/internal/store"
)

func fourProblems() []problem.Problem {
	return []problem.Problem{
		{ID: 101, Fields: store.Fields{"elements": []string{"A", "B"}, "problem_title": "first"}},
		{ID: 102, Fields: store.Fields{"elements": []string{"A"}}},
		{ID: 103, Fields: store.Fields{"elements": []string{"B", "C"}}},
		{ID: 104, Fields: store.Fields{"elements": []string{"C"}}},
	}
}

type recorderFunc func(ctx context.Context, run *store.Run) error

func (f recorderFunc) SaveRun(ctx context.Context, run *store.Run) error { return f(ctx, run) }

func TestRunEndToEnd(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	reg := prometheus.NewRegistry()
	metrics, err := NewMetrics(reg)
	require.NoError(t, err)

	var saved *store.Run
	res, err := Run(context.Background(), fourProblems(), Config{
		Fields:    []problem.Field{problem.FieldElements},
		Criterion: cluster.ByCount(2),
		Logger:    zap.New(core),
		Metrics:   metrics,
		Recorder: recorderFunc(func(_ context.Context, run *store.Run) error {
			saved = run
			return nil
		}),
	})
	require.NoError(t, err)

	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, cluster.MetricJaccard, res.Metric)
	assert.Equal(t, []int64{101, 102, 103, 104}, res.ProblemIDs)
	assert.Equal(t, map[problem.Field]int{problem.FieldElements: 3}, res.RowCounts)
	assert.Len(t, res.Tree.Merges, 3)
	assert.Equal(t, cluster.Partition{{101, 102}, {103, 104}}, res.Partition)

	require.NotNil(t, res.Report)
	assert.Equal(t, res.RunID, res.Report.RunID)
	assert.Equal(t, 2, res.Report.NumClusters)
	assert.Equal(t, report.KindCluster, res.Report.Entries[0].Kind)
	assert.Equal(t, "first", res.Report.Entries[0].Problems[0].Title)
	assert.Equal(t, problem.Unknown, res.Report.Entries[0].Problems[1].Title)

	require.NotNil(t, saved)
	assert.Equal(t, res.RunID, saved.ID)
	assert.Equal(t, []string{"elements"}, saved.Fields)
	assert.Equal(t, "k=2", saved.Criterion)
	assert.Equal(t, [][]int64{{101, 102}, {103, 104}}, saved.Groups)

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Runs.WithLabelValues("ok")))
	assert.Equal(t, 1, testutil.CollectAndCount(metrics.ClustersPerRun))

	assert.Equal(t, 1, logs.FilterMessage("clustering run complete").Len())
	assert.Equal(t, 1, logs.FilterMessage("feature matrix assembled").Len())
}

func TestRunCanonicalFieldOrder(t *testing.T) {
	problems := []problem.Problem{
		{ID: 1, Fields: store.Fields{"elements": []string{"A"}, "data": []string{"X"}}},
		{ID: 2, Fields: store.Fields{"elements": []string{"A"}}},
	}
	res, err := Run(context.Background(), problems, Config{
		Fields:    []problem.Field{problem.FieldData, problem.FieldElements},
		Criterion: cluster.ByDistance(0.5),
	})
	require.NoError(t, err)
	assert.Equal(t, []problem.Field{problem.FieldElements, problem.FieldData}, res.Fields)
	assert.Equal(t, []features.RowSource{
		{Field: problem.FieldElements, Label: "A"},
		{Field: problem.FieldData, Label: "X"},
	}, res.Features.Sources)
	assert.Equal(t, cluster.Partition{{1, 2}}, res.Partition)
}

func TestRunWithoutCriterionKeepsTreeOnly(t *testing.T) {
	var dendrogram bytes.Buffer
	res, err := Run(context.Background(), fourProblems(), Config{
		Fields:   []problem.Field{problem.FieldElements},
		Renderer: cluster.TextRenderer{W: &dendrogram},
	})
	require.NoError(t, err)
	assert.Nil(t, res.Partition)
	assert.Nil(t, res.Report)
	assert.Len(t, res.Tree.Merges, 3)
	assert.Contains(t, dendrogram.String(), "#101")
}

func TestRunDegenerateInputs(t *testing.T) {
	res, err := Run(context.Background(), nil, Config{Fields: []problem.Field{problem.FieldElements}})
	require.NoError(t, err)
	assert.Empty(t, res.Tree.Merges)
	assert.Empty(t, res.Partition)
	require.NotNil(t, res.Report)
	assert.Equal(t, 0, res.Report.NumProblems)

	one := fourProblems()[:1]
	res, err = Run(context.Background(), one, Config{Fields: []problem.Field{problem.FieldElements}})
	require.NoError(t, err)
	assert.Equal(t, cluster.Partition{{101}}, res.Partition)
	assert.Equal(t, 1, res.Report.NumSingletons)
}

func TestRunConfigurationErrors(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics, err := NewMetrics(reg)
	require.NoError(t, err)
	ctx := context.Background()

	_, err = Run(ctx, fourProblems(), Config{Metrics: metrics})
	assert.ErrorIs(t, err, features.ErrNoFieldsSelected)

	_, err = Run(ctx, fourProblems(), Config{Fields: []problem.Field{"setting"}, Metrics: metrics})
	assert.ErrorIs(t, err, features.ErrUnknownField)

	_, err = Run(ctx, fourProblems(), Config{
		Fields:    []problem.Field{problem.FieldElements},
		Criterion: cluster.ByCount(0),
		Metrics:   metrics,
	})
	assert.ErrorIs(t, err, cluster.ErrInvalidCriterion)

	_, err = Run(ctx, fourProblems(), Config{
		Fields:  []problem.Field{problem.FieldElements},
		Metric:  "cosine",
		Metrics: metrics,
	})
	assert.Error(t, err)

	assert.Equal(t, 4.0, testutil.ToFloat64(metrics.Runs.WithLabelValues("error")))
}

func TestRunRecorderFailureFailsRun(t *testing.T) {
	boom := errors.New("disk full")
	_, err := Run(context.Background(), fourProblems(), Config{
		Fields:    []problem.Field{problem.FieldElements},
		Criterion: cluster.ByCount(1),
		Recorder: recorderFunc(func(context.Context, *store.Run) error {
			return boom
		}),
	})
	assert.ErrorIs(t, err, boom)
}

func TestRunCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Run(ctx, fourProblems(), Config{Fields: []problem.Field{problem.FieldElements}})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRunPersistsToStore(t *testing.T) {
	s, err := store.NewStore(store.StoreConfig{DBPath: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	res, err := Run(context.Background(), fourProblems(), Config{
		Fields:    []problem.Field{problem.FieldElements},
		Criterion: cluster.ByDistance(0.4),
		Recorder:  s,
	})
	require.NoError(t, err)

	runs, err := s.ListRuns(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, res.RunID, runs[0].ID)
	assert.Equal(t, 4, runs[0].NumSingletons)

	groups, err := s.GetRunGroups(context.Background(), res.RunID)
	require.NoError(t, err)
	assert.Equal(t, [][]int64{{101}, {102}, {103}, {104}}, groups)
}

func TestNewMetricsReusesCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	a, err := NewMetrics(reg)
	require.NoError(t, err)
	b, err := NewMetrics(reg)
	require.NoError(t, err)
	assert.Same(t, a.Runs, b.Runs)

	none, err := NewMetrics(nil)
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestExport(t *testing.T) {
	problems := []problem.Problem{
		{ID: 1, Fields: store.Fields{"elements": []string{"A", "B"}, "data": []string{"X"}}},
		{ID: 2, Fields: store.Fields{"elements": []string{"A"}, "data": []string{"X", "Z"}}},
	}
	exp, err := cooccur.LookupExport("data")
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	metrics, err := NewMetrics(reg)
	require.NoError(t, err)

	var out bytes.Buffer
	res, err := Export(context.Background(), problems, exp,
		strings.NewReader("element,data,count\nA,X,\nB,X,\nC,X,\n"), &out,
		ExportOptions{Header: true, Metrics: metrics})
	require.NoError(t, err)

	assert.Equal(t, "element,data,count\nA,X,2\nB,X,1\nC,X,0\n", out.String())
	assert.Equal(t, 3, res.Rows)
	assert.Equal(t, 2, res.NonZero)
	assert.Equal(t, 1, res.Dropped, "(A,Z) is not in the template")
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Exports.WithLabelValues("data", "ok")))
}

func TestExportBadTemplate(t *testing.T) {
	exp, err := cooccur.LookupExport("process")
	require.NoError(t, err)
	_, err = Export(context.Background(), nil, exp, strings.NewReader("only-one\n"), &bytes.Buffer{}, ExportOptions{})
	assert.ErrorIs(t, err, cooccur.ErrTemplateRow)
}

func TestExportToDir(t *testing.T) {
	dir := t.TempDir()
	tmplPath := filepath.Join(dir, "template_elements_process.csv")
	require.NoError(t, os.WriteFile(tmplPath, []byte("Plan,Hire,0\n"), 0o600))

	problems := []problem.Problem{
		{ID: 1, Fields: store.Fields{"elements": []string{"Plan"}, "processes": []string{" Hire "}}},
	}
	exp, err := cooccur.LookupExport("process")
	require.NoError(t, err)

	outDir := filepath.Join(dir, "out")
	res, err := ExportToDir(context.Background(), problems, exp, tmplPath, outDir, ExportOptions{})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(outDir, "ELEMENTS_PROCESS.csv"), res.Path)

	b, err := os.ReadFile(res.Path)
	require.NoError(t, err)
	assert.Equal(t, "Plan,Hire,1\n", string(b))

	_, err = ExportToDir(context.Background(), problems, exp, filepath.Join(dir, "missing.csv"), outDir, ExportOptions{})
	assert.Error(t, err)
}

func TestRunNormalizesFieldNames(t *testing.T) {
	res, err := Run(context.Background(), fourProblems(), Config{
		Fields:    []problem.Field{"Elements", " elements "},
		Criterion: cluster.ByCount(1),
	})
	require.NoError(t, err)
	assert.Equal(t, []problem.Field{problem.FieldElements}, res.Fields)
	assert.Equal(t, map[problem.Field]int{problem.FieldElements: 3}, res.RowCounts)
	assert.Equal(t, cluster.Partition{{101, 102, 103, 104}}, res.Partition)
}

func TestExportToDirFailureKeepsPreviousOutput(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.csv")
	bad := filepath.Join(dir, "bad.csv")
	require.NoError(t, os.WriteFile(good, []byte("A,X\n"), 0o600))
	require.NoError(t, os.WriteFile(bad, []byte("A\n"), 0o600))

	problems := []problem.Problem{
		{ID: 1, Fields: store.Fields{"elements": []string{"A"}, "data": []string{"X"}}},
	}
	exp, err := cooccur.LookupExport("data")
	require.NoError(t, err)

	outDir := filepath.Join(dir, "out")
	res, err := ExportToDir(context.Background(), problems, exp, good, outDir, ExportOptions{})
	require.NoError(t, err)

	_, err = ExportToDir(context.Background(), problems, exp, bad, outDir, ExportOptions{})
	require.ErrorIs(t, err, cooccur.ErrTemplateRow)

	b, err := os.ReadFile(res.Path)
	require.NoError(t, err)
	assert.Equal(t, "A,X,1\n", string(b))

	entries, err := os.ReadDir(outDir)
	require.NoError(t, err)
	require.Len(t, entries, 1, "no temporary files left behind")
	assert.Equal(t, "ELEMENTS_DATA.csv", entries[0].Name())
}
