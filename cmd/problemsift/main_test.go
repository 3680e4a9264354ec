package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hurttlocker/problemsift/internal/cluster"
	"github.com/hurttlocker/problemsift/internal/report"
)

const problemsCSV = `problem_title,program,elements,data
Parts tracking,ONR,"A, B",X
Depot scheduling,ONR,A,X
Crew training,NAVAIR,"B, C",Y
Range planning,NAVAIR,C,
`

type testEnv struct {
	dir    string
	config string
	db     string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()
	return &testEnv{
		dir:    dir,
		config: filepath.Join(dir, "config.yaml"),
		db:     filepath.Join(dir, "problemsift.db"),
	}
}

// run executes the CLI with args against the env's database and config.
func (e *testEnv) run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(append([]string{"--config", e.config, "--db", e.db, "--log-level", "error"}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func (e *testEnv) mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, err := e.run(t, "", args...)
	if err != nil {
		t.Fatalf("problemsift %s: %v\n%s", strings.Join(args, " "), err, out)
	}
	return out
}

func (e *testEnv) writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(e.dir, name)
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func (e *testEnv) seed(t *testing.T) {
	t.Helper()
	out := e.mustRun(t, "import", e.writeFile(t, "problems.csv", problemsCSV))
	if !strings.Contains(out, "Records: 4 new, 0 skipped") {
		t.Fatalf("unexpected import output:\n%s", out)
	}
}

func TestVersion(t *testing.T) {
	env := newTestEnv(t)
	out := env.mustRun(t, "version")
	if out != "problemsift "+version+"\n" {
		t.Fatalf("unexpected version output %q", out)
	}
}

func TestImportDryRun(t *testing.T) {
	env := newTestEnv(t)
	out := env.mustRun(t, "import", "--dry-run", env.writeFile(t, "problems.csv", problemsCSV))
	if !strings.Contains(out, "Dry run") {
		t.Fatalf("expected dry run notice:\n%s", out)
	}

	out = env.mustRun(t, "search")
	if !strings.HasSuffix(out, "0 problems\n") {
		t.Fatalf("dry run wrote records:\n%s", out)
	}
}

func TestImportMissingFile(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.run(t, "", "import", filepath.Join(env.dir, "nope.csv")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestSearch(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t)

	out := env.mustRun(t, "search", "program=onr")
	want := "#1  Parts tracking  (ONR)\n#2  Depot scheduling  (ONR)\n2 problems\n"
	if out != want {
		t.Fatalf("unexpected search output:\n%s\nwant:\n%s", out, want)
	}

	out = env.mustRun(t, "search", "--loose", "problem_title=crew;elements=a")
	if !strings.HasSuffix(out, "3 problems\n") {
		t.Fatalf("unexpected loose search output:\n%s", out)
	}

	if _, err := env.run(t, "", "search", "program"); err == nil {
		t.Fatal("expected error for malformed term")
	}
}

func TestClusterByCount(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t)

	out := env.mustRun(t, "cluster", "--fields", "e", "--clusters", "2")
	for _, want := range []string{
		"2 clusters and 0 singletons from 4 problems",
		"## Cluster 1: problems 1-2 of 4",
		"## Cluster 3: problems 3-4 of 4",
		"Title: Parts tracking",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in cluster output:\n%s", want, out)
		}
	}

	out = env.mustRun(t, "runs")
	if !strings.Contains(out, "k=2") || !strings.Contains(out, "elements") {
		t.Fatalf("run not listed:\n%s", out)
	}
}

func TestClusterByDistanceJSON(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t)

	out := env.mustRun(t, "cluster", "--fields", "elements", "--max-distance", "0.4", "--json", "--save=false")
	if !strings.Contains(out, `"criterion": "distance<=0.4"`) || !strings.Contains(out, `"num_singletons": 4`) {
		t.Fatalf("unexpected JSON output:\n%s", out)
	}

	out = env.mustRun(t, "runs")
	if !strings.Contains(out, "No saved runs.") {
		t.Fatalf("expected no saved runs:\n%s", out)
	}
}

func TestClusterRequiresCut(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t)

	if _, err := env.run(t, "", "cluster"); !errors.Is(err, errNoCut) {
		t.Fatalf("expected errNoCut, got %v", err)
	}
	if _, err := env.run(t, "", "cluster", "--clusters", "2", "--max-distance", "0.5"); err == nil {
		t.Fatal("expected error for conflicting cut")
	}
	if _, err := env.run(t, "", "cluster", "--clusters", "2", "--metric", "cosine"); err == nil {
		t.Fatal("expected error for unknown metric")
	}
}

func TestClusterDendrogramOnly(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t)

	out := env.mustRun(t, "cluster", "--fields", "e", "--dendrogram", "csv")
	want := "left,right,distance,size\n0,1,0.5,2\n2,3,0.5,2\n"
	if !strings.HasPrefix(out, want) {
		t.Fatalf("unexpected dendrogram:\n%s", out)
	}
	if strings.Contains(out, "##") {
		t.Fatalf("no report expected without a cut:\n%s", out)
	}
}

func TestClusterConfigFileCut(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t)
	env.writeFile(t, "config.yaml", "analysis:\n  fields: [elements]\n  max_clusters: 1\n")

	out := env.mustRun(t, "cluster")
	if !strings.Contains(out, "1 clusters and 0 singletons from 4 problems") {
		t.Fatalf("config cut not applied:\n%s", out)
	}
}

func TestExport(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t)

	tmpl := env.writeFile(t, "tmpl.csv", "A,X\nB,X\nC,Y\nC,X\n")
	outDir := filepath.Join(env.dir, "out")

	out := env.mustRun(t, "export", "--kind", "data", "--template", tmpl, "--out", outDir)
	if !strings.Contains(out, "4 rows, 3 non-zero") {
		t.Fatalf("unexpected export output:\n%s", out)
	}

	got, err := os.ReadFile(filepath.Join(outDir, "ELEMENTS_DATA.csv"))
	if err != nil {
		t.Fatalf("reading export: %v", err)
	}
	if string(got) != "A,X,2\nB,X,1\nC,Y,1\nC,X,0\n" {
		t.Fatalf("unexpected export:\n%s", got)
	}

	if _, err := env.run(t, "", "export", "--kind", "both", "--template", tmpl); err == nil {
		t.Fatal("expected error for --template with both exports")
	}
}

func TestRunsGroups(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t)

	out := env.mustRun(t, "cluster", "--fields", "e", "--clusters", "3")
	runID := strings.TrimSuffix(strings.Fields(out)[1], ":")

	out = env.mustRun(t, "runs", runID)
	want := "Group 1: [1 2]\nGroup 2: [3]\nGroup 3: [4]\n"
	if out != want {
		t.Fatalf("unexpected groups:\n%s\nwant:\n%s", out, want)
	}

	if _, err := env.run(t, "", "runs", "no-such-run"); err == nil {
		t.Fatal("expected error for unknown run")
	}
}

func TestConfigShowsSources(t *testing.T) {
	env := newTestEnv(t)
	out := env.mustRun(t, "config")
	if !strings.Contains(out, "cli (--db)") {
		t.Fatalf("expected db from cli:\n%s", out)
	}
	if !strings.Contains(out, "analysis.fields") || !strings.Contains(out, "elements,processes") {
		t.Fatalf("expected default fields:\n%s", out)
	}
}

func TestPageReport(t *testing.T) {
	rep := report.Build(cluster.Partition{{1, 2}, {3}, {4}}, nil)

	var out bytes.Buffer
	if err := pageReport(&out, strings.NewReader("\nq\n"), rep, 1); err != nil {
		t.Fatalf("pageReport: %v", err)
	}
	text := out.String()
	for _, want := range []string{
		"## Cluster 1: problems 1-2 of 4",
		"-- 1 of 3 entries shown",
		"## Singleton 3: problem 3 of 4",
		"-- 2 of 3 entries shown",
	} {
		if !strings.Contains(text, want) {
			t.Fatalf("missing %q in:\n%s", want, text)
		}
	}
	if strings.Contains(text, "Singleton 4") {
		t.Fatalf("paging did not stop at q:\n%s", text)
	}

	out.Reset()
	if err := pageReport(&out, strings.NewReader(""), rep, 0); err != nil {
		t.Fatalf("pageReport: %v", err)
	}
	if !strings.Contains(out.String(), "## Singleton 4: problem 4 of 4") || strings.Contains(out.String(), "entries shown") {
		t.Fatalf("expected the whole report without prompts:\n%s", out.String())
	}
}
