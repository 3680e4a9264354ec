// Package config resolves problemsift settings from the YAML config file,
// PROBLEMSIFT_* environment variables and CLI flags, in that order of
// increasing precedence. Every value remembers where it came from.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/hurttlocker/problemsift/internal/cluster"
	"github.com/hurttlocker/problemsift/internal/problem"
	"github.com/hurttlocker/problemsift/internal/store"
)

type ValueSource string

const (
	SourceUnknown ValueSource = "unknown"
	SourceConfig  ValueSource = "config"
	SourceEnv     ValueSource = "env"
	SourceCLI     ValueSource = "cli"
	SourceDefault ValueSource = "default"
)

// Built-in defaults.
const (
	DefaultOutputDir = "."
	DefaultLogLevel  = "info"
	DefaultFields    = "elements,processes"
)

// ErrConflictingCut is returned when both a cluster count and a distance
// threshold are configured.
var ErrConflictingCut = errors.New("set only one of max_clusters and max_distance")

type ResolvedValue struct {
	Value  string      `json:"value"`
	Source ValueSource `json:"source"`
	From   string      `json:"from,omitempty"`
}

type ResolveOptions struct {
	ConfigPath     string
	CLIDBPath      string
	CLIOutputDir   string
	CLILogLevel    string
	CLIFields      string
	CLIMetric      string
	CLIMaxClusters string
	CLIMaxDistance string
}

type ResolvedConfig struct {
	ConfigPath string `json:"config_path"`

	DBPath    ResolvedValue `json:"db_path"`
	OutputDir ResolvedValue `json:"output_dir"`
	LogLevel  ResolvedValue `json:"log_level"`

	Fields      ResolvedValue `json:"analysis_fields"`
	Metric      ResolvedValue `json:"analysis_metric"`
	MaxClusters ResolvedValue `json:"analysis_max_clusters"`
	MaxDistance ResolvedValue `json:"analysis_max_distance"`

	DataTemplate    ResolvedValue `json:"exports_data_template"`
	ProcessTemplate ResolvedValue `json:"exports_process_template"`
	TemplateHeader  ResolvedValue `json:"exports_template_header"`
}

type fileConfig struct {
	DBPath    string `yaml:"db_path"`
	OutputDir string `yaml:"output_dir"`
	LogLevel  string `yaml:"log_level"`
	Analysis  struct {
		Fields      yamlList `yaml:"fields"`
		Metric      string   `yaml:"metric"`
		MaxClusters string   `yaml:"max_clusters"`
		MaxDistance string   `yaml:"max_distance"`
	} `yaml:"analysis"`
	Exports struct {
		DataTemplate    string `yaml:"data_template"`
		ProcessTemplate string `yaml:"process_template"`
		TemplateHeader  string `yaml:"template_header"`
	} `yaml:"exports"`
}

// yamlList accepts either a scalar ("epd", "elements,data") or a sequence
// of field names, normalizing both to a comma separated string.
type yamlList string

func (l *yamlList) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		*l = yamlList(node.Value)
		return nil
	case yaml.SequenceNode:
		var items []string
		if err := node.Decode(&items); err != nil {
			return err
		}
		*l = yamlList(strings.Join(items, ","))
		return nil
	}
	return fmt.Errorf("line %d: expected a string or a list", node.Line)
}

func DefaultConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".problemsift", "config.yaml")
}

func ResolveConfig(opts ResolveOptions) (ResolvedConfig, error) {
	path := strings.TrimSpace(opts.ConfigPath)
	if path == "" {
		path = DefaultConfigPath()
	}

	out := ResolvedConfig{ConfigPath: path}
	setDefault(&out.DBPath, store.DefaultDBPath)
	setDefault(&out.OutputDir, DefaultOutputDir)
	setDefault(&out.LogLevel, DefaultLogLevel)
	setDefault(&out.Fields, DefaultFields)
	setDefault(&out.Metric, string(cluster.DefaultMetric))
	setDefault(&out.DataTemplate, "template_elements_data.csv")
	setDefault(&out.ProcessTemplate, "template_elements_process.csv")
	setDefault(&out.TemplateHeader, "false")

	cfg, err := loadConfig(path)
	if err != nil {
		return out, err
	}

	if cfg != nil {
		apply(&out.DBPath, cfg.DBPath, SourceConfig, path)
		apply(&out.OutputDir, cfg.OutputDir, SourceConfig, path)
		apply(&out.LogLevel, cfg.LogLevel, SourceConfig, path)
		apply(&out.Fields, string(cfg.Analysis.Fields), SourceConfig, path)
		apply(&out.Metric, cfg.Analysis.Metric, SourceConfig, path)
		apply(&out.MaxClusters, cfg.Analysis.MaxClusters, SourceConfig, path)
		apply(&out.MaxDistance, cfg.Analysis.MaxDistance, SourceConfig, path)
		apply(&out.DataTemplate, cfg.Exports.DataTemplate, SourceConfig, path)
		apply(&out.ProcessTemplate, cfg.Exports.ProcessTemplate, SourceConfig, path)
		apply(&out.TemplateHeader, cfg.Exports.TemplateHeader, SourceConfig, path)
	}

	applyEnv(&out.DBPath, "PROBLEMSIFT_DB")
	applyEnv(&out.DBPath, "PROBLEMSIFT_DB_PATH")
	applyEnv(&out.OutputDir, "PROBLEMSIFT_OUTPUT_DIR")
	applyEnv(&out.LogLevel, "PROBLEMSIFT_LOG_LEVEL")
	applyEnv(&out.Fields, "PROBLEMSIFT_FIELDS")
	applyEnv(&out.Metric, "PROBLEMSIFT_METRIC")
	applyEnv(&out.MaxClusters, "PROBLEMSIFT_MAX_CLUSTERS")
	applyEnv(&out.MaxDistance, "PROBLEMSIFT_MAX_DISTANCE")
	applyEnv(&out.DataTemplate, "PROBLEMSIFT_DATA_TEMPLATE")
	applyEnv(&out.ProcessTemplate, "PROBLEMSIFT_PROCESS_TEMPLATE")
	applyEnv(&out.TemplateHeader, "PROBLEMSIFT_TEMPLATE_HEADER")

	apply(&out.DBPath, opts.CLIDBPath, SourceCLI, "--db")
	apply(&out.OutputDir, opts.CLIOutputDir, SourceCLI, "--out")
	apply(&out.LogLevel, opts.CLILogLevel, SourceCLI, "--log-level")
	apply(&out.Fields, opts.CLIFields, SourceCLI, "--fields")
	apply(&out.Metric, opts.CLIMetric, SourceCLI, "--metric")
	apply(&out.MaxClusters, opts.CLIMaxClusters, SourceCLI, "--clusters")
	apply(&out.MaxDistance, opts.CLIMaxDistance, SourceCLI, "--max-distance")

	for _, v := range []*ResolvedValue{&out.DBPath, &out.OutputDir, &out.DataTemplate, &out.ProcessTemplate} {
		if v.Value != "" && v.Value != ":memory:" {
			v.Value = expandUserPath(v.Value)
		}
	}

	return out, nil
}

// AnalysisFields parses the configured field selection.
func (r ResolvedConfig) AnalysisFields() ([]problem.Field, error) {
	fields, err := problem.ParseFieldSelection(r.Fields.Value)
	if err != nil {
		return nil, fmt.Errorf("%s (from %s): %w", "analysis.fields", r.Fields.Source, err)
	}
	return fields, nil
}

// AnalysisMetric parses the configured distance metric.
func (r ResolvedConfig) AnalysisMetric() (cluster.Metric, error) {
	m, err := cluster.ParseMetric(r.Metric.Value)
	if err != nil {
		return "", fmt.Errorf("%s (from %s): %w", "analysis.metric", r.Metric.Source, err)
	}
	return m, nil
}

// Criterion builds the cut criterion. Neither value set yields the zero
// Criterion; both set is ErrConflictingCut.
func (r ResolvedConfig) Criterion() (cluster.Criterion, error) {
	k := strings.TrimSpace(r.MaxClusters.Value)
	d := strings.TrimSpace(r.MaxDistance.Value)

	var c cluster.Criterion
	switch {
	case k != "" && d != "":
		return c, fmt.Errorf("%w (max_clusters from %s, max_distance from %s)", ErrConflictingCut, r.MaxClusters.Source, r.MaxDistance.Source)
	case k != "":
		n, err := strconv.Atoi(k)
		if err != nil {
			return c, fmt.Errorf("analysis.max_clusters %q: %w", k, err)
		}
		c = cluster.ByCount(n)
	case d != "":
		t, err := strconv.ParseFloat(d, 64)
		if err != nil {
			return c, fmt.Errorf("analysis.max_distance %q: %w", d, err)
		}
		c = cluster.ByDistance(t)
	default:
		return c, nil
	}
	return c, c.Validate()
}

// TemplateFor returns the configured template path for an export name.
func (r ResolvedConfig) TemplateFor(export string) string {
	if export == "process" {
		return r.ProcessTemplate.Value
	}
	return r.DataTemplate.Value
}

// HasTemplateHeader reports whether templates start with a header row.
func (r ResolvedConfig) HasTemplateHeader() bool {
	b, err := strconv.ParseBool(strings.TrimSpace(r.TemplateHeader.Value))
	return err == nil && b
}

func setDefault(dst *ResolvedValue, v string) {
	*dst = ResolvedValue{Value: v, Source: SourceDefault, From: "built-in default"}
}

func apply(dst *ResolvedValue, raw string, source ValueSource, from string) {
	v := strings.TrimSpace(raw)
	if v == "" {
		return
	}
	*dst = ResolvedValue{Value: v, Source: source, From: from}
}

func applyEnv(dst *ResolvedValue, envKey string) {
	if v := strings.TrimSpace(os.Getenv(envKey)); v != "" {
		*dst = ResolvedValue{Value: v, Source: SourceEnv, From: envKey}
	}
}

func loadConfig(path string) (*fileConfig, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	var cfg fileConfig
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return &cfg, nil
}

func expandUserPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}
