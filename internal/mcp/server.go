// Package mcp provides a Model Context Protocol server for problemsift.
//
// It exposes problem search, clustering runs, co-occurrence exports and the
// saved run history as MCP tools over the stdio transport, and the most
// recent runs as an MCP resource.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/hurttlocker/problemsift/internal/analysis"
	"github.com/hurttlocker/problemsift/internal/cluster"
	"github.com/hurttlocker/problemsift/internal/cooccur"
	"github.com/hurttlocker/problemsift/internal/logging"
	"github.com/hurttlocker/problemsift/internal/problem"
	"github.com/hurttlocker/problemsift/internal/store"
)

// ServerConfig holds configuration for the MCP server.
type ServerConfig struct {
	Store   store.Store
	Version string // version string for MCP server info
	Logger  *zap.Logger
	Metrics *analysis.Metrics

	// Defaults applied when a tool call leaves them out.
	Fields []problem.Field
	Metric cluster.Metric
}

// dbMu serializes all MCP tool calls that touch the database.
// The mcp-go library dispatches handlers concurrently via goroutines and
// SQLite supports only one writer at a time.
var dbMu sync.Mutex

const (
	defaultSearchLimit = 25
	maxSearchLimit     = 200
	defaultPageSize    = 10
)

// NewServer creates a configured MCP server with all problemsift tools and resources.
func NewServer(cfg ServerConfig) *server.MCPServer {
	ver := cfg.Version
	if ver == "" {
		ver = "dev"
	}
	cfg.Logger = logging.OrNop(cfg.Logger)
	if len(cfg.Fields) == 0 {
		cfg.Fields = []problem.Field{problem.FieldElements, problem.FieldProcesses}
	}
	if cfg.Metric == "" {
		cfg.Metric = cluster.DefaultMetric
	}

	s := server.NewMCPServer(
		"problemsift",
		ver,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(true, false),
	)

	registerSearchTool(s, cfg)
	registerClusterTool(s, cfg)
	registerCooccurrenceTool(s, cfg)
	registerRunsTool(s, cfg)

	registerRecentRunsResource(s, cfg.Store)

	return s
}

// --- Tools ---

func withFilterArgs() []mcp.ToolOption {
	return []mcp.ToolOption{
		mcp.WithString("query",
			mcp.Description("Filter in the form field=value;field=v1, v2 (e.g. program=ONR;elements=Improve Planning). Empty = all problems."),
		),
		mcp.WithString("mode",
			mcp.Description("strict: every term must match (default); loose: any term may match"),
			mcp.Enum("strict", "loose"),
		),
	}
}

// loadProblems runs the filter query against the Problems table.
func loadProblems(ctx context.Context, st store.Store, req mcp.CallToolRequest) ([]problem.Problem, store.Filter, error) {
	query, _ := req.RequireString("query")
	mode := store.MatchAll
	if m, err := req.RequireString("mode"); err == nil && strings.EqualFold(m, "loose") {
		mode = store.MatchAny
	}

	filter, err := store.ParseFilter(query, mode)
	if err != nil {
		return nil, filter, err
	}
	records, err := st.Query(ctx, store.TableProblems, filter)
	if err != nil {
		return nil, filter, err
	}
	return problem.FromRecords(records), filter, nil
}

type problemSummary struct {
	problem.Display
	Elements  []string `json:"elements,omitempty"`
	Processes []string `json:"processes,omitempty"`
	Data      []string `json:"data,omitempty"`
}

func registerSearchTool(s *server.MCPServer, cfg ServerConfig) {
	opts := []mcp.ToolOption{
		mcp.WithDescription("Search problem submissions by field values. Returns display fields plus elements, processes and data labels."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
	}
	opts = append(opts, withFilterArgs()...)
	opts = append(opts, mcp.WithNumber("limit",
		mcp.Description("Maximum number of problems returned (default: 25, max: 200)"),
	))
	tool := mcp.NewTool("problems_search", opts...)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		dbMu.Lock()
		defer dbMu.Unlock()

		problems, filter, err := loadProblems(ctx, cfg.Store, req)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("search error: %v", err)), nil
		}

		limit := defaultSearchLimit
		if limitVal, err := req.RequireFloat("limit"); err == nil && limitVal > 0 {
			limit = int(limitVal)
			if limit > maxSearchLimit {
				limit = maxSearchLimit
			}
		}

		out := make([]problemSummary, 0, limit)
		for i, p := range problems {
			if i >= limit {
				break
			}
			out = append(out, problemSummary{
				Display:   p.Display(),
				Elements:  p.Labels(problem.FieldElements),
				Processes: p.Labels(problem.FieldProcesses),
				Data:      p.Labels(problem.FieldData),
			})
		}

		payload := map[string]interface{}{
			"total":    len(problems),
			"returned": len(out),
			"problems": out,
		}
		if len(filter.Ignored) > 0 {
			payload["ignored_fields"] = filter.Ignored
		}
		data, _ := json.MarshalIndent(payload, "", "  ")
		return mcp.NewToolResultText(string(data)), nil
	})
}

func registerClusterTool(s *server.MCPServer, cfg ServerConfig) {
	opts := []mcp.ToolOption{
		mcp.WithDescription("Cluster matching problems with average-linkage hierarchical clustering over their categorical fields and page through the resulting clusters and singletons."),
		mcp.WithReadOnlyHintAnnotation(false),
		mcp.WithDestructiveHintAnnotation(false),
	}
	opts = append(opts, withFilterArgs()...)
	opts = append(opts,
		mcp.WithString("fields",
			mcp.Description("Fields to cluster on: letter flags (e=elements, p=processes, d=data, g=program, r=roles) or comma separated names. Default: elements,processes."),
		),
		mcp.WithString("metric",
			mcp.Description("Distance metric (default: jaccard)"),
			mcp.Enum("jaccard", "euclidean", "hamming"),
		),
		mcp.WithNumber("clusters",
			mcp.Description("Cut the tree into this many groups"),
		),
		mcp.WithNumber("max_distance",
			mcp.Description("Cut the tree at this merge distance. Ignored when clusters is set."),
		),
		mcp.WithNumber("offset",
			mcp.Description("Index of the first report entry to return (default: 0)"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Number of report entries to return (default: 10)"),
		),
		mcp.WithBoolean("save",
			mcp.Description("Persist the run so problems_runs can list it (default: true)"),
		),
	)
	tool := mcp.NewTool("problems_cluster", opts...)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		dbMu.Lock()
		defer dbMu.Unlock()

		runCfg := analysis.Config{
			Fields:  cfg.Fields,
			Metric:  cfg.Metric,
			Logger:  cfg.Logger,
			Metrics: cfg.Metrics,
		}

		if raw, err := req.RequireString("fields"); err == nil && strings.TrimSpace(raw) != "" {
			fields, err := problem.ParseFieldSelection(raw)
			if err != nil {
				return mcp.NewToolResultError(fmt.Sprintf("invalid fields: %v", err)), nil
			}
			runCfg.Fields = fields
		}
		if raw, err := req.RequireString("metric"); err == nil && raw != "" {
			m, err := cluster.ParseMetric(raw)
			if err != nil {
				return mcp.NewToolResultError(fmt.Sprintf("invalid metric: %v", err)), nil
			}
			runCfg.Metric = m
		}
		if k, err := req.RequireFloat("clusters"); err == nil {
			runCfg.Criterion = cluster.ByCount(int(k))
		} else if d, err := req.RequireFloat("max_distance"); err == nil {
			runCfg.Criterion = cluster.ByDistance(d)
		} else {
			return mcp.NewToolResultError("one of clusters or max_distance is required"), nil
		}
		if save, err := req.RequireBool("save"); err != nil || save {
			runCfg.Recorder = cfg.Store
		}

		problems, filter, err := loadProblems(ctx, cfg.Store, req)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("search error: %v", err)), nil
		}

		res, err := analysis.Run(ctx, problems, runCfg)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("clustering error: %v", err)), nil
		}

		offset, limit := 0, defaultPageSize
		if v, err := req.RequireFloat("offset"); err == nil && v > 0 {
			offset = int(v)
		}
		if v, err := req.RequireFloat("limit"); err == nil && v > 0 {
			limit = int(v)
		}
		page := res.Report.Page(offset, limit)

		payload := map[string]interface{}{
			"run_id":         res.RunID,
			"fields":         res.Fields,
			"metric":         res.Metric,
			"criterion":      res.Criterion.String(),
			"summary":        res.Report.Summary(),
			"num_problems":   res.Report.NumProblems,
			"num_clusters":   res.Report.NumClusters,
			"num_singletons": res.Report.NumSingletons,
			"offset":         offset,
			"entries":        page,
		}
		if next := offset + len(page); next < res.Report.Len() {
			payload["next_offset"] = next
		}
		if len(filter.Ignored) > 0 {
			payload["ignored_fields"] = filter.Ignored
		}
		data, _ := json.MarshalIndent(payload, "", "  ")
		return mcp.NewToolResultText(string(data)), nil
	})
}

func registerCooccurrenceTool(s *server.MCPServer, cfg ServerConfig) {
	opts := []mcp.ToolOption{
		mcp.WithDescription("Count how many matching problems carry each (element, data) or (element, process) label pair, rendered against a template grid. Returns CSV text with columns labelA,labelB,count."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithString("export",
			mcp.Required(),
			mcp.Description("Which field pair to count"),
			mcp.Enum("data", "process"),
		),
		mcp.WithString("template",
			mcp.Required(),
			mcp.Description("Template CSV text: one labelA,labelB[,placeholder] row per expected pair"),
		),
		mcp.WithBoolean("header",
			mcp.Description("Treat the first template row as a header (default: false)"),
		),
	}
	opts = append(opts, withFilterArgs()...)
	tool := mcp.NewTool("problems_cooccurrence", opts...)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		dbMu.Lock()
		defer dbMu.Unlock()

		name, err := req.RequireString("export")
		if err != nil {
			return mcp.NewToolResultError("export is required"), nil
		}
		exp, err := cooccur.LookupExport(name)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		tmpl, err := req.RequireString("template")
		if err != nil || strings.TrimSpace(tmpl) == "" {
			return mcp.NewToolResultError("template is required"), nil
		}
		header, _ := req.RequireBool("header")

		problems, _, err := loadProblems(ctx, cfg.Store, req)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("search error: %v", err)), nil
		}

		var out strings.Builder
		_, err = analysis.Export(ctx, problems, exp, strings.NewReader(tmpl), &out, analysis.ExportOptions{
			Header:  header,
			Logger:  cfg.Logger,
			Metrics: cfg.Metrics,
		})
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("export error: %v", err)), nil
		}
		return mcp.NewToolResultText(out.String()), nil
	})
}

func registerRunsTool(s *server.MCPServer, cfg ServerConfig) {
	tool := mcp.NewTool("problems_runs",
		mcp.WithDescription("List saved clustering runs, newest first, or the groups of one run when run_id is given."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithString("run_id",
			mcp.Description("Return the problem id groups of this run"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum number of runs listed (default: 20)"),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		dbMu.Lock()
		defer dbMu.Unlock()

		if runID, err := req.RequireString("run_id"); err == nil && runID != "" {
			groups, err := cfg.Store.GetRunGroups(ctx, runID)
			if err != nil {
				return mcp.NewToolResultError(fmt.Sprintf("run error: %v", err)), nil
			}
			data, _ := json.MarshalIndent(map[string]interface{}{
				"run_id": runID,
				"groups": groups,
			}, "", "  ")
			return mcp.NewToolResultText(string(data)), nil
		}

		limit := 0
		if v, err := req.RequireFloat("limit"); err == nil {
			limit = int(v)
		}
		runs, err := cfg.Store.ListRuns(ctx, limit)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("runs error: %v", err)), nil
		}
		data, _ := json.MarshalIndent(runs, "", "  ")
		return mcp.NewToolResultText(string(data)), nil
	})
}

// ServeStdio runs the server on stdin/stdout until the client disconnects.
func ServeStdio(s *server.MCPServer) error {
	return server.ServeStdio(s)
}
