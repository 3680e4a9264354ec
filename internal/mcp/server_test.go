package mcp

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/hurttlocker/problemsift/internal/store"
)

// helper: create a test store with four problems whose elements are
// [A,B], [A], [B,C], [C].
func setupTestStore(t *testing.T) store.Store {
	t.Helper()
	s, err := store.NewStore(store.StoreConfig{DBPath: ":memory:"})
	if err != nil {
		t.Fatalf("creating test store: %v", err)
	}

	ctx := context.Background()
	problems := []store.Fields{
		{"problem_title": "Parts tracking", "program": "ONR", "elements": []string{"A", "B"}, "data": []string{"X"}},
		{"problem_title": "Depot scheduling", "program": "ONR", "elements": []string{"A"}, "data": []string{"X"}},
		{"problem_title": "Crew training", "program": "NAVAIR", "elements": []string{"B", "C"}, "data": []string{"Y"}},
		{"problem_title": "Range planning", "program": "NAVAIR", "elements": []string{"C"}},
	}
	for _, p := range problems {
		if _, err := s.Insert(ctx, store.TableProblems, p); err != nil {
			t.Fatalf("adding test problem: %v", err)
		}
	}
	return s
}

func TestNewServer(t *testing.T) {
	s := setupTestStore(t)
	defer s.Close()

	srv := NewServer(ServerConfig{Store: s})
	if srv == nil {
		t.Fatal("NewServer returned nil")
	}
}

func callTool(t *testing.T, srv *server.MCPServer, name string, args map[string]interface{}) *mcplib.CallToolResult {
	t.Helper()

	result := srv.HandleMessage(context.Background(), mustMarshal(t, map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  "tools/call",
		"params": map[string]interface{}{
			"name":      name,
			"arguments": args,
		},
	}))

	// Parse the JSON-RPC response
	respBytes, err := json.Marshal(result)
	if err != nil {
		t.Fatalf("marshal response: %v", err)
	}

	var resp struct {
		Result struct {
			Content []struct {
				Type string `json:"type"`
				Text string `json:"text"`
			} `json:"content"`
			IsError bool `json:"isError"`
		} `json:"result"`
		Error *struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(respBytes, &resp); err != nil {
		t.Fatalf("unmarshal response: %v\nraw: %s", err, string(respBytes))
	}

	if resp.Error != nil {
		t.Fatalf("JSON-RPC error: %d %s", resp.Error.Code, resp.Error.Message)
	}

	callResult := &mcplib.CallToolResult{
		IsError: resp.Result.IsError,
	}
	for _, c := range resp.Result.Content {
		if c.Type == "text" {
			callResult.Content = append(callResult.Content, mcplib.NewTextContent(c.Text))
		}
	}

	return callResult
}

func mustMarshal(t *testing.T, v interface{}) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return data
}

func getTextContent(t *testing.T, result *mcplib.CallToolResult) string {
	t.Helper()
	if len(result.Content) == 0 {
		t.Fatal("no content in result")
	}
	for _, c := range result.Content {
		if tc, ok := c.(mcplib.TextContent); ok {
			return tc.Text
		}
	}
	t.Fatal("no text content found")
	return ""
}

func TestSearchTool(t *testing.T) {
	s := setupTestStore(t)
	defer s.Close()

	srv := NewServer(ServerConfig{Store: s})

	result := callTool(t, srv, "problems_search", map[string]interface{}{
		"query": "program=onr",
	})
	if result.IsError {
		t.Fatalf("unexpected error: %s", getTextContent(t, result))
	}

	var payload struct {
		Total    int `json:"total"`
		Problems []struct {
			ProblemID int64    `json:"problem_id"`
			Title     string   `json:"title"`
			Elements  []string `json:"elements"`
		} `json:"problems"`
	}
	if err := json.Unmarshal([]byte(getTextContent(t, result)), &payload); err != nil {
		t.Fatalf("parsing search results: %v", err)
	}
	if payload.Total != 2 || len(payload.Problems) != 2 {
		t.Fatalf("expected 2 ONR problems, got %+v", payload)
	}
	if payload.Problems[0].Title != "Parts tracking" {
		t.Fatalf("unexpected first problem: %+v", payload.Problems[0])
	}
	if strings.Join(payload.Problems[0].Elements, ",") != "A,B" {
		t.Fatalf("unexpected elements: %v", payload.Problems[0].Elements)
	}
}

func TestSearchToolLooseModeAndLimit(t *testing.T) {
	s := setupTestStore(t)
	defer s.Close()

	srv := NewServer(ServerConfig{Store: s})

	result := callTool(t, srv, "problems_search", map[string]interface{}{
		"query": "problem_title=parts,crew;colour=red",
		"mode":  "loose",
		"limit": 1,
	})
	if result.IsError {
		t.Fatalf("unexpected error: %s", getTextContent(t, result))
	}

	var payload struct {
		Total         int               `json:"total"`
		Returned      int               `json:"returned"`
		IgnoredFields []string          `json:"ignored_fields"`
		Problems      []json.RawMessage `json:"problems"`
	}
	if err := json.Unmarshal([]byte(getTextContent(t, result)), &payload); err != nil {
		t.Fatalf("parsing search results: %v", err)
	}
	if payload.Total != 2 || payload.Returned != 1 || len(payload.Problems) != 1 {
		t.Fatalf("unexpected counts: %+v", payload)
	}
	if len(payload.IgnoredFields) != 1 || payload.IgnoredFields[0] != "colour" {
		t.Fatalf("expected colour to be ignored, got %v", payload.IgnoredFields)
	}
}

func TestSearchToolBadQuery(t *testing.T) {
	s := setupTestStore(t)
	defer s.Close()

	srv := NewServer(ServerConfig{Store: s})

	result := callTool(t, srv, "problems_search", map[string]interface{}{
		"query": "program",
	})
	if !result.IsError {
		t.Fatal("expected error for term without '='")
	}
}

func TestClusterTool(t *testing.T) {
	s := setupTestStore(t)
	defer s.Close()

	srv := NewServer(ServerConfig{Store: s})

	result := callTool(t, srv, "problems_cluster", map[string]interface{}{
		"fields":   "e",
		"clusters": 2,
		"limit":    1,
	})
	text := getTextContent(t, result)
	if result.IsError {
		t.Fatalf("unexpected error: %s", text)
	}

	var payload struct {
		RunID         string `json:"run_id"`
		Criterion     string `json:"criterion"`
		NumProblems   int    `json:"num_problems"`
		NumClusters   int    `json:"num_clusters"`
		NumSingletons int    `json:"num_singletons"`
		NextOffset    *int   `json:"next_offset"`
		Entries       []struct {
			Kind       string  `json:"kind"`
			ProblemIDs []int64 `json:"problem_ids"`
		} `json:"entries"`
	}
	if err := json.Unmarshal([]byte(text), &payload); err != nil {
		t.Fatalf("parsing cluster result: %v\n%s", err, text)
	}
	if payload.NumProblems != 4 || payload.NumClusters != 2 || payload.NumSingletons != 0 {
		t.Fatalf("unexpected counts: %+v", payload)
	}
	if payload.Criterion != "k=2" {
		t.Fatalf("unexpected criterion %q", payload.Criterion)
	}
	if len(payload.Entries) != 1 || payload.Entries[0].Kind != "cluster" {
		t.Fatalf("expected one cluster entry, got %+v", payload.Entries)
	}
	if ids := payload.Entries[0].ProblemIDs; len(ids) != 2 || ids[0] != 1 || ids[1] != 2 {
		t.Fatalf("unexpected first cluster: %v", ids)
	}
	if payload.NextOffset == nil || *payload.NextOffset != 1 {
		t.Fatalf("expected next_offset 1, got %v", payload.NextOffset)
	}

	// The run was saved.
	runs, err := s.ListRuns(context.Background(), 0)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 1 || runs[0].ID != payload.RunID {
		t.Fatalf("expected saved run %s, got %+v", payload.RunID, runs)
	}
}

func TestClusterToolNoSave(t *testing.T) {
	s := setupTestStore(t)
	defer s.Close()

	srv := NewServer(ServerConfig{Store: s})

	result := callTool(t, srv, "problems_cluster", map[string]interface{}{
		"max_distance": 0.5,
		"save":         false,
	})
	if result.IsError {
		t.Fatalf("unexpected error: %s", getTextContent(t, result))
	}
	runs, err := s.ListRuns(context.Background(), 0)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 0 {
		t.Fatalf("expected no saved runs, got %d", len(runs))
	}
}

func TestClusterToolErrors(t *testing.T) {
	s := setupTestStore(t)
	defer s.Close()

	srv := NewServer(ServerConfig{Store: s})

	cases := map[string]map[string]interface{}{
		"missing cut":    {"fields": "e"},
		"bad metric":     {"metric": "cosine", "clusters": 2},
		"bad fields":     {"fields": "elements,colour", "clusters": 2},
		"zero clusters":  {"clusters": 0},
		"negative cut":   {"max_distance": -1},
		"no fields left": {"fields": ",", "clusters": 2, "query": "program=onr"},
	}
	for name, args := range cases {
		t.Run(name, func(t *testing.T) {
			result := callTool(t, srv, "problems_cluster", args)
			if !result.IsError {
				t.Fatalf("expected error, got %s", getTextContent(t, result))
			}
		})
	}
}

func TestCooccurrenceTool(t *testing.T) {
	s := setupTestStore(t)
	defer s.Close()

	srv := NewServer(ServerConfig{Store: s})

	result := callTool(t, srv, "problems_cooccurrence", map[string]interface{}{
		"export":   "data",
		"template": "element,data,count\nA,X,\nB,X,\nC,Y,\nC,X,\n",
		"header":   true,
	})
	text := getTextContent(t, result)
	if result.IsError {
		t.Fatalf("unexpected error: %s", text)
	}

	want := "element,data,count\nA,X,2\nB,X,1\nC,Y,1\nC,X,0\n"
	if text != want {
		t.Fatalf("unexpected export:\n%s\nwant:\n%s", text, want)
	}
}

func TestCooccurrenceToolErrors(t *testing.T) {
	s := setupTestStore(t)
	defer s.Close()

	srv := NewServer(ServerConfig{Store: s})

	result := callTool(t, srv, "problems_cooccurrence", map[string]interface{}{
		"export":   "setting",
		"template": "A,X\n",
	})
	if !result.IsError {
		t.Fatal("expected error for unknown export")
	}

	result = callTool(t, srv, "problems_cooccurrence", map[string]interface{}{
		"export":   "process",
		"template": "A\n",
	})
	if !result.IsError {
		t.Fatal("expected error for one-column template row")
	}
}

func TestRunsTool(t *testing.T) {
	s := setupTestStore(t)
	defer s.Close()

	srv := NewServer(ServerConfig{Store: s})

	result := callTool(t, srv, "problems_runs", map[string]interface{}{})
	if text := strings.TrimSpace(getTextContent(t, result)); text != "[]" && text != "null" {
		t.Fatalf("expected no runs, got %s", text)
	}

	result = callTool(t, srv, "problems_cluster", map[string]interface{}{
		"fields":   "elements",
		"clusters": 3,
	})
	var clusterPayload struct {
		RunID string `json:"run_id"`
	}
	if err := json.Unmarshal([]byte(getTextContent(t, result)), &clusterPayload); err != nil {
		t.Fatalf("parsing cluster result: %v", err)
	}

	result = callTool(t, srv, "problems_runs", map[string]interface{}{"limit": 5})
	var runs []store.Run
	if err := json.Unmarshal([]byte(getTextContent(t, result)), &runs); err != nil {
		t.Fatalf("parsing runs: %v", err)
	}
	if len(runs) != 1 || runs[0].NumClusters != 1 || runs[0].NumSingletons != 2 {
		t.Fatalf("unexpected runs: %+v", runs)
	}

	result = callTool(t, srv, "problems_runs", map[string]interface{}{"run_id": clusterPayload.RunID})
	var groups struct {
		Groups [][]int64 `json:"groups"`
	}
	if err := json.Unmarshal([]byte(getTextContent(t, result)), &groups); err != nil {
		t.Fatalf("parsing groups: %v", err)
	}
	if len(groups.Groups) != 3 || len(groups.Groups[0]) != 2 {
		t.Fatalf("unexpected groups: %v", groups.Groups)
	}
}

func TestRecentRunsResource(t *testing.T) {
	s := setupTestStore(t)
	defer s.Close()

	srv := NewServer(ServerConfig{Store: s})
	callTool(t, srv, "problems_cluster", map[string]interface{}{"clusters": 2})

	result := srv.HandleMessage(context.Background(), mustMarshal(t, map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      2,
		"method":  "resources/read",
		"params": map[string]interface{}{
			"uri": "problemsift://runs/recent",
		},
	}))
	respBytes, err := json.Marshal(result)
	if err != nil {
		t.Fatalf("marshal response: %v", err)
	}

	var resp struct {
		Result struct {
			Contents []struct {
				URI  string `json:"uri"`
				Text string `json:"text"`
			} `json:"contents"`
		} `json:"result"`
	}
	if err := json.Unmarshal(respBytes, &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if len(resp.Result.Contents) != 1 {
		t.Fatalf("expected one resource content, got %s", string(respBytes))
	}

	var payload struct {
		Count int `json:"count"`
	}
	if err := json.Unmarshal([]byte(resp.Result.Contents[0].Text), &payload); err != nil {
		t.Fatalf("parsing resource: %v", err)
	}
	if payload.Count != 1 {
		t.Fatalf("expected 1 recent run, got %d", payload.Count)
	}
}
