package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/hurttlocker/problemsift/internal/store"
)

const recentRunsLimit = 10

func registerRecentRunsResource(s *server.MCPServer, st store.Store) {
	resource := mcp.NewResource(
		"problemsift://runs/recent",
		"Recent Clustering Runs",
		mcp.WithResourceDescription("The most recent saved clustering runs with their fields, metric, cut criterion and counts."),
		mcp.WithMIMEType("application/json"),
	)

	s.AddResource(resource, func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		dbMu.Lock()
		defer dbMu.Unlock()

		runs, err := st.ListRuns(ctx, recentRunsLimit)
		if err != nil {
			return nil, fmt.Errorf("listing runs: %w", err)
		}

		payload := map[string]interface{}{
			"runs":  runs,
			"count": len(runs),
		}
		data, _ := json.MarshalIndent(payload, "", "  ")
		return []mcp.ResourceContents{
			mcp.TextResourceContents{URI: req.Params.URI, MIMEType: "application/json", Text: string(data)},
		}, nil
	})
}
