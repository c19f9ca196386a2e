// Package mcp exposes the dashboard to MCP clients: the latest tables,
// on-demand refresh and the run ledger.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"

	"github.com/trial-progress-dashboard/internal/domain"
	"github.com/trial-progress-dashboard/internal/ledger"
	"github.com/trial-progress-dashboard/internal/service"
)

// DashboardURI is the resource holding the latest dashboard.
const DashboardURI = "trialdash://dashboard/latest"

// Dashboards is the dashboard service as seen by MCP tools.
type Dashboards interface {
	Latest() (*service.Snapshot, error)
	Section(name string) (interface{}, error)
	Refresh(ctx context.Context) (*service.Snapshot, error)
	Runs(ctx context.Context, limit int) ([]*domain.RunRecord, error)
	Run(ctx context.Context, id string) (*domain.RunRecord, error)
}

// Server represents the dashboard MCP server
type Server struct {
	mcpServer  *mcp.Server
	dashboards Dashboards
	logger     *logrus.Logger
}

// NewServer creates a new MCP server instance and registers its tools.
func NewServer(cfg domain.MCPConfig, dashboards Dashboards, logger *logrus.Logger) *Server {
	serverInfo := &mcp.Implementation{
		Name:    cfg.ServerName,
		Version: cfg.ServerVersion,
	}

	s := &Server{
		mcpServer:  mcp.NewServer(serverInfo, nil),
		dashboards: dashboards,
		logger:     logger,
	}
	s.registerTools()
	s.registerResources()
	return s
}

// Start runs the server on stdio until ctx is cancelled or the client
// disconnects.
func (s *Server) Start(ctx context.Context) error {
	return s.Run(ctx, &mcp.StdioTransport{})
}

// Run serves a single session over transport.
func (s *Server) Run(ctx context.Context, transport mcp.Transport) error {
	s.logger.Info("Starting dashboard MCP server")
	if err := s.mcpServer.Run(ctx, transport); err != nil {
		return fmt.Errorf("MCP server failed: %w", err)
	}
	return nil
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "get_dashboard",
		Description: "Return every table of the latest trial progress dashboard",
	}, s.handleGetDashboard)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "get_section",
		Description: "Return one dashboard section: screening, in_hospital, pre_hospital, specimens, follow_up or data_quality",
	}, s.handleGetSection)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "refresh_dashboard",
		Description: "Fetch a fresh snapshot and recompute the dashboard",
	}, s.handleRefresh)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "list_runs",
		Description: "List recent dashboard refresh runs, newest first",
	}, s.handleListRuns)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "get_run",
		Description: "Return one dashboard refresh run by ID",
	}, s.handleGetRun)

	s.logger.WithField("tool_count", 5).Debug("Registered MCP tools")
}

func (s *Server) registerResources() {
	s.mcpServer.AddResource(&mcp.Resource{
		URI:         DashboardURI,
		Name:        "latest-dashboard",
		Description: "Latest computed dashboard as JSON",
		MIMEType:    "application/json",
	}, s.readDashboard)
}

// EmptyParams is the input of tools that take no arguments.
type EmptyParams struct{}

// SectionParams selects a dashboard section.
type SectionParams struct {
	Section string `json:"section" jsonschema:"dashboard section name"`
}

// ListRunsParams bounds the run listing.
type ListRunsParams struct {
	Limit int `json:"limit,omitempty" jsonschema:"maximum number of runs, default 50"`
}

// GetRunParams names one run.
type GetRunParams struct {
	ID string `json:"id" jsonschema:"run ID"`
}

func (s *Server) handleGetDashboard(ctx context.Context, req *mcp.CallToolRequest, _ EmptyParams) (*mcp.CallToolResult, any, error) {
	s.logger.WithField("tool", "get_dashboard").Info("Tool invoked")

	latest, err := s.dashboards.Latest()
	if err != nil {
		return s.createErrorResult("No dashboard available", err), nil, nil
	}
	return s.jsonResult(latest)
}

func (s *Server) handleGetSection(ctx context.Context, req *mcp.CallToolRequest, params SectionParams) (*mcp.CallToolResult, any, error) {
	s.logger.WithFields(logrus.Fields{"tool": "get_section", "section": params.Section}).Info("Tool invoked")

	if params.Section == "" {
		return s.createErrorResult("Missing required parameter", fmt.Errorf("section is required")), nil, nil
	}
	data, err := s.dashboards.Section(params.Section)
	if err != nil {
		return s.createErrorResult("Section unavailable", err), nil, nil
	}
	return s.jsonResult(data)
}

func (s *Server) handleRefresh(ctx context.Context, req *mcp.CallToolRequest, _ EmptyParams) (*mcp.CallToolResult, any, error) {
	s.logger.WithField("tool", "refresh_dashboard").Info("Tool invoked")

	snap, err := s.dashboards.Refresh(ctx)
	if err != nil {
		return s.createErrorResult("Refresh failed", err), nil, nil
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{
				Text: fmt.Sprintf("Dashboard refreshed as of %s (run %s, digest %s, from cache: %t)",
					snap.Dashboard.AsOf, snap.RunID, snap.Digest, snap.FromCache),
			},
		},
	}, nil, nil
}

func (s *Server) handleListRuns(ctx context.Context, req *mcp.CallToolRequest, params ListRunsParams) (*mcp.CallToolResult, any, error) {
	s.logger.WithField("tool", "list_runs").Info("Tool invoked")

	limit := params.Limit
	if limit <= 0 {
		limit = ledger.DefaultListLimit
	}
	runs, err := s.dashboards.Runs(ctx, limit)
	if err != nil {
		return s.createErrorResult("Failed to list runs", err), nil, nil
	}
	return s.jsonResult(runs)
}

func (s *Server) handleGetRun(ctx context.Context, req *mcp.CallToolRequest, params GetRunParams) (*mcp.CallToolResult, any, error) {
	s.logger.WithFields(logrus.Fields{"tool": "get_run", "run_id": params.ID}).Info("Tool invoked")

	if params.ID == "" {
		return s.createErrorResult("Missing required parameter", fmt.Errorf("id is required")), nil, nil
	}
	run, err := s.dashboards.Run(ctx, params.ID)
	if err != nil {
		return s.createErrorResult("Run not found", err), nil, nil
	}
	return s.jsonResult(run)
}

func (s *Server) readDashboard(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	latest, err := s.dashboards.Latest()
	if err != nil {
		return nil, err
	}
	b, err := json.Marshal(latest)
	if err != nil {
		return nil, fmt.Errorf("failed to encode dashboard: %w", err)
	}
	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      DashboardURI,
			MIMEType: "application/json",
			Text:     string(b),
		}},
	}, nil
}

func (s *Server) jsonResult(v interface{}) (*mcp.CallToolResult, any, error) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, nil, fmt.Errorf("failed to encode result: %w", err)
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(b)}},
	}, nil, nil
}

// createErrorResult reports a tool failure to the client without ending the
// session.
func (s *Server) createErrorResult(message string, err error) *mcp.CallToolResult {
	s.logger.WithError(err).Warn(message)
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{
			&mcp.TextContent{Text: fmt.Sprintf("%s: %v", message, err)},
		},
	}
}
