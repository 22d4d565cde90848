package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"

	"github.com/SonarSource/sonarlint-core-sub018/pkg/httputil"
	"github.com/SonarSource/sonarlint-core-sub018/pkg/store"
	"github.com/SonarSource/sonarlint-core-sub018/pkg/tracking"
)

// =============================================================================
// Tool inputs
// =============================================================================

type FindingsFilterInput struct {
	Scope    string `json:"scope,omitempty" jsonschema:"Configuration scope (default: the configured scope). Use * for every scope."`
	FilePath string `json:"file,omitempty" jsonschema:"Filter by file path (substring match)"`
	Category string `json:"category,omitempty" jsonschema:"Filter by category: issue, hotspot"`
	RuleKey  string `json:"rule,omitempty" jsonschema:"Filter by rule key, e.g. go:S1192"`
	Limit    int    `json:"limit,omitempty" jsonschema:"Maximum results"`
}

type FindingsSearchInput struct {
	Query    string `json:"query" jsonschema:"Search query over finding messages and rule keys. Supports Bleve query syntax."`
	Scope    string `json:"scope,omitempty" jsonschema:"Configuration scope (default: the configured scope). Use * for every scope."`
	FilePath string `json:"file,omitempty" jsonschema:"Filter by file path (exact match)"`
	Category string `json:"category,omitempty" jsonschema:"Filter by category: issue, hotspot"`
	RuleKey  string `json:"rule,omitempty" jsonschema:"Filter by rule key"`
	Limit    int    `json:"limit,omitempty" jsonschema:"Maximum results (default 20)"`
}

func (in FindingsSearchInput) filter() FindingsFilterInput {
	return FindingsFilterInput{
		Scope:    in.Scope,
		FilePath: in.FilePath,
		Category: in.Category,
		RuleKey:  in.RuleKey,
		Limit:    in.Limit,
	}
}

type FindingGetInput struct {
	ID    string `json:"id" jsonschema:"Finding id (UUID)"`
	Scope string `json:"scope,omitempty" jsonschema:"Configuration scope (default: the configured scope)"`
}

type TrackReportInput struct {
	Path     string `json:"path" jsonschema:"JSON or YAML analyzer report: a path relative to the project root, or an http(s) URL"`
	NoServer bool   `json:"noServer,omitempty" jsonschema:"Ignore server findings in the report"`
}

// =============================================================================
// Registration
// =============================================================================

func (s *MCPServer) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name: "known_findings_list",
		Description: `List the known findings: the issues and hotspots tracked by the last
analysis of each file, with their stable ids and introduction dates.

Filter by file (substring), category (issue, hotspot) or rule key.`,
	}, s.handleList)

	mcp.AddTool(s.server, &mcp.Tool{
		Name: "known_findings_search",
		Description: `Full-text search over known findings by message or rule key.

**Examples:**
- "password" → hardcoded credential hotspots
- "duplicated" → duplicated string literal issues
- "+ruleKey:go:S1192" → one rule`,
	}, s.handleSearch)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "known_findings_stats",
		Description: `Count known findings, broken down by category and rule.`,
	}, s.handleStats)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "known_finding_get",
		Description: `Get one known finding by id.`,
	}, s.handleGet)

	mcp.AddTool(s.server, &mcp.Tool{
		Name: "track_report",
		Description: `Track an analyzer report: match its findings against the known findings
of the same files, keep ids and introduction dates of matched findings,
and store the result. Returns every tracked finding, new ones flagged.`,
	}, s.handleTrackReport)

	mcpLog.Debug("tools registered")
}

// =============================================================================
// Handlers
// =============================================================================

func (s *MCPServer) listOptions(in FindingsFilterInput, defaultLimit int) (store.ListOptions, error) {
	opts := store.ListOptions{
		Scope:    in.Scope,
		FilePath: in.FilePath,
		RuleKey:  in.RuleKey,
		Limit:    in.Limit,
	}
	switch in.Scope {
	case "":
		opts.Scope = s.cfg.Scope
	case "*":
		opts.Scope = ""
	}
	if opts.Limit == 0 {
		opts.Limit = defaultLimit
	}
	if in.Category != "" {
		cat, err := tracking.ParseCategory(in.Category)
		if err != nil {
			return opts, err
		}
		opts.Category = cat
	}
	return opts, nil
}

func (s *MCPServer) handleList(_ context.Context, _ *mcp.CallToolRequest, input FindingsFilterInput) (*mcp.CallToolResult, any, error) {
	mcpLog.WithFields(logrus.Fields{"file": input.FilePath, "category": input.Category, "rule": input.RuleKey}).Debug("tool: known_findings_list")

	opts, err := s.listOptions(input, store.DefaultListLimit)
	if err != nil {
		return errorResult(err.Error()), nil, nil
	}
	records, err := s.store.ListKnownFindings(opts)
	if err != nil {
		return errorResult(fmt.Sprintf("list failed: %v", err)), nil, nil
	}
	return textResult(formatRecordsMarkdown(records)), nil, nil
}

func (s *MCPServer) handleSearch(_ context.Context, _ *mcp.CallToolRequest, input FindingsSearchInput) (*mcp.CallToolResult, any, error) {
	mcpLog.WithField("query", input.Query).Debug("tool: known_findings_search")

	if input.Query == "" {
		return errorResult("query is required"), nil, nil
	}
	opts, err := s.listOptions(input.filter(), store.DefaultSearchLimit)
	if err != nil {
		return errorResult(err.Error()), nil, nil
	}
	results, err := s.store.SearchKnownFindings(input.Query, opts)
	if err != nil {
		return errorResult(fmt.Sprintf("search failed: %v", err)), nil, nil
	}
	records := make([]*store.Record, len(results))
	for i, r := range results {
		records[i] = r.Record
	}
	return textResult(formatRecordsMarkdown(records)), nil, nil
}

func (s *MCPServer) handleStats(_ context.Context, _ *mcp.CallToolRequest, input FindingsFilterInput) (*mcp.CallToolResult, any, error) {
	mcpLog.Debug("tool: known_findings_stats")

	opts, err := s.listOptions(input, 0)
	if err != nil {
		return errorResult(err.Error()), nil, nil
	}
	stats, err := s.store.Stats(opts)
	if err != nil {
		return errorResult(fmt.Sprintf("stats failed: %v", err)), nil, nil
	}
	return textResult(formatStats(stats)), nil, nil
}

func (s *MCPServer) handleGet(_ context.Context, _ *mcp.CallToolRequest, input FindingGetInput) (*mcp.CallToolResult, any, error) {
	mcpLog.WithField("id", input.ID).Debug("tool: known_finding_get")

	scope := input.Scope
	if scope == "" {
		scope = s.cfg.Scope
	}
	r, err := s.store.GetKnownFinding(scope, input.ID)
	if errors.Is(err, store.ErrNotFound) {
		return errorResult(fmt.Sprintf("no known finding %s in scope %s", input.ID, scope)), nil, nil
	}
	if err != nil {
		return errorResult(err.Error()), nil, nil
	}
	return textResult(formatRecordMarkdown(r)), nil, nil
}

func (s *MCPServer) handleTrackReport(ctx context.Context, _ *mcp.CallToolRequest, input TrackReportInput) (*mcp.CallToolResult, any, error) {
	mcpLog.WithField("path", input.Path).Debug("tool: track_report")

	if input.Path == "" {
		return errorResult("path is required"), nil, nil
	}
	path := input.Path
	if !httputil.IsURL(path) && !filepath.IsAbs(path) {
		path = filepath.Join(s.cfg.BaseDir, path)
	}
	summary, err := s.tracker.track(ctx, path, !input.NoServer)
	if err != nil {
		return errorResult(err.Error()), nil, nil
	}
	return textResult(formatSummaryMarkdown(summary)), nil, nil
}
