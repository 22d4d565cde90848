package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/SonarSource/sonarlint-core-sub018/pkg/service"
	"github.com/SonarSource/sonarlint-core-sub018/pkg/store"
)

// ============================================================================
// MCP result helpers
// ============================================================================

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: text},
		},
	}
}

func errorResult(message string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: "Error: " + message},
		},
		IsError: true,
	}
}

// ============================================================================
// Known finding formatting
// ============================================================================

func formatRecordLine(r *store.Record) string {
	return fmt.Sprintf("- [%s] %s `%s` %s (id %s, introduced %s)\n",
		strings.ToUpper(string(r.Category)),
		location(r.FilePath, r.Line()),
		r.RuleKey,
		r.Message,
		r.ID,
		r.IntroductionDate.UTC().Format(time.RFC3339))
}

func formatRecordsMarkdown(records []*store.Record) string {
	if len(records) == 0 {
		return "No known findings."
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "Found %d known findings:\n\n", len(records))
	for _, r := range records {
		sb.WriteString(formatRecordLine(r))
	}
	return sb.String()
}

func formatRecordMarkdown(r *store.Record) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# %s `%s`\n\n", strings.ToUpper(string(r.Category)), r.RuleKey)
	fmt.Fprintf(&sb, "**Message:** %s\n\n", r.Message)
	fmt.Fprintf(&sb, "- **ID:** %s\n", r.ID)
	fmt.Fprintf(&sb, "- **Scope:** %s\n", r.Scope)
	fmt.Fprintf(&sb, "- **Location:** %s\n", location(r.FilePath, r.Line()))
	fmt.Fprintf(&sb, "- **Introduced:** %s\n", r.IntroductionDate.UTC().Format(time.RFC3339))
	if r.ServerKey != "" {
		fmt.Fprintf(&sb, "- **Server key:** %s\n", r.ServerKey)
	}
	return sb.String()
}

func formatSummaryMarkdown(s *service.Summary) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Analysis %s (scope %s): %d files, %d new, %d matched",
		s.AnalysisID, s.Scope, s.Files, s.New, s.Matched)
	if s.ServerMatched > 0 {
		fmt.Fprintf(&sb, ", %d matched on server", s.ServerMatched)
	}
	if s.Skipped > 0 {
		fmt.Fprintf(&sb, ", %d without file skipped", s.Skipped)
	}
	sb.WriteString("\n\n")

	for _, t := range trackedRows(s) {
		st := status(t)
		if t.IsNew {
			st = "**new**"
		}
		fmt.Fprintf(&sb, "- [%s] %s `%s` %s (id %s, %s, introduced %s)\n",
			strings.ToUpper(string(t.Category)),
			location(t.FilePath, t.Line()),
			t.RuleKey,
			t.Message,
			t.ID,
			st,
			t.IntroductionDate.UTC().Format(time.RFC3339))
	}
	return sb.String()
}
