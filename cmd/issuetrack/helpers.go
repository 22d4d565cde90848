package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/olekukonko/tablewriter"

	"github.com/SonarSource/sonarlint-core-sub018/pkg/service"
	"github.com/SonarSource/sonarlint-core-sub018/pkg/store"
	"github.com/SonarSource/sonarlint-core-sub018/pkg/tracking"
)

const dateLayout = "2006-01-02 15:04"

// truncate shortens a string to n characters with ellipsis.
func truncate(s string, n int) string {
	if n < 4 || len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

// location is path:line, or path alone for file-level findings.
func location(path string, line int) string {
	if line > 0 {
		return fmt.Sprintf("%s:%d", path, line)
	}
	return path
}

func shortID(id uuid.UUID) string {
	return id.String()[:8]
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// trackedRows flattens issues and hotspots into table rows, by file then
// position.
func trackedRows(s *service.Summary) []*tracking.TrackedIssue {
	var all []*tracking.TrackedIssue
	for _, perFile := range []map[string][]*tracking.TrackedIssue{s.Issues, s.Hotspots} {
		for _, issues := range perFile {
			all = append(all, issues...)
		}
	}
	sort.SliceStable(all, func(i, j int) bool {
		if all[i].FilePath != all[j].FilePath {
			return all[i].FilePath < all[j].FilePath
		}
		return all[i].Line() < all[j].Line()
	})
	return all
}

// status describes how an issue was tracked.
func status(t *tracking.TrackedIssue) string {
	if t.IsNew {
		return "new"
	}
	return "matched (" + t.MatchedBy.String() + ")"
}

func printTracked(w io.Writer, s *service.Summary) error {
	rows := trackedRows(s)
	if len(rows) == 0 {
		return nil
	}

	yellow := color.New(color.FgYellow).SprintFunc()
	green := color.New(color.FgGreen).SprintFunc()

	table := tablewriter.NewWriter(w)
	table.Header("ID", "Location", "Category", "Rule", "Status", "Introduced", "Message")
	for _, t := range rows {
		st := green(status(t))
		if t.IsNew {
			st = yellow(status(t))
		}
		if err := table.Append([]string{
			shortID(t.ID),
			location(t.FilePath, t.Line()),
			string(t.Category),
			t.RuleKey,
			st,
			t.IntroductionDate.Local().Format(dateLayout),
			truncate(t.Message, 60),
		}); err != nil {
			return err
		}
	}
	return table.Render()
}

func printRecords(w io.Writer, records []*store.Record) error {
	table := tablewriter.NewWriter(w)
	table.Header("ID", "Scope", "Location", "Category", "Rule", "Introduced", "Message")
	for _, r := range records {
		if err := table.Append([]string{
			shortID(r.ID),
			r.Scope,
			location(r.FilePath, r.Line()),
			string(r.Category),
			r.RuleKey,
			r.IntroductionDate.Local().Format(dateLayout),
			truncate(r.Message, 60),
		}); err != nil {
			return err
		}
	}
	return table.Render()
}

// sortedCounts returns the keys of m by descending count, then name.
func sortedCounts[K ~string](m map[K]int) []K {
	keys := make([]K, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if m[keys[i]] != m[keys[j]] {
			return m[keys[i]] > m[keys[j]]
		}
		return keys[i] < keys[j]
	})
	return keys
}
