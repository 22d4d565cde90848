package service

import (
	"github.com/sirupsen/logrus"

	"github.com/SonarSource/sonarlint-core-sub018/pkg/tracking"
)

// Reporter receives tracked findings: each one as soon as it is tracked,
// then the full per-file result when the analysis finishes.
// Implementations must be safe for concurrent use.
type Reporter interface {
	StreamIssue(analysisID string, issue *tracking.TrackedIssue)
	ReportTrackedFindings(analysisID string, issues, hotspots map[string][]*tracking.TrackedIssue)
}

// LogReporter logs tracked findings at debug level.
type LogReporter struct{}

// StreamIssue implements Reporter.
func (LogReporter) StreamIssue(analysisID string, issue *tracking.TrackedIssue) {
	log.WithFields(logrus.Fields{
		"analysis": analysisID,
		"file":     issue.FilePath,
		"category": issue.Category,
		"rule":     issue.RuleKey,
		"id":       issue.ID,
		"new":      issue.IsNew,
	}).Debug("tracked")
}

// ReportTrackedFindings implements Reporter.
func (LogReporter) ReportTrackedFindings(analysisID string, issues, hotspots map[string][]*tracking.TrackedIssue) {
	log.WithFields(logrus.Fields{
		"analysis":     analysisID,
		"issueFiles":   len(issues),
		"hotspotFiles": len(hotspots),
	}).Debug("tracked findings reported")
}

// NopReporter discards everything.
type NopReporter struct{}

// StreamIssue implements Reporter.
func (NopReporter) StreamIssue(string, *tracking.TrackedIssue) {}

// ReportTrackedFindings implements Reporter.
func (NopReporter) ReportTrackedFindings(string, map[string][]*tracking.TrackedIssue, map[string][]*tracking.TrackedIssue) {
}
