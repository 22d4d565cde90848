package store

import "github.com/SonarSource/sonarlint-core-sub018/pkg/tracking"

// KnownFindingsStore persists the known findings of every configuration
// scope, file and category.
type KnownFindingsStore interface {
	// LoadKnownFindings returns the findings of one file and category in
	// the order they were stored. A file never stored yields no findings.
	LoadKnownFindings(scope, filePath string, category tracking.Category) ([]tracking.KnownFinding, error)
	// StoreKnownFindings replaces the findings of one file and category.
	StoreKnownFindings(scope, filePath string, category tracking.Category, findings []tracking.KnownFinding) error
	// LoadSnapshot builds a session snapshot for the given files, or for
	// every file of the scope when filePaths is empty.
	LoadSnapshot(scope string, filePaths []string) (tracking.KnownFindings, error)

	// LoadLocalOnlyIssues returns the local-only issues of one file in the
	// order they were stored.
	LoadLocalOnlyIssues(scope, filePath string) ([]tracking.LocalOnlyIssue, error)
	// StoreLocalOnlyIssues replaces the local-only issues of one file.
	StoreLocalOnlyIssues(scope, filePath string, issues []tracking.LocalOnlyIssue) error
	ListLocalOnlyIssues(scope string) ([]*LocalOnlyRecord, error)
	// ResolveLocalOnlyIssue sets the resolution of the local-only issue id
	// in scope. A nil resolution reopens it. ErrNotFound when absent.
	ResolveLocalOnlyIssue(scope, id string, resolution *tracking.LocalResolution) (*LocalOnlyRecord, error)

	GetKnownFinding(scope, id string) (*Record, error)
	ListKnownFindings(opts ListOptions) ([]*Record, error)
	SearchKnownFindings(query string, opts ListOptions) ([]*SearchResult, error)
	Stats(opts ListOptions) (*Stats, error)
	ClearScope(scope string) (int, error)
	Clear() error
	Close() error
}

var _ KnownFindingsStore = (*BoltKnownFindingsStore)(nil)
