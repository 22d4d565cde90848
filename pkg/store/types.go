package store

import (
	"strings"

	"github.com/SonarSource/sonarlint-core-sub018/pkg/tracking"
)

// Result limits.
const (
	DefaultSearchLimit = 20
	DefaultListLimit   = 100
)

// Record is a known finding together with where it belongs.
type Record struct {
	Scope    string            `json:"scope"`
	FilePath string            `json:"file"`
	Category tracking.Category `json:"category"`
	tracking.KnownFinding
}

// ListOptions filters known findings.
type ListOptions struct {
	Scope    string            // Exact configuration scope
	FilePath string            // Substring of the file path
	Category tracking.Category // Issue or hotspot
	RuleKey  string            // Exact rule key
	Limit    int               // Max results (0 = default, <0 = unlimited)
}

func (o ListOptions) matches(r *Record) bool {
	if o.Scope != "" && r.Scope != o.Scope {
		return false
	}
	if o.FilePath != "" && !strings.Contains(r.FilePath, o.FilePath) {
		return false
	}
	if o.Category != "" && r.Category != o.Category {
		return false
	}
	if o.RuleKey != "" && r.RuleKey != o.RuleKey {
		return false
	}
	return true
}

// SearchResult pairs a record with its search relevance score.
type SearchResult struct {
	Record *Record
	Score  float64
}

// Stats holds aggregate counts of known findings.
type Stats struct {
	Total      int                       `json:"total"`
	Files      int                       `json:"files"`
	ByCategory map[tracking.Category]int `json:"byCategory"`
	ByRule     map[string]int            `json:"byRule"`
}

// location addresses one record inside the bucket tree.
type location struct {
	Scope    string            `json:"scope"`
	FilePath string            `json:"file"`
	Category tracking.Category `json:"category"`
	Seq      uint64            `json:"seq"`
}

// docID is the key of a record in the finding index and the search index.
// Ids are UUIDs, so the last slash separates the scope from the id.
func docID(scope, id string) string {
	return scope + "/" + id
}

func splitDocID(doc string) (scope, id string) {
	i := strings.LastIndex(doc, "/")
	if i < 0 {
		return "", doc
	}
	return doc[:i], doc[i+1:]
}
