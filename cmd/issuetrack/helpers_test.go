package main

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/SonarSource/sonarlint-core-sub018/pkg/service"
	"github.com/SonarSource/sonarlint-core-sub018/pkg/tracking"
	"github.com/SonarSource/sonarlint-core-sub018/pkg/tracking/matching"
)

func TestTruncate(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"short", 10, "short"},
		{"exactly ten", 11, "exactly ten"},
		{"a longer message", 10, "a longe..."},
		{"tiny limit", 3, "tiny limit"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, truncate(tt.in, tt.n), tt.in)
	}
}

func TestLocation(t *testing.T) {
	assert.Equal(t, "a.go:12", location("a.go", 12))
	assert.Equal(t, "a.go", location("a.go", 0))
}

func TestShortID(t *testing.T) {
	id := uuid.MustParse("0b7e3c1a-2f44-4b51-9a1e-5c6d7e8f9a0b")
	assert.Equal(t, "0b7e3c1a", shortID(id))
}

func TestSortedCounts(t *testing.T) {
	got := sortedCounts(map[string]int{"b": 2, "a": 2, "c": 5})
	assert.Equal(t, []string{"c", "a", "b"}, got)
}

func TestStatus(t *testing.T) {
	assert.Equal(t, "new", status(&tracking.TrackedIssue{IsNew: true}))
	assert.Equal(t, "matched (line+message)", status(&tracking.TrackedIssue{MatchedBy: matching.ByLineAndMessage}))
}

func TestTrackedRows(t *testing.T) {
	at := func(file string, line int, cat tracking.Category) *tracking.TrackedIssue {
		return &tracking.TrackedIssue{
			FilePath:   file,
			Category:   cat,
			RawFinding: tracking.RawFinding{LineWithHash: &tracking.LineWithHash{Number: line}},
		}
	}
	s := &service.Summary{
		Issues: map[string][]*tracking.TrackedIssue{
			"b.go": {at("b.go", 1, tracking.CategoryIssue)},
			"a.go": {at("a.go", 9, tracking.CategoryIssue)},
		},
		Hotspots: map[string][]*tracking.TrackedIssue{
			"a.go": {at("a.go", 2, tracking.CategoryHotspot)},
		},
	}

	rows := trackedRows(s)

	var got []string
	for _, r := range rows {
		got = append(got, location(r.FilePath, r.Line()))
	}
	assert.Equal(t, []string{"a.go:2", "a.go:9", "b.go:1"}, got)
}
