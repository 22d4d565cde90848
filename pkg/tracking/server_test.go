package tracking

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func trackedAt(line int, hash, rule string) *TrackedIssue {
	return &TrackedIssue{
		ID:               uuid.New(),
		FilePath:         "Foo.java",
		IntroductionDate: day("2025-01-01"),
		IsNew:            true,
		RawFinding: RawFinding{
			RuleKey:   rule,
			Message:   "message",
			Severity:  "MAJOR",
			TextRange: rangeAt(line, hash),
		},
	}
}

func TestReconcileWithServer_Issues(t *testing.T) {
	local := []*TrackedIssue{trackedAt(3, "h3", "S1"), trackedAt(9, "h9", "S2")}
	created := time.Date(2022, 8, 1, 10, 0, 0, 0, time.UTC)
	server := []ServerFinding{{
		Key:          "AX-42",
		RuleKey:      "S1",
		Message:      "message",
		TextRange:    rangeAt(4, "h3"),
		CreationDate: created,
		Resolved:     true,
		UserSeverity: "BLOCKER",
	}}

	n := ReconcileWithServer(CategoryIssue, local, server)

	assert.Equal(t, 1, n)
	assert.Equal(t, "AX-42", local[0].ServerKey)
	assert.Equal(t, created, local[0].IntroductionDate)
	assert.True(t, local[0].Resolved)
	assert.Equal(t, "BLOCKER", local[0].Severity)

	assert.Empty(t, local[1].ServerKey)
	assert.Equal(t, "MAJOR", local[1].Severity)
	assert.False(t, local[1].Resolved)
}

func TestReconcileWithServer_ServerKeyWinsOverLocation(t *testing.T) {
	known := trackedAt(3, "h3", "S1")
	known.ServerKey = "AX-1"
	server := []ServerFinding{
		{Key: "AX-2", RuleKey: "S1", Message: "message", TextRange: rangeAt(3, "h3")},
		{Key: "AX-1", RuleKey: "S1", Message: "moved", TextRange: rangeAt(80, "other")},
	}

	ReconcileWithServer(CategoryIssue, []*TrackedIssue{known}, server)

	assert.Equal(t, "AX-1", known.ServerKey)
}

func TestReconcileWithServer_Hotspots(t *testing.T) {
	local := []*TrackedIssue{trackedAt(3, "h3", "S2068")}
	local[0].Category = CategoryHotspot
	local[0].VulnerabilityProbability = "LOW"
	server := []ServerFinding{{
		Key:                      "HS-1",
		RuleKey:                  "S2068",
		TextRange:                rangeAt(3, "h3"),
		ReviewStatus:             "SAFE",
		VulnerabilityProbability: "HIGH",
	}}

	n := ReconcileWithServer(CategoryHotspot, local, server)

	assert.Equal(t, 1, n)
	assert.Equal(t, "HS-1", local[0].ServerKey)
	assert.Equal(t, "SAFE", local[0].ReviewStatus)
	assert.Equal(t, "HIGH", local[0].VulnerabilityProbability)
	assert.Equal(t, day("2025-01-01"), local[0].IntroductionDate, "zero creation date keeps the local one")
	assert.True(t, local[0].Resolved)
}

func TestReconcileWithServer_HotspotResolution(t *testing.T) {
	tests := []struct {
		status   string
		resolved bool
	}{
		{"TO_REVIEW", false},
		{"ACKNOWLEDGED", false},
		{"SAFE", true},
		{"FIXED", true},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.status, func(t *testing.T) {
			local := []*TrackedIssue{trackedAt(3, "h3", "S2068")}
			local[0].Resolved = !tt.resolved
			server := []ServerFinding{{Key: "HS-1", RuleKey: "S2068", TextRange: rangeAt(3, "h3"), ReviewStatus: tt.status}}

			require.Equal(t, 1, ReconcileWithServer(CategoryHotspot, local, server))
			assert.Equal(t, tt.resolved, local[0].Resolved)
		})
	}
}

func TestReconcileWithServer_IssueTypeAndImpacts(t *testing.T) {
	local := []*TrackedIssue{trackedAt(3, "h3", "S1"), trackedAt(9, "h9", "S2")}
	local[0].Type = "CODE_SMELL"
	local[1].Type = "CODE_SMELL"
	local[1].Impacts = []Impact{{SoftwareQuality: "MAINTAINABILITY", Severity: "LOW"}}
	server := []ServerFinding{
		{
			Key:       "AX-1",
			RuleKey:   "S1",
			TextRange: rangeAt(3, "h3"),
			Type:      "BUG",
			Impacts:   []Impact{{SoftwareQuality: "RELIABILITY", Severity: "HIGH"}},
		},
		{Key: "AX-2", RuleKey: "S2", TextRange: rangeAt(9, "h9")},
	}

	require.Equal(t, 2, ReconcileWithServer(CategoryIssue, local, server))

	assert.Equal(t, "BUG", local[0].Type)
	assert.Equal(t, []Impact{{SoftwareQuality: "RELIABILITY", Severity: "HIGH"}}, local[0].Impacts)
	assert.Equal(t, "CODE_SMELL", local[1].Type, "empty server type keeps the local one")
	assert.Equal(t, []Impact{{SoftwareQuality: "MAINTAINABILITY", Severity: "LOW"}}, local[1].Impacts)
}

func TestReconcileWithServer_Empty(t *testing.T) {
	assert.Zero(t, ReconcileWithServer(CategoryIssue, nil, []ServerFinding{{Key: "k"}}))
	assert.Zero(t, ReconcileWithServer(CategoryIssue, []*TrackedIssue{trackedAt(1, "h", "S1")}, nil))
}
