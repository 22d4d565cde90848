package store

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SonarSource/sonarlint-core-sub018/pkg/tracking"
)

func localOnlyIssue(rule string, line int) tracking.LocalOnlyIssue {
	return tracking.LocalOnlyIssue{
		ID:           uuid.New(),
		RuleKey:      rule,
		Message:      "message of " + rule,
		LineWithHash: &tracking.LineWithHash{Number: line, Hash: "line-" + rule},
	}
}

func TestLocalOnlyIssues_RoundTripAndReplace(t *testing.T) {
	s, _ := setupTestStore(t)
	resolved := localOnlyIssue("S1", 3)
	resolved.Resolution = &tracking.LocalResolution{
		Status:  tracking.ResolutionFalsePositive,
		Date:    time.Date(2025, 2, 3, 4, 5, 6, 0, time.UTC),
		Comment: "not reachable",
	}
	want := []tracking.LocalOnlyIssue{resolved, localOnlyIssue("S2", 9)}

	require.NoError(t, s.StoreLocalOnlyIssues("proj", "a.go", want))
	got, err := s.LoadLocalOnlyIssues("proj", "a.go")
	require.NoError(t, err)
	assert.Equal(t, want, got)

	replacement := []tracking.LocalOnlyIssue{localOnlyIssue("S3", 1)}
	require.NoError(t, s.StoreLocalOnlyIssues("proj", "a.go", replacement))
	got, err = s.LoadLocalOnlyIssues("proj", "a.go")
	require.NoError(t, err)
	assert.Equal(t, replacement, got)

	require.NoError(t, s.StoreLocalOnlyIssues("proj", "a.go", nil))
	got, err = s.LoadLocalOnlyIssues("proj", "a.go")
	require.NoError(t, err)
	assert.Empty(t, got)

	assert.Error(t, s.StoreLocalOnlyIssues("", "a.go", want))
}

func TestLocalOnlyIssues_KeptApartFromKnownFindings(t *testing.T) {
	s, _ := setupTestStore(t)
	require.NoError(t, s.StoreLocalOnlyIssues("proj", "a.go", []tracking.LocalOnlyIssue{localOnlyIssue("S1", 3)}))

	all, err := s.ListKnownFindings(ListOptions{})
	require.NoError(t, err)
	assert.Empty(t, all)
	stats, err := s.Stats(ListOptions{})
	require.NoError(t, err)
	assert.Zero(t, stats.Total)
}

func TestResolveLocalOnlyIssue(t *testing.T) {
	s, _ := setupTestStore(t)
	first, second := localOnlyIssue("S1", 3), localOnlyIssue("S2", 9)
	require.NoError(t, s.StoreLocalOnlyIssues("proj", "a.go", []tracking.LocalOnlyIssue{first}))
	require.NoError(t, s.StoreLocalOnlyIssues("proj", "b.go", []tracking.LocalOnlyIssue{second}))

	resolution := &tracking.LocalResolution{Status: tracking.ResolutionWontFix, Date: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	rec, err := s.ResolveLocalOnlyIssue("proj", second.ID.String(), resolution)
	require.NoError(t, err)
	assert.Equal(t, "b.go", rec.FilePath)
	assert.Equal(t, resolution, rec.Resolution)

	got, err := s.LoadLocalOnlyIssues("proj", "b.go")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, resolution, got[0].Resolution)

	rec, err = s.ResolveLocalOnlyIssue("proj", second.ID.String(), nil)
	require.NoError(t, err)
	assert.Nil(t, rec.Resolution)

	_, err = s.ResolveLocalOnlyIssue("other", second.ID.String(), resolution)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.ResolveLocalOnlyIssue("proj", uuid.NewString(), resolution)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListLocalOnlyIssues(t *testing.T) {
	s, _ := setupTestStore(t)
	require.NoError(t, s.StoreLocalOnlyIssues("proj", "a.go", []tracking.LocalOnlyIssue{localOnlyIssue("S1", 3), localOnlyIssue("S2", 4)}))
	require.NoError(t, s.StoreLocalOnlyIssues("other", "a.go", []tracking.LocalOnlyIssue{localOnlyIssue("S3", 5)}))

	proj, err := s.ListLocalOnlyIssues("proj")
	require.NoError(t, err)
	require.Len(t, proj, 2)
	assert.Equal(t, "S1", proj[0].RuleKey)
	assert.Equal(t, "proj", proj[0].Scope)

	all, err := s.ListLocalOnlyIssues("")
	require.NoError(t, err)
	assert.Len(t, all, 3)

	_, err = s.ClearScope("proj")
	require.NoError(t, err)
	proj, err = s.ListLocalOnlyIssues("proj")
	require.NoError(t, err)
	assert.Empty(t, proj)

	require.NoError(t, s.Clear())
	all, err = s.ListLocalOnlyIssues("")
	require.NoError(t, err)
	assert.Empty(t, all)
}
