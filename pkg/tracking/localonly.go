package tracking

import (
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/SonarSource/sonarlint-core-sub018/pkg/tracking/matching"
)

var localOnlyMatcher = matching.NewMatcher[*TrackedIssue, LocalOnlyIssue](TrackedIssueMapper, LocalOnlyIssueMapper)

// ReconcileWithLocalOnly runs after ReconcileWithServer on the issues of one
// file. Issues that got a server key are left alone. Every other issue is
// matched against the local-only issues stored for the file: a matched issue
// takes the local resolution, an unmatched one starts a new local-only issue
// under its own id.
//
// It returns the local-only issues to store for the file, one per issue
// without a server key, at the location of this run, and the number of
// issues that matched a stored one. Stored issues matching nothing are
// dropped.
func ReconcileWithLocalOnly(tracked []*TrackedIssue, stored []LocalOnlyIssue) ([]LocalOnlyIssue, int) {
	var candidates []*TrackedIssue
	for _, issue := range tracked {
		if issue.ServerKey == "" {
			candidates = append(candidates, issue)
		}
	}
	if len(candidates) == 0 {
		return nil, 0
	}

	result := localOnlyMatcher.Match(candidates, stored)
	out := make([]LocalOnlyIssue, 0, len(candidates))
	for i, issue := range candidates {
		local, ok := result.MatchOf(i)
		if !ok {
			out = append(out, issue.toLocalOnly(issue.ID, nil))
			continue
		}
		if local.Resolution != nil {
			issue.Resolved = true
			issue.Resolution = local.Resolution
		}
		out = append(out, issue.toLocalOnly(local.ID, local.Resolution))
	}

	log.WithFields(logrus.Fields{
		"matched": result.Len(),
		"issues":  len(candidates),
		"stored":  len(stored),
	}).Debug("reconciled with local-only issues")
	return out, result.Len()
}

func (t *TrackedIssue) toLocalOnly(id uuid.UUID, resolution *LocalResolution) LocalOnlyIssue {
	return LocalOnlyIssue{
		ID:           id,
		RuleKey:      t.RuleKey,
		Message:      t.Message,
		TextRange:    t.TextRange,
		LineWithHash: t.LineWithHash,
		Resolution:   resolution,
	}
}
