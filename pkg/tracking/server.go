package tracking

import (
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/SonarSource/sonarlint-core-sub018/pkg/tracking/matching"
)

var serverMatcher = matching.NewMatcher[*TrackedIssue, ServerFinding](TrackedIssueMapper, ServerFindingMapper)

// ReconcileWithServer matches the tracked findings of one file and category
// against the findings the server knows for that file, and copies the
// server-side state onto every matched tracked finding:
//
//   - issues take the server key, the creation date as introduction date,
//     the resolution, and the user severity, type and impacts when set;
//   - hotspots take the server key, the creation date, the review status
//     and the vulnerability probability. SAFE and FIXED hotspots count as
//     resolved.
//
// Tracked findings without a server counterpart are left unchanged. It
// returns the number of matched findings.
func ReconcileWithServer(category Category, tracked []*TrackedIssue, server []ServerFinding) int {
	if len(tracked) == 0 || len(server) == 0 {
		return 0
	}

	result := serverMatcher.Match(tracked, server)
	for i, issue := range tracked {
		sf, ok := result.MatchOf(i)
		if !ok {
			continue
		}
		issue.ServerKey = sf.Key
		if !sf.CreationDate.IsZero() {
			issue.IntroductionDate = sf.CreationDate
		}
		switch category {
		case CategoryHotspot:
			issue.ReviewStatus = sf.ReviewStatus
			issue.Resolved = hotspotResolved(sf.ReviewStatus)
			if sf.VulnerabilityProbability != "" {
				issue.VulnerabilityProbability = sf.VulnerabilityProbability
			}
		default:
			issue.Resolved = sf.Resolved
			if sf.UserSeverity != "" {
				issue.Severity = sf.UserSeverity
			}
			if sf.Type != "" {
				issue.Type = sf.Type
			}
			if len(sf.Impacts) > 0 {
				issue.Impacts = sf.Impacts
			}
		}
	}

	log.WithFields(logrus.Fields{
		"category": category,
		"matched":  result.Len(),
		"local":    len(tracked),
		"server":   len(server),
	}).Debug("reconciled with server")
	return result.Len()
}

func hotspotResolved(reviewStatus string) bool {
	switch strings.ToUpper(reviewStatus) {
	case "SAFE", "FIXED":
		return true
	}
	return false
}
