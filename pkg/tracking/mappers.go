package tracking

import "github.com/SonarSource/sonarlint-core-sub018/pkg/tracking/matching"

// Attribute mappers for every finding shape that takes part in matching.
var (
	RawFindingMapper = matching.MapperFunc[*RawFinding](func(r *RawFinding) matching.Attributes {
		return attributes(r.RuleKey, r.Message, "", r.TextRange, r.LineWithHash)
	})

	KnownFindingMapper = matching.MapperFunc[KnownFinding](func(k KnownFinding) matching.Attributes {
		return attributes(k.RuleKey, k.Message, k.ServerKey, k.TextRange, k.LineWithHash)
	})

	TrackedIssueMapper = matching.MapperFunc[*TrackedIssue](func(t *TrackedIssue) matching.Attributes {
		return attributes(t.RuleKey, t.Message, t.ServerKey, t.TextRange, t.LineWithHash)
	})

	ServerFindingMapper = matching.MapperFunc[ServerFinding](func(s ServerFinding) matching.Attributes {
		return attributes(s.RuleKey, s.Message, s.Key, s.TextRange, s.LineWithHash)
	})

	LocalOnlyIssueMapper = matching.MapperFunc[LocalOnlyIssue](func(l LocalOnlyIssue) matching.Attributes {
		return attributes(l.RuleKey, l.Message, "", l.TextRange, l.LineWithHash)
	})
)

func attributes(ruleKey, message, serverKey string, tr *TextRangeWithHash, lh *LineWithHash) matching.Attributes {
	a := matching.Attributes{
		RuleKey:   ruleKey,
		Message:   message,
		Line:      lineOf(tr, lh),
		ServerKey: serverKey,
	}
	if tr != nil {
		a.TextRangeHash = tr.Hash
	}
	if lh != nil {
		a.LineHash = lh.Hash
	}
	return a
}
