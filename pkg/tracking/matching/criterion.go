package matching

import "fmt"

// Criterion identifies one tier of the matching cascade.
type Criterion int

// Criteria, most discriminating first. The order is the order in which the
// Matcher applies them.
const (
	// ByServerKey matches findings sharing a non-blank server key.
	ByServerKey Criterion = iota + 1
	// ByLineAndTextRangeHash matches rule, line and text range hash; the
	// message may have been reworded.
	ByLineAndTextRangeHash
	// ByTextRangeHashAndMessage matches rule, message and text range hash;
	// the position may have drifted.
	ByTextRangeHashAndMessage
	// ByLineAndMessage matches rule, line and message.
	ByLineAndMessage
	// ByTextRangeHash matches rule and text range hash only.
	ByTextRangeHash
	// ByLineAndLineHash matches rule, line and line hash.
	ByLineAndLineHash
	// ByLineHash matches rule and line hash only.
	ByLineHash
)

// Criteria lists every tier in application order.
var Criteria = []Criterion{
	ByServerKey,
	ByLineAndTextRangeHash,
	ByTextRangeHashAndMessage,
	ByLineAndMessage,
	ByTextRangeHash,
	ByLineAndLineHash,
	ByLineHash,
}

var criterionNames = map[Criterion]string{
	ByServerKey:               "server-key",
	ByLineAndTextRangeHash:    "line+range-hash",
	ByTextRangeHashAndMessage: "range-hash+message",
	ByLineAndMessage:          "line+message",
	ByTextRangeHash:           "range-hash",
	ByLineAndLineHash:         "line+line-hash",
	ByLineHash:                "line-hash",
}

func (c Criterion) String() string {
	if name, ok := criterionNames[c]; ok {
		return name
	}
	return "unknown"
}

// MarshalText encodes c by name.
func (c Criterion) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText decodes a name produced by MarshalText.
func (c *Criterion) UnmarshalText(text []byte) error {
	for crit, name := range criterionNames {
		if name == string(text) {
			*c = crit
			return nil
		}
	}
	return fmt.Errorf("unknown matching criterion %q", text)
}

// key is the composite key of a finding under one criterion. Fields that
// the criterion ignores stay at their zero value, and the criterion itself
// is part of the key so keys of different tiers never collide.
type key struct {
	criterion     Criterion
	ruleKey       string
	message       string
	line          int
	textRangeHash string
	lineHash      string
	serverKey     string
}

// keyOf builds the key of a under c. The boolean is false when the finding
// cannot take part in this tier at all (a blank server key never matches).
func (c Criterion) keyOf(a Attributes) (key, bool) {
	k := key{criterion: c}
	switch c {
	case ByServerKey:
		if a.ServerKey == "" {
			return key{}, false
		}
		k.serverKey = a.ServerKey
	case ByLineAndTextRangeHash:
		// A missing line (0) and a missing range hash ("") are values like
		// any other, so two findings without line and range pair here
		// already, whatever their messages and line hashes.
		k.ruleKey = a.RuleKey
		k.line = a.Line
		k.textRangeHash = a.TextRangeHash
	case ByTextRangeHashAndMessage:
		k.ruleKey = a.RuleKey
		k.message = a.Message
		k.textRangeHash = a.TextRangeHash
	case ByLineAndMessage:
		k.ruleKey = a.RuleKey
		k.line = a.Line
		k.message = a.Message
	case ByTextRangeHash:
		k.ruleKey = a.RuleKey
		k.textRangeHash = a.TextRangeHash
	case ByLineAndLineHash:
		k.ruleKey = a.RuleKey
		k.line = a.Line
		k.lineHash = a.LineHash
	case ByLineHash:
		k.ruleKey = a.RuleKey
		k.lineHash = a.LineHash
	default:
		return key{}, false
	}
	return k, true
}
