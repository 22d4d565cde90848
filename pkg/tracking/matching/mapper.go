// Package matching pairs findings from two collections across runs.
//
// A Matcher applies seven criteria in order, from the most discriminating
// (server key) to the least (rule key plus line hash), and pairs each left
// element with at most one right element. The element types are opaque to
// the matcher: an AttributesMapper extracts the comparable attributes of
// each side, so raw findings, known findings, and server findings can be
// matched against each other without depending on one another.
package matching

// Attributes is the normalized set of comparable attributes of a finding.
//
// Absent values use the zero value: Line is 0 when the finding has no line
// (lines are 1-based), and the string fields are empty when absent. Two
// findings that both lack an attribute compare equal on it.
type Attributes struct {
	RuleKey       string
	Message       string
	Line          int
	TextRangeHash string
	LineHash      string
	ServerKey     string
}

// AttributesMapper extracts matching attributes from a finding of type T.
type AttributesMapper[T any] interface {
	Attributes(item T) Attributes
}

// MapperFunc adapts a plain function to AttributesMapper.
type MapperFunc[T any] func(item T) Attributes

// Attributes calls f(item).
func (f MapperFunc[T]) Attributes(item T) Attributes {
	return f(item)
}
