package matching

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFinding struct {
	name          string
	ruleKey       string
	message       string
	line          int
	textRangeHash string
	lineHash      string
	serverKey     string
}

func newFake(name string) *fakeFinding {
	return &fakeFinding{name: name, ruleKey: "dummy rule key", message: "dummy message"}
}

func (f *fakeFinding) withRule(r string) *fakeFinding      { f.ruleKey = r; return f }
func (f *fakeFinding) withLine(l int) *fakeFinding         { f.line = l; return f }
func (f *fakeFinding) withRangeHash(h string) *fakeFinding { f.textRangeHash = h; return f }
func (f *fakeFinding) withLineHash(h string) *fakeFinding  { f.lineHash = h; return f }
func (f *fakeFinding) withMessage(m string) *fakeFinding   { f.message = m; return f }
func (f *fakeFinding) withServerKey(k string) *fakeFinding { f.serverKey = k; return f }

var fakeMapper = MapperFunc[*fakeFinding](func(f *fakeFinding) Attributes {
	return Attributes{
		RuleKey:       f.ruleKey,
		Message:       f.message,
		Line:          f.line,
		TextRangeHash: f.textRangeHash,
		LineHash:      f.lineHash,
		ServerKey:     f.serverKey,
	}
})

func newFakeMatcher() *Matcher[*fakeFinding, *fakeFinding] {
	return NewMatcher[*fakeFinding, *fakeFinding](fakeMapper, fakeMapper)
}

func TestMatcher_DifferentRuleKeyNeverMatches(t *testing.T) {
	result := newFakeMatcher().Match(
		[]*fakeFinding{newFake("a").withRule("ruleA")},
		[]*fakeFinding{newFake("b").withRule("ruleB")},
	)

	assert.Empty(t, result.MatchedLefts())
	assert.Len(t, result.UnmatchedLefts(), 1)
	assert.False(t, result.IsComplete())
}

func TestMatcher_SingleCriterion(t *testing.T) {
	tests := []struct {
		name   string
		base   *fakeFinding
		lefts  []*fakeFinding
		want   string
		wantBy Criterion
	}{
		{
			name: "line and text range hash",
			base: newFake("base").withLine(7).withRangeHash("same range hash"),
			lefts: []*fakeFinding{
				newFake("differentLine").withLine(8).withRangeHash("same range hash").withMessage("m1"),
				newFake("differentHash").withLine(7).withRangeHash("different range hash").withMessage("m2"),
				newFake("differentBoth").withLine(8).withRangeHash("different range hash").withMessage("m3"),
				newFake("same").withLine(7).withRangeHash("same range hash").withMessage("m4"),
			},
			want:   "same",
			wantBy: ByLineAndTextRangeHash,
		},
		{
			name: "line and line hash even with different message and range",
			base: newFake("base").withLine(7).withLineHash("same line hash").withMessage("different message").withRangeHash("different range hash"),
			lefts: []*fakeFinding{
				newFake("differentLine").withLine(8).withLineHash("same line hash").withMessage("x"),
				newFake("differentLineHash").withLine(7).withLineHash("different line hash"),
				newFake("differentBoth").withLine(8).withLineHash("different line hash"),
				newFake("same").withLine(7).withLineHash("same line hash"),
			},
			want:   "same",
			wantBy: ByLineAndLineHash,
		},
		{
			name: "line and message even with different hash",
			base: newFake("base").withLine(7).withMessage("same message").withRangeHash("different range hash"),
			lefts: []*fakeFinding{
				newFake("differentLine").withLine(8).withMessage("same message"),
				newFake("differentMessage").withLine(7).withMessage("different message"),
				newFake("differentBoth").withLine(8).withMessage("different message"),
				newFake("same").withLine(7).withMessage("same message"),
			},
			want:   "same",
			wantBy: ByLineAndMessage,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := newFakeMatcher().Match(tt.lefts, []*fakeFinding{tt.base})

			require.Equal(t, 1, result.Len())
			matched := result.MatchedLefts()
			require.Len(t, matched, 1)
			assert.Equal(t, tt.want, matched[0].name)

			idx := indexOf(tt.lefts, tt.want)
			got, ok := result.MatchOf(idx)
			require.True(t, ok)
			assert.Same(t, tt.base, got)

			tier, ok := result.TierOf(idx)
			require.True(t, ok)
			assert.Equal(t, tt.wantBy, tier)
		})
	}
}

func TestMatcher_ToleratesMissingPreviousLine(t *testing.T) {
	tests := []struct {
		name   string
		base   *fakeFinding
		left   *fakeFinding
		wantBy Criterion
	}{
		{"text range hash, no line before", newFake("base").withRangeHash("h"), newFake("l").withLine(8).withRangeHash("h"), ByTextRangeHashAndMessage},
		{"text range hash, different line", newFake("base").withLine(7).withRangeHash("h").withMessage("old"), newFake("l").withLine(8).withRangeHash("h").withMessage("new"), ByTextRangeHash},
		{"line hash, no line before", newFake("base").withLineHash("h").withMessage("old"), newFake("l").withLine(8).withLineHash("h").withRangeHash("new"), ByLineHash},
		{"line hash, different line", newFake("base").withLine(7).withLineHash("h").withMessage("old"), newFake("l").withLine(8).withLineHash("h"), ByTextRangeHash},
		{"server key, no line before", newFake("base").withServerKey("k"), newFake("l").withLine(8).withServerKey("k"), ByServerKey},
		{"server key, different line", newFake("base").withLine(7).withServerKey("k"), newFake("l").withLine(8).withServerKey("k"), ByServerKey},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := newFakeMatcher().Match([]*fakeFinding{tt.left}, []*fakeFinding{tt.base})

			got, ok := result.MatchOf(0)
			require.True(t, ok)
			assert.Same(t, tt.base, got)
			tier, _ := result.TierOf(0)
			assert.Equal(t, tt.wantBy, tier)
		})
	}
}

func TestMatcher_BlankServerKeysDoNotMatchEachOther(t *testing.T) {
	left := newFake("l").withRule("r1")
	right := newFake("r").withRule("r2")

	result := newFakeMatcher().Match([]*fakeFinding{left}, []*fakeFinding{right})

	assert.Equal(t, 0, result.Len())
}

func TestMatcher_TierPrecedence(t *testing.T) {
	// rangeOnly qualifies at tier 5 only; exact qualifies at tier 2.
	rangeOnly := newFake("rangeOnly").withRule("S1").withLine(30).withRangeHash("abc").withMessage("other")
	exact := newFake("exact").withRule("S1").withLine(10).withRangeHash("abc").withMessage("other too")
	raw := newFake("raw").withRule("S1").withLine(10).withRangeHash("abc").withMessage("reworded")

	result := newFakeMatcher().Match([]*fakeFinding{raw}, []*fakeFinding{rangeOnly, exact})

	got, ok := result.MatchOf(0)
	require.True(t, ok)
	assert.Same(t, exact, got)
	tier, _ := result.TierOf(0)
	assert.Equal(t, ByLineAndTextRangeHash, tier)
	assert.Equal(t, []*fakeFinding{rangeOnly}, result.UnmatchedRights())
}

func TestMatcher_AbsentAttributesCompareEqual(t *testing.T) {
	left := newFake("l").withRule("S1")
	right := newFake("r").withRule("S1")

	result := newFakeMatcher().Match([]*fakeFinding{left}, []*fakeFinding{right})

	got, ok := result.MatchOf(0)
	require.True(t, ok)
	assert.Same(t, right, got)
	tier, _ := result.TierOf(0)
	assert.Equal(t, ByLineAndTextRangeHash, tier)
}

func TestMatcher_NoLocationPairsAtFirstLocationTier(t *testing.T) {
	// Neither has a line nor a range, so the line hash and message never
	// get a say.
	left := newFake("l").withRule("S1").withLineHash("h1").withMessage("before")
	right := newFake("r").withRule("S1").withLineHash("h2").withMessage("after")

	result := newFakeMatcher().Match([]*fakeFinding{left}, []*fakeFinding{right})

	got, ok := result.MatchOf(0)
	require.True(t, ok)
	assert.Same(t, right, got)
	tier, _ := result.TierOf(0)
	assert.Equal(t, ByLineAndTextRangeHash, tier)
}

func TestMatcher_EachRightTakenOnce(t *testing.T) {
	k1 := newFake("K1").withRule("S1").withLineHash("h")
	k2 := newFake("K2").withRule("S1").withLineHash("h")
	r1 := newFake("R1").withRule("S1").withLineHash("h")
	r2 := newFake("R2").withRule("S1").withLineHash("h")
	r3 := newFake("R3").withRule("S1").withLineHash("h")

	result := newFakeMatcher().Match([]*fakeFinding{r1, r2, r3}, []*fakeFinding{k1, k2})

	first, ok := result.MatchOf(0)
	require.True(t, ok)
	second, ok := result.MatchOf(1)
	require.True(t, ok)
	assert.Same(t, k1, first, "first candidate in insertion order wins")
	assert.Same(t, k2, second)

	_, ok = result.MatchOf(2)
	assert.False(t, ok)
	assert.Equal(t, []*fakeFinding{r3}, result.UnmatchedLefts())
	assert.Empty(t, result.UnmatchedRights())
}

func TestMatcher_RemovesOnlyTheMatchedCandidate(t *testing.T) {
	// k1 and k2 share a line-hash key; consuming k1 for r1 at tier 2 must
	// not hide k2 from r2 in a later tier.
	k1 := newFake("K1").withRule("S1").withLine(5).withRangeHash("rh").withLineHash("lh")
	k2 := newFake("K2").withRule("S1").withLine(9).withLineHash("lh").withMessage("m2")
	r1 := newFake("R1").withRule("S1").withLine(5).withRangeHash("rh").withLineHash("lh")
	r2 := newFake("R2").withRule("S1").withLine(40).withLineHash("lh").withMessage("m3")

	result := newFakeMatcher().Match([]*fakeFinding{r1, r2}, []*fakeFinding{k1, k2})

	require.True(t, result.IsComplete())
	got, _ := result.MatchOf(1)
	assert.Same(t, k2, got)
}

func TestMatcher_DoesNotMutateInputs(t *testing.T) {
	lefts := []*fakeFinding{newFake("a").withLine(1), newFake("b").withLine(2)}
	rights := []*fakeFinding{newFake("c").withLine(1)}
	leftsCopy := append([]*fakeFinding(nil), lefts...)
	rightsCopy := append([]*fakeFinding(nil), rights...)

	newFakeMatcher().Match(lefts, rights)

	assert.Equal(t, leftsCopy, lefts)
	assert.Equal(t, rightsCopy, rights)
}

func TestMatcher_EmptyInputs(t *testing.T) {
	m := newFakeMatcher()

	result := m.Match(nil, []*fakeFinding{newFake("r")})
	assert.True(t, result.IsComplete())
	assert.Equal(t, 0, result.Len())

	result = m.Match([]*fakeFinding{newFake("l")}, nil)
	assert.False(t, result.IsComplete())
	assert.Len(t, result.UnmatchedLefts(), 1)
}

func TestCriterion_String(t *testing.T) {
	assert.Equal(t, "server-key", ByServerKey.String())
	assert.Equal(t, "line-hash", ByLineHash.String())
	assert.Equal(t, "unknown", Criterion(42).String())
	assert.Len(t, Criteria, 7)
}

func indexOf(items []*fakeFinding, name string) int {
	for i, f := range items {
		if f.name == name {
			return i
		}
	}
	return -1
}
