package matching

// Matcher pairs elements of a left collection with elements of a right
// collection. It is stateless and safe for concurrent use.
type Matcher[L, R any] struct {
	left  AttributesMapper[L]
	right AttributesMapper[R]
}

// NewMatcher returns a Matcher using one mapper per side.
func NewMatcher[L, R any](left AttributesMapper[L], right AttributesMapper[R]) *Matcher[L, R] {
	return &Matcher[L, R]{left: left, right: right}
}

// Match applies every criterion in order and returns the recorded pairs.
// Neither input slice is modified. When several right elements share a key,
// the first one in input order is taken.
func (m *Matcher[L, R]) Match(lefts []L, rights []R) *Result[L, R] {
	result := newResult(lefts, rights)
	if len(lefts) == 0 || len(rights) == 0 {
		return result
	}

	leftAttrs := make([]Attributes, len(lefts))
	for i, l := range lefts {
		leftAttrs[i] = m.left.Attributes(l)
	}
	rightAttrs := make([]Attributes, len(rights))
	for i, r := range rights {
		rightAttrs[i] = m.right.Attributes(r)
	}

	for _, c := range Criteria {
		if result.IsComplete() {
			break
		}
		matchWithCriterion(result, c, leftAttrs, rightAttrs)
	}
	return result
}

// matchWithCriterion indexes the still-unmatched rights under c and pairs
// each still-unmatched left with the first candidate in its bucket. Only
// the taken candidate leaves the bucket.
func matchWithCriterion[L, R any](result *Result[L, R], c Criterion, leftAttrs, rightAttrs []Attributes) {
	buckets := make(map[key][]int)
	for _, ri := range result.unmatchedRightIndexes() {
		k, ok := c.keyOf(rightAttrs[ri])
		if !ok {
			continue
		}
		buckets[k] = append(buckets[k], ri)
	}
	if len(buckets) == 0 {
		return
	}

	for _, li := range result.unmatchedLeftIndexes() {
		k, ok := c.keyOf(leftAttrs[li])
		if !ok {
			continue
		}
		candidates := buckets[k]
		if len(candidates) == 0 {
			continue
		}
		result.record(li, candidates[0], c)
		buckets[k] = candidates[1:]
	}
}
