package matching

// Result holds the pairs recorded by one Matcher.Match call.
//
// Elements are tracked by their index in the input slices, so L and R do
// not need to be comparable. A Result is local to one Match call.
type Result[L, R any] struct {
	lefts  []L
	rights []R

	rightOf      map[int]int // left index -> right index
	tierOf       map[int]Criterion
	rightMatched []bool
}

func newResult[L, R any](lefts []L, rights []R) *Result[L, R] {
	return &Result[L, R]{
		lefts:        lefts,
		rights:       rights,
		rightOf:      make(map[int]int, len(lefts)),
		tierOf:       make(map[int]Criterion, len(lefts)),
		rightMatched: make([]bool, len(rights)),
	}
}

func (r *Result[L, R]) record(left, right int, c Criterion) {
	r.rightOf[left] = right
	r.tierOf[left] = c
	r.rightMatched[right] = true
}

// IsComplete reports whether every left element has been matched.
func (r *Result[L, R]) IsComplete() bool {
	return len(r.rightOf) == len(r.lefts)
}

// Len returns the number of recorded pairs.
func (r *Result[L, R]) Len() int {
	return len(r.rightOf)
}

// MatchOf returns the right element paired with the left element at index
// left.
func (r *Result[L, R]) MatchOf(left int) (R, bool) {
	i, ok := r.rightOf[left]
	if !ok {
		var zero R
		return zero, false
	}
	return r.rights[i], true
}

// RightIndexOf returns the index, in the right input slice, of the element
// paired with the left element at index left.
func (r *Result[L, R]) RightIndexOf(left int) (int, bool) {
	i, ok := r.rightOf[left]
	return i, ok
}

// TierOf returns the criterion that produced the pair for left.
func (r *Result[L, R]) TierOf(left int) (Criterion, bool) {
	c, ok := r.tierOf[left]
	return c, ok
}

// MatchedLefts returns the matched left elements in input order.
func (r *Result[L, R]) MatchedLefts() []L {
	var out []L
	for i, l := range r.lefts {
		if _, ok := r.rightOf[i]; ok {
			out = append(out, l)
		}
	}
	return out
}

// UnmatchedLefts returns the left elements without a pair, in input order.
func (r *Result[L, R]) UnmatchedLefts() []L {
	var out []L
	for _, i := range r.unmatchedLeftIndexes() {
		out = append(out, r.lefts[i])
	}
	return out
}

// UnmatchedRights returns the right elements that no left element took.
func (r *Result[L, R]) UnmatchedRights() []R {
	var out []R
	for i, matched := range r.rightMatched {
		if !matched {
			out = append(out, r.rights[i])
		}
	}
	return out
}

func (r *Result[L, R]) unmatchedLeftIndexes() []int {
	out := make([]int, 0, len(r.lefts)-len(r.rightOf))
	for i := range r.lefts {
		if _, ok := r.rightOf[i]; !ok {
			out = append(out, i)
		}
	}
	return out
}

func (r *Result[L, R]) unmatchedRightIndexes() []int {
	out := make([]int, 0, len(r.rights))
	for i, matched := range r.rightMatched {
		if !matched {
			out = append(out, i)
		}
	}
	return out
}
