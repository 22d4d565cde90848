package tracking

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/SonarSource/sonarlint-core-sub018/pkg/tracking/matching"
)

var log = logrus.WithField("component", "tracking")

// ErrInvalidCategory is returned by Track for a category other than issue
// or hotspot.
var ErrInvalidCategory = errors.New("invalid finding category")

// Session tracks the raw findings of one analysis batch against a snapshot
// of known findings. It is safe for concurrent use: calls for different
// files run in parallel, calls for the same file are serialized.
//
// A Session performs no persistence. Once the batch is complete the caller
// reads IssuesPerFile, HotspotsPerFile and TouchedPaths and discards it.
type Session struct {
	dates   IntroductionDateProvider
	newID   func() uuid.UUID
	matcher *matching.Matcher[*RawFinding, KnownFinding]

	mu      sync.Mutex
	files   map[string]*fileState
	touched map[string]struct{}
}

// fileState is everything a Session knows about one file. mu is held for
// the whole pick-and-remove unit of a Track call.
type fileState struct {
	mu      sync.Mutex
	pools   map[Category][]KnownFinding
	tracked map[Category][]*TrackedIssue
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithIDGenerator replaces uuid.New for minting the ids of new findings.
func WithIDGenerator(gen func() uuid.UUID) SessionOption {
	return func(s *Session) { s.newID = gen }
}

// NewSession seeds a session from snapshot. The snapshot is copied, so the
// caller may reuse it. A nil dates provider dates new findings with the
// current time.
func NewSession(snapshot KnownFindings, dates IntroductionDateProvider, opts ...SessionOption) *Session {
	if dates == nil {
		dates = NowProvider{}
	}
	s := &Session{
		dates:   dates,
		newID:   uuid.New,
		matcher: matching.NewMatcher[*RawFinding, KnownFinding](RawFindingMapper, KnownFindingMapper),
		files:   make(map[string]*fileState),
		touched: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	seed := func(category Category, perFile map[string][]KnownFinding) {
		for path, findings := range perFile {
			if len(findings) == 0 {
				continue
			}
			fs := s.stateLocked(path)
			fs.pools[category] = append([]KnownFinding(nil), findings...)
		}
	}
	seed(CategoryIssue, snapshot.Issues)
	seed(CategoryHotspot, snapshot.Hotspots)
	return s
}

// Track identifies raw, detected in filePath. When a known finding of the
// same file and category matches, the returned issue carries its id,
// introduction date and server key, and that known finding is no longer
// offered to later calls. Otherwise a new id is minted and the date
// provider is asked for the introduction date; a provider error is returned
// and nothing is recorded.
func (s *Session) Track(filePath string, category Category, raw *RawFinding) (*TrackedIssue, error) {
	if !category.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidCategory, category)
	}

	s.mu.Lock()
	fs := s.stateLocked(filePath)
	s.mu.Unlock()

	fs.mu.Lock()
	defer fs.mu.Unlock()

	pool := fs.pools[category]
	result := s.matcher.Match([]*RawFinding{raw}, pool)

	issue := &TrackedIssue{
		FilePath:   filePath,
		Category:   category,
		RawFinding: *raw,
	}
	if idx, ok := result.RightIndexOf(0); ok {
		known := pool[idx]
		fs.pools[category] = removeAt(pool, idx)

		issue.ID = known.ID
		issue.IntroductionDate = known.IntroductionDate
		issue.ServerKey = known.ServerKey
		issue.MatchedBy, _ = result.TierOf(0)
		log.WithFields(logrus.Fields{
			"file": filePath,
			"rule": raw.RuleKey,
			"id":   known.ID,
			"by":   issue.MatchedBy,
		}).Debug("matched known finding")
	} else {
		id := s.newID()
		date, err := s.dates.IntroductionDate(filePath, raw.Lines())
		if err != nil {
			return nil, fmt.Errorf("introduction date of %s in %s: %w", raw.RuleKey, filePath, err)
		}
		issue.ID = id
		issue.IntroductionDate = date
		issue.IsNew = true
		log.WithFields(logrus.Fields{
			"file": filePath,
			"rule": raw.RuleKey,
			"id":   id,
		}).Debug("new finding")
	}

	fs.tracked[category] = append(fs.tracked[category], issue)

	s.mu.Lock()
	s.touched[filePath] = struct{}{}
	s.mu.Unlock()

	return issue, nil
}

// IssuesPerFile returns the tracked issues of every file that has any, in
// tracking order.
func (s *Session) IssuesPerFile() map[string][]*TrackedIssue {
	return s.perFile(CategoryIssue)
}

// HotspotsPerFile returns the tracked hotspots of every file that has any,
// in tracking order.
func (s *Session) HotspotsPerFile() map[string][]*TrackedIssue {
	return s.perFile(CategoryHotspot)
}

// TouchedPaths returns the sorted paths of the files Track succeeded on.
func (s *Session) TouchedPaths() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	paths := make([]string, 0, len(s.touched))
	for p := range s.touched {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// Remaining returns the known findings of filePath for category that no
// raw finding has matched so far.
func (s *Session) Remaining(filePath string, category Category) []KnownFinding {
	s.mu.Lock()
	fs, ok := s.files[filePath]
	s.mu.Unlock()
	if !ok {
		return nil
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()
	return append([]KnownFinding(nil), fs.pools[category]...)
}

func (s *Session) perFile(category Category) map[string][]*TrackedIssue {
	s.mu.Lock()
	states := make(map[string]*fileState, len(s.files))
	for path, fs := range s.files {
		states[path] = fs
	}
	s.mu.Unlock()

	out := make(map[string][]*TrackedIssue)
	for path, fs := range states {
		fs.mu.Lock()
		if issues := fs.tracked[category]; len(issues) > 0 {
			out[path] = append([]*TrackedIssue(nil), issues...)
		}
		fs.mu.Unlock()
	}
	return out
}

// stateLocked returns the state of path, creating it. s.mu must be held
// (or s not yet shared).
func (s *Session) stateLocked(path string) *fileState {
	fs, ok := s.files[path]
	if !ok {
		fs = &fileState{
			pools:   make(map[Category][]KnownFinding),
			tracked: make(map[Category][]*TrackedIssue),
		}
		s.files[path] = fs
	}
	return fs
}

// removeAt returns pool without the element at i. The backing array of pool
// is left untouched.
func removeAt(pool []KnownFinding, i int) []KnownFinding {
	out := make([]KnownFinding, 0, len(pool)-1)
	out = append(out, pool[:i]...)
	return append(out, pool[i+1:]...)
}
