// Package service runs the tracking lifecycle of analyses: it loads the
// known findings of the analyzed files, tracks every detected finding,
// reconciles with server findings and persists the result for the next run.
package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/SonarSource/sonarlint-core-sub018/pkg/report"
	"github.com/SonarSource/sonarlint-core-sub018/pkg/store"
	"github.com/SonarSource/sonarlint-core-sub018/pkg/tracking"
)

var log = logrus.WithField("component", "service")

// ErrUnknownAnalysis is returned for an analysis id that was never started
// or is already finished.
var ErrUnknownAnalysis = errors.New("unknown analysis")

// DefaultConcurrency is the number of files tracked in parallel by
// TrackBatch.
const DefaultConcurrency = 4

// Service tracks findings across analyses. It is safe for concurrent use.
type Service struct {
	store       store.KnownFindingsStore
	dates       tracking.IntroductionDateProvider
	reporter    Reporter
	concurrency int

	mu       sync.Mutex
	analyses map[string]*analysis
}

type analysis struct {
	id      string
	scope   string
	files   []string
	started time.Time
	session *tracking.Session
	skipped atomic.Int64

	mu     sync.Mutex
	server map[string]map[tracking.Category][]tracking.ServerFinding
}

// Summary describes a finished analysis.
type Summary struct {
	AnalysisID    string
	Scope         string
	Issues        map[string][]*tracking.TrackedIssue
	Hotspots      map[string][]*tracking.TrackedIssue
	Files         int // files whose known findings were replaced
	New           int
	Matched       int
	ServerMatched int
	// Issues without a server key that matched a stored local-only issue.
	LocalOnlyMatched int
	Skipped          int // findings without a file
	Duration         time.Duration
}

// Option configures a Service.
type Option func(*Service)

// WithReporter sets where tracked findings are reported.
func WithReporter(r Reporter) Option {
	return func(s *Service) { s.reporter = r }
}

// WithConcurrency sets how many files TrackBatch tracks in parallel.
func WithConcurrency(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// New returns a Service persisting to st. A nil dates provider dates new
// findings with the current time.
func New(st store.KnownFindingsStore, dates tracking.IntroductionDateProvider, opts ...Option) *Service {
	if dates == nil {
		dates = tracking.NowProvider{}
	}
	s := &Service{
		store:       st,
		dates:       dates,
		reporter:    LogReporter{},
		concurrency: DefaultConcurrency,
		analyses:    make(map[string]*analysis),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// StartAnalysis loads the known findings of files in scope and returns the
// id of a new analysis. An empty files list loads the whole scope.
func (s *Service) StartAnalysis(ctx context.Context, scope string, files []string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	snapshot, err := s.store.LoadSnapshot(scope, files)
	if err != nil {
		return "", fmt.Errorf("load known findings: %w", err)
	}

	a := &analysis{
		id:      ulid.Make().String(),
		scope:   scope,
		files:   append([]string(nil), files...),
		started: time.Now(),
		session: tracking.NewSession(snapshot, s.dates),
		server:  make(map[string]map[tracking.Category][]tracking.ServerFinding),
	}

	s.mu.Lock()
	s.analyses[a.id] = a
	s.mu.Unlock()

	log.WithFields(logrus.Fields{
		"analysis": a.id,
		"scope":    scope,
		"files":    len(files),
	}).Debug("analysis started")
	return a.id, nil
}

// IssueDetected tracks one raw finding of an analysis and streams the
// result to the reporter. Findings without a file are not tracked: it
// returns nil and no error for them.
func (s *Service) IssueDetected(analysisID, filePath string, category tracking.Category, raw *tracking.RawFinding) (*tracking.TrackedIssue, error) {
	a, err := s.lookup(analysisID)
	if err != nil {
		return nil, err
	}
	if filePath == "" {
		a.skipped.Add(1)
		log.WithFields(logrus.Fields{"analysis": analysisID, "rule": raw.RuleKey}).Debug("skipping finding without file")
		return nil, nil
	}

	issue, err := a.session.Track(filePath, category, raw)
	if err != nil {
		return nil, err
	}
	s.reporter.StreamIssue(analysisID, issue)
	return issue, nil
}

// SetServerFindings registers the findings the server knows for one file.
// They are reconciled with the tracked findings when the analysis finishes.
func (s *Service) SetServerFindings(analysisID, filePath string, category tracking.Category, findings []tracking.ServerFinding) error {
	a, err := s.lookup(analysisID)
	if err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.server[filePath] == nil {
		a.server[filePath] = make(map[tracking.Category][]tracking.ServerFinding)
	}
	a.server[filePath][category] = append([]tracking.ServerFinding(nil), findings...)
	return nil
}

// FinishAnalysis reconciles with server findings, then with the local-only
// issues of every file the server reported on, replaces the known findings
// of every analyzed or touched file, and reports the tracked findings. The analysis is gone afterwards, even on error.
func (s *Service) FinishAnalysis(ctx context.Context, analysisID string) (*Summary, error) {
	a, err := s.remove(analysisID)
	if err != nil {
		return nil, err
	}

	summary := &Summary{
		AnalysisID: a.id,
		Scope:      a.scope,
		Issues:     a.session.IssuesPerFile(),
		Hotspots:   a.session.HotspotsPerFile(),
		Skipped:    int(a.skipped.Load()),
	}

	a.mu.Lock()
	bound := make([]string, 0, len(a.server))
	for path, perCategory := range a.server {
		summary.ServerMatched += tracking.ReconcileWithServer(tracking.CategoryIssue, summary.Issues[path], perCategory[tracking.CategoryIssue])
		summary.ServerMatched += tracking.ReconcileWithServer(tracking.CategoryHotspot, summary.Hotspots[path], perCategory[tracking.CategoryHotspot])
		bound = append(bound, path)
	}
	a.mu.Unlock()
	sort.Strings(bound)

	// Only files the server reported on have local-only issues.
	localOnly := make(map[string][]tracking.LocalOnlyIssue, len(bound))
	for _, path := range bound {
		stored, err := s.store.LoadLocalOnlyIssues(a.scope, path)
		if err != nil {
			return nil, fmt.Errorf("load local-only issues of %s: %w", path, err)
		}
		issues, matched := tracking.ReconcileWithLocalOnly(summary.Issues[path], stored)
		localOnly[path] = issues
		summary.LocalOnlyMatched += matched
	}

	for _, path := range persistedPaths(a.files, a.session.TouchedPaths()) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for _, category := range tracking.Categories {
			tracked := summary.Issues[path]
			if category == tracking.CategoryHotspot {
				tracked = summary.Hotspots[path]
			}
			known := make([]tracking.KnownFinding, 0, len(tracked))
			for _, t := range tracked {
				known = append(known, t.ToKnownFinding())
				if t.IsNew {
					summary.New++
				} else {
					summary.Matched++
				}
			}
			if err := s.store.StoreKnownFindings(a.scope, path, category, known); err != nil {
				return nil, fmt.Errorf("store known findings of %s: %w", path, err)
			}
		}
		summary.Files++
	}
	for _, path := range bound {
		if err := s.store.StoreLocalOnlyIssues(a.scope, path, localOnly[path]); err != nil {
			return nil, fmt.Errorf("store local-only issues of %s: %w", path, err)
		}
	}

	summary.Duration = time.Since(a.started)
	s.reporter.ReportTrackedFindings(a.id, summary.Issues, summary.Hotspots)

	log.WithFields(logrus.Fields{
		"analysis": a.id,
		"files":    summary.Files,
		"new":      summary.New,
		"matched":  summary.Matched,
		"server":   summary.ServerMatched,
		"local":    summary.LocalOnlyMatched,
		"duration": summary.Duration,
	}).Info("analysis finished")
	return summary, nil
}

// CancelAnalysis drops an analysis without persisting anything.
func (s *Service) CancelAnalysis(analysisID string) error {
	_, err := s.remove(analysisID)
	return err
}

// TrackBatch runs a whole analysis over a report: files are tracked in
// parallel, at most the configured concurrency at a time. On the first
// error, or when ctx is cancelled, the remaining findings are not tracked
// and nothing is persisted.
func (s *Service) TrackBatch(ctx context.Context, scope string, rep *report.Report) (*Summary, error) {
	id, err := s.StartAnalysis(ctx, scope, rep.Paths())
	if err != nil {
		return nil, err
	}

	for _, f := range rep.Files {
		if f.Path == "" {
			continue
		}
		for _, category := range tracking.Categories {
			if server := f.Server(category); len(server) > 0 {
				if err := s.SetServerFindings(id, f.Path, category, server); err != nil {
					_ = s.CancelAnalysis(id)
					return nil, err
				}
			}
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i := range rep.Files {
		f := &rep.Files[i]
		g.Go(func() error {
			for _, category := range tracking.Categories {
				raws := f.Raw(category)
				for j := range raws {
					if err := gctx.Err(); err != nil {
						return err
					}
					if _, err := s.IssueDetected(id, f.Path, category, &raws[j]); err != nil {
						return err
					}
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		_ = s.CancelAnalysis(id)
		return nil, err
	}

	return s.FinishAnalysis(ctx, id)
}

// Running returns the ids of the analyses not finished yet.
func (s *Service) Running() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.analyses))
	for id := range s.analyses {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (s *Service) lookup(id string) (*analysis, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.analyses[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAnalysis, id)
	}
	return a, nil
}

func (s *Service) remove(id string) (*analysis, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.analyses[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAnalysis, id)
	}
	delete(s.analyses, id)
	return a, nil
}

// persistedPaths is the sorted union of the analyzed and the touched files.
// An analyzed file with no finding left still gets its known findings
// replaced, by nothing.
func persistedPaths(analyzed, touched []string) []string {
	set := make(map[string]struct{}, len(analyzed)+len(touched))
	for _, p := range analyzed {
		if p != "" {
			set[p] = struct{}{}
		}
	}
	for _, p := range touched {
		set[p] = struct{}{}
	}
	out := make([]string, 0, len(set))
	for p := range set {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}
