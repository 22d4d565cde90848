// Package blame dates new findings from version control history.
package blame

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/sirupsen/logrus"

	"github.com/SonarSource/sonarlint-core-sub018/pkg/tracking"
)

var log = logrus.WithField("component", "blame")

// Provider implements tracking.IntroductionDateProvider with git blame at
// HEAD. The introduction date of a finding is the most recent commit date
// among its lines. It falls back to the current time when there is no
// repository, no commit yet, the file is not committed, or one of the lines
// differs from its committed content.
type Provider struct {
	baseDir string
	now     func() time.Time

	openOnce sync.Once
	repo     *git.Repository
	root     string

	mu    sync.Mutex
	cache map[blameKey]*fileBlame
}

var _ tracking.IntroductionDateProvider = (*Provider)(nil)

type blameKey struct {
	head plumbing.Hash
	path string
}

type fileBlame struct {
	lines []*git.Line
}

// Option configures a Provider.
type Option func(*Provider)

// WithClock replaces time.Now for the fallback date.
func WithClock(now func() time.Time) Option {
	return func(p *Provider) { p.now = now }
}

// New returns a provider for files under baseDir. Relative file paths given
// to IntroductionDate are resolved against baseDir. The repository is found
// by walking up from baseDir and opened on first use.
func New(baseDir string, opts ...Option) *Provider {
	p := &Provider{
		baseDir: baseDir,
		now:     time.Now,
		cache:   make(map[blameKey]*fileBlame),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// IntroductionDate implements tracking.IntroductionDateProvider.
func (p *Provider) IntroductionDate(filePath string, lines []int) (time.Time, error) {
	now := p.now().Truncate(time.Millisecond)
	if len(lines) == 0 {
		return now, nil
	}

	p.openOnce.Do(p.open)
	if p.repo == nil {
		return now, nil
	}

	abs := filePath
	if !filepath.IsAbs(abs) {
		abs = filepath.Join(p.baseDir, filePath)
	}
	rel, err := filepath.Rel(p.root, abs)
	if err != nil || strings.HasPrefix(rel, "..") {
		log.WithField("file", filePath).Debug("file outside repository")
		return now, nil
	}
	rel = filepath.ToSlash(rel)

	fb, err := p.blame(rel)
	if err != nil {
		return time.Time{}, err
	}
	if fb == nil {
		return now, nil
	}

	working, err := readLines(abs)
	if err != nil {
		return time.Time{}, fmt.Errorf("read %s: %w", filePath, err)
	}

	var latest time.Time
	for _, l := range lines {
		if l < 1 || l > len(fb.lines) || l > len(working) {
			return now, nil
		}
		bl := fb.lines[l-1]
		if bl.Text != working[l-1] {
			return now, nil
		}
		if bl.Date.After(latest) {
			latest = bl.Date
		}
	}
	return latest, nil
}

func (p *Provider) open() {
	repo, err := git.PlainOpenWithOptions(p.baseDir, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		log.WithError(err).WithField("dir", p.baseDir).Debug("no git repository, dating new findings with current time")
		return
	}
	wt, err := repo.Worktree()
	if err != nil {
		log.WithError(err).Debug("repository has no worktree, dating new findings with current time")
		return
	}
	root, err := filepath.Abs(wt.Filesystem.Root())
	if err != nil {
		log.WithError(err).Debug("cannot resolve repository root")
		return
	}
	p.repo = repo
	p.root = root
	if abs, err := filepath.Abs(p.baseDir); err == nil {
		p.baseDir = abs
	}
}

// blame returns the blame of path at HEAD, or nil when the path has no
// history.
func (p *Provider) blame(path string) (*fileBlame, error) {
	head, err := p.repo.Head()
	if err != nil {
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("resolve HEAD: %w", err)
	}

	key := blameKey{head: head.Hash(), path: path}
	p.mu.Lock()
	fb, ok := p.cache[key]
	p.mu.Unlock()
	if ok {
		return fb, nil
	}

	commit, err := p.repo.CommitObject(head.Hash())
	if err != nil {
		return nil, fmt.Errorf("load HEAD commit: %w", err)
	}
	result, err := git.Blame(commit, path)
	switch {
	case errors.Is(err, object.ErrFileNotFound):
		fb = nil
	case err != nil:
		return nil, fmt.Errorf("blame %s: %w", path, err)
	default:
		fb = &fileBlame{lines: result.Lines}
	}

	p.mu.Lock()
	p.cache[key] = fb
	p.mu.Unlock()
	return fb, nil
}

func readLines(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	data = bytes.TrimSuffix(data, []byte("\n"))
	return strings.Split(string(data), "\n"), nil
}
