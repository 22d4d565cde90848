// Package ignore decides which files are left out of tracking.
//
// Patterns come from built-in defaults plus an optional .issuetrackignore
// file at the project root, with .gitignore syntax:
//
//	# comment
//	*.pb.go          files by name, at any depth
//	generated/       directories (trailing slash), with everything below
//	/rootonly.go     anchored to the project root (leading slash)
//	docs/**/*.md     doublestar globs
//	!keep.pb.go      negate an earlier pattern
//
// The last matching pattern wins.
package ignore

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

const FileName = ".issuetrackignore"

// BuiltinDefaults apply even without an ignore file.
var BuiltinDefaults = []string{
	".git/",
	".svn/",
	".hg/",
	".issuetrack/",
}

type Matcher struct {
	rules []rule
}

type rule struct {
	glob     string
	negation bool
	dirOnly  bool
}

// New loads the defaults plus <projectRoot>/.issuetrackignore when present.
func New(projectRoot string) (*Matcher, error) {
	m := NewFromDefaults()
	if err := m.loadFile(filepath.Join(projectRoot, FileName)); err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	return m, nil
}

func NewFromDefaults() *Matcher {
	m := &Matcher{}
	for _, p := range BuiltinDefaults {
		m.rules = append(m.rules, parsePattern(p))
	}
	return m
}

// Add appends patterns after the existing ones. It fails on the first
// malformed glob.
func (m *Matcher) Add(patterns ...string) error {
	for _, p := range patterns {
		r := parsePattern(p)
		if !doublestar.ValidatePattern(r.glob) {
			return fmt.Errorf("invalid ignore pattern %q", p)
		}
		m.rules = append(m.rules, r)
	}
	return nil
}

// ShouldIgnore reports whether path, relative to the project root, is
// ignored. A file below an ignored directory is ignored too, unless a
// pattern negates the file itself.
func (m *Matcher) ShouldIgnore(path string, isDir bool) bool {
	path = strings.TrimSuffix(filepath.ToSlash(path), "/")
	path = strings.TrimPrefix(path, "./")
	if path == "" || path == "." {
		return false
	}

	ignored, matched := m.evaluate(path, isDir)
	if matched {
		return ignored
	}
	if isDir {
		return false
	}

	parts := strings.Split(path, "/")
	for i := 1; i < len(parts); i++ {
		if ignored, _ := m.evaluate(strings.Join(parts[:i], "/"), true); ignored {
			return true
		}
	}
	return false
}

func (m *Matcher) ShouldIgnoreFile(path string) bool {
	return m.ShouldIgnore(path, false)
}

// Under adapts the matcher to absolute paths below root. Paths outside
// root are never ignored.
func (m *Matcher) Under(root string) func(path string, isDir bool) bool {
	return func(path string, isDir bool) bool {
		if filepath.IsAbs(path) {
			rel, err := filepath.Rel(root, path)
			if err != nil || strings.HasPrefix(rel, "..") {
				return false
			}
			path = rel
		}
		return m.ShouldIgnore(path, isDir)
	}
}

func (m *Matcher) evaluate(path string, isDir bool) (ignored, matched bool) {
	for _, r := range m.rules {
		if r.dirOnly && !isDir {
			continue
		}
		if ok, _ := doublestar.Match(r.glob, path); ok {
			ignored = !r.negation
			matched = true
		}
	}
	return ignored, matched
}

func (m *Matcher) loadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	var patterns []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		patterns = append(patterns, line)
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	if err := m.Add(patterns...); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}

// parsePattern turns a gitignore-style line into a doublestar glob. A
// pattern with no inner slash matches at any depth.
func parsePattern(pattern string) rule {
	r := rule{}
	if strings.HasPrefix(pattern, "!") {
		r.negation = true
		pattern = pattern[1:]
	}
	if strings.HasSuffix(pattern, "/") {
		r.dirOnly = true
		pattern = strings.TrimSuffix(pattern, "/")
	}

	anchored := strings.Contains(pattern, "/")
	pattern = strings.TrimPrefix(pattern, "/")
	if !anchored {
		pattern = "**/" + pattern
	}
	r.glob = pattern
	return r
}
