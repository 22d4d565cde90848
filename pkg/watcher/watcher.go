// Package watcher reports, debounced, the files that change under a set of
// directories. The CLI uses it to re-track analyzer reports as analyzers
// rewrite them.
package watcher

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("component", "watcher")

const DefaultDebounceDelay = 2 * time.Second

// DefaultSkipDirs are never watched, nor is any other dot directory.
var DefaultSkipDirs = []string{".git", ".svn", ".hg", ".issuetrack", "node_modules", "vendor"}

type Config struct {
	Paths         []string
	DebounceDelay time.Duration
	SkipDirs      []string
	// FileFilter keeps only the files it returns true for. Nil keeps all.
	FileFilter func(path string) bool
	// Ignore drops files and directories, by absolute path. Nil drops none.
	Ignore func(path string, isDir bool) bool
}

// FileChangeHandler receives the files changed during one debounce window,
// with the last operation seen for each.
type FileChangeHandler interface {
	OnChanges(files map[string]fsnotify.Op)
}

type FileChangeHandlerFunc func(files map[string]fsnotify.Op)

func (f FileChangeHandlerFunc) OnChanges(files map[string]fsnotify.Op) {
	f(files)
}

// Watcher batches file events until none arrived for the debounce delay,
// then hands the batch to every handler on the event goroutine.
type Watcher struct {
	fs       *fsnotify.Watcher
	config   Config
	skip     map[string]struct{}
	handlers []FileChangeHandler

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	mu          sync.Mutex
	pending     map[string]fsnotify.Op
	roots       []string
	dirsWatched int
	started     time.Time
}

func New(config Config, handlers ...FileChangeHandler) (*Watcher, error) {
	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if config.DebounceDelay <= 0 {
		config.DebounceDelay = DefaultDebounceDelay
	}

	skip := make(map[string]struct{})
	for _, dirs := range [][]string{DefaultSkipDirs, config.SkipDirs} {
		for _, d := range dirs {
			skip[d] = struct{}{}
		}
	}
	return &Watcher{
		fs:       fs,
		config:   config,
		skip:     skip,
		handlers: handlers,
		stop:     make(chan struct{}),
		pending:  make(map[string]fsnotify.Op),
	}, nil
}

// AddHandler must be called before Start.
func (w *Watcher) AddHandler(h FileChangeHandler) {
	w.handlers = append(w.handlers, h)
}

// Start adds every directory below the configured paths (the working
// directory when none) and handles events in the background until Stop.
func (w *Watcher) Start() error {
	roots := w.config.Paths
	if len(roots) == 0 {
		cwd, err := os.Getwd()
		if err != nil {
			return err
		}
		roots = []string{cwd}
	}

	for _, root := range roots {
		if err := w.addTree(root); err != nil {
			return err
		}
	}

	w.mu.Lock()
	w.roots = roots
	w.started = time.Now()
	dirs := w.dirsWatched
	w.mu.Unlock()

	w.wg.Add(1)
	go w.run()

	log.WithFields(logrus.Fields{
		"dirs":     dirs,
		"paths":    roots,
		"debounce": w.config.DebounceDelay,
	}).Info("watching")
	return nil
}

// Stop waits for a running batch to finish. Pending changes are dropped.
func (w *Watcher) Stop() error {
	w.stopOnce.Do(func() { close(w.stop) })
	w.wg.Wait()
	return w.fs.Close()
}

type WatcherStats struct {
	Paths        []string
	DirsWatched  int
	Debounce     time.Duration
	PendingFiles int
	Uptime       time.Duration
}

func (w *Watcher) Stats() WatcherStats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return WatcherStats{
		Paths:        w.roots,
		DirsWatched:  w.dirsWatched,
		Debounce:     w.config.DebounceDelay,
		PendingFiles: len(w.pending),
		Uptime:       time.Since(w.started),
	}
}

// addTree watches root and its subdirectories. Unreadable entries are
// skipped.
func (w *Watcher) addTree(root string) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return nil
		}
		if path != root && w.skipDir(path) {
			return filepath.SkipDir
		}
		w.addDir(path)
		return nil
	})
}

func (w *Watcher) addDir(path string) {
	if err := w.fs.Add(path); err != nil {
		log.WithError(err).WithField("dir", path).Debug("cannot watch directory")
		return
	}
	w.mu.Lock()
	w.dirsWatched++
	w.mu.Unlock()
}

func (w *Watcher) skipDir(path string) bool {
	name := filepath.Base(path)
	if _, ok := w.skip[name]; ok {
		return true
	}
	if len(name) > 1 && name[0] == '.' {
		return true
	}
	return w.config.Ignore != nil && w.config.Ignore(path, true)
}

// skipFile drops hidden and editor scratch files besides the configured
// filters.
func (w *Watcher) skipFile(path string) bool {
	name := filepath.Base(path)
	switch {
	case strings.HasPrefix(name, "."),
		strings.HasSuffix(name, "~"),
		strings.HasSuffix(name, ".swp"),
		strings.HasSuffix(name, ".tmp"):
		return true
	}
	if w.config.FileFilter != nil && !w.config.FileFilter(path) {
		return true
	}
	return w.config.Ignore != nil && w.config.Ignore(path, false)
}

const relevantOps = fsnotify.Write | fsnotify.Create | fsnotify.Rename | fsnotify.Remove

func (w *Watcher) run() {
	defer w.wg.Done()

	var (
		timer *time.Timer
		fire  <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-w.stop:
			return

		case event, ok := <-w.fs.Events:
			if !ok {
				return
			}
			if !w.accept(event) {
				continue
			}
			w.mu.Lock()
			w.pending[event.Name] = event.Op
			w.mu.Unlock()

			if timer == nil {
				timer = time.NewTimer(w.config.DebounceDelay)
			} else {
				timer.Reset(w.config.DebounceDelay)
			}
			fire = timer.C

		case <-fire:
			fire = nil
			w.flush()

		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			log.WithError(err).Warn("watch error")
		}
	}
}

// accept reports whether event belongs to the next batch. New directories
// are watched on the way and never batched.
func (w *Watcher) accept(event fsnotify.Event) bool {
	if event.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if !w.skipDir(event.Name) {
				w.addDir(event.Name)
				log.WithField("dir", event.Name).Debug("watching new directory")
			}
			return false
		}
	}
	return event.Op&relevantOps != 0 && !w.skipFile(event.Name)
}

func (w *Watcher) flush() {
	w.mu.Lock()
	batch := w.pending
	w.pending = make(map[string]fsnotify.Op)
	w.mu.Unlock()

	if len(batch) == 0 {
		return
	}
	log.WithField("files", len(batch)).Debug("processing file changes")
	for _, h := range w.handlers {
		h.OnChanges(batch)
	}
}

func IsRemove(op fsnotify.Op) bool {
	return op&fsnotify.Remove != 0
}

// Changed returns the sorted paths of files that still exist after the
// changes, i.e. everything but removals.
func Changed(files map[string]fsnotify.Op) []string {
	var out []string
	for path, op := range files {
		if !IsRemove(op) {
			out = append(out, path)
		}
	}
	sort.Strings(out)
	return out
}
