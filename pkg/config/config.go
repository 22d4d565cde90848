// Package config loads issuetrack settings. Later layers win: built-in
// defaults, then <base_dir>/.issuetrack/config.json, then ISSUETRACK_*
// environment variables, then explicit overrides (command-line flags).
//
// Environment keys drop the prefix and are lowercased; a double underscore
// separates nested keys, so ISSUETRACK_WATCH__DEBOUNCE sets watch.debounce.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	EnvPrefix = "ISSUETRACK_"
	// DirName is the per-project directory holding the config file and,
	// by default, the data.
	DirName  = ".issuetrack"
	FileName = "config.json"

	DefaultScope       = "default"
	DefaultConcurrency = 4
	DefaultLogLevel    = "info"
	DefaultDebounce    = 2 * time.Second
)

type Config struct {
	DataDir        string `koanf:"data_dir"`
	BaseDir        string `koanf:"base_dir"`
	Scope          string `koanf:"scope"`
	Concurrency    int    `koanf:"concurrency"`
	LogLevel       string `koanf:"log_level"`
	ServerFindings bool   `koanf:"server_findings"`
	Watch          Watch  `koanf:"watch"`
}

type Watch struct {
	Debounce   time.Duration `koanf:"debounce"`
	ReportsDir string        `koanf:"reports_dir"`
}

// Load reads the configuration. baseDir locates the config file; empty
// means the project root of the working directory. overrides use the
// dotted koanf keys and are applied last.
func Load(baseDir string, overrides map[string]any) (*Config, error) {
	if baseDir == "" {
		if v, ok := overrides["base_dir"].(string); ok && v != "" {
			baseDir = v
		} else if v := os.Getenv(EnvPrefix + "BASE_DIR"); v != "" {
			baseDir = v
		} else {
			baseDir = FindProjectRoot()
		}
	}

	k := koanf.New(".")

	defaults := map[string]any{
		"base_dir":          baseDir,
		"data_dir":          "",
		"scope":             DefaultScope,
		"concurrency":       DefaultConcurrency,
		"log_level":         DefaultLogLevel,
		"server_findings":   true,
		"watch.debounce":    DefaultDebounce.String(),
		"watch.reports_dir": "",
	}
	if err := k.Load(confmap.Provider(defaults, "."), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	path := filepath.Join(baseDir, DirName, FileName)
	if err := k.Load(file.Provider(path), json.Parser()); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}

	if err := k.Load(env.Provider(".", env.Opt{
		Prefix:        EnvPrefix,
		TransformFunc: envKey,
	}), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	if len(overrides) > 0 {
		if err := k.Load(confmap.Provider(overrides, "."), nil); err != nil {
			return nil, fmt.Errorf("load overrides: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.finalize(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func envKey(key, value string) (string, any) {
	key = strings.ToLower(strings.TrimPrefix(key, EnvPrefix))
	return strings.ReplaceAll(key, "__", "."), value
}

func (c *Config) finalize() error {
	if c.BaseDir == "" {
		c.BaseDir = "."
	}
	abs, err := filepath.Abs(c.BaseDir)
	if err != nil {
		return fmt.Errorf("base_dir: %w", err)
	}
	c.BaseDir = abs

	if c.DataDir == "" {
		c.DataDir = filepath.Join(c.BaseDir, DirName)
	} else if !filepath.IsAbs(c.DataDir) {
		c.DataDir = filepath.Join(c.BaseDir, c.DataDir)
	}
	if c.Watch.ReportsDir != "" && !filepath.IsAbs(c.Watch.ReportsDir) {
		c.Watch.ReportsDir = filepath.Join(c.BaseDir, c.Watch.ReportsDir)
	}

	if c.Scope == "" {
		return errors.New("scope must not be empty")
	}
	if c.Concurrency < 1 {
		return fmt.Errorf("concurrency must be positive, got %d", c.Concurrency)
	}
	if c.Watch.Debounce <= 0 {
		c.Watch.Debounce = DefaultDebounce
	}
	return nil
}

// FindProjectRoot returns the root of the git worktree containing the
// working directory, else the closest ancestor holding a .issuetrack
// directory, else the working directory itself.
func FindProjectRoot() string {
	cwd, err := os.Getwd()
	if err != nil {
		return "."
	}

	repo, err := git.PlainOpenWithOptions(cwd, &git.PlainOpenOptions{DetectDotGit: true})
	if err == nil {
		if wt, err := repo.Worktree(); err == nil {
			return wt.Filesystem.Root()
		}
	}

	for dir := cwd; ; {
		if info, err := os.Stat(filepath.Join(dir, DirName)); err == nil && info.IsDir() {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return cwd
		}
		dir = parent
	}
}
