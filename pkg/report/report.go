// Package report reads analyzer output files.
//
// A report lists, per file, the raw issues and hotspots an analyzer detected
// and, optionally, the findings the server knows for the same file. Reports
// are JSON (.json) or YAML (.yaml, .yml).
package report

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/SonarSource/sonarlint-core-sub018/pkg/httputil"
	"github.com/SonarSource/sonarlint-core-sub018/pkg/tracking"
)

// Format is the encoding of a report file.
type Format string

// Supported formats.
const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// Report is one analyzer run.
type Report struct {
	Analyzer string       `json:"analyzer,omitempty" yaml:"analyzer,omitempty"`
	Files    []FileReport `json:"files" yaml:"files"`
}

// FileReport holds the findings of one file. An empty Path marks findings
// that are not attached to any file.
type FileReport struct {
	Path           string                   `json:"path" yaml:"path"`
	Issues         []tracking.RawFinding    `json:"issues,omitempty" yaml:"issues,omitempty"`
	Hotspots       []tracking.RawFinding    `json:"hotspots,omitempty" yaml:"hotspots,omitempty"`
	ServerIssues   []tracking.ServerFinding `json:"serverIssues,omitempty" yaml:"serverIssues,omitempty"`
	ServerHotspots []tracking.ServerFinding `json:"serverHotspots,omitempty" yaml:"serverHotspots,omitempty"`
}

// Raw returns the raw findings of category.
func (f *FileReport) Raw(category tracking.Category) []tracking.RawFinding {
	if category == tracking.CategoryHotspot {
		return f.Hotspots
	}
	return f.Issues
}

// Server returns the server findings of category.
func (f *FileReport) Server(category tracking.Category) []tracking.ServerFinding {
	if category == tracking.CategoryHotspot {
		return f.ServerHotspots
	}
	return f.ServerIssues
}

// Paths returns the non-empty file paths of the report, in report order.
func (r *Report) Paths() []string {
	var paths []string
	for _, f := range r.Files {
		if f.Path != "" {
			paths = append(paths, f.Path)
		}
	}
	return paths
}

// HasServerFindings reports whether any file carries server findings.
func (r *Report) HasServerFindings() bool {
	for _, f := range r.Files {
		if len(f.ServerIssues) > 0 || len(f.ServerHotspots) > 0 {
			return true
		}
	}
	return false
}

// DropServerFindings removes every server finding, leaving raw findings
// untouched.
func (r *Report) DropServerFindings() {
	for i := range r.Files {
		r.Files[i].ServerIssues = nil
		r.Files[i].ServerHotspots = nil
	}
}

// Filter removes the files for which ignore returns true and reports how
// many were removed. Findings without a file are kept.
func (r *Report) Filter(ignore func(path string) bool) int {
	kept := r.Files[:0]
	removed := 0
	for _, f := range r.Files {
		if f.Path != "" && ignore(f.Path) {
			removed++
			continue
		}
		kept = append(kept, f)
	}
	r.Files = kept
	return removed
}

// FormatOf returns the format implied by the extension of path.
func FormatOf(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("unsupported report extension %q", filepath.Ext(path))
	}
}

// IsReportFile reports whether path has a report extension.
func IsReportFile(path string) bool {
	_, err := FormatOf(path)
	return err == nil
}

// Load reads and validates the report at path.
func Load(path string) (*Report, error) {
	format, err := FormatOf(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open report: %w", err)
	}
	defer f.Close()

	r, err := Decode(f, format)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return r, nil
}

// Decode reads and validates a report.
func Decode(r io.Reader, format Format) (*Report, error) {
	var rep Report
	switch format {
	case FormatJSON:
		if err := json.NewDecoder(r).Decode(&rep); err != nil {
			return nil, fmt.Errorf("decode json report: %w", err)
		}
	case FormatYAML:
		if err := yaml.NewDecoder(r).Decode(&rep); err != nil && err != io.EOF {
			return nil, fmt.Errorf("decode yaml report: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported report format %q", format)
	}
	if err := rep.Validate(); err != nil {
		return nil, err
	}
	return &rep, nil
}

// Validate checks that every finding has a rule key.
func (r *Report) Validate() error {
	for _, f := range r.Files {
		for _, category := range tracking.Categories {
			for i, raw := range f.Raw(category) {
				if raw.RuleKey == "" {
					return fmt.Errorf("file %q: %s #%d has no rule key", f.Path, category, i+1)
				}
			}
		}
	}
	return nil
}

// Fetch downloads and validates the report at rawURL. The format comes from
// the URL path extension, or from the Content-Type when the path has none.
func Fetch(ctx context.Context, client *httputil.Client, rawURL string) (*Report, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse report url: %w", err)
	}
	body, contentType, err := client.ReadAll(ctx, rawURL)
	if err != nil {
		return nil, fmt.Errorf("fetch report: %w", err)
	}

	format, err := FormatOf(path.Base(u.Path))
	if err != nil {
		format, err = formatOfContentType(contentType)
		if err != nil {
			return nil, err
		}
	}
	r, err := Decode(bytes.NewReader(body), format)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", rawURL, err)
	}
	return r, nil
}

func formatOfContentType(contentType string) (Format, error) {
	mediaType, _, _ := strings.Cut(contentType, ";")
	switch strings.TrimSpace(strings.ToLower(mediaType)) {
	case "application/json":
		return FormatJSON, nil
	case "application/yaml", "application/x-yaml", "text/yaml", "text/x-yaml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("unsupported report content type %q", contentType)
	}
}
