// Package tracking gives findings a stable identity across analysis runs.
//
// A Session holds the known findings of one batch, grouped per file and per
// category, and turns each raw finding reported by an analyzer into a
// TrackedIssue: either the continuation of a known finding (same id, same
// introduction date) or a brand-new one.
package tracking

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/SonarSource/sonarlint-core-sub018/pkg/tracking/matching"
)

// Category separates issues from security hotspots. Findings are only ever
// matched within one category.
type Category string

// Finding categories.
const (
	CategoryIssue   Category = "issue"
	CategoryHotspot Category = "hotspot"
)

// Categories lists every valid category.
var Categories = []Category{CategoryIssue, CategoryHotspot}

// ParseCategory accepts "issue", "issues", "hotspot" and "hotspots".
func ParseCategory(s string) (Category, error) {
	switch s {
	case "issue", "issues":
		return CategoryIssue, nil
	case "hotspot", "hotspots":
		return CategoryHotspot, nil
	default:
		return "", fmt.Errorf("unknown finding category %q", s)
	}
}

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool {
	return c == CategoryIssue || c == CategoryHotspot
}

// TextRange is a 1-based line, 0-based offset range in a file.
type TextRange struct {
	StartLine       int `json:"startLine" yaml:"startLine"`
	StartLineOffset int `json:"startLineOffset" yaml:"startLineOffset"`
	EndLine         int `json:"endLine" yaml:"endLine"`
	EndLineOffset   int `json:"endLineOffset" yaml:"endLineOffset"`
}

// TextRangeWithHash is a TextRange plus a hash of its content.
type TextRangeWithHash struct {
	TextRange `yaml:",inline"`
	Hash      string `json:"hash" yaml:"hash"`
}

// LineWithHash is a line number plus a hash of the whole line.
type LineWithHash struct {
	Number int    `json:"number" yaml:"number"`
	Hash   string `json:"hash" yaml:"hash"`
}

// Impact is one software-quality impact of a finding.
type Impact struct {
	SoftwareQuality string `json:"softwareQuality" yaml:"softwareQuality"`
	Severity        string `json:"severity" yaml:"severity"`
}

// Location is one step of a secondary flow.
type Location struct {
	FilePath  string     `json:"file,omitempty" yaml:"file,omitempty"`
	TextRange *TextRange `json:"textRange,omitempty" yaml:"textRange,omitempty"`
	Message   string     `json:"message,omitempty" yaml:"message,omitempty"`
}

// Flow is an ordered list of secondary locations.
type Flow struct {
	Locations []Location `json:"locations" yaml:"locations"`
}

// TextEdit replaces a range of a file with new text.
type TextEdit struct {
	FilePath string    `json:"file" yaml:"file"`
	Range    TextRange `json:"range" yaml:"range"`
	NewText  string    `json:"newText" yaml:"newText"`
}

// QuickFix is an automatic fix proposed by an analyzer.
type QuickFix struct {
	Message string     `json:"message" yaml:"message"`
	Edits   []TextEdit `json:"edits" yaml:"edits"`
}

// RawFinding is a finding detected by the current analysis run. It has no
// persistent identity yet.
type RawFinding struct {
	RuleKey  string `json:"ruleKey" yaml:"ruleKey"`
	Message  string `json:"message" yaml:"message"`
	Severity string `json:"severity,omitempty" yaml:"severity,omitempty"`
	Type     string `json:"type,omitempty" yaml:"type,omitempty"`

	TextRange    *TextRangeWithHash `json:"textRange,omitempty" yaml:"textRange,omitempty"`
	LineWithHash *LineWithHash      `json:"lineWithHash,omitempty" yaml:"lineWithHash,omitempty"`

	CleanCodeAttribute        string     `json:"cleanCodeAttribute,omitempty" yaml:"cleanCodeAttribute,omitempty"`
	Impacts                   []Impact   `json:"impacts,omitempty" yaml:"impacts,omitempty"`
	Flows                     []Flow     `json:"flows,omitempty" yaml:"flows,omitempty"`
	QuickFixes                []QuickFix `json:"quickFixes,omitempty" yaml:"quickFixes,omitempty"`
	RuleDescriptionContextKey string     `json:"ruleDescriptionContextKey,omitempty" yaml:"ruleDescriptionContextKey,omitempty"`
	VulnerabilityProbability  string     `json:"vulnerabilityProbability,omitempty" yaml:"vulnerabilityProbability,omitempty"` // hotspots only
	FileURI                   string     `json:"fileUri,omitempty" yaml:"fileUri,omitempty"`
}

// Line returns the start line of the text range, else the line of the line
// hash, else 0.
func (r *RawFinding) Line() int {
	return lineOf(r.TextRange, r.LineWithHash)
}

// Lines returns the line numbers covered by the finding: every line of the
// text range, else the line-hash line. It returns nil for a finding without
// location.
func (r *RawFinding) Lines() []int {
	if tr := r.TextRange; tr != nil && tr.StartLine > 0 {
		end := tr.EndLine
		if end < tr.StartLine {
			end = tr.StartLine
		}
		lines := make([]int, 0, end-tr.StartLine+1)
		for l := tr.StartLine; l <= end; l++ {
			lines = append(lines, l)
		}
		return lines
	}
	if lh := r.LineWithHash; lh != nil && lh.Number > 0 {
		return []int{lh.Number}
	}
	return nil
}

// KnownFinding is a finding persisted by a previous run. Its fields never
// change during a session.
type KnownFinding struct {
	ID               uuid.UUID          `json:"id"`
	ServerKey        string             `json:"serverKey,omitempty"`
	RuleKey          string             `json:"ruleKey"`
	Message          string             `json:"message"`
	TextRange        *TextRangeWithHash `json:"textRange,omitempty"`
	LineWithHash     *LineWithHash      `json:"lineWithHash,omitempty"`
	IntroductionDate time.Time          `json:"introductionDate"`
}

// Line follows the same rule as RawFinding.Line.
func (k *KnownFinding) Line() int {
	return lineOf(k.TextRange, k.LineWithHash)
}

// TrackedIssue is the outcome of tracking one raw finding. Identity fields
// come from the matched known finding (or are freshly minted); the embedded
// RawFinding carries the presentation fields of this run.
type TrackedIssue struct {
	ID               uuid.UUID `json:"id"`
	FilePath         string    `json:"file"`
	Category         Category  `json:"category"`
	IntroductionDate time.Time `json:"introductionDate"`
	IsNew            bool      `json:"isNew"`
	ServerKey        string    `json:"serverKey,omitempty"`

	// Set by server reconciliation, or by local-only reconciliation for
	// issues the server does not know.
	Resolved     bool             `json:"resolved,omitempty"`
	ReviewStatus string           `json:"reviewStatus,omitempty"`
	Resolution   *LocalResolution `json:"resolution,omitempty"`

	MatchedBy matching.Criterion `json:"matchedBy,omitempty"`

	RawFinding
}

// ToKnownFinding projects the issue back to the shape that gets persisted
// and matched against on the next run.
func (t *TrackedIssue) ToKnownFinding() KnownFinding {
	return KnownFinding{
		ID:               t.ID,
		ServerKey:        t.ServerKey,
		RuleKey:          t.RuleKey,
		Message:          t.Message,
		TextRange:        t.TextRange,
		LineWithHash:     t.LineWithHash,
		IntroductionDate: t.IntroductionDate,
	}
}

// ServerFinding is a finding as known by the server the project is bound
// to. Issue-only and hotspot-only fields are left empty for the other
// category.
type ServerFinding struct {
	Key          string             `json:"key" yaml:"key"`
	RuleKey      string             `json:"ruleKey" yaml:"ruleKey"`
	Message      string             `json:"message" yaml:"message"`
	TextRange    *TextRangeWithHash `json:"textRange,omitempty" yaml:"textRange,omitempty"`
	LineWithHash *LineWithHash      `json:"lineWithHash,omitempty" yaml:"lineWithHash,omitempty"`
	CreationDate time.Time          `json:"creationDate" yaml:"creationDate"`

	Resolved     bool     `json:"resolved,omitempty" yaml:"resolved,omitempty"`
	UserSeverity string   `json:"userSeverity,omitempty" yaml:"userSeverity,omitempty"`
	Type         string   `json:"type,omitempty" yaml:"type,omitempty"`
	Impacts      []Impact `json:"impacts,omitempty" yaml:"impacts,omitempty"`

	ReviewStatus             string `json:"reviewStatus,omitempty" yaml:"reviewStatus,omitempty"`
	VulnerabilityProbability string `json:"vulnerabilityProbability,omitempty" yaml:"vulnerabilityProbability,omitempty"`
}

// ResolutionStatus is how a local-only issue was resolved.
type ResolutionStatus string

// Local resolutions.
const (
	ResolutionWontFix       ResolutionStatus = "WONT_FIX"
	ResolutionFalsePositive ResolutionStatus = "FALSE_POSITIVE"
	ResolutionAccept        ResolutionStatus = "ACCEPT"
)

// ParseResolutionStatus accepts the status names in any case, with '-' or
// '_' as separator.
func ParseResolutionStatus(s string) (ResolutionStatus, error) {
	switch ResolutionStatus(strings.ReplaceAll(strings.ToUpper(s), "-", "_")) {
	case ResolutionWontFix:
		return ResolutionWontFix, nil
	case ResolutionFalsePositive:
		return ResolutionFalsePositive, nil
	case ResolutionAccept:
		return ResolutionAccept, nil
	default:
		return "", fmt.Errorf("unknown resolution status %q", s)
	}
}

// LocalResolution records a resolution the server never saw.
type LocalResolution struct {
	Status  ResolutionStatus `json:"status"`
	Date    time.Time        `json:"date"`
	Comment string           `json:"comment,omitempty"`
}

// LocalOnlyIssue is an issue of a server-bound file that the server does not
// know. It is kept between runs so that a local resolution follows the
// issue like a server resolution would.
type LocalOnlyIssue struct {
	ID           uuid.UUID          `json:"id"`
	RuleKey      string             `json:"ruleKey"`
	Message      string             `json:"message"`
	TextRange    *TextRangeWithHash `json:"textRange,omitempty"`
	LineWithHash *LineWithHash      `json:"lineWithHash,omitempty"`
	Resolution   *LocalResolution   `json:"resolution,omitempty"`
}

// Line follows the same rule as RawFinding.Line.
func (l *LocalOnlyIssue) Line() int {
	return lineOf(l.TextRange, l.LineWithHash)
}

// KnownFindings is the snapshot a Session is seeded with: known findings per
// file path, split by category.
type KnownFindings struct {
	Issues   map[string][]KnownFinding
	Hotspots map[string][]KnownFinding
}

// NewKnownFindings returns an empty snapshot.
func NewKnownFindings() KnownFindings {
	return KnownFindings{
		Issues:   make(map[string][]KnownFinding),
		Hotspots: make(map[string][]KnownFinding),
	}
}

// Add appends findings to the pool of filePath for category.
func (k KnownFindings) Add(filePath string, category Category, findings ...KnownFinding) {
	switch category {
	case CategoryIssue:
		k.Issues[filePath] = append(k.Issues[filePath], findings...)
	case CategoryHotspot:
		k.Hotspots[filePath] = append(k.Hotspots[filePath], findings...)
	}
}

// Get returns the findings of filePath for category.
func (k KnownFindings) Get(filePath string, category Category) []KnownFinding {
	switch category {
	case CategoryIssue:
		return k.Issues[filePath]
	case CategoryHotspot:
		return k.Hotspots[filePath]
	}
	return nil
}

func lineOf(tr *TextRangeWithHash, lh *LineWithHash) int {
	if tr != nil {
		return tr.StartLine
	}
	if lh != nil {
		return lh.Number
	}
	return 0
}
