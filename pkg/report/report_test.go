package report

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SonarSource/sonarlint-core-sub018/pkg/httputil"
	"github.com/SonarSource/sonarlint-core-sub018/pkg/tracking"
)

const yamlReport = `
analyzer: sonar-go
files:
  - path: src/main.go
    issues:
      - ruleKey: go:S1192
        message: Define a constant instead of duplicating this literal
        severity: CRITICAL
        textRange:
          startLine: 10
          startLineOffset: 4
          endLine: 12
          endLineOffset: 1
          hash: abc
        impacts:
          - softwareQuality: MAINTAINABILITY
            severity: HIGH
    hotspots:
      - ruleKey: go:S2068
        message: Review this hard-coded password
        lineWithHash:
          number: 3
          hash: lh3
        vulnerabilityProbability: HIGH
    serverIssues:
      - key: AX-1
        ruleKey: go:S1192
        message: Define a constant instead of duplicating this literal
        creationDate: 2022-03-04T05:06:07Z
        resolved: true
  - path: ""
    issues:
      - ruleKey: go:S9999
        message: project-level finding
`

const jsonReport = `{
  "files": [
    {
      "path": "a.go",
      "issues": [
        {"ruleKey": "go:S1", "message": "m", "textRange": {"startLine": 2, "startLineOffset": 0, "endLine": 2, "endLineOffset": 5, "hash": "h2"}}
      ]
    }
  ]
}`

func TestDecode_YAML(t *testing.T) {
	rep, err := Decode(strings.NewReader(yamlReport), FormatYAML)
	require.NoError(t, err)

	assert.Equal(t, "sonar-go", rep.Analyzer)
	require.Len(t, rep.Files, 2)
	src := rep.Files[0]

	require.Len(t, src.Issues, 1)
	issue := src.Issues[0]
	assert.Equal(t, "go:S1192", issue.RuleKey)
	require.NotNil(t, issue.TextRange)
	assert.Equal(t, 10, issue.TextRange.StartLine)
	assert.Equal(t, 12, issue.TextRange.EndLine)
	assert.Equal(t, "abc", issue.TextRange.Hash)
	assert.Equal(t, []tracking.Impact{{SoftwareQuality: "MAINTAINABILITY", Severity: "HIGH"}}, issue.Impacts)

	require.Len(t, src.Hotspots, 1)
	assert.Equal(t, 3, src.Hotspots[0].Line())
	assert.Equal(t, "HIGH", src.Hotspots[0].VulnerabilityProbability)

	require.Len(t, src.ServerIssues, 1)
	assert.True(t, time.Date(2022, 3, 4, 5, 6, 7, 0, time.UTC).Equal(src.ServerIssues[0].CreationDate))
	assert.True(t, src.ServerIssues[0].Resolved)

	assert.Equal(t, []string{"src/main.go"}, rep.Paths())
	assert.True(t, rep.HasServerFindings())

	rep.DropServerFindings()
	assert.False(t, rep.HasServerFindings())
	assert.Len(t, rep.Files[0].Issues, 1)
}

func TestDecode_JSON(t *testing.T) {
	rep, err := Decode(strings.NewReader(jsonReport), FormatJSON)
	require.NoError(t, err)

	require.Len(t, rep.Files, 1)
	raw := rep.Files[0].Raw(tracking.CategoryIssue)
	require.Len(t, raw, 1)
	assert.Equal(t, []int{2}, raw[0].Lines())
	assert.Equal(t, "h2", raw[0].TextRange.Hash)
	assert.Empty(t, rep.Files[0].Raw(tracking.CategoryHotspot))
	assert.False(t, rep.HasServerFindings())
}

func TestDecode_RejectsFindingWithoutRule(t *testing.T) {
	_, err := Decode(strings.NewReader(`{"files":[{"path":"a.go","issues":[{"message":"m"}]}]}`), FormatJSON)
	assert.ErrorContains(t, err, "no rule key")
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	yml := filepath.Join(dir, "run.yml")
	require.NoError(t, os.WriteFile(yml, []byte(yamlReport), 0o644))
	js := filepath.Join(dir, "run.json")
	require.NoError(t, os.WriteFile(js, []byte(jsonReport), 0o644))

	rep, err := Load(yml)
	require.NoError(t, err)
	assert.Len(t, rep.Files, 2)

	rep, err = Load(js)
	require.NoError(t, err)
	assert.Len(t, rep.Files, 1)

	_, err = Load(filepath.Join(dir, "run.txt"))
	assert.Error(t, err)

	_, err = Load(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)
}

func TestIsReportFile(t *testing.T) {
	assert.True(t, IsReportFile("a/b.JSON"))
	assert.True(t, IsReportFile("b.yaml"))
	assert.False(t, IsReportFile("b.go"))
}

func TestFilter(t *testing.T) {
	r := &Report{Files: []FileReport{
		{Path: "src/a.go"},
		{Path: "gen/b.pb.go"},
		{Path: ""},
		{Path: "src/c.go"},
	}}

	removed := r.Filter(func(path string) bool { return strings.HasSuffix(path, ".pb.go") })

	assert.Equal(t, 1, removed)
	assert.Equal(t, []string{"src/a.go", "src/c.go"}, r.Paths())
	assert.Len(t, r.Files, 3)
}

func TestFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/run.yaml":
			w.Write([]byte(yamlReport))
		case "/latest":
			w.Header().Set("Content-Type", "application/json; charset=utf-8")
			w.Write([]byte(`{"files":[{"path":"x.go","issues":[{"ruleKey":"S1","message":"m"}]}]}`))
		case "/opaque":
			w.Header().Set("Content-Type", "text/plain")
			w.Write([]byte("nothing"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	client := httputil.NewClient(httputil.WithMaxRetries(0))
	ctx := context.Background()

	r, err := Fetch(ctx, client, srv.URL+"/run.yaml")
	require.NoError(t, err)
	assert.Equal(t, "sonar-go", r.Analyzer)

	r, err = Fetch(ctx, client, srv.URL+"/latest")
	require.NoError(t, err)
	assert.Equal(t, []string{"x.go"}, r.Paths())

	_, err = Fetch(ctx, client, srv.URL+"/opaque")
	assert.ErrorContains(t, err, "unsupported report content type")

	_, err = Fetch(ctx, client, srv.URL+"/gone.json")
	assert.Error(t, err)
}
