package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, base, content string) {
	t.Helper()
	dir := filepath.Join(base, DirName)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte(content), 0o644))
}

func TestLoad_Defaults(t *testing.T) {
	base := t.TempDir()

	cfg, err := Load(base, nil)
	require.NoError(t, err)

	assert.Equal(t, base, cfg.BaseDir)
	assert.Equal(t, filepath.Join(base, DirName), cfg.DataDir)
	assert.Equal(t, DefaultScope, cfg.Scope)
	assert.Equal(t, DefaultConcurrency, cfg.Concurrency)
	assert.Equal(t, DefaultLogLevel, cfg.LogLevel)
	assert.True(t, cfg.ServerFindings)
	assert.Equal(t, DefaultDebounce, cfg.Watch.Debounce)
	assert.Empty(t, cfg.Watch.ReportsDir)
}

func TestLoad_Layering(t *testing.T) {
	base := t.TempDir()
	writeConfigFile(t, base, `{
		"scope": "from-file",
		"concurrency": 2,
		"data_dir": "data",
		"watch": {"debounce": "5s", "reports_dir": "reports"}
	}`)

	t.Run("file", func(t *testing.T) {
		cfg, err := Load(base, nil)
		require.NoError(t, err)
		assert.Equal(t, "from-file", cfg.Scope)
		assert.Equal(t, 2, cfg.Concurrency)
		assert.Equal(t, filepath.Join(base, "data"), cfg.DataDir)
		assert.Equal(t, 5*time.Second, cfg.Watch.Debounce)
		assert.Equal(t, filepath.Join(base, "reports"), cfg.Watch.ReportsDir)
	})

	t.Run("env over file", func(t *testing.T) {
		t.Setenv("ISSUETRACK_SCOPE", "from-env")
		t.Setenv("ISSUETRACK_CONCURRENCY", "8")
		t.Setenv("ISSUETRACK_SERVER_FINDINGS", "false")
		t.Setenv("ISSUETRACK_WATCH__DEBOUNCE", "250ms")

		cfg, err := Load(base, nil)
		require.NoError(t, err)
		assert.Equal(t, "from-env", cfg.Scope)
		assert.Equal(t, 8, cfg.Concurrency)
		assert.False(t, cfg.ServerFindings)
		assert.Equal(t, 250*time.Millisecond, cfg.Watch.Debounce)
	})

	t.Run("overrides over env", func(t *testing.T) {
		t.Setenv("ISSUETRACK_SCOPE", "from-env")

		cfg, err := Load(base, map[string]any{"scope": "from-flag", "log_level": "debug"})
		require.NoError(t, err)
		assert.Equal(t, "from-flag", cfg.Scope)
		assert.Equal(t, "debug", cfg.LogLevel)
	})
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		config string
	}{
		{"malformed json", `{"scope": `},
		{"empty scope", `{"scope": ""}`},
		{"zero concurrency", `{"concurrency": 0}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			base := t.TempDir()
			writeConfigFile(t, base, tt.config)

			_, err := Load(base, nil)
			assert.Error(t, err)
		})
	}
}

func TestEnvKey(t *testing.T) {
	key, value := envKey("ISSUETRACK_WATCH__REPORTS_DIR", "out")
	assert.Equal(t, "watch.reports_dir", key)
	assert.Equal(t, "out", value)
}
