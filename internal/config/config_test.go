package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lintfix/lintfix/internal/types"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate(), "defaults must pass validation")

	assert.Equal(t, ".", cfg.RepoPath)
	assert.Equal(t, 1, cfg.MaxWorkers)
	assert.Equal(t, 3, cfg.MaxRetries)
	assert.Equal(t, LinterPylint, cfg.Linter)
	assert.Equal(t, FixerAider, cfg.Fixer)
	assert.Equal(t, 100, cfg.MaxLineLength)
	assert.Equal(t, 10, cfg.LineCountMin)
	assert.Equal(t, 200, cfg.LineCountMax)
	assert.Equal(t, 50000, cfg.MaxCodeLength)
	assert.Equal(t, 1000, cfg.MaxQuestionLength)
	assert.Equal(t, 512, cfg.MaxMemoryMB)
	assert.Equal(t, 60, cfg.APIRateLimit)
	assert.Equal(t, 400, cfg.CleanupThresholdMB)
	assert.Equal(t, 5*time.Minute, cfg.CommandTimeout)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().MaxWorkers, cfg.MaxWorkers)
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
repo_path: /work/project
max_workers: 4
linter: ruff
fixer: anthropic
test_command: [pytest, -q]
line_count_min: 5
line_count_max: 400
api_rate_limit: 30
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/work/project", cfg.RepoPath)
	assert.Equal(t, 4, cfg.MaxWorkers)
	assert.Equal(t, "ruff", cfg.Linter)
	assert.Equal(t, FixerAnthropic, cfg.Fixer)
	assert.Equal(t, Argv{"pytest", "-q"}, cfg.TestCommand)
	assert.Equal(t, 30, cfg.APIRateLimit)
	// Untouched keys keep defaults
	assert.Equal(t, 512, cfg.MaxMemoryMB)
	assert.Equal(t, "aider", cfg.AiderPath)
}

func TestLoadTestCommandScalarForm(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("test_command: pytest -x -q\n"), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, Argv{"pytest", "-x", "-q"}, cfg.TestCommand)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("LINTFIX_MAX_WORKERS", "8")
	t.Setenv("LINTFIX_LINTER", "flake8")
	t.Setenv("LINTFIX_DEBUG", "true")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 8, cfg.MaxWorkers)
	assert.Equal(t, "flake8", cfg.Linter)
	assert.True(t, cfg.Debug)
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"zero workers", func(c *Config) { c.MaxWorkers = 0 }, "max_workers"},
		{"unknown linter", func(c *Config) { c.Linter = "clippy" }, "linter"},
		{"unknown fixer", func(c *Config) { c.Fixer = "copilot" }, "fixer"},
		{"line count inversion", func(c *Config) { c.LineCountMin = 300 }, "line_count_min"},
		{"cpu percent out of range", func(c *Config) { c.MaxCPUPercent = 150 }, "max_cpu_percent"},
		{"zero rate limit", func(c *Config) { c.APIRateLimit = 0 }, "api_rate_limit"},
		{"empty test command", func(c *Config) { c.TestCommand = nil }, "test_command"},
		{"zero timeout", func(c *Config) { c.CommandTimeout = 0 }, "command_timeout"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)

			var verr *types.ValidationError
			require.True(t, errors.As(err, &verr), "expected ValidationError, got %T", err)
			assert.Equal(t, tt.field, verr.Field)
		})
	}
}

func TestEmptyTestCommandAllowedInDryRun(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TestCommand = nil
	cfg.DryRun = true
	assert.NoError(t, cfg.Validate())
}

func TestLinterSet(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, []string{"pylint"}, cfg.LinterSet())

	cfg.Linters = []string{"ruff", "pylint", "ruff"}
	assert.Equal(t, []string{"ruff", "pylint"}, cfg.LinterSet(), "duplicates collapse, order kept")
}

func TestDatabasePathResolution(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RepoPath = "/work/project"
	assert.Equal(t, filepath.Join("/work/project", ".lintfix", "suggestions.db"), cfg.DatabasePath())

	cfg.Database = "/var/lib/lintfix.db"
	assert.Equal(t, "/var/lib/lintfix.db", cfg.DatabasePath())

	cfg.Database = "postgres://lintfix@localhost:5432/lintfix"
	assert.Equal(t, cfg.Database, cfg.DatabasePath(), "DSNs pass through")
}

func TestDefaultDangerousPatternsCoverage(t *testing.T) {
	patterns := DefaultDangerousPatterns()
	require.Contains(t, patterns, "python")
	require.Contains(t, patterns, "shell")
	assert.Contains(t, patterns["shell"], "rm -rf")
	assert.Contains(t, patterns["python"], "os.system")
}

func TestConfigSummaryMentionsKeySettings(t *testing.T) {
	cfg := DefaultConfig()
	summary := cfg.Summary()
	assert.Contains(t, summary, "Max Workers: 1")
	assert.Contains(t, summary, "Linter: pylint")
	assert.Contains(t, summary, "Test Command: pytest -x -q")
}
