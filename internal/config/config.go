package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/lintfix/lintfix/internal/types"
)

// Supported linter backends
const (
	LinterPylint = "pylint"
	LinterFlake8 = "flake8"
	LinterRuff   = "ruff"
)

// Supported fixer backends
const (
	FixerAider     = "aider"
	FixerAnthropic = "anthropic"
)

// Argv is a command argument vector. It unmarshals from either a YAML
// sequence or a whitespace-separated scalar, so both forms work:
//
//	test_command: [pytest, -x, -q]
//	test_command: pytest -x -q
type Argv []string

// UnmarshalYAML implements yaml.Unmarshaler
func (a *Argv) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		*a = Argv(strings.Fields(value.Value))
		return nil
	case yaml.SequenceNode:
		var parts []string
		if err := value.Decode(&parts); err != nil {
			return err
		}
		*a = Argv(parts)
		return nil
	default:
		return fmt.Errorf("test_command must be a string or a list of strings")
	}
}

// Config holds the full run configuration. Values load from a YAML file,
// then LINTFIX_-prefixed environment variables override, then CLI flags.
type Config struct {
	// RepoPath is the git working tree the run operates on
	// Default: "."
	RepoPath string `yaml:"repo_path"`

	// MaxWorkers is the size of the worker pool (and the admission
	// semaphore). Default: 1
	MaxWorkers int `yaml:"max_workers"`

	// MaxRetries is the per-file fix/validate retry budget
	// Default: 3
	MaxRetries int `yaml:"max_retries"`

	// Debug enables verbose progress traces
	Debug bool `yaml:"debug"`

	// DryRun stops after lint+group: no fixes, no commits
	DryRun bool `yaml:"dry_run"`

	// TargetFile restricts the run to a single file (CLI --file)
	TargetFile string `yaml:"target_file"`

	// Linter is the primary linter backend (pylint/flake8/ruff)
	// Default: pylint
	Linter string `yaml:"linter"`

	// Linters optionally runs several backends in order; when set it
	// overrides Linter. Partial-results policy applies across the set.
	Linters []string `yaml:"linters"`

	// Fixer selects the remediation backend (aider/anthropic)
	// Default: aider
	Fixer string `yaml:"fixer"`

	// AiderPath is the aider executable
	// Default: "aider" (resolved via PATH)
	AiderPath string `yaml:"aider_path"`

	// AiderModel is the primary model passed to aider
	AiderModel string `yaml:"aider_model"`

	// AiderWeakModel is the fallback model used on the final retry
	AiderWeakModel string `yaml:"aider_weak_model"`

	// AnthropicModel is the model for the API fixer, commit messages,
	// and ask mode
	AnthropicModel string `yaml:"anthropic_model"`

	// TestCommand validates each fix; run from RepoPath
	// Default: [pytest, -x, -q]
	TestCommand Argv `yaml:"test_command"`

	// VenvPath/VenvDir activate a Python virtualenv for linters, tests,
	// and formatters. Empty = inherit the current environment.
	VenvPath string `yaml:"venv_path"`
	VenvDir  string `yaml:"venv_dir"`

	// MaxLineLength is passed to formatters
	// Default: 100
	MaxLineLength int `yaml:"max_line_length"`

	// AutopepFix runs autopep8 --in-place before linting
	AutopepFix bool `yaml:"autopep8_fix"`

	// EnableBlack runs black before linting and after fixes
	EnableBlack bool `yaml:"enable_black"`

	// LineCountMin/LineCountMax bound discovery: smaller files are noise,
	// larger ones are unsafe to auto-fix in one pass
	// Defaults: 10 / 200
	LineCountMin int `yaml:"line_count_min"`
	LineCountMax int `yaml:"line_count_max"`

	// MaxCodeLength/MaxQuestionLength bound ask-mode inputs
	// Defaults: 50000 / 1000
	MaxCodeLength     int `yaml:"max_code_length"`
	MaxQuestionLength int `yaml:"max_question_length"`

	// MaxMemoryMB is the advisory aggregate memory ceiling
	// Default: 512
	MaxMemoryMB int `yaml:"max_memory_mb"`

	// MaxCPUPercent is advisory and recorded for diagnostics only
	// Default: 80
	MaxCPUPercent float64 `yaml:"max_cpu_percent"`

	// APIRateLimit is AI calls per minute (token bucket size)
	// Default: 60
	APIRateLimit int `yaml:"api_rate_limit"`

	// CleanupThresholdMB triggers opportunistic temp cleanup
	// Default: 400
	CleanupThresholdMB int `yaml:"cleanup_threshold_mb"`

	// CommandTimeout bounds every subprocess invocation
	// Default: 5m
	CommandTimeout time.Duration `yaml:"command_timeout"`

	// Database is a sqlite path or a postgres:// DSN for the suggestion
	// store. Default: .lintfix/suggestions.db under RepoPath
	Database string `yaml:"database"`

	// DBTimeout/DBRetries apply to store connections
	// Defaults: 30s / 3
	DBTimeout time.Duration `yaml:"db_timeout"`
	DBRetries int           `yaml:"db_retries"`

	// FileExtensions filters discovery
	// Default: [.py]
	FileExtensions []string `yaml:"file_extensions"`

	// ExcludeDirs are skipped during discovery
	// Default: [venv, .git, benchmark, tests]
	ExcludeDirs []string `yaml:"exclude_dirs"`

	// IncludeGlobs/ExcludeGlobs refine discovery with glob patterns
	// (matched against repo-relative paths)
	IncludeGlobs []string `yaml:"include_globs"`
	ExcludeGlobs []string `yaml:"exclude_globs"`

	// DangerousPatterns is the per-language deny list applied to every
	// subprocess argv and to code submitted in ask mode
	DangerousPatterns map[string][]string `yaml:"dangerous_patterns"`

	// Retention governs pruning of stored run events
	Retention EventRetentionConfig `yaml:"retention"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		RepoPath:           ".",
		MaxWorkers:         1,
		MaxRetries:         3,
		Linter:             LinterPylint,
		Fixer:              FixerAider,
		AiderPath:          "aider",
		AiderModel:         "openrouter/anthropic/claude-3.5-sonnet:beta",
		AiderWeakModel:     "openrouter/anthropic/claude-3-haiku-20240307",
		AnthropicModel:     "claude-sonnet-4-5",
		TestCommand:        Argv{"pytest", "-x", "-q"},
		MaxLineLength:      100,
		LineCountMin:       10,
		LineCountMax:       200,
		MaxCodeLength:      50000,
		MaxQuestionLength:  1000,
		MaxMemoryMB:        512,
		MaxCPUPercent:      80.0,
		APIRateLimit:       60,
		CleanupThresholdMB: 400,
		CommandTimeout:     5 * time.Minute,
		Database:           filepath.Join(".lintfix", "suggestions.db"),
		DBTimeout:          30 * time.Second,
		DBRetries:          3,
		FileExtensions:     []string{".py"},
		ExcludeDirs:        []string{"venv", ".git", "benchmark", "tests"},
		DangerousPatterns:  DefaultDangerousPatterns(),
		Retention:          DefaultEventRetentionConfig(),
	}
}

// DefaultDangerousPatterns returns the built-in per-language deny list
func DefaultDangerousPatterns() map[string][]string {
	return map[string][]string{
		"python": {
			"os.system", "subprocess.call", "subprocess.run", "eval(",
			"exec(", "__import__", "importlib", "pty.", "popen",
		},
		"shell": {
			"rm -rf", "mkfs", "dd if=", "> /dev/", ":(){", "sudo rm",
		},
	}
}

// Load reads the YAML file at path (missing file = defaults), applies
// environment overrides, and validates. A nil error guarantees the config
// is runnable.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("reading config file: %w", err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv applies LINTFIX_-prefixed environment overrides
func (c *Config) applyEnv() {
	if v := os.Getenv("LINTFIX_REPO_PATH"); v != "" {
		c.RepoPath = v
	}
	if v := os.Getenv("LINTFIX_MAX_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 1 {
			c.MaxWorkers = n
		}
	}
	if v := os.Getenv("LINTFIX_LINTER"); v != "" {
		c.Linter = v
	}
	if v := os.Getenv("LINTFIX_FIXER"); v != "" {
		c.Fixer = v
	}
	if v := os.Getenv("LINTFIX_AIDER_PATH"); v != "" {
		c.AiderPath = v
	}
	if v := os.Getenv("LINTFIX_AIDER_MODEL"); v != "" {
		c.AiderModel = v
	}
	if v := os.Getenv("LINTFIX_AIDER_WEAK_MODEL"); v != "" {
		c.AiderWeakModel = v
	}
	if v := os.Getenv("LINTFIX_ANTHROPIC_MODEL"); v != "" {
		c.AnthropicModel = v
	}
	if v := os.Getenv("LINTFIX_DATABASE"); v != "" {
		c.Database = v
	}
	if v := os.Getenv("LINTFIX_API_RATE_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 1 {
			c.APIRateLimit = n
		}
	}
	if v := os.Getenv("LINTFIX_DEBUG"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Debug = b
		}
	}
}

// LinterSet returns the effective, deduplicated linter backends in order
func (c *Config) LinterSet() []string {
	if len(c.Linters) > 0 {
		seen := make(map[string]bool, len(c.Linters))
		out := make([]string, 0, len(c.Linters))
		for _, l := range c.Linters {
			if !seen[l] {
				seen[l] = true
				out = append(out, l)
			}
		}
		return out
	}
	return []string{c.Linter}
}

// Budget derives the ResourceBudget the governor enforces
func (c *Config) Budget() types.ResourceBudget {
	return types.ResourceBudget{
		MaxWorkers:         c.MaxWorkers,
		MaxMemoryMB:        c.MaxMemoryMB,
		APIRateLimit:       c.APIRateLimit,
		CleanupThresholdMB: c.CleanupThresholdMB,
	}
}

// DatabasePath resolves a relative sqlite path against RepoPath.
// Postgres DSNs pass through untouched.
func (c *Config) DatabasePath() string {
	if strings.HasPrefix(c.Database, "postgres://") || strings.HasPrefix(c.Database, "postgresql://") {
		return c.Database
	}
	if filepath.IsAbs(c.Database) {
		return c.Database
	}
	return filepath.Join(c.RepoPath, c.Database)
}

func validLinter(name string) bool {
	switch name {
	case LinterPylint, LinterFlake8, LinterRuff:
		return true
	}
	return false
}

// Validate checks the configuration. Violations surface as ValidationError
// and abort the run before any worker starts.
func (c *Config) Validate() error {
	if c.RepoPath == "" {
		return types.NewValidationError("repo_path", "cannot be empty")
	}
	if c.MaxWorkers < 1 {
		return types.NewValidationError("max_workers", "must be at least 1 (got %d)", c.MaxWorkers)
	}
	if c.MaxRetries < 0 {
		return types.NewValidationError("max_retries", "cannot be negative (got %d)", c.MaxRetries)
	}
	for _, l := range c.LinterSet() {
		if !validLinter(l) {
			return types.NewValidationError("linter", "unsupported linter %q (want pylint, flake8, or ruff)", l)
		}
	}
	if c.Fixer != FixerAider && c.Fixer != FixerAnthropic {
		return types.NewValidationError("fixer", "unsupported fixer %q (want aider or anthropic)", c.Fixer)
	}
	if len(c.TestCommand) == 0 && !c.DryRun {
		return types.NewValidationError("test_command", "cannot be empty: fixes must be validated before commit")
	}
	if c.LineCountMin >= c.LineCountMax {
		return types.NewValidationError("line_count_min", "must be less than line_count_max (%d >= %d)", c.LineCountMin, c.LineCountMax)
	}
	if c.MaxCPUPercent < 0 || c.MaxCPUPercent > 100 {
		return types.NewValidationError("max_cpu_percent", "must be between 0 and 100 (got %.1f)", c.MaxCPUPercent)
	}
	if c.APIRateLimit < 1 {
		return types.NewValidationError("api_rate_limit", "must be at least 1 (got %d)", c.APIRateLimit)
	}
	if c.MaxMemoryMB < 1 {
		return types.NewValidationError("max_memory_mb", "must be positive (got %d)", c.MaxMemoryMB)
	}
	if c.MaxCodeLength < 1 {
		return types.NewValidationError("max_code_length", "must be positive (got %d)", c.MaxCodeLength)
	}
	if c.MaxQuestionLength < 1 {
		return types.NewValidationError("max_question_length", "must be positive (got %d)", c.MaxQuestionLength)
	}
	if c.CommandTimeout <= 0 {
		return types.NewValidationError("command_timeout", "must be positive (got %v)", c.CommandTimeout)
	}
	if c.Database == "" {
		return types.NewValidationError("database", "cannot be empty")
	}
	if err := c.Retention.Validate(); err != nil {
		return types.NewValidationError("retention", "%v", err)
	}
	budget := c.Budget()
	if err := budget.Validate(); err != nil {
		return types.NewValidationError("resources", "%v", err)
	}
	return nil
}

// Summary renders the reviewable run settings, one per line
func (c *Config) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Repo Path: %s\n", c.RepoPath)
	fmt.Fprintf(&b, "Linter: %s\n", strings.Join(c.LinterSet(), ", "))
	fmt.Fprintf(&b, "Fixer: %s\n", c.Fixer)
	if c.Fixer == FixerAider {
		fmt.Fprintf(&b, "Aider Model: %s\n", c.AiderModel)
		fmt.Fprintf(&b, "Aider Weak Model: %s\n", c.AiderWeakModel)
	} else {
		fmt.Fprintf(&b, "Anthropic Model: %s\n", c.AnthropicModel)
	}
	fmt.Fprintf(&b, "Test Command: %s\n", strings.Join(c.TestCommand, " "))
	fmt.Fprintf(&b, "Max Workers: %d\n", c.MaxWorkers)
	fmt.Fprintf(&b, "Max Retries: %d\n", c.MaxRetries)
	fmt.Fprintf(&b, "Line Count Range: %d-%d\n", c.LineCountMin, c.LineCountMax)
	fmt.Fprintf(&b, "Max Line Length: %d\n", c.MaxLineLength)
	fmt.Fprintf(&b, "Autopep8 Fix: %t\n", c.AutopepFix)
	fmt.Fprintf(&b, "Enable Black: %t\n", c.EnableBlack)
	fmt.Fprintf(&b, "API Rate Limit: %d/min\n", c.APIRateLimit)
	fmt.Fprintf(&b, "Max Memory: %d MB\n", c.MaxMemoryMB)
	fmt.Fprintf(&b, "Database: %s\n", c.Database)
	return b.String()
}
