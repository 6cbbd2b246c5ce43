package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/lintfix/lintfix/internal/config"
)

func TestParseGitVersion(t *testing.T) {
	tests := []struct {
		name     string
		out      string
		expected string
	}{
		{"standard", "git version 2.39.2\n", "v2.39.2"},
		{"vendor suffix trimmed", "git version 2.39.2.windows.1\n", "v2.39.2"},
		{"apple build note ignored", "git version 2.37.1 (Apple Git-137.1)\n", "v2.37.1"},
		{"two components accepted", "git version 2.39\n", "v2.39"},
		{"missing version field", "git version\n", ""},
		{"not git output", "zsh: command not found", ""},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := parseGitVersion(tt.out); got != tt.expected {
				t.Errorf("parseGitVersion(%q) = %q, want %q", tt.out, got, tt.expected)
			}
		})
	}
}

func TestPylintConfigured(t *testing.T) {
	repo := t.TempDir()
	if pylintConfigured(repo) {
		t.Error("empty repo should count as unconfigured")
	}

	if err := os.WriteFile(filepath.Join(repo, "pyproject.toml"), []byte("[tool.pylint]\n"), 0o644); err != nil {
		t.Fatalf("write pyproject.toml: %v", err)
	}
	if !pylintConfigured(repo) {
		t.Error("pyproject.toml should count as pylint configuration")
	}
}

func TestHasLinter(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Linters = []string{"ruff", "pylint"}

	if !hasLinter(cfg, config.LinterPylint) {
		t.Error("expected pylint in the linter set")
	}
	if !hasLinter(cfg, config.LinterRuff) {
		t.Error("expected ruff in the linter set")
	}
	if hasLinter(cfg, config.LinterFlake8) {
		t.Error("flake8 should not be in the linter set")
	}
}
