package agent

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/gobwas/glob"

	"github.com/lintfix/lintfix/internal/config"
	"github.com/lintfix/lintfix/internal/types"
)

// filter is the compiled discovery policy: which tracked files are worth a
// remediation attempt.
type filter struct {
	target      string
	extensions  []string
	excludeDirs map[string]bool
	include     []glob.Glob
	exclude     []glob.Glob
	minLines    int
	maxLines    int
}

func newFilter(cfg *config.Config) (*filter, error) {
	excluded := make(map[string]bool, len(cfg.ExcludeDirs)+1)
	for _, dir := range cfg.ExcludeDirs {
		excluded[dir] = true
	}
	// The virtualenv usually lives inside the repo, so its directory joins
	// the exclusion set.
	if cfg.VenvDir != "" {
		excluded[cfg.VenvDir] = true
	}

	include, err := compileGlobs(cfg.IncludeGlobs, "include_globs")
	if err != nil {
		return nil, err
	}
	exclude, err := compileGlobs(cfg.ExcludeGlobs, "exclude_globs")
	if err != nil {
		return nil, err
	}

	return &filter{
		target:      filepath.ToSlash(cfg.TargetFile),
		extensions:  cfg.FileExtensions,
		excludeDirs: excluded,
		include:     include,
		exclude:     exclude,
		minLines:    cfg.LineCountMin,
		maxLines:    cfg.LineCountMax,
	}, nil
}

func compileGlobs(patterns []string, field string) ([]glob.Glob, error) {
	globs := make([]glob.Glob, 0, len(patterns))
	for _, pattern := range patterns {
		g, err := glob.Compile(pattern)
		if err != nil {
			return nil, types.NewValidationError(field, "invalid pattern %q: %v", pattern, err)
		}
		globs = append(globs, g)
	}
	return globs, nil
}

// eligible applies the path-level checks. Content checks (emptiness, line
// bounds) happen separately so an unreadable file degrades to a warning
// instead of failing the run.
func (f *filter) eligible(p string) bool {
	if f.target != "" && p != f.target {
		return false
	}
	if !f.hasExtension(p) {
		return false
	}
	for _, part := range strings.Split(p, "/") {
		if f.excludeDirs[part] {
			return false
		}
	}
	base := path.Base(p)
	if strings.HasPrefix(base, "test_") || strings.Contains(base, "__") {
		return false
	}
	if len(f.include) > 0 && !matchAny(f.include, p) {
		return false
	}
	return !matchAny(f.exclude, p)
}

func (f *filter) hasExtension(p string) bool {
	if len(f.extensions) == 0 {
		return true
	}
	for _, ext := range f.extensions {
		if strings.HasSuffix(p, ext) {
			return true
		}
	}
	return false
}

func matchAny(globs []glob.Glob, p string) bool {
	for _, g := range globs {
		if g.Match(p) {
			return true
		}
	}
	return false
}

// withinLineBounds reads the file and applies the emptiness and line-count
// rules: empty files have nothing to fix, tiny ones are noise, and large
// ones are unsafe to hand to a model in one pass.
func (f *filter) withinLineBounds(absPath string) (bool, error) {
	data, err := os.ReadFile(absPath)
	if err != nil {
		return false, err
	}
	if len(data) == 0 {
		return false, nil
	}
	lines := bytes.Count(data, []byte{'\n'})
	if data[len(data)-1] != '\n' {
		lines++
	}
	return lines >= f.minLines && lines <= f.maxLines, nil
}

// discover builds the candidate list: tracked files that pass the filter
// chain, in git index order, deduplicated.
func (a *Agent) discover(ctx context.Context) ([]string, error) {
	tracked, err := a.git.ListTrackedFiles(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list tracked files: %w", err)
	}

	seen := make(map[string]bool, len(tracked))
	files := make([]string, 0, len(tracked))
	for _, raw := range tracked {
		p := filepath.ToSlash(raw)
		if seen[p] || !a.filter.eligible(p) {
			continue
		}
		seen[p] = true
		ok, err := a.filter.withinLineBounds(filepath.Join(a.cfg.RepoPath, filepath.FromSlash(p)))
		if err != nil {
			fmt.Fprintf(os.Stderr, "warning: skipping %s: %v\n", p, err)
			continue
		}
		if !ok {
			continue
		}
		files = append(files, p)
	}
	return files, nil
}
