// Package pattern expands glob patterns against a repository tree
// listing. Matching is case-sensitive against full relative paths:
// '*' never crosses a path separator, '**' does. A pattern with no
// glob metacharacters is a literal and matches only itself.
//
// Note that '**' is a plain super-wildcard: "**/*.py" matches nested
// files but not root-level ones; include "*.py" as well to cover the
// repository root.
package pattern

import (
	"sort"
	"strings"

	"github.com/gobwas/glob"

	"repofetch/internal/errors"
)

// defaultExcludes are always applied in addition to caller excludes,
// never instead of them. Both anchored and nested forms are listed
// because '**/' does not match the empty prefix.
var defaultExcludes = []string{
	".git/**", "**/.git/**",
	"node_modules/**", "**/node_modules/**",
	"__pycache__/**", "**/__pycache__/**",
	".venv/**", "**/.venv/**",
	"venv/**", "**/venv/**",
	".idea/**", "**/.idea/**",
	".vscode/**", "**/.vscode/**",
	"*.pyc", "**/*.pyc",
	".DS_Store", "**/.DS_Store",
}

// DefaultExcludes returns a copy of the built-in exclusion patterns.
func DefaultExcludes() []string {
	out := make([]string, len(defaultExcludes))
	copy(out, defaultExcludes)
	return out
}

// IsPattern reports whether s contains glob metacharacters. Anything
// else is treated as a literal path.
func IsPattern(s string) bool {
	return strings.ContainsAny(s, "*?[{")
}

// matcher is one compiled include or exclude: either a literal path
// or a compiled glob.
type matcher struct {
	literal string
	g       glob.Glob
}

func (m matcher) match(path string) bool {
	if m.g != nil {
		return m.g.Match(path)
	}
	return m.literal == path
}

func compile(patterns []string) ([]matcher, error) {
	matchers := make([]matcher, 0, len(patterns))
	for _, p := range patterns {
		if !IsPattern(p) {
			matchers = append(matchers, matcher{literal: p})
			continue
		}
		g, err := glob.Compile(p, '/')
		if err != nil {
			return nil, errors.Wrap(errors.ParseError, "invalid glob pattern", err).WithPath(p)
		}
		matchers = append(matchers, matcher{g: g})
	}
	return matchers, nil
}

// Resolve returns the tree paths matched by any include pattern and no
// exclude pattern, deduplicated and sorted. A literal include that is
// absent from the tree contributes zero matches; the caller sees the
// miss as an empty result, not an error.
func Resolve(tree []string, patterns, excludes []string) ([]string, error) {
	includes, err := compile(patterns)
	if err != nil {
		return nil, err
	}
	all := make([]string, 0, len(excludes)+len(defaultExcludes))
	all = append(all, excludes...)
	all = append(all, defaultExcludes...)
	exclusions, err := compile(all)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	matched := make([]string, 0)
	for _, path := range tree {
		if seen[path] {
			continue
		}
		if !matchesAny(includes, path) || matchesAny(exclusions, path) {
			continue
		}
		seen[path] = true
		matched = append(matched, path)
	}

	sort.Strings(matched)
	return matched, nil
}

func matchesAny(matchers []matcher, path string) bool {
	for _, m := range matchers {
		if m.match(path) {
			return true
		}
	}
	return false
}
