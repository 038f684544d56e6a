package core

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// InputResolver expands glob patterns against the pipeline directory.
//
// Expansion is deterministic: matches are returned relative to BaseDir, with
// forward slashes, directories dropped, strictly sorted and de-duplicated.
type InputResolver struct {
	// BaseDir is the working directory for resolving relative paths.
	BaseDir string
}

// NewInputResolver creates a new InputResolver with the given base directory.
func NewInputResolver(baseDir string) *InputResolver {
	return &InputResolver{BaseDir: baseDir}
}

// Resolve expands all patterns. A pattern without glob characters names a
// literal path and is returned only if the file exists.
func (r *InputResolver) Resolve(patterns []string) ([]string, error) {
	set := make(map[string]struct{})
	for _, pattern := range patterns {
		expanded, err := r.expandPattern(pattern)
		if err != nil {
			return nil, fmt.Errorf("expanding pattern %q: %w", pattern, err)
		}
		for _, p := range expanded {
			set[p] = struct{}{}
		}
	}

	paths := make([]string, 0, len(set))
	for p := range set {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths, nil
}

func (r *InputResolver) expandPattern(pattern string) ([]string, error) {
	full := pattern
	if !filepath.IsAbs(pattern) {
		full = filepath.Join(r.BaseDir, filepath.FromSlash(pattern))
	}

	matches, err := filepath.Glob(full)
	if err != nil {
		return nil, fmt.Errorf("invalid glob pattern: %w", err)
	}

	out := make([]string, 0, len(matches))
	for _, m := range matches {
		info, err := os.Stat(m)
		if err != nil {
			return nil, fmt.Errorf("stat %q: %w", m, err)
		}
		if info.IsDir() {
			continue
		}
		if !filepath.IsAbs(pattern) {
			rel, err := filepath.Rel(r.BaseDir, m)
			if err != nil {
				return nil, err
			}
			m = rel
		}
		out = append(out, filepath.ToSlash(m))
	}
	return out, nil
}

// Match reports whether path matches the glob pattern using the same
// semantics as Resolve.
func Match(pattern, path string) bool {
	ok, err := filepath.Match(filepath.FromSlash(pattern), filepath.FromSlash(path))
	return err == nil && ok
}
