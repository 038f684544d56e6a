// Package naming decodes the sample naming convention that the pipeline
// relies on:
//
//	<group>-<assay>-<condition>-<replicate><suffix>
//
// e.g. deduplicated.dir/Sample1-ChIP-Hyp-2.filtered.deduplicated.bam.
//
// All downstream logic (control resolution, profile tables) operates on the
// decoded Sample rather than on ad-hoc string rewriting.
package naming

import (
	"fmt"
	"path"
	"strings"
)

const (
	AssayChIP  = "ChIP"
	AssayInput = "Input"

	// IgGGroup is the group token that identifies IgG mock pulldowns.
	IgGGroup = "IgG"

	// DeduplicatedSuffix is appended to every BAM leaving removeduplicates.
	DeduplicatedSuffix = ".filtered.deduplicated.bam"
	// PooledControlSuffix is the suffix of a per-condition (pooled) control.
	PooledControlSuffix = ".bwa.filtered.deduplicated.bam"
)

// Sample is the structured form of a file name that follows the convention.
type Sample struct {
	// Dir is the directory part of the path ("" when the path had none).
	Dir       string
	Group     string
	Assay     string
	Condition string
	Replicate string
	// Suffix is everything after the replicate token (e.g. ".filtered.deduplicated.bam").
	Suffix string
}

// NamingConventionError reports a path that cannot be decoded.
type NamingConventionError struct {
	Path   string
	Reason string
}

func (e *NamingConventionError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("naming convention violated by %q: %s", e.Path, e.Reason)
}

func conventionErrorf(p, format string, args ...any) error {
	return &NamingConventionError{Path: p, Reason: fmt.Sprintf(format, args...)}
}

// Parse decodes p, whose base name must end in suffix.
//
// Token boundaries follow the greedy reading of the pattern
// (.+)-(assay)-(.+)-(.+)<suffix>: the group is everything before the last
// assay token, the replicate is the last '-' separated token, and the
// condition is everything in between.
func Parse(p, suffix string) (Sample, error) {
	dir, base := path.Split(p)
	if !strings.HasSuffix(base, suffix) {
		return Sample{}, conventionErrorf(p, "missing suffix %q", suffix)
	}
	stem := strings.TrimSuffix(base, suffix)
	tokens := strings.Split(stem, "-")
	if len(tokens) < 4 {
		return Sample{}, conventionErrorf(p, "want <group>-<assay>-<condition>-<replicate>, got %d token(s)", len(tokens))
	}

	assayAt := -1
	for i := len(tokens) - 3; i >= 1; i-- {
		if tokens[i] == AssayChIP || tokens[i] == AssayInput {
			assayAt = i
			break
		}
	}
	if assayAt < 0 {
		return Sample{}, conventionErrorf(p, "no %s or %s assay token", AssayChIP, AssayInput)
	}

	s := Sample{
		Dir:       strings.TrimSuffix(dir, "/"),
		Group:     strings.Join(tokens[:assayAt], "-"),
		Assay:     tokens[assayAt],
		Condition: strings.Join(tokens[assayAt+1:len(tokens)-1], "-"),
		Replicate: tokens[len(tokens)-1],
		Suffix:    suffix,
	}
	switch {
	case s.Group == "":
		return Sample{}, conventionErrorf(p, "empty group token")
	case s.Condition == "":
		return Sample{}, conventionErrorf(p, "empty condition token")
	case s.Replicate == "":
		return Sample{}, conventionErrorf(p, "empty replicate token")
	}
	return s, nil
}

// ParseDeduplicated decodes a BAM produced by removeduplicates.
func ParseDeduplicated(p string) (Sample, error) {
	return Parse(p, DeduplicatedSuffix)
}

// IsIgG reports whether the sample is an IgG mock pulldown. The comparison is
// an exact match on the whole group token.
func (s Sample) IsIgG() bool { return s.Group == IgGGroup }

// Stem returns <group>-<assay>-<condition>-<replicate>.
func (s Sample) Stem() string {
	return strings.Join([]string{s.Group, s.Assay, s.Condition, s.Replicate}, "-")
}

// Path reassembles the file path.
func (s Sample) Path() string {
	return path.Join(s.Dir, s.Stem()+s.Suffix)
}
