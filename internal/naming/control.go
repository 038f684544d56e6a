package naming

import "path"

// ControlPolicy selects how a ChIP sample is paired with its Input control.
type ControlPolicy struct {
	// PerSample pairs each replicate with its own control. When false, one
	// pooled control per condition is used.
	PerSample bool
	// IgGUsesOwnInput keeps the IgG group on its own Input. When false, IgG
	// borrows the control of MainSamplePrefix.
	IgGUsesOwnInput bool
	// MainSamplePrefix is the group whose controls IgG borrows.
	MainSamplePrefix string
}

// DedupDir is the directory borrowed IgG controls are resolved in.
const DedupDir = "deduplicated.dir"

// ResolveControl derives the control (Input) BAM path for a deduplicated
// ChIP BAM. The returned path is not checked for existence.
//
//	per-sample, group != IgG          <dir>/<group>-Input-<cond>-<rep>.filtered.deduplicated.bam
//	pooled,     group != IgG          <dir>/<group>-Input-<cond>.bwa.filtered.deduplicated.bam
//	IgG, IgGUsesOwnInput              as above with group IgG
//	IgG, !IgGUsesOwnInput             deduplicated.dir/<prefix>-Input-... (same per-sample rule)
func ResolveControl(chipPath string, policy ControlPolicy) (string, error) {
	s, err := ParseDeduplicated(chipPath)
	if err != nil {
		return "", err
	}
	if s.Assay != AssayChIP {
		return "", conventionErrorf(chipPath, "assay is %q, want %q", s.Assay, AssayChIP)
	}

	dir, group := s.Dir, s.Group
	if s.IsIgG() && !policy.IgGUsesOwnInput {
		if policy.MainSamplePrefix == "" {
			return "", conventionErrorf(chipPath, "IgG sample needs a main sample prefix to borrow a control from")
		}
		dir, group = DedupDir, policy.MainSamplePrefix
	}

	var base string
	if policy.PerSample {
		base = group + "-" + AssayInput + "-" + s.Condition + "-" + s.Replicate + DeduplicatedSuffix
	} else {
		base = group + "-" + AssayInput + "-" + s.Condition + PooledControlSuffix
	}
	return path.Join(dir, base), nil
}
