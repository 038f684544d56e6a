package naming

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDeduplicated(t *testing.T) {
	s, err := ParseDeduplicated("deduplicated.dir/Sample1-ChIP-Hyp-2.filtered.deduplicated.bam")
	require.NoError(t, err)
	assert.Equal(t, Sample{
		Dir:       "deduplicated.dir",
		Group:     "Sample1",
		Assay:     AssayChIP,
		Condition: "Hyp",
		Replicate: "2",
		Suffix:    DeduplicatedSuffix,
	}, s)
	assert.Equal(t, "deduplicated.dir/Sample1-ChIP-Hyp-2.filtered.deduplicated.bam", s.Path())
}

func TestParse_GreedyTokens(t *testing.T) {
	// Extra dashes land in the group (before the assay) and the condition
	// (between assay and replicate).
	s, err := Parse("Cerebellum-x-ChIP-minus-CPT-Top1_2.bam", ".bam")
	require.NoError(t, err)
	assert.Equal(t, "Cerebellum-x", s.Group)
	assert.Equal(t, "minus-CPT", s.Condition)
	assert.Equal(t, "Top1_2", s.Replicate)
	assert.Equal(t, "", s.Dir)
}

func TestParse_Errors(t *testing.T) {
	for _, p := range []string{
		"deduplicated.dir/Sample1-ChIP-Hyp.filtered.deduplicated.bam",
		"deduplicated.dir/Sample1-Foo-Hyp-2.filtered.deduplicated.bam",
		"deduplicated.dir/Sample1-ChIP-Hyp-2.bam",
		"deduplicated.dir/Sample1-ChIP--2.filtered.deduplicated.bam",
	} {
		_, err := ParseDeduplicated(p)
		var nerr *NamingConventionError
		require.ErrorAs(t, err, &nerr, p)
		assert.Equal(t, p, nerr.Path)
	}
}

func TestIsIgG_ExactMatch(t *testing.T) {
	s, err := ParseDeduplicated("IgG-ChIP-Hyp-1.filtered.deduplicated.bam")
	require.NoError(t, err)
	assert.True(t, s.IsIgG())

	s, err = ParseDeduplicated("IgG2-ChIP-Hyp-1.filtered.deduplicated.bam")
	require.NoError(t, err)
	assert.False(t, s.IsIgG())
}

func TestResolveControl(t *testing.T) {
	const (
		chip = "deduplicated.dir/Sample1-ChIP-Hyp-2.filtered.deduplicated.bam"
		igg  = "deduplicated.dir/IgG-ChIP-Hyp-2.filtered.deduplicated.bam"
	)
	tests := []struct {
		name   string
		in     string
		policy ControlPolicy
		want   string
	}{
		{"per sample", chip, ControlPolicy{PerSample: true},
			"deduplicated.dir/Sample1-Input-Hyp-2.filtered.deduplicated.bam"},
		{"per sample, igg switch ignored", chip, ControlPolicy{PerSample: true, IgGUsesOwnInput: true, MainSamplePrefix: "Other"},
			"deduplicated.dir/Sample1-Input-Hyp-2.filtered.deduplicated.bam"},
		{"pooled", chip, ControlPolicy{},
			"deduplicated.dir/Sample1-Input-Hyp.bwa.filtered.deduplicated.bam"},
		{"igg own input, per sample", igg, ControlPolicy{PerSample: true, IgGUsesOwnInput: true},
			"deduplicated.dir/IgG-Input-Hyp-2.filtered.deduplicated.bam"},
		{"igg own input, pooled", igg, ControlPolicy{IgGUsesOwnInput: true},
			"deduplicated.dir/IgG-Input-Hyp.bwa.filtered.deduplicated.bam"},
		{"igg borrows, per sample", igg, ControlPolicy{PerSample: true, MainSamplePrefix: "Sample1"},
			"deduplicated.dir/Sample1-Input-Hyp-2.filtered.deduplicated.bam"},
		{"igg borrows, pooled", igg, ControlPolicy{MainSamplePrefix: "Sample1"},
			"deduplicated.dir/Sample1-Input-Hyp.bwa.filtered.deduplicated.bam"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ResolveControl(tt.in, tt.policy)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolveControl_Errors(t *testing.T) {
	_, err := ResolveControl("deduplicated.dir/Sample1-Input-Hyp-1.filtered.deduplicated.bam", ControlPolicy{PerSample: true})
	var nerr *NamingConventionError
	assert.ErrorAs(t, err, &nerr)

	_, err = ResolveControl("deduplicated.dir/IgG-ChIP-Hyp-1.filtered.deduplicated.bam", ControlPolicy{})
	assert.ErrorAs(t, err, &nerr)
}
