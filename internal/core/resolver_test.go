package core

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func touch(t *testing.T, dir, rel string) {
	t.Helper()
	p := filepath.Join(dir, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(p, []byte(rel), 0o644); err != nil {
		t.Fatalf("write %s: %v", rel, err)
	}
}

func TestResolve_StrictlySortedAndRelative(t *testing.T) {
	dir := t.TempDir()
	for _, f := range []string{"c-ChIP-x-1.bam", "a-ChIP-x-1.bam", "b-Input-x-1.bam", "notes.txt"} {
		touch(t, dir, f)
	}

	got, err := NewInputResolver(dir).Resolve([]string{"*.bam"})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	want := []string{"a-ChIP-x-1.bam", "b-Input-x-1.bam", "c-ChIP-x-1.bam"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v want %v", got, want)
	}
}

func TestResolve_DeduplicatesOverlappingPatterns(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "deduplicated.dir/a.bam")

	got, err := NewInputResolver(dir).Resolve([]string{"deduplicated.dir/*.bam", "deduplicated.dir/a.bam"})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if want := []string{"deduplicated.dir/a.bam"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v want %v", got, want)
	}
}

func TestResolve_SkipsDirectoriesAndMissingLiterals(t *testing.T) {
	dir := t.TempDir()
	if err := os.Mkdir(filepath.Join(dir, "x.bam"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	got, err := NewInputResolver(dir).Resolve([]string{"*.bam", "missing.gtf"})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("got %v want none", got)
	}
}

func TestResolve_AbsolutePatternStaysAbsolute(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "genes.gtf.gz")
	abs := filepath.ToSlash(filepath.Join(dir, "genes.gtf.gz"))

	got, err := NewInputResolver(t.TempDir()).Resolve([]string{abs})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if want := []string{abs}; !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v want %v", got, want)
	}
}

func TestMatch(t *testing.T) {
	if !Match("profiles.dir/*-*-*-*.bwa.geneprofile.matrix.tsv.gz", "profiles.dir/A-ChIP-x-1.bwa.geneprofile.matrix.tsv.gz") {
		t.Fatalf("expected match")
	}
	if Match("*.bam", "filtered_bams.dir/a.bam") {
		t.Fatalf("star must not cross directories")
	}
}
