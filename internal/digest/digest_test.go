package digest

import (
	"os"
	"path/filepath"
	"testing"
)

func TestStrings_FieldBoundaries(t *testing.T) {
	if Strings("ab", "c") == Strings("a", "bc") {
		t.Fatalf("expected different digests for different field splits")
	}
	if Strings("a", "b") != Strings("a", "b") {
		t.Fatalf("expected identical digests for identical fields")
	}
}

func TestFile_MatchesBytes(t *testing.T) {
	p := filepath.Join(t.TempDir(), "x.txt")
	content := []byte("chr1\t250\n")
	if err := os.WriteFile(p, content, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := File(p)
	if err != nil {
		t.Fatalf("File: %v", err)
	}
	if want := Bytes(content); got != want {
		t.Fatalf("got %s want %s", got, want)
	}
	if len(got) != 64 {
		t.Fatalf("got digest length %d want 64", len(got))
	}
}

func TestFile_Missing(t *testing.T) {
	if _, err := File(filepath.Join(t.TempDir(), "missing")); !os.IsNotExist(err) {
		t.Fatalf("got %v want not-exist error", err)
	}
}
