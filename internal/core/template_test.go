package core

import (
	"errors"
	"testing"
)

func TestRender(t *testing.T) {
	got, err := Render("{{samtools}} view -b {{ input }} > {{output}}", map[string]string{
		"samtools": "/opt/bin/samtools",
		"input":    "a.bam",
		"output":   "b.bam",
	})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if want := "/opt/bin/samtools view -b a.bam > b.bam"; got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestRender_UnknownTag(t *testing.T) {
	_, err := Render("macs2 -c {{control}}", map[string]string{})
	var terr *TemplateError
	if !errors.As(err, &terr) {
		t.Fatalf("got %v want *TemplateError", err)
	}
	if terr.Tag != "control" {
		t.Fatalf("got tag %q want control", terr.Tag)
	}
}

func TestRender_UnterminatedTag(t *testing.T) {
	if _, err := Render("echo {{input", map[string]string{"input": "x"}); err == nil {
		t.Fatalf("expected error for unterminated tag")
	}
}

func TestInstance_RenderCommand(t *testing.T) {
	inst := &Instance{
		Task: &Task{
			Name:    "broadpeakcall",
			Command: "macs2 -t {{input}} -c {{control}} -g {{genome_size}} -n {{match.1}} --outdir {{outdir}} # {{input.2}}",
			Params:  map[string]string{"genome_size": "hs", "input": "shadowed"},
		},
		Primary: []string{"deduplicated.dir/A-ChIP-x-1.filtered.deduplicated.bam"},
		Inputs:  []string{"deduplicated.dir/A-ChIP-x-1.filtered.deduplicated.bam", "deduplicated.dir/A-Input-x-1.filtered.deduplicated.bam"},
		Named:   map[string]string{"control": "deduplicated.dir/A-Input-x-1.filtered.deduplicated.bam"},
		Outputs: []string{"broadpeakcalling.dir/A-ChIP-x-1.bam.macs2"},
		Match:   []string{"deduplicated.dir/A-ChIP-x-1.filtered.deduplicated.bam", "A-ChIP-x-1"},
	}
	got, err := inst.RenderCommand()
	if err != nil {
		t.Fatalf("RenderCommand: %v", err)
	}
	want := "macs2 -t deduplicated.dir/A-ChIP-x-1.filtered.deduplicated.bam" +
		" -c deduplicated.dir/A-Input-x-1.filtered.deduplicated.bam -g hs -n A-ChIP-x-1" +
		" --outdir broadpeakcalling.dir # deduplicated.dir/A-Input-x-1.filtered.deduplicated.bam"
	if got != want {
		t.Fatalf("got %q\nwant %q", got, want)
	}
}

func TestShellQuote(t *testing.T) {
	if got, want := ShellQuote("a'b"), `'a'\''b'`; got != want {
		t.Fatalf("got %s want %s", got, want)
	}
}
