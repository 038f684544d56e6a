package pipeline

import (
	"context"
	"path/filepath"

	"peaksandprofiles/internal/core"
	"peaksandprofiles/internal/gtf"
	"peaksandprofiles/internal/readcount"
)

func deriveContigs(ctx context.Context, workDir string, inst *core.Instance) error {
	return gtf.DeriveFile(ctx, resolve(workDir, inst.Primary[0]), resolve(workDir, inst.Key()))
}

// countReads counts the mapped reads of every deduplicated BAM, reading up
// to parallelism files at once.
func countReads(parallelism int) core.NativeFunc {
	return func(ctx context.Context, workDir string, inst *core.Instance) error {
		return readcount.CountFile(ctx, workDir, inst.Primary, inst.Key(), parallelism)
	}
}

func resolve(dir, p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(dir, filepath.FromSlash(p))
}
