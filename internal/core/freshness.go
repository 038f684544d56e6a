package core

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"peaksandprofiles/internal/trace"
)

// Verdict is the outcome of a completion check.
type Verdict struct {
	Stale bool
	// Reason is one of the trace.Reason* invalidation codes.
	Reason string
	// Path is the file that caused the verdict, when there is one.
	Path string
}

// UpToDate is the verdict for a complete instance.
var UpToDate = Verdict{}

func stale(reason, path string) Verdict {
	return Verdict{Stale: true, Reason: reason, Path: path}
}

// Strategy decides whether an instance is complete.
type Strategy interface {
	// Check inspects the instance without modifying anything.
	Check(inst *Instance) (Verdict, error)
	// Record notes that inst has just completed successfully.
	Record(inst *Instance) error
}

// TimestampStrategy treats output presence and modification time as the only
// record of completion. An instance is stale when an output is missing or an
// existing input is newer than its oldest output. Missing inputs are ignored;
// the command reports them itself.
type TimestampStrategy struct {
	WorkingDir string
}

func (s *TimestampStrategy) Check(inst *Instance) (Verdict, error) {
	var oldest time.Time
	for i, out := range inst.Outputs {
		info, err := os.Stat(absPath(s.WorkingDir, out))
		if err != nil {
			if os.IsNotExist(err) {
				return stale(trace.ReasonOutputMissing, out), nil
			}
			return Verdict{}, fmt.Errorf("stat output %q: %w", out, err)
		}
		if i == 0 || info.ModTime().Before(oldest) {
			oldest = info.ModTime()
		}
	}
	for _, in := range inst.Inputs {
		info, err := os.Stat(absPath(s.WorkingDir, in))
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return Verdict{}, fmt.Errorf("stat input %q: %w", in, err)
		}
		if info.ModTime().After(oldest) {
			return stale(trace.ReasonInputNewer, in), nil
		}
	}
	return UpToDate, nil
}

// Record is a no-op: the files themselves are the record.
func (s *TimestampStrategy) Record(*Instance) error { return nil }

func absPath(workDir, p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(workDir, filepath.FromSlash(p))
}
