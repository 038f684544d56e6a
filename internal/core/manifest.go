package core

import (
	"fmt"
	"os"

	"peaksandprofiles/internal/trace"
)

// ManifestStore persists completion records keyed by instance key.
// Implementations must be safe for concurrent use.
type ManifestStore interface {
	Lookup(key string) (ManifestEntry, bool)
	Put(key string, entry ManifestEntry) error
}

// ManifestStrategy records completion explicitly as digests of the command,
// the input contents and the output contents. An instance is stale when it
// has no entry, an output is missing, or any digest differs.
type ManifestStrategy struct {
	WorkingDir string
	Store      ManifestStore
}

func (s *ManifestStrategy) Check(inst *Instance) (Verdict, error) {
	entry, ok := s.Store.Lookup(inst.Key())
	if !ok {
		return stale(trace.ReasonNoManifestEntry, ""), nil
	}
	for _, out := range inst.Outputs {
		if _, err := os.Stat(absPath(s.WorkingDir, out)); err != nil {
			if os.IsNotExist(err) {
				return stale(trace.ReasonOutputMissing, out), nil
			}
			return Verdict{}, fmt.Errorf("stat output %q: %w", out, err)
		}
	}

	if entry.Command != CommandDigest(inst) {
		return stale(trace.ReasonDigestChanged, ""), nil
	}
	cur, err := ComputeEntry(s.WorkingDir, inst)
	if err != nil {
		return Verdict{}, err
	}
	for _, in := range inst.Inputs {
		if old, ok := entry.Inputs[in]; !ok || old != cur.Inputs[in] {
			return stale(trace.ReasonDigestChanged, in), nil
		}
	}
	for _, out := range inst.Outputs {
		if old, ok := entry.Outputs[out]; !ok || old != cur.Outputs[out] {
			return stale(trace.ReasonDigestChanged, out), nil
		}
	}
	return UpToDate, nil
}

func (s *ManifestStrategy) Record(inst *Instance) error {
	entry, err := ComputeEntry(s.WorkingDir, inst)
	if err != nil {
		return fmt.Errorf("digesting %s: %w", inst.Key(), err)
	}
	return s.Store.Put(inst.Key(), entry)
}
