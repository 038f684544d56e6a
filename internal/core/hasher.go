package core

import (
	"os"

	"peaksandprofiles/internal/digest"
)

// ManifestEntry is the completion record of one instance.
type ManifestEntry struct {
	// Command digests the task name and the rendered command.
	Command string `json:"command"`
	// Inputs and Outputs map each path to its content digest. A missing
	// input is recorded with an empty digest.
	Inputs  map[string]string `json:"inputs"`
	Outputs map[string]string `json:"outputs"`
}

// CommandDigest computes the identity of what an instance runs. Native tasks
// are identified by their name and declared paths.
//
// All components are length-prefixed:
//  1. Task name
//  2. Rendered command
//  3. Input paths, in declaration order
//  4. Output paths, in declaration order
func CommandDigest(inst *Instance) string {
	f := digest.NewFields()
	f.AddString(inst.Task.Name)
	f.AddString(inst.Command)
	f.AddInt(len(inst.Inputs))
	for _, in := range inst.Inputs {
		f.AddString(in)
	}
	f.AddInt(len(inst.Outputs))
	for _, out := range inst.Outputs {
		f.AddString(out)
	}
	return f.Sum()
}

// fileDigests digests every path; a missing path maps to "" when
// allowMissing is set and is an error otherwise.
func fileDigests(workDir string, paths []string, allowMissing bool) (map[string]string, error) {
	out := make(map[string]string, len(paths))
	for _, p := range paths {
		d, err := digest.File(absPath(workDir, p))
		if err != nil {
			if allowMissing && os.IsNotExist(err) {
				out[p] = ""
				continue
			}
			return nil, err
		}
		out[p] = d
	}
	return out, nil
}

// ComputeEntry digests the current state of inst.
func ComputeEntry(workDir string, inst *Instance) (ManifestEntry, error) {
	inputs, err := fileDigests(workDir, inst.Inputs, true)
	if err != nil {
		return ManifestEntry{}, err
	}
	outputs, err := fileDigests(workDir, inst.Outputs, false)
	if err != nil {
		return ManifestEntry{}, err
	}
	return ManifestEntry{Command: CommandDigest(inst), Inputs: inputs, Outputs: outputs}, nil
}
