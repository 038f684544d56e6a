package dag

import (
	"peaksandprofiles/internal/core"
	"peaksandprofiles/internal/digest"
)

// computeTaskDefHash hashes the declarative identity of an instance: task
// name, rendered command, inputs and outputs in declaration order, and named
// implicit inputs sorted by name. All fields are length-prefixed.
func computeTaskDefHash(inst *core.Instance) TaskDefHash {
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

	keys := inst.NamedKeys()
	f.AddInt(len(keys))
	for _, k := range keys {
		f.AddString(k)
		f.AddString(inst.Named[k])
	}
	return TaskDefHash(f.Sum())
}
