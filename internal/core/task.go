package core

import (
	"context"
	"path"
	"sort"
	"strconv"
	"strings"
)

// NativeFunc performs an instance in-process instead of through the shell.
// Paths on the instance are relative to workDir.
type NativeFunc func(ctx context.Context, workDir string, inst *Instance) error

// ImplicitFunc derives extra named inputs from an instance's primary input,
// e.g. the control BAM of a ChIP sample. The names become template tags.
type ImplicitFunc func(primary string) (map[string]string, error)

// Task is an immutable declaration of a file transformation.
//
// Candidates come from Globs (matched against the filesystem and against the
// outputs of already planned instances) and from the primary outputs of the
// From tasks. Each candidate matching Pattern yields one instance whose
// outputs are the Outputs templates expanded with the match (${1} syntax).
// A Merge task gathers every matching candidate into a single instance.
//
// A Task with no inputs, command or native function is a target: it only
// groups the tasks it Follows.
type Task struct {
	Name string

	From  []string
	Globs []string

	// Pattern is a regular expression applied to every candidate. Empty
	// matches everything.
	Pattern string
	Outputs []string

	// AddInputs are extra input templates expanded with the same match.
	AddInputs []string
	// AddFrom adds every output of the named tasks as extra inputs.
	AddFrom  []string
	Implicit ImplicitFunc

	// Follows are ordering-only dependencies on other tasks.
	Follows []string

	Merge bool

	// Command is a template rendered with the instance tags (see
	// Instance.Tags) and Params.
	Command string
	Params  map[string]string
	Native  NativeFunc

	// Memory is the job memory handed to the cluster wrapper.
	Memory string
}

// IsTarget reports whether the task only groups other tasks.
func (t *Task) IsTarget() bool {
	return len(t.From) == 0 && len(t.Globs) == 0 && t.Command == "" && t.Native == nil
}

// Instance is one execution of a Task against one resolved input tuple.
type Instance struct {
	Task *Task

	// Primary holds the matched candidate, or every matched candidate for a
	// merge task.
	Primary []string
	// Inputs holds Primary followed by the extra inputs, without duplicates.
	Inputs []string
	// Named holds the implicit inputs by tag name.
	Named   map[string]string
	Outputs []string
	// Match is the submatch list of the primary input (nil for merges).
	Match []string

	// Command is the rendered command, empty for native tasks.
	Command string
}

// Key identifies the instance by its primary output path.
func (i *Instance) Key() string {
	if len(i.Outputs) == 0 {
		return ""
	}
	return i.Outputs[0]
}

// Tags returns the template values describing the instance:
//
//	{{input}}     primary input(s), space separated
//	{{inputs}}    all inputs, space separated
//	{{input.N}}   N-th input (1-based)
//	{{output}}    primary output
//	{{outputs}}   all outputs, space separated
//	{{output.N}}  N-th output (1-based)
//	{{outdir}}    directory of the primary output
//	{{match.N}}   N-th regular expression submatch
//	{{memory}}    job memory
//	{{task}}      task name
//
// Named implicit inputs are added under their own names.
func (i *Instance) Tags() map[string]string {
	tags := make(map[string]string, 8+len(i.Inputs)+len(i.Outputs)+len(i.Match)+len(i.Named))
	tags["input"] = strings.Join(i.Primary, " ")
	tags["inputs"] = strings.Join(i.Inputs, " ")
	for n, in := range i.Inputs {
		tags["input."+strconv.Itoa(n+1)] = in
	}
	tags["output"] = i.Key()
	tags["outputs"] = strings.Join(i.Outputs, " ")
	for n, out := range i.Outputs {
		tags["output."+strconv.Itoa(n+1)] = out
	}
	tags["outdir"] = path.Dir(i.Key())
	for n, m := range i.Match {
		tags["match."+strconv.Itoa(n)] = m
	}
	if i.Task != nil {
		tags["memory"] = i.Task.Memory
		tags["task"] = i.Task.Name
	}
	for k, v := range i.Named {
		tags[k] = v
	}
	return tags
}

// NamedKeys returns the implicit input names in sorted order.
func (i *Instance) NamedKeys() []string {
	keys := make([]string, 0, len(i.Named))
	for k := range i.Named {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// RenderCommand renders the task command for the instance. Task params are
// visible unless an instance tag of the same name shadows them.
func (i *Instance) RenderCommand() (string, error) {
	if i.Task == nil || i.Task.Command == "" {
		return "", nil
	}
	tags := i.Tags()
	for k, v := range i.Task.Params {
		if _, ok := tags[k]; !ok {
			tags[k] = v
		}
	}
	return Render(i.Task.Command, tags)
}
