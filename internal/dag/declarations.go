package dag

import (
	"regexp"
	"sort"

	"peaksandprofiles/internal/core"
)

// declarations is the validated task-level graph.
type declarations struct {
	tasks  []*core.Task
	byName map[string]int
	// deps[i] lists the tasks i depends on through From, AddFrom and Follows.
	deps     [][]int
	patterns []*regexp.Regexp
	// order is a topological order of task indices, ties broken by
	// declaration order.
	order []int
}

// ValidateDeclarations checks the task-level dependency graph before anything
// is planned: names must be unique, every From, AddFrom and Follows reference
// must name a declared task, patterns must compile and the references must
// not form a cycle.
func ValidateDeclarations(tasks []core.Task) error {
	_, err := newDeclarations(tasks)
	return err
}

func newDeclarations(tasks []core.Task) (*declarations, error) {
	d := &declarations{
		tasks:    make([]*core.Task, len(tasks)),
		byName:   make(map[string]int, len(tasks)),
		deps:     make([][]int, len(tasks)),
		patterns: make([]*regexp.Regexp, len(tasks)),
	}
	for i := range tasks {
		t := &tasks[i]
		if t.Name == "" {
			return nil, invalidf("task name is required")
		}
		if _, exists := d.byName[t.Name]; exists {
			return nil, invalidf("duplicate task name: %q", t.Name)
		}
		d.byName[t.Name] = i
		d.tasks[i] = t
	}

	outgoing := make([][]int, len(tasks))
	indeg := make([]int, len(tasks))
	for i, t := range d.tasks {
		if t.Pattern != "" {
			re, err := regexp.Compile(t.Pattern)
			if err != nil {
				return nil, invalidf("task %q: pattern: %v", t.Name, err)
			}
			d.patterns[i] = re
		}
		if !t.IsTarget() && len(t.Outputs) == 0 {
			return nil, invalidf("task %q declares no outputs", t.Name)
		}
		if t.Command != "" && t.Native != nil {
			return nil, invalidf("task %q has both a command and a native function", t.Name)
		}

		seen := make(map[int]bool)
		refs := make([]string, 0, len(t.From)+len(t.AddFrom)+len(t.Follows))
		refs = append(refs, t.From...)
		refs = append(refs, t.AddFrom...)
		refs = append(refs, t.Follows...)
		for _, ref := range refs {
			j, ok := d.byName[ref]
			if !ok {
				return nil, invalidf("task %q references unknown task %q", t.Name, ref)
			}
			if j == i {
				return nil, invalidf("task %q depends on itself", t.Name)
			}
			if seen[j] {
				continue
			}
			seen[j] = true
			d.deps[i] = append(d.deps[i], j)
			outgoing[j] = append(outgoing[j], i)
			indeg[i]++
		}
	}
	for i := range outgoing {
		sort.Ints(outgoing[i])
	}

	d.order = topoOrder(indeg, outgoing)
	if len(d.order) != len(tasks) {
		return nil, cycleError(findCycle(outgoing, func(i int) string { return d.tasks[i].Name }))
	}
	return d, nil
}

// expand resolves names to concrete tasks, replacing target tasks by the
// tasks they follow, transitively.
func (d *declarations) expand(names []string) ([]int, error) {
	var out []int
	seen := make(map[int]bool)
	var visit func(i int)
	visit = func(i int) {
		if seen[i] {
			return
		}
		seen[i] = true
		if !d.tasks[i].IsTarget() {
			out = append(out, i)
			return
		}
		for _, j := range d.deps[i] {
			visit(j)
		}
	}
	for _, name := range names {
		i, ok := d.byName[name]
		if !ok {
			return nil, invalidf("unknown target %q", name)
		}
		visit(i)
	}
	sort.Ints(out)
	return out, nil
}
