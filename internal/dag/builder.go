package dag

import (
	"regexp"
	"sort"

	"github.com/grailbio/base/log"

	"peaksandprofiles/internal/core"
)

// Builder plans task instances from task declarations and the files present
// in WorkingDir. Planning reads the filesystem but never modifies it.
type Builder struct {
	WorkingDir string
}

// Plan is the result of planning: the full instance graph plus the mapping
// from task names to instance keys.
type Plan struct {
	Graph *TaskGraph
	// ByTask maps each task name to its instance keys in planning order.
	// Tasks with zero instances have no entry.
	ByTask map[string][]string

	decl *declarations
}

type planner struct {
	d        *declarations
	resolver *core.InputResolver

	// outputs lists every declared output planned so far, in planning order.
	outputs []string
	// producer maps a declared output to the key of the instance producing
	// it, producerTask to the name of its task.
	producer     map[string]string
	producerTask map[string]string
	byTask       map[int][]*core.Instance
}

// Build validates the declarations and plans every instance.
//
// Tasks are planned in dependency order. The candidates of a task are its
// glob matches on disk, the declared outputs of already planned instances
// matching one of its globs, and the primary outputs of its From tasks.
// Candidates that do not match the task's pattern are skipped silently, so a
// task may legitimately plan zero instances.
func (b *Builder) Build(tasks []core.Task) (*Plan, error) {
	d, err := newDeclarations(tasks)
	if err != nil {
		return nil, err
	}
	p := &planner{
		d:            d,
		resolver:     core.NewInputResolver(b.WorkingDir),
		producer:     make(map[string]string),
		producerTask: make(map[string]string),
		byTask:       make(map[int][]*core.Instance),
	}

	var all []*core.Instance
	for _, i := range d.order {
		t := d.tasks[i]
		if t.IsTarget() {
			continue
		}
		cands, err := p.candidates(i)
		if err != nil {
			return nil, err
		}
		insts, err := p.planTask(i, cands)
		if err != nil {
			return nil, err
		}
		for _, inst := range insts {
			for _, out := range inst.Outputs {
				if prev, ok := p.producer[out]; ok {
					return nil, invalidf("output %q is declared by %q (%s) and %q (%s)",
						out, p.producerTask[out], prev, t.Name, inst.Key())
				}
				p.producer[out] = inst.Key()
				p.producerTask[out] = t.Name
				p.outputs = append(p.outputs, out)
			}
		}
		log.Debug.Printf("planned %d instance(s) of %s from %d candidate(s)", len(insts), t.Name, len(cands))
		p.byTask[i] = insts
		all = append(all, insts...)
	}

	g, err := NewTaskGraph(all, p.edges(all))
	if err != nil {
		return nil, err
	}

	byTask := make(map[string][]string, len(p.byTask))
	for i, insts := range p.byTask {
		if len(insts) == 0 {
			continue
		}
		keys := make([]string, len(insts))
		for n, inst := range insts {
			keys[n] = inst.Key()
		}
		byTask[d.tasks[i].Name] = keys
	}
	return &Plan{Graph: g, ByTask: byTask, decl: d}, nil
}

func (p *planner) candidates(i int) ([]string, error) {
	t := p.d.tasks[i]
	set := make(map[string]struct{})

	if len(t.Globs) > 0 {
		onDisk, err := p.resolver.Resolve(t.Globs)
		if err != nil {
			return nil, &PlanError{Task: t.Name, Err: err}
		}
		for _, c := range onDisk {
			set[c] = struct{}{}
		}
		for _, out := range p.outputs {
			for _, glob := range t.Globs {
				if core.Match(glob, out) {
					set[out] = struct{}{}
					break
				}
			}
		}
	}

	from, err := p.d.expand(t.From)
	if err != nil {
		return nil, err
	}
	for _, j := range from {
		for _, inst := range p.byTask[j] {
			set[inst.Key()] = struct{}{}
		}
	}

	out := make([]string, 0, len(set))
	for c := range set {
		out = append(out, c)
	}
	sort.Strings(out)
	return out, nil
}

func (p *planner) planTask(i int, cands []string) ([]*core.Instance, error) {
	t := p.d.tasks[i]
	re := p.d.patterns[i]

	addFrom, err := p.addFromOutputs(t)
	if err != nil {
		return nil, err
	}

	if t.Merge {
		var primary []string
		for _, c := range cands {
			if re == nil || re.MatchString(c) {
				primary = append(primary, c)
			}
		}
		if len(primary) == 0 {
			return nil, nil
		}
		inst := &core.Instance{
			Task:    t,
			Primary: primary,
			Outputs: append([]string(nil), t.Outputs...),
		}
		inst.Inputs = dedupe(primary, t.AddInputs, addFrom)
		if err := render(inst); err != nil {
			return nil, err
		}
		return []*core.Instance{inst}, nil
	}

	var out []*core.Instance
	for _, c := range cands {
		var loc []int
		if re != nil {
			if loc = re.FindStringSubmatchIndex(c); loc == nil {
				continue
			}
		}
		inst := &core.Instance{
			Task:    t,
			Primary: []string{c},
			Outputs: expandAll(re, t.Outputs, c, loc),
			Match:   submatches(c, loc),
		}
		extra := expandAll(re, t.AddInputs, c, loc)
		var implicit []string
		if t.Implicit != nil {
			named, err := t.Implicit(c)
			if err != nil {
				return nil, &PlanError{Task: t.Name, Input: c, Err: err}
			}
			inst.Named = named
			for _, k := range inst.NamedKeys() {
				implicit = append(implicit, named[k])
			}
		}
		inst.Inputs = dedupe(inst.Primary, extra, addFrom, implicit)
		if err := render(inst); err != nil {
			return nil, err
		}
		out = append(out, inst)
	}
	return out, nil
}

func (p *planner) addFromOutputs(t *core.Task) ([]string, error) {
	tasks, err := p.d.expand(t.AddFrom)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, j := range tasks {
		for _, inst := range p.byTask[j] {
			out = append(out, inst.Outputs...)
		}
	}
	return out, nil
}

// edges links producers to consumers by path equality, and every instance
// of a followed task to every instance of the following task with an
// ordering-only edge.
func (p *planner) edges(all []*core.Instance) []Edge {
	seen := make(map[[2]string]bool)
	var edges []Edge
	// Data edges are added first, so a pair linked both ways stays a data edge.
	add := func(from, to string, order bool) {
		pair := [2]string{from, to}
		if from == to || seen[pair] {
			return
		}
		seen[pair] = true
		edges = append(edges, Edge{From: from, To: to, Order: order})
	}

	for _, inst := range all {
		for _, in := range inst.Inputs {
			if prod, ok := p.producer[in]; ok {
				add(prod, inst.Key(), false)
			}
		}
	}
	for i, t := range p.d.tasks {
		if t.IsTarget() || len(t.Follows) == 0 {
			continue
		}
		// References were validated by newDeclarations.
		followed, _ := p.d.expand(t.Follows)
		for _, j := range followed {
			for _, before := range p.byTask[j] {
				for _, after := range p.byTask[i] {
					add(before.Key(), after.Key(), true)
				}
			}
		}
	}
	return edges
}

func render(inst *core.Instance) error {
	cmd, err := inst.RenderCommand()
	if err != nil {
		return &PlanError{Task: inst.Task.Name, Input: firstOf(inst.Primary), Err: err}
	}
	inst.Command = cmd
	return nil
}

func firstOf(ss []string) string {
	if len(ss) == 0 {
		return ""
	}
	return ss[0]
}

func expandAll(re *regexp.Regexp, templates []string, src string, loc []int) []string {
	out := make([]string, 0, len(templates))
	for _, tmpl := range templates {
		if re == nil || loc == nil {
			out = append(out, tmpl)
			continue
		}
		out = append(out, string(re.ExpandString(nil, tmpl, src, loc)))
	}
	return out
}

func submatches(src string, loc []int) []string {
	if loc == nil {
		return []string{src}
	}
	out := make([]string, len(loc)/2)
	for n := range out {
		if loc[2*n] >= 0 {
			out[n] = src[loc[2*n]:loc[2*n+1]]
		}
	}
	return out
}

func dedupe(lists ...[]string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, l := range lists {
		for _, s := range l {
			if s == "" || seen[s] {
				continue
			}
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

// Select restricts the plan to the instances of the named tasks and their
// ancestors. Target tasks stand for the tasks they follow. No names selects
// the whole graph.
func (p *Plan) Select(targets []string) (*TaskGraph, error) {
	if len(targets) == 0 {
		return p.Graph, nil
	}
	tasks, err := p.decl.expand(targets)
	if err != nil {
		return nil, err
	}
	var keys []string
	for _, i := range tasks {
		keys = append(keys, p.ByTask[p.decl.tasks[i].Name]...)
	}
	return p.Graph.Subgraph(p.Graph.Ancestors(keys))
}
