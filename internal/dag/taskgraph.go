package dag

import (
	"container/heap"
	"sort"

	"peaksandprofiles/internal/core"
	"peaksandprofiles/internal/digest"
)

type edgeIndex struct {
	from  int
	to    int
	order bool
}

// TaskGraph is an immutable, validated DAG of task instances.
//
// It is safe for concurrent read access.
type TaskGraph struct {
	nodesByName map[string]*TaskNode
	nodes       []*TaskNode // canonical order

	edges []edgeIndex // sorted

	outgoing [][]int // by canonical index, sorted ascending
	incoming [][]int // by canonical index, sorted ascending
	// inputs is incoming without ordering-only edges.
	inputs [][]int
	indeg  []int // by canonical index
	depth  []int // by canonical index (topological depth)

	hash GraphHash
}

// NewTaskGraph builds and validates a TaskGraph. Nodes are named by instance
// key.
//
// Validation runs immediately and rejects:
//   - instances without outputs, and two instances with the same key
//   - edges referencing unknown instances
//   - duplicate edges, whatever their kind
//   - self-loops
//   - any cycle (direct or indirect)
func NewTaskGraph(instances []*core.Instance, edges []Edge) (*TaskGraph, error) {
	nodesByName := make(map[string]*TaskNode, len(instances))
	nodes := make([]*TaskNode, 0, len(instances))

	for _, inst := range instances {
		if inst == nil || inst.Task == nil {
			return nil, invalidf("nil instance")
		}
		key := inst.Key()
		if key == "" {
			return nil, invalidf("instance of %q has no outputs", inst.Task.Name)
		}
		if prev, exists := nodesByName[key]; exists {
			return nil, invalidf("output %q declared by both %q and %q", key, prev.TaskName(), inst.Task.Name)
		}
		node := &TaskNode{Name: key, Instance: inst, DefinitionHash: computeTaskDefHash(inst)}
		nodesByName[key] = node
		nodes = append(nodes, node)
	}

	// Keys are unique, so ordering by key is total.
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].Name < nodes[j].Name })
	for i, n := range nodes {
		n.canonicalIndex = i
	}

	// Canonicalize edges: map to indices, reject invalid, sort, reject duplicates.
	mapped := make([]edgeIndex, 0, len(edges))
	seen := make(map[edgeIndex]struct{}, len(edges))
	for _, e := range edges {
		fromNode, okFrom := nodesByName[e.From]
		toNode, okTo := nodesByName[e.To]
		if !okFrom {
			return nil, invalidf("edge references unknown instance (from): %q", e.From)
		}
		if !okTo {
			return nil, invalidf("edge references unknown instance (to): %q", e.To)
		}
		if fromNode == toNode {
			return nil, invalidf("self-loop: %q -> %q", e.From, e.To)
		}

		pair := edgeIndex{from: fromNode.canonicalIndex, to: toNode.canonicalIndex}
		if _, exists := seen[pair]; exists {
			return nil, invalidf("duplicate edge: %q -> %q", e.From, e.To)
		}
		seen[pair] = struct{}{}
		pair.order = e.Order
		mapped = append(mapped, pair)
	}

	sort.Slice(mapped, func(i, j int) bool {
		a, b := mapped[i], mapped[j]
		if a.from != b.from {
			return a.from < b.from
		}
		return a.to < b.to
	})

	outgoing := make([][]int, len(nodes))
	incoming := make([][]int, len(nodes))
	inputs := make([][]int, len(nodes))
	indeg := make([]int, len(nodes))
	for _, e := range mapped {
		outgoing[e.from] = append(outgoing[e.from], e.to)
		incoming[e.to] = append(incoming[e.to], e.from)
		if !e.order {
			inputs[e.to] = append(inputs[e.to], e.from)
		}
		indeg[e.to]++
	}
	for i := range incoming {
		sort.Ints(incoming[i])
		sort.Ints(inputs[i])
	}

	g := &TaskGraph{
		nodesByName: nodesByName,
		nodes:       nodes,
		edges:       mapped,
		outgoing:    outgoing,
		incoming:    incoming,
		inputs:      inputs,
		indeg:       indeg,
	}

	if err := g.validateAcyclic(); err != nil {
		return nil, err
	}

	g.depth = g.computeDepth()
	g.hash = g.computeGraphHash()
	return g, nil
}

// Hash returns the stable identity for this graph.
func (g *TaskGraph) Hash() GraphHash { return g.hash }

// Len returns the number of instances.
func (g *TaskGraph) Len() int { return len(g.nodes) }

// Node returns a node by instance key.
func (g *TaskGraph) Node(name string) (*TaskNode, bool) {
	n, ok := g.nodesByName[name]
	return n, ok
}

// Nodes returns the nodes in canonical order.
func (g *TaskGraph) Nodes() []*TaskNode {
	out := make([]*TaskNode, len(g.nodes))
	copy(out, g.nodes)
	return out
}

// Edges returns the dependency edges as stable (From, To) name pairs in canonical order.
func (g *TaskGraph) Edges() []Edge {
	out := make([]Edge, 0, len(g.edges))
	for _, e := range g.edges {
		out = append(out, Edge{From: g.nodes[e.from].Name, To: g.nodes[e.to].Name, Order: e.order})
	}
	return out
}

// Parents returns the direct dependencies of name in canonical order.
func (g *TaskGraph) Parents(name string) []string {
	n, ok := g.nodesByName[name]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(g.incoming[n.canonicalIndex]))
	for _, p := range g.incoming[n.canonicalIndex] {
		out = append(out, g.nodes[p].Name)
	}
	return out
}

// InputParents returns the parents of name that produce one of its inputs,
// in canonical order. Ordering-only parents are left out.
func (g *TaskGraph) InputParents(name string) []string {
	n, ok := g.nodesByName[name]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(g.inputs[n.canonicalIndex]))
	for _, p := range g.inputs[n.canonicalIndex] {
		out = append(out, g.nodes[p].Name)
	}
	return out
}

// Depth returns the deterministic topological depth of the given node name.
//
// Depth is defined as the length of the longest path from any root to the node.
func (g *TaskGraph) Depth(name string) (int, bool) {
	n, ok := g.nodesByName[name]
	if !ok {
		return 0, false
	}
	return g.depth[n.canonicalIndex], true
}

func (g *TaskGraph) computeDepth() []int {
	depth := make([]int, len(g.nodes))
	order := topoOrder(g.indeg, g.outgoing)
	for _, u := range order {
		maxParent := 0
		for _, p := range g.incoming[u] {
			if cand := depth[p] + 1; cand > maxParent {
				maxParent = cand
			}
		}
		depth[u] = maxParent
	}
	return depth
}

// TopologicalOrder returns a deterministic topological ordering of instance keys.
//
// Since the graph is validated on construction, this method must not fail.
func (g *TaskGraph) TopologicalOrder() []string {
	order := topoOrder(g.indeg, g.outgoing)
	names := make([]string, 0, len(order))
	for _, idx := range order {
		names = append(names, g.nodes[idx].Name)
	}
	return names
}

// Ancestors returns the given keys together with everything they depend on,
// transitively, in canonical order. Unknown keys are ignored.
func (g *TaskGraph) Ancestors(keys []string) []string {
	visited := make([]bool, len(g.nodes))
	hq := &intMinHeap{}
	for _, k := range keys {
		if n, ok := g.nodesByName[k]; ok {
			heap.Push(hq, n.canonicalIndex)
		}
	}
	for hq.Len() > 0 {
		u := heap.Pop(hq).(int)
		if visited[u] {
			continue
		}
		visited[u] = true
		for _, p := range g.incoming[u] {
			if !visited[p] {
				heap.Push(hq, p)
			}
		}
	}
	out := make([]string, 0)
	for i, v := range visited {
		if v {
			out = append(out, g.nodes[i].Name)
		}
	}
	return out
}

// Subgraph returns the graph restricted to keys and the edges among them.
func (g *TaskGraph) Subgraph(keys []string) (*TaskGraph, error) {
	keep := make(map[string]bool, len(keys))
	instances := make([]*core.Instance, 0, len(keys))
	for _, k := range keys {
		n, ok := g.nodesByName[k]
		if !ok {
			return nil, invalidf("unknown instance %q", k)
		}
		if keep[k] {
			continue
		}
		keep[k] = true
		instances = append(instances, n.Instance)
	}
	var edges []Edge
	for _, e := range g.Edges() {
		if keep[e.From] && keep[e.To] {
			edges = append(edges, e)
		}
	}
	return NewTaskGraph(instances, edges)
}

func (g *TaskGraph) computeGraphHash() GraphHash {
	f := digest.NewFields()

	// Nodes (canonical order)
	f.AddInt(len(g.nodes))
	for _, n := range g.nodes {
		f.AddString(n.Name)
		f.AddString(string(n.DefinitionHash))
	}

	// Edges (canonical order)
	f.AddInt(len(g.edges))
	for _, e := range g.edges {
		f.AddInt(e.from)
		f.AddInt(e.to)
		if e.order {
			f.AddInt(1)
		} else {
			f.AddInt(0)
		}
	}
	return GraphHash(f.Sum())
}
