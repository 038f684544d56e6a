package dag

import (
	"errors"
	"reflect"
	"testing"

	"peaksandprofiles/internal/core"
)

// node builds a shell instance whose key is out.
func testNode(out string, inputs ...string) *core.Instance {
	t := &core.Task{Name: "task_" + out, Outputs: []string{out}, Command: "touch {{output}}"}
	return &core.Instance{
		Task:    t,
		Primary: inputs,
		Inputs:  inputs,
		Outputs: []string{out},
		Command: "touch " + out,
	}
}

func testNodes(keys ...string) []*core.Instance {
	out := make([]*core.Instance, len(keys))
	for i, k := range keys {
		out[i] = testNode(k)
	}
	return out
}

func TestGraphConstruction_SingleNode(t *testing.T) {
	g, err := NewTaskGraph([]*core.Instance{testNode("A", "in.txt")}, nil)
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if g.Hash() == "" {
		t.Fatalf("expected non-empty graph hash")
	}
	if got := g.TopologicalOrder(); len(got) != 1 || got[0] != "A" {
		t.Fatalf("unexpected topo order: %v", got)
	}
	n, ok := g.Node("A")
	if !ok || n.TaskName() != "task_A" {
		t.Fatalf("unexpected node: %+v", n)
	}
}

func TestGraphConstruction_Empty(t *testing.T) {
	g, err := NewTaskGraph(nil, nil)
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if g.Len() != 0 || len(g.TopologicalOrder()) != 0 {
		t.Fatalf("expected empty graph, got %v", g.TopologicalOrder())
	}
}

func TestGraphConstruction_DependencyChain(t *testing.T) {
	g, err := NewTaskGraph(testNodes("C", "B", "A"), []Edge{{From: "B", To: "C"}, {From: "A", To: "B"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"A", "B", "C"}
	if got := g.TopologicalOrder(); !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v want %v", got, want)
	}
	if d, _ := g.Depth("C"); d != 2 {
		t.Fatalf("depth of C: got %d want 2", d)
	}
	if got := g.Parents("C"); !reflect.DeepEqual(got, []string{"B"}) {
		t.Fatalf("parents of C: got %v", got)
	}
}

func TestGraphConstruction_DiamondDependency(t *testing.T) {
	g, err := NewTaskGraph(
		testNodes("A", "B", "C", "D"),
		[]Edge{{From: "A", To: "B"}, {From: "A", To: "C"}, {From: "B", To: "D"}, {From: "C", To: "D"}},
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	countToD := 0
	for _, e := range g.Edges() {
		if e.To == "D" {
			countToD++
		}
	}
	if countToD != 2 {
		t.Fatalf("expected D to have 2 incoming edges, got %d", countToD)
	}
}

func TestGraphConstruction_DuplicateKeyRejected(t *testing.T) {
	_, err := NewTaskGraph([]*core.Instance{testNode("A", "x"), testNode("A", "y")}, nil)
	if !errors.Is(err, ErrInvalidGraph) {
		t.Fatalf("expected invalid graph error, got %v", err)
	}
}

func TestGraphConstruction_UnknownEdgeRejected(t *testing.T) {
	_, err := NewTaskGraph(testNodes("A"), []Edge{{From: "A", To: "missing"}})
	if !errors.Is(err, ErrInvalidGraph) {
		t.Fatalf("expected invalid graph error, got %v", err)
	}
}

func TestGraphHash_InvariantToInsertionOrder(t *testing.T) {
	g1, err := NewTaskGraph(testNodes("A", "B", "C"), []Edge{{From: "A", To: "B"}, {From: "A", To: "C"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	g2, err := NewTaskGraph(testNodes("C", "B", "A"), []Edge{{From: "A", To: "C"}, {From: "A", To: "B"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if g1.Hash() != g2.Hash() {
		t.Fatalf("expected equal graph hashes, got %s vs %s", g1.Hash(), g2.Hash())
	}
}

func TestGraphHash_ChangesWithCommand(t *testing.T) {
	a := testNode("A")
	g1, err := NewTaskGraph([]*core.Instance{a}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b := testNode("A")
	b.Command = "touch A && echo changed"
	g2, err := NewTaskGraph([]*core.Instance{b}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if g1.Hash() == g2.Hash() {
		t.Fatalf("expected different graph hashes")
	}
}

func TestCycleDetection_SelfLoopRejected(t *testing.T) {
	_, err := NewTaskGraph(testNodes("A"), []Edge{{From: "A", To: "A"}})
	if err == nil {
		t.Fatalf("expected error")
	}
	if !errors.Is(err, ErrInvalidGraph) {
		t.Fatalf("expected invalid graph error, got %v", err)
	}
}

func TestCycleDetection_IndirectCycleRejected(t *testing.T) {
	_, err := NewTaskGraph(testNodes("A", "B", "C"), []Edge{{From: "A", To: "B"}, {From: "B", To: "C"}, {From: "C", To: "A"}})
	if err == nil {
		t.Fatalf("expected error")
	}
	if !errors.Is(err, ErrCycleFound) {
		t.Fatalf("expected cycle error, got %v", err)
	}
}

func TestAncestorsAndSubgraph(t *testing.T) {
	g, err := NewTaskGraph(
		testNodes("A", "B", "C", "D", "E"),
		[]Edge{{From: "A", To: "B"}, {From: "B", To: "C"}, {From: "D", To: "E"}},
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	anc := g.Ancestors([]string{"C"})
	if want := []string{"A", "B", "C"}; !reflect.DeepEqual(anc, want) {
		t.Fatalf("ancestors: got %v want %v", anc, want)
	}
	sub, err := g.Subgraph(anc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sub.Len() != 3 || len(sub.Edges()) != 2 {
		t.Fatalf("unexpected subgraph: %v %v", sub.TopologicalOrder(), sub.Edges())
	}
	if _, ok := sub.Node("E"); ok {
		t.Fatalf("E must not be in the subgraph")
	}
}
