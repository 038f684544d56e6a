package dag

import (
	"reflect"
	"testing"
)

func TestScheduler_ReadyTasks_SortedByDepthThenName(t *testing.T) {
	g, err := NewTaskGraph(testNodes("A", "B", "C", "D"), []Edge{{From: "A", To: "C"}, {From: "B", To: "D"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// A and B done => C and D become ready. Both are depth 1, so lexical by name.
	state := ExecutionState{
		"A": TaskCompleted,
		"B": TaskUpToDate,
		"C": TaskPending,
		"D": TaskPending,
	}

	got := GetReadyTasks(g, state)
	want := []string{"C", "D"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("ready list mismatch: got %v want %v", got, want)
	}
}

func TestScheduler_ReadyTasks_RootsLexicalOrder(t *testing.T) {
	g, err := NewTaskGraph(testNodes("B", "A", "C"), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	state := ExecutionState{
		"A": TaskPending,
		"B": TaskPending,
		"C": TaskPending,
	}

	got := GetReadyTasks(g, state)
	want := []string{"A", "B", "C"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("ready list mismatch: got %v want %v", got, want)
	}
}

func TestScheduler_DiamondConvergence_WaitsForAllParents(t *testing.T) {
	g, err := NewTaskGraph(
		testNodes("A", "B", "C", "D"),
		[]Edge{{From: "A", To: "B"}, {From: "A", To: "C"}, {From: "B", To: "D"}, {From: "C", To: "D"}},
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	state := ExecutionState{
		"A": TaskCompleted,
		"B": TaskCompleted,
		"C": TaskRunning,
		"D": TaskPending,
	}
	if got := GetReadyTasks(g, state); len(got) != 0 {
		t.Fatalf("expected nothing ready, got %v", got)
	}

	state["C"] = TaskCompleted
	if got, want := GetReadyTasks(g, state), []string{"D"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("ready list mismatch: got %v want %v", got, want)
	}
}

func TestScheduler_FailedParentBlocks(t *testing.T) {
	g, err := NewTaskGraph(testNodes("A", "B"), []Edge{{From: "A", To: "B"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	state := ExecutionState{"A": TaskFailed, "B": TaskPending}
	if got := GetReadyTasks(g, state); len(got) != 0 {
		t.Fatalf("expected nothing ready, got %v", got)
	}
}
