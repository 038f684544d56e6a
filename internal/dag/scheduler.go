package dag

import (
	"sort"
)

// ExecutionState maps instance key to its current TaskState.
//
// It is intentionally a plain map so the scheduler can remain a pure function
// without coupling to an executor implementation.
type ExecutionState map[string]TaskState

// GetReadyTasks returns the deterministically ordered list of instance keys that are
// eligible to run.
//
// Policy:
//   - A task is ready iff it is PENDING and all its dependencies are COMPLETED or UP_TO_DATE.
//   - The returned list is sorted by (topological depth asc, task name asc).
//
// This function is pure: it does not mutate graph or state.
func GetReadyTasks(g *TaskGraph, state ExecutionState) []string {
	if g == nil {
		return nil
	}

	ready := make([]string, 0)
	for _, node := range g.nodes {
		st, ok := state[node.Name]
		if !ok || st != TaskPending {
			continue
		}

		depsOK := true
		for _, parentIdx := range g.incoming[node.canonicalIndex] {
			pst, ok := state[g.nodes[parentIdx].Name]
			if !ok || !IsSuccessful(pst) {
				depsOK = false
				break
			}
		}
		if depsOK {
			ready = append(ready, node.Name)
		}
	}

	sort.Slice(ready, func(i, j int) bool {
		a, b := ready[i], ready[j]
		ad := g.depth[g.nodesByName[a].canonicalIndex]
		bd := g.depth[g.nodesByName[b].canonicalIndex]
		if ad != bd {
			return ad < bd
		}
		return a < b
	})

	return ready
}
