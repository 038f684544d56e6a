package dag

import "peaksandprofiles/internal/core"

// GraphHash is the deterministic identity of a TaskGraph.
//
// It is computed solely from instance definitions and dependency structure.
// It MUST be stable across different insertion orders of instances and edges.
type GraphHash string

// TaskDefHash is the identity of one planned instance: its task, resolved
// paths and rendered command.
type TaskDefHash string

// Edge represents a dependency relation: To depends on From.
//
// A directed edge From -> To means To can only run after From completed or
// was found up to date.
type Edge struct {
	From string
	To   string
	// Order marks an ordering-only edge: To consumes nothing From produces,
	// so From running never makes To stale.
	Order bool
}

// TaskNode is an immutable node in the TaskGraph.
//
// Name is the instance key (its primary output path).
type TaskNode struct {
	Name           string
	Instance       *core.Instance
	DefinitionHash TaskDefHash
	canonicalIndex int
}

// CanonicalIndex returns the node's deterministic position in the graph's canonical ordering.
func (n *TaskNode) CanonicalIndex() int { return n.canonicalIndex }

// TaskName returns the name of the declaring task.
func (n *TaskNode) TaskName() string {
	if n.Instance == nil || n.Instance.Task == nil {
		return ""
	}
	return n.Instance.Task.Name
}

func (h GraphHash) String() string { return string(h) }

// String returns the string representation of the TaskDefHash.
func (h TaskDefHash) String() string { return string(h) }
