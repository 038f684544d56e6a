package dag

// GraphResult is the summary of one execution attempt of a graph.
type GraphResult struct {
	GraphHash GraphHash

	// FinalState is the terminal state of each instance by key.
	FinalState ExecutionState

	// ExecutionOrder lists the instances that were started, in dispatch order.
	ExecutionOrder []string

	// Stdout/Stderr/ExitCode capture the last attempt of executed instances.
	Stdout   map[string][]byte
	Stderr   map[string][]byte
	ExitCode map[string]int

	// Failures holds the error of every FAILED instance.
	Failures map[string]error

	// Cancelled is set when the context was cancelled before the graph
	// finished; the instances it prevented from starting are SKIPPED.
	Cancelled bool
}

// Count returns the number of instances in state s.
func (r *GraphResult) Count(s TaskState) int {
	n := 0
	for _, st := range r.FinalState {
		if st == s {
			n++
		}
	}
	return n
}

// Succeeded reports whether every instance completed or was up to date.
func (r *GraphResult) Succeeded() bool {
	for _, st := range r.FinalState {
		if !IsSuccessful(st) {
			return false
		}
	}
	return true
}
