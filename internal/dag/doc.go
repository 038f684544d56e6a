// Package dag plans and executes the file-driven task graph.
//
// It is split into:
//   - Declaration validation: task-level references and cycles, checked before planning
//   - Planning (Builder): task declarations + files on disk -> immutable TaskGraph of instances
//   - Execution (Executor): mutable per-run state, incremental dispatch, failure propagation
//
// The graph identity (GraphHash) is computed from instance definitions and
// canonicalized edge structure, making it invariant to insertion order.
package dag
