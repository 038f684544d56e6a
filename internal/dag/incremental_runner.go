package dag

import (
	"context"
	"fmt"

	"peaksandprofiles/internal/core"
)

// NodeResult is the outcome of the last attempt of a single instance.
type NodeResult struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
	Attempts int
}

// IncrementalRunner adapts core.Runner and a completion Strategy to the DAG
// executor.
//
// It is responsible for:
//   - deciding whether an instance is up to date
//   - running stale instances
//   - recording completion after a successful run
type IncrementalRunner struct {
	Runner   *core.Runner
	Strategy core.Strategy
}

func NewIncrementalRunner(r *core.Runner, s core.Strategy) (*IncrementalRunner, error) {
	if r == nil {
		return nil, fmt.Errorf("nil core runner")
	}
	if s == nil {
		return nil, fmt.Errorf("nil completion strategy")
	}
	return &IncrementalRunner{Runner: r, Strategy: s}, nil
}

func (r *IncrementalRunner) Probe(_ context.Context, inst *core.Instance) (core.Verdict, error) {
	return r.Strategy.Check(inst)
}

func (r *IncrementalRunner) Run(ctx context.Context, inst *core.Instance) (*NodeResult, error) {
	res, err := r.Runner.Run(ctx, inst)
	var node *NodeResult
	if res != nil {
		node = &NodeResult{
			Stdout:   res.Stdout,
			Stderr:   res.Stderr,
			ExitCode: res.ExitCode,
			Attempts: res.Attempts,
		}
	}
	if err != nil {
		return node, err
	}
	if err := r.Strategy.Record(inst); err != nil {
		return node, fmt.Errorf("recording completion of %s: %w", inst.Key(), err)
	}
	return node, nil
}
