package dag

import (
	"context"
	"fmt"
	"sync"

	"github.com/grailbio/base/log"

	"peaksandprofiles/internal/core"
	"peaksandprofiles/internal/trace"
)

// TaskRunner probes and performs single instances.
//
// A non-nil error from Run fails the instance (and skips its descendants); it
// never aborts the graph.
type TaskRunner interface {
	// Probe decides whether the instance is up to date.
	Probe(ctx context.Context, inst *core.Instance) (core.Verdict, error)

	Run(ctx context.Context, inst *core.Instance) (*NodeResult, error)
}

// Executor executes a TaskGraph incrementally.
type Executor struct {
	Graph  *TaskGraph
	Runner TaskRunner
	// Trace receives every scheduling decision. Nil discards them.
	Trace trace.Sink

	mu    sync.Mutex
	state ExecutionState
}

// NewExecutor creates an executor with all nodes initialized to PENDING.
func NewExecutor(g *TaskGraph, runner TaskRunner) (*Executor, error) {
	if g == nil {
		return nil, fmt.Errorf("nil graph")
	}
	if runner == nil {
		return nil, fmt.Errorf("nil runner")
	}

	state := make(ExecutionState, len(g.nodes))
	for _, n := range g.nodes {
		state[n.Name] = TaskPending
	}

	return &Executor{Graph: g, Runner: runner, state: state}, nil
}

// StateSnapshot returns a copy of the current execution state.
func (e *Executor) StateSnapshot() ExecutionState {
	e.mu.Lock()
	defer e.mu.Unlock()

	cp := make(ExecutionState, len(e.state))
	for k, v := range e.state {
		cp[k] = v
	}
	return cp
}

// RunSerial executes the graph with a single worker slot.
func (e *Executor) RunSerial(ctx context.Context) (*GraphResult, error) {
	return e.Run(ctx, 1)
}

type workItem struct {
	name string
	inst *core.Instance
}

type workResult struct {
	name   string
	result *NodeResult
	err    error
}

type runRecord struct {
	order     []string
	stdout    map[string][]byte
	stderr    map[string][]byte
	exitCodes map[string]int
	failures  map[string]error
	// executed holds the instances that completed by running in this attempt.
	executed map[string]bool
}

// Run executes the graph using up to jobs worker slots.
//
// Dispatch policy:
//   - Ready instances (all parents COMPLETED or UP_TO_DATE) are taken in
//     (depth, key) order.
//   - At dispatch an instance is probed. It is forced to run when a parent
//     producing one of its inputs ran in this attempt; ordering-only parents
//     never force it. Otherwise the runner's verdict decides whether it
//     runs or becomes UP_TO_DATE.
//   - A failed instance marks its descendants SKIPPED; independent branches
//     continue.
//   - Once ctx is cancelled nothing new is dispatched. Running instances are
//     waited for, and every instance still PENDING becomes SKIPPED.
//
// All state reads/writes are synchronized by e.mu. Instances run outside the lock.
// The returned error is reserved for broken invariants; instance failures
// are reported in the result.
func (e *Executor) Run(ctx context.Context, jobs int) (*GraphResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if jobs <= 0 {
		return nil, fmt.Errorf("jobs must be > 0")
	}

	workCh := make(chan workItem, jobs)
	doneCh := make(chan workResult, jobs)

	var wg sync.WaitGroup
	for i := 0; i < jobs; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for w := range workCh {
				res, err := e.Runner.Run(ctx, w.inst)
				doneCh <- workResult{name: w.name, result: res, err: err}
			}
		}()
	}
	defer func() {
		close(workCh)
		wg.Wait()
	}()

	rec := &runRecord{
		stdout:    make(map[string][]byte),
		stderr:    make(map[string][]byte),
		exitCodes: make(map[string]int),
		failures:  make(map[string]error),
		executed:  make(map[string]bool),
	}
	inFlight := 0

	for {
		if ctx.Err() == nil {
			e.mu.Lock()
			started, err := e.dispatch(ctx, rec, jobs-inFlight, workCh)
			e.mu.Unlock()
			if err != nil {
				return nil, err
			}
			inFlight += started
		}

		if inFlight == 0 {
			break
		}

		r := <-doneCh
		inFlight--
		e.mu.Lock()
		err := e.complete(rec, r)
		e.mu.Unlock()
		if err != nil {
			return nil, err
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	cancelled := false
	for _, n := range e.Graph.nodes {
		if e.state[n.Name] != TaskPending {
			continue
		}
		if ctx.Err() == nil {
			return nil, fmt.Errorf("no ready instances but %q is still pending", n.Name)
		}
		cancelled = true
		if err := Transition(e.state, n.Name, TaskPending, TaskSkipped); err != nil {
			return nil, err
		}
		e.record(trace.TraceEvent{Kind: trace.EventTaskSkipped, TaskID: n.Name, Task: n.TaskName(), Reason: trace.ReasonCancelled})
	}
	if cancelled {
		log.Printf("run cancelled; instances not yet started were skipped")
	}

	final := make(ExecutionState, len(e.state))
	for k, v := range e.state {
		final[k] = v
	}
	return &GraphResult{
		GraphHash:      e.Graph.Hash(),
		FinalState:     final,
		ExecutionOrder: rec.order,
		Stdout:         rec.stdout,
		Stderr:         rec.stderr,
		ExitCode:       rec.exitCodes,
		Failures:       rec.failures,
		Cancelled:      cancelled,
	}, nil
}

// dispatch starts up to slots ready instances and settles every ready
// instance that turns out to be up to date. It must be called with e.mu held.
func (e *Executor) dispatch(ctx context.Context, rec *runRecord, slots int, workCh chan<- workItem) (int, error) {
	started := 0
	for {
		progress := false
		for _, name := range GetReadyTasks(e.Graph, e.state) {
			if started >= slots {
				return started, nil
			}
			node := e.Graph.nodesByName[name]

			verdict, cause, err := e.probe(ctx, rec, node)
			if err != nil {
				if err := Transition(e.state, name, TaskPending, TaskRunning); err != nil {
					return started, err
				}
				if err := e.fail(rec, node, fmt.Errorf("checking %s: %w", name, err)); err != nil {
					return started, err
				}
				progress = true
				continue
			}

			if !verdict.Stale {
				if err := Transition(e.state, name, TaskPending, TaskUpToDate); err != nil {
					return started, err
				}
				log.Debug.Printf("%s: up to date", name)
				e.record(trace.TraceEvent{Kind: trace.EventTaskUpToDate, TaskID: name, Task: node.TaskName()})
				progress = true
				continue
			}

			if err := Transition(e.state, name, TaskPending, TaskRunning); err != nil {
				return started, err
			}
			e.record(trace.TraceEvent{Kind: trace.EventTaskInvalidated, TaskID: name, Task: node.TaskName(), Reason: verdict.Reason, CauseTaskID: cause})
			log.Printf("%s: starting %s (%s)", node.TaskName(), name, describe(verdict, cause))
			rec.order = append(rec.order, name)
			started++
			workCh <- workItem{name: name, inst: node.Instance}
		}
		if !progress {
			return started, nil
		}
	}
}

func (e *Executor) probe(ctx context.Context, rec *runRecord, node *TaskNode) (core.Verdict, string, error) {
	for _, p := range e.Graph.inputs[node.canonicalIndex] {
		parent := e.Graph.nodes[p].Name
		if rec.executed[parent] {
			return core.Verdict{Stale: true, Reason: trace.ReasonUpstreamExecuted}, parent, nil
		}
	}
	v, err := e.Runner.Probe(ctx, node.Instance)
	return v, "", err
}

func describe(v core.Verdict, cause string) string {
	switch {
	case cause != "":
		return v.Reason + " " + cause
	case v.Path != "":
		return v.Reason + " " + v.Path
	default:
		return v.Reason
	}
}

// complete commits the outcome of a finished instance. It must be called with
// e.mu held.
func (e *Executor) complete(rec *runRecord, r workResult) error {
	node, ok := e.Graph.nodesByName[r.name]
	if !ok {
		return fmt.Errorf("completion for unknown instance %q", r.name)
	}
	if cur := e.state[r.name]; cur != TaskRunning {
		return fmt.Errorf("completion for %q but state is %s", r.name, cur)
	}
	if r.result != nil {
		rec.stdout[r.name] = r.result.Stdout
		rec.stderr[r.name] = r.result.Stderr
		rec.exitCodes[r.name] = r.result.ExitCode
	}
	if r.err != nil {
		return e.fail(rec, node, r.err)
	}
	if err := Transition(e.state, r.name, TaskRunning, TaskCompleted); err != nil {
		return err
	}
	rec.executed[r.name] = true
	log.Printf("%s: finished %s", node.TaskName(), r.name)
	e.record(trace.TraceEvent{Kind: trace.EventTaskExecuted, TaskID: r.name, Task: node.TaskName(), Outputs: node.Instance.Outputs})
	return nil
}

func (e *Executor) fail(rec *runRecord, node *TaskNode, cause error) error {
	skipped, err := FailAndPropagate(e.Graph, e.state, node.Name)
	if err != nil {
		return err
	}
	rec.failures[node.Name] = cause
	log.Error.Printf("%s: %s failed: %v", node.TaskName(), node.Name, cause)
	e.record(trace.TraceEvent{Kind: trace.EventTaskFailed, TaskID: node.Name, Task: node.TaskName()})
	for _, s := range skipped {
		sn := e.Graph.nodesByName[s]
		e.record(trace.TraceEvent{Kind: trace.EventTaskSkipped, TaskID: s, Task: sn.TaskName(), Reason: trace.ReasonUpstreamFailed, CauseTaskID: node.Name})
	}
	if len(skipped) > 0 {
		log.Error.Printf("%s: skipping %d downstream instance(s)", node.Name, len(skipped))
	}
	return nil
}

func (e *Executor) record(ev trace.TraceEvent) {
	trace.SafeRecord(e.Trace, ev)
}
