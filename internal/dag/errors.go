package dag

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidGraph = errors.New("invalid task graph")
	ErrCycleFound   = errors.New("cycle detected")
)

// GraphError wraps deterministic graph validation and planning failures.
type GraphError struct {
	Kind error
	Msg  string
}

func (e *GraphError) Error() string {
	if e == nil {
		return ""
	}
	if e.Msg == "" {
		return e.Kind.Error()
	}
	return fmt.Sprintf("%s: %s", e.Kind.Error(), e.Msg)
}

func (e *GraphError) Unwrap() error { return e.Kind }

func invalidf(format string, args ...any) error {
	return &GraphError{Kind: ErrInvalidGraph, Msg: fmt.Sprintf(format, args...)}
}

func cycleError(path []string) error {
	msg := "cycle"
	if len(path) > 0 {
		msg = "cycle: " + strings.Join(path, " -> ")
	}
	return &GraphError{Kind: ErrCycleFound, Msg: msg}
}

// PlanError reports a task whose instances could not be planned, e.g.
// because a control file name could not be derived.
type PlanError struct {
	Task  string
	Input string
	Err   error
}

func (e *PlanError) Error() string {
	if e == nil {
		return ""
	}
	if e.Input == "" {
		return fmt.Sprintf("planning %s: %v", e.Task, e.Err)
	}
	return fmt.Sprintf("planning %s for %s: %v", e.Task, e.Input, e.Err)
}

func (e *PlanError) Unwrap() error { return e.Err }
