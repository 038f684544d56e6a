package state

import (
	"context"
	"errors"
	"fmt"

	"peaksandprofiles/internal/core"
	"peaksandprofiles/internal/dag"
)

// GraphFailureError represents task declarations that do not form a valid
// graph (unknown references, cycles, duplicate outputs).
type GraphFailureError struct {
	Code    string
	Message string
	Cause   error
}

func (e *GraphFailureError) Error() string {
	if e == nil {
		return ""
	}
	if e.Code != "" {
		return fmt.Sprintf("graph failure (%s): %s", e.Code, e.Message)
	}
	return fmt.Sprintf("graph failure: %s", e.Message)
}

func (e *GraphFailureError) Unwrap() error { return e.Cause }

// ConfigurationFailureError represents invalid options or input files that
// cannot be planned, e.g. a sample name outside the naming convention.
type ConfigurationFailureError struct {
	Code    string
	Message string
	Cause   error
}

func (e *ConfigurationFailureError) Error() string {
	if e == nil {
		return ""
	}
	if e.Code != "" {
		return fmt.Sprintf("configuration failure (%s): %s", e.Code, e.Message)
	}
	return fmt.Sprintf("configuration failure: %s", e.Message)
}

func (e *ConfigurationFailureError) Unwrap() error { return e.Cause }

// ExecutionFailureError represents the failure of one task instance.
type ExecutionFailureError struct {
	Instance string
	Task     string
	Code     string
	Message  string
	Cause    error
}

func (e *ExecutionFailureError) Error() string {
	if e == nil {
		return ""
	}
	if e.Instance != "" && e.Code != "" {
		return fmt.Sprintf("execution failure instance=%s (%s): %s", e.Instance, e.Code, e.Message)
	}
	if e.Instance != "" {
		return fmt.Sprintf("execution failure instance=%s: %s", e.Instance, e.Message)
	}
	return fmt.Sprintf("execution failure: %s", e.Message)
}

func (e *ExecutionFailureError) Unwrap() error { return e.Cause }

// SystemFailureError represents cancellation and I/O failures of the engine
// itself.
type SystemFailureError struct {
	Code    string
	Message string
	Cause   error
}

func (e *SystemFailureError) Error() string {
	if e == nil {
		return ""
	}
	if e.Code != "" {
		return fmt.Sprintf("system failure (%s): %s", e.Code, e.Message)
	}
	return fmt.Sprintf("system failure: %s", e.Message)
}

func (e *SystemFailureError) Unwrap() error { return e.Cause }

func failureFromError(err error) (Failure, error) {
	if err == nil {
		return Failure{}, errors.New("nil error")
	}

	var gf *GraphFailureError
	if errors.As(err, &gf) && gf != nil {
		return Failure{
			FailureClass: FailureClassGraph,
			ErrorCode:    nonEmptyOr(gf.Code, "GraphFailure"),
			ErrorMessage: nonEmptyOr(gf.Message, gf.Error()),
		}, nil
	}

	var cf *ConfigurationFailureError
	if errors.As(err, &cf) && cf != nil {
		return Failure{
			FailureClass: FailureClassConfiguration,
			ErrorCode:    nonEmptyOr(cf.Code, "ConfigurationFailure"),
			ErrorMessage: nonEmptyOr(cf.Message, cf.Error()),
		}, nil
	}

	var ef *ExecutionFailureError
	if errors.As(err, &ef) && ef != nil {
		f := Failure{
			FailureClass: FailureClassExecution,
			ErrorCode:    nonEmptyOr(ef.Code, executionCode(ef.Cause)),
			ErrorMessage: nonEmptyOr(ef.Message, ef.Error()),
			ExitCode:     exitCode(ef.Cause),
		}
		if ef.Instance != "" {
			n := ef.Instance
			f.Instance = &n
		}
		if ef.Task != "" {
			n := ef.Task
			f.Task = &n
		}
		return f, nil
	}

	var sf *SystemFailureError
	if errors.As(err, &sf) && sf != nil {
		return Failure{
			FailureClass: FailureClassSystem,
			ErrorCode:    nonEmptyOr(sf.Code, "SystemFailure"),
			ErrorMessage: nonEmptyOr(sf.Message, sf.Error()),
		}, nil
	}

	var pe *dag.PlanError
	if errors.As(err, &pe) {
		return Failure{
			FailureClass: FailureClassConfiguration,
			ErrorCode:    "PlanningFailed",
			ErrorMessage: err.Error(),
		}, nil
	}
	if errors.Is(err, dag.ErrCycleFound) {
		return Failure{FailureClass: FailureClassGraph, ErrorCode: "CycleFound", ErrorMessage: err.Error()}, nil
	}
	if errors.Is(err, dag.ErrInvalidGraph) {
		return Failure{FailureClass: FailureClassGraph, ErrorCode: "InvalidGraph", ErrorMessage: err.Error()}, nil
	}
	if errors.Is(err, context.Canceled) {
		return Failure{FailureClass: FailureClassSystem, ErrorCode: "Cancelled", ErrorMessage: err.Error()}, nil
	}

	// Anything else is an engine problem.
	return Failure{
		FailureClass: FailureClassSystem,
		ErrorCode:    "UnknownError",
		ErrorMessage: err.Error(),
	}, nil
}

// executionCode names the error types the runner returns.
func executionCode(err error) string {
	var (
		tool    *core.ExternalToolError
		missing *core.MissingOutputError
		native  *core.NativeError
	)
	switch {
	case errors.As(err, &tool):
		return "ExternalToolError"
	case errors.As(err, &missing):
		return "MissingOutput"
	case errors.As(err, &native):
		return "NativeTaskFailed"
	default:
		return "ExecutionFailure"
	}
}

func exitCode(err error) *int {
	var tool *core.ExternalToolError
	if errors.As(err, &tool) {
		c := tool.ExitCode
		return &c
	}
	return nil
}

func nonEmptyOr(v, fallback string) string {
	if v != "" {
		return v
	}
	return fallback
}
