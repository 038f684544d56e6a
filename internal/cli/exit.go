package cli

import (
	"errors"
	"fmt"

	"peaksandprofiles/internal/config"
	"peaksandprofiles/internal/dag"
)

const (
	ExitSuccess           = 0
	ExitGraphFailure      = 1
	ExitInvalidInvocation = 2
	ExitConfigError       = 3
	ExitInternalError     = 4
)

// ExitError carries the process exit code of a failed command.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e == nil || e.Err == nil {
		return ""
	}
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error { return e.Err }

func invalidInvocationf(format string, args ...any) error {
	return &ExitError{Code: ExitInvalidInvocation, Err: fmt.Errorf(format, args...)}
}

// classify attaches an exit code to an error returned before execution
// starts: configuration, naming and graph declaration problems are
// configuration errors, everything else is internal.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var ee *ExitError
	if errors.As(err, &ee) {
		return err
	}
	var (
		cfgErr  *config.Error
		planErr *dag.PlanError
	)
	switch {
	case errors.As(err, &cfgErr),
		errors.As(err, &planErr),
		errors.Is(err, dag.ErrInvalidGraph),
		errors.Is(err, dag.ErrCycleFound):
		return &ExitError{Code: ExitConfigError, Err: err}
	default:
		return &ExitError{Code: ExitInternalError, Err: err}
	}
}

// ExitCode extracts the exit code of err. Errors without one come from
// argument parsing and are invalid invocations.
func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var ee *ExitError
	if errors.As(err, &ee) && ee != nil {
		return ee.Code
	}
	return ExitInvalidInvocation
}
