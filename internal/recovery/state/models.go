package state

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusSucceeded RunStatus = "succeeded"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCancelled RunStatus = "cancelled"
)

// Run is the persistent metadata of one `make` invocation.
type Run struct {
	RunID string `json:"run_id"`
	// GraphHash is empty when planning failed.
	GraphHash  string    `json:"graph_hash"`
	StartTime  time.Time `json:"start_time"`
	Completion string    `json:"completion"`
	Targets    []string  `json:"targets"`
	Jobs       int       `json:"jobs"`
	Status     RunStatus `json:"status"`
	// EndTime is null while the run is in progress.
	EndTime *time.Time `json:"end_time"`

	// Counts by final instance state, filled in when the run ends.
	Executed int `json:"executed"`
	UpToDate int `json:"up_to_date"`
	Failed   int `json:"failed"`
	Skipped  int `json:"skipped"`
}

func (r Run) Validate() error {
	var errs []error
	if strings.TrimSpace(r.RunID) == "" {
		errs = append(errs, errors.New("run_id is required"))
	}
	if r.StartTime.IsZero() {
		errs = append(errs, errors.New("start_time is required"))
	}
	if strings.TrimSpace(r.Completion) == "" {
		errs = append(errs, errors.New("completion is required"))
	}
	if r.Jobs < 1 {
		errs = append(errs, errors.New("jobs must be >= 1"))
	}
	switch r.Status {
	case RunStatusRunning, RunStatusSucceeded, RunStatusFailed, RunStatusCancelled:
	default:
		errs = append(errs, fmt.Errorf("invalid status %q", r.Status))
	}
	if r.Status != RunStatusRunning && r.EndTime == nil {
		errs = append(errs, errors.New("end_time is required once the run has ended"))
	}
	if r.Targets == nil {
		errs = append(errs, errors.New("targets must be an array (not null)"))
	}
	if len(errs) == 0 {
		return nil
	}
	return errors.Join(errs...)
}

type FailureClass string

const (
	FailureClassGraph         FailureClass = "graph"
	FailureClassConfiguration FailureClass = "configuration"
	FailureClassExecution     FailureClass = "execution"
	FailureClassSystem        FailureClass = "system"
)

// Failure is one recorded reason for a run not succeeding.
//
// Instance, Task and ExitCode are only present for execution failures.
type Failure struct {
	FailureClass FailureClass `json:"failure_class"`
	Instance     *string      `json:"instance,omitempty"`
	Task         *string      `json:"task,omitempty"`
	ErrorCode    string       `json:"error_code"`
	ErrorMessage string       `json:"error_message"`
	ExitCode     *int         `json:"exit_code,omitempty"`
}

func (f Failure) Validate() error {
	var errs []error
	switch f.FailureClass {
	case FailureClassGraph, FailureClassConfiguration, FailureClassExecution, FailureClassSystem:
	default:
		errs = append(errs, fmt.Errorf("invalid failure_class %q", f.FailureClass))
	}
	if f.Instance != nil && strings.TrimSpace(*f.Instance) == "" {
		errs = append(errs, errors.New("instance must not be empty when provided"))
	}
	if f.FailureClass == FailureClassExecution && f.Instance == nil {
		errs = append(errs, errors.New("instance is required for execution failures"))
	}
	if strings.TrimSpace(f.ErrorCode) == "" {
		errs = append(errs, errors.New("error_code is required"))
	}
	if strings.TrimSpace(f.ErrorMessage) == "" {
		errs = append(errs, errors.New("error_message is required"))
	}
	if len(errs) == 0 {
		return nil
	}
	return errors.Join(errs...)
}

// Failures is the content of failures.json. Records are sorted by instance.
type Failures struct {
	RunID    string    `json:"run_id"`
	Failures []Failure `json:"failures"`
}
