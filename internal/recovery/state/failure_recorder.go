package state

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
)

// FailureRecorder writes the run.json and failures.json records of runs.
//
// Callers provide Run metadata and the triggering errors; the recorder
// classifies them and persists them through Store (atomic + durable).
type FailureRecorder struct {
	Store *Store
}

// NewRunID returns a time-ordered UUID, so run directories sort
// chronologically.
func (r *FailureRecorder) NewRunID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

func (r *FailureRecorder) StartRun(run Run) (Run, error) {
	if r == nil || r.Store == nil {
		return Run{}, errors.New("Store is required")
	}
	if run.StartTime.IsZero() {
		run.StartTime = time.Now().UTC()
	}
	if run.Targets == nil {
		run.Targets = []string{}
	}
	run.Status = RunStatusRunning
	run.EndTime = nil
	if err := run.Validate(); err != nil {
		return Run{}, fmt.Errorf("invalid run: %w", err)
	}
	return run, r.Store.SaveRun(run)
}

// FinishRun stamps the end time and final status of run and saves it.
func (r *FailureRecorder) FinishRun(run Run, status RunStatus) (Run, error) {
	if r == nil || r.Store == nil {
		return Run{}, errors.New("Store is required")
	}
	end := time.Now().UTC()
	run.EndTime = &end
	run.Status = status
	return run, r.Store.SaveRun(run)
}

// RecordFailure records a single run-level failure.
func (r *FailureRecorder) RecordFailure(runID string, err error) error {
	if r == nil || r.Store == nil {
		return errors.New("Store is required")
	}
	f, ferr := failureFromError(err)
	if ferr != nil {
		return ferr
	}
	return r.Store.SaveFailures(Failures{RunID: runID, Failures: []Failure{f}})
}

// RecordInstanceFailures records the failure of every instance in errs,
// keyed by instance. taskOf names the task of an instance.
func (r *FailureRecorder) RecordInstanceFailures(runID string, errs map[string]error, taskOf func(instance string) string) error {
	if r == nil || r.Store == nil {
		return errors.New("Store is required")
	}
	keys := make([]string, 0, len(errs))
	for k := range errs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := Failures{RunID: runID, Failures: make([]Failure, 0, len(keys))}
	for _, k := range keys {
		task := ""
		if taskOf != nil {
			task = taskOf(k)
		}
		f, err := failureFromError(&ExecutionFailureError{
			Instance: k,
			Task:     task,
			Message:  errs[k].Error(),
			Cause:    errs[k],
		})
		if err != nil {
			return err
		}
		out.Failures = append(out.Failures, f)
	}
	return r.Store.SaveFailures(out)
}
