package state

import (
	"context"
	"fmt"
	"testing"

	"peaksandprofiles/internal/core"
	"peaksandprofiles/internal/dag"
)

func TestFailureFromError_ClassifiesGraphFailure(t *testing.T) {
	f, err := failureFromError(&GraphFailureError{Code: "SchemaViolation", Message: "bad"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.FailureClass != FailureClassGraph || f.Instance != nil {
		t.Fatalf("unexpected failure: %#v", f)
	}
}

func TestFailureFromError_ClassifiesConfigurationFailure(t *testing.T) {
	f, err := failureFromError(&ConfigurationFailureError{Code: "MissingOption", Message: "bad"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.FailureClass != FailureClassConfiguration || f.ErrorCode != "MissingOption" {
		t.Fatalf("unexpected failure: %#v", f)
	}
}

func TestFailureFromError_ClassifiesExecutionFailure(t *testing.T) {
	cause := &core.ExternalToolError{Task: "filterreads", Instance: "a.bam", ExitCode: 3, Stderr: []byte("oops\n")}
	f, err := failureFromError(&ExecutionFailureError{Instance: "a.bam", Task: "filterreads", Message: cause.Error(), Cause: cause})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.FailureClass != FailureClassExecution || f.Instance == nil || *f.Instance != "a.bam" {
		t.Fatalf("unexpected failure: %#v", f)
	}
	if f.ErrorCode != "ExternalToolError" || f.ExitCode == nil || *f.ExitCode != 3 {
		t.Fatalf("unexpected failure: %#v", f)
	}
}

func TestFailureFromError_ClassifiesMissingOutput(t *testing.T) {
	cause := &core.MissingOutputError{Task: "t", Instance: "x", Path: "x"}
	f, err := failureFromError(&ExecutionFailureError{Instance: "x", Cause: fmt.Errorf("wrapped: %w", cause)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.ErrorCode != "MissingOutput" || f.ExitCode != nil {
		t.Fatalf("unexpected failure: %#v", f)
	}
}

func TestFailureFromError_ClassifiesEngineErrors(t *testing.T) {
	cases := []struct {
		err   error
		class FailureClass
		code  string
	}{
		{&dag.PlanError{Task: "broadpeakcall", Input: "x.bam", Err: fmt.Errorf("bad name")}, FailureClassConfiguration, "PlanningFailed"},
		{&dag.GraphError{Kind: dag.ErrCycleFound, Msg: "cycle: a -> b -> a"}, FailureClassGraph, "CycleFound"},
		{&dag.GraphError{Kind: dag.ErrInvalidGraph, Msg: "unknown"}, FailureClassGraph, "InvalidGraph"},
		{context.Canceled, FailureClassSystem, "Cancelled"},
		{fmt.Errorf("disk on fire"), FailureClassSystem, "UnknownError"},
	}
	for _, c := range cases {
		f, err := failureFromError(c.err)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if f.FailureClass != c.class || f.ErrorCode != c.code {
			t.Fatalf("%v: got %s/%s want %s/%s", c.err, f.FailureClass, f.ErrorCode, c.class, c.code)
		}
	}
}

func TestFailureFromError_Nil(t *testing.T) {
	if _, err := failureFromError(nil); err == nil {
		t.Fatalf("expected error")
	}
}
