package core

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
)

// ExecutionResult contains the captured outcome of one shell command.
type ExecutionResult struct {
	Stdout []byte
	Stderr []byte

	// ExitCode is the process exit code; 0 indicates success.
	ExitCode int
}

// Executor runs rendered commands through sh -c.
//
// The child inherits the host environment, extended by Env. A started
// command always runs to completion: cancelling the context only prevents
// new starts.
type Executor struct {
	// WorkingDir is the directory commands run in.
	WorkingDir string

	// Env holds extra KEY=VALUE entries appended to the host environment.
	Env []string
}

// NewExecutor creates a new Executor with the given working directory.
func NewExecutor(workingDir string) *Executor {
	return &Executor{WorkingDir: workingDir}
}

// Execute runs command and waits for it. A non-nil error means the command
// could not be run at all; a failing command is reported through ExitCode.
func (e *Executor) Execute(ctx context.Context, command string) (*ExecutionResult, error) {
	if command == "" {
		return nil, fmt.Errorf("command is empty")
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("not started: %w", err)
	}

	cmd := exec.Command("sh", "-c", command)
	cmd.Dir = e.WorkingDir
	cmd.Env = append(os.Environ(), e.Env...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	exitCode := 0
	if err != nil {
		exitErr, ok := err.(*exec.ExitError)
		if !ok {
			return nil, fmt.Errorf("failed to execute command: %w", err)
		}
		exitCode = exitErr.ExitCode()
	}

	return &ExecutionResult{
		Stdout:   stdout.Bytes(),
		Stderr:   stderr.Bytes(),
		ExitCode: exitCode,
	}, nil
}
