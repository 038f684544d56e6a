package core

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/grailbio/base/log"
)

// Runner performs single instances.
//
// The execution flow:
//  1. Create the directories of all declared outputs
//  2. Render the cluster wrapper around the command, if configured
//  3. Execute (or call the native function)
//  4. On success, require every declared output to exist
//  5. On failure, remove the declared outputs unless KeepPartial is set
//  6. Retry failed attempts up to Retries times with exponential back-off
type Runner struct {
	// WorkingDir is the pipeline directory; all instance paths are relative to it.
	WorkingDir string

	Executor *Executor

	// Wrapper is an optional template around every shell command, with tags
	// {{command}}, {{quoted_command}}, {{memory}} and {{task}}.
	Wrapper string

	Retries     int
	KeepPartial bool

	// NewBackOff builds the retry schedule. Nil means exponential back-off.
	NewBackOff func() backoff.BackOff
}

// NewRunner creates a Runner with the given working directory.
func NewRunner(workingDir string) *Runner {
	return &Runner{
		WorkingDir: workingDir,
		Executor:   NewExecutor(workingDir),
	}
}

// RunResult contains the result of the last attempt of an instance.
type RunResult struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
	Attempts int
}

// Run performs inst. The returned error is one of *ExternalToolError,
// *MissingOutputError, *NativeError, an error describing why the command
// could not be started, or the context error when ctx is cancelled before a
// retry. The result is non-nil whenever at least one attempt was made.
func (r *Runner) Run(ctx context.Context, inst *Instance) (*RunResult, error) {
	if inst == nil || inst.Task == nil {
		return nil, fmt.Errorf("instance is nil")
	}
	if inst.Command == "" && inst.Task.Native == nil {
		return nil, fmt.Errorf("%s: no command to run", inst.Task.Name)
	}

	res := &RunResult{}
	op := func() error {
		res.Attempts++
		err := r.attempt(ctx, inst, res)
		if err == nil {
			return nil
		}
		switch err.(type) {
		case *ExternalToolError, *MissingOutputError, *NativeError:
			return err
		default:
			return backoff.Permanent(err)
		}
	}
	notify := func(err error, wait time.Duration) {
		log.Error.Printf("%s: attempt %d failed, retrying in %s: %v", inst.Key(), res.Attempts, wait, err)
	}

	b := backoff.WithContext(backoff.WithMaxRetries(r.newBackOff(), uint64(r.retries())), ctx)
	// RetryNotify unwraps permanent errors.
	return res, backoff.RetryNotify(op, b, notify)
}

func (r *Runner) retries() int {
	if r.Retries < 0 {
		return 0
	}
	return r.Retries
}

func (r *Runner) newBackOff() backoff.BackOff {
	if r.NewBackOff != nil {
		return r.NewBackOff()
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 5 * time.Second
	b.MaxElapsedTime = 0
	return b
}

func (r *Runner) attempt(ctx context.Context, inst *Instance, res *RunResult) error {
	if err := r.makeOutputDirs(inst.Outputs); err != nil {
		return err
	}

	err := r.invoke(ctx, inst, res)
	if err == nil {
		err = r.checkOutputs(inst)
	}
	if err != nil && !r.KeepPartial {
		if cerr := r.RemoveOutputs(inst.Outputs); cerr != nil {
			log.Error.Printf("%s: removing partial outputs: %v", inst.Key(), cerr)
		}
	}
	return err
}

func (r *Runner) invoke(ctx context.Context, inst *Instance, res *RunResult) error {
	if inst.Task.Native != nil {
		if err := inst.Task.Native(ctx, r.WorkingDir, inst); err != nil {
			res.ExitCode = 1
			return &NativeError{Task: inst.Task.Name, Instance: inst.Key(), Err: err}
		}
		res.ExitCode = 0
		return nil
	}

	command, err := r.wrap(inst)
	if err != nil {
		return err
	}
	log.Debug.Printf("%s: %s", inst.Key(), command)

	execRes, err := r.executor().Execute(ctx, command)
	if err != nil {
		return fmt.Errorf("%s: %w", inst.Key(), err)
	}
	res.Stdout = execRes.Stdout
	res.Stderr = execRes.Stderr
	res.ExitCode = execRes.ExitCode
	if execRes.ExitCode != 0 {
		return &ExternalToolError{
			Task:     inst.Task.Name,
			Instance: inst.Key(),
			ExitCode: execRes.ExitCode,
			Stderr:   execRes.Stderr,
		}
	}
	return nil
}

func (r *Runner) executor() *Executor {
	if r.Executor != nil {
		return r.Executor
	}
	return NewExecutor(r.WorkingDir)
}

func (r *Runner) wrap(inst *Instance) (string, error) {
	if r.Wrapper == "" {
		return inst.Command, nil
	}
	return Render(r.Wrapper, map[string]string{
		"command":        inst.Command,
		"quoted_command": ShellQuote(inst.Command),
		"memory":         inst.Task.Memory,
		"task":           inst.Task.Name,
	})
}

func (r *Runner) abs(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(r.WorkingDir, filepath.FromSlash(p))
}

func (r *Runner) makeOutputDirs(outputs []string) error {
	for _, out := range outputs {
		dir := filepath.Dir(r.abs(out))
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating output directory %q: %w", dir, err)
		}
	}
	return nil
}

func (r *Runner) checkOutputs(inst *Instance) error {
	for _, out := range inst.Outputs {
		if _, err := os.Stat(r.abs(out)); err != nil {
			if os.IsNotExist(err) {
				return &MissingOutputError{Task: inst.Task.Name, Instance: inst.Key(), Path: out}
			}
			return fmt.Errorf("stat output %q: %w", out, err)
		}
	}
	return nil
}

// RemoveOutputs deletes the given outputs, ignoring ones that do not exist.
func (r *Runner) RemoveOutputs(outputs []string) error {
	for _, out := range outputs {
		if err := os.RemoveAll(r.abs(out)); err != nil {
			return fmt.Errorf("removing %q: %w", out, err)
		}
	}
	return nil
}
