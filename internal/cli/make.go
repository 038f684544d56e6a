package cli

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/grailbio/base/log"

	"peaksandprofiles/internal/config"
	"peaksandprofiles/internal/core"
	"peaksandprofiles/internal/dag"
	"peaksandprofiles/internal/pipeline"
	"peaksandprofiles/internal/recovery/state"
	"peaksandprofiles/internal/trace"
)

// Options describes one invocation against a pipeline directory.
type Options struct {
	// WorkDir is the pipeline directory. Relative paths are resolved against
	// the process working directory.
	WorkDir string
	// ConfigFile overrides <WorkDir>/pipeline.yml.
	ConfigFile string
	// Targets are task names; empty means the default target.
	Targets []string

	// Jobs and Completion override the configuration when set.
	Jobs       int
	Completion string

	// TracePath, when set, receives the canonical execution trace.
	TracePath string
}

// Result is the outcome of Make.
type Result struct {
	ExitCode int
	RunID    string
	Graph    *dag.GraphResult
}

// session is the configuration and plan shared by make and show.
type session struct {
	workDir string
	cfg     *config.Config
	store   *state.Store
	targets []string
	plan    *dag.Plan
	graph   *dag.TaskGraph
}

func (o Options) load() (*session, error) {
	dir := o.WorkDir
	if dir == "" {
		dir = "."
	}
	dir, err := filepath.Abs(dir)
	if err != nil {
		return nil, invalidInvocationf("--workdir: %v", err)
	}
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return nil, invalidInvocationf("--workdir %s is not a directory", dir)
	}
	if o.Jobs < 0 {
		return nil, invalidInvocationf("--jobs must be >= 1")
	}
	if o.Completion != "" {
		if err := config.ValidateCompletion(o.Completion); err != nil {
			return nil, invalidInvocationf("--completion: %v", err)
		}
	}

	cfg, err := config.Load(dir, o.ConfigFile)
	if err != nil {
		return nil, &ExitError{Code: ExitConfigError, Err: err}
	}
	if o.Jobs > 0 {
		cfg.Run.Jobs = o.Jobs
	}
	if o.Completion != "" {
		cfg.Run.Completion = o.Completion
	}
	st, err := state.NewStore(dir)
	if err != nil {
		return nil, classify(err)
	}
	targets := o.Targets
	if len(targets) == 0 {
		targets = []string{pipeline.DefaultTarget}
	}
	return &session{workDir: dir, cfg: cfg, store: st, targets: targets}, nil
}

// build plans the pipeline and restricts it to the targets.
func (s *session) build() error {
	plan, err := (&dag.Builder{WorkingDir: s.workDir}).Build(pipeline.Declarations(s.cfg))
	if err != nil {
		return classify(err)
	}
	g, err := plan.Select(s.targets)
	if err != nil {
		return invalidInvocationf("%v", err)
	}
	s.plan, s.graph = plan, g
	log.Debug.Printf("planned %d instance(s), %d selected by %v", plan.Graph.Len(), g.Len(), s.targets)
	return nil
}

func (s *session) strategy() (core.Strategy, error) {
	switch s.cfg.Run.Completion {
	case config.CompletionManifest:
		m, err := s.store.LoadManifest()
		if err != nil {
			return nil, &ExitError{Code: ExitInternalError, Err: err}
		}
		return &core.ManifestStrategy{WorkingDir: s.workDir, Store: m}, nil
	default:
		return &core.TimestampStrategy{WorkingDir: s.workDir}, nil
	}
}

// Make plans the pipeline and runs every stale instance needed by the
// targets, recording the run under the state directory.
//
// The error is nil exactly when every instance succeeded or was up to date.
// A failed or cancelled run returns ExitGraphFailure together with the
// result.
func Make(ctx context.Context, o Options) (Result, error) {
	res := Result{ExitCode: ExitInternalError}
	s, err := o.load()
	if err != nil {
		res.ExitCode = ExitCode(err)
		return res, err
	}

	rec := &state.FailureRecorder{Store: s.store}
	runID, err := rec.NewRunID()
	if err != nil {
		return res, classify(err)
	}
	res.RunID = runID
	run := state.Run{
		RunID:      runID,
		Completion: s.cfg.Run.Completion,
		Targets:    s.targets,
		Jobs:       s.cfg.Run.Jobs,
	}

	// abort records a run that ended before execution started.
	abort := func(err error) (Result, error) {
		err = classify(err)
		res.ExitCode = ExitCode(err)
		if started, serr := rec.StartRun(run); serr == nil {
			if ferr := rec.RecordFailure(runID, err); ferr != nil {
				log.Error.Printf("recording failure of run %s: %v", runID, ferr)
			}
			if _, ferr := rec.FinishRun(started, state.RunStatusFailed); ferr != nil {
				log.Error.Printf("recording run %s: %v", runID, ferr)
			}
		}
		return res, err
	}

	if err := s.build(); err != nil {
		return abort(err)
	}
	run.GraphHash = s.graph.Hash().String()
	strategy, err := s.strategy()
	if err != nil {
		return abort(err)
	}

	runner := core.NewRunner(s.workDir)
	runner.Wrapper = s.cfg.Cluster.Wrapper
	runner.Retries = s.cfg.Run.Retries
	runner.KeepPartial = s.cfg.Run.KeepPartial
	ir, err := dag.NewIncrementalRunner(runner, strategy)
	if err != nil {
		return abort(err)
	}
	exec, err := dag.NewExecutor(s.graph, ir)
	if err != nil {
		return abort(err)
	}
	recorder := trace.NewRecorder()
	exec.Trace = recorder

	if run, err = rec.StartRun(run); err != nil {
		return res, classify(err)
	}
	log.Printf("run %s: %d instance(s), %d job(s), %s completion", runID, s.graph.Len(), s.cfg.Run.Jobs, s.cfg.Run.Completion)

	gr, err := exec.Run(ctx, s.cfg.Run.Jobs)
	if err != nil {
		if ferr := rec.RecordFailure(runID, &state.SystemFailureError{Code: "EngineError", Message: err.Error(), Cause: err}); ferr != nil {
			log.Error.Printf("recording failure of run %s: %v", runID, ferr)
		}
		if _, ferr := rec.FinishRun(run, state.RunStatusFailed); ferr != nil {
			log.Error.Printf("recording run %s: %v", runID, ferr)
		}
		return res, &ExitError{Code: ExitInternalError, Err: err}
	}
	res.Graph = gr

	if o.TracePath != "" {
		if err := writeTrace(s.workDir, o.TracePath, recorder, gr.GraphHash.String()); err != nil {
			log.Error.Printf("writing trace: %v", err)
		}
	}

	run.Executed = gr.Count(dag.TaskCompleted)
	run.UpToDate = gr.Count(dag.TaskUpToDate)
	run.Failed = gr.Count(dag.TaskFailed)
	run.Skipped = gr.Count(dag.TaskSkipped)

	status := state.RunStatusSucceeded
	var runErr error
	switch {
	case len(gr.Failures) > 0:
		status = state.RunStatusFailed
		runErr = fmt.Errorf("%d instance(s) failed, %d skipped", run.Failed, run.Skipped)
		taskOf := func(key string) string {
			if n, ok := s.graph.Node(key); ok {
				return n.TaskName()
			}
			return ""
		}
		if err := rec.RecordInstanceFailures(runID, gr.Failures, taskOf); err != nil {
			log.Error.Printf("recording failures of run %s: %v", runID, err)
		}
	case gr.Cancelled:
		status = state.RunStatusCancelled
		runErr = fmt.Errorf("cancelled, %d instance(s) skipped", run.Skipped)
		cause := ctx.Err()
		if cause == nil {
			cause = context.Canceled
		}
		if err := rec.RecordFailure(runID, cause); err != nil {
			log.Error.Printf("recording failure of run %s: %v", runID, err)
		}
	}
	if _, err := rec.FinishRun(run, status); err != nil {
		log.Error.Printf("recording run %s: %v", runID, err)
	}
	log.Printf("run %s %s: %d executed, %d up to date, %d failed, %d skipped",
		runID, status, run.Executed, run.UpToDate, run.Failed, run.Skipped)

	if runErr != nil {
		res.ExitCode = ExitGraphFailure
		return res, &ExitError{Code: ExitGraphFailure, Err: runErr}
	}
	res.ExitCode = ExitSuccess
	return res, nil
}

func writeTrace(workDir, path string, recorder *trace.Recorder, graphHash string) error {
	if !filepath.IsAbs(path) {
		path = filepath.Join(workDir, path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create trace dir: %w", err)
	}
	var buf bytes.Buffer
	if err := recorder.Dump(&buf, graphHash); err != nil {
		return err
	}
	if err := writeFileAtomic(path, buf.Bytes(), 0o644); err != nil {
		return err
	}
	log.Printf("trace %s written to %s", trace.ComputeTraceHash(bytes.TrimSuffix(buf.Bytes(), []byte("\n"))), path)
	return nil
}

func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	base := filepath.Base(path)
	tmp, err := os.CreateTemp(dir, base+".tmp.*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}()

	if _, err := tmp.Write(data); err != nil {
		return err
	}
	if err := tmp.Chmod(perm); err != nil {
		return err
	}
	_ = tmp.Sync()
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
