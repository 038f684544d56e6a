package state

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Store provides persistent storage for run records under:
//
//	<baseDir>/.peaksandprofiles/runs/<run-id>/
//
// and for the completion manifest at <baseDir>/.peaksandprofiles/manifest.json.
//
// All state writes are atomic and durable (file sync + atomic rename + dir sync).
type Store struct {
	baseDir string
}

func NewStore(baseDir string) (*Store, error) {
	if strings.TrimSpace(baseDir) == "" {
		return nil, errors.New("baseDir is required")
	}
	return &Store{baseDir: baseDir}, nil
}

// StateDirName is the directory holding all engine state.
const StateDirName = ".peaksandprofiles"

func (s *Store) stateDir() string {
	return filepath.Join(s.baseDir, StateDirName)
}

func (s *Store) runsRootDir() string {
	return filepath.Join(s.stateDir(), "runs")
}

// ListRunIDs returns all run IDs currently present on disk.
//
// Determinism: the returned slice is sorted lexicographically, which for
// time-ordered run IDs is chronological.
func (s *Store) ListRunIDs() ([]string, error) {
	if s == nil {
		return nil, errors.New("nil Store")
	}
	root := s.runsRootDir()
	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		name := strings.TrimSpace(e.Name())
		if name == "" {
			continue
		}
		ids = append(ids, name)
	}
	sort.Strings(ids)
	return ids, nil
}

// LatestRun loads the most recent run record. ok is false when there is none.
func (s *Store) LatestRun() (run Run, ok bool, err error) {
	ids, err := s.ListRunIDs()
	if err != nil || len(ids) == 0 {
		return Run{}, false, err
	}
	run, err = s.LoadRun(ids[len(ids)-1])
	if err != nil {
		return Run{}, false, err
	}
	return run, true, nil
}

func (s *Store) runDir(runID string) string {
	return filepath.Join(s.runsRootDir(), runID)
}

func (s *Store) runPath(runID string) string {
	return filepath.Join(s.runDir(runID), "run.json")
}

func (s *Store) failuresPath(runID string) string {
	return filepath.Join(s.runDir(runID), "failures.json")
}

// ManifestPath returns the location of the completion manifest.
func (s *Store) ManifestPath() string {
	return filepath.Join(s.stateDir(), "manifest.json")
}

func (s *Store) SaveRun(run Run) error {
	if err := run.Validate(); err != nil {
		return fmt.Errorf("invalid run: %w", err)
	}
	if err := ensureDirDurable(s.runDir(run.RunID), 0o755); err != nil {
		return fmt.Errorf("ensure run dir: %w", err)
	}
	data, err := jsonMarshalStable(run)
	if err != nil {
		return fmt.Errorf("marshal run: %w", err)
	}
	if err := writeFileAtomicDurable(s.runPath(run.RunID), data, 0o644); err != nil {
		return fmt.Errorf("write run: %w", err)
	}
	return nil
}

func (s *Store) LoadRun(runID string) (Run, error) {
	var run Run
	if strings.TrimSpace(runID) == "" {
		return Run{}, errors.New("runID is required")
	}
	if err := readJSONStrict(s.runPath(runID), &run); err != nil {
		return Run{}, err
	}
	if err := run.Validate(); err != nil {
		return Run{}, fmt.Errorf("invalid run on disk: %w", err)
	}
	return run, nil
}

func (s *Store) SaveFailures(failures Failures) error {
	if strings.TrimSpace(failures.RunID) == "" {
		return errors.New("runID is required")
	}
	for i, f := range failures.Failures {
		if err := f.Validate(); err != nil {
			return fmt.Errorf("invalid failure %d: %w", i, err)
		}
	}
	// Serialize an empty list as [] rather than null.
	if failures.Failures == nil {
		failures.Failures = []Failure{}
	}
	if err := ensureDirDurable(s.runDir(failures.RunID), 0o755); err != nil {
		return fmt.Errorf("ensure run dir: %w", err)
	}
	data, err := jsonMarshalStable(failures)
	if err != nil {
		return fmt.Errorf("marshal failures: %w", err)
	}
	if err := writeFileAtomicDurable(s.failuresPath(failures.RunID), data, 0o644); err != nil {
		return fmt.Errorf("write failures: %w", err)
	}
	return nil
}

func (s *Store) LoadFailures(runID string) (Failures, error) {
	var failures Failures
	if strings.TrimSpace(runID) == "" {
		return Failures{}, errors.New("runID is required")
	}
	if err := readJSONStrict(s.failuresPath(runID), &failures); err != nil {
		return Failures{}, err
	}
	for i, f := range failures.Failures {
		if err := f.Validate(); err != nil {
			return Failures{}, fmt.Errorf("invalid failure %d on disk: %w", i, err)
		}
	}
	return failures, nil
}

func jsonMarshalStable(v any) ([]byte, error) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(b, '\n'), nil
}

func readJSONStrict(path string, dst any) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	dec := json.NewDecoder(f)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	// Ensure no trailing junk.
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return errors.New("invalid JSON: trailing content")
	}
	return nil
}

func ensureDirDurable(dir string, perm os.FileMode) error {
	if err := os.MkdirAll(dir, perm); err != nil {
		return err
	}
	// Best-effort durability: sync the directory and its parent.
	if err := fsyncDir(dir); err != nil {
		return err
	}
	parent := filepath.Dir(dir)
	if parent != dir {
		if err := fsyncDir(parent); err != nil {
			return err
		}
	}
	return nil
}

func writeFileAtomicDurable(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	base := filepath.Base(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, base+".tmp.*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		_ = tmp.Close()
		if !committed {
			_ = os.Remove(tmpName)
		}
	}()

	// Write all bytes.
	if _, err := io.Copy(tmp, bytes.NewReader(data)); err != nil {
		return err
	}
	if err := tmp.Chmod(perm); err != nil {
		return err
	}
	if err := tmp.Sync(); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		return err
	}
	committed = true
	return fsyncDir(dir)
}

func fsyncDir(dir string) error {
	f, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Sync()
}
