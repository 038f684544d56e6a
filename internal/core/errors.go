package core

import (
	"fmt"
	"strings"
)

// ExternalToolError reports a command that exited with a non-zero status.
type ExternalToolError struct {
	Task     string
	Instance string
	ExitCode int
	Stderr   []byte
}

func (e *ExternalToolError) Error() string {
	if e == nil {
		return ""
	}
	msg := fmt.Sprintf("%s: %s: exit status %d", e.Task, e.Instance, e.ExitCode)
	if tail := lastLine(e.Stderr); tail != "" {
		msg += ": " + tail
	}
	return msg
}

// MissingOutputError reports a successful command that did not produce one of
// its declared outputs.
type MissingOutputError struct {
	Task     string
	Instance string
	Path     string
}

func (e *MissingOutputError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s: declared output %s was not created", e.Task, e.Instance, e.Path)
}

// NativeError wraps the failure of an in-process task.
type NativeError struct {
	Task     string
	Instance string
	Err      error
}

func (e *NativeError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s: %v", e.Task, e.Instance, e.Err)
}

func (e *NativeError) Unwrap() error { return e.Err }

func lastLine(b []byte) string {
	s := strings.TrimRight(string(b), "\n\r\t ")
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	const max = 512
	if len(s) > max {
		s = s[len(s)-max:]
	}
	return s
}
