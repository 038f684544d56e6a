package trace

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
)

// ExecutionTrace is the canonical record of the decisions taken while
// executing one planned graph.
//
// It captures the graph identity and an ordered list of events. It never
// carries timestamps, durations, pids or error strings, so two runs that take
// the same decisions produce byte-identical traces regardless of scheduling.
//
// Canonical representation:
//   - Events are sorted via Canonicalize() using a fully-specified ordering.
//   - JSON serialization uses a custom marshaler to fix field order and omit absent optional fields.
type ExecutionTrace struct {
	GraphHash string
	Events    []TraceEvent
}

// TraceEventKind is the stable discriminator for TraceEvent.
// The string values are part of the trace's canonical bytes; do not rename.
type TraceEventKind string

const (
	EventTaskInvalidated TraceEventKind = "TaskInvalidated"
	EventTaskUpToDate    TraceEventKind = "TaskUpToDate"
	EventTaskExecuted    TraceEventKind = "TaskExecuted"
	EventTaskFailed      TraceEventKind = "TaskFailed"
	EventTaskSkipped     TraceEventKind = "TaskSkipped"
)

// Reasons attached to TaskInvalidated and TaskSkipped events.
const (
	ReasonOutputMissing    = "OutputMissing"
	ReasonInputNewer       = "InputNewer"
	ReasonNoManifestEntry  = "NoManifestEntry"
	ReasonDigestChanged    = "DigestChanged"
	ReasonUpstreamExecuted = "UpstreamExecuted"
	ReasonUpstreamFailed   = "UpstreamFailed"
	ReasonCancelled        = "Cancelled"
)

// TraceEvent is a single logical decision about one task instance.
type TraceEvent struct {
	Kind TraceEventKind

	// TaskID is the instance key (its primary output path).
	TaskID string

	// Task is the name of the declaring task.
	Task string

	// Reason is a stable reason code, one of the Reason* constants.
	Reason string

	// CauseTaskID records a related upstream instance (the failed instance
	// causing a skip, or the executed parent forcing a rerun).
	CauseTaskID string

	// Outputs lists the declared outputs of an executed instance.
	Outputs []string
}

// Validate checks basic invariants and returns a descriptive error.
func (t *ExecutionTrace) Validate() error {
	if t == nil {
		return errors.New("trace is nil")
	}
	if t.GraphHash == "" {
		return errors.New("graphHash is required")
	}
	for i := range t.Events {
		e := t.Events[i]
		if e.Kind == "" {
			return fmt.Errorf("events[%d].kind is required", i)
		}
		if e.TaskID == "" {
			return fmt.Errorf("events[%d].taskId is required for kind %q", i, e.Kind)
		}
		for j, o := range e.Outputs {
			if o == "" {
				return fmt.Errorf("events[%d].outputs[%d] is empty", i, j)
			}
		}
	}
	return nil
}

// Canonicalize normalizes and sorts the trace into its canonical form.
//
// Canonicalization rules:
//   - Outputs are copied and sorted.
//   - Empty Outputs slices are normalized to nil.
//   - Events are stably sorted by (taskId, kindOrder, reason, causeTaskId, outputsLex).
func (t *ExecutionTrace) Canonicalize() {
	if t == nil {
		return
	}
	for i := range t.Events {
		if len(t.Events[i].Outputs) == 0 {
			t.Events[i].Outputs = nil
			continue
		}
		outs := make([]string, len(t.Events[i].Outputs))
		copy(outs, t.Events[i].Outputs)
		sort.Strings(outs)
		t.Events[i].Outputs = outs
	}

	sort.SliceStable(t.Events, func(i, j int) bool {
		a := t.Events[i]
		b := t.Events[j]

		if a.TaskID != b.TaskID {
			return a.TaskID < b.TaskID
		}
		if kindOrder(a.Kind) != kindOrder(b.Kind) {
			return kindOrder(a.Kind) < kindOrder(b.Kind)
		}
		if a.Reason != b.Reason {
			return a.Reason < b.Reason
		}
		if a.CauseTaskID != b.CauseTaskID {
			return a.CauseTaskID < b.CauseTaskID
		}
		return compareStringSlices(a.Outputs, b.Outputs)
	})
}

func kindOrder(k TraceEventKind) int {
	switch k {
	case EventTaskInvalidated:
		return 10
	case EventTaskUpToDate:
		return 20
	case EventTaskExecuted:
		return 30
	case EventTaskFailed:
		return 40
	case EventTaskSkipped:
		return 50
	default:
		return 1000
	}
}

func compareStringSlices(a, b []string) bool {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if a[i] == b[i] {
			continue
		}
		return a[i] < b[i]
	}
	return len(a) < len(b)
}

// CanonicalJSON returns the canonical JSON encoding of the trace.
// It canonicalizes a copy of the trace to avoid mutating the caller's slices.
func (t ExecutionTrace) CanonicalJSON() ([]byte, error) {
	cp := ExecutionTrace{GraphHash: t.GraphHash}
	cp.Events = make([]TraceEvent, len(t.Events))
	copy(cp.Events, t.Events)
	cp.Canonicalize()
	if err := cp.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(&cp)
}

// Hash returns the trace hash of the canonical JSON bytes.
func (t ExecutionTrace) Hash() (string, error) {
	b, err := t.CanonicalJSON()
	if err != nil {
		return "", err
	}
	return ComputeTraceHash(b), nil
}

// MarshalJSON fixes the field order.
func (t ExecutionTrace) MarshalJSON() ([]byte, error) {
	if t.GraphHash == "" {
		return nil, errors.New("graphHash is required")
	}
	var buf bytes.Buffer
	buf.WriteString(`{"graphHash":`)
	gh, _ := json.Marshal(t.GraphHash)
	buf.Write(gh)
	buf.WriteString(`,"events":[`)
	for i := range t.Events {
		if i > 0 {
			buf.WriteByte(',')
		}
		eb, err := json.Marshal(t.Events[i])
		if err != nil {
			return nil, err
		}
		buf.Write(eb)
	}
	buf.WriteString("]}")
	return buf.Bytes(), nil
}

// MarshalJSON fixes the field order and omits empty optional fields.
func (e TraceEvent) MarshalJSON() ([]byte, error) {
	if e.Kind == "" {
		return nil, errors.New("kind is required")
	}
	var outputs []string
	if len(e.Outputs) > 0 {
		outputs = make([]string, len(e.Outputs))
		copy(outputs, e.Outputs)
		sort.Strings(outputs)
	}

	var buf bytes.Buffer
	buf.WriteString(`{"kind":`)
	kb, _ := json.Marshal(string(e.Kind))
	buf.Write(kb)

	writeOpt := func(name, v string) {
		if v == "" {
			return
		}
		buf.WriteString(`,"` + name + `":`)
		b, _ := json.Marshal(v)
		buf.Write(b)
	}
	writeOpt("taskId", e.TaskID)
	writeOpt("task", e.Task)
	writeOpt("reason", e.Reason)
	writeOpt("causeTaskId", e.CauseTaskID)

	if len(outputs) > 0 {
		buf.WriteString(`,"outputs":[`)
		for i := range outputs {
			if i > 0 {
				buf.WriteByte(',')
			}
			ob, _ := json.Marshal(outputs[i])
			buf.Write(ob)
		}
		buf.WriteByte(']')
	}

	buf.WriteByte('}')
	return buf.Bytes(), nil
}
