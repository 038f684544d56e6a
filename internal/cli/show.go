package cli

import (
	"io"

	"github.com/grailbio/base/tsv"

	"peaksandprofiles/internal/trace"
)

// Status is the predicted outcome of one instance.
type Status struct {
	Task     string
	Instance string
	Stale    bool
	// Reason is the invalidation reason of a stale instance.
	Reason string
	// Cause is the file or upstream instance behind Reason, if any.
	Cause string
}

// Show plans the pipeline and reports, in topological order, which instances
// the next make would run. Nothing is executed or recorded.
func Show(o Options) ([]Status, error) {
	s, err := o.load()
	if err != nil {
		return nil, err
	}
	if err := s.build(); err != nil {
		return nil, err
	}
	strategy, err := s.strategy()
	if err != nil {
		return nil, err
	}

	stale := make(map[string]bool, s.graph.Len())
	var out []Status
	for _, key := range s.graph.TopologicalOrder() {
		n, _ := s.graph.Node(key)
		st := Status{Task: n.TaskName(), Instance: key}
		for _, p := range s.graph.InputParents(key) {
			if stale[p] {
				st.Stale, st.Reason, st.Cause = true, trace.ReasonUpstreamExecuted, p
				break
			}
		}
		if !st.Stale {
			v, err := strategy.Check(n.Instance)
			if err != nil {
				return nil, classify(err)
			}
			st.Stale, st.Reason, st.Cause = v.Stale, v.Reason, v.Path
		}
		stale[key] = st.Stale
		out = append(out, st)
	}
	return out, nil
}

// WriteStatus writes statuses as task, instance, state, reason and cause
// columns.
func WriteStatus(w io.Writer, statuses []Status) error {
	tw := tsv.NewWriter(w)
	for _, st := range statuses {
		tw.WriteString(st.Task)
		tw.WriteString(st.Instance)
		if st.Stale {
			tw.WriteString("stale")
		} else {
			tw.WriteString("up-to-date")
		}
		tw.WriteString(st.Reason)
		tw.WriteString(st.Cause)
		if err := tw.EndLine(); err != nil {
			return err
		}
	}
	return tw.Flush()
}
