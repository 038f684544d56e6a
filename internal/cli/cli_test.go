package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/grailbio/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"peaksandprofiles/internal/config"
	"peaksandprofiles/internal/recovery/state"
	"peaksandprofiles/internal/trace"
)

const fakeSamtools = `#!/bin/sh
cmd=$1; shift
case $cmd in
index) touch "$1.bai" ;;
view)
	out=""
	while [ $# -gt 1 ]; do
		case $1 in
		-o) out=$2; shift 2 ;;
		-q|-F) shift 2 ;;
		*) shift ;;
		esac
	done
	if [ -n "$out" ]; then cp "$1" "$out"; else cat "$1"; fi ;;
esac
`

const fakeMarkDuplicates = `#!/bin/sh
for a in "$@"; do
	case $a in
	I=*) in=${a#I=} ;;
	O=*) out=${a#O=} ;;
	M=*) metrics=${a#M=} ;;
	esac
done
cp "$in" "$out" && echo duplicates > "$metrics"
`

const fakeMacs2 = `#!/bin/sh
while [ $# -gt 0 ]; do
	case $1 in
	-t) t=$2; shift 2 ;;
	-c) c=$2; shift 2 ;;
	--outdir) outdir=$2; shift 2 ;;
	*) shift ;;
	esac
done
test -f "$t" && test -f "$c" || exit 2
mkdir -p "$outdir"
touch "$outdir/NA_treat_pileup.bdg" "$outdir/NA_control_lambda.bdg"
echo "peaks of $t over $c"
`

const (
	chip  = "Sample1-ChIP-Hyp-1.bam"
	input = "Sample1-Input-Hyp-1.bam"
	peaks = "broadpeakcalling.dir/Sample1-ChIP-Hyp-1.bam.macs2"
)

// newPipelineDir creates a pipeline directory holding one ChIP and one Input
// sample and a configuration pointing at fake tools. macs2 overrides the
// fake peak caller when non-empty.
func newPipelineDir(t *testing.T, macs2 string) (string, func()) {
	t.Helper()
	dir, cleanup := testutil.TempDir(t, "", "cli")
	bin := filepath.Join(dir, "bin")
	require.NoError(t, os.MkdirAll(bin, 0o755))
	if macs2 == "" {
		macs2 = fakeMacs2
	}
	for name, body := range map[string]string{
		"samtools":       fakeSamtools,
		"MarkDuplicates": fakeMarkDuplicates,
		"macs2":          macs2,
	} {
		require.NoError(t, os.WriteFile(filepath.Join(bin, name), []byte(body), 0o755))
	}
	conf := strings.Join([]string{
		"job:",
		"  annotations: geneset_all.gtf.gz",
		"  main_sample_prefix: Sample1",
		"tools:",
		"  samtools: " + filepath.Join(bin, "samtools"),
		"  markduplicates: " + filepath.Join(bin, "MarkDuplicates"),
		"  macs2: " + filepath.Join(bin, "macs2"),
		"",
	}, "\n")
	require.NoError(t, os.WriteFile(filepath.Join(dir, config.FileName), []byte(conf), 0o644))
	for _, f := range []string{chip, input} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, f), []byte(f+"\n"), 0o644))
	}
	return dir, cleanup
}

func latestRun(t *testing.T, dir string) state.Run {
	t.Helper()
	st, err := state.NewStore(dir)
	require.NoError(t, err)
	run, ok, err := st.LatestRun()
	require.NoError(t, err)
	require.True(t, ok)
	return run
}

func TestMake_RunsThenUpToDate(t *testing.T) {
	dir, cleanup := newPipelineDir(t, "")
	defer cleanup()
	o := Options{WorkDir: dir, Targets: []string{"broadpeakcall"}}

	res, err := Make(context.Background(), o)
	require.NoError(t, err)
	assert.Equal(t, ExitSuccess, res.ExitCode)
	got, err := os.ReadFile(filepath.Join(dir, peaks))
	require.NoError(t, err)
	assert.Equal(t, "peaks of deduplicated.dir/Sample1-ChIP-Hyp-1.filtered.deduplicated.bam"+
		" over deduplicated.dir/Sample1-Input-Hyp-1.filtered.deduplicated.bam\n", string(got))

	run := latestRun(t, dir)
	assert.Equal(t, res.RunID, run.RunID)
	assert.Equal(t, state.RunStatusSucceeded, run.Status)
	assert.Equal(t, []string{"broadpeakcall"}, run.Targets)
	assert.Equal(t, 5, run.Executed)
	assert.NotEmpty(t, run.GraphHash)
	require.NotNil(t, run.EndTime)

	res, err = Make(context.Background(), o)
	require.NoError(t, err)
	assert.Empty(t, res.Graph.ExecutionOrder)
	run = latestRun(t, dir)
	assert.Equal(t, res.RunID, run.RunID)
	assert.Equal(t, 0, run.Executed)
	assert.Equal(t, 5, run.UpToDate)
}

func TestMake_FailureRecorded(t *testing.T) {
	dir, cleanup := newPipelineDir(t, "#!/bin/sh\necho broken >&2\nexit 3\n")
	defer cleanup()

	res, err := Make(context.Background(), Options{WorkDir: dir, Targets: []string{"broadpeakcall"}})
	require.Error(t, err)
	assert.Equal(t, ExitGraphFailure, res.ExitCode)
	assert.Equal(t, ExitGraphFailure, ExitCode(err))

	// Upstream work is kept, the failed instance leaves nothing behind.
	_, err = os.Stat(filepath.Join(dir, "deduplicated.dir/Sample1-ChIP-Hyp-1.filtered.deduplicated.bam.bai"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, peaks))
	assert.True(t, os.IsNotExist(err))

	run := latestRun(t, dir)
	assert.Equal(t, state.RunStatusFailed, run.Status)
	assert.Equal(t, 1, run.Failed)
	assert.Equal(t, 4, run.Executed)

	st, err := state.NewStore(dir)
	require.NoError(t, err)
	failures, err := st.LoadFailures(run.RunID)
	require.NoError(t, err)
	require.Len(t, failures.Failures, 1)
	f := failures.Failures[0]
	assert.Equal(t, state.FailureClassExecution, f.FailureClass)
	assert.Equal(t, "ExternalToolError", f.ErrorCode)
	require.NotNil(t, f.Instance)
	assert.Equal(t, peaks, *f.Instance)
	require.NotNil(t, f.Task)
	assert.Equal(t, "broadpeakcall", *f.Task)
	require.NotNil(t, f.ExitCode)
	assert.Equal(t, 3, *f.ExitCode)
}

func TestMake_ManifestCompletion(t *testing.T) {
	dir, cleanup := newPipelineDir(t, "")
	defer cleanup()
	o := Options{WorkDir: dir, Targets: []string{"broadpeakcall"}, Completion: config.CompletionManifest, Jobs: 2}

	res, err := Make(context.Background(), o)
	require.NoError(t, err)
	assert.Len(t, res.Graph.ExecutionOrder, 5)
	st, err := state.NewStore(dir)
	require.NoError(t, err)
	_, err = os.Stat(st.ManifestPath())
	require.NoError(t, err)

	res, err = Make(context.Background(), o)
	require.NoError(t, err)
	assert.Empty(t, res.Graph.ExecutionOrder)

	// A changed input reruns its instance and everything downstream.
	require.NoError(t, os.WriteFile(filepath.Join(dir, chip), []byte("more reads\n"), 0o644))
	res, err = Make(context.Background(), o)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{
		"filtered_bams.dir/Sample1-ChIP-Hyp-1.filtered.bam",
		"deduplicated.dir/Sample1-ChIP-Hyp-1.filtered.deduplicated.bam",
		peaks,
	}, res.Graph.ExecutionOrder)
	assert.Equal(t, 2, latestRun(t, dir).Jobs)
}

func TestMake_Trace(t *testing.T) {
	dir, cleanup := newPipelineDir(t, "")
	defer cleanup()

	_, err := Make(context.Background(), Options{WorkDir: dir, Targets: []string{"broadpeakcall"}, TracePath: "trace/run.json"})
	require.NoError(t, err)
	b, err := os.ReadFile(filepath.Join(dir, "trace/run.json"))
	require.NoError(t, err)

	var tr struct {
		GraphHash string `json:"graphHash"`
		Events    []struct {
			Kind   string `json:"kind"`
			TaskID string `json:"taskId"`
		} `json:"events"`
	}
	require.NoError(t, json.Unmarshal(b, &tr))
	assert.Equal(t, latestRun(t, dir).GraphHash, tr.GraphHash)
	executed := 0
	for _, ev := range tr.Events {
		if ev.Kind == string(trace.EventTaskExecuted) {
			executed++
		}
	}
	assert.Equal(t, 5, executed)
}

func TestMake_PlanningFailureRecorded(t *testing.T) {
	dir, cleanup := newPipelineDir(t, "")
	defer cleanup()
	bad := "S-ChIP-c-Input-x-1.bam"
	require.NoError(t, os.WriteFile(filepath.Join(dir, bad), nil, 0o644))

	res, err := Make(context.Background(), Options{WorkDir: dir})
	require.Error(t, err)
	assert.Equal(t, ExitConfigError, res.ExitCode)

	run := latestRun(t, dir)
	assert.Equal(t, state.RunStatusFailed, run.Status)
	assert.Empty(t, run.GraphHash)
	st, err := state.NewStore(dir)
	require.NoError(t, err)
	failures, err := st.LoadFailures(run.RunID)
	require.NoError(t, err)
	require.Len(t, failures.Failures, 1)
	assert.Equal(t, state.FailureClassConfiguration, failures.Failures[0].FailureClass)
	assert.Equal(t, "PlanningFailed", failures.Failures[0].ErrorCode)
}

func TestMake_Cancelled(t *testing.T) {
	dir, cleanup := newPipelineDir(t, "")
	defer cleanup()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := Make(ctx, Options{WorkDir: dir, Targets: []string{"broadpeakcall"}})
	require.Error(t, err)
	assert.Equal(t, ExitGraphFailure, res.ExitCode)
	assert.True(t, res.Graph.Cancelled)
	assert.Equal(t, state.RunStatusCancelled, latestRun(t, dir).Status)
}

func TestShow(t *testing.T) {
	dir, cleanup := newPipelineDir(t, "")
	defer cleanup()
	o := Options{WorkDir: dir, Targets: []string{"broadpeakcall"}}

	statuses, err := Show(o)
	require.NoError(t, err)
	require.Len(t, statuses, 5)
	for _, st := range statuses {
		assert.True(t, st.Stale, st.Instance)
	}

	_, err = Make(context.Background(), o)
	require.NoError(t, err)
	statuses, err = Show(o)
	require.NoError(t, err)
	for _, st := range statuses {
		assert.False(t, st.Stale, st.Instance)
	}

	future := time.Now().Add(time.Hour)
	require.NoError(t, os.Chtimes(filepath.Join(dir, input), future, future))
	statuses, err = Show(o)
	require.NoError(t, err)
	byKey := make(map[string]Status)
	for _, st := range statuses {
		byKey[st.Instance] = st
	}
	filtered := "filtered_bams.dir/Sample1-Input-Hyp-1.filtered.bam"
	assert.Equal(t, Status{Task: "filterreads", Instance: filtered, Stale: true, Reason: trace.ReasonInputNewer, Cause: input}, byKey[filtered])
	assert.Equal(t, trace.ReasonUpstreamExecuted, byKey["deduplicated.dir/Sample1-Input-Hyp-1.filtered.deduplicated.bam"].Reason)
	assert.True(t, byKey[peaks].Stale)
	assert.False(t, byKey["filtered_bams.dir/Sample1-ChIP-Hyp-1.filtered.bam"].Stale)

	var out bytes.Buffer
	require.NoError(t, WriteStatus(&out, statuses[:1]))
	assert.Equal(t, 5, len(strings.Split(strings.TrimSuffix(out.String(), "\n"), "\t")))
}

func TestRun_ExitCodes(t *testing.T) {
	dir, cleanup := newPipelineDir(t, "")
	defer cleanup()

	for _, tc := range []struct {
		name string
		args []string
		want int
	}{
		{"unknown flag", []string{"make", "--bogus"}, ExitInvalidInvocation},
		{"unknown command", []string{"frobnicate"}, ExitInvalidInvocation},
		{"unknown target", []string{"--workdir", dir, "show", "callpeaks"}, ExitInvalidInvocation},
		{"bad completion", []string{"--workdir", dir, "make", "--completion", "checksum"}, ExitInvalidInvocation},
		{"missing workdir", []string{"--workdir", filepath.Join(dir, "nope"), "show"}, ExitInvalidInvocation},
		{"missing config", []string{"--workdir", dir, "--config", filepath.Join(dir, "nope.yml"), "show"}, ExitConfigError},
		{"show", []string{"--workdir", dir, "show", "filterreads"}, ExitSuccess},
	} {
		t.Run(tc.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			got := Run(context.Background(), tc.args, &stdout, &stderr)
			assert.Equal(t, tc.want, got, "stderr: %s", stderr.String())
		})
	}
}

func TestRun_InvalidConfig(t *testing.T) {
	dir, cleanup := testutil.TempDir(t, "", "cli")
	defer cleanup()
	require.NoError(t, os.WriteFile(filepath.Join(dir, config.FileName), []byte("job:\n  annotations: genes.gtf\n"), 0o644))

	var stdout, stderr bytes.Buffer
	assert.Equal(t, ExitConfigError, Run(context.Background(), []string{"--workdir", dir, "make"}, &stdout, &stderr))
	assert.Contains(t, stderr.String(), "job.annotations")
}

func TestRun_Config(t *testing.T) {
	dir, cleanup := testutil.TempDir(t, "", "cli")
	defer cleanup()
	args := []string{"--workdir", dir, "config"}

	var stdout, stderr bytes.Buffer
	require.Equal(t, ExitSuccess, Run(context.Background(), args, &stdout, &stderr), stderr.String())
	b, err := os.ReadFile(filepath.Join(dir, config.FileName))
	require.NoError(t, err)
	assert.Contains(t, string(b), "gtf2gtf_merge_method: merge-exons")

	assert.Equal(t, ExitConfigError, Run(context.Background(), args, &stdout, &stderr))
	assert.Equal(t, ExitSuccess, Run(context.Background(), append(args, "--force"), &stdout, &stderr))
}

func TestRun_MakeListsFailedInstances(t *testing.T) {
	dir, cleanup := newPipelineDir(t, "#!/bin/sh\nexit 1\n")
	defer cleanup()

	var stdout, stderr bytes.Buffer
	got := Run(context.Background(), []string{"--workdir", dir, "make", "broadpeakcall", "-j", "2"}, &stdout, &stderr)
	assert.Equal(t, ExitGraphFailure, got)
	assert.Contains(t, stderr.String(), "failed: "+peaks+": ")
}
