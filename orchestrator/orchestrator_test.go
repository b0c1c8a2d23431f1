package orchestrator

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func shellCommand(script string) *exec.Cmd {
	return exec.Command("sh", "-c", script)
}

// testJob returns a JobSpec whose workers drop a marker file per shard and
// whose ingest step counts the markers it can see, so ordering is observable.
func testJob(t *testing.T, shards int) (JobSpec, string) {
	t.Helper()
	dir := t.TempDir()
	spec := JobSpec{
		Variant:    "data",
		ShardCount: shards,
		WorkDir:    dir,
		LogDir:     filepath.Join(dir, "logs"),
		WorkerCommand: func(s Shard) *exec.Cmd {
			return shellCommand(fmt.Sprintf("echo shard %d of %d run %s; touch done_%d", s.Index, s.Count, s.RunID, s.Index))
		},
		IngestCommand: func(runID string) *exec.Cmd {
			return shellCommand(fmt.Sprintf("ls done_* | wc -l > ingest_saw_%s", runID))
		},
	}
	return spec, dir
}

func TestRunBatchLaunchesEveryShardExactlyOnce(t *testing.T) {
	var seen []Shard
	spec, dir := testJob(t, 4)
	inner := spec.WorkerCommand
	spec.WorkerCommand = func(s Shard) *exec.Cmd {
		seen = append(seen, s)
		return inner(s)
	}

	result, err := RunBatch(spec)
	require.NoError(t, err)
	require.Len(t, result.Shards, 4)
	require.Len(t, seen, 4)

	// Indices form the exact set {0..N-1} in ascending launch order.
	for i, s := range seen {
		assert.Equal(t, i, s.Index)
		assert.Equal(t, 4, s.Count)
		assert.Equal(t, result.RunID, s.RunID)
	}

	// Every worker actually ran.
	for i := 0; i < 4; i++ {
		assert.FileExists(t, filepath.Join(dir, fmt.Sprintf("done_%d", i)))
		assert.Equal(t, 0, result.Shards[i].ExitCode)
	}
}

func TestRunBatchIngestRunsAfterJoinBarrier(t *testing.T) {
	spec, dir := testJob(t, 4)
	// Stagger the shards so a premature ingest would observe fewer markers.
	spec.WorkerCommand = func(s Shard) *exec.Cmd {
		return shellCommand(fmt.Sprintf("sleep 0.%d; touch done_%d", s.Index+1, s.Index))
	}

	result, err := RunBatch(spec)
	require.NoError(t, err)
	assert.Equal(t, 0, result.IngestExit)

	data, err := os.ReadFile(filepath.Join(dir, "ingest_saw_"+result.RunID))
	require.NoError(t, err)
	assert.Equal(t, "4", string(regexp.MustCompile(`\d+`).Find(data)),
		"ingest must observe every shard output")
}

func TestRunBatchShardFailureDoesNotBlockIngest(t *testing.T) {
	spec, dir := testJob(t, 8)
	spec.WorkerCommand = func(s Shard) *exec.Cmd {
		if s.Index == 3 {
			return shellCommand(fmt.Sprintf("touch done_%d; exit 1", s.Index))
		}
		return shellCommand(fmt.Sprintf("touch done_%d", s.Index))
	}

	result, err := RunBatch(spec)
	require.NoError(t, err)
	require.Len(t, result.Shards, 8)

	assert.Equal(t, 1, result.Shards[3].ExitCode)
	for i, s := range result.Shards {
		if i != 3 {
			assert.Equal(t, 0, s.ExitCode, "shard %d", i)
		}
	}

	// Ingest still launched exactly once, after all 8 exited.
	matches, err := filepath.Glob(filepath.Join(dir, "ingest_saw_*"))
	require.NoError(t, err)
	require.Len(t, matches, 1)
	data, err := os.ReadFile(matches[0])
	require.NoError(t, err)
	assert.Equal(t, "8", string(regexp.MustCompile(`\d+`).Find(data)))
	assert.True(t, result.Failed())
}

func TestRunBatchPreFlightFailureLaunchesNothing(t *testing.T) {
	spec, dir := testJob(t, 4)
	spec.WorkDir = filepath.Join(dir, "does-not-exist")

	launched := 0
	inner := spec.WorkerCommand
	spec.WorkerCommand = func(s Shard) *exec.Cmd {
		launched++
		return inner(s)
	}

	result, err := RunBatch(spec)
	assert.Error(t, err)
	assert.Nil(t, result)
	assert.Zero(t, launched)
}

func TestRunBatchRejectsNonPositiveShardCount(t *testing.T) {
	spec, _ := testJob(t, 0)
	_, err := RunBatch(spec)
	assert.Error(t, err)

	spec.ShardCount = -2
	_, err = RunBatch(spec)
	assert.Error(t, err)
}

func TestRunBatchDerivesClientIDs(t *testing.T) {
	var seen []Shard
	spec, _ := testJob(t, 12)
	spec.ClientIDBase = 1000
	inner := spec.WorkerCommand
	spec.WorkerCommand = func(s Shard) *exec.Cmd {
		seen = append(seen, s)
		return inner(s)
	}

	result, err := RunBatch(spec)
	require.NoError(t, err)
	require.Len(t, seen, 12)
	assert.Equal(t, 1005, seen[5].ClientID)
	assert.Equal(t, 1005, result.Shards[5].ClientID)
}

func TestRunBatchWritesShardAndIngestLogs(t *testing.T) {
	spec, dir := testJob(t, 2)
	result, err := RunBatch(spec)
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		path := filepath.Join(dir, "logs", fmt.Sprintf("data_%d.log", i))
		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Contains(t, string(data), fmt.Sprintf("shard %d of 2 run %s", i, result.RunID))
		assert.Equal(t, path, result.Shards[i].LogPath)
	}
	assert.FileExists(t, filepath.Join(dir, "logs", "data_ingest.log"))
}

func TestRunBatchShardLogsAppendAcrossRuns(t *testing.T) {
	spec, dir := testJob(t, 1)
	// Distinct run ids need a one second gap with the timestamp layout; fake
	// the clock instead of sleeping.
	base := time.Date(2026, 2, 3, 10, 0, 0, 0, time.UTC)
	spec.Clock = func() time.Time { return base }
	_, err := RunBatch(spec)
	require.NoError(t, err)

	spec.Clock = func() time.Time { return base.Add(time.Second) }
	_, err = RunBatch(spec)
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dir, "logs", "data_0.log"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "2026-02-03_10-00-00")
	assert.Contains(t, string(data), "2026-02-03_10-00-01")
}

func TestRunBatchRecordsDuration(t *testing.T) {
	spec, _ := testJob(t, 1)
	calls := 0
	base := time.Date(2026, 2, 3, 10, 0, 0, 0, time.UTC)
	spec.Clock = func() time.Time {
		calls++
		if calls == 1 {
			return base
		}
		return base.Add(90 * time.Second)
	}

	result, err := RunBatch(spec)
	require.NoError(t, err)
	assert.Equal(t, "2026-02-03_10-00-00", result.RunID)
	assert.Equal(t, 90*time.Second, result.Duration)
}

func TestNewRunIDFormatAndOrdering(t *testing.T) {
	earlier := NewRunID(time.Date(2026, 1, 5, 9, 30, 0, 0, time.UTC))
	later := NewRunID(time.Date(2026, 1, 5, 16, 0, 1, 0, time.UTC))

	format := regexp.MustCompile(`^\d{4}-\d{2}-\d{2}_\d{2}-\d{2}-\d{2}$`)
	assert.Regexp(t, format, earlier)
	assert.Regexp(t, format, later)

	ids := []string{later, earlier}
	sort.Strings(ids)
	assert.Equal(t, []string{earlier, later}, ids, "run ids must sort chronologically")
}
