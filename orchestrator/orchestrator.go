package orchestrator

import (
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"time"
)

// RunIDLayout is the time layout for run identifiers. Identifiers produced
// with it sort lexically in chronological order, so every artifact of a run
// (shard logs, staging snapshots, database rows) can be correlated and listed
// in order.
const RunIDLayout = "2006-01-02_15-04-05"

// NewRunID generates the run identifier shared by every shard worker and the
// ingestion step of one orchestrator invocation.
func NewRunID(now time.Time) string {
	return now.Format(RunIDLayout)
}

// Shard identifies one partition of a batch run.
type Shard struct {
	Index    int // in [0, Count)
	Count    int // total partitions
	RunID    string
	ClientID int // 0 when no session identity is needed
}

// JobSpec describes one sharded batch run. Directories and the variant label
// are explicit configuration rather than ambient process state.
type JobSpec struct {
	Variant      string // log and staging prefix: "data", "shortdb", "longdb"
	ShardCount   int
	ClientIDBase int // when > 0, shard i runs with client id base+i
	WorkDir      string
	LogDir       string

	// WorkerCommand builds the process for one shard. The orchestrator sets
	// the working directory and log redirection; the factory only decides the
	// binary and arguments.
	WorkerCommand func(s Shard) *exec.Cmd
	// IngestCommand builds the single downstream ingestion process.
	IngestCommand func(runID string) *exec.Cmd

	// RunID overrides the generated identifier when set, for callers that
	// must know the id before the run starts. Leave empty to generate one.
	RunID string

	// OnShardExit, when set, is called from the join barrier as each shard
	// result is collected.
	OnShardExit func(ShardResult)

	// Clock is overridable for tests; defaults to time.Now.
	Clock func() time.Time
}

// ShardResult records how one shard worker exited.
type ShardResult struct {
	Index    int
	ClientID int
	PID      int
	ExitCode int
	LogPath  string
	Err      error // launch error, nil once the process started
}

// RunResult summarizes one completed batch run.
type RunResult struct {
	RunID      string
	Variant    string
	ShardCount int
	Started    time.Time
	Duration   time.Duration
	Shards     []ShardResult
	IngestExit int
	IngestLog  string
	IngestErr  error
}

// Failed reports whether any shard or the ingest step exited non-zero. The
// orchestrator itself never acts on this; it exists for callers that record
// or display run outcomes.
func (r *RunResult) Failed() bool {
	for _, s := range r.Shards {
		if s.ExitCode != 0 || s.Err != nil {
			return true
		}
	}
	return r.IngestExit != 0 || r.IngestErr != nil
}

// RunBatch partitions a batch job into spec.ShardCount shards, launches one
// worker process per shard with a shared run id, blocks until every shard has
// exited, then runs the single ingestion step.
//
// Failure policy is fire-and-forget-then-join: only pre-flight errors (bad
// working directory, unusable log directory, invalid shard count) are returned
// and abort the run before any shard launches. Once fan-out begins, shard and
// ingest failures are recorded in the result and their log files but never
// interrupt the run. There is no per-shard timeout; a hung worker blocks the
// join barrier indefinitely.
func RunBatch(spec JobSpec) (*RunResult, error) {
	if spec.ShardCount <= 0 {
		return nil, fmt.Errorf("shard count must be positive, got %d", spec.ShardCount)
	}
	if spec.WorkerCommand == nil || spec.IngestCommand == nil {
		return nil, fmt.Errorf("worker and ingest command factories are required")
	}
	clock := spec.Clock
	if clock == nil {
		clock = time.Now
	}

	// Pre-flight: the working directory must exist and the log directory must
	// be writable before anything launches.
	if spec.WorkDir != "" {
		info, err := os.Stat(spec.WorkDir)
		if err != nil {
			return nil, fmt.Errorf("working directory unavailable: %w", err)
		}
		if !info.IsDir() {
			return nil, fmt.Errorf("working directory %s is not a directory", spec.WorkDir)
		}
	}
	if err := os.MkdirAll(spec.LogDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	started := clock()
	runID := spec.RunID
	if runID == "" {
		runID = NewRunID(started)
	}
	result := &RunResult{
		RunID:      runID,
		Variant:    spec.Variant,
		ShardCount: spec.ShardCount,
		Started:    started,
	}

	log.Printf("[%s] run %s starting with %d shards", spec.Variant, runID, spec.ShardCount)

	// Fan-out: launch shards in ascending index order. Every shard is started
	// before the first join check, so one failing shard never prevents the
	// rest from running.
	type launched struct {
		shard Shard
		cmd   *exec.Cmd
		file  *os.File
		log   string
		err   error
	}
	procs := make([]launched, 0, spec.ShardCount)
	for i := 0; i < spec.ShardCount; i++ {
		shard := Shard{Index: i, Count: spec.ShardCount, RunID: runID}
		if spec.ClientIDBase > 0 {
			shard.ClientID = spec.ClientIDBase + i
		}

		logPath := filepath.Join(spec.LogDir, fmt.Sprintf("%s_%d.log", spec.Variant, i))
		cmd := spec.WorkerCommand(shard)
		if spec.WorkDir != "" {
			cmd.Dir = spec.WorkDir
		}

		file, err := openShardLog(logPath)
		if err == nil {
			cmd.Stdout = file
			cmd.Stderr = file
			err = cmd.Start()
		}
		if err != nil {
			log.Printf("[%s] shard %d failed to launch: %v", spec.Variant, i, err)
		} else {
			log.Printf("[%s] shard %d/%d launched (pid %d, log %s)",
				spec.Variant, i, spec.ShardCount, cmd.Process.Pid, logPath)
		}
		procs = append(procs, launched{shard: shard, cmd: cmd, file: file, log: logPath, err: err})
	}

	// Join barrier: wait for every launched shard regardless of exit code.
	// The ingest step strictly happens-after this loop.
	for _, p := range procs {
		res := ShardResult{
			Index:    p.shard.Index,
			ClientID: p.shard.ClientID,
			LogPath:  p.log,
			Err:      p.err,
		}
		if p.err == nil {
			res.PID = p.cmd.Process.Pid
			res.ExitCode = waitExitCode(p.cmd)
		} else {
			res.ExitCode = -1
		}
		if p.file != nil {
			p.file.Close()
		}
		result.Shards = append(result.Shards, res)
		log.Printf("[%s] shard %d exited with code %d", spec.Variant, res.Index, res.ExitCode)
		if spec.OnShardExit != nil {
			spec.OnShardExit(res)
		}
	}

	// Terminal step: exactly one ingestion process, synchronous. Runs even
	// when shards failed; whatever staging output exists gets consolidated
	// and failures stay in the ingest log.
	ingestLog := filepath.Join(spec.LogDir, fmt.Sprintf("%s_ingest.log", spec.Variant))
	result.IngestLog = ingestLog
	ingest := spec.IngestCommand(runID)
	if spec.WorkDir != "" {
		ingest.Dir = spec.WorkDir
	}
	if file, err := openShardLog(ingestLog); err != nil {
		result.IngestErr = err
		result.IngestExit = -1
		log.Printf("[%s] ingest log unavailable: %v", spec.Variant, err)
	} else {
		ingest.Stdout = file
		ingest.Stderr = file
		log.Printf("[%s] ingest starting for run %s", spec.Variant, runID)
		if err := ingest.Start(); err != nil {
			result.IngestErr = err
			result.IngestExit = -1
			log.Printf("[%s] ingest failed to launch: %v", spec.Variant, err)
		} else {
			result.IngestExit = waitExitCode(ingest)
			log.Printf("[%s] ingest exited with code %d", spec.Variant, result.IngestExit)
		}
		file.Close()
	}

	result.Duration = clock().Sub(started)
	log.Printf("[%s] run %s finished in %s (%d shards, ingest exit %d)",
		spec.Variant, runID, result.Duration.Round(time.Millisecond), spec.ShardCount, result.IngestExit)
	return result, nil
}

// openShardLog opens an append-only log file, creating it if needed.
func openShardLog(path string) (*os.File, error) {
	return os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
}

// waitExitCode joins one process and maps its outcome to an exit code. A
// wait error that carries no exit status (signal kill, wait failure) is
// reported as -1.
func waitExitCode(cmd *exec.Cmd) int {
	err := cmd.Wait()
	if err == nil {
		return 0
	}
	if exitErr, ok := err.(*exec.ExitError); ok {
		if code := exitErr.ExitCode(); code >= 0 {
			return code
		}
	}
	return -1
}
