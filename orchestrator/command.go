package orchestrator

import (
	"os/exec"
	"strconv"
)

// WorkerArgs builds the shard worker argument list. Every worker variant
// recognizes the same flags; --client_id is passed only when the shard
// carries a session identity.
func WorkerArgs(s Shard, extra ...string) []string {
	args := []string{
		"--shard", strconv.Itoa(s.Index),
		"--shards", strconv.Itoa(s.Count),
		"--run_id", s.RunID,
	}
	if s.ClientID > 0 {
		args = append(args, "--client_id", strconv.Itoa(s.ClientID))
	}
	return append(args, extra...)
}

// IngestArgs builds the ingestion step argument list.
func IngestArgs(runID string, extra ...string) []string {
	return append([]string{"--run_id", runID}, extra...)
}

// WorkerCommandFor returns a WorkerCommand factory invoking the given binary
// with the standard shard flags plus any extra arguments.
func WorkerCommandFor(bin string, extra ...string) func(Shard) *exec.Cmd {
	return func(s Shard) *exec.Cmd {
		return exec.Command(bin, WorkerArgs(s, extra...)...)
	}
}

// IngestCommandFor returns an IngestCommand factory invoking the given binary
// with --run_id plus any extra arguments.
func IngestCommandFor(bin string, extra ...string) func(string) *exec.Cmd {
	return func(runID string) *exec.Cmd {
		return exec.Command(bin, IngestArgs(runID, extra...)...)
	}
}
