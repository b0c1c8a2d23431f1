package orchestrator

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWorkerArgs(t *testing.T) {
	s := Shard{Index: 2, Count: 8, RunID: "2026-01-05_09-30-00"}
	assert.Equal(t,
		[]string{"--shard", "2", "--shards", "8", "--run_id", "2026-01-05_09-30-00"},
		WorkerArgs(s))
}

func TestWorkerArgsWithClientID(t *testing.T) {
	s := Shard{Index: 5, Count: 12, RunID: "2026-01-05_09-30-00", ClientID: 1005}
	assert.Equal(t,
		[]string{"--shard", "5", "--shards", "12", "--run_id", "2026-01-05_09-30-00", "--client_id", "1005"},
		WorkerArgs(s))
}

func TestWorkerArgsExtra(t *testing.T) {
	s := Shard{Index: 0, Count: 1, RunID: "r"}
	args := WorkerArgs(s, "--variant", "shortdb")
	assert.Equal(t, []string{"--shard", "0", "--shards", "1", "--run_id", "r", "--variant", "shortdb"}, args)
}

func TestIngestArgs(t *testing.T) {
	assert.Equal(t, []string{"--run_id", "r1"}, IngestArgs("r1"))
	assert.Equal(t, []string{"--run_id", "r1", "--variant", "longdb"}, IngestArgs("r1", "--variant", "longdb"))
}

func TestWorkerCommandFor(t *testing.T) {
	build := WorkerCommandFor("./shard-worker", "--variant", "shortdb")
	cmd := build(Shard{Index: 1, Count: 4, RunID: "r2"})
	assert.Contains(t, cmd.Path, "shard-worker")
	assert.Equal(t, []string{"./shard-worker", "--shard", "1", "--shards", "4", "--run_id", "r2", "--variant", "shortdb"}, cmd.Args)
}

func TestIngestCommandFor(t *testing.T) {
	build := IngestCommandFor("./master-ingest", "--variant", "shortdb")
	cmd := build("r3")
	assert.Equal(t, []string{"./master-ingest", "--run_id", "r3", "--variant", "shortdb"}, cmd.Args)
}

func TestCommitHashOutsideGitCheckout(t *testing.T) {
	hash := CommitHash(t.TempDir())
	assert.Empty(t, hash)
}
