package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	"github.com/srikarpolisetty-svg/supreme-stockequity-trading-bot/config"
	"github.com/srikarpolisetty-svg/supreme-stockequity-trading-bot/models"
	"github.com/srikarpolisetty-svg/supreme-stockequity-trading-bot/orchestrator"
	"github.com/srikarpolisetty-svg/supreme-stockequity-trading-bot/services"
)

// run-batch drives one complete batch run from the command line: fan the
// shard workers out, wait for all of them, then run the single ingestion
// step. Shard and ingest failures are reported in the logs and the exit
// status; only a pre-flight failure aborts the run before launch.
func main() {
	variant := flag.String("variant", "shortdb", "pipeline variant: shortdb or longdb")
	shards := flag.Int("shards", 0, "shard count (0 = configured default)")
	clientIDBase := flag.Int("client-id-base", -1, "base upstream session id (-1 = configured default, 0 = none)")
	gitSync := flag.Bool("git-sync", false, "hard-reset the working tree to origin before running")
	strict := flag.Bool("strict", false, "exit non-zero when any shard or the ingest fails")
	flag.Parse()

	if *variant != "shortdb" && *variant != "longdb" {
		log.Fatalf("unknown variant %q (want shortdb or longdb)", *variant)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if *shards <= 0 {
		*shards = cfg.ShardCount
	}
	if *clientIDBase < 0 {
		*clientIDBase = cfg.ClientIDBase
	}

	// The wrapper's own output goes to the master runner log and the
	// terminal; the shards and the ingest get their own per-run logs.
	if err := os.MkdirAll(cfg.LogDir, 0755); err != nil {
		log.Fatalf("failed to create log directory: %v", err)
	}
	wrapperLog, err := os.OpenFile(filepath.Join(cfg.LogDir, "master_runner.log"),
		os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		log.Fatalf("failed to open master runner log: %v", err)
	}
	defer wrapperLog.Close()
	log.SetOutput(io.MultiWriter(os.Stdout, wrapperLog))

	if *gitSync {
		if err := orchestrator.HardSync(cfg.BaseDir, "origin", "main"); err != nil {
			log.Fatalf("git sync failed: %v", err)
		}
	}
	if commit := orchestrator.CommitHash(cfg.BaseDir); commit != "" {
		log.Printf("running code at commit %s", commit)
	}

	spec := orchestrator.JobSpec{
		Variant:       *variant,
		ShardCount:    *shards,
		ClientIDBase:  *clientIDBase,
		WorkDir:       cfg.BaseDir,
		LogDir:        cfg.LogDir,
		WorkerCommand: orchestrator.WorkerCommandFor(cfg.WorkerBin, "--variant", *variant),
		IngestCommand: orchestrator.IngestCommandFor(cfg.IngestBin, "--variant", *variant),
	}

	result, err := orchestrator.RunBatch(spec)
	if err != nil {
		log.Fatalf("run aborted before fan-out: %v", err)
	}

	recordRun(result)

	failures := 0
	for _, s := range result.Shards {
		if s.ExitCode != 0 {
			failures++
		}
	}
	if failures > 0 || result.IngestExit != 0 {
		fmt.Printf("run %s finished with %d failed shards, ingest exit %d; see %s\n",
			result.RunID, failures, result.IngestExit, cfg.LogDir)
		if *strict {
			os.Exit(1)
		}
		return
	}
	fmt.Printf("run %s completed cleanly in %s\n", result.RunID, result.Duration.Round(0))
}

// recordRun writes the bookkeeping row for a finished run. Bookkeeping is
// best-effort here: the run's logs and staged data already exist on disk.
func recordRun(result *orchestrator.RunResult) {
	db, err := config.InitDB()
	if err != nil {
		log.Printf("bookkeeping database unavailable, run not recorded: %v", err)
		return
	}
	if err := models.MigrateRunModels(db); err != nil {
		log.Printf("bookkeeping migration failed, run not recorded: %v", err)
		return
	}
	commit := orchestrator.CommitHash(config.AppConfig.BaseDir)
	if _, err := services.NewRunService(db).RecordRun(result, commit); err != nil {
		log.Printf("failed to record run %s: %v", result.RunID, err)
	}
}
