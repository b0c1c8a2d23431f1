package services

import (
	"fmt"
	"log"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/srikarpolisetty-svg/supreme-stockequity-trading-bot/config"
	"github.com/srikarpolisetty-svg/supreme-stockequity-trading-bot/orchestrator"
)

// Pipeline drives batch runs end to end: it fans the shard workers out,
// waits at the join barrier, runs ingestion, and records the outcome. It is
// shared by the scheduler and the HTTP trigger endpoint.
type Pipeline struct {
	cfg  *config.Config
	runs *RunService

	mu      sync.Mutex
	running map[string]bool // variants with a run in flight
}

func NewPipeline(cfg *config.Config, db *gorm.DB) *Pipeline {
	p := &Pipeline{
		cfg:     cfg,
		running: make(map[string]bool),
	}
	if db != nil {
		p.runs = NewRunService(db)
	}
	return p
}

// Trigger starts a batch run in the background and returns its run id
// immediately. A variant can only have one run in flight at a time.
func (p *Pipeline) Trigger(variant string, shards int) (string, error) {
	if shards <= 0 {
		shards = p.cfg.ShardCount
	}

	p.mu.Lock()
	if p.running[variant] {
		p.mu.Unlock()
		return "", fmt.Errorf("a %s run is already in flight", variant)
	}
	p.running[variant] = true
	p.mu.Unlock()

	runID := orchestrator.NewRunID(time.Now())
	go func() {
		defer p.clear(variant)
		p.execute(variant, shards, runID)
	}()
	return runID, nil
}

// RunVariant runs one batch synchronously. It satisfies the scheduler's
// BatchRunner interface.
func (p *Pipeline) RunVariant(variant string) error {
	p.mu.Lock()
	if p.running[variant] {
		p.mu.Unlock()
		log.Printf("[pipeline] skipping %s run, previous run still in flight", variant)
		return nil
	}
	p.running[variant] = true
	p.mu.Unlock()

	defer p.clear(variant)
	p.execute(variant, p.cfg.ShardCount, orchestrator.NewRunID(time.Now()))
	return nil
}

func (p *Pipeline) clear(variant string) {
	p.mu.Lock()
	delete(p.running, variant)
	p.mu.Unlock()
}

// execute performs one full run. Shard and ingest failures are recorded, not
// returned: once the fan-out starts the run always proceeds to ingestion and
// bookkeeping.
func (p *Pipeline) execute(variant string, shards int, runID string) {
	spec := orchestrator.JobSpec{
		Variant:       variant,
		ShardCount:    shards,
		ClientIDBase:  p.cfg.ClientIDBase,
		WorkDir:       p.cfg.BaseDir,
		LogDir:        p.cfg.LogDir,
		RunID:         runID,
		WorkerCommand: orchestrator.WorkerCommandFor(p.cfg.WorkerBin, "--variant", variant),
		IngestCommand: orchestrator.IngestCommandFor(p.cfg.IngestBin, "--variant", variant),
		OnShardExit: func(res orchestrator.ShardResult) {
			GlobalRunFeed.Publish(RunEvent{
				Type:       "shard_exited",
				RunID:      runID,
				Variant:    variant,
				ShardIndex: res.Index,
				ExitCode:   res.ExitCode,
				Time:       time.Now().UTC().Format(time.RFC3339),
			})
		},
	}

	GlobalRunFeed.Publish(RunEvent{
		Type:    "run_started",
		RunID:   runID,
		Variant: variant,
		Time:    time.Now().UTC().Format(time.RFC3339),
	})

	result, err := orchestrator.RunBatch(spec)
	if err != nil {
		log.Printf("[pipeline] %s run aborted before fan-out: %v", variant, err)
		return
	}

	GlobalRunFeed.Publish(RunEvent{
		Type:     "ingest_finished",
		RunID:    result.RunID,
		Variant:  variant,
		ExitCode: result.IngestExit,
		Time:     time.Now().UTC().Format(time.RFC3339),
	})
	GlobalRunFeed.Publish(RunEvent{
		Type:    "run_finished",
		RunID:   result.RunID,
		Variant: variant,
		Time:    time.Now().UTC().Format(time.RFC3339),
	})

	commit := orchestrator.CommitHash(p.cfg.BaseDir)
	if p.runs != nil {
		if _, err := p.runs.RecordRun(result, commit); err != nil {
			log.Printf("[pipeline] failed to record %s run %s: %v", variant, result.RunID, err)
		}
	}
	if GlobalRunArchive.Enabled() {
		if err := GlobalRunArchive.ArchiveRun(result, commit); err != nil {
			log.Printf("[pipeline] failed to archive run %s: %v", result.RunID, err)
		}
	}
}
