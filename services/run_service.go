package services

import (
	"fmt"
	"log"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/srikarpolisetty-svg/supreme-stockequity-trading-bot/models"
	"github.com/srikarpolisetty-svg/supreme-stockequity-trading-bot/orchestrator"
)

// RunService records batch run outcomes in the bookkeeping database
type RunService struct {
	db *gorm.DB
}

// NewRunService creates a new run service
func NewRunService(db *gorm.DB) *RunService {
	return &RunService{db: db}
}

// RecordRun persists one finished batch run with its per-shard results
func (rs *RunService) RecordRun(result *orchestrator.RunResult, commitHash string) (*models.BatchRun, error) {
	status := "completed"
	if result.Failed() {
		status = "completed_with_failures"
	}

	run := &models.BatchRun{
		RunID:      result.RunID,
		Variant:    result.Variant,
		ShardCount: result.ShardCount,
		CommitHash: commitHash,
		StartedAt:  result.Started,
		DurationMS: result.Duration.Milliseconds(),
		IngestExit: result.IngestExit,
		Status:     status,
	}

	err := rs.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(run).Error; err != nil {
			return err
		}
		for _, s := range result.Shards {
			shard := models.ShardRun{
				BatchRunID: run.ID,
				ShardIndex: s.Index,
				ClientID:   s.ClientID,
				PID:        s.PID,
				ExitCode:   s.ExitCode,
				LogPath:    s.LogPath,
			}
			if err := tx.Create(&shard).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to record run %s: %w", result.RunID, err)
	}

	log.Printf("Recorded run %s (%s, %d shards, status %s)",
		run.RunID, run.Variant, run.ShardCount, run.Status)
	return run, nil
}

// RecordSummary persists the post-ingest aggregates for one run
func (rs *RunService) RecordSummary(runID, variant string, stats *IngestStats) error {
	summary := &models.RunSummary{
		RunID:        runID,
		Variant:      variant,
		BarCount:     stats.BarCount,
		MeanCloseZ:   decimal.NewFromFloat(stats.MeanCloseZ),
		MaxVolumeZ:   decimal.NewFromFloat(stats.MaxVolumeZ),
		MeanRangePct: decimal.NewFromFloat(stats.MeanRangePct),
	}
	if err := rs.db.Create(summary).Error; err != nil {
		return fmt.Errorf("failed to record summary for %s: %w", runID, err)
	}
	return nil
}

// ListRuns returns recent batch runs, newest first
func (rs *RunService) ListRuns(variant string, limit int) ([]models.BatchRun, error) {
	if limit <= 0 {
		limit = 50
	}
	query := rs.db.Model(&models.BatchRun{}).Order("started_at DESC").Limit(limit)
	if variant != "" {
		query = query.Where("variant = ?", variant)
	}
	var runs []models.BatchRun
	if err := query.Find(&runs).Error; err != nil {
		return nil, err
	}
	return runs, nil
}

// GetRun returns one batch run with its shard results and summary (summary
// may be nil when ingest produced nothing)
func (rs *RunService) GetRun(runID string) (*models.BatchRun, []models.ShardRun, *models.RunSummary, error) {
	var run models.BatchRun
	if err := rs.db.Where("run_id = ?", runID).First(&run).Error; err != nil {
		return nil, nil, nil, err
	}

	var shards []models.ShardRun
	if err := rs.db.Where("batch_run_id = ?", run.ID).Order("shard_index ASC").Find(&shards).Error; err != nil {
		return nil, nil, nil, err
	}

	var summary models.RunSummary
	err := rs.db.Where("run_id = ?", runID).First(&summary).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return &run, shards, nil, nil
		}
		return nil, nil, nil, err
	}
	return &run, shards, &summary, nil
}
