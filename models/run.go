package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// BatchRun represents one end-to-end orchestrator execution
type BatchRun struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	RunID      string    `gorm:"index:idx_run_variant;not null" json:"run_id"`
	Variant    string    `gorm:"index:idx_run_variant" json:"variant"` // data, shortdb, longdb
	ShardCount int       `json:"shard_count"`
	CommitHash string    `json:"commit_hash"` // version marker, may be empty
	StartedAt  time.Time `json:"started_at"`
	DurationMS int64     `json:"duration_ms"`
	IngestExit int       `json:"ingest_exit"`
	Status     string    `json:"status"` // completed, completed_with_failures
	CreatedAt  time.Time `json:"created_at"`
}

// ShardRun represents one shard worker process within a batch run
type ShardRun struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	BatchRunID uint      `gorm:"index" json:"batch_run_id"`
	BatchRun   BatchRun  `gorm:"foreignKey:BatchRunID" json:"batch_run,omitempty"`
	ShardIndex int       `json:"shard_index"`
	ClientID   int       `json:"client_id"`
	PID        int       `json:"pid"`
	ExitCode   int       `json:"exit_code"`
	LogPath    string    `json:"log_path"`
	CreatedAt  time.Time `json:"created_at"`
}

// RunSummary stores per-run aggregates computed after ingestion
type RunSummary struct {
	ID           uint            `gorm:"primaryKey" json:"id"`
	RunID        string          `gorm:"uniqueIndex" json:"run_id"`
	Variant      string          `json:"variant"`
	BarCount     int64           `json:"bar_count"`
	MeanCloseZ   decimal.Decimal `gorm:"type:decimal(15,6)" json:"mean_close_z"`
	MaxVolumeZ   decimal.Decimal `gorm:"type:decimal(15,6)" json:"max_volume_z"`
	MeanRangePct decimal.Decimal `gorm:"type:decimal(10,4)" json:"mean_range_pct"`
	CreatedAt    time.Time       `json:"created_at"`
}

// MigrateRunModels runs database migrations for run bookkeeping models
func MigrateRunModels(db *gorm.DB) error {
	return db.AutoMigrate(
		&BatchRun{},
		&ShardRun{},
		&RunSummary{},
	)
}
