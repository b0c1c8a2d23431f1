package services

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/srikarpolisetty-svg/supreme-stockequity-trading-bot/models"
	"github.com/srikarpolisetty-svg/supreme-stockequity-trading-bot/orchestrator"
)

func openTestGorm(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "pipeline.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, models.MigrateRunModels(db))
	require.NoError(t, models.MigrateOperatorModels(db))
	return db
}

func sampleResult() *orchestrator.RunResult {
	return &orchestrator.RunResult{
		RunID:      "2026-01-05_14-55-00",
		Variant:    "shortdb",
		ShardCount: 3,
		Started:    time.Date(2026, 1, 5, 14, 55, 0, 0, time.UTC),
		Duration:   90 * time.Second,
		Shards: []orchestrator.ShardResult{
			{Index: 0, PID: 100, ExitCode: 0, LogPath: "logs/shortdb_0.log"},
			{Index: 1, PID: 101, ExitCode: 0, LogPath: "logs/shortdb_1.log"},
			{Index: 2, PID: 102, ExitCode: 1, LogPath: "logs/shortdb_2.log"},
		},
		IngestExit: 0,
	}
}

func TestRecordRunAndGetRun(t *testing.T) {
	rs := NewRunService(openTestGorm(t))

	run, err := rs.RecordRun(sampleResult(), "abc1234")
	require.NoError(t, err)
	assert.Equal(t, "completed_with_failures", run.Status)
	assert.Equal(t, "abc1234", run.CommitHash)
	assert.Equal(t, int64(90000), run.DurationMS)

	got, shards, summary, err := rs.GetRun("2026-01-05_14-55-00")
	require.NoError(t, err)
	assert.Equal(t, run.ID, got.ID)
	require.Len(t, shards, 3)
	assert.Equal(t, 1, shards[2].ExitCode)
	assert.Nil(t, summary)
}

func TestRecordRunAllClean(t *testing.T) {
	rs := NewRunService(openTestGorm(t))
	result := sampleResult()
	result.Shards[2].ExitCode = 0

	run, err := rs.RecordRun(result, "")
	require.NoError(t, err)
	assert.Equal(t, "completed", run.Status)
}

func TestRecordSummary(t *testing.T) {
	rs := NewRunService(openTestGorm(t))
	_, err := rs.RecordRun(sampleResult(), "")
	require.NoError(t, err)

	stats := &IngestStats{BarCount: 42, MeanCloseZ: 0.5, MaxVolumeZ: 3.1, MeanRangePct: 0.012}
	require.NoError(t, rs.RecordSummary("2026-01-05_14-55-00", "shortdb", stats))

	_, _, summary, err := rs.GetRun("2026-01-05_14-55-00")
	require.NoError(t, err)
	require.NotNil(t, summary)
	assert.Equal(t, int64(42), summary.BarCount)
	assert.Equal(t, "0.5", summary.MeanCloseZ.String())
}

func TestListRunsFiltersAndOrders(t *testing.T) {
	rs := NewRunService(openTestGorm(t))

	first := sampleResult()
	_, err := rs.RecordRun(first, "")
	require.NoError(t, err)

	second := sampleResult()
	second.RunID = "2026-01-05_15-00-00"
	second.Started = first.Started.Add(5 * time.Minute)
	second.Variant = "longdb"
	_, err = rs.RecordRun(second, "")
	require.NoError(t, err)

	runs, err := rs.ListRuns("", 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "2026-01-05_15-00-00", runs[0].RunID, "newest first")

	short, err := rs.ListRuns("shortdb", 10)
	require.NoError(t, err)
	require.Len(t, short, 1)
	assert.Equal(t, "2026-01-05_14-55-00", short[0].RunID)
}
