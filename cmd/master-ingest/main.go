package main

import (
	"flag"
	"log"
	"time"

	"github.com/srikarpolisetty-svg/supreme-stockequity-trading-bot/config"
	"github.com/srikarpolisetty-svg/supreme-stockequity-trading-bot/models"
	"github.com/srikarpolisetty-svg/supreme-stockequity-trading-bot/services"
)

// master-ingest is the single-writer phase of a batch run: it consolidates
// every staging snapshot of one run id into the bar database in a single
// transaction, applies retention, and records the run summary.
func main() {
	runID := flag.String("run_id", "", "run identifier whose staged snapshots to ingest")
	variant := flag.String("variant", "shortdb", "pipeline variant: shortdb or longdb")
	keepStaging := flag.Bool("keep-staging", false, "keep the run's staging snapshots after ingest")
	flag.Parse()

	if *runID == "" {
		log.Fatal("--run_id is required")
	}

	log.SetPrefix("[ingest] ")
	log.SetFlags(log.LstdFlags)

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	started := time.Now()
	barDB, err := services.OpenBarDB(cfg.BarDBPath)
	if err != nil {
		log.Fatalf("failed to open bar database: %v", err)
	}
	defer barDB.Close()

	store := services.NewSnapshotStore(cfg.RunsDir)
	stats, err := barDB.MasterIngest(*runID, *variant, store)
	if err != nil {
		log.Fatalf("ingest for run %s failed: %v", *runID, err)
	}
	log.Printf("run %s: ingested %d bars (mean close z %.4f, max volume z %.4f)",
		*runID, stats.BarCount, stats.MeanCloseZ, stats.MaxVolumeZ)

	if err := barDB.RetentionCleanup(*variant); err != nil {
		log.Printf("retention cleanup failed: %v", err)
	}

	if !*keepStaging {
		if err := store.RemoveRun(*runID); err != nil {
			log.Printf("failed to remove staging for run %s: %v", *runID, err)
		}
	}

	recordSummary(cfg, *runID, *variant, stats)
	log.Printf("run %s: ingest finished in %s", *runID, time.Since(started).Round(time.Millisecond))
}

// recordSummary writes the run summary row. Bookkeeping failures are logged
// and swallowed: the ingest itself already committed.
func recordSummary(cfg *config.Config, runID, variant string, stats *services.IngestStats) {
	db, err := config.InitDB()
	if err != nil {
		log.Printf("bookkeeping database unavailable, skipping summary: %v", err)
		return
	}
	if err := models.MigrateRunModels(db); err != nil {
		log.Printf("bookkeeping migration failed, skipping summary: %v", err)
		return
	}
	if err := services.NewRunService(db).RecordSummary(runID, variant, stats); err != nil {
		log.Printf("failed to record summary for run %s: %v", runID, err)
	}
}
