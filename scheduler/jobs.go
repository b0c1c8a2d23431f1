package scheduler

import (
	"log"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/srikarpolisetty-svg/supreme-stockequity-trading-bot/services"
)

// BatchRunner launches one full batch run (fan-out, join, ingest) for a variant
type BatchRunner interface {
	RunVariant(variant string) error
}

// Scheduler manages scheduled pipeline jobs
type Scheduler struct {
	cron   *gocron.Scheduler
	runner BatchRunner
	barDB  *services.BarDB
	store  *services.SnapshotStore

	signalZThreshold float64
}

// NewScheduler creates a new scheduler instance
func NewScheduler(runner BatchRunner, barDB *services.BarDB, store *services.SnapshotStore) *Scheduler {
	return &Scheduler{
		cron:             gocron.NewScheduler(time.UTC),
		runner:           runner,
		barDB:            barDB,
		store:            store,
		signalZThreshold: 2.0,
	}
}

// Start starts all scheduled jobs
func (s *Scheduler) Start() {
	log.Println("Starting scheduler...")

	// Collect short-horizon bars every 5 minutes during market hours
	s.cron.Every(5).Minutes().Do(func() {
		if isMarketOpen() {
			s.runShortBatch()
		}
	})

	// Collect long-horizon bars daily at 21:05 UTC (after the US close)
	s.cron.Every(1).Day().At("21:05").Do(func() {
		s.runLongBatch()
	})

	// Fill forward-return labels daily at 22:00 UTC
	s.cron.Every(1).Day().At("22:00").Do(func() {
		s.labelReturns()
	})

	// Cleanup old staging snapshots and expired bars weekly on Sunday at 01:00
	s.cron.Every(1).Week().Sunday().At("01:00").Do(func() {
		s.cleanupOldData()
	})

	s.cron.StartAsync()
	log.Println("Scheduler started successfully")
}

// Stop stops the scheduler
func (s *Scheduler) Stop() {
	s.cron.Stop()
	log.Println("Scheduler stopped")
}

// runShortBatch runs one short-horizon collection batch
func (s *Scheduler) runShortBatch() {
	log.Println("Running short-horizon batch...")
	if err := s.runner.RunVariant("shortdb"); err != nil {
		log.Printf("Short-horizon batch failed: %v", err)
	}
}

// runLongBatch runs one long-horizon collection batch
func (s *Scheduler) runLongBatch() {
	log.Println("Running long-horizon batch...")
	if err := s.runner.RunVariant("longdb"); err != nil {
		log.Printf("Long-horizon batch failed: %v", err)
	}
}

// labelReturns fills forward-return labels and marks trade signals
func (s *Scheduler) labelReturns() {
	if s.barDB == nil {
		log.Println("Bar database unavailable, skipping labeling")
		return
	}

	log.Println("Filling forward-return labels...")
	for _, variant := range []string{"shortdb", "longdb"} {
		if err := services.FillReturnLabels(s.barDB, variant); err != nil {
			log.Printf("Error labeling %s returns: %v", variant, err)
			continue
		}
		if err := services.MarkTradeSignals(s.barDB, variant, s.signalZThreshold); err != nil {
			log.Printf("Error marking %s trade signals: %v", variant, err)
		}
	}
	log.Println("Labeling completed")
}

// cleanupOldData removes expired bar rows and stale staging directories
func (s *Scheduler) cleanupOldData() {
	log.Println("Cleaning up old data...")

	if s.barDB != nil {
		for _, variant := range []string{"shortdb", "longdb"} {
			if err := s.barDB.RetentionCleanup(variant); err != nil {
				log.Printf("Error cleaning up %s bars: %v", variant, err)
			}
		}
	}

	// Staging snapshots are only needed until their run is ingested; keep a
	// week of them for debugging failed runs.
	cutoff := time.Now().UTC().AddDate(0, 0, -7).Format("2006-01-02_15-04-05")
	stale, err := s.store.StaleRuns(cutoff)
	if err != nil {
		log.Printf("Error listing stale staging runs: %v", err)
		return
	}
	for _, runID := range stale {
		if err := s.store.RemoveRun(runID); err != nil {
			log.Printf("Error removing staging for %s: %v", runID, err)
		}
	}
	log.Printf("Cleanup completed (%d staging runs removed)", len(stale))
}

// isMarketOpen checks if the US stock market is currently open
func isMarketOpen() bool {
	return marketOpenAt(time.Now())
}

// marketOpenAt reports whether the US market is open at t: weekdays
// 9:30-16:00 Eastern. Falls back to closed when the timezone database is
// unavailable rather than hammering the data provider around the clock.
func marketOpenAt(t time.Time) bool {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		return false
	}
	et := t.In(loc)

	// Check if weekend
	if et.Weekday() == time.Saturday || et.Weekday() == time.Sunday {
		return false
	}

	minutes := et.Hour()*60 + et.Minute()
	return minutes >= 9*60+30 && minutes < 16*60
}
