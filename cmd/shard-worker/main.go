package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/srikarpolisetty-svg/supreme-stockequity-trading-bot/config"
	"github.com/srikarpolisetty-svg/supreme-stockequity-trading-bot/services"
	"github.com/srikarpolisetty-svg/supreme-stockequity-trading-bot/services/analysis"
)

// shard-worker processes one partition of the symbol universe: it fetches the
// latest bar for each of its symbols, enriches it with z-scores computed from
// the consolidated bar history, and stages the snapshots under the shared run
// id for the ingestion step to pick up.
func main() {
	shard := flag.Int("shard", 0, "shard index in [0, shards)")
	shards := flag.Int("shards", 1, "total shard count")
	runID := flag.String("run_id", "", "run identifier shared by every shard of this run")
	clientID := flag.Int("client_id", 0, "upstream session id for this shard (0 = none)")
	variant := flag.String("variant", "shortdb", "pipeline variant: shortdb or longdb")
	flag.Parse()

	if *runID == "" {
		log.Fatal("--run_id is required")
	}
	if *shards <= 0 || *shard < 0 || *shard >= *shards {
		log.Fatalf("invalid shard %d of %d", *shard, *shards)
	}

	log.SetPrefix(fmt.Sprintf("[shard %d/%d] ", *shard, *shards))
	log.SetFlags(log.LstdFlags)

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	if err := run(cfg, *shard, *shards, *runID, *clientID, *variant); err != nil {
		log.Fatalf("shard failed: %v", err)
	}
}

func run(cfg *config.Config, shard, shards int, runID string, clientID int, variant string) error {
	started := time.Now()

	symbolService := services.NewSymbolService(filepath.Join(cfg.BaseDir, "data", "constituents.csv"))
	universe, err := symbolService.Symbols()
	if err != nil {
		return fmt.Errorf("failed to load symbol universe: %w", err)
	}
	mine := services.ShardSlice(universe, shard, shards)
	log.Printf("run %s: %d of %d symbols, client id %d", runID, len(mine), len(universe), clientID)

	barDB, err := services.OpenBarDB(cfg.BarDBPath)
	if err != nil {
		return fmt.Errorf("failed to open bar database: %w", err)
	}
	defer barDB.Close()

	fetcher := services.NewBarFetcher(
		os.Getenv("MARKET_DATA_URL"),
		os.Getenv("MARKET_DATA_API_KEY"),
	)
	store := services.NewSnapshotStore(cfg.RunsDir)
	tables := services.TablesForVariant(variant)
	historyTable := tables[len(tables)-1] // raw bars

	staged, failed := 0, 0
	for _, symbol := range mine {
		if err := processSymbol(fetcher, barDB, store, tables, historyTable, runID, shard, symbol); err != nil {
			failed++
			log.Printf("%s: %v", symbol, err)
			continue
		}
		staged++
	}

	log.Printf("run %s: staged %d symbols, %d failed, took %s",
		runID, staged, failed, time.Since(started).Round(time.Millisecond))
	if staged == 0 && len(mine) > 0 {
		return fmt.Errorf("no symbols staged out of %d", len(mine))
	}
	return nil
}

// processSymbol stages one symbol's latest bar into every table of the
// variant. A symbol with no current bar is skipped, not failed.
func processSymbol(fetcher *services.BarFetcher, barDB *services.BarDB, store *services.SnapshotStore,
	tables []string, historyTable, runID string, shard int, symbol string) error {

	bar, err := fetcher.LatestBar(symbol)
	if err != nil {
		return fmt.Errorf("fetch failed: %w", err)
	}
	if bar == nil {
		log.Printf("%s: no current bar, skipping", symbol)
		return nil
	}

	history, err := barDB.SymbolHistory(historyTable, symbol)
	if err != nil {
		return fmt.Errorf("history query failed: %w", err)
	}
	observations := make([]analysis.Observation, len(history))
	for i, row := range history {
		observations[i] = analysis.Observation{
			Close:    row.Close,
			Volume:   row.Volume,
			RangePct: row.RangePct,
		}
	}

	snap := services.NewSnapshot(bar, time.Now().UTC())
	z := analysis.ComputeZScores(observations, bar.Close, float64(bar.Volume), snap.RangePct)
	snap.CloseZ = z.Close
	snap.VolumeZ = z.Volume
	snap.RangeZ = z.Range

	for _, table := range tables {
		if err := store.Write(runID, table, shard, snap); err != nil {
			return fmt.Errorf("staging write failed: %w", err)
		}
	}
	return nil
}
