package services

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Staging table names. The short horizon keeps a rolling 3-day window, the
// long horizon a 35-day window; both families share one layout.
const (
	TableRawShort      = "stock_bars_raw_5m_3d"
	TableEnrichedShort = "stock_bars_enriched_5m_3d"
	TableSignalsShort  = "stock_execution_signals_5m_3d"

	TableRawLong      = "stock_bars_raw_5m"
	TableEnrichedLong = "stock_bars_enriched_5m"
	TableSignalsLong  = "stock_execution_signals_5m"
)

// SnapshotTimeLayout matches the timestamp format stored with every snapshot
const SnapshotTimeLayout = "2006-01-02 15:04:05"

// Snapshot is one per-symbol observation captured by a shard worker. Label
// columns (forward returns, trade signal) are filled later in the database;
// shards always stage them empty.
type Snapshot struct {
	SnapshotID string
	Timestamp  time.Time
	Symbol     string
	Open       float64
	High       float64
	Low        float64
	Close      float64
	Volume     int64
	RangePct   float64
	CloseZ     float64
	VolumeZ    float64
	RangeZ     float64
}

// NewSnapshot builds a snapshot for a bar observed at ts
func NewSnapshot(bar *Bar, ts time.Time) Snapshot {
	stamp := ts.Format(SnapshotTimeLayout)
	return Snapshot{
		SnapshotID: fmt.Sprintf("%s_%s", bar.Symbol, stamp),
		Timestamp:  ts,
		Symbol:     bar.Symbol,
		Open:       bar.Open,
		High:       bar.High,
		Low:        bar.Low,
		Close:      bar.Close,
		Volume:     bar.Volume,
		RangePct:   bar.RangePct,
	}
}

// SnapshotStore reads and writes per-shard staging snapshots under
// <runsDir>/<run_id>/<table>/shard_<i>_<symbol>.csv
type SnapshotStore struct {
	RunsDir string
}

// NewSnapshotStore creates a snapshot store rooted at runsDir
func NewSnapshotStore(runsDir string) *SnapshotStore {
	return &SnapshotStore{RunsDir: runsDir}
}

var snapshotHeader = []string{
	"snapshot_id", "timestamp", "symbol",
	"open", "high", "low", "close", "volume", "range_pct",
	"close_z", "volume_z", "range_z",
}

// Write stages one snapshot for a shard. Each symbol gets its own file so
// shards never contend on a writer; the table directory is created on demand.
func (st *SnapshotStore) Write(runID, table string, shardIndex int, snap Snapshot) error {
	dir := filepath.Join(st.RunsDir, runID, table)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create staging directory: %w", err)
	}

	path := filepath.Join(dir, fmt.Sprintf("shard_%d_%s.csv", shardIndex, snap.Symbol))
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create snapshot file: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(snapshotHeader); err != nil {
		return err
	}
	row := []string{
		snap.SnapshotID,
		snap.Timestamp.Format(SnapshotTimeLayout),
		snap.Symbol,
		formatFloat(snap.Open),
		formatFloat(snap.High),
		formatFloat(snap.Low),
		formatFloat(snap.Close),
		strconv.FormatInt(snap.Volume, 10),
		formatFloat(snap.RangePct),
		formatFloat(snap.CloseZ),
		formatFloat(snap.VolumeZ),
		formatFloat(snap.RangeZ),
	}
	if err := w.Write(row); err != nil {
		return err
	}
	w.Flush()
	return w.Error()
}

// ReadRun loads every shard snapshot staged for one run and table, across
// all shards and symbols.
func (st *SnapshotStore) ReadRun(runID, table string) ([]Snapshot, error) {
	pattern := filepath.Join(st.RunsDir, runID, table, "shard_*.csv")
	paths, err := filepath.Glob(pattern)
	if err != nil {
		return nil, err
	}

	var snaps []Snapshot
	for _, path := range paths {
		snap, err := readSnapshotFile(path)
		if err != nil {
			return nil, fmt.Errorf("bad snapshot %s: %w", path, err)
		}
		snaps = append(snaps, snap...)
	}
	return snaps, nil
}

// RemoveRun deletes the whole staging tree for one run
func (st *SnapshotStore) RemoveRun(runID string) error {
	if runID == "" {
		return fmt.Errorf("refusing to remove staging for empty run id")
	}
	return os.RemoveAll(filepath.Join(st.RunsDir, runID))
}

// StaleRuns lists run ids under the staging root whose id sorts before
// cutoff. Run ids are timestamps, so lexical order is chronological order.
func (st *SnapshotStore) StaleRuns(cutoff string) ([]string, error) {
	entries, err := os.ReadDir(st.RunsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var stale []string
	for _, e := range entries {
		if e.IsDir() && e.Name() < cutoff {
			stale = append(stale, e.Name())
		}
	}
	return stale, nil
}

func readSnapshotFile(path string) ([]Snapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) < 2 {
		return nil, fmt.Errorf("no data rows")
	}

	var snaps []Snapshot
	for _, row := range records[1:] {
		if len(row) != len(snapshotHeader) {
			return nil, fmt.Errorf("expected %d columns, got %d", len(snapshotHeader), len(row))
		}
		ts, err := time.Parse(SnapshotTimeLayout, row[1])
		if err != nil {
			return nil, fmt.Errorf("bad timestamp %q: %w", row[1], err)
		}
		volume, err := strconv.ParseInt(row[7], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("bad volume %q: %w", row[7], err)
		}
		snap := Snapshot{
			SnapshotID: row[0],
			Timestamp:  ts,
			Symbol:     row[2],
			Volume:     volume,
		}
		floats := []struct {
			idx int
			dst *float64
		}{
			{3, &snap.Open}, {4, &snap.High}, {5, &snap.Low}, {6, &snap.Close},
			{8, &snap.RangePct}, {9, &snap.CloseZ}, {10, &snap.VolumeZ}, {11, &snap.RangeZ},
		}
		for _, fcol := range floats {
			v, err := strconv.ParseFloat(row[fcol.idx], 64)
			if err != nil {
				return nil, fmt.Errorf("bad %s %q: %w", snapshotHeader[fcol.idx], row[fcol.idx], err)
			}
			*fcol.dst = v
		}
		snaps = append(snaps, snap)
	}
	return snaps, nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// ShortTables and LongTables list the staging tables per horizon in ingest order
var ShortTables = []string{TableSignalsShort, TableEnrichedShort, TableRawShort}
var LongTables = []string{TableSignalsLong, TableEnrichedLong, TableRawLong}

// TablesForVariant maps a job variant to its staging tables
func TablesForVariant(variant string) []string {
	if variant == "longdb" {
		return LongTables
	}
	return ShortTables
}
