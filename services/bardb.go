package services

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "github.com/mattn/go-sqlite3"
)

// BarDB is the consolidated bar store all shard outputs land in. SQLite with
// a DuckDB-compatible schema; shards only ever read it (z-score history),
// the master ingest is the single writer.
type BarDB struct {
	db *sql.DB
	mu sync.RWMutex
}

// Global bar database client
var GlobalBarDB *BarDB

// OpenBarDB opens (creating if needed) the bar database at path
func OpenBarDB(path string) (*BarDB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open bar database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping bar database: %w", err)
	}

	b := &BarDB{db: db}
	if err := b.EnsureTables(); err != nil {
		db.Close()
		return nil, err
	}
	return b, nil
}

// InitBarDB opens the global bar database
func InitBarDB(path string) error {
	b, err := OpenBarDB(path)
	if err != nil {
		return err
	}
	GlobalBarDB = b
	return nil
}

// Close closes the underlying connection
func (b *BarDB) Close() error {
	return b.db.Close()
}

const rawColumns = `
	snapshot_id TEXT,
	timestamp TIMESTAMP,
	symbol TEXT,
	open DOUBLE,
	high DOUBLE,
	low DOUBLE,
	close DOUBLE,
	volume BIGINT,
	range_pct DOUBLE`

const enrichedColumns = rawColumns + `,
	close_z DOUBLE,
	volume_z DOUBLE,
	range_z DOUBLE,
	opt_ret_10m DOUBLE,
	opt_ret_1h DOUBLE,
	opt_ret_eod DOUBLE,
	opt_ret_next_open DOUBLE,
	opt_ret_1d DOUBLE,
	opt_ret_2d DOUBLE,
	opt_ret_3d DOUBLE`

const signalColumns = enrichedColumns + `,
	trade_signal BOOLEAN`

// EnsureTables creates every bar table if missing, both horizons
func (b *BarDB) EnsureTables() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	stmts := []string{
		fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s);", TableRawShort, rawColumns),
		fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s);", TableEnrichedShort, enrichedColumns),
		fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s);", TableSignalsShort, signalColumns),
		fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s);", TableRawLong, rawColumns),
		fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s);", TableEnrichedLong, enrichedColumns),
		fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s);", TableSignalsLong, signalColumns),
	}
	for _, stmt := range stmts {
		if _, err := b.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to create bar tables: %w", err)
		}
	}
	return nil
}

// HistoryRow is one historical observation used for z-score computation
type HistoryRow struct {
	Close    float64
	Volume   float64
	RangePct float64
}

// SymbolHistory returns all prior rows for a symbol from a raw bar table
func (b *BarDB) SymbolHistory(table, symbol string) ([]HistoryRow, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	rows, err := b.db.Query(
		fmt.Sprintf("SELECT close, volume, range_pct FROM %s WHERE symbol = ?", table),
		symbol,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var history []HistoryRow
	for rows.Next() {
		var h HistoryRow
		if err := rows.Scan(&h.Close, &h.Volume, &h.RangePct); err != nil {
			return nil, err
		}
		history = append(history, h)
	}
	return history, rows.Err()
}

// IngestStats summarizes what one master ingest inserted
type IngestStats struct {
	BarCount     int64
	MeanCloseZ   float64
	MaxVolumeZ   float64
	MeanRangePct float64
}

// MasterIngest consolidates every staging snapshot of one run into the bar
// tables in a single transaction (the single-writer phase). Shards that
// staged nothing simply contribute no rows; the ingest does not verify that
// all expected shard outputs are present.
func (b *BarDB) MasterIngest(runID, variant string, store *SnapshotStore) (*IngestStats, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	tables := TablesForVariant(variant)

	tx, err := b.db.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	stats := &IngestStats{}
	for _, table := range tables {
		snaps, err := store.ReadRun(runID, table)
		if err != nil {
			return nil, fmt.Errorf("staging read for %s failed: %w", table, err)
		}
		for _, snap := range snaps {
			if err := insertSnapshot(tx, table, snap); err != nil {
				return nil, fmt.Errorf("insert into %s failed: %w", table, err)
			}
		}
		if table == tables[0] {
			// One staging family per run; aggregate from the first table only
			// so rows are not triple counted.
			accumulate(stats, snaps)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return stats, nil
}

func accumulate(stats *IngestStats, snaps []Snapshot) {
	var closeZSum, rangeSum float64
	for _, s := range snaps {
		stats.BarCount++
		closeZSum += s.CloseZ
		rangeSum += s.RangePct
		if s.VolumeZ > stats.MaxVolumeZ {
			stats.MaxVolumeZ = s.VolumeZ
		}
	}
	if stats.BarCount > 0 {
		stats.MeanCloseZ = closeZSum / float64(stats.BarCount)
		stats.MeanRangePct = rangeSum / float64(stats.BarCount)
	}
}

func insertSnapshot(tx *sql.Tx, table string, snap Snapshot) error {
	base := []interface{}{
		snap.SnapshotID,
		snap.Timestamp.Format(SnapshotTimeLayout),
		snap.Symbol,
		snap.Open,
		snap.High,
		snap.Low,
		snap.Close,
		snap.Volume,
		snap.RangePct,
	}

	switch table {
	case TableRawShort, TableRawLong:
		_, err := tx.Exec(
			fmt.Sprintf("INSERT INTO %s VALUES (?,?,?,?,?,?,?,?,?)", table),
			base...,
		)
		return err
	case TableEnrichedShort, TableEnrichedLong:
		args := append(base, snap.CloseZ, snap.VolumeZ, snap.RangeZ,
			nil, nil, nil, nil, nil, nil, nil)
		_, err := tx.Exec(
			fmt.Sprintf("INSERT INTO %s VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)", table),
			args...,
		)
		return err
	case TableSignalsShort, TableSignalsLong:
		args := append(base, snap.CloseZ, snap.VolumeZ, snap.RangeZ,
			nil, nil, nil, nil, nil, nil, nil, nil)
		_, err := tx.Exec(
			fmt.Sprintf("INSERT INTO %s VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)", table),
			args...,
		)
		return err
	default:
		return fmt.Errorf("unknown bar table %s", table)
	}
}

// RetentionCleanup deletes rows older than the horizon's window: 3 days for
// the short tables, 35 days for the long tables.
func (b *BarDB) RetentionCleanup(variant string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	window := "-3 days"
	if variant == "longdb" {
		window = "-35 days"
	}
	for _, table := range TablesForVariant(variant) {
		_, err := b.db.Exec(
			fmt.Sprintf("DELETE FROM %s WHERE timestamp < datetime('now', ?)", table),
			window,
		)
		if err != nil {
			return fmt.Errorf("retention cleanup of %s failed: %w", table, err)
		}
	}
	return nil
}

// SignalRow is one execution signal row exposed through the API
type SignalRow struct {
	SnapshotID  string   `json:"snapshot_id"`
	Timestamp   string   `json:"timestamp"`
	Symbol      string   `json:"symbol"`
	Close       float64  `json:"close"`
	Volume      int64    `json:"volume"`
	RangePct    float64  `json:"range_pct"`
	CloseZ      float64  `json:"close_z"`
	VolumeZ     float64  `json:"volume_z"`
	RangeZ      float64  `json:"range_z"`
	OptRet1D    *float64 `json:"opt_ret_1d"`
	TradeSignal *bool    `json:"trade_signal"`
}

// LatestSignals returns the most recent execution signal rows for a horizon
func (b *BarDB) LatestSignals(variant string, limit int) ([]SignalRow, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	table := TableSignalsShort
	if variant == "longdb" {
		table = TableSignalsLong
	}
	if limit <= 0 {
		limit = 100
	}

	rows, err := b.db.Query(fmt.Sprintf(`
		SELECT snapshot_id, timestamp, symbol, close, volume, range_pct,
		       close_z, volume_z, range_z, opt_ret_1d, trade_signal
		FROM %s ORDER BY timestamp DESC LIMIT ?`, table), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SignalRow
	for rows.Next() {
		var r SignalRow
		if err := rows.Scan(&r.SnapshotID, &r.Timestamp, &r.Symbol, &r.Close, &r.Volume,
			&r.RangePct, &r.CloseZ, &r.VolumeZ, &r.RangeZ, &r.OptRet1D, &r.TradeSignal); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
