package services

import (
	"fmt"
	"log"
)

// labelRule describes one forward-return column: which future raw bar to
// price the return against. Ascending order takes the first qualifying bar,
// descending the last (used for end-of-day).
type labelRule struct {
	Column    string
	Condition string // against f (future bar) and base (labeled row)
	OrderDir  string // ASC or DESC
}

// labelRules are the seven forward-return horizons, matching the columns on
// the enriched and signal tables.
var labelRules = []labelRule{
	{"opt_ret_10m", "f.timestamp >= datetime(base.timestamp, '+10 minutes')", "ASC"},
	{"opt_ret_1h", "f.timestamp >= datetime(base.timestamp, '+1 hour')", "ASC"},
	{"opt_ret_eod", "DATE(f.timestamp) = DATE(base.timestamp)", "DESC"},
	{"opt_ret_next_open", "DATE(f.timestamp) > DATE(base.timestamp)", "ASC"},
	{"opt_ret_1d", "f.timestamp >= datetime(base.timestamp, '+1 day')", "ASC"},
	{"opt_ret_2d", "f.timestamp >= datetime(base.timestamp, '+2 days')", "ASC"},
	{"opt_ret_3d", "f.timestamp >= datetime(base.timestamp, '+3 days')", "ASC"},
}

// FillReturnLabels fills every unlabeled forward-return column for one
// horizon, on both the enriched and the execution signal tables. The return
// is (future close - close) / close against the first (or last, for EOD)
// qualifying bar in the horizon's raw table. Rows whose horizon has not
// elapsed yet stay NULL and are picked up by a later pass.
func FillReturnLabels(db *BarDB, variant string) error {
	rawTable := TableRawShort
	targets := []string{TableEnrichedShort, TableSignalsShort}
	if variant == "longdb" {
		rawTable = TableRawLong
		targets = []string{TableEnrichedLong, TableSignalsLong}
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	for _, target := range targets {
		for _, rule := range labelRules {
			stmt := fmt.Sprintf(`
				UPDATE %[1]s AS base
				SET %[2]s = (
					SELECT (f.close - base.close) / base.close
					FROM %[3]s AS f
					WHERE f.symbol = base.symbol
					  AND base.close != 0
					  AND %[4]s
					ORDER BY f.timestamp %[5]s
					LIMIT 1
				)
				WHERE base.%[2]s IS NULL`,
				target, rule.Column, rawTable, rule.Condition, rule.OrderDir)

			res, err := db.db.Exec(stmt)
			if err != nil {
				return fmt.Errorf("labeling %s.%s failed: %w", target, rule.Column, err)
			}
			if n, err := res.RowsAffected(); err == nil && n > 0 {
				log.Printf("Labeled %s.%s for %d rows", target, rule.Column, n)
			}
		}
	}
	return nil
}

// MarkTradeSignals sets the trade_signal flag on fully labeled signal rows:
// a signal fires when the bar was a statistical outlier (|close_z| or
// volume_z beyond threshold) and the 1-day forward return is positive.
func MarkTradeSignals(db *BarDB, variant string, zThreshold float64) error {
	table := TableSignalsShort
	if variant == "longdb" {
		table = TableSignalsLong
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	stmt := fmt.Sprintf(`
		UPDATE %s
		SET trade_signal = (ABS(close_z) >= ? OR volume_z >= ?) AND opt_ret_1d > 0
		WHERE trade_signal IS NULL AND opt_ret_1d IS NOT NULL`, table)
	res, err := db.db.Exec(stmt, zThreshold, zThreshold)
	if err != nil {
		return fmt.Errorf("marking trade signals on %s failed: %w", table, err)
	}
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		log.Printf("Marked trade_signal on %d rows in %s", n, table)
	}
	return nil
}
