package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func snapshotAt(symbol string, ts time.Time, close float64, closeZ float64) Snapshot {
	bar := &Bar{Symbol: symbol, Open: close, High: close, Low: close, Close: close, Volume: 1000}
	s := NewSnapshot(bar, ts)
	s.CloseZ = closeZ
	return s
}

func enrichedOptRet1D(t *testing.T, db *BarDB, snapshotID string) *float64 {
	t.Helper()
	var v *float64
	err := db.db.QueryRow(
		"SELECT opt_ret_1d FROM "+TableEnrichedShort+" WHERE snapshot_id = ?",
		snapshotID,
	).Scan(&v)
	require.NoError(t, err)
	return v
}

func TestFillReturnLabelsOneDayReturn(t *testing.T) {
	db := openTestBarDB(t)
	store := NewSnapshotStore(t.TempDir())

	base := time.Date(2026, 1, 5, 14, 55, 0, 0, time.UTC)
	baseSnap := snapshotAt("AAPL", base, 100, 2.0)
	nextDay := snapshotAt("AAPL", base.Add(25*time.Hour), 110, 0)

	stageRun(t, store, "r1", "shortdb", 0, baseSnap, nextDay)
	_, err := db.MasterIngest("r1", "shortdb", store)
	require.NoError(t, err)

	require.NoError(t, FillReturnLabels(db, "shortdb"))

	ret := enrichedOptRet1D(t, db, baseSnap.SnapshotID)
	require.NotNil(t, ret)
	assert.InDelta(t, 0.10, *ret, 1e-9, "(110-100)/100")
}

func TestFillReturnLabelsLeavesUnelapsedHorizonsNull(t *testing.T) {
	db := openTestBarDB(t)
	store := NewSnapshotStore(t.TempDir())

	base := time.Date(2026, 1, 5, 14, 55, 0, 0, time.UTC)
	baseSnap := snapshotAt("AAPL", base, 100, 0)
	tenMinLater := snapshotAt("AAPL", base.Add(10*time.Minute), 101, 0)

	stageRun(t, store, "r1", "shortdb", 0, baseSnap, tenMinLater)
	_, err := db.MasterIngest("r1", "shortdb", store)
	require.NoError(t, err)
	require.NoError(t, FillReturnLabels(db, "shortdb"))

	// 10 minute horizon has elapsed, 1 day has not.
	var tenMin *float64
	require.NoError(t, db.db.QueryRow(
		"SELECT opt_ret_10m FROM "+TableEnrichedShort+" WHERE snapshot_id = ?",
		baseSnap.SnapshotID,
	).Scan(&tenMin))
	require.NotNil(t, tenMin)
	assert.InDelta(t, 0.01, *tenMin, 1e-9)

	assert.Nil(t, enrichedOptRet1D(t, db, baseSnap.SnapshotID))
}

func TestFillReturnLabelsDoesNotCrossSymbols(t *testing.T) {
	db := openTestBarDB(t)
	store := NewSnapshotStore(t.TempDir())

	base := time.Date(2026, 1, 5, 14, 55, 0, 0, time.UTC)
	aapl := snapshotAt("AAPL", base, 100, 0)
	msftLater := snapshotAt("MSFT", base.Add(25*time.Hour), 500, 0)

	stageRun(t, store, "r1", "shortdb", 0, aapl, msftLater)
	_, err := db.MasterIngest("r1", "shortdb", store)
	require.NoError(t, err)
	require.NoError(t, FillReturnLabels(db, "shortdb"))

	assert.Nil(t, enrichedOptRet1D(t, db, aapl.SnapshotID),
		"another symbol's future bar must not label AAPL")
}

func TestMarkTradeSignals(t *testing.T) {
	db := openTestBarDB(t)
	store := NewSnapshotStore(t.TempDir())

	base := time.Date(2026, 1, 5, 14, 55, 0, 0, time.UTC)
	outlier := snapshotAt("HOT", base, 100, 3.0)
	quiet := snapshotAt("COLD", base, 50, 0.1)
	outlierNext := snapshotAt("HOT", base.Add(25*time.Hour), 112, 0)
	quietNext := snapshotAt("COLD", base.Add(25*time.Hour), 51, 0)

	stageRun(t, store, "r1", "shortdb", 0, outlier, quiet, outlierNext, quietNext)
	_, err := db.MasterIngest("r1", "shortdb", store)
	require.NoError(t, err)

	require.NoError(t, FillReturnLabels(db, "shortdb"))
	require.NoError(t, MarkTradeSignals(db, "shortdb", 2.0))

	signals, err := db.LatestSignals("shortdb", 10)
	require.NoError(t, err)

	byID := map[string]SignalRow{}
	for _, s := range signals {
		byID[s.SnapshotID] = s
	}

	hot := byID[outlier.SnapshotID]
	require.NotNil(t, hot.TradeSignal)
	assert.True(t, *hot.TradeSignal, "z outlier with positive forward return fires")

	cold := byID[quiet.SnapshotID]
	require.NotNil(t, cold.TradeSignal)
	assert.False(t, *cold.TradeSignal)

	// Rows without an elapsed 1 day horizon stay unmarked.
	assert.Nil(t, byID[outlierNext.SnapshotID].TradeSignal)
}
