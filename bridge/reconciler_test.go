package bridge

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ai-trader-platform/database"
	models "ai-trader-platform/database/models_pkg"
	"ai-trader-platform/database/types"
)

func newTestReconciler(t *testing.T, prices *staticPrices) (*Reconciler, *memStore, string) {
	t.Helper()
	store := newMemStore()
	dataDir := t.TempDir()
	if prices == nil {
		prices = &staticPrices{defaultPrice: 100}
	}
	return NewReconciler(store, prices, dataDir), store, dataDir
}

func seedPortfolio(store *memStore, id int64) *models.Portfolio {
	p := &models.Portfolio{
		ID:          id,
		UserID:      1,
		Name:        "main",
		InitialCash: 10000,
		CurrentCash: 10000,
		TotalValue:  10000,
		Holdings:    types.Holdings{types.CashKey: 10000},
	}
	store.addPortfolio(p)
	return p
}

func writeDataFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestReconcileNoSnapshotFile(t *testing.T) {
	rec, store, _ := newTestReconciler(t, nil)
	seedPortfolio(store, 3)

	result, err := rec.Reconcile(context.Background(), 3)
	require.NoError(t, err)

	assert.Equal(t, SyncNoData, result.Status)
	assert.Zero(t, result.TradesSynced)

	// Portfolio untouched.
	p, _ := store.Portfolio(context.Background(), 3)
	assert.Equal(t, float64(10000), p.TotalValue)
	assert.Equal(t, float64(10000), p.CurrentCash)
}

func TestReconcileEmptySnapshotFile(t *testing.T) {
	rec, store, dataDir := newTestReconciler(t, nil)
	seedPortfolio(store, 3)
	writeDataFile(t, filepath.Join(dataDir, "portfolio-3"), "position.jsonl", "\n\n")

	result, err := rec.Reconcile(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, SyncNoData, result.Status)
}

func TestReconcileUnknownPortfolio(t *testing.T) {
	rec, _, _ := newTestReconciler(t, nil)

	_, err := rec.Reconcile(context.Background(), 99)
	assert.True(t, database.IsNotFound(err))
}

func TestReconcileValuesLastSnapshot(t *testing.T) {
	prices := &staticPrices{prices: map[string]float64{"AAPL": 150}}
	rec, store, dataDir := newTestReconciler(t, prices)
	seedPortfolio(store, 3)

	dir := filepath.Join(dataDir, "portfolio-3")
	writeDataFile(t, dir, "position.jsonl",
		`{"timestamp":"2026-08-27T10:00:00Z","positions":{"CASH":10000}}
{"timestamp":"2026-08-27T15:30:00Z","positions":{"CASH":0,"AAPL":10}}
`)
	writeDataFile(t, dir, "trades.jsonl",
		`{"symbol":"AAPL","action":"buy","quantity":10,"price":150,"timestamp":"2026-08-27T15:30:00Z"}
`)

	result, err := rec.Reconcile(context.Background(), 3)
	require.NoError(t, err)

	assert.Equal(t, SyncSuccess, result.Status)
	assert.Equal(t, float64(1500), result.TotalValue)
	assert.Equal(t, 1, result.TradesSynced)
	assert.Equal(t, float64(10), result.Holdings["AAPL"])

	p, _ := store.Portfolio(context.Background(), 3)
	assert.Equal(t, float64(0), p.CurrentCash)
	assert.Equal(t, float64(1500), p.TotalValue)
	assert.Equal(t, float64(1500-10000), p.TotalReturn)
	assert.InDelta(t, -85.0, p.TotalReturnPct, 0.001)

	require.Equal(t, 1, store.tradeCount())
	trade := store.trades[0]
	assert.Equal(t, models.TradeStatusExecuted, trade.Status)
	assert.Equal(t, models.TradeTypeBuy, trade.TradeType)
	assert.Equal(t, float64(1500), trade.TotalValue)
	require.NotNil(t, trade.ExecutedAt)
	assert.Equal(t, time.Date(2026, 8, 27, 15, 30, 0, 0, time.UTC), trade.ExecutedAt.UTC())
}

func TestReconcileDeduplicatesTrades(t *testing.T) {
	rec, store, dataDir := newTestReconciler(t, &staticPrices{defaultPrice: 50})
	seedPortfolio(store, 3)

	dir := filepath.Join(dataDir, "portfolio-3")
	writeDataFile(t, dir, "position.jsonl",
		`{"timestamp":"2026-08-27T16:00:00Z","positions":{"CASH":5000,"MSFT":20}}
`)

	var lines string
	for i := 0; i < 5; i++ {
		lines += fmt.Sprintf(`{"symbol":"MSFT","action":"buy","quantity":4,"price":50,"timestamp":"2026-08-27T1%d:00:00Z"}`+"\n", i)
	}
	writeDataFile(t, dir, "trades.jsonl", lines)

	// Two of the five already imported.
	for _, hour := range []int{10, 12} {
		ts := time.Date(2026, 8, 27, hour, 0, 0, 0, time.UTC)
		store.trades = append(store.trades, &models.Trade{
			PortfolioID: 3, Symbol: "MSFT", ExecutedAt: &ts,
		})
	}

	result, err := rec.Reconcile(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, 3, result.TradesSynced)
	assert.Equal(t, 5, store.tradeCount())

	// A second pass imports nothing new.
	result, err = rec.Reconcile(context.Background(), 3)
	require.NoError(t, err)
	assert.Zero(t, result.TradesSynced)
	assert.Equal(t, 5, store.tradeCount())
}

func TestReconcilePrefersTradeID(t *testing.T) {
	rec, store, dataDir := newTestReconciler(t, &staticPrices{defaultPrice: 50})
	seedPortfolio(store, 3)

	dir := filepath.Join(dataDir, "portfolio-3")
	writeDataFile(t, dir, "position.jsonl",
		`{"timestamp":"2026-08-27T16:00:00Z","positions":{"CASH":9000,"NVDA":2}}
`)
	// Same symbol and timestamp, distinct trade ids: both must import.
	writeDataFile(t, dir, "trades.jsonl",
		`{"trade_id":"t-1","symbol":"NVDA","action":"buy","quantity":1,"price":500,"timestamp":"2026-08-27T15:00:00Z"}
{"trade_id":"t-2","symbol":"NVDA","action":"buy","quantity":1,"price":500,"timestamp":"2026-08-27T15:00:00Z"}
`)

	result, err := rec.Reconcile(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, 2, result.TradesSynced)

	result, err = rec.Reconcile(context.Background(), 3)
	require.NoError(t, err)
	assert.Zero(t, result.TradesSynced)
}

func TestReconcileSkipsMalformedLines(t *testing.T) {
	rec, store, dataDir := newTestReconciler(t, &staticPrices{defaultPrice: 10})
	seedPortfolio(store, 3)

	dir := filepath.Join(dataDir, "portfolio-3")
	writeDataFile(t, dir, "position.jsonl",
		`not json at all
{"timestamp":"2026-08-27T16:00:00Z","positions":{"CASH":100}}
{"timestamp":"2026-08-27T16:05:00Z","posi`)
	writeDataFile(t, dir, "trades.jsonl",
		`{"symbol":"TSLA","action":"buy","quantity":1,"price":10,"timestamp":"garbage"}
{"symbol":"TSLA","action":"buy","quantity":1,"price":10,"timestamp":"2026-08-27T16:00:00"}
`)

	result, err := rec.Reconcile(context.Background(), 3)
	require.NoError(t, err)

	// Torn trailing line skipped; the complete middle snapshot wins.
	assert.Equal(t, SyncSuccess, result.Status)
	assert.Equal(t, float64(100), result.TotalValue)
	// Bad-timestamp record skipped, zone-less timestamp accepted as UTC.
	assert.Equal(t, 1, result.TradesSynced)
	require.NotNil(t, store.trades[0].ExecutedAt)
	assert.Equal(t, time.Date(2026, 8, 27, 16, 0, 0, 0, time.UTC), store.trades[0].ExecutedAt.UTC())
}

func TestReconcileMultipleTradeLogs(t *testing.T) {
	rec, store, dataDir := newTestReconciler(t, &staticPrices{defaultPrice: 10})
	seedPortfolio(store, 3)

	dir := filepath.Join(dataDir, "portfolio-3")
	writeDataFile(t, dir, "position.jsonl",
		`{"timestamp":"2026-08-27T16:00:00Z","positions":{"CASH":500}}
`)
	writeDataFile(t, dir, "trades.jsonl",
		`{"symbol":"AMD","action":"buy","quantity":1,"price":10,"timestamp":"2026-08-26T10:00:00Z"}
`)
	writeDataFile(t, dir, "trades-2026-08-27.jsonl",
		`{"symbol":"AMD","action":"sell","quantity":1,"price":12,"timestamp":"2026-08-27T10:00:00Z"}
`)

	result, err := rec.Reconcile(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, 2, result.TradesSynced)
	assert.Equal(t, 2, store.tradeCount())
}

func TestReconcilePriceLookupFailure(t *testing.T) {
	rec, store, dataDir := newTestReconciler(t, &staticPrices{prices: map[string]float64{}})
	seedPortfolio(store, 3)

	writeDataFile(t, filepath.Join(dataDir, "portfolio-3"), "position.jsonl",
		`{"timestamp":"2026-08-27T16:00:00Z","positions":{"CASH":100,"AAPL":1}}
`)

	_, err := rec.Reconcile(context.Background(), 3)
	require.Error(t, err)

	// Valuation not persisted on failure.
	p, _ := store.Portfolio(context.Background(), 3)
	assert.Equal(t, float64(10000), p.TotalValue)
}
