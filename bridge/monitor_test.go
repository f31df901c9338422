package bridge

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMonitor(t *testing.T) (*Monitor, *Supervisor, *memStore, *fakeLauncher, string) {
	t.Helper()
	store := newMemStore()
	launcher := &fakeLauncher{}
	mat := &Materializer{ConfigDir: t.TempDir()}
	sup := NewSupervisor(store, launcher, mat)
	dataDir := t.TempDir()
	rec := NewReconciler(store, &staticPrices{defaultPrice: 100}, dataDir)
	mon := NewMonitor(sup, rec, store, time.Minute, time.Second)
	return mon, sup, store, launcher, dataDir
}

func TestSweepReapsDeadProcess(t *testing.T) {
	mon, sup, store, launcher, _ := newTestMonitor(t)
	seedAgent(store, 7, 3, true)

	_, err := sup.Start(context.Background(), 7)
	require.NoError(t, err)
	require.True(t, store.agentRunning(7))

	launcher.handles[0].simulateExit(1)

	require.NoError(t, mon.Sweep(context.Background()))

	assert.False(t, sup.IsLive(7))
	assert.False(t, store.agentRunning(7), "dead process must flip the persisted flag")
}

func TestSweepRepairsStaleRunningFlag(t *testing.T) {
	mon, sup, store, _, _ := newTestMonitor(t)
	seedAgent(store, 7, 3, true)

	// Flag persisted by a previous instance; nothing is actually supervised.
	now := time.Now()
	require.NoError(t, store.MarkAgentRunning(context.Background(), 7, now))
	require.False(t, sup.IsLive(7))

	require.NoError(t, mon.Sweep(context.Background()))

	assert.False(t, store.agentRunning(7))
}

func TestSweepLeavesHealthyAgentAlone(t *testing.T) {
	mon, sup, store, _, _ := newTestMonitor(t)
	seedAgent(store, 7, 3, true)

	_, err := sup.Start(context.Background(), 7)
	require.NoError(t, err)

	require.NoError(t, mon.Sweep(context.Background()))

	assert.True(t, sup.IsLive(7))
	assert.True(t, store.agentRunning(7))
}

func TestSweepReconcilesActivePortfolios(t *testing.T) {
	mon, sup, store, _, dataDir := newTestMonitor(t)
	seedAgent(store, 7, 3, true)

	_, err := sup.Start(context.Background(), 7)
	require.NoError(t, err)

	dir := filepath.Join(dataDir, "portfolio-3")
	writeDataFile(t, dir, "position.jsonl",
		`{"timestamp":"2026-08-27T16:00:00Z","positions":{"CASH":200,"AAPL":2}}
`)
	writeDataFile(t, dir, "trades.jsonl",
		`{"symbol":"AAPL","action":"buy","quantity":2,"price":100,"timestamp":"2026-08-27T16:00:00Z"}
`)

	require.NoError(t, mon.Sweep(context.Background()))

	p, _ := store.Portfolio(context.Background(), 3)
	assert.Equal(t, float64(400), p.TotalValue)
	assert.Equal(t, 1, store.tradeCount())
}

func TestSweepReconcilesRecentlyStoppedAgent(t *testing.T) {
	mon, sup, store, _, dataDir := newTestMonitor(t)
	seedAgent(store, 7, 3, true)

	_, err := sup.Start(context.Background(), 7)
	require.NoError(t, err)
	require.NoError(t, sup.Stop(context.Background(), 7))

	// Final logs written just before shutdown still get imported.
	writeDataFile(t, filepath.Join(dataDir, "portfolio-3"), "position.jsonl",
		`{"timestamp":"2026-08-27T16:00:00Z","positions":{"CASH":9000}}
`)

	require.NoError(t, mon.Sweep(context.Background()))

	p, _ := store.Portfolio(context.Background(), 3)
	assert.Equal(t, float64(9000), p.TotalValue)
}

func TestSweepSkipsIdlePortfolios(t *testing.T) {
	mon, _, store, _, dataDir := newTestMonitor(t)
	seedAgent(store, 7, 3, true)

	// Agent never started and never recently stopped: snapshot is ignored.
	writeDataFile(t, filepath.Join(dataDir, "portfolio-3"), "position.jsonl",
		`{"timestamp":"2026-08-27T16:00:00Z","positions":{"CASH":1}}
`)

	require.NoError(t, mon.Sweep(context.Background()))

	p, _ := store.Portfolio(context.Background(), 3)
	assert.Equal(t, float64(10000), p.TotalValue)
}

func TestSweepReturnsStoreError(t *testing.T) {
	mon, sup, store, launcher, _ := newTestMonitor(t)
	seedAgent(store, 7, 3, true)

	_, err := sup.Start(context.Background(), 7)
	require.NoError(t, err)
	launcher.handles[0].simulateExit(1)
	store.markStoppedErr = errors.New("connection refused")

	assert.Error(t, mon.Sweep(context.Background()))
}

func TestRunStopsOnCancel(t *testing.T) {
	mon, _, _, _, _ := newTestMonitor(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		mon.Run(ctx)
		close(done)
	}()

	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("monitor did not stop after context cancellation")
	}
}

func TestMonitorDefaults(t *testing.T) {
	mon := NewMonitor(nil, nil, nil, 0, 0)
	assert.Equal(t, defaultSweepInterval, mon.interval)
	assert.Equal(t, defaultErrorBackoff, mon.backoff)
}
