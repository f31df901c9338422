package bridge

import (
	"context"
	"errors"
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

func newTestSupervisor(t *testing.T) (*Supervisor, *memStore, *fakeLauncher) {
	t.Helper()
	store := newMemStore()
	launcher := &fakeLauncher{}
	mat := &Materializer{ConfigDir: t.TempDir(), ModelAPIKey: "test-key"}
	return NewSupervisor(store, launcher, mat), store, launcher
}

func seedAgent(store *memStore, agentID, portfolioID int64, active bool) {
	store.addAgent(&models.AgentConfig{
		ID:           agentID,
		UserID:       1,
		Name:         "momentum bot",
		ModelName:    "deepseek-chat",
		StrategyType: "momentum",
		IsActive:     active,
	})
	store.addPortfolio(&models.Portfolio{
		ID:            portfolioID,
		UserID:        1,
		AgentConfigID: &agentID,
		Name:          "main",
		InitialCash:   10000,
		CurrentCash:   10000,
		TotalValue:    10000,
		Holdings:      types.Holdings{types.CashKey: 10000},
	})
}

func TestStartSpawnsAndMarksRunning(t *testing.T) {
	sup, store, launcher := newTestSupervisor(t)
	seedAgent(store, 7, 3, true)

	status, err := sup.Start(context.Background(), 7)
	require.NoError(t, err)

	assert.True(t, status.Running)
	assert.Equal(t, "active", status.State)
	assert.Equal(t, 1007, status.PID)
	assert.NotNil(t, status.StartedAt)
	assert.Equal(t, 1, launcher.launchCount())
	assert.True(t, store.agentRunning(7))
	assert.Equal(t, filepath.Join(sup.materializer.ConfigDir, "agent-7.json"), launcher.lastPath)
}

func TestStartIsIdempotent(t *testing.T) {
	sup, store, launcher := newTestSupervisor(t)
	seedAgent(store, 7, 3, true)

	_, err := sup.Start(context.Background(), 7)
	require.NoError(t, err)

	status, err := sup.Start(context.Background(), 7)
	require.NoError(t, err)

	assert.True(t, status.Running)
	assert.Equal(t, 1, launcher.launchCount(), "second start must not spawn a second process")
}

func TestStartInactiveAgent(t *testing.T) {
	sup, store, launcher := newTestSupervisor(t)
	seedAgent(store, 7, 3, false)

	_, err := sup.Start(context.Background(), 7)
	assert.ErrorIs(t, err, ErrAgentInactive)
	assert.Equal(t, 0, launcher.launchCount())
	assert.False(t, store.agentRunning(7))
}

func TestStartUnknownAgent(t *testing.T) {
	sup, _, launcher := newTestSupervisor(t)

	_, err := sup.Start(context.Background(), 99)
	assert.True(t, database.IsNotFound(err))
	assert.Equal(t, 0, launcher.launchCount())
}

func TestStartWithoutPortfolio(t *testing.T) {
	sup, store, launcher := newTestSupervisor(t)
	store.addAgent(&models.AgentConfig{ID: 7, UserID: 1, IsActive: true})

	_, err := sup.Start(context.Background(), 7)
	assert.True(t, database.IsNotFound(err))
	assert.Equal(t, 0, launcher.launchCount())
	assert.False(t, store.agentRunning(7))
	assert.False(t, sup.IsLive(7))
}

func TestStartSpawnFailure(t *testing.T) {
	sup, store, launcher := newTestSupervisor(t)
	seedAgent(store, 7, 3, true)
	launcher.err = errors.New("executable not found")

	_, err := sup.Start(context.Background(), 7)

	var spawnErr *SpawnError
	require.ErrorAs(t, err, &spawnErr)
	assert.Equal(t, int64(7), spawnErr.AgentID)
	assert.False(t, store.agentRunning(7))
	assert.False(t, sup.IsLive(7))
}

func TestStartFlagCommitFailureKeepsProcess(t *testing.T) {
	sup, store, launcher := newTestSupervisor(t)
	seedAgent(store, 7, 3, true)
	store.markRunningErr = errors.New("connection reset")

	_, err := sup.Start(context.Background(), 7)
	require.Error(t, err)

	// The process is real, so the supervisor keeps tracking it; the monitor
	// loop reconciles the persisted flag later.
	assert.Equal(t, 1, launcher.launchCount())
	assert.True(t, sup.IsLive(7))
}

func TestStopNeverStartedAgent(t *testing.T) {
	sup, store, _ := newTestSupervisor(t)
	seedAgent(store, 7, 3, true)

	err := sup.Stop(context.Background(), 7)
	assert.NoError(t, err)
	assert.Empty(t, sup.LiveAgentIDs())
}

func TestStopTerminatesWithinGrace(t *testing.T) {
	sup, store, launcher := newTestSupervisor(t)
	seedAgent(store, 7, 3, true)

	_, err := sup.Start(context.Background(), 7)
	require.NoError(t, err)

	require.NoError(t, sup.Stop(context.Background(), 7))

	h := launcher.handles[0]
	assert.True(t, h.terminated)
	assert.False(t, h.killed, "process exiting on terminate must not be killed")
	assert.False(t, sup.IsLive(7))
	assert.False(t, store.agentRunning(7))

	_, err = os.Stat(launcher.lastPath)
	assert.Error(t, err, "config file should be removed on stop")
}

func TestStopEscalatesToKill(t *testing.T) {
	sup, store, launcher := newTestSupervisor(t)
	seedAgent(store, 7, 3, true)

	_, err := sup.Start(context.Background(), 7)
	require.NoError(t, err)

	launcher.handles[0].exitOnTerminate = false

	require.NoError(t, sup.Stop(context.Background(), 7))

	h := launcher.handles[0]
	assert.True(t, h.terminated)
	assert.True(t, h.killed)
	assert.Equal(t, StateKilled, h.State())
	assert.False(t, sup.IsLive(7))
}

func TestStatusReflectsCrash(t *testing.T) {
	sup, store, launcher := newTestSupervisor(t)
	seedAgent(store, 7, 3, true)

	_, err := sup.Start(context.Background(), 7)
	require.NoError(t, err)

	launcher.handles[0].simulateExit(2)

	status := sup.Status(7)
	assert.True(t, status.Running, "entry stays live until the monitor reaps it")
	assert.Equal(t, "crashed", status.State)
}

func TestStatusNotRunning(t *testing.T) {
	sup, _, _ := newTestSupervisor(t)

	status := sup.Status(42)
	assert.False(t, status.Running)
	assert.Zero(t, status.PID)
}

func TestReapExited(t *testing.T) {
	sup, store, launcher := newTestSupervisor(t)
	seedAgent(store, 7, 3, true)
	seedAgent(store, 8, 4, true)

	_, err := sup.Start(context.Background(), 7)
	require.NoError(t, err)
	_, err = sup.Start(context.Background(), 8)
	require.NoError(t, err)

	launcher.handles[0].simulateExit(1)

	dead := sup.ReapExited()
	require.Len(t, dead, 1)
	assert.Equal(t, int64(7), dead[0].AgentID)
	assert.Equal(t, 1, dead[0].ExitCode)
	assert.False(t, sup.IsLive(7))
	assert.True(t, sup.IsLive(8))
}

func TestStopAll(t *testing.T) {
	sup, store, _ := newTestSupervisor(t)
	seedAgent(store, 7, 3, true)
	seedAgent(store, 8, 4, true)

	_, err := sup.Start(context.Background(), 7)
	require.NoError(t, err)
	_, err = sup.Start(context.Background(), 8)
	require.NoError(t, err)

	sup.StopAll(context.Background())

	assert.Empty(t, sup.LiveAgentIDs())
	assert.False(t, store.agentRunning(7))
	assert.False(t, store.agentRunning(8))
}

func TestStartStopLifecycle(t *testing.T) {
	sup, store, launcher := newTestSupervisor(t)
	seedAgent(store, 7, 3, true)

	status, err := sup.Start(context.Background(), 7)
	require.NoError(t, err)
	assert.True(t, status.Running)
	assert.True(t, store.agentRunning(7))
	cfg, _ := store.AgentConfig(context.Background(), 7)
	require.NotNil(t, cfg.LastStartedAt)
	assert.WithinDuration(t, time.Now(), *cfg.LastStartedAt, 5*time.Second)

	require.NoError(t, sup.Stop(context.Background(), 7))
	assert.False(t, store.agentRunning(7))
	cfg, _ = store.AgentConfig(context.Background(), 7)
	require.NotNil(t, cfg.LastStoppedAt)
	assert.Equal(t, 1, launcher.launchCount())
}
