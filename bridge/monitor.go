package bridge

import (
	"context"
	"log"
	"time"

	"ai-trader-platform/database"
)

// Monitor loop defaults.
const (
	defaultSweepInterval = 5 * time.Minute
	defaultErrorBackoff  = time.Minute
	recentStopWindow     = time.Hour
)

// MonitorStore is the persistence surface the monitor loop needs.
// Satisfied by *database.Repository.
type MonitorStore interface {
	MarkAgentStopped(ctx context.Context, id int64, stoppedAt time.Time) error
	RunningAgentIDs(ctx context.Context) ([]int64, error)
	PortfolioIDsWithAgentActivity(ctx context.Context, stoppedAfter time.Time) ([]int64, error)
}

// Monitor is the background liveness and reconciliation loop. Each
// iteration reaps dead agent processes, repairs persisted running flags,
// and reconciles every portfolio with recent agent activity. A failed
// iteration is logged and retried after a short backoff; the loop itself
// only exits on context cancellation.
type Monitor struct {
	supervisor *Supervisor
	reconciler *Reconciler
	store      MonitorStore
	interval   time.Duration
	backoff    time.Duration
}

// NewMonitor creates the monitor loop. Non-positive durations fall back to
// the defaults (5 minute sweep, 1 minute error backoff).
func NewMonitor(supervisor *Supervisor, reconciler *Reconciler, store MonitorStore, interval, backoff time.Duration) *Monitor {
	if interval <= 0 {
		interval = defaultSweepInterval
	}
	if backoff <= 0 {
		backoff = defaultErrorBackoff
	}
	return &Monitor{
		supervisor: supervisor,
		reconciler: reconciler,
		store:      store,
		interval:   interval,
		backoff:    backoff,
	}
}

// Run blocks until ctx is cancelled. Cancellation is checked at each
// iteration boundary and interrupts the sleeps, so shutdown is prompt. On
// cancellation the loop exits without touching persisted flags: agents
// still supervised stay is_running=true unless the supervisor is also
// shutting them down, so a future instance knows to reconcile.
func (m *Monitor) Run(ctx context.Context) {
	log.Println("🔄 Agent monitor started")

	for {
		if ctx.Err() != nil {
			log.Println("🔄 Agent monitor stopped")
			return
		}

		if err := m.Sweep(ctx); err != nil {
			log.Printf("⚠️  Monitor sweep failed: %v", err)
			if !sleep(ctx, m.backoff) {
				log.Println("🔄 Agent monitor stopped")
				return
			}
			continue
		}

		if !sleep(ctx, m.interval) {
			log.Println("🔄 Agent monitor stopped")
			return
		}
	}
}

// Sweep performs one monitor iteration. Exported so the sync API endpoint
// and tests can trigger an immediate pass.
func (m *Monitor) Sweep(ctx context.Context) error {
	now := time.Now()

	// 1. Reap processes that died while we weren't looking.
	for _, dead := range m.supervisor.ReapExited() {
		log.Printf("⚠️  Agent %d process died (exit code %d)", dead.AgentID, dead.ExitCode)
		if err := m.store.MarkAgentStopped(ctx, dead.AgentID, now); err != nil {
			return err
		}
	}

	// 2. Repair flags left behind by a previous supervisor instance (or a
	// crash between spawn and commit). Liveness is in-memory only, so a
	// persisted running flag without a live entry is stale by definition.
	runningIDs, err := m.store.RunningAgentIDs(ctx)
	if err != nil {
		return err
	}
	for _, agentID := range runningIDs {
		if !m.supervisor.IsLive(agentID) {
			log.Printf("⚠️  Agent %d marked running but not supervised, clearing flag", agentID)
			if err := m.store.MarkAgentStopped(ctx, agentID, now); err != nil {
				return err
			}
		}
	}

	// 3. Reconcile portfolios with running or recently-stopped agents.
	portfolioIDs, err := m.store.PortfolioIDsWithAgentActivity(ctx, now.Add(-recentStopWindow))
	if err != nil {
		return err
	}
	for _, portfolioID := range portfolioIDs {
		if ctx.Err() != nil {
			return nil
		}
		result, err := m.reconciler.Reconcile(ctx, portfolioID)
		if err != nil {
			if database.IsNotFound(err) {
				continue
			}
			return err
		}
		if result.TradesSynced > 0 {
			log.Printf("📈 Synced %d trades for portfolio %d (value %.2f)", result.TradesSynced, portfolioID, result.TotalValue)
		}
	}

	return nil
}

// sleep waits for d or until ctx is cancelled. Returns false on
// cancellation.
func sleep(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}
