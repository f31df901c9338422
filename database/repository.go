package database

import (
	"context"
	"fmt"
	"time"

	"ai-trader-platform/database/agents"
	models "ai-trader-platform/database/models_pkg"
	"ai-trader-platform/database/portfolios"
	"ai-trader-platform/database/subscriptions"
	"ai-trader-platform/database/trades"
	"ai-trader-platform/database/users"
)

// Repository aggregates the per-entity repositories behind one handle and
// translates GORM errors into the platform error taxonomy. Anything that
// needs persistence takes a *Repository (or a narrower interface satisfied
// by it).
type Repository struct {
	db            *Database
	Users         *users.Repository
	Subscriptions *subscriptions.Repository
	Portfolios    *portfolios.Repository
	Agents        *agents.Repository
	Trades        *trades.Repository
}

// NewRepository creates the repository facade
func NewRepository(db *Database) *Repository {
	gdb := db.DB()
	return &Repository{
		db:            db,
		Users:         users.NewRepository(gdb),
		Subscriptions: subscriptions.NewRepository(gdb),
		Portfolios:    portfolios.NewRepository(gdb),
		Agents:        agents.NewRepository(gdb),
		Trades:        trades.NewRepository(gdb),
	}
}

// InitSchema performs auto-migration and creates the indexes GORM tags
// cannot express.
func (r *Repository) InitSchema() error {
	fmt.Println("🔄 Starting database schema initialization...")

	err := r.db.db.AutoMigrate(
		&models.User{},
		&models.Subscription{},
		&models.AgentConfig{},
		&models.Portfolio{},
		&models.Trade{},
	)
	if err != nil {
		return fmt.Errorf("auto-migration failed: %w", err)
	}

	// Import identity for reconciled trades: one row per
	// (portfolio, symbol, executed_at). Partial so direct API trades with
	// a NULL executed_at are unaffected.
	if err := r.db.db.Exec(`
		CREATE UNIQUE INDEX IF NOT EXISTS idx_trades_import_identity
		ON trades (portfolio_id, symbol, executed_at)
		WHERE executed_at IS NOT NULL
	`).Error; err != nil {
		return fmt.Errorf("failed to create trade import index: %w", err)
	}

	// Broker trade ids are globally unique when present.
	if err := r.db.db.Exec(`
		CREATE UNIQUE INDEX IF NOT EXISTS idx_trades_broker_trade_id
		ON trades (broker_trade_id)
		WHERE broker_trade_id <> ''
	`).Error; err != nil {
		return fmt.Errorf("failed to create broker trade id index: %w", err)
	}

	fmt.Println("✅ Database schema ready")
	return nil
}

// ============================================================================
// Bridge-facing accessors
//
// These wrap the sub-repositories with taxonomy translation so the process
// supervisor, reconciler and monitor loop can branch on NotFoundError
// instead of GORM internals.
// ============================================================================

// AgentConfig retrieves an agent configuration
func (r *Repository) AgentConfig(ctx context.Context, id int64) (*models.AgentConfig, error) {
	cfg, err := r.Agents.Get(ctx, id)
	if err != nil {
		return nil, WrapDBError("AgentConfig", "agent config", id, err)
	}
	return cfg, nil
}

// Portfolio retrieves a portfolio
func (r *Repository) Portfolio(ctx context.Context, id int64) (*models.Portfolio, error) {
	p, err := r.Portfolios.Get(ctx, id)
	if err != nil {
		return nil, WrapDBError("Portfolio", "portfolio", id, err)
	}
	return p, nil
}

// PortfolioByAgent retrieves the portfolio linked to an agent configuration
func (r *Repository) PortfolioByAgent(ctx context.Context, agentConfigID int64) (*models.Portfolio, error) {
	p, err := r.Portfolios.GetByAgent(ctx, agentConfigID)
	if err != nil {
		return nil, WrapDBError("PortfolioByAgent", "portfolio for agent", agentConfigID, err)
	}
	return p, nil
}

// MarkAgentRunning persists is_running=true with the start timestamp
func (r *Repository) MarkAgentRunning(ctx context.Context, id int64, startedAt time.Time) error {
	return WrapDBError("MarkAgentRunning", "agent config", id, r.Agents.MarkRunning(ctx, id, startedAt))
}

// MarkAgentStopped persists is_running=false with the stop timestamp
func (r *Repository) MarkAgentStopped(ctx context.Context, id int64, stoppedAt time.Time) error {
	return WrapDBError("MarkAgentStopped", "agent config", id, r.Agents.MarkStopped(ctx, id, stoppedAt))
}

// SavePortfolioValuation persists reconciled holdings and valuation fields
func (r *Repository) SavePortfolioValuation(ctx context.Context, p *models.Portfolio) error {
	return WrapDBError("SavePortfolioValuation", "portfolio", p.ID, r.Portfolios.SaveValuation(ctx, p))
}

// TradeExists reports whether an imported trade already exists
func (r *Repository) TradeExists(ctx context.Context, portfolioID int64, symbol string, executedAt time.Time, brokerTradeID string) (bool, error) {
	return r.Trades.Exists(ctx, portfolioID, symbol, executedAt, brokerTradeID)
}

// InsertTrade saves an imported or API-submitted trade
func (r *Repository) InsertTrade(ctx context.Context, trade *models.Trade) error {
	return WrapDBError("InsertTrade", "trade", nil, r.Trades.Insert(ctx, trade))
}

// RunningAgentIDs lists agent configs persisted as running, used by the
// monitor loop to repair flags left behind by a previous supervisor instance
func (r *Repository) RunningAgentIDs(ctx context.Context) ([]int64, error) {
	return r.Agents.RunningIDs(ctx)
}

// PortfolioIDsWithAgentActivity lists portfolios the monitor loop should
// reconcile: agent running, or stopped after the cutoff
func (r *Repository) PortfolioIDsWithAgentActivity(ctx context.Context, stoppedAfter time.Time) ([]int64, error) {
	return r.Portfolios.IDsWithAgentActivity(ctx, stoppedAfter)
}
