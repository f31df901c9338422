// Package models defines the persisted data models for the AI trading
// platform. Models live in their own package so the per-entity repository
// packages can share them without circular imports.
package models

import (
	"time"

	"ai-trader-platform/database/types"
)

// Trade type values.
const (
	TradeTypeBuy  = "buy"
	TradeTypeSell = "sell"
)

// Trade status values. Trades are never deleted; they only move between
// statuses.
const (
	TradeStatusPending   = "pending"
	TradeStatusExecuted  = "executed"
	TradeStatusFailed    = "failed"
	TradeStatusCancelled = "cancelled"
)

// Subscription plan and status values.
const (
	PlanFree  = "free"
	PlanBasic = "basic"
	PlanPro   = "pro"

	SubscriptionActive    = "active"
	SubscriptionCancelled = "cancelled"
	SubscriptionExpired   = "expired"
)

// User is a registered platform account.
type User struct {
	ID             int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Email          string    `gorm:"size:255;uniqueIndex;not null" json:"email"`
	Username       string    `gorm:"size:100;uniqueIndex;not null" json:"username"`
	HashedPassword string    `gorm:"size:255;not null" json:"-"`
	FullName       string    `gorm:"size:255" json:"full_name"`
	IsActive       bool      `gorm:"default:true" json:"is_active"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName specifies the table name for User
func (User) TableName() string {
	return "users"
}

// Subscription tracks a user's billing plan. Billing rules themselves are
// out of scope; the platform only reads plan and status.
type Subscription struct {
	ID               int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID           int64      `gorm:"index;not null" json:"user_id"`
	Plan             string     `gorm:"size:20;not null;default:free" json:"plan"`
	Status           string     `gorm:"size:20;not null;default:active" json:"status"`
	CurrentPeriodEnd *time.Time `json:"current_period_end,omitempty"`
	CreatedAt        time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName specifies the table name for Subscription
func (Subscription) TableName() string {
	return "subscriptions"
}

// Portfolio is one user's investable account, optionally driven by a single
// agent configuration.
//
// Key Fields:
//   - CurrentCash: uninvested cash, kept equal to Holdings["CASH"]
//   - Holdings: symbol -> quantity map; the "CASH" key is the cash balance
//   - TotalValue: cash plus priced value of all non-cash holdings
//
// Invariant: after reconciliation, Holdings["CASH"] plus the priced value of
// every other symbol equals TotalValue.
type Portfolio struct {
	ID             int64          `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID         int64          `gorm:"index;not null" json:"user_id"`
	AgentConfigID  *int64         `gorm:"index" json:"agent_config_id,omitempty"`
	Name           string         `gorm:"size:255;not null" json:"name"`
	Description    string         `json:"description,omitempty"`
	InitialCash    float64        `gorm:"not null;default:10000" json:"initial_cash"`
	CurrentCash    float64        `gorm:"not null;default:10000" json:"current_cash"`
	TotalValue     float64        `gorm:"not null;default:10000" json:"total_value"`
	TotalReturn    float64        `gorm:"default:0" json:"total_return"`
	TotalReturnPct float64        `gorm:"default:0" json:"total_return_pct"`
	MaxDrawdown    float64        `gorm:"default:0" json:"max_drawdown"`
	SharpeRatio    *float64       `json:"sharpe_ratio,omitempty"`
	Holdings       types.Holdings `gorm:"type:jsonb" json:"holdings"`
	Market         string         `gorm:"size:5;default:us" json:"market"` // us, cn
	IsActive       bool           `gorm:"default:true" json:"is_active"`
	CreatedAt      time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	LastTradeAt    *time.Time     `json:"last_trade_at,omitempty"`
}

// TableName specifies the table name for Portfolio
func (Portfolio) TableName() string {
	return "portfolios"
}

// UpdatePerformanceMetrics recomputes the derived return fields from
// InitialCash and TotalValue.
func (p *Portfolio) UpdatePerformanceMetrics() {
	if p.InitialCash > 0 {
		p.TotalReturn = p.TotalValue - p.InitialCash
		p.TotalReturnPct = (p.TotalReturn / p.InitialCash) * 100
	}
}

// AgentConfig identifies one configured trading strategy for one user.
//
// Status Fields:
//   - IsActive: configuration is usable; inactive agents must not start
//   - IsRunning: a subprocess is currently supervised for this agent
//
// Invariant: IsRunning implies a live entry in the process supervisor's
// table; the monitor loop repairs any divergence within one cycle.
type AgentConfig struct {
	ID          int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID      int64  `gorm:"index;not null" json:"user_id"`
	Name        string `gorm:"size:255;not null" json:"name"`
	Description string `json:"description,omitempty"`

	// AI model selection
	ModelName    string `gorm:"size:100;default:deepseek-chat" json:"model_name"`
	ModelVersion string `gorm:"size:20;default:v3.1" json:"model_version"`

	// Strategy parameters
	StrategyType    string  `gorm:"size:50;default:balanced" json:"strategy_type"` // aggressive, balanced, conservative, momentum, value
	RiskLevel       float64 `gorm:"default:0.5" json:"risk_level"`                 // 0.0 conservative .. 1.0 aggressive
	MaxPositionSize float64 `gorm:"default:0.1" json:"max_position_size"`          // max fraction of portfolio per position
	StopLossPct     float64 `gorm:"default:0.05" json:"stop_loss_pct"`
	TakeProfitPct   float64 `gorm:"default:0.15" json:"take_profit_pct"`
	MaxDailyTrades  int     `gorm:"default:5" json:"max_daily_trades"`

	// Market settings
	Market          string           `gorm:"size:5;default:us" json:"market"` // us, cn
	AllowedSymbols  types.StringList `gorm:"type:jsonb" json:"allowed_symbols"`
	ExcludedSymbols types.StringList `gorm:"type:jsonb" json:"excluded_symbols"`

	// Analysis toggles
	UseTechnicalAnalysis bool `gorm:"default:true" json:"use_technical_analysis"`
	UseSentimentAnalysis bool `gorm:"default:true" json:"use_sentiment_analysis"`
	UseNewsAnalysis      bool `gorm:"default:true" json:"use_news_analysis"`

	// Execution mode
	LiveTrading bool `gorm:"default:false" json:"live_trading"`

	// Status
	IsActive      bool       `gorm:"default:false" json:"is_active"`
	IsRunning     bool       `gorm:"default:false" json:"is_running"`
	LastStartedAt *time.Time `json:"last_started_at,omitempty"`
	LastStoppedAt *time.Time `json:"last_stopped_at,omitempty"`

	// Performance tracking
	TotalTrades      int     `gorm:"default:0" json:"total_trades"`
	SuccessfulTrades int     `gorm:"default:0" json:"successful_trades"`
	WinRate          float64 `gorm:"default:0" json:"win_rate"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName specifies the table name for AgentConfig
func (AgentConfig) TableName() string {
	return "agent_configs"
}

// Trade is one executed or pending buy/sell transaction.
//
// De-duplication: trades imported from agent logs are identified by
// (portfolio_id, symbol, executed_at), enforced with a partial unique
// index. When the log record carries an explicit trade id it is stored in
// BrokerTradeID and preferred as the match key, since two same-symbol
// trades can land in the same timestamp granularity.
type Trade struct {
	ID          int64   `gorm:"primaryKey;autoIncrement" json:"id"`
	PortfolioID int64   `gorm:"index;not null" json:"portfolio_id"`
	Symbol      string  `gorm:"size:10;index;not null" json:"symbol"`
	TradeType   string  `gorm:"size:10;not null" json:"trade_type"` // buy, sell
	Quantity    float64 `gorm:"not null" json:"quantity"`
	Price       float64 `gorm:"not null" json:"price"` // intended price
	TotalValue  float64 `gorm:"not null" json:"total_value"`

	// Execution
	Status         string   `gorm:"size:15;default:pending" json:"status"`
	ExecutionPrice *float64 `json:"execution_price,omitempty"`
	Fees           float64  `gorm:"default:0" json:"fees"`

	// AI decision context
	AIReasoning      string   `json:"ai_reasoning,omitempty"`
	ConfidenceScore  *float64 `json:"confidence_score,omitempty"` // 0..1
	MarketConditions string   `json:"market_conditions,omitempty"`

	CreatedAt  time.Time  `gorm:"autoCreateTime" json:"created_at"`
	ExecutedAt *time.Time `gorm:"index" json:"executed_at,omitempty"`

	// External references
	BrokerTradeID string `gorm:"size:64;index" json:"broker_trade_id,omitempty"`
}

// TableName specifies the table name for Trade
func (Trade) TableName() string {
	return "trades"
}

// ProfitLoss returns the realized profit for a sell with a known execution
// price, zero otherwise.
func (t *Trade) ProfitLoss() float64 {
	if t.TradeType == TradeTypeSell && t.ExecutionPrice != nil {
		return (*t.ExecutionPrice - t.Price) * t.Quantity
	}
	return 0
}
