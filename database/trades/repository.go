package trades

import (
	"context"
	"fmt"
	"strings"
	"time"

	models "ai-trader-platform/database/models_pkg"

	"gorm.io/gorm"
)

// Repository handles database operations for trade records
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a new trades repository
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Insert saves a trade record. A duplicate on the import identity index
// (portfolio, symbol, executed_at) is swallowed: the reconciler may race
// with a manual sync over the same log file, and the first writer wins.
func (r *Repository) Insert(ctx context.Context, trade *models.Trade) error {
	if err := r.db.WithContext(ctx).Create(trade).Error; err != nil {
		if strings.Contains(err.Error(), "duplicate key value violates unique constraint") {
			return nil
		}
		return fmt.Errorf("Insert trade: %w", err)
	}
	return nil
}

// Get retrieves a trade by id
func (r *Repository) Get(ctx context.Context, id int64) (*models.Trade, error) {
	var trade models.Trade
	if err := r.db.WithContext(ctx).First(&trade, id).Error; err != nil {
		return nil, err
	}
	return &trade, nil
}

// ListByPortfolio retrieves a portfolio's trades, newest first
func (r *Repository) ListByPortfolio(ctx context.Context, portfolioID int64, offset, limit int) ([]models.Trade, error) {
	var list []models.Trade
	query := r.db.WithContext(ctx).
		Where("portfolio_id = ?", portfolioID).
		Order("created_at DESC").
		Offset(offset)
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&list).Error; err != nil {
		return nil, fmt.Errorf("ListByPortfolio trades: %w", err)
	}
	return list, nil
}

// Exists reports whether an imported trade already exists. When the log
// record carried an explicit broker trade id that id is authoritative;
// otherwise the (portfolio, symbol, executed_at) tuple is matched.
func (r *Repository) Exists(ctx context.Context, portfolioID int64, symbol string, executedAt time.Time, brokerTradeID string) (bool, error) {
	var count int64
	query := r.db.WithContext(ctx).Model(&models.Trade{}).Where("portfolio_id = ?", portfolioID)

	if brokerTradeID != "" {
		query = query.Where("broker_trade_id = ?", brokerTradeID)
	} else {
		query = query.Where("symbol = ? AND executed_at = ?", symbol, executedAt)
	}

	if err := query.Count(&count).Error; err != nil {
		return false, fmt.Errorf("Exists trade: %w", err)
	}
	return count > 0, nil
}

// MarkExecuted transitions a trade to executed, recording the fill price,
// the execution time and the broker's order id. Imported and direct trades
// share the broker_trade_id column as their external identity.
func (r *Repository) MarkExecuted(ctx context.Context, id int64, executionPrice *float64, brokerTradeID string, executedAt time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&models.Trade{}).
		Where("id = ?", id).
		Updates(executedUpdates(executionPrice, brokerTradeID, executedAt))
	if result.Error != nil {
		return fmt.Errorf("MarkExecuted trade %d: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// executedUpdates builds the column set for an execution transition. The
// fill price and broker id are written only when known; a zero value must
// not clobber a column another path may fill in later.
func executedUpdates(executionPrice *float64, brokerTradeID string, executedAt time.Time) map[string]interface{} {
	updates := map[string]interface{}{
		"status":      models.TradeStatusExecuted,
		"executed_at": executedAt,
	}
	if executionPrice != nil {
		updates["execution_price"] = *executionPrice
	}
	if brokerTradeID != "" {
		updates["broker_trade_id"] = brokerTradeID
	}
	return updates
}

// UpdateStatus transitions a trade's status and execution price. Trades are
// never deleted, only transitioned.
func (r *Repository) UpdateStatus(ctx context.Context, id int64, status string, executionPrice *float64) error {
	updates := map[string]interface{}{"status": status}
	if executionPrice != nil {
		updates["execution_price"] = *executionPrice
	}
	if status == models.TradeStatusExecuted {
		updates["executed_at"] = time.Now()
	}

	result := r.db.WithContext(ctx).Model(&models.Trade{}).Where("id = ?", id).Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("UpdateStatus trade %d: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
