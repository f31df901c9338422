package portfolios

import (
	"context"
	"fmt"
	"time"

	models "ai-trader-platform/database/models_pkg"

	"gorm.io/gorm"
)

// Repository handles database operations for portfolios
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a new portfolios repository
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Create inserts a new portfolio
func (r *Repository) Create(ctx context.Context, p *models.Portfolio) error {
	if err := r.db.WithContext(ctx).Create(p).Error; err != nil {
		return fmt.Errorf("Create portfolio: %w", err)
	}
	return nil
}

// Get retrieves a portfolio by id
func (r *Repository) Get(ctx context.Context, id int64) (*models.Portfolio, error) {
	var p models.Portfolio
	if err := r.db.WithContext(ctx).First(&p, id).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

// GetByAgent retrieves the portfolio linked to an agent configuration
func (r *Repository) GetByAgent(ctx context.Context, agentConfigID int64) (*models.Portfolio, error) {
	var p models.Portfolio
	if err := r.db.WithContext(ctx).Where("agent_config_id = ?", agentConfigID).First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

// ListByUser retrieves a user's portfolios
func (r *Repository) ListByUser(ctx context.Context, userID int64, offset, limit int) ([]models.Portfolio, error) {
	var list []models.Portfolio
	query := r.db.WithContext(ctx).Where("user_id = ?", userID).Order("id ASC").Offset(offset)
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&list).Error; err != nil {
		return nil, fmt.Errorf("ListByUser portfolios: %w", err)
	}
	return list, nil
}

// Update saves modified portfolio fields
func (r *Repository) Update(ctx context.Context, p *models.Portfolio) error {
	if err := r.db.WithContext(ctx).Save(p).Error; err != nil {
		return fmt.Errorf("Update portfolio %d: %w", p.ID, err)
	}
	return nil
}

// SaveValuation persists the reconciled holdings, cash and valuation fields
// in a single update. Other columns are left untouched so a concurrent
// profile edit cannot be clobbered by the monitor loop.
func (r *Repository) SaveValuation(ctx context.Context, p *models.Portfolio) error {
	err := r.db.WithContext(ctx).
		Model(&models.Portfolio{}).
		Where("id = ?", p.ID).
		Updates(map[string]interface{}{
			"holdings":         p.Holdings,
			"current_cash":     p.CurrentCash,
			"total_value":      p.TotalValue,
			"total_return":     p.TotalReturn,
			"total_return_pct": p.TotalReturnPct,
			"updated_at":       time.Now(),
		}).Error
	if err != nil {
		return fmt.Errorf("SaveValuation portfolio %d: %w", p.ID, err)
	}
	return nil
}

// Delete removes a portfolio by id
func (r *Repository) Delete(ctx context.Context, id int64) error {
	result := r.db.WithContext(ctx).Delete(&models.Portfolio{}, id)
	if result.Error != nil {
		return fmt.Errorf("Delete portfolio %d: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// IDsWithAgentActivity returns ids of portfolios whose agent is running, or
// whose agent stopped after the given cutoff. The monitor loop reconciles
// exactly this set so final log lines written during shutdown still get
// imported.
func (r *Repository) IDsWithAgentActivity(ctx context.Context, stoppedAfter time.Time) ([]int64, error) {
	var ids []int64
	err := r.db.WithContext(ctx).
		Model(&models.Portfolio{}).
		Joins("JOIN agent_configs ON agent_configs.id = portfolios.agent_config_id").
		Where("agent_configs.is_running = ? OR agent_configs.last_stopped_at > ?", true, stoppedAfter).
		Pluck("portfolios.id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("IDsWithAgentActivity: %w", err)
	}
	return ids, nil
}
