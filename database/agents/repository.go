package agents

import (
	"context"
	"fmt"
	"time"

	models "ai-trader-platform/database/models_pkg"

	"gorm.io/gorm"
)

// Repository handles database operations for agent configurations
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a new agents repository
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Create inserts a new agent configuration
func (r *Repository) Create(ctx context.Context, cfg *models.AgentConfig) error {
	if err := r.db.WithContext(ctx).Create(cfg).Error; err != nil {
		return fmt.Errorf("Create agent config: %w", err)
	}
	return nil
}

// Get retrieves an agent configuration by id
func (r *Repository) Get(ctx context.Context, id int64) (*models.AgentConfig, error) {
	var cfg models.AgentConfig
	if err := r.db.WithContext(ctx).First(&cfg, id).Error; err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ListByUser retrieves a user's agent configurations
func (r *Repository) ListByUser(ctx context.Context, userID int64, offset, limit int) ([]models.AgentConfig, error) {
	var list []models.AgentConfig
	query := r.db.WithContext(ctx).Where("user_id = ?", userID).Order("created_at DESC").Offset(offset)
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&list).Error; err != nil {
		return nil, fmt.Errorf("ListByUser agent configs: %w", err)
	}
	return list, nil
}

// CountActiveByUser counts a user's active agent configurations
func (r *Repository) CountActiveByUser(ctx context.Context, userID int64) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.AgentConfig{}).
		Where("user_id = ? AND is_active = ?", userID, true).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("CountActiveByUser: %w", err)
	}
	return count, nil
}

// Update saves modified agent configuration fields
func (r *Repository) Update(ctx context.Context, cfg *models.AgentConfig) error {
	if err := r.db.WithContext(ctx).Save(cfg).Error; err != nil {
		return fmt.Errorf("Update agent config %d: %w", cfg.ID, err)
	}
	return nil
}

// Delete removes an agent configuration by id
func (r *Repository) Delete(ctx context.Context, id int64) error {
	result := r.db.WithContext(ctx).Delete(&models.AgentConfig{}, id)
	if result.Error != nil {
		return fmt.Errorf("Delete agent config %d: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// MarkRunning flips is_running on and records the start timestamp
func (r *Repository) MarkRunning(ctx context.Context, id int64, startedAt time.Time) error {
	return r.setRunning(ctx, id, true, "last_started_at", startedAt)
}

// MarkStopped flips is_running off and records the stop timestamp
func (r *Repository) MarkStopped(ctx context.Context, id int64, stoppedAt time.Time) error {
	return r.setRunning(ctx, id, false, "last_stopped_at", stoppedAt)
}

func (r *Repository) setRunning(ctx context.Context, id int64, running bool, tsColumn string, ts time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&models.AgentConfig{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"is_running": running,
			tsColumn:     ts,
		})
	if result.Error != nil {
		return fmt.Errorf("set is_running=%v on agent %d: %w", running, id, result.Error)
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// RunningIDs returns the ids of all agent configs persisted as running
func (r *Repository) RunningIDs(ctx context.Context) ([]int64, error) {
	var ids []int64
	err := r.db.WithContext(ctx).
		Model(&models.AgentConfig{}).
		Where("is_running = ?", true).
		Pluck("id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("RunningIDs: %w", err)
	}
	return ids, nil
}

// RecordTradeOutcome bumps the performance counters after a trade resolves
func (r *Repository) RecordTradeOutcome(ctx context.Context, id int64, successful bool) error {
	cfg, err := r.Get(ctx, id)
	if err != nil {
		return err
	}
	cfg.TotalTrades++
	if successful {
		cfg.SuccessfulTrades++
	}
	if cfg.TotalTrades > 0 {
		cfg.WinRate = float64(cfg.SuccessfulTrades) / float64(cfg.TotalTrades) * 100
	}
	return r.Update(ctx, cfg)
}
