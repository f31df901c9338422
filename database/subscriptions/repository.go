package subscriptions

import (
	"context"
	"fmt"

	models "ai-trader-platform/database/models_pkg"

	"gorm.io/gorm"
)

// Repository handles database operations for subscriptions
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a new subscriptions repository
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Create inserts a new subscription
func (r *Repository) Create(ctx context.Context, sub *models.Subscription) error {
	if err := r.db.WithContext(ctx).Create(sub).Error; err != nil {
		return fmt.Errorf("Create subscription: %w", err)
	}
	return nil
}

// Get retrieves a subscription by id
func (r *Repository) Get(ctx context.Context, id int64) (*models.Subscription, error) {
	var sub models.Subscription
	if err := r.db.WithContext(ctx).First(&sub, id).Error; err != nil {
		return nil, err
	}
	return &sub, nil
}

// GetByUser retrieves the newest subscription for a user
func (r *Repository) GetByUser(ctx context.Context, userID int64) (*models.Subscription, error) {
	var sub models.Subscription
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		First(&sub).Error
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

// Update saves modified subscription fields
func (r *Repository) Update(ctx context.Context, sub *models.Subscription) error {
	if err := r.db.WithContext(ctx).Save(sub).Error; err != nil {
		return fmt.Errorf("Update subscription %d: %w", sub.ID, err)
	}
	return nil
}

// Cancel marks a subscription cancelled without deleting the row
func (r *Repository) Cancel(ctx context.Context, id int64) error {
	result := r.db.WithContext(ctx).
		Model(&models.Subscription{}).
		Where("id = ?", id).
		Update("status", models.SubscriptionCancelled)
	if result.Error != nil {
		return fmt.Errorf("Cancel subscription %d: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
