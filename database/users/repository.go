package users

import (
	"context"
	"fmt"

	models "ai-trader-platform/database/models_pkg"

	"gorm.io/gorm"
)

// Repository handles database operations for user accounts
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a new users repository
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Create inserts a new user
func (r *Repository) Create(ctx context.Context, user *models.User) error {
	if err := r.db.WithContext(ctx).Create(user).Error; err != nil {
		return fmt.Errorf("Create user: %w", err)
	}
	return nil
}

// Get retrieves a user by id
func (r *Repository) Get(ctx context.Context, id int64) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).First(&user, id).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// GetByEmail retrieves a user by email
func (r *Repository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).Where("email = ?", email).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// List retrieves users with pagination
func (r *Repository) List(ctx context.Context, offset, limit int) ([]models.User, error) {
	var users []models.User
	query := r.db.WithContext(ctx).Order("id ASC").Offset(offset)
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&users).Error; err != nil {
		return nil, fmt.Errorf("List users: %w", err)
	}
	return users, nil
}

// Update saves modified user fields
func (r *Repository) Update(ctx context.Context, user *models.User) error {
	if err := r.db.WithContext(ctx).Save(user).Error; err != nil {
		return fmt.Errorf("Update user %d: %w", user.ID, err)
	}
	return nil
}

// Delete removes a user by id
func (r *Repository) Delete(ctx context.Context, id int64) error {
	result := r.db.WithContext(ctx).Delete(&models.User{}, id)
	if result.Error != nil {
		return fmt.Errorf("Delete user %d: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
