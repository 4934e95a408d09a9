package accounts

import (
	"context"

	"github.com/aikara/image-vault/database/models"
	"gorm.io/gorm"
)

// Repository 用户仓库
type Repository struct {
	db *gorm.DB
}

// NewRepository 创建用户仓库
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// GetByUsername 按用户名查询
func (r *Repository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).Where("username = ?", username).First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// GetByID 按 ID 查询
func (r *Repository) GetByID(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).First(&user, id).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// Create 创建用户
func (r *Repository) Create(ctx context.Context, user *models.User) error {
	return r.db.WithContext(ctx).Create(user).Error
}
