package providers

import (
	"context"
	"errors"

	"github.com/aikara/image-vault/database/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrProviderInactive 目标提供者未激活，不能设为默认
var ErrProviderInactive = errors.New("provider is not active")

// Repository 存储提供者仓库
type Repository struct {
	db *gorm.DB
}

// NewRepository 创建提供者仓库
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Create 创建提供者。请求默认时在同一事务内锁定该用户的
// 提供者行并清除旧默认，保证任何时刻至多一个默认。
func (r *Repository) Create(ctx context.Context, provider *models.StorageProvider) error {
	if !provider.IsDefault {
		return r.db.WithContext(ctx).Create(provider).Error
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockUserProviders(tx, provider.UserID); err != nil {
			return err
		}
		if err := clearDefaults(tx, provider.UserID); err != nil {
			return err
		}
		return tx.Create(provider).Error
	})
}

// GetByIDAndUser 按 ID 和属主查询，属主过滤是防混淆代理的最终防线
func (r *Repository) GetByIDAndUser(ctx context.Context, id, userID uint) (*models.StorageProvider, error) {
	var provider models.StorageProvider
	err := r.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		First(&provider).Error
	if err != nil {
		return nil, err
	}
	return &provider, nil
}

// GetByIDAndUserUnscoped 含软删除记录的查询。删除策略为 orphan 时
// 图片可能引用已删除的提供者，清理远端对象仍要解析出它。
func (r *Repository) GetByIDAndUserUnscoped(ctx context.Context, id, userID uint) (*models.StorageProvider, error) {
	var provider models.StorageProvider
	err := r.db.WithContext(ctx).Unscoped().
		Where("id = ? AND user_id = ?", id, userID).
		First(&provider).Error
	if err != nil {
		return nil, err
	}
	return &provider, nil
}

// ListByUser 列出用户的全部提供者，默认在前
func (r *Repository) ListByUser(ctx context.Context, userID uint) ([]*models.StorageProvider, error) {
	var providers []*models.StorageProvider
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("is_default desc, created_at desc").
		Find(&providers).Error
	return providers, err
}

// GetDefaultByUser 查询用户当前的活跃默认提供者
func (r *Repository) GetDefaultByUser(ctx context.Context, userID uint) (*models.StorageProvider, error) {
	var provider models.StorageProvider
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND is_default = ? AND is_active = ?", userID, true, true).
		First(&provider).Error
	if err != nil {
		return nil, err
	}
	return &provider, nil
}

// Save 保存提供者变更。置为默认时走与 SetDefault 相同的加锁路径。
func (r *Repository) Save(ctx context.Context, provider *models.StorageProvider) error {
	if !provider.IsDefault {
		return r.db.WithContext(ctx).Save(provider).Error
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockUserProviders(tx, provider.UserID); err != nil {
			return err
		}
		if err := tx.Model(&models.StorageProvider{}).
			Where("user_id = ? AND id <> ?", provider.UserID, provider.ID).
			Update("is_default", false).Error; err != nil {
			return err
		}
		return tx.Save(provider).Error
	})
}

// SetDefault 原子默认切换。事务内先对该用户的提供者行加
// 行级锁串行化并发写者，再清除全部默认并设置目标，任何交错
// 都不会留下零个或两个默认。激活状态在同一事务内复核，
// 并发停用不会留下未激活的默认。
func (r *Repository) SetDefault(ctx context.Context, userID, id uint) (*models.StorageProvider, error) {
	var provider models.StorageProvider

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockUserProviders(tx, userID); err != nil {
			return err
		}

		if err := tx.Where("id = ? AND user_id = ?", id, userID).First(&provider).Error; err != nil {
			return err
		}
		if !provider.IsActive {
			return ErrProviderInactive
		}

		if err := clearDefaults(tx, userID); err != nil {
			return err
		}

		provider.IsDefault = true
		return tx.Model(&provider).Update("is_default", true).Error
	})
	if err != nil {
		return nil, err
	}
	return &provider, nil
}

// Delete 软删除提供者
func (r *Repository) Delete(ctx context.Context, provider *models.StorageProvider) error {
	return r.db.WithContext(ctx).Delete(provider).Error
}

// CountDefaults 统计用户默认提供者数量（测试用不变量检查）
func (r *Repository) CountDefaults(ctx context.Context, userID uint) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.StorageProvider{}).
		Where("user_id = ? AND is_default = ?", userID, true).
		Count(&count).Error
	return count, err
}

// lockUserProviders 对用户的提供者行加 FOR UPDATE 锁。
// SQLite 没有行级锁但写事务本身串行，语义等价。
func lockUserProviders(tx *gorm.DB, userID uint) error {
	var ids []uint
	return tx.Model(&models.StorageProvider{}).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ?", userID).
		Pluck("id", &ids).Error
}

// clearDefaults 清除用户的全部默认标记
func clearDefaults(tx *gorm.DB, userID uint) error {
	return tx.Model(&models.StorageProvider{}).
		Where("user_id = ? AND is_default = ?", userID, true).
		Update("is_default", false).Error
}
