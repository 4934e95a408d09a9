package images

import (
	"context"

	"github.com/aikara/image-vault/database/models"
	"gorm.io/gorm"
)

// Repository 图片仓库
type Repository struct {
	db *gorm.DB
}

// NewRepository 创建图片仓库
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Create 在单事务内创建图片记录
func (r *Repository) Create(ctx context.Context, image *models.Image) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(image).Error
	})
}

// GetByIDAndUser 按 ID 和属主查询
func (r *Repository) GetByIDAndUser(ctx context.Context, id, userID uint) (*models.Image, error) {
	var image models.Image
	err := r.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		First(&image).Error
	if err != nil {
		return nil, err
	}
	return &image, nil
}

// ListByUser 分页列出用户图片，新的在前
func (r *Repository) ListByUser(ctx context.Context, userID uint, page, pageSize int) ([]*models.Image, int64, error) {
	var images []*models.Image
	var total int64

	db := r.db.WithContext(ctx).Model(&models.Image{}).Where("user_id = ?", userID)
	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * pageSize
	err := db.Order("created_at desc").Offset(offset).Limit(pageSize).Find(&images).Error
	return images, total, err
}

// UpdateTagsAndMetadata 仅标签与元数据可变，存储路径和尺寸字段创建后不可变
func (r *Repository) UpdateTagsAndMetadata(ctx context.Context, image *models.Image, tags []string, metadata map[string]string) error {
	updates := map[string]interface{}{}
	if tags != nil {
		updates["tags"] = tags
		image.Tags = tags
	}
	if metadata != nil {
		updates["metadata"] = metadata
		image.Metadata = metadata
	}
	if len(updates) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Model(image).Updates(updates).Error
}

// Delete 删除图片记录
func (r *Repository) Delete(ctx context.Context, image *models.Image) error {
	return r.db.WithContext(ctx).Delete(image).Error
}

// CountByProvider 统计仍引用某提供者的图片数量
func (r *Repository) CountByProvider(ctx context.Context, providerID uint) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Image{}).
		Where("storage_provider_id = ?", providerID).
		Count(&count).Error
	return count, err
}

// UserStats 用户图片统计
type UserStats struct {
	TotalImages     int64
	TotalSizeBytes  int64
	OptimizedImages int64
	SavedBytes      int64
}

// StatsByUser 聚合统计，一条 SQL 完成
func (r *Repository) StatsByUser(ctx context.Context, userID uint) (*UserStats, error) {
	var stats UserStats
	err := r.db.WithContext(ctx).
		Model(&models.Image{}).
		Select(
			"COUNT(*) AS total_images, "+
				"COALESCE(SUM(file_size), 0) AS total_size_bytes, "+
				"COALESCE(SUM(CASE WHEN is_optimized THEN 1 ELSE 0 END), 0) AS optimized_images, "+
				"COALESCE(SUM(CASE WHEN is_optimized AND optimized_size IS NOT NULL THEN file_size - optimized_size ELSE 0 END), 0) AS saved_bytes").
		Where("user_id = ?", userID).
		Scan(&stats).Error
	if err != nil {
		return nil, err
	}
	return &stats, nil
}
