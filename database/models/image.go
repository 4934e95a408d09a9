package models

import (
	"gorm.io/gorm"
)

// Image 已上传图片记录，仅在远端写入成功后创建
type Image struct {
	gorm.Model
	UserID uint `gorm:"index;not null"`
	User   User `gorm:"foreignKey:UserID" json:"-"`

	StorageProviderID uint            `gorm:"index;uniqueIndex:idx_provider_path,priority:1;not null"`
	StorageProvider   StorageProvider `gorm:"foreignKey:StorageProviderID" json:"-"`

	OriginalFilename string `gorm:"size:255;not null"`
	FileSize         int64  `gorm:"not null"`
	ContentType      string `gorm:"size:100;not null"`

	// StoragePath 后端相对路径，同一提供者命名空间内唯一，创建后不可变
	StoragePath string `gorm:"size:512;uniqueIndex:idx_provider_path,priority:2;not null"`

	Width  int
	Height int

	IsOptimized            bool     `gorm:"default:false;not null"`
	OptimizedSize          *int64   // 仅优化后记录
	OptimizationPercentage *float64 // 创建时计算一次，之后不再重算

	// Tags 用户标签，保序、允许重复
	Tags []string `gorm:"serializer:json"`

	// Metadata 解码提取的属性（格式、色彩模式、EXIF 摘要）
	Metadata map[string]string `gorm:"serializer:json"`
}

// SavedBytes 优化节省的字节数，未优化返回 0
func (i *Image) SavedBytes() int64 {
	if !i.IsOptimized || i.OptimizedSize == nil {
		return 0
	}
	return i.FileSize - *i.OptimizedSize
}
