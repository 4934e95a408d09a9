package models

import (
	"time"

	"gorm.io/gorm"
)

// ProviderType 存储后端类型，封闭枚举
type ProviderType string

const (
	// ProviderObjectStore S3 兼容对象存储
	ProviderObjectStore ProviderType = "object-store"
	// ProviderBlobStore WebDAV 块存储
	ProviderBlobStore ProviderType = "blob-store"
	// ProviderCloudBucket 云桶（GCS S3 互操作端点）
	ProviderCloudBucket ProviderType = "cloud-bucket"
	// ProviderFileTransfer SFTP 文件传输
	ProviderFileTransfer ProviderType = "file-transfer"
)

// ValidProviderType 校验类型是否在枚举内
func ValidProviderType(t ProviderType) bool {
	switch t {
	case ProviderObjectStore, ProviderBlobStore, ProviderCloudBucket, ProviderFileTransfer:
		return true
	}
	return false
}

// StorageProvider 用户配置的远端存储目的地
type StorageProvider struct {
	gorm.Model
	UserID uint `gorm:"index;uniqueIndex:idx_user_provider_name,priority:1;not null"`
	User   User `gorm:"foreignKey:UserID" json:"-"`

	Name         string       `gorm:"uniqueIndex:idx_user_provider_name,priority:2;not null"`
	ProviderType ProviderType `gorm:"size:20;not null"`

	// Config 非敏感参数（bucket、region、container、remote_path 等）
	Config map[string]string `gorm:"serializer:json"`

	// EncryptedCredentials 凭据密文，永不以明文下发
	EncryptedCredentials string `gorm:"type:text" json:"-"`

	IsDefault bool `gorm:"default:false;not null"`
	IsActive  bool `gorm:"default:true;not null"`
}

// TableName 指定表名
func (StorageProvider) TableName() string {
	return "storage_providers"
}

// HasCredentials 是否已绑定凭据
func (p *StorageProvider) HasCredentials() bool {
	return p.EncryptedCredentials != ""
}

// ToResponse 转换为响应结构（脱敏，密文不出库）
func (p *StorageProvider) ToResponse() *ProviderResponse {
	return &ProviderResponse{
		ID:             p.ID,
		Name:           p.Name,
		ProviderType:   p.ProviderType,
		Config:         p.Config,
		HasCredentials: p.HasCredentials(),
		IsDefault:      p.IsDefault,
		IsActive:       p.IsActive,
		CreatedAt:      p.CreatedAt,
		UpdatedAt:      p.UpdatedAt,
	}
}

// ProviderResponse 供 API 层使用的脱敏视图
type ProviderResponse struct {
	ID             uint              `json:"id"`
	Name           string            `json:"name"`
	ProviderType   ProviderType      `json:"provider_type"`
	Config         map[string]string `json:"config"`
	HasCredentials bool              `json:"has_credentials"`
	IsDefault      bool              `json:"is_default"`
	IsActive       bool              `json:"is_active"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
}
