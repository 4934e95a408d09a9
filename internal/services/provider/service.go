package provider

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/aikara/image-vault/config"
	"github.com/aikara/image-vault/database/models"
	imagesrepo "github.com/aikara/image-vault/database/repo/images"
	providersrepo "github.com/aikara/image-vault/database/repo/providers"
	"github.com/aikara/image-vault/internal/errs"
	"github.com/aikara/image-vault/internal/vault"
	"github.com/aikara/image-vault/storage"
	"gorm.io/gorm"
)

// Registry 存储提供者注册表。持有每个用户的提供者记录，
// 维护单默认不变量，连接测试只读不落库。
type Registry struct {
	providers *providersrepo.Repository
	images    *imagesrepo.Repository
	vault     *vault.Vault

	opTimeout    time.Duration
	deletePolicy config.DeletePolicy
}

// NewRegistry 创建注册表
func NewRegistry(
	providers *providersrepo.Repository,
	images *imagesrepo.Repository,
	v *vault.Vault,
	opTimeout time.Duration,
	deletePolicy config.DeletePolicy,
) *Registry {
	if opTimeout <= 0 {
		opTimeout = 30 * time.Second
	}
	return &Registry{
		providers:    providers,
		images:       images,
		vault:        v,
		opTimeout:    opTimeout,
		deletePolicy: deletePolicy,
	}
}

// CreateInput 创建提供者的输入
type CreateInput struct {
	Name         string
	ProviderType models.ProviderType
	Config       map[string]string
	Credentials  map[string]string
	IsDefault    bool
	IsActive     *bool
}

// UpdateInput 更新提供者的输入，nil 字段不动
type UpdateInput struct {
	Name         *string
	ProviderType *models.ProviderType
	Config       map[string]string
	Credentials  map[string]string
	IsActive     *bool
}

// ConnectionResult 连接测试结果，纯信息性，从不持久化
type ConnectionResult struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// Create 注册新提供者。凭据先过保管库加密再落库。
func (r *Registry) Create(ctx context.Context, userID uint, input CreateInput) (*models.StorageProvider, error) {
	if input.Name == "" {
		return nil, errs.Validation("provider name is required")
	}
	if !models.ValidProviderType(input.ProviderType) {
		return nil, errs.Validation(fmt.Sprintf("unknown provider type: %s", input.ProviderType))
	}

	provider := &models.StorageProvider{
		UserID:       userID,
		Name:         input.Name,
		ProviderType: input.ProviderType,
		Config:       input.Config,
		IsDefault:    input.IsDefault,
		IsActive:     true,
	}
	if input.IsActive != nil {
		provider.IsActive = *input.IsActive
	}

	if len(input.Credentials) > 0 {
		encrypted, err := r.vault.EncryptCredentials(input.Credentials)
		if err != nil {
			return nil, err
		}
		provider.EncryptedCredentials = encrypted
	}

	if err := r.providers.Create(ctx, provider); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, errs.Conflict("a provider with this name already exists")
		}
		return nil, errs.Internal("failed to create provider", err)
	}
	return provider, nil
}

// Get 查询单个提供者
func (r *Registry) Get(ctx context.Context, userID, id uint) (*models.StorageProvider, error) {
	return r.ownedProvider(ctx, userID, id)
}

// List 列出用户的提供者
func (r *Registry) List(ctx context.Context, userID uint) ([]*models.StorageProvider, error) {
	providers, err := r.providers.ListByUser(ctx, userID)
	if err != nil {
		return nil, errs.Internal("failed to list providers", err)
	}
	return providers, nil
}

// Update 更新提供者。提供新凭据时重新加密整体替换。
func (r *Registry) Update(ctx context.Context, userID, id uint, input UpdateInput) (*models.StorageProvider, error) {
	provider, err := r.ownedProvider(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	if input.Name != nil {
		if *input.Name == "" {
			return nil, errs.Validation("provider name cannot be empty")
		}
		provider.Name = *input.Name
	}
	if input.ProviderType != nil {
		if !models.ValidProviderType(*input.ProviderType) {
			return nil, errs.Validation(fmt.Sprintf("unknown provider type: %s", *input.ProviderType))
		}
		provider.ProviderType = *input.ProviderType
	}
	if input.Config != nil {
		provider.Config = input.Config
	}
	if input.IsActive != nil {
		provider.IsActive = *input.IsActive
	}
	if len(input.Credentials) > 0 {
		encrypted, err := r.vault.EncryptCredentials(input.Credentials)
		if err != nil {
			return nil, err
		}
		provider.EncryptedCredentials = encrypted
	}

	if err := r.providers.Save(ctx, provider); err != nil {
		return nil, errs.Internal("failed to update provider", err)
	}
	return provider, nil
}

// SetDefault 原子默认切换，底层事务锁保证并发下恰有一个默认。
// 激活状态由仓库在同一事务内复核，避免与并发停用竞争。
func (r *Registry) SetDefault(ctx context.Context, userID, id uint) (*models.StorageProvider, error) {
	provider, err := r.providers.SetDefault(ctx, userID, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.NotFound("provider not found")
		}
		if errors.Is(err, providersrepo.ErrProviderInactive) {
			return nil, errs.Conflict("inactive provider cannot be the default")
		}
		return nil, errs.Internal("failed to set default provider", err)
	}
	return provider, nil
}

// TestConnection 瞬时解密凭据并探测远端，结果只返回不持久化。
// 解密失败以提供者错误上报，消息绝不包含凭据内容。
func (r *Registry) TestConnection(ctx context.Context, userID, id uint) (*ConnectionResult, error) {
	provider, err := r.ownedProvider(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	backend, err := r.BackendFor(provider)
	if err != nil {
		return &ConnectionResult{Status: "error", Message: errs.MessageOf(err)}, nil
	}

	probeCtx, cancel := context.WithTimeout(ctx, r.opTimeout)
	defer cancel()

	if err := backend.TestConnection(probeCtx); err != nil {
		return &ConnectionResult{
			Status:  "error",
			Message: fmt.Sprintf("connection failed: %v", err),
		}, nil
	}
	return &ConnectionResult{Status: "success", Message: "connection successful"}, nil
}

// BackendFor 按需解密凭据并构建后端。返回值只应存活于
// 单次操作的调用栈，调用方不得缓存。
func (r *Registry) BackendFor(provider *models.StorageProvider) (storage.Backend, error) {
	credentials := map[string]string{}
	if provider.HasCredentials() {
		decrypted, err := r.vault.DecryptCredentials(provider.EncryptedCredentials)
		if err != nil {
			// 密钥轮换或密文损坏，以提供者错误暴露，不带凭据细节
			return nil, errs.ProviderConnection("stored credentials cannot be decrypted", err)
		}
		credentials = decrypted
	}

	backend, err := storage.NewBackend(provider.ProviderType, provider.Config, credentials)
	if err != nil {
		return nil, errs.ProviderConnection("provider configuration is invalid", err)
	}
	return backend, nil
}

// Delete 删除提供者，策略可配：
// block  — 仍有图片引用时返回冲突（默认）
// orphan — 允许删除，引用记录保留陈旧外键并记录日志
func (r *Registry) Delete(ctx context.Context, userID, id uint) error {
	provider, err := r.ownedProvider(ctx, userID, id)
	if err != nil {
		return err
	}

	count, err := r.images.CountByProvider(ctx, provider.ID)
	if err != nil {
		return errs.Internal("failed to count referencing images", err)
	}

	if count > 0 {
		if r.deletePolicy == config.DeletePolicyBlock {
			return errs.Conflict(fmt.Sprintf("provider is still referenced by %d image(s)", count))
		}
		log.Printf("[Registry] Deleting provider %d with %d orphaned image reference(s) (policy=orphan)", provider.ID, count)
	}

	if err := r.providers.Delete(ctx, provider); err != nil {
		return errs.Internal("failed to delete provider", err)
	}
	return nil
}

// ResolveForUpload 解析上传目标：显式 ID 必须属主且活跃，
// 未指定时取当前活跃默认。都没有则 NotFound。
func (r *Registry) ResolveForUpload(ctx context.Context, userID uint, providerID *uint) (*models.StorageProvider, error) {
	if providerID != nil {
		provider, err := r.ownedProvider(ctx, userID, *providerID)
		if err != nil {
			return nil, err
		}
		if !provider.IsActive {
			return nil, errs.NotFound("provider is not active")
		}
		return provider, nil
	}

	provider, err := r.providers.GetDefaultByUser(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.NotFound("no storage provider configured")
		}
		return nil, errs.Internal("failed to resolve default provider", err)
	}
	return provider, nil
}

// GetIncludingDeleted 解析提供者，软删除的也算。只用于删除
// 图片时清理仍指向已删提供者的远端对象。
func (r *Registry) GetIncludingDeleted(ctx context.Context, userID, id uint) (*models.StorageProvider, error) {
	provider, err := r.providers.GetByIDAndUserUnscoped(ctx, id, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.NotFound("provider not found")
		}
		return nil, errs.Internal("failed to load provider", err)
	}
	return provider, nil
}

// ownedProvider 属主校验是防混淆代理的最终防线
func (r *Registry) ownedProvider(ctx context.Context, userID, id uint) (*models.StorageProvider, error) {
	provider, err := r.providers.GetByIDAndUser(ctx, id, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.NotFound("provider not found")
		}
		return nil, errs.Internal("failed to load provider", err)
	}
	return provider, nil
}

// OpTimeout 远端操作超时
func (r *Registry) OpTimeout() time.Duration {
	return r.opTimeout
}
