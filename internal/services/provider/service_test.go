package provider

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aikara/image-vault/config"
	"github.com/aikara/image-vault/database/models"
	imagesrepo "github.com/aikara/image-vault/database/repo/images"
	providersrepo "github.com/aikara/image-vault/database/repo/providers"
	"github.com/aikara/image-vault/internal/errs"
	"github.com/aikara/image-vault/internal/vault"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupRegistry(t *testing.T, policy config.DeletePolicy) (*Registry, *gorm.DB, *vault.Vault) {
	dsn := fmt.Sprintf("%s?_busy_timeout=5000&_txlock=immediate",
		filepath.Join(t.TempDir(), "test.db"))

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.User{}, &models.StorageProvider{}, &models.Image{}))

	key, err := vault.GenerateKey()
	require.NoError(t, err)
	v, err := vault.New(key)
	require.NoError(t, err)

	registry := NewRegistry(providersrepo.NewRepository(db), imagesrepo.NewRepository(db), v, 0, policy)
	return registry, db, v
}

func objectStoreInput(name string, isDefault bool) CreateInput {
	return CreateInput{
		Name:         name,
		ProviderType: models.ProviderObjectStore,
		Config: map[string]string{
			"endpoint": "minio.example.com",
			"bucket":   "images",
		},
		Credentials: map[string]string{
			"access_key_id":     "AKIAEXAMPLE",
			"secret_access_key": "secret",
		},
		IsDefault: isDefault,
	}
}

func TestCreate_EncryptsCredentials(t *testing.T) {
	registry, db, v := setupRegistry(t, config.DeletePolicyBlock)
	ctx := context.Background()

	created, err := registry.Create(ctx, 1, objectStoreInput("minio", true))
	require.NoError(t, err)
	assert.True(t, created.HasCredentials())

	var stored models.StorageProvider
	require.NoError(t, db.First(&stored, created.ID).Error)
	assert.True(t, vault.IsEncrypted(stored.EncryptedCredentials))
	assert.NotContains(t, stored.EncryptedCredentials, "AKIAEXAMPLE")

	decrypted, err := v.DecryptCredentials(stored.EncryptedCredentials)
	require.NoError(t, err)
	assert.Equal(t, "secret", decrypted["secret_access_key"])
}

func TestCreate_RejectsUnknownType(t *testing.T) {
	registry, _, _ := setupRegistry(t, config.DeletePolicyBlock)

	_, err := registry.Create(context.Background(), 1, CreateInput{
		Name:         "bad",
		ProviderType: "ftp",
	})
	assert.Equal(t, errs.KindValidation, errs.KindOf(err))
}

func TestCreate_DuplicateNameConflict(t *testing.T) {
	registry, _, _ := setupRegistry(t, config.DeletePolicyBlock)
	ctx := context.Background()

	_, err := registry.Create(ctx, 1, objectStoreInput("minio", false))
	require.NoError(t, err)

	_, err = registry.Create(ctx, 1, objectStoreInput("minio", false))
	assert.Equal(t, errs.KindConflict, errs.KindOf(err))
}

func TestResponseNeverLeaksCredentials(t *testing.T) {
	registry, _, _ := setupRegistry(t, config.DeletePolicyBlock)

	created, err := registry.Create(context.Background(), 1, objectStoreInput("minio", true))
	require.NoError(t, err)

	resp := created.ToResponse()
	assert.True(t, resp.HasCredentials)
	rendered := fmt.Sprintf("%+v", resp)
	assert.NotContains(t, rendered, "AKIAEXAMPLE")
	assert.NotContains(t, rendered, vault.EncPrefixV1)
}

func TestUpdate_ReplacesCredentials(t *testing.T) {
	registry, _, v := setupRegistry(t, config.DeletePolicyBlock)
	ctx := context.Background()

	created, err := registry.Create(ctx, 1, objectStoreInput("minio", false))
	require.NoError(t, err)

	updated, err := registry.Update(ctx, 1, created.ID, UpdateInput{
		Credentials: map[string]string{
			"access_key_id":     "AKIAROTATED",
			"secret_access_key": "new-secret",
		},
	})
	require.NoError(t, err)

	decrypted, err := v.DecryptCredentials(updated.EncryptedCredentials)
	require.NoError(t, err)
	assert.Equal(t, "AKIAROTATED", decrypted["access_key_id"])
}

func TestUpdate_WrongUserNotFound(t *testing.T) {
	registry, _, _ := setupRegistry(t, config.DeletePolicyBlock)
	ctx := context.Background()

	created, err := registry.Create(ctx, 1, objectStoreInput("minio", false))
	require.NoError(t, err)

	name := "stolen"
	_, err = registry.Update(ctx, 2, created.ID, UpdateInput{Name: &name})
	assert.Equal(t, errs.KindNotFound, errs.KindOf(err))
}

func TestSetDefault_InactiveConflict(t *testing.T) {
	registry, _, _ := setupRegistry(t, config.DeletePolicyBlock)
	ctx := context.Background()

	inactive := false
	input := objectStoreInput("minio", false)
	input.IsActive = &inactive

	created, err := registry.Create(ctx, 1, input)
	require.NoError(t, err)

	_, err = registry.SetDefault(ctx, 1, created.ID)
	assert.Equal(t, errs.KindConflict, errs.KindOf(err))
}

func TestDelete_BlockPolicy(t *testing.T) {
	registry, db, _ := setupRegistry(t, config.DeletePolicyBlock)
	ctx := context.Background()

	created, err := registry.Create(ctx, 1, objectStoreInput("minio", true))
	require.NoError(t, err)

	require.NoError(t, db.Create(&models.Image{
		UserID:            1,
		StorageProviderID: created.ID,
		OriginalFilename:  "photo.jpg",
		FileSize:          1024,
		ContentType:       "image/jpeg",
		StoragePath:       "user_1/2026/08/20260827_120000_deadbeef.jpg",
	}).Error)

	err = registry.Delete(ctx, 1, created.ID)
	assert.Equal(t, errs.KindConflict, errs.KindOf(err))
}

func TestDelete_OrphanPolicy(t *testing.T) {
	registry, db, _ := setupRegistry(t, config.DeletePolicyOrphan)
	ctx := context.Background()

	created, err := registry.Create(ctx, 1, objectStoreInput("minio", true))
	require.NoError(t, err)

	require.NoError(t, db.Create(&models.Image{
		UserID:            1,
		StorageProviderID: created.ID,
		OriginalFilename:  "photo.jpg",
		FileSize:          1024,
		ContentType:       "image/jpeg",
		StoragePath:       "user_1/2026/08/20260827_120000_cafebabe.jpg",
	}).Error)

	require.NoError(t, registry.Delete(ctx, 1, created.ID))

	_, err = registry.Get(ctx, 1, created.ID)
	assert.Equal(t, errs.KindNotFound, errs.KindOf(err))
}

func TestBackendFor_KeyMismatchIsProviderError(t *testing.T) {
	registry, db, _ := setupRegistry(t, config.DeletePolicyBlock)
	ctx := context.Background()

	created, err := registry.Create(ctx, 1, objectStoreInput("minio", true))
	require.NoError(t, err)

	// 换一把密钥模拟密钥轮换后旧密文无法解密
	otherKey, err := vault.GenerateKey()
	require.NoError(t, err)
	otherVault, err := vault.New(otherKey)
	require.NoError(t, err)
	rotated := NewRegistry(
		providersrepo.NewRepository(db), imagesrepo.NewRepository(db),
		otherVault, 0, config.DeletePolicyBlock,
	)

	provider, err := registry.Get(ctx, 1, created.ID)
	require.NoError(t, err)

	_, err = rotated.BackendFor(provider)
	assert.Equal(t, errs.KindProviderConnection, errs.KindOf(err))
	assert.NotContains(t, err.Error(), "AKIAEXAMPLE")
	assert.NotContains(t, err.Error(), "secret")
}

func TestTestConnection_InvalidConfigReportsError(t *testing.T) {
	registry, _, _ := setupRegistry(t, config.DeletePolicyBlock)
	ctx := context.Background()

	input := objectStoreInput("broken", false)
	input.Config = map[string]string{"bucket": "images"} // endpoint 缺失

	created, err := registry.Create(ctx, 1, input)
	require.NoError(t, err)

	result, err := registry.TestConnection(ctx, 1, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "error", result.Status)
	assert.False(t, strings.Contains(result.Message, "secret"))
}

func TestTestConnection_DoesNotMutateProvider(t *testing.T) {
	registry, db, _ := setupRegistry(t, config.DeletePolicyBlock)
	ctx := context.Background()

	input := objectStoreInput("minio", true)
	input.Config = map[string]string{"bucket": "images"} // endpoint 缺失，探测必然失败

	created, err := registry.Create(ctx, 1, input)
	require.NoError(t, err)

	var before models.StorageProvider
	require.NoError(t, db.First(&before, created.ID).Error)

	result, err := registry.TestConnection(ctx, 1, created.ID)
	require.NoError(t, err)
	require.Equal(t, "error", result.Status)

	// 连接测试只读：失败与否都不许动已持久化的行
	var after models.StorageProvider
	require.NoError(t, db.First(&after, created.ID).Error)
	assert.Equal(t, before.Config, after.Config)
	assert.Equal(t, before.EncryptedCredentials, after.EncryptedCredentials)
	assert.Equal(t, before.IsDefault, after.IsDefault)
	assert.Equal(t, before.IsActive, after.IsActive)
	assert.Equal(t, before.UpdatedAt, after.UpdatedAt)
}

func TestResolveForUpload_InactiveExplicitNotFound(t *testing.T) {
	registry, _, _ := setupRegistry(t, config.DeletePolicyBlock)
	ctx := context.Background()

	inactive := false
	input := objectStoreInput("dormant", false)
	input.IsActive = &inactive

	created, err := registry.Create(ctx, 1, input)
	require.NoError(t, err)

	_, err = registry.ResolveForUpload(ctx, 1, &created.ID)
	assert.Equal(t, errs.KindNotFound, errs.KindOf(err))
}

func TestResolveForUpload(t *testing.T) {
	registry, _, _ := setupRegistry(t, config.DeletePolicyBlock)
	ctx := context.Background()

	_, err := registry.ResolveForUpload(ctx, 1, nil)
	assert.Equal(t, errs.KindNotFound, errs.KindOf(err))

	created, err := registry.Create(ctx, 1, objectStoreInput("minio", true))
	require.NoError(t, err)

	resolved, err := registry.ResolveForUpload(ctx, 1, nil)
	require.NoError(t, err)
	assert.Equal(t, created.ID, resolved.ID)

	explicit, err := registry.ResolveForUpload(ctx, 1, &created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, explicit.ID)

	_, err = registry.ResolveForUpload(ctx, 2, &created.ID)
	assert.Equal(t, errs.KindNotFound, errs.KindOf(err))
}
