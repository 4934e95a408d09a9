package providers

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/aikara/image-vault/database/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// setupTestDB 创建测试数据库
func setupTestDB(t *testing.T) *gorm.DB {
	dsn := fmt.Sprintf("%s?_busy_timeout=5000&_txlock=immediate",
		filepath.Join(t.TempDir(), "test.db"))

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	err = db.AutoMigrate(&models.User{}, &models.StorageProvider{}, &models.Image{})
	require.NoError(t, err)
	return db
}

func newProvider(userID uint, name string, isDefault bool) *models.StorageProvider {
	return &models.StorageProvider{
		UserID:       userID,
		Name:         name,
		ProviderType: models.ProviderObjectStore,
		Config:       map[string]string{"bucket": "images"},
		IsDefault:    isDefault,
		IsActive:     true,
	}
}

func TestCreate_FirstDefault(t *testing.T) {
	repo := NewRepository(setupTestDB(t))
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, newProvider(1, "a", true)))

	count, err := repo.CountDefaults(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestCreate_SecondDefaultClearsFirst(t *testing.T) {
	repo := NewRepository(setupTestDB(t))
	ctx := context.Background()

	a := newProvider(1, "a", true)
	require.NoError(t, repo.Create(ctx, a))

	b := newProvider(1, "b", true)
	require.NoError(t, repo.Create(ctx, b))

	count, err := repo.CountDefaults(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	reloaded, err := repo.GetByIDAndUser(ctx, a.ID, 1)
	require.NoError(t, err)
	assert.False(t, reloaded.IsDefault)
}

func TestSetDefault_SwitchesExactlyOne(t *testing.T) {
	repo := NewRepository(setupTestDB(t))
	ctx := context.Background()

	a := newProvider(1, "a", true)
	b := newProvider(1, "b", false)
	require.NoError(t, repo.Create(ctx, a))
	require.NoError(t, repo.Create(ctx, b))

	updated, err := repo.SetDefault(ctx, 1, b.ID)
	require.NoError(t, err)
	assert.True(t, updated.IsDefault)

	reloadedA, err := repo.GetByIDAndUser(ctx, a.ID, 1)
	require.NoError(t, err)
	assert.False(t, reloadedA.IsDefault)

	count, err := repo.CountDefaults(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestSetDefault_WrongUser(t *testing.T) {
	repo := NewRepository(setupTestDB(t))
	ctx := context.Background()

	a := newProvider(1, "a", false)
	require.NoError(t, repo.Create(ctx, a))

	// 混淆代理：其它用户拿到了 id 也改不了
	_, err := repo.SetDefault(ctx, 2, a.ID)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

	count, err := repo.CountDefaults(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)
}

func TestSetDefault_ConcurrentCallsLeaveOneDefault(t *testing.T) {
	repo := NewRepository(setupTestDB(t))
	ctx := context.Background()

	var ids []uint
	for i := 0; i < 4; i++ {
		p := newProvider(1, fmt.Sprintf("p%d", i), false)
		require.NoError(t, repo.Create(ctx, p))
		ids = append(ids, p.ID)
	}

	var wg sync.WaitGroup
	for _, id := range ids {
		for i := 0; i < 3; i++ {
			wg.Add(1)
			go func(id uint) {
				defer wg.Done()
				// 输者观察到赢者的结果即可，错误（锁竞争超时）不破坏不变量
				_, _ = repo.SetDefault(ctx, 1, id)
			}(id)
		}
	}
	wg.Wait()

	// 核心不变量：任何交错之后默认数量恰为一
	count, err := repo.CountDefaults(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestSetDefault_IsolatedPerUser(t *testing.T) {
	repo := NewRepository(setupTestDB(t))
	ctx := context.Background()

	u1 := newProvider(1, "a", true)
	u2 := newProvider(2, "a", true)
	require.NoError(t, repo.Create(ctx, u1))
	require.NoError(t, repo.Create(ctx, u2))

	_, err := repo.SetDefault(ctx, 1, u1.ID)
	require.NoError(t, err)

	count, err := repo.CountDefaults(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count, "user 2's default must be untouched")
}

func TestGetDefaultByUser_SkipsInactive(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	p := newProvider(1, "a", true)
	require.NoError(t, repo.Create(ctx, p))

	require.NoError(t, db.Model(p).Update("is_active", false).Error)

	_, err := repo.GetDefaultByUser(ctx, 1)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestSetDefault_InactiveRejectedInTransaction(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	current := newProvider(1, "a", true)
	require.NoError(t, repo.Create(ctx, current))

	target := newProvider(1, "b", false)
	require.NoError(t, repo.Create(ctx, target))
	require.NoError(t, db.Model(target).Update("is_active", false).Error)

	// 激活复核在事务内，停用后的目标不能抢到默认
	_, err := repo.SetDefault(ctx, 1, target.ID)
	assert.ErrorIs(t, err, ErrProviderInactive)

	stored, err := repo.GetDefaultByUser(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, current.ID, stored.ID, "existing default must survive the rejected switch")
}
