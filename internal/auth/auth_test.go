package auth

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/aikara/image-vault/database/models"
	accountsrepo "github.com/aikara/image-vault/database/repo/accounts"
	"github.com/aikara/image-vault/internal/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupAuth(t *testing.T) *Service {
	dsn := fmt.Sprintf("%s?_busy_timeout=5000&_txlock=immediate",
		filepath.Join(t.TempDir(), "test.db"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.User{}))

	tokens, err := NewTokenService("test-secret", time.Hour)
	require.NoError(t, err)
	return NewService(accountsrepo.NewRepository(db), tokens)
}

func TestRegisterAndLogin(t *testing.T) {
	svc := setupAuth(t)
	ctx := context.Background()

	user, err := svc.Register(ctx, "alice", "hunter2hunter2")
	require.NoError(t, err)
	assert.NotEqual(t, "hunter2hunter2", user.Password)

	result, err := svc.Login(ctx, "alice", "hunter2hunter2")
	require.NoError(t, err)
	assert.NotEmpty(t, result.Token)
	assert.Equal(t, user.ID, result.UserID)
}

func TestLogin_UniformErrorMessage(t *testing.T) {
	svc := setupAuth(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, "alice", "hunter2hunter2")
	require.NoError(t, err)

	_, wrongPassword := svc.Login(ctx, "alice", "wrong")
	_, unknownUser := svc.Login(ctx, "nobody", "wrong")

	require.Error(t, wrongPassword)
	require.Error(t, unknownUser)
	assert.Equal(t, errs.MessageOf(wrongPassword), errs.MessageOf(unknownUser))
}

func TestRegister_DuplicateUsername(t *testing.T) {
	svc := setupAuth(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, "alice", "hunter2hunter2")
	require.NoError(t, err)

	_, err = svc.Register(ctx, "alice", "another-password")
	assert.Equal(t, errs.KindConflict, errs.KindOf(err))
}

func TestRegister_WeakInputs(t *testing.T) {
	svc := setupAuth(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, "al", "hunter2hunter2")
	assert.Equal(t, errs.KindValidation, errs.KindOf(err))

	_, err = svc.Register(ctx, "alice", "short")
	assert.Equal(t, errs.KindValidation, errs.KindOf(err))
}

func TestTokenRoundTrip(t *testing.T) {
	tokens, err := NewTokenService("test-secret", time.Hour)
	require.NoError(t, err)

	token, expiry, err := tokens.Generate("alice", 42)
	require.NoError(t, err)
	assert.True(t, expiry.After(time.Now()))

	claims, err := tokens.Parse(token)
	require.NoError(t, err)

	userID, username, err := Identity(claims)
	require.NoError(t, err)
	assert.Equal(t, uint(42), userID)
	assert.Equal(t, "alice", username)
}

func TestToken_WrongSecretRejected(t *testing.T) {
	tokens, err := NewTokenService("test-secret", time.Hour)
	require.NoError(t, err)
	other, err := NewTokenService("other-secret", time.Hour)
	require.NoError(t, err)

	token, _, err := tokens.Generate("alice", 42)
	require.NoError(t, err)

	_, err = other.Parse(token)
	assert.Error(t, err)
}

func TestNewTokenService_RequiresSecret(t *testing.T) {
	_, err := NewTokenService("", time.Hour)
	assert.Error(t, err)
}
