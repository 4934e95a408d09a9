package auth

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/aikara/image-vault/database/models"
	accountsrepo "github.com/aikara/image-vault/database/repo/accounts"
	"github.com/aikara/image-vault/internal/errs"
	"github.com/aikara/image-vault/utils/crypto"
	"gorm.io/gorm"
)

// Service 登录与注册
type Service struct {
	accounts *accountsrepo.Repository
	tokens   *TokenService
}

// NewService 创建认证服务
func NewService(accounts *accountsrepo.Repository, tokens *TokenService) *Service {
	return &Service{accounts: accounts, tokens: tokens}
}

// LoginResult 登录结果
type LoginResult struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	UserID    uint      `json:"user_id"`
	Username  string    `json:"username"`
}

// Login 校验密码并签发令牌。用户不存在和密码错误返回同一消息，
// 不给枚举用户名留口子。
func (s *Service) Login(ctx context.Context, username, password string) (*LoginResult, error) {
	user, err := s.accounts.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.Validation("invalid username or password")
		}
		return nil, errs.Internal("failed to load user", err)
	}

	ok, err := crypto.CompareHashAndPassword(user.Password, password)
	if err != nil || !ok {
		return nil, errs.Validation("invalid username or password")
	}

	token, expiry, err := s.tokens.Generate(user.Username, user.ID)
	if err != nil {
		return nil, errs.Internal("failed to issue token", err)
	}

	log.Printf("[Auth] User %s logged in", user.Username)
	return &LoginResult{
		Token:     token,
		ExpiresAt: expiry,
		UserID:    user.ID,
		Username:  user.Username,
	}, nil
}

// Register 创建用户，密码以 Argon2id 哈希存储
func (s *Service) Register(ctx context.Context, username, password string) (*models.User, error) {
	if len(username) < 3 {
		return nil, errs.Validation("username must be at least 3 characters")
	}
	if len(password) < 8 {
		return nil, errs.Validation("password must be at least 8 characters")
	}

	hashed, err := crypto.GenerateFromPassword(password)
	if err != nil {
		return nil, errs.Internal("failed to hash password", err)
	}

	user := &models.User{Username: username, Password: hashed}
	if err := s.accounts.Create(ctx, user); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, errs.Conflict("username already taken")
		}
		return nil, errs.Internal("failed to create user", err)
	}
	return user, nil
}
