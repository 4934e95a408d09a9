package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenService 签发与校验访问令牌
type TokenService struct {
	secret []byte
	expiry time.Duration
}

// NewTokenService 创建令牌服务，密钥不能为空
func NewTokenService(secret string, expiry time.Duration) (*TokenService, error) {
	if secret == "" {
		return nil, errors.New("JWT secret is not configured")
	}
	if expiry <= 0 {
		expiry = 24 * time.Hour
	}
	return &TokenService{secret: []byte(secret), expiry: expiry}, nil
}

// Generate 签发访问令牌
func (s *TokenService) Generate(username string, userID uint) (string, time.Time, error) {
	expiry := time.Now().Add(s.expiry)
	claims := jwt.MapClaims{
		"username": username,
		"user_id":  userID,
		"type":     "access",
		"exp":      expiry.Unix(),
		"iat":      time.Now().Unix(),
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign access token: %w", err)
	}
	return token, expiry, nil
}

// Parse 解析并校验令牌，只接受 HMAC 签名
func (s *TokenService) Parse(tokenString string) (jwt.MapClaims, error) {
	tokenString = strings.TrimPrefix(tokenString, "Bearer ")

	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}

// Identity 从 claims 取出用户身份
func Identity(claims jwt.MapClaims) (uint, string, error) {
	idValue, ok := claims["user_id"].(float64)
	if !ok {
		return 0, "", errors.New("user_id missing from token claims")
	}
	username, ok := claims["username"].(string)
	if !ok {
		return 0, "", errors.New("username missing from token claims")
	}
	return uint(idValue), username, nil
}
