package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aikara/image-vault/internal/errs"
)

const (
	// EncPrefixV1 AES-256-GCM 密文版本前缀
	EncPrefixV1 = "__VAULT:v1:"
	// KeySize 主密钥长度（AES-256）
	KeySize = 32
)

// ErrInvalidKey 主密钥缺失或长度不合法，属于启动期致命错误
var ErrInvalidKey = errors.New("vault master key must be exactly 32 bytes")

// Vault 凭据保管库，用进程级对称密钥加解密任意凭据表。
// 密钥在启动时显式注入，构造后只读，不需要加锁。
type Vault struct {
	key []byte
}

// New 创建保管库，密钥必须为 32 字节
func New(key []byte) (*Vault, error) {
	if len(key) != KeySize {
		return nil, ErrInvalidKey
	}
	k := make([]byte, KeySize)
	copy(k, key)
	return &Vault{key: k}, nil
}

// EncryptCredentials 序列化并加密凭据表，返回带版本前缀的密文
func (v *Vault) EncryptCredentials(credentials map[string]string) (string, error) {
	plaintext, err := json.Marshal(credentials)
	if err != nil {
		return "", errs.Encryption("failed to serialize credentials", err)
	}
	return v.seal(plaintext)
}

// DecryptCredentials 解密密文并还原凭据表。
// 密钥轮换或密文损坏返回 Decryption 类错误，绝不 panic。
func (v *Vault) DecryptCredentials(ciphertext string) (map[string]string, error) {
	plaintext, err := v.open(ciphertext)
	if err != nil {
		return nil, err
	}

	var credentials map[string]string
	if err := json.Unmarshal(plaintext, &credentials); err != nil {
		return nil, errs.Decryption("credential payload is corrupt", err)
	}
	return credentials, nil
}

// seal AES-256-GCM 加密
func (v *Vault) seal(plaintext []byte) (string, error) {
	block, err := aes.NewCipher(v.key)
	if err != nil {
		return "", errs.Encryption("failed to create cipher", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", errs.Encryption("failed to create GCM", err)
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", errs.Encryption("failed to generate nonce", err)
	}

	sealed := gcm.Seal(nonce, nonce, plaintext, nil)
	return EncPrefixV1 + base64.StdEncoding.EncodeToString(sealed), nil
}

// open 校验前缀并解密
func (v *Vault) open(ciphertext string) ([]byte, error) {
	if !strings.HasPrefix(ciphertext, EncPrefixV1) {
		return nil, errs.Decryption("unknown ciphertext version", nil)
	}

	data, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(ciphertext, EncPrefixV1))
	if err != nil {
		return nil, errs.Decryption("ciphertext is not valid base64", err)
	}

	block, err := aes.NewCipher(v.key)
	if err != nil {
		return nil, errs.Decryption("failed to create cipher", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, errs.Decryption("failed to create GCM", err)
	}

	nonceSize := gcm.NonceSize()
	if len(data) < nonceSize {
		return nil, errs.Decryption("ciphertext too short", nil)
	}

	nonce, sealed := data[:nonceSize], data[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		// GCM 认证失败：密钥已轮换或密文被篡改
		return nil, errs.Decryption("failed to decrypt credentials", err)
	}
	return plaintext, nil
}

// IsEncrypted 检查字符串是否为保管库密文
func IsEncrypted(s string) bool {
	return strings.HasPrefix(s, EncPrefixV1)
}

// GenerateKey 生成新的随机主密钥
func GenerateKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("failed to generate master key: %w", err)
	}
	return key, nil
}
