package vault

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"log"
	"os"
	"path/filepath"
)

const (
	// MasterKeyEnv 环境变量名，优先于密钥文件
	MasterKeyEnv = "VAULT_MASTER_KEY"
	// MasterKeyFile 密钥文件名
	MasterKeyFile = "master.key"
)

// LoadMasterKey 加载主密钥。
// 优先级：环境变量 > 数据目录密钥文件 > 生成新密钥写入文件。
// 密钥本身永不打日志，只输出来源和 SHA-256 指纹前 8 字节。
func LoadMasterKey(dataPath string) ([]byte, error) {
	if envKey := os.Getenv(MasterKeyEnv); envKey != "" {
		key, err := base64.StdEncoding.DecodeString(envKey)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", MasterKeyEnv, err)
		}
		if len(key) != KeySize {
			return nil, fmt.Errorf("%s must decode to %d bytes, got %d", MasterKeyEnv, KeySize, len(key))
		}
		printFingerprint("env", key)
		return key, nil
	}

	keyPath := filepath.Join(dataPath, MasterKeyFile)
	if data, err := os.ReadFile(keyPath); err == nil {
		key, err := base64.StdEncoding.DecodeString(string(data))
		if err != nil {
			return nil, fmt.Errorf("invalid master key file %s: %w", keyPath, err)
		}
		if len(key) != KeySize {
			return nil, fmt.Errorf("master key file must decode to %d bytes, got %d", KeySize, len(key))
		}
		printFingerprint("file", key)
		return key, nil
	}

	key, err := GenerateKey()
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Dir(keyPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create key directory: %w", err)
	}
	encoded := base64.StdEncoding.EncodeToString(key)
	if err := os.WriteFile(keyPath, []byte(encoded), 0600); err != nil {
		return nil, fmt.Errorf("failed to write master key file: %w", err)
	}

	printFingerprint("generated", key)
	return key, nil
}

// printFingerprint 打印密钥来源和指纹
func printFingerprint(source string, key []byte) {
	hash := sha256.Sum256(key)
	log.Printf("[Vault] Master key source: %s", source)
	log.Printf("[Vault] Master key fingerprint: %s", hex.EncodeToString(hash[:8]))
}
