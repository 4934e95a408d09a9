package storage

import (
	"fmt"

	"github.com/aikara/image-vault/database/models"
	"github.com/mitchellh/mapstructure"
)

// NewBackend 按封闭枚举构建存储后端。
// config 与解密后的凭据在调用点映射为各变体的类型化参数，
// 返回的 Backend 只存活于本次操作的调用栈，凭据不做任何缓存。
func NewBackend(providerType models.ProviderType, config map[string]string, credentials map[string]string) (Backend, error) {
	switch providerType {
	case models.ProviderObjectStore:
		var cfg ObjectStoreConfig
		var creds ObjectStoreCredentials
		if err := decodeInto(config, &cfg); err != nil {
			return nil, err
		}
		if err := decodeInto(credentials, &creds); err != nil {
			return nil, err
		}
		return newObjectStore(cfg, creds)

	case models.ProviderCloudBucket:
		var cfg CloudBucketConfig
		var creds ObjectStoreCredentials
		if err := decodeInto(config, &cfg); err != nil {
			return nil, err
		}
		if err := decodeInto(credentials, &creds); err != nil {
			return nil, err
		}
		return newCloudBucket(cfg, creds)

	case models.ProviderBlobStore:
		var cfg BlobStoreConfig
		var creds BlobStoreCredentials
		if err := decodeInto(config, &cfg); err != nil {
			return nil, err
		}
		if err := decodeInto(credentials, &creds); err != nil {
			return nil, err
		}
		return newBlobStore(cfg, creds)

	case models.ProviderFileTransfer:
		var cfg FileTransferConfig
		var creds FileTransferCredentials
		if err := decodeInto(config, &cfg); err != nil {
			return nil, err
		}
		if err := decodeInto(credentials, &creds); err != nil {
			return nil, err
		}
		return newFileTransfer(cfg, creds)

	default:
		return nil, fmt.Errorf("unsupported provider type: %s", providerType)
	}
}

// decodeInto 将字符串表解码为类型化配置，数字与布尔走弱类型转换
func decodeInto(src map[string]string, dst interface{}) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           dst,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return fmt.Errorf("failed to build config decoder: %w", err)
	}
	if err := decoder.Decode(src); err != nil {
		return fmt.Errorf("invalid provider configuration: %w", err)
	}
	return nil
}
