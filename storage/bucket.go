package storage

import (
	"fmt"

	"github.com/aikara/image-vault/database/models"
)

// gcsInteropEndpoint GCS 的 S3 互操作 XML 端点
const gcsInteropEndpoint = "storage.googleapis.com"

// CloudBucketConfig 云桶非敏感参数。endpoint 可覆盖，默认走 GCS 互操作端点。
type CloudBucketConfig struct {
	Endpoint string `mapstructure:"endpoint"`
	Bucket   string `mapstructure:"bucket"`
}

// newCloudBucket 创建 cloud-bucket 后端。
// 复用 S3 协议实现，凭据为 GCS 的 HMAC 互操作密钥。
func newCloudBucket(cfg CloudBucketConfig, creds ObjectStoreCredentials) (Backend, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("cloud-bucket bucket is required")
	}

	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = gcsInteropEndpoint
	}

	client, err := newS3Client(endpoint, "", true, creds)
	if err != nil {
		return nil, err
	}

	return &objectStore{
		client: client,
		bucket: cfg.Bucket,
		kind:   models.ProviderCloudBucket,
	}, nil
}
