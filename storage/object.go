package storage

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/aikara/image-vault/database/models"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ObjectStoreConfig S3 兼容对象存储的非敏感参数
type ObjectStoreConfig struct {
	Endpoint string `mapstructure:"endpoint"`
	Bucket   string `mapstructure:"bucket"`
	Region   string `mapstructure:"region"`
	UseSSL   bool   `mapstructure:"use_ssl"`
}

// ObjectStoreCredentials 对象存储凭据
type ObjectStoreCredentials struct {
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
}

// objectStore S3 兼容对象存储后端
type objectStore struct {
	client *minio.Client
	bucket string
	kind   models.ProviderType
}

// newS3Client 构建 minio 客户端，object-store 与 cloud-bucket 共用
func newS3Client(endpoint, region string, useSSL bool, creds ObjectStoreCredentials) (*minio.Client, error) {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        64,
		MaxIdleConnsPerHost: 16,
		IdleConnTimeout:     time.Minute,
		TLSHandshakeTimeout: 10 * time.Second,
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:     credentials.NewStaticV4(creds.AccessKeyID, creds.SecretAccessKey, ""),
		Secure:    useSSL,
		Region:    region,
		Transport: transport,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize object storage client: %w", err)
	}
	return client, nil
}

// newObjectStore 创建 object-store 后端
func newObjectStore(cfg ObjectStoreConfig, creds ObjectStoreCredentials) (Backend, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("object-store endpoint is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("object-store bucket is required")
	}

	client, err := newS3Client(cfg.Endpoint, cfg.Region, cfg.UseSSL, creds)
	if err != nil {
		return nil, err
	}

	return &objectStore{
		client: client,
		bucket: cfg.Bucket,
		kind:   models.ProviderObjectStore,
	}, nil
}

// Upload 上传对象。PutObject 对同名对象为覆盖写。
func (s *objectStore) Upload(ctx context.Context, path string, file io.Reader, size int64, contentType string) (string, error) {
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	_, err := s.client.PutObject(ctx, s.bucket, path, file, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload object '%s': %w", path, err)
	}
	return path, nil
}

// Delete 删除对象。S3 删除语义本身幂等，对象不存在同样返回成功。
func (s *objectStore) Delete(ctx context.Context, path string) error {
	err := s.client.RemoveObject(ctx, s.bucket, path, minio.RemoveObjectOptions{})
	if err != nil {
		resp := minio.ToErrorResponse(err)
		if resp.Code == "NoSuchKey" || resp.StatusCode == http.StatusNotFound {
			return nil
		}
		return fmt.Errorf("failed to delete object '%s': %w", path, err)
	}
	return nil
}

// TestConnection 探测桶是否可达，只读
func (s *objectStore) TestConnection(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("failed to reach bucket '%s': %w", s.bucket, err)
	}
	if !exists {
		return fmt.Errorf("bucket '%s' does not exist", s.bucket)
	}
	return nil
}

func (s *objectStore) Kind() models.ProviderType {
	return s.kind
}
