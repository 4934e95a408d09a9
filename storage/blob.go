package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"strings"

	"github.com/aikara/image-vault/database/models"
	"github.com/studio-b12/gowebdav"
)

// BlobStoreConfig WebDAV 块存储的非敏感参数
type BlobStoreConfig struct {
	URL      string `mapstructure:"url"`
	RootPath string `mapstructure:"root_path"`
}

// BlobStoreCredentials WebDAV 凭据
type BlobStoreCredentials struct {
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

// blobStore WebDAV 块存储后端
type blobStore struct {
	client   *gowebdav.Client
	rootPath string
}

// newBlobStore 创建 blob-store 后端
func newBlobStore(cfg BlobStoreConfig, creds BlobStoreCredentials) (Backend, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("blob-store url is required")
	}

	rootPath := strings.Trim(cfg.RootPath, "/")
	if rootPath != "" {
		rootPath = "/" + rootPath
	}

	return &blobStore{
		client:   gowebdav.NewClient(cfg.URL, creds.Username, creds.Password),
		rootPath: rootPath,
	}, nil
}

// fullPath 拼接完整远端路径
func (s *blobStore) fullPath(storagePath string) string {
	storagePath = strings.TrimLeft(storagePath, "/")
	if s.rootPath != "" {
		return s.rootPath + "/" + storagePath
	}
	return "/" + storagePath
}

// ensureParentDir 逐级创建父集合
func (s *blobStore) ensureParentDir(ctx context.Context, fullPath string) error {
	parentDir := path.Dir(fullPath)
	if parentDir == "/" || parentDir == "." {
		return nil
	}

	parts := strings.Split(strings.Trim(parentDir, "/"), "/")
	currentPath := ""

	for _, part := range parts {
		if part == "" {
			continue
		}
		currentPath = currentPath + "/" + part

		p := currentPath
		err := runWithContext(ctx, func() error {
			return s.client.Mkdir(p, os.FileMode(0755))
		})
		if err != nil && !isCollectionExistsError(err) {
			return fmt.Errorf("failed to create directory %s: %w", p, err)
		}
	}
	return nil
}

// isCollectionExistsError 判断是否为集合已存在类错误
func isCollectionExistsError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	for _, s := range []string{"already exists", "Conflict", "conflict", "409", "Method Not Allowed", "405"} {
		if strings.Contains(errStr, s) {
			return true
		}
	}
	return false
}

// Upload 写入文件。WebDAV PUT 对同名资源为覆盖写。
func (s *blobStore) Upload(ctx context.Context, storagePath string, file io.Reader, size int64, contentType string) (string, error) {
	fullPath := s.fullPath(storagePath)

	if err := s.ensureParentDir(ctx, fullPath); err != nil {
		return "", err
	}

	data, err := io.ReadAll(file)
	if err != nil {
		return "", fmt.Errorf("failed to read upload stream: %w", err)
	}

	err = runWithContext(ctx, func() error {
		return s.client.Write(fullPath, data, 0644)
	})
	if err != nil {
		return "", fmt.Errorf("failed to write file %s: %w", storagePath, err)
	}
	return storagePath, nil
}

// Delete 删除文件，404 视为成功
func (s *blobStore) Delete(ctx context.Context, storagePath string) error {
	fullPath := s.fullPath(storagePath)

	err := runWithContext(ctx, func() error {
		return s.client.Remove(fullPath)
	})
	if err != nil {
		if gowebdav.IsErrNotFound(err) {
			return nil
		}
		return fmt.Errorf("failed to delete file %s: %w", storagePath, err)
	}
	return nil
}

// TestConnection 读取根集合验证连接
func (s *blobStore) TestConnection(ctx context.Context) error {
	root := s.rootPath
	if root == "" {
		root = "/"
	}
	return runWithContext(ctx, func() error {
		_, err := s.client.ReadDir(root)
		return err
	})
}

func (s *blobStore) Kind() models.ProviderType {
	return models.ProviderBlobStore
}
