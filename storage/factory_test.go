package storage

import (
	"errors"
	"testing"

	"github.com/aikara/image-vault/database/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewBackend_ObjectStore(t *testing.T) {
	backend, err := NewBackend(models.ProviderObjectStore,
		map[string]string{
			"endpoint": "minio.example.com:9000",
			"bucket":   "images",
			"use_ssl":  "true",
		},
		map[string]string{
			"access_key_id":     "key",
			"secret_access_key": "secret",
		},
	)
	require.NoError(t, err)
	assert.Equal(t, models.ProviderObjectStore, backend.Kind())
}

func TestNewBackend_ObjectStoreMissingBucket(t *testing.T) {
	_, err := NewBackend(models.ProviderObjectStore,
		map[string]string{"endpoint": "minio.example.com:9000"},
		map[string]string{"access_key_id": "key", "secret_access_key": "secret"},
	)
	assert.Error(t, err)
}

func TestNewBackend_CloudBucketDefaultsEndpoint(t *testing.T) {
	backend, err := NewBackend(models.ProviderCloudBucket,
		map[string]string{"bucket": "my-bucket"},
		map[string]string{"access_key_id": "hmac", "secret_access_key": "hmac-secret"},
	)
	require.NoError(t, err)
	assert.Equal(t, models.ProviderCloudBucket, backend.Kind())
}

func TestNewBackend_BlobStore(t *testing.T) {
	backend, err := NewBackend(models.ProviderBlobStore,
		map[string]string{"url": "https://dav.example.com", "root_path": "images"},
		map[string]string{"username": "user", "password": "pass"},
	)
	require.NoError(t, err)
	assert.Equal(t, models.ProviderBlobStore, backend.Kind())
}

func TestNewBackend_BlobStoreRequiresURL(t *testing.T) {
	_, err := NewBackend(models.ProviderBlobStore,
		map[string]string{},
		map[string]string{"username": "user", "password": "pass"},
	)
	assert.Error(t, err)
}

func TestNewBackend_FileTransfer(t *testing.T) {
	backend, err := NewBackend(models.ProviderFileTransfer,
		map[string]string{"host": "sftp.example.com", "port": "2222", "remote_path": "/srv/images"},
		map[string]string{"username": "user", "password": "pass"},
	)
	require.NoError(t, err)
	assert.Equal(t, models.ProviderFileTransfer, backend.Kind())
}

func TestNewBackend_FileTransferRequiresAuth(t *testing.T) {
	_, err := NewBackend(models.ProviderFileTransfer,
		map[string]string{"host": "sftp.example.com"},
		map[string]string{"username": "user"},
	)
	assert.Error(t, err)
}

func TestNewBackend_UnknownType(t *testing.T) {
	_, err := NewBackend(models.ProviderType("ftp"), nil, nil)
	assert.Error(t, err)
}

func TestBlobStore_FullPath(t *testing.T) {
	s := &blobStore{rootPath: "/images"}
	assert.Equal(t, "/images/user_1/a.jpg", s.fullPath("user_1/a.jpg"))
	assert.Equal(t, "/images/user_1/a.jpg", s.fullPath("/user_1/a.jpg"))

	s = &blobStore{rootPath: ""}
	assert.Equal(t, "/user_1/a.jpg", s.fullPath("user_1/a.jpg"))
}

func TestIsCollectionExistsError(t *testing.T) {
	assert.False(t, isCollectionExistsError(nil))
	assert.False(t, isCollectionExistsError(errors.New("connection refused")))
	assert.True(t, isCollectionExistsError(errors.New("409 Conflict")))
	assert.True(t, isCollectionExistsError(errors.New("collection already exists")))
}
