package core

import (
	"bytes"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/aikara/image-vault/cache"
	"github.com/aikara/image-vault/config"
	"github.com/aikara/image-vault/database/models"
	accountsrepo "github.com/aikara/image-vault/database/repo/accounts"
	imagesrepo "github.com/aikara/image-vault/database/repo/images"
	providersrepo "github.com/aikara/image-vault/database/repo/providers"
	authSvc "github.com/aikara/image-vault/internal/auth"
	"github.com/aikara/image-vault/internal/optimize"
	imageSvc "github.com/aikara/image-vault/internal/services/image"
	"github.com/aikara/image-vault/internal/services/provider"
	"github.com/aikara/image-vault/internal/vault"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupTestRouter(t *testing.T) *gin.Engine {
	gin.SetMode(gin.TestMode)
	config.InitConfig()

	dsn := fmt.Sprintf("%s?_busy_timeout=5000&_txlock=immediate",
		filepath.Join(t.TempDir(), "test.db"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.User{}, &models.StorageProvider{}, &models.Image{}))

	key, err := vault.GenerateKey()
	require.NoError(t, err)
	credentialVault, err := vault.New(key)
	require.NoError(t, err)

	appCache, err := cache.NewRistretto()
	require.NoError(t, err)
	t.Cleanup(func() { appCache.Close() })

	tokens, err := authSvc.NewTokenService("test-secret", time.Hour)
	require.NoError(t, err)

	providersRepo := providersrepo.NewRepository(db)
	imagesRepo := imagesrepo.NewRepository(db)
	registry := provider.NewRegistry(providersRepo, imagesRepo, credentialVault, 5*time.Second, config.DeletePolicyBlock)
	images := imageSvc.NewService(imagesRepo, registry, optimize.New(2048, 85), appCache, 50<<20, 10, time.Minute)
	auth := authSvc.NewService(accountsrepo.NewRepository(db), tokens)

	router, cleanup := setupRouter(&ServerDependencies{
		DB:       db,
		Cache:    appCache,
		Registry: registry,
		Images:   images,
		Auth:     auth,
		Tokens:   tokens,
	})
	t.Cleanup(cleanup)
	return router
}

func doJSON(t *testing.T, router *gin.Engine, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, req)
	return recorder
}

func TestHealthEndpoint(t *testing.T) {
	router := setupTestRouter(t)

	recorder := doJSON(t, router, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, recorder.Code)
	assert.Contains(t, recorder.Body.String(), `"status":"ok"`)
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	router := setupTestRouter(t)

	recorder := doJSON(t, router, http.MethodGet, "/api/v1/providers", "", nil)
	assert.Equal(t, http.StatusUnauthorized, recorder.Code)

	recorder = doJSON(t, router, http.MethodGet, "/api/v1/images", "invalid-token", nil)
	assert.Equal(t, http.StatusUnauthorized, recorder.Code)
}

func TestRegisterLoginAndProviderFlow(t *testing.T) {
	router := setupTestRouter(t)

	recorder := doJSON(t, router, http.MethodPost, "/api/auth/register", "", gin.H{
		"username": "alice",
		"password": "hunter2hunter2",
	})
	require.Equal(t, http.StatusOK, recorder.Code)

	recorder = doJSON(t, router, http.MethodPost, "/api/auth/login", "", gin.H{
		"username": "alice",
		"password": "hunter2hunter2",
	})
	require.Equal(t, http.StatusOK, recorder.Code)

	var login struct {
		Data struct {
			Token string `json:"token"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &login))
	require.NotEmpty(t, login.Data.Token)

	recorder = doJSON(t, router, http.MethodPost, "/api/v1/providers", login.Data.Token, gin.H{
		"name":          "minio",
		"provider_type": "object-store",
		"config":        gin.H{"endpoint": "minio.example.com", "bucket": "images"},
		"credentials":   gin.H{"access_key_id": "AKIAEXAMPLE", "secret_access_key": "secret"},
		"is_default":    true,
	})
	require.Equal(t, http.StatusOK, recorder.Code)
	// 凭据绝不回传
	assert.NotContains(t, recorder.Body.String(), "AKIAEXAMPLE")
	assert.NotContains(t, recorder.Body.String(), "encrypted_credentials")

	recorder = doJSON(t, router, http.MethodGet, "/api/v1/providers", login.Data.Token, nil)
	require.Equal(t, http.StatusOK, recorder.Code)
	assert.Contains(t, recorder.Body.String(), `"minio"`)
	assert.Contains(t, recorder.Body.String(), `"has_credentials":true`)
}

func TestUploadRejectsMalformedProviderID(t *testing.T) {
	router := setupTestRouter(t)

	recorder := doJSON(t, router, http.MethodPost, "/api/auth/register", "", gin.H{
		"username": "carol",
		"password": "hunter2hunter2",
	})
	require.Equal(t, http.StatusOK, recorder.Code)

	recorder = doJSON(t, router, http.MethodPost, "/api/auth/login", "", gin.H{
		"username": "carol",
		"password": "hunter2hunter2",
	})
	require.Equal(t, http.StatusOK, recorder.Code)

	var login struct {
		Data struct {
			Token string `json:"token"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &login))

	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	part, err := form.CreateFormFile("file", "photo.jpg")
	require.NoError(t, err)
	_, err = part.Write([]byte("not-really-a-jpeg"))
	require.NoError(t, err)
	require.NoError(t, form.WriteField("provider_id", "abc"))
	require.NoError(t, form.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/images/upload", &body)
	req.Header.Set("Content-Type", form.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+login.Data.Token)

	// 坏的 provider_id 必须报 400，不能静默落到默认提供者
	uploadRecorder := httptest.NewRecorder()
	router.ServeHTTP(uploadRecorder, req)
	assert.Equal(t, http.StatusBadRequest, uploadRecorder.Code)
	assert.Contains(t, uploadRecorder.Body.String(), "provider_id")
}

func TestLoginRejectsBadPassword(t *testing.T) {
	router := setupTestRouter(t)

	recorder := doJSON(t, router, http.MethodPost, "/api/auth/register", "", gin.H{
		"username": "bob",
		"password": "hunter2hunter2",
	})
	require.Equal(t, http.StatusOK, recorder.Code)

	recorder = doJSON(t, router, http.MethodPost, "/api/auth/login", "", gin.H{
		"username": "bob",
		"password": "wrong-password",
	})
	assert.Equal(t, http.StatusBadRequest, recorder.Code)
}
