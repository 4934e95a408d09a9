package image

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/aikara/image-vault/cache"
	"github.com/aikara/image-vault/database/models"
	imagesrepo "github.com/aikara/image-vault/database/repo/images"
	"github.com/aikara/image-vault/internal/errs"
	"github.com/aikara/image-vault/internal/optimize"
	"github.com/aikara/image-vault/storage"
	"github.com/aikara/image-vault/utils/validator"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

// BackendRegistry 编排器对提供者注册表的依赖面
type BackendRegistry interface {
	ResolveForUpload(ctx context.Context, userID uint, providerID *uint) (*models.StorageProvider, error)
	GetIncludingDeleted(ctx context.Context, userID, id uint) (*models.StorageProvider, error)
	BackendFor(provider *models.StorageProvider) (storage.Backend, error)
	OpTimeout() time.Duration
}

// Service 上传编排器。校验、解析后端、优化、上传、落库，
// 落库失败时补偿删除已上传对象，避免孤儿文件。
type Service struct {
	images   *imagesrepo.Repository
	registry BackendRegistry
	pipeline *optimize.Pipeline
	cache    cache.Cache

	maxUploadBytes int64
	maxBatchFiles  int
	cacheTTL       time.Duration
}

// NewService 创建上传编排器
func NewService(
	images *imagesrepo.Repository,
	registry BackendRegistry,
	pipeline *optimize.Pipeline,
	c cache.Cache,
	maxUploadBytes int64,
	maxBatchFiles int,
	cacheTTL time.Duration,
) *Service {
	if maxBatchFiles <= 0 {
		maxBatchFiles = 10
	}
	if cacheTTL <= 0 {
		cacheTTL = 5 * time.Minute
	}
	return &Service{
		images:         images,
		registry:       registry,
		pipeline:       pipeline,
		cache:          c,
		maxUploadBytes: maxUploadBytes,
		maxBatchFiles:  maxBatchFiles,
		cacheTTL:       cacheTTL,
	}
}

// UploadInput 单文件上传输入
type UploadInput struct {
	Filename    string
	ContentType string
	Data        []byte
	ProviderID  *uint
	Tags        []string
	Optimize    bool
}

// Upload 执行完整上传序列。任一前置步骤失败都不会触碰远端，
// 远端写成功而落库失败时补偿删除。
func (s *Service) Upload(ctx context.Context, userID uint, input UploadInput) (*models.Image, error) {
	if err := s.validate(input); err != nil {
		return nil, err
	}

	target, err := s.registry.ResolveForUpload(ctx, userID, input.ProviderID)
	if err != nil {
		return nil, err
	}

	result, err := s.pipeline.Process(input.Data, input.Optimize)
	if err != nil {
		return nil, err
	}

	backend, err := s.registry.BackendFor(target)
	if err != nil {
		return nil, err
	}

	path := storage.GeneratePath(userID, input.Filename, time.Now())
	contentType := mimeFromFormat(result.Format)

	uploadCtx, cancel := context.WithTimeout(ctx, s.registry.OpTimeout())
	defer cancel()

	storedPath, err := backend.Upload(uploadCtx, path, bytes.NewReader(result.Data), int64(len(result.Data)), contentType)
	if err != nil {
		return nil, errs.ProviderConnection(fmt.Sprintf("failed to upload to %s backend", backend.Kind()), err)
	}

	record := s.buildRecord(userID, target.ID, storedPath, contentType, input, result)
	if err := s.images.Create(ctx, record); err != nil {
		s.compensateDelete(backend, storedPath)
		return nil, errs.Internal("failed to persist image record", err)
	}

	s.invalidateStats(ctx, userID)
	log.Printf("[Upload] User %d uploaded %s to %s (%d -> %d bytes, optimized=%v)",
		userID, input.Filename, storedPath, record.FileSize, len(result.Data), record.IsOptimized)
	return record, nil
}

// BatchResult 批量上传的单项结果，各项独立成败
type BatchResult struct {
	Filename string
	Image    *models.Image
	Err      error
}

// UploadBatch 并发上传多个文件，单项失败不影响其余项
func (s *Service) UploadBatch(ctx context.Context, userID uint, inputs []UploadInput) ([]BatchResult, error) {
	if len(inputs) == 0 {
		return nil, errs.Validation("no files provided")
	}
	if len(inputs) > s.maxBatchFiles {
		return nil, errs.Validation(fmt.Sprintf("batch exceeds limit of %d files", s.maxBatchFiles))
	}

	results := make([]BatchResult, len(inputs))
	var g errgroup.Group
	g.SetLimit(4)

	for i, input := range inputs {
		i, input := i, input
		g.Go(func() error {
			img, err := s.Upload(ctx, userID, input)
			results[i] = BatchResult{Filename: input.Filename, Image: img, Err: err}
			return nil
		})
	}

	// 闭包从不返回错误，Wait 只作并发屏障
	_ = g.Wait()
	return results, nil
}

// Get 查询单张图片，带元数据缓存
func (s *Service) Get(ctx context.Context, userID, id uint) (*models.Image, error) {
	key := cache.ImageKey(userID, id)
	if s.cache != nil {
		var cached models.Image
		if err := s.cache.Get(ctx, key, &cached); err == nil {
			return &cached, nil
		}
	}

	image, err := s.ownedImage(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, image, s.cacheTTL); err != nil {
			log.Printf("[Image] Failed to cache image %d: %v", id, err)
		}
	}
	return image, nil
}

// List 分页列出用户图片
func (s *Service) List(ctx context.Context, userID uint, page, pageSize int) ([]*models.Image, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	images, total, err := s.images.ListByUser(ctx, userID, page, pageSize)
	if err != nil {
		return nil, 0, errs.Internal("failed to list images", err)
	}
	return images, total, nil
}

// UpdateTagsAndMetadata 仅标签与元数据可变
func (s *Service) UpdateTagsAndMetadata(ctx context.Context, userID, id uint, tags []string, metadata map[string]string) (*models.Image, error) {
	image, err := s.ownedImage(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	if err := s.images.UpdateTagsAndMetadata(ctx, image, tags, metadata); err != nil {
		return nil, errs.Internal("failed to update image", err)
	}

	s.invalidate(ctx, userID, id)
	return image, nil
}

// Delete 先删远端对象再删记录。远端对象已不存在视为成功，
// 远端删除失败则保留记录，避免数据库先行造成孤儿对象。
func (s *Service) Delete(ctx context.Context, userID, id uint) error {
	image, err := s.ownedImage(ctx, userID, id)
	if err != nil {
		return err
	}

	target, err := s.registry.GetIncludingDeleted(ctx, userID, image.StorageProviderID)
	if err != nil {
		if errs.KindOf(err) == errs.KindNotFound {
			// 提供者记录已不可解析，远端对象无从清理，如实记日志后删行
			log.Printf("[Image] Deleting record %d with unresolvable provider %d, remote object %s may be orphaned",
				image.ID, image.StorageProviderID, image.StoragePath)
			return s.deleteRecord(ctx, userID, image)
		}
		return err
	}

	backend, err := s.registry.BackendFor(target)
	if err != nil {
		return err
	}

	deleteCtx, cancel := context.WithTimeout(ctx, s.registry.OpTimeout())
	defer cancel()

	if err := backend.Delete(deleteCtx, image.StoragePath); err != nil {
		return errs.ProviderConnection(fmt.Sprintf("failed to delete object from %s backend", backend.Kind()), err)
	}

	return s.deleteRecord(ctx, userID, image)
}

// Stats 用户统计，带缓存
func (s *Service) Stats(ctx context.Context, userID uint) (*imagesrepo.UserStats, error) {
	key := cache.StatsKey(userID)
	if s.cache != nil {
		var cached imagesrepo.UserStats
		if err := s.cache.Get(ctx, key, &cached); err == nil {
			return &cached, nil
		}
	}

	stats, err := s.images.StatsByUser(ctx, userID)
	if err != nil {
		return nil, errs.Internal("failed to compute stats", err)
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, stats, s.cacheTTL); err != nil {
			log.Printf("[Image] Failed to cache stats for user %d: %v", userID, err)
		}
	}
	return stats, nil
}

// validate 前置校验，失败时远端不会被触碰
func (s *Service) validate(input UploadInput) error {
	if len(input.Data) == 0 {
		return errs.Validation("uploaded file is empty")
	}
	if int64(len(input.Data)) > s.maxUploadBytes {
		return errs.Validation(fmt.Sprintf("file exceeds maximum size of %d bytes", s.maxUploadBytes))
	}

	// 声明的类型不在白名单直接拒绝
	if declared := mediaType(input.ContentType); declared != "" && !validator.IsAllowedContentType(declared) {
		return errs.Validation(fmt.Sprintf("content type %s is not allowed", declared))
	}
	// 声明可以伪造，最终以嗅探结果为准
	ok, sniffed := validator.SniffImage(input.Data)
	if !ok {
		return errs.UnsupportedFormat(fmt.Sprintf("unsupported content type: %s", sniffed), nil)
	}
	return nil
}

// mediaType 剥掉 content type 的参数部分（如 "; charset=..."）
func mediaType(contentType string) string {
	if i := strings.IndexByte(contentType, ';'); i >= 0 {
		contentType = contentType[:i]
	}
	return strings.TrimSpace(contentType)
}

func (s *Service) buildRecord(userID, providerID uint, path, contentType string, input UploadInput, result *optimize.Result) *models.Image {
	record := &models.Image{
		UserID:            userID,
		StorageProviderID: providerID,
		OriginalFilename:  input.Filename,
		FileSize:          int64(len(input.Data)),
		ContentType:       contentType,
		StoragePath:       path,
		Width:             result.Width,
		Height:            result.Height,
		IsOptimized:       result.Optimized,
		Tags:              input.Tags,
		Metadata:          result.Metadata,
	}

	if result.Optimized {
		optimizedSize := int64(len(result.Data))
		record.OptimizedSize = &optimizedSize
		if record.FileSize > 0 {
			pct := (1 - float64(optimizedSize)/float64(record.FileSize)) * 100
			record.OptimizationPercentage = &pct
		}
	}
	return record
}

// compensateDelete 回滚已上传对象。独立 context，调用方的
// 取消不应阻止清理；清理失败记录异常日志供人工处理。
func (s *Service) compensateDelete(backend storage.Backend, path string) {
	ctx, cancel := context.WithTimeout(context.Background(), s.registry.OpTimeout())
	defer cancel()

	if err := backend.Delete(ctx, path); err != nil {
		log.Printf("[Upload] ANOMALY: compensating delete failed for %s on %s backend, orphaned object requires manual cleanup: %v",
			path, backend.Kind(), err)
		return
	}
	log.Printf("[Upload] Compensating delete removed %s after persistence failure", path)
}

func (s *Service) deleteRecord(ctx context.Context, userID uint, image *models.Image) error {
	if err := s.images.Delete(ctx, image); err != nil {
		return errs.Internal("failed to delete image record", err)
	}
	s.invalidate(ctx, userID, image.ID)
	return nil
}

func (s *Service) ownedImage(ctx context.Context, userID, id uint) (*models.Image, error) {
	image, err := s.images.GetByIDAndUser(ctx, id, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.NotFound("image not found")
		}
		return nil, errs.Internal("failed to load image", err)
	}
	return image, nil
}

func (s *Service) invalidate(ctx context.Context, userID, id uint) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, cache.ImageKey(userID, id), cache.StatsKey(userID)); err != nil {
		log.Printf("[Image] Failed to invalidate cache for image %d: %v", id, err)
	}
}

func (s *Service) invalidateStats(ctx context.Context, userID uint) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, cache.StatsKey(userID)); err != nil {
		log.Printf("[Image] Failed to invalidate stats cache for user %d: %v", userID, err)
	}
}

// mimeFromFormat 流水线输出格式到 MIME 的映射
func mimeFromFormat(format string) string {
	switch format {
	case "jpeg":
		return "image/jpeg"
	case "png":
		return "image/png"
	case "gif":
		return "image/gif"
	case "webp":
		return "image/webp"
	case "bmp":
		return "image/bmp"
	default:
		return "application/octet-stream"
	}
}
