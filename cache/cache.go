package cache

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Cache 缓存接口，值以 JSON 编码存取
type Cache interface {
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Get(ctx context.Context, key string, dest interface{}) error
	Delete(ctx context.Context, keys ...string) error
	Close() error
}

// ErrCacheMiss 缓存未命中
var ErrCacheMiss = errors.New("cache miss")

// IsCacheMiss 判断是否为缓存未命中
func IsCacheMiss(err error) bool {
	return errors.Is(err, ErrCacheMiss)
}

// ImageKey 单张图片元数据的缓存键
func ImageKey(userID, imageID uint) string {
	return fmt.Sprintf("image:%d:%d", userID, imageID)
}

// StatsKey 用户统计的缓存键
func StatsKey(userID uint) string {
	return fmt.Sprintf("stats:%d", userID)
}
