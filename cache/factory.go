package cache

import (
	"fmt"
	"log"

	"github.com/aikara/image-vault/config"
)

// NewFromConfig 按配置创建缓存，未知类型报错而非静默降级
func NewFromConfig(cfg *config.Config) (Cache, error) {
	switch cfg.CacheType {
	case "", "ristretto", "memory":
		log.Printf("[Cache] Using in-process ristretto cache")
		return NewRistretto()
	case "redis":
		log.Printf("[Cache] Using redis cache at %s", cfg.CacheRedisAddr)
		return NewRedis(cfg.CacheRedisAddr, cfg.CacheRedisPassword, cfg.CacheRedisDB)
	default:
		return nil, fmt.Errorf("unsupported cache type: %s", cfg.CacheType)
	}
}
