package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/dgraph-io/ristretto"
)

// ristrettoCache 进程内缓存，单实例部署的默认选择
type ristrettoCache struct {
	client *ristretto.Cache
}

// NewRistretto 创建进程内缓存
func NewRistretto() (Cache, error) {
	client, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 1e6,
		MaxCost:     64 << 20, // 64 MB
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &ristrettoCache{client: client}, nil
}

func (c *ristrettoCache) Set(_ context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	if c.client.SetWithTTL(key, data, int64(len(data)), ttl) {
		c.client.Wait()
	}
	return nil
}

func (c *ristrettoCache) Get(_ context.Context, key string, dest interface{}) error {
	value, found := c.client.Get(key)
	if !found {
		return ErrCacheMiss
	}
	data, ok := value.([]byte)
	if !ok {
		return ErrCacheMiss
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return ErrCacheMiss
	}
	return nil
}

func (c *ristrettoCache) Delete(_ context.Context, keys ...string) error {
	for _, key := range keys {
		c.client.Del(key)
	}
	return nil
}

func (c *ristrettoCache) Close() error {
	c.client.Close()
	return nil
}
