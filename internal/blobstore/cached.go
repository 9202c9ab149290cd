package blobstore

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-redis/redis/v8"

	"imgstore/internal/models"
)

const (
	defaultCacheTTL      = 10 * time.Minute
	defaultCacheMaxBytes = 1 << 20 // 1 MiB
)

// ImageCache holds encoded images by key.
type ImageCache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Del(ctx context.Context, key string) error
}

// RedisCache implements ImageCache on a Redis server.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisCache connects to address and verifies it with a ping.
func NewRedisCache(ctx context.Context, address string, ttl time.Duration) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:        address,
		DialTimeout: 2 * time.Second,
		ReadTimeout: 2 * time.Second,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &RedisCache{client: client, ttl: ttl}, nil
}

// Close closes the Redis client.
func (c *RedisCache) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	data, err := c.client.Get(ctx, redisImageKey(key)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, value []byte) error {
	return c.client.Set(ctx, redisImageKey(key), value, c.ttl).Err()
}

func (c *RedisCache) Del(ctx context.Context, key string) error {
	return c.client.Del(ctx, redisImageKey(key)).Err()
}

func redisImageKey(key string) string {
	return "imgstore:image:" + key
}

// CachedStore is a read-through cache in front of a Backend. Only Get is
// served from the cache; Put and Delete invalidate. Cache errors are logged
// and never fail the call.
type CachedStore struct {
	Backend
	cache    ImageCache
	maxBytes int64
	logger   *slog.Logger
}

// NewCachedStore wraps next. Images larger than maxBytes are never cached.
func NewCachedStore(next Backend, cache ImageCache, maxBytes int64, logger *slog.Logger) *CachedStore {
	if maxBytes <= 0 {
		maxBytes = defaultCacheMaxBytes
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedStore{Backend: next, cache: cache, maxBytes: maxBytes, logger: logger}
}

type cachedImage struct {
	Info    models.ImageInfo `json:"info"`
	Payload []byte           `json:"payload"`
}

func (c *CachedStore) Put(ctx context.Context, img *models.StoredImage) error {
	if img != nil {
		c.invalidate(ctx, img.Key)
	}
	return c.Backend.Put(ctx, img)
}

func (c *CachedStore) Get(ctx context.Context, key string) (*models.StoredImage, error) {
	if data, ok, err := c.cache.Get(ctx, key); err != nil {
		c.logger.Warn("image cache read failed", "key", key, "error", err)
	} else if ok {
		var entry cachedImage
		if err := json.Unmarshal(data, &entry); err == nil {
			return &models.StoredImage{
				Key:          entry.Info.Key,
				OriginalName: entry.Info.OriginalName,
				ContentType:  entry.Info.ContentType,
				SizeBytes:    entry.Info.SizeBytes,
				Payload:      entry.Payload,
				Owner:        entry.Info.Owner,
				CreatedAt:    entry.Info.CreatedAt,
			}, nil
		}
		c.invalidate(ctx, key)
	}

	img, err := c.Backend.Get(ctx, key)
	if err != nil || img == nil {
		return img, err
	}
	if img.SizeBytes <= c.maxBytes {
		data, err := json.Marshal(cachedImage{Info: img.Info(), Payload: img.Payload})
		if err == nil {
			if err := c.cache.Set(ctx, key, data); err != nil {
				c.logger.Warn("image cache write failed", "key", key, "error", err)
			}
		}
	}
	return img, nil
}

func (c *CachedStore) Delete(ctx context.Context, key string) (bool, error) {
	deleted, err := c.Backend.Delete(ctx, key)
	c.invalidate(ctx, key)
	return deleted, err
}

func (c *CachedStore) invalidate(ctx context.Context, key string) {
	if err := c.cache.Del(ctx, key); err != nil {
		c.logger.Warn("image cache invalidate failed", "key", key, "error", err)
	}
}
