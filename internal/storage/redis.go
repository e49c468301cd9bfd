package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/maneesh/mailattach/internal/attachment"
	"github.com/maneesh/mailattach/internal/models"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	// CacheTTL is the default lifetime of a cached manifest. Manifests never
	// change, so this only bounds memory use.
	CacheTTL = 24 * time.Hour
)

// RedisClient caches manifests in Redis
type RedisClient struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisClient initializes a new Redis client
func NewRedisClient(ctx context.Context, addr, password string, db int, ttl time.Duration) (*RedisClient, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping Redis: %w", err)
	}

	if ttl <= 0 {
		ttl = CacheTTL
	}
	return &RedisClient{client: client, ttl: ttl}, nil
}

// Close closes the Redis connection
func (rc *RedisClient) Close() error {
	return rc.client.Close()
}

func manifestCacheKey(handle string) string {
	return fmt.Sprintf("manifest:%s", handle)
}

// GetManifest returns the cached manifest, or nil on a cache miss
func (rc *RedisClient) GetManifest(ctx context.Context, handle string) (*models.Manifest[string], error) {
	ctx, span := tracer.Start(ctx, "redis.get_manifest",
		trace.WithAttributes(attribute.String("handle", handle)),
	)
	defer span.End()

	data, err := rc.client.Get(ctx, manifestCacheKey(handle)).Bytes()
	if err == redis.Nil {
		span.SetAttributes(attribute.String("cache_status", "miss"))
		return nil, nil
	} else if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get from cache: %w", err)
	}

	var manifest models.Manifest[string]
	if err := json.Unmarshal(data, &manifest); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to unmarshal cached manifest: %w", err)
	}

	span.SetAttributes(attribute.String("cache_status", "hit"))
	return &manifest, nil
}

// SetManifest caches manifest under handle
func (rc *RedisClient) SetManifest(ctx context.Context, handle string, manifest *models.Manifest[string]) error {
	ctx, span := tracer.Start(ctx, "redis.set_manifest",
		trace.WithAttributes(
			attribute.String("handle", handle),
			attribute.String("file_name", manifest.Filename),
		),
	)
	defer span.End()

	data, err := json.Marshal(manifest)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to marshal manifest: %w", err)
	}

	if err := rc.client.Set(ctx, manifestCacheKey(handle), data, rc.ttl).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to set cache: %w", err)
	}
	return nil
}

// CachedStore serves manifest reads from Redis before the backing store.
// Handles must be content addresses as issued by ObjectStore; a cached
// manifest that does not hash to its handle is discarded. Cache failures are
// logged and never fail the call.
type CachedStore struct {
	attachment.Store[string]
	cache *RedisClient
}

var _ attachment.Store[string] = (*CachedStore)(nil)

// NewCachedStore wraps store with a manifest cache
func NewCachedStore(store attachment.Store[string], cache *RedisClient) *CachedStore {
	return &CachedStore{Store: store, cache: cache}
}

// WriteManifest writes through to the backing store and primes the cache
func (cs *CachedStore) WriteManifest(ctx context.Context, manifest *models.Manifest[string]) (string, error) {
	handle, err := cs.Store.WriteManifest(ctx, manifest)
	if err != nil {
		return "", err
	}
	if err := cs.cache.SetManifest(ctx, handle, manifest); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "WriteManifest",
			"handle":   handle,
			"error":    err.Error(),
		}).Warn("Failed to cache manifest")
	}
	return handle, nil
}

// GetManifest tries the cache, then the backing store
func (cs *CachedStore) GetManifest(ctx context.Context, handle string) (*models.Manifest[string], error) {
	manifest, err := cs.cache.GetManifest(ctx, handle)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "GetManifest",
			"handle":   handle,
			"error":    err.Error(),
		}).Warn("Manifest cache lookup failed")
	}
	if manifest != nil {
		if _, address, err := Encode(KindManifest, manifest); err == nil && address == handle {
			logrus.WithField("handle", handle).Debug("Cache HIT for manifest")
			return manifest, nil
		}
		logrus.WithFields(logrus.Fields{
			"function": "GetManifest",
			"handle":   handle,
		}).Warn("Cached manifest does not match its handle")
	}

	logrus.WithField("handle", handle).Debug("Cache MISS for manifest")
	manifest, err = cs.Store.GetManifest(ctx, handle)
	if err != nil {
		return nil, err
	}

	if err := cs.cache.SetManifest(ctx, handle, manifest); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "GetManifest",
			"handle":   handle,
			"error":    err.Error(),
		}).Warn("Failed to update cache")
	}
	return manifest, nil
}
