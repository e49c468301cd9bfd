package storage

import (
	"context"
	"fmt"

	"github.com/maneesh/mailattach/internal/attachment"
	"github.com/maneesh/mailattach/internal/config"
	"github.com/sirupsen/logrus"
)

// Open builds the configured record store, fronted by the Redis manifest
// cache when enabled. The returned func releases backend connections.
func Open(ctx context.Context, cfg *config.Config) (attachment.Store[string], func(), error) {
	var blobs Blobs
	switch cfg.StoreBackend {
	case config.BackendMemory:
		logrus.Warn("Using in-memory store; attachments are lost on exit")
		blobs = NewMemoryBlobs()
	case config.BackendMinIO:
		logrus.WithField("endpoint", cfg.MinIOEndpoint).Info("Connecting to MinIO...")
		minioClient, err := NewMinioClient(ctx,
			cfg.MinIOEndpoint,
			cfg.MinIOAccessKey,
			cfg.MinIOSecretKey,
			cfg.MinIOBucketName,
			cfg.MinIOUseSSL,
		)
		if err != nil {
			return nil, nil, err
		}
		blobs = minioClient
	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}

	var store attachment.Store[string] = NewObjectStore(blobs)
	if !cfg.CacheEnabled {
		return store, func() {}, nil
	}

	logrus.WithField("addr", cfg.GetRedisAddr()).Info("Connecting to Redis...")
	redisClient, err := NewRedisClient(ctx, cfg.GetRedisAddr(), cfg.RedisPassword, cfg.RedisDB, cfg.CacheTTL)
	if err != nil {
		return nil, nil, err
	}
	return NewCachedStore(store, redisClient), func() { redisClient.Close() }, nil
}
