package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/maneesh/mailattach/internal/attachment"
	"github.com/sirupsen/logrus"
)

// Store backends
const (
	BackendMinIO  = "minio"
	BackendMemory = "memory"
)

// Config holds all application configuration
type Config struct {
	// Service configuration
	ServicePort string
	ServiceName string
	LogLevel    string

	// Attachment limits and behavior
	StoreBackend string
	FileMaxSize  int64
	ChunkMaxSize int64
	Concurrency  int
	Verify       string

	// MinIO configuration
	MinIOEndpoint   string
	MinIOAccessKey  string
	MinIOSecretKey  string
	MinIOBucketName string
	MinIOUseSSL     bool

	// TiDB configuration
	IndexEnabled bool
	TiDBHost     string
	TiDBPort     string
	TiDBUser     string
	TiDBPassword string
	TiDBDatabase string

	// Redis configuration
	CacheEnabled  bool
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int
	CacheTTL      time.Duration

	// Jaeger configuration; empty disables tracing
	JaegerEndpoint string
}

// LoadConfig loads configuration from environment variables with sensible defaults
func LoadConfig() (*Config, error) {
	config := &Config{
		ServicePort: getEnv("SERVICE_PORT", "8080"),
		ServiceName: getEnv("SERVICE_NAME", "mailattach-service"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),

		StoreBackend: getEnv("STORE_BACKEND", BackendMinIO),
		FileMaxSize:  getEnvAsInt64("ATTACHMENT_FILE_MAX_SIZE", attachment.DefaultFileMaxSize),
		ChunkMaxSize: getEnvAsInt64("ATTACHMENT_CHUNK_MAX_SIZE", attachment.DefaultChunkMaxSize),
		Concurrency:  getEnvAsInt("ATTACHMENT_CONCURRENCY", 1),
		Verify:       getEnv("ATTACHMENT_VERIFY", "verify"),

		MinIOEndpoint:   getEnv("MINIO_ENDPOINT", "localhost:9000"),
		MinIOAccessKey:  getEnv("MINIO_ACCESS_KEY", "minioadmin"),
		MinIOSecretKey:  getEnv("MINIO_SECRET_KEY", "minioadmin"),
		MinIOBucketName: getEnv("MINIO_BUCKET_NAME", "mailattach"),
		MinIOUseSSL:     getEnvAsBool("MINIO_USE_SSL", false),

		IndexEnabled: getEnvAsBool("INDEX_ENABLED", false),
		TiDBHost:     getEnv("TIDB_HOST", "localhost"),
		TiDBPort:     getEnv("TIDB_PORT", "4000"),
		TiDBUser:     getEnv("TIDB_USER", "root"),
		TiDBPassword: getEnv("TIDB_PASSWORD", ""),
		TiDBDatabase: getEnv("TIDB_DATABASE", "mailattach"),

		CacheEnabled:  getEnvAsBool("CACHE_ENABLED", false),
		RedisHost:     getEnv("REDIS_HOST", "localhost"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvAsInt("REDIS_DB", 0),
		CacheTTL:      getEnvAsDuration("CACHE_TTL", 24*time.Hour),

		// Set but empty disables tracing.
		JaegerEndpoint: getEnvAllowEmpty("JAEGER_ENDPOINT", "localhost:4318"),
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate rejects settings no attachment could be published under
func (c *Config) Validate() error {
	switch c.StoreBackend {
	case BackendMinIO, BackendMemory:
	default:
		return fmt.Errorf("unknown STORE_BACKEND %q", c.StoreBackend)
	}
	if c.ChunkMaxSize > c.FileMaxSize {
		return fmt.Errorf("ATTACHMENT_CHUNK_MAX_SIZE (%d) exceeds ATTACHMENT_FILE_MAX_SIZE (%d)", c.ChunkMaxSize, c.FileMaxSize)
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid LOG_LEVEL: %w", err)
	}
	_, err := c.AttachmentOptions()
	return err
}

// AttachmentOptions builds the publisher and reconstructor options
func (c *Config) AttachmentOptions() (attachment.Options, error) {
	verify, err := attachment.ParseVerifyPolicy(c.Verify)
	if err != nil {
		return attachment.Options{}, fmt.Errorf("invalid ATTACHMENT_VERIFY: %w", err)
	}
	opts := attachment.Options{
		MaxFileSize:  c.FileMaxSize,
		MaxChunkSize: c.ChunkMaxSize,
		Concurrency:  c.Concurrency,
		Verify:       verify,
	}
	if err := opts.Validate(); err != nil {
		return attachment.Options{}, err
	}
	return opts, nil
}

// ApplyLogging configures the global logrus logger
func (c *Config) ApplyLogging() {
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
}

// GetDSN returns the TiDB connection string
func (c *Config) GetDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		c.TiDBUser,
		c.TiDBPassword,
		c.TiDBHost,
		c.TiDBPort,
		c.TiDBDatabase,
	)
}

// GetRedisAddr returns the Redis address
func (c *Config) GetRedisAddr() string {
	return fmt.Sprintf("%s:%s", c.RedisHost, c.RedisPort)
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAllowEmpty(key, defaultValue string) string {
	if value, ok := os.LookupEnv(key); ok {
		return strings.TrimSpace(value)
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseInt(valueStr, 10, 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}
