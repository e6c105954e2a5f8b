package config

import (
	"encoding/base64"
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds configuration for the chat server.
type Config struct {
	HTTPPort      string
	JWTSecret     []byte
	EncryptionKey []byte // AES key for credentials at rest
	Database      DatabaseConfig
	Cache         CacheConfig
	Redis         RedisConfig
	Chat          ChatConfig
	UsageLog      UsageLogConfig
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// CacheConfig holds cache settings
type CacheConfig struct {
	ProviderCacheSize int
	ProviderCacheTTL  time.Duration
	ModelCacheSize    int
	ModelCacheTTL     time.Duration
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Address      string
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// ChatConfig holds chat orchestration settings
type ChatConfig struct {
	HistoryWindow     int    // messages of context sent to the provider
	DefaultModel      string // fallback when no admin default is configured
	UserRatePerMinute int    // per-user request limit, 0 disables
}

// UsageLogConfig holds configuration for the usage log pipeline
type UsageLogConfig struct {
	UseRedisQueue bool
	BatchSize     int
	BatchTimeout  time.Duration
	S3Enabled     bool
	S3Bucket      string
	S3Region      string
	S3Prefix      string
	NodeName      string // node identifier embedded in archive object keys
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	jwtSecret := getEnvString("JWT_SECRET", "")
	if jwtSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	encKeyB64 := getEnvString("CREDENTIAL_ENCRYPTION_KEY", "")
	if encKeyB64 == "" {
		return nil, fmt.Errorf("CREDENTIAL_ENCRYPTION_KEY is required")
	}
	encKey, err := base64.StdEncoding.DecodeString(encKeyB64)
	if err != nil {
		return nil, fmt.Errorf("failed to decode CREDENTIAL_ENCRYPTION_KEY: %w", err)
	}

	cfg := &Config{
		HTTPPort:      getEnvString("HTTP_PORT", "8080"),
		JWTSecret:     []byte(jwtSecret),
		EncryptionKey: encKey,
		Database: DatabaseConfig{
			URL:             getEnvString("DATABASE_URL", "postgres://postgres@localhost:5432/ai_chat?sslmode=disable"),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
			ConnMaxIdleTime: getEnvDuration("DB_CONN_MAX_IDLE_TIME", 1*time.Minute),
		},
		Cache: CacheConfig{
			ProviderCacheSize: getEnvInt("PROVIDER_CACHE_SIZE", 100),
			ProviderCacheTTL:  getEnvDuration("PROVIDER_CACHE_TTL", 5*time.Minute),
			ModelCacheSize:    getEnvInt("MODEL_CACHE_SIZE", 500),
			ModelCacheTTL:     getEnvDuration("MODEL_CACHE_TTL", 15*time.Minute),
		},
		Redis: RedisConfig{
			Address:      getEnvString("REDIS_ADDRESS", "localhost:6379"),
			Password:     getEnvString("REDIS_PASSWORD", ""),
			DB:           getEnvInt("REDIS_DB", 0),
			PoolSize:     getEnvInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: getEnvInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  getEnvDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  getEnvDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: getEnvDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Chat: ChatConfig{
			HistoryWindow:     getEnvInt("CHAT_HISTORY_WINDOW", 20),
			DefaultModel:      getEnvString("CHAT_DEFAULT_MODEL", ""),
			UserRatePerMinute: getEnvInt("CHAT_USER_RATE_PER_MINUTE", 60),
		},
		UsageLog: UsageLogConfig{
			UseRedisQueue: getEnvBool("USAGE_LOG_USE_REDIS", false),
			BatchSize:     getEnvInt("USAGE_LOG_BATCH_SIZE", 100),
			BatchTimeout:  getEnvDuration("USAGE_LOG_BATCH_TIMEOUT", 5*time.Second),
			S3Enabled:     getEnvBool("USAGE_LOG_S3_ENABLED", false),
			S3Bucket:      getEnvString("USAGE_LOG_S3_BUCKET", ""),
			S3Region:      getEnvString("USAGE_LOG_S3_REGION", "us-east-1"),
			S3Prefix:      getEnvString("USAGE_LOG_S3_PREFIX", "usage/"),
			NodeName:      getEnvString("NODE_NAME", hostnameOr("chat-0")),
		},
	}

	if cfg.UsageLog.S3Enabled && cfg.UsageLog.S3Bucket == "" {
		return nil, fmt.Errorf("USAGE_LOG_S3_BUCKET is required when USAGE_LOG_S3_ENABLED is set")
	}

	return cfg, nil
}

func hostnameOr(fallback string) string {
	name, err := os.Hostname()
	if err != nil || name == "" {
		return fallback
	}
	return name
}

func getEnvString(key string, defaultValue string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}
	return val
}

func getEnvInt(key string, defaultValue int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}
	intVal, err := strconv.Atoi(val)
	if err != nil {
		return defaultValue
	}
	return intVal
}

func getEnvBool(key string, defaultValue bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}
	boolVal, err := strconv.ParseBool(val)
	if err != nil {
		return defaultValue
	}
	return boolVal
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}
	duration, err := time.ParseDuration(val)
	if err != nil {
		return defaultValue
	}
	return duration
}
