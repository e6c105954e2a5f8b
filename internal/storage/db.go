package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // PostgreSQL driver
)

// DB wraps the database connection and the hot-record caches.
type DB struct {
	conn *sqlx.DB

	providerCache *LRUCache
	modelCache    *LRUCache
}

// DBConfig holds database configuration
type DBConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration

	ProviderCacheSize int
	ProviderCacheTTL  time.Duration
	ModelCacheSize    int
	ModelCacheTTL     time.Duration
}

// DefaultDBConfig returns default database configuration
func DefaultDBConfig() DBConfig {
	return DBConfig{
		DSN:             "postgres://postgres@localhost:5432/ai_chat?sslmode=disable",
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
		ConnMaxIdleTime: 1 * time.Minute,

		ProviderCacheSize: 100,
		ProviderCacheTTL:  5 * time.Minute,
		ModelCacheSize:    500,
		ModelCacheTTL:     15 * time.Minute,
	}
}

// NewDB creates a new database connection with caching
func NewDB(cfg DBConfig) (*DB, error) {
	conn, err := sqlx.Connect("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	conn.SetMaxOpenConns(cfg.MaxOpenConns)
	conn.SetMaxIdleConns(cfg.MaxIdleConns)
	conn.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	conn.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	return &DB{
		conn:          conn,
		providerCache: NewLRUCache(cfg.ProviderCacheSize, cfg.ProviderCacheTTL),
		modelCache:    NewLRUCache(cfg.ModelCacheSize, cfg.ModelCacheTTL),
	}, nil
}

// NewDBFromConn wraps an existing connection. Used by repository tests.
func NewDBFromConn(conn *sqlx.DB) *DB {
	return &DB{
		conn:          conn,
		providerCache: NewLRUCache(16, time.Minute),
		modelCache:    NewLRUCache(16, time.Minute),
	}
}

// Close closes the database connection and clears caches
func (db *DB) Close() error {
	db.providerCache.Clear()
	db.modelCache.Clear()
	return db.conn.Close()
}

// Ping checks if the database is reachable
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// Health returns the health status of the database
func (db *DB) Health(ctx context.Context) error {
	if err := db.Ping(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	var result int
	if err := db.conn.GetContext(ctx, &result, "SELECT 1"); err != nil {
		return fmt.Errorf("health check query failed: %w", err)
	}

	return nil
}

// Conn returns the underlying sqlx connection
// Use this for custom queries not covered by repositories
func (db *DB) Conn() *sqlx.DB {
	return db.conn
}

// CleanupExpiredCacheEntries removes expired entries from all caches.
// Should be called periodically.
func (db *DB) CleanupExpiredCacheEntries() (providerRemoved, modelRemoved int) {
	providerRemoved = db.providerCache.CleanupExpired()
	modelRemoved = db.modelCache.CleanupExpired()
	return
}
