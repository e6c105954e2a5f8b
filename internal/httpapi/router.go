package httpapi

import (
	"context"
	"fmt"
	"net/http"

	"ai_chat/internal/chat"
	"ai_chat/internal/config"
	"ai_chat/internal/keypool"
	"ai_chat/internal/logging"
	"ai_chat/internal/middleware"
	"ai_chat/internal/queue"
	"ai_chat/internal/ratelimit"
	"ai_chat/internal/storage"
	"ai_chat/internal/utils"
)

// Dependencies aggregates the services the HTTP layer needs, including
// the pieces main must shut down in order.
type Dependencies struct {
	DB          *storage.DB
	Redis       *storage.RedisClient
	UsageQueue  queue.Queue
	UsageWorker *logging.UsageWorker
}

// Close shuts the shared infrastructure down: worker first so it drains
// the queue, then the queue and connections.
func (d *Dependencies) Close() {
	if d.UsageWorker != nil {
		d.UsageWorker.Stop()
	}
	if d.UsageQueue != nil {
		_ = d.UsageQueue.Close()
	}
	if d.Redis != nil {
		_ = d.Redis.Close()
	}
	if d.DB != nil {
		_ = d.DB.Close()
	}
}

// NewRouter creates an HTTP router with all dependencies wired up
func NewRouter(cfg *config.Config) (*http.ServeMux, *Dependencies, error) {
	logger := utils.NewLogger("router")

	db, err := storage.NewDB(storage.DBConfig{
		DSN:               cfg.Database.URL,
		MaxOpenConns:      cfg.Database.MaxOpenConns,
		MaxIdleConns:      cfg.Database.MaxIdleConns,
		ConnMaxLifetime:   cfg.Database.ConnMaxLifetime,
		ConnMaxIdleTime:   cfg.Database.ConnMaxIdleTime,
		ProviderCacheSize: cfg.Cache.ProviderCacheSize,
		ProviderCacheTTL:  cfg.Cache.ProviderCacheTTL,
		ModelCacheSize:    cfg.Cache.ModelCacheSize,
		ModelCacheTTL:     cfg.Cache.ModelCacheTTL,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	encryption, err := storage.NewEncryption(cfg.EncryptionKey)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize encryption: %w", err)
	}

	// Redis backs the per-user rate limiter and, optionally, the usage
	// queue. Without it both fall back to local behavior.
	var redisClient *storage.RedisClient
	var limiter ratelimit.Limiter = ratelimit.NewNoopLimiter()
	if cfg.Redis.Address != "" {
		redisClient, err = storage.NewRedisClient(storage.RedisConfig{
			Address:      cfg.Redis.Address,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			PoolSize:     cfg.Redis.PoolSize,
			MinIdleConns: cfg.Redis.MinIdleConns,
			DialTimeout:  cfg.Redis.DialTimeout,
			ReadTimeout:  cfg.Redis.ReadTimeout,
			WriteTimeout: cfg.Redis.WriteTimeout,
		})
		if err != nil {
			logger.Warn("Redis unavailable, per-user rate limiting disabled", "error", err)
			redisClient = nil
		} else {
			limiter = ratelimit.NewUserRateLimiter(redisClient.Client())
		}
	}

	// Repositories
	apiKeyRepo := storage.NewAPIKeyRepository(db)
	providerRepo := storage.NewProviderRepository(db)
	modelRepo := storage.NewModelRepository(db)
	userRepo := storage.NewUserRepository(db)
	conversationRepo := storage.NewConversationRepository(db)
	usageLogRepo := storage.NewUsageLogRepository(db)

	// Usage pipeline: queue, optional S3 mirror, batch worker.
	usageQueueCfg := queue.DefaultConfig("usage")
	usageQueueCfg.BatchSize = cfg.UsageLog.BatchSize
	usageQueueCfg.BatchTimeout = cfg.UsageLog.BatchTimeout
	usageQueueCfg.UseRedis = cfg.UsageLog.UseRedisQueue && redisClient != nil
	usageQueueCfg.RedisAddr = cfg.Redis.Address
	usageQueueCfg.RedisPassword = cfg.Redis.Password
	usageQueueCfg.RedisDB = cfg.Redis.DB

	usageQueue, err := queue.New(usageQueueCfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create usage queue: %w", err)
	}

	var usageDLQ queue.DeadLetterQueue
	if usageQueueCfg.UseRedis {
		usageDLQ, err = queue.NewRedisDeadLetterQueue(usageQueueCfg)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create usage DLQ: %w", err)
		}
	} else {
		usageDLQ = queue.NewMemoryDeadLetterQueue()
	}

	var mirror logging.BatchWriter
	if cfg.UsageLog.S3Enabled {
		s3Writer, err := logging.NewS3Writer(context.Background(),
			cfg.UsageLog.S3Bucket, cfg.UsageLog.S3Region,
			cfg.UsageLog.S3Prefix, cfg.UsageLog.NodeName)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create S3 writer: %w", err)
		}
		mirror = s3Writer
	}

	usageWorker := logging.NewUsageWorker(usageQueue, usageDLQ, usageLogRepo, mirror, usageQueueCfg)
	usageWorker.Start()

	// Key pool
	selector := keypool.NewSelector(apiKeyRepo)
	recorder := keypool.NewRecorder(apiKeyRepo)

	orchestrator := chat.NewOrchestrator(chat.Config{
		Conversations: conversationRepo,
		Models:        modelRepo,
		Providers:     providerRepo,
		Selector:      selector,
		Recorder:      recorder,
		Decryptor:     encryption,
		Usage:         usageQueue,
		HistoryWindow: cfg.Chat.HistoryWindow,
		DefaultModel:  cfg.Chat.DefaultModel,
	})

	deps := &Dependencies{
		DB:          db,
		Redis:       redisClient,
		UsageQueue:  usageQueue,
		UsageWorker: usageWorker,
	}

	mux := http.NewServeMux()
	registerRoutes(mux, cfg, db, routerHandlers{
		auth:          NewAuthHandler(userRepo, cfg.JWTSecret),
		chatHandler:   NewChatHandler(orchestrator, limiter, cfg.Chat.UserRatePerMinute),
		conversations: NewConversationsHandler(conversationRepo, usageLogRepo),
		providers:     NewAdminProvidersHandler(providerRepo),
		models:        NewAdminModelsHandler(modelRepo),
		keys:          NewAdminKeysHandler(apiKeyRepo, providerRepo, encryption),
	})

	return mux, deps, nil
}

type routerHandlers struct {
	auth          *AuthHandler
	chatHandler   *ChatHandler
	conversations *ConversationsHandler
	providers     *AdminProvidersHandler
	models        *AdminModelsHandler
	keys          *AdminKeysHandler
}

func registerRoutes(mux *http.ServeMux, cfg *config.Config, db *storage.DB, h routerHandlers) {
	// Health check endpoint - public
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		if err := db.Health(r.Context()); err != nil {
			utils.RespondWithError(w, http.StatusServiceUnavailable, "Database unavailable")
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	// Authentication endpoints - public
	mux.HandleFunc("/api/auth/login", h.auth.Login)
	mux.HandleFunc("/api/auth/register", h.auth.Register)

	// User endpoints - session required
	userJWT := middleware.JWTMiddleware(cfg.JWTSecret)
	mux.Handle("/api/chat", userJWT(http.HandlerFunc(h.chatHandler.Send)))
	mux.Handle("/api/conversations", userJWT(http.HandlerFunc(h.conversations.List)))
	mux.Handle("/api/conversations/", userJWT(http.HandlerFunc(h.conversations.Messages)))
	mux.Handle("/api/usage", userJWT(http.HandlerFunc(h.conversations.Usage)))

	// Admin endpoints - admin role required
	adminJWT := middleware.AdminMiddleware(cfg.JWTSecret)
	mux.Handle("/admin/providers", adminJWT(http.HandlerFunc(h.providers.Handle)))
	mux.Handle("/admin/providers/", adminJWT(http.HandlerFunc(h.providers.HandleByID)))
	mux.Handle("/admin/models", adminJWT(http.HandlerFunc(h.models.Handle)))
	mux.Handle("/admin/models/", adminJWT(http.HandlerFunc(h.models.HandleByID)))
	mux.Handle("/admin/keys", adminJWT(http.HandlerFunc(h.keys.Handle)))
	mux.Handle("/admin/keys/", adminJWT(http.HandlerFunc(h.keys.HandleByID)))
}
