package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	syncapp "github.com/synchub/backend/internal/application/integration"
	"github.com/synchub/backend/internal/domain/integration"
	"github.com/synchub/backend/internal/infrastructure/auth"
	"github.com/synchub/backend/internal/infrastructure/cache"
	"github.com/synchub/backend/internal/infrastructure/config"
	"github.com/synchub/backend/internal/infrastructure/logger"
	"github.com/synchub/backend/internal/infrastructure/persistence"
	"github.com/synchub/backend/internal/infrastructure/provider"
	"github.com/synchub/backend/internal/infrastructure/ratelimit"
	"github.com/synchub/backend/internal/infrastructure/scheduler"
	"github.com/synchub/backend/internal/infrastructure/secrets"
	"github.com/synchub/backend/internal/interfaces/http/handler"
	"github.com/synchub/backend/internal/interfaces/http/middleware"
	"github.com/synchub/backend/internal/interfaces/http/router"
	"go.uber.org/zap"
)

//	@title			SyncHub API
//	@version		1.0
//	@description	Integration synchronization engine - bidirectional data sync with third-party providers

//	@contact.name	API Support
//	@contact.url	https://github.com/synchub/backend

//	@license.name	Apache 2.0
//	@license.url	http://www.apache.org/licenses/LICENSE-2.0.html

//	@host		localhost:8080
//	@BasePath	/api/v1

//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				Bearer token authentication. Format: "Bearer {token}"

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize logger
	log, err := logger.New(&logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = logger.Sync(log)
	}()

	log.Info("Starting SyncHub",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
	)

	// Create GORM logger backed by zap
	gormLogLevel := logger.MapGormLogLevel(cfg.Log.Level)
	gormLog := logger.NewGormLogger(log, gormLogLevel)

	// Initialize database connection with custom logger
	db, err := persistence.NewDatabaseWithCustomLogger(&cfg.Database, gormLog)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	log.Info("Database connected successfully")

	// Initialize repositories
	integrationRepo := persistence.NewGormIntegrationRepository(db.DB)
	syncRunRepo := persistence.NewGormSyncRunRepository(db.DB)
	conflictRepo := persistence.NewGormManualConflictRepository(db.DB)
	webhookRegRepo := persistence.NewGormWebhookRegistrationRepository(db.DB)
	cipherRepo := persistence.NewGormCredentialRepository(db.DB)
	recordStore := persistence.NewGormRecordStore(db.DB)

	// Credential encryption
	credentialStore, err := secrets.NewAESCredentialStore(
		cfg.Credentials.EncryptionSecret,
		cfg.Credentials.EncryptionSalt,
		cipherRepo,
	)
	if err != nil {
		log.Fatal("Failed to initialize credential store", zap.Error(err))
	}

	// Provider adapters
	providerRegistry := provider.NewRegistry()
	registerProviderAdapters(providerRegistry, log)

	// Per-integration provider rate limiting
	limiter := ratelimit.NewLimiter()

	// Idempotency store for webhook replay detection (Redis with in-memory fallback)
	idempotencyFactory := cache.NewIdempotencyStoreFactory(cfg.Redis, cache.WithLogger(log))
	idempotencyStore, err := idempotencyFactory.CreateStore()
	if err != nil {
		log.Fatal("Failed to initialize idempotency store", zap.Error(err))
	}

	// Initialize application services
	registryService := syncapp.NewRegistryService(integrationRepo, credentialStore, providerRegistry, log)
	connectionService := syncapp.NewConnectionService(
		integrationRepo,
		credentialStore,
		providerRegistry,
		webhookRegRepo,
		limiter,
		cfg.Webhook.CallbackBaseURL,
		log,
	)
	syncService := syncapp.NewSyncService(
		integrationRepo,
		syncRunRepo,
		conflictRepo,
		recordStore,
		providerRegistry,
		connectionService,
		limiter,
		syncapp.SyncServiceConfig{
			DefaultBatchSize: cfg.Sync.DefaultBatchSize,
			BatchTimeout:     cfg.Sync.BatchTimeout,
		},
		log,
	)
	connectionService.SetCanceler(syncService)
	webhookService := syncapp.NewWebhookService(
		integrationRepo,
		webhookRegRepo,
		providerRegistry,
		idempotencyStore,
		syncService,
		cfg.Webhook.ReplayTTL,
		log,
	)
	healthService := syncapp.NewHealthService(integrationRepo, syncRunRepo, connectionService, limiter, log)
	analyticsService := syncapp.NewAnalyticsService(integrationRepo, syncRunRepo, log)

	// Periodic sync scheduler
	syncScheduler := scheduler.NewSyncScheduler(
		scheduler.SyncSchedulerConfig{
			Enabled:        cfg.Scheduler.Enabled,
			PollInterval:   cfg.Scheduler.PollInterval,
			TriggerTimeout: cfg.Scheduler.TriggerTimeout,
		},
		integrationRepo,
		syncService,
		log,
	)
	syncScheduler.Start(context.Background())

	// JWT authentication with token revocation. Redis keeps revocations
	// visible across instances; the in-memory fallback covers single-node
	// deployments, mirroring the idempotency store setup.
	jwtService := auth.NewJWTService(cfg.JWT)
	var tokenBlacklist auth.TokenBlacklist
	if redisBlacklist, err := auth.NewRedisTokenBlacklist(auth.RedisTokenBlacklistConfig{
		Host:     cfg.Redis.Host,
		Port:     cfg.Redis.Port,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}); err != nil {
		log.Warn("Redis unavailable for token blacklist, using in-memory revocation", zap.Error(err))
		tokenBlacklist = auth.NewInMemoryTokenBlacklist()
	} else {
		tokenBlacklist = redisBlacklist
	}

	// Initialize handlers
	integrationHandler := handler.NewIntegrationHandler(
		registryService,
		connectionService,
		syncService,
		healthService,
		analyticsService,
	)
	webhookHandler := handler.NewWebhookHandler(webhookService)
	systemHandler := handler.NewSystemHandler()

	// Set gin mode
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()

	// Middleware order matters:
	// 1. RequestID - Generate/propagate request ID
	// 2. Recovery - Catch panics
	// 3. Logger - Log requests
	// 4. Security - Add security headers
	// 5. CORS - Handle cross-origin requests
	// 6. BodyLimit - Limit request body size
	// 7. RateLimit - Apply rate limiting (if enabled)
	engine.Use(middleware.RequestID())
	engine.Use(logger.Recovery(log))
	engine.Use(logger.GinMiddleware(log))
	engine.Use(middleware.Secure())

	// Configure CORS from config
	corsConfig := middleware.CORSConfig{
		AllowOrigins:     cfg.HTTP.CORSAllowOrigins,
		AllowMethods:     cfg.HTTP.CORSAllowMethods,
		AllowHeaders:     cfg.HTTP.CORSAllowHeaders,
		ExposeHeaders:    []string{"X-Request-ID", "X-RateLimit-Limit", "X-RateLimit-Remaining"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	engine.Use(middleware.CORSWithConfig(corsConfig))

	// Body size limit
	engine.Use(middleware.BodyLimit(cfg.HTTP.MaxBodySize))

	// Rate limiting (if enabled)
	if cfg.HTTP.RateLimitEnabled {
		rateLimiter := middleware.NewRateLimiter(cfg.HTTP.RateLimitRequests, cfg.HTTP.RateLimitWindow)
		engine.Use(middleware.RateLimit(rateLimiter))
		log.Info("Rate limiting enabled",
			zap.Int("requests", cfg.HTTP.RateLimitRequests),
			zap.Duration("window", cfg.HTTP.RateLimitWindow),
		)
	}

	// Setup validation
	middleware.SetupValidator()

	// Health check endpoint (outside API versioning)
	engine.GET("/health", healthHandler(db, log))

	// Provider webhook endpoints (no authentication; authenticity comes from
	// per-integration signature verification)
	webhookGroup := engine.Group("/api/v1/webhooks")
	webhookGroup.POST("/:integration_id", webhookHandler.Receive)

	// Setup API routes using router
	r := router.NewRouter(engine, router.WithAPIVersion("v1"))

	// Apply JWT authentication middleware to API routes
	jwtConfig := middleware.JWTMiddlewareConfig{
		JWTService:     jwtService,
		TokenBlacklist: tokenBlacklist,
		SkipPaths: []string{
			"/api/v1/ping",
			"/api/v1/system/ping",
			"/api/v1/system/info",
		},
		SkipPathPrefixes: []string{
			"/api/v1/webhooks",
		},
		Logger: log,
	}
	r.Use(middleware.JWTAuthMiddlewareWithConfig(jwtConfig))

	// Integration management routes
	integrationRoutes := router.NewDomainGroup("integrations", "/integrations")
	integrationRoutes.POST("", integrationHandler.Create)
	integrationRoutes.GET("", integrationHandler.List)
	integrationRoutes.POST("/sync/batch", integrationHandler.SyncBatch)
	integrationRoutes.GET("/:id", integrationHandler.GetByID)
	integrationRoutes.PUT("/:id", integrationHandler.Update)
	integrationRoutes.DELETE("/:id", integrationHandler.Delete)
	integrationRoutes.POST("/:id/activate", integrationHandler.Activate)
	integrationRoutes.POST("/:id/deactivate", integrationHandler.Deactivate)
	integrationRoutes.POST("/:id/test", integrationHandler.TestConnection)
	integrationRoutes.POST("/:id/sync", integrationHandler.Sync)
	integrationRoutes.POST("/:id/sync/cancel", integrationHandler.CancelSync)
	integrationRoutes.GET("/:id/runs", integrationHandler.ListRuns)
	integrationRoutes.GET("/:id/conflicts", integrationHandler.ListConflicts)
	integrationRoutes.GET("/:id/health", integrationHandler.Health)
	integrationRoutes.GET("/:id/analytics", integrationHandler.Analytics)
	integrationRoutes.GET("/:id/webhook", webhookHandler.GetRegistration)

	// Manual conflict resolution routes
	conflictRoutes := router.NewDomainGroup("conflicts", "/conflicts")
	conflictRoutes.POST("/:id/resolve", integrationHandler.ResolveConflict)

	// System routes
	systemRoutes := router.NewDomainGroup("system", "/system")
	systemRoutes.GET("/info", systemHandler.GetSystemInfo)
	systemRoutes.GET("/ping", systemHandler.Ping)

	r.Register(integrationRoutes).
		Register(conflictRoutes).
		Register(systemRoutes)

	// Setup routes
	r.Setup()

	// Also keep a simple ping at root API level for basic health checks
	engine.GET("/api/v1/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})

	// Create HTTP server with config
	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	// Start server in goroutine
	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Stop triggering new syncs, then release provider sessions
	syncScheduler.Stop()
	connectionService.CloseAll(ctx)

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown", zap.Error(err))
	}

	log.Info("Server exited gracefully")
}

// registerProviderAdapters wires the REST adapters for the supported
// providers. Base URLs point at each provider's public API.
func registerProviderAdapters(registry *provider.Registry, log *zap.Logger) {
	configs := []provider.RESTAdapterConfig{
		{Type: integration.TypeSales, Provider: "hubspot", BaseURL: "https://api.hubapi.com", Entities: []string{"contacts", "companies", "deals"}},
		{Type: integration.TypeSales, Provider: "salesforce", BaseURL: "https://api.salesforce.com", Entities: []string{"contacts", "accounts", "opportunities"}},
		{Type: integration.TypeSales, Provider: "pipedrive", BaseURL: "https://api.pipedrive.com", Entities: []string{"persons", "organizations", "deals"}},
		{Type: integration.TypeMarketing, Provider: "mailchimp", BaseURL: "https://api.mailchimp.com", Entities: []string{"subscribers", "campaigns"}},
		{Type: integration.TypeMarketing, Provider: "brevo", BaseURL: "https://api.brevo.com", Entities: []string{"contacts", "campaigns"}},
		{Type: integration.TypeSupport, Provider: "zendesk", BaseURL: "https://api.zendesk.com", Entities: []string{"tickets", "users"}},
		{Type: integration.TypeSupport, Provider: "freshdesk", BaseURL: "https://api.freshdesk.com", Entities: []string{"tickets", "contacts"}},
		{Type: integration.TypeSupport, Provider: "intercom", BaseURL: "https://api.intercom.io", Entities: []string{"conversations", "contacts"}},
		{Type: integration.TypeAccounting, Provider: "quickbooks", BaseURL: "https://api.intuit.com", Entities: []string{"invoices", "customers", "payments"}},
		{Type: integration.TypeAccounting, Provider: "xero", BaseURL: "https://api.xero.com", Entities: []string{"invoices", "contacts", "payments"}},
		{Type: integration.TypeCommunication, Provider: "slack", BaseURL: "https://slack.com/api", Entities: []string{"messages", "channels"}},
		{Type: integration.TypeAnalytics, Provider: "mixpanel", BaseURL: "https://api.mixpanel.com", Entities: []string{"events", "profiles"}},
	}

	for _, cfg := range configs {
		adapter, err := provider.NewRESTAdapter(cfg)
		if err != nil {
			log.Warn("Skipping provider adapter",
				zap.String("provider", cfg.Provider),
				zap.Error(err),
			)
			continue
		}
		registry.Register(adapter)
	}
}

// healthHandler returns a handler for health check endpoints
func healthHandler(db *persistence.Database, _ *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		reqLog := logger.GetGinLogger(c)
		if err := db.Ping(); err != nil {
			reqLog.Warn("Health check failed", zap.Error(err))
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":   "unhealthy",
				"time":     time.Now().Format(time.RFC3339),
				"database": "error",
			})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"status":   "healthy",
			"time":     time.Now().Format(time.RFC3339),
			"database": "ok",
		})
	}
}
