package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	appsettlement "github.com/dealhunter/backend/internal/application/settlement"
	"github.com/dealhunter/backend/internal/domain/settlement"
	"github.com/dealhunter/backend/internal/domain/shared"
	"github.com/dealhunter/backend/internal/infrastructure/auth"
	"github.com/dealhunter/backend/internal/infrastructure/cache"
	"github.com/dealhunter/backend/internal/infrastructure/collaborators"
	"github.com/dealhunter/backend/internal/infrastructure/config"
	"github.com/dealhunter/backend/internal/infrastructure/event"
	"github.com/dealhunter/backend/internal/infrastructure/logger"
	"github.com/dealhunter/backend/internal/infrastructure/persistence"
	"github.com/dealhunter/backend/internal/infrastructure/telemetry"
	"github.com/dealhunter/backend/internal/interfaces/http/handler"
	"github.com/dealhunter/backend/internal/interfaces/http/middleware"
	"github.com/dealhunter/backend/internal/interfaces/http/router"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

//	@title			Deal Settlement API
//	@version		1.0
//	@description	Settlement and financing orchestration for NFT deals

//	@contact.name	API Support
//	@contact.url	https://github.com/dealhunter/backend

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

	log.Info("Starting Deal Settlement Backend",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
	)

	// Initialize tracing
	tracerProvider, err := telemetry.NewTracerProvider(context.Background(), telemetry.Config{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		SamplingRatio:     cfg.Telemetry.SamplingRatio,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize telemetry", zap.Error(err))
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tracerProvider.Shutdown(ctx); err != nil {
			log.Error("Error shutting down tracer provider", zap.Error(err))
		}
	}()

	// Create GORM logger backed by zap
	gormLog := logger.NewGormLogger(log, logger.MapGormLogLevel(cfg.Log.Level))

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

	// Financed-position ledger
	positionRepo := persistence.NewGormFinancedPositionRepository(db.DB)

	// Idempotency store: Redis when reachable, in-memory fallback for
	// single-instance deployments
	var idempotencyStore shared.IdempotencyStore
	redisStore, err := cache.NewRedisIdempotencyStore(cache.RedisConfig{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		log.Warn("Redis unavailable, using in-memory idempotency store", zap.Error(err))
		idempotencyStore = cache.NewInMemoryIdempotencyStore()
	} else {
		idempotencyStore = redisStore
		log.Info("Redis idempotency store connected", zap.String("addr", cfg.Redis.Addr()))
	}
	defer func() {
		if err := idempotencyStore.Close(); err != nil {
			log.Error("Error closing idempotency store", zap.Error(err))
		}
	}()

	// External settlement collaborators
	clientConfig := func(baseURL string) collaborators.Config {
		return collaborators.Config{
			BaseURL:        baseURL,
			APIKey:         cfg.Collaborators.APIKey,
			RequestTimeout: cfg.Collaborators.RequestTimeout,
		}
	}
	currencyToken, err := collaborators.NewCurrencyTokenClient(clientConfig(cfg.Collaborators.CurrencyTokenURL))
	if err != nil {
		log.Fatal("Failed to create currency token client", zap.Error(err))
	}
	marketplace, err := collaborators.NewMarketplaceClient(clientConfig(cfg.Collaborators.MarketplaceURL))
	if err != nil {
		log.Fatal("Failed to create marketplace client", zap.Error(err))
	}
	financingAdapter, err := collaborators.NewFinancingAdapterClient(clientConfig(cfg.Collaborators.FinancingAdapterURL))
	if err != nil {
		log.Fatal("Failed to create financing adapter client", zap.Error(err))
	}
	lendingFacility, err := collaborators.NewLendingFacilityClient(clientConfig(cfg.Collaborators.LendingFacilityURL))
	if err != nil {
		log.Fatal("Failed to create lending facility client", zap.Error(err))
	}
	assetToken, err := collaborators.NewAssetTokenClient(clientConfig(cfg.Collaborators.AssetTokenURL))
	if err != nil {
		log.Fatal("Failed to create asset token client", zap.Error(err))
	}

	// Event bus with a deduplicated audit-log subscriber
	eventBus := event.NewInMemoryEventBus(log)
	auditHandler := event.NewIdempotentHandler(
		event.NewSettlementLogHandler(log),
		idempotencyStore,
		cfg.Settlement.IdempotencyTTL,
		log,
	)
	eventBus.Subscribe(auditHandler)
	log.Info("Event handlers registered", zap.Strings("audit_events", auditHandler.EventTypes()))

	// Settlement orchestrator
	custody, ok := settlement.ParseAddress(cfg.Settlement.CustodyAddress)
	if !ok {
		log.Fatal("Invalid custody address", zap.String("address", cfg.Settlement.CustodyAddress))
	}
	lender, ok := settlement.ParseAddress(cfg.Settlement.LenderAddress)
	if !ok {
		log.Fatal("Invalid lender address", zap.String("address", cfg.Settlement.LenderAddress))
	}
	orchestrator := appsettlement.NewDealOrchestrator(
		positionRepo,
		currencyToken,
		marketplace,
		financingAdapter,
		lendingFacility,
		assetToken,
		eventBus,
		log,
		appsettlement.OrchestratorConfig{
			CustodyAddress:      custody,
			DownPaymentRatioBps: cfg.Settlement.DownPaymentRatioBps,
			LenderAddress:       lender,
		},
	)

	// Operator authentication
	jwtService := auth.NewJWTService(cfg.JWT)

	// Set Gin mode based on environment
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	middleware.SetupValidator()

	engine := gin.New()

	// Configure trusted proxies
	if len(cfg.HTTP.TrustedProxies) > 0 {
		if err := engine.SetTrustedProxies(cfg.HTTP.TrustedProxies); err != nil {
			log.Warn("Failed to set trusted proxies", zap.Error(err))
		}
	}

	// Apply middleware stack in order:
	// 1. RequestID - Generate/propagate request ID
	// 2. Recovery - Catch panics
	// 3. Logger - Log requests
	// 4. Security - Add security headers
	// 5. CORS - Handle cross-origin requests
	// 6. RateLimit - Apply rate limiting (if enabled)
	engine.Use(middleware.RequestID())
	engine.Use(logger.Recovery(log))
	engine.Use(logger.GinMiddleware(log))
	engine.Use(middleware.Secure())

	corsConfig := middleware.CORSConfig{
		AllowOrigins:     cfg.HTTP.CORSAllowOrigins,
		AllowMethods:     cfg.HTTP.CORSAllowMethods,
		AllowHeaders:     cfg.HTTP.CORSAllowHeaders,
		ExposeHeaders:    []string{"X-Request-ID", "X-RateLimit-Limit", "X-RateLimit-Remaining"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	engine.Use(middleware.CORSWithConfig(corsConfig))

	if cfg.HTTP.RateLimitEnabled {
		rateLimiter := middleware.NewRateLimiter(cfg.HTTP.RateLimitRequests, cfg.HTTP.RateLimitWindow)
		engine.Use(middleware.RateLimit(rateLimiter))
		log.Info("Rate limiting enabled",
			zap.Int("requests", cfg.HTTP.RateLimitRequests),
			zap.Duration("window", cfg.HTTP.RateLimitWindow),
		)
	}

	// Health check endpoint (outside API versioning)
	engine.GET("/health", healthHandler(db, log))

	// Versioned API routes behind JWT auth and idempotency-key handling
	jwtConfig := middleware.JWTMiddlewareConfig{
		JWTService: jwtService,
		SkipPaths: []string{
			"/api/v1/system/ping",
			"/api/v1/system/info",
		},
		Logger: log,
	}

	router.NewRouter(engine,
		router.WithAPIVersion("v1"),
		router.WithMiddleware(
			middleware.JWTAuthMiddlewareWithConfig(jwtConfig),
			middleware.Idempotency(idempotencyStore, cfg.Settlement.IdempotencyTTL, log),
		),
	).
		Register(handler.NewDealHandler(orchestrator)).
		Register(handler.NewPositionHandler(orchestrator)).
		Register(handler.NewSettingsHandler(orchestrator)).
		Register(handler.NewSystemHandler()).
		Setup()

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

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown", zap.Error(err))
	}

	log.Info("Server exited gracefully")
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
