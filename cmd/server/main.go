package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	reconapp "github.com/freightops/backend/internal/application/reconciliation"
	domainrecon "github.com/freightops/backend/internal/domain/reconciliation"
	"github.com/freightops/backend/internal/domain/shared"
	domtracking "github.com/freightops/backend/internal/domain/tracking"
	"github.com/freightops/backend/internal/infrastructure/cache"
	"github.com/freightops/backend/internal/infrastructure/config"
	"github.com/freightops/backend/internal/infrastructure/logger"
	"github.com/freightops/backend/internal/infrastructure/persistence"
	"github.com/freightops/backend/internal/infrastructure/ratecalc"
	"github.com/freightops/backend/internal/infrastructure/scheduler"
	"github.com/freightops/backend/internal/infrastructure/telemetry"
	"github.com/freightops/backend/internal/infrastructure/tracking"
	"github.com/freightops/backend/internal/interfaces/http/handler"
	"github.com/freightops/backend/internal/interfaces/http/middleware"
	"github.com/freightops/backend/internal/interfaces/http/router"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

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

	log.Info("Starting FreightOps reconciliation backend",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
	)

	ctx := context.Background()

	// Initialize OpenTelemetry providers (no-op when telemetry is disabled)
	tracerProvider, err := telemetry.NewTracerProvider(ctx, telemetry.Config{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		SamplingRatio:     cfg.Telemetry.SamplingRatio,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize tracer provider", zap.Error(err))
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
			log.Error("Error shutting down tracer provider", zap.Error(err))
		}
	}()

	meterProvider, err := telemetry.NewMeterProvider(ctx, telemetry.MetricsConfig{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize meter provider", zap.Error(err))
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := meterProvider.Shutdown(shutdownCtx); err != nil {
			log.Error("Error shutting down meter provider", zap.Error(err))
		}
	}()

	logsProvider, err := telemetry.NewLoggerProvider(ctx, telemetry.LogsConfig{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize logger provider", zap.Error(err))
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := logsProvider.Shutdown(shutdownCtx); err != nil {
			log.Error("Error shutting down logger provider", zap.Error(err))
		}
	}()
	if logsProvider.IsEnabled() {
		// Tee application logs into the collector alongside stdout
		bridge := logsProvider.BridgeCore(cfg.Telemetry.ServiceName, logger.ParseLevel(cfg.Log.Level))
		log = telemetry.NewBridgedLogger(log.Core(), bridge,
			zap.AddCaller(),
			zap.AddStacktrace(zapcore.ErrorLevel),
		)
	}

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

	// Register database query tracing (otelgorm) when enabled
	if cfg.Telemetry.DBTraceEnabled {
		dbTracing := telemetry.NewDBTracingPlugin(telemetry.DBTracingConfig{
			Enabled:          true,
			LogFullSQL:       cfg.Telemetry.DBLogFullSQL,
			SlowQueryThresh:  cfg.Telemetry.DBSlowQueryThresh,
			DBSystem:         "postgresql",
			WithoutVariables: !cfg.Telemetry.DBLogFullSQL,
		}, log)
		if err := dbTracing.RegisterOtelGorm(db.DB); err != nil {
			log.Fatal("Failed to register database tracing", zap.Error(err))
		}
	}

	// Statement and pool metrics on the same connection
	dbMetrics, err := telemetry.RegisterDBMetrics(db.DB, meterProvider, telemetry.DBMetricsConfig{
		Enabled:            cfg.Telemetry.Enabled,
		SlowQueryThreshold: cfg.Telemetry.DBSlowQueryThresh,
	}, log)
	if err != nil {
		log.Fatal("Failed to register database metrics", zap.Error(err))
	}
	if dbMetrics != nil {
		dbMetrics.StartPoolStatsCollection(ctx)
		defer dbMetrics.Stop()
	}

	// Initialize repositories
	invoiceRepo := persistence.NewGormInvoiceRepository(db.DB)
	allocationRepo := persistence.NewGormAllocationRepository(db.DB)
	shipmentRepo := persistence.NewGormShipmentRepository(db.DB)
	shipmentLineRepo := persistence.NewGormShipmentLineRepository(db.DB)
	freightRepo := persistence.NewGormFreightRepository(db.DB)
	productWeightRepo := persistence.NewGormProductWeightRepository(db.DB)
	deliveryRecordRepo := persistence.NewGormDeliveryRecordRepository(db.DB)

	// Per-order lock backend. Postgres advisory locks serve single-pool
	// deployments; redis serves multi-instance ones.
	var orderMutex shared.Mutex
	var redisClient *redis.Client
	switch cfg.Lock.Backend {
	case "redis":
		redisClient = redis.NewClient(&redis.Options{
			Addr:     fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			log.Fatal("Failed to connect to Redis", zap.Error(err))
		}
		defer func() {
			if err := redisClient.Close(); err != nil {
				log.Error("Error closing Redis client", zap.Error(err))
			}
		}()
		orderMutex = cache.NewRedisMutex(redisClient, "", cfg.Lock.TTL)
	default:
		orderMutex = persistence.NewAdvisoryLockMutex(db.DB)
	}
	log.Info("Per-order lock backend ready", zap.String("backend", cfg.Lock.Backend))

	// Billing-feed redelivery dedupe. Shares the redis client when one is
	// configured; single-instance deployments use the in-process store.
	var importDedupe shared.IdempotencyStore
	if redisClient != nil {
		// Shares the lock client; closing it is handled above.
		importDedupe = cache.NewRedisIdempotencyStoreWithClient(redisClient, "")
	} else {
		inMemDedupe := cache.NewInMemoryIdempotencyStore()
		defer func() {
			if err := inMemDedupe.Close(); err != nil {
				log.Error("Error closing idempotency store", zap.Error(err))
			}
		}()
		importDedupe = inMemDedupe
	}

	// External freight-rate calculator
	rateCalc, err := ratecalc.NewHTTPRateCalculator(ratecalc.Config{
		BaseURL: cfg.RateCalculator.BaseURL,
		APIKey:  cfg.RateCalculator.APIKey,
		Timeout: cfg.RateCalculator.Timeout,
	})
	if err != nil {
		log.Fatal("Failed to configure rate calculator", zap.Error(err))
	}

	// External delivery monitoring. When disabled both post-commit
	// triggers become no-ops.
	var deliveryMonitor domtracking.DeliveryMonitor
	var freightLauncher domtracking.FreightLauncher
	if cfg.Tracking.Enabled {
		trackingClient, err := tracking.NewHTTPClient(tracking.Config{
			BaseURL: cfg.Tracking.BaseURL,
			APIKey:  cfg.Tracking.APIKey,
			Timeout: cfg.Tracking.Timeout,
		}, log)
		if err != nil {
			log.Fatal("Failed to configure tracking client", zap.Error(err))
		}
		deliveryMonitor = trackingClient
		freightLauncher = trackingClient
	} else {
		noop := tracking.NewNoOpClient()
		deliveryMonitor = noop
		freightLauncher = noop
	}

	// Initialize application services
	matcher := domainrecon.NewMatcher()
	cascade := reconapp.NewCascadeRecalculator(rateCalc, log)
	recorder := reconapp.NewMovementRecorder(log)
	scope := persistence.NewGormTransactionScope(db.DB)

	reconService := reconapp.NewReconciliationService(
		invoiceRepo,
		shipmentLineRepo,
		shipmentRepo,
		matcher,
		cascade,
		recorder,
		scope,
		orderMutex,
		log,
		reconapp.WithLockTimeout(cfg.Lock.AcquireTimeout),
		reconapp.WithBatchWorkers(cfg.Reconciliation.BatchWorkers),
		reconapp.WithBatchSize(cfg.Reconciliation.BatchSize),
		reconapp.WithDeliveryMonitor(deliveryMonitor),
		reconapp.WithFreightLauncher(freightLauncher),
	)
	ingestService := reconapp.NewInvoiceIngestService(invoiceRepo, log,
		reconapp.WithImportDedupe(importDedupe, reconapp.DefaultImportDedupeTTL))
	lotCancelService := reconapp.NewLotCancellationService(
		allocationRepo,
		cascade,
		scope,
		orderMutex,
		log,
		reconapp.WithCancellationLockTimeout(cfg.Lock.AcquireTimeout),
	)
	statusService := reconapp.NewStatusService(
		allocationRepo,
		shipmentLineRepo,
		shipmentRepo,
		freightRepo,
		invoiceRepo,
		deliveryRecordRepo,
		log,
	)

	// Reconciliation metrics with periodic backlog collection
	reconMetrics, err := telemetry.NewReconciliationMetrics(telemetry.ReconciliationMetricsConfig{
		Meter:           meterProvider.Meter("freightops-backend"),
		Logger:          log,
		BacklogProvider: telemetry.NewGormBacklogMetricsProvider(db.DB),
	})
	if err != nil {
		log.Fatal("Failed to initialize reconciliation metrics", zap.Error(err))
	}
	reconMetrics.StartPeriodicCollection(ctx, 5*time.Minute)
	defer reconMetrics.Stop()

	// Periodic reconciliation passes
	reportStore := reconapp.NewBatchReportStore(reconapp.DefaultReportHistory)
	batchRunner := scheduler.BatchRunnerFunc(func(runCtx context.Context) error {
		start := time.Now()
		report, err := reconService.ProcessBatch(runCtx, nil)
		reportStore.Record(report)
		reconMetrics.RecordSyncRun(runCtx, telemetry.SyncTriggerScheduler, time.Since(start))
		return err
	})
	syncScheduler := scheduler.NewSyncScheduler(scheduler.SyncSchedulerConfig{
		Enabled:  cfg.Reconciliation.SyncEnabled,
		Interval: cfg.Reconciliation.SyncInterval,
	}, batchRunner, log)
	syncScheduler.Start()
	defer syncScheduler.Stop()
	if cfg.Reconciliation.SyncEnabled {
		log.Info("Sync scheduler started",
			zap.Duration("interval", cfg.Reconciliation.SyncInterval),
		)
	}

	// Initialize HTTP handlers
	invoiceHandler := handler.NewInvoiceHandler(ingestService)
	reconHandler := handler.NewReconciliationHandler(reconService, reportStore)
	orderStatusHandler := handler.NewOrderStatusHandler(statusService)
	allocationHandler := handler.NewAllocationHandler(lotCancelService)
	weightImportHandler := handler.NewWeightImportHandler(productWeightRepo, log)
	defer weightImportHandler.Stop()
	deliveryImportHandler := handler.NewDeliveryImportHandler(deliveryRecordRepo, log)
	defer deliveryImportHandler.Stop()
	systemHandler := handler.NewSystemHandler(db)

	// Set Gin mode based on environment
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	// Setup validation
	middleware.SetupValidator()

	// Initialize router with custom middleware
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
	// 6. BodyLimit - Limit request body size
	// 7. RateLimit - Apply rate limiting (if enabled)
	// 8. Tracing and HTTP metrics (if telemetry enabled)
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

	if cfg.Telemetry.Enabled {
		engine.Use(middleware.TracingWithConfig(middleware.TracingConfig{
			ServiceName: cfg.Telemetry.ServiceName,
			Enabled:     true,
		}))
		engine.Use(middleware.SpanErrorMarker())
	}
	engine.Use(middleware.HTTPMetrics(middleware.HTTPMetricsConfig{
		MeterProvider: meterProvider,
		ServiceName:   cfg.Telemetry.ServiceName,
		Enabled:       cfg.Telemetry.Enabled,
	}))

	// Health check endpoint (outside API versioning)
	engine.GET("/health", healthHandler(db, redisClient, log))

	// Setup API routes using router
	r := router.NewRouter(engine, router.WithAPIVersion("v1"))

	// Billing domain (invoice feed)
	billingRoutes := router.NewDomainGroup("/billing")
	billingRoutes.POST("/invoices", invoiceHandler.Import)
	billingRoutes.GET("/invoices/pending", invoiceHandler.ListPending)
	billingRoutes.GET("/invoices/:invoice_number", invoiceHandler.GetByNumber)
	billingRoutes.POST("/invoices/:invoice_number/deactivate", invoiceHandler.Deactivate)

	// Reconciliation domain (sync triggers)
	reconRoutes := router.NewDomainGroup("/reconciliation")
	reconRoutes.POST("/sync", reconHandler.SyncBatch)
	reconRoutes.POST("/sync/:invoice_number", reconHandler.SyncInvoice)
	reconRoutes.GET("/reports", reconHandler.ListReports)
	reconRoutes.GET("/reports/latest", reconHandler.LatestReport)

	// Order status queries
	orderRoutes := router.NewDomainGroup("/orders")
	orderRoutes.GET("/:order_number/status", orderStatusHandler.GetOrderStatus)

	// Allocation lot rollback
	allocationRoutes := router.NewDomainGroup("/allocations")
	allocationRoutes.POST("/:lot_id/cancel", allocationHandler.CancelLot)

	// System routes
	systemRoutes := router.NewDomainGroup("/system")
	systemRoutes.GET("/info", systemHandler.GetSystemInfo)
	systemRoutes.GET("/ping", systemHandler.Ping)

	// Register all domain groups; the import handlers register their own
	// upload routes under /import
	r.Register(billingRoutes).
		Register(reconRoutes).
		Register(orderRoutes).
		Register(allocationRoutes).
		Register(systemRoutes).
		Register(weightImportHandler).
		Register(deliveryImportHandler)

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

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal("Server forced to shutdown", zap.Error(err))
	}

	log.Info("Server exited gracefully")
}

// healthHandler returns a handler for health check endpoints. Redis is only
// checked when the lock backend uses it.
func healthHandler(db *persistence.Database, redisClient *redis.Client, _ *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		reqLog := logger.GetGinLogger(c)
		resp := gin.H{
			"time":     time.Now().Format(time.RFC3339),
			"database": "ok",
		}

		healthy := true
		if err := db.Ping(); err != nil {
			reqLog.Warn("Health check failed", zap.Error(err))
			resp["database"] = "error"
			healthy = false
		}
		if redisClient != nil {
			resp["redis"] = "ok"
			if err := redisClient.Ping(c.Request.Context()).Err(); err != nil {
				reqLog.Warn("Health check failed", zap.Error(err))
				resp["redis"] = "error"
				healthy = false
			}
		}

		if !healthy {
			resp["status"] = "unhealthy"
			c.JSON(http.StatusServiceUnavailable, resp)
			return
		}
		resp["status"] = "healthy"
		c.JSON(http.StatusOK, resp)
	}
}
