package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/crm/hub/internal/application/hub"
	"github.com/crm/hub/internal/domain/integration"
	"github.com/crm/hub/internal/domain/mapping"
	"github.com/crm/hub/internal/domain/shared"
	"github.com/crm/hub/internal/infrastructure/auth"
	"github.com/crm/hub/internal/infrastructure/cache"
	"github.com/crm/hub/internal/infrastructure/config"
	"github.com/crm/hub/internal/infrastructure/dispatch"
	"github.com/crm/hub/internal/infrastructure/logger"
	"github.com/crm/hub/internal/infrastructure/persistence"
	"github.com/crm/hub/internal/infrastructure/ratelimit"
	"github.com/crm/hub/internal/infrastructure/secrets"
	"github.com/crm/hub/internal/infrastructure/signature"
	"github.com/crm/hub/internal/infrastructure/telemetry"
	"github.com/crm/hub/internal/interfaces/http/handler"
	"github.com/crm/hub/internal/interfaces/http/middleware"
	"github.com/crm/hub/internal/interfaces/http/router"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	gormlogger "gorm.io/gorm/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log, err := logger.New(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		panic("failed to initialize logger: " + err.Error())
	}
	defer log.Sync()

	log.Info("starting integration hub",
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
	)

	ctx := context.Background()

	tracerProvider, err := telemetry.NewTracerProvider(ctx, telemetry.Config{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		SamplingRatio:     cfg.Telemetry.SamplingRatio,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("failed to initialize tracing", zap.Error(err))
	}

	meterProvider, err := telemetry.NewMeterProvider(ctx, telemetry.MetricsConfig{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("failed to initialize metrics", zap.Error(err))
	}

	logsProvider, err := telemetry.NewLoggerProvider(ctx, telemetry.LogsConfig{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("failed to initialize log export", zap.Error(err))
	}
	if logsProvider.IsEnabled() {
		// Tee application logs to the collector alongside the local output
		otelCore := telemetry.NewZapOTELCore(telemetry.ZapBridgeConfig{
			ServiceName:    cfg.Telemetry.ServiceName,
			LoggerProvider: logsProvider,
			Level:          zapcore.InfoLevel,
		})
		log = telemetry.NewBridgedLogger(log.Core(), otelCore,
			zap.AddCaller(),
			zap.AddStacktrace(zapcore.ErrorLevel),
		)
	}

	gormLogLevel := gormlogger.Info
	if cfg.App.Env == "production" {
		gormLogLevel = gormlogger.Warn
	}
	db, err := persistence.NewDatabaseWithCustomLogger(&cfg.Database, logger.NewGormLogger(log, gormLogLevel))
	if err != nil {
		log.Fatal("failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	dbTracingCfg := telemetry.DefaultDBTracingConfig()
	dbTracingCfg.Enabled = cfg.Telemetry.Enabled
	if err := telemetry.RegisterDBTracing(db.DB, dbTracingCfg, log); err != nil {
		log.Fatal("failed to register database tracing", zap.Error(err))
	}

	dbMetrics, err := telemetry.RegisterDBMetrics(db.DB, meterProvider, telemetry.DefaultDBMetricsConfig(), log)
	if err != nil {
		log.Fatal("failed to register database metrics", zap.Error(err))
	}
	if dbMetrics != nil {
		dbMetrics.StartPoolStatsCollection(ctx)
	}

	// Admission control counters live in redis so limits hold across
	// instances; a single-node deployment falls back to process memory.
	limits := ratelimit.NewLimitTable(ratelimit.Limits{
		PerMinute: cfg.RateLimit.DefaultPerMinute,
		PerDay:    cfg.RateLimit.DefaultPerDay,
	})
	var limiter ratelimit.Limiter
	var idempotency shared.IdempotencyStore
	redisClient, err := cache.NewRedisClient(cache.RedisConfig{
		Host:     cfg.Redis.Host,
		Port:     cfg.Redis.Port,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		log.Warn("redis unavailable, using in-memory rate limiter and idempotency store. "+
			"This may cause duplicate deliveries in distributed deployments.",
			zap.Error(err),
		)
		limiter = ratelimit.NewMemoryLimiter(limits)
		idempotency = cache.NewInMemoryIdempotencyStore()
	} else {
		defer redisClient.Close()
		limiter = ratelimit.NewRedisLimiter(redisClient, limits)
		idempotency = cache.NewRedisIdempotencyStoreWithClient(redisClient, "")
	}

	// Environment variables win over the static map from config.toml
	secretStore := secrets.NewChainStore(
		secrets.NewEnvStore(),
		secrets.NewStaticStore(cfg.Secrets.Static),
	)

	configRepo := persistence.NewGormIntegrationConfigRepository(db.DB)
	subscriptionRepo := persistence.NewGormSubscriptionRepository(db.DB)
	attemptRepo := persistence.NewGormAttemptRepository(db.DB)
	auditLog := persistence.NewGormAuditLogger(db.DB)
	coreData := persistence.NewGormCoreDataService(db.DB)

	hubService, err := hub.New(hub.Dependencies{
		Registry:    integration.NewRegistry(),
		Mapper:      mapping.NewMapper(),
		Validator:   signature.NewValidator(secretStore),
		Limiter:     limiter,
		Limits:      limits,
		Configs:     configRepo,
		Subs:        subscriptionRepo,
		Attempts:    attemptRepo,
		Idempotency: idempotency,
		CoreData:    coreData,
		Authority:   auth.NewStaticAuthority(),
		Audit:       auditLog,
		Logger:      log,
	})
	if err != nil {
		log.Fatal("failed to construct hub", zap.Error(err))
	}

	if err := hubService.Restore(ctx); err != nil {
		log.Fatal("failed to restore integrations", zap.Error(err))
	}

	sender := dispatch.NewHTTPSender(dispatch.SenderConfig{
		RequestTimeout: cfg.Delivery.RequestTimeout,
		UserAgent:      cfg.Delivery.UserAgent,
		EndpointRate:   cfg.Delivery.EndpointRate,
		EndpointBurst:  cfg.Delivery.EndpointBurst,
	})
	dispatcher := dispatch.NewDispatcher(attemptRepo, subscriptionRepo, sender, idempotency, dispatch.Config{
		Workers:          cfg.Delivery.Workers,
		BatchSize:        cfg.Delivery.BatchSize,
		PollInterval:     cfg.Delivery.PollInterval,
		ClaimTimeout:     cfg.Delivery.ClaimTimeout,
		DeactivateAfter:  cfg.Delivery.DeactivateAfter,
		DeactivateWindow: cfg.Delivery.DeactivateWindow,
		CleanupEnabled:   cfg.Delivery.CleanupEnabled,
		CleanupRetention: cfg.Delivery.CleanupRetention,
		CleanupInterval:  cfg.Delivery.CleanupInterval,
	}, log)
	if err := dispatcher.Start(ctx); err != nil {
		log.Fatal("failed to start delivery dispatcher", zap.Error(err))
	}

	authService := auth.NewService(cfg.JWT)

	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	middleware.SetupValidator()

	engine := gin.New()
	if err := engine.SetTrustedProxies(cfg.HTTP.TrustedProxies); err != nil {
		log.Fatal("failed to set trusted proxies", zap.Error(err))
	}

	engine.Use(middleware.RequestID())
	engine.Use(logger.Recovery(log))
	engine.Use(middleware.TracingWithConfig(middleware.TracingConfig{
		ServiceName: cfg.Telemetry.ServiceName,
		Enabled:     cfg.Telemetry.Enabled,
	}))
	engine.Use(middleware.TracingAttributeInjector())
	engine.Use(middleware.SpanErrorMarker())
	engine.Use(middleware.HTTPMetrics(middleware.HTTPMetricsConfig{
		MeterProvider: meterProvider,
		ServiceName:   cfg.Telemetry.ServiceName,
		Enabled:       cfg.Telemetry.Enabled,
	}))
	engine.Use(logger.RequestLogging(log))
	engine.Use(middleware.Secure())
	engine.Use(middleware.CORS())
	engine.Use(middleware.BodyLimit(cfg.HTTP.MaxWebhookBody))

	var ipLimiter *middleware.RateLimiter
	if cfg.HTTP.IPRateLimitEnable {
		ipLimiter = middleware.NewRateLimiter(cfg.HTTP.IPRateLimitCount, cfg.HTTP.IPRateLimitWindow)
	}

	router.Setup(engine, router.Handlers{
		System:       handler.NewSystemHandler(db.DB),
		Webhook:      handler.NewWebhookHandler(hubService),
		Integration:  handler.NewIntegrationHandler(hubService),
		Subscription: handler.NewSubscriptionHandler(hubService),
		Audit:        handler.NewAuditHandler(auditLog),
	}, router.Options{
		AuthService: authService,
		Logger:      log,
		RateLimiter: ipLimiter,
	})

	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	go func() {
		log.Info("http server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("http server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http server shutdown failed", zap.Error(err))
	}
	if err := dispatcher.Stop(shutdownCtx); err != nil {
		log.Error("dispatcher shutdown failed", zap.Error(err))
	}
	if dbMetrics != nil {
		dbMetrics.Stop()
	}
	if err := meterProvider.Shutdown(shutdownCtx); err != nil {
		log.Error("meter shutdown failed", zap.Error(err))
	}
	if err := logsProvider.Shutdown(shutdownCtx); err != nil {
		log.Error("log exporter shutdown failed", zap.Error(err))
	}
	if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
		log.Error("tracer shutdown failed", zap.Error(err))
	}

	log.Info("shutdown complete")
}
