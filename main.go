// Package main provides the main entry point for the Audioform voice survey platform
package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/audioform/audioform/app/handlers"
	"github.com/audioform/audioform/app/middleware"
	"github.com/audioform/audioform/app/router"
	"github.com/audioform/audioform/app/scheduler"
	"github.com/audioform/audioform/app/services"
	businessflow "github.com/audioform/audioform/business_flow"
	"github.com/audioform/audioform/config"
	"github.com/audioform/audioform/repository"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/redis/go-redis/v9"
	"gopkg.in/natefinch/lumberjack.v2"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// Application represents the main application structure
type Application struct {
	router    *router.FiberRouter
	config    *config.ProductionConfig
	server    *fiber.App
	stopFuncs []func()
}

func main() {
	log.Println("Starting Audioform application...")

	// Load production configuration
	cfg, err := config.LoadProductionConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	setupLogging(cfg.Logging)

	// Initialize application
	app, err := initializeApplication(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize application: %v", err)
	}

	// Setup routes
	app.router.SetupRoutes()

	// Setup graceful shutdown
	_, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Start server in goroutine
	go func() {
		address := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		log.Printf("Server starting on %s", address)

		if err := app.server.Listen(address); err != nil {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for shutdown signal
	<-sigChan
	log.Println("Shutting down gracefully...")

	// Stop background workers
	for _, fn := range app.stopFuncs {
		fn()
	}

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := app.server.ShutdownWithContext(shutdownCtx); err != nil {
		log.Printf("Error during shutdown: %v", err)
	}

	log.Println("Server stopped")
}

// setupLogging points the standard logger at a rotated file when configured
func setupLogging(cfg config.LoggingConfig) {
	if cfg.Output == "stdout" || cfg.FilePath == "" {
		return
	}

	rotated := &lumberjack.Logger{
		Filename:   cfg.FilePath,
		MaxSize:    cfg.MaxSize,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAge,
		Compress:   cfg.Compress,
	}

	if cfg.Output == "both" {
		log.SetOutput(io.MultiWriter(os.Stdout, rotated))
		return
	}
	log.SetOutput(rotated)
}

// initializeDatabase initializes the database connection with connection pooling
func initializeDatabase(cfg config.DatabaseConfig) (*gorm.DB, error) {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Name, cfg.SSLMode)

	// TranslateError maps driver unique-violation errors onto
	// gorm.ErrDuplicatedKey, which the repositories rely on.
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Get underlying sql.DB for connection pooling configuration
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	// Configure connection pooling
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	// Test the connection
	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Printf("Database connection established with %d max open connections, %d max idle connections",
		cfg.MaxOpenConns, cfg.MaxIdleConns)

	return db, nil
}

// initializeCache initializes the Redis client and verifies connectivity.
// Returns nil when the cache is disabled; the counter service degrades to
// database-only counts in that case.
func initializeCache(cfg config.CacheConfig) (*redis.Client, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	rc := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rc.Ping(ctx).Err(); err != nil {
		_ = rc.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	log.Printf("Redis connection established to %s (db=%d)", cfg.RedisAddr, cfg.RedisDB)
	return rc, nil
}

// startCacheHealthMonitor starts a background goroutine that periodically pings Redis
// to detect connectivity issues. The returned cancel function stops the monitor.
func startCacheHealthMonitor(parent context.Context, client *redis.Client, interval time.Duration) func() {
	monitorCtx, cancel := context.WithCancel(parent)
	if interval <= 0 {
		interval = 30 * time.Second
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-monitorCtx.Done():
				return
			case <-ticker.C:
				ctx, c := context.WithTimeout(context.Background(), 3*time.Second)
				if err := client.Ping(ctx).Err(); err != nil {
					log.Printf("Redis healthcheck failed: %v", err)
				}
				c()
			}
		}
	}()
	return cancel
}

// initializeAudioStore selects the blob store for uploaded clips
func initializeAudioStore(cfg config.StorageConfig) (services.AudioStore, error) {
	switch cfg.Provider {
	case "local":
		store, err := services.NewLocalAudioStore(cfg.LocalDir)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize local audio store: %w", err)
		}
		log.Printf("Audio store initialized on local dir %s", cfg.LocalDir)
		return store, nil
	default:
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		store, err := services.NewS3AudioStore(ctx, services.S3Config{
			Region:       cfg.Region,
			Bucket:       cfg.Bucket,
			AccessKey:    cfg.AccessKey,
			SecretKey:    cfg.SecretKey,
			BaseEndpoint: cfg.BaseEndpoint,
			UsePathStyle: cfg.UsePathStyle,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize s3 audio store: %w", err)
		}
		log.Printf("Audio store initialized on bucket %s", cfg.Bucket)
		return store, nil
	}
}

// initializeNotificationService initializes the notification service
func initializeNotificationService(cfg config.EmailConfig) services.NotificationService {
	var emailProvider services.EmailProvider
	if cfg.UseMock {
		emailProvider = services.NewMockEmailProvider()
	} else {
		emailProvider = services.NewSMTPEmailProvider(cfg.Host, cfg.Port, cfg.Username, cfg.Password, cfg.FromEmail)
	}
	return services.NewNotificationService(emailProvider)
}

// initializeApplication initializes the main application components
func initializeApplication(cfg *config.ProductionConfig) (*Application, error) {
	var stopFuncs []func()

	// Initialize database
	db, err := initializeDatabase(cfg.Database)
	if err != nil {
		return nil, err
	}

	rc, err := initializeCache(cfg.Cache)
	if err != nil {
		return nil, err
	}
	if rc != nil {
		cancel := startCacheHealthMonitor(context.Background(), rc, 30*time.Second)
		stopFuncs = append(stopFuncs, cancel)
	}

	audioStore, err := initializeAudioStore(cfg.Storage)
	if err != nil {
		return nil, err
	}

	// Initialize repositories
	surveyRepo := repository.NewSurveyRepository(db)
	responseRepo := repository.NewResponseRepository(db)
	demoRepo := repository.NewDemoSessionRepository(db)
	auditRepo := repository.NewAuditLogRepository(db)
	creatorRepo := repository.NewCreatorRepository(db)
	sessionRepo := repository.NewCreatorSessionRepository(db)
	collectionRepo := repository.NewEventCollectionRepository(db)
	funnelRepo := repository.NewFunnelRepository(db)
	analyticsEventRepo := repository.NewAnalyticsEventRepository(db)

	// Initialize services
	notificationService := initializeNotificationService(cfg.Email)

	tokenService, err := services.NewTokenService(
		cfg.JWT.AccessTokenTTL,
		cfg.JWT.RefreshTokenTTL,
		cfg.JWT.Issuer,
		cfg.JWT.Audience,
		cfg.JWT.UseRSAKeys,
		cfg.JWT.PrivateKey,
		cfg.JWT.PublicKey,
		cfg.JWT.SecretKey,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize token service: %w", err)
	}
	log.Printf("Token service initialized with issuer: %s, audience: %s", cfg.JWT.Issuer, cfg.JWT.Audience)

	counterService := services.NewCounterService(rc, responseRepo)
	stopFuncs = append(stopFuncs, func() {
		if err := counterService.Close(); err != nil {
			log.Printf("Counter service close failed: %v", err)
		}
	})

	analyticsQueue := services.NewAnalyticsQueue(analyticsEventRepo, cfg.Analytics.QueueSize, cfg.Analytics.BatchSize, cfg.Analytics.FlushInterval)
	stopQueue := analyticsQueue.Start(context.Background())
	stopFuncs = append(stopFuncs, stopQueue)

	// Initialize flows
	surveyFlow := businessflow.NewSurveyFlow(
		surveyRepo,
		responseRepo,
		demoRepo,
		auditRepo,
		audioStore,
		counterService,
		analyticsQueue,
		db,
	)

	responseFlow := businessflow.NewResponseFlow(
		surveyRepo,
		responseRepo,
		auditRepo,
		audioStore,
		counterService,
		analyticsQueue,
		db,
	)

	analyticsFlow := businessflow.NewAnalyticsFlow(funnelRepo, analyticsQueue)

	collectionFlow := businessflow.NewEventCollectionFlow(
		collectionRepo,
		surveyRepo,
		cfg.Links.PublicBaseURL,
		cfg.Links.QRServiceURL,
	)

	authFlow := businessflow.NewAuthFlow(
		creatorRepo,
		sessionRepo,
		auditRepo,
		tokenService,
		db,
	)

	// Seed the built-in funnels before the first event arrives
	ensureCtx, ensureCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer ensureCancel()
	if err := analyticsFlow.EnsureFunnels(ensureCtx); err != nil {
		return nil, fmt.Errorf("failed to ensure funnels: %w", err)
	}

	// Initialize handlers
	validate := validator.New()
	authHandler := handlers.NewAuthHandler(authFlow, validate)
	surveyHandler := handlers.NewSurveyHandler(surveyFlow, validate)
	responseHandler := handlers.NewResponseHandler(responseFlow, validate)
	analyticsHandler := handlers.NewAnalyticsHandler(analyticsFlow, validate)
	collectionHandler := handlers.NewEventCollectionHandler(collectionFlow, validate)

	// Initialize auth middleware
	authMiddleware := middleware.NewAuthMiddleware(tokenService)

	// Initialize router
	appRouter := router.NewFiberRouter(
		authHandler,
		surveyHandler,
		responseHandler,
		analyticsHandler,
		collectionHandler,
		authMiddleware,
		cfg.Security.AllowedOrigins,
	)

	// Start the demo expiry sweep
	sched := scheduler.NewExpiryScheduler(demoRepo, surveyRepo, auditRepo, notificationService, db, log.Default(), cfg.Scheduler.ExpirySweepInterval)
	stopScheduler := sched.Start(context.Background())
	stopFuncs = append(stopFuncs, stopScheduler)

	// Create application struct from FiberRouter
	fiberRouter := appRouter.(*router.FiberRouter)
	application := &Application{
		router:    fiberRouter,
		config:    cfg,
		server:    fiberRouter.GetApp(),
		stopFuncs: stopFuncs,
	}

	return application, nil
}
