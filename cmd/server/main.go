package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"order_dashboard/internal/config"
	"order_dashboard/internal/database"
	"order_dashboard/internal/handlers"
	"order_dashboard/internal/middleware"
	"order_dashboard/internal/realtime"
	"order_dashboard/internal/redis"
	"order_dashboard/internal/repository"
	"order_dashboard/internal/services"
	"order_dashboard/pkg/orderapi"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

func main() {
	// Load configuration
	cfg := config.Load()
	logger := config.NewLogger(cfg.LogLevel, cfg.LogFormat)
	loc := cfg.Location()

	// Initialize Redis
	redisClient, err := redis.Initialize(cfg.RedisURL)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to Redis")
	}
	defer redisClient.Close()

	// Upstream API client
	apiClient := orderapi.NewClient(cfg.UpstreamAPIURL, cfg.UpstreamTimeout)

	var fetcher realtime.Fetcher = services.NewAPISource(apiClient)
	var writer services.OrderWriter = apiClient
	if cfg.OrderSource == config.SourceDatabase {
		db, err := database.Initialize(cfg.DatabaseURL, logger)
		if err != nil {
			logger.WithError(err).Fatal("Failed to connect to database")
		}
		snapshots := repository.NewSnapshotRepository(db)
		fetcher = services.NewDatabaseSource(snapshots, logger)
		writer = services.NewDatabaseWriter(snapshots, redisClient, cfg.OrderEventsChannel, logger)
	}
	logger.WithField("source", cfg.OrderSource).Info("Bulk order source selected")

	// Initialize services
	notices := services.NewNoticeHub(64, logger)
	views := services.NewViewManager(services.ViewDeps{
		Fetcher:     fetcher,
		Channel:     services.RedisChannel(redisClient, cfg.OrderEventsChannel),
		Writer:      writer,
		Notices:     notices,
		Export:      services.NewExportService(loc),
		Location:    loc,
		MaxAttempts: cfg.ReconnectAttempts,
		RetryDelay:  cfg.ReconnectDelay,
		Logger:      logger,
	}, cfg.ViewIdleTimeout)
	prefs := services.NewPreferenceService(redisClient, cfg.PreferencesTTL)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go views.Run(ctx)

	limiter := middleware.NewIPRateLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst)
	go limiter.RunCleanup(ctx.Done())

	// Initialize handlers
	apiHandler := handlers.NewAPIHandler(views, notices, prefs, loc, logger)

	// Setup routes
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID(logger))
	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.CORSAllowedOrigins,
		AllowMethods:     []string{"GET", "PUT", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", middleware.RequestIDHeader},
		ExposeHeaders:    []string{"Content-Disposition", middleware.RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	router.GET("/healthz", handlers.Health)

	api := router.Group("/api")
	api.Use(middleware.RateLimit(limiter), middleware.Auth(cfg.JWTSecret))
	apiHandler.Register(api)

	srv := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: router,
	}

	go func() {
		logger.Infof("Server starting on port %s", cfg.ServerPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("Failed to start server")
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Server shutdown failed")
	}
	views.Close()
}
