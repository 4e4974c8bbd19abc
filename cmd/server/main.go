package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/simutrador/marketdata/internal/api"
	"github.com/simutrador/marketdata/internal/api/handlers"
	"github.com/simutrador/marketdata/internal/cache"
	"github.com/simutrador/marketdata/internal/calendar"
	"github.com/simutrador/marketdata/internal/config"
	"github.com/simutrador/marketdata/internal/database"
	"github.com/simutrador/marketdata/internal/models"
	"github.com/simutrador/marketdata/internal/providers"
	"github.com/simutrador/marketdata/internal/services"
)

func main() {
	// Load .env if present, real environment still wins
	_ = godotenv.Load()

	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}

	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		logger.SetLevel(level)
	}

	// Initialize database
	db, err := database.NewPostgresConnection(cfg.Database, logger)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	store := database.NewCandleStore(db.Pool, logger)
	if err := store.EnsureSchema(context.Background()); err != nil {
		logger.Fatalf("Failed to ensure candle schema: %v", err)
	}

	// Initialize Redis
	redis, err := database.NewRedisConnection(cfg.Redis, logger)
	if err != nil {
		logger.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redis.Close()

	// Trading calendar
	cal := calendar.New(calendar.Config{
		OpenHourUTC:    cfg.Update.MarketOpenHourUTC,
		OpenMinuteUTC:  cfg.Update.MarketOpenMinuteUTC,
		FullDayCandles: cfg.Update.FullDayCandles,
		HalfDayCandles: cfg.Update.HalfDayCandles,
	})

	// Data providers, in priority order
	limiters := providers.NewLimiterRegistry(config.Duration(cfg.Providers.AcquireTimeout))
	var provs []providers.DataProvider
	if cfg.Providers.Polygon.Enabled && cfg.Providers.Polygon.APIKey != "" {
		limiters.Register("polygon", providers.RateLimitConfig{
			RequestsPerWindow: cfg.Providers.Polygon.RequestsPerWindow,
			Window:            config.Duration(cfg.Providers.Polygon.Window),
		})
		provs = append(provs, providers.NewPolygonProvider(cfg.Providers.Polygon.APIKey, logger))
	}
	if cfg.Providers.Tiingo.Enabled && cfg.Providers.Tiingo.APIKey != "" {
		limiters.Register("tiingo", providers.RateLimitConfig{
			RequestsPerWindow: cfg.Providers.Tiingo.RequestsPerWindow,
			Window:            config.Duration(cfg.Providers.Tiingo.Window),
		})
		provs = append(provs, providers.NewTiingoProvider(cfg.Providers.Tiingo.APIKey, logger))
	}
	if cfg.Providers.FMP.Enabled && cfg.Providers.FMP.APIKey != "" {
		limiters.Register("financial_modeling_prep", providers.RateLimitConfig{
			RequestsPerWindow: cfg.Providers.FMP.RequestsPerWindow,
			Window:            config.Duration(cfg.Providers.FMP.Window),
		})
		provs = append(provs, providers.NewFMPProvider(cfg.Providers.FMP.APIKey, logger))
	}
	if len(provs) == 0 {
		logger.Fatal("No data providers configured, set POLYGON_API_KEY, TIINGO_API_KEY or FMP_API_KEY")
	}

	fallback := providers.NewFallbackClient(provs, limiters, providers.FallbackConfig{
		MaxRetries:     uint64(cfg.Providers.MaxRetries),
		InitialBackoff: config.Duration(cfg.Providers.InitialBackoff),
		MaxBackoff:     config.Duration(cfg.Providers.MaxBackoff),
	}, logger)
	sessions := services.SessionFactory(func() services.Fetcher {
		return fallback.NewSession()
	})

	targets := make([]models.Timeframe, 0, len(cfg.Update.TargetTimeframes))
	for _, raw := range cfg.Update.TargetTimeframes {
		tf, err := models.ParseTimeframe(raw)
		if err != nil {
			logger.Fatalf("Invalid target timeframe %q: %v", raw, err)
		}
		targets = append(targets, tf)
	}

	// Update coordinator
	coordinator := services.NewCoordinator(services.CoordinatorConfig{
		DefaultSymbols:     cfg.Update.DefaultSymbols,
		MaxConcurrent:      cfg.Update.MaxConcurrent,
		MaxGapFillAttempts: cfg.Update.MaxGapFillAttempts,
		TargetTimeframes:   targets,
		RecordTTL:          config.Duration(cfg.Update.RecordTTL),
	}, store, cal, sessions, logger)
	coordinator.Start()
	defer coordinator.Stop()

	// Completeness analyzer with its Redis-backed report cache
	reports := cache.NewRedisReportCache(redis.Client, config.Duration(cfg.Update.ReportCacheTTL), logger)
	analyzer := services.NewAnalyzer(store, cal, sessions, reports, cfg.Update.MaxGapFillAttempts, logger)

	// Setup Gin router
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.Default()

	api.SetupRoutes(router, db, redis, handlers.NewUpdateHandler(coordinator), handlers.NewAnalysisHandler(analyzer))

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	// Start server in a goroutine
	go func() {
		logger.Infof("Server starting on port %d", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatalf("Server forced to shutdown: %v", err)
	}

	logger.Info("Server exited")
}
