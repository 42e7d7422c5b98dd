// Package main provides the API server entry point for the Algorand portfolio tracker.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/vestival/algorand-tracker/internal/adapter"
	"github.com/vestival/algorand-tracker/internal/api"
	"github.com/vestival/algorand-tracker/internal/config"
	"github.com/vestival/algorand-tracker/internal/defi"
	"github.com/vestival/algorand-tracker/internal/logging"
	"github.com/vestival/algorand-tracker/internal/ratelimit"
	"github.com/vestival/algorand-tracker/internal/service"
	"github.com/vestival/algorand-tracker/internal/storage"
)

func main() {
	fmt.Println("Algorand Portfolio Tracker API Server")

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize structured logging
	logging.InitGlobalLogger(logging.ParseLogLevel(cfg.Logging.Level), logging.ParseLogFormat(cfg.Logging.Format))

	logger := logging.GetGlobalLogger()
	logger.WithFields(map[string]interface{}{
		"level":  cfg.Logging.Level,
		"format": cfg.Logging.Format,
	}).Info("Structured logging initialized")

	ctx := context.Background()

	logger.Info("Connecting to databases...")

	postgres, err := storage.NewPostgresDB(ctx, &cfg.Database.Postgres)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to Postgres")
	}
	defer postgres.Close()

	clickhouse, err := storage.NewClickHouseDB(ctx, &cfg.Database.ClickHouse)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to ClickHouse")
	}
	defer func() {
		_ = clickhouse.Close()
	}()

	redis, err := storage.NewRedisCache(ctx, &cfg.Database.Redis)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to Redis")
	}
	defer func() {
		_ = redis.Close()
	}()

	logger.Info("Database connections established")

	// Repositories and cache
	walletRepo := storage.NewWalletRepository(postgres)
	snapshotRepo := storage.NewSnapshotRepository(postgres)
	auditRepo := storage.NewAuditRepository(postgres)
	dailyPriceRepo := storage.NewDailyPriceRepository(clickhouse)
	cacheService := storage.NewCacheService(redis, cfg.Cache)

	// Upstream providers
	indexer := adapter.NewIndexerClient(cfg.Indexer, cacheService)
	prices := adapter.NewPriceClient(cfg.Price, cacheService)

	logger.WithFields(map[string]interface{}{
		"indexer": cfg.Indexer.URL,
		"txLimit": cfg.Indexer.TxLimit,
	}).Info("Providers initialized")

	// Services
	defiFactory := func(accounts defi.AccountSource, priceSource defi.PriceSource) service.DefiCollector {
		return defi.NewDefaultRegistry(cfg.DeFi, accounts, priceSource)
	}
	snapshotService := service.NewSnapshotService(indexer, prices, defiFactory, cfg.Indexer.TxLimit)

	portfolioService := service.NewPortfolioService(
		walletRepo,
		snapshotRepo,
		auditRepo,
		snapshotService,
		indexer,
		cfg.History.MaxSnapshots,
	).WithCache(cacheService).WithDailyPrices(dailyPriceRepo, prices)

	walletService := service.NewWalletService(walletRepo)

	limiterConfig := ratelimit.FromAppConfig(cfg.RateLimit)
	limiter, err := ratelimit.NewLimiter(limiterConfig, ratelimit.NewRedisStore(redis.Client()))
	if err != nil {
		logger.WithError(err).Fatal("Failed to create rate limiter")
	}
	logger.WithField("rateLimit", limiterConfig.String()).Info("Services initialized")

	serverConfig := &api.ServerConfig{
		Host:            cfg.Server.Host,
		Port:            cfg.Server.Port,
		ReadTimeout:     15 * time.Second,
		WriteTimeout:    60 * time.Second,
		IdleTimeout:     60 * time.Second,
		ShutdownTimeout: 10 * time.Second,
	}

	server := api.NewServer(serverConfig, portfolioService, walletService, limiter, indexer.Breaker(), prices.Breaker())

	// Start server in a goroutine
	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("Server failed to start")
		}
	}()

	logger.WithFields(map[string]interface{}{
		"host": cfg.Server.Host,
		"port": cfg.Server.Port,
	}).Info("Server started successfully")

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), serverConfig.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Server forced to shutdown")
	}

	logger.Info("Server exited")
}
