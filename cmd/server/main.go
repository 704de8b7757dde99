package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ndewijer/Holdings-Import-Backend/internal/api"
	"github.com/ndewijer/Holdings-Import-Backend/internal/autoimport"
	"github.com/ndewijer/Holdings-Import-Backend/internal/config"
	"github.com/ndewijer/Holdings-Import-Backend/internal/database"
	"github.com/ndewijer/Holdings-Import-Backend/internal/logging"
	"github.com/ndewijer/Holdings-Import-Backend/internal/repository"
	"github.com/ndewijer/Holdings-Import-Backend/internal/service"
	"github.com/ndewijer/Holdings-Import-Backend/internal/version"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logging.NewLogger("info").Fatal().Err(err).Msg("Failed to load configuration")
	}

	logger := logging.NewLogger(cfg.Logging.Level)

	// Open database connection
	db, err := database.Open(cfg.Database.Path)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to open database")
	}
	defer db.Close()

	schemaVersion, err := database.Migrate(context.Background(), db)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to migrate database")
	}
	logger.Info().
		Str("path", cfg.Database.Path).
		Int64("schema_version", schemaVersion).
		Msg("Connected to database")

	// Create repositories
	holdingsRepo := repository.NewHoldingsRepository(db)

	// Create services
	systemService := service.NewSystemService(db, map[string]bool{
		"auto_import": cfg.AutoImport.Enabled,
	})
	importService := service.NewImportService(holdingsRepo, cfg.Import.CashZeroPolicy, logger)
	sessionService := service.NewSessionService(importService, cfg.Import.SessionTTL)
	portfolioService := service.NewPortfolioService(holdingsRepo)

	var scheduler *autoimport.Scheduler
	if cfg.AutoImport.Enabled {
		scheduler, err = autoimport.New(importService, cfg.AutoImport, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to configure auto import")
		}
		scheduler.Start()
	}

	// Create router
	router := api.NewRouter(systemService, portfolioService, sessionService, cfg, logger)

	// Create HTTP server
	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Info().Str("addr", cfg.Server.Addr).Str("version", version.Version).Msg("Starting server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("Server failed to start")
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("Shutting down server...")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if scheduler != nil {
		select {
		case <-scheduler.Stop().Done():
		case <-ctx.Done():
		}
	}

	if err := server.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("Server forced to shutdown")
		return
	}

	logger.Info().Msg("Server exited")
}
