package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/cuongbtq/inference-worker/internal/config"
	"github.com/cuongbtq/inference-worker/internal/installer"
	"github.com/cuongbtq/inference-worker/internal/installer/handler"
	"github.com/cuongbtq/inference-worker/internal/installer/router"
	"github.com/cuongbtq/inference-worker/internal/installer/storage"
	"github.com/cuongbtq/inference-worker/internal/worker"
	"github.com/cuongbtq/inference-worker/migrations"
	"github.com/cuongbtq/inference-worker/shared/logger"
	"github.com/cuongbtq/inference-worker/shared/postgresql"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

const serviceName = "installer-service"

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables or flags")
	}

	defaultConfigPath := os.Getenv("INSTALLER_SERVICE_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/installer-service/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.ValidateInstallerConfig(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	appLogger, err := logger.New(cfg.LoggerConfig(serviceName))
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer appLogger.Close()

	appLogger.Info("Starting installer service",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
	)

	store, dbClient, err := initStore(cfg, appLogger.Logger)
	if err != nil {
		return err
	}
	if dbClient != nil {
		defer dbClient.Close()
	}

	pool := installer.NewPool(&installer.PoolConfig{
		Logger:    appLogger.WithComponent("install-pool").Logger,
		Installer: &installer.SimulatedInstaller{Delay: cfg.Installer.InstallDelay},
		Notifier: installer.NewHTTPNotifier(
			worker.NewDispatcher(cfg.Installer.CallbackTimeout, appLogger.WithComponent("notifier").Logger),
		),
		Store:     store,
		Workers:   cfg.Installer.Workers,
		QueueSize: cfg.Installer.QueueSize,
	})

	if cfg.App.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	r := router.SetupRouter(&handler.Dependencies{
		Logger:      appLogger.Logger,
		ServiceName: serviceName,
		Pool:        pool,
		Store:       store,
		DBClient:    dbClient,
	})

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	appLogger.Info("Installer service is running",
		slog.String("address", addr),
		slog.Int("workers", cfg.Installer.Workers),
		slog.Int("queue_size", cfg.Installer.QueueSize),
	)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	var runErr error
	select {
	case sig := <-quit:
		appLogger.Info("Received signal, shutting down gracefully",
			slog.String("signal", sig.String()),
		)
	case runErr = <-serverErr:
		appLogger.Error("Server failed", slog.Any("error", runErr))
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		appLogger.Error("Server forced to shutdown", slog.Any("error", err))
	}

	if err := pool.Shutdown(ctx); err != nil {
		appLogger.Warn("Install pool did not drain before timeout", slog.Any("error", err))
	}

	appLogger.Info("Installer service shutdown complete")
	return runErr
}

// initStore picks the Postgres store when the database is enabled, else the in-memory one
func initStore(cfg *config.Config, logger *slog.Logger) (storage.Store, *postgresql.Client, error) {
	if !cfg.Database.Enabled {
		logger.Info("Database disabled, install requests are kept in memory")
		return storage.NewMemoryStore(), nil, nil
	}

	dbClient, err := postgresql.NewClient(cfg.PostgresClientConfig(), logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := dbClient.Migrate(ctx, migrations.FS); err != nil {
		dbClient.Close()
		return nil, nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	return storage.NewPostgresStore(dbClient.GetDB(), logger), dbClient, nil
}
