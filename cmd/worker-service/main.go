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
	"github.com/cuongbtq/inference-worker/internal/worker"
	"github.com/cuongbtq/inference-worker/shared/logger"
	"github.com/cuongbtq/inference-worker/shared/middleware"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

const serviceName = "worker-service"

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

	defaultConfigPath := os.Getenv("WORKER_SERVICE_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/worker-service/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.ValidateWorkerConfig(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	appLogger, err := logger.New(cfg.LoggerConfig(serviceName))
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer appLogger.Close()

	appLogger.Info("Starting worker service",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
		slog.String("queue", cfg.RabbitMQ.Queue.Name),
		slog.Int("instances", cfg.Worker.Instances),
	)

	if cfg.Callback.Secret == "" {
		appLogger.Warn("HMAC secret is not set; every message will be rejected until it is configured",
			slog.String("env", config.EnvHMACSecret),
		)
	}
	if cfg.Callback.URL == "" {
		appLogger.Warn("Callback URL is not set; every message will be rejected until it is configured",
			slog.String("env", config.EnvCallbackURL),
		)
	}

	workerInstance := worker.NewWorker(&worker.Config{
		Logger:       appLogger.WithComponent("worker").Logger,
		RabbitConfig: cfg.RabbitMQClientConfig(),
		Instances:    cfg.Worker.Instances,
		TagPrefix:    cfg.RabbitMQ.Consumer.TagPrefix,
		Consumer: worker.ConsumerConfig{
			Processor:      &worker.SimulatedProcessor{Delay: cfg.Processor.Delay},
			Dispatcher:     worker.NewDispatcher(cfg.Callback.Timeout, appLogger.WithComponent("dispatcher").Logger),
			CallbackURL:    cfg.Callback.URL,
			Secret:         cfg.Callback.Secret,
			ProcessTimeout: cfg.Processor.Timeout,
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errChan := make(chan error, 1)
	go func() {
		if err := workerInstance.Start(ctx); err != nil {
			errChan <- err
		}
	}()

	srv := initHealthServer(cfg, appLogger, workerInstance)
	if srv != nil {
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				appLogger.Error("Health server failed", slog.Any("error", err))
			}
		}()
	}

	appLogger.Info("Worker service started successfully",
		slog.String("worker_id", workerInstance.ID()),
	)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	var runErr error
	select {
	case sig := <-quit:
		appLogger.Info("Received signal, shutting down gracefully",
			slog.String("signal", sig.String()),
		)
	case runErr = <-errChan:
		appLogger.Error("Worker error",
			slog.Any("error", runErr),
		)
	}

	// In-flight messages finish and are settled before their instance exits
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Worker.ShutdownTimeout)
	defer shutdownCancel()

	if srv != nil {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			appLogger.Error("Health server forced to shutdown", slog.Any("error", err))
		}
	}

	done := make(chan struct{})
	go func() {
		workerInstance.Stop()
		close(done)
	}()

	select {
	case <-done:
		appLogger.Info("Worker stopped gracefully")
	case <-shutdownCtx.Done():
		appLogger.Warn("Worker shutdown timeout exceeded, forcing exit")
	}

	appLogger.Info("Worker service shutdown complete")
	return runErr
}

// initHealthServer builds the health endpoint; nil when server.port is unset
func initHealthServer(cfg *config.Config, appLogger *logger.Logger, w *worker.Worker) *http.Server {
	if cfg.Server.Port == 0 {
		return nil
	}

	if cfg.App.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.Logger(appLogger.Logger, "/health"))
	r.GET("/health", worker.HealthHandler(w, serviceName))

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	appLogger.Info("Starting health server", slog.String("address", addr))

	return &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
}
