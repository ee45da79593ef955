package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cuongbtq/inference-worker/internal/config"
	"github.com/cuongbtq/inference-worker/shared/logger"
	"github.com/cuongbtq/inference-worker/shared/rabbitmq"
	"github.com/joho/godotenv"
)

// prompt is the queue message the worker consumes
type prompt struct {
	ConversationID string `json:"conversation_id"`
	Prompt         string `json:"prompt,omitempty"`
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables or flags")
	}

	defaultConfigPath := os.Getenv("WORKER_SERVICE_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/worker-service/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	conversationID := flag.String("conversation-id", "", "Conversation id echoed back in the callback (required)")
	text := flag.String("prompt", "", "Prompt text; omitted from the message when empty")
	timeout := flag.Duration("timeout", 30*time.Second, "Give up if the broker is not reachable in time")
	flag.Parse()

	if *conversationID == "" {
		flag.Usage()
		return errors.New("-conversation-id is required")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.ValidatePublisherConfig(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	appLogger, err := logger.New(cfg.LoggerConfig("publish-prompt"))
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer appLogger.Close()

	body, err := json.Marshal(prompt{ConversationID: *conversationID, Prompt: *text})
	if err != nil {
		return fmt.Errorf("failed to marshal prompt: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	client := rabbitmq.NewClient(cfg.RabbitMQClientConfig(), appLogger.WithComponent("publisher").Logger)
	if err := client.Connect(ctx); err != nil {
		return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	defer client.Close()

	if err := client.PublishWithRetry(ctx, body, "application/json"); err != nil {
		return err
	}

	appLogger.Info("Prompt published",
		slog.String("queue", cfg.RabbitMQ.Queue.Name),
		slog.String("conversation_id", *conversationID),
	)
	return nil
}
