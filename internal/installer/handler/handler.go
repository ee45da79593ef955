package handler

import (
	"log/slog"

	"github.com/cuongbtq/inference-worker/internal/installer"
	"github.com/cuongbtq/inference-worker/internal/installer/storage"
	"github.com/cuongbtq/inference-worker/shared/postgresql"
)

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Logger      *slog.Logger
	ServiceName string
	Pool        *installer.Pool
	Store       storage.Store
	// DBClient is nil when the in-memory store is used
	DBClient *postgresql.Client
}

// InstallHandler handles model install HTTP requests
type InstallHandler struct {
	logger   *slog.Logger
	service  string
	pool     *installer.Pool
	store    storage.Store
	dbClient *postgresql.Client
}

// NewInstallHandler creates a new InstallHandler instance
func NewInstallHandler(deps *Dependencies) *InstallHandler {
	return &InstallHandler{
		logger:   deps.Logger,
		service:  deps.ServiceName,
		pool:     deps.Pool,
		store:    deps.Store,
		dbClient: deps.DBClient,
	}
}
