package handler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/cuongbtq/inference-worker/internal/installer/domain"
	"github.com/cuongbtq/inference-worker/internal/installer/dto"
	"github.com/cuongbtq/inference-worker/internal/installer/model"
	"github.com/cuongbtq/inference-worker/internal/installer/storage"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// Install handles POST /models/install
// Queues a model install and answers before it runs
func (h *InstallHandler) Install(c *gin.Context) {
	var req dto.InstallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid request body", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "model_path and callback_url are required",
		})
		return
	}

	requestID := uuid.New().String()

	_, err := h.pool.Submit(c.Request.Context(), domain.InstallRequest{
		RequestID:   requestID,
		ModelPath:   req.ModelPath,
		CallbackURL: req.CallbackURL,
	})
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrQueueFull), errors.Is(err, domain.ErrPoolClosed):
			h.logger.Warn("Install rejected",
				slog.String("model_path", req.ModelPath),
				slog.String("error", err.Error()),
			)
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"error": err.Error(),
			})
		default:
			h.logger.Error("Failed to queue install", slog.String("error", err.Error()))
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to queue install",
			})
		}
		return
	}

	c.JSON(http.StatusOK, dto.InstallResponse{
		Status:    "started",
		Message:   fmt.Sprintf("Started installing %s", req.ModelPath),
		RequestID: requestID,
	})
}

// GetInstall handles GET /models/install/:request_id
func (h *InstallHandler) GetInstall(c *gin.Context) {
	requestID := c.Param("request_id")

	if _, err := uuid.Parse(requestID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "request_id must be a valid UUID",
		})
		return
	}

	req, err := h.store.Get(c.Request.Context(), requestID)
	if err != nil {
		if errors.Is(err, domain.ErrRequestNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "install request not found",
			})
			return
		}
		h.logger.Error("Failed to get install request", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to get install request",
		})
		return
	}

	c.JSON(http.StatusOK, toDTO(req))
}

// ListInstalls handles GET /models/install
// Lists install requests newest first with keyset pagination
func (h *InstallHandler) ListInstalls(c *gin.Context) {
	var req dto.ListInstallsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid query parameters",
		})
		return
	}

	if req.Status != "" && !domain.ValidStatus(req.Status) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "status must be one of in_progress, done, failed",
		})
		return
	}

	if req.PageSize <= 0 {
		req.PageSize = defaultPageSize
	}
	if req.PageSize > maxPageSize {
		req.PageSize = maxPageSize
	}

	cursor, err := DecodeCursor(req.Cursor)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid cursor",
		})
		return
	}

	reqs, err := h.store.List(c.Request.Context(), storage.Filter{
		Status:   req.Status,
		PageSize: req.PageSize,
		Cursor:   cursor,
	})
	if err != nil {
		h.logger.Error("Failed to list install requests", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to list install requests",
		})
		return
	}

	hasMore := len(reqs) > req.PageSize
	if hasMore {
		reqs = reqs[:req.PageSize]
	}

	installs := make([]dto.InstallDTO, len(reqs))
	for i := range reqs {
		installs[i] = toDTO(&reqs[i])
	}

	var nextCursor string
	if hasMore {
		last := reqs[len(reqs)-1]
		nextCursor = EncodeCursor(&storage.Cursor{
			CreatedAt: last.CreatedAt,
			RequestID: last.RequestID,
		})
	}

	c.JSON(http.StatusOK, dto.ListInstallsResponse{
		Installs:   installs,
		NextCursor: nextCursor,
	})
}

// Health handles GET /health
func (h *InstallHandler) Health(c *gin.Context) {
	body := gin.H{
		"status":  "healthy",
		"service": h.service,
		"pool":    h.pool.Stats(),
	}

	if h.dbClient != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		if err := h.dbClient.HealthCheck(ctx); err != nil {
			body["status"] = "unhealthy"
			body["database"] = err.Error()
			c.JSON(http.StatusServiceUnavailable, body)
			return
		}
		body["database"] = "ok"
	}

	c.JSON(http.StatusOK, body)
}

func toDTO(req *model.InstallRequest) dto.InstallDTO {
	return dto.InstallDTO{
		RequestID:     req.RequestID,
		ModelPath:     req.ModelPath,
		CallbackURL:   req.CallbackURL,
		Status:        req.Status,
		Message:       req.Message,
		CallbackError: req.CallbackError,
		CreatedAt:     req.CreatedAt.Format(time.RFC3339),
		UpdatedAt:     req.UpdatedAt.Format(time.RFC3339),
	}
}
