package storage

import (
	"context"
	"time"

	"github.com/cuongbtq/inference-worker/internal/installer/model"
)

// Store records install requests and their outcome
type Store interface {
	Create(ctx context.Context, req *model.InstallRequest) error
	Get(ctx context.Context, requestID string) (*model.InstallRequest, error)
	Complete(ctx context.Context, requestID, status, message, callbackErr string) error
	List(ctx context.Context, filter Filter) ([]model.InstallRequest, error)
}

type Filter struct {
	Status   string
	PageSize int
	Cursor   *Cursor
}

// Cursor is the keyset position of the last row on the previous page
type Cursor struct {
	CreatedAt time.Time
	RequestID string
}
