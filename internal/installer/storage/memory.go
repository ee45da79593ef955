package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/cuongbtq/inference-worker/internal/installer/domain"
	"github.com/cuongbtq/inference-worker/internal/installer/model"
)

// MemoryStore keeps install requests for the lifetime of the process
type MemoryStore struct {
	mu       sync.RWMutex
	requests map[string]model.InstallRequest
	now      func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		requests: make(map[string]model.InstallRequest),
		now:      time.Now,
	}
}

func (s *MemoryStore) Create(_ context.Context, req *model.InstallRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if req.CreatedAt.IsZero() {
		req.CreatedAt = now
	}
	req.UpdatedAt = now
	s.requests[req.RequestID] = *req
	return nil
}

func (s *MemoryStore) Get(_ context.Context, requestID string) (*model.InstallRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	req, ok := s.requests[requestID]
	if !ok {
		return nil, domain.ErrRequestNotFound
	}
	return &req, nil
}

func (s *MemoryStore) Complete(_ context.Context, requestID, status, message, callbackErr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	req, ok := s.requests[requestID]
	if !ok {
		return domain.ErrRequestNotFound
	}

	req.Status = status
	req.Message = message
	req.CallbackError = callbackErr
	req.UpdatedAt = s.now()
	s.requests[requestID] = req
	return nil
}

// List returns up to PageSize+1 rows, newest first, so callers can tell whether another page exists
func (s *MemoryStore) List(_ context.Context, filter Filter) ([]model.InstallRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.InstallRequest, 0, len(s.requests))
	for _, req := range s.requests {
		if filter.Status != "" && req.Status != filter.Status {
			continue
		}
		if filter.Cursor != nil && !before(req, filter.Cursor) {
			continue
		}
		out = append(out, req)
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].RequestID > out[j].RequestID
	})

	if limit := filter.PageSize + 1; filter.PageSize > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// before reports whether req sorts after the cursor in (created_at, request_id) DESC order
func before(req model.InstallRequest, c *Cursor) bool {
	if req.CreatedAt.Equal(c.CreatedAt) {
		return req.RequestID < c.RequestID
	}
	return req.CreatedAt.Before(c.CreatedAt)
}
