package domain

import (
	"errors"
)

// Install request statuses
const (
	StatusInProgress = "in_progress"
	StatusDone       = "done"
	StatusFailed     = "failed"
)

// Callback statuses reported to the requester
const (
	CallbackSuccess = "success"
	CallbackFail    = "fail"
)

var (
	ErrRequestNotFound  = errors.New("install request not found")
	ErrQueueFull        = errors.New("install queue is full")
	ErrPoolClosed       = errors.New("install pool is shut down")
	ErrInvalidModelPath = errors.New("invalid model path")
)

// InstallRequest asks for a model to be installed and the outcome posted to CallbackURL
type InstallRequest struct {
	RequestID   string
	ModelPath   string
	CallbackURL string
}

// Callback is the unsigned completion notice sent to the requester
type Callback struct {
	ModelPath string `json:"model_path"`
	Status    string `json:"status"`
	Message   string `json:"message"`
}

// ValidStatus reports whether s is a known install status
func ValidStatus(s string) bool {
	switch s {
	case StatusInProgress, StatusDone, StatusFailed:
		return true
	}
	return false
}
