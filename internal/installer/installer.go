package installer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cuongbtq/inference-worker/internal/installer/domain"
)

// Installer fetches a model onto local storage and describes the outcome
type Installer interface {
	Install(ctx context.Context, modelPath string) (string, error)
}

// SimulatedInstaller stands in for a real model download
type SimulatedInstaller struct {
	Delay time.Duration
}

func (s *SimulatedInstaller) Install(ctx context.Context, modelPath string) (string, error) {
	if strings.TrimSpace(modelPath) == "" {
		return "", fmt.Errorf("%w: model path is empty", domain.ErrInvalidModelPath)
	}
	if strings.Contains(modelPath, "..") {
		return "", fmt.Errorf("%w: %q escapes the model directory", domain.ErrInvalidModelPath, modelPath)
	}

	if s.Delay > 0 {
		timer := time.NewTimer(s.Delay)
		defer timer.Stop()

		select {
		case <-timer.C:
		case <-ctx.Done():
			return "", fmt.Errorf("install of %s canceled: %w", modelPath, ctx.Err())
		}
	}

	return fmt.Sprintf("Model %s installed successfully.", modelPath), nil
}
