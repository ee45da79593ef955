package installer

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cuongbtq/inference-worker/internal/installer/domain"
	"github.com/cuongbtq/inference-worker/internal/worker"
)

// Notifier tells the requester how an install ended
type Notifier interface {
	Notify(ctx context.Context, url string, cb domain.Callback) error
}

// HTTPNotifier posts the callback as JSON, once and unsigned
type HTTPNotifier struct {
	dispatcher *worker.Dispatcher
}

func NewHTTPNotifier(dispatcher *worker.Dispatcher) *HTTPNotifier {
	return &HTTPNotifier{dispatcher: dispatcher}
}

func (n *HTTPNotifier) Notify(ctx context.Context, url string, cb domain.Callback) error {
	payload, err := json.Marshal(cb)
	if err != nil {
		return fmt.Errorf("failed to marshal callback: %w", err)
	}

	_, err = n.dispatcher.Post(ctx, url, payload, nil)
	return err
}
