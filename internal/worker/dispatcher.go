package worker

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/cuongbtq/inference-worker/internal/worker/domain"
)

// DefaultCallbackTimeout bounds a single callback request
const DefaultCallbackTimeout = 10 * time.Second

// maxErrorBody caps how much of a failed response is kept for logs
const maxErrorBody = 512

// Dispatcher posts results back to the originating system. It never retries.
type Dispatcher struct {
	httpClient *http.Client
	logger     *slog.Logger
}

// NewDispatcher creates a dispatcher whose requests time out after timeout
func NewDispatcher(timeout time.Duration, logger *slog.Logger) *Dispatcher {
	if timeout <= 0 {
		timeout = DefaultCallbackTimeout
	}
	return &Dispatcher{
		httpClient: &http.Client{
			Timeout: timeout,
			// Redirects are not followed; a 3xx is classified like any other non-2xx
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		logger: logger,
	}
}

// Deliver sends a signed callback. The body is sent exactly as given.
func (d *Dispatcher) Deliver(ctx context.Context, url string, payload []byte, signatureHex string) (domain.DeliveryOutcome, error) {
	return d.Post(ctx, url, payload, map[string]string{
		SignatureHeader: SignaturePrefix + signatureHex,
	})
}

// Post sends a JSON body with extra headers and classifies the response
func (d *Dispatcher) Post(ctx context.Context, url string, payload []byte, headers map[string]string) (domain.DeliveryOutcome, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return domain.Rejected, fmt.Errorf("%w: failed to create request: %v", domain.ErrDelivery, err)
	}

	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	started := time.Now()
	resp, err := d.httpClient.Do(req)
	if err != nil {
		return domain.Rejected, fmt.Errorf("%w: failed to send request: %v", domain.ErrDelivery, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return domain.Rejected, fmt.Errorf("%w: callback returned status %d: %s", domain.ErrDelivery, resp.StatusCode, bytes.TrimSpace(body))
	}

	// Drain so the connection can be reused
	_, _ = io.Copy(io.Discard, resp.Body)

	d.logger.Debug("Callback delivered",
		slog.String("url", url),
		slog.Int("status", resp.StatusCode),
		slog.Duration("latency", time.Since(started)),
	)

	return domain.Delivered, nil
}
