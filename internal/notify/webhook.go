package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// WebhookSender posts each message as JSON to a fixed URL. Any non-2xx
// response is a delivery failure.
type WebhookSender struct {
	url    string
	client *http.Client
	logger *slog.Logger
}

var _ Sender = (*WebhookSender)(nil)

// NewWebhookSender creates a WebhookSender with the given request timeout.
func NewWebhookSender(url string, timeout time.Duration, logger *slog.Logger) *WebhookSender {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &WebhookSender{
		url:    url,
		client: &http.Client{Timeout: timeout},
		logger: logger.With(slog.String("component", "webhook_sender")),
	}
}

// Send implements Sender.
func (s *WebhookSender) Send(ctx context.Context, msg Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode notification: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build notification request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDeliveryFailed, err)
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: webhook responded %d", ErrDeliveryFailed, resp.StatusCode)
	}

	s.logger.DebugContext(ctx, "notification delivered",
		slog.String("occurrence_id", msg.OccurrenceID.String()),
		slog.Int("status", resp.StatusCode))
	return nil
}
