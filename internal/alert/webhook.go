// Package alert delivers operator alerts for fatal sync errors.
package alert

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

// Payload is the JSON body posted to the webhook.
type Payload struct {
	Level     string `json:"level"`
	Context   string `json:"context"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

// Webhook posts alerts to a configured URL.
type Webhook struct {
	url        string
	httpClient *http.Client
	now        func() time.Time
	logger     *slog.Logger
}

// NewWebhook returns nil when alerts are disabled or no URL is configured;
// every method is a no-op on a nil *Webhook.
func NewWebhook(enabled bool, url string, logger *slog.Logger) *Webhook {
	if !enabled || url == "" {
		return nil
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Webhook{
		url:        url,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		now:        time.Now,
		logger:     logger.With("component", "alert"),
	}
}

// Critical sends a critical alert for err raised in the named context.
func (w *Webhook) Critical(ctx context.Context, where string, err error) error {
	if w == nil || err == nil {
		return nil
	}
	return w.Send(ctx, Payload{
		Level:     "critical",
		Context:   where,
		Message:   err.Error(),
		Timestamp: w.now().Format(time.RFC3339),
	})
}

// Send posts p to the webhook.
func (w *Webhook) Send(ctx context.Context, p Payload) error {
	if w == nil {
		return nil
	}
	body, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode alert: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create alert request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send alert: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 300 {
		return fmt.Errorf("alert webhook returned %d", resp.StatusCode)
	}
	w.logger.Info("Webhook alert sent", "context", p.Context)
	return nil
}
