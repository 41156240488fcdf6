package service

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/OfekItzhaki/horizon-hcm-sub003/internal/models"
	"github.com/OfekItzhaki/horizon-hcm-sub003/internal/signature"
)

// Outbound delivery headers.
const (
	HeaderWebhookSignature = "X-Webhook-Signature"
	HeaderWebhookEvent     = "X-Webhook-Event"
)

// WebhookSender delivers a single payload to an endpoint: sign, POST, check status.
type WebhookSender interface {
	Send(ctx context.Context, webhook *models.Webhook, delivery *models.WebhookDelivery) error
}

// HTTPWebhookSender implements WebhookSender over a retrying HTTP client.
// Transport-level retries (connection refused, 5xx) happen inside one Send
// call and are invisible to the ledger's attempt count.
type HTTPWebhookSender struct {
	client *retryablehttp.Client
}

// NewHTTPWebhookSender creates a sender. timeout bounds each HTTP attempt
// (0 = 15s); transportRetries is the in-call retry budget. Redirects are not
// followed: a 3xx is a failure and the subscriber should update its URL.
func NewHTTPWebhookSender(timeout time.Duration, transportRetries int) *HTTPWebhookSender {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	client := retryablehttp.NewClient()
	client.HTTPClient.Timeout = timeout
	client.RetryMax = transportRetries
	client.Logger = nil // disable retryablehttp's default logger; we log at delivery layer
	client.HTTPClient.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}
	// Tune connection pool for concurrent delivery
	if t, ok := client.HTTPClient.Transport.(*http.Transport); ok {
		t.MaxIdleConns = 100
		t.MaxIdleConnsPerHost = 20
	}

	return &HTTPWebhookSender{client: client}
}

// Send signs the delivery payload with the webhook's secret and POSTs it.
// Any 2xx response is success; anything else, including transport errors and
// timeouts, is a failure.
func (s *HTTPWebhookSender) Send(ctx context.Context, webhook *models.Webhook, delivery *models.WebhookDelivery) error {
	sig, err := signature.Sign(delivery.Payload, webhook.Secret)
	if err != nil {
		return fmt.Errorf("sign payload: %w", err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, webhook.URL, bytes.NewReader(delivery.Payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderWebhookSignature, sig)
	req.Header.Set(HeaderWebhookEvent, delivery.EventType)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("send webhook: %w", err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			slog.Warn("failed to close webhook response body", "webhook_id", webhook.ID, "error", closeErr)
		}
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned non-2xx status: %d", resp.StatusCode)
	}

	return nil
}
