// Package alert tells the operator when the game loop stops on an error.
package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/andywolf/crowdplay/internal/version"
)

// DefaultTimeout bounds a single webhook post.
const DefaultTimeout = 10 * time.Second

// Notifier delivers a human-readable alert.
type Notifier interface {
	Notify(ctx context.Context, text string) error
}

// Nop discards alerts. It is used when no webhook is configured.
type Nop struct{}

// Notify does nothing.
func (Nop) Notify(context.Context, string) error { return nil }

// Webhook posts alerts as {"text": ...} to a chat webhook URL.
type Webhook struct {
	url        string
	httpClient *http.Client
	logger     *log.Logger
}

// WebhookOption configures a Webhook.
type WebhookOption func(*Webhook)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) WebhookOption {
	return func(w *Webhook) {
		w.httpClient = client
	}
}

// WithLogger sets the logger failures are reported to.
func WithLogger(logger *log.Logger) WebhookOption {
	return func(w *Webhook) {
		w.logger = logger
	}
}

// NewWebhook creates a notifier posting to url.
func NewWebhook(url string, opts ...WebhookOption) *Webhook {
	w := &Webhook{
		url:        url,
		httpClient: &http.Client{Timeout: DefaultTimeout},
		logger:     log.New(os.Stdout, "[alert] ", log.LstdFlags),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// New returns a Webhook for url, or Nop when url is empty.
func New(url string, opts ...WebhookOption) Notifier {
	if url == "" {
		return Nop{}
	}
	return NewWebhook(url, opts...)
}

type payload struct {
	Text string `json:"text"`
}

// Notify posts text. Delivery failures are logged and returned; callers on
// the shutdown path are free to ignore them.
func (w *Webhook) Notify(ctx context.Context, text string) error {
	if err := w.post(ctx, text); err != nil {
		w.logger.Printf("Warning: failed to deliver alert: %v", err)
		return err
	}
	return nil
}

func (w *Webhook) post(ctx context.Context, text string) error {
	body, err := json.Marshal(payload{Text: text})
	if err != nil {
		return fmt.Errorf("failed to encode alert: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to post alert: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("alert webhook returned status %d", resp.StatusCode)
	}
	return nil
}
