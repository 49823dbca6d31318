// Package notify reports finished runs to an HTTP endpoint.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/crimson-sun/vidstat/internal/model"
)

const (
	defaultTimeout = 10 * time.Second
	maxRetries     = 3
)

// Option configures a Webhook.
type Option func(*Webhook)

// WithHeaders sets custom HTTP headers sent with every POST.
func WithHeaders(h map[string]string) Option {
	return func(w *Webhook) { w.headers = h }
}

// WithTimeout sets the per-request timeout. Default: 10s.
func WithTimeout(d time.Duration) Option {
	return func(w *Webhook) { w.client.Timeout = d }
}

// WithBackoff sets the delay before the first retry; it doubles after each
// attempt. Default: 1s.
func WithBackoff(d time.Duration) Option {
	return func(w *Webhook) { w.backoff = d }
}

// Webhook POSTs a run result as one JSON object. Retries on 5xx with
// exponential backoff.
type Webhook struct {
	client  *http.Client
	url     string
	headers map[string]string
	backoff time.Duration
}

// New creates a webhook notifier targeting url.
func New(url string, opts ...Option) *Webhook {
	w := &Webhook{
		client:  &http.Client{Timeout: defaultTimeout},
		url:     url,
		backoff: time.Second,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Notify sends result. A nil Webhook does nothing.
func (w *Webhook) Notify(ctx context.Context, result model.Result) error {
	if w == nil {
		return nil
	}
	body, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("webhook: marshal: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(w.backoff << (attempt - 1)):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("webhook: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		for k, v := range w.headers {
			req.Header.Set(k, v)
		}

		resp, err := w.client.Do(req)
		if err != nil {
			return fmt.Errorf("webhook: %w", err)
		}
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return nil
		}
		lastErr = fmt.Errorf("webhook: HTTP %d", resp.StatusCode)
		if resp.StatusCode < 500 {
			return lastErr
		}
	}
	return lastErr
}
