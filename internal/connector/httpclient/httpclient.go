package httpclient

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/crimson-sun/vidstat/internal/model"
)

const (
	defaultTimeout = 30 * time.Second
	maxBodyExcerpt = 512
)

// Client is an HTTP client with Bearer auth, base URL, and optional retries.
type Client struct {
	baseURL    string
	token      string
	retries    int
	httpClient *http.Client
}

// Option configures Client behavior.
type Option func(*Client)

// WithTimeout sets the HTTP client timeout. Zero disables it.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// WithRetries allows up to n retries on 429 and 5xx responses. Default 0.
func WithRetries(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.retries = n
		}
	}
}

// WithHTTPClient replaces the underlying transport client, keeping the
// configured timeout.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		timeout := c.httpClient.Timeout
		c.httpClient = hc
		c.httpClient.Timeout = timeout
	}
}

// New creates a Client with Bearer auth and a base URL.
func New(baseURL, token string, opts ...Option) *Client {
	c := &Client{
		baseURL: baseURL,
		token:   token,
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// URL returns the absolute URL for path and query.
func (c *Client) URL(path string, query url.Values) string {
	full := c.baseURL + path
	if len(query) > 0 {
		full += "?" + query.Encode()
	}
	return full
}

// GetRaw sends a GET request and returns the response body, which is
// guaranteed to be valid JSON. Non-2xx responses and network failures
// return *model.TransportError; an invalid body returns *model.DecodeError.
func (c *Client) GetRaw(ctx context.Context, path string, query url.Values) ([]byte, error) {
	fullURL := c.URL(path, query)

	var lastErr *model.TransportError
	var retryAfter string
	for attempt := 0; attempt <= c.retries; attempt++ {
		if attempt > 0 {
			wait := backoffDelay(attempt, lastErr, retryAfter)
			t := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				t.Stop()
				return nil, ctx.Err()
			case <-t.C:
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+c.token)
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
				return nil, ctxErr
			}
			return nil, &model.TransportError{URL: fullURL, Err: err}
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return nil, &model.TransportError{URL: fullURL, StatusCode: resp.StatusCode, Err: err}
		}

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			if !json.Valid(body) {
				return nil, &model.DecodeError{URL: fullURL, Err: errors.New("response body is not valid JSON")}
			}
			return body, nil
		}

		bodyStr := string(body)
		if len(bodyStr) > maxBodyExcerpt {
			bodyStr = bodyStr[:maxBodyExcerpt]
		}
		apiErr := &model.TransportError{URL: fullURL, StatusCode: resp.StatusCode, Body: bodyStr}

		if resp.StatusCode == http.StatusTooManyRequests {
			retryAfter = resp.Header.Get("Retry-After")
			lastErr = apiErr
			continue
		}
		if resp.StatusCode >= 500 {
			retryAfter = ""
			lastErr = apiErr
			continue
		}

		return nil, apiErr
	}

	return nil, lastErr
}

// backoffDelay returns the wait duration before a retry attempt.
func backoffDelay(attempt int, lastErr *model.TransportError, retryAfter string) time.Duration {
	if lastErr != nil && lastErr.StatusCode == http.StatusTooManyRequests && retryAfter != "" {
		if secs, err := strconv.Atoi(retryAfter); err == nil && secs >= 0 {
			return time.Duration(secs) * time.Second
		}
	}
	// Exponential backoff: 1s, 2s, 4s, ...
	return time.Duration(1<<(attempt-1)) * time.Second
}
