// Package feed downloads the operator EBB page with retry and backoff.
package feed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/ebbwatch/internal/httpclient"
)

const (
	// DefaultTimeout is the per-request HTTP timeout.
	DefaultTimeout = 30 * time.Second

	// DefaultMaxBodySize is the largest page accepted.
	DefaultMaxBodySize = 10 * 1024 * 1024
)

// ErrBodyTooLarge is returned when the page exceeds the configured size cap.
var ErrBodyTooLarge = errors.New("feed response exceeds maximum body size")

// Client fetches the raw HTML of one bulletin board page.
type Client struct {
	url         string
	userAgent   string
	maxBodySize int64
	httpClient  *http.Client
	retry       *httpclient.RetryPolicy
	logger      arbor.ILogger
}

// ClientOption configures the Client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(userAgent string) ClientOption {
	return func(c *Client) {
		if userAgent != "" {
			c.userAgent = userAgent
		}
	}
}

// WithRetryPolicy sets the retry policy.
func WithRetryPolicy(policy *httpclient.RetryPolicy) ClientOption {
	return func(c *Client) {
		if policy != nil {
			c.retry = policy
		}
	}
}

// WithMaxBodySize sets the largest response body accepted; bigger pages fail.
func WithMaxBodySize(size int64) ClientOption {
	return func(c *Client) {
		if size > 0 {
			c.maxBodySize = size
		}
	}
}

// NewClient creates a feed client for url.
func NewClient(url string, logger arbor.ILogger, opts ...ClientOption) *Client {
	c := &Client{
		url:         url,
		userAgent:   httpclient.DefaultUserAgent,
		maxBodySize: DefaultMaxBodySize,
		httpClient:  httpclient.NewDefaultHTTPClient(DefaultTimeout),
		retry:       httpclient.NewRetryPolicy(),
		logger:      logger,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// URL returns the page this client fetches.
func (c *Client) URL() string {
	return c.url
}

// Fetch downloads the page, retrying transport failures and retryable
// statuses with exponential backoff.
func (c *Client) Fetch(ctx context.Context) (string, error) {
	c.logger.Info().Str("url", c.url).Msg("Fetching EBB feed")

	var body string
	_, err := c.retry.ExecuteWithRetry(ctx, c.logger, "fetch_feed", func(ctx context.Context) (int, error) {
		content, statusCode, err := c.fetchOnce(ctx)
		if err != nil {
			return statusCode, err
		}
		body = content
		return statusCode, nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to fetch feed %s: %w", c.url, err)
	}

	c.logger.Debug().
		Str("url", c.url).
		Int("bytes", len(body)).
		Msg("EBB feed fetched")

	return body, nil
}

func (c *Client) fetchOnce(ctx context.Context) (string, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return "", 0, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024))
		return "", resp.StatusCode, &httpclient.StatusError{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			URL:        c.url,
		}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBodySize+1))
	if err != nil {
		return "", resp.StatusCode, fmt.Errorf("failed to read response body: %w", err)
	}
	if int64(len(data)) > c.maxBodySize {
		return "", resp.StatusCode, fmt.Errorf("%w (%d bytes)", ErrBodyTooLarge, c.maxBodySize)
	}

	return string(data), resp.StatusCode, nil
}
